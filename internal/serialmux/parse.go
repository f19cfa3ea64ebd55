package serialmux

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ErrInvalidLine is returned for lines that are neither a sample nor a
// recognised control command.
var ErrInvalidLine = errors.New("invalid sample line")

// LineKind classifies a parsed line.
type LineKind int

const (
	// LineEmpty is a blank line, a '#' comment or a CSV header.
	LineEmpty LineKind = iota
	// LineSample carries one vertical position.
	LineSample
	// LineCommand carries a control command.
	LineCommand
)

// Control commands accepted on the sample feed.
const (
	CommandReset = "reset"
	CommandStop  = "stop"
	CommandStart = "start"
)

// Line is one parsed input line. Frame is -1 when the line did not carry a
// frame number.
type Line struct {
	Kind    LineKind
	Frame   int
	Y       float64
	Command string
}

type jsonLine struct {
	Frame *int     `json:"frame"`
	Y     *float64 `json:"y"`
	Cmd   string   `json:"cmd"`
}

// ParseSampleLine parses one line of the sample feed. Accepted forms are a
// bare position ("512.5"), "frame,y" ("12,512.5") and JSON objects
// ({"frame":12,"y":512.5} or {"cmd":"reset"}).
func ParseSampleLine(raw string) (Line, error) {
	s := strings.TrimSpace(raw)
	if s == "" || strings.HasPrefix(s, "#") || isHeader(s) {
		return Line{Kind: LineEmpty, Frame: -1}, nil
	}

	if strings.HasPrefix(s, "{") {
		var jl jsonLine
		if err := json.Unmarshal([]byte(s), &jl); err != nil {
			return Line{}, fmt.Errorf("%w: %v", ErrInvalidLine, err)
		}
		if jl.Cmd != "" {
			cmd := strings.ToLower(strings.TrimSpace(jl.Cmd))
			switch cmd {
			case CommandReset, CommandStop, CommandStart:
				return Line{Kind: LineCommand, Frame: -1, Command: cmd}, nil
			}
			return Line{}, fmt.Errorf("%w: unknown command %q", ErrInvalidLine, jl.Cmd)
		}
		if jl.Y == nil {
			return Line{}, fmt.Errorf("%w: missing y", ErrInvalidLine)
		}
		line := Line{Kind: LineSample, Frame: -1, Y: *jl.Y}
		if jl.Frame != nil {
			if *jl.Frame < 0 {
				return Line{}, fmt.Errorf("%w: negative frame %d", ErrInvalidLine, *jl.Frame)
			}
			line.Frame = *jl.Frame
		}
		return validSample(line)
	}

	fields := strings.Split(s, ",")
	switch len(fields) {
	case 1:
		y, err := parseY(fields[0])
		if err != nil {
			return Line{}, err
		}
		return validSample(Line{Kind: LineSample, Frame: -1, Y: y})
	case 2:
		frame, err := strconv.Atoi(strings.TrimSpace(fields[0]))
		if err != nil || frame < 0 {
			return Line{}, fmt.Errorf("%w: frame %q", ErrInvalidLine, fields[0])
		}
		y, err := parseY(fields[1])
		if err != nil {
			return Line{}, err
		}
		return validSample(Line{Kind: LineSample, Frame: frame, Y: y})
	}
	return Line{}, fmt.Errorf("%w: expected 1 or 2 fields, got %d", ErrInvalidLine, len(fields))
}

func parseY(field string) (float64, error) {
	y, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
	if err != nil {
		return 0, fmt.Errorf("%w: y %q", ErrInvalidLine, field)
	}
	return y, nil
}

func validSample(l Line) (Line, error) {
	if math.IsNaN(l.Y) || math.IsInf(l.Y, 0) {
		return Line{}, fmt.Errorf("%w: y must be finite", ErrInvalidLine)
	}
	return l, nil
}

func isHeader(s string) bool {
	switch strings.ToLower(strings.ReplaceAll(s, " ", "")) {
	case "y", "frame,y":
		return true
	}
	return false
}
