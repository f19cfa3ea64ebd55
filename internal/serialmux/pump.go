package serialmux

import (
	"context"
	"errors"

	"github.com/banshee-data/jump.report/internal/kinematics"
	"github.com/banshee-data/jump.report/internal/monitoring"
)

// Sink receives samples from the feed. *kinematics.Session satisfies it.
type Sink interface {
	Update(y float64) (kinematics.FrameStatus, error)
	Reset(keepBaseline bool)
	Pause()
	Resume()
	Paused() bool
}

// PumpOptions control how Pump feeds a Sink.
type PumpOptions struct {
	// AutoStop pauses the sink on the frame a landing is detected, so the
	// captured attempt is left intact until the next reset.
	AutoStop bool
	// KeepBaseline is passed to Sink.Reset on a reset command.
	KeepBaseline bool
	// OnLanded, when set, runs after an auto-stop.
	OnLanded func()
	// Logf overrides monitoring.Logf.
	Logf func(format string, v ...interface{})
}

// PumpStats counts what Pump did with the lines it read.
type PumpStats struct {
	Lines    int `json:"lines"`
	Samples  int `json:"samples"`
	Commands int `json:"commands"`
	Dropped  int `json:"dropped"`
	Invalid  int `json:"invalid"`
	// Resyncs counts attempts restarted because the tracker skipped frames.
	Resyncs int `json:"resyncs"`
}

// Pump subscribes to mux and feeds every parsed sample to sink until ctx is
// done or the mux closes the subscription. Samples arriving while the sink is
// paused are dropped; unparseable lines are logged and skipped.
//
// Lines that carry a tracker frame number must count up by one. A frame at or
// below the last one seen is rejected as invalid. A gap restarts the attempt
// (keeping the baseline) from the frame after it, since the samples already
// buffered can no longer be placed at frame/fps. The numbering restarts after
// a reset or start command.
func Pump(ctx context.Context, mux SerialMuxInterface, sink Sink, opts PumpOptions) (PumpStats, error) {
	p := newPumper(sink, opts)

	id, lines := mux.Subscribe()
	defer mux.Unsubscribe(id)

	for {
		select {
		case <-ctx.Done():
			return p.stats, ctx.Err()
		case raw, ok := <-lines:
			if !ok {
				return p.stats, nil
			}
			p.stats.Lines++
			if err := p.line(raw); err != nil {
				return p.stats, err
			}
		}
	}
}

type pumper struct {
	sink  Sink
	opts  PumpOptions
	logf  func(string, ...interface{})
	stats PumpStats

	// next is the tracker frame expected on the next numbered line, -1 until
	// the first one arrives.
	next int
}

func newPumper(sink Sink, opts PumpOptions) *pumper {
	logf := opts.Logf
	if logf == nil {
		logf = monitoring.Logf
	}
	return &pumper{sink: sink, opts: opts, logf: logf, next: -1}
}

func (p *pumper) line(raw string) error {
	line, err := ParseSampleLine(raw)
	if err != nil {
		p.stats.Invalid++
		p.logf("sample feed: skipping %q: %v", raw, err)
		return nil
	}

	switch line.Kind {
	case LineEmpty:
		return nil
	case LineCommand:
		p.stats.Commands++
		switch line.Command {
		case CommandReset:
			p.sink.Reset(p.opts.KeepBaseline)
			p.next = -1
		case CommandStop:
			p.sink.Pause()
		case CommandStart:
			p.sink.Resume()
			p.next = -1
		}
		p.logf("sample feed: %s", line.Command)
		return nil
	}

	if line.Frame >= 0 {
		if !p.inSequence(line.Frame, raw) {
			return nil
		}
	}

	if p.sink.Paused() {
		p.stats.Dropped++
		return nil
	}
	st, err := p.sink.Update(line.Y)
	switch {
	case errors.Is(err, kinematics.ErrSessionPaused):
		p.stats.Dropped++
		return nil
	case errors.Is(err, kinematics.ErrInvalidInput):
		p.stats.Invalid++
		p.logf("sample feed: rejected %q: %v", raw, err)
		return nil
	case err != nil:
		return err
	}
	p.stats.Samples++

	if p.opts.AutoStop && st.Phase == kinematics.PhaseLanded {
		p.sink.Pause()
		p.logf("sample feed: landing at frame %d, acquisition stopped", st.Frame)
		if p.opts.OnLanded != nil {
			p.opts.OnLanded()
		}
	}
	return nil
}

// inSequence checks a numbered line against the expected frame and reports
// whether its sample should be applied.
func (p *pumper) inSequence(frame int, raw string) bool {
	switch {
	case p.next < 0 || frame == p.next:
	case frame < p.next:
		p.stats.Invalid++
		p.logf("sample feed: rejected %q: frame %d out of order, expected %d", raw, frame, p.next)
		return false
	default:
		p.stats.Invalid++
		p.logf("sample feed: frames %d..%d missing", p.next, frame-1)
		// A paused sink is holding a finished attempt; keep it for the reset command.
		if !p.sink.Paused() {
			p.stats.Resyncs++
			p.sink.Reset(true)
		}
	}
	p.next = frame + 1
	return true
}
