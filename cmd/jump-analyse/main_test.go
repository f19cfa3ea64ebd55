package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/banshee-data/jump.report/internal/export"
	"github.com/banshee-data/jump.report/internal/fsutil"
	"github.com/banshee-data/jump.report/internal/kinematics"
	"github.com/banshee-data/jump.report/internal/testutil"
)

func writeCSV(t *testing.T, ys []float64) string {
	t.Helper()
	var b strings.Builder
	b.WriteString("frame,y\n")
	for i, y := range ys {
		fmt.Fprintf(&b, "%d,%g\n", i, y)
	}
	path := filepath.Join(t.TempDir(), "cmj.csv")
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestParseFlags(t *testing.T) {
	cfg, err := parseFlags([]string{"-fps", "60", "data/athlete-03.csv"}, io.Discard)
	if err != nil {
		t.Fatalf("parseFlags failed: %v", err)
	}
	if cfg.FPS != 60 || cfg.BodyMassKg != 75 || cfg.Units != "cm" {
		t.Errorf("unexpected config: fps=%v mass=%v units=%q", cfg.FPS, cfg.BodyMassKg, cfg.Units)
	}
	if !math.IsNaN(cfg.Baseline) {
		t.Errorf("baseline default = %v, want NaN", cfg.Baseline)
	}
	if cfg.TestID != "athlete-03" {
		t.Errorf("test id = %q, want athlete-03", cfg.TestID)
	}
	if cfg.massSet {
		t.Error("massSet should be false without -mass")
	}

	cfg, err = parseFlags([]string{"-mass", "80", "-"}, io.Discard)
	if err != nil {
		t.Fatalf("parseFlags failed: %v", err)
	}
	if !cfg.massSet || cfg.TestID != "stdin" {
		t.Errorf("massSet=%t test id=%q", cfg.massSet, cfg.TestID)
	}
}

func TestParseFlags_Errors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"no input", nil},
		{"two inputs", []string{"a.csv", "b.csv"}},
		{"bad units", []string{"-units", "furlong", "a.csv"}},
		{"bad baseline frames", []string{"-baseline-frames", "0", "a.csv"}},
		{"unknown flag", []string{"-bogus", "a.csv"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := parseFlags(tt.args, io.Discard); err == nil {
				t.Errorf("parseFlags(%v) succeeded, want error", tt.args)
			}
		})
	}
}

func TestReadPositions(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    []float64
		wantErr bool
	}{
		{name: "bare y", input: "y\n500\n501.5\n", want: []float64{500, 501.5}},
		{name: "frame,y from one", input: "frame,y\n1,500\n2,499\n", want: []float64{500, 499}},
		{name: "json", input: `{"frame":0,"y":500}` + "\n" + `{"frame":1,"y":480}`, want: []float64{500, 480}},
		{name: "comments and blanks", input: "# trial 3\n\n500\n\n", want: []float64{500}},
		{name: "gap", input: "0,500\n2,500\n", wantErr: true},
		{name: "command", input: "500\n{\"cmd\":\"reset\"}\n", wantErr: true},
		{name: "garbage", input: "500\nhigh\n", wantErr: true},
		{name: "empty", input: "frame,y\n", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := readPositions(strings.NewReader(tt.input))
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("readPositions failed: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("positions mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestResolveBaseline(t *testing.T) {
	ys := []float64{500, 502, 498, 500, 400}

	b, mode, err := resolveBaseline(ys, &Config{Baseline: math.NaN(), BaselineFrames: 4})
	if err != nil {
		t.Fatal(err)
	}
	if b != 500 || mode != kinematics.BaselineWindow {
		t.Errorf("baseline = %v (%s), want 500 (window)", b, mode)
	}

	b, mode, err = resolveBaseline(ys, &Config{Baseline: 510, BaselineFrames: 4})
	if err != nil {
		t.Fatal(err)
	}
	if b != 510 || mode != manualBaseline {
		t.Errorf("baseline = %v (%s), want 510 (manual)", b, mode)
	}

	if _, _, err := resolveBaseline(ys[:2], &Config{Baseline: math.NaN(), BaselineFrames: 4}); err == nil {
		t.Error("expected error with too few samples")
	}
}

func TestRun_WritesOutputs(t *testing.T) {
	input := writeCSV(t, testutil.CountermovementJump(10))
	out := t.TempDir()
	resultsDir := filepath.Join(out, "results")
	parquetPath := filepath.Join(out, "curves.parquet")
	pngPath := filepath.Join(out, "plot.png")

	var stdout bytes.Buffer
	err := run(context.Background(), []string{
		"-no-color",
		"-baseline-frames", "10",
		"-json", resultsDir,
		"-parquet", parquetPath,
		"-png", pngPath,
		input,
	}, nil, &stdout)
	if err != nil {
		t.Fatalf("run failed: %v\n%s", err, stdout.String())
	}

	text := stdout.String()
	for _, want := range []string{"MAX HEIGHT", "FLIGHT TIME", "0.167", "36 frames at 30 fps", "results.json"} {
		if !strings.Contains(strings.ToUpper(text), strings.ToUpper(want)) {
			t.Errorf("output missing %q:\n%s", want, text)
		}
	}

	archive, err := export.ReadResultsArchive(fsutil.OSFileSystem{}, filepath.Join(resultsDir, "cmj", export.ArchiveFileName))
	if err != nil {
		t.Fatalf("ReadResultsArchive failed: %v", err)
	}
	if archive.TestID != "cmj" || !archive.Results.JumpDetected {
		t.Errorf("unexpected archive: test id %q, detected %t", archive.TestID, archive.Results.JumpDetected)
	}
	if diff := cmp.Diff(map[string]interface{}{"mass": 75.0, "fps": 30.0}, archive.Settings); diff != "" {
		t.Errorf("settings mismatch (-want +got):\n%s", diff)
	}

	data, err := os.ReadFile(parquetPath)
	if err != nil {
		t.Fatal(err)
	}
	if string(data[:4]) != "PAR1" {
		t.Errorf("parquet magic = %q", data[:4])
	}
	data, err = os.ReadFile(pngPath)
	if err != nil {
		t.Fatal(err)
	}
	if string(data[:4]) != "\x89PNG" {
		t.Errorf("png magic = %q", data[:4])
	}
}

func TestRun_Stdin(t *testing.T) {
	var in strings.Builder
	for _, y := range testutil.CountermovementJump(10) {
		fmt.Fprintf(&in, "%g\n", y)
	}
	summary := func(unit string) string {
		var stdout bytes.Buffer
		args := []string{"-no-color", "-baseline-frames", "10", "-units", unit, "-"}
		if err := run(context.Background(), args, strings.NewReader(in.String()), &stdout); err != nil {
			t.Fatalf("run -units %s failed: %v", unit, err)
		}
		return stdout.String()
	}

	cm, inches := summary("cm"), summary("in")
	if !strings.Contains(cm, " cm ") || strings.Contains(inches, " cm ") {
		t.Errorf("height unit column not converted:\n%s\n%s", cm, inches)
	}
	if !strings.Contains(inches, " in ") {
		t.Errorf("expected inches in the summary:\n%s", inches)
	}
}

func TestRun_Insufficient(t *testing.T) {
	input := writeCSV(t, testutil.Flat(40, 500))
	err := run(context.Background(), []string{"-no-color", input}, nil, io.Discard)
	if !errors.Is(err, kinematics.ErrInsufficientData) {
		t.Fatalf("expected ErrInsufficientData, got %v", err)
	}
	if !strings.Contains(err.Error(), string(kinematics.ReasonNoExcursion)) {
		t.Errorf("error %q does not name the reason", err)
	}
}

func TestRun_MissingInput(t *testing.T) {
	if err := run(context.Background(), []string{filepath.Join(t.TempDir(), "none.csv")}, nil, io.Discard); err == nil {
		t.Error("expected error for a missing input file")
	}
}

func TestRun_PlayerBodyMass(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/auth/login":
			http.SetCookie(w, &http.Cookie{Name: "session", Value: "s1"})
			_, _ = io.WriteString(w, `{"success":true,"user":{"id":1,"email":"coach@example.com"}}`)
		case "/api/auth/logout":
			_, _ = io.WriteString(w, `{"success":true}`)
		case "/api/players/7":
			w.Header().Set("Content-Type", "application/json")
			_, _ = io.WriteString(w, `{"data":{"id":7,"info":{"weight":"82.5"}}}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	t.Setenv(passwordEnv, "secret")
	input := writeCSV(t, testutil.CountermovementJump(10))
	resultsDir := t.TempDir()
	var stdout bytes.Buffer
	err := run(context.Background(), []string{
		"-no-color", "-baseline-frames", "10", "-player", "7", "-directory", srv.URL, "-email", "coach@example.com", "-json", resultsDir, input,
	}, nil, &stdout)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	archive, err := export.ReadResultsArchive(fsutil.OSFileSystem{}, filepath.Join(resultsDir, "cmj", export.ArchiveFileName))
	if err != nil {
		t.Fatal(err)
	}
	if archive.Results.BodyMassKg != 82.5 {
		t.Errorf("body mass = %v, want 82.5 from the directory", archive.Results.BodyMassKg)
	}

	// an explicit -mass wins over the directory
	stdout.Reset()
	err = run(context.Background(), []string{
		"-no-color", "-baseline-frames", "10", "-player", "7", "-directory", srv.URL, "-email", "coach@example.com", "-mass", "70", input,
	}, nil, &stdout)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if !strings.Contains(stdout.String(), "takes precedence") {
		t.Errorf("expected precedence note:\n%s", stdout.String())
	}

	if err := run(context.Background(), []string{"-player", "9", "-directory", srv.URL, "-email", "coach@example.com", input}, nil, io.Discard); err == nil {
		t.Error("expected error for an unknown player")
	}
	if err := run(context.Background(), []string{"-player", "7", "-directory", srv.URL, input}, nil, io.Discard); err == nil {
		t.Error("expected error looking up a player without logging in")
	}
}
