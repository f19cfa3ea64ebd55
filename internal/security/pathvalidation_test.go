package security

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestValidatePathWithinDirectory(t *testing.T) {
	tmpDir := t.TempDir()
	safeDir := filepath.Join(tmpDir, "results")
	outside := filepath.Join(tmpDir, "outside")
	for _, d := range []string{safeDir, outside} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.Symlink(outside, filepath.Join(safeDir, "link")); err != nil {
		t.Fatalf("Failed to create symlink: %v", err)
	}

	tests := []struct {
		name      string
		filePath  string
		safeDir   string
		wantError bool
	}{
		{"file in dir", filepath.Join(safeDir, "t1", "results.json"), safeDir, false},
		{"dir itself", safeDir, safeDir, false},
		{"dot dot escape", filepath.Join(safeDir, "..", "outside", "x"), safeDir, true},
		{"relative escape", "../../../etc/passwd", safeDir, true},
		{"symlink escape", filepath.Join(safeDir, "link", "results.json"), safeDir, true},
		{"missing dir lexical ok", "nowhere/t1/results.json", "nowhere", false},
		{"missing dir lexical escape", "nowhere/../t1", "nowhere", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePathWithinDirectory(tt.filePath, tt.safeDir)
			if (err != nil) != tt.wantError {
				t.Errorf("ValidatePathWithinDirectory(%q, %q) error = %v, wantError %v", tt.filePath, tt.safeDir, err, tt.wantError)
			}
		})
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"cmj-2025-03-01", "cmj-2025-03-01"},
		{"../../etc/passwd", "etc_passwd"},
		{"player 42 / trial #3", "player_42_trial_3"},
		{"", "unknown"},
		{"...", "unknown"},
		{"ünïcode", "n_code"},
	}
	for _, tt := range tests {
		if got := SanitizeFilename(tt.in); got != tt.want {
			t.Errorf("SanitizeFilename(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}

	long := SanitizeFilename(strings.Repeat("a", 500))
	if len(long) != maxNameLen {
		t.Errorf("len = %d, want %d", len(long), maxNameLen)
	}
}
