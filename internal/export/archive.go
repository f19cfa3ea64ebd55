// Package export writes saved jump results to disk: the JSON archive read
// back by the front end and a columnar Parquet file of the curves.
package export

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/banshee-data/jump.report/internal/db"
	"github.com/banshee-data/jump.report/internal/fsutil"
	"github.com/banshee-data/jump.report/internal/kinematics"
	"github.com/banshee-data/jump.report/internal/security"
)

// ArchiveFileName is the name of the JSON file written for each test.
const ArchiveFileName = "results.json"

// Archive is the on-disk layout of results.json.
type Archive struct {
	Timestamp  string                     `json:"timestamp"`
	TestID     string                     `json:"testId"`
	Results    kinematics.JumpSummary     `json:"results"`
	Trajectory []kinematics.CurvePoint    `json:"trajectory"`
	Velocity   []kinematics.VelocityPoint `json:"velocity"`
	Settings   map[string]interface{}     `json:"settings"`
}

// NewArchive builds the archive for rec. When rec carries no settings the
// acquisition mass and frame rate are recorded instead.
func NewArchive(rec db.JumpRecord) Archive {
	settings := rec.Settings
	if settings == nil {
		settings = map[string]interface{}{"mass": rec.BodyMassKg, "fps": rec.FPS}
	}
	trajectory := rec.Trajectory
	if trajectory == nil {
		trajectory = []kinematics.CurvePoint{}
	}
	velocity := rec.Velocity
	if velocity == nil {
		velocity = []kinematics.VelocityPoint{}
	}
	return Archive{
		Timestamp:  rec.RecordedAt.Format(time.RFC3339Nano),
		TestID:     rec.TestID,
		Results:    rec.Summary,
		Trajectory: trajectory,
		Velocity:   velocity,
		Settings:   settings,
	}
}

// WriteResultsArchive writes rec to <dir>/<testId>/results.json and returns
// the directory it was written to. The test id is sanitised before use.
func WriteResultsArchive(fsys fsutil.FileSystem, dir string, rec db.JumpRecord) (string, error) {
	if rec.TestID == "" {
		return "", fmt.Errorf("test id is required")
	}
	saveDir := filepath.Join(dir, security.SanitizeFilename(rec.TestID))
	if err := security.ValidatePathWithinDirectory(saveDir, dir); err != nil {
		return "", err
	}
	if err := fsys.MkdirAll(saveDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create results directory: %w", err)
	}

	data, err := json.MarshalIndent(NewArchive(rec), "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode results: %w", err)
	}
	if err := fsys.WriteFile(filepath.Join(saveDir, ArchiveFileName), data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write results: %w", err)
	}
	return saveDir, nil
}

// ReadResultsArchive loads a results.json previously written by
// WriteResultsArchive.
func ReadResultsArchive(fsys fsutil.FileSystem, path string) (Archive, error) {
	var a Archive
	data, err := fsys.ReadFile(path)
	if err != nil {
		return a, err
	}
	if err := json.Unmarshal(data, &a); err != nil {
		return a, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return a, nil
}
