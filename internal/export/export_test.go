package export

import (
	"bytes"
	"encoding/json"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/jump.report/internal/db"
	"github.com/banshee-data/jump.report/internal/fsutil"
	"github.com/banshee-data/jump.report/internal/kinematics"
	"github.com/banshee-data/jump.report/internal/testutil"
)

func resolvedJump(t *testing.T) *kinematics.Result {
	t.Helper()
	res, err := kinematics.ResolvePositions(testutil.CountermovementJump(10), 500, 30, 75)
	require.NoError(t, err)
	return res
}

func TestWriteResultsArchive(t *testing.T) {
	fsys := fsutil.NewMemoryFileSystem()
	res := resolvedJump(t)
	at := time.Date(2026, 3, 1, 10, 30, 0, 0, time.UTC)
	rec := db.NewJumpRecord("cmj-001", res, kinematics.BaselineEMA, at)

	dir, err := WriteResultsArchive(fsys, "results", rec)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("results", "cmj-001"), dir)

	a, err := ReadResultsArchive(fsys, filepath.Join(dir, ArchiveFileName))
	require.NoError(t, err)
	assert.Equal(t, "cmj-001", a.TestID)
	assert.Equal(t, "2026-03-01T10:30:00Z", a.Timestamp)
	assert.Equal(t, res.Summary, a.Results)
	assert.Len(t, a.Trajectory, len(res.Trajectory))
	assert.Len(t, a.Velocity, len(res.Velocity))
	assert.Equal(t, 75.0, a.Settings["mass"])
	assert.Equal(t, 30.0, a.Settings["fps"])
}

func TestWriteResultsArchive_Layout(t *testing.T) {
	fsys := fsutil.NewMemoryFileSystem()
	rec := db.NewJumpRecord("t1", resolvedJump(t), kinematics.BaselineEMA, time.Now())
	rec.Settings = map[string]interface{}{"camera": "left"}

	dir, err := WriteResultsArchive(fsys, "out", rec)
	require.NoError(t, err)

	data, err := fsys.ReadFile(filepath.Join(dir, ArchiveFileName))
	require.NoError(t, err)
	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &raw))
	for _, key := range []string{"timestamp", "testId", "results", "trajectory", "velocity", "settings"} {
		assert.Contains(t, raw, key)
	}
	assert.JSONEq(t, `{"camera":"left"}`, string(raw["settings"]))
}

func TestWriteResultsArchive_SanitisesTestID(t *testing.T) {
	fsys := fsutil.NewMemoryFileSystem()
	rec := db.NewJumpRecord("../../etc/passwd", resolvedJump(t), kinematics.BaselineEMA, time.Now())

	dir, err := WriteResultsArchive(fsys, "results", rec)
	require.NoError(t, err)
	assert.Equal(t, "results", filepath.Dir(dir))
	assert.True(t, fsys.Exists(filepath.Join(dir, ArchiveFileName)))
}

func TestWriteResultsArchive_MissingTestID(t *testing.T) {
	_, err := WriteResultsArchive(fsutil.NewMemoryFileSystem(), "results", db.JumpRecord{})
	assert.Error(t, err)
}

func TestCurveRows(t *testing.T) {
	res := resolvedJump(t)
	rows := CurveRows(res)
	require.Len(t, rows, len(res.Trajectory))

	assert.Equal(t, "standing", rows[0].Phase)
	assert.Equal(t, "flight", rows[res.Phases.Peak].Phase)
	assert.Equal(t, "landed", rows[len(rows)-1].Phase)
	for i, row := range rows {
		assert.Equal(t, int32(i), row.Frame)
		assert.Equal(t, res.Velocity[i].VelocityCmS, row.VelocityCmS)
		assert.Equal(t, res.ForceN[i], row.ForceN)
	}
}

func TestWriteCurves_RoundTrip(t *testing.T) {
	res := resolvedJump(t)
	var buf bytes.Buffer
	require.NoError(t, WriteCurves(&buf, res))
	assert.Greater(t, buf.Len(), 0)

	reader := parquet.NewGenericReader[CurveRow](bytes.NewReader(buf.Bytes()))
	defer reader.Close()

	got := make([]CurveRow, reader.NumRows())
	n, err := reader.Read(got)
	if err != nil && err != io.EOF {
		require.NoError(t, err)
	}
	assert.Equal(t, len(res.Trajectory), n)
	assert.Equal(t, CurveRows(res), got)
}

func TestWriteCurvesParquet(t *testing.T) {
	fsys := fsutil.NewMemoryFileSystem()
	require.NoError(t, fsys.MkdirAll("exports", 0o755))
	require.NoError(t, WriteCurvesParquet(fsys, "exports/curves.parquet", resolvedJump(t)))

	data, err := fsys.ReadFile("exports/curves.parquet")
	require.NoError(t, err)
	assert.Equal(t, "PAR1", string(data[:4]))
}

func TestWriteCurvesParquet_MissingDirectory(t *testing.T) {
	fsys := fsutil.NewMemoryFileSystem()
	assert.Error(t, WriteCurvesParquet(fsys, "nope/curves.parquet", resolvedJump(t)))
}
