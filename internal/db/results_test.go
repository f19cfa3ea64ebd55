package db

import (
	"bytes"
	"compress/gzip"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/jump.report/internal/kinematics"
	"github.com/banshee-data/jump.report/internal/testutil"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := NewDB(filepath.Join(t.TempDir(), "jump.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func testRecord(t *testing.T, testID string, at time.Time) JumpRecord {
	t.Helper()
	res, err := kinematics.ResolvePositions(testutil.CountermovementJump(10), 500, 30, 70)
	require.NoError(t, err)
	rec := NewJumpRecord(testID, res, kinematics.BaselineEMA, at)
	rec.SessionID = "sess-1"
	rec.Settings = map[string]interface{}{"fps": 30.0, "note": "warm-up"}
	return rec
}

func TestPragmasApplied(t *testing.T) {
	db := newTestDB(t)

	var journalMode string
	require.NoError(t, db.QueryRow("PRAGMA journal_mode").Scan(&journalMode))
	assert.Equal(t, "wal", journalMode)

	var busyTimeout, foreignKeys int
	require.NoError(t, db.QueryRow("PRAGMA busy_timeout").Scan(&busyTimeout))
	assert.Equal(t, 5000, busyTimeout)
	require.NoError(t, db.QueryRow("PRAGMA foreign_keys").Scan(&foreignKeys))
	assert.Equal(t, 1, foreignKeys)
}

func TestSaveAndGetResult(t *testing.T) {
	db := newTestDB(t)
	at := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	rec := testRecord(t, "cmj-001", at)
	require.NoError(t, db.SaveResult(rec))

	got, err := db.GetResult("cmj-001")
	require.NoError(t, err)
	assert.Equal(t, rec.Summary, got.Summary)
	assert.Equal(t, rec.Trajectory, got.Trajectory)
	assert.Equal(t, rec.Velocity, got.Velocity)
	assert.Equal(t, at, got.RecordedAt)
	assert.Equal(t, "sess-1", got.SessionID)
	assert.Equal(t, "warm-up", got.Settings["note"])
	assert.Equal(t, 36, got.Frames)

	_, err = db.GetResult("missing")
	assert.ErrorIs(t, err, ErrResultNotFound)
}

func TestSaveResult_Replaces(t *testing.T) {
	db := newTestDB(t)
	rec := testRecord(t, "cmj-001", time.Unix(100, 0))
	require.NoError(t, db.SaveResult(rec))

	rec.Trajectory = rec.Trajectory[:3]
	rec.Velocity = rec.Velocity[:3]
	rec.Summary.MaxHeightCm = 99
	require.NoError(t, db.SaveResult(rec))

	got, err := db.GetResult("cmj-001")
	require.NoError(t, err)
	assert.Len(t, got.Trajectory, 3)
	assert.Equal(t, 99.0, got.Summary.MaxHeightCm)
}

func TestSaveResult_Invalid(t *testing.T) {
	db := newTestDB(t)
	rec := testRecord(t, "", time.Now())
	assert.Error(t, db.SaveResult(rec))

	rec = testRecord(t, "x", time.Now())
	rec.Velocity = rec.Velocity[:1]
	assert.Error(t, db.SaveResult(rec))
}

func TestListAndDeleteResults(t *testing.T) {
	db := newTestDB(t)
	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, db.SaveResult(testRecord(t, id, time.Unix(int64(1000+i), 0))))
	}

	list, err := db.ListResults(2)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "c", list[0].TestID)
	assert.Equal(t, "b", list[1].TestID)
	assert.Empty(t, list[0].Trajectory)

	require.NoError(t, db.DeleteResult("c"))
	assert.ErrorIs(t, db.DeleteResult("c"), ErrResultNotFound)

	var points int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM jump_curve_points WHERE test_id = 'c'`).Scan(&points))
	assert.Equal(t, 0, points)

	list, err = db.ListResults(0)
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestMigrations(t *testing.T) {
	path := filepath.Join(t.TempDir(), "m.db")
	db, err := OpenDB(path)
	require.NoError(t, err)
	defer db.Close()

	v, dirty, err := db.MigrateVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(0), v)
	assert.False(t, dirty)

	latest, err := LatestMigrationVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(2), latest)

	require.NoError(t, db.MigrateUp())
	v, _, err = db.MigrateVersion()
	require.NoError(t, err)
	assert.Equal(t, latest, v)

	require.NoError(t, db.MigrateDown())
	v, _, err = db.MigrateVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(1), v)

	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE name = 'jump_curve_points'`).Scan(&n))
	assert.Equal(t, 0, n)

	require.NoError(t, db.MigrateTo(2))
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE name = 'jump_curve_points'`).Scan(&n))
	assert.Equal(t, 1, n)
}

func TestRunMigrateCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cli.db")

	var out bytes.Buffer
	require.NoError(t, RunMigrateCommand([]string{"status"}, path, &out))
	assert.Contains(t, out.String(), "Current version: 0")
	assert.Contains(t, out.String(), "2 migration(s) pending")

	out.Reset()
	require.NoError(t, RunMigrateCommand([]string{"up"}, path, &out))
	assert.Contains(t, out.String(), "Current version: 2")

	out.Reset()
	require.NoError(t, RunMigrateCommand([]string{"to", "1"}, path, &out))
	assert.Contains(t, out.String(), "Current version: 1")

	assert.Error(t, RunMigrateCommand([]string{"to"}, path, &out))
	assert.Error(t, RunMigrateCommand([]string{"force", "x"}, path, &out))
	assert.Error(t, RunMigrateCommand([]string{"sideways"}, path, &out))
	assert.Error(t, RunMigrateCommand(nil, path, &out))

	out.Reset()
	require.NoError(t, RunMigrateCommand([]string{"help"}, path, &out))
	assert.True(t, strings.HasPrefix(out.String(), "Database Migration Commands"))
}

func TestAttachAdminRoutes(t *testing.T) {
	db := newTestDB(t)
	mux := http.NewServeMux()
	require.NoError(t, db.AttachAdminRoutes(mux))

	// Routes may answer 403 outside loopback/tailnet, but must be registered.
	for _, endpoint := range []string{"/debug/backup", "/debug/tailsql/"} {
		req := httptest.NewRequest(http.MethodGet, endpoint, nil)
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, req)
		assert.NotEqual(t, http.StatusNotFound, w.Code, endpoint)
	}
}

func TestHandleBackup(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.SaveResult(testRecord(t, "backup-me", time.Unix(1, 0))))

	rec := httptest.NewRecorder()
	db.handleBackup(rec, httptest.NewRequest(http.MethodGet, "/debug/backup", nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "application/gzip", rec.Header().Get("Content-Type"))

	zr, err := gzip.NewReader(rec.Body)
	require.NoError(t, err)
	data, err := io.ReadAll(zr)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("SQLite format 3")))
}
