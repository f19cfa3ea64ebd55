package db

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/banshee-data/jump.report/internal/kinematics"
)

// ErrResultNotFound is returned when no result has the requested test id.
var ErrResultNotFound = errors.New("result not found")

// JumpRecord is one saved test: the resolved summary, the curves and the
// acquisition settings it was computed with.
type JumpRecord struct {
	TestID       string                     `json:"testId"`
	SessionID    string                     `json:"sessionId,omitempty"`
	PlayerID     string                     `json:"playerId,omitempty"`
	RecordedAt   time.Time                  `json:"timestamp"`
	FPS          float64                    `json:"fps"`
	BodyMassKg   float64                    `json:"body_mass_kg"`
	Baseline     float64                    `json:"baseline"`
	BaselineMode string                     `json:"baseline_mode"`
	ScaleCmPerPx float64                    `json:"scale_cm_per_px"`
	Frames       int                        `json:"frames"`
	Summary      kinematics.JumpSummary     `json:"results"`
	Trajectory   []kinematics.CurvePoint    `json:"trajectory,omitempty"`
	Velocity     []kinematics.VelocityPoint `json:"velocity,omitempty"`
	Settings     map[string]interface{}     `json:"settings,omitempty"`
}

// NewJumpRecord builds a record from a resolved result.
func NewJumpRecord(testID string, res *kinematics.Result, mode kinematics.BaselineMode, at time.Time) JumpRecord {
	return JumpRecord{
		TestID:       testID,
		RecordedAt:   at.UTC(),
		FPS:          res.FPS,
		BodyMassKg:   res.Summary.BodyMassKg,
		Baseline:     res.Baseline,
		BaselineMode: string(mode),
		ScaleCmPerPx: res.ScaleCmPerPx,
		Frames:       len(res.Trajectory),
		Summary:      res.Summary,
		Trajectory:   res.Trajectory,
		Velocity:     res.Velocity,
	}
}

// SaveResult stores rec together with its curve points, replacing any
// earlier result with the same test id.
func (db *DB) SaveResult(rec JumpRecord) error {
	if rec.TestID == "" {
		return fmt.Errorf("test id is required")
	}
	if len(rec.Trajectory) != len(rec.Velocity) {
		return fmt.Errorf("trajectory has %d points but velocity has %d", len(rec.Trajectory), len(rec.Velocity))
	}
	settings := []byte("{}")
	if rec.Settings != nil {
		var err error
		if settings, err = json.Marshal(rec.Settings); err != nil {
			return fmt.Errorf("failed to encode settings: %w", err)
		}
	}

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM jump_curve_points WHERE test_id = ?`, rec.TestID); err != nil {
		return fmt.Errorf("failed to clear curve points: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM jump_results WHERE test_id = ?`, rec.TestID); err != nil {
		return fmt.Errorf("failed to clear result: %w", err)
	}

	s := rec.Summary
	_, err = tx.Exec(`INSERT INTO jump_results (
			test_id, session_id, player_id, recorded_unix, fps, body_mass_kg,
			baseline, baseline_mode, scale_cm_per_px, frames,
			max_height_cm, flight_time_s, fall_time_s, takeoff_velocity_ms,
			average_force_n, estimated_power_w, eccentric_time_s,
			concentric_time_s, contact_time_s, jump_detected, settings_json
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.TestID, rec.SessionID, rec.PlayerID, rec.RecordedAt.Unix(), rec.FPS, rec.BodyMassKg,
		rec.Baseline, rec.BaselineMode, rec.ScaleCmPerPx, rec.Frames,
		s.MaxHeightCm, s.FlightTimeS, s.FallTimeS, s.TakeoffVelocityMS,
		s.AverageForceN, s.EstimatedPowerW, s.EccentricTimeS,
		s.ConcentricTimeS, s.ContactTimeS, s.JumpDetected, string(settings),
	)
	if err != nil {
		return fmt.Errorf("failed to insert result: %w", err)
	}

	stmt, err := tx.Prepare(`INSERT INTO jump_curve_points (test_id, idx, t, height_cm, velocity_cm_s) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for i, p := range rec.Trajectory {
		if _, err := stmt.Exec(rec.TestID, i, p.T, p.HeightCm, rec.Velocity[i].VelocityCmS); err != nil {
			return fmt.Errorf("failed to insert curve point %d: %w", i, err)
		}
	}
	return tx.Commit()
}

const resultColumns = `test_id, session_id, player_id, recorded_unix, fps, body_mass_kg,
	baseline, baseline_mode, scale_cm_per_px, frames,
	max_height_cm, flight_time_s, fall_time_s, takeoff_velocity_ms,
	average_force_n, estimated_power_w, eccentric_time_s,
	concentric_time_s, contact_time_s, jump_detected, settings_json`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row rowScanner) (JumpRecord, error) {
	var (
		rec      JumpRecord
		unix     int64
		settings string
	)
	s := &rec.Summary
	err := row.Scan(
		&rec.TestID, &rec.SessionID, &rec.PlayerID, &unix, &rec.FPS, &rec.BodyMassKg,
		&rec.Baseline, &rec.BaselineMode, &rec.ScaleCmPerPx, &rec.Frames,
		&s.MaxHeightCm, &s.FlightTimeS, &s.FallTimeS, &s.TakeoffVelocityMS,
		&s.AverageForceN, &s.EstimatedPowerW, &s.EccentricTimeS,
		&s.ConcentricTimeS, &s.ContactTimeS, &s.JumpDetected, &settings,
	)
	if err != nil {
		return JumpRecord{}, err
	}
	rec.RecordedAt = time.Unix(unix, 0).UTC()
	s.BodyMassKg = rec.BodyMassKg
	if settings != "" && settings != "{}" {
		if err := json.Unmarshal([]byte(settings), &rec.Settings); err != nil {
			return JumpRecord{}, fmt.Errorf("failed to decode settings for %s: %w", rec.TestID, err)
		}
	}
	return rec, nil
}

// GetResult loads one record with its curves.
func (db *DB) GetResult(testID string) (*JumpRecord, error) {
	rec, err := scanRecord(db.QueryRow(`SELECT `+resultColumns+` FROM jump_results WHERE test_id = ?`, testID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrResultNotFound
	}
	if err != nil {
		return nil, err
	}

	rows, err := db.Query(`SELECT t, height_cm, velocity_cm_s FROM jump_curve_points WHERE test_id = ? ORDER BY idx`, testID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var t, h, v float64
		if err := rows.Scan(&t, &h, &v); err != nil {
			return nil, err
		}
		rec.Trajectory = append(rec.Trajectory, kinematics.CurvePoint{T: t, HeightCm: h})
		rec.Velocity = append(rec.Velocity, kinematics.VelocityPoint{T: t, VelocityCmS: v})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &rec, nil
}

// ListResults returns the newest records first, without curves. A limit
// of zero or less returns 100.
func (db *DB) ListResults(limit int) ([]JumpRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.Query(`SELECT `+resultColumns+` FROM jump_results ORDER BY recorded_unix DESC, test_id LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []JumpRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteResult removes a record and its curve points.
func (db *DB) DeleteResult(testID string) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM jump_curve_points WHERE test_id = ?`, testID); err != nil {
		return err
	}
	res, err := tx.Exec(`DELETE FROM jump_results WHERE test_id = ?`, testID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		return ErrResultNotFound
	}
	return tx.Commit()
}
