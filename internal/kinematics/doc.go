// Package kinematics owns the jump kinematics engine.
//
// Responsibilities: standing-baseline calibration, online jump phase
// detection, the append-only trajectory buffer, and the offline resolver
// that turns a pixel trajectory into calibrated height, velocity,
// acceleration, force and power curves plus a JumpSummary.
// Key types: Session, Trajectory, Result, JumpSummary.
//
// Positions are in image pixels where larger values are lower on screen,
// so a positive excursion (baseline - y) means the subject has risen.
//
// The engine performs no I/O and never blocks. No SQL/HTTP code is
// allowed in this package.
package kinematics
