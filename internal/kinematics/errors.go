package kinematics

import (
	"errors"
	"fmt"
)

var (
	// ErrInsufficientData matches every *InsufficientDataError. It is a normal
	// outcome: the captured signal does not contain a resolvable jump.
	ErrInsufficientData = errors.New("insufficient data")
	// ErrInvalidInput matches every *InvalidInputError.
	ErrInvalidInput = errors.New("invalid input")
	// ErrSessionPaused is returned by Session.Update while the session is paused.
	ErrSessionPaused = errors.New("session paused")
)

// InsufficientReason identifies which floor check rejected a trajectory.
type InsufficientReason string

const (
	ReasonNoExcursion    InsufficientReason = "no_excursion"     // max excursion below MinExcursionPx
	ReasonShortFlight    InsufficientReason = "short_flight"     // fewer than MinFlightSamples in flight
	ReasonZeroFlightTime InsufficientReason = "zero_flight_time" // takeoff and landing coincide
	ReasonZeroPeak       InsufficientReason = "zero_peak"        // no positive peak inside the flight window
)

// InsufficientDataError reports that a trajectory holds no resolvable jump.
type InsufficientDataError struct {
	Reason InsufficientReason
	Detail string
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient data (%s): %s", e.Reason, e.Detail)
}

// Is lets errors.Is(err, ErrInsufficientData) match.
func (e *InsufficientDataError) Is(target error) bool {
	return target == ErrInsufficientData
}

func insufficient(reason InsufficientReason, format string, v ...interface{}) error {
	return &InsufficientDataError{Reason: reason, Detail: fmt.Sprintf(format, v...)}
}

// InvalidInputError reports an argument the engine refuses to compute with.
type InvalidInputError struct {
	Field  string
	Detail string
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Detail)
}

// Is lets errors.Is(err, ErrInvalidInput) match.
func (e *InvalidInputError) Is(target error) bool {
	return target == ErrInvalidInput
}

func invalid(field, format string, v ...interface{}) error {
	return &InvalidInputError{Field: field, Detail: fmt.Sprintf(format, v...)}
}

// InsufficientReasonOf returns the reason carried by err, or "" when err is
// not an insufficient-data error.
func InsufficientReasonOf(err error) InsufficientReason {
	var ie *InsufficientDataError
	if errors.As(err, &ie) {
		return ie.Reason
	}
	return ""
}
