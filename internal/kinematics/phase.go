package kinematics

import (
	"fmt"
	"math"
)

// Phase is the online jump state.
type Phase string

const (
	PhaseIdle     Phase = "idle"     // standing, no jump yet
	PhaseRising   Phase = "rising"   // excursion crossed the start threshold and is still growing
	PhaseAirborne Phase = "airborne" // past the running peak, descending
	PhaseLanded   Phase = "landed"   // back near the baseline after the minimum frame guard
)

// Label is the per-frame feedback shown to the operator.
type Label string

const (
	LabelAwaitingCalibration Label = "awaiting_calibration"
	LabelReady               Label = "ready"
	LabelAnalyzing           Label = "analyzing"
)

// ThresholdMode selects between absolute pixel thresholds and thresholds
// relative to the baseline magnitude (for normalised coordinates).
type ThresholdMode string

const (
	ThresholdPixels   ThresholdMode = "pixels"
	ThresholdRelative ThresholdMode = "relative"
)

// Thresholds configures the phase detector.
type Thresholds struct {
	Mode             ThresholdMode
	StartPx          float64 // excursion that starts a jump (pixels mode)
	EndPx            float64 // distance from baseline that ends a jump (pixels mode)
	StartRel         float64 // start threshold as a fraction of |baseline|
	EndRel           float64 // end threshold as a fraction of |baseline|
	MinLandingFrames int     // frames after the start before landing may be detected
}

// DefaultThresholds returns the empirical detector constants.
func DefaultThresholds() Thresholds {
	return Thresholds{
		Mode:             ThresholdPixels,
		StartPx:          50,
		EndPx:            30,
		StartRel:         0.05,
		EndRel:           0.03,
		MinLandingFrames: 5,
	}
}

// Validate checks the thresholds for the selected mode.
func (th Thresholds) Validate() error {
	switch th.Mode {
	case ThresholdPixels:
		if th.StartPx <= 0 || th.EndPx <= 0 {
			return invalid("thresholds", "pixel thresholds must be positive, got start=%v end=%v", th.StartPx, th.EndPx)
		}
	case ThresholdRelative:
		if th.StartRel <= 0 || th.EndRel <= 0 {
			return invalid("thresholds", "relative thresholds must be positive, got start=%v end=%v", th.StartRel, th.EndRel)
		}
	default:
		return invalid("threshold_mode", "unknown mode %q", th.Mode)
	}
	if th.MinLandingFrames < 0 {
		return invalid("min_landing_frames", "must be non-negative, got %d", th.MinLandingFrames)
	}
	return nil
}

// StartThreshold returns the start threshold in pixels for baseline.
func (th Thresholds) StartThreshold(baseline float64) float64 {
	if th.Mode == ThresholdRelative {
		return th.StartRel * math.Abs(baseline)
	}
	return th.StartPx
}

// EndThreshold returns the landing threshold in pixels for baseline.
func (th Thresholds) EndThreshold(baseline float64) float64 {
	if th.Mode == ThresholdRelative {
		return th.EndRel * math.Abs(baseline)
	}
	return th.EndPx
}

// StandingBandFraction sizes the band around the baseline, as a fraction of
// the end threshold, inside which an idle frame still counts as standing.
// A countermovement crouch sits outside it.
const StandingBandFraction = 1.0 / 3

// StandingBand returns the half-width in pixels of the band of frames that
// may refine the baseline.
func (th Thresholds) StandingBand(baseline float64) float64 {
	return th.EndThreshold(baseline) * StandingBandFraction
}

// PhaseDetector classifies each frame against the baseline. It drives live
// feedback and auto-stop only; the offline resolver recomputes takeoff and
// landing from the full trajectory and is authoritative.
type PhaseDetector struct {
	th           Thresholds
	phase        Phase
	takeoffFrame int
	peakFrame    int
	landingFrame int
	peakPx       float64
}

// NewPhaseDetector returns an idle detector.
func NewPhaseDetector(th Thresholds) *PhaseDetector {
	d := &PhaseDetector{th: th}
	d.Reset()
	return d
}

// Observe advances the state machine with frame's position and returns the
// resulting phase.
func (d *PhaseDetector) Observe(frame int, y, baseline float64) Phase {
	excursion := baseline - y

	switch d.phase {
	case PhaseIdle:
		if excursion > d.th.StartThreshold(baseline) {
			d.phase = PhaseRising
			d.takeoffFrame = frame
			d.peakFrame = frame
			d.peakPx = excursion
		}
	case PhaseRising, PhaseAirborne:
		if excursion > d.peakPx {
			d.peakPx = excursion
			d.peakFrame = frame
		} else if d.phase == PhaseRising && excursion < d.peakPx {
			d.phase = PhaseAirborne
		}
		if math.Abs(y-baseline) < d.th.EndThreshold(baseline) && frame-d.takeoffFrame >= d.th.MinLandingFrames {
			d.phase = PhaseLanded
			d.landingFrame = frame
		}
	case PhaseLanded:
	}
	return d.phase
}

// Phase returns the current state.
func (d *PhaseDetector) Phase() Phase { return d.phase }

// Started reports whether a jump start has been seen.
func (d *PhaseDetector) Started() bool { return d.phase != PhaseIdle }

// Ended reports whether the landing has been seen.
func (d *PhaseDetector) Ended() bool { return d.phase == PhaseLanded }

// TakeoffFrame returns the frame of the start transition.
func (d *PhaseDetector) TakeoffFrame() (int, bool) { return d.takeoffFrame, d.takeoffFrame >= 0 }

// PeakFrame returns the frame of the largest excursion since the start.
func (d *PhaseDetector) PeakFrame() (int, bool) { return d.peakFrame, d.peakFrame >= 0 }

// LandingFrame returns the frame of the landing transition.
func (d *PhaseDetector) LandingFrame() (int, bool) { return d.landingFrame, d.landingFrame >= 0 }

// Reset returns the detector to idle.
func (d *PhaseDetector) Reset() {
	d.phase = PhaseIdle
	d.takeoffFrame = -1
	d.peakFrame = -1
	d.landingFrame = -1
	d.peakPx = 0
}

func (d *PhaseDetector) String() string {
	return fmt.Sprintf("phase=%s takeoff=%d peak=%d landing=%d", d.phase, d.takeoffFrame, d.peakFrame, d.landingFrame)
}
