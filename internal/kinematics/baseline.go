package kinematics

import (
	"fmt"

	"gonum.org/v1/gonum/stat"
)

// BaselineMode selects the calibration strategy for a session. A session
// uses exactly one mode for its whole lifetime.
type BaselineMode string

const (
	// BaselineEMA adapts continuously: the first sample seeds the baseline and
	// later standing samples correct slow drift.
	BaselineEMA BaselineMode = "ema"
	// BaselineWindow averages a fixed calibration window, then freezes.
	BaselineWindow BaselineMode = "window"
)

const (
	DefaultBaselineAlpha  = 0.1 // EMA smoothing factor
	DefaultBaselineWindow = 30  // samples averaged by WindowBaseline
)

// BaselineEstimator maintains the resting vertical position.
type BaselineEstimator interface {
	// Update absorbs one standing sample and returns the current baseline
	// and whether it is available.
	Update(y float64) (float64, bool)
	// Baseline returns the current baseline without absorbing a sample.
	Baseline() (float64, bool)
	// Mode reports which strategy the estimator implements.
	Mode() BaselineMode
	// Reset discards all calibration state.
	Reset()
}

// NewBaselineEstimator builds the estimator for mode. Non-positive alpha or
// window values fall back to the defaults.
func NewBaselineEstimator(mode BaselineMode, alpha float64, window int) (BaselineEstimator, error) {
	switch mode {
	case BaselineEMA, "":
		return NewEMABaseline(alpha), nil
	case BaselineWindow:
		return NewWindowBaseline(window), nil
	default:
		return nil, invalid("baseline_mode", "unknown mode %q", mode)
	}
}

// EMABaseline is an exponential moving average seeded from the first sample:
// b = b*(1-alpha) + y*alpha.
type EMABaseline struct {
	alpha  float64
	value  float64
	seeded bool
}

// NewEMABaseline returns an EMA estimator. alpha outside (0, 1] uses
// DefaultBaselineAlpha.
func NewEMABaseline(alpha float64) *EMABaseline {
	if alpha <= 0 || alpha > 1 {
		alpha = DefaultBaselineAlpha
	}
	return &EMABaseline{alpha: alpha}
}

func (e *EMABaseline) Update(y float64) (float64, bool) {
	if !e.seeded {
		e.value = y
		e.seeded = true
		return e.value, true
	}
	e.value = e.value*(1-e.alpha) + y*e.alpha
	return e.value, true
}

func (e *EMABaseline) Baseline() (float64, bool) { return e.value, e.seeded }

func (e *EMABaseline) Mode() BaselineMode { return BaselineEMA }

func (e *EMABaseline) Reset() {
	e.value = 0
	e.seeded = false
}

func (e *EMABaseline) String() string {
	return fmt.Sprintf("ema(alpha=%.3f)", e.alpha)
}

// WindowBaseline averages the first Size samples and then freezes. Updates
// after convergence are ignored.
type WindowBaseline struct {
	size    int
	samples []float64
	value   float64
	frozen  bool
}

// NewWindowBaseline returns a frozen-mean estimator. size <= 0 uses
// DefaultBaselineWindow.
func NewWindowBaseline(size int) *WindowBaseline {
	if size <= 0 {
		size = DefaultBaselineWindow
	}
	return &WindowBaseline{size: size, samples: make([]float64, 0, size)}
}

func (w *WindowBaseline) Update(y float64) (float64, bool) {
	if w.frozen {
		return w.value, true
	}
	w.samples = append(w.samples, y)
	if len(w.samples) < w.size {
		return 0, false
	}
	w.value = stat.Mean(w.samples, nil)
	w.frozen = true
	w.samples = nil
	return w.value, true
}

func (w *WindowBaseline) Baseline() (float64, bool) { return w.value, w.frozen }

func (w *WindowBaseline) Mode() BaselineMode { return BaselineWindow }

// Pending returns how many more samples are needed before the baseline freezes.
func (w *WindowBaseline) Pending() int {
	if w.frozen {
		return 0
	}
	return w.size - len(w.samples)
}

func (w *WindowBaseline) Reset() {
	w.samples = make([]float64, 0, w.size)
	w.value = 0
	w.frozen = false
}

func (w *WindowBaseline) String() string {
	return fmt.Sprintf("window(n=%d)", w.size)
}
