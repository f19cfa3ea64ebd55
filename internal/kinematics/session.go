package kinematics

import (
	"fmt"
	"math"
	"sync"

	"github.com/banshee-data/jump.report/internal/monitoring"
)

// SessionConfig configures a Session at construction. Mode, alpha and
// window are fixed for the session lifetime.
type SessionConfig struct {
	FPS            float64
	BodyMassKg     float64
	BaselineMode   BaselineMode
	BaselineAlpha  float64
	BaselineWindow int
	Thresholds     Thresholds
	// Logf receives session transitions. Nil logs through monitoring.Logf.
	Logf func(format string, v ...interface{})
}

// DefaultSessionConfig returns the configuration used when nothing is set.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		FPS:            30,
		BodyMassKg:     75,
		BaselineMode:   BaselineEMA,
		BaselineAlpha:  DefaultBaselineAlpha,
		BaselineWindow: DefaultBaselineWindow,
		Thresholds:     DefaultThresholds(),
	}
}

// Validate checks cfg before a session is built from it.
func (cfg SessionConfig) Validate() error {
	if err := validateFPS(cfg.FPS); err != nil {
		return err
	}
	if !isFinite(cfg.BodyMassKg) || cfg.BodyMassKg <= 0 {
		return invalid("body_mass_kg", "must be finite and positive, got %v", cfg.BodyMassKg)
	}
	return cfg.Thresholds.Validate()
}

// FrameStatus is the live feedback for one processed frame.
type FrameStatus struct {
	Frame    int      `json:"frame"`
	Phase    Phase    `json:"phase"`
	Label    Label    `json:"label"`
	Baseline *float64 `json:"baseline,omitempty"`
	HeightPx *float64 `json:"height_px,omitempty"`
}

// Status is a point-in-time snapshot of a session.
type Status struct {
	Frames       int          `json:"frames"`
	Phase        Phase        `json:"phase"`
	Label        Label        `json:"label"`
	Baseline     *float64     `json:"baseline,omitempty"`
	BaselineMode BaselineMode `json:"baseline_mode"`
	Started      bool         `json:"started"`
	Ended        bool         `json:"ended"`
	Paused       bool         `json:"paused"`
	FPS          float64      `json:"fps"`
	BodyMassKg   float64      `json:"body_mass_kg"`
	TakeoffFrame *int         `json:"takeoff_frame,omitempty"`
	LandingFrame *int         `json:"landing_frame,omitempty"`
}

// Session is one acquisition: trajectory, baseline, detector and the cached
// offline result. It is safe for concurrent use; every method takes the
// session lock, so frames from one session are processed strictly in order.
type Session struct {
	mu sync.Mutex

	cfg       SessionConfig
	traj      *Trajectory
	estimator BaselineEstimator
	detector  *PhaseDetector
	label     Label
	paused    bool
	logf      func(format string, v ...interface{})

	result    *Result
	resultErr error
	resolved  bool
}

// NewSession validates cfg and returns an empty session awaiting calibration.
func NewSession(cfg SessionConfig) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	estimator, err := NewBaselineEstimator(cfg.BaselineMode, cfg.BaselineAlpha, cfg.BaselineWindow)
	if err != nil {
		return nil, err
	}
	cfg.BaselineMode = estimator.Mode()
	traj, err := NewTrajectory(cfg.FPS)
	if err != nil {
		return nil, err
	}
	logf := cfg.Logf
	if logf == nil {
		logf = func(format string, v ...interface{}) { monitoring.Logf(format, v...) }
	}
	return &Session{
		cfg:       cfg,
		traj:      traj,
		estimator: estimator,
		detector:  NewPhaseDetector(cfg.Thresholds),
		label:     LabelAwaitingCalibration,
		logf:      logf,
	}, nil
}

// Update processes the next frame's vertical position.
//
// Until the baseline is available every frame calibrates it and is labelled
// awaiting_calibration. The frame on which it becomes available is labelled
// ready and is not classified. Later frames run the phase detector and carry
// the live height; the baseline keeps absorbing frames only while the
// detector is idle and the subject is inside the standing band.
func (s *Session) Update(y float64) (FrameStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.paused {
		return FrameStatus{}, ErrSessionPaused
	}
	sample, err := s.traj.AppendPosition(y)
	if err != nil {
		return FrameStatus{}, err
	}
	s.invalidate()

	st := FrameStatus{Frame: sample.FrameIndex}

	b, ok := s.estimator.Baseline()
	if !ok {
		b, ok = s.estimator.Update(y)
		st.Phase = s.detector.Phase()
		if !ok {
			s.label = LabelAwaitingCalibration
			st.Label = s.label
			return st, nil
		}
		s.logf("baseline ready at frame %d: %.2f (%s)", sample.FrameIndex, b, s.cfg.BaselineMode)
		s.label = LabelReady
		st.Label = s.label
		st.Baseline = floatPtr(b)
		return st, nil
	}

	before := s.detector.Phase()
	phase := s.detector.Observe(sample.FrameIndex, y, b)
	if phase != before {
		switch phase {
		case PhaseRising:
			s.logf("jump started at frame %d (baseline %.2f, y %.2f)", sample.FrameIndex, b, y)
		case PhaseLanded:
			s.logf("landing at frame %d", sample.FrameIndex)
		}
	}
	if phase == PhaseIdle && math.Abs(y-b) < s.cfg.Thresholds.StandingBand(b) {
		s.estimator.Update(y)
	}

	s.label = LabelAnalyzing
	st.Phase = phase
	st.Label = s.label
	st.Baseline = floatPtr(b)
	st.HeightPx = floatPtr(b - y)
	return st, nil
}

// Resolve runs the offline resolver over everything captured so far. The
// outcome is cached until the next mutation, and recomputation from the same
// state is bit-identical.
func (s *Session) Resolve() (*Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.resolved {
		return s.result, s.resultErr
	}
	b, ok := s.estimator.Baseline()
	if !ok {
		s.result, s.resultErr = nil, invalid("baseline", "baseline not calibrated")
	} else {
		s.result, s.resultErr = Resolve(s.traj, b, s.cfg.BodyMassKg)
	}
	s.resolved = true
	return s.result, s.resultErr
}

// Reset discards the trajectory and detector state for a new attempt. With
// keepBaseline the calibrated baseline carries over and the next frame is
// analysed straight away. Reset also clears a pause.
func (s *Session) Reset(keepBaseline bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.traj, _ = NewTrajectory(s.cfg.FPS)
	s.detector.Reset()
	s.paused = false
	if !keepBaseline {
		s.estimator.Reset()
	}
	if _, ok := s.estimator.Baseline(); ok {
		s.label = LabelReady
	} else {
		s.label = LabelAwaitingCalibration
	}
	s.invalidate()
	s.logf("reset (keep_baseline=%t)", keepBaseline)
}

// Pause makes Update reject frames until Resume.
func (s *Session) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = true
}

// Resume re-enables Update.
func (s *Session) Resume() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = false
}

// Paused reports whether the session is paused.
func (s *Session) Paused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused
}

// SetBodyMass changes the mass used by Resolve.
func (s *Session) SetBodyMass(kg float64) error {
	if !isFinite(kg) || kg <= 0 {
		return invalid("body_mass_kg", "must be finite and positive, got %v", kg)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg.BodyMassKg = kg
	s.invalidate()
	return nil
}

// SetFPS changes the sampling rate. Timestamps are derived from it, so it
// can only change while no frames are buffered.
func (s *Session) SetFPS(fps float64) error {
	if err := validateFPS(fps); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.traj.Len() > 0 {
		return invalid("fps", "cannot change with %d frames buffered", s.traj.Len())
	}
	s.cfg.FPS = fps
	s.traj, _ = NewTrajectory(fps)
	s.invalidate()
	return nil
}

// Status returns a snapshot of the session.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{
		Frames:       s.traj.Len(),
		Phase:        s.detector.Phase(),
		Label:        s.label,
		BaselineMode: s.cfg.BaselineMode,
		Started:      s.detector.Started(),
		Ended:        s.detector.Ended(),
		Paused:       s.paused,
		FPS:          s.cfg.FPS,
		BodyMassKg:   s.cfg.BodyMassKg,
	}
	if b, ok := s.estimator.Baseline(); ok {
		st.Baseline = floatPtr(b)
	}
	if f, ok := s.detector.TakeoffFrame(); ok {
		st.TakeoffFrame = &f
	}
	if f, ok := s.detector.LandingFrame(); ok {
		st.LandingFrame = &f
	}
	return st
}

// Samples returns a copy of the buffered trajectory.
func (s *Session) Samples() []Sample {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.traj.Samples()
}

// Ended reports whether the online detector has seen a landing.
func (s *Session) Ended() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.detector.Ended()
}

// Config returns the current configuration, including mass and fps changes.
func (s *Session) Config() SessionConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

func (s *Session) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fmt.Sprintf("session(frames=%d %s %s)", s.traj.Len(), s.estimator, s.detector)
}

func (s *Session) invalidate() {
	s.result, s.resultErr, s.resolved = nil, nil, false
}

func floatPtr(v float64) *float64 { return &v }
