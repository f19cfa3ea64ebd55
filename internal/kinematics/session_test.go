package kinematics

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/jump.report/internal/testutil"
)

func quietConfig() SessionConfig {
	cfg := DefaultSessionConfig()
	cfg.BodyMassKg = 70
	cfg.Logf = func(string, ...interface{}) {}
	return cfg
}

func feed(t *testing.T, s *Session, ys []float64) []FrameStatus {
	t.Helper()
	out := make([]FrameStatus, 0, len(ys))
	for _, y := range ys {
		st, err := s.Update(y)
		require.NoError(t, err)
		out = append(out, st)
	}
	return out
}

func TestSession_EMALabels(t *testing.T) {
	t.Parallel()

	s, err := NewSession(quietConfig())
	require.NoError(t, err)
	assert.Equal(t, LabelAwaitingCalibration, s.Status().Label)

	statuses := feed(t, s, []float64{500, 500, 450})
	assert.Equal(t, LabelReady, statuses[0].Label)
	assert.Nil(t, statuses[0].HeightPx)
	assert.Equal(t, PhaseIdle, statuses[0].Phase)

	assert.Equal(t, LabelAnalyzing, statuses[1].Label)
	require.NotNil(t, statuses[1].HeightPx)
	assert.Equal(t, 0.0, *statuses[1].HeightPx)

	require.NotNil(t, statuses[2].HeightPx)
	assert.InDelta(t, 50.0, *statuses[2].HeightPx, 1e-9)
	assert.Equal(t, PhaseIdle, statuses[2].Phase, "excursion must exceed the start threshold")
}

func TestSession_WindowCalibration(t *testing.T) {
	t.Parallel()

	cfg := quietConfig()
	cfg.BaselineMode = BaselineWindow
	s, err := NewSession(cfg)
	require.NoError(t, err)

	statuses := feed(t, s, testutil.Flat(DefaultBaselineWindow+1, 500))
	for i := 0; i < DefaultBaselineWindow-1; i++ {
		assert.Equal(t, LabelAwaitingCalibration, statuses[i].Label, "frame %d", i)
	}
	assert.Equal(t, LabelReady, statuses[DefaultBaselineWindow-1].Label)
	assert.Equal(t, LabelAnalyzing, statuses[DefaultBaselineWindow].Label)

	st := s.Status()
	require.NotNil(t, st.Baseline)
	assert.Equal(t, 500.0, *st.Baseline)
	assert.Equal(t, BaselineWindow, st.BaselineMode)
}

func TestSession_JumpAndResolve(t *testing.T) {
	t.Parallel()

	s, err := NewSession(quietConfig())
	require.NoError(t, err)
	feed(t, s, testutil.CountermovementJump(10))

	st := s.Status()
	assert.True(t, st.Started)
	assert.True(t, st.Ended)
	require.NotNil(t, st.TakeoffFrame)
	assert.Equal(t, 20, *st.TakeoffFrame)
	require.NotNil(t, st.LandingFrame)
	assert.Equal(t, 26, *st.LandingFrame)

	res, err := s.Resolve()
	require.NoError(t, err)
	assert.Equal(t, 0.167, res.Summary.FlightTimeS)
	assert.Equal(t, 3.41, res.Summary.MaxHeightCm)

	again, err := s.Resolve()
	require.NoError(t, err)
	assert.Same(t, res, again, "unchanged session should return the cached result")

	require.NoError(t, s.SetBodyMass(90))
	heavier, err := s.Resolve()
	require.NoError(t, err)
	assert.NotSame(t, res, heavier)
	assert.Equal(t, res.Summary.MaxHeightCm, heavier.Summary.MaxHeightCm)
	assert.Equal(t, 90.0, heavier.Summary.BodyMassKg)
	assert.Greater(t, heavier.Summary.AverageForceN, res.Summary.AverageForceN)
}

func TestSession_CrouchDoesNotMoveBaseline(t *testing.T) {
	t.Parallel()

	s, err := NewSession(quietConfig())
	require.NoError(t, err)
	ys := testutil.CountermovementJump(10)
	feed(t, s, ys)

	st := s.Status()
	require.NotNil(t, st.Baseline)
	assert.Equal(t, 500.0, *st.Baseline, "crouch frames sit outside the standing band")

	fromSession, err := s.Resolve()
	require.NoError(t, err)
	direct, err := ResolvePositions(ys, 500, 30, 70)
	require.NoError(t, err)
	assert.Equal(t, direct.Summary, fromSession.Summary)
}

func TestSession_BaselineTracksSmallDrift(t *testing.T) {
	t.Parallel()

	s, err := NewSession(quietConfig())
	require.NoError(t, err)
	feed(t, s, testutil.Flat(1, 500))
	feed(t, s, testutil.Flat(40, 505))

	st := s.Status()
	require.NotNil(t, st.Baseline)
	assert.InDelta(t, 505, *st.Baseline, 0.1)
}

func TestSession_ResolveWithoutBaseline(t *testing.T) {
	t.Parallel()

	s, err := NewSession(quietConfig())
	require.NoError(t, err)
	_, err = s.Resolve()
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestSession_Reset(t *testing.T) {
	t.Parallel()

	s, err := NewSession(quietConfig())
	require.NoError(t, err)
	feed(t, s, testutil.CountermovementJump(10))

	s.Reset(true)
	st := s.Status()
	assert.Equal(t, 0, st.Frames)
	assert.Equal(t, LabelReady, st.Label)
	assert.False(t, st.Started)
	assert.NotNil(t, st.Baseline)

	first := feed(t, s, []float64{500})[0]
	assert.Equal(t, 0, first.Frame)
	assert.Equal(t, LabelAnalyzing, first.Label)

	s.Reset(false)
	st = s.Status()
	assert.Equal(t, LabelAwaitingCalibration, st.Label)
	assert.Nil(t, st.Baseline)
}

func TestSession_Pause(t *testing.T) {
	t.Parallel()

	s, err := NewSession(quietConfig())
	require.NoError(t, err)
	feed(t, s, []float64{500})

	s.Pause()
	assert.True(t, s.Paused())
	_, err = s.Update(500)
	assert.ErrorIs(t, err, ErrSessionPaused)
	assert.Equal(t, 1, s.Status().Frames)

	s.Resume()
	feed(t, s, []float64{500})
	assert.Equal(t, 2, s.Status().Frames)
}

func TestSession_SetFPS(t *testing.T) {
	t.Parallel()

	s, err := NewSession(quietConfig())
	require.NoError(t, err)
	require.NoError(t, s.SetFPS(60))
	assert.Equal(t, 60.0, s.Config().FPS)

	feed(t, s, []float64{500, 500})
	assert.InDelta(t, 1.0/60, s.Samples()[1].T, 1e-12)
	assert.ErrorIs(t, s.SetFPS(30), ErrInvalidInput)
	assert.ErrorIs(t, s.SetBodyMass(-1), ErrInvalidInput)
}

func TestSession_InvalidInput(t *testing.T) {
	t.Parallel()

	cfg := quietConfig()
	cfg.FPS = 0
	_, err := NewSession(cfg)
	assert.ErrorIs(t, err, ErrInvalidInput)

	s, err := NewSession(quietConfig())
	require.NoError(t, err)
	_, err = s.Update(math.NaN())
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.Equal(t, 0, s.Status().Frames)
}
