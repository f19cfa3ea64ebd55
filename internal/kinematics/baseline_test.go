package kinematics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEMABaseline(t *testing.T) {
	t.Parallel()

	e := NewEMABaseline(0)
	_, ok := e.Baseline()
	assert.False(t, ok)

	b, ok := e.Update(100)
	assert.True(t, ok)
	assert.Equal(t, 100.0, b)

	b, _ = e.Update(110)
	assert.InDelta(t, 101.0, b, 1e-9)

	e.Reset()
	_, ok = e.Baseline()
	assert.False(t, ok)
	assert.Equal(t, BaselineEMA, e.Mode())
}

func TestWindowBaseline(t *testing.T) {
	t.Parallel()

	w := NewWindowBaseline(DefaultBaselineWindow)
	for i := 0; i < DefaultBaselineWindow-1; i++ {
		_, ok := w.Update(float64(400 + i%2*10))
		require.False(t, ok, "sample %d", i)
	}
	assert.Equal(t, 1, w.Pending())

	b, ok := w.Update(410)
	require.True(t, ok)
	assert.InDelta(t, 405.0, b, 1e-9)

	// Frozen: later samples are ignored.
	b, ok = w.Update(1000)
	assert.True(t, ok)
	assert.InDelta(t, 405.0, b, 1e-9)
	assert.Equal(t, 0, w.Pending())

	w.Reset()
	_, ok = w.Baseline()
	assert.False(t, ok)
}

func TestNewBaselineEstimator(t *testing.T) {
	t.Parallel()

	e, err := NewBaselineEstimator("", 0, 0)
	require.NoError(t, err)
	assert.Equal(t, BaselineEMA, e.Mode())

	e, err = NewBaselineEstimator(BaselineWindow, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, BaselineWindow, e.Mode())
	assert.Equal(t, "window(n=10)", e.(*WindowBaseline).String())

	_, err = NewBaselineEstimator("median", 0, 0)
	assert.ErrorIs(t, err, ErrInvalidInput)
}
