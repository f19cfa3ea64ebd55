package kinematics

import (
	"math"
)

// Sample is one processed frame. It is immutable once appended.
type Sample struct {
	FrameIndex int     `json:"frame"`
	T          float64 `json:"t"` // seconds since the first frame
	YRaw       float64 `json:"y"` // pixels, larger is lower on screen
}

// Trajectory is the append-only buffer of samples collected during one
// acquisition. Sample i always has FrameIndex i and T = i/fps, which the
// resolver relies on for index/time alignment.
type Trajectory struct {
	fps     float64
	samples []Sample
}

// NewTrajectory returns an empty trajectory sampled at fps frames per second.
func NewTrajectory(fps float64) (*Trajectory, error) {
	if err := validateFPS(fps); err != nil {
		return nil, err
	}
	return &Trajectory{fps: fps}, nil
}

// TrajectoryFromPositions builds a trajectory from raw positions in frame order.
func TrajectoryFromPositions(fps float64, ys []float64) (*Trajectory, error) {
	tr, err := NewTrajectory(fps)
	if err != nil {
		return nil, err
	}
	tr.samples = make([]Sample, 0, len(ys))
	for _, y := range ys {
		if _, err := tr.AppendPosition(y); err != nil {
			return nil, err
		}
	}
	return tr, nil
}

// FPS returns the sampling rate.
func (tr *Trajectory) FPS() float64 { return tr.fps }

// Len returns the number of buffered samples.
func (tr *Trajectory) Len() int { return len(tr.samples) }

// Append adds s to the end of the buffer. The frame index must equal Len()
// and the position must be finite. T is derived from the frame index.
func (tr *Trajectory) Append(s Sample) error {
	if s.FrameIndex != len(tr.samples) {
		return invalid("frame_index", "got %d, want %d", s.FrameIndex, len(tr.samples))
	}
	if math.IsNaN(s.YRaw) || math.IsInf(s.YRaw, 0) {
		return invalid("y_raw", "position must be finite, got %v", s.YRaw)
	}
	s.T = float64(s.FrameIndex) / tr.fps
	tr.samples = append(tr.samples, s)
	return nil
}

// AppendPosition appends the next frame's position and returns the stored sample.
func (tr *Trajectory) AppendPosition(y float64) (Sample, error) {
	s := Sample{FrameIndex: len(tr.samples), YRaw: y}
	if err := tr.Append(s); err != nil {
		return Sample{}, err
	}
	return tr.samples[len(tr.samples)-1], nil
}

// At returns sample i.
func (tr *Trajectory) At(i int) Sample { return tr.samples[i] }

// Samples returns a copy of the buffer.
func (tr *Trajectory) Samples() []Sample {
	out := make([]Sample, len(tr.samples))
	copy(out, tr.samples)
	return out
}

// Positions returns the raw positions in frame order.
func (tr *Trajectory) Positions() []float64 {
	out := make([]float64, len(tr.samples))
	for i, s := range tr.samples {
		out[i] = s.YRaw
	}
	return out
}

func validateFPS(fps float64) error {
	if math.IsNaN(fps) || math.IsInf(fps, 0) || fps <= 0 {
		return invalid("fps", "must be finite and positive, got %v", fps)
	}
	return nil
}
