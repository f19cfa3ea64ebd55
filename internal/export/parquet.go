package export

import (
	"fmt"
	"io"

	"github.com/parquet-go/parquet-go"

	"github.com/banshee-data/jump.report/internal/fsutil"
	"github.com/banshee-data/jump.report/internal/kinematics"
)

// CurveRow is one frame of a resolved jump.
type CurveRow struct {
	// Frame is the zero-based index into the trajectory
	Frame int32 `parquet:"frame,snappy"`
	// T is the time since the first frame in seconds
	T float64 `parquet:"t,snappy"`
	// HeightCm is the height above the baseline
	HeightCm float64 `parquet:"height_cm,snappy"`
	// VelocityCmS is the vertical velocity, positive upwards
	VelocityCmS float64 `parquet:"velocity_cm_s,snappy"`
	// AccelerationMS2 is the vertical acceleration
	AccelerationMS2 float64 `parquet:"acceleration_m_s2,snappy"`
	// ForceN is the estimated ground reaction force
	ForceN float64 `parquet:"force_n,snappy"`
	// PowerW is force times velocity
	PowerW float64 `parquet:"power_w,snappy"`
	// Phase names the section of the jump this frame belongs to
	Phase string `parquet:"phase,snappy"`
}

// CurveRows flattens res into one row per frame.
func CurveRows(res *kinematics.Result) []CurveRow {
	rows := make([]CurveRow, len(res.Trajectory))
	for i, p := range res.Trajectory {
		row := CurveRow{
			Frame:    int32(i),
			T:        p.T,
			HeightCm: p.HeightCm,
			Phase:    phaseAt(res.Phases, i),
		}
		if i < len(res.Velocity) {
			row.VelocityCmS = res.Velocity[i].VelocityCmS
		}
		if i < len(res.AccelerationMS2) {
			row.AccelerationMS2 = res.AccelerationMS2[i]
		}
		if i < len(res.ForceN) {
			row.ForceN = res.ForceN[i]
		}
		if i < len(res.PowerW) {
			row.PowerW = res.PowerW[i]
		}
		rows[i] = row
	}
	return rows
}

func phaseAt(p kinematics.PhaseIndices, i int) string {
	switch {
	case i < p.EccentricStart:
		return "standing"
	case i < p.MinVelocity:
		return "eccentric"
	case i < p.Takeoff:
		return "concentric"
	case i < p.Landing:
		return "flight"
	default:
		return "landed"
	}
}

// WriteCurves writes the curves of res to w in Parquet format.
func WriteCurves(w io.Writer, res *kinematics.Result) error {
	writer := parquet.NewGenericWriter[CurveRow](w)
	if _, err := writer.Write(CurveRows(res)); err != nil {
		_ = writer.Close()
		return fmt.Errorf("failed to write curves: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to finish parquet file: %w", err)
	}
	return nil
}

// WriteCurvesParquet writes the curves of res to path.
func WriteCurvesParquet(fsys fsutil.FileSystem, path string, res *kinematics.Result) error {
	file, err := fsys.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	if err := WriteCurves(file, res); err != nil {
		_ = file.Close()
		return err
	}
	return file.Close()
}
