package kinematics

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// Physical and detection constants used by the resolver. The floors are
// fixed and not configurable per call.
const (
	Gravity                 = 9.81 // m/s²
	MinExcursionPx          = 10.0 // smallest max excursion treated as a jump
	MinFlightSamples        = 5    // smallest number of samples in the flight window
	FlightThresholdFraction = 0.15 // flight window threshold as a fraction of the peak
	CountermovementVelocity = -0.1 // m/s, onset of the downward countermovement
)

// CurvePoint is one calibrated height sample.
type CurvePoint struct {
	T        float64 `json:"t"`
	HeightCm float64 `json:"height_cm"`
}

// VelocityPoint is one velocity sample.
type VelocityPoint struct {
	T           float64 `json:"t"`
	VelocityCmS float64 `json:"velocity_cm_s"`
}

// PhaseIndices are the sample indices that bound the jump phases. For a
// well-formed jump EccentricStart <= MinVelocity <= Takeoff <= Landing.
type PhaseIndices struct {
	EccentricStart int `json:"eccentric_start"`
	MinVelocity    int `json:"min_velocity"`
	Takeoff        int `json:"takeoff"`
	Peak           int `json:"peak"`
	Landing        int `json:"landing"`
}

// JumpSummary holds the scalar results of one resolved jump. It is only
// produced whole; an unresolvable trajectory yields an error instead.
type JumpSummary struct {
	MaxHeightCm       float64 `json:"max_height_cm"`
	FlightTimeS       float64 `json:"flight_time_s"`
	FallTimeS         float64 `json:"fall_time_s"`
	TakeoffVelocityMS float64 `json:"takeoff_velocity_ms"`
	AverageForceN     float64 `json:"average_force_n"`
	EstimatedPowerW   float64 `json:"estimated_power_w"`
	EccentricTimeS    float64 `json:"eccentric_time_s"`
	ConcentricTimeS   float64 `json:"concentric_time_s"`
	ContactTimeS      float64 `json:"contact_time_s"`
	JumpDetected      bool    `json:"jump_detected"`
	BodyMassKg        float64 `json:"body_mass_kg"`
}

// Result is everything the resolver derives from one trajectory. All curves
// have the same length as the input trajectory. Callers must treat it as
// read-only since sessions hand out their cached copy.
type Result struct {
	Summary         JumpSummary     `json:"summary"`
	Trajectory      []CurvePoint    `json:"trajectory"`
	Velocity        []VelocityPoint `json:"velocity"`
	AccelerationMS2 []float64       `json:"-"`
	ForceN          []float64       `json:"-"`
	PowerW          []float64       `json:"-"`
	Phases          PhaseIndices    `json:"phases"`
	ScaleCmPerPx    float64         `json:"scale_cm_per_px"`
	Baseline        float64         `json:"baseline"`
	FPS             float64         `json:"fps"`
}

// Resolve runs the offline resolver over a buffered trajectory.
func Resolve(tr *Trajectory, baseline, bodyMassKg float64) (*Result, error) {
	if tr == nil {
		return nil, invalid("trajectory", "nil trajectory")
	}
	return ResolvePositions(tr.Positions(), baseline, tr.FPS(), bodyMassKg)
}

// ResolvePositions converts raw positions into calibrated curves and a
// JumpSummary.
//
// Height is taken from the time of flight (h = g*T²/8) rather than from any
// pixel scale; the pixel-to-centimetre scale is then defined so that the
// peak of the flight window equals that height, and applied to the whole
// curve.
func ResolvePositions(ys []float64, baseline, fps, bodyMassKg float64) (*Result, error) {
	if err := validateResolveInput(ys, baseline, fps, bodyMassKg); err != nil {
		return nil, err
	}
	n := len(ys)

	heightPx := make([]float64, n)
	for i, y := range ys {
		heightPx[i] = baseline - y
	}

	maxPx := floats.Max(heightPx)
	if maxPx < MinExcursionPx {
		return nil, insufficient(ReasonNoExcursion, "max excursion %.2f px below %.0f px floor", maxPx, MinExcursionPx)
	}

	threshold := math.Max(MinExcursionPx, FlightThresholdFraction*maxPx)
	takeoff, landing, inFlight := -1, -1, 0
	for i, h := range heightPx {
		// At the threshold counts as flight, so a 10 px excursion can resolve.
		if h >= threshold {
			if takeoff < 0 {
				takeoff = i
			}
			landing = i
			inFlight++
		}
	}
	if inFlight < MinFlightSamples {
		return nil, insufficient(ReasonShortFlight, "%d samples above %.2f px, need %d", inFlight, threshold, MinFlightSamples)
	}

	flightTime := float64(landing-takeoff) / fps
	if flightTime <= 0 {
		return nil, insufficient(ReasonZeroFlightTime, "takeoff %d, landing %d", takeoff, landing)
	}

	maxHeightCm := Gravity * flightTime * flightTime / 8 * 100

	peakPx := floats.Max(heightPx[takeoff : landing+1])
	if peakPx <= 0 {
		return nil, insufficient(ReasonZeroPeak, "peak %.2f px in flight window", peakPx)
	}
	scale := maxHeightCm / peakPx

	dt := 1 / fps
	heightM := make([]float64, n)
	for i, h := range heightPx {
		heightM[i] = h * scale / 100
	}
	velocity := Gradient(heightM, dt)
	accel := Gradient(velocity, dt)

	force := make([]float64, n)
	power := make([]float64, n)
	for i := range force {
		force[i] = bodyMassKg * (accel[i] + Gravity)
		power[i] = force[i] * velocity[i]
	}

	ts := make([]float64, n)
	for i := range ts {
		ts[i] = float64(i) / fps
	}

	phases := PhaseIndices{Takeoff: takeoff, Landing: landing, Peak: floats.MaxIdx(heightPx)}
	if takeoff > 0 {
		phases.MinVelocity = floats.MinIdx(velocity[:takeoff])
	}
	phases.EccentricStart = phases.MinVelocity
	for i := 0; i < phases.MinVelocity; i++ {
		if velocity[i] < CountermovementVelocity {
			phases.EccentricStart = i
			break
		}
	}

	// Extreme but finite fps or mass can still overflow the derivatives.
	if !isFinite(scale) || !allFinite(velocity) || !allFinite(accel) {
		return nil, invalid("fps", "derived curves are not finite at %v fps", fps)
	}
	if !allFinite(force) || !allFinite(power) {
		return nil, invalid("body_mass_kg", "derived force is not finite for %v kg", bodyMassKg)
	}

	summary := JumpSummary{
		MaxHeightCm:  maxHeightCm,
		FlightTimeS:  flightTime,
		FallTimeS:    nonNegative(ts[landing] - ts[phases.Peak]),
		JumpDetected: true,
		BodyMassKg:   bodyMassKg,
	}
	if takeoff < n {
		summary.TakeoffVelocityMS = velocity[takeoff]
	}
	if takeoff > 0 {
		summary.EstimatedPowerW = floats.Max(power[:takeoff])
	}
	summary.AverageForceN = averagePushForce(force[:takeoff], velocity[:takeoff], bodyMassKg*Gravity)
	summary.EccentricTimeS = nonNegative(ts[phases.MinVelocity] - ts[phases.EccentricStart])
	summary.ConcentricTimeS = nonNegative(ts[takeoff] - ts[phases.MinVelocity])
	summary.ContactTimeS = summary.EccentricTimeS + summary.ConcentricTimeS

	res := &Result{
		Summary:         roundSummary(summary),
		Trajectory:      make([]CurvePoint, n),
		Velocity:        make([]VelocityPoint, n),
		AccelerationMS2: accel,
		ForceN:          force,
		PowerW:          power,
		Phases:          phases,
		ScaleCmPerPx:    scale,
		Baseline:        baseline,
		FPS:             fps,
	}
	for i := range ts {
		t := round(ts[i], 3)
		res.Trajectory[i] = CurvePoint{T: t, HeightCm: round(heightPx[i]*scale, 2)}
		res.Velocity[i] = VelocityPoint{T: t, VelocityCmS: round(velocity[i]*100, 2)}
	}
	return res, nil
}

func allFinite(xs []float64) bool {
	for _, x := range xs {
		if !isFinite(x) {
			return false
		}
	}
	return true
}

// averagePushForce averages force over the active push: samples that exceed
// body weight while moving upwards.
func averagePushForce(force, velocity []float64, weightN float64) float64 {
	var sum float64
	var count int
	for i, f := range force {
		if f > weightN && velocity[i] > 0 {
			sum += f
			count++
		}
	}
	if count == 0 {
		return 0
	}
	return sum / float64(count)
}

func validateResolveInput(ys []float64, baseline, fps, bodyMassKg float64) error {
	if err := validateFPS(fps); err != nil {
		return err
	}
	if len(ys) == 0 {
		return invalid("trajectory", "empty trajectory")
	}
	if !isFinite(baseline) {
		return invalid("baseline", "must be finite, got %v", baseline)
	}
	if !isFinite(bodyMassKg) || bodyMassKg <= 0 {
		return invalid("body_mass_kg", "must be finite and positive, got %v", bodyMassKg)
	}
	for i, y := range ys {
		if !isFinite(y) {
			return invalid("y_raw", "sample %d is not finite", i)
		}
	}
	return nil
}

// roundSummary applies the documented output precision: centimetres 2 dp,
// seconds and m/s 3 dp, newtons and watts 1 dp.
func roundSummary(s JumpSummary) JumpSummary {
	s.MaxHeightCm = round(s.MaxHeightCm, 2)
	s.FlightTimeS = round(s.FlightTimeS, 3)
	s.FallTimeS = round(s.FallTimeS, 3)
	s.TakeoffVelocityMS = round(s.TakeoffVelocityMS, 3)
	s.AverageForceN = round(s.AverageForceN, 1)
	s.EstimatedPowerW = round(s.EstimatedPowerW, 1)
	s.EccentricTimeS = round(s.EccentricTimeS, 3)
	s.ConcentricTimeS = round(s.ConcentricTimeS, 3)
	s.ContactTimeS = round(s.ContactTimeS, 3)
	return s
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

func nonNegative(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
