package kinematics

// Gradient returns the first derivative of x sampled every dt seconds, with
// the same length as x.
//
//	out[0]   = (x[1] - x[0]) / dt
//	out[i]   = (x[i+1] - x[i-1]) / (2*dt)   for 0 < i < n-1
//	out[n-1] = (x[n-1] - x[n-2]) / dt
//
// A single sample has a zero derivative. The arithmetic is fixed so that
// identical inputs always give bit-identical outputs.
func Gradient(x []float64, dt float64) []float64 {
	n := len(x)
	out := make([]float64, n)
	if n < 2 {
		return out
	}
	out[0] = (x[1] - x[0]) / dt
	for i := 1; i < n-1; i++ {
		out[i] = (x[i+1] - x[i-1]) / (2 * dt)
	}
	out[n-1] = (x[n-1] - x[n-2]) / dt
	return out
}
