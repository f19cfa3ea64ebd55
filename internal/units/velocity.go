package units

import "strings"

// Velocity unit constants
const (
	MPS  = "mps"  // metres per second
	CMPS = "cmps" // centimetres per second
	FPS  = "fps"  // feet per second
)

// ValidVelocityUnits contains all valid velocity unit values
var ValidVelocityUnits = []string{MPS, CMPS, FPS}

// IsValidVelocity checks if the given unit is a known velocity unit
func IsValidVelocity(unit string) bool {
	for _, validUnit := range ValidVelocityUnits {
		if unit == validUnit {
			return true
		}
	}
	return false
}

// GetValidVelocityUnitsString returns a comma-separated list for error messages
func GetValidVelocityUnitsString() string {
	return strings.Join(ValidVelocityUnits, ", ")
}

// ConvertVelocity converts a velocity from metres per second to the target units
func ConvertVelocity(velocityMPS float64, targetUnits string) float64 {
	switch targetUnits {
	case CMPS:
		return velocityMPS * 100
	case FPS:
		return velocityMPS * 3.280839895
	default:
		return velocityMPS
	}
}

// VelocityUnitForHeight picks the velocity unit shown alongside a height unit:
// inches pair with feet per second, metres with m/s, centimetres with cm/s.
func VelocityUnitForHeight(heightUnit string) string {
	switch heightUnit {
	case Inches:
		return FPS
	case Metres:
		return MPS
	default:
		return CMPS
	}
}
