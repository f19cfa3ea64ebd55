// Package units provides shared constants and conversion for presentation units.
// The engine works in centimetres and metres per second; everything else is
// converted at the edges.
package units

import "strings"

// Height unit constants
const (
	CM     = "cm"
	Inches = "in"
	Metres = "m"
)

// ValidHeightUnits contains all valid height unit values
var ValidHeightUnits = []string{CM, Inches, Metres}

// IsValidHeight checks if the given unit is a known height unit
func IsValidHeight(unit string) bool {
	for _, validUnit := range ValidHeightUnits {
		if unit == validUnit {
			return true
		}
	}
	return false
}

// GetValidHeightUnitsString returns a comma-separated list for error messages
func GetValidHeightUnitsString() string {
	return strings.Join(ValidHeightUnits, ", ")
}

// ConvertHeight converts a height in centimetres to the target units.
// Unknown units return centimetres.
func ConvertHeight(heightCM float64, targetUnits string) float64 {
	switch targetUnits {
	case Inches:
		return heightCM / 2.54
	case Metres:
		return heightCM / 100
	default:
		return heightCM
	}
}
