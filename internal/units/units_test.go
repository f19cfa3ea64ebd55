package units

import (
	"math"
	"testing"
)

func TestConvertHeight(t *testing.T) {
	tests := []struct {
		name     string
		heightCM float64
		units    string
		expected float64
	}{
		{"cm passthrough", 42.5, CM, 42.5},
		{"2.54 cm to in", 2.54, Inches, 1},
		{"typical jump 40 cm to in", 40, Inches, 15.748},
		{"100 cm to m", 100, Metres, 1},
		{"unknown units default to cm", 12, "furlongs", 12},
		{"zero", 0, Inches, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ConvertHeight(tt.heightCM, tt.units)
			if math.Abs(result-tt.expected) > 0.001 {
				t.Errorf("ConvertHeight(%f, %s) = %f, want %f", tt.heightCM, tt.units, result, tt.expected)
			}
		})
	}
}

func TestIsValidHeight(t *testing.T) {
	for _, u := range ValidHeightUnits {
		if !IsValidHeight(u) {
			t.Errorf("IsValidHeight(%q) = false, want true", u)
		}
	}
	for _, u := range []string{"", "CM", "mm", "mph"} {
		if IsValidHeight(u) {
			t.Errorf("IsValidHeight(%q) = true, want false", u)
		}
	}
	if got := GetValidHeightUnitsString(); got != "cm, in, m" {
		t.Errorf("GetValidHeightUnitsString() = %q", got)
	}
}
