package units

import (
	"math"
	"testing"
)

func TestConvertVelocity(t *testing.T) {
	tests := []struct {
		name     string
		mps      float64
		units    string
		expected float64
	}{
		{"mps passthrough", 2.5, MPS, 2.5},
		{"2.5 m/s to cm/s", 2.5, CMPS, 250},
		{"1 m/s to ft/s", 1, FPS, 3.2808},
		{"negative velocity", -0.5, CMPS, -50},
		{"unknown units default to mps", 3, "knots", 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ConvertVelocity(tt.mps, tt.units)
			if math.Abs(result-tt.expected) > 0.001 {
				t.Errorf("ConvertVelocity(%f, %s) = %f, want %f", tt.mps, tt.units, result, tt.expected)
			}
		})
	}
}

func TestVelocityUnitForHeight(t *testing.T) {
	cases := map[string]string{CM: CMPS, Inches: FPS, Metres: MPS, "": CMPS}
	for height, want := range cases {
		if got := VelocityUnitForHeight(height); got != want {
			t.Errorf("VelocityUnitForHeight(%q) = %q, want %q", height, got, want)
		}
	}
	if !IsValidVelocity(FPS) || IsValidVelocity("mph") {
		t.Error("IsValidVelocity mismatch")
	}
}
