// Package testutil provides shared test helpers and synthetic trajectories.
package testutil

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

// AssertStatusCode checks that the response status code matches expected.
func AssertStatusCode(t *testing.T, got, want int) {
	t.Helper()
	if got != want {
		t.Errorf("status code = %d, want %d", got, want)
	}
}

// AssertNoError fails the test if err is not nil.
func AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// NewJSONRequest builds a request whose body is body marshalled as JSON.
func NewJSONRequest(t *testing.T, method, path string, body interface{}) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// DecodeJSON decodes a recorded response body into v.
func DecodeJSON(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
}

// Flat returns n positions all equal to y.
func Flat(n int, y float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = y
	}
	return out
}

// Parabola returns a standing-arc-standing position series around baseline.
// The arc spans flightFrames+1 samples and rises to peakPx above baseline;
// its end samples sit at 0.2*peakPx, so with peakPx >= 50 the resolver's
// flight window covers exactly the arc and measures flightFrames/fps.
func Parabola(baseline, peakPx float64, lead, flightFrames, trail int) []float64 {
	out := Flat(lead, baseline)
	n := float64(flightFrames)
	for i := 0; i <= flightFrames; i++ {
		u := 2*float64(i)/n - 1
		out = append(out, baseline-peakPx*(1-0.8*u*u))
	}
	return append(out, Flat(trail, baseline)...)
}

// CountermovementJump returns a blocky countermovement jump at baseline 500:
// 10 standing frames, 10 crouched 20 px below, 6 airborne 100 px above, then
// trail standing frames.
func CountermovementJump(trail int) []float64 {
	out := Flat(10, 500)
	out = append(out, Flat(10, 520)...)
	out = append(out, Flat(6, 400)...)
	return append(out, Flat(trail, 500)...)
}
