package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/banshee-data/jump.report/internal/kinematics"
)

// DefaultConfigPath is the path to the canonical defaults file.
const DefaultConfigPath = "config/jump.defaults.json"

// JumpConfig is the root configuration. The same JSON is served by
// /api/config so a client can see what the server runs with. Unset fields
// fall back to built-in defaults through the Get* methods, so partial files
// are safe.
type JumpConfig struct {
	// Acquisition
	FPS        *float64 `json:"fps,omitempty"`
	BodyMassKg *float64 `json:"body_mass_kg,omitempty"`

	// Baseline estimator
	BaselineMode   *string  `json:"baseline_mode,omitempty"` // "ema" or "window"
	BaselineAlpha  *float64 `json:"baseline_alpha,omitempty"`
	BaselineWindow *int     `json:"baseline_window,omitempty"`

	// Phase detector
	ThresholdMode     *string  `json:"threshold_mode,omitempty"` // "pixels" or "relative"
	StartThresholdPx  *float64 `json:"start_threshold_px,omitempty"`
	EndThresholdPx    *float64 `json:"end_threshold_px,omitempty"`
	StartThresholdRel *float64 `json:"start_threshold_rel,omitempty"`
	EndThresholdRel   *float64 `json:"end_threshold_rel,omitempty"`
	MinLandingFrames  *int     `json:"min_landing_frames,omitempty"`
	AutoStop          *bool    `json:"auto_stop,omitempty"`

	// Service
	SessionIdleTimeout *string `json:"session_idle_timeout,omitempty"` // duration string like "30m"
	ResultsDir         *string `json:"results_dir,omitempty"`
	SamplePort         *string `json:"sample_port,omitempty"`
	Listen             *string `json:"listen,omitempty"`
}

// LoadJumpConfig loads a JumpConfig from a JSON file.
// The file must have a .json extension and be under 1MB.
func LoadJumpConfig(path string) (*JumpConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &JumpConfig{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// MustLoadDefaultConfig loads DefaultConfigPath, searching the current
// directory and its parents up to the repository root. Panics if the file
// cannot be loaded; intended for test setup.
func MustLoadDefaultConfig() *JumpConfig {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,
		"../../" + DefaultConfigPath,    // from internal/config/
		"../../../" + DefaultConfigPath, // deeper packages
	}
	for _, path := range candidates {
		if cfg, err := LoadJumpConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks the values that are set. Cross-field checks on the
// resulting session configuration are left to kinematics.
func (c *JumpConfig) Validate() error {
	if c.FPS != nil && *c.FPS <= 0 {
		return fmt.Errorf("fps must be positive, got %f", *c.FPS)
	}
	if c.BodyMassKg != nil && *c.BodyMassKg <= 0 {
		return fmt.Errorf("body_mass_kg must be positive, got %f", *c.BodyMassKg)
	}
	if c.BaselineMode != nil {
		switch kinematics.BaselineMode(*c.BaselineMode) {
		case kinematics.BaselineEMA, kinematics.BaselineWindow:
		default:
			return fmt.Errorf("baseline_mode must be %q or %q, got %q", kinematics.BaselineEMA, kinematics.BaselineWindow, *c.BaselineMode)
		}
	}
	if c.BaselineAlpha != nil && (*c.BaselineAlpha <= 0 || *c.BaselineAlpha > 1) {
		return fmt.Errorf("baseline_alpha must be in (0, 1], got %f", *c.BaselineAlpha)
	}
	if c.BaselineWindow != nil && *c.BaselineWindow <= 0 {
		return fmt.Errorf("baseline_window must be positive, got %d", *c.BaselineWindow)
	}
	if c.ThresholdMode != nil {
		switch kinematics.ThresholdMode(*c.ThresholdMode) {
		case kinematics.ThresholdPixels, kinematics.ThresholdRelative:
		default:
			return fmt.Errorf("threshold_mode must be %q or %q, got %q", kinematics.ThresholdPixels, kinematics.ThresholdRelative, *c.ThresholdMode)
		}
	}
	if c.MinLandingFrames != nil && *c.MinLandingFrames < 0 {
		return fmt.Errorf("min_landing_frames must be non-negative, got %d", *c.MinLandingFrames)
	}
	if c.SessionIdleTimeout != nil && *c.SessionIdleTimeout != "" {
		if _, err := time.ParseDuration(*c.SessionIdleTimeout); err != nil {
			return fmt.Errorf("invalid session_idle_timeout '%s': %w", *c.SessionIdleTimeout, err)
		}
	}
	return nil
}

// SessionConfig builds the engine configuration from the resolved values.
func (c *JumpConfig) SessionConfig() kinematics.SessionConfig {
	return kinematics.SessionConfig{
		FPS:            c.GetFPS(),
		BodyMassKg:     c.GetBodyMassKg(),
		BaselineMode:   kinematics.BaselineMode(c.GetBaselineMode()),
		BaselineAlpha:  c.GetBaselineAlpha(),
		BaselineWindow: c.GetBaselineWindow(),
		Thresholds: kinematics.Thresholds{
			Mode:             kinematics.ThresholdMode(c.GetThresholdMode()),
			StartPx:          c.GetStartThresholdPx(),
			EndPx:            c.GetEndThresholdPx(),
			StartRel:         c.GetStartThresholdRel(),
			EndRel:           c.GetEndThresholdRel(),
			MinLandingFrames: c.GetMinLandingFrames(),
		},
	}
}

// GetFPS returns the fps value or the default.
func (c *JumpConfig) GetFPS() float64 {
	if c.FPS == nil {
		return 30
	}
	return *c.FPS
}

// GetBodyMassKg returns the body_mass_kg value or the default.
func (c *JumpConfig) GetBodyMassKg() float64 {
	if c.BodyMassKg == nil {
		return 75
	}
	return *c.BodyMassKg
}

// GetBaselineMode returns the baseline_mode value or the default.
func (c *JumpConfig) GetBaselineMode() string {
	if c.BaselineMode == nil || *c.BaselineMode == "" {
		return string(kinematics.BaselineEMA)
	}
	return *c.BaselineMode
}

// GetBaselineAlpha returns the baseline_alpha value or the default.
func (c *JumpConfig) GetBaselineAlpha() float64 {
	if c.BaselineAlpha == nil {
		return kinematics.DefaultBaselineAlpha
	}
	return *c.BaselineAlpha
}

// GetBaselineWindow returns the baseline_window value or the default.
func (c *JumpConfig) GetBaselineWindow() int {
	if c.BaselineWindow == nil {
		return kinematics.DefaultBaselineWindow
	}
	return *c.BaselineWindow
}

// GetThresholdMode returns the threshold_mode value or the default.
func (c *JumpConfig) GetThresholdMode() string {
	if c.ThresholdMode == nil || *c.ThresholdMode == "" {
		return string(kinematics.ThresholdPixels)
	}
	return *c.ThresholdMode
}

func (c *JumpConfig) GetStartThresholdPx() float64 {
	if c.StartThresholdPx == nil {
		return kinematics.DefaultThresholds().StartPx
	}
	return *c.StartThresholdPx
}

func (c *JumpConfig) GetEndThresholdPx() float64 {
	if c.EndThresholdPx == nil {
		return kinematics.DefaultThresholds().EndPx
	}
	return *c.EndThresholdPx
}

func (c *JumpConfig) GetStartThresholdRel() float64 {
	if c.StartThresholdRel == nil {
		return kinematics.DefaultThresholds().StartRel
	}
	return *c.StartThresholdRel
}

func (c *JumpConfig) GetEndThresholdRel() float64 {
	if c.EndThresholdRel == nil {
		return kinematics.DefaultThresholds().EndRel
	}
	return *c.EndThresholdRel
}

// GetMinLandingFrames returns the min_landing_frames value or the default.
func (c *JumpConfig) GetMinLandingFrames() int {
	if c.MinLandingFrames == nil {
		return kinematics.DefaultThresholds().MinLandingFrames
	}
	return *c.MinLandingFrames
}

// GetAutoStop reports whether the sample feed stops at landing. Default true.
func (c *JumpConfig) GetAutoStop() bool {
	if c.AutoStop == nil {
		return true
	}
	return *c.AutoStop
}

// GetSessionIdleTimeout parses session_idle_timeout. Default 30 minutes.
func (c *JumpConfig) GetSessionIdleTimeout() time.Duration {
	if c.SessionIdleTimeout == nil || *c.SessionIdleTimeout == "" {
		return 30 * time.Minute
	}
	d, err := time.ParseDuration(*c.SessionIdleTimeout)
	if err != nil {
		return 30 * time.Minute // default on parse error
	}
	return d
}

// GetResultsDir returns the results_dir value or the default.
func (c *JumpConfig) GetResultsDir() string {
	if c.ResultsDir == nil || *c.ResultsDir == "" {
		return "results"
	}
	return *c.ResultsDir
}

// GetSamplePort returns the serial device for live samples; empty disables it.
func (c *JumpConfig) GetSamplePort() string {
	if c.SamplePort == nil {
		return ""
	}
	return *c.SamplePort
}

// GetListen returns the HTTP listen address or the default.
func (c *JumpConfig) GetListen() string {
	if c.Listen == nil || *c.Listen == "" {
		return ":8080"
	}
	return *c.Listen
}
