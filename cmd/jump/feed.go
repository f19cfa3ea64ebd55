package main

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/banshee-data/jump.report/internal/config"
	"github.com/banshee-data/jump.report/internal/serialmux"
)

// loadConfig reads path, or returns the built-in defaults when path is empty.
func loadConfig(path string) (*config.JumpConfig, error) {
	if path == "" {
		return &config.JumpConfig{}, nil
	}
	return config.LoadJumpConfig(path)
}

// applyFlagOverrides copies every non-empty flag value onto cfg.
func applyFlagOverrides(cfg *config.JumpConfig, listen, port, resultsDir string) {
	if listen != "" {
		cfg.Listen = &listen
	}
	if port != "" {
		cfg.SamplePort = &port
	}
	if resultsDir != "" {
		cfg.ResultsDir = &resultsDir
	}
}

// openSampleFeed returns the live sample source and whether it is live: a
// replay of fixturesPath in dev mode, the serial device at portPath, or a
// disabled mux when neither is configured.
func openSampleFeed(dev bool, fixturesPath, portPath string, opts serialmux.PortOptions, interval time.Duration) (serialmux.SerialMuxInterface, bool, error) {
	switch {
	case dev:
		lines, err := loadFixtures(fixturesPath)
		if err != nil {
			return nil, false, err
		}
		return serialmux.NewMockSerialMux(lines, interval), true, nil
	case portPath != "":
		m, err := serialmux.NewRealSerialMux(portPath, opts)
		if err != nil {
			return nil, false, err
		}
		return m, true, nil
	default:
		return serialmux.NewDisabledSerialMux(), false, nil
	}
}

// loadFixtures reads the non-blank lines of a fixtures file.
func loadFixtures(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open fixtures file: %w", err)
	}
	var lines []string
	for _, line := range strings.Split(string(data), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	if len(lines) == 0 {
		return nil, fmt.Errorf("fixtures file %s has no lines", path)
	}
	return lines, nil
}

func pumpOptions(cfg *config.JumpConfig, liveID string, keepBaseline bool) serialmux.PumpOptions {
	return serialmux.PumpOptions{
		AutoStop:     cfg.GetAutoStop(),
		KeepBaseline: keepBaseline,
		OnLanded: func() {
			log.Printf("live session %s: landing detected, feed paused until reset", liveID)
		},
	}
}
