package app

import (
	"errors"
	"fmt"
	"time"
)

// Config holds everything an App instance needs to run.
type Config struct {
	// GridPaths lists .grid files or directories to load. May be empty
	// when the API serves submissions instead.
	GridPaths []string

	LogFormat string
	LogLevel  string

	// Concurrency caps tasks executing at once. Zero defers to the grid's
	// settings block, then to the built-in default.
	Concurrency int

	// HealthcheckPort serves /healthz and /metrics. Zero disables it.
	HealthcheckPort int

	// APIPort serves the run API. Zero disables it.
	APIPort int

	// ForwardURL names a Socket.IO server to mirror progress events to.
	ForwardURL string

	// AutomationURL names the Socket.IO endpoint automation tasks talk to.
	AutomationURL string

	// ProgressInterval emits periodic stats events when positive. Zero
	// defers to the grid's settings block.
	ProgressInterval time.Duration
}

// NewConfig validates a Config and returns it.
func NewConfig(cfg Config) (*Config, error) {
	if len(cfg.GridPaths) == 0 && cfg.APIPort <= 0 {
		return nil, errors.New("nothing to run: no grid paths given and the API is disabled")
	}
	if cfg.Concurrency < 0 {
		return nil, fmt.Errorf("concurrency cannot be negative, got %d", cfg.Concurrency)
	}
	if cfg.HealthcheckPort < 0 || cfg.HealthcheckPort > 65535 {
		return nil, fmt.Errorf("invalid healthcheck port %d", cfg.HealthcheckPort)
	}
	if cfg.APIPort < 0 || cfg.APIPort > 65535 {
		return nil, fmt.Errorf("invalid api port %d", cfg.APIPort)
	}
	if cfg.ProgressInterval < 0 {
		return nil, fmt.Errorf("progress interval cannot be negative, got %s", cfg.ProgressInterval)
	}
	return &cfg, nil
}
