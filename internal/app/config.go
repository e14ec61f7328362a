package app

import (
	"errors"
	"fmt"
	"time"

	"github.com/specialistvlad/bootreplay/internal/config"
)

// Config holds all the necessary configuration for an App instance to run.
type Config struct {
	// ConfigPaths are HCL/YAML files or directories holding them.
	ConfigPaths []string
	// Overrides are "key=value" pairs that win over files and environment.
	Overrides []string
	// Environ is the environment configuration is read from; nil means
	// the process environment.
	Environ []string
	// ResourceRoot resolves relative resource paths read by build steps.
	ResourceRoot string

	LogFormat       string
	LogLevel        string
	WorkerCount     int
	HealthcheckPort int

	// StorePath is the sqlite artifact store; empty disables persistence.
	StorePath string

	Debounce     time.Duration
	PollInterval time.Duration
	UseNotify    bool
	// ReportURL is an optional socket.io endpoint for rebuild status.
	ReportURL string
}

func NewConfig(cfg Config) (*Config, error) {
	if cfg.ResourceRoot == "" {
		cfg.ResourceRoot = "."
	}
	if cfg.WorkerCount <= 0 {
		return nil, fmt.Errorf("WorkerCount must be positive, got %d", cfg.WorkerCount)
	}
	if cfg.Debounce < 0 || cfg.PollInterval < 0 {
		return nil, errors.New("Debounce and PollInterval cannot be negative")
	}
	if _, err := config.ParseSet(cfg.Overrides); err != nil {
		return nil, err
	}
	return &cfg, nil
}
