package config

import (
	"os"
	"path/filepath"
	"time"
)

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() *Config {
	homeDir := getDefaultHomeDir()

	return &Config{
		Core: CoreConfig{
			DataDir:      filepath.Join(homeDir, "data"),
			MaxParallel:  3,
			StageTimeout: 10 * time.Minute,
			Debug:        false,
		},
		Database: DatabaseConfig{
			Path:           filepath.Join(homeDir, "reportflow.db"),
			MaxConnections: 10,
			BusyTimeout:    5 * time.Second,
		},
		AI: AIConfig{
			Retry: RetryConfig{
				MaxAttempts:  3,
				Backoff:      "exponential",
				InitialDelay: time.Second,
				MaxDelay:     30 * time.Second,
				Multiplier:   2.0,
			},
			Breaker: BreakerConfig{
				FailureThreshold: 5,
				Cooldown:         30 * time.Second,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:  false,
			Endpoint: "",
		},
	}
}

// getDefaultHomeDir returns the default reportflow home directory,
// ~/.reportflow or a temp-dir fallback when the user home is unknown.
func getDefaultHomeDir() string {
	userHome, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".reportflow")
	}
	return filepath.Join(userHome, ".reportflow")
}
