// Package config provides configuration for the hlsgrabba TUI.
package config

import (
	"os"
	"time"
)

// Config holds the TUI configuration.
type Config struct {
	// Daemon connection
	ServerURL string
	APIKey    string

	// Refresh intervals
	StatusRefresh  time.Duration
	ReconnectDelay time.Duration

	// EventLines caps the event log view.
	EventLines int
}

// Load returns configuration from environment variables with sensible defaults.
func Load() *Config {
	return &Config{
		ServerURL:      getEnv("HLSGRABBA_URL", "http://127.0.0.1:9848"),
		APIKey:         getEnv("HLSGRABBA_API_KEY", ""),
		StatusRefresh:  getDuration("HLSGRABBA_STATUS_REFRESH", 5*time.Second),
		ReconnectDelay: getDuration("HLSGRABBA_RECONNECT_DELAY", 3*time.Second),
		EventLines:     500,
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil && d > 0 {
			return d
		}
	}
	return defaultVal
}
