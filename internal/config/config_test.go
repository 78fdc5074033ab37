package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefault_Validates(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Errorf("Default() should validate, got %v", err)
	}
	if cfg.Worker.RetryBackoff != 5*time.Second {
		t.Errorf("RetryBackoff = %v, want 5s", cfg.Worker.RetryBackoff)
	}
	if cfg.Server.WriteTimeout != 0 {
		t.Errorf("WriteTimeout = %v, want 0 for streaming", cfg.Server.WriteTimeout)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(c *Config) {}, false},
		{"missing data dir", func(c *Config) { c.Storage.DataDir = "" }, true},
		{"missing output dir", func(c *Config) { c.Storage.OutputDir = "" }, true},
		{"missing ffmpeg", func(c *Config) { c.FFmpeg.FFmpegPath = "" }, true},
		{"bad port", func(c *Config) { c.Server.Port = 70000 }, true},
		{"bad port ignored when server disabled", func(c *Config) {
			c.Server.Enabled = false
			c.Server.Port = 0
		}, false},
		{"negative backoff", func(c *Config) { c.Worker.RetryBackoff = -time.Second }, true},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestServerConfig_Address(t *testing.T) {
	cfg := ServerConfig{Host: "0.0.0.0", Port: 9848}
	if got := cfg.Address(); got != "0.0.0.0:9848" {
		t.Errorf("Address() = %q", got)
	}
}

func TestStorageConfig_Paths(t *testing.T) {
	cfg := StorageConfig{DataDir: "/var/lib/hlsgrabba"}
	if got := cfg.QueuePath(); got != filepath.Join("/var/lib/hlsgrabba", "queue.json") {
		t.Errorf("QueuePath() = %q", got)
	}
	if got := cfg.SettingsPath(); got != filepath.Join("/var/lib/hlsgrabba", "settings.json") {
		t.Errorf("SettingsPath() = %q", got)
	}
	if got := cfg.HistoryPath(); got != filepath.Join("/var/lib/hlsgrabba", "history.db") {
		t.Errorf("HistoryPath() = %q", got)
	}
}

func TestLoad_FromYAMLFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	content := `
server:
  host: 0.0.0.0
  port: 8080
storage:
  data_dir: /srv/data
  output_dir: /srv/videos
worker:
  retry_backoff: 2s
  auto_start: true
`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Server.Host != "0.0.0.0" || cfg.Server.Port != 8080 {
		t.Errorf("server = %+v", cfg.Server)
	}
	if cfg.Storage.DataDir != "/srv/data" || cfg.Storage.OutputDir != "/srv/videos" {
		t.Errorf("storage = %+v", cfg.Storage)
	}
	if cfg.Worker.RetryBackoff != 2*time.Second || !cfg.Worker.AutoStart {
		t.Errorf("worker = %+v", cfg.Worker)
	}
	// Unset keys keep defaults.
	if cfg.FFmpeg.FFmpegPath != "ffmpeg" || cfg.Events.RingBufferSize != 1000 {
		t.Errorf("defaults lost: ffmpeg=%q buffer=%d", cfg.FFmpeg.FFmpegPath, cfg.Events.RingBufferSize)
	}
}

func TestLoad_EnvOverridesYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	content := `
server:
  port: 8080
storage:
  data_dir: /yaml/data
`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	t.Setenv("DATA_DIR", "/env/data")
	t.Setenv("API_KEY", "env-api-key")
	t.Setenv("WORKER_RETRY_BACKOFF", "250ms")

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Storage.DataDir != "/env/data" {
		t.Errorf("DataDir = %q, want env override", cfg.Storage.DataDir)
	}
	if cfg.Server.APIKey != "env-api-key" {
		t.Errorf("APIKey = %q", cfg.Server.APIKey)
	}
	if cfg.Worker.RetryBackoff != 250*time.Millisecond {
		t.Errorf("RetryBackoff = %v", cfg.Worker.RetryBackoff)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("Port = %d, YAML value should survive", cfg.Server.Port)
	}
}

func TestLoad_EnvOnly(t *testing.T) {
	t.Setenv("OUTPUT_DIR", "/env/out")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Storage.OutputDir != "/env/out" {
		t.Errorf("OutputDir = %q", cfg.Storage.OutputDir)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte("server: [unclosed"), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	if _, err := Load(configPath); err == nil {
		t.Error("Load() should fail for invalid YAML")
	}
}

func TestLoad_NonexistentFile(t *testing.T) {
	if _, err := Load("/nonexistent/config.yaml"); err == nil {
		t.Error("Load() should fail for a missing config file")
	}
}
