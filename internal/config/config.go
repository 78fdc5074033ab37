package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Config holds all process configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Storage StorageConfig `yaml:"storage"`
	FFmpeg  FFmpegConfig  `yaml:"ffmpeg"`
	Worker  WorkerConfig  `yaml:"worker"`
	Events  EventsConfig  `yaml:"events"`
	Log     LogConfig     `yaml:"log"`
}

// ServerConfig holds HTTP control API configuration.
type ServerConfig struct {
	Enabled     bool          `yaml:"enabled" envconfig:"SERVER_ENABLED"`
	Host        string        `yaml:"host" envconfig:"SERVER_HOST"`
	Port        int           `yaml:"port" envconfig:"SERVER_PORT"`
	APIKey      string        `yaml:"api_key" envconfig:"API_KEY"`
	ReadTimeout time.Duration `yaml:"read_timeout" envconfig:"SERVER_READ_TIMEOUT"`
	// WriteTimeout of zero keeps event streams open indefinitely.
	WriteTimeout time.Duration `yaml:"write_timeout" envconfig:"SERVER_WRITE_TIMEOUT"`
}

// StorageConfig holds filesystem locations.
type StorageConfig struct {
	DataDir   string `yaml:"data_dir" envconfig:"DATA_DIR"`
	OutputDir string `yaml:"output_dir" envconfig:"OUTPUT_DIR"`
}

// FFmpegConfig locates the remuxing tools.
type FFmpegConfig struct {
	FFmpegPath   string        `yaml:"ffmpeg_path" envconfig:"FFMPEG_PATH"`
	FFprobePath  string        `yaml:"ffprobe_path" envconfig:"FFPROBE_PATH"`
	ProbeTimeout time.Duration `yaml:"probe_timeout" envconfig:"FFPROBE_TIMEOUT"`
	// StopGrace is how long a stopped ffmpeg may take to exit before it is killed.
	StopGrace time.Duration `yaml:"stop_grace" envconfig:"FFMPEG_STOP_GRACE"`
}

// WorkerConfig holds scheduler and retry configuration.
type WorkerConfig struct {
	RetryBackoff time.Duration `yaml:"retry_backoff" envconfig:"WORKER_RETRY_BACKOFF"`
	StopTimeout  time.Duration `yaml:"stop_timeout" envconfig:"WORKER_STOP_TIMEOUT"`
	AutoStart    bool          `yaml:"auto_start" envconfig:"WORKER_AUTO_START"`
}

// EventsConfig holds event channel configuration.
type EventsConfig struct {
	RingBufferSize   int  `yaml:"ring_buffer_size" envconfig:"EVENTS_BUFFER_SIZE"`
	SubscriberBuffer int  `yaml:"subscriber_buffer" envconfig:"EVENTS_SUBSCRIBER_BUFFER"`
	PersistHistory   bool `yaml:"persist_history" envconfig:"EVENTS_PERSIST_HISTORY"`
	RetentionDays    int  `yaml:"retention_days" envconfig:"EVENTS_RETENTION_DAYS"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `yaml:"level" envconfig:"LOG_LEVEL"`
	Format string `yaml:"format" envconfig:"LOG_FORMAT"` // auto, json, text
}

// Default returns the configuration used when nothing else is set.
func Default() *Config {
	dataDir := "./data"
	outputDir := "./downloads"
	if home, err := os.UserHomeDir(); err == nil {
		dataDir = filepath.Join(home, ".hlsgrabba")
		outputDir = filepath.Join(home, "hlsgrabba_downloads")
	}

	return &Config{
		Server: ServerConfig{
			Enabled:     true,
			Host:        "127.0.0.1",
			Port:        9848,
			ReadTimeout: 30 * time.Second,
		},
		Storage: StorageConfig{
			DataDir:   dataDir,
			OutputDir: outputDir,
		},
		FFmpeg: FFmpegConfig{
			FFmpegPath:   "ffmpeg",
			FFprobePath:  "ffprobe",
			ProbeTimeout: 30 * time.Second,
			StopGrace:    5 * time.Second,
		},
		Worker: WorkerConfig{
			RetryBackoff: 5 * time.Second,
			StopTimeout:  30 * time.Second,
		},
		Events: EventsConfig{
			RingBufferSize:   1000,
			SubscriberBuffer: 256,
			PersistHistory:   true,
			RetentionDays:    30,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "auto",
		},
	}
}

// Load builds the configuration from defaults, then the YAML file if one is
// given, then environment variables. Later sources win.
func Load(configPath string) (*Config, error) {
	cfg := Default()

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	// No default tags, so only variables that are set override the file.
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("process environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// Validate checks that required configuration values are set.
func (c *Config) Validate() error {
	if c.Storage.DataDir == "" {
		return fmt.Errorf("DATA_DIR is required")
	}
	if c.Storage.OutputDir == "" {
		return fmt.Errorf("OUTPUT_DIR is required")
	}
	if c.FFmpeg.FFmpegPath == "" || c.FFmpeg.FFprobePath == "" {
		return fmt.Errorf("FFMPEG_PATH and FFPROBE_PATH are required")
	}
	if c.Server.Enabled && (c.Server.Port <= 0 || c.Server.Port > 65535) {
		return fmt.Errorf("SERVER_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Worker.RetryBackoff < 0 {
		return fmt.Errorf("WORKER_RETRY_BACKOFF must not be negative")
	}
	switch c.Log.Format {
	case "auto", "json", "text":
	default:
		return fmt.Errorf("LOG_FORMAT must be auto, json or text, got %q", c.Log.Format)
	}
	return nil
}

// Address returns the server address in host:port format.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// QueuePath is where the job queue is persisted.
func (c *StorageConfig) QueuePath() string {
	return filepath.Join(c.DataDir, "queue.json")
}

// SettingsPath is where user settings are persisted.
func (c *StorageConfig) SettingsPath() string {
	return filepath.Join(c.DataDir, "settings.json")
}

// HistoryPath is the SQLite database of finished jobs.
func (c *StorageConfig) HistoryPath() string {
	return filepath.Join(c.DataDir, "history.db")
}

// EventsPath is the SQLite database of persisted events.
func (c *StorageConfig) EventsPath() string {
	return filepath.Join(c.DataDir, "events.db")
}
