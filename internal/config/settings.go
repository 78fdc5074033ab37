package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/iconidentify/hlsgrabba/internal/domain"
	"github.com/iconidentify/hlsgrabba/internal/platform"
)

// PostAction is what the host does after the queue drains.
type PostAction string

const (
	PostActionNone     PostAction = "None"
	PostActionShutdown PostAction = "Shutdown"
	PostActionSleep    PostAction = "Sleep"
)

// Valid reports whether a is a known action.
func (a PostAction) Valid() bool {
	return a == PostActionNone || a == PostActionShutdown || a == PostActionSleep
}

// Concurrency bounds for MaxConcurrentDownloads.
const (
	MinConcurrentDownloads = 1
	MaxConcurrentDownloads = 10
)

// Settings are the user preferences persisted as a JSON key-value file.
type Settings struct {
	MaxRetries             int        `json:"maxRetries"`
	EnableAutoRetry        bool       `json:"enableAutoRetry"`
	PostDownloadAction     PostAction `json:"postDownloadAction"`
	EnableNotifications    bool       `json:"enableNotifications"`
	MaxConcurrentDownloads int        `json:"maxConcurrentDownloads"`
	BandwidthLimitKBps     int        `json:"bandwidthLimitKBps"`
}

// DefaultSettings returns the settings written for a new installation.
func DefaultSettings() Settings {
	return Settings{
		MaxRetries:             3,
		EnableAutoRetry:        true,
		PostDownloadAction:     PostActionNone,
		EnableNotifications:    true,
		MaxConcurrentDownloads: 1,
		BandwidthLimitKBps:     0,
	}
}

// Validate checks values a user can set.
func (s Settings) Validate() error {
	if s.MaxRetries < 0 {
		return fmt.Errorf("%w: maxRetries must not be negative", domain.ErrInvalidSettings)
	}
	if s.BandwidthLimitKBps < 0 {
		return fmt.Errorf("%w: bandwidthLimitKBps must not be negative", domain.ErrInvalidSettings)
	}
	if !s.PostDownloadAction.Valid() {
		return fmt.Errorf("%w: unknown postDownloadAction %q", domain.ErrInvalidSettings, s.PostDownloadAction)
	}
	return nil
}

// JobRetries is the retry budget given to new jobs.
func (s Settings) JobRetries() int {
	if !s.EnableAutoRetry {
		return 0
	}
	return s.MaxRetries
}

func (s Settings) normalized() Settings {
	if s.MaxConcurrentDownloads < MinConcurrentDownloads {
		s.MaxConcurrentDownloads = MinConcurrentDownloads
	}
	if s.MaxConcurrentDownloads > MaxConcurrentDownloads {
		s.MaxConcurrentDownloads = MaxConcurrentDownloads
	}
	if s.MaxRetries < 0 {
		s.MaxRetries = 0
	}
	if s.BandwidthLimitKBps < 0 {
		s.BandwidthLimitKBps = 0
	}
	if !s.PostDownloadAction.Valid() {
		s.PostDownloadAction = PostActionNone
	}
	return s
}

// SettingsStore loads, holds and saves user settings.
type SettingsStore struct {
	path   string
	logger *slog.Logger

	mu       sync.RWMutex
	settings Settings
}

// NewSettingsStore creates a store holding defaults. Call Load to read path.
func NewSettingsStore(path string, logger *slog.Logger) *SettingsStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &SettingsStore{
		path:     path,
		logger:   logger,
		settings: DefaultSettings(),
	}
}

// Load reads the settings file. A missing file is created with defaults.
// Keys missing from an existing file keep their defaults. An unreadable or
// malformed file leaves the defaults in effect.
func (s *SettingsStore) Load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			s.logger.Info("no settings file found, writing defaults", "path", s.path)
			s.mu.Lock()
			s.settings = DefaultSettings()
			s.mu.Unlock()
			return s.save(DefaultSettings())
		}
		s.logger.Warn("could not read settings file, using defaults", "path", s.path, "error", err)
		return domain.NewJobError("", domain.KindSettingsPersistence, "read settings", err)
	}

	loaded := DefaultSettings()
	if err := json.Unmarshal(data, &loaded); err != nil {
		s.logger.Warn("settings file is malformed, using defaults", "path", s.path, "error", err)
		s.mu.Lock()
		s.settings = DefaultSettings()
		s.mu.Unlock()
		return nil
	}

	s.mu.Lock()
	s.settings = loaded.normalized()
	s.mu.Unlock()
	return nil
}

// Get returns the current settings.
func (s *SettingsStore) Get() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings
}

// Update validates and stores new settings, then saves them. A save failure
// is returned but the new settings stay in effect.
func (s *SettingsStore) Update(next Settings) (Settings, error) {
	if err := next.Validate(); err != nil {
		return s.Get(), err
	}
	next = next.normalized()

	s.mu.Lock()
	s.settings = next
	s.mu.Unlock()

	return next, s.save(next)
}

// Save writes the current settings to disk.
func (s *SettingsStore) Save() error {
	return s.save(s.Get())
}

func (s *SettingsStore) save(settings Settings) error {
	data, err := json.MarshalIndent(settings, "", "    ")
	if err != nil {
		return domain.NewJobError("", domain.KindSettingsPersistence, "encode settings", err)
	}
	if err := platform.WriteFileAtomic(s.path, data); err != nil {
		s.logger.Error("failed to save settings", "path", s.path, "error", err)
		return domain.NewJobError("", domain.KindSettingsPersistence, "save settings", err)
	}
	return nil
}
