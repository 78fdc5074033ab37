package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/iconidentify/hlsgrabba/internal/config"
	"github.com/iconidentify/hlsgrabba/internal/domain"
)

// SettingsHandler reads and updates user settings.
type SettingsHandler struct {
	store    *config.SettingsStore
	onChange func()
	logger   *slog.Logger
}

// NewSettingsHandler creates a settings handler. onChange, if set, runs after
// every accepted update.
func NewSettingsHandler(store *config.SettingsStore, onChange func(), logger *slog.Logger) *SettingsHandler {
	return &SettingsHandler{
		store:    store,
		onChange: onChange,
		logger:   logger,
	}
}

// SettingsResponse is the reply to a settings update. Warning is set when
// the settings took effect but could not be written to disk.
type SettingsResponse struct {
	config.Settings
	Warning string `json:"warning,omitempty"`
}

// Get handles GET /api/v1/settings.
func (h *SettingsHandler) Get(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.store.Get())
}

// Update handles PUT /api/v1/settings. Keys missing from the body keep
// their current values.
func (h *SettingsHandler) Update(w http.ResponseWriter, r *http.Request) {
	next := h.store.Get()
	if err := json.NewDecoder(r.Body).Decode(&next); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	applied, err := h.store.Update(next)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrInvalidSettings):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case domain.IsKind(err, domain.KindSettingsPersistence):
		h.logger.Warn("settings applied but not saved", "error", err)
		h.changed()
		writeJSON(w, http.StatusOK, SettingsResponse{Settings: applied, Warning: "settings could not be saved"})
		return
	default:
		h.logger.Error("failed to update settings", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update settings")
		return
	}

	h.logger.Info("settings updated",
		"max_concurrent", applied.MaxConcurrentDownloads,
		"max_retries", applied.MaxRetries,
		"post_action", applied.PostDownloadAction,
	)
	h.changed()
	writeJSON(w, http.StatusOK, SettingsResponse{Settings: applied})
}

func (h *SettingsHandler) changed() {
	if h.onChange != nil {
		h.onChange()
	}
}
