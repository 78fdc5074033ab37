package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/iconidentify/hlsgrabba/internal/downloader"
)

// QualityLister lists the renditions of a playlist.
type QualityLister interface {
	Discover(ctx context.Context, playlistURL string, headers map[string]string) ([]downloader.Quality, error)
}

// QualityHandler answers quality discovery requests.
type QualityHandler struct {
	lister QualityLister
	logger *slog.Logger
}

// NewQualityHandler creates a new quality handler.
func NewQualityHandler(lister QualityLister, logger *slog.Logger) *QualityHandler {
	return &QualityHandler{
		lister: lister,
		logger: logger,
	}
}

// QualityRequest is the body of a discovery request.
type QualityRequest struct {
	URL     string            `json:"url"`
	Headers map[string]string `json:"headers,omitempty"`
}

// QualityResponse lists the renditions found.
type QualityResponse struct {
	Qualities []downloader.Quality `json:"qualities"`
}

// Discover handles POST /api/v1/qualities.
func (h *QualityHandler) Discover(w http.ResponseWriter, r *http.Request) {
	var req QualityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.URL = strings.TrimSpace(req.URL)
	if req.URL == "" {
		writeError(w, http.StatusBadRequest, "url is required")
		return
	}

	qualities, err := h.lister.Discover(r.Context(), req.URL, req.Headers)
	if err != nil {
		switch {
		case errors.Is(err, downloader.ErrNotPlaylist):
			writeError(w, http.StatusUnprocessableEntity, err.Error())
		default:
			h.logger.Warn("quality discovery failed", "url", req.URL, "error", err)
			writeError(w, http.StatusBadGateway, err.Error())
		}
		return
	}

	writeJSON(w, http.StatusOK, QualityResponse{Qualities: qualities})
}
