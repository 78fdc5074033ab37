package handler

import (
	"log/slog"
	"net/http"

	"github.com/iconidentify/hlsgrabba/internal/domain"
	"github.com/iconidentify/hlsgrabba/internal/service"
)

// HistoryHandler lists finished job outcomes.
type HistoryHandler struct {
	svc    *service.QueueService
	logger *slog.Logger
}

// NewHistoryHandler creates a new history handler.
func NewHistoryHandler(svc *service.QueueService, logger *slog.Logger) *HistoryHandler {
	return &HistoryHandler{
		svc:    svc,
		logger: logger,
	}
}

// HistoryResponse is a page of job outcomes.
type HistoryResponse struct {
	Outcomes []domain.JobOutcome `json:"outcomes"`
	Total    int                 `json:"total"`
	Limit    int                 `json:"limit"`
	Offset   int                 `json:"offset"`
}

// List handles GET /api/v1/history?limit=&offset=.
func (h *HistoryHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50, 1)
	if limit > 500 {
		limit = 500
	}
	offset := queryInt(r, "offset", 0, 0)

	outcomes, total, err := h.svc.History(r.Context(), limit, offset)
	if err != nil {
		h.logger.Error("failed to list history", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list history")
		return
	}

	writeJSON(w, http.StatusOK, HistoryResponse{
		Outcomes: outcomes,
		Total:    total,
		Limit:    limit,
		Offset:   offset,
	})
}
