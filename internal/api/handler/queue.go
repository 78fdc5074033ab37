package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/iconidentify/hlsgrabba/internal/domain"
	"github.com/iconidentify/hlsgrabba/internal/service"
	"github.com/iconidentify/hlsgrabba/internal/worker"
)

// QueueHandler handles queue control requests.
type QueueHandler struct {
	svc    *service.QueueService
	logger *slog.Logger
}

// NewQueueHandler creates a new queue handler.
func NewQueueHandler(svc *service.QueueService, logger *slog.Logger) *QueueHandler {
	return &QueueHandler{
		svc:    svc,
		logger: logger,
	}
}

// Start handles POST /api/v1/queue/start.
func (h *QueueHandler) Start(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Start(); err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	h.writeStatus(w, r, http.StatusAccepted)
}

// Stop handles POST /api/v1/queue/stop. It returns once active jobs have
// exited or the stop timeout passed.
func (h *QueueHandler) Stop(w http.ResponseWriter, r *http.Request) {
	err := h.svc.Stop()
	switch {
	case err == nil:
	case errors.Is(err, worker.ErrShutdownTimeout):
		h.logger.Warn("queue stop timed out")
		writeError(w, http.StatusGatewayTimeout, err.Error())
		return
	case errors.Is(err, domain.ErrQueueNotRunning):
		writeError(w, http.StatusConflict, err.Error())
		return
	default:
		h.logger.Error("failed to stop queue", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to stop queue")
		return
	}
	h.writeStatus(w, r, http.StatusOK)
}

// Status handles GET /api/v1/queue/status.
func (h *QueueHandler) Status(w http.ResponseWriter, r *http.Request) {
	h.writeStatus(w, r, http.StatusOK)
}

// Save handles POST /api/v1/queue/save.
func (h *QueueHandler) Save(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Save(); err != nil {
		h.logger.Error("failed to save queue", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to save queue")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "saved"})
}

func (h *QueueHandler) writeStatus(w http.ResponseWriter, r *http.Request, code int) {
	status, err := h.svc.Status(r.Context())
	if err != nil {
		h.logger.Error("failed to get queue status", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get queue status")
		return
	}
	writeJSON(w, code, status)
}
