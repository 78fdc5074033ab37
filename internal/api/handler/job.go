package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/iconidentify/hlsgrabba/internal/domain"
	"github.com/iconidentify/hlsgrabba/internal/service"
)

// JobHandler handles job HTTP requests.
type JobHandler struct {
	svc    *service.QueueService
	logger *slog.Logger
}

// NewJobHandler creates a new job handler.
func NewJobHandler(svc *service.QueueService, logger *slog.Logger) *JobHandler {
	return &JobHandler{
		svc:    svc,
		logger: logger,
	}
}

// JobResponse represents a job in API responses.
type JobResponse struct {
	ID                 string            `json:"id"`
	URL                string            `json:"url"`
	OutputPath         string            `json:"outputPath"`
	Quality            string            `json:"quality"`
	Priority           string            `json:"priority"`
	PriorityLabel      string            `json:"priorityLabel"`
	Status             string            `json:"status"`
	StatusLabel        string            `json:"statusLabel"`
	Progress           int               `json:"progress"`
	Speed              string            `json:"speed,omitempty"`
	ETA                string            `json:"eta,omitempty"`
	ErrorMessage       string            `json:"errorMessage,omitempty"`
	RetryCount         int               `json:"retryCount"`
	MaxRetries         int               `json:"maxRetries"`
	BandwidthLimitKBps int               `json:"bandwidthLimitKBps"`
	CustomHeaders      map[string]string `json:"customHeaders,omitempty"`
	CreatedAt          string            `json:"createdAt"`
	UpdatedAt          string            `json:"updatedAt"`
}

func toJobResponse(j *domain.Job) JobResponse {
	return JobResponse{
		ID:                 j.ID.String(),
		URL:                j.URL,
		OutputPath:         j.OutputPath,
		Quality:            j.Quality,
		Priority:           string(j.Priority),
		PriorityLabel:      j.Priority.Label(),
		Status:             string(j.Status),
		StatusLabel:        j.Status.Label(),
		Progress:           j.Progress,
		Speed:              j.Speed,
		ETA:                j.ETA,
		ErrorMessage:       j.ErrorMessage,
		RetryCount:         j.RetryCount,
		MaxRetries:         j.MaxRetries,
		BandwidthLimitKBps: j.BandwidthLimitKBps,
		CustomHeaders:      j.CustomHeaders,
		CreatedAt:          j.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:          j.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

// JobListResponse wraps the job array.
type JobListResponse struct {
	Jobs  []JobResponse `json:"jobs"`
	Total int           `json:"total"`
}

// Add handles POST /api/v1/jobs.
func (h *JobHandler) Add(w http.ResponseWriter, r *http.Request) {
	var req service.AddJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	job, err := h.svc.AddJob(r.Context(), req)
	if err != nil {
		h.fail(w, "failed to add job", "", err)
		return
	}

	writeJSON(w, http.StatusCreated, toJobResponse(job))
}

// List handles GET /api/v1/jobs. The optional status parameter filters by
// status name.
func (h *JobHandler) List(w http.ResponseWriter, r *http.Request) {
	var filter domain.JobStatus
	if s := r.URL.Query().Get("status"); s != "" {
		status, err := domain.ParseJobStatus(s)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		filter = status
	}

	jobs, err := h.svc.ListJobs(r.Context())
	if err != nil {
		h.fail(w, "failed to list jobs", "", err)
		return
	}

	resp := JobListResponse{Jobs: make([]JobResponse, 0, len(jobs))}
	for _, j := range jobs {
		if filter != "" && j.Status != filter {
			continue
		}
		resp.Jobs = append(resp.Jobs, toJobResponse(j))
	}
	resp.Total = len(resp.Jobs)

	writeJSON(w, http.StatusOK, resp)
}

// Get handles GET /api/v1/jobs/{jobID}.
func (h *JobHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := domain.JobID(chi.URLParam(r, "jobID"))

	job, err := h.svc.GetJob(r.Context(), id)
	if err != nil {
		h.fail(w, "failed to get job", id, err)
		return
	}

	writeJSON(w, http.StatusOK, toJobResponse(job))
}

// Delete handles DELETE /api/v1/jobs/{jobID}. A running job is stopped first.
func (h *JobHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := domain.JobID(chi.URLParam(r, "jobID"))

	if err := h.svc.RemoveJob(r.Context(), id); err != nil {
		h.fail(w, "failed to remove job", id, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Stop handles POST /api/v1/jobs/{jobID}/stop.
func (h *JobHandler) Stop(w http.ResponseWriter, r *http.Request) {
	id := domain.JobID(chi.URLParam(r, "jobID"))

	if err := h.svc.StopJob(r.Context(), id); err != nil {
		h.fail(w, "failed to stop job", id, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "stopping"})
}

// Requeue handles POST /api/v1/jobs/{jobID}/requeue.
func (h *JobHandler) Requeue(w http.ResponseWriter, r *http.Request) {
	id := domain.JobID(chi.URLParam(r, "jobID"))

	job, err := h.svc.RequeueJob(r.Context(), id)
	if err != nil {
		h.fail(w, "failed to requeue job", id, err)
		return
	}

	writeJSON(w, http.StatusOK, toJobResponse(job))
}

func (h *JobHandler) fail(w http.ResponseWriter, msg string, id domain.JobID, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.Error(msg, "job_id", id, "error", err)
		writeError(w, status, msg)
		return
	}
	writeError(w, status, err.Error())
}
