package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/iconidentify/hlsgrabba/internal/domain"
)

// ErrorResponse is the JSON body of every error reply.
type ErrorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrJobNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrEmptyURL),
		errors.Is(err, domain.ErrEmptyOutputPath),
		errors.Is(err, domain.ErrInvalidPriority),
		errors.Is(err, domain.ErrInvalidStatus),
		errors.Is(err, domain.ErrInvalidJob),
		errors.Is(err, domain.ErrInvalidSettings):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrDuplicateJob),
		errors.Is(err, domain.ErrJobActive),
		errors.Is(err, domain.ErrJobNotRunning),
		errors.Is(err, domain.ErrQueueRunning),
		errors.Is(err, domain.ErrQueueNotRunning):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// queryInt returns the named query parameter if it parses to a value >= min.
func queryInt(r *http.Request, name string, def, min int) int {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < min {
		return def
	}
	return n
}
