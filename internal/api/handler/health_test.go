package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/iconidentify/hlsgrabba/internal/repository"
)

func TestHealthHandler_Live(t *testing.T) {
	handler := NewHealthHandler(&mockQueueStats{stats: &repository.QueueStats{}}, t.TempDir())

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()

	handler.Live(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}

	contentType := w.Header().Get("Content-Type")
	if contentType != "application/json" {
		t.Errorf("Content-Type = %q, want %q", contentType, "application/json")
	}

	var resp HealthResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if resp.Status != "ok" {
		t.Errorf("status = %q, want %q", resp.Status, "ok")
	}
	if resp.Timestamp == "" {
		t.Error("timestamp should not be empty")
	}
}

func TestHealthHandler_Ready_Success(t *testing.T) {
	stats := &mockQueueStats{stats: &repository.QueueStats{
		Queued:      5,
		Downloading: 2,
		Completed:   100,
		Failed:      3,
	}}
	handler := NewHealthHandler(stats, t.TempDir())

	req := httptest.NewRequest(http.MethodGet, "/ready", nil)
	w := httptest.NewRecorder()

	handler.Ready(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var resp HealthResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if resp.Queue == nil {
		t.Fatal("queue stats should not be nil")
	}
	if resp.Queue.Queued != 5 {
		t.Errorf("queued = %d, want %d", resp.Queue.Queued, 5)
	}
	if resp.Queue.Downloading != 2 {
		t.Errorf("downloading = %d, want %d", resp.Queue.Downloading, 2)
	}
	if resp.Queue.Completed != 100 {
		t.Errorf("completed = %d, want %d", resp.Queue.Completed, 100)
	}
	if resp.Queue.Failed != 3 {
		t.Errorf("failed = %d, want %d", resp.Queue.Failed, 3)
	}
}

func TestHealthHandler_Ready_Error(t *testing.T) {
	handler := NewHealthHandler(&mockQueueStats{statsErr: errors.New("queue unavailable")}, t.TempDir())

	req := httptest.NewRequest(http.MethodGet, "/ready", nil)
	w := httptest.NewRecorder()

	handler.Ready(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", w.Code, http.StatusServiceUnavailable)
	}

	var resp HealthResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Status != "error" {
		t.Errorf("status = %q, want %q", resp.Status, "error")
	}
}

func TestHealthHandler_Stats(t *testing.T) {
	dir := t.TempDir()
	handler := NewHealthHandler(&mockQueueStats{stats: &repository.QueueStats{}}, dir)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil)
	w := httptest.NewRecorder()

	handler.Stats(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var stats SystemStats
	if err := json.NewDecoder(w.Body).Decode(&stats); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if stats.OutputDir != dir {
		t.Errorf("output dir = %q, want %q", stats.OutputDir, dir)
	}
	if stats.DiskFreeBytes <= 0 {
		t.Errorf("disk free = %d, want > 0", stats.DiskFreeBytes)
	}
	if stats.NumCPU <= 0 {
		t.Errorf("num cpu = %d, want > 0", stats.NumCPU)
	}
}

func TestFormatUptime(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{5 * time.Minute, "5m"},
		{2*time.Hour + 3*time.Minute, "2h 3m"},
		{50*time.Hour + 10*time.Minute, "2d 2h 10m"},
	}

	for _, tt := range tests {
		if got := formatUptime(tt.d); got != tt.want {
			t.Errorf("formatUptime(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}
