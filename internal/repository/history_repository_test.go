package repository

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/iconidentify/hlsgrabba/internal/domain"
)

func TestSQLiteHistoryRepository(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db", "history.db")
	repo, err := NewSQLiteHistoryRepository(path)
	if err != nil {
		t.Fatalf("NewSQLiteHistoryRepository failed: %v", err)
	}
	defer repo.Close()

	ctx := context.Background()

	n, err := repo.Count(ctx)
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if n != 0 {
		t.Errorf("Count = %d, want 0", n)
	}

	first := domain.JobOutcome{
		JobID:      "job-1",
		URL:        "https://a/1.m3u8",
		OutputPath: "/o/1.mp4",
		Quality:    "720p",
		Priority:   domain.PriorityHigh,
		Status:     domain.JobStatusCompleted,
		Attempts:   1,
		FinishedAt: time.Now().Add(-time.Minute),
	}
	second := domain.JobOutcome{
		JobID:        "job-2",
		URL:          "https://a/2.m3u8",
		OutputPath:   "/o/2.mp4",
		Priority:     domain.PriorityNormal,
		Status:       domain.JobStatusFailed,
		Attempts:     3,
		ErrorMessage: "ffmpeg exited with code 1",
		FinishedAt:   time.Now(),
	}

	if err := repo.Record(ctx, first); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if err := repo.Record(ctx, second); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	outcomes, err := repo.List(ctx, 10, 0)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(outcomes) != 2 {
		t.Fatalf("expected 2 outcomes, got %d", len(outcomes))
	}
	if outcomes[0].JobID != "job-2" {
		t.Errorf("newest first: got %s", outcomes[0].JobID)
	}
	if outcomes[0].Status != domain.JobStatusFailed || outcomes[0].Attempts != 3 {
		t.Errorf("outcome = %+v", outcomes[0])
	}
	if outcomes[0].ErrorMessage != "ffmpeg exited with code 1" {
		t.Errorf("ErrorMessage = %q", outcomes[0].ErrorMessage)
	}
	if outcomes[1].Quality != "720p" || outcomes[1].Priority != domain.PriorityHigh {
		t.Errorf("outcome = %+v", outcomes[1])
	}

	page, err := repo.List(ctx, 1, 1)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(page) != 1 || page[0].JobID != "job-1" {
		t.Errorf("page = %+v", page)
	}

	n, _ = repo.Count(ctx)
	if n != 2 {
		t.Errorf("Count = %d, want 2", n)
	}
}

func TestSQLiteHistoryRepository_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	ctx := context.Background()

	repo, err := NewSQLiteHistoryRepository(path)
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	repo.Record(ctx, domain.JobOutcome{JobID: "a", URL: "u", OutputPath: "o", Priority: domain.PriorityLow, Status: domain.JobStatusCanceled, Attempts: 1, FinishedAt: time.Now()})
	repo.Close()

	repo, err = NewSQLiteHistoryRepository(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer repo.Close()

	n, _ := repo.Count(ctx)
	if n != 1 {
		t.Errorf("Count = %d, want 1 after reopen", n)
	}
}
