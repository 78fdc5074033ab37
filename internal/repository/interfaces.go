package repository

import (
	"context"

	"github.com/iconidentify/hlsgrabba/internal/domain"
)

// JobQueue is the authoritative, ordered collection of jobs.
// Implementations return copies; callers never hold the stored job.
type JobQueue interface {
	// Add appends a job. Insertion order breaks priority ties.
	Add(ctx context.Context, job *domain.Job) error

	// Remove deletes a job by ID. Removing an unknown ID is not an error.
	Remove(ctx context.Context, id domain.JobID) error

	// Get retrieves a job by ID.
	Get(ctx context.Context, id domain.JobID) (*domain.Job, error)

	// List returns all jobs in insertion order.
	List(ctx context.Context) ([]*domain.Job, error)

	// SelectNext returns the queued job with the lowest priority rank,
	// earliest inserted first, without changing it.
	SelectNext(ctx context.Context) (*domain.Job, error)

	// Claim selects like SelectNext and marks the job DOWNLOADING in one step.
	Claim(ctx context.Context) (*domain.Job, error)

	// Apply merges a partial update into a stored job and returns the result.
	Apply(ctx context.Context, id domain.JobID, update domain.JobUpdate) (*domain.Job, error)

	// Requeue makes a finished job eligible for scheduling again.
	Requeue(ctx context.Context, id domain.JobID) error

	// Stats returns queue statistics.
	Stats(ctx context.Context) (*QueueStats, error)
}

// HistoryRepository stores the outcome of finished job runs.
type HistoryRepository interface {
	// Record appends a job outcome.
	Record(ctx context.Context, outcome domain.JobOutcome) error

	// List returns outcomes, newest first.
	List(ctx context.Context, limit, offset int) ([]domain.JobOutcome, error)

	// Count returns the number of stored outcomes.
	Count(ctx context.Context) (int, error)

	// Close releases the underlying storage.
	Close() error
}

// QueueStats contains job queue statistics.
type QueueStats struct {
	Queued      int `json:"queued"`
	Downloading int `json:"downloading"`
	Paused      int `json:"paused"`
	Completed   int `json:"completed"`
	Failed      int `json:"failed"`
	Canceled    int `json:"canceled"`
}

// Total returns the number of jobs counted.
func (s QueueStats) Total() int {
	return s.Queued + s.Downloading + s.Paused + s.Completed + s.Failed + s.Canceled
}
