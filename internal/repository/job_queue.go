package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/iconidentify/hlsgrabba/internal/domain"
	"github.com/iconidentify/hlsgrabba/internal/platform"
)

// InMemoryJobQueue implements JobQueue in memory and persists to a JSON file
// on explicit Save.
type InMemoryJobQueue struct {
	mu     sync.RWMutex
	jobs   []*domain.Job // insertion order
	logger *slog.Logger
}

// NewInMemoryJobQueue creates an empty job queue.
func NewInMemoryJobQueue(logger *slog.Logger) *InMemoryJobQueue {
	if logger == nil {
		logger = slog.Default()
	}
	return &InMemoryJobQueue{
		jobs:   make([]*domain.Job, 0),
		logger: logger,
	}
}

// Add appends a job to the queue.
func (q *InMemoryJobQueue) Add(ctx context.Context, job *domain.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.indexOf(job.ID) >= 0 {
		return fmt.Errorf("%w: %s", domain.ErrDuplicateJob, job.ID)
	}

	q.jobs = append(q.jobs, job.Clone())
	return nil
}

// Remove deletes a job by ID.
func (q *InMemoryJobQueue) Remove(ctx context.Context, id domain.JobID) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if i := q.indexOf(id); i >= 0 {
		q.jobs = append(q.jobs[:i], q.jobs[i+1:]...)
	}
	return nil
}

// Get retrieves a job by ID.
func (q *InMemoryJobQueue) Get(ctx context.Context, id domain.JobID) (*domain.Job, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	i := q.indexOf(id)
	if i < 0 {
		return nil, domain.ErrJobNotFound
	}
	return q.jobs[i].Clone(), nil
}

// List returns all jobs in insertion order.
func (q *InMemoryJobQueue) List(ctx context.Context) ([]*domain.Job, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	result := make([]*domain.Job, 0, len(q.jobs))
	for _, job := range q.jobs {
		result = append(result, job.Clone())
	}
	return result, nil
}

// SelectNext returns the next eligible job without mutating it.
func (q *InMemoryJobQueue) SelectNext(ctx context.Context) (*domain.Job, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	i := q.nextIndex()
	if i < 0 {
		return nil, domain.ErrNoJobs
	}
	return q.jobs[i].Clone(), nil
}

// Claim selects the next eligible job and marks it DOWNLOADING so that no
// other caller can select it.
func (q *InMemoryJobQueue) Claim(ctx context.Context) (*domain.Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	i := q.nextIndex()
	if i < 0 {
		return nil, domain.ErrNoJobs
	}
	q.jobs[i].MarkDownloading()
	return q.jobs[i].Clone(), nil
}

// Apply merges an update into the stored job.
func (q *InMemoryJobQueue) Apply(ctx context.Context, id domain.JobID, update domain.JobUpdate) (*domain.Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	i := q.indexOf(id)
	if i < 0 {
		return nil, domain.ErrJobNotFound
	}
	q.jobs[i].Apply(update)
	return q.jobs[i].Clone(), nil
}

// Requeue resets a job that is not downloading back to QUEUED.
func (q *InMemoryJobQueue) Requeue(ctx context.Context, id domain.JobID) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	i := q.indexOf(id)
	if i < 0 {
		return domain.ErrJobNotFound
	}
	if q.jobs[i].Status == domain.JobStatusDownloading {
		return domain.ErrJobActive
	}
	q.jobs[i].Requeue()
	return nil
}

// Stats returns queue statistics.
func (q *InMemoryJobQueue) Stats(ctx context.Context) (*QueueStats, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	stats := &QueueStats{}
	for _, job := range q.jobs {
		switch job.Status {
		case domain.JobStatusQueued:
			stats.Queued++
		case domain.JobStatusDownloading:
			stats.Downloading++
		case domain.JobStatusPaused:
			stats.Paused++
		case domain.JobStatusCompleted:
			stats.Completed++
		case domain.JobStatusFailed:
			stats.Failed++
		case domain.JobStatusCanceled:
			stats.Canceled++
		}
	}
	return stats, nil
}

// Save writes every job to path, replacing the file atomically.
func (q *InMemoryJobQueue) Save(path string) error {
	q.mu.RLock()
	records := make([]domain.Record, 0, len(q.jobs))
	for _, job := range q.jobs {
		records = append(records, job.Serialize())
	}
	q.mu.RUnlock()

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return domain.NewJobError("", domain.KindQueuePersistence, "encode queue", err)
	}

	if err := platform.WriteFileAtomic(path, data); err != nil {
		return domain.NewJobError("", domain.KindQueuePersistence, "save queue", err)
	}
	return nil
}

// Load replaces the queue contents with the jobs stored at path.
//
// A missing file leaves the queue empty. A file that is not a JSON array
// resets the queue to empty and is logged. Individual records that cannot be
// decoded are skipped and logged; the remaining records load. Jobs that were
// downloading when the file was written are queued again.
func (q *InMemoryJobQueue) Load(path string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.jobs = make([]*domain.Job, 0)

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return domain.NewJobError("", domain.KindQueuePersistence, "read queue", err)
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		q.logger.Error("queue file is malformed, starting with an empty queue",
			"path", path,
			"error", err,
		)
		return nil
	}

	for i, msg := range raw {
		var rec domain.Record
		if err := json.Unmarshal(msg, &rec); err != nil {
			q.logger.Warn("skipping unreadable queue record", "index", i, "error", err)
			continue
		}

		job, err := domain.Deserialize(rec)
		if err != nil {
			q.logger.Warn("skipping invalid queue record", "index", i, "id", rec.ID, "error", err)
			continue
		}

		if q.indexOf(job.ID) >= 0 {
			q.logger.Warn("skipping duplicate queue record", "index", i, "id", job.ID)
			continue
		}

		if job.Status == domain.JobStatusDownloading {
			job.Requeue()
		}

		q.jobs = append(q.jobs, job)
	}

	q.logger.Info("queue loaded", "path", path, "jobs", len(q.jobs), "records", len(raw))
	return nil
}

// nextIndex returns the index of the next eligible job or -1. Callers hold mu.
func (q *InMemoryJobQueue) nextIndex() int {
	best := -1
	for i, job := range q.jobs {
		if job.Status != domain.JobStatusQueued {
			continue
		}
		// Strict comparison keeps the earliest inserted job on ties.
		if best < 0 || job.Priority.Rank() < q.jobs[best].Priority.Rank() {
			best = i
		}
	}
	return best
}

// indexOf returns the position of id or -1. Callers hold mu.
func (q *InMemoryJobQueue) indexOf(id domain.JobID) int {
	for i, job := range q.jobs {
		if job.ID == id {
			return i
		}
	}
	return -1
}
