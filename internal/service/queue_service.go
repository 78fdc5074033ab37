package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/iconidentify/hlsgrabba/internal/config"
	"github.com/iconidentify/hlsgrabba/internal/domain"
	"github.com/iconidentify/hlsgrabba/internal/downloader"
	"github.com/iconidentify/hlsgrabba/internal/repository"
	"github.com/iconidentify/hlsgrabba/internal/worker"
)

// PersistentQueue is a JobQueue that can be written to and read from disk.
type PersistentQueue interface {
	repository.JobQueue
	Save(path string) error
	Load(path string) error
}

// SettingsSource provides the current user settings.
type SettingsSource interface {
	Get() config.Settings
}

// Notifier shows a desktop notification.
type Notifier interface {
	Notify(ctx context.Context, title, message string) error
}

// PowerActor performs a post-queue power action.
type PowerActor interface {
	Perform(ctx context.Context, action string) error
}

// QueueServiceConfig configures the queue service.
type QueueServiceConfig struct {
	// QueuePath is the JSON file the queue is saved to.
	QueuePath string

	// OutputDir is where jobs without an output path are written.
	OutputDir string

	// StopTimeout bounds how long Stop waits for active jobs to exit.
	StopTimeout time.Duration
}

// AddJobRequest describes a job to add. Zero values take defaults.
type AddJobRequest struct {
	URL                string            `json:"url"`
	OutputPath         string            `json:"outputPath,omitempty"`
	Quality            string            `json:"quality,omitempty"`
	Priority           string            `json:"priority,omitempty"`
	CustomHeaders      map[string]string `json:"customHeaders,omitempty"`
	BandwidthLimitKBps *int              `json:"bandwidthLimitKBps,omitempty"`
	MaxRetries         *int              `json:"maxRetries,omitempty"`
}

// QueueStatus is a snapshot of the scheduler and queue.
type QueueStatus struct {
	Running     bool                  `json:"running"`
	Active      []domain.JobID        `json:"active"`
	Concurrency int                   `json:"concurrency"`
	Stats       repository.QueueStats `json:"stats"`
}

// QueueService is the single owner of job state. Commands from the
// presentation layer and events from workers both pass through it; it
// applies every job update to the queue before publishing the event.
type QueueService struct {
	cfg       QueueServiceConfig
	queue     PersistentQueue
	settings  SettingsSource
	events    domain.EventEmitter
	history   repository.HistoryRepository
	scheduler *worker.Scheduler
	logger    *slog.Logger

	notifier Notifier
	power    PowerActor

	// finishedInRun counts jobs that ended during the current scheduler run.
	finishedInRun atomic.Int64
}

// NewQueueService creates a queue service. history may be nil.
func NewQueueService(
	cfg QueueServiceConfig,
	queue PersistentQueue,
	settings SettingsSource,
	events domain.EventEmitter,
	history repository.HistoryRepository,
	newRunner worker.RunnerFactory,
	logger *slog.Logger,
) *QueueService {
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &QueueService{
		cfg:      cfg,
		queue:    queue,
		settings: settings,
		events:   events,
		history:  history,
		logger:   logger,
	}

	s.scheduler = worker.NewScheduler(
		worker.SchedulerConfig{Concurrency: s.concurrency},
		queue,
		newRunner,
		s,
		logger,
	)
	s.scheduler.OnFinish(s.onRunFinished)
	return s
}

// SetNotifier enables desktop notifications for finished jobs.
func (s *QueueService) SetNotifier(n Notifier) {
	s.notifier = n
}

// SetPowerActor enables the post-queue power action.
func (s *QueueService) SetPowerActor(p PowerActor) {
	s.power = p
}

func (s *QueueService) concurrency() int {
	return s.settings.Get().MaxConcurrentDownloads
}

// Emit applies job updates to the queue and publishes the event. Workers and
// the scheduler emit through it.
func (s *QueueService) Emit(event domain.Event) {
	switch event.Type {
	case domain.EventItemUpdated:
		if event.Update == nil {
			break
		}
		job, err := s.queue.Apply(context.Background(), event.JobID, *event.Update)
		if err != nil {
			// The job was removed while its run was ending.
			s.logger.Debug("update for unknown job", "job_id", event.JobID, "error", err)
			break
		}
		if event.Update.Status != nil && job.Status.IsTerminal() {
			s.jobEnded(job)
		}
	case domain.EventJobFinished:
		s.finishedInRun.Add(1)
	case domain.EventQueueStarted:
		s.finishedInRun.Store(0)
	}

	if s.events != nil {
		s.events.Emit(event)
	}
}

func (s *QueueService) jobEnded(job *domain.Job) {
	if s.history != nil {
		if err := s.history.Record(context.Background(), domain.NewJobOutcome(job)); err != nil {
			s.logger.Warn("failed to record job outcome", "job_id", job.ID, "error", err)
		}
	}

	if s.notifier == nil || !s.settings.Get().EnableNotifications {
		return
	}
	title, message := notification(job)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.notifier.Notify(ctx, title, message); err != nil {
			s.logger.Warn("notification failed", "job_id", job.ID, "error", err)
		}
	}()
}

// notification returns the title and message shown when job ends.
func notification(job *domain.Job) (string, string) {
	name := filepath.Base(job.OutputPath)
	switch job.Status {
	case domain.JobStatusCompleted:
		return "Download Completed", name + " has finished."
	case domain.JobStatusCanceled:
		return "Download Canceled", name + " was canceled."
	default:
		return "Download Failed", name + " has failed."
	}
}

func (s *QueueService) onRunFinished(stopped bool) {
	if err := s.Save(); err != nil {
		s.logger.Error("failed to save queue after run", "error", err)
	}

	if stopped || s.power == nil || s.finishedInRun.Load() == 0 {
		return
	}
	action := s.settings.Get().PostDownloadAction
	if action == config.PostActionNone {
		return
	}

	s.logger.Info("queue drained, performing post-download action", "action", action)
	if err := s.power.Perform(context.Background(), string(action)); err != nil {
		s.logger.Error("post-download action failed", "action", action, "error", err)
	}
}

// AddJob validates and queues a new job.
func (s *QueueService) AddJob(ctx context.Context, req AddJobRequest) (*domain.Job, error) {
	url := strings.TrimSpace(req.URL)
	if url == "" {
		return nil, domain.ErrEmptyURL
	}
	settings := s.settings.Get()

	outputPath := strings.TrimSpace(req.OutputPath)
	if outputPath == "" {
		outputPath = downloader.DefaultOutputPath(s.cfg.OutputDir, url)
	}

	job := domain.NewJob(url, outputPath)
	if req.Quality != "" {
		job.Quality = req.Quality
	}
	if req.Priority != "" {
		p, err := domain.ParsePriority(req.Priority)
		if err != nil {
			return nil, err
		}
		job.Priority = p
	}
	for k, v := range req.CustomHeaders {
		job.CustomHeaders[k] = v
	}

	job.MaxRetries = settings.JobRetries()
	if req.MaxRetries != nil {
		job.MaxRetries = *req.MaxRetries
	}
	job.BandwidthLimitKBps = settings.BandwidthLimitKBps
	if req.BandwidthLimitKBps != nil {
		job.BandwidthLimitKBps = *req.BandwidthLimitKBps
	}

	if err := job.Validate(); err != nil {
		return nil, err
	}
	if err := s.queue.Add(ctx, job); err != nil {
		return nil, fmt.Errorf("add job: %w", err)
	}

	s.logger.Info("job added",
		"job_id", job.ID,
		"url", job.URL,
		"output", job.OutputPath,
		"priority", job.Priority,
	)
	s.publish(domain.MembershipEvent(domain.EventJobAdded, job.ID))
	s.scheduler.Wake()
	return job.Clone(), nil
}

// RemoveJob deletes a job, stopping it first if it is running.
func (s *QueueService) RemoveJob(ctx context.Context, id domain.JobID) error {
	if _, err := s.queue.Get(ctx, id); err != nil {
		return err
	}
	// Remove before stopping: a job claimed but not yet registered with the
	// scheduler is stopped when it finds itself gone from the queue.
	if err := s.queue.Remove(ctx, id); err != nil {
		return fmt.Errorf("remove job: %w", err)
	}
	if s.scheduler.StopJob(id) {
		s.logger.Info("stopped running job on removal", "job_id", id)
	}

	s.logger.Info("job removed", "job_id", id)
	s.publish(domain.MembershipEvent(domain.EventJobRemoved, id))
	return nil
}

// StopJob cancels a running job without removing it.
func (s *QueueService) StopJob(ctx context.Context, id domain.JobID) error {
	if _, err := s.queue.Get(ctx, id); err != nil {
		return err
	}
	if !s.scheduler.StopJob(id) {
		return domain.ErrJobNotRunning
	}
	return nil
}

// RequeueJob puts a finished job back in the queue.
func (s *QueueService) RequeueJob(ctx context.Context, id domain.JobID) (*domain.Job, error) {
	if err := s.queue.Requeue(ctx, id); err != nil {
		return nil, err
	}
	job, err := s.queue.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	s.logger.Info("job requeued", "job_id", id)
	s.publish(domain.ItemUpdated(id, domain.JobUpdate{}.
		WithStatus(domain.JobStatusQueued).
		WithProgress(0).
		WithError("").
		WithSpeed("").
		WithETA("").
		WithRetryCount(0)))
	s.scheduler.Wake()
	return job, nil
}

// GetJob returns a copy of one job.
func (s *QueueService) GetJob(ctx context.Context, id domain.JobID) (*domain.Job, error) {
	return s.queue.Get(ctx, id)
}

// ListJobs returns copies of all jobs in insertion order.
func (s *QueueService) ListJobs(ctx context.Context) ([]*domain.Job, error) {
	return s.queue.List(ctx)
}

// Status returns a snapshot of the scheduler and queue.
func (s *QueueService) Status(ctx context.Context) (*QueueStatus, error) {
	stats, err := s.queue.Stats(ctx)
	if err != nil {
		return nil, err
	}
	return &QueueStatus{
		Running:     s.scheduler.Running(),
		Active:      s.scheduler.Active(),
		Concurrency: s.concurrency(),
		Stats:       *stats,
	}, nil
}

// Start begins processing queued jobs.
func (s *QueueService) Start() error {
	return s.scheduler.Start()
}

// Stop cancels every running job and waits for the run to end.
func (s *QueueService) Stop() error {
	return s.scheduler.Stop(s.cfg.StopTimeout)
}

// Running reports whether the queue is being processed.
func (s *QueueService) Running() bool {
	return s.scheduler.Running()
}

// Wait blocks until the current run ends.
func (s *QueueService) Wait() {
	s.scheduler.Wait()
}

// SettingsChanged lets a running queue pick up a new concurrency limit.
func (s *QueueService) SettingsChanged() {
	s.scheduler.Wake()
}

// Save writes the queue to disk.
func (s *QueueService) Save() error {
	if s.cfg.QueuePath == "" {
		return nil
	}
	if err := s.queue.Save(s.cfg.QueuePath); err != nil {
		return err
	}
	s.logger.Debug("queue saved", "path", s.cfg.QueuePath)
	return nil
}

// Load replaces the queue with the saved one.
func (s *QueueService) Load() error {
	if s.cfg.QueuePath == "" {
		return nil
	}
	if s.scheduler.Running() {
		return domain.ErrQueueRunning
	}
	return s.queue.Load(s.cfg.QueuePath)
}

// History returns finished job outcomes, newest first.
func (s *QueueService) History(ctx context.Context, limit, offset int) ([]domain.JobOutcome, int, error) {
	if s.history == nil {
		return []domain.JobOutcome{}, 0, nil
	}
	outcomes, err := s.history.List(ctx, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list history: %w", err)
	}
	total, err := s.history.Count(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("count history: %w", err)
	}
	return outcomes, total, nil
}

// Shutdown stops a running queue and saves it.
func (s *QueueService) Shutdown() error {
	var errs []error
	if s.scheduler.Running() {
		if err := s.Stop(); err != nil && !errors.Is(err, domain.ErrQueueNotRunning) {
			errs = append(errs, fmt.Errorf("stop queue: %w", err))
		}
	}
	if err := s.Save(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (s *QueueService) publish(event domain.Event) {
	if s.events != nil {
		s.events.Emit(event)
	}
}
