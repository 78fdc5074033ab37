package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/iconidentify/hlsgrabba/internal/domain"
	"github.com/iconidentify/hlsgrabba/internal/downloader"
	"github.com/iconidentify/hlsgrabba/pkg/ffmpeg"
)

// DefaultRetryBackoff is the wait between attempts.
const DefaultRetryBackoff = 5 * time.Second

// Config holds worker configuration.
type Config struct {
	// RetryBackoff is the wait between attempts. Zero uses DefaultRetryBackoff.
	RetryBackoff time.Duration
}

// Result summarizes a finished job run.
type Result struct {
	Status   domain.JobStatus
	Attempts int
	Err      error
}

// Worker drives one job through its attempts. It works on a private copy of
// the job and reports every change as an event; it never writes to the queue.
type Worker struct {
	job     *domain.Job
	remuxer downloader.Remuxer
	proxy   downloader.ProxyResolver
	events  domain.EventEmitter
	backoff time.Duration
	logger  *slog.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	stopped bool
}

// New creates a worker for job. proxy may be nil.
func New(
	job *domain.Job,
	remuxer downloader.Remuxer,
	proxy downloader.ProxyResolver,
	events domain.EventEmitter,
	cfg Config,
	logger *slog.Logger,
) *Worker {
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = DefaultRetryBackoff
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		job:     job.Clone(),
		remuxer: remuxer,
		proxy:   proxy,
		events:  events,
		backoff: cfg.RetryBackoff,
		logger:  logger.With("job_id", job.ID),
	}
}

// JobID returns the ID of the job being run.
func (w *Worker) JobID() domain.JobID {
	return w.job.ID
}

// RequestStop cancels the run. A running ffmpeg is interrupted; the call
// does not wait for it to exit.
func (w *Worker) RequestStop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stopped = true
	if w.cancel != nil {
		w.cancel()
	}
}

// Run executes up to MaxRetries+1 attempts and returns when the job reaches
// a terminal status. The last two events emitted for the job are always the
// final ItemUpdated and JobFinished.
func (w *Worker) Run(ctx context.Context) Result {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	w.mu.Lock()
	w.cancel = cancel
	if w.stopped {
		cancel()
	}
	w.mu.Unlock()

	result := Result{Status: domain.JobStatusFailed}
	progress := 0
	errMsg := ""
	maxAttempts := w.job.MaxRetries + 1

	for attempt := 0; attempt < maxAttempts; attempt++ {
		if ctx.Err() != nil {
			result.Status = domain.JobStatusCanceled
			result.Err = domain.NewJobError(w.job.ID, domain.KindCanceled, "run", domain.ErrCanceled)
			break
		}

		result.Attempts = attempt + 1
		w.emit(domain.ItemUpdated(w.job.ID, domain.JobUpdate{}.
			WithStatus(domain.JobStatusDownloading).
			WithProgress(0).
			WithRetryCount(attempt)))

		status, last, err := w.attempt(ctx)
		progress = last

		if status == domain.JobStatusCanceled {
			result.Status = status
			result.Err = domain.NewJobError(w.job.ID, domain.KindCanceled, "run", domain.ErrCanceled)
			break
		}
		if status == domain.JobStatusCompleted {
			result.Status = status
			result.Err = nil
			progress = 100
			errMsg = ""
			break
		}

		result.Status = domain.JobStatusFailed
		result.Err = err
		errMsg = failureMessage(err)

		if attempt == maxAttempts-1 {
			w.logger.Error("job failed", "attempts", result.Attempts, "error", err)
			break
		}

		notice := fmt.Sprintf("Download failed. Retrying (%d/%d)... Error: %s", attempt+1, w.job.MaxRetries, errMsg)
		w.emit(domain.LogEvent(w.job.ID, notice))
		w.logger.Warn("attempt failed, will retry",
			"attempt", attempt+1,
			"max_retries", w.job.MaxRetries,
			"backoff", w.backoff,
			"error", err,
		)

		if downloader.Sleep(ctx, w.backoff) != nil {
			result.Status = domain.JobStatusCanceled
			result.Err = domain.NewJobError(w.job.ID, domain.KindCanceled, "backoff", domain.ErrCanceled)
			break
		}
	}

	w.emit(domain.ItemUpdated(w.job.ID, domain.JobUpdate{}.
		WithStatus(result.Status).
		WithProgress(progress).
		WithError(errMsg).
		WithSpeed("").
		WithETA("")))
	w.emit(domain.JobFinished(w.job.ID))

	w.logger.Info("job finished", "status", result.Status, "attempts", result.Attempts)
	return result
}

// attempt runs ffmpeg once. It returns COMPLETED, CANCELED or FAILED, the
// last progress reported, and the failure cause.
func (w *Worker) attempt(ctx context.Context) (domain.JobStatus, int, error) {
	total, err := w.remuxer.ProbeDuration(ctx, w.job.URL)
	if err != nil {
		if ctx.Err() != nil {
			return domain.JobStatusCanceled, 0, ctx.Err()
		}
		w.emit(domain.LogEvent(w.job.ID, fmt.Sprintf("Could not get duration: %v", err)))
		w.logger.Warn("duration lookup failed, progress unavailable",
			"error", domain.NewJobError(w.job.ID, domain.KindDurationProbe, "probe", err))
		total = 0
	}

	req := ffmpeg.Request{
		URL:                w.job.URL,
		OutputPath:         w.job.OutputPath,
		Headers:            w.job.CustomHeaders,
		BandwidthLimitKBps: w.job.BandwidthLimitKBps,
	}
	if w.proxy != nil {
		req.Proxy = w.proxy.ResolveProxy(w.job.URL)
	}

	proc, err := w.remuxer.Start(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			return domain.JobStatusCanceled, 0, ctx.Err()
		}
		return domain.JobStatusFailed, 0, domain.NewJobError(w.job.ID, domain.KindProcessLaunch, "start ffmpeg", err)
	}

	tracker := newProgressTracker(total)
	readErr := w.readProgress(ctx, proc, tracker)

	waitErr := proc.Wait()

	if diag := proc.Diagnostics(); diag != "" {
		w.emit(domain.LogEvent(w.job.ID, "--- FFMPEG LOG ---\n"+diag+"\n--------------------"))
	}

	if ctx.Err() != nil {
		return domain.JobStatusCanceled, tracker.Progress(), ctx.Err()
	}

	var exitErr *ffmpeg.ExitError
	switch {
	case waitErr == nil && readErr == nil:
		return domain.JobStatusCompleted, 100, nil
	case errors.As(waitErr, &exitErr):
		return domain.JobStatusFailed, tracker.Progress(), domain.NewJobError(w.job.ID, domain.KindProcessExit, "wait ffmpeg", waitErr)
	case waitErr != nil:
		return domain.JobStatusFailed, tracker.Progress(), domain.NewJobError(w.job.ID, domain.KindProcessLaunch, "wait ffmpeg", waitErr)
	default:
		return domain.JobStatusFailed, tracker.Progress(), domain.NewJobError(w.job.ID, domain.KindProcessLaunch, "read progress", readErr)
	}
}

// readProgress consumes the progress stream until progress=end, end of
// stream, or cancellation. Cancellation returns immediately even if the
// stream is blocked.
func (w *Worker) readProgress(ctx context.Context, proc ffmpeg.Process, tracker *progressTracker) error {
	samples := make(chan ffmpeg.Sample)
	scanErr := make(chan error, 1)
	done := make(chan struct{})
	defer close(done)

	go func() {
		scanner := ffmpeg.NewProgressScanner(proc.Progress())
		for scanner.Scan() {
			select {
			case samples <- scanner.Sample():
			case <-done:
				return
			}
		}
		scanErr <- scanner.Err()
		close(samples)
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case sample, ok := <-samples:
			if !ok {
				return <-scanErr
			}
			if u, ok := tracker.update(sample); ok {
				w.emit(domain.ItemUpdated(w.job.ID, u))
			}
			if sample.End {
				return nil
			}
		}
	}
}

func (w *Worker) emit(e domain.Event) {
	if w.events != nil {
		w.events.Emit(e)
	}
}

// failureMessage is the text shown to users for a failed attempt.
func failureMessage(err error) string {
	var exitErr *ffmpeg.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Error()
	}
	var jobErr *domain.JobError
	if errors.As(err, &jobErr) && jobErr.Err != nil {
		return jobErr.Err.Error()
	}
	if err != nil {
		return err.Error()
	}
	return ""
}

// NewFactory returns a RunnerFactory that builds Workers sharing one remuxer
// and proxy resolver.
func NewFactory(
	remuxer downloader.Remuxer,
	proxy downloader.ProxyResolver,
	cfg Config,
	logger *slog.Logger,
) RunnerFactory {
	return func(job *domain.Job, events domain.EventEmitter) Runner {
		return New(job, remuxer, proxy, events, cfg, logger)
	}
}
