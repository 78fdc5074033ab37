package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/iconidentify/hlsgrabba/internal/domain"
	"github.com/iconidentify/hlsgrabba/internal/repository"
)

// ErrShutdownTimeout is returned when workers don't stop within timeout.
var ErrShutdownTimeout = errors.New("scheduler shutdown timed out")

// Runner runs one job to completion.
type Runner interface {
	Run(ctx context.Context) Result
	RequestStop()
}

// RunnerFactory creates the runner for a claimed job. Events emitted by the
// runner go to events.
type RunnerFactory func(job *domain.Job, events domain.EventEmitter) Runner

// SchedulerConfig holds scheduler configuration.
type SchedulerConfig struct {
	// Concurrency returns the number of jobs that may run at once. It is
	// consulted before every claim so setting changes apply to a running queue.
	Concurrency func() int
}

// FinishFunc is called after a scheduler run ends. stopped reports whether
// the run ended because Stop was called rather than because the queue drained.
type FinishFunc func(stopped bool)

// Scheduler claims queued jobs by priority and runs them until the queue has
// nothing left to run or Stop is called.
type Scheduler struct {
	queue     repository.JobQueue
	newRunner RunnerFactory
	events    domain.EventEmitter
	cfg       SchedulerConfig
	logger    *slog.Logger
	onFinish  FinishFunc

	mu      sync.Mutex
	running bool
	stopped bool
	cancel  context.CancelFunc
	done    chan struct{}
	active  map[domain.JobID]Runner

	wake chan struct{}
}

// NewScheduler creates an idle scheduler.
func NewScheduler(
	cfg SchedulerConfig,
	queue repository.JobQueue,
	newRunner RunnerFactory,
	events domain.EventEmitter,
	logger *slog.Logger,
) *Scheduler {
	if cfg.Concurrency == nil {
		cfg.Concurrency = func() int { return 1 }
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		queue:     queue,
		newRunner: newRunner,
		events:    events,
		cfg:       cfg,
		logger:    logger,
		active:    make(map[domain.JobID]Runner),
		wake:      make(chan struct{}, 1),
	}
}

// OnFinish registers a callback run at the end of every scheduler run.
func (s *Scheduler) OnFinish(fn FinishFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onFinish = fn
}

// Start begins processing the queue in the background.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return domain.ErrQueueRunning
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	s.running = true
	s.stopped = false
	s.cancel = cancel
	s.done = done
	s.mu.Unlock()

	s.logger.Info("starting scheduler")
	s.emit(domain.QueueEvent(domain.EventQueueStarted, "Queue started."))

	go s.loop(ctx, done)
	return nil
}

// Stop cancels every running job and waits up to timeout for the run to end.
func (s *Scheduler) Stop(timeout time.Duration) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return domain.ErrQueueNotRunning
	}
	s.logger.Info("stopping scheduler")
	s.stopped = true
	s.cancel()
	for _, r := range s.active {
		r.RequestStop()
	}
	done := s.done
	s.mu.Unlock()

	select {
	case <-done:
		s.logger.Info("scheduler stopped gracefully")
		return nil
	case <-time.After(timeout):
		return ErrShutdownTimeout
	}
}

// Wait blocks until the current run ends. It returns immediately when idle.
func (s *Scheduler) Wait() {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()
	if done != nil {
		<-done
	}
}

// Wake makes a running scheduler look for claimable jobs without waiting
// for an active job to finish. Call it after adding jobs or raising the
// concurrency limit.
func (s *Scheduler) Wake() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Running reports whether a run is in progress.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Active returns the IDs of the jobs currently running.
func (s *Scheduler) Active() []domain.JobID {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]domain.JobID, 0, len(s.active))
	for id := range s.active {
		ids = append(ids, id)
	}
	return ids
}

// StopJob cancels one running job. It reports whether the job was running.
func (s *Scheduler) StopJob(id domain.JobID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.active[id]
	if ok {
		r.RequestStop()
	}
	return ok
}

func (s *Scheduler) limit() int {
	n := s.cfg.Concurrency()
	if n < 1 {
		return 1
	}
	return n
}

func (s *Scheduler) loop(ctx context.Context, done chan struct{}) {
	finished := make(chan domain.JobID)
	running := 0

	for ctx.Err() == nil {
		if running < s.limit() {
			job, err := s.queue.Claim(ctx)
			if err == nil {
				running++
				s.launch(ctx, job, finished)
				continue
			}
			if !errors.Is(err, domain.ErrNoJobs) {
				s.logger.Error("failed to claim job", "error", err)
			}
			if running == 0 {
				break
			}
		}

		select {
		case <-finished:
			running--
		case <-s.wake:
		case <-ctx.Done():
		}
	}

	for running > 0 {
		<-finished
		running--
	}

	s.mu.Lock()
	stopped := s.stopped
	onFinish := s.onFinish
	s.mu.Unlock()

	text := "Queue finished."
	if stopped {
		text = "Queue stopped."
	}
	s.logger.Info("scheduler run ended", "stopped", stopped)
	s.emit(domain.QueueEvent(domain.EventQueueFinished, text))

	// Running stays true until onFinish returns.
	if onFinish != nil {
		onFinish(stopped)
	}

	s.mu.Lock()
	s.running = false
	s.cancel()
	s.mu.Unlock()
	close(done)
}

func (s *Scheduler) launch(ctx context.Context, job *domain.Job, finished chan<- domain.JobID) {
	r := s.newRunner(job, s.events)

	s.mu.Lock()
	s.active[job.ID] = r
	s.mu.Unlock()

	logger := s.logger.With("job_id", job.ID, "priority", job.Priority)

	// A job removed between Claim and registration above was not seen by
	// StopJob. Registration happens first, so any later removal is.
	if _, err := s.queue.Get(ctx, job.ID); errors.Is(err, domain.ErrJobNotFound) {
		logger.Info("job removed before it started")
		r.RequestStop()
	}
	logger.Info("running job")

	go func() {
		result := r.Run(ctx)
		logger.Info("job run ended", "status", result.Status, "attempts", result.Attempts)

		s.mu.Lock()
		delete(s.active, job.ID)
		s.mu.Unlock()

		finished <- job.ID
	}()
}

func (s *Scheduler) emit(e domain.Event) {
	if s.events != nil {
		s.events.Emit(e)
	}
}
