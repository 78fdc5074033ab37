package handler

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/iconidentify/hlsgrabba/internal/config"
	"github.com/iconidentify/hlsgrabba/internal/domain"
	"github.com/iconidentify/hlsgrabba/internal/downloader"
	"github.com/iconidentify/hlsgrabba/internal/repository"
	"github.com/iconidentify/hlsgrabba/internal/service"
	"github.com/iconidentify/hlsgrabba/internal/worker"
)

// testLogger returns a silent logger for tests.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// mockQueueStats is a test implementation of QueueStatsSource.
type mockQueueStats struct {
	stats    *repository.QueueStats
	statsErr error
}

func (m *mockQueueStats) Stats(ctx context.Context) (*repository.QueueStats, error) {
	if m.statsErr != nil {
		return nil, m.statsErr
	}
	return m.stats, nil
}

// stubRunner finishes a job immediately, or waits for a stop when hold is set.
type stubRunner struct {
	job    *domain.Job
	events domain.EventEmitter
	hold   bool

	once sync.Once
	stop chan struct{}
}

func (r *stubRunner) Run(ctx context.Context) worker.Result {
	r.events.Emit(domain.ItemUpdated(r.job.ID, domain.JobUpdate{}.WithStatus(domain.JobStatusDownloading)))
	status := domain.JobStatusCompleted
	if r.hold {
		select {
		case <-r.stop:
		case <-ctx.Done():
		}
		status = domain.JobStatusCanceled
	}
	r.events.Emit(domain.ItemUpdated(r.job.ID, domain.JobUpdate{}.WithStatus(status).WithProgress(100)))
	r.events.Emit(domain.JobFinished(r.job.ID))
	return worker.Result{Status: status, Attempts: 1}
}

func (r *stubRunner) RequestStop() {
	r.once.Do(func() { close(r.stop) })
}

type testEnv struct {
	queue    *repository.InMemoryJobQueue
	events   *service.EventService
	settings *config.SettingsStore
	svc      *service.QueueService
	dir      string
}

// newTestEnv wires a queue service whose jobs finish at once, or block until
// stopped when hold is true.
func newTestEnv(t *testing.T, hold bool) *testEnv {
	t.Helper()
	dir := t.TempDir()

	events, err := service.NewEventService(service.DefaultEventServiceConfig(), testLogger())
	if err != nil {
		t.Fatalf("NewEventService() error = %v", err)
	}
	t.Cleanup(func() { events.Close() })

	settings := config.NewSettingsStore(filepath.Join(dir, "settings.json"), testLogger())
	queue := repository.NewInMemoryJobQueue(testLogger())

	factory := func(job *domain.Job, events domain.EventEmitter) worker.Runner {
		return &stubRunner{job: job, events: events, hold: hold, stop: make(chan struct{})}
	}

	svc := service.NewQueueService(service.QueueServiceConfig{
		QueuePath:   filepath.Join(dir, "queue.json"),
		OutputDir:   filepath.Join(dir, "out"),
		StopTimeout: 5 * time.Second,
	}, queue, settings, events, nil, factory, testLogger())

	t.Cleanup(func() {
		if svc.Running() {
			svc.Stop()
		}
	})

	return &testEnv{queue: queue, events: events, settings: settings, svc: svc, dir: dir}
}

func (e *testEnv) addJob(t *testing.T, url string) *domain.Job {
	t.Helper()
	job, err := e.svc.AddJob(context.Background(), service.AddJobRequest{URL: url})
	if err != nil {
		t.Fatalf("AddJob() error = %v", err)
	}
	return job
}

// fakeLister is a test implementation of QualityLister.
type fakeLister struct {
	qualities []downloader.Quality
	err       error
	gotURL    string
}

func (f *fakeLister) Discover(ctx context.Context, playlistURL string, headers map[string]string) ([]downloader.Quality, error) {
	f.gotURL = playlistURL
	return f.qualities, f.err
}
