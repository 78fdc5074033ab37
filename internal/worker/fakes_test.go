package worker

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/iconidentify/hlsgrabba/internal/domain"
	"github.com/iconidentify/hlsgrabba/pkg/ffmpeg"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fastRetry keeps retry tests from waiting the production backoff.
var fastRetry = Config{RetryBackoff: time.Millisecond}

// fakeProcess is a finished or blocking ffmpeg stand-in.
type fakeProcess struct {
	progress io.Reader
	wait     func() error
	diag     string
}

func (p *fakeProcess) Progress() io.Reader { return p.progress }
func (p *fakeProcess) Diagnostics() string { return p.diag }
func (p *fakeProcess) Wait() error {
	if p.wait == nil {
		return nil
	}
	return p.wait()
}

// exitProcess returns a process that prints stream and exits with code.
func exitProcess(stream string, code int) *fakeProcess {
	return &fakeProcess{
		progress: strings.NewReader(stream),
		wait: func() error {
			if code != 0 {
				return &ffmpeg.ExitError{Code: code}
			}
			return nil
		},
	}
}

// hangingProcess produces no output until ctx is canceled, then exits 255.
func hangingProcess(ctx context.Context) *fakeProcess {
	pr, pw := io.Pipe()
	go func() {
		<-ctx.Done()
		pw.Close()
	}()
	return &fakeProcess{
		progress: pr,
		wait: func() error {
			<-ctx.Done()
			return &ffmpeg.ExitError{Code: 255}
		},
	}
}

type fakeRemuxer struct {
	mu       sync.Mutex
	duration time.Duration
	probeErr error
	startErr error
	requests []ffmpeg.Request
	started  chan struct{}

	// process builds the process for the given zero-based attempt.
	process func(ctx context.Context, attempt int) ffmpeg.Process
}

func (f *fakeRemuxer) ProbeDuration(ctx context.Context, url string) (time.Duration, error) {
	return f.duration, f.probeErr
}

func (f *fakeRemuxer) Start(ctx context.Context, req ffmpeg.Request) (ffmpeg.Process, error) {
	f.mu.Lock()
	attempt := len(f.requests)
	f.requests = append(f.requests, req)
	f.mu.Unlock()

	if f.started != nil {
		select {
		case f.started <- struct{}{}:
		default:
		}
	}
	if f.startErr != nil {
		return nil, f.startErr
	}
	return f.process(ctx, attempt), nil
}

func (f *fakeRemuxer) starts() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

type staticProxy string

func (p staticProxy) ResolveProxy(string) string { return string(p) }

// recorder collects emitted events.
type recorder struct {
	mu     sync.Mutex
	events []domain.Event
	notify chan domain.Event
}

func (r *recorder) Emit(e domain.Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
	if r.notify != nil {
		select {
		case r.notify <- e:
		default:
		}
	}
}

func (r *recorder) all() []domain.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.Event(nil), r.events...)
}

func (r *recorder) ofType(t domain.EventType) []domain.Event {
	var out []domain.Event
	for _, e := range r.all() {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

// statuses returns every status carried by an update, in order.
func (r *recorder) statuses() []domain.JobStatus {
	var out []domain.JobStatus
	for _, e := range r.ofType(domain.EventItemUpdated) {
		if e.Update.Status != nil {
			out = append(out, *e.Update.Status)
		}
	}
	return out
}

func testJob(maxRetries int) *domain.Job {
	job := domain.NewJob("https://cdn.example.com/show/master.m3u8", "/downloads/master.mp4")
	job.MaxRetries = maxRetries
	job.MarkDownloading()
	return job
}
