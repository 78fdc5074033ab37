package worker

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/iconidentify/hlsgrabba/internal/domain"
	"github.com/iconidentify/hlsgrabba/pkg/ffmpeg"
)

func runWorker(t *testing.T, job *domain.Job, remuxer *fakeRemuxer, cfg Config) (Result, *recorder) {
	t.Helper()
	rec := &recorder{}
	w := New(job, remuxer, nil, rec, cfg, testLogger())
	return w.Run(context.Background()), rec
}

func assertFinishedLast(t *testing.T, rec *recorder, want domain.JobStatus) {
	t.Helper()
	events := rec.all()
	if len(events) < 2 {
		t.Fatalf("expected at least two events, got %d", len(events))
	}
	last := events[len(events)-1]
	if last.Type != domain.EventJobFinished {
		t.Errorf("last event = %s, want job_finished", last.Type)
	}
	final := events[len(events)-2]
	if final.Type != domain.EventItemUpdated || final.Update.Status == nil || *final.Update.Status != want {
		t.Fatalf("final update = %+v, want status %s", final, want)
	}
	if *final.Update.Speed != "" || *final.Update.ETA != "" {
		t.Errorf("final update should clear speed and eta: %+v", final.Update)
	}
	for _, e := range events[:len(events)-1] {
		if e.Type == domain.EventJobFinished {
			t.Error("job_finished emitted before the end of the run")
		}
	}
}

func TestWorker_AlwaysFailing_AttemptsMaxRetriesPlusOne(t *testing.T) {
	remuxer := &fakeRemuxer{
		duration: 120 * time.Second,
		process: func(ctx context.Context, attempt int) ffmpeg.Process {
			return exitProcess("progress=end\n", 1)
		},
	}

	result, rec := runWorker(t, testJob(2), remuxer, fastRetry)

	if remuxer.starts() != 3 {
		t.Errorf("starts = %d, want 3", remuxer.starts())
	}
	if result.Status != domain.JobStatusFailed || result.Attempts != 3 {
		t.Errorf("result = %+v", result)
	}
	if !domain.IsKind(result.Err, domain.KindProcessExit) {
		t.Errorf("err = %v, want process exit kind", result.Err)
	}

	var retryCounts []int
	for _, e := range rec.ofType(domain.EventItemUpdated) {
		if e.Update.RetryCount != nil {
			retryCounts = append(retryCounts, *e.Update.RetryCount)
		}
	}
	if !reflect.DeepEqual(retryCounts, []int{0, 1, 2}) {
		t.Errorf("retry counts = %v, want [0 1 2]", retryCounts)
	}

	var notices []string
	for _, e := range rec.ofType(domain.EventLog) {
		if strings.HasPrefix(e.Text, "Download failed. Retrying") {
			notices = append(notices, e.Text)
		}
	}
	want := []string{
		"Download failed. Retrying (1/2)... Error: ffmpeg exited with code 1",
		"Download failed. Retrying (2/2)... Error: ffmpeg exited with code 1",
	}
	if !reflect.DeepEqual(notices, want) {
		t.Errorf("retry notices = %q", notices)
	}

	assertFinishedLast(t, rec, domain.JobStatusFailed)
	events := rec.all()
	final := events[len(events)-2].Update
	if *final.ErrorMessage != "ffmpeg exited with code 1" {
		t.Errorf("final error = %q", *final.ErrorMessage)
	}
}

func TestWorker_ProgressFromStream(t *testing.T) {
	stream := strings.Join([]string{
		"out_time_us=60000000",
		"speed=2.0x",
		"progress=continue",
		"out_time_us=120000000",
		"speed=2.0x",
		"progress=end",
	}, "\n")
	remuxer := &fakeRemuxer{
		duration: 120 * time.Second,
		process: func(ctx context.Context, attempt int) ffmpeg.Process {
			return exitProcess(stream, 0)
		},
	}

	result, rec := runWorker(t, testJob(0), remuxer, fastRetry)
	if result.Status != domain.JobStatusCompleted || result.Err != nil {
		t.Fatalf("result = %+v", result)
	}

	var progress []domain.JobUpdate
	for _, e := range rec.ofType(domain.EventItemUpdated) {
		if e.Update.Status == nil {
			progress = append(progress, *e.Update)
		}
	}
	if len(progress) != 2 {
		t.Fatalf("got %d progress updates, want 2", len(progress))
	}
	first := progress[0]
	if *first.Progress != 50 || *first.Speed != "2.0x" || *first.ETA != "0m 30s" {
		t.Errorf("first update = progress %d speed %q eta %q", *first.Progress, *first.Speed, *first.ETA)
	}
	if *progress[1].Progress != 100 || *progress[1].ETA != ETAUnknown {
		t.Errorf("second update = progress %d eta %q", *progress[1].Progress, *progress[1].ETA)
	}

	assertFinishedLast(t, rec, domain.JobStatusCompleted)
	events := rec.all()
	if p := *events[len(events)-2].Update.Progress; p != 100 {
		t.Errorf("final progress = %d, want 100", p)
	}
}

func TestWorker_ProgressNeverDecreasesWithinAttempt(t *testing.T) {
	stream := "out_time_us=90000000\nprogress=continue\nout_time_us=30000000\nprogress=continue\nout_time_us=999000000\nprogress=end\n"
	remuxer := &fakeRemuxer{
		duration: 120 * time.Second,
		process: func(ctx context.Context, attempt int) ffmpeg.Process {
			return exitProcess(stream, 0)
		},
	}

	_, rec := runWorker(t, testJob(0), remuxer, fastRetry)

	last := -1
	for _, e := range rec.ofType(domain.EventItemUpdated) {
		if e.Update.Progress == nil {
			continue
		}
		p := *e.Update.Progress
		if p < 0 || p > 100 {
			t.Errorf("progress %d out of range", p)
		}
		if e.Update.Status != nil && *e.Update.Status == domain.JobStatusDownloading {
			last = p
			continue
		}
		if p < last {
			t.Errorf("progress decreased from %d to %d", last, p)
		}
		last = p
	}
}

func TestWorker_SucceedsOnRetry(t *testing.T) {
	remuxer := &fakeRemuxer{
		process: func(ctx context.Context, attempt int) ffmpeg.Process {
			if attempt == 0 {
				return exitProcess("", 1)
			}
			return exitProcess("progress=end\n", 0)
		},
	}

	result, rec := runWorker(t, testJob(3), remuxer, fastRetry)

	if result.Status != domain.JobStatusCompleted || result.Attempts != 2 {
		t.Errorf("result = %+v", result)
	}
	if remuxer.starts() != 2 {
		t.Errorf("starts = %d, want 2 (success ends the loop)", remuxer.starts())
	}
	events := rec.all()
	if msg := *events[len(events)-2].Update.ErrorMessage; msg != "" {
		t.Errorf("error message after success = %q", msg)
	}
}

func TestWorker_LaunchFailure(t *testing.T) {
	remuxer := &fakeRemuxer{startErr: errors.New("exec: \"ffmpeg\": executable file not found")}

	result, rec := runWorker(t, testJob(1), remuxer, fastRetry)

	if remuxer.starts() != 2 {
		t.Errorf("starts = %d, want 2", remuxer.starts())
	}
	if result.Status != domain.JobStatusFailed || !domain.IsKind(result.Err, domain.KindProcessLaunch) {
		t.Errorf("result = %+v", result)
	}
	assertFinishedLast(t, rec, domain.JobStatusFailed)
	events := rec.all()
	if msg := *events[len(events)-2].Update.ErrorMessage; !strings.Contains(msg, "executable file not found") {
		t.Errorf("final error = %q", msg)
	}
}

func TestWorker_ProbeFailureDegradesProgress(t *testing.T) {
	remuxer := &fakeRemuxer{
		probeErr: errors.New("ffprobe: exit status 1"),
		process: func(ctx context.Context, attempt int) ffmpeg.Process {
			return exitProcess("out_time_us=5000000\nspeed=1.0x\nprogress=end\n", 0)
		},
	}

	result, rec := runWorker(t, testJob(0), remuxer, fastRetry)
	if result.Status != domain.JobStatusCompleted {
		t.Fatalf("status = %s, probe failure should not fail the job", result.Status)
	}

	logs := rec.ofType(domain.EventLog)
	if len(logs) == 0 || !strings.HasPrefix(logs[0].Text, "Could not get duration") {
		t.Errorf("logs = %+v", logs)
	}

	for _, e := range rec.ofType(domain.EventItemUpdated) {
		if e.Update.Status == nil {
			if e.Update.Progress != nil {
				t.Errorf("progress reported without a known duration: %d", *e.Update.Progress)
			}
			if *e.Update.Speed != "1.0x" || *e.Update.ETA != ETAUnknown {
				t.Errorf("update = speed %q eta %q", *e.Update.Speed, *e.Update.ETA)
			}
		}
	}
}

func TestWorker_DiagnosticsLogged(t *testing.T) {
	remuxer := &fakeRemuxer{
		process: func(ctx context.Context, attempt int) ffmpeg.Process {
			p := exitProcess("progress=end\n", 0)
			p.diag = "Non-monotonous DTS"
			return p
		},
	}

	_, rec := runWorker(t, testJob(0), remuxer, fastRetry)

	logs := rec.ofType(domain.EventLog)
	if len(logs) != 1 {
		t.Fatalf("logs = %+v", logs)
	}
	want := "--- FFMPEG LOG ---\nNon-monotonous DTS\n--------------------"
	if logs[0].Text != want {
		t.Errorf("log = %q, want %q", logs[0].Text, want)
	}
}

func TestWorker_BuildsRequest(t *testing.T) {
	remuxer := &fakeRemuxer{
		process: func(ctx context.Context, attempt int) ffmpeg.Process {
			return exitProcess("progress=end\n", 0)
		},
	}
	job := testJob(0)
	job.CustomHeaders = map[string]string{"Referer": "https://example.com"}
	job.BandwidthLimitKBps = 750

	w := New(job, remuxer, staticProxy("http://proxy:3128"), &recorder{}, fastRetry, testLogger())
	w.Run(context.Background())

	want := ffmpeg.Request{
		URL:                job.URL,
		OutputPath:         job.OutputPath,
		Headers:            map[string]string{"Referer": "https://example.com"},
		Proxy:              "http://proxy:3128",
		BandwidthLimitKBps: 750,
	}
	if !reflect.DeepEqual(remuxer.requests[0], want) {
		t.Errorf("request = %+v, want %+v", remuxer.requests[0], want)
	}
}

func TestWorker_CancelWhileDownloading(t *testing.T) {
	remuxer := &fakeRemuxer{
		duration: time.Minute,
		started:  make(chan struct{}, 1),
		process: func(ctx context.Context, attempt int) ffmpeg.Process {
			return hangingProcess(ctx)
		},
	}
	rec := &recorder{}
	w := New(testJob(5), remuxer, nil, rec, Config{RetryBackoff: time.Millisecond}, testLogger())

	results := make(chan Result, 1)
	go func() { results <- w.Run(context.Background()) }()

	select {
	case <-remuxer.started:
	case <-time.After(5 * time.Second):
		t.Fatal("ffmpeg was never started")
	}
	w.RequestStop()

	var result Result
	select {
	case result = <-results:
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not stop")
	}

	if result.Status != domain.JobStatusCanceled || !domain.IsKind(result.Err, domain.KindCanceled) {
		t.Errorf("result = %+v", result)
	}
	if remuxer.starts() != 1 {
		t.Errorf("starts = %d, cancellation must pre-empt retries", remuxer.starts())
	}
	for _, s := range rec.statuses() {
		if s == domain.JobStatusCompleted || s == domain.JobStatusFailed {
			t.Errorf("canceled job reported status %s", s)
		}
	}
	assertFinishedLast(t, rec, domain.JobStatusCanceled)
}

func TestWorker_CancelDuringBackoff(t *testing.T) {
	remuxer := &fakeRemuxer{
		process: func(ctx context.Context, attempt int) ffmpeg.Process {
			return exitProcess("", 1)
		},
	}
	rec := &recorder{notify: make(chan domain.Event, 64)}
	w := New(testJob(3), remuxer, nil, rec, Config{RetryBackoff: time.Hour}, testLogger())

	results := make(chan Result, 1)
	go func() { results <- w.Run(context.Background()) }()

	deadline := time.After(5 * time.Second)
	for waiting := true; waiting; {
		select {
		case e := <-rec.notify:
			if e.Type == domain.EventLog && strings.HasPrefix(e.Text, "Download failed. Retrying") {
				waiting = false
			}
		case <-deadline:
			t.Fatal("worker never entered backoff")
		}
	}
	w.RequestStop()

	select {
	case result := <-results:
		if result.Status != domain.JobStatusCanceled {
			t.Errorf("status = %s, want CANCELED", result.Status)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("backoff was not interrupted")
	}
	if remuxer.starts() != 1 {
		t.Errorf("starts = %d, want 1", remuxer.starts())
	}
}

func TestWorker_StopBeforeRun(t *testing.T) {
	remuxer := &fakeRemuxer{}
	rec := &recorder{}
	w := New(testJob(2), remuxer, nil, rec, fastRetry, testLogger())

	w.RequestStop()
	result := w.Run(context.Background())

	if result.Status != domain.JobStatusCanceled || result.Attempts != 0 {
		t.Errorf("result = %+v", result)
	}
	if remuxer.starts() != 0 {
		t.Errorf("starts = %d, want 0", remuxer.starts())
	}
	if len(rec.all()) != 2 {
		t.Errorf("events = %d, want final update and job_finished only", len(rec.all()))
	}
	assertFinishedLast(t, rec, domain.JobStatusCanceled)
}

func TestWorker_DoesNotMutateCallerJob(t *testing.T) {
	remuxer := &fakeRemuxer{
		process: func(ctx context.Context, attempt int) ffmpeg.Process {
			return exitProcess("progress=end\n", 0)
		},
	}
	job := testJob(0)
	before := *job

	runWorker(t, job, remuxer, fastRetry)

	if job.Status != before.Status || job.Progress != before.Progress || job.RetryCount != before.RetryCount {
		t.Errorf("job was modified: %+v", job)
	}
}

func TestNew_RetryBackoffDefaults(t *testing.T) {
	tests := []struct {
		name    string
		backoff time.Duration
		want    time.Duration
	}{
		{"zero", 0, DefaultRetryBackoff},
		{"negative", -time.Second, DefaultRetryBackoff},
		{"explicit", 250 * time.Millisecond, 250 * time.Millisecond},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := New(testJob(0), &fakeRemuxer{}, nil, &recorder{}, Config{RetryBackoff: tt.backoff}, testLogger())
			if w.backoff != tt.want {
				t.Errorf("backoff = %v, want %v", w.backoff, tt.want)
			}
		})
	}
}
