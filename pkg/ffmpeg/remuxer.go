package ffmpeg

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// ErrNoDuration is returned when ffprobe reports no usable duration.
var ErrNoDuration = errors.New("duration not available")

// ExitError reports a non-zero ffmpeg exit status.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("ffmpeg exited with code %d", e.Code)
}

// Options configures a Remuxer.
type Options struct {
	FFmpegPath   string
	FFprobePath  string
	ProbeTimeout time.Duration
	// StopGrace bounds how long ffmpeg may run after an interrupt before it is killed.
	StopGrace time.Duration
}

// Request describes one stream-copy remux.
type Request struct {
	URL                string
	OutputPath         string
	Headers            map[string]string
	Proxy              string
	BandwidthLimitKBps int
}

// Process is a running ffmpeg invocation.
type Process interface {
	// Progress is ffmpeg's machine-readable progress stream.
	Progress() io.Reader
	// Wait blocks until ffmpeg exits. A non-zero exit is an *ExitError.
	Wait() error
	// Diagnostics returns everything ffmpeg wrote to stderr. Valid after Wait.
	Diagnostics() string
}

// Remuxer runs ffmpeg and ffprobe.
type Remuxer struct {
	opts Options
}

// NewRemuxer creates a remuxer. Empty tool paths are looked up on PATH.
func NewRemuxer(opts Options) (*Remuxer, error) {
	if opts.FFmpegPath == "" {
		opts.FFmpegPath = "ffmpeg"
	}
	if opts.FFprobePath == "" {
		opts.FFprobePath = "ffprobe"
	}
	if opts.ProbeTimeout <= 0 {
		opts.ProbeTimeout = 30 * time.Second
	}
	if opts.StopGrace <= 0 {
		opts.StopGrace = 5 * time.Second
	}

	ffmpegPath, err := exec.LookPath(opts.FFmpegPath)
	if err != nil {
		return nil, fmt.Errorf("ffmpeg not found: %w", err)
	}
	ffprobePath, err := exec.LookPath(opts.FFprobePath)
	if err != nil {
		return nil, fmt.Errorf("ffprobe not found: %w", err)
	}
	opts.FFmpegPath = ffmpegPath
	opts.FFprobePath = ffprobePath

	return &Remuxer{opts: opts}, nil
}

// ProbeDuration asks ffprobe for the container duration of url.
func (r *Remuxer) ProbeDuration(ctx context.Context, url string) (time.Duration, error) {
	ctx, cancel := context.WithTimeout(ctx, r.opts.ProbeTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, r.opts.FFprobePath, ProbeArgs(url)...)
	output, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe: %w", err)
	}
	return ParseDuration(string(output))
}

// Start launches ffmpeg for req. Canceling ctx interrupts the process.
func (r *Remuxer) Start(ctx context.Context, req Request) (Process, error) {
	cmd := exec.CommandContext(ctx, r.opts.FFmpegPath, BuildArgs(req)...)
	cmd.Cancel = func() error {
		// An interrupt lets ffmpeg finalize the output container.
		if runtime.GOOS == "windows" {
			return cmd.Process.Kill()
		}
		return cmd.Process.Signal(os.Interrupt)
	}
	cmd.WaitDelay = r.opts.StopGrace

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	p := &process{cmd: cmd, progress: stdout}
	cmd.Stderr = &p.stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start ffmpeg: %w", err)
	}
	return p, nil
}

type process struct {
	cmd      *exec.Cmd
	progress io.Reader
	stderr   lockedBuffer
}

func (p *process) Progress() io.Reader {
	return p.progress
}

func (p *process) Wait() error {
	err := p.cmd.Wait()
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return &ExitError{Code: exitErr.ExitCode()}
	}
	return err
}

func (p *process) Diagnostics() string {
	return strings.TrimSpace(p.stderr.String())
}

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// ProbeArgs returns the ffprobe arguments that print only the duration in seconds.
func ProbeArgs(url string) []string {
	return []string{
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		url,
	}
}

// ParseDuration parses ffprobe's single-value duration output.
func ParseDuration(output string) (time.Duration, error) {
	s := strings.TrimSpace(output)
	if s == "" || s == "N/A" {
		return 0, ErrNoDuration
	}
	seconds, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration %q: %w", s, err)
	}
	if seconds <= 0 {
		return 0, ErrNoDuration
	}
	return time.Duration(seconds * float64(time.Second)), nil
}

// BuildArgs returns the ffmpeg arguments for a stream-copy remux with
// progress reported on stdout.
func BuildArgs(req Request) []string {
	args := []string{"-nostdin", "-hide_banner", "-loglevel", "error"}

	if req.Proxy != "" {
		args = append(args, "-http_proxy", req.Proxy)
	}
	if h := FormatHeaders(req.Headers); h != "" {
		args = append(args, "-headers", h)
	}

	args = append(args, "-i", req.URL)

	if req.BandwidthLimitKBps > 0 {
		args = append(args, "-limit_rate", fmt.Sprintf("%dK", req.BandwidthLimitKBps))
	}

	args = append(args,
		"-c", "copy",
		"-bsf:a", "aac_adtstoasc",
		req.OutputPath,
		"-y",
		"-progress", "pipe:1",
		"-nostats",
	)
	return args
}

// FormatHeaders renders headers as "Name: Value\r\n" lines sorted by name.
func FormatHeaders(headers map[string]string) string {
	if len(headers) == 0 {
		return ""
	}
	names := make([]string, 0, len(headers))
	for name := range headers {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		b.WriteString(name)
		b.WriteString(": ")
		b.WriteString(headers[name])
		b.WriteString("\r\n")
	}
	return b.String()
}

// Version returns the first line of `ffmpeg -version`.
func (r *Remuxer) Version(ctx context.Context) (string, error) {
	output, err := exec.CommandContext(ctx, r.opts.FFmpegPath, "-version").Output()
	if err != nil {
		return "", err
	}
	line, _, _ := strings.Cut(string(output), "\n")
	if line = strings.TrimSpace(line); line != "" {
		return line, nil
	}
	return "unknown", nil
}
