package downloader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

// Fetch errors.
var (
	ErrAccessDenied = errors.New("access denied")
	ErrRateLimited  = errors.New("rate limited")
)

// DefaultUserAgent is sent when no other agent is configured.
const DefaultUserAgent = "Mozilla/5.0"

const maxPlaylistBytes = 10 << 20

// FetcherConfig configures an HTTPFetcher.
type FetcherConfig struct {
	Timeout   time.Duration
	UserAgent string
	Retry     RetryConfig
	Proxy     ProxyResolver
}

// HTTPFetcher fetches playlist documents over HTTP.
type HTTPFetcher struct {
	client    *http.Client
	userAgent string
	retry     RetryConfig
	logger    *slog.Logger
}

// NewHTTPFetcher creates a fetcher. The proxy resolver, if set, is consulted
// for every request.
func NewHTTPFetcher(cfg FetcherConfig, logger *slog.Logger) *HTTPFetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = DefaultRetryConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.Proxy != nil {
		resolver := cfg.Proxy
		transport.Proxy = func(r *http.Request) (*url.URL, error) {
			p := resolver.ResolveProxy(r.URL.String())
			if p == "" {
				return nil, nil
			}
			return url.Parse(p)
		}
	}

	return &HTTPFetcher{
		client: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: transport,
		},
		userAgent: cfg.UserAgent,
		retry:     cfg.Retry,
		logger:    logger,
	}
}

// Fetch downloads the document at rawURL with retry on transient failures.
func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string, headers map[string]string) ([]byte, error) {
	attempt := 0
	return Retry(ctx, f.retry, func() ([]byte, error) {
		attempt++
		data, err := f.fetchOnce(ctx, rawURL, headers)
		if err != nil {
			f.logger.Debug("playlist fetch failed", "url", rawURL, "attempt", attempt, "error", err)
		}
		return data, err
	}, isRetryableError)
}

func (f *HTTPFetcher) fetchOnce(ctx context.Context, rawURL string, headers map[string]string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("User-Agent", f.userAgent)
	for name, value := range headers {
		req.Header.Set(name, value)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusUnauthorized:
		return nil, ErrAccessDenied
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, ErrRateLimited
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("server error: status code %d", resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, &StatusError{Code: resp.StatusCode}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxPlaylistBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return data, nil
}

// StatusError is a non-retryable HTTP status.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status code: %d", e.Code)
}

func isRetryableError(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, ErrAccessDenied) {
		return false
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return false
	}
	return true
}
