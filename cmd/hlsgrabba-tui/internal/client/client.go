// Package client talks to the hlsgrabba control API.
package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/iconidentify/hlsgrabba/internal/api/handler"
	"github.com/iconidentify/hlsgrabba/internal/domain"
	"github.com/iconidentify/hlsgrabba/internal/service"
)

// Client communicates with the hlsgrabba daemon.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	// streamClient has no timeout; streams end when their context does.
	streamClient *http.Client
}

// APIError is a non-2xx response from the daemon.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.StatusCode, e.Message)
}

// NewClient creates a new client.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL:      strings.TrimSuffix(baseURL, "/"),
		apiKey:       apiKey,
		httpClient:   &http.Client{Timeout: 15 * time.Second},
		streamClient: &http.Client{},
	}
}

// ListJobs returns every job in the queue.
func (c *Client) ListJobs(ctx context.Context) ([]handler.JobResponse, error) {
	var resp handler.JobListResponse
	if err := c.doRequest(ctx, http.MethodGet, "/api/v1/jobs", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Jobs, nil
}

// AddJob enqueues a download.
func (c *Client) AddJob(ctx context.Context, req service.AddJobRequest) (*handler.JobResponse, error) {
	var resp handler.JobResponse
	if err := c.doRequest(ctx, http.MethodPost, "/api/v1/jobs", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// RemoveJob deletes a job, stopping it first if it is running.
func (c *Client) RemoveJob(ctx context.Context, id string) error {
	return c.doRequest(ctx, http.MethodDelete, "/api/v1/jobs/"+id, nil, nil)
}

// StopJob cancels a running job.
func (c *Client) StopJob(ctx context.Context, id string) error {
	return c.doRequest(ctx, http.MethodPost, "/api/v1/jobs/"+id+"/stop", nil, nil)
}

// RequeueJob puts a finished job back in the queue.
func (c *Client) RequeueJob(ctx context.Context, id string) error {
	return c.doRequest(ctx, http.MethodPost, "/api/v1/jobs/"+id+"/requeue", nil, nil)
}

// QueueStatus returns the scheduler state and job counts.
func (c *Client) QueueStatus(ctx context.Context) (*service.QueueStatus, error) {
	var resp service.QueueStatus
	if err := c.doRequest(ctx, http.MethodGet, "/api/v1/queue/status", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// StartQueue starts processing.
func (c *Client) StartQueue(ctx context.Context) error {
	return c.doRequest(ctx, http.MethodPost, "/api/v1/queue/start", nil, nil)
}

// StopQueue stops processing and cancels running jobs.
func (c *Client) StopQueue(ctx context.Context) error {
	return c.doRequest(ctx, http.MethodPost, "/api/v1/queue/stop", nil, nil)
}

// Stream subscribes to the event stream and delivers events on the returned
// channel until ctx is canceled or the connection drops. Events after since
// are replayed first. The channel is closed when the stream ends.
func (c *Client) Stream(ctx context.Context, since uint64) (<-chan domain.Event, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v1/events/stream", nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	if since > 0 {
		req.Header.Set("Last-Event-ID", strconv.FormatUint(since, 10))
	}
	c.authorize(req)

	resp, err := c.streamClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, readError(resp)
	}

	out := make(chan domain.Event, 64)
	go func() {
		defer close(out)
		defer resp.Body.Close()
		readStream(ctx, resp.Body, out)
	}()
	return out, nil
}

// readStream parses server-sent events. Only events with a JSON data line
// that decodes to a domain.Event are delivered.
func readStream(ctx context.Context, r io.Reader, out chan<- domain.Event) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	var data strings.Builder
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if data.Len() == 0 {
				continue
			}
			var ev domain.Event
			if err := json.Unmarshal([]byte(data.String()), &ev); err == nil && ev.Type != "" {
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
			data.Reset()
		case strings.HasPrefix(line, "data:"):
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}
}

func (c *Client) authorize(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}
}

func (c *Client) doRequest(ctx context.Context, method, path string, body any, result any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return readError(resp)
	}

	if result != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

func readError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var errResp handler.ErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error != "" {
		return &APIError{StatusCode: resp.StatusCode, Message: errResp.Error}
	}
	return &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body))}
}
