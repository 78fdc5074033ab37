package downloader

import (
	"context"
	"time"

	"github.com/iconidentify/hlsgrabba/pkg/ffmpeg"
)

// Remuxer runs the external remuxing tool.
type Remuxer interface {
	// ProbeDuration returns the total duration of the source.
	ProbeDuration(ctx context.Context, url string) (time.Duration, error)

	// Start launches a remux. Canceling ctx asks the process to stop.
	Start(ctx context.Context, req ffmpeg.Request) (ffmpeg.Process, error)
}

// ProxyResolver finds the proxy to use for a target URL.
type ProxyResolver interface {
	// ResolveProxy returns a proxy URL, or "" for a direct connection.
	ResolveProxy(target string) string
}

// Fetcher retrieves small documents such as playlists.
type Fetcher interface {
	Fetch(ctx context.Context, url string, headers map[string]string) ([]byte, error)
}

// Quality is one selectable rendition of a playlist.
type Quality struct {
	Label string `json:"label"`
	URL   string `json:"url"`
}
