package downloader

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/grafov/m3u8"
)

// ErrNotPlaylist is returned when a document is not an HLS playlist.
var ErrNotPlaylist = errors.New("not an HLS playlist")

// DefaultQualityLabel names the single rendition of a media playlist.
const DefaultQualityLabel = "Default"

// QualityDiscoverer lists the renditions offered by a playlist URL.
type QualityDiscoverer struct {
	fetcher Fetcher
	logger  *slog.Logger
}

// NewQualityDiscoverer creates a discoverer that reads playlists with fetcher.
func NewQualityDiscoverer(fetcher Fetcher, logger *slog.Logger) *QualityDiscoverer {
	if logger == nil {
		logger = slog.Default()
	}
	return &QualityDiscoverer{fetcher: fetcher, logger: logger}
}

// Discover returns the variants of a master playlist in playlist order, or a
// single Default entry pointing at playlistURL for a media playlist.
func (d *QualityDiscoverer) Discover(ctx context.Context, playlistURL string, headers map[string]string) ([]Quality, error) {
	base, err := url.Parse(playlistURL)
	if err != nil {
		return nil, fmt.Errorf("parse playlist url: %w", err)
	}

	data, err := d.fetcher.Fetch(ctx, playlistURL, headers)
	if err != nil {
		return nil, fmt.Errorf("fetch playlist: %w", err)
	}

	playlist, listType, err := m3u8.DecodeFrom(bytes.NewReader(data), false)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotPlaylist, err)
	}

	if listType != m3u8.MASTER {
		return []Quality{{Label: DefaultQualityLabel, URL: playlistURL}}, nil
	}

	master, ok := playlist.(*m3u8.MasterPlaylist)
	if !ok {
		return nil, ErrNotPlaylist
	}

	qualities := make([]Quality, 0, len(master.Variants))
	for _, v := range master.Variants {
		if v == nil || v.Iframe || v.URI == "" {
			continue
		}
		ref, err := url.Parse(strings.TrimSpace(v.URI))
		if err != nil {
			d.logger.Warn("skipping variant with bad uri", "uri", v.URI, "error", err)
			continue
		}
		qualities = append(qualities, Quality{
			Label: VariantLabel(v.Resolution, v.Bandwidth),
			URL:   base.ResolveReference(ref).String(),
		})
	}

	if len(qualities) == 0 {
		return []Quality{{Label: DefaultQualityLabel, URL: playlistURL}}, nil
	}

	d.logger.Debug("discovered qualities", "url", playlistURL, "count", len(qualities))
	return qualities, nil
}

// VariantLabel formats a variant as "<height>p (<kbps> kbps)", using
// "Unknown" for missing parts.
func VariantLabel(resolution string, bandwidth uint32) string {
	height := "Unknown"
	if _, h, ok := strings.Cut(strings.ToLower(resolution), "x"); ok && h != "" {
		height = h + "p"
	}

	rate := "Unknown"
	if bandwidth > 0 {
		rate = fmt.Sprintf("%.0f kbps", float64(bandwidth)/1000)
	}

	return fmt.Sprintf("%s (%s)", height, rate)
}
