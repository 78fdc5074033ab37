package downloader

import (
	"net/url"
	"path"
	"path/filepath"
	"strings"
)

// DefaultFilename is used when a URL has no usable file name.
const DefaultFilename = "video.mp4"

// OutputFilename derives an .mp4 file name from a playlist URL: the last path
// element with the query dropped and .m3u8 replaced by .mp4.
func OutputFilename(rawURL string) string {
	p := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		p = u.Path
	} else if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}

	name := path.Base(p)
	if name == "." || name == "/" || name == "" {
		return DefaultFilename
	}

	if strings.HasSuffix(strings.ToLower(name), ".m3u8") {
		name = name[:len(name)-len(".m3u8")] + ".mp4"
	}
	if name == ".mp4" {
		return DefaultFilename
	}
	return name
}

// DefaultOutputPath joins OutputFilename(rawURL) onto dir.
func DefaultOutputPath(dir, rawURL string) string {
	return filepath.Join(dir, OutputFilename(rawURL))
}
