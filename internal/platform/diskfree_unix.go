//go:build !windows

package platform

import (
	"os"

	"golang.org/x/sys/unix"
)

// FreeDiskSpace returns the bytes available to the caller on the volume
// holding dir, or 0 if it cannot be determined.
func FreeDiskSpace(dir string) int64 {
	stat, err := os.Stat(dir)
	if err != nil || !stat.IsDir() {
		return 0
	}

	var fs unix.Statfs_t
	if err := unix.Statfs(dir, &fs); err != nil {
		return 0
	}

	return int64(fs.Bavail) * int64(fs.Bsize)
}
