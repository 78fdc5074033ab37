//go:build windows

package platform

import (
	"os"

	"golang.org/x/sys/windows"
)

// FreeDiskSpace returns the bytes available to the caller on the volume
// holding dir, or 0 if it cannot be determined.
func FreeDiskSpace(dir string) int64 {
	stat, err := os.Stat(dir)
	if err != nil || !stat.IsDir() {
		return 0
	}

	ptr, err := windows.UTF16PtrFromString(dir)
	if err != nil {
		return 0
	}

	var freeBytes, totalBytes, totalFreeBytes uint64
	if err := windows.GetDiskFreeSpaceEx(ptr, &freeBytes, &totalBytes, &totalFreeBytes); err != nil {
		return 0
	}

	return int64(freeBytes)
}
