//go:build linux

package staging

import (
	"io/fs"
	"syscall"
	"time"
)

// changeTime returns the inode change time when the platform exposes it.
// Mock file infos without *syscall.Stat_t report false.
func changeTime(info fs.FileInfo) (time.Time, bool) {
	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return time.Time{}, false
	}
	return time.Unix(int64(stat.Ctim.Sec), int64(stat.Ctim.Nsec)), true
}
