//go:build unix

package fs

import (
	"io/fs"
	"syscall"
)

// fileKey identifies a directory independent of the path used to reach it.
type fileKey struct {
	dev uint64
	ino uint64
}

func keyOf(info fs.FileInfo) (fileKey, bool) {
	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return fileKey{}, false
	}
	return fileKey{dev: uint64(stat.Dev), ino: uint64(stat.Ino)}, true
}
