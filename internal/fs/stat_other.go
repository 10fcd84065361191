//go:build !unix

package fs

import "io/fs"

type fileKey struct {
	dev uint64
	ino uint64
}

// keyOf has no inode to offer here; traversal relies on MaxDepth alone.
func keyOf(fs.FileInfo) (fileKey, bool) {
	return fileKey{}, false
}
