package syncbot

import (
	"io"
	"io/fs"
)

// FilesystemManager provides an interface for filesystem operations.
// It abstracts file access to enable testing without touching the real filesystem.
type FilesystemManager interface {
	// Resolve validates a raw path and returns a Path object.
	// Symlinks are followed; devices, pipes and sockets are rejected.
	Resolve(rawPath string) (*Path, error)

	// Open opens a file for reading.
	Open(path string) (io.ReadCloser, error)

	// Stat returns fresh file info for a path, following symlinks.
	Stat(path string) (fs.FileInfo, error)

	// FindFiles recursively discovers regular files under a directory.
	// Directories reached twice (symlink loops) are visited once.
	FindFiles(root *Path) ([]*Path, error)
}
