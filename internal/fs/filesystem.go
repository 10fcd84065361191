package fs

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/vishnu-kyatannawar/sync-bot/internal/syncbot"
)

// IgnoreFileName is read from the root of every tracked directory.
const IgnoreFileName = ".syncbotignore"

// MaxDepth bounds directory recursion below a tracked root.
const MaxDepth = 64

// ErrTooDeep is returned when a tracked directory nests deeper than MaxDepth.
var ErrTooDeep = errors.New("directory nesting exceeds maximum depth")

// OSFilesystemManager is the real filesystem implementation of FilesystemManager.
type OSFilesystemManager struct {
	ignore []string
}

// NewOSFilesystemManager creates a filesystem manager that applies the given
// ignore patterns (plus each tracked root's .syncbotignore) when finding files.
func NewOSFilesystemManager(ignore []string) *OSFilesystemManager {
	return &OSFilesystemManager{ignore: ignore}
}

// Resolve validates a raw path and returns a Path object.
// Symlinks are followed; the returned path is absolute but not link-resolved.
func (m *OSFilesystemManager) Resolve(rawPath string) (*syncbot.Path, error) {
	absPath, err := filepath.Abs(rawPath)
	if err != nil {
		return nil, fmt.Errorf("resolving absolute path: %w", err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("stat path: %w", err)
	}

	mode := info.Mode()
	if mode&os.ModeDevice != 0 {
		return nil, fmt.Errorf("device files not supported: %s", absPath)
	}
	if mode&os.ModeNamedPipe != 0 {
		return nil, fmt.Errorf("named pipes not supported: %s", absPath)
	}
	if mode&os.ModeSocket != 0 {
		return nil, fmt.Errorf("sockets not supported: %s", absPath)
	}

	return syncbot.NewPath(absPath, info.IsDir(), info), nil
}

// Open opens a file for reading.
func (m *OSFilesystemManager) Open(path string) (io.ReadCloser, error) {
	return os.Open(path)
}

// Stat returns fresh file info for a path.
func (m *OSFilesystemManager) Stat(path string) (fs.FileInfo, error) {
	return os.Stat(path)
}

// FindFiles recursively discovers regular files under root, following
// symlinks. Each directory is entered at most once, keyed by device and inode,
// so symlink loops terminate. Results are in lexical order.
func (m *OSFilesystemManager) FindFiles(root *syncbot.Path) ([]*syncbot.Path, error) {
	if !root.IsDir() {
		return nil, fmt.Errorf("path is not a directory: %s", root.String())
	}

	patterns, err := ParseIgnoreFile(filepath.Join(root.String(), IgnoreFileName))
	if err != nil {
		return nil, err
	}
	w := &walker{
		root:    root.String(),
		matcher: NewIgnoreMatcher(append(append([]string{}, m.ignore...), patterns...)),
		visited: make(map[fileKey]bool),
	}

	if err := w.walk(root.String(), root.Info(), 0); err != nil {
		return nil, err
	}
	return w.files, nil
}

type walker struct {
	root    string
	matcher *IgnoreMatcher
	visited map[fileKey]bool
	files   []*syncbot.Path
}

func (w *walker) walk(dir string, info fs.FileInfo, depth int) error {
	if depth > MaxDepth {
		return fmt.Errorf("%s: %w", dir, ErrTooDeep)
	}
	if key, ok := keyOf(info); ok {
		if w.visited[key] {
			return nil
		}
		w.visited[key] = true
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("reading directory: %w", err)
	}

	for _, entry := range entries {
		p := filepath.Join(dir, entry.Name())
		rel, err := filepath.Rel(w.root, p)
		if err != nil {
			return fmt.Errorf("relative path for %s: %w", p, err)
		}
		if w.matcher.Match(rel) {
			continue
		}

		// os.Stat follows symlinks; a dangling link is skipped.
		info, err := os.Stat(p)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("stat %s: %w", p, err)
		}

		switch {
		case info.IsDir():
			if err := w.walk(p, info, depth+1); err != nil {
				return err
			}
		case info.Mode().IsRegular():
			w.files = append(w.files, syncbot.NewPath(p, false, info))
		}
	}
	return nil
}

// Compile-time check that OSFilesystemManager implements syncbot.FilesystemManager interface
var _ syncbot.FilesystemManager = (*OSFilesystemManager)(nil)
