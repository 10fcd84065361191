package testutil

import (
	"bytes"
	"fmt"
	"io"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/vishnu-kyatannawar/sync-bot/internal/syncbot"
)

// MockFile represents a file in the mock filesystem.
type MockFile struct {
	Content     []byte
	Permissions fs.FileMode
	ModTime     time.Time
	IsDirectory bool
}

// MockFilesystemManager is an in-memory filesystem for testing.
// Paths are stored exactly as given; callers should use absolute paths.
type MockFilesystemManager struct {
	mu    sync.Mutex
	files map[string]*MockFile
	now   time.Time
}

// NewMockFilesystemManager creates a new mock filesystem. New entries get a
// fixed modification time so tests are deterministic.
func NewMockFilesystemManager() *MockFilesystemManager {
	return &MockFilesystemManager{
		files: make(map[string]*MockFile),
		now:   time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC),
	}
}

// AddFile adds or replaces a file in the mock filesystem.
func (m *MockFilesystemManager) AddFile(path string, content []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[path] = &MockFile{
		Content:     content,
		Permissions: 0644,
		ModTime:     m.now,
	}
}

// AddDirectory adds a directory to the mock filesystem.
func (m *MockFilesystemManager) AddDirectory(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[path] = &MockFile{
		Permissions: 0755,
		ModTime:     m.now,
		IsDirectory: true,
	}
}

// SetContent replaces a file's content without touching its modification time.
func (m *MockFilesystemManager) SetContent(path string, content []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if f, ok := m.files[path]; ok {
		f.Content = content
	}
}

// SetModTime changes a file's modification time.
func (m *MockFilesystemManager) SetModTime(path string, t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if f, ok := m.files[path]; ok {
		f.ModTime = t
	}
}

// Remove deletes a path from the mock filesystem.
func (m *MockFilesystemManager) Remove(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.files, path)
}

func (m *MockFilesystemManager) lookup(path string) (*MockFile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	file, ok := m.files[path]
	if !ok {
		return nil, fmt.Errorf("%s: %w", path, fs.ErrNotExist)
	}
	return file, nil
}

func (m *MockFilesystemManager) Resolve(rawPath string) (*syncbot.Path, error) {
	absPath, err := filepath.Abs(rawPath)
	if err != nil {
		return nil, err
	}

	file, err := m.lookup(absPath)
	if err != nil {
		return nil, err
	}
	return syncbot.NewPath(absPath, file.IsDirectory, newMockFileInfo(absPath, file)), nil
}

func (m *MockFilesystemManager) Open(path string) (io.ReadCloser, error) {
	file, err := m.lookup(path)
	if err != nil {
		return nil, err
	}
	if file.IsDirectory {
		return nil, fmt.Errorf("cannot open directory: %s", path)
	}
	return io.NopCloser(bytes.NewReader(file.Content)), nil
}

func (m *MockFilesystemManager) Stat(path string) (fs.FileInfo, error) {
	file, err := m.lookup(path)
	if err != nil {
		return nil, err
	}
	return newMockFileInfo(path, file), nil
}

// FindFiles returns every file below root in lexical order.
func (m *MockFilesystemManager) FindFiles(root *syncbot.Path) ([]*syncbot.Path, error) {
	if !root.IsDir() {
		return nil, fmt.Errorf("path is not a directory: %s", root.String())
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	prefix := root.String() + string(filepath.Separator)
	var names []string
	for path, file := range m.files {
		if !file.IsDirectory && strings.HasPrefix(path, prefix) {
			names = append(names, path)
		}
	}
	sort.Strings(names)

	paths := make([]*syncbot.Path, 0, len(names))
	for _, name := range names {
		paths = append(paths, syncbot.NewPath(name, false, newMockFileInfo(name, m.files[name])))
	}
	return paths, nil
}

// mockFileInfo implements fs.FileInfo
type mockFileInfo struct {
	name    string
	size    int64
	mode    fs.FileMode
	modTime time.Time
	isDir   bool
}

func newMockFileInfo(path string, file *MockFile) *mockFileInfo {
	mode := file.Permissions
	if file.IsDirectory {
		mode |= fs.ModeDir
	}
	return &mockFileInfo{
		name:    filepath.Base(path),
		size:    int64(len(file.Content)),
		mode:    mode,
		modTime: file.ModTime,
		isDir:   file.IsDirectory,
	}
}

func (m *mockFileInfo) Name() string       { return m.name }
func (m *mockFileInfo) Size() int64        { return m.size }
func (m *mockFileInfo) Mode() fs.FileMode  { return m.mode }
func (m *mockFileInfo) ModTime() time.Time { return m.modTime }
func (m *mockFileInfo) IsDir() bool        { return m.isDir }
func (m *mockFileInfo) Sys() any           { return nil }

// Compile-time check
var _ syncbot.FilesystemManager = (*MockFilesystemManager)(nil)
