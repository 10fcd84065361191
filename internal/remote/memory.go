package remote

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sync"

	"github.com/vishnu-kyatannawar/sync-bot/internal/syncbot"
)

// MemoryRemote is an in-memory Remote that records every call, making it
// useful for testing. Folder IDs are slash-joined folder paths.
// This implementation is safe for concurrent use.
type MemoryRemote struct {
	name    string
	mu      sync.RWMutex
	folders map[string]bool
	files   map[string][]byte // "folder/name" -> content

	authCalls   int
	folderCalls int
	uploadCalls int

	// AuthErr and UploadErr, when set, are returned by the matching calls.
	AuthErr   error
	UploadErr error
}

var _ syncbot.Remote = (*MemoryRemote)(nil)

// NewMemoryRemote creates an empty in-memory remote.
func NewMemoryRemote(name string) *MemoryRemote {
	return &MemoryRemote{
		name:    name,
		folders: make(map[string]bool),
		files:   make(map[string][]byte),
	}
}

func (m *MemoryRemote) Name() string { return m.name }

func (m *MemoryRemote) EnsureAuthenticated(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.authCalls++
	return m.AuthErr
}

func (m *MemoryRemote) FindOrCreateFolder(_ context.Context, name string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.folderCalls++
	m.folders[name] = true
	return name, nil
}

func (m *MemoryRemote) ResolveFolderPath(_ context.Context, rootID, relativePath string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := rootID
	for _, seg := range splitFolderPath(relativePath) {
		id = path.Join(id, seg)
		m.folders[id] = true
	}
	return id, nil
}

func (m *MemoryRemote) UploadFile(_ context.Context, localPath, parentID string) (string, error) {
	data, err := os.ReadFile(localPath)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", localPath, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.uploadCalls++
	if m.UploadErr != nil {
		return "", m.UploadErr
	}
	if !m.folders[parentID] {
		return "", fmt.Errorf("folder not found: %s", parentID)
	}
	id := path.Join(parentID, filepath.Base(localPath))
	m.files[id] = data
	return id, nil
}

// File returns the content stored under id.
func (m *MemoryRemote) File(id string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.files[id]
	return data, ok
}

// Calls returns the number of EnsureAuthenticated, FindOrCreateFolder and
// UploadFile calls.
func (m *MemoryRemote) Calls() (auth, folder, upload int) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.authCalls, m.folderCalls, m.uploadCalls
}

// TotalCalls is the sum of all recorded calls.
func (m *MemoryRemote) TotalCalls() int {
	a, f, u := m.Calls()
	return a + f + u
}
