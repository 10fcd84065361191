package testutil

import "github.com/vishnu-kyatannawar/sync-bot/internal/remote"

// NewTestRemote creates an in-memory remote that counts calls.
func NewTestRemote() *remote.MemoryRemote {
	return remote.NewMemoryRemote("test-remote")
}
