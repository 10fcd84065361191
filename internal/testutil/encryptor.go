package testutil

import (
	"github.com/vishnu-kyatannawar/sync-bot/internal/encryption"
	"github.com/vishnu-kyatannawar/sync-bot/internal/syncbot"
)

// NewTestEncryptor creates a new test encryptor for testing.
func NewTestEncryptor() syncbot.Encryptor {
	return encryption.NewTestEncryptor()
}
