package encryption

import (
	"fmt"

	"github.com/vishnu-kyatannawar/sync-bot/internal/config"
	"github.com/vishnu-kyatannawar/sync-bot/internal/syncbot"
)

// NewEncryptorFromConfig creates an Encryptor based on the configuration type.
// The encryptor is built even when encryption is disabled so `encryption init`
// and `decrypt` work before it is switched on.
func NewEncryptorFromConfig(cfg config.EncryptionConfig) (syncbot.Encryptor, error) {
	switch cfg.Type {
	case "age", "":
		return NewAgeEncryptor(cfg), nil
	case "test":
		return NewTestEncryptor(), nil
	default:
		return nil, fmt.Errorf("unknown encryption type: %q", cfg.Type)
	}
}
