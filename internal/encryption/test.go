package encryption

import (
	"bytes"
	"fmt"
	"io"

	"github.com/vishnu-kyatannawar/sync-bot/internal/syncbot"
)

// testMarker prefixes everything TestEncryptor writes.
var testMarker = []byte("SBENC\x00\x00\x00")

// TestEncryptor is a reversible stand-in for AgeEncryptor. Output is the
// plaintext behind a fixed marker, so uploaded bytes differ from the bundle
// while staying trivial to check in tests.
type TestEncryptor struct {
	setupCalled bool
}

var _ syncbot.Encryptor = (*TestEncryptor)(nil)

func NewTestEncryptor() *TestEncryptor {
	return &TestEncryptor{}
}

func (e *TestEncryptor) Setup(string) error {
	e.setupCalled = true
	return nil
}

func (e *TestEncryptor) Encrypt(r io.Reader, w io.Writer) error {
	if _, err := w.Write(testMarker); err != nil {
		return fmt.Errorf("writing marker: %w", err)
	}
	if _, err := io.Copy(w, r); err != nil {
		return fmt.Errorf("copying data: %w", err)
	}
	return nil
}

// Unlock accepts any passphrase.
func (e *TestEncryptor) Unlock(string) (syncbot.DecryptionContext, error) {
	return &TestDecryptionContext{}, nil
}

func (e *TestEncryptor) IsConfigured() bool { return true }

// TestDecryptionContext reverses TestEncryptor.
type TestDecryptionContext struct{}

var _ syncbot.DecryptionContext = (*TestDecryptionContext)(nil)

func (c *TestDecryptionContext) Decrypt(r io.Reader, w io.Writer) error {
	marker := make([]byte, len(testMarker))
	if _, err := io.ReadFull(r, marker); err != nil {
		return fmt.Errorf("reading marker: %w", err)
	}
	if !bytes.Equal(marker, testMarker) {
		return fmt.Errorf("input was not produced by TestEncryptor")
	}
	if _, err := io.Copy(w, r); err != nil {
		return fmt.Errorf("copying data: %w", err)
	}
	return nil
}
