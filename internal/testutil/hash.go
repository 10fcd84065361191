package testutil

import (
	"crypto/sha256"
	"fmt"
)

// SHA256Hex is the fingerprint hash format stored by the change store.
func SHA256Hex(data []byte) string {
	return fmt.Sprintf("%x", sha256.Sum256(data))
}
