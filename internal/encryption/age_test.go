package encryption

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/vishnu-kyatannawar/sync-bot/internal/config"
)

func newTestAgeEncryptor(t *testing.T) *AgeEncryptor {
	t.Helper()
	dir := t.TempDir()
	return NewAgeEncryptor(config.EncryptionConfig{
		PublicKeyPath:  filepath.Join(dir, "keys", "syncbot.pub"),
		PrivateKeyPath: filepath.Join(dir, "keys", "syncbot.key"),
	})
}

func TestAgeEncryptor_Setup(t *testing.T) {
	t.Parallel()

	t.Run("writes both keys", func(t *testing.T) {
		e := newTestAgeEncryptor(t)
		if e.IsConfigured() {
			t.Fatal("IsConfigured() = true before Setup")
		}
		if err := e.Setup("pass"); err != nil {
			t.Fatalf("Setup() error = %v", err)
		}
		if !e.IsConfigured() {
			t.Error("IsConfigured() = false after Setup")
		}
		info, err := os.Stat(e.privateKeyPath)
		if err != nil {
			t.Fatalf("Stat() error = %v", err)
		}
		if info.Mode().Perm() != 0600 {
			t.Errorf("private key mode = %v, want 0600", info.Mode().Perm())
		}
	})

	t.Run("refuses to overwrite", func(t *testing.T) {
		e := newTestAgeEncryptor(t)
		if err := e.Setup("pass"); err != nil {
			t.Fatalf("Setup() error = %v", err)
		}
		before, _ := os.ReadFile(e.publicKeyPath)
		err := e.Setup("other")
		if !errors.Is(err, ErrAlreadyConfigured) {
			t.Fatalf("Setup() error = %v, want ErrAlreadyConfigured", err)
		}
		after, _ := os.ReadFile(e.publicKeyPath)
		if !bytes.Equal(before, after) {
			t.Error("public key changed after rejected Setup")
		}
	})

	t.Run("empty passphrase", func(t *testing.T) {
		e := newTestAgeEncryptor(t)
		if err := e.Setup(""); err == nil {
			t.Error("Setup(\"\") error = nil, want error")
		}
	})
}

func TestAgeEncryptor_RoundTrip(t *testing.T) {
	t.Parallel()

	e := newTestAgeEncryptor(t)
	if err := e.Setup("correct horse"); err != nil {
		t.Fatalf("Setup() error = %v", err)
	}

	tests := []struct {
		name  string
		input []byte
	}{
		{name: "text", input: []byte("hello world")},
		{name: "empty", input: []byte{}},
		{name: "large", input: bytes.Repeat([]byte("abcdef"), 10000)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var enc bytes.Buffer
			if err := e.Encrypt(bytes.NewReader(tt.input), &enc); err != nil {
				t.Fatalf("Encrypt() error = %v", err)
			}
			if len(tt.input) > 0 && bytes.Contains(enc.Bytes(), tt.input) {
				t.Error("ciphertext contains plaintext")
			}
			dc, err := e.Unlock("correct horse")
			if err != nil {
				t.Fatalf("Unlock() error = %v", err)
			}
			var dec bytes.Buffer
			if err := dc.Decrypt(&enc, &dec); err != nil {
				t.Fatalf("Decrypt() error = %v", err)
			}
			if !bytes.Equal(dec.Bytes(), tt.input) {
				t.Errorf("Decrypt() = %d bytes, want %d", dec.Len(), len(tt.input))
			}
		})
	}
}

func TestAgeEncryptor_Errors(t *testing.T) {
	t.Parallel()

	t.Run("wrong passphrase", func(t *testing.T) {
		e := newTestAgeEncryptor(t)
		if err := e.Setup("right"); err != nil {
			t.Fatalf("Setup() error = %v", err)
		}
		if _, err := e.Unlock("wrong"); err == nil {
			t.Error("Unlock() error = nil, want error")
		}
	})

	t.Run("encrypt before setup", func(t *testing.T) {
		e := newTestAgeEncryptor(t)
		var buf bytes.Buffer
		if err := e.Encrypt(bytes.NewReader([]byte("x")), &buf); err == nil {
			t.Error("Encrypt() error = nil, want error")
		}
	})

	t.Run("unlock before setup", func(t *testing.T) {
		e := newTestAgeEncryptor(t)
		if _, err := e.Unlock("x"); err == nil {
			t.Error("Unlock() error = nil, want error")
		}
	})
}

func TestDecryptFile(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	src := filepath.Join(dir, "backup.zip.age")
	dst := filepath.Join(dir, "backup.zip")

	var enc bytes.Buffer
	if err := NewTestEncryptor().Encrypt(bytes.NewReader([]byte("payload")), &enc); err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}
	if err := os.WriteFile(src, enc.Bytes(), 0644); err != nil {
		t.Fatal(err)
	}

	if err := DecryptFile(&TestDecryptionContext{}, src, dst); err != nil {
		t.Fatalf("DecryptFile() error = %v", err)
	}
	got, err := os.ReadFile(dst)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if string(got) != "payload" {
		t.Errorf("DecryptFile() wrote %q, want %q", got, "payload")
	}

	t.Run("failure leaves destination alone", func(t *testing.T) {
		bad := filepath.Join(dir, "bad.age")
		if err := os.WriteFile(bad, []byte("garbage"), 0644); err != nil {
			t.Fatal(err)
		}
		if err := DecryptFile(&TestDecryptionContext{}, bad, dst); err == nil {
			t.Fatal("DecryptFile() error = nil, want error")
		}
		got, _ := os.ReadFile(dst)
		if string(got) != "payload" {
			t.Errorf("destination = %q after failed decrypt", got)
		}
	})
}

func TestNewEncryptorFromConfig(t *testing.T) {
	t.Parallel()
	for _, typ := range []string{"", "age", "test"} {
		if _, err := NewEncryptorFromConfig(config.EncryptionConfig{Type: typ}); err != nil {
			t.Errorf("NewEncryptorFromConfig(%q) error = %v", typ, err)
		}
	}
	if _, err := NewEncryptorFromConfig(config.EncryptionConfig{Type: "rot13"}); err == nil {
		t.Error("NewEncryptorFromConfig(rot13) error = nil, want error")
	}
}
