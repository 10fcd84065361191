package remote

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/vishnu-kyatannawar/sync-bot/internal/syncbot"
)

// FileSystemRemote copies the transfer unit into a local directory, e.g. a
// mounted network share or external disk. Folder IDs are directory paths:
//
//	<root>/
//	  <folder>/
//	    <subfolder>/
//	      backup.zip
type FileSystemRemote struct {
	root   string
	logger syncbot.Logger
}

var _ syncbot.Remote = (*FileSystemRemote)(nil)

// NewFileSystemRemote creates a remote rooted at root.
func NewFileSystemRemote(root string, logger syncbot.Logger) (*FileSystemRemote, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create remote root: %w", err)
	}
	return &FileSystemRemote{root: root, logger: logger}, nil
}

func (r *FileSystemRemote) Name() string { return "filesystem" }

// EnsureAuthenticated verifies that the root directory is accessible.
func (r *FileSystemRemote) EnsureAuthenticated(context.Context) error {
	info, err := os.Stat(r.root)
	if err != nil {
		return fmt.Errorf("remote root not accessible: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("remote root is not a directory: %s", r.root)
	}
	return nil
}

func (r *FileSystemRemote) FindOrCreateFolder(_ context.Context, name string) (string, error) {
	return r.mkdir(filepath.Join(r.root, name))
}

func (r *FileSystemRemote) ResolveFolderPath(_ context.Context, rootID, relativePath string) (string, error) {
	return r.mkdir(filepath.Join(append([]string{rootID}, splitFolderPath(relativePath)...)...))
}

func (r *FileSystemRemote) mkdir(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("creating folder: %w", err)
	}
	return dir, nil
}

// UploadFile copies localPath into parentID using atomic write (temp file + rename).
func (r *FileSystemRemote) UploadFile(_ context.Context, localPath, parentID string) (string, error) {
	src, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("opening %s: %w", localPath, err)
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return "", fmt.Errorf("stat %s: %w", localPath, err)
	}

	destPath := filepath.Join(parentID, filepath.Base(localPath))
	if err := writeFile(destPath, src, info.Size()); err != nil {
		return "", err
	}
	r.logger.Info("file copied to remote", "path", destPath)
	return destPath, nil
}

// writeFile writes data from r to the specified path using atomic write (temp file + rename).
func writeFile(destPath string, r io.Reader, expectedSize int64) error {
	// Create temp file in the same directory to ensure atomic rename works
	tmpFile, err := os.CreateTemp(filepath.Dir(destPath), ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	written, err := io.Copy(tmpFile, r)
	if err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write data: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if written != expectedSize {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", expectedSize, written)
	}
	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	success = true
	return nil
}
