package syncbot

import "context"

// Remote is the backup destination. Folder IDs are opaque to callers: a Drive
// file ID, an S3 key prefix or a local directory path depending on the backend.
type Remote interface {
	// Name identifies the backend in logs.
	Name() string

	// EnsureAuthenticated verifies credentials, refreshing them if possible.
	// Returns an error wrapping ErrNotAuthenticated when re-authorization is required.
	EnsureAuthenticated(ctx context.Context) error

	// FindOrCreateFolder returns the ID of the top-level folder with this name,
	// creating it when absent.
	FindOrCreateFolder(ctx context.Context, name string) (string, error)

	// ResolveFolderPath walks relativePath below rootID, creating missing
	// segments, and returns the ID of the last one.
	ResolveFolderPath(ctx context.Context, rootID, relativePath string) (string, error)

	// UploadFile stores the file at localPath under parentID, replacing the
	// content of an existing entry with the same name. Returns the remote file ID.
	UploadFile(ctx context.Context, localPath, parentID string) (string, error)
}
