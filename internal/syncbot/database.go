package syncbot

import (
	"time"

	"github.com/vishnu-kyatannawar/sync-bot/internal/model"
)

// Database provides an interface for metadata storage operations.
// Lookups that find nothing return nil and no error.
type Database interface {
	// Tracked path operations

	// InsertTrackedPath records a tracked path. Inserting an existing path is a no-op.
	InsertTrackedPath(path string, isDirectory bool) error

	// DeleteTrackedPath removes a tracked path. Removing an absent path is a no-op.
	DeleteTrackedPath(path string) error

	// ListTrackedPaths returns all tracked paths ordered by path.
	ListTrackedPaths() ([]*model.TrackedPath, error)

	// Fingerprint operations

	FindFingerprint(path string) (*model.FileFingerprint, error)

	// UpsertFingerprint inserts or replaces the fingerprint for fp.Path.
	UpsertFingerprint(fp *model.FileFingerprint) error

	// Key/value metadata

	// GetMetadata returns the value for key and whether it was present.
	GetMetadata(key string) (string, bool, error)
	SetMetadata(key, value string) error

	// Sync run operations

	CreateSyncRun(runID, trigger string, startedAt time.Time) (*model.SyncRun, error)

	// FinishSyncRun stores the final status, counters and finish time of run.
	FinishSyncRun(run *model.SyncRun) error

	// ListSyncRuns returns the most recent runs, newest first.
	ListSyncRuns(limit int) ([]*model.SyncRun, error)

	// Close closes the database connection.
	Close() error
}
