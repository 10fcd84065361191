package model

import (
	"database/sql"
	"time"
)

// TrackedPath is a file or directory the user asked to keep synchronized.
type TrackedPath struct {
	ID          int64
	Path        string // Absolute path on host
	IsDirectory bool
	CreatedAt   time.Time
}

// FileFingerprint is the last known synchronized state of one file.
type FileFingerprint struct {
	ID         int64
	Path       string
	Hash       string // SHA-256, lowercase hex
	Size       int64
	Modified   int64        // mtime, unix seconds
	LastSynced sql.NullTime // unset until the first successful sync
	CreatedAt  time.Time
}

// SyncRun is one orchestration run, manual or scheduled.
type SyncRun struct {
	ID           int64
	RunID        string // UUID, also used as the log correlation ID
	Trigger      string // "manual" or "scheduled"
	StartedAt    time.Time
	FinishedAt   sql.NullTime
	Status       string // "running", "success", "skipped" or "error"
	FilesSynced  int
	FilesSkipped int
	Error        string
}
