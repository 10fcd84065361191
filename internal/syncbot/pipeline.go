package syncbot

import "time"

// ChangeTracker is the subset of ChangeStore used while mirroring files.
type ChangeTracker interface {
	HasChanged(path string) (bool, error)
	MarkSynced(path string) error
}

// StagingMirror copies tracked files into the staging tree.
type StagingMirror interface {
	// Refresh mirrors files into stagingRoot. tracked is the list of tracked
	// roots used to compute destinations. Returns the number of files copied.
	// Any copy failure aborts the refresh.
	Refresh(stagingRoot string, files []string, tracked []string) (int, error)
}

// Archiver snapshots the staging root into retained archives.
type Archiver interface {
	// CreateArchive writes a new archive of stagingRoot into archivesDir,
	// prunes old archives, and returns the new archive's path.
	CreateArchive(stagingRoot, archivesDir string) (string, error)
}

// Packager builds the transfer unit from the staging tree.
type Packager interface {
	// Package returns the transfer unit path and whether it was rebuilt.
	Package(stagingRoot string) (string, bool, error)
}

// Settings is the per-run view of configuration needed by the pipeline.
type Settings struct {
	StagingDir      string
	ArchivesDir     string
	RemoteFolder    string
	RemoteSubfolder string
	SyncInterval    time.Duration
	AutoSync        bool
	Encrypt         bool
}

// SettingsSource loads Settings. It is consulted at the start of every run so
// configuration changes apply without a restart.
type SettingsSource interface {
	Settings() (*Settings, error)
}
