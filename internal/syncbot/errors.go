package syncbot

import "errors"

// NothingTrackedMessage is reported in SyncResult.Errors when no paths are tracked.
const NothingTrackedMessage = "No files or folders tracked. Please add files/folders first."

var (
	// ErrSyncInProgress is returned when a run is triggered while another is active.
	ErrSyncInProgress = errors.New("sync already in progress")

	// ErrNotAuthenticated is returned when a remote has no usable credentials.
	ErrNotAuthenticated = errors.New("not authenticated")
)
