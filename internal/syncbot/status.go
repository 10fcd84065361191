package syncbot

import (
	"fmt"
	"time"
)

// SyncStatus is the state reported to status queries.
type SyncStatus struct {
	LastSync    *time.Time `json:"last_sync"`
	LastChecked *time.Time `json:"last_checked"`
	NextSync    *time.Time `json:"next_sync"`
	IsSyncing   bool       `json:"is_syncing"`
}

// Status reports the last successful upload, the last completed check and,
// when auto-sync is enabled, when the next scheduled run is due.
func (s *SyncService) Status() (*SyncStatus, error) {
	settings, err := s.settings.Settings()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	status := &SyncStatus{IsSyncing: s.IsSyncing()}

	if status.LastSync, err = s.loadTime(metaLastSync); err != nil {
		return nil, err
	}
	if status.LastChecked, err = s.loadTime(metaLastChecked); err != nil {
		return nil, err
	}

	base := status.LastChecked
	if base == nil {
		base = status.LastSync
	}
	if settings.AutoSync && base != nil {
		next := base.Add(settings.SyncInterval)
		status.NextSync = &next
	}

	return status, nil
}

func (s *SyncService) loadTime(key string) (*time.Time, error) {
	raw, ok, err := s.database.GetMetadata(key)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", key, err)
	}
	if !ok {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", key, err)
	}
	return &t, nil
}
