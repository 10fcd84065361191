package syncbot

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/vishnu-kyatannawar/sync-bot/internal/model"
)

// Run triggers.
const (
	TriggerManual    = "manual"
	TriggerScheduled = "scheduled"
)

// Run statuses stored in the sync run history.
const (
	RunStatusRunning = "running"
	RunStatusSuccess = "success"
	RunStatusSkipped = "skipped"
	RunStatusError   = "error"
)

// Metadata keys.
const (
	metaLastSync    = "last_sync_time"
	metaLastChecked = "last_checked_time"
)

// SyncResult is the outcome of one run as reported to the caller.
type SyncResult struct {
	FilesSynced  int      `json:"files_synced"`
	FilesSkipped int      `json:"files_skipped"`
	Errors       []string `json:"errors"`
}

// Pipeline groups the stage implementations used by SyncService.
// Encryptor is optional and only consulted when Settings.Encrypt is set.
type Pipeline struct {
	Mirror    StagingMirror
	Archiver  Archiver
	Packager  Packager
	Remote    Remote
	Encryptor Encryptor
}

// SyncService is the orchestration layer: it refreshes staging, archives,
// packages the transfer unit and uploads it when it changed.
type SyncService struct {
	database Database
	changes  *ChangeStore
	pipeline Pipeline
	settings SettingsSource
	logger   Logger
	clock    Clock
	idgen    IDGenerator
	running  atomic.Bool
}

// NewSyncService creates a new SyncService with the provided dependencies.
func NewSyncService(database Database, changes *ChangeStore, pipeline Pipeline, settings SettingsSource, logger Logger, clock Clock, idgen IDGenerator) *SyncService {
	return &SyncService{
		database: database,
		changes:  changes,
		pipeline: pipeline,
		settings: settings,
		logger:   logger,
		clock:    clock,
		idgen:    idgen,
	}
}

// IsSyncing reports whether a run is in progress.
func (s *SyncService) IsSyncing() bool {
	return s.running.Load()
}

// SyncNow runs the full pipeline once. Only one run executes at a time; a
// concurrent trigger gets ErrSyncInProgress.
//
// Remote failures are reported in the result and do not produce an error.
// Configuration, staging, packaging and change-check failures abort the run
// and are returned as errors.
func (s *SyncService) SyncNow(ctx context.Context, trigger string) (*SyncResult, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, ErrSyncInProgress
	}
	defer s.running.Store(false)

	settings, err := s.settings.Settings()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	run, err := s.database.CreateSyncRun(s.idgen.New(), trigger, s.clock.Now())
	if err != nil {
		return nil, fmt.Errorf("recording sync run: %w", err)
	}
	s.logger.Info("sync started", "run", run.RunID, "trigger", trigger)

	result, status, runErr := s.execute(ctx, run, settings)

	run.FinishedAt.Time = s.clock.Now()
	run.FinishedAt.Valid = true
	run.Status = status
	if result != nil {
		run.FilesSynced = result.FilesSynced
		run.FilesSkipped = result.FilesSkipped
		if len(result.Errors) > 0 {
			run.Error = result.Errors[0]
		}
	}
	if runErr != nil {
		run.Status = RunStatusError
		run.Error = runErr.Error()
	}
	if err := s.database.FinishSyncRun(run); err != nil {
		s.logger.Error("failed to record sync run", "run", run.RunID, "error", err)
	}

	if runErr != nil {
		s.logger.Error("sync failed", "run", run.RunID, "error", runErr)
		return nil, runErr
	}
	s.logger.Info("sync finished", "run", run.RunID, "status", status,
		"synced", result.FilesSynced, "skipped", result.FilesSkipped)
	return result, nil
}

func (s *SyncService) execute(ctx context.Context, run *model.SyncRun, settings *Settings) (*SyncResult, string, error) {
	tracked, err := s.changes.ListTracked()
	if err != nil {
		return nil, "", fmt.Errorf("listing tracked paths: %w", err)
	}
	if len(tracked) == 0 {
		s.logger.Warn("nothing tracked", "run", run.RunID)
		return &SyncResult{Errors: []string{NothingTrackedMessage}}, RunStatusError, nil
	}

	roots := make([]string, len(tracked))
	for i, tp := range tracked {
		roots[i] = tp.Path
	}

	files, err := s.changes.ListFilesToSync()
	if err != nil {
		return nil, "", err
	}

	copied, err := s.pipeline.Mirror.Refresh(settings.StagingDir, files, roots)
	if err != nil {
		return nil, "", fmt.Errorf("refreshing staging: %w", err)
	}
	s.logger.Info("staging refreshed", "run", run.RunID, "files", len(files), "copied", copied)

	archivePath, err := s.pipeline.Archiver.CreateArchive(settings.StagingDir, settings.ArchivesDir)
	if err != nil {
		s.logger.Warn("archive failed, continuing", "run", run.RunID, "error", err)
	} else {
		s.logger.Info("archive created", "run", run.RunID, "path", archivePath)
	}

	bundle, rebuilt, err := s.pipeline.Packager.Package(settings.StagingDir)
	if err != nil {
		return nil, "", fmt.Errorf("packaging: %w", err)
	}
	s.logger.Debug("transfer unit ready", "run", run.RunID, "path", bundle, "rebuilt", rebuilt)

	changed, err := s.changes.HasChanged(bundle)
	if err != nil {
		return nil, "", fmt.Errorf("checking for changes: %w", err)
	}

	now := s.clock.Now()
	if !changed {
		s.logger.Info("no changes since last sync, skipping upload", "run", run.RunID)
		s.stamp(metaLastChecked, now)
		return &SyncResult{FilesSkipped: 1, Errors: []string{}}, RunStatusSkipped, nil
	}

	fileID, err := s.upload(ctx, settings, bundle)
	if err != nil {
		s.logger.Error("upload failed", "run", run.RunID, "remote", s.pipeline.Remote.Name(), "error", err)
		return &SyncResult{Errors: []string{err.Error()}}, RunStatusError, nil
	}
	s.logger.Info("transfer unit uploaded", "run", run.RunID, "remote", s.pipeline.Remote.Name(), "id", fileID)

	if err := s.changes.MarkSynced(bundle); err != nil {
		return nil, "", fmt.Errorf("recording sync: %w", err)
	}
	s.stamp(metaLastSync, now)
	s.stamp(metaLastChecked, now)

	return &SyncResult{FilesSynced: 1, Errors: []string{}}, RunStatusSuccess, nil
}

func (s *SyncService) upload(ctx context.Context, settings *Settings, bundle string) (string, error) {
	remote := s.pipeline.Remote
	if err := remote.EnsureAuthenticated(ctx); err != nil {
		return "", fmt.Errorf("authenticating: %w", err)
	}

	folderID, err := remote.FindOrCreateFolder(ctx, settings.RemoteFolder)
	if err != nil {
		return "", fmt.Errorf("resolving folder %q: %w", settings.RemoteFolder, err)
	}
	if settings.RemoteSubfolder != "" {
		folderID, err = remote.ResolveFolderPath(ctx, folderID, settings.RemoteSubfolder)
		if err != nil {
			return "", fmt.Errorf("resolving subfolder %q: %w", settings.RemoteSubfolder, err)
		}
	}

	uploadPath := bundle
	if settings.Encrypt {
		encrypted, cleanup, err := s.encryptBundle(bundle)
		if err != nil {
			return "", err
		}
		defer cleanup()
		uploadPath = encrypted
	}

	return remote.UploadFile(ctx, uploadPath, folderID)
}

// encryptBundle writes an encrypted copy of bundle to a temporary directory.
// The returned cleanup func removes it.
func (s *SyncService) encryptBundle(bundle string) (string, func(), error) {
	if s.pipeline.Encryptor == nil {
		return "", nil, fmt.Errorf("encryption enabled but no encryptor configured")
	}

	dir, err := os.MkdirTemp("", "syncbot-upload-*")
	if err != nil {
		return "", nil, fmt.Errorf("creating temp dir: %w", err)
	}
	cleanup := func() { os.RemoveAll(dir) }

	in, err := os.Open(bundle)
	if err != nil {
		cleanup()
		return "", nil, fmt.Errorf("opening transfer unit: %w", err)
	}
	defer in.Close()

	outPath := filepath.Join(dir, filepath.Base(bundle)+".age")
	out, err := os.Create(outPath)
	if err != nil {
		cleanup()
		return "", nil, fmt.Errorf("creating encrypted file: %w", err)
	}

	if err := s.pipeline.Encryptor.Encrypt(in, out); err != nil {
		out.Close()
		cleanup()
		return "", nil, fmt.Errorf("encrypting transfer unit: %w", err)
	}
	if err := out.Close(); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("closing encrypted file: %w", err)
	}
	return outPath, cleanup, nil
}

// stamp stores t under key. Failures are logged; they never fail a run.
func (s *SyncService) stamp(key string, t time.Time) {
	if err := s.database.SetMetadata(key, t.UTC().Format(time.RFC3339)); err != nil {
		s.logger.Warn("failed to store timestamp", "key", key, "error", err)
	}
}

// RunScheduled is the entry point used by the scheduler.
func (s *SyncService) RunScheduled(ctx context.Context) error {
	result, err := s.SyncNow(ctx, TriggerScheduled)
	if err != nil {
		return err
	}
	if len(result.Errors) > 0 {
		return fmt.Errorf("scheduled sync: %s", result.Errors[0])
	}
	return nil
}

// GetHistory returns the most recent sync runs, newest first.
func (s *SyncService) GetHistory(limit int) ([]*model.SyncRun, error) {
	return s.database.ListSyncRuns(limit)
}
