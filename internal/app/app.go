package app

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/vishnu-kyatannawar/sync-bot/internal/archive"
	"github.com/vishnu-kyatannawar/sync-bot/internal/config"
	"github.com/vishnu-kyatannawar/sync-bot/internal/database"
	"github.com/vishnu-kyatannawar/sync-bot/internal/encryption"
	"github.com/vishnu-kyatannawar/sync-bot/internal/fs"
	"github.com/vishnu-kyatannawar/sync-bot/internal/model"
	"github.com/vishnu-kyatannawar/sync-bot/internal/remote"
	"github.com/vishnu-kyatannawar/sync-bot/internal/scheduler"
	"github.com/vishnu-kyatannawar/sync-bot/internal/staging"
	"github.com/vishnu-kyatannawar/sync-bot/internal/syncbot"
)

// Options tweak how NewSyncApp builds its dependencies.
type Options struct {
	// Console, when set, receives a copy of every log line.
	Console io.Writer
}

// SyncApp is the application layer between the CLI and SyncService.
// It constructs all dependencies from config, exposes high-level operations
// that accept raw string paths, and closes the database and log file on Close.
type SyncApp struct {
	cfg       *config.Config
	settings  *providerSettings
	db        *database.SQLiteDatabase
	changes   *syncbot.ChangeStore
	remote    *reloadingRemote
	encryptor syncbot.Encryptor
	service   *syncbot.SyncService
	logger    syncbot.Logger
	clock     syncbot.Clock
	logFile   io.Closer
}

// NewSyncApp creates a fully wired SyncApp from the config behind provider.
// The caller must call Close when done.
func NewSyncApp(ctx context.Context, provider *config.Provider, opts Options) (*SyncApp, error) {
	cfg, err := provider.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	invocation := time.Now().UTC().Format("20060102T150405Z")
	slogger, logFile, err := newLogger(cfg.Log, cfg.LogDir, invocation, opts.Console)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	logger := &slogAdapter{l: slogger}

	fail := func(err error, closers ...io.Closer) (*SyncApp, error) {
		for _, c := range closers {
			c.Close()
		}
		logFile.Close()
		return nil, err
	}

	clock := syncbot.SystemClock
	db, err := database.NewDatabaseFromConfig(cfg.Database, clock)
	if err != nil {
		return fail(fmt.Errorf("opening database: %w", err))
	}

	rem, err := newReloadingRemote(ctx, provider, cfg.Remote, logger)
	if err != nil {
		return fail(fmt.Errorf("creating remote: %w", err), db)
	}

	enc, err := encryption.NewEncryptorFromConfig(cfg.Encryption)
	if err != nil {
		return fail(fmt.Errorf("creating encryptor: %w", err), db)
	}

	changes := syncbot.NewChangeStore(db, fs.NewOSFilesystemManager(cfg.Filesystem.Ignore), clock, logger)
	changes.SetForceRehash(cfg.Sync.ForceRehash)

	settings := &providerSettings{provider: provider}
	pipeline := syncbot.Pipeline{
		Mirror:    staging.NewMirror(changes, logger),
		Archiver:  archive.NewManager(clock, logger),
		Packager:  archive.NewPackager(logger),
		Remote:    rem,
		Encryptor: enc,
	}
	svc := syncbot.NewSyncService(db, changes, pipeline, settings, logger, clock, syncbot.RunIDs)

	return &SyncApp{
		cfg:       cfg,
		settings:  settings,
		db:        db,
		changes:   changes,
		remote:    rem,
		encryptor: enc,
		service:   svc,
		logger:    logger,
		clock:     clock,
		logFile:   logFile,
	}, nil
}

// Config returns the configuration the app was built from.
func (a *SyncApp) Config() *config.Config {
	return a.cfg
}

// Track resolves rawPath and starts tracking it.
func (a *SyncApp) Track(rawPath string) (*syncbot.Path, error) {
	return a.changes.AddTracked(rawPath)
}

// Untrack stops tracking rawPath.
func (a *SyncApp) Untrack(rawPath string) error {
	return a.changes.RemoveTracked(rawPath)
}

// ListTracked returns the tracked paths ordered by path.
func (a *SyncApp) ListTracked() ([]*model.TrackedPath, error) {
	return a.changes.ListTracked()
}

// SyncNow runs the pipeline once on demand.
func (a *SyncApp) SyncNow(ctx context.Context) (*syncbot.SyncResult, error) {
	return a.service.SyncNow(ctx, syncbot.TriggerManual)
}

// Status reports the last and next sync times.
func (a *SyncApp) Status() (*syncbot.SyncStatus, error) {
	return a.service.Status()
}

// GetHistory returns the most recent sync runs.
func (a *SyncApp) GetHistory(limit int) ([]*model.SyncRun, error) {
	return a.service.GetHistory(limit)
}

// ListArchives returns the retained archives, newest first.
func (a *SyncApp) ListArchives() ([]archive.Info, error) {
	dir, err := a.cfg.ArchivesDirPath()
	if err != nil {
		return nil, err
	}
	return archive.ListArchives(dir)
}

// RunDaemon runs the scheduler until ctx is cancelled. Schedule and remote
// settings are re-read from the config file while it runs.
func (a *SyncApp) RunDaemon(ctx context.Context) error {
	sched, err := scheduler.NewIntervalScheduler(a.service, a.settings.schedule, a.clock, a.logger)
	if err != nil {
		return err
	}
	return sched.Run(ctx)
}

// Drive returns the Google Drive remote, or an error when another backend
// is configured.
func (a *SyncApp) Drive() (*remote.DriveRemote, error) {
	d, ok := a.remote.backend().(*remote.DriveRemote)
	if !ok {
		return nil, fmt.Errorf("remote type %q does not use OAuth", a.cfg.Remote.Type)
	}
	return d, nil
}

// Login runs the browser authorization flow: it prints the consent URL to
// out, waits for the redirect on the local listener and stores the tokens.
func (a *SyncApp) Login(ctx context.Context, out io.Writer) error {
	d, err := a.Drive()
	if err != nil {
		return err
	}
	url, err := d.AuthURL()
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Open this URL in your browser to authorize sync-bot:\n\n  %s\n\nWaiting for authorization...\n", url)

	code, err := remote.ListenForCode(ctx, remote.ListenAddr(a.cfg.Remote.RedirectPort))
	if err != nil {
		return fmt.Errorf("waiting for authorization: %w", err)
	}
	if err := d.ExchangeCode(ctx, code); err != nil {
		return err
	}
	a.logger.Info("authorization complete")
	return nil
}

// InitEncryption generates the age key pair.
func (a *SyncApp) InitEncryption(passphrase string) error {
	return a.encryptor.Setup(passphrase)
}

// EncryptionConfigured reports whether the key pair exists.
func (a *SyncApp) EncryptionConfigured() bool {
	return a.encryptor.IsConfigured()
}

// Decrypt unlocks the private key with passphrase and decrypts src into dst.
func (a *SyncApp) Decrypt(src, dst, passphrase string) error {
	dc, err := a.encryptor.Unlock(passphrase)
	if err != nil {
		return err
	}
	if err := encryption.DecryptFile(dc, src, dst); err != nil {
		return err
	}
	a.logger.Info("file decrypted", "src", src, "dst", dst)
	return nil
}

// Close closes the database and the log file.
func (a *SyncApp) Close() error {
	var firstErr error
	if err := a.db.Close(); err != nil {
		firstErr = fmt.Errorf("closing database: %w", err)
	}
	if a.logFile != nil {
		if err := a.logFile.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("closing log file: %w", err)
		}
	}
	return firstErr
}
