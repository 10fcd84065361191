package app

import (
	"fmt"
	"time"

	"github.com/vishnu-kyatannawar/sync-bot/internal/config"
	"github.com/vishnu-kyatannawar/sync-bot/internal/syncbot"
)

// providerSettings adapts config.Provider to syncbot.SettingsSource. The
// config file is re-read on every call.
type providerSettings struct {
	provider *config.Provider
}

var _ syncbot.SettingsSource = (*providerSettings)(nil)

func (p *providerSettings) Settings() (*syncbot.Settings, error) {
	cfg, err := p.provider.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	stagingDir, err := cfg.StagingDirPath()
	if err != nil {
		return nil, err
	}
	archivesDir, err := cfg.ArchivesDirPath()
	if err != nil {
		return nil, err
	}

	return &syncbot.Settings{
		StagingDir:      stagingDir,
		ArchivesDir:     archivesDir,
		RemoteFolder:    cfg.Remote.Folder,
		RemoteSubfolder: cfg.Remote.Subfolder,
		SyncInterval:    time.Duration(cfg.Sync.IntervalMinutes) * time.Minute,
		AutoSync:        cfg.Sync.AutoSync,
		Encrypt:         cfg.Encryption.Enabled,
	}, nil
}

// schedule feeds the daemon's scheduler.
func (p *providerSettings) schedule() (time.Duration, bool, error) {
	cfg, err := p.provider.Load()
	if err != nil {
		return 0, false, err
	}
	return time.Duration(cfg.Sync.IntervalMinutes) * time.Minute, cfg.Sync.AutoSync, nil
}
