package app

import (
	"context"
	"fmt"
	"sync"

	"github.com/vishnu-kyatannawar/sync-bot/internal/config"
	"github.com/vishnu-kyatannawar/sync-bot/internal/remote"
	"github.com/vishnu-kyatannawar/sync-bot/internal/syncbot"
)

// reloadingRemote re-reads the [remote] section at the start of every upload
// and rebuilds the backend when it changed. A running daemon picks up new
// client credentials or a different remote.type on its next sync.
type reloadingRemote struct {
	provider *config.Provider
	logger   syncbot.Logger

	mu      sync.Mutex
	cfg     config.RemoteConfig
	current syncbot.Remote
}

var _ syncbot.Remote = (*reloadingRemote)(nil)

func newReloadingRemote(ctx context.Context, provider *config.Provider, cfg config.RemoteConfig, logger syncbot.Logger) (*reloadingRemote, error) {
	rem, err := remote.NewRemoteFromConfig(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	return &reloadingRemote{provider: provider, logger: logger, cfg: cfg, current: rem}, nil
}

// backend returns the remote built from the last seen config.
func (r *reloadingRemote) backend() syncbot.Remote {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

func (r *reloadingRemote) reload(ctx context.Context) (syncbot.Remote, error) {
	cfg, err := r.provider.Load()
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if cfg.Remote == r.cfg {
		return r.current, nil
	}

	rem, err := remote.NewRemoteFromConfig(ctx, cfg.Remote, r.logger)
	if err != nil {
		return nil, fmt.Errorf("creating remote: %w", err)
	}
	r.logger.Info("remote config changed, backend rebuilt", "from", r.current.Name(), "to", rem.Name())
	r.cfg, r.current = cfg.Remote, rem
	return rem, nil
}

func (r *reloadingRemote) Name() string { return r.backend().Name() }

func (r *reloadingRemote) EnsureAuthenticated(ctx context.Context) error {
	rem, err := r.reload(ctx)
	if err != nil {
		return err
	}
	return rem.EnsureAuthenticated(ctx)
}

func (r *reloadingRemote) FindOrCreateFolder(ctx context.Context, name string) (string, error) {
	return r.backend().FindOrCreateFolder(ctx, name)
}

func (r *reloadingRemote) ResolveFolderPath(ctx context.Context, rootID, relativePath string) (string, error) {
	return r.backend().ResolveFolderPath(ctx, rootID, relativePath)
}

func (r *reloadingRemote) UploadFile(ctx context.Context, localPath, parentID string) (string, error) {
	return r.backend().UploadFile(ctx, localPath, parentID)
}
