package remote

import (
	"context"
	"fmt"
	"net"
	"strconv"

	"github.com/vishnu-kyatannawar/sync-bot/internal/config"
	"github.com/vishnu-kyatannawar/sync-bot/internal/syncbot"
)

// NewRemoteFromConfig creates a Remote implementation based on the remote config type.
func NewRemoteFromConfig(ctx context.Context, cfg config.RemoteConfig, logger syncbot.Logger) (syncbot.Remote, error) {
	switch cfg.Type {
	case "gdrive", "":
		return NewDriveFromConfig(cfg, logger)
	case "s3":
		return NewS3Remote(ctx, S3Options{
			Bucket:          cfg.S3Bucket,
			Prefix:          cfg.S3Prefix,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
		}, logger)
	case "filesystem":
		if cfg.FSRoot == "" {
			return nil, fmt.Errorf("filesystem remote requires fs_root to be set")
		}
		return NewFileSystemRemote(cfg.FSRoot, logger)
	case "memory":
		return NewMemoryRemote("memory"), nil
	default:
		return nil, fmt.Errorf("unknown remote type: %s", cfg.Type)
	}
}

// NewDriveFromConfig creates the Google Drive client with a file-backed
// credential store.
func NewDriveFromConfig(cfg config.RemoteConfig, logger syncbot.Logger) (*DriveRemote, error) {
	if cfg.TokenPath == "" {
		return nil, fmt.Errorf("gdrive remote requires token_path to be set")
	}
	return NewDriveRemote(DriveOptions{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  RedirectURL(cfg.RedirectPort),
	}, NewFileCredentialStore(cfg.TokenPath), logger), nil
}

// RedirectURL is the OAuth redirect registered for the local listener.
func RedirectURL(port int) string {
	if port == 0 {
		port = config.DefaultRedirectPort
	}
	return "http://localhost:" + strconv.Itoa(port)
}

// ListenAddr is where ListenForCode should listen for the given port.
func ListenAddr(port int) string {
	if port == 0 {
		port = config.DefaultRedirectPort
	}
	return net.JoinHostPort("127.0.0.1", strconv.Itoa(port))
}
