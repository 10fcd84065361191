package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// Environment variables consulted by the provider.
const (
	EnvStagingDir   = "SYNC_BOT_STAGING_DIR"
	EnvClientID     = "GOOGLE_CLIENT_ID"
	EnvClientSecret = "GOOGLE_CLIENT_SECRET"
)

// Provider loads and updates the config file at a fixed path. A missing file
// yields the defaults for baseDir. Every Load reads the file again, so long
// running processes observe edits made by other invocations.
type Provider struct {
	path    string
	baseDir string
	mu      sync.Mutex
}

// NewProvider creates a Provider for the config file at path.
func NewProvider(path, baseDir string) *Provider {
	return &Provider{path: path, baseDir: baseDir}
}

// Path returns the config file location.
func (p *Provider) Path() string {
	return p.path
}

// Load reads the config, falling back to defaults for absent keys or an
// absent file. OAuth client credentials fall back to the environment.
func (p *Provider) Load() (*Config, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.load()
}

func (p *Provider) load() (*Config, error) {
	cfg := NewConfig(p.baseDir)

	f, err := os.Open(p.path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("failed to open config file: %w", err)
	default:
		defer f.Close()
		m := &Manager{}
		if cfg, err = m.ReadWithDefaults(f, cfg); err != nil {
			return nil, fmt.Errorf("reading config from %s: %w", p.path, err)
		}
	}

	if cfg.Remote.ClientID == "" {
		cfg.Remote.ClientID = os.Getenv(EnvClientID)
	}
	if cfg.Remote.ClientSecret == "" {
		cfg.Remote.ClientSecret = os.Getenv(EnvClientSecret)
	}
	return cfg, nil
}

// Update loads the config, applies mutate, validates and writes it back.
func (p *Provider) Update(mutate func(*Config) error) (*Config, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	cfg, err := p.load()
	if err != nil {
		return nil, err
	}
	if err := mutate(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if err := writeToFile(p.path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// StagingDirPath returns the staging root, creating it if needed.
// SYNC_BOT_STAGING_DIR takes precedence over the config file.
func (c *Config) StagingDirPath() (string, error) {
	dir := os.Getenv(EnvStagingDir)
	if dir == "" {
		dir = c.StagingDir
	}
	if dir == "" {
		dir = filepath.Join(c.BaseDir, "staging")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("creating staging directory: %w", err)
	}
	return dir, nil
}

// ArchivesDirPath returns the archives directory, creating it if needed.
func (c *Config) ArchivesDirPath() (string, error) {
	dir := filepath.Join(c.BaseDir, "archives")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("creating archives directory: %w", err)
	}
	return dir, nil
}

// StagingDir loads the config and returns its staging root, creating it if needed.
func (p *Provider) StagingDir() (string, error) {
	cfg, err := p.Load()
	if err != nil {
		return "", err
	}
	return cfg.StagingDirPath()
}

// ArchivesDir loads the config and returns its archives directory, creating it if needed.
func (p *Provider) ArchivesDir() (string, error) {
	cfg, err := p.Load()
	if err != nil {
		return "", err
	}
	return cfg.ArchivesDirPath()
}
