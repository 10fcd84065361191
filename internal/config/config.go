package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

// Defaults applied by NewConfig and to keys missing from a config file.
const (
	DefaultRemoteFolder    = "sync-bot-backups"
	DefaultIntervalMinutes = 60
	DefaultRedirectPort    = 14242
)

// Config represents the main configuration for syncbot.
type Config struct {
	BaseDir    string           `toml:"base_dir"`
	LogDir     string           `toml:"log_dir"`
	StagingDir string           `toml:"staging_dir,omitempty"` // empty means <base_dir>/staging
	Sync       SyncConfig       `toml:"sync"`
	Remote     RemoteConfig     `toml:"remote"`
	Database   DatabaseConfig   `toml:"database"`
	Encryption EncryptionConfig `toml:"encryption"`
	Filesystem FilesystemConfig `toml:"filesystem"`
	Log        LogConfig        `toml:"log"`
}

// SyncConfig controls when and how runs happen.
type SyncConfig struct {
	IntervalMinutes int  `toml:"interval_minutes"`
	AutoSync        bool `toml:"auto_sync"`
	ForceRehash     bool `toml:"force_rehash"` // disable the size/mtime shortcut in change detection
}

// RemoteConfig represents configuration for the backup destination.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type RemoteConfig struct {
	Type      string `toml:"type"` // "gdrive", "s3", "filesystem" or "memory"
	Folder    string `toml:"folder"`
	Subfolder string `toml:"subfolder,omitempty"`

	// Google Drive fields (only used when Type == "gdrive")
	ClientID     string `toml:"client_id,omitempty"`
	ClientSecret string `toml:"client_secret,omitempty"`
	TokenPath    string `toml:"token_path,omitempty"`
	RedirectPort int    `toml:"redirect_port,omitempty"`

	// S3 fields (only used when Type == "s3")
	S3Bucket          string `toml:"s3_bucket,omitempty"`
	S3Prefix          string `toml:"s3_prefix,omitempty"`
	S3Region          string `toml:"s3_region,omitempty"`
	S3Endpoint        string `toml:"s3_endpoint,omitempty"`
	S3AccessKeyID     string `toml:"s3_access_key_id,omitempty"`
	S3SecretAccessKey string `toml:"s3_secret_access_key,omitempty"`

	// Filesystem fields (only used when Type == "filesystem")
	FSRoot string `toml:"fs_root,omitempty"`
}

// DatabaseConfig represents configuration for the metadata database.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type DatabaseConfig struct {
	Type    string `toml:"type"`               // "sqlite" or "memory"
	DataDir string `toml:"data_dir,omitempty"` // only used for type=sqlite
}

// EncryptionConfig holds paths to the age key pair used to encrypt the transfer unit.
type EncryptionConfig struct {
	Enabled        bool   `toml:"enabled"`
	Type           string `toml:"type"` // "age" (default) or "test"
	PublicKeyPath  string `toml:"public_key_path"`
	PrivateKeyPath string `toml:"private_key_path"`
}

// FilesystemConfig holds filesystem-related settings.
type FilesystemConfig struct {
	Ignore []string `toml:"ignore"`
}

// LogConfig controls the log file and its rotation.
type LogConfig struct {
	Level      string `toml:"level"` // "debug", "info", "warn" or "error"
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days"`
	Compress   bool   `toml:"compress"`
}

// NewConfig creates a Config rooted at baseDir with default values.
func NewConfig(baseDir string) *Config {
	return &Config{
		BaseDir: baseDir,
		LogDir:  filepath.Join(baseDir, "log"),
		Sync: SyncConfig{
			IntervalMinutes: DefaultIntervalMinutes,
		},
		Remote: RemoteConfig{
			Type:         "gdrive",
			Folder:       DefaultRemoteFolder,
			TokenPath:    filepath.Join(baseDir, "tokens.json"),
			RedirectPort: DefaultRedirectPort,
		},
		Database: DatabaseConfig{
			Type:    "sqlite",
			DataDir: baseDir,
		},
		Encryption: EncryptionConfig{
			Type:           "age",
			PublicKeyPath:  filepath.Join(baseDir, "keys", "syncbot.pub"),
			PrivateKeyPath: filepath.Join(baseDir, "keys", "syncbot.key"),
		},
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
	}
}

// Validate checks values that would otherwise fail deep inside a run.
func (c *Config) Validate() error {
	if c.Sync.IntervalMinutes < 1 {
		return fmt.Errorf("sync.interval_minutes must be at least 1, got %d", c.Sync.IntervalMinutes)
	}
	switch c.Remote.Type {
	case "gdrive", "s3", "filesystem", "memory":
	default:
		return fmt.Errorf("unknown remote type: %q", c.Remote.Type)
	}
	if strings.TrimSpace(c.Remote.Folder) == "" {
		return fmt.Errorf("remote.folder must not be empty")
	}
	return nil
}

// Set assigns a single value addressed by its dotted TOML key.
func (c *Config) Set(key, value string) error {
	switch key {
	case "staging_dir":
		c.StagingDir = value
	case "sync.interval_minutes":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid interval %q: %w", value, err)
		}
		c.Sync.IntervalMinutes = n
	case "sync.auto_sync":
		return setBool(&c.Sync.AutoSync, value)
	case "sync.force_rehash":
		return setBool(&c.Sync.ForceRehash, value)
	case "remote.type":
		c.Remote.Type = value
	case "remote.folder":
		c.Remote.Folder = value
	case "remote.subfolder":
		c.Remote.Subfolder = value
	case "remote.client_id":
		c.Remote.ClientID = value
	case "remote.client_secret":
		c.Remote.ClientSecret = value
	case "encryption.enabled":
		return setBool(&c.Encryption.Enabled, value)
	case "log.level":
		c.Log.Level = value
	default:
		return fmt.Errorf("unknown config key: %q", key)
	}
	return nil
}

func setBool(dst *bool, value string) error {
	b, err := strconv.ParseBool(value)
	if err != nil {
		return fmt.Errorf("invalid boolean %q: %w", value, err)
	}
	*dst = b
	return nil
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from the provided reader.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	return m.ReadWithDefaults(r, &Config{})
}

// ReadWithDefaults decodes r on top of defaults, so keys absent from the
// input keep their default values. defaults is modified and returned.
func (m *Manager) ReadWithDefaults(r io.Reader, defaults *Config) (*Config, error) {
	if _, err := toml.NewDecoder(r).Decode(defaults); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return defaults, nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads a Config from the specified file path.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return cfg, nil
}

// writeToFile writes a Config atomically (temp file + rename). The file may hold
// the OAuth client secret, so it is private to the user.
func writeToFile(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".config-*.toml")
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to set config permissions: %w", err)
	}

	m := &Manager{}
	if err := m.Write(tmp, cfg); err != nil {
		tmp.Close()
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close config file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to replace config file: %w", err)
	}
	return nil
}

// Init initializes a new config file at the specified path with the provided Config.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}
