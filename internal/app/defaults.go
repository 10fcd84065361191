package app

import (
	"fmt"
	"os"
	"path/filepath"
)

// Environment variables consulted by GetDefaults.
const (
	EnvConfigPath = "SYNC_BOT_CONFIG_PATH"
	EnvHome       = "SYNC_BOT_HOME"
)

// GetDefaults returns application default paths, checking environment variables first.
// Environment variables:
//   - SYNC_BOT_CONFIG_PATH: config file location (default: ~/.config/sync-bot/config.toml)
//   - SYNC_BOT_HOME: data directory (default: ~/.local/share/sync-bot)
func GetDefaults() (map[string]string, error) {
	configPath, err := fromEnvOrHome(EnvConfigPath, ".config", "sync-bot", "config.toml")
	if err != nil {
		return nil, err
	}
	baseDir, err := fromEnvOrHome(EnvHome, ".local", "share", "sync-bot")
	if err != nil {
		return nil, err
	}

	return map[string]string{
		"config_path": configPath,
		"base_dir":    baseDir,
		"log_dir":     filepath.Join(baseDir, "log"),
	}, nil
}

// fromEnvOrHome returns the value of env, or elem joined below the home directory.
func fromEnvOrHome(env string, elem ...string) (string, error) {
	if path := os.Getenv(env); path != "" {
		return path, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(append([]string{homeDir}, elem...)...), nil
}
