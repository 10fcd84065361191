package database

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/vishnu-kyatannawar/sync-bot/internal/config"
	"github.com/vishnu-kyatannawar/sync-bot/internal/syncbot"
)

// DatabaseFileName is the SQLite file created inside the data directory.
const DatabaseFileName = "sync_bot.db"

// NewDatabaseFromConfig creates a Database implementation based on the database
// config type and brings its schema up to date.
func NewDatabaseFromConfig(cfg config.DatabaseConfig, clock syncbot.Clock) (*SQLiteDatabase, error) {
	var path string
	switch cfg.Type {
	case "sqlite", "":
		if cfg.DataDir == "" {
			return nil, fmt.Errorf("data_dir required for sqlite database")
		}
		if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		path = filepath.Join(cfg.DataDir, DatabaseFileName)
	case "memory":
		path = ":memory:"
	default:
		return nil, fmt.Errorf("unknown database type: %s", cfg.Type)
	}

	db, err := NewSQLiteDatabase(path, clock)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating database: %w", err)
	}
	if err := db.CheckMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("database schema out of date: %w", err)
	}
	return db, nil
}
