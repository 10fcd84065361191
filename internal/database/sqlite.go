package database

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vishnu-kyatannawar/sync-bot/internal/database/migrations"
	"github.com/vishnu-kyatannawar/sync-bot/internal/model"
	"github.com/vishnu-kyatannawar/sync-bot/internal/syncbot"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLiteDatabase implements the Database interface using SQLite.
// Timestamps are stored as unix seconds.
type SQLiteDatabase struct {
	db    *sql.DB
	clock syncbot.Clock
	path  string
}

// NewSQLiteDatabase creates a new SQLite database connection.
// path can be a file path or ":memory:" for in-memory database.
// A nil clock uses the real time.
func NewSQLiteDatabase(path string, clock syncbot.Clock) (*SQLiteDatabase, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}

	d := NewSQLiteDatabaseFromDB(db, clock)
	d.path = path
	return d, nil
}

// NewSQLiteDatabaseFromDB wraps an existing database connection.
// The caller is responsible for ensuring the connection is properly configured.
func NewSQLiteDatabaseFromDB(db *sql.DB, clock syncbot.Clock) *SQLiteDatabase {
	if clock == nil {
		clock = syncbot.SystemClock
	}
	return &SQLiteDatabase{
		db:    db,
		clock: clock,
	}
}

// OpenConnection opens and configures a SQLite database connection with appropriate PRAGMAs.
// The pool is limited to a single connection: an in-memory database exists per
// connection, and a single writer avoids SQLITE_BUSY between our own queries.
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	if path != ":memory:" {
		pragmas = append(pragmas, "PRAGMA journal_mode = WAL")
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", p, err)
		}
	}

	return db, nil
}

// Tracked path operations

func (s *SQLiteDatabase) InsertTrackedPath(path string, isDirectory bool) error {
	_, err := s.db.Exec(
		`INSERT OR IGNORE INTO tracked_paths (path, is_directory, created_at) VALUES (?, ?, ?)`,
		path, isDirectory, s.clock.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("inserting tracked path: %w", err)
	}
	return nil
}

func (s *SQLiteDatabase) DeleteTrackedPath(path string) error {
	if _, err := s.db.Exec(`DELETE FROM tracked_paths WHERE path = ?`, path); err != nil {
		return fmt.Errorf("deleting tracked path: %w", err)
	}
	return nil
}

func (s *SQLiteDatabase) ListTrackedPaths() ([]*model.TrackedPath, error) {
	rows, err := s.db.Query(`SELECT id, path, is_directory, created_at FROM tracked_paths ORDER BY path`)
	if err != nil {
		return nil, fmt.Errorf("listing tracked paths: %w", err)
	}
	defer rows.Close()

	var result []*model.TrackedPath
	for rows.Next() {
		var tp model.TrackedPath
		var createdAt int64
		if err := rows.Scan(&tp.ID, &tp.Path, &tp.IsDirectory, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning tracked path: %w", err)
		}
		tp.CreatedAt = time.Unix(createdAt, 0)
		result = append(result, &tp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing tracked paths: %w", err)
	}
	return result, nil
}

// Fingerprint operations

func (s *SQLiteDatabase) FindFingerprint(path string) (*model.FileFingerprint, error) {
	var fp model.FileFingerprint
	var lastSynced sql.NullInt64
	var createdAt int64

	err := s.db.QueryRow(
		`SELECT id, path, hash, size, modified, last_synced, created_at FROM file_metadata WHERE path = ?`,
		path,
	).Scan(&fp.ID, &fp.Path, &fp.Hash, &fp.Size, &fp.Modified, &lastSynced, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("finding fingerprint: %w", err)
	}

	fp.CreatedAt = time.Unix(createdAt, 0)
	if lastSynced.Valid {
		fp.LastSynced = sql.NullTime{Time: time.Unix(lastSynced.Int64, 0), Valid: true}
	}
	return &fp, nil
}

func (s *SQLiteDatabase) UpsertFingerprint(fp *model.FileFingerprint) error {
	var lastSynced sql.NullInt64
	if fp.LastSynced.Valid {
		lastSynced = sql.NullInt64{Int64: fp.LastSynced.Time.Unix(), Valid: true}
	}
	createdAt := fp.CreatedAt
	if createdAt.IsZero() {
		createdAt = s.clock.Now()
	}

	_, err := s.db.Exec(`
		INSERT INTO file_metadata (path, hash, size, modified, last_synced, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			hash = excluded.hash,
			size = excluded.size,
			modified = excluded.modified,
			last_synced = excluded.last_synced`,
		fp.Path, fp.Hash, fp.Size, fp.Modified, lastSynced, createdAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("upserting fingerprint: %w", err)
	}
	return nil
}

// Key/value metadata

func (s *SQLiteDatabase) GetMetadata(key string) (string, bool, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM app_metadata WHERE key = ?`, key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("reading metadata %s: %w", key, err)
	}
	return value, true, nil
}

func (s *SQLiteDatabase) SetMetadata(key, value string) error {
	_, err := s.db.Exec(`
		INSERT INTO app_metadata (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, s.clock.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("writing metadata %s: %w", key, err)
	}
	return nil
}

// Sync run tracking

func (s *SQLiteDatabase) CreateSyncRun(runID, trigger string, startedAt time.Time) (*model.SyncRun, error) {
	res, err := s.db.Exec(
		`INSERT INTO sync_runs (run_id, trigger_source, started_at, status) VALUES (?, ?, ?, ?)`,
		runID, trigger, startedAt.Unix(), syncbot.RunStatusRunning,
	)
	if err != nil {
		return nil, fmt.Errorf("creating sync run: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("creating sync run: %w", err)
	}
	return &model.SyncRun{
		ID:        id,
		RunID:     runID,
		Trigger:   trigger,
		StartedAt: time.Unix(startedAt.Unix(), 0),
		Status:    syncbot.RunStatusRunning,
	}, nil
}

func (s *SQLiteDatabase) FinishSyncRun(run *model.SyncRun) error {
	var finishedAt sql.NullInt64
	if run.FinishedAt.Valid {
		finishedAt = sql.NullInt64{Int64: run.FinishedAt.Time.Unix(), Valid: true}
	}
	_, err := s.db.Exec(`
		UPDATE sync_runs
		SET finished_at = ?, status = ?, files_synced = ?, files_skipped = ?, error = ?
		WHERE id = ?`,
		finishedAt, run.Status, run.FilesSynced, run.FilesSkipped, run.Error, run.ID,
	)
	if err != nil {
		return fmt.Errorf("finishing sync run: %w", err)
	}
	return nil
}

func (s *SQLiteDatabase) ListSyncRuns(limit int) ([]*model.SyncRun, error) {
	rows, err := s.db.Query(`
		SELECT id, run_id, trigger_source, started_at, finished_at, status, files_synced, files_skipped, error
		FROM sync_runs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing sync runs: %w", err)
	}
	defer rows.Close()

	var result []*model.SyncRun
	for rows.Next() {
		var run model.SyncRun
		var startedAt int64
		var finishedAt sql.NullInt64
		if err := rows.Scan(&run.ID, &run.RunID, &run.Trigger, &startedAt, &finishedAt,
			&run.Status, &run.FilesSynced, &run.FilesSkipped, &run.Error); err != nil {
			return nil, fmt.Errorf("scanning sync run: %w", err)
		}
		run.StartedAt = time.Unix(startedAt, 0)
		if finishedAt.Valid {
			run.FinishedAt = sql.NullTime{Time: time.Unix(finishedAt.Int64, 0), Valid: true}
		}
		result = append(result, &run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing sync runs: %w", err)
	}
	return result, nil
}

// Path returns the database file path (or ":memory:" for in-memory databases).
func (s *SQLiteDatabase) Path() string {
	return s.path
}

// Migrate applies pending schema migrations.
func (s *SQLiteDatabase) Migrate() error {
	return migrations.MigrateUp(s.db)
}

// CheckMigrations verifies the database schema is up-to-date.
func (s *SQLiteDatabase) CheckMigrations() error {
	return migrations.CheckDBMigrationStatus(s.db)
}

// Close closes the database connection.
func (s *SQLiteDatabase) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Compile-time check that SQLiteDatabase implements syncbot.Database interface
var _ syncbot.Database = (*SQLiteDatabase)(nil)
