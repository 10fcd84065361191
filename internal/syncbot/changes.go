package syncbot

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path/filepath"

	"github.com/vishnu-kyatannawar/sync-bot/internal/model"
)

// ChangeStore decides, per path, whether content changed since it was last
// marked synced, and owns the set of tracked paths.
//
// Size and modification time (seconds) act as a pre-filter: when both match the
// stored fingerprint the file is reported unchanged without rehashing. A rewrite
// that keeps both identical is therefore missed unless force rehash is enabled.
type ChangeStore struct {
	db          Database
	fsmgr       FilesystemManager
	clock       Clock
	logger      Logger
	forceRehash bool
}

var _ ChangeTracker = (*ChangeStore)(nil)

// NewChangeStore creates a ChangeStore backed by db.
func NewChangeStore(db Database, fsmgr FilesystemManager, clock Clock, logger Logger) *ChangeStore {
	return &ChangeStore{
		db:     db,
		fsmgr:  fsmgr,
		clock:  clock,
		logger: logger,
	}
}

// SetForceRehash disables the size/mtime pre-filter so every check rehashes.
func (s *ChangeStore) SetForceRehash(force bool) {
	s.forceRehash = force
}

// HasChanged reports whether path differs from its stored fingerprint.
// A path without a fingerprint is always changed. I/O failures are returned
// as errors rather than treated as a change.
func (s *ChangeStore) HasChanged(path string) (bool, error) {
	fp, err := s.db.FindFingerprint(path)
	if err != nil {
		return false, fmt.Errorf("loading fingerprint: %w", err)
	}
	if fp == nil {
		return true, nil
	}

	info, err := s.fsmgr.Stat(path)
	if err != nil {
		return false, fmt.Errorf("stat %s: %w", path, err)
	}

	if !s.forceRehash && info.Size() == fp.Size && info.ModTime().Unix() == fp.Modified {
		return false, nil
	}

	hash, err := s.hashFile(path)
	if err != nil {
		return false, err
	}
	return hash != fp.Hash, nil
}

// MarkSynced records the current hash, size and mtime of path with the
// current time as its last-synced stamp.
func (s *ChangeStore) MarkSynced(path string) error {
	info, err := s.fsmgr.Stat(path)
	if err != nil {
		return fmt.Errorf("stat %s: %w", path, err)
	}

	hash, err := s.hashFile(path)
	if err != nil {
		return err
	}

	now := s.clock.Now()
	fp := &model.FileFingerprint{
		Path:      path,
		Hash:      hash,
		Size:      info.Size(),
		Modified:  info.ModTime().Unix(),
		CreatedAt: now,
	}
	fp.LastSynced.Time = now
	fp.LastSynced.Valid = true

	if err := s.db.UpsertFingerprint(fp); err != nil {
		return fmt.Errorf("saving fingerprint: %w", err)
	}
	return nil
}

// AddTracked resolves rawPath and starts tracking it. The path must exist.
// Adding an already tracked path is a no-op.
func (s *ChangeStore) AddTracked(rawPath string) (*Path, error) {
	p, err := s.fsmgr.Resolve(rawPath)
	if err != nil {
		return nil, fmt.Errorf("resolving path: %w", err)
	}
	if err := s.db.InsertTrackedPath(p.String(), p.IsDir()); err != nil {
		return nil, fmt.Errorf("adding tracked path: %w", err)
	}
	s.logger.Info("path tracked", "path", p.String(), "directory", p.IsDir())
	return p, nil
}

// RemoveTracked stops tracking rawPath. The path does not need to exist on disk.
func (s *ChangeStore) RemoveTracked(rawPath string) error {
	absPath, err := filepath.Abs(rawPath)
	if err != nil {
		return fmt.Errorf("resolving path: %w", err)
	}
	if err := s.db.DeleteTrackedPath(absPath); err != nil {
		return fmt.Errorf("removing tracked path: %w", err)
	}
	s.logger.Info("path untracked", "path", absPath)
	return nil
}

// ListTracked returns tracked paths ordered by path.
func (s *ChangeStore) ListTracked() ([]*model.TrackedPath, error) {
	return s.db.ListTrackedPaths()
}

// ListFilesToSync expands the tracked paths into concrete files. Tracked files
// are returned as-is; tracked directories are walked recursively. Tracked
// paths missing from disk are skipped.
func (s *ChangeStore) ListFilesToSync() ([]string, error) {
	tracked, err := s.db.ListTrackedPaths()
	if err != nil {
		return nil, fmt.Errorf("listing tracked paths: %w", err)
	}

	seen := make(map[string]bool)
	var files []string
	add := func(path string) {
		if seen[path] {
			return
		}
		seen[path] = true
		files = append(files, path)
	}

	for _, tp := range tracked {
		p, err := s.fsmgr.Resolve(tp.Path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				s.logger.Warn("tracked path missing, skipping", "path", tp.Path)
				continue
			}
			return nil, fmt.Errorf("resolving %s: %w", tp.Path, err)
		}

		if !p.IsDir() {
			add(p.String())
			continue
		}

		found, err := s.fsmgr.FindFiles(p)
		if err != nil {
			return nil, fmt.Errorf("enumerating %s: %w", p.String(), err)
		}
		for _, f := range found {
			add(f.String())
		}
	}

	return files, nil
}

func (s *ChangeStore) hashFile(path string) (string, error) {
	r, err := s.fsmgr.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening %s: %w", path, err)
	}
	defer r.Close()

	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", fmt.Errorf("hashing %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
