package archive

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/vishnu-kyatannawar/sync-bot/internal/syncbot"
)

// BundleName is the transfer unit written to the staging root.
const BundleName = "backup.zip"

// trackedDir mirrors staging.TrackedDir.
const trackedDir = "tracked"

// bundleEpoch stamps every bundle entry so identical content yields an
// identical bundle.
var bundleEpoch = time.Date(1980, 1, 1, 0, 0, 0, 0, time.UTC)

// Packager builds <staging>/backup.zip from the contents of <staging>/tracked.
type Packager struct {
	logger syncbot.Logger
}

var _ syncbot.Packager = (*Packager)(nil)

func NewPackager(logger syncbot.Logger) *Packager {
	return &Packager{logger: logger}
}

// Package rebuilds the bundle when it is missing or older than anything in
// the tracked tree, and returns its path.
func (p *Packager) Package(stagingRoot string) (string, bool, error) {
	src := filepath.Join(stagingRoot, trackedDir)
	dst := filepath.Join(stagingRoot, BundleName)

	if err := os.MkdirAll(src, 0755); err != nil {
		return "", false, fmt.Errorf("creating tracked directory: %w", err)
	}

	stale, err := needsRebuild(src, dst)
	if err != nil {
		return "", false, err
	}
	if !stale {
		return dst, false, nil
	}

	if err := writeZip(dst, src, zipOptions{modified: bundleEpoch}); err != nil {
		return "", false, fmt.Errorf("building %s: %w", BundleName, err)
	}
	p.logger.Debug("transfer unit rebuilt", "path", dst)
	return dst, true, nil
}

// needsRebuild compares the bundle's mtime with the newest file or directory
// under src. Directory mtimes catch deletions.
func needsRebuild(src, dst string) (bool, error) {
	bundle, err := os.Stat(dst)
	if os.IsNotExist(err) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("stat %s: %w", dst, err)
	}

	stale := false
	err = filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if info.ModTime().After(bundle.ModTime()) {
			stale = true
			return filepath.SkipAll
		}
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("scanning %s: %w", src, err)
	}
	return stale, nil
}
