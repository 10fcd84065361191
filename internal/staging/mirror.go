package staging

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/vishnu-kyatannawar/sync-bot/internal/syncbot"
)

// TrackedDir is the subdirectory of the staging root that mirrors tracked paths.
const TrackedDir = "tracked"

// Mirror implements syncbot.StagingMirror by copying tracked files into
// <staging>/tracked. Copies are incremental: a source whose fingerprint is
// unchanged and whose destination exists is left alone.
type Mirror struct {
	tracker syncbot.ChangeTracker
	logger  syncbot.Logger
}

var _ syncbot.StagingMirror = (*Mirror)(nil)

// NewMirror creates a Mirror that consults tracker for change detection.
func NewMirror(tracker syncbot.ChangeTracker, logger syncbot.Logger) *Mirror {
	return &Mirror{tracker: tracker, logger: logger}
}

// Refresh copies files into stagingRoot and returns how many were copied.
// The first copy failure aborts the refresh.
func (m *Mirror) Refresh(stagingRoot string, files []string, tracked []string) (int, error) {
	stagingRoot, err := filepath.Abs(stagingRoot)
	if err != nil {
		return 0, fmt.Errorf("resolving staging root: %w", err)
	}

	copied := 0
	for _, src := range files {
		if isWithin(stagingRoot, src) {
			m.logger.Debug("skipping file inside staging", "path", src)
			continue
		}

		dst := Destination(stagingRoot, src, tracked)
		if _, err := os.Stat(dst); err == nil {
			changed, err := m.tracker.HasChanged(src)
			if err != nil {
				return copied, fmt.Errorf("checking %s: %w", src, err)
			}
			if !changed {
				continue
			}
		}

		stable, err := copyFile(src, dst)
		if err != nil {
			return copied, fmt.Errorf("copying %s: %w", src, err)
		}
		copied++

		if !stable {
			// Recopied on the next run since no fingerprint is recorded.
			m.logger.Warn("file changed while copying", "path", src)
			continue
		}
		if err := m.tracker.MarkSynced(src); err != nil {
			return copied, fmt.Errorf("recording %s: %w", src, err)
		}
		m.logger.Debug("file staged", "path", src, "dest", dst)
	}
	return copied, nil
}

// Destination maps a source file to its location below stagingRoot using the
// longest tracked root that contains it. A tracked file lands at
// tracked/<name>; a file below a tracked directory at tracked/<dir>/<rel>.
// Sources outside every tracked root fall back to tracked/<name>.
func Destination(stagingRoot, src string, tracked []string) string {
	base := filepath.Join(stagingRoot, TrackedDir)

	best := ""
	for _, root := range tracked {
		if (src == root || isWithin(root, src)) && len(root) > len(best) {
			best = root
		}
	}

	switch {
	case best == "" || best == src:
		return filepath.Join(base, filepath.Base(src))
	default:
		rel, _ := filepath.Rel(best, src)
		return filepath.Join(base, filepath.Base(best), rel)
	}
}

// isWithin reports whether path lies strictly below root on a path-segment boundary.
func isWithin(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil || rel == "." {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// copyFile atomically replaces dst with the content and permission bits of
// src. It reports stable=false when src changed while it was being read.
func copyFile(src, dst string) (stable bool, err error) {
	in, err := os.Open(src)
	if err != nil {
		return false, fmt.Errorf("opening source: %w", err)
	}
	defer in.Close()

	before, err := in.Stat()
	if err != nil {
		return false, fmt.Errorf("stat source: %w", err)
	}

	dir := filepath.Dir(dst)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return false, fmt.Errorf("creating destination directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".syncbot-*")
	if err != nil {
		return false, fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := io.Copy(tmp, in); err != nil {
		tmp.Close()
		return false, fmt.Errorf("writing content: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return false, fmt.Errorf("syncing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return false, fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, before.Mode().Perm()); err != nil {
		return false, fmt.Errorf("setting permissions: %w", err)
	}

	if err := removeExisting(dst); err != nil {
		return false, err
	}
	if err := os.Rename(tmpPath, dst); err != nil {
		return false, fmt.Errorf("renaming into place: %w", err)
	}

	after, err := os.Stat(src)
	if err != nil {
		return false, fmt.Errorf("re-stat source: %w", err)
	}
	return validateUnchanged(before, after) == nil, nil
}

// removeExisting deletes dst if present, clearing a read-only bit first.
func removeExisting(dst string) error {
	info, err := os.Lstat(dst)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("stat destination: %w", err)
	}
	if info.Mode().Perm()&0200 == 0 {
		if err := os.Chmod(dst, info.Mode().Perm()|0200); err != nil {
			return fmt.Errorf("clearing read-only: %w", err)
		}
	}
	if err := os.Remove(dst); err != nil {
		return fmt.Errorf("removing destination: %w", err)
	}
	return nil
}

// validateUnchanged checks that file metadata hasn't changed.
// Access time is ignored as our own read may update it.
func validateUnchanged(info1, info2 fs.FileInfo) error {
	if info1.Size() != info2.Size() {
		return fmt.Errorf("size changed: %d -> %d", info1.Size(), info2.Size())
	}
	if info1.Mode() != info2.Mode() {
		return fmt.Errorf("mode changed: %v -> %v", info1.Mode(), info2.Mode())
	}
	if !info1.ModTime().Equal(info2.ModTime()) {
		return fmt.Errorf("mtime changed: %v -> %v", info1.ModTime(), info2.ModTime())
	}
	c1, ok1 := changeTime(info1)
	c2, ok2 := changeTime(info2)
	if ok1 && ok2 && !c1.Equal(c2) {
		return fmt.Errorf("ctime changed: %v -> %v", c1, c2)
	}
	return nil
}
