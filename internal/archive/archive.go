package archive

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/vishnu-kyatannawar/sync-bot/internal/syncbot"
)

// MaxArchives is the number of archives kept after each snapshot.
const MaxArchives = 4

const (
	namePrefix = "sync-"
	nameExt    = ".zip"
	timeLayout = "2006-01-02_15-04-05"
)

// Info describes one archive on disk.
type Info struct {
	Name    string    `json:"name"`
	Path    string    `json:"path"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mod_time"`
}

// Manager snapshots the staging root into timestamped zip archives and keeps
// only the newest MaxArchives of them.
type Manager struct {
	clock  syncbot.Clock
	logger syncbot.Logger
	keep   int
}

var _ syncbot.Archiver = (*Manager)(nil)

// NewManager creates a Manager that names archives using clock.
func NewManager(clock syncbot.Clock, logger syncbot.Logger) *Manager {
	return &Manager{clock: clock, logger: logger, keep: MaxArchives}
}

// CreateArchive zips every file under stagingRoot into archivesDir as
// sync-YYYY-MM-DD_HH-MM-SS.zip, then prunes old archives. Pruning failures
// are logged and do not affect the returned archive.
func (m *Manager) CreateArchive(stagingRoot, archivesDir string) (string, error) {
	stagingRoot, err := filepath.Abs(stagingRoot)
	if err != nil {
		return "", fmt.Errorf("resolving staging root: %w", err)
	}
	archivesDir, err = filepath.Abs(archivesDir)
	if err != nil {
		return "", fmt.Errorf("resolving archives directory: %w", err)
	}
	if err := os.MkdirAll(archivesDir, 0755); err != nil {
		return "", fmt.Errorf("creating archives directory: %w", err)
	}

	dst, err := m.nextName(archivesDir)
	if err != nil {
		return "", err
	}

	opts := zipOptions{
		// archives stored inside staging must not archive themselves
		skip: func(path string) bool { return path == archivesDir },
	}
	if err := writeZip(dst, stagingRoot, opts); err != nil {
		return "", err
	}

	m.prune(archivesDir)
	return dst, nil
}

// nextName returns an unused archive path for the current time. Archives
// created within the same second get a -N suffix.
func (m *Manager) nextName(dir string) (string, error) {
	stem := namePrefix + m.clock.Now().Format(timeLayout)
	for i := 0; ; i++ {
		name := stem + nameExt
		if i > 0 {
			name = stem + "-" + strconv.Itoa(i) + nameExt
		}
		path := filepath.Join(dir, name)
		if _, err := os.Lstat(path); os.IsNotExist(err) {
			return path, nil
		} else if err != nil {
			return "", fmt.Errorf("checking %s: %w", path, err)
		}
	}
}

func (m *Manager) prune(dir string) {
	archives, err := ListArchives(dir)
	if err != nil {
		m.logger.Warn("listing archives for pruning", "dir", dir, "error", err)
		return
	}
	for _, a := range archives[min(m.keep, len(archives)):] {
		if err := os.Remove(a.Path); err != nil {
			m.logger.Warn("failed to delete old archive", "path", a.Path, "error", err)
			continue
		}
		m.logger.Debug("old archive deleted", "path", a.Path)
	}
}

// ListArchives returns the archives in dir, newest first. Ties on
// modification time are broken by name, descending. A missing dir is empty.
func ListArchives(dir string) ([]Info, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading archives directory: %w", err)
	}

	var archives []Info
	for _, e := range entries {
		name := e.Name()
		if !e.Type().IsRegular() || !strings.HasPrefix(name, namePrefix) || !strings.HasSuffix(name, nameExt) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue // removed concurrently
		}
		archives = append(archives, Info{
			Name:    name,
			Path:    filepath.Join(dir, name),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}

	sort.Slice(archives, func(i, j int) bool {
		if !archives[i].ModTime.Equal(archives[j].ModTime) {
			return archives[i].ModTime.After(archives[j].ModTime)
		}
		return archives[i].Name > archives[j].Name
	})
	return archives, nil
}

// CountArchives returns the number of archives in dir.
func CountArchives(dir string) (int, error) {
	archives, err := ListArchives(dir)
	if err != nil {
		return 0, err
	}
	return len(archives), nil
}
