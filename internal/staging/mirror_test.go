package staging

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/vishnu-kyatannawar/sync-bot/internal/syncbot"
)

// fakeTracker reports paths in changed as changed and records MarkSynced calls.
type fakeTracker struct {
	changed map[string]bool
	synced  []string
	err     error
}

func newFakeTracker() *fakeTracker {
	return &fakeTracker{changed: make(map[string]bool)}
}

func (f *fakeTracker) HasChanged(path string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	return f.changed[path], nil
}

func (f *fakeTracker) MarkSynced(path string) error {
	f.synced = append(f.synced, path)
	return nil
}

func writeFile(t *testing.T, path, content string, perm os.FileMode) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), perm); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return string(data)
}

func TestDestination(t *testing.T) {
	staging := filepath.FromSlash("/data/staging")
	tracked := []string{
		filepath.FromSlash("/home/u/docs"),
		filepath.FromSlash("/home/u/docs/work"),
		filepath.FromSlash("/home/u/notes.txt"),
	}

	tests := []struct {
		name string
		src  string
		want string
	}{
		{
			name: "tracked file",
			src:  "/home/u/notes.txt",
			want: "/data/staging/tracked/notes.txt",
		},
		{
			name: "file below tracked directory",
			src:  "/home/u/docs/a/b.txt",
			want: "/data/staging/tracked/docs/a/b.txt",
		},
		{
			name: "longest prefix wins",
			src:  "/home/u/docs/work/plan.md",
			want: "/data/staging/tracked/work/plan.md",
		},
		{
			name: "prefix must end on a segment boundary",
			src:  "/home/u/docs-old/x.txt",
			want: "/data/staging/tracked/x.txt",
		},
		{
			name: "no match falls back to basename",
			src:  "/tmp/other.bin",
			want: "/data/staging/tracked/other.bin",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Destination(staging, filepath.FromSlash(tt.src), tracked)
			if got != filepath.FromSlash(tt.want) {
				t.Errorf("Destination() = %q, want %q", got, filepath.FromSlash(tt.want))
			}
		})
	}
}

func TestMirror_Refresh(t *testing.T) {
	t.Run("copies tracked files and directories", func(t *testing.T) {
		src := t.TempDir()
		stagingRoot := t.TempDir()
		docs := filepath.Join(src, "docs")
		single := filepath.Join(src, "single.txt")
		writeFile(t, filepath.Join(docs, "a.txt"), "a", 0644)
		writeFile(t, filepath.Join(docs, "sub", "b.txt"), "b", 0600)
		writeFile(t, single, "s", 0644)

		tracker := newFakeTracker()
		m := NewMirror(tracker, syncbot.NewNopLogger())
		files := []string{filepath.Join(docs, "a.txt"), filepath.Join(docs, "sub", "b.txt"), single}

		copied, err := m.Refresh(stagingRoot, files, []string{docs, single})
		if err != nil {
			t.Fatalf("Refresh() error = %v", err)
		}
		if copied != 3 {
			t.Errorf("Refresh() copied = %d, want 3", copied)
		}
		if got := readFile(t, filepath.Join(stagingRoot, "tracked", "docs", "a.txt")); got != "a" {
			t.Errorf("docs/a.txt = %q, want %q", got, "a")
		}
		if got := readFile(t, filepath.Join(stagingRoot, "tracked", "single.txt")); got != "s" {
			t.Errorf("single.txt = %q, want %q", got, "s")
		}

		info, err := os.Stat(filepath.Join(stagingRoot, "tracked", "docs", "sub", "b.txt"))
		if err != nil {
			t.Fatalf("Stat() error = %v", err)
		}
		if info.Mode().Perm() != 0600 {
			t.Errorf("permissions = %v, want 0600", info.Mode().Perm())
		}
		if len(tracker.synced) != 3 {
			t.Errorf("MarkSynced called %d times, want 3", len(tracker.synced))
		}
	})

	t.Run("skips unchanged files with existing destination", func(t *testing.T) {
		src := t.TempDir()
		stagingRoot := t.TempDir()
		file := filepath.Join(src, "a.txt")
		writeFile(t, file, "v1", 0644)

		tracker := newFakeTracker()
		m := NewMirror(tracker, syncbot.NewNopLogger())
		if _, err := m.Refresh(stagingRoot, []string{file}, []string{file}); err != nil {
			t.Fatalf("Refresh() error = %v", err)
		}

		writeFile(t, file, "v2", 0644)
		copied, err := m.Refresh(stagingRoot, []string{file}, []string{file})
		if err != nil {
			t.Fatalf("Refresh() error = %v", err)
		}
		if copied != 0 {
			t.Errorf("Refresh() copied = %d, want 0", copied)
		}
		if got := readFile(t, filepath.Join(stagingRoot, "tracked", "a.txt")); got != "v1" {
			t.Errorf("staged content = %q, want v1", got)
		}

		tracker.changed[file] = true
		copied, err = m.Refresh(stagingRoot, []string{file}, []string{file})
		if err != nil {
			t.Fatalf("Refresh() error = %v", err)
		}
		if copied != 1 {
			t.Errorf("Refresh() copied = %d, want 1", copied)
		}
		if got := readFile(t, filepath.Join(stagingRoot, "tracked", "a.txt")); got != "v2" {
			t.Errorf("staged content = %q, want v2", got)
		}
	})

	t.Run("recopies when destination is missing", func(t *testing.T) {
		src := t.TempDir()
		stagingRoot := t.TempDir()
		file := filepath.Join(src, "a.txt")
		writeFile(t, file, "v1", 0644)

		m := NewMirror(newFakeTracker(), syncbot.NewNopLogger())
		if _, err := m.Refresh(stagingRoot, []string{file}, []string{file}); err != nil {
			t.Fatalf("Refresh() error = %v", err)
		}
		if err := os.Remove(filepath.Join(stagingRoot, "tracked", "a.txt")); err != nil {
			t.Fatalf("Remove() error = %v", err)
		}

		copied, err := m.Refresh(stagingRoot, []string{file}, []string{file})
		if err != nil {
			t.Fatalf("Refresh() error = %v", err)
		}
		if copied != 1 {
			t.Errorf("Refresh() copied = %d, want 1", copied)
		}
	})

	t.Run("replaces read-only destination", func(t *testing.T) {
		src := t.TempDir()
		stagingRoot := t.TempDir()
		file := filepath.Join(src, "a.txt")
		writeFile(t, file, "new", 0444)
		dst := filepath.Join(stagingRoot, "tracked", "a.txt")
		writeFile(t, dst, "old", 0444)

		tracker := newFakeTracker()
		tracker.changed[file] = true
		m := NewMirror(tracker, syncbot.NewNopLogger())
		if _, err := m.Refresh(stagingRoot, []string{file}, []string{file}); err != nil {
			t.Fatalf("Refresh() error = %v", err)
		}
		if got := readFile(t, dst); got != "new" {
			t.Errorf("staged content = %q, want new", got)
		}
	})

	t.Run("ignores files already inside staging", func(t *testing.T) {
		stagingRoot := t.TempDir()
		inside := filepath.Join(stagingRoot, "tracked", "x.txt")
		writeFile(t, inside, "x", 0644)

		tracker := newFakeTracker()
		m := NewMirror(tracker, syncbot.NewNopLogger())
		copied, err := m.Refresh(stagingRoot, []string{inside}, []string{stagingRoot})
		if err != nil {
			t.Fatalf("Refresh() error = %v", err)
		}
		if copied != 0 || len(tracker.synced) != 0 {
			t.Errorf("Refresh() copied = %d, synced = %v, want nothing", copied, tracker.synced)
		}
	})

	t.Run("missing source aborts", func(t *testing.T) {
		stagingRoot := t.TempDir()
		missing := filepath.Join(t.TempDir(), "gone.txt")

		m := NewMirror(newFakeTracker(), syncbot.NewNopLogger())
		if _, err := m.Refresh(stagingRoot, []string{missing}, nil); err == nil {
			t.Error("Refresh() expected error for missing source")
		}
	})

	t.Run("tracker error aborts", func(t *testing.T) {
		src := t.TempDir()
		stagingRoot := t.TempDir()
		file := filepath.Join(src, "a.txt")
		writeFile(t, file, "a", 0644)
		writeFile(t, filepath.Join(stagingRoot, "tracked", "a.txt"), "a", 0644)

		tracker := newFakeTracker()
		tracker.err = errors.New("db down")
		m := NewMirror(tracker, syncbot.NewNopLogger())
		if _, err := m.Refresh(stagingRoot, []string{file}, []string{file}); err == nil {
			t.Error("Refresh() expected error")
		}
	})
}
