package archive

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/zip"
)

// tempPrefix marks in-progress files written by the mirror and archiver.
const tempPrefix = ".syncbot-"

// zipOptions controls which files writeZip includes and how entries are stamped.
type zipOptions struct {
	// skip reports whether the absolute path should be left out. Directories
	// for which skip returns true are not descended into.
	skip func(path string) bool

	// modified, when non-zero, replaces every entry's modification time.
	modified time.Time
}

// writeZip atomically writes a zip of every regular file under root to dst.
// Entries use slash-separated paths relative to root, in lexical order.
func writeZip(dst, root string, opts zipOptions) (err error) {
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return fmt.Errorf("creating archive directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), tempPrefix+"*.zip")
	if err != nil {
		return fmt.Errorf("creating temp archive: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()

	zw := zip.NewWriter(tmp)
	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == root {
			return nil
		}
		if strings.HasPrefix(d.Name(), tempPrefix) || path == dst {
			return nil
		}
		if opts.skip != nil && opts.skip(path) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		return addFile(zw, path, filepath.ToSlash(rel), opts.modified)
	})
	if walkErr != nil {
		zw.Close()
		return fmt.Errorf("adding files: %w", walkErr)
	}

	if err := zw.Close(); err != nil {
		return fmt.Errorf("finalizing archive: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing archive: %w", err)
	}
	if err := os.Rename(tmpPath, dst); err != nil {
		return fmt.Errorf("renaming archive: %w", err)
	}
	return nil
}

func addFile(zw *zip.Writer, path, name string, modified time.Time) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}

	hdr := &zip.FileHeader{
		Name:     name,
		Method:   zip.Deflate,
		Modified: info.ModTime(),
	}
	if !modified.IsZero() {
		hdr.Modified = modified
	}
	hdr.SetMode(info.Mode().Perm())

	w, err := zw.CreateHeader(hdr)
	if err != nil {
		return err
	}
	_, err = io.Copy(w, f)
	return err
}
