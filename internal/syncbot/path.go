package syncbot

import "io/fs"

// Path is an absolute path that FilesystemManager.Resolve has checked to
// exist, together with the stat result taken at that moment.
type Path struct {
	absPath string
	isDir   bool
	info    fs.FileInfo
}

// NewPath is used by FilesystemManager implementations.
func NewPath(absPath string, isDir bool, info fs.FileInfo) *Path {
	return &Path{absPath: absPath, isDir: isDir, info: info}
}

func (p *Path) String() string { return p.absPath }

// IsDir reports whether the path was a directory when resolved. Symlinks to
// directories count as directories.
func (p *Path) IsDir() bool { return p.isDir }

// Info is the cached stat result; call FilesystemManager.Stat for fresh data.
func (p *Path) Info() fs.FileInfo { return p.info }
