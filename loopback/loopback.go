// Package loopback implements the pass-through collaborator the
// Operation Dispatcher forwards to once a path resolves past an entity's
// real directory. Ordinary file operations are routed
// through an afero.Fs so tests can swap in an in-memory filesystem;
// symlink-related calls, which afero.Fs does not model, go straight to
// the os package.
package loopback

import (
	"os"

	"github.com/spf13/afero"
)

// Loopback is the dispatcher-compatible object the core forwards
// (op, real_path, ...args) to once it has resolved an entity's real
// path. Its return value and any error are propagated unchanged.
type Loopback interface {
	Access(path string, mode uint32) error
	Getattr(path string) (os.FileInfo, error)
	Readdir(path string) ([]string, error)
	Readlink(path string) (string, error)
	Mkdir(path string, mode uint32) error
	Rmdir(path string) error
	Symlink(target, source string) error
	Unlink(path string) error
	Open(path string, flags int) (*os.File, error)
	Truncate(path string, size int64) error
	Chmod(path string, mode uint32) error
}

// FS is the default Loopback, backed by an afero.Fs for file operations
// (afero.NewOsFs() in production, afero.NewMemMapFs() in tests) and the
// os package directly for symlinks, which afero.Fs cannot express.
type FS struct {
	fs afero.Fs
}

// New wraps fs as a Loopback.
func New(fs afero.Fs) *FS {
	return &FS{fs: fs}
}

// NewOS returns the production Loopback, rooted at the real filesystem.
func NewOS() *FS {
	return New(afero.NewOsFs())
}

func (l *FS) Access(path string, mode uint32) error {
	_, err := l.fs.Stat(path)
	return err
}

func (l *FS) Getattr(path string) (os.FileInfo, error) {
	return l.fs.Stat(path)
}

func (l *FS) Readdir(path string) ([]string, error) {
	entries, err := afero.ReadDir(l.fs, path)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name()
	}
	return names, nil
}

// Readlink and Symlink operate directly on the real filesystem: afero.Fs
// has no symlink primitive, and these only ever run against real paths
// a Tagging has already resolved.
func (l *FS) Readlink(path string) (string, error) {
	return os.Readlink(path)
}

func (l *FS) Symlink(target, source string) error {
	return os.Symlink(source, target)
}

func (l *FS) Mkdir(path string, mode uint32) error {
	return l.fs.Mkdir(path, os.FileMode(mode))
}

func (l *FS) Rmdir(path string) error {
	return l.fs.Remove(path)
}

func (l *FS) Unlink(path string) error {
	return l.fs.Remove(path)
}

func (l *FS) Open(path string, flags int) (*os.File, error) {
	f, err := l.fs.OpenFile(path, flags, 0o644)
	if err != nil {
		return nil, err
	}
	osFile, ok := f.(*os.File)
	if !ok {
		return nil, os.ErrInvalid
	}
	return osFile, nil
}

func (l *FS) Truncate(path string, size int64) error {
	f, err := l.fs.OpenFile(path, os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Truncate(size)
}

func (l *FS) Chmod(path string, mode uint32) error {
	return l.fs.Chmod(path, os.FileMode(mode))
}
