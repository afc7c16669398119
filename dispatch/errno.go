package dispatch

import "golang.org/x/sys/unix"

// FSError is the typed "filesystem error with errno" the Dispatcher
// raises for every failure it originates. It converts at the FUSE
// boundary to the syscall return value. Errors from a pass-through to
// the loopback, and unexpected store errors, are returned as they came,
// not wrapped in an FSError.
type FSError struct {
	Errno unix.Errno
	Op    string
	Path  string
}

func (e *FSError) Error() string {
	return e.Op + " " + e.Path + ": " + e.Errno.Error()
}

// Unwrap lets callers test with errors.Is(err, unix.ENOENT).
func (e *FSError) Unwrap() error { return e.Errno }

func newErr(errno unix.Errno, op, path string) error {
	return &FSError{Errno: errno, Op: op, Path: path}
}

// errNoEnt is the Name-not-found case: a tag or entity does not exist,
// or an entity doesn't carry every required tag.
func errNoEnt(op, path string) error { return newErr(unix.ENOENT, op, path) }

// errInval is the Path-malformed case: the shape is invalid for op, or
// (for symlink sources and entity name collisions) the request itself
// is invalid.
func errInval(op, path string) error { return newErr(unix.EINVAL, op, path) }

// errNotDir is the Wrong-file-type case: a tagging source exists but
// isn't a directory.
func errNotDir(op, path string) error { return newErr(unix.ENOTDIR, op, path) }

// errNoData is the Xattr-missing-key case.
func errNoData(op, path string) error { return newErr(unix.ENODATA, op, path) }

// errNotSup is the Xattr-not-applicable case.
func errNotSup(op, path string) error { return newErr(unix.ENOTSUP, op, path) }

// errNoSys is the Unimplemented-op case.
func errNoSys(op, path string) error { return newErr(unix.ENOSYS, op, path) }
