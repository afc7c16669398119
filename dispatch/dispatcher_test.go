package dispatch

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/osakka/tagdir/loopback"
	"github.com/osakka/tagdir/storage/sqlite"
)

func newTestDispatcher(t *testing.T) *Dispatcher {
	t.Helper()
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "tagdir.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return New(store, loopback.NewOS(), nil)
}

func errnoOf(t *testing.T, err error) unix.Errno {
	t.Helper()
	var fsErr *FSError
	require.ErrorAs(t, err, &fsErr)
	return fsErr.Errno
}

// Tag and read: mkdir two tags, tag an entity with
// both, readdir the tag directory, readlink the entity symlink.
func TestTagAndRead(t *testing.T) {
	d := newTestDispatcher(t)
	ctx := context.Background()

	realDir := filepath.Join(t.TempDir(), "tagdir")
	require.NoError(t, os.Mkdir(realDir, 0o755))

	require.NoError(t, d.Mkdir(ctx, "/@python", 0o755))
	require.NoError(t, d.Mkdir(ctx, "/@test", 0o755))
	require.NoError(t, d.Symlink(ctx, "/@python/@test/tagdir", realDir))

	names, err := d.Readdir(ctx, "/@python")
	require.NoError(t, err)
	require.Equal(t, []string{"tagdir"}, names)

	target, err := d.Readlink(ctx, "/@python/@test/tagdir")
	require.NoError(t, err)
	require.Equal(t, realDir, target)
}

// Intersection: an entity tagged with only one of two tags does not
// appear under the other, nor under their intersection.
func TestIntersection(t *testing.T) {
	d := newTestDispatcher(t)
	ctx := context.Background()

	a := filepath.Join(t.TempDir(), "a")
	b := filepath.Join(t.TempDir(), "b")
	require.NoError(t, os.Mkdir(a, 0o755))
	require.NoError(t, os.Mkdir(b, 0o755))

	require.NoError(t, d.Mkdir(ctx, "/@red", 0o755))
	require.NoError(t, d.Mkdir(ctx, "/@blue", 0o755))
	require.NoError(t, d.Symlink(ctx, "/@red/a", a))
	require.NoError(t, d.Symlink(ctx, "/@red/@blue/b", b))

	red, err := d.Readdir(ctx, "/@red")
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"a", "b"}, red)

	both, err := d.Readdir(ctx, "/@red/@blue")
	require.NoError(t, err)
	require.Equal(t, []string{"b"}, both)

	_, err = d.Readlink(ctx, "/@blue/a")
	require.Equal(t, unix.ENOENT, errnoOf(t, err))
}

// Untag cascade: unlinking the last tag-combination of an
// entity deletes it: its symlink no longer resolves and the tag
// directory lists nothing.
func TestUntagCascade(t *testing.T) {
	d := newTestDispatcher(t)
	ctx := context.Background()

	dir := filepath.Join(t.TempDir(), "e")
	require.NoError(t, os.Mkdir(dir, 0o755))

	require.NoError(t, d.Mkdir(ctx, "/@x", 0o755))
	require.NoError(t, d.Symlink(ctx, "/@x/e", dir))
	require.NoError(t, d.Unlink(ctx, "/@x/e"))

	_, err := d.Readlink(ctx, "/@x/e")
	require.Equal(t, unix.ENOENT, errnoOf(t, err))

	names, err := d.Readdir(ctx, "/@x")
	require.NoError(t, err)
	require.Empty(t, names)
}

// Pass-through: operations past an entity's real path forward to the
// loopback with the real path resolved.
func TestPassThrough(t *testing.T) {
	d := newTestDispatcher(t)
	ctx := context.Background()

	dir := filepath.Join(t.TempDir(), "e")
	require.NoError(t, os.Mkdir(dir, 0o755))
	sub := filepath.Join(dir, "sub")
	require.NoError(t, os.Mkdir(sub, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "f.txt"), []byte("hi"), 0o644))

	require.NoError(t, d.Mkdir(ctx, "/@x", 0o755))
	require.NoError(t, d.Symlink(ctx, "/@x/e", dir))

	names, err := d.Readdir(ctx, "/@x/e/sub")
	require.NoError(t, err)
	require.Empty(t, names)

	st, err := d.Getattr(ctx, "/@x/e/f.txt")
	require.NoError(t, err)
	require.Equal(t, int64(2), st.Size)
}

// Xattr inventory: listxattr/getxattr on "/.entinfo" expose
// the (real_path, tags...) side channel.
func TestEntInfoXattr(t *testing.T) {
	d := newTestDispatcher(t)
	ctx := context.Background()

	dir := filepath.Join(t.TempDir(), "e")
	require.NoError(t, os.Mkdir(dir, 0o755))

	require.NoError(t, d.Mkdir(ctx, "/@x", 0o755))
	require.NoError(t, d.Mkdir(ctx, "/@y", 0o755))
	require.NoError(t, d.Symlink(ctx, "/@x/@y/e", dir))

	names, err := d.Listxattr(ctx, "/.entinfo")
	require.NoError(t, err)
	require.Equal(t, []string{"e"}, names)

	val, err := d.Getxattr(ctx, "/.entinfo", "e")
	require.NoError(t, err)
	require.Equal(t, dir+",x,y", string(val))

	_, err = d.Getxattr(ctx, "/.entinfo", "nope")
	require.Equal(t, unix.ENODATA, errnoOf(t, err))

	_, err = d.Getxattr(ctx, "/@x", "e")
	require.Equal(t, unix.ENOTSUP, errnoOf(t, err))

	st, err := d.Getattr(ctx, "/.entinfo")
	require.NoError(t, err)
	require.Equal(t, uint32(unix.S_IFREG), st.Mode&uint32(unix.S_IFMT))
}

// rmdir of a tag shared by several entities: entities that lose their
// last tag are deleted, the rest survive with the tag stripped.
func TestRmdirSharedTag(t *testing.T) {
	d := newTestDispatcher(t)
	ctx := context.Background()

	shared := filepath.Join(t.TempDir(), "shared")
	solo := filepath.Join(t.TempDir(), "solo")
	require.NoError(t, os.Mkdir(shared, 0o755))
	require.NoError(t, os.Mkdir(solo, 0o755))

	require.NoError(t, d.Mkdir(ctx, "/@x/@y", 0o755))
	require.NoError(t, d.Symlink(ctx, "/@x/@y/shared", shared))
	require.NoError(t, d.Symlink(ctx, "/@x/solo", solo))

	require.NoError(t, d.Rmdir(ctx, "/@x"))

	names, err := d.Readdir(ctx, "/@y")
	require.NoError(t, err)
	require.Equal(t, []string{"shared"}, names)

	err = d.Access(ctx, "/@x", 0)
	require.Equal(t, unix.ENOENT, errnoOf(t, err))

	inv, err := d.Listxattr(ctx, "/.entinfo")
	require.NoError(t, err)
	require.Equal(t, []string{"shared"}, inv)
}

// Operations the namespace never implements are ENOSYS, not an
// invented per-op errno.
func TestUnsupportedIsENOSYS(t *testing.T) {
	d := newTestDispatcher(t)

	err := d.Unsupported("link", "/@x/e")
	require.Equal(t, unix.ENOSYS, errnoOf(t, err))
}

// Tagging an entity name with a mismatched source real_path is a
// collision: EINVAL.
func TestTaggingNameCollision(t *testing.T) {
	d := newTestDispatcher(t)
	ctx := context.Background()

	first := filepath.Join(t.TempDir(), "e")
	second := filepath.Join(t.TempDir(), "e")
	require.NoError(t, os.Mkdir(first, 0o755))
	require.NoError(t, os.Mkdir(second, 0o755))

	require.NoError(t, d.Mkdir(ctx, "/@x", 0o755))
	require.NoError(t, d.Symlink(ctx, "/@x/e", first))

	err := d.Symlink(ctx, "/@x/e", second)
	require.Equal(t, unix.EINVAL, errnoOf(t, err))
}

// Tagging a nonexistent source directory fails ENOENT; a file (not a
// directory) fails ENOTDIR.
func TestTaggingSourceValidation(t *testing.T) {
	d := newTestDispatcher(t)
	ctx := context.Background()
	require.NoError(t, d.Mkdir(ctx, "/@x", 0o755))

	missing := filepath.Join(t.TempDir(), "ghost")
	err := d.Symlink(ctx, "/@x/ghost", missing)
	require.Equal(t, unix.ENOENT, errnoOf(t, err))

	file := filepath.Join(t.TempDir(), "plain.txt")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))
	err = d.Symlink(ctx, "/@x/plain.txt", file)
	require.Equal(t, unix.ENOTDIR, errnoOf(t, err))
}

// Idempotence: two identical mkdir/symlink calls are equivalent
// to one.
func TestIdempotence(t *testing.T) {
	d := newTestDispatcher(t)
	ctx := context.Background()

	dir := filepath.Join(t.TempDir(), "e")
	require.NoError(t, os.Mkdir(dir, 0o755))

	require.NoError(t, d.Mkdir(ctx, "/@x", 0o755))
	require.NoError(t, d.Mkdir(ctx, "/@x", 0o755))
	require.NoError(t, d.Symlink(ctx, "/@x/e", dir))
	require.NoError(t, d.Symlink(ctx, "/@x/e", dir))

	names, err := d.Readdir(ctx, "/@x")
	require.NoError(t, err)
	require.Equal(t, []string{"e"}, names)
}

func TestRootAndAccess(t *testing.T) {
	d := newTestDispatcher(t)
	ctx := context.Background()

	st, err := d.Getattr(ctx, "/")
	require.NoError(t, err)
	require.NotZero(t, st.Mode)

	require.NoError(t, d.Access(ctx, "/", 0))

	err = d.Access(ctx, "/@nope", 0)
	require.Equal(t, unix.ENOENT, errnoOf(t, err))
}

// Readlink on Root and on a Tag-only path is a shape error (EINVAL),
// not a name error: those shapes are never symlinks, regardless of
// whether the named tags exist.
func TestReadlinkShapeErrors(t *testing.T) {
	d := newTestDispatcher(t)
	ctx := context.Background()
	require.NoError(t, d.Mkdir(ctx, "/@tag", 0o755))

	_, err := d.Readlink(ctx, "/")
	require.Equal(t, unix.EINVAL, errnoOf(t, err))

	_, err = d.Readlink(ctx, "/@tag")
	require.Equal(t, unix.EINVAL, errnoOf(t, err))
}

// Unlink on Root is a shape error (EINVAL): there is nothing there to
// name-resolve and fail ENOENT against.
func TestUnlinkRootIsInval(t *testing.T) {
	d := newTestDispatcher(t)
	ctx := context.Background()

	err := d.Unlink(ctx, "/")
	require.Equal(t, unix.EINVAL, errnoOf(t, err))
}
