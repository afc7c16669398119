package watcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/osakka/tagdir/models"
	"github.com/osakka/tagdir/storage/sqlite"
)

func newTestStore(t *testing.T) models.Store {
	t.Helper()
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "tagdir.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestGetIsSingleton(t *testing.T) {
	resetForTest()
	store := newTestStore(t)

	w1, err := Get(store)
	require.NoError(t, err)
	w2, err := Get(store)
	require.NoError(t, err)
	require.Same(t, w1, w2)
	w1.Close()
}

func TestScheduleIfNewPathIdempotent(t *testing.T) {
	resetForTest()
	store := newTestStore(t)
	w, err := Get(store)
	require.NoError(t, err)
	defer w.Close()

	dir := t.TempDir()
	entPath := filepath.Join(dir, "e")
	require.NoError(t, os.Mkdir(entPath, 0o755))

	require.NoError(t, w.ScheduleIfNewPath(entPath))
	require.NoError(t, w.ScheduleIfNewPath(entPath))

	w.mu.Lock()
	n := len(w.parents)
	w.mu.Unlock()
	require.Equal(t, 1, n)
}

// An out-of-band rename inside a watched parent updates the entity's
// name and real_path in place.
func TestHandleRenameUpdatesEntity(t *testing.T) {
	resetForTest()
	store := newTestStore(t)
	w, err := Get(store)
	require.NoError(t, err)
	defer w.Close()

	dir := t.TempDir()
	src := filepath.Join(dir, "e")
	dst := filepath.Join(dir, "e2")
	require.NoError(t, os.Mkdir(src, 0o755))

	ctx := context.Background()
	err = models.WithTx(ctx, store, func(tx models.Tx) error {
		if _, err := tx.InsertTag("t"); err != nil {
			return err
		}
		_, err := tx.InsertEntity("e", src, []string{"t"})
		return err
	})
	require.NoError(t, err)
	require.NoError(t, w.ScheduleIfNewPath(src))

	go w.Run(ctx)
	require.NoError(t, os.Rename(src, dst))

	require.Eventually(t, func() bool {
		var moved bool
		err := models.WithTx(ctx, store, func(tx models.Tx) error {
			ent, err := tx.EntityByName("e2")
			if err != nil {
				return nil
			}
			moved = ent.RealPath == dst
			return nil
		})
		return err == nil && moved
	}, 2*time.Second, 20*time.Millisecond)
}

func TestHandleDeletedRemovesEntity(t *testing.T) {
	resetForTest()
	store := newTestStore(t)
	w, err := Get(store)
	require.NoError(t, err)
	defer w.Close()

	dir := t.TempDir()
	entPath := filepath.Join(dir, "e")
	require.NoError(t, os.Mkdir(entPath, 0o755))

	ctx := context.Background()
	err = models.WithTx(ctx, store, func(tx models.Tx) error {
		_, err := tx.InsertTag("x")
		if err != nil {
			return err
		}
		_, err = tx.InsertEntity("e", entPath, []string{"x"})
		return err
	})
	require.NoError(t, err)
	require.NoError(t, w.ScheduleIfNewPath(entPath))

	go w.Run(ctx)
	require.NoError(t, os.RemoveAll(entPath))

	require.Eventually(t, func() bool {
		var gone bool
		err := models.WithTx(ctx, store, func(tx models.Tx) error {
			_, err := tx.EntityByName("e")
			gone = err == models.ErrNotFound
			return nil
		})
		return err == nil && gone
	}, 2*time.Second, 20*time.Millisecond)
}
