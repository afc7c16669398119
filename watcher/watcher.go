// Package watcher implements the Entity-Path Watcher: it
// observes the parent directories of every registered Entity.RealPath
// and keeps the name/real_path stored in models.Store coherent when an
// entity's real directory is renamed or removed out-of-band.
package watcher

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/osakka/tagdir/logger"
	"github.com/osakka/tagdir/models"
)

// renamePairWindow bounds how long the watcher waits for the matching
// Create event after a Rename before concluding the entity's real
// directory was simply moved somewhere it isn't watching.
const renamePairWindow = 100 * time.Millisecond

// Watcher is the process-wide Entity-Path Watcher. There is exactly one
// instance per mount; Get returns the same instance on every call.
type Watcher struct {
	store models.Store
	fsw   *fsnotify.Watcher

	mu      sync.Mutex
	parents map[string]struct{} // currently watched parent directories
}

var (
	instance *Watcher
	once     sync.Once
	initErr  error
)

// Get returns the process-wide Watcher, constructing it on first call
// and registering a watch on the parent of every already-registered
// entity. Subsequent calls return the same instance.
func Get(store models.Store) (*Watcher, error) {
	once.Do(func() {
		instance, initErr = newWatcher(store)
	})
	return instance, initErr
}

func newWatcher(store models.Store) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		store:   store,
		fsw:     fsw,
		parents: make(map[string]struct{}),
	}

	err = models.WithTx(context.Background(), store, func(tx models.Tx) error {
		entities, err := tx.AllEntities()
		if err != nil {
			return err
		}
		for _, e := range entities {
			if err := w.scheduleIfNewPathLocked(filepath.Dir(e.RealPath)); err != nil {
				logger.Warn("watcher: schedule %s: %v", e.RealPath, err)
			}
		}
		return nil
	})
	if err != nil {
		fsw.Close()
		return nil, err
	}

	return w, nil
}

// ScheduleIfNewPath registers a watch on parent(path) if one does not
// already exist. A no-op otherwise (idempotent).
func (w *Watcher) ScheduleIfNewPath(path string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.scheduleIfNewPathLocked(filepath.Dir(path))
}

func (w *Watcher) scheduleIfNewPathLocked(parent string) error {
	if _, ok := w.parents[parent]; ok {
		return nil
	}
	if err := w.fsw.Add(parent); err != nil {
		return err
	}
	w.parents[parent] = struct{}{}
	return nil
}

// UnscheduleRedundantHandlers drops every watched parent directory that
// is no longer the parent of any registered entity. It holds no lock on
// the store between reading the live entity set and diffing it against
// the watch set; a concurrent registration racing this call converges
// on the next call.
func (w *Watcher) UnscheduleRedundantHandlers(ctx context.Context) error {
	var live map[string]struct{}
	err := models.WithTx(ctx, w.store, func(tx models.Tx) error {
		entities, err := tx.AllEntities()
		if err != nil {
			return err
		}
		live = make(map[string]struct{}, len(entities))
		for _, e := range entities {
			live[filepath.Dir(e.RealPath)] = struct{}{}
		}
		return nil
	})
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	for parent := range w.parents {
		if _, ok := live[parent]; ok {
			continue
		}
		if err := w.fsw.Remove(parent); err != nil && !errors.Is(err, fsnotify.ErrNonExistentWatch) {
			logger.Warn("watcher: unschedule %s: %v", parent, err)
		}
		delete(w.parents, parent)
	}
	return nil
}

// Run processes filesystem events until ctx is cancelled. It runs on its
// own dispatch thread, separate from the FUSE operation goroutine; the
// store's transactional layer is the only synchronization between them.
func (w *Watcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(ctx, ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			// Watcher errors are logged and swallowed: a Watcher
			// crash must not kill the filesystem.
			logger.Error("watcher: %v", err)
		}
	}
}

// Close releases the underlying fsnotify.Watcher, which closes its event
// and error channels so that Run returns. Close does not wait for Run's
// goroutine to return.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}

func (w *Watcher) handle(ctx context.Context, ev fsnotify.Event) {
	logger.TraceFor("watcher", "event %s", ev)
	switch {
	case ev.Op&fsnotify.Remove != 0:
		w.handleDeleted(ctx, ev.Name)
	case ev.Op&fsnotify.Rename != 0:
		w.handleRename(ctx, ev.Name)
	default:
		// Writes, chmods and other events inside a watched parent
		// are not observed at this layer; the entity identity only
		// depends on its directory's name and parent.
	}
}

// handleRename reacts to a directory being renamed away from src. fsnotify
// reports only the departure half of a rename; a rename inside the same
// watched directory is followed by a Create event for the new name. This
// function waits up to renamePairWindow for that Create in src's own
// parent directory and applies the rename; any other event, or none,
// makes it treat src as deleted, so a move into a different directory is
// handled as a deletion.
func (w *Watcher) handleRename(ctx context.Context, src string) {
	select {
	case ev := <-w.fsw.Events:
		if ev.Op&fsnotify.Create != 0 && filepath.Dir(ev.Name) == filepath.Dir(src) {
			w.applyRename(ctx, src, ev.Name)
			return
		}
		// Not a paired Create: process it normally, then treat src
		// as deleted.
		w.handle(ctx, ev)
	case <-time.After(renamePairWindow):
	case <-ctx.Done():
		return
	}
	w.handleDeleted(ctx, src)
}

func (w *Watcher) applyRename(ctx context.Context, src, dst string) {
	err := models.WithTx(ctx, w.store, func(tx models.Tx) error {
		ent, err := entityAtPath(tx, src)
		if err != nil {
			return err
		}
		if ent == nil {
			return nil
		}
		return tx.UpdateEntityPath(ent.ID, filepath.Base(dst), dst)
	})
	if err != nil {
		logger.Error("watcher: rename %s -> %s: %v", src, dst, err)
		return
	}
	if err := w.ScheduleIfNewPath(dst); err != nil {
		logger.Warn("watcher: schedule %s: %v", dst, err)
	}
}

func (w *Watcher) handleDeleted(ctx context.Context, path string) {
	var deleted bool
	err := models.WithTx(ctx, w.store, func(tx models.Tx) error {
		ent, err := entityAtPath(tx, path)
		if err != nil {
			return err
		}
		if ent == nil {
			return nil
		}
		deleted = true
		return tx.DeleteEntity(ent.ID)
	})
	if err != nil {
		logger.Error("watcher: delete %s: %v", path, err)
		return
	}
	if deleted {
		if err := w.UnscheduleRedundantHandlers(ctx); err != nil {
			logger.Warn("watcher: prune watches: %v", err)
		}
	}
}

// entityAtPath returns the Entity registered at real_path == path, or
// nil if none exists. It is not an error for no entity to be there: most
// filesystem events inside a watched parent concern files the namespace
// never registered.
func entityAtPath(tx models.Tx, path string) (*models.Entity, error) {
	ent, err := tx.EntityByName(filepath.Base(path))
	if errors.Is(err, models.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if ent.RealPath != path {
		return nil, nil
	}
	return ent, nil
}
