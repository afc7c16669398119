// Package dispatch implements the Operation Dispatcher: the
// state machine that receives each FUSE operation, classifies its path,
// and either executes virtual-namespace semantics, forwards to the
// loopback, or rejects the call with a POSIX errno. Every externally
// visible action runs inside a models.WithTx scope: a clean
// return commits, any error rolls back.
package dispatch

import (
	"context"
	"path/filepath"

	"github.com/osakka/tagdir/loopback"
	"github.com/osakka/tagdir/logger"
	"github.com/osakka/tagdir/models"
)

// Watcher is the capability the Dispatcher notifies after a mutation
// that changes which real directories matter (a new entity tagged, or
// one that loses its last tag). It is satisfied by *watcher.Watcher;
// the Dispatcher depends only on this interface so the two packages
// don't import each other.
type Watcher interface {
	ScheduleIfNewPath(path string) error
	UnscheduleRedundantHandlers(ctx context.Context) error
}

// Dispatcher is the FUSE-facing entry point. It delegates pass-through
// operations to a Loopback rather than embedding one: a capability the
// Dispatcher holds, not a base class it inherits from.
type Dispatcher struct {
	store    models.Store
	loopback loopback.Loopback
	watcher  Watcher
}

// New builds a Dispatcher. watcher may be nil, in which case newly
// tagged entities are never observed for out-of-band rename/delete —
// acceptable for tests that don't exercise the Entity-Path Watcher.
func New(store models.Store, lb loopback.Loopback, w Watcher) *Dispatcher {
	return &Dispatcher{store: store, loopback: lb, watcher: w}
}

func (d *Dispatcher) withTx(ctx context.Context, fn func(models.Tx) error) error {
	return models.WithTx(ctx, d.store, fn)
}

// resolveTags looks up tag names, failing ENOENT if any is unknown.
func resolveTags(tx models.Tx, op, path string, names []string) ([]*models.Tag, error) {
	tags := make([]*models.Tag, len(names))
	for i, name := range names {
		tag, err := tx.TagByName(name)
		if err != nil {
			if err == models.ErrNotFound {
				return nil, errNoEnt(op, path)
			}
			return nil, err
		}
		tags[i] = tag
	}
	return tags, nil
}

// resolveRealPath resolves the real path an "any other" op or a
// Pass-through op forwards to: the entity named by s must exist and
// carry every tag in s.tags.
func resolveRealPath(tx models.Tx, op, path string, s shape) (string, error) {
	if _, err := resolveTags(tx, op, path, s.tags); err != nil {
		return "", err
	}
	ent, err := tx.EntityWithTags(s.entity, s.tags)
	if err != nil {
		return "", errNoEnt(op, path)
	}
	if s.rest == "" {
		return ent.RealPath, nil
	}
	return filepath.Join(ent.RealPath, s.rest), nil
}

// Access implements access(2).
func (d *Dispatcher) Access(ctx context.Context, path string, mode uint32) error {
	logger.TraceFor("dispatch", "access %s", path)
	s := classify(path)

	switch s.kind {
	case shapeRoot, shapeEntInfo:
		return nil
	case shapeInvalid:
		return errNoEnt("access", path)
	}

	return d.withTx(ctx, func(tx models.Tx) error {
		switch s.kind {
		case shapeTagOnly:
			_, err := resolveTags(tx, "access", path, s.tags)
			return err
		case shapeEntitySymlink:
			if _, err := resolveTags(tx, "access", path, s.tags); err != nil {
				return err
			}
			if _, err := tx.EntityWithTags(s.entity, s.tags); err != nil {
				return errNoEnt("access", path)
			}
			return nil
		case shapePassThrough:
			real, err := resolveRealPath(tx, "access", path, s)
			if err != nil {
				return err
			}
			return d.loopback.Access(real, mode)
		}
		return errNoEnt("access", path)
	})
}

// Getattr implements getattr(2).
func (d *Dispatcher) Getattr(ctx context.Context, path string) (Stat, error) {
	logger.TraceFor("dispatch", "getattr %s", path)
	s := classify(path)

	var out Stat
	err := d.withTx(ctx, func(tx models.Tx) error {
		switch s.kind {
		case shapeRoot:
			attr, err := tx.EnsureRootAttr()
			if err != nil {
				return err
			}
			out = statFromAttr(*attr)
			return nil
		case shapeEntInfo:
			out = entInfoStat()
			return nil
		case shapeInvalid:
			return errNoEnt("getattr", path)
		case shapeTagOnly:
			tags, err := resolveTags(tx, "getattr", path, s.tags)
			if err != nil {
				return err
			}
			out = statFromAttr(tags[len(tags)-1].Attr)
			return nil
		case shapeEntitySymlink:
			if _, err := resolveTags(tx, "getattr", path, s.tags); err != nil {
				return err
			}
			ent, err := tx.EntityWithTags(s.entity, s.tags)
			if err != nil {
				return errNoEnt("getattr", path)
			}
			out = statFromAttr(ent.Attr)
			return nil
		case shapePassThrough:
			real, err := resolveRealPath(tx, "getattr", path, s)
			if err != nil {
				return err
			}
			fi, err := d.loopback.Getattr(real)
			if err != nil {
				return err
			}
			out = statFromFileInfo(fi)
			return nil
		}
		return errNoEnt("getattr", path)
	})
	return out, err
}

// Readdir implements readdir(2).
func (d *Dispatcher) Readdir(ctx context.Context, path string) ([]string, error) {
	logger.TraceFor("dispatch", "readdir %s", path)
	s := classify(path)

	var out []string
	err := d.withTx(ctx, func(tx models.Tx) error {
		switch s.kind {
		case shapeRoot:
			tags, err := tx.AllTags()
			if err != nil {
				return err
			}
			for _, t := range tags {
				out = append(out, "@"+t.Name)
			}
			return nil
		case shapeEntInfo:
			return errInval("readdir", path)
		case shapeInvalid:
			return errInval("readdir", path)
		case shapeTagOnly:
			if _, err := resolveTags(tx, "readdir", path, s.tags); err != nil {
				return err
			}
			entities, err := tx.EntitiesHavingAll(s.tags)
			if err != nil {
				return err
			}
			for _, e := range entities {
				out = append(out, e.Name)
			}
			return nil
		case shapeEntitySymlink:
			return errInval("readdir", path)
		case shapePassThrough:
			real, err := resolveRealPath(tx, "readdir", path, s)
			if err != nil {
				return err
			}
			names, err := d.loopback.Readdir(real)
			if err != nil {
				return err
			}
			out = names
			return nil
		}
		return errInval("readdir", path)
	})
	return out, err
}

// Readlink implements readlink(2).
func (d *Dispatcher) Readlink(ctx context.Context, path string) (string, error) {
	logger.TraceFor("dispatch", "readlink %s", path)
	s := classify(path)

	var out string
	err := d.withTx(ctx, func(tx models.Tx) error {
		switch s.kind {
		case shapeRoot, shapeTagOnly, shapeEntInfo:
			return errInval("readlink", path)
		case shapeInvalid:
			return errNoEnt("readlink", path)
		case shapeEntitySymlink:
			real, err := resolveRealPath(tx, "readlink", path, s)
			if err != nil {
				return err
			}
			out = real
			return nil
		case shapePassThrough:
			real, err := resolveRealPath(tx, "readlink", path, s)
			if err != nil {
				return err
			}
			target, err := d.loopback.Readlink(real)
			if err != nil {
				return err
			}
			out = target
			return nil
		}
		return errNoEnt("readlink", path)
	})
	return out, err
}

// Mkdir implements mkdir(2). On a Tag-only path, ensures each named tag
// exists, creating the ones that are missing: both-if-missing and
// idempotent.
func (d *Dispatcher) Mkdir(ctx context.Context, path string, mode uint32) error {
	logger.TraceFor("dispatch", "mkdir %s", path)
	s := classify(path)

	switch s.kind {
	case shapeRoot, shapeEntInfo, shapeEntitySymlink, shapeInvalid:
		return errInval("mkdir", path)
	}

	return d.withTx(ctx, func(tx models.Tx) error {
		switch s.kind {
		case shapeTagOnly:
			for _, name := range s.tags {
				if _, err := tx.TagByName(name); err == models.ErrNotFound {
					if !models.ValidTagName(name) {
						return errInval("mkdir", path)
					}
					if _, err := tx.InsertTag(name); err != nil && err != models.ErrAlreadyExists {
						return err
					}
				} else if err != nil {
					return err
				}
			}
			return nil
		case shapePassThrough:
			real, err := resolveRealPath(tx, "mkdir", path, s)
			if err != nil {
				return err
			}
			return d.loopback.Mkdir(real, mode)
		}
		return errInval("mkdir", path)
	})
}

// Rmdir implements rmdir(2). Removing a tag cascades: any entity whose
// tag-set becomes empty as a result is deleted too.
func (d *Dispatcher) Rmdir(ctx context.Context, path string) error {
	logger.TraceFor("dispatch", "rmdir %s", path)
	s := classify(path)

	switch s.kind {
	case shapeRoot, shapeEntInfo, shapeEntitySymlink, shapeInvalid:
		return errInval("rmdir", path)
	}

	return d.withTx(ctx, func(tx models.Tx) error {
		switch s.kind {
		case shapeTagOnly:
			tags, err := resolveTags(tx, "rmdir", path, s.tags)
			if err != nil {
				return err
			}
			for _, t := range tags {
				if err := tx.DeleteTag(t); err != nil {
					return err
				}
			}
			return nil
		case shapePassThrough:
			real, err := resolveRealPath(tx, "rmdir", path, s)
			if err != nil {
				return err
			}
			return d.loopback.Rmdir(real)
		}
		return errInval("rmdir", path)
	})
}

// Symlink implements symlink(2): tagging when target names an
// Entity-symlink shape, otherwise EINVAL or a forwarded pass-through.
func (d *Dispatcher) Symlink(ctx context.Context, target, source string) error {
	logger.TraceFor("dispatch", "symlink %s -> %s", target, source)
	s := classify(target)

	switch s.kind {
	case shapeRoot, shapeEntInfo, shapeTagOnly, shapeInvalid:
		return errInval("symlink", target)
	}

	return d.withTx(ctx, func(tx models.Tx) error {
		switch s.kind {
		case shapeEntitySymlink:
			return d.tag(tx, target, s, source)
		case shapePassThrough:
			real, err := resolveRealPath(tx, "symlink", target, s)
			if err != nil {
				return err
			}
			return d.loopback.Symlink(real, source)
		}
		return errInval("symlink", target)
	})
}

// tag performs the tagging semantics for symlink(target=P, source=S)
// where P is an Entity-symlink shape.
func (d *Dispatcher) tag(tx models.Tx, target string, s shape, source string) error {
	if _, err := resolveTags(tx, "symlink", target, s.tags); err != nil {
		return err
	}

	real, err := canonicalizeDir(source)
	if err != nil {
		return err
	}
	if filepath.Base(real) != s.entity {
		return errInval("symlink", target)
	}

	ent, err := tx.EntityByName(s.entity)
	if err == models.ErrNotFound {
		ent, err = tx.InsertEntity(s.entity, real, nil)
		if err != nil {
			return err
		}
		if d.watcher != nil {
			if err := d.watcher.ScheduleIfNewPath(real); err != nil {
				logger.Warn("dispatch: schedule watch for %s: %v", real, err)
			}
		}
	} else if err != nil {
		return err
	} else if ent.RealPath != real {
		// An existing entity name under a different real_path is a
		// collision, never a silent re-registration.
		logger.Debug("dispatch: %v: %s is %s, not %s", models.ErrNameCollision, s.entity, ent.RealPath, real)
		return errInval("symlink", target)
	}

	for _, name := range s.tags {
		if err := tx.AddTag(ent.ID, name); err != nil {
			return err
		}
	}
	return nil
}

// Unlink implements unlink(2): untagging when path names an
// Entity-symlink shape, otherwise EINVAL, ENOENT, or a forwarded
// pass-through depending on shape.
func (d *Dispatcher) Unlink(ctx context.Context, path string) error {
	logger.TraceFor("dispatch", "unlink %s", path)
	s := classify(path)

	switch s.kind {
	case shapeRoot, shapeEntInfo:
		return errInval("unlink", path)
	case shapeTagOnly, shapeInvalid:
		return errNoEnt("unlink", path)
	}

	var pruneWatches bool
	err := d.withTx(ctx, func(tx models.Tx) error {
		switch s.kind {
		case shapeEntitySymlink:
			if _, err := resolveTags(tx, "unlink", path, s.tags); err != nil {
				return err
			}
			ent, err := tx.EntityWithTags(s.entity, s.tags)
			if err != nil {
				return errNoEnt("unlink", path)
			}
			for _, name := range s.tags {
				if err := tx.RemoveTag(ent.ID, name); err != nil {
					return err
				}
			}
			remaining, err := tx.EntityByName(ent.Name)
			if err != nil {
				return err
			}
			if len(remaining.Tags) == 0 {
				if err := tx.DeleteEntity(remaining.ID); err != nil {
					return err
				}
				pruneWatches = true
			}
			return nil
		case shapePassThrough:
			real, err := resolveRealPath(tx, "unlink", path, s)
			if err != nil {
				return err
			}
			return d.loopback.Unlink(real)
		}
		return errNoEnt("unlink", path)
	})
	if err == nil && pruneWatches && d.watcher != nil {
		if pruneErr := d.watcher.UnscheduleRedundantHandlers(ctx); pruneErr != nil {
			logger.Warn("dispatch: prune watches after unlink %s: %v", path, pruneErr)
		}
	}
	return err
}

// Listxattr implements listxattr(2): only "/.entinfo" is supported.
func (d *Dispatcher) Listxattr(ctx context.Context, path string) ([]string, error) {
	if path != EntInfoPath {
		return nil, errNotSup("listxattr", path)
	}
	var out []string
	err := d.withTx(ctx, func(tx models.Tx) error {
		names, err := d.listEntInfo(tx)
		out = names
		return err
	})
	return out, err
}

// Getxattr implements getxattr(2): only "/.entinfo" is supported.
func (d *Dispatcher) Getxattr(ctx context.Context, path, name string) ([]byte, error) {
	if path != EntInfoPath {
		return nil, errNotSup("getxattr", path)
	}
	var out []byte
	err := d.withTx(ctx, func(tx models.Tx) error {
		b, err := d.getEntInfo(tx, name)
		out = b
		return err
	})
	return out, err
}

// Unsupported rejects an operation the namespace never implements
// (link, mknod, and the like) with ENOSYS. The FUSE binding routes ops
// that have no row in the dispatch table here instead of inventing a
// per-op errno.
func (d *Dispatcher) Unsupported(op, path string) error {
	logger.TraceFor("dispatch", "%s %s: unsupported", op, path)
	return errNoSys(op, path)
}

// Forward resolves an arbitrary, otherwise-unhandled op's entity and
// invokes fn with the resolved real path — the "any other" row of the
// operation table: forward after resolving the entity, else ENOENT.
func (d *Dispatcher) Forward(ctx context.Context, op, path string, fn func(realPath string) (any, error)) (any, error) {
	s := classify(path)
	if s.kind != shapePassThrough && s.kind != shapeEntitySymlink {
		return nil, errNoEnt(op, path)
	}

	var out any
	err := d.withTx(ctx, func(tx models.Tx) error {
		real, err := resolveRealPath(tx, op, path, s)
		if err != nil {
			return err
		}
		out, err = fn(real)
		return err
	})
	return out, err
}
