package models

import "context"

// Tx is the set of transactional operations the Dispatcher and the
// Entity-Path Watcher perform against the data model. Every
// method call happens inside the Tx's scope: nothing outside a Tx ever
// mutates the store.
type Tx interface {
	// Commit persists every mutation made through this Tx. Called by
	// WithTx when the wrapped action returns without error.
	Commit() error

	// Rollback discards every mutation made through this Tx. Called by
	// WithTx when the wrapped action panics or returns an error.
	Rollback() error

	// TagByName looks up a Tag by name. Returns ErrNotFound if absent.
	TagByName(name string) (*Tag, error)

	// AllTags returns every registered Tag.
	AllTags() ([]*Tag, error)

	// InsertTag creates a new Tag with a freshly synthesized Attr.
	// Returns ErrAlreadyExists if name is already taken.
	InsertTag(name string) (*Tag, error)

	// DeleteTag removes t and, in the same transaction, deletes every
	// Entity whose tag-set becomes empty as a result.
	DeleteTag(t *Tag) error

	// EntityByName looks up an Entity by name regardless of its tags.
	// Returns ErrNotFound if absent.
	EntityByName(name string) (*Entity, error)

	// EntityWithTags looks up an Entity by name and requires it carry
	// every tag in want. Returns ErrNotFound if the entity does not
	// exist or does not carry all of want.
	EntityWithTags(name string, want []string) (*Entity, error)

	// EntitiesHavingAll returns every Entity whose tag-set is a
	// superset of want, in a single round-trip. An empty want returns
	// no rows; the dispatcher handles the root listing itself.
	EntitiesHavingAll(want []string) ([]*Entity, error)

	// AllEntities returns every registered Entity, used by the xattr
	// side channel to enumerate the inventory.
	AllEntities() ([]*Entity, error)

	// InsertEntity registers a new Entity with a freshly synthesized
	// Attr and the given initial tag-set. Returns ErrAlreadyExists if
	// name or realPath is already taken.
	InsertEntity(name, realPath string, initialTags []string) (*Entity, error)

	// AddTag adds tagName to entity's tag-set. A no-op if already
	// present (idempotent).
	AddTag(entityID int64, tagName string) error

	// RemoveTag removes tagName from entity's tag-set. A no-op if
	// already absent.
	RemoveTag(entityID int64, tagName string) error

	// UpdateEntityPath renames entity in place: new Name and RealPath,
	// used by the Entity-Path Watcher on an observed directory rename.
	UpdateEntityPath(entityID int64, newName, newRealPath string) error

	// DeleteEntity removes entity and its Attr and Taggings.
	DeleteEntity(entityID int64) error

	// EnsureRootAttr returns the singleton RootAttr, creating it with
	// id=1 if this is the first mount.
	EnsureRootAttr() (*Attr, error)
}

// Store opens scoped transactions against the persisted data model. A
// Store implementation owns the underlying connection; Tx values it
// produces are only valid for the lifetime of the transaction.
type Store interface {
	// Begin starts a new transaction. The caller must Commit or
	// Rollback it exactly once; see WithTx for the usual way to do so.
	Begin(ctx context.Context) (Tx, error)

	// Close releases the Store's underlying connection.
	Close() error
}
