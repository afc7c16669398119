// Package models defines the tag/entity/tagging data model that backs the
// virtual namespace: the row shapes, their invariants, and the Store
// interface the dispatcher uses to query and mutate them.
package models

import "errors"

// Sentinel errors returned by Store implementations. The dispatcher maps
// these onto the errno surface; Store implementations should never return
// a raw driver error for a condition covered here.
var (
	// ErrNotFound is returned when a Tag or Entity lookup by name fails.
	ErrNotFound = errors.New("models: not found")

	// ErrAlreadyExists is returned when an insert would violate a
	// uniqueness invariant.
	ErrAlreadyExists = errors.New("models: already exists")

	// ErrNameCollision describes a symlink naming an Entity that already
	// exists under a different real_path. No Store method returns it;
	// the Dispatcher detects the collision itself, logs this error and
	// reports EINVAL.
	ErrNameCollision = errors.New("models: entity name collision")
)
