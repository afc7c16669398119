package models

import "context"

// WithTx is the scoped transaction boundary: it begins a Tx,
// runs fn, commits on a clean return, rolls back if fn returns an error
// or panics, and always closes the transaction before returning. The
// Dispatcher and the Entity-Path Watcher each wrap every externally
// visible action in WithTx; no action ever mutates the store outside
// its scope.
func WithTx(ctx context.Context, store Store, fn func(Tx) error) (err error) {
	tx, err := store.Begin(ctx)
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	if err = fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return rbErr
		}
		return err
	}

	return tx.Commit()
}
