package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/osakka/tagdir/models"
)

// Store is the sqlite-backed models.Store. dsn is any database/sql data
// source name the mattn/go-sqlite3 driver accepts, e.g. "/var/lib/tagdir/tagdir.db".
type Store struct {
	db *sql.DB
}

// Open creates (if necessary) and migrates the sqlite database at dsn,
// returning a ready-to-use Store.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite3", dsn+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", dsn, err)
	}

	// The store serializes mutations through sql.Tx; a single
	// connection avoids sqlite's writer-lock contention surfacing as
	// driver errors under concurrent FUSE operations.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: migrate: %w", err)
	}

	// Write the RootAttr row if it is missing, so AUTOINCREMENT never
	// hands its reserved id to a Tag or Entity attr.
	root := models.NewRootAttr(time.Now())
	if _, err := db.Exec(
		`INSERT OR IGNORE INTO attrs (id, st_mode, st_uid, st_gid, st_atime, st_mtime, st_ctime)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rootAttrID, root.StMode, root.StUID, root.StGID, root.StAtime, root.StMtime, root.StCtime); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: root attr: %w", err)
	}

	return &Store{db: db}, nil
}

// Begin starts a new transaction satisfying models.Tx.
func (s *Store) Begin(ctx context.Context) (models.Tx, error) {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("sqlite: begin: %w", err)
	}
	return &tx{sqlTx: sqlTx}, nil
}

// Close releases the underlying *sql.DB.
func (s *Store) Close() error {
	return s.db.Close()
}
