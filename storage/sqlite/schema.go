// Package sqlite is the embedded relational store backing the tag/entity
// data model. It implements models.Store over
// database/sql using the mattn/go-sqlite3 driver, the same pairing the
// rest of this codebase's tooling uses for direct database access.
package sqlite

const schema = `
CREATE TABLE IF NOT EXISTS attrs (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	st_mode    INTEGER NOT NULL,
	st_uid     INTEGER NOT NULL,
	st_gid     INTEGER NOT NULL,
	st_atime   INTEGER NOT NULL,
	st_mtime   INTEGER NOT NULL,
	st_ctime   INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS tags (
	id      INTEGER PRIMARY KEY AUTOINCREMENT,
	name    TEXT NOT NULL UNIQUE,
	attr_id INTEGER NOT NULL REFERENCES attrs(id)
);

CREATE TABLE IF NOT EXISTS entities (
	id        INTEGER PRIMARY KEY AUTOINCREMENT,
	name      TEXT NOT NULL UNIQUE,
	real_path TEXT NOT NULL UNIQUE,
	attr_id   INTEGER NOT NULL REFERENCES attrs(id)
);

CREATE TABLE IF NOT EXISTS tagging (
	entity_id INTEGER NOT NULL REFERENCES entities(id) ON DELETE CASCADE,
	tag_id    INTEGER NOT NULL REFERENCES tags(id) ON DELETE CASCADE,
	PRIMARY KEY (entity_id, tag_id)
);

CREATE INDEX IF NOT EXISTS idx_tagging_tag_id ON tagging(tag_id);
`

// rootAttrID is the reserved singleton id for RootAttr.
const rootAttrID = 1
