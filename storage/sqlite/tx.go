package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/osakka/tagdir/models"
)

// tx implements models.Tx over a single *sql.Tx.
type tx struct {
	sqlTx *sql.Tx
}

func (t *tx) Commit() error   { return t.sqlTx.Commit() }
func (t *tx) Rollback() error { return t.sqlTx.Rollback() }

func (t *tx) insertAttr(a models.Attr) (int64, error) {
	res, err := t.sqlTx.Exec(
		`INSERT INTO attrs (st_mode, st_uid, st_gid, st_atime, st_mtime, st_ctime)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		a.StMode, a.StUID, a.StGID, a.StAtime, a.StMtime, a.StCtime)
	if err != nil {
		return 0, fmt.Errorf("sqlite: insert attr: %w", err)
	}
	return res.LastInsertId()
}

func (t *tx) attrByID(id int64) (models.Attr, error) {
	var a models.Attr
	a.ID = id
	err := t.sqlTx.QueryRow(
		`SELECT st_mode, st_uid, st_gid, st_atime, st_mtime, st_ctime
		 FROM attrs WHERE id = ?`, id,
	).Scan(&a.StMode, &a.StUID, &a.StGID, &a.StAtime, &a.StMtime, &a.StCtime)
	if err != nil {
		return models.Attr{}, fmt.Errorf("sqlite: attr %d: %w", id, err)
	}
	return a, nil
}

func (t *tx) TagByName(name string) (*models.Tag, error) {
	var tag models.Tag
	var attrID int64
	err := t.sqlTx.QueryRow(
		`SELECT id, name, attr_id FROM tags WHERE name = ?`, name,
	).Scan(&tag.ID, &tag.Name, &attrID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: tag %q: %w", name, err)
	}
	attr, err := t.attrByID(attrID)
	if err != nil {
		return nil, err
	}
	tag.Attr = attr
	return &tag, nil
}

func (t *tx) AllTags() ([]*models.Tag, error) {
	rows, err := t.sqlTx.Query(`SELECT id, name, attr_id FROM tags ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: all tags: %w", err)
	}
	defer rows.Close()

	var out []*models.Tag
	for rows.Next() {
		var tag models.Tag
		var attrID int64
		if err := rows.Scan(&tag.ID, &tag.Name, &attrID); err != nil {
			return nil, fmt.Errorf("sqlite: scan tag: %w", err)
		}
		attr, err := t.attrByID(attrID)
		if err != nil {
			return nil, err
		}
		tag.Attr = attr
		out = append(out, &tag)
	}
	return out, rows.Err()
}

func (t *tx) InsertTag(name string) (*models.Tag, error) {
	attrID, err := t.insertAttr(models.NewTagAttr(time.Now()))
	if err != nil {
		return nil, err
	}

	res, err := t.sqlTx.Exec(`INSERT INTO tags (name, attr_id) VALUES (?, ?)`, name, attrID)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, models.ErrAlreadyExists
		}
		return nil, fmt.Errorf("sqlite: insert tag %q: %w", name, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}

	attr, err := t.attrByID(attrID)
	if err != nil {
		return nil, err
	}
	return &models.Tag{ID: id, Name: name, Attr: attr}, nil
}

// DeleteTag removes t and, in the same transaction, every Entity whose
// tag-set becomes empty as a result. The tagging FK cascades
// automatically; entities do not, so they are swept explicitly.
func (t *tx) DeleteTag(tg *models.Tag) error {
	rows, err := t.sqlTx.Query(`SELECT entity_id FROM tagging WHERE tag_id = ?`, tg.ID)
	if err != nil {
		return fmt.Errorf("sqlite: tagged entities of %q: %w", tg.Name, err)
	}
	var entityIDs []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return err
		}
		entityIDs = append(entityIDs, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	if _, err := t.sqlTx.Exec(`DELETE FROM tags WHERE id = ?`, tg.ID); err != nil {
		return fmt.Errorf("sqlite: delete tag %q: %w", tg.Name, err)
	}
	if _, err := t.sqlTx.Exec(`DELETE FROM attrs WHERE id = ?`, tg.Attr.ID); err != nil {
		return fmt.Errorf("sqlite: delete attr of tag %q: %w", tg.Name, err)
	}

	for _, id := range entityIDs {
		empty, err := t.entityHasNoTags(id)
		if err != nil {
			return err
		}
		if empty {
			if err := t.DeleteEntity(id); err != nil {
				return err
			}
		}
	}
	return nil
}

func (t *tx) entityHasNoTags(entityID int64) (bool, error) {
	var count int
	err := t.sqlTx.QueryRow(`SELECT COUNT(*) FROM tagging WHERE entity_id = ?`, entityID).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("sqlite: tag count for entity %d: %w", entityID, err)
	}
	return count == 0, nil
}

func (t *tx) scanEntity(id int64, name, realPath string, attrID int64) (*models.Entity, error) {
	attr, err := t.attrByID(attrID)
	if err != nil {
		return nil, err
	}
	tags, err := t.tagsOfEntity(id)
	if err != nil {
		return nil, err
	}
	return &models.Entity{ID: id, Name: name, RealPath: realPath, Attr: attr, Tags: tags}, nil
}

func (t *tx) tagsOfEntity(entityID int64) ([]string, error) {
	rows, err := t.sqlTx.Query(
		`SELECT tags.name FROM tags
		 JOIN tagging ON tagging.tag_id = tags.id
		 WHERE tagging.entity_id = ?
		 ORDER BY tags.name`, entityID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: tags of entity %d: %w", entityID, err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (t *tx) EntityByName(name string) (*models.Entity, error) {
	var id, attrID int64
	var realPath string
	err := t.sqlTx.QueryRow(
		`SELECT id, real_path, attr_id FROM entities WHERE name = ?`, name,
	).Scan(&id, &realPath, &attrID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: entity %q: %w", name, err)
	}
	return t.scanEntity(id, name, realPath, attrID)
}

func (t *tx) EntityWithTags(name string, want []string) (*models.Entity, error) {
	ent, err := t.EntityByName(name)
	if err != nil {
		return nil, err
	}
	if !ent.HasAllTags(want) {
		return nil, models.ErrNotFound
	}
	return ent, nil
}

// EntitiesHavingAll returns every Entity whose tag-set is a superset of
// want in a single round-trip: a group-by over the tagging join with a
// HAVING count filter.
func (t *tx) EntitiesHavingAll(want []string) ([]*models.Entity, error) {
	if len(want) == 0 {
		return nil, nil
	}

	placeholders := make([]string, len(want))
	args := make([]any, len(want)+1)
	for i, name := range want {
		placeholders[i] = "?"
		args[i] = name
	}
	args[len(want)] = len(want)

	query := fmt.Sprintf(`
		SELECT entities.id, entities.name, entities.real_path, entities.attr_id
		FROM entities
		JOIN tagging ON tagging.entity_id = entities.id
		JOIN tags ON tags.id = tagging.tag_id
		WHERE tags.name IN (%s)
		GROUP BY entities.id
		HAVING COUNT(DISTINCT tags.name) = ?
		ORDER BY entities.name`, strings.Join(placeholders, ","))

	rows, err := t.sqlTx.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: intersection query: %w", err)
	}
	defer rows.Close()

	var out []*models.Entity
	for rows.Next() {
		var id, attrID int64
		var name, realPath string
		if err := rows.Scan(&id, &name, &realPath, &attrID); err != nil {
			return nil, err
		}
		ent, err := t.scanEntity(id, name, realPath, attrID)
		if err != nil {
			return nil, err
		}
		out = append(out, ent)
	}
	return out, rows.Err()
}

func (t *tx) AllEntities() ([]*models.Entity, error) {
	rows, err := t.sqlTx.Query(`SELECT id, name, real_path, attr_id FROM entities ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: all entities: %w", err)
	}
	defer rows.Close()

	var out []*models.Entity
	for rows.Next() {
		var id, attrID int64
		var name, realPath string
		if err := rows.Scan(&id, &name, &realPath, &attrID); err != nil {
			return nil, err
		}
		ent, err := t.scanEntity(id, name, realPath, attrID)
		if err != nil {
			return nil, err
		}
		out = append(out, ent)
	}
	return out, rows.Err()
}

func (t *tx) InsertEntity(name, realPath string, initialTags []string) (*models.Entity, error) {
	attrID, err := t.insertAttr(models.NewEntityAttr(time.Now()))
	if err != nil {
		return nil, err
	}

	res, err := t.sqlTx.Exec(`INSERT INTO entities (name, real_path, attr_id) VALUES (?, ?, ?)`,
		name, realPath, attrID)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, models.ErrAlreadyExists
		}
		return nil, fmt.Errorf("sqlite: insert entity %q: %w", name, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}

	for _, tagName := range initialTags {
		if err := t.AddTag(id, tagName); err != nil {
			return nil, err
		}
	}

	return t.scanEntity(id, name, realPath, attrID)
}

func (t *tx) AddTag(entityID int64, tagName string) error {
	tg, err := t.TagByName(tagName)
	if err != nil {
		return err
	}
	_, err = t.sqlTx.Exec(
		`INSERT OR IGNORE INTO tagging (entity_id, tag_id) VALUES (?, ?)`, entityID, tg.ID)
	if err != nil {
		return fmt.Errorf("sqlite: tag entity %d with %q: %w", entityID, tagName, err)
	}
	return nil
}

func (t *tx) RemoveTag(entityID int64, tagName string) error {
	tg, err := t.TagByName(tagName)
	if err != nil {
		return err
	}
	_, err = t.sqlTx.Exec(
		`DELETE FROM tagging WHERE entity_id = ? AND tag_id = ?`, entityID, tg.ID)
	if err != nil {
		return fmt.Errorf("sqlite: untag entity %d of %q: %w", entityID, tagName, err)
	}
	return nil
}

func (t *tx) UpdateEntityPath(entityID int64, newName, newRealPath string) error {
	_, err := t.sqlTx.Exec(
		`UPDATE entities SET name = ?, real_path = ? WHERE id = ?`,
		newName, newRealPath, entityID)
	if err != nil {
		if isUniqueViolation(err) {
			return models.ErrAlreadyExists
		}
		return fmt.Errorf("sqlite: rename entity %d: %w", entityID, err)
	}
	return nil
}

func (t *tx) DeleteEntity(entityID int64) error {
	var attrID int64
	if err := t.sqlTx.QueryRow(`SELECT attr_id FROM entities WHERE id = ?`, entityID).Scan(&attrID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.ErrNotFound
		}
		return fmt.Errorf("sqlite: attr of entity %d: %w", entityID, err)
	}
	if _, err := t.sqlTx.Exec(`DELETE FROM entities WHERE id = ?`, entityID); err != nil {
		return fmt.Errorf("sqlite: delete entity %d: %w", entityID, err)
	}
	if _, err := t.sqlTx.Exec(`DELETE FROM attrs WHERE id = ?`, attrID); err != nil {
		return fmt.Errorf("sqlite: delete attr of entity %d: %w", entityID, err)
	}
	return nil
}

func (t *tx) EnsureRootAttr() (*models.Attr, error) {
	attr, err := t.attrByID(rootAttrID)
	if err == nil {
		return &attr, nil
	}

	now := models.NewRootAttr(time.Now())
	_, err = t.sqlTx.Exec(
		`INSERT INTO attrs (id, st_mode, st_uid, st_gid, st_atime, st_mtime, st_ctime)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rootAttrID, now.StMode, now.StUID, now.StGID, now.StAtime, now.StMtime, now.StCtime)
	if err != nil {
		return nil, fmt.Errorf("sqlite: ensure root attr: %w", err)
	}
	now.ID = rootAttrID
	return &now, nil
}

func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
