package dispatch

import (
	"strings"

	"github.com/osakka/tagdir/models"
)

// entityInventoryXattr formats an Entity as the xattr side channel
// value: "real_path,tag_1,tag_2,..." in stored order.
func entityInventoryXattr(e *models.Entity) []byte {
	parts := append([]string{e.RealPath}, e.Tags...)
	return []byte(strings.Join(parts, ","))
}

// listEntInfo implements listxattr("/.entinfo"): every registered
// Entity name.
func (d *Dispatcher) listEntInfo(tx models.Tx) ([]string, error) {
	entities, err := tx.AllEntities()
	if err != nil {
		return nil, err
	}
	names := make([]string, len(entities))
	for i, e := range entities {
		names[i] = e.Name
	}
	return names, nil
}

// getEntInfo implements getxattr("/.entinfo", name): the inventory
// bytes for the named entity, or ENODATA if no such entity.
func (d *Dispatcher) getEntInfo(tx models.Tx, name string) ([]byte, error) {
	ent, err := tx.EntityByName(name)
	if err != nil {
		if err == models.ErrNotFound {
			return nil, errNoData("getxattr", EntInfoPath)
		}
		return nil, err
	}
	return entityInventoryXattr(ent), nil
}
