package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/meur/compendium/internal/models"
	"github.com/meur/compendium/internal/slug"
)

const itemColumns = `
	i.id, i.name, i.slug, i.item_type_id, t.name, t.code, i.rarity,
	i.requires_attunement, i.is_magic, i.cost_cp, i.weight, i.description, i.created_at
	FROM items i JOIN item_types t ON t.id = i.item_type_id`

var itemSortColumns = map[string]string{
	"id":      "i.id",
	"name":    "i.name COLLATE NOCASE",
	"cost_cp": "i.cost_cp",
	"weight":  "i.weight",
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanItem(row scanner) (models.Item, error) {
	var item models.Item
	var itemType models.ItemType
	var costCP sql.NullInt64
	var weight sql.NullFloat64

	err := row.Scan(&item.ID, &item.Name, &item.Slug, &item.ItemTypeID, &itemType.Name, &itemType.Code,
		&item.Rarity, &item.RequiresAttunement, &item.IsMagic, &costCP, &weight, &item.Description, &item.CreatedAt)
	if err != nil {
		return item, err
	}

	itemType.ID = item.ItemTypeID
	item.ItemType = &itemType
	if costCP.Valid {
		v := int(costCP.Int64)
		item.CostCP = &v
	}
	if weight.Valid {
		v := weight.Float64
		item.Weight = &v
	}
	return item, nil
}

func collectItems(rows *sql.Rows) ([]models.Item, error) {
	defer rows.Close()

	items := []models.Item{}
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// --- Item types ---

// UpsertItemType creates an item type or renames the existing one with the same code
func (s *Store) UpsertItemType(ctx context.Context, t *models.ItemType) error {
	if t.Code == "" || t.Name == "" {
		return fmt.Errorf("item type requires name and code")
	}
	return s.db.QueryRowContext(ctx, `
		INSERT INTO item_types (name, code) VALUES (?, ?)
		ON CONFLICT(code) DO UPDATE SET name = excluded.name
		RETURNING id
	`, t.Name, t.Code).Scan(&t.ID)
}

// GetItemTypes returns all item types ordered by name
func (s *Store) GetItemTypes(ctx context.Context) ([]models.ItemType, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, code FROM item_types ORDER BY name, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	types := []models.ItemType{}
	for rows.Next() {
		var t models.ItemType
		if err := rows.Scan(&t.ID, &t.Name, &t.Code); err != nil {
			return nil, err
		}
		types = append(types, t)
	}
	return types, rows.Err()
}

// GetItemTypeByCode returns the item type with the given code
func (s *Store) GetItemTypeByCode(ctx context.Context, code string) (*models.ItemType, error) {
	var t models.ItemType
	err := s.db.QueryRowContext(ctx, `SELECT id, name, code FROM item_types WHERE code = ?`, code).
		Scan(&t.ID, &t.Name, &t.Code)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// --- Items ---

// CreateItem inserts a new item. The slug is derived from the name when empty
// and suffixed until it is unique.
func (s *Store) CreateItem(ctx context.Context, item *models.Item) error {
	base := item.Slug
	if base == "" {
		base = slug.Make(item.Name)
	}
	unique, err := slug.Unique(base, func(c string) (bool, error) {
		return s.exists(ctx, `SELECT 1 FROM items WHERE slug = ?`, c)
	})
	if err != nil {
		return fmt.Errorf("slug for item %q: %w", item.Name, err)
	}
	item.Slug = unique
	item.CreatedAt = time.Now().UTC()

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO items (name, slug, item_type_id, rarity, requires_attunement, is_magic, cost_cp, weight, description, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, item.Name, item.Slug, item.ItemTypeID, item.Rarity, item.RequiresAttunement, item.IsMagic,
		nullInt(item.CostCP), nullFloat(item.Weight), item.Description, item.CreatedAt)
	if err != nil {
		return err
	}
	item.ID, err = res.LastInsertId()
	return err
}

// BulkUpsertItems creates or updates items keyed by slug in a transaction
func (s *Store) BulkUpsertItems(ctx context.Context, items []models.Item) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO items (name, slug, item_type_id, rarity, requires_attunement, is_magic, cost_cp, weight, description, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(slug) DO UPDATE SET
			name = excluded.name,
			item_type_id = excluded.item_type_id,
			rarity = excluded.rarity,
			requires_attunement = excluded.requires_attunement,
			is_magic = excluded.is_magic,
			cost_cp = excluded.cost_cp,
			weight = excluded.weight,
			description = excluded.description
		RETURNING id
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for i := range items {
		item := &items[i]
		if item.Slug == "" {
			item.Slug = slug.Make(item.Name)
		}
		if item.Slug == "" {
			return fmt.Errorf("item %q has no usable slug", item.Name)
		}
		err := stmt.QueryRowContext(ctx, item.Name, item.Slug, item.ItemTypeID, item.Rarity,
			item.RequiresAttunement, item.IsMagic, nullInt(item.CostCP), nullFloat(item.Weight),
			item.Description, now).Scan(&item.ID)
		if err != nil {
			return fmt.Errorf("upsert item %q: %w", item.Name, err)
		}
	}

	return tx.Commit()
}

// ListItems returns one page of items in store order and the total count
func (s *Store) ListItems(ctx context.Context, opts ListOptions) ([]models.Item, int, error) {
	order, err := orderClause(itemSortColumns, "i.id", opts)
	if err != nil {
		return nil, 0, err
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM items`).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.db.QueryContext(ctx, `SELECT `+itemColumns+` `+order+` LIMIT ? OFFSET ?`,
		opts.PerPage, opts.offset())
	if err != nil {
		return nil, 0, err
	}
	items, err := collectItems(rows)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// ItemsByIDs loads the given items, preserving the order of ids. Unknown ids
// are skipped.
func (s *Store) ItemsByIDs(ctx context.Context, ids []int64) ([]models.Item, error) {
	if len(ids) == 0 {
		return []models.Item{}, nil
	}

	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+itemColumns+` WHERE i.id IN (`+placeholders(len(ids))+`)`, args...)
	if err != nil {
		return nil, err
	}
	found, err := collectItems(rows)
	if err != nil {
		return nil, err
	}

	byID := make(map[int64]models.Item, len(found))
	for _, item := range found {
		byID[item.ID] = item
	}
	ordered := make([]models.Item, 0, len(found))
	for _, id := range ids {
		if item, ok := byID[id]; ok {
			ordered = append(ordered, item)
		}
	}
	return ordered, nil
}

// GetItem returns an item by numeric id or slug
func (s *Store) GetItem(ctx context.Context, idOrSlug string) (*models.Item, error) {
	// Slugs may look like ids, "1984" for instance, so an id miss falls
	// back to the slug
	if id, err := strconv.ParseInt(idOrSlug, 10, 64); err == nil {
		item, err := scanItem(s.db.QueryRowContext(ctx, `SELECT `+itemColumns+` WHERE i.id = ?`, id))
		if err == nil {
			return &item, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
	}

	item, err := scanItem(s.db.QueryRowContext(ctx, `SELECT `+itemColumns+` WHERE i.slug = ?`, idOrSlug))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// EachItemChunk walks all items in id order, size records at a time
func (s *Store) EachItemChunk(ctx context.Context, size int, fn func([]models.Item) error) error {
	if size <= 0 {
		return fmt.Errorf("chunk size must be positive, got %d", size)
	}

	var lastID int64
	for {
		rows, err := s.db.QueryContext(ctx,
			`SELECT `+itemColumns+` WHERE i.id > ? ORDER BY i.id LIMIT ?`, lastID, size)
		if err != nil {
			return err
		}
		chunk, err := collectItems(rows)
		if err != nil {
			return err
		}
		if len(chunk) == 0 {
			return nil
		}
		if err := fn(chunk); err != nil {
			return err
		}
		if len(chunk) < size {
			return nil
		}
		lastID = chunk[len(chunk)-1].ID
	}
}
