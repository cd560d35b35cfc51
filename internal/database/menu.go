package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

const menuItemColumns = `id, category_id, name, name_en, price, subcategory, active, is_addon, allowed_addons, image_url, created_at, updated_at`

func scanMenuItem(row pgx.Row) (MenuItem, error) {
	var m MenuItem
	err := row.Scan(
		&m.ID, &m.CategoryID, &m.Name, &m.NameEn, &m.Price, &m.Subcategory,
		&m.Active, &m.IsAddon, &m.AllowedAddons, &m.ImageURL, &m.CreatedAt, &m.UpdatedAt,
	)
	return m, err
}

const createMenuItem = `
INSERT INTO menu_items (category_id, name, name_en, price, subcategory, active, is_addon, allowed_addons, image_url)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
RETURNING ` + menuItemColumns

type CreateMenuItemParams struct {
	CategoryID    uuid.UUID
	Name          string
	NameEn        pgtype.Text
	Price         pgtype.Numeric
	Subcategory   pgtype.Text
	Active        bool
	IsAddon       bool
	AllowedAddons []uuid.UUID
	ImageURL      pgtype.Text
}

func (q *Queries) CreateMenuItem(ctx context.Context, arg CreateMenuItemParams) (MenuItem, error) {
	row := q.db.QueryRow(ctx, createMenuItem,
		arg.CategoryID, arg.Name, arg.NameEn, arg.Price, arg.Subcategory,
		arg.Active, arg.IsAddon, arg.AllowedAddons, arg.ImageURL,
	)
	return scanMenuItem(row)
}

const getMenuItem = `
SELECT ` + menuItemColumns + `
FROM menu_items
WHERE id = $1`

func (q *Queries) GetMenuItem(ctx context.Context, id uuid.UUID) (MenuItem, error) {
	return scanMenuItem(q.db.QueryRow(ctx, getMenuItem, id))
}

const listMenuItems = `
SELECT ` + menuItemColumns + `
FROM menu_items
ORDER BY created_at ASC`

func (q *Queries) ListMenuItems(ctx context.Context) ([]MenuItem, error) {
	rows, err := q.db.Query(ctx, listMenuItems)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []MenuItem
	for rows.Next() {
		m, err := scanMenuItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, m)
	}
	return items, rows.Err()
}

const getMenuItemsByIDs = `
SELECT ` + menuItemColumns + `
FROM menu_items
WHERE id = ANY($1)`

// GetMenuItemsByIDs resolves a set of catalog ids in one round trip.
// Missing ids are simply absent from the result; callers detect them.
func (q *Queries) GetMenuItemsByIDs(ctx context.Context, ids []uuid.UUID) ([]MenuItem, error) {
	rows, err := q.db.Query(ctx, getMenuItemsByIDs, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []MenuItem
	for rows.Next() {
		m, err := scanMenuItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, m)
	}
	return items, rows.Err()
}

const updateMenuItem = `
UPDATE menu_items
SET category_id = $2, name = $3, name_en = $4, price = $5, subcategory = $6,
    active = $7, is_addon = $8, allowed_addons = $9, image_url = $10, updated_at = now()
WHERE id = $1
RETURNING ` + menuItemColumns

type UpdateMenuItemParams struct {
	ID            uuid.UUID
	CategoryID    uuid.UUID
	Name          string
	NameEn        pgtype.Text
	Price         pgtype.Numeric
	Subcategory   pgtype.Text
	Active        bool
	IsAddon       bool
	AllowedAddons []uuid.UUID
	ImageURL      pgtype.Text
}

func (q *Queries) UpdateMenuItem(ctx context.Context, arg UpdateMenuItemParams) (MenuItem, error) {
	row := q.db.QueryRow(ctx, updateMenuItem,
		arg.ID, arg.CategoryID, arg.Name, arg.NameEn, arg.Price, arg.Subcategory,
		arg.Active, arg.IsAddon, arg.AllowedAddons, arg.ImageURL,
	)
	return scanMenuItem(row)
}

const deleteMenuItem = `
DELETE FROM menu_items
WHERE id = $1`

func (q *Queries) DeleteMenuItem(ctx context.Context, id uuid.UUID) error {
	tag, err := q.db.Exec(ctx, deleteMenuItem, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}
