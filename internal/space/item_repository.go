package space

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ItemRepository defines read access to space items.
type ItemRepository interface {
	Get(ctx context.Context, spaceID, itemID string) (*Item, error)
	ListBySpace(ctx context.Context, spaceID string, limit, offset int64) ([]Item, error)
	ListByAccount(ctx context.Context, spaceID, platformID string) ([]Item, error)
}

// SQLiteItemRepository implements ItemRepository using SQLite.
type SQLiteItemRepository struct {
	db *sql.DB
}

// NewItemRepository creates a new SQLite-backed item repository.
func NewItemRepository(db *sql.DB) *SQLiteItemRepository {
	return &SQLiteItemRepository{db: db}
}

// Get retrieves an item, scoped to its space so a guessed ID from another
// space stays invisible.
func (r *SQLiteItemRepository) Get(ctx context.Context, spaceID, itemID string) (*Item, error) {
	var it Item
	var owner sql.NullString
	err := r.db.QueryRowContext(ctx,
		`SELECT id, title, ty, pl_serial, owner_id, space_id
		 FROM spaces_items WHERE space_id = ? AND id = ?`,
		spaceID, itemID,
	).Scan(&it.ID, &it.Title, &it.Type, &it.Serial, &owner, &it.SpaceID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrItemNotFound
		}
		return nil, fmt.Errorf("getting item: %w", err)
	}

	if owner.Valid {
		it.OwnerID = &owner.String
	}
	return &it, nil
}

// ListBySpace returns a space's items with paging.
func (r *SQLiteItemRepository) ListBySpace(ctx context.Context, spaceID string, limit, offset int64) ([]Item, error) {
	return r.list(ctx,
		`SELECT id, title, ty, pl_serial, owner_id, space_id
		 FROM spaces_items WHERE space_id = ? ORDER BY id LIMIT ? OFFSET ?`,
		spaceID, limit, offset)
}

// ListByAccount returns the items owned by a platform account.
func (r *SQLiteItemRepository) ListByAccount(ctx context.Context, spaceID, platformID string) ([]Item, error) {
	return r.list(ctx,
		`SELECT id, title, ty, pl_serial, owner_id, space_id
		 FROM spaces_items WHERE space_id = ? AND owner_id = ? ORDER BY id`,
		spaceID, platformID)
}

func (r *SQLiteItemRepository) list(ctx context.Context, query string, args ...any) ([]Item, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing items: %w", err)
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		var it Item
		var owner sql.NullString
		if err := rows.Scan(&it.ID, &it.Title, &it.Type, &it.Serial, &owner, &it.SpaceID); err != nil {
			return nil, fmt.Errorf("scanning item: %w", err)
		}
		if owner.Valid {
			it.OwnerID = &owner.String
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating items: %w", err)
	}

	if items == nil {
		items = []Item{}
	}
	return items, nil
}
