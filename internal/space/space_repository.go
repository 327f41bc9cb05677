package space

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// SpaceRepository defines read access to spaces. Mutations live on the
// Registry, which pairs them with audit entries in one transaction.
type SpaceRepository interface { //nolint:revive // space.SpaceRepository is clearer than space.Repository next to Account/Item repositories
	Get(ctx context.Context, id string) (*Space, error)
	ListByOwner(ctx context.Context, ownerID string, limit, offset int64) ([]Space, error)
	OwnerOf(ctx context.Context, id string) (string, error)
}

// SQLiteSpaceRepository implements SpaceRepository using SQLite.
type SQLiteSpaceRepository struct {
	db *sql.DB
}

// NewSpaceRepository creates a new SQLite-backed space repository.
func NewSpaceRepository(db *sql.DB) *SQLiteSpaceRepository {
	return &SQLiteSpaceRepository{db: db}
}

// Get retrieves a space by ID.
func (r *SQLiteSpaceRepository) Get(ctx context.Context, id string) (*Space, error) {
	var s Space
	err := r.db.QueryRowContext(ctx,
		"SELECT id, title, owner_id FROM spaces WHERE id = ?", id,
	).Scan(&s.ID, &s.Title, &s.OwnerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSpaceNotFound
		}
		return nil, fmt.Errorf("getting space: %w", err)
	}
	return &s, nil
}

// ListByOwner returns a user's spaces with paging.
func (r *SQLiteSpaceRepository) ListByOwner(ctx context.Context, ownerID string, limit, offset int64) ([]Space, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT id, title, owner_id FROM spaces WHERE owner_id = ? ORDER BY id LIMIT ? OFFSET ?",
		ownerID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("listing spaces: %w", err)
	}
	defer rows.Close()

	var spaces []Space
	for rows.Next() {
		var s Space
		if err := rows.Scan(&s.ID, &s.Title, &s.OwnerID); err != nil {
			return nil, fmt.Errorf("scanning space: %w", err)
		}
		spaces = append(spaces, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating spaces: %w", err)
	}

	if spaces == nil {
		spaces = []Space{}
	}
	return spaces, nil
}

// OwnerOf returns the owning user of a space. Used by collaborators that
// only need an ownership check.
func (r *SQLiteSpaceRepository) OwnerOf(ctx context.Context, id string) (string, error) {
	var ownerID string
	err := r.db.QueryRowContext(ctx,
		"SELECT owner_id FROM spaces WHERE id = ?", id).Scan(&ownerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrSpaceNotFound
		}
		return "", fmt.Errorf("getting space owner: %w", err)
	}
	return ownerID, nil
}
