package space

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// AccountRepository defines read access to platform accounts.
type AccountRepository interface {
	Get(ctx context.Context, spaceID, platformID string) (*Account, error)
	ListBySpace(ctx context.Context, spaceID string, limit, offset int64) ([]Account, error)
}

// SQLiteAccountRepository implements AccountRepository using SQLite.
type SQLiteAccountRepository struct {
	db *sql.DB
}

// NewAccountRepository creates a new SQLite-backed platform account repository.
func NewAccountRepository(db *sql.DB) *SQLiteAccountRepository {
	return &SQLiteAccountRepository{db: db}
}

// Get retrieves an account by its (space, platform id) key.
func (r *SQLiteAccountRepository) Get(ctx context.Context, spaceID, platformID string) (*Account, error) {
	var a Account
	var displayName sql.NullString
	err := r.db.QueryRowContext(ctx,
		`SELECT space_id, pl_id, pl_name, pl_displayname
		 FROM spaces_accounts WHERE space_id = ? AND pl_id = ?`,
		spaceID, platformID,
	).Scan(&a.SpaceID, &a.PlatformID, &a.Name, &displayName)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("getting account: %w", err)
	}

	if displayName.Valid {
		a.DisplayName = &displayName.String
	}
	return &a, nil
}

// ListBySpace returns the accounts bound to a space with paging.
func (r *SQLiteAccountRepository) ListBySpace(ctx context.Context, spaceID string, limit, offset int64) ([]Account, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT space_id, pl_id, pl_name, pl_displayname
		 FROM spaces_accounts WHERE space_id = ? ORDER BY pl_id LIMIT ? OFFSET ?`,
		spaceID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("listing accounts: %w", err)
	}
	defer rows.Close()

	var accounts []Account
	for rows.Next() {
		var a Account
		var displayName sql.NullString
		if err := rows.Scan(&a.SpaceID, &a.PlatformID, &a.Name, &displayName); err != nil {
			return nil, fmt.Errorf("scanning account: %w", err)
		}
		if displayName.Valid {
			a.DisplayName = &displayName.String
		}
		accounts = append(accounts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating accounts: %w", err)
	}

	if accounts == nil {
		accounts = []Account{}
	}
	return accounts, nil
}
