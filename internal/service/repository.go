package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Repository defines persistence for service accounts.
type Repository interface {
	Create(ctx context.Context, account *Account) error
	Get(ctx context.Context, id string) (*Account, error)
	ListBySpace(ctx context.Context, spaceID string) ([]Account, error)
	ListGlobal(ctx context.Context) ([]Account, error)
	Delete(ctx context.Context, id string) error
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewRepository creates a new SQLite-backed service account repository.
func NewRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Create inserts a service account. The ID is generated if empty.
func (r *SQLiteRepository) Create(ctx context.Context, account *Account) error {
	if account.ID == "" {
		account.ID = "svc-" + uuid.NewString()[:8]
	}

	var spaceID any
	if account.SpaceID != nil {
		spaceID = *account.SpaceID
	}

	_, err := r.db.ExecContext(ctx,
		"INSERT INTO service_accounts (id, ty, space_id) VALUES (?, ?, ?)",
		account.ID, int64(account.Tier), spaceID)
	if err != nil {
		return fmt.Errorf("creating service account: %w", err)
	}
	return nil
}

// Get retrieves a service account by ID.
func (r *SQLiteRepository) Get(ctx context.Context, id string) (*Account, error) {
	var a Account
	var tier int64
	var spaceID sql.NullString

	err := r.db.QueryRowContext(ctx,
		"SELECT id, ty, space_id FROM service_accounts WHERE id = ?", id,
	).Scan(&a.ID, &tier, &spaceID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("getting service account: %w", err)
	}

	a.Tier = Tier(tier)
	if spaceID.Valid {
		a.SpaceID = &spaceID.String
	}
	return &a, nil
}

// ListBySpace returns the service accounts bound to a space.
func (r *SQLiteRepository) ListBySpace(ctx context.Context, spaceID string) ([]Account, error) {
	return r.list(ctx,
		"SELECT id, ty, space_id FROM service_accounts WHERE space_id = ? ORDER BY id", spaceID)
}

// ListGlobal returns the service accounts not bound to any space.
func (r *SQLiteRepository) ListGlobal(ctx context.Context) ([]Account, error) {
	return r.list(ctx,
		"SELECT id, ty, space_id FROM service_accounts WHERE space_id IS NULL ORDER BY id")
}

// Delete removes a service account; its tokens cascade away.
func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM service_accounts WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting service account: %w", err)
	}

	rows, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	if rows == 0 {
		return ErrAccountNotFound
	}
	return nil
}

func (r *SQLiteRepository) list(ctx context.Context, query string, args ...any) ([]Account, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing service accounts: %w", err)
	}
	defer rows.Close()

	var accounts []Account
	for rows.Next() {
		var a Account
		var tier int64
		var spaceID sql.NullString
		if err := rows.Scan(&a.ID, &tier, &spaceID); err != nil {
			return nil, fmt.Errorf("scanning service account: %w", err)
		}
		a.Tier = Tier(tier)
		if spaceID.Valid {
			a.SpaceID = &spaceID.String
		}
		accounts = append(accounts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating service accounts: %w", err)
	}

	if accounts == nil {
		accounts = []Account{}
	}
	return accounts, nil
}
