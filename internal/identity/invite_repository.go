package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// InviteRepository defines the interface for invite persistence.
//
// Invite consumption is not exposed here: it must happen atomically with
// user creation and lives in the Service's registration transaction.
type InviteRepository interface {
	Get(ctx context.Context, id string) (*Invite, error)
	ListByOwner(ctx context.Context, ownerID string) ([]Invite, error)
}

// SQLiteInviteRepository implements InviteRepository using SQLite.
type SQLiteInviteRepository struct {
	db *sql.DB
}

// NewInviteRepository creates a new SQLite-backed invite repository.
func NewInviteRepository(db *sql.DB) *SQLiteInviteRepository {
	return &SQLiteInviteRepository{db: db}
}

// Get retrieves an invite by ID. An absent row means the invite was never
// issued or has been consumed; both surface as ErrInvalidInvite.
func (r *SQLiteInviteRepository) Get(ctx context.Context, id string) (*Invite, error) {
	var inv Invite
	var owner sql.NullString

	err := r.db.QueryRowContext(ctx,
		"SELECT id, owner_id FROM invites WHERE id = ?", id,
	).Scan(&inv.ID, &owner)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrInvalidInvite
		}
		return nil, fmt.Errorf("getting invite: %w", err)
	}

	if owner.Valid {
		inv.OwnerID = &owner.String
	}
	return &inv, nil
}

// ListByOwner returns all unconsumed invites issued by a user.
func (r *SQLiteInviteRepository) ListByOwner(ctx context.Context, ownerID string) ([]Invite, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT id, owner_id FROM invites WHERE owner_id = ? ORDER BY id", ownerID)
	if err != nil {
		return nil, fmt.Errorf("listing invites: %w", err)
	}
	defer rows.Close()

	var invites []Invite
	for rows.Next() {
		var inv Invite
		var owner sql.NullString
		if err := rows.Scan(&inv.ID, &owner); err != nil {
			return nil, fmt.Errorf("scanning invite: %w", err)
		}
		if owner.Valid {
			inv.OwnerID = &owner.String
		}
		invites = append(invites, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating invites: %w", err)
	}

	if invites == nil {
		invites = []Invite{}
	}
	return invites, nil
}

// newInviteID generates an invite identifier.
func newInviteID() string {
	return "inv-" + uuid.NewString()[:8]
}
