package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// UserRepository defines the interface for user account persistence.
type UserRepository interface {
	Create(ctx context.Context, user *User) error
	GetByID(ctx context.Context, id string) (*User, error)
	GetByName(ctx context.Context, name string) (*User, error)
	List(ctx context.Context, limit, offset int64) ([]User, error)
	UpdateLevel(ctx context.Context, id string, level int64) error
	UpdatePassword(ctx context.Context, id, passwordHash string) error
	GrantInvites(ctx context.Context, minLevel, amount int64) (int64, error)
	Delete(ctx context.Context, id string) error
	Count(ctx context.Context) (int, error)
}

// SQLiteUserRepository implements UserRepository using SQLite.
type SQLiteUserRepository struct {
	db *sql.DB
}

// NewUserRepository creates a new SQLite-backed user repository.
func NewUserRepository(db *sql.DB) *SQLiteUserRepository {
	return &SQLiteUserRepository{db: db}
}

// Create inserts a new user account. The ID is generated if empty.
func (r *SQLiteUserRepository) Create(ctx context.Context, user *User) error {
	if user.ID == "" {
		user.ID = "usr-" + uuid.NewString()[:8]
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (id, name, invites, invited_by, level, password_hash)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		user.ID, user.Name, user.Invites, nullStringPtr(user.InvitedBy),
		user.Level, user.PasswordHash,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrNameTaken
		}
		return fmt.Errorf("creating user: %w", err)
	}

	return nil
}

// GetByID retrieves a user by their unique ID.
func (r *SQLiteUserRepository) GetByID(ctx context.Context, id string) (*User, error) {
	return r.getUser(ctx, "SELECT id, name, invites, invited_by, level, password_hash FROM users WHERE id = ?", id)
}

// GetByName retrieves a user by their display name.
func (r *SQLiteUserRepository) GetByName(ctx context.Context, name string) (*User, error) {
	return r.getUser(ctx, "SELECT id, name, invites, invited_by, level, password_hash FROM users WHERE name = ?", name)
}

// List returns users ordered by ID with paging.
func (r *SQLiteUserRepository) List(ctx context.Context, limit, offset int64) ([]User, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT id, name, invites, invited_by, level, password_hash FROM users ORDER BY id LIMIT ? OFFSET ?",
		limit, offset)
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		u, err := scanUserFrom(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating users: %w", err)
	}

	if users == nil {
		users = []User{}
	}
	return users, nil
}

// UpdateLevel changes a user's access level.
func (r *SQLiteUserRepository) UpdateLevel(ctx context.Context, id string, level int64) error {
	result, err := r.db.ExecContext(ctx,
		"UPDATE users SET level = ? WHERE id = ?", level, id)
	if err != nil {
		return fmt.Errorf("updating level: %w", err)
	}

	rows, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	if rows == 0 {
		return ErrUserNotFound
	}
	return nil
}

// UpdatePassword changes a user's password hash.
func (r *SQLiteUserRepository) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	result, err := r.db.ExecContext(ctx,
		"UPDATE users SET password_hash = ? WHERE id = ?", passwordHash, id)
	if err != nil {
		return fmt.Errorf("updating password: %w", err)
	}

	rows, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	if rows == 0 {
		return ErrUserNotFound
	}
	return nil
}

// GrantInvites adds invites to every user at or above minLevel and returns
// the number of users affected.
func (r *SQLiteUserRepository) GrantInvites(ctx context.Context, minLevel, amount int64) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		"UPDATE users SET invites = invites + ? WHERE level >= ?", amount, minLevel)
	if err != nil {
		return 0, fmt.Errorf("granting invites: %w", err)
	}

	rows, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	return rows, nil
}

// Delete removes a user account by ID.
//
// The schema handles the fallout: tokens and SSH keys cascade away, while
// unconsumed invites and invited users keep their rows with the back
// reference nulled.
func (r *SQLiteUserRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM users WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting user: %w", err)
	}

	rows, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	if rows == 0 {
		return ErrUserNotFound
	}
	return nil
}

// Count returns the total number of user accounts.
func (r *SQLiteUserRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM users").Scan(&count); err != nil {
		return 0, fmt.Errorf("counting users: %w", err)
	}
	return count, nil
}

// getUser executes a query and scans a single user result.
func (r *SQLiteUserRepository) getUser(ctx context.Context, query string, args ...any) (*User, error) {
	return scanUserFrom(r.db.QueryRowContext(ctx, query, args...))
}

// scanner is an interface for sql.Row and sql.Rows Scan methods.
type scanner interface {
	Scan(dest ...any) error
}

// scanUserFrom scans a user from any scanner (Row or Rows).
func scanUserFrom(s scanner) (*User, error) {
	var u User
	var invitedBy sql.NullString

	err := s.Scan(&u.ID, &u.Name, &u.Invites, &invitedBy, &u.Level, &u.PasswordHash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("scanning user: %w", err)
	}

	if invitedBy.Valid {
		u.InvitedBy = &invitedBy.String
	}

	return &u, nil
}

// Helper functions shared by the identity repositories.

func nullStringPtr(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// isUniqueViolation checks if a SQLite error is a UNIQUE constraint violation.
func isUniqueViolation(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "unique constraint"))
}
