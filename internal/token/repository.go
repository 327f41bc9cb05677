package token

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Repository defines persistence for personal bearer tokens.
type Repository interface {
	Insert(ctx context.Context, issuedAt int64, nonce uint32, userID string) error
	Lookup(ctx context.Context, issuedAt int64, nonce uint32) (string, error)
	Delete(ctx context.Context, issuedAt int64, nonce uint32) error
	DeleteAllForUser(ctx context.Context, userID string) error
}

// ServiceRepository defines persistence for service tokens.
type ServiceRepository interface {
	Insert(ctx context.Context, issuedAt int64, nonce uint32, serviceID string) error
	Lookup(ctx context.Context, issuedAt int64, nonce uint32) (string, error)
	Delete(ctx context.Context, issuedAt int64, nonce uint32) error
	DeleteAllForService(ctx context.Context, serviceID string) error
	CountForService(ctx context.Context, serviceID string) (int, error)
}

// SQLiteTokenRepository implements Repository over the tokens table.
type SQLiteTokenRepository struct {
	db *sql.DB
}

// NewTokenRepository creates a new SQLite-backed personal token repository.
func NewTokenRepository(db *sql.DB) *SQLiteTokenRepository {
	return &SQLiteTokenRepository{db: db}
}

// Insert stores a token row.
func (r *SQLiteTokenRepository) Insert(ctx context.Context, issuedAt int64, nonce uint32, userID string) error {
	_, err := r.db.ExecContext(ctx,
		"INSERT INTO tokens (iat, rnd, user_id) VALUES (?, ?, ?)",
		issuedAt, nonce, userID)
	if err != nil {
		return fmt.Errorf("inserting token: %w", err)
	}
	return nil
}

// Lookup returns the user a token belongs to. An absent row is
// ErrInvalidToken: row existence is the only source of validity.
func (r *SQLiteTokenRepository) Lookup(ctx context.Context, issuedAt int64, nonce uint32) (string, error) {
	var userID string
	err := r.db.QueryRowContext(ctx,
		"SELECT user_id FROM tokens WHERE iat = ? AND rnd = ?",
		issuedAt, nonce).Scan(&userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrInvalidToken
		}
		return "", fmt.Errorf("looking up token: %w", err)
	}
	return userID, nil
}

// Delete removes exactly one token row; deleting an absent row is a no-op.
func (r *SQLiteTokenRepository) Delete(ctx context.Context, issuedAt int64, nonce uint32) error {
	_, err := r.db.ExecContext(ctx,
		"DELETE FROM tokens WHERE iat = ? AND rnd = ?", issuedAt, nonce)
	if err != nil {
		return fmt.Errorf("deleting token: %w", err)
	}
	return nil
}

// DeleteAllForUser removes every token row for a user.
func (r *SQLiteTokenRepository) DeleteAllForUser(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM tokens WHERE user_id = ?", userID)
	if err != nil {
		return fmt.Errorf("deleting user tokens: %w", err)
	}
	return nil
}

// SQLiteServiceTokenRepository implements ServiceRepository over the
// service_tokens table.
type SQLiteServiceTokenRepository struct {
	db *sql.DB
}

// NewServiceTokenRepository creates a new SQLite-backed service token repository.
func NewServiceTokenRepository(db *sql.DB) *SQLiteServiceTokenRepository {
	return &SQLiteServiceTokenRepository{db: db}
}

// Insert stores a service token row.
func (r *SQLiteServiceTokenRepository) Insert(ctx context.Context, issuedAt int64, nonce uint32, serviceID string) error {
	_, err := r.db.ExecContext(ctx,
		"INSERT INTO service_tokens (iat, rnd, service_id) VALUES (?, ?, ?)",
		issuedAt, nonce, serviceID)
	if err != nil {
		return fmt.Errorf("inserting service token: %w", err)
	}
	return nil
}

// Lookup returns the service account a token belongs to.
func (r *SQLiteServiceTokenRepository) Lookup(ctx context.Context, issuedAt int64, nonce uint32) (string, error) {
	var serviceID string
	err := r.db.QueryRowContext(ctx,
		"SELECT service_id FROM service_tokens WHERE iat = ? AND rnd = ?",
		issuedAt, nonce).Scan(&serviceID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrInvalidToken
		}
		return "", fmt.Errorf("looking up service token: %w", err)
	}
	return serviceID, nil
}

// Delete removes exactly one service token row; idempotent.
func (r *SQLiteServiceTokenRepository) Delete(ctx context.Context, issuedAt int64, nonce uint32) error {
	_, err := r.db.ExecContext(ctx,
		"DELETE FROM service_tokens WHERE iat = ? AND rnd = ?", issuedAt, nonce)
	if err != nil {
		return fmt.Errorf("deleting service token: %w", err)
	}
	return nil
}

// DeleteAllForService removes every token row for a service account.
func (r *SQLiteServiceTokenRepository) DeleteAllForService(ctx context.Context, serviceID string) error {
	_, err := r.db.ExecContext(ctx,
		"DELETE FROM service_tokens WHERE service_id = ?", serviceID)
	if err != nil {
		return fmt.Errorf("deleting service tokens: %w", err)
	}
	return nil
}

// CountForService returns the number of live tokens for a service account.
func (r *SQLiteServiceTokenRepository) CountForService(ctx context.Context, serviceID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM service_tokens WHERE service_id = ?", serviceID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting service tokens: %w", err)
	}
	return count, nil
}
