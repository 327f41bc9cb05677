package identity

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Fingerprint derives the lookup fingerprint for a public key: the SHA-256
// digest of the key material, base64 encoded without padding.
func Fingerprint(value string) string {
	sum := sha256.Sum256([]byte(value))
	return base64.RawStdEncoding.EncodeToString(sum[:])
}

// SSHKeyRepository defines the interface for SSH public key persistence.
type SSHKeyRepository interface {
	Create(ctx context.Context, key *SSHKey) error
	GetByValue(ctx context.Context, keyType int64, value string) (*SSHKey, error)
	ListByFingerprint(ctx context.Context, fingerprint string) ([]SSHKey, error)
	ListByOwner(ctx context.Context, ownerID string) ([]SSHKey, error)
	Delete(ctx context.Context, id, ownerID string) error
}

// SQLiteSSHKeyRepository implements SSHKeyRepository using SQLite.
type SQLiteSSHKeyRepository struct {
	db *sql.DB
}

// NewSSHKeyRepository creates a new SQLite-backed SSH key repository.
func NewSSHKeyRepository(db *sql.DB) *SQLiteSSHKeyRepository {
	return &SQLiteSSHKeyRepository{db: db}
}

// Create inserts a new SSH key. The ID and fingerprint are derived if empty.
func (r *SQLiteSSHKeyRepository) Create(ctx context.Context, key *SSHKey) error {
	if key.ID == "" {
		key.ID = "key-" + uuid.NewString()[:8]
	}
	if key.Fingerprint == "" {
		key.Fingerprint = Fingerprint(key.Value)
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users_ssh_keys (id, pubkey_ty, pubkey_val, pubkey_fingerprint, owner_id)
		 VALUES (?, ?, ?, ?, ?)`,
		key.ID, key.Type, key.Value, key.Fingerprint, key.OwnerID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrKeyTaken
		}
		return fmt.Errorf("creating ssh key: %w", err)
	}

	return nil
}

// GetByValue retrieves a key by its (type, value) pair.
func (r *SQLiteSSHKeyRepository) GetByValue(ctx context.Context, keyType int64, value string) (*SSHKey, error) {
	var k SSHKey
	err := r.db.QueryRowContext(ctx,
		`SELECT id, pubkey_ty, pubkey_val, pubkey_fingerprint, owner_id
		 FROM users_ssh_keys WHERE pubkey_ty = ? AND pubkey_val = ?`,
		keyType, value,
	).Scan(&k.ID, &k.Type, &k.Value, &k.Fingerprint, &k.OwnerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("getting ssh key: %w", err)
	}
	return &k, nil
}

// ListByFingerprint returns all keys matching a fingerprint. Fingerprints
// are derived, so collisions across users are possible in principle; the
// caller matches on the full value.
func (r *SQLiteSSHKeyRepository) ListByFingerprint(ctx context.Context, fingerprint string) ([]SSHKey, error) {
	return r.list(ctx,
		`SELECT id, pubkey_ty, pubkey_val, pubkey_fingerprint, owner_id
		 FROM users_ssh_keys WHERE pubkey_fingerprint = ? ORDER BY id`, fingerprint)
}

// ListByOwner returns all keys registered by a user.
func (r *SQLiteSSHKeyRepository) ListByOwner(ctx context.Context, ownerID string) ([]SSHKey, error) {
	return r.list(ctx,
		`SELECT id, pubkey_ty, pubkey_val, pubkey_fingerprint, owner_id
		 FROM users_ssh_keys WHERE owner_id = ? ORDER BY id`, ownerID)
}

// Delete removes a key owned by the given user. Scoping the delete to the
// owner prevents removing another user's key by guessed ID.
func (r *SQLiteSSHKeyRepository) Delete(ctx context.Context, id, ownerID string) error {
	result, err := r.db.ExecContext(ctx,
		"DELETE FROM users_ssh_keys WHERE id = ? AND owner_id = ?", id, ownerID)
	if err != nil {
		return fmt.Errorf("deleting ssh key: %w", err)
	}

	rows, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	if rows == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (r *SQLiteSSHKeyRepository) list(ctx context.Context, query string, args ...any) ([]SSHKey, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing ssh keys: %w", err)
	}
	defer rows.Close()

	var keys []SSHKey
	for rows.Next() {
		var k SSHKey
		if err := rows.Scan(&k.ID, &k.Type, &k.Value, &k.Fingerprint, &k.OwnerID); err != nil {
			return nil, fmt.Errorf("scanning ssh key: %w", err)
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating ssh keys: %w", err)
	}

	if keys == nil {
		keys = []SSHKey{}
	}
	return keys, nil
}
