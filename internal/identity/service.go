package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/Amchik/archk/internal/authz"
	"github.com/Amchik/archk/internal/infrastructure/database"
	"github.com/Amchik/archk/internal/infrastructure/logging"
	"github.com/Amchik/archk/internal/roles"
)

// PageSize is the number of rows returned per page by listing operations.
const PageSize = 50

// resetPasswordLength is the length of generated passwords on admin reset.
const resetPasswordLength = 12

// TokenRevoker revokes issued bearer tokens. Implemented by the token
// authority; declared here so the dependency points outward.
type TokenRevoker interface {
	RevokeAllUser(ctx context.Context, userID string) error
}

// Service implements registration, credential verification and account
// administration on top of the identity repositories.
//
// Multi-row operations (invite consumption, invite issuance) run inside a
// single transaction so concurrent callers can never double-spend an invite.
type Service struct {
	db      *database.DB
	users   UserRepository
	invites InviteRepository
	keys    SSHKeyRepository
	roles   *roles.Table
	authz   *authz.Resolver
	revoker TokenRevoker
	minPass int
	maxPass int
	log     *logging.Logger
}

// NewService creates the identity service.
func NewService(db *database.DB, table *roles.Table, resolver *authz.Resolver, minPass, maxPass int, log *logging.Logger) *Service {
	return &Service{
		db:      db,
		users:   NewUserRepository(db.DB),
		invites: NewInviteRepository(db.DB),
		keys:    NewSSHKeyRepository(db.DB),
		roles:   table,
		authz:   resolver,
		minPass: minPass,
		maxPass: maxPass,
		log:     log.With("component", "identity"),
	}
}

// SetTokenRevoker wires the token authority in after construction; the
// authority itself depends on this package's user repository.
func (s *Service) SetTokenRevoker(r TokenRevoker) {
	s.revoker = r
}

// Users exposes the user repository for collaborating services.
func (s *Service) Users() UserRepository {
	return s.users
}

// Register creates a new user account.
//
// inviteID selects the invite to consume. The empty string is a bootstrap
// sentinel: it is accepted only while no user exists at all, and the created
// account receives the highest configured access level. Any later empty
// registration fails with ErrInvalidInvite, so the bootstrap path can never
// become a standing backdoor.
//
// Invite consumption and user creation commit atomically: two concurrent
// registrations can never consume the same invite.
func (s *Service) Register(ctx context.Context, name, password, inviteID string) (*User, error) {
	if !IsValidUsername(name) {
		return nil, ErrInvalidUsername
	}
	if len(password) < s.minPass || len(password) > s.maxPass {
		return nil, ErrPasswordLength
	}

	hash, err := HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is no-op after commit

	var count int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM users").Scan(&count); err != nil {
		return nil, fmt.Errorf("counting users: %w", err)
	}

	user := &User{
		Name:         name,
		PasswordHash: hash,
	}

	if inviteID == "" {
		if count > 0 {
			return nil, ErrInvalidInvite
		}
		user.Level = s.roles.Max().Level
	} else {
		var owner sql.NullString
		err := tx.QueryRowContext(ctx,
			"SELECT owner_id FROM invites WHERE id = ?", inviteID).Scan(&owner)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrInvalidInvite
		}
		if err != nil {
			return nil, fmt.Errorf("getting invite: %w", err)
		}

		result, err := tx.ExecContext(ctx, "DELETE FROM invites WHERE id = ?", inviteID)
		if err != nil {
			return nil, fmt.Errorf("consuming invite: %w", err)
		}
		rows, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
		if rows == 0 {
			return nil, ErrInvalidInvite
		}

		if owner.Valid {
			user.InvitedBy = &owner.String
		}
		user.Level = s.roles.Min().Level
	}

	user.ID = "usr-" + uuid.NewString()[:8]
	_, err = tx.ExecContext(ctx,
		`INSERT INTO users (id, name, invites, invited_by, level, password_hash)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		user.ID, user.Name, user.Invites, nullStringPtr(user.InvitedBy),
		user.Level, user.PasswordHash,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrNameTaken
		}
		return nil, fmt.Errorf("creating user: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing registration: %w", err)
	}

	s.log.Info("user registered", "user_id", user.ID, "level", user.Level)
	return user, nil
}

// VerifyPassword authenticates a user by name and password.
//
// Unknown name and wrong password both return ErrInvalidCredentials; a
// dummy hash check keeps the timing comparable in the unknown-name case.
func (s *Service) VerifyPassword(ctx context.Context, name, password string) (*User, error) {
	user, err := s.users.GetByName(ctx, name)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			_, _ = CheckPassword(password, dummyHash) //nolint:errcheck // timing equalisation only
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	ok, err := CheckPassword(password, user.PasswordHash)
	if err != nil || !ok {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

// ChangePassword updates the caller's own password after verifying the old
// one. When revokeTokens is set, every bearer token of the user is revoked
// so stolen sessions die with the old password.
func (s *Service) ChangePassword(ctx context.Context, user *User, oldPassword, newPassword string, revokeTokens bool) error {
	if len(newPassword) < s.minPass || len(newPassword) > s.maxPass {
		return ErrPasswordLength
	}

	ok, err := CheckPassword(oldPassword, user.PasswordHash)
	if err != nil || !ok {
		return ErrInvalidCredentials
	}

	hash, err := HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("hashing password: %w", err)
	}

	if err := s.users.UpdatePassword(ctx, user.ID, hash); err != nil {
		return err
	}

	if revokeTokens && s.revoker != nil {
		if err := s.revoker.RevokeAllUser(ctx, user.ID); err != nil {
			return fmt.Errorf("revoking tokens: %w", err)
		}
	}

	s.log.Info("password changed", "user_id", user.ID)
	return nil
}

// ResetPassword sets a random password on the target account and revokes
// all its tokens. Requires the manage permission.
func (s *Service) ResetPassword(ctx context.Context, actor *User, targetID string) (string, error) {
	if err := s.authz.Authorize(actor.Level, roles.PermManage); err != nil {
		return "", err
	}

	password, err := GeneratePassword(resetPasswordLength)
	if err != nil {
		return "", err
	}

	hash, err := HashPassword(password)
	if err != nil {
		return "", fmt.Errorf("hashing password: %w", err)
	}

	if err := s.users.UpdatePassword(ctx, targetID, hash); err != nil {
		return "", err
	}

	if s.revoker != nil {
		if err := s.revoker.RevokeAllUser(ctx, targetID); err != nil {
			return "", fmt.Errorf("revoking tokens: %w", err)
		}
	}

	s.log.Info("password reset", "actor_id", actor.ID, "user_id", targetID)
	return password, nil
}

// RegisterSSHKey adds a public key to the user's account. The (type, value)
// pair is globally unique across all users.
func (s *Service) RegisterSSHKey(ctx context.Context, user *User, keyType int64, value string) (*SSHKey, error) {
	key := &SSHKey{
		Type:    keyType,
		Value:   value,
		OwnerID: user.ID,
	}
	if err := s.keys.Create(ctx, key); err != nil {
		return nil, err
	}

	s.log.Info("ssh key registered", "user_id", user.ID, "key_id", key.ID)
	return key, nil
}

// VerifySSHKey authenticates by exact public key match.
func (s *Service) VerifySSHKey(ctx context.Context, keyType int64, value string) (*User, error) {
	key, err := s.keys.GetByValue(ctx, keyType, value)
	if err != nil {
		return nil, err
	}

	user, err := s.users.GetByID(ctx, key.OwnerID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	return user, nil
}

// KeysByFingerprint returns all registered keys matching a fingerprint.
// This is the lookup surface used by the SSH authority service.
func (s *Service) KeysByFingerprint(ctx context.Context, fingerprint string) ([]SSHKey, error) {
	return s.keys.ListByFingerprint(ctx, fingerprint)
}

// ListSSHKeys returns the user's registered keys.
func (s *Service) ListSSHKeys(ctx context.Context, user *User) ([]SSHKey, error) {
	return s.keys.ListByOwner(ctx, user.ID)
}

// DeleteSSHKey removes one of the user's own keys.
func (s *Service) DeleteSSHKey(ctx context.Context, user *User, keyID string) error {
	return s.keys.Delete(ctx, keyID, user.ID)
}

// IssueInvite creates an invite, spending one unit of the owner's remaining
// invites. The decrement and the insert commit atomically; the guarded
// UPDATE makes concurrent over-spending impossible.
func (s *Service) IssueInvite(ctx context.Context, owner *User) (*Invite, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is no-op after commit

	result, err := tx.ExecContext(ctx,
		"UPDATE users SET invites = invites - 1 WHERE id = ? AND invites > 0", owner.ID)
	if err != nil {
		return nil, fmt.Errorf("spending invite: %w", err)
	}
	rows, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	if rows == 0 {
		return nil, ErrNoInvitesLeft
	}

	inv := &Invite{
		ID:      newInviteID(),
		OwnerID: &owner.ID,
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO invites (id, owner_id) VALUES (?, ?)", inv.ID, owner.ID); err != nil {
		return nil, fmt.Errorf("creating invite: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing invite: %w", err)
	}

	owner.Invites--
	s.log.Info("invite issued", "user_id", owner.ID, "invite_id", inv.ID)
	return inv, nil
}

// ListInvites returns the unconsumed invites issued by the user.
func (s *Service) ListInvites(ctx context.Context, owner *User) ([]Invite, error) {
	return s.invites.ListByOwner(ctx, owner.ID)
}

// InviteWave grants one invite to every user at or above minLevel and
// returns the number of users affected. Requires the wave permission.
func (s *Service) InviteWave(ctx context.Context, actor *User, minLevel int64) (int64, error) {
	if err := s.authz.Authorize(actor.Level, roles.PermWave); err != nil {
		return 0, err
	}

	affected, err := s.users.GrantInvites(ctx, minLevel, 1)
	if err != nil {
		return 0, err
	}

	s.log.Info("invite wave", "actor_id", actor.ID, "min_level", minLevel, "users", affected)
	return affected, nil
}

// Promote changes the target user's access level.
//
// The actor must hold promote, must not be the target, and neither the new
// level nor the target's current level may exceed the actor's own.
func (s *Service) Promote(ctx context.Context, actor *User, targetID string, newLevel int64) error {
	if err := s.authz.Authorize(actor.Level, roles.PermPromote); err != nil {
		return err
	}
	if actor.ID == targetID {
		return authz.ErrForbidden
	}

	target, err := s.users.GetByID(ctx, targetID)
	if err != nil {
		return err
	}

	if err := s.authz.CanPromote(actor.Level, target.Level, newLevel); err != nil {
		return err
	}

	if err := s.users.UpdateLevel(ctx, targetID, newLevel); err != nil {
		return err
	}

	s.log.Info("user promoted", "actor_id", actor.ID, "user_id", targetID, "level", newLevel)
	return nil
}

// DeleteUser removes the target account. Requires the manage permission
// unless the user deletes their own account. The target may not outrank
// the actor.
func (s *Service) DeleteUser(ctx context.Context, actor *User, targetID string) error {
	if actor.ID != targetID {
		if err := s.authz.Authorize(actor.Level, roles.PermManage); err != nil {
			return err
		}

		target, err := s.users.GetByID(ctx, targetID)
		if err != nil {
			return err
		}
		if target.Level > actor.Level {
			return authz.ErrForbidden
		}
	}

	if err := s.users.Delete(ctx, targetID); err != nil {
		return err
	}

	s.log.Info("user deleted", "actor_id", actor.ID, "user_id", targetID)
	return nil
}

// Get retrieves a user by ID.
func (s *Service) Get(ctx context.Context, id string) (*User, error) {
	return s.users.GetByID(ctx, id)
}

// List returns one page of users.
func (s *Service) List(ctx context.Context, page int64) ([]User, error) {
	if page < 0 {
		page = 0
	}
	return s.users.List(ctx, PageSize, page*PageSize)
}

// dummyHash is a valid Argon2id hash of an unguessable throwaway value,
// checked when the user does not exist so both failure paths cost a hash.
const dummyHash = "$argon2id$v=19$m=65536,t=3,p=1$AAAAAAAAAAAAAAAAAAAAAA$Wn9r9GJv5DOCV6ydPYIF0JWxUuA1hZGWk6t0WdJFBd0"
