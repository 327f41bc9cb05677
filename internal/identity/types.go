package identity

import (
	"errors"
	"regexp"
)

// usernamePattern defines the valid format for display names:
// alphanumeric and dots, 3-31 characters.
var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9.]{3,31}$`)

// IsValidUsername checks if a display name meets format requirements.
func IsValidUsername(name string) bool {
	return usernamePattern.MatchString(name)
}

// User represents a registered human account.
type User struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	Invites      int64   `json:"invites"`
	InvitedBy    *string `json:"invited_by,omitempty"`
	Level        int64   `json:"level"`
	PasswordHash string  `json:"-"` // never serialised
}

// Invite is a single-use registration grant. OwnerID is nil when the
// issuing user has since been deleted; such invites remain consumable.
type Invite struct {
	ID      string  `json:"id"`
	OwnerID *string `json:"owner_id,omitempty"`
}

// SSH key algorithm discriminants stored in pubkey_ty.
const (
	SSHKeyEd25519 int64 = 0
	SSHKeyRSA     int64 = 1
	SSHKeyECDSA   int64 = 2
)

// SSHKey is a public key registered for key-based authentication.
// The (Type, Value) pair is globally unique across all users.
type SSHKey struct {
	ID          string `json:"id"`
	Type        int64  `json:"type"`
	Value       string `json:"value"`
	Fingerprint string `json:"fingerprint"`
	OwnerID     string `json:"owner_id"`
}

// Sentinel errors for identity operations.
var (
	ErrUserNotFound  = errors.New("user not found")
	ErrNameTaken     = errors.New("display name already taken")
	ErrKeyTaken      = errors.New("public key already registered")
	ErrInvalidInvite = errors.New("invite does not exist or was already consumed")
	ErrNoInvitesLeft = errors.New("no invites left")

	// ErrInvalidCredentials covers both unknown identity and wrong secret;
	// the two causes are deliberately indistinguishable to callers.
	ErrInvalidCredentials = errors.New("invalid credentials")

	ErrInvalidUsername = errors.New("display name must be 3-31 characters of letters, digits or dots")
	ErrPasswordLength  = errors.New("password length out of bounds")
)
