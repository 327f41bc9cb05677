package space

import (
	"errors"
	"strings"
)

// Space is a user-owned container of platform accounts, items and audit
// history. Deleting a space cascades everything inside it.
type Space struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	OwnerID string `json:"owner_id"`
}

// Account is an externally-sourced identity bound to a space, keyed by its
// platform-side identifier. Distinct from a system user.
type Account struct {
	SpaceID     string  `json:"space_id"`
	PlatformID  string  `json:"pl_id"`
	Name        string  `json:"pl_name"`
	DisplayName *string `json:"pl_displayname,omitempty"`
}

// ItemType tags an item's behaviour.
type ItemType int64

const (
	// ItemNormal is an ordinary tracked item.
	ItemNormal ItemType = 0

	// ItemKeycard is an access credential; it must always have an owning
	// account.
	ItemKeycard ItemType = 1
)

// Valid reports whether the type is a known discriminant.
func (t ItemType) Valid() bool {
	return t == ItemNormal || t == ItemKeycard
}

// Item is a tracked object inside a space. The serial is unique per space.
// Ownership by an account is exclusive: deleting the owning account deletes
// the item.
type Item struct {
	ID      string   `json:"id"`
	Title   string   `json:"title"`
	Type    ItemType `json:"ty"`
	Serial  string   `json:"pl_serial"`
	OwnerID *string  `json:"owner_id,omitempty"` // platform account within the same space
	SpaceID string   `json:"space_id"`
}

// Sentinel errors for space operations.
var (
	ErrSpaceNotFound   = errors.New("space not found")
	ErrAccountNotFound = errors.New("platform account not found")
	ErrItemNotFound    = errors.New("item not found")
	ErrSerialConflict  = errors.New("serial already used in this space")
	ErrKeycardOwner    = errors.New("keycard items must have an owning account")
	ErrInvalidItemType = errors.New("unknown item type")
	ErrEmptyTitle      = errors.New("title must not be empty")
)

// isUniqueViolation checks if a SQLite error is a UNIQUE constraint violation.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// isFKViolation checks if a SQLite error is a FOREIGN KEY constraint violation.
func isFKViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}
