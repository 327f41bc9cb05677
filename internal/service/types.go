package service

import "errors"

// Tier discriminates service account kinds. Values above SpaceEventWatcher
// are space-scoped; low values are privileged global identities.
type Tier int64

const (
	// TierSSHAuthority may look up SSH keys by fingerprint for the whole
	// system. Global; only service managers may create it.
	TierSSHAuthority Tier = 1

	// TierSpaceEventWatcher reads a single space's audit log.
	TierSpaceEventWatcher Tier = 1000

	// TierSpaceActor reports events into a single space's audit log.
	TierSpaceActor Tier = 1001
)

// Valid reports whether the tier is a known discriminant.
func (t Tier) Valid() bool {
	switch t {
	case TierSSHAuthority, TierSpaceEventWatcher, TierSpaceActor:
		return true
	}
	return false
}

// SpaceScoped reports whether accounts of this tier must be bound to a
// space.
func (t Tier) SpaceScoped() bool {
	return t == TierSpaceEventWatcher || t == TierSpaceActor
}

// Privileged reports whether creating accounts of this tier requires the
// services_manage permission regardless of space ownership.
func (t Tier) Privileged() bool {
	return t == TierSSHAuthority
}

// Account is a non-human identity that authenticates with service tokens
// only, never with a password. Space-scoped accounts die with their space.
type Account struct {
	ID      string  `json:"id"`
	Tier    Tier    `json:"ty"`
	SpaceID *string `json:"space_id,omitempty"`
}

// Sentinel errors for service account operations.
var (
	ErrAccountNotFound = errors.New("service account not found")
	ErrInvalidTier     = errors.New("unknown service tier")
	ErrSpaceRequired   = errors.New("tier requires a space binding")
	ErrSpaceForbidden  = errors.New("tier must not be space-bound")
)
