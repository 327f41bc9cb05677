// Package authz gates operations on the permission tier resolved from a
// caller's access level.
package authz

import (
	"errors"

	"github.com/Amchik/archk/internal/roles"
)

// ErrForbidden is returned when the caller's tier lacks a required
// permission or a promotion rule is violated.
var ErrForbidden = errors.New("insufficient permissions")

// Resolver answers permission questions against the configured tier table.
//
// Thread Safety:
//   - Stateless over an immutable table; safe for concurrent use.
type Resolver struct {
	table *roles.Table
}

// NewResolver creates a Resolver over the tier table.
func NewResolver(table *roles.Table) *Resolver {
	return &Resolver{table: table}
}

// Tier returns the tier applying to an access level, or nil if the level is
// below every configured tier.
func (r *Resolver) Tier(level int64) *roles.Tier {
	return r.table.Resolve(level)
}

// Permissions returns the permission set granted at an access level.
func (r *Resolver) Permissions(level int64) []roles.Permission {
	tier := r.table.Resolve(level)
	if tier == nil {
		return nil
	}
	return tier.Permissions
}

// Authorize fails with ErrForbidden unless the level's tier grants the
// permission.
func (r *Resolver) Authorize(level int64, perm roles.Permission) error {
	tier := r.table.Resolve(level)
	if tier == nil || !tier.Has(perm) {
		return ErrForbidden
	}
	return nil
}

// CanPromote checks the level-change rules: the actor may neither touch a
// user above their own level nor grant a level above their own. The promote
// permission itself is checked separately by the caller.
func (r *Resolver) CanPromote(actorLevel, targetLevel, newLevel int64) error {
	if newLevel > actorLevel || targetLevel > actorLevel {
		return ErrForbidden
	}
	return nil
}

// CanManageSpace checks whether an actor may mutate a space: owners need
// the spaces permission, everyone else needs spaces_manage.
func (r *Resolver) CanManageSpace(actorID string, actorLevel int64, ownerID string) error {
	if actorID == ownerID {
		return r.Authorize(actorLevel, roles.PermSpaces)
	}
	return r.Authorize(actorLevel, roles.PermSpacesManage)
}
