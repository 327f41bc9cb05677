// Package roles maps integer access levels to named permission tiers.
//
// The tier table is built once at startup from configuration and is
// immutable afterwards. Resolution picks the greatest tier whose level does
// not exceed the queried access level, so a user at level 15 with tiers at
// 0, 10 and 100 resolves to the level-10 tier.
package roles

import (
	"fmt"
	"sort"
)

// Permission is a named capability granted by a tier.
type Permission string

// Permissions recognised by the tier table. Tiers do not inherit from each
// other: a tier must list every permission it grants.
const (
	// PermPromote allows changing another user's access level.
	PermPromote Permission = "promote"

	// PermWave allows granting an invite to every user above a level.
	PermWave Permission = "wave"

	// PermManage allows administrative user operations (delete, password reset).
	PermManage Permission = "manage"

	// PermSpaces allows creating spaces and managing owned spaces.
	PermSpaces Permission = "spaces"

	// PermSpacesManage allows managing any space regardless of ownership.
	PermSpacesManage Permission = "spaces_manage"

	// PermServices allows creating space-scoped service accounts.
	PermServices Permission = "services"

	// PermServicesManage allows creating and managing privileged service accounts.
	PermServicesManage Permission = "services_manage"
)

// knownPermissions is the set of permission names accepted in configuration.
var knownPermissions = map[Permission]bool{
	PermPromote:        true,
	PermWave:           true,
	PermManage:         true,
	PermSpaces:         true,
	PermSpacesManage:   true,
	PermServices:       true,
	PermServicesManage: true,
}

// Parse validates a permission name from configuration.
func Parse(name string) (Permission, error) {
	p := Permission(name)
	if !knownPermissions[p] {
		return "", fmt.Errorf("unknown permission %q", name)
	}
	return p, nil
}

// Tier is a single entry in the permission table.
type Tier struct {
	Name        string
	Level       int64
	Permissions []Permission

	set map[Permission]bool
}

// Has reports whether the tier grants the permission.
func (t *Tier) Has(p Permission) bool {
	return t.set[p]
}

// Table is an immutable, ordered permission table.
//
// Thread Safety:
//   - Read-only after New; safe for concurrent use.
type Table struct {
	tiers []Tier // sorted ascending by level
}

// New builds a Table from configured tiers.
//
// The table must be non-empty, levels must be unique, and every permission
// name must be recognised. A malformed table is a startup error, never a
// per-request condition.
func New(tiers []Tier) (*Table, error) {
	if len(tiers) == 0 {
		return nil, fmt.Errorf("permission table is empty")
	}

	sorted := make([]Tier, len(tiers))
	copy(sorted, tiers)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Level < sorted[j].Level
	})

	for i := range sorted {
		t := &sorted[i]
		if t.Name == "" {
			return nil, fmt.Errorf("tier at level %d has no name", t.Level)
		}
		if i > 0 && sorted[i-1].Level == t.Level {
			return nil, fmt.Errorf("tiers %q and %q share level %d", sorted[i-1].Name, t.Name, t.Level)
		}
		t.set = make(map[Permission]bool, len(t.Permissions))
		for _, p := range t.Permissions {
			if !knownPermissions[p] {
				return nil, fmt.Errorf("tier %q: unknown permission %q", t.Name, p)
			}
			t.set[p] = true
		}
	}

	return &Table{tiers: sorted}, nil
}

// Resolve returns the tier that applies to the given access level: the entry
// with the greatest level not exceeding it. Returns nil when the level is
// below every configured tier; callers treat that as no permissions.
func (tb *Table) Resolve(level int64) *Tier {
	// Binary search for the first tier with Level > level; the applicable
	// tier is the one just before it.
	i := sort.Search(len(tb.tiers), func(i int) bool {
		return tb.tiers[i].Level > level
	})
	if i == 0 {
		return nil
	}
	return &tb.tiers[i-1]
}

// Min returns the lowest configured tier. New users default to its level.
func (tb *Table) Min() *Tier {
	return &tb.tiers[0]
}

// Max returns the highest configured tier. The bootstrap user receives its level.
func (tb *Table) Max() *Tier {
	return &tb.tiers[len(tb.tiers)-1]
}

// Tiers returns the tiers in ascending level order.
func (tb *Table) Tiers() []Tier {
	return tb.tiers
}
