package service

import (
	"context"

	"github.com/Amchik/archk/internal/authz"
	"github.com/Amchik/archk/internal/identity"
	"github.com/Amchik/archk/internal/infrastructure/logging"
	"github.com/Amchik/archk/internal/roles"
)

// SpaceOwnerLookup resolves a space to its owning user. Implemented by the
// space repository; declared here so the dependency points outward.
type SpaceOwnerLookup interface {
	OwnerOf(ctx context.Context, spaceID string) (string, error)
}

// Manager creates and destroys service accounts under the permission rules:
// privileged tiers need services_manage, space-scoped tiers need services
// plus ownership of the target space (or spaces_manage).
type Manager struct {
	accounts Repository
	spaces   SpaceOwnerLookup
	authz    *authz.Resolver
	log      *logging.Logger
}

// NewManager creates the service account manager.
func NewManager(accounts Repository, spaces SpaceOwnerLookup, resolver *authz.Resolver, log *logging.Logger) *Manager {
	return &Manager{
		accounts: accounts,
		spaces:   spaces,
		authz:    resolver,
		log:      log.With("component", "service"),
	}
}

// Accounts exposes the underlying repository.
func (m *Manager) Accounts() Repository {
	return m.accounts
}

// Create provisions a service account.
func (m *Manager) Create(ctx context.Context, actor *identity.User, tier Tier, spaceID *string) (*Account, error) {
	if !tier.Valid() {
		return nil, ErrInvalidTier
	}
	if tier.SpaceScoped() && spaceID == nil {
		return nil, ErrSpaceRequired
	}
	if !tier.SpaceScoped() && spaceID != nil {
		return nil, ErrSpaceForbidden
	}

	if tier.Privileged() {
		if err := m.authz.Authorize(actor.Level, roles.PermServicesManage); err != nil {
			return nil, err
		}
	} else {
		if err := m.authz.Authorize(actor.Level, roles.PermServices); err != nil {
			return nil, err
		}
	}

	if spaceID != nil {
		ownerID, err := m.spaces.OwnerOf(ctx, *spaceID)
		if err != nil {
			return nil, err
		}
		if ownerID != actor.ID {
			if err := m.authz.Authorize(actor.Level, roles.PermServicesManage); err != nil {
				return nil, err
			}
		}
	}

	account := &Account{Tier: tier, SpaceID: spaceID}
	if err := m.accounts.Create(ctx, account); err != nil {
		return nil, err
	}

	m.log.Info("service account created", "service_id", account.ID, "tier", int64(tier), "actor_id", actor.ID)
	return account, nil
}

// Get retrieves a service account visible to the actor.
func (m *Manager) Get(ctx context.Context, actor *identity.User, id string) (*Account, error) {
	account, err := m.accounts.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := m.canManage(ctx, actor, account); err != nil {
		return nil, err
	}
	return account, nil
}

// ListBySpace returns a space's service accounts, visible to the space
// owner and to service managers.
func (m *Manager) ListBySpace(ctx context.Context, actor *identity.User, spaceID string) ([]Account, error) {
	ownerID, err := m.spaces.OwnerOf(ctx, spaceID)
	if err != nil {
		return nil, err
	}
	if ownerID != actor.ID {
		if err := m.authz.Authorize(actor.Level, roles.PermServicesManage); err != nil {
			return nil, err
		}
	}
	return m.accounts.ListBySpace(ctx, spaceID)
}

// ListGlobal returns the service accounts not bound to any space. Only
// service managers can enumerate these.
func (m *Manager) ListGlobal(ctx context.Context, actor *identity.User) ([]Account, error) {
	if err := m.authz.Authorize(actor.Level, roles.PermServicesManage); err != nil {
		return nil, err
	}
	return m.accounts.ListGlobal(ctx)
}

// Delete removes a service account and, by cascade, its tokens.
func (m *Manager) Delete(ctx context.Context, actor *identity.User, id string) error {
	account, err := m.accounts.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := m.canManage(ctx, actor, account); err != nil {
		return err
	}

	if err := m.accounts.Delete(ctx, id); err != nil {
		return err
	}

	m.log.Info("service account deleted", "service_id", id, "actor_id", actor.ID)
	return nil
}

// canManage allows service managers always, and space owners for accounts
// scoped to their own space.
func (m *Manager) canManage(ctx context.Context, actor *identity.User, account *Account) error {
	if m.authz.Authorize(actor.Level, roles.PermServicesManage) == nil {
		return nil
	}
	if account.SpaceID == nil {
		return authz.ErrForbidden
	}

	ownerID, err := m.spaces.OwnerOf(ctx, *account.SpaceID)
	if err != nil {
		return err
	}
	if ownerID != actor.ID {
		return authz.ErrForbidden
	}
	return m.authz.Authorize(actor.Level, roles.PermServices)
}
