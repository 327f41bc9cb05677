package space

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/Amchik/archk/internal/audit"
	"github.com/Amchik/archk/internal/authz"
	"github.com/Amchik/archk/internal/identity"
	"github.com/Amchik/archk/internal/infrastructure/database"
	"github.com/Amchik/archk/internal/infrastructure/logging"
	"github.com/Amchik/archk/internal/roles"
)

// PageSize is the number of rows returned per page by listing operations.
const PageSize = 50

// Registry implements all space mutations.
//
// Every successful mutation appends exactly one audit entry in the same
// transaction: if the append fails the mutation rolls back, and a committed
// entry always describes a committed change.
type Registry struct {
	db       *database.DB
	spaces   SpaceRepository
	accounts AccountRepository
	items    ItemRepository
	logs     *audit.Log
	authz    *authz.Resolver
	log      *logging.Logger
}

// NewRegistry creates the space registry.
func NewRegistry(db *database.DB, resolver *authz.Resolver, log *logging.Logger) *Registry {
	return &Registry{
		db:       db,
		spaces:   NewSpaceRepository(db.DB),
		accounts: NewAccountRepository(db.DB),
		items:    NewItemRepository(db.DB),
		logs:     audit.NewLog(db.DB),
		authz:    resolver,
		log:      log.With("component", "space"),
	}
}

// Spaces exposes the space read repository.
func (r *Registry) Spaces() SpaceRepository { return r.spaces }

// Accounts exposes the platform account read repository.
func (r *Registry) Accounts() AccountRepository { return r.accounts }

// Items exposes the item read repository.
func (r *Registry) Items() ItemRepository { return r.items }

// CreateSpace creates a space owned by the actor. Requires the spaces
// permission.
func (r *Registry) CreateSpace(ctx context.Context, actor *identity.User, title string) (*Space, error) {
	if err := r.authz.Authorize(actor.Level, roles.PermSpaces); err != nil {
		return nil, err
	}
	if title == "" {
		return nil, ErrEmptyTitle
	}

	s := &Space{
		ID:      "spc-" + uuid.NewString()[:8],
		Title:   title,
		OwnerID: actor.ID,
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is no-op after commit

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO spaces (id, title, owner_id) VALUES (?, ?, ?)",
		s.ID, s.Title, s.OwnerID); err != nil {
		return nil, fmt.Errorf("creating space: %w", err)
	}

	if err := audit.Append(ctx, tx, &audit.Entry{
		SpaceID: s.ID,
		Action:  audit.ActionSpaceCreated,
	}); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing space: %w", err)
	}

	r.log.Info("space created", "space_id", s.ID, "owner_id", s.OwnerID)
	return s, nil
}

// GetSpace retrieves a space visible to the actor: their own, or any space
// when they hold spaces_manage.
func (r *Registry) GetSpace(ctx context.Context, actor *identity.User, spaceID string) (*Space, error) {
	s, err := r.spaces.Get(ctx, spaceID)
	if err != nil {
		return nil, err
	}
	if err := r.canView(actor, s); err != nil {
		return nil, err
	}
	return s, nil
}

// ListSpaces returns one page of the given owner's spaces. Listing someone
// else's spaces requires spaces_manage.
func (r *Registry) ListSpaces(ctx context.Context, actor *identity.User, ownerID string, page int64) ([]Space, error) {
	if actor.ID != ownerID {
		if err := r.authz.Authorize(actor.Level, roles.PermSpacesManage); err != nil {
			return nil, err
		}
	}
	if page < 0 {
		page = 0
	}
	return r.spaces.ListByOwner(ctx, ownerID, PageSize, page*PageSize)
}

// RenameSpace changes a space's title.
func (r *Registry) RenameSpace(ctx context.Context, actor *identity.User, spaceID, title string) (*Space, error) {
	if title == "" {
		return nil, ErrEmptyTitle
	}

	s, err := r.spaces.Get(ctx, spaceID)
	if err != nil {
		return nil, err
	}
	if err := r.authz.CanManageSpace(actor.ID, actor.Level, s.OwnerID); err != nil {
		return nil, err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is no-op after commit

	if _, err := tx.ExecContext(ctx,
		"UPDATE spaces SET title = ? WHERE id = ?", title, spaceID); err != nil {
		return nil, fmt.Errorf("renaming space: %w", err)
	}

	if err := audit.Append(ctx, tx, &audit.Entry{
		SpaceID: spaceID,
		Action:  audit.ActionSpaceRenamed,
	}); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing rename: %w", err)
	}

	s.Title = title
	return s, nil
}

// DeleteSpace removes a space and, by cascade, its accounts, items, service
// accounts and audit history.
func (r *Registry) DeleteSpace(ctx context.Context, actor *identity.User, spaceID string) error {
	s, err := r.spaces.Get(ctx, spaceID)
	if err != nil {
		return err
	}
	if err := r.authz.CanManageSpace(actor.ID, actor.Level, s.OwnerID); err != nil {
		return err
	}

	if _, err := r.db.ExecContext(ctx, "DELETE FROM spaces WHERE id = ?", spaceID); err != nil {
		return fmt.Errorf("deleting space: %w", err)
	}

	r.log.Info("space deleted", "space_id", spaceID, "actor_id", actor.ID)
	return nil
}

// UpsertAccount links a platform account to a space, or reconciles its
// display fields if the platform identity is already linked. Returns the
// account and whether it was newly created.
func (r *Registry) UpsertAccount(ctx context.Context, actor *identity.User, spaceID, platformID, name string, displayName *string) (*Account, bool, error) {
	s, err := r.spaces.Get(ctx, spaceID)
	if err != nil {
		return nil, false, err
	}
	if err := r.authz.CanManageSpace(actor.ID, actor.Level, s.OwnerID); err != nil {
		return nil, false, err
	}

	a := &Account{
		SpaceID:     spaceID,
		PlatformID:  platformID,
		Name:        name,
		DisplayName: displayName,
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, err
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is no-op after commit

	created := true
	action := audit.ActionAccountLinked

	_, err = tx.ExecContext(ctx,
		`INSERT INTO spaces_accounts (pl_id, space_id, pl_name, pl_displayname)
		 VALUES (?, ?, ?, ?)`,
		platformID, spaceID, name, nullablePtr(displayName))
	if isUniqueViolation(err) {
		created = false
		action = audit.ActionAccountUpdated
		if _, err = tx.ExecContext(ctx,
			`UPDATE spaces_accounts SET pl_name = ?, pl_displayname = ?
			 WHERE space_id = ? AND pl_id = ?`,
			name, nullablePtr(displayName), spaceID, platformID); err != nil {
			return nil, false, fmt.Errorf("reconciling account: %w", err)
		}
	} else if err != nil {
		return nil, false, fmt.Errorf("linking account: %w", err)
	}

	if err := audit.Append(ctx, tx, &audit.Entry{
		SpaceID:    spaceID,
		Action:     action,
		AccountRef: &platformID,
	}); err != nil {
		return nil, false, err
	}

	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("committing account: %w", err)
	}

	return a, created, nil
}

// DeleteAccount unlinks a platform account, cascading its items. Audit
// entries that referenced the account keep its identifier; the reference
// simply stops resolving.
func (r *Registry) DeleteAccount(ctx context.Context, actor *identity.User, spaceID, platformID string) error {
	s, err := r.spaces.Get(ctx, spaceID)
	if err != nil {
		return err
	}
	if err := r.authz.CanManageSpace(actor.ID, actor.Level, s.OwnerID); err != nil {
		return err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is no-op after commit

	result, err := tx.ExecContext(ctx,
		"DELETE FROM spaces_accounts WHERE space_id = ? AND pl_id = ?",
		spaceID, platformID)
	if err != nil {
		return fmt.Errorf("unlinking account: %w", err)
	}
	rows, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	if rows == 0 {
		return ErrAccountNotFound
	}

	if err := audit.Append(ctx, tx, &audit.Entry{
		SpaceID:    spaceID,
		Action:     audit.ActionAccountUnlinked,
		AccountRef: &platformID,
	}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing unlink: %w", err)
	}

	return nil
}

// CreateItem adds an item with a per-space-unique serial. Keycard items
// must name an owning account.
func (r *Registry) CreateItem(ctx context.Context, actor *identity.User, spaceID, title string, ty ItemType, serial string, ownerID *string) (*Item, error) {
	if !ty.Valid() {
		return nil, ErrInvalidItemType
	}
	if ty == ItemKeycard && ownerID == nil {
		return nil, ErrKeycardOwner
	}
	if title == "" {
		return nil, ErrEmptyTitle
	}

	s, err := r.spaces.Get(ctx, spaceID)
	if err != nil {
		return nil, err
	}
	if err := r.authz.CanManageSpace(actor.ID, actor.Level, s.OwnerID); err != nil {
		return nil, err
	}

	it := &Item{
		ID:      "itm-" + uuid.NewString()[:8],
		Title:   title,
		Type:    ty,
		Serial:  serial,
		OwnerID: ownerID,
		SpaceID: spaceID,
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is no-op after commit

	_, err = tx.ExecContext(ctx,
		`INSERT INTO spaces_items (id, title, ty, pl_serial, owner_id, space_id)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		it.ID, it.Title, int64(it.Type), it.Serial, nullablePtr(it.OwnerID), it.SpaceID)
	switch {
	case isUniqueViolation(err):
		return nil, ErrSerialConflict
	case isFKViolation(err):
		// The space row was just read, so the failing reference is the
		// owning account.
		return nil, ErrAccountNotFound
	case err != nil:
		return nil, fmt.Errorf("creating item: %w", err)
	}

	if err := audit.Append(ctx, tx, &audit.Entry{
		SpaceID:    spaceID,
		Action:     audit.ActionItemCreated,
		AccountRef: it.OwnerID,
		ItemRef:    &it.ID,
	}); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing item: %w", err)
	}

	return it, nil
}

// RenameItem changes an item's title.
func (r *Registry) RenameItem(ctx context.Context, actor *identity.User, spaceID, itemID, title string) error {
	if title == "" {
		return ErrEmptyTitle
	}

	s, err := r.spaces.Get(ctx, spaceID)
	if err != nil {
		return err
	}
	if err := r.authz.CanManageSpace(actor.ID, actor.Level, s.OwnerID); err != nil {
		return err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is no-op after commit

	result, err := tx.ExecContext(ctx,
		"UPDATE spaces_items SET title = ? WHERE space_id = ? AND id = ?",
		title, spaceID, itemID)
	if err != nil {
		return fmt.Errorf("renaming item: %w", err)
	}
	rows, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	if rows == 0 {
		return ErrItemNotFound
	}

	if err := audit.Append(ctx, tx, &audit.Entry{
		SpaceID: spaceID,
		Action:  audit.ActionItemUpdated,
		ItemRef: &itemID,
	}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing item rename: %w", err)
	}
	return nil
}

// ReassignItem moves an item to another account in the same space, or
// clears ownership when ownerID is nil. Keycards may never be ownerless.
func (r *Registry) ReassignItem(ctx context.Context, actor *identity.User, spaceID, itemID string, ownerID *string) error {
	s, err := r.spaces.Get(ctx, spaceID)
	if err != nil {
		return err
	}
	if err := r.authz.CanManageSpace(actor.ID, actor.Level, s.OwnerID); err != nil {
		return err
	}

	it, err := r.items.Get(ctx, spaceID, itemID)
	if err != nil {
		return err
	}
	if it.Type == ItemKeycard && ownerID == nil {
		return ErrKeycardOwner
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is no-op after commit

	_, err = tx.ExecContext(ctx,
		"UPDATE spaces_items SET owner_id = ? WHERE space_id = ? AND id = ?",
		nullablePtr(ownerID), spaceID, itemID)
	switch {
	case isFKViolation(err):
		return ErrAccountNotFound
	case err != nil:
		return fmt.Errorf("reassigning item: %w", err)
	}

	if err := audit.Append(ctx, tx, &audit.Entry{
		SpaceID:    spaceID,
		Action:     audit.ActionItemReassigned,
		AccountRef: ownerID,
		ItemRef:    &itemID,
	}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing reassign: %w", err)
	}
	return nil
}

// DeleteItem removes an item.
func (r *Registry) DeleteItem(ctx context.Context, actor *identity.User, spaceID, itemID string) error {
	s, err := r.spaces.Get(ctx, spaceID)
	if err != nil {
		return err
	}
	if err := r.authz.CanManageSpace(actor.ID, actor.Level, s.OwnerID); err != nil {
		return err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is no-op after commit

	result, err := tx.ExecContext(ctx,
		"DELETE FROM spaces_items WHERE space_id = ? AND id = ?", spaceID, itemID)
	if err != nil {
		return fmt.Errorf("deleting item: %w", err)
	}
	rows, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	if rows == 0 {
		return ErrItemNotFound
	}

	if err := audit.Append(ctx, tx, &audit.Entry{
		SpaceID: spaceID,
		Action:  audit.ActionItemDeleted,
		ItemRef: &itemID,
	}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing item delete: %w", err)
	}
	return nil
}

// Report appends an externally observed event to a space's log. This is
// the surface used by space-scoped reporter services; the caller has
// already authenticated the service token and checked its space scope.
// Action codes below ReportedActionBase are reserved for registry
// mutations and rejected.
func (r *Registry) Report(ctx context.Context, spaceID string, action audit.Action, accountRef, itemRef *string) (*audit.Entry, error) {
	if action < audit.ReportedActionBase {
		return nil, fmt.Errorf("action code %d is reserved", action)
	}

	if _, err := r.spaces.OwnerOf(ctx, spaceID); err != nil {
		return nil, err
	}

	e := &audit.Entry{
		SpaceID:    spaceID,
		Action:     action,
		AccountRef: accountRef,
		ItemRef:    itemRef,
	}
	if err := r.logs.Append(ctx, e); err != nil {
		return nil, err
	}
	return e, nil
}

// Logs returns audit entries for a space visible to the actor.
func (r *Registry) Logs(ctx context.Context, actor *identity.User, filter audit.Filter) (*audit.ListResult, error) {
	s, err := r.spaces.Get(ctx, filter.SpaceID)
	if err != nil {
		return nil, err
	}
	if err := r.canView(actor, s); err != nil {
		return nil, err
	}
	return r.logs.List(ctx, filter)
}

// ServiceLogs returns audit entries for the space a watcher service is
// bound to. The caller has already checked the service's scope, so the
// filter's space is pinned rather than authorized.
func (r *Registry) ServiceLogs(ctx context.Context, spaceID string, filter audit.Filter) (*audit.ListResult, error) {
	filter.SpaceID = spaceID
	return r.logs.List(ctx, filter)
}

// canView allows owners and holders of spaces_manage.
func (r *Registry) canView(actor *identity.User, s *Space) error {
	if actor.ID == s.OwnerID {
		return nil
	}
	return r.authz.Authorize(actor.Level, roles.PermSpacesManage)
}

// nullablePtr maps a nil pointer to SQL NULL.
func nullablePtr(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}
