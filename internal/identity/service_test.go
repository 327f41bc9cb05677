package identity

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/Amchik/archk/internal/authz"
)

func TestRegister_Bootstrap(t *testing.T) {
	svc, _ := testService(t)
	ctx := context.Background()

	admin, err := svc.Register(ctx, "admin", "password123", "")
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	if admin.ID == "" {
		t.Fatal("Register() should generate an ID")
	}
	if admin.Level != 100 {
		t.Errorf("Level = %d, want 100 (highest configured tier)", admin.Level)
	}
	if admin.InvitedBy != nil {
		t.Errorf("InvitedBy = %v, want nil", *admin.InvitedBy)
	}
}

func TestRegister_BootstrapClosesAfterFirstUser(t *testing.T) {
	svc, _ := testService(t)
	ctx := context.Background()

	bootstrapAdmin(t, svc)

	_, err := svc.Register(ctx, "intruder", "password123", "")
	if !errors.Is(err, ErrInvalidInvite) {
		t.Errorf("error = %v, want ErrInvalidInvite", err)
	}
}

func TestRegister_ConsumesInvite(t *testing.T) {
	svc, db := testService(t)
	ctx := context.Background()

	admin := bootstrapAdmin(t, svc)
	grantInvites(t, db, admin.ID, 1)
	admin.Invites = 1

	inv, err := svc.IssueInvite(ctx, admin)
	if err != nil {
		t.Fatalf("IssueInvite() error = %v", err)
	}

	user, err := svc.Register(ctx, "alice", "password123", inv.ID)
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	if user.Level != 0 {
		t.Errorf("Level = %d, want 0 (lowest configured tier)", user.Level)
	}
	if user.InvitedBy == nil || *user.InvitedBy != admin.ID {
		t.Errorf("InvitedBy = %v, want %q", user.InvitedBy, admin.ID)
	}

	// The invite is spent: a second registration against it must fail.
	_, err = svc.Register(ctx, "bob", "password123", inv.ID)
	if !errors.Is(err, ErrInvalidInvite) {
		t.Errorf("second consumption error = %v, want ErrInvalidInvite", err)
	}
}

func TestRegister_UnknownInvite(t *testing.T) {
	svc, _ := testService(t)

	bootstrapAdmin(t, svc)

	_, err := svc.Register(context.Background(), "alice", "password123", "inv-missing")
	if !errors.Is(err, ErrInvalidInvite) {
		t.Errorf("error = %v, want ErrInvalidInvite", err)
	}
}

func TestRegister_NameTaken(t *testing.T) {
	svc, db := testService(t)
	ctx := context.Background()

	admin := bootstrapAdmin(t, svc)
	grantInvites(t, db, admin.ID, 1)
	admin.Invites = 1

	inv, err := svc.IssueInvite(ctx, admin)
	if err != nil {
		t.Fatalf("IssueInvite() error = %v", err)
	}

	_, err = svc.Register(ctx, "admin", "password123", inv.ID)
	if !errors.Is(err, ErrNameTaken) {
		t.Errorf("error = %v, want ErrNameTaken", err)
	}
}

func TestRegister_InvalidUsername(t *testing.T) {
	svc, _ := testService(t)
	ctx := context.Background()

	for _, name := range []string{"ab", "has space", "too-dashy", "Ωmega", ""} {
		if _, err := svc.Register(ctx, name, "password123", ""); !errors.Is(err, ErrInvalidUsername) {
			t.Errorf("Register(%q) error = %v, want ErrInvalidUsername", name, err)
		}
	}

	// Dots and mixed case are allowed.
	if _, err := svc.Register(ctx, "ada.Lovelace", "password123", ""); err != nil {
		t.Errorf("Register(ada.Lovelace) error = %v", err)
	}
}

func TestRegister_PasswordLength(t *testing.T) {
	svc, _ := testService(t)
	ctx := context.Background()

	if _, err := svc.Register(ctx, "admin", "short", ""); !errors.Is(err, ErrPasswordLength) {
		t.Errorf("short password error = %v, want ErrPasswordLength", err)
	}

	long := make([]byte, 65)
	for i := range long {
		long[i] = 'a'
	}
	if _, err := svc.Register(ctx, "admin", string(long), ""); !errors.Is(err, ErrPasswordLength) {
		t.Errorf("long password error = %v, want ErrPasswordLength", err)
	}
}

func TestVerifyPassword(t *testing.T) {
	svc, _ := testService(t)
	ctx := context.Background()

	admin := bootstrapAdmin(t, svc)

	got, err := svc.VerifyPassword(ctx, "admin", "password123")
	if err != nil {
		t.Fatalf("VerifyPassword() error = %v", err)
	}
	if got.ID != admin.ID {
		t.Errorf("ID = %q, want %q", got.ID, admin.ID)
	}

	if _, err := svc.VerifyPassword(ctx, "admin", "wrongpassword"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("wrong password error = %v, want ErrInvalidCredentials", err)
	}
	if _, err := svc.VerifyPassword(ctx, "nobody", "password123"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("unknown user error = %v, want ErrInvalidCredentials", err)
	}
}

// recordingRevoker captures RevokeAllUser calls.
type recordingRevoker struct {
	revoked []string
}

func (r *recordingRevoker) RevokeAllUser(_ context.Context, userID string) error {
	r.revoked = append(r.revoked, userID)
	return nil
}

func TestChangePassword(t *testing.T) {
	svc, _ := testService(t)
	ctx := context.Background()

	revoker := &recordingRevoker{}
	svc.SetTokenRevoker(revoker)

	admin := bootstrapAdmin(t, svc)

	if err := svc.ChangePassword(ctx, admin, "wrongpassword", "newpassword1", false); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("wrong old password error = %v, want ErrInvalidCredentials", err)
	}
	if err := svc.ChangePassword(ctx, admin, "password123", "short", false); !errors.Is(err, ErrPasswordLength) {
		t.Errorf("short new password error = %v, want ErrPasswordLength", err)
	}

	if err := svc.ChangePassword(ctx, admin, "password123", "newpassword1", true); err != nil {
		t.Fatalf("ChangePassword() error = %v", err)
	}

	if _, err := svc.VerifyPassword(ctx, "admin", "newpassword1"); err != nil {
		t.Errorf("VerifyPassword(new) error = %v", err)
	}
	if len(revoker.revoked) != 1 || revoker.revoked[0] != admin.ID {
		t.Errorf("revoked = %v, want [%q]", revoker.revoked, admin.ID)
	}
}

func TestResetPassword(t *testing.T) {
	svc, db := testService(t)
	ctx := context.Background()

	admin := bootstrapAdmin(t, svc)
	grantInvites(t, db, admin.ID, 1)
	admin.Invites = 1

	inv, _ := svc.IssueInvite(ctx, admin)
	user, err := svc.Register(ctx, "alice", "password123", inv.ID)
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	// A level-0 user cannot reset anyone's password.
	if _, err := svc.ResetPassword(ctx, user, admin.ID); !errors.Is(err, authz.ErrForbidden) {
		t.Errorf("unprivileged reset error = %v, want ErrForbidden", err)
	}

	password, err := svc.ResetPassword(ctx, admin, user.ID)
	if err != nil {
		t.Fatalf("ResetPassword() error = %v", err)
	}
	if len(password) != resetPasswordLength {
		t.Errorf("password length = %d, want %d", len(password), resetPasswordLength)
	}

	if _, err := svc.VerifyPassword(ctx, "alice", password); err != nil {
		t.Errorf("VerifyPassword(reset) error = %v", err)
	}
	if _, err := svc.VerifyPassword(ctx, "alice", "password123"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("old password error = %v, want ErrInvalidCredentials", err)
	}
}

func TestIssueInvite_NoInvitesLeft(t *testing.T) {
	svc, _ := testService(t)

	admin := bootstrapAdmin(t, svc)

	_, err := svc.IssueInvite(context.Background(), admin)
	if !errors.Is(err, ErrNoInvitesLeft) {
		t.Errorf("error = %v, want ErrNoInvitesLeft", err)
	}
}

func TestInviteWave(t *testing.T) {
	svc, db := testService(t)
	ctx := context.Background()

	admin := bootstrapAdmin(t, svc)
	grantInvites(t, db, admin.ID, 2)
	admin.Invites = 2

	inv1, _ := svc.IssueInvite(ctx, admin)
	inv2, _ := svc.IssueInvite(ctx, admin)
	alice, _ := svc.Register(ctx, "alice", "password123", inv1.ID)
	if _, err := svc.Register(ctx, "bob", "password123", inv2.ID); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	// Promote alice so the wave threshold can separate the two.
	if err := svc.Promote(ctx, admin, alice.ID, 10); err != nil {
		t.Fatalf("Promote() error = %v", err)
	}

	affected, err := svc.InviteWave(ctx, admin, 10)
	if err != nil {
		t.Fatalf("InviteWave() error = %v", err)
	}
	if affected != 2 {
		t.Errorf("affected = %d, want 2 (admin and alice)", affected)
	}

	got, _ := svc.Get(ctx, alice.ID)
	if got.Invites != 1 {
		t.Errorf("alice invites = %d, want 1", got.Invites)
	}

	// Unprivileged users cannot trigger a wave.
	bob, _ := svc.VerifyPassword(ctx, "bob", "password123")
	if _, err := svc.InviteWave(ctx, bob, 0); !errors.Is(err, authz.ErrForbidden) {
		t.Errorf("unprivileged wave error = %v, want ErrForbidden", err)
	}
}

func TestPromote(t *testing.T) {
	svc, db := testService(t)
	ctx := context.Background()

	admin := bootstrapAdmin(t, svc)
	grantInvites(t, db, admin.ID, 1)
	admin.Invites = 1

	inv, _ := svc.IssueInvite(ctx, admin)
	alice, err := svc.Register(ctx, "alice", "password123", inv.ID)
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	if err := svc.Promote(ctx, admin, admin.ID, 50); !errors.Is(err, authz.ErrForbidden) {
		t.Errorf("self-promote error = %v, want ErrForbidden", err)
	}
	if err := svc.Promote(ctx, alice, admin.ID, 0); !errors.Is(err, authz.ErrForbidden) {
		t.Errorf("unprivileged promote error = %v, want ErrForbidden", err)
	}
	if err := svc.Promote(ctx, admin, alice.ID, 101); !errors.Is(err, authz.ErrForbidden) {
		t.Errorf("above-actor promote error = %v, want ErrForbidden", err)
	}

	if err := svc.Promote(ctx, admin, alice.ID, 10); err != nil {
		t.Fatalf("Promote() error = %v", err)
	}
	got, _ := svc.Get(ctx, alice.ID)
	if got.Level != 10 {
		t.Errorf("Level = %d, want 10", got.Level)
	}
}

func TestDeleteUser(t *testing.T) {
	svc, db := testService(t)
	ctx := context.Background()

	admin := bootstrapAdmin(t, svc)
	grantInvites(t, db, admin.ID, 2)
	admin.Invites = 2

	inv1, _ := svc.IssueInvite(ctx, admin)
	inv2, _ := svc.IssueInvite(ctx, admin)
	alice, _ := svc.Register(ctx, "alice", "password123", inv1.ID)
	bob, err := svc.Register(ctx, "bob", "password123", inv2.ID)
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	// Low-level users cannot delete others.
	if err := svc.DeleteUser(ctx, alice, bob.ID); !errors.Is(err, authz.ErrForbidden) {
		t.Errorf("unprivileged delete error = %v, want ErrForbidden", err)
	}

	// Self-deletion needs no permission.
	if err := svc.DeleteUser(ctx, bob, bob.ID); err != nil {
		t.Fatalf("self delete error = %v", err)
	}
	if _, err := svc.Get(ctx, bob.ID); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("Get(deleted) error = %v, want ErrUserNotFound", err)
	}

	// The deleted and remaining users keep their inviter link semantics:
	// deleting the inviter nulls invited_by on survivors.
	if err := svc.DeleteUser(ctx, admin, admin.ID); err != nil {
		t.Fatalf("admin self delete error = %v", err)
	}
	got, err := svc.Get(ctx, alice.ID)
	if err != nil {
		t.Fatalf("Get(alice) error = %v", err)
	}
	if got.InvitedBy != nil {
		t.Errorf("InvitedBy = %q, want nil after inviter deletion", *got.InvitedBy)
	}
}

func TestDeleteUser_OrphansInvitesAndCascadesKeys(t *testing.T) {
	svc, db := testService(t)
	ctx := context.Background()

	admin := bootstrapAdmin(t, svc)
	grantInvites(t, db, admin.ID, 1)
	admin.Invites = 1

	inv, _ := svc.IssueInvite(ctx, admin)
	alice, err := svc.Register(ctx, "alice", "password123", inv.ID)
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	// Alice holds one unconsumed invite and one SSH key when she goes.
	grantInvites(t, db, alice.ID, 1)
	alice.Invites = 1
	orphan, err := svc.IssueInvite(ctx, alice)
	if err != nil {
		t.Fatalf("IssueInvite() error = %v", err)
	}
	if _, err := svc.RegisterSSHKey(ctx, alice, SSHKeyEd25519,
		"AAAAC3NzaC1lZDI1NTE5AAAAIOrphanTestKeyMaterial000000000000000000000"); err != nil {
		t.Fatalf("RegisterSSHKey() error = %v", err)
	}

	if err := svc.DeleteUser(ctx, admin, alice.ID); err != nil {
		t.Fatalf("DeleteUser() error = %v", err)
	}

	// Her key cascades away, but the invite survives with its owner nulled.
	var keys int
	if err := db.DB.QueryRow(
		"SELECT COUNT(*) FROM users_ssh_keys WHERE owner_id = ?", alice.ID).Scan(&keys); err != nil {
		t.Fatalf("counting keys: %v", err)
	}
	if keys != 0 {
		t.Errorf("ssh keys = %d, want 0", keys)
	}

	var owner sql.NullString
	if err := db.DB.QueryRow(
		"SELECT owner_id FROM invites WHERE id = ?", orphan.ID).Scan(&owner); err != nil {
		t.Fatalf("reading orphaned invite: %v", err)
	}
	if owner.Valid {
		t.Errorf("invite owner_id = %q, want NULL", owner.String)
	}

	// The orphaned invite still registers a user, just without an inviter.
	carol, err := svc.Register(ctx, "carol", "password123", orphan.ID)
	if err != nil {
		t.Fatalf("Register(orphaned invite) error = %v", err)
	}
	if carol.InvitedBy != nil {
		t.Errorf("InvitedBy = %q, want nil", *carol.InvitedBy)
	}
	if carol.Level != 0 {
		t.Errorf("Level = %d, want 0", carol.Level)
	}
}

func TestDeleteUser_CannotDeleteHigherLevel(t *testing.T) {
	svc, db := testService(t)
	ctx := context.Background()

	admin := bootstrapAdmin(t, svc)
	grantInvites(t, db, admin.ID, 1)
	admin.Invites = 1

	inv, _ := svc.IssueInvite(ctx, admin)
	alice, _ := svc.Register(ctx, "alice", "password123", inv.ID)

	// Give alice manage via level 100... but keep her below a raised admin.
	if _, err := db.DB.Exec("UPDATE users SET level = 100 WHERE id = ?", alice.ID); err != nil {
		t.Fatalf("raising alice: %v", err)
	}
	if _, err := db.DB.Exec("UPDATE users SET level = 150 WHERE id = ?", admin.ID); err != nil {
		t.Fatalf("raising admin: %v", err)
	}
	alice.Level = 100

	if err := svc.DeleteUser(ctx, alice, admin.ID); !errors.Is(err, authz.ErrForbidden) {
		t.Errorf("delete of higher level error = %v, want ErrForbidden", err)
	}
}

func TestSSHKeys(t *testing.T) {
	svc, _ := testService(t)
	ctx := context.Background()

	admin := bootstrapAdmin(t, svc)

	const pubkey = "AAAAC3NzaC1lZDI1NTE5AAAAIFakeKeyMaterialForTesting0000000000000000000"

	key, err := svc.RegisterSSHKey(ctx, admin, SSHKeyEd25519, pubkey)
	if err != nil {
		t.Fatalf("RegisterSSHKey() error = %v", err)
	}
	if key.Fingerprint == "" {
		t.Error("Fingerprint should be computed on registration")
	}

	// Same key cannot be registered twice, even by the same user.
	if _, err := svc.RegisterSSHKey(ctx, admin, SSHKeyEd25519, pubkey); !errors.Is(err, ErrKeyTaken) {
		t.Errorf("duplicate key error = %v, want ErrKeyTaken", err)
	}

	got, err := svc.VerifySSHKey(ctx, SSHKeyEd25519, pubkey)
	if err != nil {
		t.Fatalf("VerifySSHKey() error = %v", err)
	}
	if got.ID != admin.ID {
		t.Errorf("ID = %q, want %q", got.ID, admin.ID)
	}

	if _, err := svc.VerifySSHKey(ctx, SSHKeyEd25519, "AAAA_unknown"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("unknown key error = %v, want ErrInvalidCredentials", err)
	}

	matches, err := svc.KeysByFingerprint(ctx, key.Fingerprint)
	if err != nil {
		t.Fatalf("KeysByFingerprint() error = %v", err)
	}
	if len(matches) != 1 || matches[0].ID != key.ID {
		t.Errorf("matches = %v, want the registered key", matches)
	}

	if err := svc.DeleteSSHKey(ctx, admin, key.ID); err != nil {
		t.Fatalf("DeleteSSHKey() error = %v", err)
	}
	keys, _ := svc.ListSSHKeys(ctx, admin)
	if len(keys) != 0 {
		t.Errorf("keys after delete = %d, want 0", len(keys))
	}
}

func TestList_Paging(t *testing.T) {
	svc, db := testService(t)
	ctx := context.Background()

	admin := bootstrapAdmin(t, svc)
	grantInvites(t, db, admin.ID, 3)
	admin.Invites = 3

	for _, name := range []string{"alice", "bob", "carol"} {
		inv, err := svc.IssueInvite(ctx, admin)
		if err != nil {
			t.Fatalf("IssueInvite() error = %v", err)
		}
		if _, err := svc.Register(ctx, name, "password123", inv.ID); err != nil {
			t.Fatalf("Register(%s) error = %v", name, err)
		}
	}

	users, err := svc.List(ctx, 0)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(users) != 4 {
		t.Errorf("List() = %d users, want 4", len(users))
	}

	// A page past the data is empty, not an error.
	users, err = svc.List(ctx, 5)
	if err != nil {
		t.Fatalf("List(5) error = %v", err)
	}
	if len(users) != 0 {
		t.Errorf("List(5) = %d users, want 0", len(users))
	}
}
