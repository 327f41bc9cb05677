package identity

import (
	"context"
	"path/filepath"
	"testing"

	_ "github.com/Amchik/archk/migrations"

	"github.com/Amchik/archk/internal/authz"
	"github.com/Amchik/archk/internal/infrastructure/database"
	"github.com/Amchik/archk/internal/infrastructure/logging"
	"github.com/Amchik/archk/internal/roles"
)

// testDB opens a temporary SQLite database with all migrations applied.
// The file lives in the test's temp dir and is cleaned up automatically.
func testDB(t *testing.T) *database.DB {
	t.Helper()

	db, err := database.Open(database.Config{
		Path:        filepath.Join(t.TempDir(), "identity-test.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("migrating test db: %v", err)
	}
	return db
}

// testRoles builds the role table used across identity tests.
func testRoles(t *testing.T) *roles.Table {
	t.Helper()

	table, err := roles.New([]roles.Tier{
		{Name: "Admin", Level: 100, Permissions: []roles.Permission{
			roles.PermPromote, roles.PermWave, roles.PermManage,
			roles.PermSpaces, roles.PermSpacesManage,
			roles.PermServices, roles.PermServicesManage,
		}},
		{Name: "Member", Level: 10, Permissions: []roles.Permission{
			roles.PermSpaces, roles.PermServices,
		}},
		{Name: "Default", Level: 0},
	})
	if err != nil {
		t.Fatalf("building role table: %v", err)
	}
	return table
}

// testService wires an identity service over a fresh database.
func testService(t *testing.T) (*Service, *database.DB) {
	t.Helper()

	db := testDB(t)
	table := testRoles(t)
	svc := NewService(db, table, authz.NewResolver(table), 8, 64, logging.Default())
	return svc, db
}

// bootstrapAdmin registers the first user via the empty-invite sentinel.
func bootstrapAdmin(t *testing.T, svc *Service) *User {
	t.Helper()

	admin, err := svc.Register(context.Background(), "admin", "password123", "")
	if err != nil {
		t.Fatalf("bootstrap registration: %v", err)
	}
	return admin
}

// grantInvites sets a user's invite balance directly.
func grantInvites(t *testing.T, db *database.DB, userID string, n int64) {
	t.Helper()

	if _, err := db.DB.Exec("UPDATE users SET invites = ? WHERE id = ?", n, userID); err != nil {
		t.Fatalf("granting invites: %v", err)
	}
}
