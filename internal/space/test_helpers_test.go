package space

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	_ "github.com/Amchik/archk/migrations"

	"github.com/Amchik/archk/internal/authz"
	"github.com/Amchik/archk/internal/identity"
	"github.com/Amchik/archk/internal/infrastructure/database"
	"github.com/Amchik/archk/internal/infrastructure/logging"
	"github.com/Amchik/archk/internal/roles"
)

// testDB opens a temporary SQLite database with all migrations applied.
func testDB(t *testing.T) *database.DB {
	t.Helper()

	db, err := database.Open(database.Config{
		Path:        filepath.Join(t.TempDir(), "space-test.db"),
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

// testRegistry wires a registry over a fresh database.
func testRegistry(t *testing.T) (*Registry, *database.DB) {
	t.Helper()

	table, err := roles.New([]roles.Tier{
		{Name: "Admin", Level: 100, Permissions: []roles.Permission{
			roles.PermSpaces, roles.PermSpacesManage,
		}},
		{Name: "Member", Level: 10, Permissions: []roles.Permission{roles.PermSpaces}},
		{Name: "Default", Level: 0},
	})
	if err != nil {
		t.Fatalf("building role table: %v", err)
	}

	db := testDB(t)
	return NewRegistry(db, authz.NewResolver(table), logging.Default()), db
}

// seedUser inserts a user row directly and returns its identity.
func seedUser(t *testing.T, db *database.DB, name string, level int64) *identity.User {
	t.Helper()

	id := "usr-" + name
	if _, err := db.DB.Exec(
		"INSERT INTO users (id, name, level, password_hash) VALUES (?, ?, ?, 'x')",
		id, name, level,
	); err != nil {
		t.Fatalf("seeding user %s: %v", name, err)
	}
	return &identity.User{ID: id, Name: name, Level: level}
}

// auditActions returns the action codes logged for a space, oldest first.
func auditActions(t *testing.T, db *database.DB, spaceID string) []int64 {
	t.Helper()

	rows, err := db.DB.Query(
		"SELECT act FROM spaces_logs WHERE space_id = ? ORDER BY rowid", spaceID)
	if err != nil {
		t.Fatalf("querying audit log: %v", err)
	}
	defer rows.Close()

	var acts []int64
	for rows.Next() {
		var act int64
		if err := rows.Scan(&act); err != nil {
			t.Fatalf("scanning audit row: %v", err)
		}
		acts = append(acts, act)
	}
	if err := rows.Err(); err != nil {
		t.Fatalf("iterating audit rows: %v", err)
	}
	return acts
}

// countRows counts the rows of a table.
func countRows(t *testing.T, db *database.DB, table string) int {
	t.Helper()

	var n int
	if err := db.DB.QueryRow(fmt.Sprintf("SELECT COUNT(*) FROM %s", table)).Scan(&n); err != nil {
		t.Fatalf("counting %s: %v", table, err)
	}
	return n
}
