package audit

import (
	"context"
	"path/filepath"
	"testing"

	_ "github.com/Amchik/archk/migrations"

	"github.com/Amchik/archk/internal/infrastructure/database"
)

// testLog opens a migrated temp database with a seeded space to log against.
func testLog(t *testing.T) (*Log, *database.DB) {
	t.Helper()

	db, err := database.Open(database.Config{
		Path:        filepath.Join(t.TempDir(), "audit-test.db"),
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

	_, err = db.DB.Exec(`
		INSERT INTO users (id, name, level, password_hash) VALUES ('usr-1', 'alice', 0, 'x');
		INSERT INTO spaces (id, title, owner_id) VALUES ('spc-1', 'Home', 'usr-1');
	`)
	if err != nil {
		t.Fatalf("seeding space: %v", err)
	}

	return NewLog(db.DB), db
}

func TestAppend_GeneratesIDAndTimestamp(t *testing.T) {
	log, _ := testLog(t)
	ctx := context.Background()

	e := &Entry{SpaceID: "spc-1", Action: ActionSpaceCreated}
	if err := log.Append(ctx, e); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	if e.ID == "" {
		t.Error("Append() should assign an ID")
	}
	if e.CreatedAt == 0 {
		t.Error("Append() should assign a timestamp")
	}
}

func TestList_FilterAndOrder(t *testing.T) {
	log, _ := testLog(t)
	ctx := context.Background()

	acc := "plat-1"
	item := "itm-1"
	seed := []Entry{
		{SpaceID: "spc-1", CreatedAt: 1000, Action: ActionSpaceCreated},
		{SpaceID: "spc-1", CreatedAt: 2000, Action: ActionAccountLinked, AccountRef: &acc},
		{SpaceID: "spc-1", CreatedAt: 3000, Action: ActionItemCreated, AccountRef: &acc, ItemRef: &item},
		{SpaceID: "spc-1", CreatedAt: 4000, Action: ReportedActionBase + 5, ItemRef: &item},
	}
	for i := range seed {
		if err := log.Append(ctx, &seed[i]); err != nil {
			t.Fatalf("Append(%d) error = %v", i, err)
		}
	}

	result, err := log.List(ctx, Filter{SpaceID: "spc-1"})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if result.Total != 4 {
		t.Errorf("Total = %d, want 4", result.Total)
	}
	// Most recent first.
	if result.Entries[0].Action != ReportedActionBase+5 {
		t.Errorf("first entry action = %d, want %d", result.Entries[0].Action, ReportedActionBase+5)
	}

	// Account filter.
	result, _ = log.List(ctx, Filter{SpaceID: "spc-1", AccountRef: "plat-1"})
	if result.Total != 2 {
		t.Errorf("account filter Total = %d, want 2", result.Total)
	}

	// Item filter.
	result, _ = log.List(ctx, Filter{SpaceID: "spc-1", ItemRef: "itm-1"})
	if result.Total != 2 {
		t.Errorf("item filter Total = %d, want 2", result.Total)
	}

	// Time range: After inclusive, Before exclusive.
	result, _ = log.List(ctx, Filter{SpaceID: "spc-1", After: 2000, Before: 4000})
	if result.Total != 2 {
		t.Errorf("time range Total = %d, want 2", result.Total)
	}

	// Unknown space yields an empty, non-nil page.
	result, _ = log.List(ctx, Filter{SpaceID: "spc-404"})
	if result.Total != 0 || result.Entries == nil || len(result.Entries) != 0 {
		t.Errorf("unknown space = %+v, want empty result", result)
	}
}

func TestList_LimitClamp(t *testing.T) {
	log, _ := testLog(t)
	ctx := context.Background()

	for i := int64(0); i < 60; i++ {
		e := Entry{SpaceID: "spc-1", CreatedAt: 1000 + i, Action: ReportedActionBase}
		if err := log.Append(ctx, &e); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}

	// Zero limit defaults to 50.
	result, err := log.List(ctx, Filter{SpaceID: "spc-1"})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(result.Entries) != 50 || result.Limit != 50 {
		t.Errorf("default page = %d entries (limit %d), want 50", len(result.Entries), result.Limit)
	}
	if result.Total != 60 {
		t.Errorf("Total = %d, want 60", result.Total)
	}

	// Oversized limits clamp to 200.
	result, _ = log.List(ctx, Filter{SpaceID: "spc-1", Limit: 1000})
	if result.Limit != 200 {
		t.Errorf("Limit = %d, want 200", result.Limit)
	}

	// Offset pages past the first window.
	result, _ = log.List(ctx, Filter{SpaceID: "spc-1", Limit: 50, Offset: 50})
	if len(result.Entries) != 10 {
		t.Errorf("second page = %d entries, want 10", len(result.Entries))
	}
}

func TestAppend_SoftReferencesSurviveReferentDeletion(t *testing.T) {
	log, db := testLog(t)
	ctx := context.Background()

	if _, err := db.DB.Exec(
		"INSERT INTO spaces_accounts (pl_id, space_id, pl_name) VALUES ('plat-1', 'spc-1', 'Alice')"); err != nil {
		t.Fatalf("seeding account: %v", err)
	}

	acc := "plat-1"
	e := Entry{SpaceID: "spc-1", CreatedAt: 1000, Action: ActionAccountLinked, AccountRef: &acc}
	if err := log.Append(ctx, &e); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	if _, err := db.DB.Exec("DELETE FROM spaces_accounts WHERE pl_id = 'plat-1'"); err != nil {
		t.Fatalf("deleting account: %v", err)
	}

	result, err := log.List(ctx, Filter{SpaceID: "spc-1", AccountRef: "plat-1"})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if result.Total != 1 {
		t.Errorf("Total = %d, want 1; entries must outlive their referents", result.Total)
	}
	if got := result.Entries[0].AccountRef; got == nil || *got != "plat-1" {
		t.Errorf("AccountRef = %v, want plat-1", got)
	}
}
