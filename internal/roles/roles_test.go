package roles

import (
	"testing"
)

func testTable(t *testing.T) *Table {
	t.Helper()

	table, err := New([]Tier{
		{Name: "Admin", Level: 100, Permissions: []Permission{PermPromote, PermManage, PermSpacesManage}},
		{Name: "Member", Level: 10, Permissions: []Permission{PermSpaces}},
		{Name: "Default", Level: 0},
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return table
}

func TestParse(t *testing.T) {
	p, err := Parse("spaces_manage")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if p != PermSpacesManage {
		t.Errorf("Parse() = %q, want %q", p, PermSpacesManage)
	}

	if _, err := Parse("root"); err == nil {
		t.Error("Parse(root) should error")
	}
	if _, err := Parse(""); err == nil {
		t.Error("Parse(empty) should error")
	}
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(nil); err == nil {
		t.Error("New(empty) should error")
	}

	_, err := New([]Tier{
		{Name: "A", Level: 5},
		{Name: "B", Level: 5},
	})
	if err == nil {
		t.Error("New(duplicate levels) should error")
	}

	_, err = New([]Tier{{Name: "", Level: 0}})
	if err == nil {
		t.Error("New(unnamed tier) should error")
	}

	_, err = New([]Tier{{Name: "A", Level: 0, Permissions: []Permission{"fly"}}})
	if err == nil {
		t.Error("New(unknown permission) should error")
	}
}

func TestResolve(t *testing.T) {
	table := testTable(t)

	cases := []struct {
		level int64
		want  string
	}{
		{0, "Default"},
		{5, "Default"},
		{10, "Member"},
		{15, "Member"},
		{99, "Member"},
		{100, "Admin"},
		{1000, "Admin"},
	}
	for _, tc := range cases {
		tier := table.Resolve(tc.level)
		if tier == nil {
			t.Errorf("Resolve(%d) = nil, want %q", tc.level, tc.want)
			continue
		}
		if tier.Name != tc.want {
			t.Errorf("Resolve(%d) = %q, want %q", tc.level, tier.Name, tc.want)
		}
	}

	// Below every configured tier there is no applicable entry.
	if tier := table.Resolve(-1); tier != nil {
		t.Errorf("Resolve(-1) = %q, want nil", tier.Name)
	}
}

func TestTierHas(t *testing.T) {
	table := testTable(t)

	member := table.Resolve(10)
	if !member.Has(PermSpaces) {
		t.Error("Member should have spaces")
	}
	if member.Has(PermSpacesManage) {
		t.Error("Member should not have spaces_manage; tiers do not inherit")
	}

	// Admin does not list spaces, and does not inherit it from Member.
	admin := table.Resolve(100)
	if admin.Has(PermSpaces) {
		t.Error("Admin should not have spaces without listing it")
	}
}

func TestMinMax(t *testing.T) {
	table := testTable(t)

	if got := table.Min().Level; got != 0 {
		t.Errorf("Min().Level = %d, want 0", got)
	}
	if got := table.Max().Level; got != 100 {
		t.Errorf("Max().Level = %d, want 100", got)
	}

	tiers := table.Tiers()
	if len(tiers) != 3 {
		t.Fatalf("Tiers() = %d entries, want 3", len(tiers))
	}
	for i := 1; i < len(tiers); i++ {
		if tiers[i-1].Level >= tiers[i].Level {
			t.Errorf("Tiers() not sorted ascending at index %d", i)
		}
	}
}
