package store

import (
	"database/sql"
	"fmt"
	"testing"

	"github.com/dorholt/larder/internal/apperr"
	"github.com/dorholt/larder/internal/database"
	"github.com/dorholt/larder/internal/model"
)

func setupUserTest(t *testing.T) (*UserStore, *HouseholdStore, *sql.DB) {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewUserStore(db), NewHouseholdStore(db), db
}

func TestCreateDuplicateUsername(t *testing.T) {
	us, _, _ := setupUserTest(t)

	if _, err := us.Create("alice", "Alice", "hash", nil, model.RoleMember); err != nil {
		t.Fatalf("create: %v", err)
	}
	_, err := us.Create("alice", "Other Alice", "hash", nil, model.RoleMember)
	if !apperr.IsKind(err, apperr.Conflict) {
		t.Errorf("err = %v, want conflict", err)
	}
}

func TestUpdateProfile(t *testing.T) {
	us, _, _ := setupUserTest(t)

	u, err := us.Create("alice", "Alice", "hash", nil, model.RoleMember)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	name := "Alice B"
	newHash := "newhash"
	updated, err := us.UpdateProfile(u.ID, ProfilePatch{DisplayName: &name, NewPasswordHash: &newHash})
	if err != nil {
		t.Fatalf("update profile: %v", err)
	}
	if updated.DisplayName != "Alice B" {
		t.Errorf("display name = %q, want %q", updated.DisplayName, "Alice B")
	}
	if updated.PasswordHash != "newhash" {
		t.Errorf("password hash not updated")
	}

	if _, err := us.UpdateProfile(u.ID, ProfilePatch{}); !apperr.IsKind(err, apperr.Validation) {
		t.Errorf("empty patch err = %v, want validation", err)
	}
}

func TestDeleteAccountConfirmation(t *testing.T) {
	us, _, _ := setupUserTest(t)

	u, err := us.Create("alice", "Alice", "hash", nil, model.RoleMember)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := us.DeleteAccount(u.ID, "wrong"); !apperr.IsKind(err, apperr.Validation) {
		t.Errorf("mismatched confirmation err = %v, want validation", err)
	}
	if got, _ := us.GetByID(u.ID); got == nil {
		t.Fatal("user deleted despite failed confirmation")
	}
}

func TestDeleteAccountReassignsLedger(t *testing.T) {
	us, hs, db := setupUserTest(t)

	alice, _ := us.Create("alice", "Alice", "hash", nil, model.RoleMember)
	bob, _ := us.Create("bob", "Bob", "hash", nil, model.RoleMember)
	h, err := hs.CreateForUser(alice.ID, "")
	if err != nil {
		t.Fatalf("create household: %v", err)
	}
	if _, err := hs.Join(bob.ID, h.JoinCode); err != nil {
		t.Fatalf("join: %v", err)
	}

	loc, _ := NewLocationStore(db).Create(h.ID, "Pantry")
	item, _ := NewFoodItemStore(db).Create(h.ID, "Rice", "ingredient", "grains", 1)
	ls := NewLedgerStore(db)
	entry, err := ls.Record(RecordParams{
		FoodItemID: item.ID, LocationID: loc.ID, UserID: bob.ID,
		TxType: model.TxAdd, Quantity: 500,
	})
	if err != nil {
		t.Fatalf("record: %v", err)
	}

	if err := us.DeleteAccount(bob.ID, "bob"); err != nil {
		t.Fatalf("delete account: %v", err)
	}

	if got, _ := us.GetByID(bob.ID); got != nil {
		t.Error("bob still exists after deletion")
	}

	placeholder, err := us.GetByUsername(fmt.Sprintf("deleted-user-h%d", h.ID))
	if err != nil {
		t.Fatalf("get placeholder: %v", err)
	}
	if placeholder == nil {
		t.Fatal("placeholder user not created")
	}
	if placeholder.Role != model.RoleSystem || !placeholder.Archived {
		t.Errorf("placeholder role = %q archived = %v, want system/archived", placeholder.Role, placeholder.Archived)
	}

	got, err := ls.GetByID(entry.ID)
	if err != nil {
		t.Fatalf("get ledger entry: %v", err)
	}
	if got.UserID != placeholder.ID {
		t.Errorf("ledger user = %d, want placeholder %d", got.UserID, placeholder.ID)
	}

	// Derived stock survives the deletion untouched.
	stock, _ := ls.CurrentStock(item.ID)
	if stock != 500 {
		t.Errorf("stock = %g, want 500", stock)
	}

	// Placeholders never show up as members.
	members, _ := hs.ListMembers(h.ID)
	for _, m := range members {
		if m.Role == model.RoleSystem {
			t.Errorf("placeholder %q listed as member", m.Username)
		}
	}
}

func TestDeleteAccountPlaceholderReused(t *testing.T) {
	us, hs, db := setupUserTest(t)

	alice, _ := us.Create("alice", "Alice", "hash", nil, model.RoleMember)
	bob, _ := us.Create("bob", "Bob", "hash", nil, model.RoleMember)
	carol, _ := us.Create("carol", "Carol", "hash", nil, model.RoleMember)
	h, err := hs.CreateForUser(alice.ID, "")
	if err != nil {
		t.Fatalf("create household: %v", err)
	}
	if _, err := hs.Join(bob.ID, h.JoinCode); err != nil {
		t.Fatalf("bob join: %v", err)
	}
	if _, err := hs.Join(carol.ID, h.JoinCode); err != nil {
		t.Fatalf("carol join: %v", err)
	}

	if err := us.DeleteAccount(bob.ID, "bob"); err != nil {
		t.Fatalf("delete bob: %v", err)
	}
	if err := us.DeleteAccount(carol.ID, "carol"); err != nil {
		t.Fatalf("delete carol: %v", err)
	}

	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM users WHERE role = 'system'`).Scan(&n); err != nil {
		t.Fatalf("count placeholders: %v", err)
	}
	if n != 1 {
		t.Errorf("placeholder count = %d, want 1 (reused per household)", n)
	}
}

func TestDeleteAccountSharedPlaceholder(t *testing.T) {
	us, _, _ := setupUserTest(t)

	u, _ := us.Create("loner", "Loner", "hash", nil, model.RoleMember)
	if err := us.DeleteAccount(u.ID, "loner"); err != nil {
		t.Fatalf("delete: %v", err)
	}

	placeholder, err := us.GetByUsername("deleted-user-shared")
	if err != nil {
		t.Fatalf("get shared placeholder: %v", err)
	}
	if placeholder == nil {
		t.Fatal("shared placeholder not created")
	}
	if placeholder.HouseholdID == nil {
		t.Error("shared placeholder has no household")
	}
}

func TestDeleteOwnerPromotesSuccessor(t *testing.T) {
	us, hs, _ := setupUserTest(t)

	alice, _ := us.Create("alice", "Alice", "hash", nil, model.RoleMember)
	bob, _ := us.Create("bob", "Bob", "hash", nil, model.RoleMember)
	h, err := hs.CreateForUser(alice.ID, "")
	if err != nil {
		t.Fatalf("create household: %v", err)
	}
	if _, err := hs.Join(bob.ID, h.JoinCode); err != nil {
		t.Fatalf("join: %v", err)
	}

	if err := us.DeleteAccount(alice.ID, "alice"); err != nil {
		t.Fatalf("delete owner: %v", err)
	}

	bob, _ = us.GetByID(bob.ID)
	if bob.Role != model.RoleOwner {
		t.Errorf("bob role = %q, want owner after succession", bob.Role)
	}
}

func TestCreateWithHousehold(t *testing.T) {
	us, _, db := setupUserTest(t)

	u, err := us.CreateWithHousehold("alice", "Alice", "hash")
	if err != nil {
		t.Fatalf("create with household: %v", err)
	}
	if u.Role != model.RoleOwner {
		t.Errorf("role = %q, want owner", u.Role)
	}
	if u.HouseholdID == nil {
		t.Fatal("expected a household")
	}

	var name string
	if err := db.QueryRow(`SELECT name FROM households WHERE id = ?`, *u.HouseholdID).Scan(&name); err != nil {
		t.Fatalf("load household: %v", err)
	}
	if name != "Alice's Household" {
		t.Errorf("household name = %q, want default from display name", name)
	}

	// A duplicate username must roll back the whole registration, leaving
	// no stray household behind.
	var before int
	if err := db.QueryRow(`SELECT COUNT(*) FROM households`).Scan(&before); err != nil {
		t.Fatalf("count households: %v", err)
	}
	_, err = us.CreateWithHousehold("alice", "Other Alice", "hash")
	if !apperr.IsKind(err, apperr.Conflict) {
		t.Errorf("duplicate username err = %v, want conflict", err)
	}
	var after int
	if err := db.QueryRow(`SELECT COUNT(*) FROM households`).Scan(&after); err != nil {
		t.Fatalf("count households: %v", err)
	}
	if after != before {
		t.Errorf("household count = %d, want %d (failed registration must not commit)", after, before)
	}
}
