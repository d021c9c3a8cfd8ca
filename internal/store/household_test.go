package store

import (
	"strings"
	"testing"

	"github.com/dorholt/larder/internal/apperr"
	"github.com/dorholt/larder/internal/database"
	"github.com/dorholt/larder/internal/model"
)

func setupHouseholdTest(t *testing.T) (*HouseholdStore, *UserStore) {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewHouseholdStore(db), NewUserStore(db)
}

func mustCreateUser(t *testing.T, us *UserStore, username, displayName string) *model.User {
	t.Helper()
	u, err := us.Create(username, displayName, "hash", nil, model.RoleMember)
	if err != nil {
		t.Fatalf("create user %s: %v", username, err)
	}
	return u
}

func TestCreateForUser(t *testing.T) {
	hs, us := setupHouseholdTest(t)
	alice := mustCreateUser(t, us, "alice", "Alice")

	h, err := hs.CreateForUser(alice.ID, "")
	if err != nil {
		t.Fatalf("create household: %v", err)
	}
	if h.Name != "Alice's Household" {
		t.Errorf("name = %q, want default from display name", h.Name)
	}
	if len(h.JoinCode) != 6 {
		t.Errorf("join code %q, want 6 characters", h.JoinCode)
	}
	for _, r := range h.JoinCode {
		if !strings.ContainsRune(joinCodeAlphabet, r) {
			t.Errorf("join code %q contains %q outside alphabet", h.JoinCode, r)
		}
	}

	alice, err = us.GetByID(alice.ID)
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if alice.HouseholdID == nil || *alice.HouseholdID != h.ID {
		t.Errorf("household id = %v, want %d", alice.HouseholdID, h.ID)
	}
	if alice.Role != model.RoleOwner {
		t.Errorf("role = %q, want owner", alice.Role)
	}
}

func TestJoin(t *testing.T) {
	hs, us := setupHouseholdTest(t)
	alice := mustCreateUser(t, us, "alice", "Alice")
	bob := mustCreateUser(t, us, "bob", "Bob")

	h, err := hs.CreateForUser(alice.ID, "Shire")
	if err != nil {
		t.Fatalf("create household: %v", err)
	}

	joined, err := hs.Join(bob.ID, h.JoinCode)
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if joined.ID != h.ID {
		t.Errorf("joined household = %d, want %d", joined.ID, h.ID)
	}

	members, err := hs.ListMembers(h.ID)
	if err != nil {
		t.Fatalf("list members: %v", err)
	}
	if len(members) != 2 {
		t.Errorf("member count = %d, want 2", len(members))
	}

	if _, err := hs.Join(bob.ID, h.JoinCode); !apperr.IsKind(err, apperr.Conflict) {
		t.Errorf("rejoin err = %v, want conflict", err)
	}
	if _, err := hs.Join(bob.ID, "XXXXXX"); !apperr.IsKind(err, apperr.NotFound) {
		t.Errorf("bad code err = %v, want not found", err)
	}
}

// When an owner leaves by joining another household, the earliest-joined
// remaining member is promoted and everyone else keeps their role.
func TestJoinPromotesSuccessor(t *testing.T) {
	hs, us := setupHouseholdTest(t)
	alice := mustCreateUser(t, us, "alice", "Alice")
	bob := mustCreateUser(t, us, "bob", "Bob")
	carol := mustCreateUser(t, us, "carol", "Carol")
	dave := mustCreateUser(t, us, "dave", "Dave")

	h, err := hs.CreateForUser(alice.ID, "Shire")
	if err != nil {
		t.Fatalf("create household: %v", err)
	}
	if _, err := hs.Join(bob.ID, h.JoinCode); err != nil {
		t.Fatalf("bob join: %v", err)
	}
	if _, err := hs.Join(carol.ID, h.JoinCode); err != nil {
		t.Fatalf("carol join: %v", err)
	}

	other, err := hs.CreateForUser(dave.ID, "")
	if err != nil {
		t.Fatalf("create other household: %v", err)
	}
	if _, err := hs.Join(alice.ID, other.JoinCode); err != nil {
		t.Fatalf("alice leave via join: %v", err)
	}

	bob, _ = us.GetByID(bob.ID)
	carol, _ = us.GetByID(carol.ID)
	alice, _ = us.GetByID(alice.ID)
	if bob.Role != model.RoleOwner {
		t.Errorf("bob role = %q, want owner (earliest member)", bob.Role)
	}
	if carol.Role != model.RoleMember {
		t.Errorf("carol role = %q, want member", carol.Role)
	}
	if alice.Role != model.RoleMember {
		t.Errorf("alice role in new household = %q, want member", alice.Role)
	}
}

func TestRemoveMember(t *testing.T) {
	hs, us := setupHouseholdTest(t)
	alice := mustCreateUser(t, us, "alice", "Alice")
	bob := mustCreateUser(t, us, "bob", "Bob")

	h, err := hs.CreateForUser(alice.ID, "Shire")
	if err != nil {
		t.Fatalf("create household: %v", err)
	}
	if _, err := hs.Join(bob.ID, h.JoinCode); err != nil {
		t.Fatalf("bob join: %v", err)
	}

	if err := hs.RemoveMember(bob.ID, "alice"); !apperr.IsKind(err, apperr.Forbidden) {
		t.Errorf("non-owner remove err = %v, want forbidden", err)
	}
	if err := hs.RemoveMember(alice.ID, "alice"); !apperr.IsKind(err, apperr.Validation) {
		t.Errorf("self remove err = %v, want validation", err)
	}
	if err := hs.RemoveMember(alice.ID, "nobody"); !apperr.IsKind(err, apperr.NotFound) {
		t.Errorf("unknown member err = %v, want not found", err)
	}

	if err := hs.RemoveMember(alice.ID, "bob"); err != nil {
		t.Fatalf("remove member: %v", err)
	}

	// The removed member lands in a fresh household of their own.
	bob, _ = us.GetByID(bob.ID)
	if bob.HouseholdID == nil || *bob.HouseholdID == h.ID {
		t.Errorf("bob household = %v, want a new one", bob.HouseholdID)
	}
	if bob.Role != model.RoleOwner {
		t.Errorf("bob role = %q, want owner of fresh household", bob.Role)
	}

	members, _ := hs.ListMembers(h.ID)
	if len(members) != 1 {
		t.Errorf("member count = %d, want 1", len(members))
	}
}

func TestDissolve(t *testing.T) {
	hs, us := setupHouseholdTest(t)
	alice := mustCreateUser(t, us, "alice", "Alice")
	bob := mustCreateUser(t, us, "bob", "Bob")

	h, err := hs.CreateForUser(alice.ID, "Shire")
	if err != nil {
		t.Fatalf("create household: %v", err)
	}
	if _, err := hs.Join(bob.ID, h.JoinCode); err != nil {
		t.Fatalf("bob join: %v", err)
	}

	if err := hs.Dissolve(bob.ID); !apperr.IsKind(err, apperr.Forbidden) {
		t.Errorf("non-owner dissolve err = %v, want forbidden", err)
	}

	if err := hs.Dissolve(alice.ID); err != nil {
		t.Fatalf("dissolve: %v", err)
	}

	for _, u := range []*model.User{alice, bob} {
		got, _ := us.GetByID(u.ID)
		if got.HouseholdID != nil {
			t.Errorf("%s household = %v, want nil", got.Username, got.HouseholdID)
		}
		if got.Role != model.RoleMember {
			t.Errorf("%s role = %q, want member", got.Username, got.Role)
		}
	}
}

func TestJoinCodesUnique(t *testing.T) {
	hs, us := setupHouseholdTest(t)

	seen := make(map[string]bool)
	for i := 0; i < 20; i++ {
		u := mustCreateUser(t, us, "user"+string(rune('a'+i)), "User")
		h, err := hs.CreateForUser(u.ID, "")
		if err != nil {
			t.Fatalf("create household %d: %v", i, err)
		}
		if seen[h.JoinCode] {
			t.Fatalf("duplicate join code %q", h.JoinCode)
		}
		seen[h.JoinCode] = true
	}
}

func TestInsertHouseholdJoinCodeCollision(t *testing.T) {
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	tx, err := db.Begin()
	if err != nil {
		t.Fatalf("begin tx: %v", err)
	}
	defer tx.Rollback()

	if _, err := insertHouseholdTx(tx, "First", "AAAAAA"); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	// A code racing past the uniqueJoinCode pre-check must surface as
	// Conflict, not a raw driver error.
	if _, err := insertHouseholdTx(tx, "Second", "AAAAAA"); !apperr.IsKind(err, apperr.Conflict) {
		t.Errorf("duplicate join code err = %v, want conflict", err)
	}
}
