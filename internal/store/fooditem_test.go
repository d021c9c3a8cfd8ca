package store

import (
	"database/sql"
	"testing"

	"github.com/dorholt/larder/internal/apperr"
	"github.com/dorholt/larder/internal/database"
	"github.com/dorholt/larder/internal/model"
)

func setupFoodItemTest(t *testing.T) (*FoodItemStore, *sql.DB, int64) {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	u, err := NewUserStore(db).Create("alice", "Alice", "hash", nil, model.RoleMember)
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	h, err := NewHouseholdStore(db).CreateForUser(u.ID, "")
	if err != nil {
		t.Fatalf("create household: %v", err)
	}
	return NewFoodItemStore(db), db, h.ID
}

func TestFoodItemCreate(t *testing.T) {
	fis, _, hid := setupFoodItemTest(t)

	item, err := fis.Create(hid, "Flour", "ingredient", "baking", 1)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if item.Name != "Flour" || item.BaseUnitID != 1 {
		t.Errorf("item = %+v", item)
	}
	if item.Archived {
		t.Error("new item is archived")
	}

	if _, err := fis.Create(hid, "Mystery", "ingredient", "", 9999); !apperr.IsKind(err, apperr.Validation) {
		t.Errorf("bad base unit err = %v, want validation", err)
	}
}

func TestFoodItemPatchAndArchive(t *testing.T) {
	fis, _, hid := setupFoodItemTest(t)

	item, err := fis.Create(hid, "Flour", "ingredient", "baking", 1)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	name := "Bread Flour"
	archived := true
	patched, err := fis.Patch(item.ID, model.FoodItemPatch{Name: &name, Archived: &archived})
	if err != nil {
		t.Fatalf("patch: %v", err)
	}
	if patched.Name != "Bread Flour" || !patched.Archived {
		t.Errorf("patched = %+v", patched)
	}

	// Archived items drop out of the household listing but stay loadable,
	// since ledger history still refers to them.
	items, err := fis.ListByHousehold(hid)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(items) != 0 {
		t.Errorf("listed %d items, want 0", len(items))
	}
	got, err := fis.GetByID(item.ID)
	if err != nil {
		t.Fatalf("get archived: %v", err)
	}
	if got == nil {
		t.Error("archived item not loadable by id")
	}

	if _, err := fis.Patch(9999, model.FoodItemPatch{Name: &name}); !apperr.IsKind(err, apperr.NotFound) {
		t.Errorf("patch missing err = %v, want not found", err)
	}
}

func TestAddPackageSetsPreferred(t *testing.T) {
	fis, _, hid := setupFoodItemTest(t)

	item, err := fis.Create(hid, "Flour", "ingredient", "baking", 1)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	pkg, err := fis.AddPackage(item.ID, "500g bag", 500)
	if err != nil {
		t.Fatalf("add package: %v", err)
	}

	got, _ := fis.GetByID(item.ID)
	if got.PreferredPackageID == nil || *got.PreferredPackageID != pkg.ID {
		t.Errorf("preferred package = %v, want %d", got.PreferredPackageID, pkg.ID)
	}

	// The newest package takes over as preferred.
	pkg2, err := fis.AddPackage(item.ID, "1kg bag", 1000)
	if err != nil {
		t.Fatalf("add second package: %v", err)
	}
	got, _ = fis.GetByID(item.ID)
	if got.PreferredPackageID == nil || *got.PreferredPackageID != pkg2.ID {
		t.Errorf("preferred package = %v, want %d", got.PreferredPackageID, pkg2.ID)
	}

	if _, err := fis.AddPackage(item.ID, "empty", 0); !apperr.IsKind(err, apperr.Validation) {
		t.Errorf("zero amount err = %v, want validation", err)
	}

	pkgs, err := fis.ListPackages(item.ID)
	if err != nil {
		t.Fatalf("list packages: %v", err)
	}
	if len(pkgs) != 2 {
		t.Errorf("package count = %d, want 2", len(pkgs))
	}
}

func TestLatestPrice(t *testing.T) {
	fis, _, hid := setupFoodItemTest(t)

	item, err := fis.Create(hid, "Flour", "ingredient", "baking", 1)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	pkg, err := fis.AddPackage(item.ID, "500g bag", 500)
	if err != nil {
		t.Fatalf("add package: %v", err)
	}

	if price, err := fis.LatestPrice(pkg.ID); err != nil || price != nil {
		t.Errorf("latest with no logs = %v, %v, want nil, nil", price, err)
	}

	if _, err := fis.AddPriceLog(pkg.ID, 2.50, "Corner Market"); err != nil {
		t.Fatalf("add price: %v", err)
	}
	if _, err := fis.AddPriceLog(pkg.ID, 2.80, "Big Box"); err != nil {
		t.Fatalf("add price: %v", err)
	}

	price, err := fis.LatestPrice(pkg.ID)
	if err != nil {
		t.Fatalf("latest price: %v", err)
	}
	if price == nil || price.TotalPrice != 2.80 {
		t.Errorf("latest price = %+v, want 2.80", price)
	}
}
