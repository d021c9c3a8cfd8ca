package store

import (
	"database/sql"
	"testing"

	"github.com/dorholt/larder/internal/apperr"
	"github.com/dorholt/larder/internal/database"
	"github.com/dorholt/larder/internal/model"
)

type listFixture struct {
	householdID int64
	userID      int64
	locationID  int64
	foodItemID  int64
	packageID   int64
}

func setupListTest(t *testing.T) (*ShoppingListStore, *sql.DB, listFixture) {
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
	loc, err := NewLocationStore(db).Create(h.ID, "Pantry")
	if err != nil {
		t.Fatalf("create location: %v", err)
	}

	fis := NewFoodItemStore(db)
	item, err := fis.Create(h.ID, "Flour", "ingredient", "baking", 1)
	if err != nil {
		t.Fatalf("create food item: %v", err)
	}
	pkg, err := fis.AddPackage(item.ID, "500g bag", 500)
	if err != nil {
		t.Fatalf("add package: %v", err)
	}
	if _, err := fis.AddPriceLog(pkg.ID, 2.50, "Corner Market"); err != nil {
		t.Fatalf("add price log: %v", err)
	}

	return NewShoppingListStore(db), db, listFixture{
		householdID: h.ID,
		userID:      u.ID,
		locationID:  loc.ID,
		foodItemID:  item.ID,
		packageID:   pkg.ID,
	}
}

func TestOneActiveListPerHousehold(t *testing.T) {
	ss, _, fx := setupListTest(t)

	if _, err := ss.Create(fx.householdID); err != nil {
		t.Fatalf("create list: %v", err)
	}
	_, err := ss.Create(fx.householdID)
	if !apperr.IsKind(err, apperr.Conflict) {
		t.Errorf("second active list err = %v, want conflict", err)
	}
}

func TestAddItemsComputesTotals(t *testing.T) {
	ss, _, fx := setupListTest(t)

	list, err := ss.Create(fx.householdID)
	if err != nil {
		t.Fatalf("create list: %v", err)
	}

	err = ss.AddItems(list.ID, []NewListItem{
		{FoodItemID: fx.foodItemID, LocationID: &fx.locationID, PackageID: &fx.packageID, NeededQty: 2},
	})
	if err != nil {
		t.Fatalf("add items: %v", err)
	}

	got, err := ss.GetByID(list.ID)
	if err != nil {
		t.Fatalf("get list: %v", err)
	}
	if got.TotalCost != 5.0 {
		t.Errorf("total cost = %g, want 5.0 (2 x 2.50)", got.TotalCost)
	}

	if err := ss.AddItems(list.ID, []NewListItem{{FoodItemID: fx.foodItemID, NeededQty: 0}}); !apperr.IsKind(err, apperr.Validation) {
		t.Errorf("zero qty err = %v, want validation", err)
	}
}

func TestUpdateItemFollowsPurchasedQty(t *testing.T) {
	ss, db, fx := setupListTest(t)

	list, err := ss.Create(fx.householdID)
	if err != nil {
		t.Fatalf("create list: %v", err)
	}
	if err := ss.AddItems(list.ID, []NewListItem{
		{FoodItemID: fx.foodItemID, PackageID: &fx.packageID, NeededQty: 2},
	}); err != nil {
		t.Fatalf("add items: %v", err)
	}

	var itemID int64
	if err := db.QueryRow(`SELECT id FROM shopping_list_items WHERE shopping_list_id = ?`, list.ID).Scan(&itemID); err != nil {
		t.Fatalf("find item: %v", err)
	}

	status := model.ListItemPurchased
	qty := 3.0
	item, err := ss.UpdateItem(list.ID, itemID, ListItemPatch{Status: &status, PurchasedQty: &qty})
	if err != nil {
		t.Fatalf("update item: %v", err)
	}
	if item.TotalPrice != 7.5 {
		t.Errorf("line total = %g, want 7.5 (3 x 2.50)", item.TotalPrice)
	}

	got, _ := ss.GetByID(list.ID)
	if got.TotalCost != 7.5 {
		t.Errorf("list total = %g, want 7.5", got.TotalCost)
	}

	bad := "misplaced"
	if _, err := ss.UpdateItem(list.ID, itemID, ListItemPatch{Status: &bad}); !apperr.IsKind(err, apperr.Validation) {
		t.Errorf("bad status err = %v, want validation", err)
	}
}

func TestRemoveItemRecomputesTotal(t *testing.T) {
	ss, db, fx := setupListTest(t)

	list, err := ss.Create(fx.householdID)
	if err != nil {
		t.Fatalf("create list: %v", err)
	}
	if err := ss.AddItems(list.ID, []NewListItem{
		{FoodItemID: fx.foodItemID, PackageID: &fx.packageID, NeededQty: 2},
	}); err != nil {
		t.Fatalf("add items: %v", err)
	}

	var itemID int64
	if err := db.QueryRow(`SELECT id FROM shopping_list_items WHERE shopping_list_id = ?`, list.ID).Scan(&itemID); err != nil {
		t.Fatalf("find item: %v", err)
	}

	if err := ss.RemoveItem(list.ID, itemID); err != nil {
		t.Fatalf("remove item: %v", err)
	}
	got, _ := ss.GetByID(list.ID)
	if got.TotalCost != 0 {
		t.Errorf("list total = %g, want 0 after removal", got.TotalCost)
	}

	if err := ss.RemoveItem(list.ID, itemID); !apperr.IsKind(err, apperr.NotFound) {
		t.Errorf("remove missing item err = %v, want not found", err)
	}
}

// Completing a list posts purchased lines to the ledger in base units and
// opens the successor, all atomically.
func TestCompleteActiveAndRotate(t *testing.T) {
	ss, db, fx := setupListTest(t)
	ls := NewLedgerStore(db)

	list, err := ss.Create(fx.householdID)
	if err != nil {
		t.Fatalf("create list: %v", err)
	}
	if err := ss.AddItems(list.ID, []NewListItem{
		{FoodItemID: fx.foodItemID, LocationID: &fx.locationID, PackageID: &fx.packageID, NeededQty: 2},
	}); err != nil {
		t.Fatalf("add items: %v", err)
	}

	var itemID int64
	if err := db.QueryRow(`SELECT id FROM shopping_list_items WHERE shopping_list_id = ?`, list.ID).Scan(&itemID); err != nil {
		t.Fatalf("find item: %v", err)
	}

	// Bought three bags instead of the planned two.
	status := model.ListItemPurchased
	qty := 3.0
	if _, err := ss.UpdateItem(list.ID, itemID, ListItemPatch{Status: &status, PurchasedQty: &qty}); err != nil {
		t.Fatalf("update item: %v", err)
	}

	next, err := ss.CompleteActiveAndRotate(fx.householdID, fx.userID)
	if err != nil {
		t.Fatalf("complete and rotate: %v", err)
	}
	if next.ID == list.ID {
		t.Error("successor list is the old list")
	}
	if next.Status != model.ListActive {
		t.Errorf("successor status = %q, want active", next.Status)
	}

	old, _ := ss.GetByID(list.ID)
	if old.Status != model.ListCompleted {
		t.Errorf("old list status = %q, want completed", old.Status)
	}

	active, _ := ss.GetActive(fx.householdID)
	if active == nil || active.ID != next.ID {
		t.Errorf("active list = %v, want %d", active, next.ID)
	}

	// 3 bags of 500g land as one purchase of 1500 base units.
	stock, err := ls.CurrentStock(fx.foodItemID)
	if err != nil {
		t.Fatalf("current stock: %v", err)
	}
	if stock != 1500 {
		t.Errorf("stock = %g, want 1500", stock)
	}

	var txType string
	var txQty float64
	err = db.QueryRow(
		`SELECT tx_type, quantity FROM inventory_transactions WHERE food_item_id = ?`,
		fx.foodItemID,
	).Scan(&txType, &txQty)
	if err != nil {
		t.Fatalf("load posted row: %v", err)
	}
	if txType != model.TxPurchase || txQty != 1500 {
		t.Errorf("posted row = %s %g, want purchase 1500", txType, txQty)
	}

	// The completed list is frozen.
	if err := ss.AddItems(list.ID, []NewListItem{{FoodItemID: fx.foodItemID, NeededQty: 1}}); !apperr.IsKind(err, apperr.Validation) {
		t.Errorf("add to completed list err = %v, want validation", err)
	}
}

func TestCompletePendingAndSkippedLinesDoNotPost(t *testing.T) {
	ss, db, fx := setupListTest(t)

	list, err := ss.Create(fx.householdID)
	if err != nil {
		t.Fatalf("create list: %v", err)
	}
	if err := ss.AddItems(list.ID, []NewListItem{
		{FoodItemID: fx.foodItemID, NeededQty: 2},
	}); err != nil {
		t.Fatalf("add items: %v", err)
	}

	if _, err := ss.CompleteActiveAndRotate(fx.householdID, fx.userID); err != nil {
		t.Fatalf("complete: %v", err)
	}

	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM inventory_transactions`).Scan(&n); err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 0 {
		t.Errorf("ledger rows = %d, want 0 (nothing was purchased)", n)
	}
}

func TestCompleteWithNoActiveList(t *testing.T) {
	ss, _, fx := setupListTest(t)

	next, err := ss.CompleteActiveAndRotate(fx.householdID, fx.userID)
	if err != nil {
		t.Fatalf("complete with no active: %v", err)
	}
	if next.Status != model.ListActive {
		t.Errorf("status = %q, want active", next.Status)
	}
}

func TestListCompletedPaging(t *testing.T) {
	ss, _, fx := setupListTest(t)

	for i := 0; i < 3; i++ {
		if _, err := ss.CompleteActiveAndRotate(fx.householdID, fx.userID); err != nil {
			t.Fatalf("rotate %d: %v", i, err)
		}
	}

	// Three rotations leave two completed lists and one active.
	lists, total, err := ss.ListCompleted(fx.householdID, 1, 10)
	if err != nil {
		t.Fatalf("list completed: %v", err)
	}
	if total != 2 {
		t.Errorf("total = %d, want 2", total)
	}
	for _, l := range lists {
		if l.Status != model.ListCompleted {
			t.Errorf("list %d status = %q, want completed", l.ID, l.Status)
		}
	}
}

// A failure while posting purchases must roll back the whole rotation:
// no completed list, no successor, no ledger rows.
func TestCompleteRollsBackOnPostFailure(t *testing.T) {
	ss, db, fx := setupListTest(t)

	list, err := ss.Create(fx.householdID)
	if err != nil {
		t.Fatalf("create list: %v", err)
	}
	if err := ss.AddItems(list.ID, []NewListItem{
		{FoodItemID: fx.foodItemID, LocationID: &fx.locationID, PackageID: &fx.packageID, NeededQty: 2},
	}); err != nil {
		t.Fatalf("add items: %v", err)
	}

	var itemID int64
	if err := db.QueryRow(`SELECT id FROM shopping_list_items WHERE shopping_list_id = ?`, list.ID).Scan(&itemID); err != nil {
		t.Fatalf("find item: %v", err)
	}
	status := model.ListItemPurchased
	qty := 2.0
	if _, err := ss.UpdateItem(list.ID, itemID, ListItemPatch{Status: &status, PurchasedQty: &qty}); err != nil {
		t.Fatalf("update item: %v", err)
	}

	// Pin the pool to one connection so the pragma toggles below stick for
	// the rotation's transaction.
	db.SetMaxOpenConns(1)

	// Pull the food item row out from under the purchased line, then turn
	// enforcement on so posting the purchase fails after the list has been
	// marked completed.
	if _, err := db.Exec(`PRAGMA foreign_keys = OFF`); err != nil {
		t.Fatalf("disable foreign keys: %v", err)
	}
	if _, err := db.Exec(`DELETE FROM food_items WHERE id = ?`, fx.foodItemID); err != nil {
		t.Fatalf("delete food item: %v", err)
	}
	if _, err := db.Exec(`PRAGMA foreign_keys = ON`); err != nil {
		t.Fatalf("enable foreign keys: %v", err)
	}

	if _, err := ss.CompleteActiveAndRotate(fx.householdID, fx.userID); err == nil {
		t.Fatal("expected rotation to fail")
	}

	got, err := ss.GetByID(list.ID)
	if err != nil {
		t.Fatalf("get list: %v", err)
	}
	if got.Status != model.ListActive {
		t.Errorf("list status = %q, want active after rollback", got.Status)
	}

	var lists int
	if err := db.QueryRow(`SELECT COUNT(*) FROM shopping_lists WHERE household_id = ?`, fx.householdID).Scan(&lists); err != nil {
		t.Fatalf("count lists: %v", err)
	}
	if lists != 1 {
		t.Errorf("list count = %d, want 1 (no successor on failure)", lists)
	}

	var ledger int
	if err := db.QueryRow(`SELECT COUNT(*) FROM inventory_transactions`).Scan(&ledger); err != nil {
		t.Fatalf("count ledger rows: %v", err)
	}
	if ledger != 0 {
		t.Errorf("ledger rows = %d, want 0 (no posting on failure)", ledger)
	}
}
