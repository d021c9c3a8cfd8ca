package store

import (
	"database/sql"
	"fmt"

	"github.com/dorholt/larder/internal/apperr"
	"github.com/dorholt/larder/internal/model"
	"github.com/dorholt/larder/internal/units"
)

type ShoppingListStore struct {
	db *sql.DB
}

func NewShoppingListStore(db *sql.DB) *ShoppingListStore {
	return &ShoppingListStore{db: db}
}

func scanShoppingList(scanner interface{ Scan(...any) error }) (*model.ShoppingList, error) {
	var l model.ShoppingList
	err := scanner.Scan(&l.ID, &l.HouseholdID, &l.Status, &l.TotalCost, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &l, nil
}

const shoppingListCols = `id, household_id, status, total_cost, created_at, updated_at`

// Create inserts a new active list. The partial unique index on
// (household_id) WHERE status = 'active' turns a concurrent double-create
// into a Conflict instead of two active lists.
func (s *ShoppingListStore) Create(householdID int64) (*model.ShoppingList, error) {
	result, err := s.db.Exec(`INSERT INTO shopping_lists (household_id) VALUES (?)`, householdID)
	if isUniqueViolation(err) {
		return nil, apperr.New(apperr.Conflict, "household already has an active shopping list")
	}
	if err != nil {
		return nil, fmt.Errorf("insert shopping list: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(id)
}

func (s *ShoppingListStore) GetByID(id int64) (*model.ShoppingList, error) {
	row := s.db.QueryRow(`SELECT `+shoppingListCols+` FROM shopping_lists WHERE id = ?`, id)
	l, err := scanShoppingList(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get shopping list: %w", err)
	}
	return l, nil
}

func (s *ShoppingListStore) GetActive(householdID int64) (*model.ShoppingList, error) {
	row := s.db.QueryRow(
		`SELECT `+shoppingListCols+` FROM shopping_lists WHERE household_id = ? AND status = 'active'`,
		householdID,
	)
	l, err := scanShoppingList(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get active list: %w", err)
	}
	return l, nil
}

// ListCompleted returns a page of the household's completed lists, newest
// first, with the total count for paging.
func (s *ShoppingListStore) ListCompleted(householdID int64, page, limit int) ([]model.ShoppingList, int64, error) {
	if limit <= 0 {
		limit = 10
	}
	if page < 1 {
		page = 1
	}

	var total int64
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM shopping_lists WHERE household_id = ? AND status = 'completed'`,
		householdID,
	).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count completed lists: %w", err)
	}

	rows, err := s.db.Query(
		`SELECT `+shoppingListCols+` FROM shopping_lists
		 WHERE household_id = ? AND status = 'completed'
		 ORDER BY updated_at DESC, id DESC
		 LIMIT ? OFFSET ?`,
		householdID, limit, (page-1)*limit,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("list completed lists: %w", err)
	}
	defer rows.Close()

	var lists []model.ShoppingList
	for rows.Next() {
		l, err := scanShoppingList(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan shopping list: %w", err)
		}
		lists = append(lists, *l)
	}
	return lists, total, rows.Err()
}

// NewListItem describes one line to add to a list.
type NewListItem struct {
	FoodItemID int64
	LocationID *int64
	PackageID  *int64
	NeededQty  float64
}

// AddItems appends lines to an active list and recomputes the list's
// denormalized total cost in the same transaction. Line totals come from
// the latest logged price of the line's package, when one exists.
func (s *ShoppingListStore) AddItems(listID int64, items []NewListItem) error {
	if len(items) == 0 {
		return apperr.New(apperr.Validation, "no items to add")
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := requireActiveListTx(tx, listID); err != nil {
		return err
	}

	for _, it := range items {
		if it.NeededQty <= 0 {
			return apperr.New(apperr.Validation, "needed quantity must be positive")
		}

		lineTotal := 0.0
		if it.PackageID != nil {
			var price sql.NullFloat64
			err := tx.QueryRow(
				`SELECT total_price FROM price_logs WHERE package_id = ? ORDER BY created_at DESC, id DESC LIMIT 1`,
				*it.PackageID,
			).Scan(&price)
			if err != nil && err != sql.ErrNoRows {
				return fmt.Errorf("latest price: %w", err)
			}
			if price.Valid {
				lineTotal = price.Float64 * it.NeededQty
			}
		}

		if _, err := tx.Exec(
			`INSERT INTO shopping_list_items (shopping_list_id, food_item_id, location_id, package_id, needed_qty, total_price)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			listID, it.FoodItemID, it.LocationID, it.PackageID, it.NeededQty, lineTotal,
		); err != nil {
			return fmt.Errorf("insert list item: %w", err)
		}
	}

	if err := recomputeTotalTx(tx, listID); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// ListItemPatch is a sparse update for one list line.
type ListItemPatch struct {
	Status       *string
	PurchasedQty *float64
	NeededQty    *float64
}

// UpdateItem patches one line and recomputes the list total in the same
// transaction, so the denormalized cost is never observably stale.
func (s *ShoppingListStore) UpdateItem(listID, itemID int64, patch ListItemPatch) (*model.ShoppingListItem, error) {
	if patch.Status != nil {
		switch *patch.Status {
		case model.ListItemPending, model.ListItemPurchased, model.ListItemSkipped:
		default:
			return nil, apperr.Newf(apperr.Validation, "unknown item status %q", *patch.Status)
		}
	}
	if patch.PurchasedQty != nil && *patch.PurchasedQty < 0 {
		return nil, apperr.New(apperr.Validation, "purchased quantity must not be negative")
	}
	if patch.NeededQty != nil && *patch.NeededQty <= 0 {
		return nil, apperr.New(apperr.Validation, "needed quantity must be positive")
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := requireActiveListTx(tx, listID); err != nil {
		return nil, err
	}

	item, err := getListItemTx(tx, listID, itemID)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, apperr.New(apperr.NotFound, "list item not found")
	}

	if patch.Status != nil {
		item.Status = *patch.Status
	}
	if patch.PurchasedQty != nil {
		item.PurchasedQty = *patch.PurchasedQty
	}
	if patch.NeededQty != nil {
		item.NeededQty = *patch.NeededQty
	}

	// Line total follows the purchased quantity once shopping starts,
	// otherwise the planned quantity.
	item.TotalPrice = 0
	if item.PackageID != nil {
		var price sql.NullFloat64
		err := tx.QueryRow(
			`SELECT total_price FROM price_logs WHERE package_id = ? ORDER BY created_at DESC, id DESC LIMIT 1`,
			*item.PackageID,
		).Scan(&price)
		if err != nil && err != sql.ErrNoRows {
			return nil, fmt.Errorf("latest price: %w", err)
		}
		if price.Valid {
			qty := item.NeededQty
			if item.PurchasedQty > 0 {
				qty = item.PurchasedQty
			}
			item.TotalPrice = price.Float64 * qty
		}
	}

	if _, err := tx.Exec(
		`UPDATE shopping_list_items SET status = ?, purchased_qty = ?, needed_qty = ?, total_price = ? WHERE id = ?`,
		item.Status, item.PurchasedQty, item.NeededQty, item.TotalPrice, item.ID,
	); err != nil {
		return nil, fmt.Errorf("update list item: %w", err)
	}

	if err := recomputeTotalTx(tx, listID); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return item, nil
}

// RemoveItem deletes one line and recomputes the list total atomically.
func (s *ShoppingListStore) RemoveItem(listID, itemID int64) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := requireActiveListTx(tx, listID); err != nil {
		return err
	}

	result, err := tx.Exec(
		`DELETE FROM shopping_list_items WHERE id = ? AND shopping_list_id = ?`,
		itemID, listID,
	)
	if err != nil {
		return fmt.Errorf("delete list item: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return apperr.New(apperr.NotFound, "list item not found")
	}

	if err := recomputeTotalTx(tx, listID); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// CompleteActiveAndRotate is the single atomic list transition: the
// household's active list (if any) flips to completed, every line with a
// positive purchased quantity posts a purchase to the ledger in base units,
// and a fresh active list is created. All of it shares one transaction; a
// failure anywhere rolls the whole thing back.
func (s *ShoppingListStore) CompleteActiveAndRotate(householdID, userID int64) (*model.ShoppingList, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var archived int
	err = tx.QueryRow(`SELECT archived FROM users WHERE id = ?`, userID).Scan(&archived)
	if err == sql.ErrNoRows || (err == nil && archived != 0) {
		return nil, apperr.New(apperr.Validation, "user not found")
	}
	if err != nil {
		return nil, fmt.Errorf("check user: %w", err)
	}

	row := tx.QueryRow(
		`SELECT `+shoppingListCols+` FROM shopping_lists WHERE household_id = ? AND status = 'active'`,
		householdID,
	)
	active, err := scanShoppingList(row)
	if err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("find active list: %w", err)
	}

	if active != nil {
		if _, err := tx.Exec(
			`UPDATE shopping_lists SET status = 'completed', updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
			active.ID,
		); err != nil {
			return nil, fmt.Errorf("complete list: %w", err)
		}

		if err := postPurchasesTx(tx, active.ID, userID); err != nil {
			return nil, err
		}
	}

	result, err := tx.Exec(`INSERT INTO shopping_lists (household_id) VALUES (?)`, householdID)
	if err != nil {
		return nil, fmt.Errorf("insert successor list: %w", err)
	}
	newID, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return s.GetByID(newID)
}

// postPurchasesTx converts each purchased line of the just-completed list
// into one purchase ledger row, purchased packages times the package's
// base-unit conversion factor.
func postPurchasesTx(tx *sql.Tx, listID, userID int64) error {
	rows, err := tx.Query(
		`SELECT sli.food_item_id, sli.location_id, sli.purchased_qty, COALESCE(p.base_unit_amount, 0)
		 FROM shopping_list_items sli
		 LEFT JOIN packages p ON sli.package_id = p.id
		 WHERE sli.shopping_list_id = ? AND sli.purchased_qty > 0`,
		listID,
	)
	if err != nil {
		return fmt.Errorf("load purchased items: %w", err)
	}

	type purchase struct {
		foodItemID int64
		locationID sql.NullInt64
		qty        float64
	}
	var purchases []purchase
	for rows.Next() {
		var foodItemID int64
		var locationID sql.NullInt64
		var purchasedQty, pkgAmount float64
		if err := rows.Scan(&foodItemID, &locationID, &purchasedQty, &pkgAmount); err != nil {
			rows.Close()
			return fmt.Errorf("scan purchased item: %w", err)
		}
		qty := units.PackagesToBase(purchasedQty, pkgAmount)
		purchases = append(purchases, purchase{foodItemID, locationID, qty})
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate purchased items: %w", err)
	}

	for _, p := range purchases {
		var locationID any
		if p.locationID.Valid {
			locationID = p.locationID.Int64
		}
		if _, err := tx.Exec(
			`INSERT INTO inventory_transactions (food_item_id, location_id, user_id, tx_type, quantity)
			 VALUES (?, ?, ?, 'purchase', ?)`,
			p.foodItemID, locationID, userID, p.qty,
		); err != nil {
			return fmt.Errorf("post purchase: %w", err)
		}
	}
	return nil
}

func getListItemTx(tx *sql.Tx, listID, itemID int64) (*model.ShoppingListItem, error) {
	row := tx.QueryRow(
		`SELECT id, shopping_list_id, food_item_id, location_id, package_id, needed_qty, purchased_qty, total_price, status, created_at
		 FROM shopping_list_items WHERE id = ? AND shopping_list_id = ?`,
		itemID, listID,
	)
	var it model.ShoppingListItem
	var locationID, packageID sql.NullInt64
	err := row.Scan(&it.ID, &it.ShoppingListID, &it.FoodItemID, &locationID, &packageID,
		&it.NeededQty, &it.PurchasedQty, &it.TotalPrice, &it.Status, &it.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get list item: %w", err)
	}
	if locationID.Valid {
		it.LocationID = &locationID.Int64
	}
	if packageID.Valid {
		it.PackageID = &packageID.Int64
	}
	return &it, nil
}

func requireActiveListTx(tx *sql.Tx, listID int64) error {
	var status string
	err := tx.QueryRow(`SELECT status FROM shopping_lists WHERE id = ?`, listID).Scan(&status)
	if err == sql.ErrNoRows {
		return apperr.New(apperr.NotFound, "shopping list not found")
	}
	if err != nil {
		return fmt.Errorf("check list status: %w", err)
	}
	if status != model.ListActive {
		return apperr.New(apperr.Validation, "shopping list is not active")
	}
	return nil
}

func recomputeTotalTx(tx *sql.Tx, listID int64) error {
	_, err := tx.Exec(
		`UPDATE shopping_lists
		 SET total_cost = (SELECT COALESCE(SUM(total_price), 0) FROM shopping_list_items WHERE shopping_list_id = ?),
		     updated_at = CURRENT_TIMESTAMP
		 WHERE id = ?`,
		listID, listID,
	)
	if err != nil {
		return fmt.Errorf("recompute total cost: %w", err)
	}
	return nil
}

// ListItems returns the display projection of a list's lines, used for
// list pages and exports.
func (s *ShoppingListStore) ListItems(listID int64) ([]model.ShoppingListItemView, error) {
	rows, err := s.db.Query(
		`SELECT sli.id, sli.food_item_id, fi.name, l.name, p.label,
		        sli.needed_qty, sli.purchased_qty, sli.total_price, sli.status
		 FROM shopping_list_items sli
		 JOIN food_items fi ON sli.food_item_id = fi.id
		 LEFT JOIN locations l ON sli.location_id = l.id
		 LEFT JOIN packages p ON sli.package_id = p.id
		 WHERE sli.shopping_list_id = ?
		 ORDER BY sli.id ASC`,
		listID,
	)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	defer rows.Close()

	var items []model.ShoppingListItemView
	for rows.Next() {
		var v model.ShoppingListItemView
		var locName, pkgLabel sql.NullString
		if err := rows.Scan(&v.ID, &v.FoodItemID, &v.FoodItemName, &locName, &pkgLabel,
			&v.NeededQty, &v.PurchasedQty, &v.TotalPrice, &v.Status); err != nil {
			return nil, fmt.Errorf("scan list item: %w", err)
		}
		if locName.Valid {
			v.LocationName = &locName.String
		}
		if pkgLabel.Valid {
			v.PackageLabel = &pkgLabel.String
		}
		items = append(items, v)
	}
	return items, rows.Err()
}
