package store

import (
	"database/sql"
	"fmt"

	"github.com/dorholt/larder/internal/apperr"
	"github.com/dorholt/larder/internal/model"
)

type StockLevelStore struct {
	db *sql.DB
}

func NewStockLevelStore(db *sql.DB) *StockLevelStore {
	return &StockLevelStore{db: db}
}

// SetTarget upserts the target stock level for a food item. At most one
// row per item exists by primary key.
func (s *StockLevelStore) SetTarget(foodItemID int64, targetQty float64) (*model.StockLevel, error) {
	if targetQty < 0 {
		return nil, apperr.New(apperr.Validation, "target must not be negative")
	}

	var archived int
	err := s.db.QueryRow(`SELECT archived FROM food_items WHERE id = ?`, foodItemID).Scan(&archived)
	if err == sql.ErrNoRows || (err == nil && archived != 0) {
		return nil, apperr.New(apperr.NotFound, "food item not found")
	}
	if err != nil {
		return nil, fmt.Errorf("check food item: %w", err)
	}

	_, err = s.db.Exec(
		`INSERT INTO stock_levels (food_item_id, target_qty) VALUES (?, ?)
		 ON CONFLICT (food_item_id) DO UPDATE SET target_qty = excluded.target_qty, updated_at = CURRENT_TIMESTAMP`,
		foodItemID, targetQty,
	)
	if err != nil {
		return nil, fmt.Errorf("upsert stock level: %w", err)
	}
	return s.Get(foodItemID)
}

func (s *StockLevelStore) Get(foodItemID int64) (*model.StockLevel, error) {
	row := s.db.QueryRow(
		`SELECT food_item_id, target_qty, updated_at FROM stock_levels WHERE food_item_id = ?`,
		foodItemID,
	)
	var sl model.StockLevel
	err := row.Scan(&sl.FoodItemID, &sl.TargetQty, &sl.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get stock level: %w", err)
	}
	return &sl, nil
}

// ItemsBelowTarget returns the household's food items whose derived stock
// is under their target, with the shortfall. Membership in the set comes
// from the comparison itself, so an at-target item never appears with a
// zero need.
func (s *StockLevelStore) ItemsBelowTarget(householdID int64) ([]model.ReplenishmentItem, error) {
	return s.compareToTarget(householdID, true)
}

// ItemsAtOrAboveTarget returns the household's food items whose derived
// stock meets or exceeds their target.
func (s *StockLevelStore) ItemsAtOrAboveTarget(householdID int64) ([]model.ReplenishmentItem, error) {
	return s.compareToTarget(householdID, false)
}

func (s *StockLevelStore) compareToTarget(householdID int64, below bool) ([]model.ReplenishmentItem, error) {
	cmp := `stock.qty >= sl.target_qty`
	if below {
		cmp = `stock.qty < sl.target_qty`
	}

	rows, err := s.db.Query(
		`SELECT fi.id, fi.name, sl.target_qty, stock.qty, bu.abbreviation
		 FROM stock_levels sl
		 JOIN food_items fi ON sl.food_item_id = fi.id
		 JOIN base_units bu ON fi.base_unit_id = bu.id
		 JOIN (
		     SELECT fi2.id AS item_id,
		            (SELECT `+stockSum+` FROM inventory_transactions t WHERE t.food_item_id = fi2.id) AS qty
		     FROM food_items fi2
		 ) stock ON stock.item_id = fi.id
		 WHERE fi.household_id = ? AND fi.archived = 0 AND `+cmp+`
		 ORDER BY fi.name ASC`,
		householdID,
	)
	if err != nil {
		return nil, fmt.Errorf("compare to target: %w", err)
	}
	defer rows.Close()

	var items []model.ReplenishmentItem
	for rows.Next() {
		var it model.ReplenishmentItem
		if err := rows.Scan(&it.FoodItemID, &it.Name, &it.TargetQty, &it.CurrentQty, &it.Abbreviation); err != nil {
			return nil, fmt.Errorf("scan replenishment item: %w", err)
		}
		if below {
			it.NeededQty = it.TargetQty - it.CurrentQty
		}
		items = append(items, it)
	}
	return items, rows.Err()
}
