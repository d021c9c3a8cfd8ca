package store

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/dorholt/larder/internal/apperr"
	"github.com/dorholt/larder/internal/model"
)

type FoodItemStore struct {
	db *sql.DB
}

func NewFoodItemStore(db *sql.DB) *FoodItemStore {
	return &FoodItemStore{db: db}
}

func scanFoodItem(scanner interface{ Scan(...any) error }) (*model.FoodItem, error) {
	var fi model.FoodItem
	var preferred sql.NullInt64
	var archived int
	err := scanner.Scan(
		&fi.ID, &fi.HouseholdID, &fi.Name, &fi.Type, &fi.Category,
		&fi.BaseUnitID, &preferred, &archived, &fi.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if preferred.Valid {
		fi.PreferredPackageID = &preferred.Int64
	}
	fi.Archived = archived != 0
	return &fi, nil
}

const foodItemCols = `id, household_id, name, type, category, base_unit_id, preferred_package_id, archived, created_at`

func (s *FoodItemStore) Create(householdID int64, name, itemType, category string, baseUnitID int64) (*model.FoodItem, error) {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM base_units WHERE id = ?`, baseUnitID).Scan(&n); err != nil {
		return nil, fmt.Errorf("check base unit: %w", err)
	}
	if n == 0 {
		return nil, apperr.New(apperr.Validation, "base unit not found")
	}

	result, err := s.db.Exec(
		`INSERT INTO food_items (household_id, name, type, category, base_unit_id) VALUES (?, ?, ?, ?, ?)`,
		householdID, name, itemType, category, baseUnitID,
	)
	if err != nil {
		return nil, fmt.Errorf("insert food item: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(id)
}

func (s *FoodItemStore) GetByID(id int64) (*model.FoodItem, error) {
	row := s.db.QueryRow(`SELECT `+foodItemCols+` FROM food_items WHERE id = ?`, id)
	fi, err := scanFoodItem(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get food item: %w", err)
	}
	return fi, nil
}

func (s *FoodItemStore) ListByHousehold(householdID int64) ([]model.FoodItem, error) {
	rows, err := s.db.Query(
		`SELECT `+foodItemCols+` FROM food_items WHERE household_id = ? AND archived = 0 ORDER BY name ASC`,
		householdID,
	)
	if err != nil {
		return nil, fmt.Errorf("list food items: %w", err)
	}
	defer rows.Close()

	var items []model.FoodItem
	for rows.Next() {
		fi, err := scanFoodItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan food item: %w", err)
		}
		items = append(items, *fi)
	}
	return items, rows.Err()
}

// Patch applies a sparse update built from the enumerated column set in
// model.FoodItemPatch; nil fields are untouched. Archiving goes through
// here too, since food items are never hard-deleted.
func (s *FoodItemStore) Patch(id int64, patch model.FoodItemPatch) (*model.FoodItem, error) {
	sets := []string{}
	args := []any{}
	if patch.Name != nil {
		sets = append(sets, "name = ?")
		args = append(args, *patch.Name)
	}
	if patch.Type != nil {
		sets = append(sets, "type = ?")
		args = append(args, *patch.Type)
	}
	if patch.Category != nil {
		sets = append(sets, "category = ?")
		args = append(args, *patch.Category)
	}
	if patch.PreferredPackageID != nil {
		sets = append(sets, "preferred_package_id = ?")
		args = append(args, *patch.PreferredPackageID)
	}
	if patch.Archived != nil {
		sets = append(sets, "archived = ?")
		args = append(args, boolToInt(*patch.Archived))
	}
	if len(sets) == 0 {
		return nil, apperr.New(apperr.Validation, "nothing to update")
	}
	args = append(args, id)

	result, err := s.db.Exec(`UPDATE food_items SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("patch food item: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return nil, apperr.New(apperr.NotFound, "food item not found")
	}
	return s.GetByID(id)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// --- Package methods ---

func scanPackage(scanner interface{ Scan(...any) error }) (*model.Package, error) {
	var p model.Package
	err := scanner.Scan(&p.ID, &p.FoodItemID, &p.Label, &p.BaseUnitAmount, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

const packageCols = `id, food_item_id, label, base_unit_amount, created_at`

// AddPackage inserts a new package row and makes it the item's preferred
// package in the same transaction. Old packages are never mutated so price
// logs keep their historical linkage.
func (s *FoodItemStore) AddPackage(foodItemID int64, label string, baseUnitAmount float64) (*model.Package, error) {
	if baseUnitAmount <= 0 {
		return nil, apperr.New(apperr.Validation, "base unit amount must be positive")
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var archived int
	err = tx.QueryRow(`SELECT archived FROM food_items WHERE id = ?`, foodItemID).Scan(&archived)
	if err == sql.ErrNoRows || (err == nil && archived != 0) {
		return nil, apperr.New(apperr.NotFound, "food item not found")
	}
	if err != nil {
		return nil, fmt.Errorf("check food item: %w", err)
	}

	result, err := tx.Exec(
		`INSERT INTO packages (food_item_id, label, base_unit_amount) VALUES (?, ?, ?)`,
		foodItemID, label, baseUnitAmount,
	)
	if err != nil {
		return nil, fmt.Errorf("insert package: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}

	if _, err := tx.Exec(`UPDATE food_items SET preferred_package_id = ? WHERE id = ?`, id, foodItemID); err != nil {
		return nil, fmt.Errorf("set preferred package: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	row := s.db.QueryRow(`SELECT `+packageCols+` FROM packages WHERE id = ?`, id)
	return scanPackage(row)
}

func (s *FoodItemStore) GetPackage(id int64) (*model.Package, error) {
	row := s.db.QueryRow(`SELECT `+packageCols+` FROM packages WHERE id = ?`, id)
	p, err := scanPackage(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get package: %w", err)
	}
	return p, nil
}

func (s *FoodItemStore) ListPackages(foodItemID int64) ([]model.Package, error) {
	rows, err := s.db.Query(
		`SELECT `+packageCols+` FROM packages WHERE food_item_id = ? ORDER BY created_at DESC, id DESC`,
		foodItemID,
	)
	if err != nil {
		return nil, fmt.Errorf("list packages: %w", err)
	}
	defer rows.Close()

	var packages []model.Package
	for rows.Next() {
		p, err := scanPackage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan package: %w", err)
		}
		packages = append(packages, *p)
	}
	return packages, rows.Err()
}

// --- Price log methods ---

func scanPriceLog(scanner interface{ Scan(...any) error }) (*model.PriceLog, error) {
	var pl model.PriceLog
	err := scanner.Scan(&pl.ID, &pl.PackageID, &pl.TotalPrice, &pl.Store, &pl.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &pl, nil
}

const priceLogCols = `id, package_id, total_price, store, created_at`

// AddPriceLog appends a price observation for a package.
func (s *FoodItemStore) AddPriceLog(packageID int64, totalPrice float64, storeName string) (*model.PriceLog, error) {
	if totalPrice < 0 {
		return nil, apperr.New(apperr.Validation, "price must not be negative")
	}

	pkg, err := s.GetPackage(packageID)
	if err != nil {
		return nil, err
	}
	if pkg == nil {
		return nil, apperr.New(apperr.NotFound, "package not found")
	}

	result, err := s.db.Exec(
		`INSERT INTO price_logs (package_id, total_price, store) VALUES (?, ?, ?)`,
		packageID, totalPrice, storeName,
	)
	if err != nil {
		return nil, fmt.Errorf("insert price log: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	row := s.db.QueryRow(`SELECT `+priceLogCols+` FROM price_logs WHERE id = ?`, id)
	return scanPriceLog(row)
}

// LatestPrice returns the most recent price log for a package, or nil if
// none has been recorded.
func (s *FoodItemStore) LatestPrice(packageID int64) (*model.PriceLog, error) {
	row := s.db.QueryRow(
		`SELECT `+priceLogCols+` FROM price_logs WHERE package_id = ? ORDER BY created_at DESC, id DESC LIMIT 1`,
		packageID,
	)
	pl, err := scanPriceLog(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest price: %w", err)
	}
	return pl, nil
}
