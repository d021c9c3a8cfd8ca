package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dorholt/larder/internal/apperr"
	"github.com/dorholt/larder/internal/model"
)

// LedgerStore owns the append-only inventory transaction log. Rows are
// never updated or deleted apart from the two sanctioned maintenance
// paths: user reassignment on account deletion and expiration correction.
type LedgerStore struct {
	db *sql.DB
}

func NewLedgerStore(db *sql.DB) *LedgerStore {
	return &LedgerStore{db: db}
}

func scanTransaction(scanner interface{ Scan(...any) error }) (*model.InventoryTransaction, error) {
	var t model.InventoryTransaction
	var locationID sql.NullInt64
	var transferID sql.NullString
	var expiresAt sql.NullTime
	err := scanner.Scan(
		&t.ID, &t.FoodItemID, &locationID, &t.UserID, &t.TxType,
		&t.Quantity, &transferID, &expiresAt, &t.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if locationID.Valid {
		t.LocationID = &locationID.Int64
	}
	if transferID.Valid {
		t.TransferID = &transferID.String
	}
	if expiresAt.Valid {
		t.ExpiresAt = &expiresAt.Time
	}
	return &t, nil
}

const transactionCols = `id, food_item_id, location_id, user_id, tx_type, quantity, transfer_id, expires_at, created_at`

// stockSum is the one derivation of current stock: additive types count
// positive, subtractive negative. It is never cached outside a transaction.
const stockSum = `COALESCE(SUM(CASE WHEN tx_type IN ('add', 'purchase', 'transfer_in') THEN quantity ELSE -quantity END), 0)`

// RecordParams describes one ledger entry to append.
type RecordParams struct {
	FoodItemID int64
	LocationID int64
	UserID     int64
	TxType     string
	Quantity   float64
	ExpiresAt  *time.Time
}

// Record validates and appends a single ledger entry. Subtractive entries
// are checked against derived stock inside the same transaction, so a
// rejected consume leaves the ledger untouched.
func (s *LedgerStore) Record(p RecordParams) (*model.InventoryTransaction, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := validateEntryTx(tx, p); err != nil {
		return nil, err
	}

	if model.Subtractive(p.TxType) {
		stock, err := currentStockTx(tx, p.FoodItemID)
		if err != nil {
			return nil, err
		}
		if p.Quantity > stock {
			return nil, apperr.Newf(apperr.InsufficientStock,
				"insufficient stock: have %g, tried to remove %g", stock, p.Quantity)
		}
	}

	id, err := insertTransactionTx(tx, p, nil)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return s.GetByID(id)
}

// Transfer moves qty of a food item between two locations as one atomic
// pair of ledger rows sharing a transfer id, so net stock is unaffected
// and the legs can always be correlated.
func (s *LedgerStore) Transfer(foodItemID, fromLocationID, toLocationID, userID int64, qty float64) (string, error) {
	if fromLocationID == toLocationID {
		return "", apperr.New(apperr.Validation, "source and destination locations must differ")
	}

	transferID := uuid.NewString()

	tx, err := s.db.Begin()
	if err != nil {
		return "", fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	out := RecordParams{FoodItemID: foodItemID, LocationID: fromLocationID, UserID: userID, TxType: model.TxTransferOut, Quantity: qty}
	in := RecordParams{FoodItemID: foodItemID, LocationID: toLocationID, UserID: userID, TxType: model.TxTransferIn, Quantity: qty}

	if err := validateEntryTx(tx, out); err != nil {
		return "", err
	}
	if err := validateEntryTx(tx, in); err != nil {
		return "", err
	}

	stock, err := currentStockTx(tx, foodItemID)
	if err != nil {
		return "", err
	}
	if qty > stock {
		return "", apperr.Newf(apperr.InsufficientStock,
			"insufficient stock: have %g, tried to transfer %g", stock, qty)
	}

	if _, err := insertTransactionTx(tx, out, &transferID); err != nil {
		return "", err
	}
	if _, err := insertTransactionTx(tx, in, &transferID); err != nil {
		return "", err
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}
	return transferID, nil
}

// validateEntryTx checks the shape of a ledger entry and that every
// referenced row exists and is not archived.
func validateEntryTx(tx *sql.Tx, p RecordParams) error {
	if p.Quantity <= 0 {
		return apperr.New(apperr.Validation, "quantity must be positive")
	}
	if !model.ValidTxType(p.TxType) {
		return apperr.Newf(apperr.Validation, "unknown transaction type %q", p.TxType)
	}

	var archived int
	var itemHousehold int64
	err := tx.QueryRow(`SELECT archived, household_id FROM food_items WHERE id = ?`, p.FoodItemID).
		Scan(&archived, &itemHousehold)
	if err == sql.ErrNoRows || (err == nil && archived != 0) {
		return apperr.New(apperr.Validation, "food item not found")
	}
	if err != nil {
		return fmt.Errorf("check food item: %w", err)
	}

	// A missing location and a cross-household one answer the same way so
	// callers cannot probe other households' location ids.
	var locHousehold int64
	err = tx.QueryRow(`SELECT household_id FROM locations WHERE id = ?`, p.LocationID).Scan(&locHousehold)
	if err == sql.ErrNoRows {
		return apperr.New(apperr.Forbidden, "location not in household")
	}
	if err != nil {
		return fmt.Errorf("check location: %w", err)
	}
	if locHousehold != itemHousehold {
		return apperr.New(apperr.Forbidden, "location not in household")
	}

	err = tx.QueryRow(`SELECT archived FROM users WHERE id = ?`, p.UserID).Scan(&archived)
	if err == sql.ErrNoRows || (err == nil && archived != 0) {
		return apperr.New(apperr.Validation, "user not found")
	}
	if err != nil {
		return fmt.Errorf("check user: %w", err)
	}

	return nil
}

func insertTransactionTx(tx *sql.Tx, p RecordParams, transferID *string) (int64, error) {
	var locationID any
	if p.LocationID != 0 {
		locationID = p.LocationID
	}
	result, err := tx.Exec(
		`INSERT INTO inventory_transactions (food_item_id, location_id, user_id, tx_type, quantity, transfer_id, expires_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.FoodItemID, locationID, p.UserID, p.TxType, p.Quantity, transferID, p.ExpiresAt,
	)
	if err != nil {
		return 0, fmt.Errorf("insert transaction: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	return id, nil
}

func (s *LedgerStore) GetByID(id int64) (*model.InventoryTransaction, error) {
	row := s.db.QueryRow(`SELECT `+transactionCols+` FROM inventory_transactions WHERE id = ?`, id)
	t, err := scanTransaction(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get transaction: %w", err)
	}
	return t, nil
}

// CurrentStock derives the current stock of a food item from the full
// ledger. It is never stored.
func (s *LedgerStore) CurrentStock(foodItemID int64) (float64, error) {
	var stock float64
	err := s.db.QueryRow(
		`SELECT `+stockSum+` FROM inventory_transactions WHERE food_item_id = ?`,
		foodItemID,
	).Scan(&stock)
	if err != nil {
		return 0, fmt.Errorf("current stock: %w", err)
	}
	return stock, nil
}

func currentStockTx(tx *sql.Tx, foodItemID int64) (float64, error) {
	var stock float64
	err := tx.QueryRow(
		`SELECT `+stockSum+` FROM inventory_transactions WHERE food_item_id = ?`,
		foodItemID,
	).Scan(&stock)
	if err != nil {
		return 0, fmt.Errorf("current stock: %w", err)
	}
	return stock, nil
}

// StockTotals returns the derived stock of every unarchived food item in a
// household, with unit and preferred-package info for display.
func (s *LedgerStore) StockTotals(householdID int64) ([]model.StockTotal, error) {
	rows, err := s.db.Query(
		`SELECT fi.id, fi.name, fi.category,
		        (SELECT `+stockSum+` FROM inventory_transactions t WHERE t.food_item_id = fi.id),
		        bu.abbreviation, p.id, p.label, p.base_unit_amount
		 FROM food_items fi
		 JOIN base_units bu ON fi.base_unit_id = bu.id
		 LEFT JOIN packages p ON fi.preferred_package_id = p.id
		 WHERE fi.household_id = ? AND fi.archived = 0
		 ORDER BY fi.name ASC`,
		householdID,
	)
	if err != nil {
		return nil, fmt.Errorf("stock totals: %w", err)
	}
	defer rows.Close()

	var totals []model.StockTotal
	for rows.Next() {
		var st model.StockTotal
		var pkgID sql.NullInt64
		var pkgLabel sql.NullString
		var pkgAmount sql.NullFloat64
		if err := rows.Scan(&st.FoodItemID, &st.Name, &st.Category, &st.Quantity,
			&st.Abbreviation, &pkgID, &pkgLabel, &pkgAmount); err != nil {
			return nil, fmt.Errorf("scan stock total: %w", err)
		}
		if pkgID.Valid {
			st.PackageID = &pkgID.Int64
		}
		if pkgLabel.Valid {
			st.PackageLabel = &pkgLabel.String
		}
		if pkgAmount.Valid {
			st.PackageAmount = &pkgAmount.Float64
		}
		totals = append(totals, st)
	}
	return totals, rows.Err()
}

// ListByHousehold returns a page of the household's transaction feed,
// newest first, along with the total row count.
func (s *LedgerStore) ListByHousehold(householdID int64, page, limit int) ([]model.TransactionView, int64, error) {
	if limit <= 0 {
		limit = 20
	}
	if page < 1 {
		page = 1
	}

	var total int64
	err := s.db.QueryRow(
		`SELECT COUNT(*)
		 FROM inventory_transactions t
		 JOIN food_items fi ON t.food_item_id = fi.id
		 WHERE fi.household_id = ?`,
		householdID,
	).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count transactions: %w", err)
	}

	rows, err := s.db.Query(
		`SELECT t.id, fi.name, u.display_name, COALESCE(l.name, ''), t.tx_type, t.quantity, bu.abbreviation, t.created_at
		 FROM inventory_transactions t
		 JOIN food_items fi ON t.food_item_id = fi.id
		 JOIN users u ON t.user_id = u.id
		 JOIN base_units bu ON fi.base_unit_id = bu.id
		 LEFT JOIN locations l ON t.location_id = l.id
		 WHERE fi.household_id = ?
		 ORDER BY t.created_at DESC, t.id DESC
		 LIMIT ? OFFSET ?`,
		householdID, limit, (page-1)*limit,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var views []model.TransactionView
	for rows.Next() {
		var v model.TransactionView
		if err := rows.Scan(&v.ID, &v.FoodItemName, &v.UserName, &v.LocationName,
			&v.TxType, &v.Quantity, &v.Abbreviation, &v.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan transaction view: %w", err)
		}
		views = append(views, v)
	}
	return views, total, rows.Err()
}

// Expiring returns, per food item, the soonest future expiration falling
// within the given window.
func (s *LedgerStore) Expiring(householdID int64, within time.Duration) ([]model.ExpiringItem, error) {
	now := time.Now().UTC()
	cutoff := now.Add(within)

	rows, err := s.db.Query(
		`SELECT fi.id, fi.name, MIN(t.expires_at)
		 FROM inventory_transactions t
		 JOIN food_items fi ON t.food_item_id = fi.id
		 WHERE fi.household_id = ? AND fi.archived = 0
		   AND t.tx_type IN ('add', 'purchase', 'transfer_in')
		   AND t.expires_at IS NOT NULL AND t.expires_at > ? AND t.expires_at <= ?
		 GROUP BY fi.id, fi.name
		 ORDER BY MIN(t.expires_at) ASC`,
		householdID, now, cutoff,
	)
	if err != nil {
		return nil, fmt.Errorf("expiring items: %w", err)
	}
	defer rows.Close()

	var items []model.ExpiringItem
	for rows.Next() {
		var it model.ExpiringItem
		if err := rows.Scan(&it.FoodItemID, &it.Name, &it.ExpiresAt); err != nil {
			return nil, fmt.Errorf("scan expiring item: %w", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// CorrectLatestExpiration rewrites the item's earliest future expiration to
// newDate. The update is bounded to additive rows matching that exact old
// date so unrelated lots are never touched. This is one of the two
// sanctioned ledger-update paths.
func (s *LedgerStore) CorrectLatestExpiration(foodItemID int64, newDate time.Time) (int64, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var oldDate sql.NullTime
	err = tx.QueryRow(
		`SELECT MIN(expires_at) FROM inventory_transactions
		 WHERE food_item_id = ? AND tx_type IN ('add', 'purchase', 'transfer_in')
		   AND expires_at IS NOT NULL AND expires_at > ?`,
		foodItemID, time.Now().UTC(),
	).Scan(&oldDate)
	if err != nil {
		return 0, fmt.Errorf("find earliest expiration: %w", err)
	}
	if !oldDate.Valid {
		return 0, apperr.New(apperr.NotFound, "no future expiration to correct")
	}

	result, err := tx.Exec(
		`UPDATE inventory_transactions SET expires_at = ?
		 WHERE food_item_id = ? AND tx_type IN ('add', 'purchase', 'transfer_in') AND expires_at = ?`,
		newDate, foodItemID, oldDate.Time,
	)
	if err != nil {
		return 0, fmt.Errorf("correct expiration: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return n, nil
}
