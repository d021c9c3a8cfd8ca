package model

import "time"

// Transaction types. Quantity is always a positive magnitude; the type
// carries the direction.
const (
	TxAdd         = "add"
	TxPurchase    = "purchase"
	TxConsume     = "consume"
	TxTransferOut = "transfer_out"
	TxTransferIn  = "transfer_in"
)

// Additive reports whether txType increases derived stock.
func Additive(txType string) bool {
	switch txType {
	case TxAdd, TxPurchase, TxTransferIn:
		return true
	}
	return false
}

// Subtractive reports whether txType decreases derived stock.
func Subtractive(txType string) bool {
	switch txType {
	case TxConsume, TxTransferOut:
		return true
	}
	return false
}

// ValidTxType reports whether txType is one of the five ledger types.
func ValidTxType(txType string) bool {
	return Additive(txType) || Subtractive(txType)
}

type InventoryTransaction struct {
	ID         int64      `json:"id"`
	FoodItemID int64      `json:"food_item_id"`
	LocationID *int64     `json:"location_id"`
	UserID     int64      `json:"user_id"`
	TxType     string     `json:"tx_type"`
	Quantity   float64    `json:"quantity"`
	TransferID *string    `json:"transfer_id"`
	ExpiresAt  *time.Time `json:"expires_at"`
	CreatedAt  time.Time  `json:"created_at"`
}

// TransactionView is a ledger row joined with its display names for the
// household transaction feed.
type TransactionView struct {
	ID           int64     `json:"id"`
	FoodItemName string    `json:"food_item_name"`
	UserName     string    `json:"user_name"`
	LocationName string    `json:"location_name"`
	TxType       string    `json:"tx_type"`
	Quantity     float64   `json:"quantity"`
	Abbreviation string    `json:"abbreviation"`
	CreatedAt    time.Time `json:"created_at"`
}

// StockTotal is the derived stock for one food item.
type StockTotal struct {
	FoodItemID    int64    `json:"food_item_id"`
	Name          string   `json:"name"`
	Category      string   `json:"category"`
	Quantity      float64  `json:"quantity"`
	Abbreviation  string   `json:"abbreviation"`
	PackageID     *int64   `json:"package_id"`
	PackageLabel  *string  `json:"package_label"`
	PackageAmount *float64 `json:"package_amount"`
}

// ExpiringItem is the soonest future expiration for one food item.
type ExpiringItem struct {
	FoodItemID int64     `json:"food_item_id"`
	Name       string    `json:"name"`
	ExpiresAt  time.Time `json:"expires_at"`
}
