package model

import "time"

const (
	ListActive    = "active"
	ListCompleted = "completed"
)

const (
	ListItemPending   = "pending"
	ListItemPurchased = "purchased"
	ListItemSkipped   = "skipped"
)

type ShoppingList struct {
	ID          int64     `json:"id"`
	HouseholdID int64     `json:"household_id"`
	Status      string    `json:"status"`
	TotalCost   float64   `json:"total_cost"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type ShoppingListItem struct {
	ID             int64     `json:"id"`
	ShoppingListID int64     `json:"shopping_list_id"`
	FoodItemID     int64     `json:"food_item_id"`
	LocationID     *int64    `json:"location_id"`
	PackageID      *int64    `json:"package_id"`
	NeededQty      float64   `json:"needed_qty"`
	PurchasedQty   float64   `json:"purchased_qty"`
	TotalPrice     float64   `json:"total_price"`
	Status         string    `json:"status"`
	CreatedAt      time.Time `json:"created_at"`
}

// ShoppingListItemView joins an item with its display names for list pages
// and exports.
type ShoppingListItemView struct {
	ID           int64   `json:"id"`
	FoodItemID   int64   `json:"food_item_id"`
	FoodItemName string  `json:"food_item_name"`
	LocationName *string `json:"location_name"`
	PackageLabel *string `json:"package_label"`
	NeededQty    float64 `json:"needed_qty"`
	PurchasedQty float64 `json:"purchased_qty"`
	TotalPrice   float64 `json:"total_price"`
	Status       string  `json:"status"`
}

type StockLevel struct {
	FoodItemID int64     `json:"food_item_id"`
	TargetQty  float64   `json:"target_qty"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// ReplenishmentItem is a below-target food item with the quantity still
// needed to reach its target.
type ReplenishmentItem struct {
	FoodItemID   int64   `json:"food_item_id"`
	Name         string  `json:"name"`
	TargetQty    float64 `json:"target_qty"`
	CurrentQty   float64 `json:"current_qty"`
	NeededQty    float64 `json:"needed_qty"`
	Abbreviation string  `json:"abbreviation"`
}
