package model

import "time"

type BaseUnit struct {
	ID           int64  `json:"id"`
	MeasureType  string `json:"measure_type"`
	Abbreviation string `json:"abbreviation"`
}

type FoodItem struct {
	ID                 int64     `json:"id"`
	HouseholdID        int64     `json:"household_id"`
	Name               string    `json:"name"`
	Type               string    `json:"type"`
	Category           string    `json:"category"`
	BaseUnitID         int64     `json:"base_unit_id"`
	PreferredPackageID *int64    `json:"preferred_package_id"`
	Archived           bool      `json:"archived"`
	CreatedAt          time.Time `json:"created_at"`
}

type Package struct {
	ID             int64     `json:"id"`
	FoodItemID     int64     `json:"food_item_id"`
	Label          string    `json:"label"`
	BaseUnitAmount float64   `json:"base_unit_amount"`
	CreatedAt      time.Time `json:"created_at"`
}

type PriceLog struct {
	ID         int64     `json:"id"`
	PackageID  int64     `json:"package_id"`
	TotalPrice float64   `json:"total_price"`
	Store      string    `json:"store"`
	CreatedAt  time.Time `json:"created_at"`
}

type Location struct {
	ID          int64     `json:"id"`
	HouseholdID int64     `json:"household_id"`
	Name        string    `json:"name"`
	CreatedAt   time.Time `json:"created_at"`
}

// FoodItemPatch is a sparse update: nil fields are left untouched.
// The store generates the UPDATE from this enumerated set of columns only.
type FoodItemPatch struct {
	Name               *string `json:"name"`
	Type               *string `json:"type"`
	Category           *string `json:"category"`
	PreferredPackageID *int64  `json:"preferred_package_id"`
	Archived           *bool   `json:"archived"`
}
