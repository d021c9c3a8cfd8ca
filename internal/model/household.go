package model

import "time"

type Household struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	JoinCode  string    `json:"join_code"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HouseholdSummary is the dashboard projection of a household.
type HouseholdSummary struct {
	ID            int64  `json:"id"`
	Name          string `json:"name"`
	JoinCode      string `json:"join_code"`
	MemberCount   int64  `json:"member_count"`
	FoodItemCount int64  `json:"food_item_count"`
}
