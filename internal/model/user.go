package model

import "time"

// Roles a user can hold within a household. RoleSystem marks the
// placeholder users that inherit ledger rows from deleted accounts.
const (
	RoleOwner  = "owner"
	RoleMember = "member"
	RoleSystem = "system"
)

type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	DisplayName  string    `json:"display_name"`
	Role         string    `json:"role"`
	HouseholdID  *int64    `json:"household_id"`
	PasswordHash string    `json:"-"`
	Archived     bool      `json:"archived"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
