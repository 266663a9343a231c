package auth

import "time"

// User represents an authenticated user account.
type User struct {
	ID           int64
	Email        string
	Name         string
	PasswordHash string
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Membership links a user to a company they may sign into.
type Membership struct {
	CompanyID   int64  `json:"company_id"`
	CompanyName string `json:"company_name"`
}
