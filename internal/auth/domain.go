package auth

import "time"

// User represents an authenticated user account. Every user belongs to
// exactly one company; that membership is what the tenant guard enforces.
type User struct {
	ID           int64
	CompanyID    int64
	Email        string
	Name         string
	PasswordHash string
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
