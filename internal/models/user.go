package models

import "time"

const (
	RoleUser    = "USER"
	RoleAdmin   = "ADMIN"
	RoleAuditor = "AUDITOR"
)

type User struct {
	ID           int64
	Username     string
	Email        string
	PasswordHash string
	Role         string
	CreatedAt    time.Time
}

// Actor is the authenticated identity every ledger operation runs as.
type Actor struct {
	UserID   int64
	Username string
	Role     string
}
