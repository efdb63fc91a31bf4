package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Account is the read-modify-write unit of the ledger. The balance is only
// mutated by the ledger engine; accounts are frozen rather than deleted.
type Account struct {
	AccountNumber string          `json:"account_number"`
	OwnerID       int64           `json:"owner_id"`
	OwnerUsername string          `json:"owner_username"`
	Balance       decimal.Decimal `json:"balance"`
	Active        bool            `json:"active"`
	CreatedAt     time.Time       `json:"created_at"`
}
