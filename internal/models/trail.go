package models

import "time"

// Fraud event types raised by the sentinel.
const (
	FraudLargeDeposit    = "LARGE_DEPOSIT"
	FraudLargeWithdrawal = "LARGE_WITHDRAWAL"
	FraudLargeTransfer   = "LARGE_TRANSFER"
	FraudFailedLogin     = "FAILED_LOGIN"
)

// AuditEntry is one immutable line of the audit trail: who did what, to
// which account, under which transaction reference.
type AuditEntry struct {
	Actor         string    `json:"actor"`
	Action        string    `json:"action"`
	AccountNumber string    `json:"account_number,omitempty"`
	Reference     string    `json:"reference,omitempty"`
	Details       string    `json:"details"`
	At            time.Time `json:"at"`
}

// FraudEvent is an observational flag; it never blocks or reverses the
// movement that raised it.
type FraudEvent struct {
	EventType     string    `json:"event_type"`
	Username      string    `json:"username"`
	AccountNumber string    `json:"account_number,omitempty"`
	Details       string    `json:"details"`
	Flagged       bool      `json:"flagged"`
	At            time.Time `json:"at"`
}
