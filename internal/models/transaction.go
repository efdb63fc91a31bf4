package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type TransactionType string

const (
	TransactionDeposit    TransactionType = "DEPOSIT"
	TransactionWithdrawal TransactionType = "WITHDRAWAL"
	TransactionTransfer   TransactionType = "TRANSFER"
)

// TransactionRecord is immutable once written. The reference is globally
// unique and doubles as the idempotent handle returned to callers.
// FromAccount is empty for deposits, ToAccount is empty for withdrawals;
// transfers always carry both.
type TransactionRecord struct {
	Reference   string          `json:"reference"`
	Type        TransactionType `json:"type"`
	FromAccount string          `json:"from_account,omitempty"`
	ToAccount   string          `json:"to_account,omitempty"`
	Amount      decimal.Decimal `json:"amount"`
	OccurredAt  time.Time       `json:"occurred_at"`
	Note        string          `json:"note,omitempty"`
}

// TransactionSummary is the cashflow view over a set of in-scope accounts.
// Movements into scope count as credits, movements out as debits; transfers
// where both sides are in scope count only toward InternalTransferCount.
// MonthlyNetCashflow is keyed by UTC month, "2006-01".
type TransactionSummary struct {
	ScopeAccountNumber    string                     `json:"scope_account_number,omitempty"`
	StartDate             string                     `json:"start_date,omitempty"`
	EndDate               string                     `json:"end_date,omitempty"`
	TransactionCount      int                        `json:"transaction_count"`
	InternalTransferCount int                        `json:"internal_transfer_count"`
	TotalCredits          decimal.Decimal            `json:"total_credits"`
	TotalDebits           decimal.Decimal            `json:"total_debits"`
	NetCashflow           decimal.Decimal            `json:"net_cashflow"`
	LargestCredit         decimal.Decimal            `json:"largest_credit"`
	LargestDebit          decimal.Decimal            `json:"largest_debit"`
	MonthlyNetCashflow    map[string]decimal.Decimal `json:"monthly_net_cashflow"`
}
