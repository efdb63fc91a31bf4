package events

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionCompleted is published after a money movement commits.
type TransactionCompleted struct {
	Reference   string          `json:"reference"`
	Type        string          `json:"type"`
	FromAccount string          `json:"from_account,omitempty"`
	ToAccount   string          `json:"to_account,omitempty"`
	Amount      decimal.Decimal `json:"amount"`
	OccurredAt  time.Time       `json:"occurred_at"`
}
