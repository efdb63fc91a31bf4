package interfaces

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/meridianbank/core/internal/models"
)

// AccountStore holds account state keyed by account number.
type AccountStore interface {
	// CreateAccount returns bankerr.ErrDuplicate if the account number is taken.
	CreateAccount(ctx context.Context, account models.Account) error
	GetAccount(ctx context.Context, accountNumber string) (models.Account, error)
	ListAccountsByOwner(ctx context.Context, ownerID int64) ([]models.Account, error)
	SetAccountStatus(ctx context.Context, accountNumber string, active bool) (models.Account, error)
}

// TransactionStore executes balance mutations. Each Apply method is a single
// atomic unit: the balance check is re-validated against freshly read state,
// the balance update and the transaction record are committed together, and
// nothing is applied on failure.
type TransactionStore interface {
	ApplyDeposit(ctx context.Context, accountNumber string, amount decimal.Decimal, record models.TransactionRecord) (models.Account, error)
	ApplyWithdrawal(ctx context.Context, accountNumber string, amount decimal.Decimal, record models.TransactionRecord) (models.Account, error)
	// ApplyTransfer debits from, credits to, and persists record atomically.
	// When idem is non-nil it is inserted in the same atomic unit; a
	// uniqueness violation on (actor, key) aborts the whole unit with
	// bankerr.ErrDuplicate, leaving balances untouched.
	ApplyTransfer(ctx context.Context, from, to string, amount decimal.Decimal, record models.TransactionRecord, idem *models.IdempotencyRecord) error
	ListTransactionsByAccount(ctx context.Context, accountNumber string) ([]models.TransactionRecord, error)
	// ListTransactionsByAccounts returns every record touching any of the
	// given accounts, each record once, ordered by occurrence.
	ListTransactionsByAccounts(ctx context.Context, accountNumbers []string) ([]models.TransactionRecord, error)
}

// IdempotencyStore maps (actor, key) to the transfer each key produced. The
// record itself is written by ApplyTransfer inside the transfer's atomic unit.
type IdempotencyStore interface {
	GetIdempotencyRecord(ctx context.Context, actorUsername, key string) (models.IdempotencyRecord, error)
}

// TrailStore appends and lists the immutable audit and fraud trails.
type TrailStore interface {
	AppendAuditEntry(ctx context.Context, entry models.AuditEntry) error
	ListAuditEntries(ctx context.Context, limit, offset int) ([]models.AuditEntry, error)
	AppendFraudEvent(ctx context.Context, event models.FraudEvent) error
	ListFraudEvents(ctx context.Context, limit, offset int) ([]models.FraudEvent, error)
}

type UserStore interface {
	// CreateUser assigns the user ID; bankerr.ErrDuplicate on username/email reuse.
	CreateUser(ctx context.Context, user models.User) (models.User, error)
	GetUserByUsername(ctx context.Context, username string) (models.User, error)
}

// Store is the full persistence contract of the core.
type Store interface {
	AccountStore
	TransactionStore
	IdempotencyStore
	TrailStore
	UserStore
}
