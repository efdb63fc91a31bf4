// Package ledger implements the money-movement engine: it validates and
// executes deposits, withdrawals, and transfers against the account store,
// producing immutable transaction records. Balance mutations are delegated
// to the store as single atomic units; audit, fraud, event, and webhook
// emission happen after commit and are best-effort.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/meridianbank/core/internal/audit"
	"github.com/meridianbank/core/internal/bankerr"
	"github.com/meridianbank/core/internal/fraud"
	"github.com/meridianbank/core/internal/interfaces"
	"github.com/meridianbank/core/internal/models"
	"github.com/meridianbank/core/internal/models/events"
)

const (
	maxNoteLen = 200

	// Random account-number generation retries until the number is free,
	// bounded so a saturated namespace fails instead of looping forever.
	maxAccountNumberAttempts = 64

	topicTransactionCompleted = "transaction_completed"
)

// TransferRequest carries the semantically relevant fields of a transfer.
type TransferRequest struct {
	FromAccount string
	ToAccount   string
	Amount      decimal.Decimal
	Note        string
}

type Engine struct {
	store     interfaces.Store
	audit     *audit.Recorder
	fraud     *fraud.Sentinel
	notifier  interfaces.Notifier
	publisher interfaces.EventPublisher
	log       *zap.Logger
}

// NewEngine wires the engine. notifier and publisher may be nil when the
// corresponding outbound channel is not configured.
func NewEngine(store interfaces.Store, auditor *audit.Recorder, sentinel *fraud.Sentinel, notifier interfaces.Notifier, publisher interfaces.EventPublisher, log *zap.Logger) *Engine {
	return &Engine{
		store:     store,
		audit:     auditor,
		fraud:     sentinel,
		notifier:  notifier,
		publisher: publisher,
		log:       log,
	}
}

// CreateAccount opens a zero-balance active account for the actor.
func (e *Engine) CreateAccount(ctx context.Context, actor models.Actor) (models.Account, error) {
	account := models.Account{
		OwnerID:       actor.UserID,
		OwnerUsername: actor.Username,
		Balance:       decimal.Zero,
		Active:        true,
		CreatedAt:     time.Now().UTC(),
	}
	for attempt := 0; attempt < maxAccountNumberAttempts; attempt++ {
		account.AccountNumber = newAccountNumber()
		err := e.store.CreateAccount(ctx, account)
		if errors.Is(err, bankerr.ErrDuplicate) {
			continue
		}
		if err != nil {
			return models.Account{}, fmt.Errorf("%w: create account: %v", bankerr.ErrInternal, err)
		}
		e.audit.Append(ctx, actor.Username, "ACCOUNT_CREATE", account.AccountNumber, "", "Account created")
		return account, nil
	}
	return models.Account{}, fmt.Errorf("%w: account number space exhausted after %d attempts", bankerr.ErrInternal, maxAccountNumberAttempts)
}

// ListAccounts returns the actor's accounts.
func (e *Engine) ListAccounts(ctx context.Context, actor models.Actor) ([]models.Account, error) {
	accounts, err := e.store.ListAccountsByOwner(ctx, actor.UserID)
	if err != nil {
		return nil, fmt.Errorf("%w: list accounts: %v", bankerr.ErrInternal, err)
	}
	return accounts, nil
}

// Deposit credits the actor's account and returns the updated snapshot.
func (e *Engine) Deposit(ctx context.Context, actor models.Actor, accountNumber string, amount decimal.Decimal, note string) (models.Account, error) {
	if err := validateAmount(amount); err != nil {
		return models.Account{}, err
	}
	if err := validateNote(note); err != nil {
		return models.Account{}, err
	}
	account, err := e.ownedActiveAccount(ctx, actor, accountNumber)
	if err != nil {
		return models.Account{}, err
	}

	record := newRecord(models.TransactionDeposit, "", account.AccountNumber, amount, note)
	updated, err := e.store.ApplyDeposit(ctx, account.AccountNumber, amount, record)
	if err != nil {
		return models.Account{}, classifyStoreErr(err, "apply deposit")
	}

	e.audit.Append(ctx, actor.Username, "DEPOSIT", accountNumber, record.Reference, "Deposit "+amount.StringFixed(2))
	e.fraud.Evaluate(ctx, actor.Username, accountNumber, amount, models.FraudLargeDeposit)
	e.publishCompleted(record)
	return updated, nil
}

// Withdraw debits the actor's account and returns the updated snapshot.
func (e *Engine) Withdraw(ctx context.Context, actor models.Actor, accountNumber string, amount decimal.Decimal, note string) (models.Account, error) {
	if err := validateAmount(amount); err != nil {
		return models.Account{}, err
	}
	if err := validateNote(note); err != nil {
		return models.Account{}, err
	}
	account, err := e.ownedActiveAccount(ctx, actor, accountNumber)
	if err != nil {
		return models.Account{}, err
	}
	if account.Balance.LessThan(amount) {
		return models.Account{}, bankerr.ErrInsufficientFunds
	}

	record := newRecord(models.TransactionWithdrawal, account.AccountNumber, "", amount, note)
	updated, err := e.store.ApplyWithdrawal(ctx, account.AccountNumber, amount, record)
	if err != nil {
		return models.Account{}, classifyStoreErr(err, "apply withdrawal")
	}

	e.audit.Append(ctx, actor.Username, "WITHDRAW", accountNumber, record.Reference, "Withdraw "+amount.StringFixed(2))
	e.fraud.Evaluate(ctx, actor.Username, accountNumber, amount, models.FraudLargeWithdrawal)
	e.publishCompleted(record)
	return updated, nil
}

// Transfer moves funds between two accounts as one atomic unit and returns
// the reference of the transaction record it produced. The actor must own
// the source account; the destination only has to exist and be active.
func (e *Engine) Transfer(ctx context.Context, actor models.Actor, req TransferRequest) (string, error) {
	return e.transfer(ctx, actor, req, nil)
}

func (e *Engine) transfer(ctx context.Context, actor models.Actor, req TransferRequest, idem *models.IdempotencyRecord) (string, error) {
	if req.FromAccount == req.ToAccount {
		return "", fmt.Errorf("%w: cannot transfer to the same account", bankerr.ErrInvalidInput)
	}
	if err := validateAmount(req.Amount); err != nil {
		return "", err
	}
	if err := validateNote(req.Note); err != nil {
		return "", err
	}

	from, err := e.ownedActiveAccount(ctx, actor, req.FromAccount)
	if err != nil {
		return "", err
	}
	to, err := e.store.GetAccount(ctx, req.ToAccount)
	if err != nil {
		return "", classifyStoreErr(err, "get destination account")
	}
	if !to.Active {
		return "", fmt.Errorf("%w: destination account", bankerr.ErrInactiveAccount)
	}
	if from.Balance.LessThan(req.Amount) {
		return "", bankerr.ErrInsufficientFunds
	}

	record := newRecord(models.TransactionTransfer, from.AccountNumber, to.AccountNumber, req.Amount, req.Note)
	if idem != nil {
		idem.TransferReference = record.Reference
	}
	if err := e.store.ApplyTransfer(ctx, from.AccountNumber, to.AccountNumber, req.Amount, record, idem); err != nil {
		return "", classifyStoreErr(err, "apply transfer")
	}

	e.audit.Append(ctx, actor.Username, "TRANSFER", from.AccountNumber, record.Reference,
		"Transfer to "+to.AccountNumber+" amount "+req.Amount.StringFixed(2))
	if e.fraud.Evaluate(ctx, actor.Username, from.AccountNumber, req.Amount, models.FraudLargeTransfer) {
		e.notify(models.FraudLargeTransfer, map[string]any{
			"reference":    record.Reference,
			"from_account": from.AccountNumber,
			"to_account":   to.AccountNumber,
			"amount":       req.Amount.StringFixed(2),
		})
	}
	e.publishCompleted(record)
	return record.Reference, nil
}

// SetAccountStatus freezes or reactivates an account. Role gating happens at
// the transport layer; the engine records the change and notifies on freeze.
func (e *Engine) SetAccountStatus(ctx context.Context, actor models.Actor, accountNumber string, active bool, reason string) (models.Account, error) {
	account, err := e.store.SetAccountStatus(ctx, accountNumber, active)
	if err != nil {
		return models.Account{}, classifyStoreErr(err, "set account status")
	}

	action := "ACCOUNT_FREEZE"
	details := "Account status updated to inactive"
	if active {
		action = "ACCOUNT_ACTIVATE"
		details = "Account status updated to active"
	}
	if reason != "" {
		details += ": " + reason
	}
	e.audit.Append(ctx, actor.Username, action, accountNumber, "", details)
	if !active {
		e.notify("ACCOUNT_FROZEN", map[string]any{
			"account_number": accountNumber,
			"actor":          actor.Username,
			"reason":         reason,
		})
	}
	return account, nil
}

// ListTransactions returns the transactions touching one of the actor's accounts.
func (e *Engine) ListTransactions(ctx context.Context, actor models.Actor, accountNumber string) ([]models.TransactionRecord, error) {
	account, err := e.store.GetAccount(ctx, accountNumber)
	if err != nil {
		return nil, classifyStoreErr(err, "get account")
	}
	if account.OwnerID != actor.UserID {
		return nil, fmt.Errorf("%w: not your account", bankerr.ErrForbidden)
	}
	records, err := e.store.ListTransactionsByAccount(ctx, accountNumber)
	if err != nil {
		return nil, fmt.Errorf("%w: list transactions: %v", bankerr.ErrInternal, err)
	}
	return records, nil
}

func (e *Engine) ownedActiveAccount(ctx context.Context, actor models.Actor, accountNumber string) (models.Account, error) {
	account, err := e.store.GetAccount(ctx, accountNumber)
	if err != nil {
		return models.Account{}, classifyStoreErr(err, "get account")
	}
	if account.OwnerID != actor.UserID {
		return models.Account{}, fmt.Errorf("%w: not your account", bankerr.ErrForbidden)
	}
	if !account.Active {
		return models.Account{}, bankerr.ErrInactiveAccount
	}
	return account, nil
}

func (e *Engine) publishCompleted(record models.TransactionRecord) {
	if e.publisher == nil {
		return
	}
	event := events.TransactionCompleted{
		Reference:   record.Reference,
		Type:        string(record.Type),
		FromAccount: record.FromAccount,
		ToAccount:   record.ToAccount,
		Amount:      record.Amount,
		OccurredAt:  record.OccurredAt,
	}
	if err := e.publisher.Publish(topicTransactionCompleted, event); err != nil {
		e.log.Warn("event publish failed", zap.String("reference", record.Reference), zap.Error(err))
	}
}

func (e *Engine) notify(eventType string, payload map[string]any) {
	if e.notifier == nil {
		return
	}
	e.notifier.Notify(eventType, payload)
}

func newRecord(txType models.TransactionType, from, to string, amount decimal.Decimal, note string) models.TransactionRecord {
	return models.TransactionRecord{
		Reference:   uuid.New().String(),
		Type:        txType,
		FromAccount: from,
		ToAccount:   to,
		Amount:      amount,
		OccurredAt:  time.Now().UTC(),
		Note:        note,
	}
}

// validateAmount enforces a positive amount exactly representable with two
// fractional digits. Arithmetic stays in fixed-point decimal throughout.
func validateAmount(amount decimal.Decimal) error {
	if amount.Cmp(decimal.Zero) <= 0 {
		return fmt.Errorf("%w: amount must be positive", bankerr.ErrInvalidInput)
	}
	if !amount.Equal(amount.Round(2)) {
		return fmt.Errorf("%w: amount must have at most two decimal places", bankerr.ErrInvalidInput)
	}
	return nil
}

func validateNote(note string) error {
	if len(note) > maxNoteLen {
		return fmt.Errorf("%w: note must be at most %d characters", bankerr.ErrInvalidInput, maxNoteLen)
	}
	return nil
}

// classifyStoreErr keeps taxonomy errors intact and wraps anything else as internal.
func classifyStoreErr(err error, op string) error {
	if bankerr.Expected(err) {
		return err
	}
	return fmt.Errorf("%w: %s: %v", bankerr.ErrInternal, op, err)
}

func newAccountNumber() string {
	return fmt.Sprintf("%04d-%04d-%04d", rand.Intn(10000), rand.Intn(10000), rand.Intn(10000))
}
