// Package postgres is the database/sql implementation of interfaces.Store.
//
// Atomic units run inside one transaction with SELECT ... FOR UPDATE row
// locks; transfers lock both account rows in lexicographic account-number
// order so opposing concurrent transfers cannot deadlock. Uniqueness
// violations surface as bankerr.ErrDuplicate. See schema.sql for the layout.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/meridianbank/core/internal/bankerr"
	"github.com/meridianbank/core/internal/interfaces"
	"github.com/meridianbank/core/internal/models"
)

const uniqueViolation = "23505"

type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) CreateAccount(ctx context.Context, account models.Account) error {
	const query = `INSERT INTO accounts (account_number, owner_id, owner_username, balance, active, created_at)
	VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := s.db.ExecContext(ctx, query,
		account.AccountNumber, account.OwnerID, account.OwnerUsername,
		account.Balance, account.Active, account.CreatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: account number %s", bankerr.ErrDuplicate, account.AccountNumber)
	}
	return err
}

func (s *Store) GetAccount(ctx context.Context, accountNumber string) (models.Account, error) {
	const query = `SELECT account_number, owner_id, owner_username, balance, active, created_at
	FROM accounts WHERE account_number = $1`

	var a models.Account
	err := s.db.QueryRowContext(ctx, query, accountNumber).Scan(
		&a.AccountNumber, &a.OwnerID, &a.OwnerUsername, &a.Balance, &a.Active, &a.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Account{}, fmt.Errorf("%w: account %s", bankerr.ErrNotFound, accountNumber)
	}
	if err != nil {
		return models.Account{}, err
	}
	return a, nil
}

func (s *Store) ListAccountsByOwner(ctx context.Context, ownerID int64) ([]models.Account, error) {
	const query = `SELECT account_number, owner_id, owner_username, balance, active, created_at
	FROM accounts WHERE owner_id = $1 ORDER BY created_at`

	rows, err := s.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []models.Account
	for rows.Next() {
		var a models.Account
		if err := rows.Scan(&a.AccountNumber, &a.OwnerID, &a.OwnerUsername, &a.Balance, &a.Active, &a.CreatedAt); err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

func (s *Store) SetAccountStatus(ctx context.Context, accountNumber string, active bool) (models.Account, error) {
	const query = `UPDATE accounts SET active = $2 WHERE account_number = $1
	RETURNING account_number, owner_id, owner_username, balance, active, created_at`

	var a models.Account
	err := s.db.QueryRowContext(ctx, query, accountNumber, active).Scan(
		&a.AccountNumber, &a.OwnerID, &a.OwnerUsername, &a.Balance, &a.Active, &a.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Account{}, fmt.Errorf("%w: account %s", bankerr.ErrNotFound, accountNumber)
	}
	if err != nil {
		return models.Account{}, err
	}
	return a, nil
}

func (s *Store) ApplyDeposit(ctx context.Context, accountNumber string, amount decimal.Decimal, record models.TransactionRecord) (models.Account, error) {
	return s.applySingle(ctx, accountNumber, amount, record, false)
}

func (s *Store) ApplyWithdrawal(ctx context.Context, accountNumber string, amount decimal.Decimal, record models.TransactionRecord) (models.Account, error) {
	return s.applySingle(ctx, accountNumber, amount, record, true)
}

func (s *Store) applySingle(ctx context.Context, accountNumber string, amount decimal.Decimal, record models.TransactionRecord, debit bool) (account models.Account, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return models.Account{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	account, err = lockAccount(ctx, tx, accountNumber)
	if err != nil {
		return models.Account{}, err
	}
	if !account.Active {
		return models.Account{}, bankerr.ErrInactiveAccount
	}
	if debit {
		if account.Balance.LessThan(amount) {
			return models.Account{}, bankerr.ErrInsufficientFunds
		}
		account.Balance = account.Balance.Sub(amount)
	} else {
		account.Balance = account.Balance.Add(amount)
	}

	if err = updateBalance(ctx, tx, accountNumber, account.Balance); err != nil {
		return models.Account{}, err
	}
	if err = insertRecord(ctx, tx, record); err != nil {
		return models.Account{}, err
	}
	if err = tx.Commit(); err != nil {
		return models.Account{}, err
	}
	return account, nil
}

func (s *Store) ApplyTransfer(ctx context.Context, from, to string, amount decimal.Decimal, record models.TransactionRecord, idem *models.IdempotencyRecord) (err error) {
	if from == to {
		return fmt.Errorf("%w: transfer within one account", bankerr.ErrInvalidInput)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	// Lock rows in a fixed global order to prevent deadlock when two
	// transfers move funds in opposite directions between the same pair.
	first, second := from, to
	if second < first {
		first, second = second, first
	}
	locked := make(map[string]models.Account, 2)
	for _, n := range []string{first, second} {
		var a models.Account
		a, err = lockAccount(ctx, tx, n)
		if err != nil {
			return err
		}
		locked[n] = a
	}

	src, dst := locked[from], locked[to]
	if !src.Active || !dst.Active {
		err = bankerr.ErrInactiveAccount
		return err
	}
	if src.Balance.LessThan(amount) {
		err = bankerr.ErrInsufficientFunds
		return err
	}

	if err = updateBalance(ctx, tx, from, src.Balance.Sub(amount)); err != nil {
		return err
	}
	if err = updateBalance(ctx, tx, to, dst.Balance.Add(amount)); err != nil {
		return err
	}
	if err = insertRecord(ctx, tx, record); err != nil {
		return err
	}
	if idem != nil {
		if err = insertIdempotency(ctx, tx, *idem); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *Store) ListTransactionsByAccount(ctx context.Context, accountNumber string) ([]models.TransactionRecord, error) {
	const query = `SELECT reference, type, from_account, to_account, amount, occurred_at, note
	FROM transactions WHERE from_account = $1 OR to_account = $1 ORDER BY occurred_at`

	rows, err := s.db.QueryContext(ctx, query, accountNumber)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []models.TransactionRecord
	for rows.Next() {
		var r models.TransactionRecord
		var fromAcct, toAcct, note sql.NullString
		if err := rows.Scan(&r.Reference, &r.Type, &fromAcct, &toAcct, &r.Amount, &r.OccurredAt, &note); err != nil {
			return nil, err
		}
		r.FromAccount = fromAcct.String
		r.ToAccount = toAcct.String
		r.Note = note.String
		records = append(records, r)
	}
	return records, rows.Err()
}

func (s *Store) ListTransactionsByAccounts(ctx context.Context, accountNumbers []string) ([]models.TransactionRecord, error) {
	const query = `SELECT reference, type, from_account, to_account, amount, occurred_at, note
	FROM transactions WHERE from_account = ANY($1) OR to_account = ANY($1) ORDER BY occurred_at`

	rows, err := s.db.QueryContext(ctx, query, pq.Array(accountNumbers))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []models.TransactionRecord
	for rows.Next() {
		var r models.TransactionRecord
		var fromAcct, toAcct, note sql.NullString
		if err := rows.Scan(&r.Reference, &r.Type, &fromAcct, &toAcct, &r.Amount, &r.OccurredAt, &note); err != nil {
			return nil, err
		}
		r.FromAccount = fromAcct.String
		r.ToAccount = toAcct.String
		r.Note = note.String
		records = append(records, r)
	}
	return records, rows.Err()
}

func (s *Store) GetIdempotencyRecord(ctx context.Context, actorUsername, key string) (models.IdempotencyRecord, error) {
	const query = `SELECT actor_username, idem_key, request_hash, transfer_reference, created_at
	FROM idempotency_records WHERE actor_username = $1 AND idem_key = $2`

	var r models.IdempotencyRecord
	err := s.db.QueryRowContext(ctx, query, actorUsername, key).Scan(
		&r.ActorUsername, &r.Key, &r.RequestHash, &r.TransferReference, &r.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.IdempotencyRecord{}, fmt.Errorf("%w: idempotency record", bankerr.ErrNotFound)
	}
	if err != nil {
		return models.IdempotencyRecord{}, err
	}
	return r, nil
}

func (s *Store) AppendAuditEntry(ctx context.Context, entry models.AuditEntry) error {
	const query = `INSERT INTO audit_entries (actor, action, account_number, reference, details, at)
	VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := s.db.ExecContext(ctx, query,
		entry.Actor, entry.Action, nullString(entry.AccountNumber), nullString(entry.Reference), entry.Details, entry.At)
	return err
}

func (s *Store) ListAuditEntries(ctx context.Context, limit, offset int) ([]models.AuditEntry, error) {
	const query = `SELECT actor, action, account_number, reference, details, at
	FROM audit_entries ORDER BY at DESC LIMIT $1 OFFSET $2`

	rows, err := s.db.QueryContext(ctx, query, max(limit, 0), max(offset, 0))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []models.AuditEntry{}
	for rows.Next() {
		var e models.AuditEntry
		var acct, ref sql.NullString
		if err := rows.Scan(&e.Actor, &e.Action, &acct, &ref, &e.Details, &e.At); err != nil {
			return nil, err
		}
		e.AccountNumber = acct.String
		e.Reference = ref.String
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *Store) AppendFraudEvent(ctx context.Context, event models.FraudEvent) error {
	const query = `INSERT INTO fraud_events (event_type, username, account_number, details, flagged, at)
	VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := s.db.ExecContext(ctx, query,
		event.EventType, event.Username, nullString(event.AccountNumber), event.Details, event.Flagged, event.At)
	return err
}

func (s *Store) ListFraudEvents(ctx context.Context, limit, offset int) ([]models.FraudEvent, error) {
	const query = `SELECT event_type, username, account_number, details, flagged, at
	FROM fraud_events ORDER BY at DESC LIMIT $1 OFFSET $2`

	rows, err := s.db.QueryContext(ctx, query, max(limit, 0), max(offset, 0))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := []models.FraudEvent{}
	for rows.Next() {
		var e models.FraudEvent
		var acct sql.NullString
		if err := rows.Scan(&e.EventType, &e.Username, &acct, &e.Details, &e.Flagged, &e.At); err != nil {
			return nil, err
		}
		e.AccountNumber = acct.String
		events = append(events, e)
	}
	return events, rows.Err()
}

func (s *Store) CreateUser(ctx context.Context, user models.User) (models.User, error) {
	const query = `INSERT INTO users (username, email, password_hash, role, created_at)
	VALUES ($1, $2, $3, $4, $5) RETURNING id`

	err := s.db.QueryRowContext(ctx, query,
		user.Username, user.Email, user.PasswordHash, user.Role, user.CreatedAt).Scan(&user.ID)
	if isUniqueViolation(err) {
		return models.User{}, fmt.Errorf("%w: username or email already registered", bankerr.ErrDuplicate)
	}
	if err != nil {
		return models.User{}, err
	}
	return user, nil
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (models.User, error) {
	const query = `SELECT id, username, email, password_hash, role, created_at
	FROM users WHERE username = $1`

	var u models.User
	err := s.db.QueryRowContext(ctx, query, username).Scan(
		&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.Role, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, fmt.Errorf("%w: user %s", bankerr.ErrNotFound, username)
	}
	if err != nil {
		return models.User{}, err
	}
	return u, nil
}

func lockAccount(ctx context.Context, tx *sql.Tx, accountNumber string) (models.Account, error) {
	const query = `SELECT account_number, owner_id, owner_username, balance, active, created_at
	FROM accounts WHERE account_number = $1 FOR UPDATE`

	var a models.Account
	err := tx.QueryRowContext(ctx, query, accountNumber).Scan(
		&a.AccountNumber, &a.OwnerID, &a.OwnerUsername, &a.Balance, &a.Active, &a.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Account{}, fmt.Errorf("%w: account %s", bankerr.ErrNotFound, accountNumber)
	}
	if err != nil {
		return models.Account{}, err
	}
	return a, nil
}

func updateBalance(ctx context.Context, tx *sql.Tx, accountNumber string, balance decimal.Decimal) error {
	const query = `UPDATE accounts SET balance = $2 WHERE account_number = $1`
	_, err := tx.ExecContext(ctx, query, accountNumber, balance)
	return err
}

func insertRecord(ctx context.Context, tx *sql.Tx, record models.TransactionRecord) error {
	const query = `INSERT INTO transactions (reference, type, from_account, to_account, amount, occurred_at, note)
	VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := tx.ExecContext(ctx, query,
		record.Reference, record.Type, nullString(record.FromAccount), nullString(record.ToAccount),
		record.Amount, record.OccurredAt, nullString(record.Note))
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: transaction reference %s", bankerr.ErrDuplicate, record.Reference)
	}
	return err
}

func insertIdempotency(ctx context.Context, tx *sql.Tx, record models.IdempotencyRecord) error {
	const query = `INSERT INTO idempotency_records (actor_username, idem_key, request_hash, transfer_reference, created_at)
	VALUES ($1, $2, $3, $4, $5)`

	_, err := tx.ExecContext(ctx, query,
		record.ActorUsername, record.Key, record.RequestHash, record.TransferReference, record.CreatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: idempotency key %q", bankerr.ErrDuplicate, record.Key)
	}
	return err
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation
}

var _ interfaces.Store = (*Store)(nil)
