// Package memory is the in-memory implementation of interfaces.Store, used
// by tests and by the server when no database is configured.
//
// Balances are guarded by one mutex per account; transfers acquire both
// account locks in lexicographic account-number order so two concurrent
// transfers moving funds in opposite directions between the same pair can
// never deadlock. The remaining collections share a single mutex.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/meridianbank/core/internal/bankerr"
	"github.com/meridianbank/core/internal/interfaces"
	"github.com/meridianbank/core/internal/models"
)

type Store struct {
	mapMu    sync.Mutex // protects accounts and muMap structure
	muMap    map[string]*sync.Mutex
	accounts map[string]*models.Account

	mu           sync.Mutex // protects everything below
	transactions []models.TransactionRecord
	txRefs       map[string]struct{}
	idem         map[string]models.IdempotencyRecord
	audits       []models.AuditEntry
	frauds       []models.FraudEvent
	users        map[string]models.User
	nextUserID   int64
}

func NewStore() *Store {
	return &Store{
		muMap:    make(map[string]*sync.Mutex),
		accounts: make(map[string]*models.Account),
		txRefs:   make(map[string]struct{}),
		idem:     make(map[string]models.IdempotencyRecord),
		users:    make(map[string]models.User),
	}
}

func (s *Store) lockFor(accountNumber string) *sync.Mutex {
	s.mapMu.Lock()
	defer s.mapMu.Unlock()
	m, ok := s.muMap[accountNumber]
	if !ok {
		m = &sync.Mutex{}
		s.muMap[accountNumber] = m
	}
	return m
}

// lookup must only be called while holding the account's lock.
func (s *Store) lookup(accountNumber string) (*models.Account, bool) {
	s.mapMu.Lock()
	defer s.mapMu.Unlock()
	a, ok := s.accounts[accountNumber]
	return a, ok
}

func (s *Store) CreateAccount(_ context.Context, account models.Account) error {
	s.mapMu.Lock()
	defer s.mapMu.Unlock()
	if _, ok := s.accounts[account.AccountNumber]; ok {
		return fmt.Errorf("%w: account number %s", bankerr.ErrDuplicate, account.AccountNumber)
	}
	cp := account
	s.accounts[account.AccountNumber] = &cp
	return nil
}

func (s *Store) GetAccount(_ context.Context, accountNumber string) (models.Account, error) {
	l := s.lockFor(accountNumber)
	l.Lock()
	defer l.Unlock()
	a, ok := s.lookup(accountNumber)
	if !ok {
		return models.Account{}, fmt.Errorf("%w: account %s", bankerr.ErrNotFound, accountNumber)
	}
	return *a, nil
}

func (s *Store) ListAccountsByOwner(ctx context.Context, ownerID int64) ([]models.Account, error) {
	s.mapMu.Lock()
	numbers := make([]string, 0)
	for n, a := range s.accounts {
		if a.OwnerID == ownerID {
			numbers = append(numbers, n)
		}
	}
	s.mapMu.Unlock()

	out := make([]models.Account, 0, len(numbers))
	for _, n := range numbers {
		a, err := s.GetAccount(ctx, n)
		if err != nil {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

func (s *Store) SetAccountStatus(_ context.Context, accountNumber string, active bool) (models.Account, error) {
	l := s.lockFor(accountNumber)
	l.Lock()
	defer l.Unlock()
	a, ok := s.lookup(accountNumber)
	if !ok {
		return models.Account{}, fmt.Errorf("%w: account %s", bankerr.ErrNotFound, accountNumber)
	}
	a.Active = active
	return *a, nil
}

func (s *Store) ApplyDeposit(_ context.Context, accountNumber string, amount decimal.Decimal, record models.TransactionRecord) (models.Account, error) {
	l := s.lockFor(accountNumber)
	l.Lock()
	defer l.Unlock()
	a, ok := s.lookup(accountNumber)
	if !ok {
		return models.Account{}, fmt.Errorf("%w: account %s", bankerr.ErrNotFound, accountNumber)
	}
	if !a.Active {
		return models.Account{}, bankerr.ErrInactiveAccount
	}
	a.Balance = a.Balance.Add(amount)
	if err := s.appendRecord(record); err != nil {
		a.Balance = a.Balance.Sub(amount)
		return models.Account{}, err
	}
	return *a, nil
}

func (s *Store) ApplyWithdrawal(_ context.Context, accountNumber string, amount decimal.Decimal, record models.TransactionRecord) (models.Account, error) {
	l := s.lockFor(accountNumber)
	l.Lock()
	defer l.Unlock()
	a, ok := s.lookup(accountNumber)
	if !ok {
		return models.Account{}, fmt.Errorf("%w: account %s", bankerr.ErrNotFound, accountNumber)
	}
	if !a.Active {
		return models.Account{}, bankerr.ErrInactiveAccount
	}
	if a.Balance.LessThan(amount) {
		return models.Account{}, bankerr.ErrInsufficientFunds
	}
	a.Balance = a.Balance.Sub(amount)
	if err := s.appendRecord(record); err != nil {
		a.Balance = a.Balance.Add(amount)
		return models.Account{}, err
	}
	return *a, nil
}

func (s *Store) ApplyTransfer(_ context.Context, from, to string, amount decimal.Decimal, record models.TransactionRecord, idem *models.IdempotencyRecord) error {
	if from == to {
		return fmt.Errorf("%w: transfer within one account", bankerr.ErrInvalidInput)
	}

	// Fixed global lock order prevents deadlock on opposing transfers.
	first, second := from, to
	if second < first {
		first, second = second, first
	}
	l1 := s.lockFor(first)
	l2 := s.lockFor(second)
	l1.Lock()
	defer l1.Unlock()
	l2.Lock()
	defer l2.Unlock()

	src, ok := s.lookup(from)
	if !ok {
		return fmt.Errorf("%w: account %s", bankerr.ErrNotFound, from)
	}
	dst, ok := s.lookup(to)
	if !ok {
		return fmt.Errorf("%w: account %s", bankerr.ErrNotFound, to)
	}
	if !src.Active || !dst.Active {
		return bankerr.ErrInactiveAccount
	}
	if src.Balance.LessThan(amount) {
		return bankerr.ErrInsufficientFunds
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if idem != nil {
		if _, exists := s.idem[idemKey(idem.ActorUsername, idem.Key)]; exists {
			return fmt.Errorf("%w: idempotency key %q", bankerr.ErrDuplicate, idem.Key)
		}
	}
	if _, exists := s.txRefs[record.Reference]; exists {
		return fmt.Errorf("%w: transaction reference %s", bankerr.ErrDuplicate, record.Reference)
	}

	src.Balance = src.Balance.Sub(amount)
	dst.Balance = dst.Balance.Add(amount)
	s.transactions = append(s.transactions, record)
	s.txRefs[record.Reference] = struct{}{}
	if idem != nil {
		s.idem[idemKey(idem.ActorUsername, idem.Key)] = *idem
	}
	return nil
}

func (s *Store) ListTransactionsByAccount(_ context.Context, accountNumber string) ([]models.TransactionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.TransactionRecord
	for _, r := range s.transactions {
		if r.FromAccount == accountNumber || r.ToAccount == accountNumber {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *Store) ListTransactionsByAccounts(_ context.Context, accountNumbers []string) ([]models.TransactionRecord, error) {
	in := make(map[string]struct{}, len(accountNumbers))
	for _, n := range accountNumbers {
		in[n] = struct{}{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.TransactionRecord
	for _, r := range s.transactions {
		_, from := in[r.FromAccount]
		_, to := in[r.ToAccount]
		if from || to {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *Store) GetIdempotencyRecord(_ context.Context, actorUsername, key string) (models.IdempotencyRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.idem[idemKey(actorUsername, key)]
	if !ok {
		return models.IdempotencyRecord{}, fmt.Errorf("%w: idempotency record", bankerr.ErrNotFound)
	}
	return r, nil
}

func (s *Store) AppendAuditEntry(_ context.Context, entry models.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audits = append(s.audits, entry)
	return nil
}

func (s *Store) ListAuditEntries(_ context.Context, limit, offset int) ([]models.AuditEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return page(s.audits, limit, offset), nil
}

func (s *Store) AppendFraudEvent(_ context.Context, event models.FraudEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frauds = append(s.frauds, event)
	return nil
}

func (s *Store) ListFraudEvents(_ context.Context, limit, offset int) ([]models.FraudEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return page(s.frauds, limit, offset), nil
}

func (s *Store) CreateUser(_ context.Context, user models.User) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.users[user.Username]; exists {
		return models.User{}, fmt.Errorf("%w: username %s", bankerr.ErrDuplicate, user.Username)
	}
	for _, u := range s.users {
		if u.Email == user.Email {
			return models.User{}, fmt.Errorf("%w: email %s", bankerr.ErrDuplicate, user.Email)
		}
	}
	s.nextUserID++
	user.ID = s.nextUserID
	s.users[user.Username] = user
	return user, nil
}

func (s *Store) GetUserByUsername(_ context.Context, username string) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[username]
	if !ok {
		return models.User{}, fmt.Errorf("%w: user %s", bankerr.ErrNotFound, username)
	}
	return u, nil
}

// appendRecord must be called with the relevant account lock(s) held.
func (s *Store) appendRecord(record models.TransactionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.txRefs[record.Reference]; exists {
		return fmt.Errorf("%w: transaction reference %s", bankerr.ErrDuplicate, record.Reference)
	}
	s.transactions = append(s.transactions, record)
	s.txRefs[record.Reference] = struct{}{}
	return nil
}

func idemKey(actorUsername, key string) string {
	return actorUsername + "\x00" + key
}

// page slices items as given; defaulting and capping of limit happen at the
// transport layer.
func page[T any](items []T, limit, offset int) []T {
	if limit <= 0 {
		return []T{}
	}
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return []T{}
	}
	end := offset + limit
	if end > len(items) {
		end = len(items)
	}
	out := make([]T, end-offset)
	copy(out, items[offset:end])
	return out
}

var _ interfaces.Store = (*Store)(nil)
