package memory

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridianbank/core/internal/bankerr"
	"github.com/meridianbank/core/internal/models"
)

func seedAccount(t *testing.T, s *Store, number string, owner int64, balance string, active bool) {
	t.Helper()
	require.NoError(t, s.CreateAccount(context.Background(), models.Account{
		AccountNumber: number,
		OwnerID:       owner,
		Balance:       decimal.RequireFromString(balance),
		Active:        active,
		CreatedAt:     time.Now().UTC(),
	}))
}

func record(ref string, txType models.TransactionType, from, to, amount string) models.TransactionRecord {
	return models.TransactionRecord{
		Reference:   ref,
		Type:        txType,
		FromAccount: from,
		ToAccount:   to,
		Amount:      decimal.RequireFromString(amount),
		OccurredAt:  time.Now().UTC(),
	}
}

func TestCreateAccountDuplicateNumber(t *testing.T) {
	s := NewStore()
	seedAccount(t, s, "1111-1111-1111", 1, "0", true)

	err := s.CreateAccount(context.Background(), models.Account{AccountNumber: "1111-1111-1111", OwnerID: 2})
	assert.ErrorIs(t, err, bankerr.ErrDuplicate)
}

func TestGetAccountNotFound(t *testing.T) {
	s := NewStore()
	_, err := s.GetAccount(context.Background(), "0000-0000-0000")
	assert.ErrorIs(t, err, bankerr.ErrNotFound)
}

func TestApplyTransferRevalidatesState(t *testing.T) {
	s := NewStore()
	seedAccount(t, s, "aaaa", 1, "50.00", true)
	seedAccount(t, s, "bbbb", 2, "0", true)

	err := s.ApplyTransfer(context.Background(), "aaaa", "bbbb", decimal.RequireFromString("60.00"),
		record("r1", models.TransactionTransfer, "aaaa", "bbbb", "60.00"), nil)
	assert.ErrorIs(t, err, bankerr.ErrInsufficientFunds)

	a, err := s.GetAccount(context.Background(), "aaaa")
	require.NoError(t, err)
	assert.True(t, a.Balance.Equal(decimal.RequireFromString("50.00")))

	records, err := s.ListTransactionsByAccount(context.Background(), "aaaa")
	require.NoError(t, err)
	assert.Empty(t, records, "failed transfer must not leave a record")
}

func TestApplyTransferInactiveAccount(t *testing.T) {
	s := NewStore()
	seedAccount(t, s, "aaaa", 1, "100.00", true)
	seedAccount(t, s, "bbbb", 2, "0", false)

	err := s.ApplyTransfer(context.Background(), "aaaa", "bbbb", decimal.RequireFromString("10.00"),
		record("r1", models.TransactionTransfer, "aaaa", "bbbb", "10.00"), nil)
	assert.ErrorIs(t, err, bankerr.ErrInactiveAccount)
}

func TestApplyTransferWithIdempotencyRace(t *testing.T) {
	s := NewStore()
	seedAccount(t, s, "aaaa", 1, "100.00", true)
	seedAccount(t, s, "bbbb", 2, "0", true)

	idem := models.IdempotencyRecord{ActorUsername: "alice", Key: "k1", RequestHash: "h", TransferReference: "r1"}
	err := s.ApplyTransfer(context.Background(), "aaaa", "bbbb", decimal.RequireFromString("10.00"),
		record("r1", models.TransactionTransfer, "aaaa", "bbbb", "10.00"), &idem)
	require.NoError(t, err)

	// Second attempt under the same key aborts the whole unit.
	loser := models.IdempotencyRecord{ActorUsername: "alice", Key: "k1", RequestHash: "h", TransferReference: "r2"}
	err = s.ApplyTransfer(context.Background(), "aaaa", "bbbb", decimal.RequireFromString("10.00"),
		record("r2", models.TransactionTransfer, "aaaa", "bbbb", "10.00"), &loser)
	assert.ErrorIs(t, err, bankerr.ErrDuplicate)

	a, err := s.GetAccount(context.Background(), "aaaa")
	require.NoError(t, err)
	assert.True(t, a.Balance.Equal(decimal.RequireFromString("90.00")), "losing racer must not touch balances")

	stored, err := s.GetIdempotencyRecord(context.Background(), "alice", "k1")
	require.NoError(t, err)
	assert.Equal(t, "r1", stored.TransferReference)

	// The same key under a different actor is a different record.
	bob := models.IdempotencyRecord{ActorUsername: "bob", Key: "k1", RequestHash: "h", TransferReference: "r3"}
	err = s.ApplyTransfer(context.Background(), "bbbb", "aaaa", decimal.RequireFromString("5.00"),
		record("r3", models.TransactionTransfer, "bbbb", "aaaa", "5.00"), &bob)
	assert.NoError(t, err)
}

func TestApplyDepositAndWithdrawal(t *testing.T) {
	s := NewStore()
	seedAccount(t, s, "aaaa", 1, "0", true)

	a, err := s.ApplyDeposit(context.Background(), "aaaa", decimal.RequireFromString("25.00"),
		record("r1", models.TransactionDeposit, "", "aaaa", "25.00"))
	require.NoError(t, err)
	assert.True(t, a.Balance.Equal(decimal.RequireFromString("25.00")))

	a, err = s.ApplyWithdrawal(context.Background(), "aaaa", decimal.RequireFromString("5.00"),
		record("r2", models.TransactionWithdrawal, "aaaa", "", "5.00"))
	require.NoError(t, err)
	assert.True(t, a.Balance.Equal(decimal.RequireFromString("20.00")))

	records, err := s.ListTransactionsByAccount(context.Background(), "aaaa")
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestCreateUserUnique(t *testing.T) {
	s := NewStore()
	u, err := s.CreateUser(context.Background(), models.User{Username: "alice", Email: "a@example.com"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), u.ID)

	_, err = s.CreateUser(context.Background(), models.User{Username: "alice", Email: "other@example.com"})
	assert.ErrorIs(t, err, bankerr.ErrDuplicate)

	_, err = s.CreateUser(context.Background(), models.User{Username: "bob", Email: "a@example.com"})
	assert.ErrorIs(t, err, bankerr.ErrDuplicate)
}

func TestTrailPagination(t *testing.T) {
	s := NewStore()
	for i := 0; i < 5; i++ {
		require.NoError(t, s.AppendAuditEntry(context.Background(), models.AuditEntry{Actor: "alice", Action: "DEPOSIT"}))
	}

	page1, err := s.ListAuditEntries(context.Background(), 2, 0)
	require.NoError(t, err)
	assert.Len(t, page1, 2)

	tail, err := s.ListAuditEntries(context.Background(), 10, 4)
	require.NoError(t, err)
	assert.Len(t, tail, 1)

	beyond, err := s.ListAuditEntries(context.Background(), 10, 50)
	require.NoError(t, err)
	assert.Empty(t, beyond)

	// Limits are not re-defaulted here; callers pass an effective size.
	none, err := s.ListAuditEntries(context.Background(), 0, 0)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestListTransactionsByAccounts(t *testing.T) {
	s := NewStore()
	seedAccount(t, s, "aaaa", 1, "100.00", true)
	seedAccount(t, s, "bbbb", 1, "0", true)
	seedAccount(t, s, "cccc", 2, "100.00", true)

	_, err := s.ApplyDeposit(context.Background(), "aaaa", decimal.RequireFromString("10.00"),
		record("r1", models.TransactionDeposit, "", "aaaa", "10.00"))
	require.NoError(t, err)
	require.NoError(t, s.ApplyTransfer(context.Background(), "aaaa", "bbbb", decimal.RequireFromString("5.00"),
		record("r2", models.TransactionTransfer, "aaaa", "bbbb", "5.00"), nil))
	require.NoError(t, s.ApplyTransfer(context.Background(), "cccc", "aaaa", decimal.RequireFromString("7.00"),
		record("r3", models.TransactionTransfer, "cccc", "aaaa", "7.00"), nil))
	_, err = s.ApplyWithdrawal(context.Background(), "cccc", decimal.RequireFromString("1.00"),
		record("r4", models.TransactionWithdrawal, "cccc", "", "1.00"))
	require.NoError(t, err)

	records, err := s.ListTransactionsByAccounts(context.Background(), []string{"aaaa", "bbbb"})
	require.NoError(t, err)
	require.Len(t, records, 3, "a record touching two requested accounts must appear once")
	refs := make([]string, 0, len(records))
	for _, r := range records {
		refs = append(refs, r.Reference)
	}
	assert.ElementsMatch(t, []string{"r1", "r2", "r3"}, refs)

	none, err := s.ListTransactionsByAccounts(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, none)
}
