package ledger

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/meridianbank/core/internal/bankerr"
	"github.com/meridianbank/core/internal/models"
)

const defaultHistoryPageSize = 20

// HistoryQuery narrows and orders a user's transaction history. Dates are
// YYYY-MM-DD interpreted in UTC, with EndDate inclusive. Sort is "field" or
// "field,desc" over occurred_at, amount, or type. Page and Size apply only
// when at least one of them is set; otherwise the full result is returned.
type HistoryQuery struct {
	StartDate string
	EndDate   string
	MinAmount *decimal.Decimal
	MaxAmount *decimal.Decimal
	Sort      string
	Page      *int
	Size      *int
}

// ListUserTransactions returns the history across all of the actor's
// accounts, filtered, sorted, and paginated per the query.
func (e *Engine) ListUserTransactions(ctx context.Context, actor models.Actor, q HistoryQuery) ([]models.TransactionRecord, error) {
	window, err := parseDateWindow(q.StartDate, q.EndDate)
	if err != nil {
		return nil, err
	}
	if q.MinAmount != nil && q.MaxAmount != nil && q.MinAmount.GreaterThan(*q.MaxAmount) {
		return nil, fmt.Errorf("%w: min_amount must not exceed max_amount", bankerr.ErrInvalidInput)
	}
	less, err := historyLess(q.Sort)
	if err != nil {
		return nil, err
	}

	records, err := e.ownedTransactions(ctx, actor)
	if err != nil {
		return nil, err
	}

	filtered := make([]models.TransactionRecord, 0, len(records))
	for _, r := range records {
		if !window.contains(r.OccurredAt) {
			continue
		}
		if q.MinAmount != nil && r.Amount.LessThan(*q.MinAmount) {
			continue
		}
		if q.MaxAmount != nil && r.Amount.GreaterThan(*q.MaxAmount) {
			continue
		}
		filtered = append(filtered, r)
	}

	if less != nil {
		sort.SliceStable(filtered, func(i, j int) bool { return less(filtered[i], filtered[j]) })
	}
	if q.Page != nil || q.Size != nil {
		filtered = pageRecords(filtered, q.Page, q.Size)
	}
	return filtered, nil
}

// SummarizeTransactions computes the cashflow summary over the actor's
// accounts, optionally scoped to one of them. With a scope, the scoped
// account alone defines what counts as a credit or debit, so a transfer to
// the actor's other account is an outflow; without one, such transfers are
// internal and excluded from both totals.
func (e *Engine) SummarizeTransactions(ctx context.Context, actor models.Actor, startDate, endDate, accountNumber string) (models.TransactionSummary, error) {
	window, err := parseDateWindow(startDate, endDate)
	if err != nil {
		return models.TransactionSummary{}, err
	}

	scoped := strings.TrimSpace(accountNumber)
	scope := make(map[string]struct{})
	var records []models.TransactionRecord
	if scoped != "" {
		account, err := e.store.GetAccount(ctx, scoped)
		if err != nil {
			return models.TransactionSummary{}, classifyStoreErr(err, "get account")
		}
		if account.OwnerID != actor.UserID {
			return models.TransactionSummary{}, fmt.Errorf("%w: not your account", bankerr.ErrForbidden)
		}
		scope[scoped] = struct{}{}
		records, err = e.store.ListTransactionsByAccount(ctx, scoped)
		if err != nil {
			return models.TransactionSummary{}, fmt.Errorf("%w: list transactions: %v", bankerr.ErrInternal, err)
		}
	} else {
		accounts, err := e.store.ListAccountsByOwner(ctx, actor.UserID)
		if err != nil {
			return models.TransactionSummary{}, fmt.Errorf("%w: list accounts: %v", bankerr.ErrInternal, err)
		}
		numbers := make([]string, 0, len(accounts))
		for _, a := range accounts {
			scope[a.AccountNumber] = struct{}{}
			numbers = append(numbers, a.AccountNumber)
		}
		records, err = e.store.ListTransactionsByAccounts(ctx, numbers)
		if err != nil {
			return models.TransactionSummary{}, fmt.Errorf("%w: list transactions: %v", bankerr.ErrInternal, err)
		}
	}

	summary := models.TransactionSummary{
		ScopeAccountNumber: scoped,
		StartDate:          startDate,
		EndDate:            endDate,
		TotalCredits:       decimal.Zero,
		TotalDebits:        decimal.Zero,
		LargestCredit:      decimal.Zero,
		LargestDebit:       decimal.Zero,
		MonthlyNetCashflow: make(map[string]decimal.Decimal),
	}
	for _, r := range records {
		if !window.contains(r.OccurredAt) {
			continue
		}
		summary.TransactionCount++

		_, fromInScope := scope[r.FromAccount]
		_, toInScope := scope[r.ToAccount]
		switch {
		case toInScope && !fromInScope:
			summary.TotalCredits = summary.TotalCredits.Add(r.Amount)
			if r.Amount.GreaterThan(summary.LargestCredit) {
				summary.LargestCredit = r.Amount
			}
			accumulateMonthly(summary.MonthlyNetCashflow, r.OccurredAt, r.Amount)
		case fromInScope && !toInScope:
			summary.TotalDebits = summary.TotalDebits.Add(r.Amount)
			if r.Amount.GreaterThan(summary.LargestDebit) {
				summary.LargestDebit = r.Amount
			}
			accumulateMonthly(summary.MonthlyNetCashflow, r.OccurredAt, r.Amount.Neg())
		case fromInScope:
			summary.InternalTransferCount++
		}
	}
	summary.NetCashflow = summary.TotalCredits.Sub(summary.TotalDebits)
	return summary, nil
}

func (e *Engine) ownedTransactions(ctx context.Context, actor models.Actor) ([]models.TransactionRecord, error) {
	accounts, err := e.store.ListAccountsByOwner(ctx, actor.UserID)
	if err != nil {
		return nil, fmt.Errorf("%w: list accounts: %v", bankerr.ErrInternal, err)
	}
	numbers := make([]string, 0, len(accounts))
	for _, a := range accounts {
		numbers = append(numbers, a.AccountNumber)
	}
	records, err := e.store.ListTransactionsByAccounts(ctx, numbers)
	if err != nil {
		return nil, fmt.Errorf("%w: list transactions: %v", bankerr.ErrInternal, err)
	}
	return records, nil
}

// dateWindow is [start, end); zero bounds are open.
type dateWindow struct {
	start time.Time
	end   time.Time
}

func (w dateWindow) contains(t time.Time) bool {
	if !w.start.IsZero() && t.Before(w.start) {
		return false
	}
	if !w.end.IsZero() && !t.Before(w.end) {
		return false
	}
	return true
}

func parseDateWindow(startDate, endDate string) (dateWindow, error) {
	var w dateWindow
	if startDate != "" {
		d, err := time.ParseInLocation(time.DateOnly, startDate, time.UTC)
		if err != nil {
			return dateWindow{}, fmt.Errorf("%w: dates must be formatted YYYY-MM-DD", bankerr.ErrInvalidInput)
		}
		w.start = d
	}
	if endDate != "" {
		d, err := time.ParseInLocation(time.DateOnly, endDate, time.UTC)
		if err != nil {
			return dateWindow{}, fmt.Errorf("%w: dates must be formatted YYYY-MM-DD", bankerr.ErrInvalidInput)
		}
		// the end date is inclusive, so the bound is the following midnight
		w.end = d.AddDate(0, 0, 1)
	}
	return w, nil
}

func historyLess(sortSpec string) (func(a, b models.TransactionRecord) bool, error) {
	sortSpec = strings.TrimSpace(sortSpec)
	if sortSpec == "" {
		return nil, nil
	}
	field, dir, _ := strings.Cut(sortSpec, ",")
	field = strings.TrimSpace(field)
	dir = strings.ToLower(strings.TrimSpace(dir))

	var less func(a, b models.TransactionRecord) bool
	switch field {
	case "occurred_at":
		less = func(a, b models.TransactionRecord) bool { return a.OccurredAt.Before(b.OccurredAt) }
	case "amount":
		less = func(a, b models.TransactionRecord) bool { return a.Amount.LessThan(b.Amount) }
	case "type":
		less = func(a, b models.TransactionRecord) bool { return a.Type < b.Type }
	default:
		return nil, fmt.Errorf("%w: sort field must be one of occurred_at, amount, type", bankerr.ErrInvalidInput)
	}
	if dir == "desc" {
		asc := less
		less = func(a, b models.TransactionRecord) bool { return asc(b, a) }
	}
	return less, nil
}

func pageRecords(records []models.TransactionRecord, page, size *int) []models.TransactionRecord {
	p := 0
	if page != nil && *page > 0 {
		p = *page
	}
	s := defaultHistoryPageSize
	if size != nil && *size > 0 {
		s = *size
	}
	from := min(p*s, len(records))
	to := min(from+s, len(records))
	return records[from:to]
}

func accumulateMonthly(monthly map[string]decimal.Decimal, occurredAt time.Time, delta decimal.Decimal) {
	month := occurredAt.UTC().Format("2006-01")
	monthly[month] = monthly[month].Add(delta)
}
