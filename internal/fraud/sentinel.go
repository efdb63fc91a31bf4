// Package fraud inspects completed money movements against a large-amount
// threshold. Detection is observational: the sentinel records events but
// never blocks or reverses the movement that raised them.
package fraud

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/meridianbank/core/internal/interfaces"
	"github.com/meridianbank/core/internal/models"
)

// LargeAmountThreshold flags movements of 10,000.00 and above.
var LargeAmountThreshold = decimal.RequireFromString("10000.00")

type Sentinel struct {
	store interfaces.TrailStore
	log   *zap.Logger
}

func NewSentinel(store interfaces.TrailStore, log *zap.Logger) *Sentinel {
	return &Sentinel{store: store, log: log}
}

// Evaluate records a flagged event when amount meets the threshold and
// reports whether it did. eventType is one of the models.FraudLarge* tags.
func (s *Sentinel) Evaluate(ctx context.Context, username, accountNumber string, amount decimal.Decimal, eventType string) bool {
	if amount.LessThan(LargeAmountThreshold) {
		return false
	}
	event := models.FraudEvent{
		EventType:     eventType,
		Username:      username,
		AccountNumber: accountNumber,
		Details:       "Large amount detected: " + amount.StringFixed(2),
		Flagged:       true,
		At:            time.Now().UTC(),
	}
	if err := s.store.AppendFraudEvent(ctx, event); err != nil {
		s.log.Warn("fraud event append failed",
			zap.String("event_type", eventType),
			zap.String("account", accountNumber),
			zap.Error(err))
	}
	return true
}

// RecordFailedLogin always records a FAILED_LOGIN event.
func (s *Sentinel) RecordFailedLogin(ctx context.Context, username string) {
	event := models.FraudEvent{
		EventType: models.FraudFailedLogin,
		Username:  username,
		Details:   "Failed login attempt",
		Flagged:   true,
		At:        time.Now().UTC(),
	}
	if err := s.store.AppendFraudEvent(ctx, event); err != nil {
		s.log.Warn("fraud event append failed",
			zap.String("event_type", models.FraudFailedLogin),
			zap.String("username", username),
			zap.Error(err))
	}
}
