// Package audit appends an immutable trail entry for every state-changing
// operation. Writes are best-effort: a failed append is logged for
// operational visibility but never fails the operation that triggered it.
package audit

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/meridianbank/core/internal/interfaces"
	"github.com/meridianbank/core/internal/models"
)

const maxDetailsLen = 255

type Recorder struct {
	store interfaces.TrailStore
	log   *zap.Logger
}

func NewRecorder(store interfaces.TrailStore, log *zap.Logger) *Recorder {
	return &Recorder{store: store, log: log}
}

// Append writes one trail entry. accountNumber and reference may be empty.
func (r *Recorder) Append(ctx context.Context, actor, action, accountNumber, reference, details string) {
	if len(details) > maxDetailsLen {
		details = details[:maxDetailsLen]
	}
	entry := models.AuditEntry{
		Actor:         actor,
		Action:        action,
		AccountNumber: accountNumber,
		Reference:     reference,
		Details:       details,
		At:            time.Now().UTC(),
	}
	if err := r.store.AppendAuditEntry(ctx, entry); err != nil {
		r.log.Warn("audit append failed",
			zap.String("actor", actor),
			zap.String("action", action),
			zap.Error(err))
	}
}
