package ledger

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/meridianbank/core/internal/bankerr"
	"github.com/meridianbank/core/internal/models"
)

const maxIdempotencyKeyLen = 100

// TransferIdempotent wraps Transfer with deduplication keyed by
// (actor, key). For any such pair exactly one transfer is economically
// executed regardless of retries: the transfer and the idempotency record
// are committed in one atomic unit, so a losing racer aborts before any
// balance moves and returns the winner's reference instead.
func (e *Engine) TransferIdempotent(ctx context.Context, actor models.Actor, key string, req TransferRequest) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return e.Transfer(ctx, actor, req)
	}
	if len(key) > maxIdempotencyKeyLen {
		return "", fmt.Errorf("%w: idempotency key must be at most %d characters", bankerr.ErrInvalidInput, maxIdempotencyKeyLen)
	}

	hash := fingerprint(req)
	existing, err := e.store.GetIdempotencyRecord(ctx, actor.Username, key)
	switch {
	case err == nil:
		return replay(existing, hash)
	case errors.Is(err, bankerr.ErrNotFound):
		// first sighting of this key, fall through and execute
	default:
		return "", fmt.Errorf("%w: idempotency lookup: %v", bankerr.ErrInternal, err)
	}

	idem := &models.IdempotencyRecord{
		ActorUsername: actor.Username,
		Key:           key,
		RequestHash:   hash,
		CreatedAt:     time.Now().UTC(),
	}
	reference, err := e.transfer(ctx, actor, req, idem)
	if errors.Is(err, bankerr.ErrDuplicate) {
		// A concurrent request won the race for this key. Our transfer was
		// discarded with the aborted atomic unit; adopt the winner's result.
		winner, lookupErr := e.store.GetIdempotencyRecord(ctx, actor.Username, key)
		if lookupErr != nil {
			return "", fmt.Errorf("%w: idempotency race re-read: %v", bankerr.ErrInternal, lookupErr)
		}
		return replay(winner, hash)
	}
	return reference, err
}

func replay(record models.IdempotencyRecord, hash string) (string, error) {
	if record.RequestHash != hash {
		return "", fmt.Errorf("%w: idempotency key already used with a different transfer payload", bankerr.ErrConflict)
	}
	return record.TransferReference, nil
}

// fingerprint hashes the semantically relevant transfer fields. The amount
// is canonicalized to two fixed decimals so every representation of the same
// value produces the same digest.
func fingerprint(req TransferRequest) string {
	payload := strings.Join([]string{
		req.FromAccount,
		req.ToAccount,
		req.Amount.StringFixed(2),
		strings.TrimSpace(req.Note),
	}, "|")
	sum := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:])
}
