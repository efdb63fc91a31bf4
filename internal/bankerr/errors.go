// Package bankerr defines the error taxonomy of the ledger core. Callers
// classify failures with errors.Is against the sentinels below; Code maps a
// classified error to the stable machine-readable code surfaced on the wire.
package bankerr

import "errors"

var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrNotFound          = errors.New("not found")
	ErrForbidden         = errors.New("forbidden")
	ErrInactiveAccount   = errors.New("account is inactive")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrConflict          = errors.New("conflict")
	ErrBadCredentials    = errors.New("invalid username or password")
	ErrInternal          = errors.New("internal error")

	// ErrDuplicate is returned by stores when a uniqueness constraint is
	// violated. The idempotency guard relies on it to resolve insert races.
	ErrDuplicate = errors.New("duplicate record")
)

// Code returns the machine-readable code for a classified error.
func Code(err error) string {
	switch {
	case errors.Is(err, ErrInvalidInput):
		return "INVALID_INPUT"
	case errors.Is(err, ErrNotFound):
		return "NOT_FOUND"
	case errors.Is(err, ErrForbidden):
		return "FORBIDDEN"
	case errors.Is(err, ErrInactiveAccount):
		return "INVALID_STATE"
	case errors.Is(err, ErrInsufficientFunds):
		return "INSUFFICIENT_FUNDS"
	case errors.Is(err, ErrConflict), errors.Is(err, ErrDuplicate):
		return "CONFLICT"
	case errors.Is(err, ErrBadCredentials):
		return "BAD_CREDENTIALS"
	default:
		return "INTERNAL"
	}
}

// Expected reports whether err is a user-facing outcome rather than a system
// failure. Expected errors must not be logged at error severity.
func Expected(err error) bool {
	return Code(err) != "INTERNAL"
}
