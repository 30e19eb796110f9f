package domain

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	// ErrPriceUnavailable is returned when no usable best price exists for a pair.
	ErrPriceUnavailable = errors.New("price unavailable")

	// ErrVersionConflict is returned by the store on an optimistic version check
	// failure. It never surfaces to trade callers; the aggregator retries it.
	ErrVersionConflict = errors.New("version conflict")

	// ErrDuplicateKey is returned by the store when an insert violates a
	// uniqueness constraint.
	ErrDuplicateKey = errors.New("duplicate key")
)

// ValidationError reports a request that failed static validation.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + e.Msg
}

// NotFoundError reports a missing user, wallet, pair or price record.
type NotFoundError struct {
	Resource string
	Key      string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.Key)
}

// InsufficientBalanceError reports a debit exceeding the wallet balance.
// The wallet is left unchanged when this is returned.
type InsufficientBalanceError struct {
	Currency  Currency
	Required  decimal.Decimal
	Available decimal.Decimal
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient %s balance: required %s, available %s",
		e.Currency, e.Required.String(), e.Available.String())
}

// DuplicateRequestError reports an idempotency key reuse that cannot be
// replayed: the key expired, or was reused with a different request body.
type DuplicateRequestError struct {
	Reason string
}

func (e *DuplicateRequestError) Error() string {
	return "duplicate request: " + e.Reason
}

// IsRecoverable reports whether an error belongs to the typed, caller-facing
// taxonomy, as opposed to an unexpected internal failure.
func IsRecoverable(err error) bool {
	var (
		ve *ValidationError
		nf *NotFoundError
		ib *InsufficientBalanceError
		dr *DuplicateRequestError
	)
	return errors.As(err, &ve) || errors.As(err, &nf) ||
		errors.As(err, &ib) || errors.As(err, &dr) ||
		errors.Is(err, ErrPriceUnavailable)
}
