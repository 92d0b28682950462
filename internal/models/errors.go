// internal/models/errors.go
package models

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound marks a lookup of an unknown user or payment code.
	ErrNotFound = errors.New("not found")

	// ErrInvalidPlan marks a plan key missing from the static plan table.
	ErrInvalidPlan = errors.New("unknown plan")

	// ErrQuotaExhausted is a gating decision, not a failure: the user has
	// zero signals available today.
	ErrQuotaExhausted = errors.New("daily signal quota exhausted")

	// ErrNoData marks a market-data fetch that returned too few candles.
	ErrNoData = errors.New("no market data")

	// ErrDuplicateCode marks an insert that collided on payment_code.
	// Callers regenerate the code and retry.
	ErrDuplicateCode = errors.New("payment code already exists")
)

// ConflictError reports an operator action against a payment whose current
// status forbids the transition. The status is shown to the operator.
type ConflictError struct {
	Status PaymentStatus
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("payment already %s", e.Status)
}

// IsConflict extracts a ConflictError from an error chain.
func IsConflict(err error) (*ConflictError, bool) {
	var ce *ConflictError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}
