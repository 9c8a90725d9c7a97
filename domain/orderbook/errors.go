package orderbook

import (
	"errors"
	"fmt"
)

var (
	ErrOrderNotFound = errors.New("orderbook: order not found")
	ErrInvalidQuery  = errors.New("orderbook: invalid query")

	// ErrDuplicateOrder is an ErrInvalidQuery: the id is already resting.
	ErrDuplicateOrder = fmt.Errorf("%w: duplicate order id", ErrInvalidQuery)

	// ErrBookHalted is returned by every mutating call once the book has
	// recorded an InvariantViolation.
	ErrBookHalted = errors.New("orderbook: book halted")
)

// InvariantViolation reports internal corruption detected while mutating
// the book, or a failure outside it that leaves the book's state in doubt.
// It is fatal for the book instance.
type InvariantViolation struct {
	Op     string
	Reason string

	// Cause is set when the violation was raised by Halt.
	Cause error
}

func (e *InvariantViolation) Error() string {
	return fmt.Sprintf("orderbook: invariant violation in %s: %s", e.Op, e.Reason)
}

func (e *InvariantViolation) Unwrap() error { return e.Cause }

func violation(op, format string, args ...any) *InvariantViolation {
	return &InvariantViolation{Op: op, Reason: fmt.Sprintf(format, args...)}
}
