package services

import (
	"errors"
	"fmt"
)

// Validation failures: the request is rejected synchronously and nothing
// is mutated.
var (
	ErrRoundNotOpen        = errors.New("round is not open for purchases")
	ErrBuyWindowClosed     = errors.New("buy window has closed")
	ErrInvalidCardCount    = errors.New("card count must be positive")
	ErrMaxCardsExceeded    = errors.New("max cards per wallet exceeded")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrRoundNotFound       = errors.New("round not found")
)

// ErrTooManyRounds signals that too many rounds for a room are still
// outstanding. The scheduler reacts with a long backoff and tries to
// close rounds whose buy window already expired.
var ErrTooManyRounds = errors.New("too many outstanding rounds")

// RetryableError wraps an external-dependency failure that left the round
// in a stable pre-claim state, so repeating the operation later is safe.
// The scheduler's backoff logic switches on this classification instead
// of matching error text.
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string {
	return fmt.Sprintf("retryable: %v", e.Err)
}

func (e *RetryableError) Unwrap() error { return e.Err }

// Retryablef builds a RetryableError from a format string.
func Retryablef(format string, args ...interface{}) error {
	return &RetryableError{Err: fmt.Errorf(format, args...)}
}

// IsRetryable reports whether err (or anything it wraps) is a
// RetryableError.
func IsRetryable(err error) bool {
	var re *RetryableError
	return errors.As(err, &re)
}
