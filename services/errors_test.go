package services

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRetryableErrors(t *testing.T) {
	base := errors.New("connection reset")

	err := Retryablef("submit round %d: %w", 7, base)
	assert.True(t, IsRetryable(err))
	assert.ErrorIs(t, err, base, "the cause must stay unwrappable")

	wrapped := fmt.Errorf("lane 3: %w", err)
	assert.True(t, IsRetryable(wrapped), "retryability survives further wrapping")

	assert.False(t, IsRetryable(base))
	assert.False(t, IsRetryable(ErrRoundNotOpen))
	assert.False(t, IsRetryable(nil))
}

func TestValidationSentinelsAreDistinct(t *testing.T) {
	sentinels := []error{
		ErrRoundNotFound,
		ErrRoundNotOpen,
		ErrBuyWindowClosed,
		ErrInvalidCardCount,
		ErrMaxCardsExceeded,
		ErrInsufficientBalance,
		ErrTooManyRounds,
	}
	for i, a := range sentinels {
		for j, b := range sentinels {
			if i == j {
				continue
			}
			assert.NotErrorIs(t, a, b)
		}
	}
}
