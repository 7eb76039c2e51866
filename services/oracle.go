package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
)

// RandomnessOracle supplies the unbiased seed that drives the draw. The
// local implementation answers synchronously; in external mode the
// request is fulfilled out-of-band and the seed arrives through
// Store.FulfillRandomness, observed by polling the round row.
type RandomnessOracle interface {
	// RequestSeed asks for randomness for the given round. In local
	// mode the seed is returned directly; in external mode the returned
	// seed is empty and the fulfillment is asynchronous.
	RequestSeed(ctx context.Context, roundID uint) (string, error)
}

// LocalOracle draws the seed from the OS random source.
type LocalOracle struct{}

func NewLocalOracle() *LocalOracle { return &LocalOracle{} }

func (o *LocalOracle) RequestSeed(_ context.Context, _ uint) (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", Retryablef("read random source: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
