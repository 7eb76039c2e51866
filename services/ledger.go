package services

import (
	"context"
	"time"
)

// Settlement is the typed result payload committed to the authoritative
// ledger for one round.
type Settlement struct {
	RoundID         uint
	LineWinners     []uint
	LineWinnerBall  int
	BingoWinners    []uint
	BingoWinnerBall int
}

// LedgerRound is a round as the external ledger sees it, used for ghost
// reconciliation at startup.
type LedgerRound struct {
	RoundID        uint
	ScheduledClose time.Time
}

// SettlementClient commits round outcomes to the authoritative ledger.
// SubmitResult is called inside the resolution transaction and must
// confirm before the transaction commits; an error rolls every local
// mutation back and the round returns to closed.
//
// Precondition on CancelRound: when the ledger rejects an explicit cancel
// of a zero-card round, the contract is expected to auto-cancel that
// round itself; the caller falls back to the normal close path and does
// not verify this.
type SettlementClient interface {
	SubmitResult(ctx context.Context, s Settlement) error
	CancelRound(ctx context.Context, roundID uint) error
	// CloseRound closes a round on the ledger side; used when recovery
	// finds rounds only the ledger knows about.
	CloseRound(ctx context.Context, roundID uint) error
	// OpenRounds lists rounds the ledger still considers open. Local
	// mode has no second authority and returns nil.
	OpenRounds(ctx context.Context) ([]LedgerRound, error)
}

// LocalSettlement is the local-mode client: balances are settled directly
// in the database by the store, so every ledger call trivially succeeds.
type LocalSettlement struct{}

func NewLocalSettlement() *LocalSettlement { return &LocalSettlement{} }

func (s *LocalSettlement) SubmitResult(_ context.Context, _ Settlement) error { return nil }

func (s *LocalSettlement) CancelRound(_ context.Context, _ uint) error { return nil }

func (s *LocalSettlement) CloseRound(_ context.Context, _ uint) error { return nil }

func (s *LocalSettlement) OpenRounds(_ context.Context) ([]LedgerRound, error) { return nil, nil }
