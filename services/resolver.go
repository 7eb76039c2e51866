package services

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/ovalbet/bingo-engine/config"
	"github.com/ovalbet/bingo-engine/game"
	"github.com/ovalbet/bingo-engine/models"
)

// Outcome is what a resolution attempt produced.
type Outcome int

const (
	// OutcomeAlreadyHandled: another actor claimed or resolved the
	// round first. Not an error.
	OutcomeAlreadyHandled Outcome = iota
	// OutcomeCancelled: the round had no cards and went straight to
	// cancelled.
	OutcomeCancelled
	// OutcomeDrawing: the draw was computed, settled and persisted; the
	// round is now in its animation window.
	OutcomeDrawing
)

// Resolver turns a closed round into a drawn one: it claims the round,
// derives the draw from the seed, computes winners and the prize split,
// and commits everything with the settlement call in one transaction.
// Oracle and settlement client are constructor-injected so tests can
// substitute deterministic doubles.
type Resolver struct {
	store      *Store
	oracle     RandomnessOracle
	settlement SettlementClient
	cfg        *config.Config
	log        *zap.SugaredLogger
}

func NewResolver(store *Store, oracle RandomnessOracle, settlement SettlementClient, cfg *config.Config, log *zap.SugaredLogger) *Resolver {
	return &Resolver{store: store, oracle: oracle, settlement: settlement, cfg: cfg, log: log}
}

// Resolve runs the full resolution for one round. At-most-once execution
// is guaranteed by the conditional claim; concurrent callers lose the
// claim and observe OutcomeAlreadyHandled. External failures release the
// claim and come back as retryable errors, never leaving the round in
// resolving.
func (r *Resolver) Resolve(ctx context.Context, roundID uint) (Outcome, error) {
	round, err := r.store.GetRound(ctx, roundID)
	if err != nil {
		return OutcomeAlreadyHandled, err
	}

	// Zero-card rounds go straight to cancelled through their own
	// conditional transition. Doing this before the claim matters in
	// external mode, where the claim waits on a seed an empty round
	// will never be granted.
	if round.TotalCards == 0 {
		cancelled, err := r.store.CancelRound(ctx, roundID)
		if err != nil {
			return OutcomeAlreadyHandled, err
		}
		if !cancelled {
			return OutcomeAlreadyHandled, nil
		}
		r.log.Infow("cancelled empty round", "round", roundID, "room", round.RoomNumber)
		return OutcomeCancelled, nil
	}

	needSeed := r.cfg.Mode == config.ModeExternal
	claimed, err := r.store.ClaimRound(ctx, roundID, needSeed)
	if err != nil {
		return OutcomeAlreadyHandled, err
	}
	if !claimed {
		return OutcomeAlreadyHandled, nil
	}

	// Re-read after the claim: in external mode the seed lands between
	// the first read and the claim succeeding.
	round, err = r.store.GetRound(ctx, roundID)
	if err != nil {
		return OutcomeAlreadyHandled, err
	}

	seed := round.RandomSeed
	if seed == "" {
		seed, err = r.oracle.RequestSeed(ctx, roundID)
		if err != nil || seed == "" {
			// Claim released so the round stays retryable.
			if relErr := r.store.ReleaseClaim(ctx, roundID); relErr != nil {
				r.log.Errorw("failed to release claim", "round", roundID, "error", relErr)
			}
			if err == nil {
				err = Retryablef("oracle returned empty seed for round %d", roundID)
			}
			return OutcomeAlreadyHandled, err
		}
	}

	cards, err := r.store.CardsByRound(ctx, roundID)
	if err != nil {
		return OutcomeAlreadyHandled, err
	}

	balls := game.DrawBalls(seed)
	entries := make([]game.CardNumbers, len(cards))
	owners := make(map[uint]string, len(cards))
	for i, c := range cards {
		entries[i] = game.CardNumbers{CardID: c.ID, Numbers: c.NumberList()}
		owners[c.ID] = c.OwnerAddress
	}
	winners := game.DetectWinners(entries, balls)

	split := game.SplitRevenue(round.TotalRevenue, r.cfg.Rates(),
		len(winners.LineWinners) > 0, len(winners.BingoWinners) > 0)

	res := Resolution{
		Round:           round,
		Seed:            seed,
		Balls:           balls,
		Winners:         winners,
		Split:           split,
		JackpotEligible: winners.BingoWinnerBall > 0 && winners.BingoWinnerBall <= r.cfg.JackpotBallThreshold,
	}
	if r.cfg.Mode == config.ModeLocal {
		res.Payouts = prizePayouts(winners, split, owners)
	}
	for _, id := range winners.BingoWinners {
		res.JackpotRecipients = append(res.JackpotRecipients, owners[id])
	}
	if r.cfg.Mode == config.ModeExternal {
		// Jackpot credits happen on the ledger, not in local rows.
		res.JackpotRecipients = nil
	}

	settlement := Settlement{
		RoundID:         roundID,
		LineWinners:     winners.LineWinners,
		LineWinnerBall:  winners.LineWinnerBall,
		BingoWinners:    winners.BingoWinners,
		BingoWinnerBall: winners.BingoWinnerBall,
	}
	jackpotPaid, err := r.store.SaveResolution(ctx, res, func() error {
		return r.settlement.SubmitResult(ctx, settlement)
	})
	if err != nil {
		if relErr := r.store.ReleaseClaim(ctx, roundID); relErr != nil {
			r.log.Errorw("failed to release claim", "round", roundID, "error", relErr)
		}
		return OutcomeAlreadyHandled, Retryablef("settle round %d: %w", roundID, err)
	}

	r.log.Infow("round drawn",
		"round", roundID,
		"room", round.RoomNumber,
		"cards", round.TotalCards,
		"revenue", round.TotalRevenue,
		"line_ball", winners.LineWinnerBall,
		"bingo_ball", winners.BingoWinnerBall,
		"jackpot_paid", jackpotPaid,
	)
	return OutcomeDrawing, nil
}

// prizePayouts splits each prize equally among its co-winner cards and
// aggregates the shares by owner wallet. A wallet owning two co-winning
// cards receives two shares.
func prizePayouts(w game.Winners, split game.Breakdown, owners map[uint]string) map[string]int64 {
	payouts := make(map[string]int64)
	if split.LinePrize > 0 && len(w.LineWinners) > 0 {
		share := split.LinePrize / int64(len(w.LineWinners))
		for _, id := range w.LineWinners {
			payouts[owners[id]] += share
		}
	}
	if split.BingoPrize > 0 && len(w.BingoWinners) > 0 {
		share := split.BingoPrize / int64(len(w.BingoWinners))
		for _, id := range w.BingoWinners {
			payouts[owners[id]] += share
		}
	}
	return payouts
}

// Duration computes a round's animation window from its persisted winner
// balls.
func (r *Resolver) Duration(round *models.Round) time.Duration {
	return game.DrawDuration(round.LineWinnerBall, round.BingoWinnerBall, r.cfg.Timing())
}
