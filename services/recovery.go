package services

import (
	"context"
	"time"

	"github.com/coder/quartz"
	"go.uber.org/zap"

	"github.com/ovalbet/bingo-engine/config"
	"github.com/ovalbet/bingo-engine/models"
)

// Recovery reconciles rounds a crashed process left in non-terminal
// states. It runs once, before any scheduler lane starts, so in-flight
// external commitments are never duplicated.
type Recovery struct {
	cfg        *config.Config
	store      *Store
	resolver   *Resolver
	settlement SettlementClient
	clock      quartz.Clock
	log        *zap.SugaredLogger
}

func NewRecovery(cfg *config.Config, store *Store, resolver *Resolver, settlement SettlementClient, clock quartz.Clock, log *zap.SugaredLogger) *Recovery {
	return &Recovery{cfg: cfg, store: store, resolver: resolver, settlement: settlement, clock: clock, log: log}
}

// Run classifies every stranded round and repairs it. Rounds mid-draw
// get the remainder of their animation; closed rounds are resolved now;
// expired open rounds are closed first. Open rounds whose buy window is
// still running are left for their lane. In external mode, ghost rounds
// on either side are reconciled last.
func (r *Recovery) Run(ctx context.Context) error {
	rounds, err := r.store.NonTerminalRounds(ctx)
	if err != nil {
		return err
	}
	for _, round := range rounds {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		round := round
		switch round.Status {
		case models.RoundDrawing:
			r.recoverDrawing(ctx, &round)
		case models.RoundResolving:
			// A claim with no committed resolution: the resolution
			// transaction rolled back, so the claim is stale.
			if err := r.store.ReleaseClaim(ctx, round.ID); err != nil {
				r.log.Errorw("failed to release stale claim", "round", round.ID, "error", err)
				continue
			}
			r.resolveAndFinalize(ctx, round.ID)
		case models.RoundClosed:
			r.resolveAndFinalize(ctx, round.ID)
		case models.RoundOpen:
			if round.ScheduledClose.After(r.clock.Now()) {
				continue // its lane will pick it up
			}
			if _, err := r.store.CloseRound(ctx, round.ID); err != nil {
				r.log.Errorw("failed to close expired round", "round", round.ID, "error", err)
				continue
			}
			r.resolveAndFinalize(ctx, round.ID)
		}
	}

	if r.cfg.Mode == config.ModeExternal {
		if err := r.reconcileGhosts(ctx); err != nil {
			return err
		}
	}
	return nil
}

// recoverDrawing finishes the animation window of a round that was
// mid-draw at crash time: finalize immediately when the window already
// elapsed, otherwise after exactly the remaining time.
func (r *Recovery) recoverDrawing(ctx context.Context, round *models.Round) {
	remaining := r.resolver.Duration(round)
	if round.DrawStartedAt != nil {
		elapsed := r.clock.Now().Sub(*round.DrawStartedAt)
		remaining -= elapsed
	}
	if remaining <= 0 {
		if _, err := r.store.FinalizeDrawing(ctx, round.ID); err != nil {
			r.log.Errorw("failed to finalize recovered round", "round", round.ID, "error", err)
			return
		}
		r.log.Infow("finalized overdue round", "round", round.ID)
		return
	}
	r.scheduleFinalize(ctx, round.ID, remaining)
}

// resolveAndFinalize resolves a round now and schedules its finalize for
// the freshly computed animation duration. In external mode the round
// may have gone down without its randomness; the fulfillment must be
// re-requested first or the claim can never succeed.
func (r *Recovery) resolveAndFinalize(ctx context.Context, roundID uint) {
	if r.cfg.Mode == config.ModeExternal && !r.ensureSeed(ctx, roundID) {
		return
	}
	outcome, err := r.resolver.Resolve(ctx, roundID)
	if err != nil {
		r.log.Errorw("failed to resolve recovered round", "round", roundID, "error", err)
		return
	}
	if outcome != OutcomeDrawing {
		return
	}
	round, err := r.store.GetRound(ctx, roundID)
	if err != nil {
		r.log.Errorw("failed to reload recovered round", "round", roundID, "error", err)
		return
	}
	r.log.Infow("resolved recovered round", "round", roundID)
	r.scheduleFinalize(ctx, roundID, r.resolver.Duration(round))
}

// ensureSeed re-requests randomness for a closed round that crashed
// before its fulfillment arrived, then polls for it the way a lane
// would. Expiry of the hard timeout cancels the round so it is never
// left ambiguous. Rounds that already hold a seed, and empty rounds the
// resolver will cancel anyway, pass straight through.
func (r *Recovery) ensureSeed(ctx context.Context, roundID uint) bool {
	round, err := r.store.GetRound(ctx, roundID)
	if err != nil {
		r.log.Errorw("failed to load round for seed check", "round", roundID, "error", err)
		return false
	}
	if round.TotalCards == 0 || round.RandomSeed != "" {
		return true
	}

	if _, err := r.resolver.oracle.RequestSeed(ctx, roundID); err != nil {
		r.log.Errorw("failed to re-request randomness", "round", roundID, "error", err)
		return false
	}

	deadline := r.clock.Now().Add(r.cfg.RandomnessTimeout)
	for {
		round, err := r.store.GetRound(ctx, roundID)
		if err != nil {
			r.log.Errorw("failed to poll for seed", "round", roundID, "error", err)
			return false
		}
		if round.RandomSeed != "" {
			return true
		}
		if !r.clock.Now().Before(deadline) {
			r.log.Warnw("randomness never arrived, cancelling recovered round", "round", roundID)
			if _, err := r.store.CancelRound(ctx, roundID); err != nil {
				r.log.Errorw("failed to cancel seedless round", "round", roundID, "error", err)
			}
			return false
		}
		timer := r.clock.NewTimer(r.cfg.SeedPollInterval)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return false
		}
	}
}

func (r *Recovery) scheduleFinalize(ctx context.Context, roundID uint, after time.Duration) {
	r.log.Infow("scheduling delayed finalize", "round", roundID, "after", after)
	r.clock.AfterFunc(after, func() {
		if ctx.Err() != nil {
			return
		}
		if _, err := r.store.FinalizeDrawing(ctx, roundID); err != nil {
			r.log.Errorw("delayed finalize failed", "round", roundID, "error", err)
		}
	})
}

// reconcileGhosts repairs disagreements between local storage and the
// external ledger. Local open rounds the ledger does not know are
// cancelled; ledger-only open rounds are closed one at a time so the
// external sender never races itself, honoring each round's original
// close deadline first.
func (r *Recovery) reconcileGhosts(ctx context.Context) error {
	ledgerRounds, err := r.settlement.OpenRounds(ctx)
	if err != nil {
		return err
	}
	ledgerOpen := make(map[uint]LedgerRound, len(ledgerRounds))
	for _, lr := range ledgerRounds {
		ledgerOpen[lr.RoundID] = lr
	}

	localOpen, err := r.store.Rounds(ctx, models.RoundOpen, 0, 0)
	if err != nil {
		return err
	}
	localIDs := make(map[uint]bool, len(localOpen))
	for _, round := range localOpen {
		localIDs[round.ID] = true
		if _, ok := ledgerOpen[round.ID]; ok {
			continue
		}
		if _, err := r.store.CancelRound(ctx, round.ID); err != nil {
			r.log.Errorw("failed to cancel ghost round", "round", round.ID, "error", err)
			continue
		}
		r.log.Warnw("cancelled ghost local round", "round", round.ID)
	}

	for _, lr := range ledgerRounds {
		if localIDs[lr.RoundID] {
			continue
		}
		// Sequential on purpose: external close calls share a sender
		// whose ordering must not be raced.
		if wait := lr.ScheduledClose.Sub(r.clock.Now()); wait > 0 {
			timer := r.clock.NewTimer(wait)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			}
		}
		if err := r.settlement.CloseRound(ctx, lr.RoundID); err != nil {
			r.log.Errorw("failed to close ledger ghost round", "round", lr.RoundID, "error", err)
			continue
		}
		r.log.Warnw("closed ghost ledger round", "round", lr.RoundID)
	}
	return nil
}
