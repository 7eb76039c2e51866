package services

import (
	"context"
	"errors"
	"time"

	"github.com/coder/quartz"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ovalbet/bingo-engine/config"
	"github.com/ovalbet/bingo-engine/models"
)

// Phase is a lane's current step, published for status reporting only;
// the database remains the single source of truth.
type Phase string

const (
	PhaseIdle        Phase = "idle"
	PhaseOpen        Phase = "open"
	PhaseWaitingSeed Phase = "waiting_seed"
	PhaseResolving   Phase = "resolving"
	PhaseDrawing     Phase = "drawing"
	PhaseCooldown    Phase = "cooldown"
)

// LaneStatus is the read-only snapshot a lane publishes about itself.
type LaneStatus struct {
	Room      int       `json:"room"`
	Phase     Phase     `json:"phase"`
	RoundID   uint      `json:"round_id"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Scheduler drives one goroutine per room lane through the round
// lifecycle forever. Lanes own their phase value and publish copies over
// a channel to a monitor goroutine; Snapshot queries the monitor, so no
// mutable state is shared between lanes.
type Scheduler struct {
	cfg        *config.Config
	store      *Store
	resolver   *Resolver
	settlement SettlementClient
	clock      quartz.Clock
	log        *zap.SugaredLogger

	updates chan LaneStatus
	queries chan chan []LaneStatus
}

func NewScheduler(cfg *config.Config, store *Store, resolver *Resolver, settlement SettlementClient, clock quartz.Clock, log *zap.SugaredLogger) *Scheduler {
	return &Scheduler{
		cfg:        cfg,
		store:      store,
		resolver:   resolver,
		settlement: settlement,
		clock:      clock,
		log:        log,
		updates:    make(chan LaneStatus, 16),
		queries:    make(chan chan []LaneStatus),
	}
}

// Run starts the monitor and all lanes and blocks until the context is
// cancelled. Lanes honor cancellation cooperatively between phases.
func (s *Scheduler) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.monitor(ctx)
		return nil
	})
	for lane := 1; lane <= s.cfg.Rooms; lane++ {
		lane := lane
		g.Go(func() error {
			s.runLane(ctx, lane)
			return nil
		})
	}
	return g.Wait()
}

// Snapshot returns the latest phase of every lane.
func (s *Scheduler) Snapshot(ctx context.Context) []LaneStatus {
	reply := make(chan []LaneStatus, 1)
	select {
	case s.queries <- reply:
	case <-ctx.Done():
		return nil
	}
	select {
	case out := <-reply:
		return out
	case <-ctx.Done():
		return nil
	}
}

// monitor owns the lane status map; it is the only goroutine that
// mutates it.
func (s *Scheduler) monitor(ctx context.Context) {
	lanes := make(map[int]LaneStatus, s.cfg.Rooms)
	for {
		select {
		case <-ctx.Done():
			return
		case st := <-s.updates:
			lanes[st.Room] = st
		case reply := <-s.queries:
			out := make([]LaneStatus, 0, len(lanes))
			for _, st := range lanes {
				out = append(out, st)
			}
			reply <- out
		}
	}
}

func (s *Scheduler) publish(ctx context.Context, room int, phase Phase, roundID uint) {
	st := LaneStatus{Room: room, Phase: phase, RoundID: roundID, UpdatedAt: s.clock.Now()}
	select {
	case s.updates <- st:
	case <-ctx.Done():
	}
}

func (s *Scheduler) runLane(ctx context.Context, room int) {
	log := s.log.With("room", room)

	// Stagger lane starts so buy windows do not all close at once.
	if !s.wait(ctx, time.Duration(room-1)*s.cfg.Stagger) {
		return
	}
	log.Infow("lane started")

	for ctx.Err() == nil {
		s.publish(ctx, room, PhaseIdle, 0)
		round, err := s.store.CreateRound(ctx, room)
		if err != nil {
			if ctx.Err() == nil {
				s.backoff(ctx, err, log)
			}
			continue
		}
		// The lane owns this round until it reaches a terminal state.
		// A failed step backs off and retries the same round; a new
		// round is never created while the current one is pending.
		for ctx.Err() == nil {
			if err := s.driveRound(ctx, room, round.ID, log); err != nil {
				s.backoff(ctx, err, log)
				continue
			}
			break
		}
	}
}

// driveRound advances the lane's round from whatever state it is in,
// which makes a retry after an error resume at the failed step. Returns
// nil once the round is terminal and the cooldown has run.
func (s *Scheduler) driveRound(ctx context.Context, room int, roundID uint, log *zap.SugaredLogger) error {
	for ctx.Err() == nil {
		round, err := s.store.GetRound(ctx, roundID)
		if err != nil {
			return err
		}

		switch round.Status {
		case models.RoundOpen:
			s.publish(ctx, room, PhaseOpen, roundID)
			if !s.waitUntil(ctx, round.ScheduledClose) {
				return nil
			}
			round, err = s.store.GetRound(ctx, roundID)
			if err != nil {
				return err
			}
			// Empty rounds skip the randomness request entirely when
			// the settlement layer accepts a direct cancel. If it
			// refuses, the normal close path runs and the ledger is
			// expected to auto-cancel the round on its side.
			if round.TotalCards == 0 {
				if err := s.settlement.CancelRound(ctx, roundID); err == nil {
					if _, err := s.store.CancelRound(ctx, roundID); err != nil {
						return err
					}
					log.Infow("fast-cancelled empty round", "round", roundID)
					continue
				}
				log.Warnw("fast cancel rejected, falling back to close", "round", roundID)
			}
			if _, err := s.store.CloseRound(ctx, roundID); err != nil {
				return err
			}

		case models.RoundClosed:
			if s.cfg.Mode == config.ModeExternal && round.TotalCards > 0 && round.RandomSeed == "" {
				s.publish(ctx, room, PhaseWaitingSeed, roundID)
				if _, err := s.oracleRequest(ctx, roundID); err != nil {
					return err
				}
				fulfilled, err := s.awaitSeed(ctx, roundID)
				if err != nil {
					return err
				}
				if !fulfilled {
					// Hard timeout: abandon rather than retry forever.
					log.Warnw("randomness never arrived, abandoning round", "round", roundID)
					if _, err := s.store.CancelRound(ctx, roundID); err != nil {
						return err
					}
					continue
				}
			}
			s.publish(ctx, room, PhaseResolving, roundID)
			if _, err := s.resolver.Resolve(ctx, roundID); err != nil {
				return err
			}

		case models.RoundResolving:
			// Another actor holds the claim; it commits to drawing or
			// releases back to closed shortly.
			if !s.wait(ctx, s.cfg.SeedPollInterval) {
				return nil
			}

		case models.RoundDrawing:
			s.publish(ctx, room, PhaseDrawing, roundID)
			remaining := s.resolver.Duration(round)
			if round.DrawStartedAt != nil {
				remaining -= s.clock.Now().Sub(*round.DrawStartedAt)
			}
			if !s.wait(ctx, remaining) {
				return nil
			}
			if _, err := s.store.FinalizeDrawing(ctx, roundID); err != nil {
				return err
			}
			log.Infow("round resolved", "round", roundID)

		default:
			return s.cooldown(ctx, room, roundID)
		}
	}
	return nil
}

func (s *Scheduler) oracleRequest(ctx context.Context, roundID uint) (string, error) {
	return s.resolver.oracle.RequestSeed(ctx, roundID)
}

// awaitSeed polls the round row until the oracle fulfillment lands or the
// hard timeout expires.
func (s *Scheduler) awaitSeed(ctx context.Context, roundID uint) (bool, error) {
	deadline := s.clock.Now().Add(s.cfg.RandomnessTimeout)
	for {
		round, err := s.store.GetRound(ctx, roundID)
		if err != nil {
			return false, err
		}
		if round.RandomSeed != "" {
			return true, nil
		}
		if !s.clock.Now().Before(deadline) {
			return false, nil
		}
		if !s.wait(ctx, s.cfg.SeedPollInterval) {
			return false, ctx.Err()
		}
	}
}

func (s *Scheduler) cooldown(ctx context.Context, room int, roundID uint) error {
	s.publish(ctx, room, PhaseCooldown, roundID)
	s.wait(ctx, s.cfg.Cooldown)
	return nil
}

// backoff reacts to a lane error. Too many outstanding rounds gets the
// long backoff plus a sweep that closes any round whose buy window has
// already expired, healing a previously failed close. Everything else,
// retryable or not, waits the fixed backoff before the lane tries again.
func (s *Scheduler) backoff(ctx context.Context, err error, log *zap.SugaredLogger) {
	if errors.Is(err, ErrTooManyRounds) {
		log.Warnw("too many outstanding rounds, sweeping expired opens")
		s.closeExpiredRounds(ctx, log)
		s.wait(ctx, s.cfg.OverloadBackoff)
		return
	}
	if IsRetryable(err) {
		log.Warnw("transient lane failure, backing off", "error", err)
	} else {
		log.Errorw("lane failure, backing off", "error", err)
	}
	s.wait(ctx, s.cfg.RetryBackoff)
}

func (s *Scheduler) closeExpiredRounds(ctx context.Context, log *zap.SugaredLogger) {
	rounds, err := s.store.ExpiredOpenRounds(ctx)
	if err != nil {
		log.Errorw("failed to list expired rounds", "error", err)
		return
	}
	for _, r := range rounds {
		if closed, err := s.store.CloseRound(ctx, r.ID); err != nil {
			log.Errorw("failed to close expired round", "round", r.ID, "error", err)
		} else if closed {
			log.Infow("closed expired round", "round", r.ID)
		}
	}
}

// wait sleeps for d on the injected clock, returning false if the
// context was cancelled first.
func (s *Scheduler) wait(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := s.clock.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func (s *Scheduler) waitUntil(ctx context.Context, t time.Time) bool {
	return s.wait(ctx, t.Sub(s.clock.Now()))
}
