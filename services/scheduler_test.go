package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/coder/quartz"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ovalbet/bingo-engine/config"
	"github.com/ovalbet/bingo-engine/models"
)

// fastConfig shrinks every duration so a full lane cycle completes in
// well under a second on a real clock.
func fastConfig() *config.Config {
	cfg := testConfig()
	cfg.BuyWindow = 250 * time.Millisecond
	cfg.Cooldown = 10 * time.Millisecond
	cfg.Stagger = 0
	cfg.PerBallInterval = 0
	cfg.LineBonus = 0
	cfg.BingoBonus = 0
	cfg.RetryBackoff = 10 * time.Millisecond
	cfg.OverloadBackoff = 20 * time.Millisecond
	cfg.RandomnessTimeout = 50 * time.Millisecond
	cfg.SeedPollInterval = 5 * time.Millisecond
	return cfg
}

func startScheduler(t *testing.T, cfg *config.Config) (*Scheduler, *Store, *fakeSettlement, context.CancelFunc) {
	t.Helper()
	clock := quartz.NewReal()
	store := newTestStore(t, cfg, clock)
	settlement := &fakeSettlement{}
	log := testLogger()
	resolver := NewResolver(store, &fakeOracle{seed: "feedface"}, settlement, cfg, log)
	sched := NewScheduler(cfg, store, resolver, settlement, clock, log)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sched.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Fatal("scheduler did not stop")
		}
	})
	return sched, store, settlement, cancel
}

func TestSchedulerCancelsEmptyRound(t *testing.T) {
	cfg := fastConfig()
	cfg.BuyWindow = 30 * time.Millisecond
	_, store, settlement, _ := startScheduler(t, cfg)

	ctx := context.Background()
	require.Eventually(t, func() bool {
		rounds, err := store.Rounds(ctx, models.RoundCancelled, 1, 1)
		return err == nil && len(rounds) > 0
	}, 5*time.Second, 5*time.Millisecond, "an empty round should be fast-cancelled")

	assert.NotEmpty(t, settlement.cancelledRounds(),
		"the fast cancel path goes through the settlement client")
	assert.Empty(t, settlement.submittedRounds())
}

func TestSchedulerResolvesRoundWithCards(t *testing.T) {
	cfg := fastConfig()
	_, store, settlement, _ := startScheduler(t, cfg)

	ctx := context.Background()
	require.NoError(t, store.CreditWallet(ctx, "alice", 100_000))

	// Catch the lane's round while its buy window is still open.
	var roundID uint
	require.Eventually(t, func() bool {
		rounds, err := store.Rounds(ctx, models.RoundOpen, 1, 1)
		if err != nil || len(rounds) == 0 {
			return false
		}
		if _, err := store.BuyCards(ctx, rounds[0].ID, "alice", 2); err != nil {
			return false
		}
		roundID = rounds[0].ID
		return true
	}, 5*time.Second, 5*time.Millisecond)

	require.Eventually(t, func() bool {
		round, err := store.GetRound(ctx, roundID)
		return err == nil && round.Status == models.RoundResolved
	}, 5*time.Second, 5*time.Millisecond, "the purchased round should run to resolved")

	round, err := store.GetRound(ctx, roundID)
	require.NoError(t, err)
	assert.Equal(t, "feedface", round.RandomSeed)
	assert.NotEmpty(t, round.BingoWinnerIDs())

	submitted := settlement.submittedRounds()
	require.NotEmpty(t, submitted)
	assert.Equal(t, roundID, submitted[0].RoundID)
}

func TestSchedulerRetriesRoundAfterSettlementFailure(t *testing.T) {
	cfg := fastConfig()
	_, store, settlement, _ := startScheduler(t, cfg)
	settlement.setSubmitErr(errors.New("rpc unavailable"))

	ctx := context.Background()
	require.NoError(t, store.CreditWallet(ctx, "alice", 100_000))

	var roundID uint
	require.Eventually(t, func() bool {
		rounds, err := store.Rounds(ctx, models.RoundOpen, 1, 1)
		if err != nil || len(rounds) == 0 {
			return false
		}
		if _, err := store.BuyCards(ctx, rounds[0].ID, "alice", 2); err != nil {
			return false
		}
		roundID = rounds[0].ID
		return true
	}, 5*time.Second, 5*time.Millisecond)

	// Let the lane fail settlement at least once; the round must roll
	// back to closed and the lane must keep retrying it rather than
	// opening a new round.
	require.Eventually(t, func() bool {
		if settlement.submitAttempts() < 2 {
			return false
		}
		round, err := store.GetRound(ctx, roundID)
		return err == nil && round.Status == models.RoundClosed
	}, 5*time.Second, 5*time.Millisecond, "a failed settlement rolls the round back to closed")

	all, err := store.Rounds(ctx, "", 1, 0)
	require.NoError(t, err)
	assert.Len(t, all, 1, "no new round while the pending one retries")

	settlement.setSubmitErr(nil)

	require.Eventually(t, func() bool {
		round, err := store.GetRound(ctx, roundID)
		return err == nil && round.Status == models.RoundResolved
	}, 5*time.Second, 5*time.Millisecond, "the retried round should run to resolved")

	submitted := settlement.submittedRounds()
	require.Len(t, submitted, 1)
	assert.Equal(t, roundID, submitted[0].RoundID)
}

func TestSchedulerSnapshot(t *testing.T) {
	cfg := fastConfig()
	sched, _, _, _ := startScheduler(t, cfg)

	ctx := context.Background()
	require.Eventually(t, func() bool {
		lanes := sched.Snapshot(ctx)
		return len(lanes) == 1 && lanes[0].Room == 1 && lanes[0].Phase != ""
	}, 5*time.Second, 5*time.Millisecond)
}

func TestCloseExpiredRoundsSweep(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()
	clock := quartz.NewMock(t)
	store := newTestStore(t, cfg, clock)
	log := testLogger()
	resolver := NewResolver(store, &fakeOracle{seed: "feedface"}, &fakeSettlement{}, cfg, log)
	sched := NewScheduler(cfg, store, resolver, &fakeSettlement{}, clock, log)

	stale, err := store.CreateRound(ctx, 1)
	require.NoError(t, err)
	clock.Advance(cfg.BuyWindow + time.Second)
	fresh, err := store.CreateRound(ctx, 1)
	require.NoError(t, err)

	sched.closeExpiredRounds(ctx, testLogger())

	stale, err = store.GetRound(ctx, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RoundClosed, stale.Status)

	fresh, err = store.GetRound(ctx, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RoundOpen, fresh.Status, "live buy windows are not swept")
}
