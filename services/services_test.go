package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coder/quartz"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/ovalbet/bingo-engine/config"
)

var testDBSeq atomic.Int64

func testConfig() *config.Config {
	return &config.Config{
		Mode:                 config.ModeLocal,
		Rooms:                1,
		BuyWindow:            45 * time.Second,
		Cooldown:             10 * time.Second,
		Stagger:              5 * time.Second,
		CardPrice:            1000,
		MaxCardsPerWallet:    10,
		PerBallInterval:      2 * time.Second,
		LineBonus:            10 * time.Second,
		BingoBonus:           10 * time.Second,
		FeeBps:               1000,
		ReserveBps:           1000,
		LinePrizeBps:         2500,
		BingoPrizeBps:        7000,
		JackpotBallThreshold: 40,
		RandomnessTimeout:    10 * time.Minute,
		SeedPollInterval:     5 * time.Second,
		RetryBackoff:         5 * time.Second,
		OverloadBackoff:      time.Minute,
		MaxOutstandingRounds: 3,
	}
}

func newTestStore(t *testing.T, cfg *config.Config, clock quartz.Clock) *Store {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared&_busy_timeout=5000", name, testDBSeq.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, config.Migrate(db))
	return NewStore(db, cfg, clock)
}

func testLogger() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}

// fakeOracle returns a fixed seed (or error) synchronously.
type fakeOracle struct {
	seed string
	err  error
}

func (o *fakeOracle) RequestSeed(_ context.Context, _ uint) (string, error) {
	return o.seed, o.err
}

// fakeSettlement records every call and fails on demand.
type fakeSettlement struct {
	mu        sync.Mutex
	submitErr error
	cancelErr error
	open      []LedgerRound

	attempts  int
	submitted []Settlement
	cancelled []uint
	closed    []uint
}

func (s *fakeSettlement) SubmitResult(_ context.Context, settlement Settlement) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts++
	if s.submitErr != nil {
		return s.submitErr
	}
	s.submitted = append(s.submitted, settlement)
	return nil
}

func (s *fakeSettlement) setSubmitErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.submitErr = err
}

func (s *fakeSettlement) submitAttempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts
}

func (s *fakeSettlement) CancelRound(_ context.Context, roundID uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancelErr != nil {
		return s.cancelErr
	}
	s.cancelled = append(s.cancelled, roundID)
	return nil
}

func (s *fakeSettlement) CloseRound(_ context.Context, roundID uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = append(s.closed, roundID)
	return nil
}

func (s *fakeSettlement) OpenRounds(_ context.Context) ([]LedgerRound, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.open, nil
}

func (s *fakeSettlement) submittedRounds() []Settlement {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Settlement(nil), s.submitted...)
}

func (s *fakeSettlement) cancelledRounds() []uint {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]uint(nil), s.cancelled...)
}

func (s *fakeSettlement) closedRounds() []uint {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]uint(nil), s.closed...)
}
