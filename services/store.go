package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/coder/quartz"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ovalbet/bingo-engine/config"
	"github.com/ovalbet/bingo-engine/game"
	"github.com/ovalbet/bingo-engine/models"
)

// Store is the round/card/pool repository. Every state transition is a
// conditional update (UPDATE ... WHERE status = expected) and every
// multi-row mutation runs inside one transaction with the contended row
// locked first, so the database is the single arbiter of concurrency.
type Store struct {
	db    *gorm.DB
	cfg   *config.Config
	clock quartz.Clock
}

func NewStore(db *gorm.DB, cfg *config.Config, clock quartz.Clock) *Store {
	return &Store{db: db, cfg: cfg, clock: clock}
}

// DB exposes the underlying handle for the HTTP query surface.
func (s *Store) DB() *gorm.DB { return s.db }

// forUpdate adds a row lock on dialects that support it. SQLite (used by
// the tests) serializes writers on its own.
func (s *Store) forUpdate(tx *gorm.DB) *gorm.DB {
	if s.db.Dialector.Name() == "postgres" {
		return tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return tx
}

// CreateRound opens a new round for a room with the configured buy
// window. Rooms with too many non-terminal rounds outstanding are
// refused with ErrTooManyRounds.
func (s *Store) CreateRound(ctx context.Context, room int) (*models.Round, error) {
	var outstanding int64
	err := s.db.WithContext(ctx).Model(&models.Round{}).
		Where("room_number = ? AND status NOT IN ?", room,
			[]models.RoundStatus{models.RoundResolved, models.RoundCancelled}).
		Count(&outstanding).Error
	if err != nil {
		return nil, err
	}
	if outstanding >= int64(s.cfg.MaxOutstandingRounds) {
		return nil, ErrTooManyRounds
	}

	round := &models.Round{
		RoomNumber:     room,
		Status:         models.RoundOpen,
		ScheduledClose: s.clock.Now().Add(s.cfg.BuyWindow),
	}
	if err := s.db.WithContext(ctx).Create(round).Error; err != nil {
		return nil, err
	}
	return round, nil
}

// GetRound fetches one round by id.
func (s *Store) GetRound(ctx context.Context, id uint) (*models.Round, error) {
	var round models.Round
	if err := s.db.WithContext(ctx).First(&round, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRoundNotFound
		}
		return nil, err
	}
	return &round, nil
}

// BuyCards purchases count cards for wallet in one transaction. The
// round row is locked first, which serializes concurrent purchases and
// makes the per-wallet re-check safe. Validation failures leave the
// database untouched.
func (s *Store) BuyCards(ctx context.Context, roundID uint, wallet string, count int) ([]models.Card, error) {
	if count < 1 {
		return nil, ErrInvalidCardCount
	}

	var created []models.Card
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var round models.Round
		if err := s.forUpdate(tx).First(&round, roundID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrRoundNotFound
			}
			return err
		}
		if round.Status != models.RoundOpen {
			return ErrRoundNotOpen
		}
		if !s.clock.Now().Before(round.ScheduledClose) {
			return ErrBuyWindowClosed
		}

		var owned int64
		if err := tx.Model(&models.Card{}).
			Where("round_id = ? AND owner_address = ?", roundID, wallet).
			Count(&owned).Error; err != nil {
			return err
		}
		if int(owned)+count > s.cfg.MaxCardsPerWallet {
			return ErrMaxCardsExceeded
		}

		cost := s.cfg.CardPrice * int64(count)
		var user models.User
		if err := s.forUpdate(tx).Where("wallet_address = ?", wallet).First(&user).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrInsufficientBalance
			}
			return err
		}
		if user.Balance < cost {
			return ErrInsufficientBalance
		}
		if err := tx.Model(&user).Update("balance", user.Balance-cost).Error; err != nil {
			return err
		}

		cards := make([]models.Card, count)
		for i := range cards {
			numbers := game.GenerateCard()
			cards[i] = models.Card{
				RoundID:      roundID,
				OwnerAddress: wallet,
				Numbers:      models.IntsJSON(numbers[:]),
			}
		}
		if err := tx.Create(&cards).Error; err != nil {
			return err
		}

		if err := tx.Model(&round).Updates(map[string]interface{}{
			"total_cards":   round.TotalCards + count,
			"total_revenue": round.TotalRevenue + cost,
		}).Error; err != nil {
			return err
		}
		created = cards
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// transition performs a conditional status update and reports whether it
// claimed the row. Zero rows affected means another actor got there
// first, which callers treat as "already handled".
func (s *Store) transition(ctx context.Context, id uint, from []models.RoundStatus, to models.RoundStatus, extra map[string]interface{}) (bool, error) {
	updates := map[string]interface{}{"status": to}
	for k, v := range extra {
		updates[k] = v
	}
	res := s.db.WithContext(ctx).Model(&models.Round{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// CloseRound moves open -> closed; no more purchases are accepted.
func (s *Store) CloseRound(ctx context.Context, id uint) (bool, error) {
	return s.transition(ctx, id, []models.RoundStatus{models.RoundOpen}, models.RoundClosed, nil)
}

// CancelRound moves a pre-drawing round to cancelled.
func (s *Store) CancelRound(ctx context.Context, id uint) (bool, error) {
	return s.transition(ctx, id,
		[]models.RoundStatus{models.RoundOpen, models.RoundClosed, models.RoundResolving},
		models.RoundCancelled, nil)
}

// ClaimRound is the single at-most-once gate of resolution: a conditional
// closed -> resolving update. With needSeed the claim additionally
// requires that the external randomness has already been persisted, so a
// live lane and a concurrent recovery pass can never both win.
func (s *Store) ClaimRound(ctx context.Context, id uint, needSeed bool) (bool, error) {
	q := s.db.WithContext(ctx).Model(&models.Round{}).
		Where("id = ? AND status = ?", id, models.RoundClosed)
	if needSeed {
		q = q.Where("random_seed <> ''")
	}
	res := q.Update("status", models.RoundResolving)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// ReleaseClaim rolls resolving back to closed after an external failure,
// so the round is safely retryable and never stuck mid-claim.
func (s *Store) ReleaseClaim(ctx context.Context, id uint) error {
	_, err := s.transition(ctx, id, []models.RoundStatus{models.RoundResolving}, models.RoundClosed, nil)
	return err
}

// FinalizeDrawing moves drawing -> resolved once the animation window has
// elapsed.
func (s *Store) FinalizeDrawing(ctx context.Context, id uint) (bool, error) {
	return s.transition(ctx, id, []models.RoundStatus{models.RoundDrawing}, models.RoundResolved, nil)
}

// FulfillRandomness records the oracle's seed for a closed round that has
// none yet. The conditional write makes duplicate callbacks harmless.
func (s *Store) FulfillRandomness(ctx context.Context, id uint, seed string) (bool, error) {
	res := s.db.WithContext(ctx).Model(&models.Round{}).
		Where("id = ? AND status = ? AND random_seed = ''", id, models.RoundClosed).
		Update("random_seed", seed)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// Resolution carries everything SaveResolution persists for a resolved
// draw.
type Resolution struct {
	Round   *models.Round
	Seed    string
	Balls   []int
	Winners game.Winners
	Split   game.Breakdown
	// JackpotEligible is true when a bingo winner exists at or below the
	// early-ball threshold; whether the jackpot actually pays depends on
	// the pool balance read under lock.
	JackpotEligible bool
	// Payouts maps wallet address to the credit it receives (local mode
	// only; external mode settles balances on the ledger).
	Payouts map[string]int64
	// JackpotRecipients are the wallets splitting the jackpot if it pays.
	JackpotRecipients []string
}

// SaveResolution commits one round's outcome in a single all-or-nothing
// transaction: pool locked first, round moved resolving -> drawing with
// all draw artifacts, card results annotated, winner wallets credited and
// the pool updated. settle runs inside the transaction and must confirm
// before anything commits; its failure rolls every mutation back.
// Returns the jackpot amount paid, if any.
func (s *Store) SaveResolution(ctx context.Context, res Resolution, settle func() error) (int64, error) {
	var jackpotPaid int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var pool models.Pool
		if err := s.forUpdate(tx).First(&pool, models.PoolID).Error; err != nil {
			return err
		}

		// Reserve accrues into the jackpot each round; an eligible
		// bingo on a previously-funded jackpot sweeps the whole pot.
		newJackpot := pool.JackpotBalance + res.Split.Reserve
		if res.JackpotEligible && pool.JackpotBalance > 0 {
			jackpotPaid = newJackpot
			newJackpot = 0
		}

		now := s.clock.Now()
		updates := map[string]interface{}{
			"status":            models.RoundDrawing,
			"draw_started_at":   &now,
			"random_seed":       res.Seed,
			"drawn_balls":       models.IntsJSON(res.Balls),
			"line_winners":      models.UintsJSON(res.Winners.LineWinners),
			"line_winner_ball":  res.Winners.LineWinnerBall,
			"bingo_winners":     models.UintsJSON(res.Winners.BingoWinners),
			"bingo_winner_ball": res.Winners.BingoWinnerBall,
			"fee_amount":        res.Split.Fee,
			"reserve_amount":    res.Split.Reserve,
			"line_prize":        res.Split.LinePrize,
			"bingo_prize":       res.Split.BingoPrize,
			"jackpot_won":       jackpotPaid > 0,
			"jackpot_paid":      jackpotPaid,
		}
		upd := tx.Model(&models.Round{}).
			Where("id = ? AND status = ?", res.Round.ID, models.RoundResolving).
			Updates(updates)
		if upd.Error != nil {
			return upd.Error
		}
		if upd.RowsAffected != 1 {
			return fmt.Errorf("round %d lost its resolving claim", res.Round.ID)
		}

		for _, cr := range res.Winners.Cards {
			lineHit, bingoHit := cr.LineHitBall, cr.BingoHitBall
			cardUpdates := map[string]interface{}{
				"is_line_winner":  lineHit > 0 && lineHit == res.Winners.LineWinnerBall,
				"is_bingo_winner": bingoHit > 0 && bingoHit == res.Winners.BingoWinnerBall,
			}
			if lineHit > 0 {
				cardUpdates["line_hit_ball"] = lineHit
			}
			if bingoHit > 0 {
				cardUpdates["bingo_hit_ball"] = bingoHit
			}
			if err := tx.Model(&models.Card{}).Where("id = ?", cr.CardID).
				Updates(cardUpdates).Error; err != nil {
				return err
			}
		}

		payouts := make(map[string]int64, len(res.Payouts))
		for wallet, amount := range res.Payouts {
			payouts[wallet] = amount
		}
		if jackpotPaid > 0 && len(res.JackpotRecipients) > 0 {
			share := jackpotPaid / int64(len(res.JackpotRecipients))
			for _, wallet := range res.JackpotRecipients {
				payouts[wallet] += share
			}
		}
		var totalPaid int64
		for wallet, amount := range payouts {
			if amount <= 0 {
				continue
			}
			if err := s.creditWallet(tx, wallet, amount); err != nil {
				return err
			}
			totalPaid += amount
		}

		if err := tx.Model(&pool).Updates(map[string]interface{}{
			"jackpot_balance": newJackpot,
			"accrued_fees":    pool.AccruedFees + res.Split.Fee,
			"total_rounds":    pool.TotalRounds + 1,
			"total_cards":     pool.TotalCards + int64(res.Round.TotalCards),
			"total_revenue":   pool.TotalRevenue + res.Round.TotalRevenue,
			"total_payouts":   pool.TotalPayouts + totalPaid,
		}).Error; err != nil {
			return err
		}

		// External settlement confirms inside the transaction so that a
		// revert or timeout aborts every local mutation with it.
		if settle != nil {
			if err := settle(); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return jackpotPaid, nil
}

func (s *Store) creditWallet(tx *gorm.DB, wallet string, amount int64) error {
	var user models.User
	err := s.forUpdate(tx).Where("wallet_address = ?", wallet).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return tx.Create(&models.User{WalletAddress: wallet, Balance: amount}).Error
	}
	if err != nil {
		return err
	}
	return tx.Model(&user).Update("balance", user.Balance+amount).Error
}

// CreditWallet adds funds to a wallet, creating the row if needed. Used
// by the out-of-scope deposit layer and by tests.
func (s *Store) CreditWallet(ctx context.Context, wallet string, amount int64) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.creditWallet(tx, wallet, amount)
	})
}

// WalletBalance reads a wallet's current balance.
func (s *Store) WalletBalance(ctx context.Context, wallet string) (int64, error) {
	var user models.User
	if err := s.db.WithContext(ctx).Where("wallet_address = ?", wallet).First(&user).Error; err != nil {
		return 0, err
	}
	return user.Balance, nil
}

// CardsByRound lists a round's cards ordered by id.
func (s *Store) CardsByRound(ctx context.Context, roundID uint) ([]models.Card, error) {
	var cards []models.Card
	err := s.db.WithContext(ctx).Where("round_id = ?", roundID).
		Order("id ASC").Find(&cards).Error
	return cards, err
}

// CardsByOwner lists every card a wallet owns, newest round first.
func (s *Store) CardsByOwner(ctx context.Context, wallet string) ([]models.Card, error) {
	var cards []models.Card
	err := s.db.WithContext(ctx).Where("owner_address = ?", wallet).
		Order("round_id DESC, id ASC").Find(&cards).Error
	return cards, err
}

// Rounds lists rounds filtered by optional status and room (zero values
// mean no filter), newest first. limit <= 0 returns everything.
func (s *Store) Rounds(ctx context.Context, status models.RoundStatus, room int, limit int) ([]models.Round, error) {
	q := s.db.WithContext(ctx).Model(&models.Round{})
	if status != "" {
		q = q.Where("status = ?", status)
	}
	if room > 0 {
		q = q.Where("room_number = ?", room)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	var rounds []models.Round
	err := q.Order("id DESC").Find(&rounds).Error
	return rounds, err
}

// NonTerminalRounds lists every round a crash may have stranded, oldest
// first so recovery replays them in order.
func (s *Store) NonTerminalRounds(ctx context.Context) ([]models.Round, error) {
	var rounds []models.Round
	err := s.db.WithContext(ctx).
		Where("status NOT IN ?", []models.RoundStatus{models.RoundResolved, models.RoundCancelled}).
		Order("id ASC").Find(&rounds).Error
	return rounds, err
}

// ExpiredOpenRounds lists open rounds whose buy window has passed.
func (s *Store) ExpiredOpenRounds(ctx context.Context) ([]models.Round, error) {
	var rounds []models.Round
	err := s.db.WithContext(ctx).
		Where("status = ? AND scheduled_close <= ?", models.RoundOpen, s.clock.Now()).
		Order("id ASC").Find(&rounds).Error
	return rounds, err
}

// LatestRound returns the newest round for a room, or nil if the room has
// none yet.
func (s *Store) LatestRound(ctx context.Context, room int) (*models.Round, error) {
	var round models.Round
	err := s.db.WithContext(ctx).Where("room_number = ?", room).
		Order("id DESC").First(&round).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &round, nil
}

// Pool reads the singleton pool row.
func (s *Store) Pool(ctx context.Context) (*models.Pool, error) {
	var pool models.Pool
	if err := s.db.WithContext(ctx).First(&pool, models.PoolID).Error; err != nil {
		return nil, err
	}
	return &pool, nil
}

// Now exposes the store's clock so callers share its notion of time.
func (s *Store) Now() time.Time { return s.clock.Now() }
