package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/ovalbet/bingo-engine/game"
)

// Mode selects how randomness and settlement are obtained.
type Mode string

const (
	// ModeLocal generates the seed in-process and settles balances
	// directly in the database.
	ModeLocal Mode = "local"
	// ModeExternal waits for an out-of-band randomness fulfillment and
	// submits results to an external settlement contract.
	ModeExternal Mode = "external"
)

// Config is the engine configuration, read from the environment.
type Config struct {
	DatabaseURL string
	Port        string
	Mode        Mode

	Rooms             int
	BuyWindow         time.Duration
	Cooldown          time.Duration
	Stagger           time.Duration
	CardPrice         int64
	MaxCardsPerWallet int

	PerBallInterval time.Duration
	LineBonus       time.Duration
	BingoBonus      time.Duration

	FeeBps        int64
	ReserveBps    int64
	LinePrizeBps  int64
	BingoPrizeBps int64

	// JackpotBallThreshold is the latest winning bingo ball that still
	// triggers the jackpot.
	JackpotBallThreshold int

	RandomnessTimeout    time.Duration
	SeedPollInterval     time.Duration
	RetryBackoff         time.Duration
	OverloadBackoff      time.Duration
	MaxOutstandingRounds int
}

// Load reads .env (if present) and the environment, applying defaults.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("[INFO] No .env file found, reading environment variables")
	}

	cfg := &Config{
		DatabaseURL: os.Getenv("DATABASE_URL"),
		Port:        envString("PORT", "4000"),
		Mode:        Mode(envString("ENGINE_MODE", string(ModeLocal))),

		Rooms:             envInt("ROOMS", 4),
		BuyWindow:         envDuration("BUY_WINDOW", 45*time.Second),
		Cooldown:          envDuration("ROUND_COOLDOWN", 15*time.Second),
		Stagger:           envDuration("ROOM_STAGGER", 12*time.Second),
		CardPrice:         envInt64("CARD_PRICE", 1000),
		MaxCardsPerWallet: envInt("MAX_CARDS_PER_WALLET", 10),

		PerBallInterval: envDuration("PER_BALL_INTERVAL", 2*time.Second),
		LineBonus:       envDuration("LINE_BONUS", 10*time.Second),
		BingoBonus:      envDuration("BINGO_BONUS", 10*time.Second),

		FeeBps:        envInt64("FEE_BPS", 1000),
		ReserveBps:    envInt64("RESERVE_BPS", 1000),
		LinePrizeBps:  envInt64("LINE_PRIZE_BPS", 2500),
		BingoPrizeBps: envInt64("BINGO_PRIZE_BPS", 7500),

		JackpotBallThreshold: envInt("JACKPOT_BALL_THRESHOLD", 40),

		RandomnessTimeout:    envDuration("RANDOMNESS_TIMEOUT", 10*time.Minute),
		SeedPollInterval:     envDuration("SEED_POLL_INTERVAL", 5*time.Second),
		RetryBackoff:         envDuration("RETRY_BACKOFF", 5*time.Second),
		OverloadBackoff:      envDuration("OVERLOAD_BACKOFF", 60*time.Second),
		MaxOutstandingRounds: envInt("MAX_OUTSTANDING_ROUNDS", 3),
	}

	if cfg.Mode != ModeLocal && cfg.Mode != ModeExternal {
		return nil, fmt.Errorf("config: unknown ENGINE_MODE %q", cfg.Mode)
	}
	if cfg.FeeBps+cfg.ReserveBps > 10000 {
		return nil, fmt.Errorf("config: fee and reserve rates exceed 10000 bps")
	}
	if cfg.LinePrizeBps+cfg.BingoPrizeBps > 10000 {
		return nil, fmt.Errorf("config: line and bingo prize rates exceed 10000 bps")
	}
	if cfg.Rooms < 1 {
		return nil, fmt.Errorf("config: ROOMS must be at least 1")
	}
	return cfg, nil
}

// Rates is the prize split view of the config.
func (c *Config) Rates() game.Rates {
	return game.Rates{
		FeeBps:        c.FeeBps,
		ReserveBps:    c.ReserveBps,
		LinePrizeBps:  c.LinePrizeBps,
		BingoPrizeBps: c.BingoPrizeBps,
	}
}

// Timing is the draw animation view of the config.
func (c *Config) Timing() game.Timing {
	return game.Timing{
		PerBall:    c.PerBallInterval,
		LineBonus:  c.LineBonus,
		BingoBonus: c.BingoBonus,
	}
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
		log.Printf("[WARN] invalid %s=%q, using default %d", key, v, def)
	}
	return def
}

func envInt64(key string, def int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
		log.Printf("[WARN] invalid %s=%q, using default %d", key, v, def)
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
		log.Printf("[WARN] invalid %s=%q, using default %s", key, v, def)
	}
	return def
}
