package models

import "time"

// PoolID is the primary key of the singleton pool row.
const PoolID uint = 1

// Pool is the house aggregate. It is created once at bootstrap and only
// mutated inside the transaction that settles a round, with the row
// locked before any balance is read.
type Pool struct {
	ID             uint  `gorm:"primaryKey" json:"id"`
	JackpotBalance int64 `gorm:"default:0" json:"jackpot_balance"`
	AccruedFees    int64 `gorm:"default:0" json:"accrued_fees"`
	TotalRounds    int64 `gorm:"default:0" json:"total_rounds"`
	TotalCards     int64 `gorm:"default:0" json:"total_cards"`
	TotalRevenue   int64 `gorm:"default:0" json:"total_revenue"`
	TotalPayouts   int64 `gorm:"default:0" json:"total_payouts"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
