package models

import "time"

// User holds the local-mode wallet balance, keyed by wallet address.
// In external mode balances live in the settlement contract and these
// rows are not touched.
type User struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	WalletAddress string    `gorm:"uniqueIndex;not null" json:"wallet_address"`
	Balance       int64     `gorm:"default:0" json:"balance"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}
