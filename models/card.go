package models

import (
	"time"

	"gorm.io/datatypes"
)

// Card is a player-owned 15-number ticket for one round. Numbers are
// assigned at purchase and never change; only the result fields are
// written at resolution.
type Card struct {
	ID           uint           `gorm:"primaryKey" json:"id"`
	RoundID      uint           `gorm:"index;not null" json:"round_id"`
	OwnerAddress string         `gorm:"index;not null" json:"owner_address"`
	Numbers      datatypes.JSON `json:"numbers"` // 15 ints, 3 rows of 5

	LineHitBall   *int `json:"line_hit_ball"`
	BingoHitBall  *int `json:"bingo_hit_ball"`
	IsLineWinner  bool `gorm:"default:false" json:"is_line_winner"`
	IsBingoWinner bool `gorm:"default:false" json:"is_bingo_winner"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NumberList decodes the 15 card numbers.
func (c *Card) NumberList() []int {
	return intsFromJSON(c.Numbers)
}
