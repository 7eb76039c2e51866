package models

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// RoundStatus is the lifecycle state of a round. Transitions only move
// forward; cancelled is the alternate terminal for zero-card rounds.
type RoundStatus string

const (
	RoundOpen      RoundStatus = "open"
	RoundClosed    RoundStatus = "closed"
	RoundResolving RoundStatus = "resolving"
	RoundDrawing   RoundStatus = "drawing"
	RoundResolved  RoundStatus = "resolved"
	RoundCancelled RoundStatus = "cancelled"
)

// Terminal reports whether no further transition can happen.
func (s RoundStatus) Terminal() bool {
	return s == RoundResolved || s == RoundCancelled
}

type Round struct {
	ID             uint        `gorm:"primaryKey" json:"id"`
	RoomNumber     int         `gorm:"index;not null" json:"room_number"`
	Status         RoundStatus `gorm:"index;type:varchar(16);not null" json:"status"`
	ScheduledClose time.Time   `gorm:"not null" json:"scheduled_close"`
	DrawStartedAt  *time.Time  `json:"draw_started_at"`

	TotalCards   int   `gorm:"default:0" json:"total_cards"`
	TotalRevenue int64 `gorm:"default:0" json:"total_revenue"`

	FeeAmount     int64 `gorm:"default:0" json:"fee_amount"`
	ReserveAmount int64 `gorm:"default:0" json:"reserve_amount"`
	LinePrize     int64 `gorm:"default:0" json:"line_prize"`
	BingoPrize    int64 `gorm:"default:0" json:"bingo_prize"`
	JackpotWon    bool  `gorm:"default:false" json:"jackpot_won"`
	JackpotPaid   int64 `gorm:"default:0" json:"jackpot_paid"`

	RandomSeed      string         `json:"random_seed"`
	DrawnBalls      datatypes.JSON `json:"drawn_balls"`
	LineWinners     datatypes.JSON `json:"line_winners"`
	LineWinnerBall  int            `gorm:"default:0" json:"line_winner_ball"`
	BingoWinners    datatypes.JSON `json:"bingo_winners"`
	BingoWinnerBall int            `gorm:"default:0" json:"bingo_winner_ball"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BallSequence decodes the persisted draw order. Nil until drawing.
func (r *Round) BallSequence() []int {
	return intsFromJSON(r.DrawnBalls)
}

// LineWinnerIDs decodes the line co-winner card ids, ascending.
func (r *Round) LineWinnerIDs() []uint {
	return uintsFromJSON(r.LineWinners)
}

// BingoWinnerIDs decodes the bingo co-winner card ids, ascending.
func (r *Round) BingoWinnerIDs() []uint {
	return uintsFromJSON(r.BingoWinners)
}

// IntsJSON encodes an int slice for a datatypes.JSON column.
func IntsJSON(v []int) datatypes.JSON {
	b, _ := json.Marshal(v)
	return datatypes.JSON(b)
}

// UintsJSON encodes a uint slice for a datatypes.JSON column.
func UintsJSON(v []uint) datatypes.JSON {
	b, _ := json.Marshal(v)
	return datatypes.JSON(b)
}

func intsFromJSON(raw datatypes.JSON) []int {
	if len(raw) == 0 {
		return nil
	}
	var out []int
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	return out
}

func uintsFromJSON(raw datatypes.JSON) []uint {
	if len(raw) == 0 {
		return nil
	}
	var out []uint
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	return out
}
