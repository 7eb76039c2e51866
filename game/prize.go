package game

import "time"

// bpsDenominator is the basis-point scale all rates are expressed in.
const bpsDenominator = 10000

// Rates holds the basis-point split of a round's revenue. FeeBps and
// ReserveBps come out of revenue; LinePrizeBps and BingoPrizeBps are
// shares of the remaining winner pot.
type Rates struct {
	FeeBps        int64
	ReserveBps    int64
	LinePrizeBps  int64
	BingoPrizeBps int64
}

// Breakdown is the economic outcome of one round. Pot portions that are
// not awarded (no winner of that kind) stay with the house.
type Breakdown struct {
	Fee        int64
	Reserve    int64
	Pot        int64
	LinePrize  int64
	BingoPrize int64
}

// SplitRevenue computes the integer basis-point split. fee+reserve+pot
// always equals revenue exactly; prizes are zero when the corresponding
// milestone has no winner.
func SplitRevenue(revenue int64, rates Rates, hasLineWinner, hasBingoWinner bool) Breakdown {
	b := Breakdown{
		Fee:     revenue * rates.FeeBps / bpsDenominator,
		Reserve: revenue * rates.ReserveBps / bpsDenominator,
	}
	b.Pot = revenue - b.Fee - b.Reserve
	if hasLineWinner {
		b.LinePrize = b.Pot * rates.LinePrizeBps / bpsDenominator
	}
	if hasBingoWinner {
		b.BingoPrize = b.Pot * rates.BingoPrizeBps / bpsDenominator
	}
	return b
}

// Timing configures the draw animation pacing.
type Timing struct {
	PerBall    time.Duration
	LineBonus  time.Duration
	BingoBonus time.Duration
}

// DrawDuration is the wall-clock length of the draw animation: one
// interval per ball shown, plus a pause per milestone reached. When a
// bingo winner exists the animation stops at the winning ball, otherwise
// all 75 balls are shown. A round with no recorded hits (not producible
// by the draw, but representable) falls into the all-75 default, which is
// the longest wait and therefore never finalizes early.
func DrawDuration(lineBall, bingoBall int, t Timing) time.Duration {
	ballsToDraw := TotalBalls
	if bingoBall > 0 {
		ballsToDraw = bingoBall
	}
	d := time.Duration(ballsToDraw) * t.PerBall
	if lineBall > 0 {
		d += t.LineBonus
	}
	if bingoBall > 0 {
		d += t.BingoBonus
	}
	return d
}
