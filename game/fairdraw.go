package game

import (
	"crypto/sha256"
	"encoding/binary"
	"sort"
	"strconv"
)

// TotalBalls is the size of the ball pool.
const TotalBalls = 75

// DrawBalls derives the full 75-ball draw order from a seed with a seeded
// Fisher-Yates shuffle. Step i swaps position i with position i+offset,
// where offset = H(seed ":" i) mod (75-i) and H is the first 8 bytes of
// SHA-256, big-endian. Anyone holding the published seed can re-derive
// the exact same order, which is the trust anchor of the game.
func DrawBalls(seed string) []int {
	balls := make([]int, TotalBalls)
	for i := range balls {
		balls[i] = i + 1
	}
	for i := 0; i < TotalBalls-1; i++ {
		offset := int(hashUint64(seed, i) % uint64(TotalBalls-i))
		balls[i], balls[i+offset] = balls[i+offset], balls[i]
	}
	return balls
}

func hashUint64(seed string, nonce int) uint64 {
	sum := sha256.Sum256([]byte(seed + ":" + strconv.Itoa(nonce)))
	return binary.BigEndian.Uint64(sum[:8])
}

// CheckCard walks the draw order against a 15-number card and returns the
// 1-based ball position at which the card first completes one of its
// three rows (lineHit) and at which all 15 numbers are marked (bingoHit).
// Either is 0 if the walk ends before the milestone. Evaluation stops as
// soon as the card is full.
func CheckCard(numbers []int, balls []int) (lineHit, bingoHit int) {
	pos := make(map[int]int, len(numbers))
	for i, n := range numbers {
		pos[n] = i
	}
	var marked [CardSize]bool
	markedCount := 0

	for i, ball := range balls {
		idx, ok := pos[ball]
		if !ok {
			continue
		}
		if marked[idx] {
			continue
		}
		marked[idx] = true
		markedCount++

		if lineHit == 0 {
			row := idx / 5 * 5
			if marked[row] && marked[row+1] && marked[row+2] && marked[row+3] && marked[row+4] {
				lineHit = i + 1
			}
		}
		if markedCount == CardSize {
			bingoHit = i + 1
			return lineHit, bingoHit
		}
	}
	return lineHit, bingoHit
}

// CardNumbers pairs a card id with its 15 numbers for winner detection.
type CardNumbers struct {
	CardID  uint
	Numbers []int
}

// CardResult is the per-card outcome of a draw.
type CardResult struct {
	CardID       uint
	LineHitBall  int
	BingoHitBall int
}

// Winners is the round outcome: every card whose hit ball equals the
// minimum across the round is a co-winner. Ball 0 means no card ever
// completed the milestone.
type Winners struct {
	LineWinners     []uint
	LineWinnerBall  int
	BingoWinners    []uint
	BingoWinnerBall int
	Cards           []CardResult
}

// DetectWinners evaluates every card against the draw order. Ties are not
// broken for prize purposes; co-winner lists are sorted ascending by card
// id only to make the output deterministic.
func DetectWinners(cards []CardNumbers, balls []int) Winners {
	w := Winners{Cards: make([]CardResult, 0, len(cards))}
	for _, c := range cards {
		line, bingo := CheckCard(c.Numbers, balls)
		w.Cards = append(w.Cards, CardResult{CardID: c.CardID, LineHitBall: line, BingoHitBall: bingo})

		if line > 0 && (w.LineWinnerBall == 0 || line < w.LineWinnerBall) {
			w.LineWinnerBall = line
		}
		if bingo > 0 && (w.BingoWinnerBall == 0 || bingo < w.BingoWinnerBall) {
			w.BingoWinnerBall = bingo
		}
	}
	for _, r := range w.Cards {
		if w.LineWinnerBall > 0 && r.LineHitBall == w.LineWinnerBall {
			w.LineWinners = append(w.LineWinners, r.CardID)
		}
		if w.BingoWinnerBall > 0 && r.BingoHitBall == w.BingoWinnerBall {
			w.BingoWinners = append(w.BingoWinners, r.CardID)
		}
	}
	sort.Slice(w.LineWinners, func(i, j int) bool { return w.LineWinners[i] < w.LineWinners[j] })
	sort.Slice(w.BingoWinners, func(i, j int) bool { return w.BingoWinners[i] < w.BingoWinners[j] })
	return w
}
