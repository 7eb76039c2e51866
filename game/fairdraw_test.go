package game

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDrawBallsIsPermutation(t *testing.T) {
	for i := 0; i < 50; i++ {
		seed := fmt.Sprintf("seed-%d", i)
		balls := DrawBalls(seed)
		require.Len(t, balls, TotalBalls)

		seen := make(map[int]bool, TotalBalls)
		for _, b := range balls {
			require.GreaterOrEqual(t, b, 1)
			require.LessOrEqual(t, b, TotalBalls)
			require.False(t, seen[b], "ball %d drawn twice for seed %q", b, seed)
			seen[b] = true
		}
	}
}

func TestDrawBallsIsReproducible(t *testing.T) {
	seed := "b1946ac92492d2347c6235b4d2611184"
	first := DrawBalls(seed)
	for i := 0; i < 5; i++ {
		require.Equal(t, first, DrawBalls(seed))
	}
}

func TestDrawBallsDistinctSeedsDiffer(t *testing.T) {
	a := DrawBalls("seed-a")
	b := DrawBalls("seed-b")
	assert.NotEqual(t, a, b)
}

func TestCheckCardLineBeforeBingo(t *testing.T) {
	card := []int{
		1, 16, 31, 46, 61,
		2, 17, 32, 47, 62,
		3, 18, 33, 48, 63,
	}
	for i := 0; i < 20; i++ {
		balls := DrawBalls(fmt.Sprintf("order-%d", i))
		line, bingo := CheckCard(card, balls)
		require.Greater(t, line, 0)
		require.Greater(t, bingo, 0)
		assert.GreaterOrEqual(t, bingo, line)
	}
}

func TestCheckCardExactPositions(t *testing.T) {
	card := []int{
		1, 16, 31, 46, 61,
		2, 17, 32, 47, 62,
		3, 18, 33, 48, 63,
	}
	// First row completes at ball 5, full card at ball 15.
	balls := []int{1, 16, 31, 46, 61, 2, 17, 32, 47, 62, 3, 18, 33, 48, 63}
	rest := make(map[int]bool)
	for _, b := range balls {
		rest[b] = true
	}
	for n := 1; n <= TotalBalls; n++ {
		if !rest[n] {
			balls = append(balls, n)
		}
	}

	line, bingo := CheckCard(card, balls)
	assert.Equal(t, 5, line)
	assert.Equal(t, 15, bingo)
}

func TestCheckCardNoHitsOnTruncatedDraw(t *testing.T) {
	card := []int{
		1, 16, 31, 46, 61,
		2, 17, 32, 47, 62,
		3, 18, 33, 48, 63,
	}
	line, bingo := CheckCard(card, []int{4, 19, 34})
	assert.Zero(t, line)
	assert.Zero(t, bingo)
}

func TestDetectWinnersTieBreak(t *testing.T) {
	// Two cards share their first row, so they complete a line on the
	// identical ball; the third card cannot win.
	shared := []int{
		1, 16, 31, 46, 61,
		2, 17, 32, 47, 62,
		3, 18, 33, 48, 63,
	}
	sharedB := []int{
		1, 16, 31, 46, 61,
		4, 19, 34, 49, 64,
		5, 20, 35, 50, 65,
	}
	loser := []int{
		11, 26, 41, 56, 71,
		12, 27, 42, 57, 72,
		13, 28, 43, 58, 73,
	}

	// Draw the shared row first, then everything else ascending.
	balls := []int{1, 16, 31, 46, 61}
	have := map[int]bool{1: true, 16: true, 31: true, 46: true, 61: true}
	for n := 1; n <= TotalBalls; n++ {
		if !have[n] {
			balls = append(balls, n)
		}
	}

	w := DetectWinners([]CardNumbers{
		{CardID: 9, Numbers: shared},
		{CardID: 2, Numbers: sharedB},
		{CardID: 5, Numbers: loser},
	}, balls)

	assert.Equal(t, 5, w.LineWinnerBall)
	assert.Equal(t, []uint{2, 9}, w.LineWinners, "co-winners sorted ascending by card id")
	assert.NotContains(t, w.LineWinners, uint(5))
	assert.Greater(t, w.BingoWinnerBall, 0)
}

func TestDetectWinnersEmpty(t *testing.T) {
	w := DetectWinners(nil, DrawBalls("any"))
	assert.Empty(t, w.LineWinners)
	assert.Empty(t, w.BingoWinners)
	assert.Zero(t, w.LineWinnerBall)
	assert.Zero(t, w.BingoWinnerBall)
}

func TestDetectWinnersAlwaysCompleteWithFullDraw(t *testing.T) {
	cards := make([]CardNumbers, 10)
	for i := range cards {
		numbers := GenerateCard()
		cards[i] = CardNumbers{CardID: uint(i + 1), Numbers: numbers[:]}
	}
	w := DetectWinners(cards, DrawBalls("full-draw"))
	require.NotEmpty(t, w.LineWinners)
	require.NotEmpty(t, w.BingoWinners)
	for _, r := range w.Cards {
		assert.Greater(t, r.LineHitBall, 0)
		assert.Greater(t, r.BingoHitBall, 0)
		assert.GreaterOrEqual(t, r.BingoHitBall, r.LineHitBall)
	}
}
