package game

import (
	"crypto/rand"
	"math/big"
)

// CardSize is the number of cells on a card: 3 rows of 5 columns.
const CardSize = 15

// rangeSize is the width of each column range (1-15, 16-30, ...).
const rangeSize = 15

// picksPerRange is how many values each column contributes.
const picksPerRange = 3

// GenerateCard produces a 15-number card: 3 distinct values from each of
// the 5 column ranges, interleaved row-major so that row r, column c holds
// the r-th pick of range c. Uses the OS random source; card generation
// shapes only what a player owns, not the draw outcome, so it does not
// need to be reproducible.
func GenerateCard() [CardSize]int {
	var card [CardSize]int
	for col := 0; col < 5; col++ {
		low := col*rangeSize + 1
		picks := pickDistinct(low, rangeSize, picksPerRange)
		for row := 0; row < picksPerRange; row++ {
			card[row*5+col] = picks[row]
		}
	}
	return card
}

// pickDistinct draws n distinct values from [low, low+size) with a
// partial Fisher-Yates restricted to the last n slots.
func pickDistinct(low, size, n int) []int {
	vals := make([]int, size)
	for i := range vals {
		vals[i] = low + i
	}
	for i := size - 1; i >= size-n; i-- {
		j := randInt(i + 1)
		vals[i], vals[j] = vals[j], vals[i]
	}
	return vals[size-n:]
}

func randInt(n int) int {
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		// The OS random source failing is unrecoverable for a game
		// whose fairness depends on it.
		panic(err)
	}
	return int(v.Int64())
}
