package games

import "github.com/shopspring/decimal"

type Symbol struct {
	Name  string          `json:"name"`
	Value decimal.Decimal `json:"value"`
}

var ScratchSymbols = []Symbol{
	{"seven", decimal.NewFromInt(20)},
	{"diamond", decimal.NewFromInt(10)},
	{"bell", decimal.NewFromInt(5)},
	{"cherry", decimal.NewFromInt(3)},
	{"lemon", decimal.NewFromInt(1)},
	{"blank", decimal.Zero},
	{"skull", decimal.Zero},
}

// ForcedWinProbability is the share of cards whose first row is replaced by
// three identical paying symbols.
const ForcedWinProbability = 0.20

// Cells are indexed row-major: 0 1 2 / 3 4 5 / 6 7 8.
var scratchLines = [][3]int{
	{0, 1, 2}, {3, 4, 5}, {6, 7, 8},
	{0, 3, 6}, {1, 4, 7}, {2, 5, 8},
	{0, 4, 8}, {2, 4, 6},
}

type ScratchCard struct {
	Grid        [9]Symbol       `json:"grid"`
	Forced      bool            `json:"forced"`
	Win         bool            `json:"win"`
	WinningLine []int           `json:"winning_line,omitempty"`
	Symbol      *Symbol         `json:"symbol,omitempty"`
	Payout      decimal.Decimal `json:"payout"`
}

func payingSymbols() []Symbol {
	var out []Symbol
	for _, s := range ScratchSymbols {
		if s.Value.IsPositive() {
			out = append(out, s)
		}
	}
	return out
}

// NewScratchCard fills the grid cell by cell, then rolls the forced-win
// chance, then evaluates the lines.
func NewScratchCard(r Rand) *ScratchCard {
	card := &ScratchCard{}
	for i := range card.Grid {
		card.Grid[i] = ScratchSymbols[r.Intn(len(ScratchSymbols))]
	}

	if r.Float64() < ForcedWinProbability {
		paying := payingSymbols()
		s := paying[r.Intn(len(paying))]
		card.Grid[0], card.Grid[1], card.Grid[2] = s, s, s
		card.Forced = true
	}

	card.Evaluate()
	return card
}

// Evaluate finds the first line of three identical paying symbols; the
// payout is that symbol's value times three.
func (c *ScratchCard) Evaluate() {
	c.Win = false
	c.WinningLine = nil
	c.Symbol = nil
	c.Payout = decimal.Zero

	for _, line := range scratchLines {
		a, b, d := c.Grid[line[0]], c.Grid[line[1]], c.Grid[line[2]]
		if a.Name != b.Name || a.Name != d.Name || !a.Value.IsPositive() {
			continue
		}

		s := a
		c.Win = true
		c.WinningLine = []int{line[0], line[1], line[2]}
		c.Symbol = &s
		c.Payout = s.Value.Mul(decimal.NewFromInt(3))
		return
	}
}
