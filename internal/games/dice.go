package games

import (
	"fmt"

	"github.com/shopspring/decimal"
)

type Direction string

const (
	DirectionHigher Direction = "higher"
	DirectionLower  Direction = "lower"
)

var HouseEdge = decimal.RequireFromString("0.05")

type DiceOutcome struct {
	Roll        int             `json:"roll"`
	Target      int             `json:"target"`
	Direction   Direction       `json:"direction"`
	Win         bool            `json:"win"`
	Probability float64         `json:"probability"`
	Multiplier  decimal.Decimal `json:"multiplier"`
}

func winningFaces(target int, dir Direction) (int, error) {
	if target < 1 || target > 6 {
		return 0, fmt.Errorf("%w: target %d outside 1-6", ErrInvalidBet, target)
	}

	var faces int
	switch dir {
	case DirectionHigher:
		faces = 6 - target
	case DirectionLower:
		faces = target - 1
	default:
		return 0, fmt.Errorf("%w: unknown direction %q", ErrInvalidBet, dir)
	}

	if faces == 0 {
		return 0, fmt.Errorf("%w: %s than %d cannot win", ErrInvalidBet, dir, target)
	}
	return faces, nil
}

// DiceOdds returns the win probability and the house-edged multiplier
// (1/p)·(1-edge) for a target and direction.
func DiceOdds(target int, dir Direction) (float64, decimal.Decimal, error) {
	faces, err := winningFaces(target, dir)
	if err != nil {
		return 0, decimal.Zero, err
	}

	probability := float64(faces) / 6
	multiplier := decimal.NewFromInt(6).
		Div(decimal.NewFromInt(int64(faces))).
		Mul(one.Sub(HouseEdge))

	return probability, multiplier, nil
}

// RollDice rolls a fair die. A roll equal to the target always loses.
func RollDice(r Rand, target int, dir Direction) (*DiceOutcome, error) {
	probability, multiplier, err := DiceOdds(target, dir)
	if err != nil {
		return nil, err
	}

	roll := r.Intn(6) + 1

	win := false
	switch dir {
	case DirectionHigher:
		win = roll > target
	case DirectionLower:
		win = roll < target
	}

	return &DiceOutcome{
		Roll:        roll,
		Target:      target,
		Direction:   dir,
		Win:         win,
		Probability: probability,
		Multiplier:  multiplier,
	}, nil
}

func (o *DiceOutcome) Payout(stake decimal.Decimal) decimal.Decimal {
	if !o.Win {
		return decimal.Zero
	}
	return stake.Mul(o.Multiplier).Round(2)
}
