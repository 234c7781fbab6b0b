package games

import "github.com/shopspring/decimal"

var WheelSegments = []decimal.Decimal{
	decimal.RequireFromString("0.2"),
	decimal.RequireFromString("0.5"),
	decimal.RequireFromString("1"),
	decimal.RequireFromString("1.5"),
	decimal.RequireFromString("2"),
	decimal.RequireFromString("3"),
	decimal.RequireFromString("5"),
	decimal.RequireFromString("10"),
}

type WheelOutcome struct {
	Segment    int             `json:"segment"`
	Multiplier decimal.Decimal `json:"multiplier"`
}

func SpinWheel(r Rand) *WheelOutcome {
	i := r.Intn(len(WheelSegments))
	return &WheelOutcome{Segment: i, Multiplier: WheelSegments[i]}
}

// Payout can be below the stake; segments under 1x are partial losses.
func (o *WheelOutcome) Payout(stake decimal.Decimal) decimal.Decimal {
	return stake.Mul(o.Multiplier).Round(2)
}
