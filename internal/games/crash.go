package games

import (
	"sync"

	"github.com/shopspring/decimal"
)

type crashBucket struct {
	cumulative float64
	low, high  float64
}

// Crash points are drawn from four weighted ranges: 10%, 40%, 30%, 20%.
var crashBuckets = []crashBucket{
	{0.10, 1.01, 1.20},
	{0.50, 1.20, 2.00},
	{0.80, 2.00, 5.00},
	{1.00, 5.00, 15.00},
}

var (
	crashTickStep = decimal.RequireFromString("0.01")
	one           = decimal.NewFromInt(1)
)

// DrawCrashPoint picks the hidden crash point, truncated to two decimals so
// it always stays inside its range.
func DrawCrashPoint(r Rand) decimal.Decimal {
	u := r.Float64()

	bucket := crashBuckets[len(crashBuckets)-1]
	for _, b := range crashBuckets {
		if u < b.cumulative {
			bucket = b
			break
		}
	}

	v := bucket.low + r.Float64()*(bucket.high-bucket.low)
	return decimal.NewFromFloat(v).Truncate(2)
}

// VerifyCrashPoint replays the crash point for a revealed server seed.
func VerifyCrashPoint(serverSeed, clientSeed string, nonce int64) decimal.Decimal {
	return DrawCrashPoint(NewFairSource(serverSeed, clientSeed, nonce))
}

type CrashState string

const (
	CrashStateRunning   CrashState = "running"
	CrashStateCashedOut CrashState = "cashed_out"
	CrashStateCrashed   CrashState = "crashed"
	CrashStateForfeited CrashState = "forfeited"
)

// CrashRound is the multiplier state machine of one crash wager. The
// multiplier starts at 1.00 and grows by 0.01 per tick; only the first of
// cash-out, crash or forfeit takes effect.
type CrashRound struct {
	mu         sync.Mutex
	stake      decimal.Decimal
	crashPoint decimal.Decimal
	multiplier decimal.Decimal
	state      CrashState
}

func NewCrashRound(stake, crashPoint decimal.Decimal) *CrashRound {
	return &CrashRound{
		stake:      stake,
		crashPoint: crashPoint,
		multiplier: one,
		state:      CrashStateRunning,
	}
}

// Tick advances the multiplier. It reports true exactly once, on the tick
// that reaches the crash point.
func (r *CrashRound) Tick() (decimal.Decimal, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != CrashStateRunning {
		return r.multiplier, false
	}

	r.multiplier = r.multiplier.Add(crashTickStep)
	if r.multiplier.GreaterThanOrEqual(r.crashPoint) {
		r.multiplier = r.crashPoint
		r.state = CrashStateCrashed
		return r.multiplier, true
	}

	return r.multiplier, false
}

// Cashout locks in stake × current multiplier. Any signal after the first
// one, or after the crash, returns ErrRoundClosed.
func (r *CrashRound) Cashout() (payout, multiplier decimal.Decimal, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != CrashStateRunning {
		return decimal.Zero, r.multiplier, ErrRoundClosed
	}

	r.state = CrashStateCashedOut
	return r.stake.Mul(r.multiplier).Round(2), r.multiplier, nil
}

// Forfeit closes a running round without payout.
func (r *CrashRound) Forfeit() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != CrashStateRunning {
		return false
	}
	r.state = CrashStateForfeited
	return true
}

func (r *CrashRound) State() CrashState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *CrashRound) Multiplier() decimal.Decimal {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.multiplier
}

func (r *CrashRound) CrashPoint() decimal.Decimal {
	return r.crashPoint
}
