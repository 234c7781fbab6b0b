package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type GameType string

const (
	GameTypeCrash   GameType = "crash"
	GameTypeDice    GameType = "dice"
	GameTypeScratch GameType = "scratch"
	GameTypeWheel   GameType = "wheel"
	GameTypeLottery GameType = "lottery"
)

type RoundStatus string

const (
	RoundStatusActive    RoundStatus = "active"
	RoundStatusWon       RoundStatus = "won"
	RoundStatusLost      RoundStatus = "lost"
	RoundStatusCashedOut RoundStatus = "cashed_out"
	RoundStatusCrashed   RoundStatus = "crashed"
	RoundStatusAbandoned RoundStatus = "abandoned"
	RoundStatusFailed    RoundStatus = "failed"
)

// Round is one wager. It only lives in the round history; the ledger keeps
// the debit and credit transactions.
type Round struct {
	ID         string          `json:"id"`
	UserID     string          `json:"user_id"`
	Game       GameType        `json:"game"`
	IsDemo     bool            `json:"is_demo"`
	Stake      decimal.Decimal `json:"stake"`
	Multiplier decimal.Decimal `json:"multiplier"`
	Payout     decimal.Decimal `json:"payout"`
	CrashPoint decimal.Decimal `json:"crash_point,omitempty"`
	Outcome    map[string]any  `json:"outcome,omitempty"`
	Status     RoundStatus     `json:"status"`
	DebitID    string          `json:"debit_id"`
	CreditID   string          `json:"credit_id,omitempty"`

	ClientSeed     string `json:"client_seed,omitempty"`
	ServerSeedHash string `json:"server_seed_hash,omitempty"`
	Nonce          int64  `json:"nonce,omitempty"`

	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
}

func (r *Round) Finished() bool {
	return r.Status != RoundStatusActive
}
