package models

import "github.com/shopspring/decimal"

type VerificationData struct {
	ClientSeed   string `json:"client_seed"`
	ServerHash   string `json:"server_hash"`
	CurrentNonce int64  `json:"current_nonce"`
}

type VerifyRequest struct {
	ClientSeed string `json:"client_seed" binding:"required"`
	ServerSeed string `json:"server_seed" binding:"required"`
	Nonce      int64  `json:"nonce"`
}

// StakeRequest is the common part of every wager. RoundID is an optional
// client idempotency key; resubmitting it never charges twice.
type StakeRequest struct {
	Stake   string `json:"stake"`
	RoundID string `json:"round_id"`
	Demo    *bool  `json:"demo,omitempty"`
}

type DicePlayRequest struct {
	StakeRequest
	Target    int    `json:"target" binding:"required,min=1,max=6"`
	Direction string `json:"direction" binding:"required,oneof=higher lower"`
}

type ScratchPlayRequest struct {
	RoundID string `json:"round_id"`
	Demo    *bool  `json:"demo,omitempty"`
}

type WheelSpinRequest struct {
	StakeRequest
}

type CrashStartRequest struct {
	StakeRequest
}

type CrashRoundRequest struct {
	RoundID string `json:"round_id" binding:"required"`
}

type BetResult struct {
	Round   *Round          `json:"round"`
	Debit   *Transaction    `json:"debit"`
	Credit  *Transaction    `json:"credit,omitempty"`
	Balance decimal.Decimal `json:"balance"`
}
