package models

type EventType string

const (
	EventTransactionUpdate EventType = "TRANSACTION_UPDATE"
	EventBalanceUpdate     EventType = "BALANCE_UPDATE"
	EventRoundTick         EventType = "ROUND_TICK"
	EventRoundCrash        EventType = "ROUND_CRASH"
)

// Event is pushed to a player's realtime feed.
type Event struct {
	Type        EventType        `json:"type"`
	UserID      string           `json:"user_id"`
	Transaction *Transaction     `json:"transaction,omitempty"`
	Balance     *BalanceResponse `json:"balance,omitempty"`
	RoundID     string           `json:"round_id,omitempty"`
	Multiplier  float64          `json:"multiplier,omitempty"`
}
