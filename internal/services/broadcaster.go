package services

import (
	"context"

	"chance-winner-hub/internal/models"
)

// Notifier is told about every ledger write and status change.
type Notifier interface {
	TransactionChanged(ctx context.Context, tx *models.Transaction)
}

// Broadcaster streams live crash rounds to the player who owns them.
type Broadcaster interface {
	BroadcastRoundTick(userID, roundID string, multiplier float64)
	BroadcastRoundCrash(userID, roundID string, crashPoint float64)
}

// AdminNotifier pushes operator alerts, e.g. a new withdrawal to review.
type AdminNotifier interface {
	NotifyAdmin(text string)
}

// RoundRecorder keeps finished rounds for the history view.
type RoundRecorder interface {
	SaveRound(ctx context.Context, round *models.Round) error
}

type nopNotifier struct{}

func (nopNotifier) TransactionChanged(context.Context, *models.Transaction) {}
func (nopNotifier) BroadcastRoundTick(string, string, float64)              {}
func (nopNotifier) BroadcastRoundCrash(string, string, float64)             {}
func (nopNotifier) NotifyAdmin(string)                                      {}
func (nopNotifier) SaveRound(context.Context, *models.Round) error          { return nil }
