package services

import (
	"context"
	"time"

	"chance-winner-hub/internal/models"
)

// TransactionStore is the append-mostly ledger. Only status and details are
// updated after insert.
type TransactionStore interface {
	InsertTransaction(ctx context.Context, tx *models.Transaction) error
	QueryTransactions(ctx context.Context, filter models.TransactionFilter) ([]models.Transaction, error)
	GetTransaction(ctx context.Context, id string) (*models.Transaction, error)
	GetTransactionByReference(ctx context.Context, ref string) (*models.Transaction, error)
	UpdateTransactionStatus(ctx context.Context, id string, status models.TransactionStatus, details models.Details) (*models.Transaction, error)
}

type AccountStore interface {
	GetAccount(ctx context.Context, userID string) (*models.Account, error)
	CreateAccount(ctx context.Context, acct *models.Account) error
	UpdateAccountType(ctx context.Context, userID string, accountType models.AccountType) error
	SetReferredBy(ctx context.Context, userID, referrerID string) error
	FindAccountByReferralCode(ctx context.Context, code string) (*models.Account, error)
}

type RewardStore interface {
	CreateReward(ctx context.Context, reward *models.Reward) error
	GetReward(ctx context.Context, id string) (*models.Reward, error)
	ListRewards(ctx context.Context, userID string) ([]models.Reward, error)
	ClaimReward(ctx context.Context, id string, deposit *models.Transaction) error

	CreateReferral(ctx context.Context, ref *models.Referral) error
	GetReferralByReferred(ctx context.Context, referredID string) (*models.Referral, error)
	CompleteReferral(ctx context.Context, id string, at time.Time) (bool, error)
	CountCompletedReferrals(ctx context.Context, referrerID string) (int64, error)
}

type DrawStore interface {
	CreateDraw(ctx context.Context, draw *models.Draw) error
	GetDraw(ctx context.Context, id string) (*models.Draw, error)
	ListDraws(ctx context.Context, status models.DrawStatus) ([]models.Draw, error)
	CreateTicket(ctx context.Context, ticket *models.Ticket) error
	ListTickets(ctx context.Context, drawID string) ([]models.Ticket, error)
	MarkDrawn(ctx context.Context, id, winningTicketID string, at time.Time) error
}

// Store is everything the services persist.
type Store interface {
	TransactionStore
	AccountStore
	RewardStore
	DrawStore
	Ping(ctx context.Context) error
	Close() error
}
