package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type TransactionType string

const (
	TransactionTypeDeposit    TransactionType = "deposit"
	TransactionTypePurchase   TransactionType = "purchase"
	TransactionTypeWinnings   TransactionType = "winnings"
	TransactionTypeWithdrawal TransactionType = "withdrawal"
)

type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "pending"
	TransactionStatusCompleted TransactionStatus = "completed"
	TransactionStatusRejected  TransactionStatus = "rejected"
	TransactionStatusFailed    TransactionStatus = "failed"
)

// Credit reports whether the type adds to the balance. Purchases and
// withdrawals subtract.
func (t TransactionType) Credit() bool {
	return t == TransactionTypeDeposit || t == TransactionTypeWinnings
}

func (t TransactionType) Valid() bool {
	switch t {
	case TransactionTypeDeposit, TransactionTypePurchase, TransactionTypeWinnings, TransactionTypeWithdrawal:
		return true
	}
	return false
}

func (s TransactionStatus) Terminal() bool {
	return s != TransactionStatusPending
}

func (s TransactionStatus) Valid() bool {
	switch s {
	case TransactionStatusPending, TransactionStatusCompleted, TransactionStatusRejected, TransactionStatusFailed:
		return true
	}
	return false
}

// Details carries method-specific payload: wallet address, phone number,
// rejection reason and so on.
type Details map[string]string

// Transaction is one ledger entry. Amount is always positive; the sign is
// implied by Type.
type Transaction struct {
	ID        string            `json:"id" gorm:"primaryKey;size:64"`
	UserID    string            `json:"user_id" gorm:"size:64;not null;index:idx_tx_partition"`
	Amount    decimal.Decimal   `json:"amount" gorm:"type:numeric(20,2);not null"`
	Type      TransactionType   `json:"type" gorm:"size:16;not null"`
	Status    TransactionStatus `json:"status" gorm:"size:16;not null;index"`
	IsDemo    bool              `json:"is_demo" gorm:"not null;index:idx_tx_partition"`
	Reference *string           `json:"reference,omitempty" gorm:"size:128;uniqueIndex"`
	Details   Details           `json:"details,omitempty" gorm:"serializer:json"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

func (tx *Transaction) Detail(key string) string {
	if tx.Details == nil {
		return ""
	}
	return tx.Details[key]
}

// TransactionFilter selects transactions. Zero-valued fields do not filter.
type TransactionFilter struct {
	UserID string
	IsDemo *bool
	Type   TransactionType
	Status TransactionStatus
	Limit  int
}

func Partition(userID string, isDemo bool) TransactionFilter {
	return TransactionFilter{UserID: userID, IsDemo: &isDemo}
}
