package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type AccountType string

const (
	AccountTypeReal           AccountType = "real"
	AccountTypeDemo           AccountType = "demo"
	AccountTypeInfluencer     AccountType = "influencer"
	AccountTypeDemoInfluencer AccountType = "demo_influencer"
)

func (t AccountType) Valid() bool {
	switch t {
	case AccountTypeReal, AccountTypeDemo, AccountTypeInfluencer, AccountTypeDemoInfluencer:
		return true
	}
	return false
}

type Account struct {
	UserID       string      `json:"user_id" gorm:"primaryKey;size:64"`
	AccountType  AccountType `json:"account_type" gorm:"size:24;not null"`
	ReferralCode string      `json:"referral_code" gorm:"size:16;uniqueIndex"`
	ReferredBy   string      `json:"referred_by,omitempty" gorm:"size:64"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
}

// IsDemo selects the transaction partition every balance read uses.
func (a *Account) IsDemo() bool {
	return a.AccountType == AccountTypeDemo || a.AccountType == AccountTypeDemoInfluencer
}

func (a *Account) IsInfluencer() bool {
	return a.AccountType == AccountTypeInfluencer || a.AccountType == AccountTypeDemoInfluencer
}

// ModeType returns the account type for the requested mode, keeping the
// influencer flag.
func (a *Account) ModeType(demo bool) AccountType {
	switch {
	case demo && a.IsInfluencer():
		return AccountTypeDemoInfluencer
	case demo:
		return AccountTypeDemo
	case a.IsInfluencer():
		return AccountTypeInfluencer
	default:
		return AccountTypeReal
	}
}

type BalanceResponse struct {
	UserID      string          `json:"user_id"`
	AccountType AccountType     `json:"account_type"`
	IsDemo      bool            `json:"is_demo"`
	Balance     decimal.Decimal `json:"balance"`
}
