package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type RewardType string

const (
	RewardTypeSignupBonus   RewardType = "signup_bonus"
	RewardTypeDepositBonus  RewardType = "deposit_bonus"
	RewardTypeReferralBonus RewardType = "referral_bonus"
	RewardTypeFreeSpins     RewardType = "free_spins"
	RewardTypeCashback      RewardType = "cashback"
)

func (t RewardType) Valid() bool {
	switch t {
	case RewardTypeSignupBonus, RewardTypeDepositBonus, RewardTypeReferralBonus, RewardTypeFreeSpins, RewardTypeCashback:
		return true
	}
	return false
}

type Reward struct {
	ID         string          `json:"id" gorm:"primaryKey;size:64"`
	UserID     string          `json:"user_id" gorm:"size:64;not null;index"`
	RewardType RewardType      `json:"reward_type" gorm:"size:24;not null"`
	Amount     decimal.Decimal `json:"amount" gorm:"type:numeric(20,2);not null"`
	IsClaimed  bool            `json:"is_claimed" gorm:"not null;default:false"`
	IsExpired  bool            `json:"is_expired" gorm:"not null;default:false"`
	IsDemo     bool            `json:"is_demo" gorm:"not null;default:false"`
	ExpiresAt  *time.Time      `json:"expires_at,omitempty"`
	ClaimedAt  *time.Time      `json:"claimed_at,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

// Expired treats a passed ExpiresAt the same as the stored flag.
func (r *Reward) Expired(now time.Time) bool {
	return r.IsExpired || (r.ExpiresAt != nil && now.After(*r.ExpiresAt))
}

type ReferralStatus string

const (
	ReferralStatusPending   ReferralStatus = "pending"
	ReferralStatusCompleted ReferralStatus = "completed"
)

type Referral struct {
	ID            string         `json:"id" gorm:"primaryKey;size:64"`
	ReferrerID    string         `json:"referrer_id" gorm:"size:64;not null;index"`
	ReferredID    string         `json:"referred_id" gorm:"size:64;not null;uniqueIndex"`
	Status        ReferralStatus `json:"status" gorm:"size:16;not null"`
	RewardClaimed bool           `json:"reward_claimed" gorm:"not null;default:false"`
	CreatedAt     time.Time      `json:"created_at"`
	CompletedAt   *time.Time     `json:"completed_at,omitempty"`
}
