package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"chance-winner-hub/internal/config"
	"chance-winner-hub/internal/models"
	"chance-winner-hub/internal/repository"
)

var hundred = decimal.NewFromInt(100)

type RewardService struct {
	store    RewardStore
	accounts *AccountService
	ledger   *LedgerService
	rules    config.RulesConfig
	log      *logrus.Logger
}

func NewRewardService(store RewardStore, accounts *AccountService, ledger *LedgerService, rules config.RulesConfig, log *logrus.Logger) *RewardService {
	return &RewardService{
		store:    store,
		accounts: accounts,
		ledger:   ledger,
		rules:    rules,
		log:      log,
	}
}

// RegisterReferral links the caller to the owner of a referral code. A user
// can be referred only once.
func (s *RewardService) RegisterReferral(ctx context.Context, referredID, code string) (*models.Referral, error) {
	acct, err := s.accounts.Get(ctx, referredID)
	if err != nil {
		return nil, err
	}

	referrer, err := s.accounts.ByReferralCode(ctx, strings.ToUpper(strings.TrimSpace(code)))
	if err != nil {
		return nil, err
	}
	if referrer.UserID == acct.UserID {
		return nil, fmt.Errorf("%w: cannot refer yourself", ErrInvalidRequest)
	}

	ref := &models.Referral{
		ID:         uuid.NewString(),
		ReferrerID: referrer.UserID,
		ReferredID: acct.UserID,
		Status:     models.ReferralStatusPending,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.store.CreateReferral(ctx, ref); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, fmt.Errorf("%w: already referred", ErrInvalidRequest)
		}
		return nil, storeErr("create referral", err)
	}
	if err := s.accounts.SetReferredBy(ctx, acct.UserID, referrer.UserID); err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"referrer_id": referrer.UserID,
		"referred_id": acct.UserID,
	}).Info("referral registered")
	return ref, nil
}

// OnDepositCompleted pays referral rewards for a confirmed real deposit. The
// first one completes the referral; later ones earn the referrer a share of
// the deposit.
func (s *RewardService) OnDepositCompleted(ctx context.Context, tx *models.Transaction) error {
	if tx.IsDemo || tx.Type != models.TransactionTypeDeposit ||
		tx.Status != models.TransactionStatusCompleted || tx.Detail("source") != "payment" {
		return nil
	}

	ref, err := s.store.GetReferralByReferred(ctx, tx.UserID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil
	}
	if err != nil {
		return storeErr("get referral", err)
	}

	if ref.Status == models.ReferralStatusPending {
		return s.completeReferral(ctx, ref)
	}

	bonus := tx.Amount.Mul(s.rules.ReferralDepositPercent).Div(hundred).Round(2)
	if !bonus.IsPositive() {
		return nil
	}
	_, err = s.Grant(ctx, ref.ReferrerID, models.RewardTypeReferralBonus, bonus, false, nil)
	return err
}

func (s *RewardService) completeReferral(ctx context.Context, ref *models.Referral) error {
	completed, err := s.store.CompleteReferral(ctx, ref.ID, time.Now().UTC())
	if err != nil {
		return storeErr("complete referral", err)
	}
	if !completed {
		return nil
	}

	if _, err := s.Grant(ctx, ref.ReferrerID, models.RewardTypeReferralBonus, s.rules.ReferralBonus, false, nil); err != nil {
		return err
	}

	count, err := s.store.CountCompletedReferrals(ctx, ref.ReferrerID)
	if err != nil {
		return storeErr("count referrals", err)
	}
	if s.rules.InfluencerThreshold <= 0 || count != s.rules.InfluencerThreshold {
		return nil
	}

	if _, err := s.accounts.PromoteInfluencer(ctx, ref.ReferrerID); err != nil {
		return err
	}
	if s.rules.InfluencerBonus.IsPositive() {
		if _, err := s.Grant(ctx, ref.ReferrerID, models.RewardTypeDepositBonus, s.rules.InfluencerBonus, false, nil); err != nil {
			return err
		}
	}

	s.log.WithFields(logrus.Fields{
		"user_id":   ref.ReferrerID,
		"referrals": count,
	}).Info("referrer promoted to influencer")
	return nil
}

// Grant creates an unclaimed reward.
func (s *RewardService) Grant(ctx context.Context, userID string, rewardType models.RewardType, amount decimal.Decimal, isDemo bool, expiresAt *time.Time) (*models.Reward, error) {
	if userID == "" {
		return nil, ErrAuthenticationRequired
	}
	if !rewardType.Valid() {
		return nil, fmt.Errorf("%w: unknown reward type %q", ErrInvalidRequest, rewardType)
	}
	if err := validateAmount(amount); err != nil {
		return nil, err
	}

	reward := &models.Reward{
		ID:         uuid.NewString(),
		UserID:     userID,
		RewardType: rewardType,
		Amount:     amount,
		IsDemo:     isDemo,
		ExpiresAt:  expiresAt,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.store.CreateReward(ctx, reward); err != nil {
		return nil, storeErr("create reward", err)
	}

	s.log.WithFields(logrus.Fields{
		"reward_id": reward.ID,
		"user_id":   userID,
		"type":      rewardType,
		"amount":    amount.StringFixed(2),
	}).Info("reward granted")
	return reward, nil
}

// Claim turns a reward into a completed deposit in the reward's partition.
// The flag flip and the deposit are written together, so a reward pays out
// at most once.
func (s *RewardService) Claim(ctx context.Context, userID, rewardID string) (*models.Transaction, error) {
	if userID == "" {
		return nil, ErrAuthenticationRequired
	}

	reward, err := s.store.GetReward(ctx, rewardID)
	if err != nil {
		return nil, storeErr("get reward", err)
	}
	if reward.UserID != userID {
		return nil, fmt.Errorf("%w: reward %s", ErrForbidden, rewardID)
	}
	if reward.IsClaimed {
		return nil, fmt.Errorf("claim %s: %w", rewardID, ErrAlreadyClaimed)
	}
	if reward.Expired(time.Now()) {
		return nil, fmt.Errorf("claim %s: %w", rewardID, ErrRewardExpired)
	}

	now := time.Now().UTC()
	deposit := &models.Transaction{
		ID:        models.GenerateTransactionID(),
		UserID:    userID,
		Amount:    reward.Amount,
		Type:      models.TransactionTypeDeposit,
		Status:    models.TransactionStatusCompleted,
		IsDemo:    reward.IsDemo,
		Reference: models.Ref("reward", reward.ID),
		Details: models.Details{
			"source":      "reward",
			"reward_id":   reward.ID,
			"reward_type": string(reward.RewardType),
		},
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.store.ClaimReward(ctx, rewardID, deposit); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, fmt.Errorf("claim %s: %w", rewardID, ErrAlreadyClaimed)
		}
		return nil, storeErr("claim reward", err)
	}

	s.log.WithFields(logrus.Fields{
		"reward_id": rewardID,
		"user_id":   userID,
		"amount":    reward.Amount.StringFixed(2),
	}).Info("reward claimed")

	s.ledger.Notify(ctx, deposit)
	return deposit, nil
}

func (s *RewardService) List(ctx context.Context, userID string) ([]models.Reward, error) {
	if userID == "" {
		return nil, ErrAuthenticationRequired
	}
	rewards, err := s.store.ListRewards(ctx, userID)
	if err != nil {
		return nil, storeErr("list rewards", err)
	}

	now := time.Now()
	for i := range rewards {
		if !rewards[i].IsClaimed && rewards[i].Expired(now) {
			rewards[i].IsExpired = true
		}
	}
	return rewards, nil
}
