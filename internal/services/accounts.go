package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"chance-winner-hub/internal/models"
	"chance-winner-hub/internal/repository"
)

type AccountService struct {
	store AccountStore
	log   *logrus.Logger
}

func NewAccountService(store AccountStore, log *logrus.Logger) *AccountService {
	return &AccountService{store: store, log: log}
}

// Get returns the caller's account, opening a real one on first contact.
func (s *AccountService) Get(ctx context.Context, userID string) (*models.Account, error) {
	if userID == "" {
		return nil, ErrAuthenticationRequired
	}

	acct, err := s.store.GetAccount(ctx, userID)
	if err == nil {
		return acct, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, storeErr("get account", err)
	}

	now := time.Now().UTC()
	acct = &models.Account{
		UserID:       userID,
		AccountType:  models.AccountTypeReal,
		ReferralCode: models.GenerateReferralCode(),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.CreateAccount(ctx, acct); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			// lost a race with a concurrent first request
			acct, err = s.store.GetAccount(ctx, userID)
			if err != nil {
				return nil, storeErr("get account", err)
			}
			return acct, nil
		}
		return nil, storeErr("create account", err)
	}

	s.log.WithField("user_id", userID).Info("account opened")
	return acct, nil
}

// SwitchAccountType changes which partition all later reads and writes use.
// Players pick real or demo only; influencer status follows them across the
// switch and is granted by PromoteInfluencer. Balances in either partition
// are left untouched.
func (s *AccountService) SwitchAccountType(ctx context.Context, userID string, accountType models.AccountType) (*models.Account, error) {
	switch accountType {
	case models.AccountTypeReal:
		return s.SetDemoMode(ctx, userID, false)
	case models.AccountTypeDemo:
		return s.SetDemoMode(ctx, userID, true)
	case models.AccountTypeInfluencer, models.AccountTypeDemoInfluencer:
		return nil, fmt.Errorf("%w: %s is granted by referrals", ErrForbidden, accountType)
	}
	return nil, fmt.Errorf("%w: unknown account type %q", ErrInvalidRequest, accountType)
}

// SetDemoMode flips between real and demo while keeping influencer status.
func (s *AccountService) SetDemoMode(ctx context.Context, userID string, demo bool) (*models.Account, error) {
	acct, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.setType(ctx, acct, acct.ModeType(demo))
}

// PromoteInfluencer upgrades the account in whichever mode it is in.
func (s *AccountService) PromoteInfluencer(ctx context.Context, userID string) (*models.Account, error) {
	acct, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if acct.IsInfluencer() {
		return acct, nil
	}

	target := models.AccountTypeInfluencer
	if acct.IsDemo() {
		target = models.AccountTypeDemoInfluencer
	}
	return s.setType(ctx, acct, target)
}

func (s *AccountService) setType(ctx context.Context, acct *models.Account, accountType models.AccountType) (*models.Account, error) {
	if acct.AccountType == accountType {
		return acct, nil
	}

	if err := s.store.UpdateAccountType(ctx, acct.UserID, accountType); err != nil {
		return nil, storeErr("update account type", err)
	}

	s.log.WithFields(logrus.Fields{
		"user_id": acct.UserID,
		"from":    acct.AccountType,
		"to":      accountType,
	}).Info("account type switched")

	acct.AccountType = accountType
	acct.UpdatedAt = time.Now().UTC()
	return acct, nil
}

func (s *AccountService) ByReferralCode(ctx context.Context, code string) (*models.Account, error) {
	acct, err := s.store.FindAccountByReferralCode(ctx, code)
	if err != nil {
		return nil, storeErr("find referral code", err)
	}
	return acct, nil
}

func (s *AccountService) SetReferredBy(ctx context.Context, userID, referrerID string) error {
	if err := s.store.SetReferredBy(ctx, userID, referrerID); err != nil {
		return storeErr("set referred by", err)
	}
	return nil
}

// resolveMode checks a client's claimed mode against the account.
func resolveMode(acct *models.Account, requested *bool) (bool, error) {
	isDemo := acct.IsDemo()
	if requested != nil && *requested != isDemo {
		return false, fmt.Errorf("%w: account is %s", ErrAccountModeMismatch, acct.AccountType)
	}
	return isDemo, nil
}
