package services

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"chance-winner-hub/internal/config"
	"chance-winner-hub/internal/models"
)

// WithdrawalService moves withdrawals through pending -> completed | rejected.
// The pending row is the reservation; the debit stands whatever the outcome.
type WithdrawalService struct {
	ledger   *LedgerService
	accounts *AccountService
	rules    config.RulesConfig
	admin    AdminNotifier
	log      *logrus.Logger
}

func NewWithdrawalService(ledger *LedgerService, accounts *AccountService, rules config.RulesConfig, log *logrus.Logger) *WithdrawalService {
	return &WithdrawalService{
		ledger:   ledger,
		accounts: accounts,
		rules:    rules,
		admin:    nopNotifier{},
		log:      log,
	}
}

func (s *WithdrawalService) SetAdminNotifier(n AdminNotifier) {
	if n == nil {
		n = nopNotifier{}
	}
	s.admin = n
}

func (s *WithdrawalService) Request(ctx context.Context, userID string, req models.WithdrawalRequest) (*models.Transaction, error) {
	amount, err := ParseAmount(req.Amount)
	if err != nil {
		return nil, err
	}

	method := models.WithdrawalMethod(req.Method)
	key, ok := method.RequiredDetail()
	if !ok {
		return nil, fmt.Errorf("%w: unknown withdrawal method %q", ErrInvalidRequest, req.Method)
	}
	if req.Details[key] == "" {
		return nil, fmt.Errorf("%w: %s withdrawals need %s", ErrInvalidRequest, method, key)
	}

	acct, err := s.accounts.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	isDemo := acct.IsDemo()

	unlock := s.ledger.Lock(userID, isDemo)
	defer unlock()

	balance, err := s.ledger.Balance(ctx, userID, isDemo)
	if err != nil {
		return nil, err
	}
	if amount.GreaterThan(balance) {
		return nil, fmt.Errorf("%w: balance %s, withdrawal %s", ErrInsufficientFunds, balance.StringFixed(2), amount.StringFixed(2))
	}

	details := models.Details{"method": string(method)}
	for k, v := range req.Details {
		details[k] = v
	}

	tx := &models.Transaction{
		UserID:  userID,
		Amount:  amount,
		Type:    models.TransactionTypeWithdrawal,
		Status:  models.TransactionStatusPending,
		IsDemo:  isDemo,
		Details: details,
	}

	if isDemo {
		// demo money never leaves the system; the withdrawal goes through the
		// system path and is not sent to the operators
		tx.Details["processor"] = "demo"
		if err := s.ledger.AppendSystem(ctx, tx); err != nil {
			return nil, err
		}
	} else {
		if err := s.ledger.Append(ctx, acct, tx); err != nil {
			return nil, err
		}
		s.admin.NotifyAdmin(fmt.Sprintf("New withdrawal %s: %s via %s from %s",
			tx.ID, amount.StringFixed(2), method, userID))
	}

	s.log.WithFields(logrus.Fields{
		"tx_id":   tx.ID,
		"user_id": userID,
		"amount":  amount.StringFixed(2),
		"method":  method,
		"demo":    isDemo,
	}).Info("withdrawal requested")

	return tx, nil
}

// Resolve approves or rejects a pending withdrawal. A rejection keeps the
// debit unless refunds are enabled, in which case a compensating deposit is
// written.
func (s *WithdrawalService) Resolve(ctx context.Context, adminID, txID string, req models.ResolveRequest) (*models.Transaction, error) {
	tx, err := s.ledger.Transaction(ctx, txID)
	if err != nil {
		return nil, err
	}
	if tx.Type != models.TransactionTypeWithdrawal {
		return nil, fmt.Errorf("%w: %s is a %s", ErrNotFound, txID, tx.Type)
	}

	status := models.TransactionStatusRejected
	details := models.Details{"resolved_by": adminID}
	if req.Approve {
		status = models.TransactionStatusCompleted
	} else if req.Reason != "" {
		details["rejection_reason"] = req.Reason
	}

	tx, err = s.ledger.UpdateStatus(ctx, txID, status, details)
	if err != nil {
		return nil, err
	}

	log := s.log.WithFields(logrus.Fields{
		"tx_id":    tx.ID,
		"user_id":  tx.UserID,
		"status":   tx.Status,
		"admin_id": adminID,
	})
	log.Info("withdrawal resolved")

	if status == models.TransactionStatusRejected && s.rules.RefundRejectedWithdrawals {
		refund := &models.Transaction{
			UserID:    tx.UserID,
			Amount:    tx.Amount,
			Type:      models.TransactionTypeDeposit,
			Status:    models.TransactionStatusCompleted,
			IsDemo:    tx.IsDemo,
			Reference: models.Ref("refund", tx.ID),
			Details: models.Details{
				"source":        "refund",
				"withdrawal_id": tx.ID,
			},
		}
		if err := s.ledger.AppendSystem(ctx, refund); err != nil {
			log.WithError(err).Error("failed to write withdrawal refund")
			return tx, err
		}
	}

	return tx, nil
}

func (s *WithdrawalService) Pending(ctx context.Context) ([]models.Transaction, error) {
	return s.ledger.Query(ctx, models.TransactionFilter{
		Type:   models.TransactionTypeWithdrawal,
		Status: models.TransactionStatusPending,
		Limit:  200,
	})
}
