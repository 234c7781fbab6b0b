package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"chance-winner-hub/internal/models"
)

// DepositHook runs after a deposit is confirmed.
type DepositHook interface {
	OnDepositCompleted(ctx context.Context, tx *models.Transaction) error
}

// PaymentService creates deposits and accepts the gateway's later verdict.
type PaymentService struct {
	ledger   *LedgerService
	accounts *AccountService
	hook     DepositHook
	admin    AdminNotifier
	log      *logrus.Logger
}

func NewPaymentService(ledger *LedgerService, accounts *AccountService, hook DepositHook, log *logrus.Logger) *PaymentService {
	return &PaymentService{
		ledger:   ledger,
		accounts: accounts,
		hook:     hook,
		admin:    nopNotifier{},
		log:      log,
	}
}

func (s *PaymentService) SetAdminNotifier(n AdminNotifier) {
	if n == nil {
		n = nopNotifier{}
	}
	s.admin = n
}

// InitiateDeposit completes demo deposits immediately. Real deposits stay
// pending until the gateway confirms them.
func (s *PaymentService) InitiateDeposit(ctx context.Context, userID string, req models.DepositRequest) (*models.Transaction, error) {
	amount, err := ParseAmount(req.Amount)
	if err != nil {
		return nil, err
	}
	switch req.Method {
	case "card", "mpesa", "crypto", "bank":
	default:
		return nil, fmt.Errorf("%w: unknown deposit method %q", ErrInvalidRequest, req.Method)
	}

	acct, err := s.accounts.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	details := externalDetails(req.Details)
	details["method"] = req.Method
	details["source"] = "payment"

	tx := &models.Transaction{
		UserID:  userID,
		Amount:  amount,
		Type:    models.TransactionTypeDeposit,
		Status:  models.TransactionStatusPending,
		IsDemo:  acct.IsDemo(),
		Details: details,
	}
	if acct.IsDemo() {
		tx.Status = models.TransactionStatusCompleted
		tx.Details["processor"] = "demo"
	} else {
		tx.Details["checkout_reference"] = uuid.NewString()
	}

	if err := s.ledger.Append(ctx, acct, tx); err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"tx_id":   tx.ID,
		"user_id": userID,
		"amount":  amount.StringFixed(2),
		"method":  req.Method,
		"status":  tx.Status,
	}).Info("deposit initiated")

	if !tx.IsDemo {
		s.admin.NotifyAdmin(fmt.Sprintf("Deposit %s pending: %s via %s from %s",
			tx.ID, amount.StringFixed(2), req.Method, userID))
	}

	return tx, nil
}

// Confirm applies an out-of-band verdict to a pending deposit.
func (s *PaymentService) Confirm(ctx context.Context, txID string, status models.TransactionStatus, details models.Details) (*models.Transaction, error) {
	tx, err := s.ledger.Transaction(ctx, txID)
	if err != nil {
		return nil, err
	}
	if tx.Type != models.TransactionTypeDeposit {
		return nil, fmt.Errorf("%w: %s is a %s", ErrInvalidRequest, txID, tx.Type)
	}

	tx, err = s.ledger.UpdateStatus(ctx, txID, status, externalDetails(details))
	if err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"tx_id":   tx.ID,
		"user_id": tx.UserID,
		"status":  tx.Status,
	}).Info("deposit resolved")

	if tx.Status == models.TransactionStatusCompleted && s.hook != nil {
		if err := s.hook.OnDepositCompleted(ctx, tx); err != nil {
			// the deposit itself is final; a missed bonus is logged for follow-up
			s.log.WithError(err).WithField("tx_id", tx.ID).Error("deposit hook failed")
		}
	}

	return tx, nil
}

// externalDetails copies caller-supplied details without the keys the
// service owns. "source" decides whether the referral hook runs.
func externalDetails(in models.Details) models.Details {
	out := make(models.Details, len(in))
	for k, v := range in {
		if k == "source" {
			continue
		}
		out[k] = v
	}
	return out
}
