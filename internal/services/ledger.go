package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"chance-winner-hub/internal/config"
	"chance-winner-hub/internal/models"
	"chance-winner-hub/internal/repository"
)

// ComputeBalance folds a partition's transactions into a balance. Credits and
// purchases count once completed. A withdrawal debits from the moment it is
// requested and keeps doing so when rejected; only a failed one is released.
func ComputeBalance(txs []models.Transaction, isDemo bool) decimal.Decimal {
	balance := decimal.Zero
	for _, tx := range txs {
		if tx.IsDemo != isDemo || !tx.Type.Valid() || !counted(&tx) {
			continue
		}
		if tx.Type.Credit() {
			balance = balance.Add(tx.Amount)
		} else {
			balance = balance.Sub(tx.Amount)
		}
	}
	return balance
}

// counted reports whether a row affects the balance. A withdrawal reserves
// its amount from the moment it is requested and only a failed one is
// released.
func counted(tx *models.Transaction) bool {
	if tx.Type == models.TransactionTypeWithdrawal {
		return tx.Status != models.TransactionStatusFailed
	}
	return tx.Status == models.TransactionStatusCompleted
}

type LedgerService struct {
	store    TransactionStore
	accounts *AccountService
	rules    config.RulesConfig
	notifier Notifier
	log      *logrus.Logger
	locks    *keyedMutex
}

func NewLedgerService(store TransactionStore, accounts *AccountService, rules config.RulesConfig, log *logrus.Logger) *LedgerService {
	return &LedgerService{
		store:    store,
		accounts: accounts,
		rules:    rules,
		notifier: nopNotifier{},
		log:      log,
		locks:    newKeyedMutex(),
	}
}

func (l *LedgerService) SetNotifier(n Notifier) {
	if n == nil {
		n = nopNotifier{}
	}
	l.notifier = n
}

// Lock serialises balance-check-then-debit sequences for one partition.
func (l *LedgerService) Lock(userID string, isDemo bool) func() {
	return l.locks.lock(fmt.Sprintf("%s:%t", userID, isDemo))
}

func (l *LedgerService) Balance(ctx context.Context, userID string, isDemo bool) (decimal.Decimal, error) {
	if userID == "" {
		return decimal.Zero, ErrAuthenticationRequired
	}

	txs, err := l.store.QueryTransactions(ctx, models.Partition(userID, isDemo))
	if err != nil {
		return decimal.Zero, storeErr("query transactions", err)
	}

	if isDemo && !hasDemoSeed(txs, userID) && l.rules.DemoStartingBalance.IsPositive() {
		if err := l.seedDemo(ctx, userID); err != nil {
			return decimal.Zero, err
		}
		txs, err = l.store.QueryTransactions(ctx, models.Partition(userID, isDemo))
		if err != nil {
			return decimal.Zero, storeErr("query transactions", err)
		}
	}

	return ComputeBalance(txs, isDemo), nil
}

// CurrentBalance reports the balance of whichever partition the account is
// using right now.
func (l *LedgerService) CurrentBalance(ctx context.Context, userID string) (*models.BalanceResponse, error) {
	acct, err := l.accounts.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	balance, err := l.Balance(ctx, userID, acct.IsDemo())
	if err != nil {
		return nil, err
	}

	return &models.BalanceResponse{
		UserID:      userID,
		AccountType: acct.AccountType,
		IsDemo:      acct.IsDemo(),
		Balance:     balance,
	}, nil
}

// hasDemoSeed looks for the one-time starting deposit. Other demo rows, such
// as a claimed demo reward, do not count.
func hasDemoSeed(txs []models.Transaction, userID string) bool {
	ref := *models.Ref("demo-seed", userID)
	for i := range txs {
		if txs[i].Reference != nil && *txs[i].Reference == ref {
			return true
		}
	}
	return false
}

func (l *LedgerService) seedDemo(ctx context.Context, userID string) error {
	seed := &models.Transaction{
		UserID:    userID,
		Amount:    l.rules.DemoStartingBalance,
		Type:      models.TransactionTypeDeposit,
		Status:    models.TransactionStatusCompleted,
		IsDemo:    true,
		Reference: models.Ref("demo-seed", userID),
		Details:   models.Details{"source": "demo_seed"},
	}

	err := l.insert(ctx, seed)
	if errors.Is(err, repository.ErrDuplicate) {
		return nil
	}
	if err == nil {
		l.log.WithField("user_id", userID).Info("seeded demo balance")
	}
	return err
}

// Append writes tx on behalf of acct. The write must target the partition the
// account is currently in.
func (l *LedgerService) Append(ctx context.Context, acct *models.Account, tx *models.Transaction) error {
	if acct == nil || acct.UserID == "" {
		return ErrAuthenticationRequired
	}
	if tx.UserID == "" {
		tx.UserID = acct.UserID
	}
	if tx.UserID != acct.UserID {
		return fmt.Errorf("%w: transaction for %s written by %s", ErrForbidden, tx.UserID, acct.UserID)
	}
	if tx.IsDemo != acct.IsDemo() {
		return fmt.Errorf("%w: account is %s", ErrAccountModeMismatch, acct.AccountType)
	}
	return l.insert(ctx, tx)
}

// AppendSystem writes tx without the account-mode check. It is the path for
// credits of rounds opened earlier, admin refunds and demo withdrawals.
func (l *LedgerService) AppendSystem(ctx context.Context, tx *models.Transaction) error {
	if tx.UserID == "" {
		return ErrAuthenticationRequired
	}
	return l.insert(ctx, tx)
}

func (l *LedgerService) insert(ctx context.Context, tx *models.Transaction) error {
	if !tx.Type.Valid() {
		return fmt.Errorf("%w: unknown transaction type %q", ErrInvalidRequest, tx.Type)
	}
	if err := validateAmount(tx.Amount); err != nil {
		return err
	}
	if tx.Status == "" {
		tx.Status = models.TransactionStatusCompleted
	}
	if tx.ID == "" {
		tx.ID = models.GenerateTransactionID()
	}
	now := time.Now().UTC()
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = now
	}
	tx.UpdatedAt = now

	if err := l.store.InsertTransaction(ctx, tx); err != nil {
		return storeErr("insert transaction", err)
	}

	l.log.WithFields(logrus.Fields{
		"tx_id":   tx.ID,
		"user_id": tx.UserID,
		"type":    tx.Type,
		"status":  tx.Status,
		"amount":  tx.Amount.StringFixed(2),
		"demo":    tx.IsDemo,
	}).Debug("transaction appended")

	l.Notify(ctx, tx)
	return nil
}

// UpdateStatus resolves a pending transaction.
func (l *LedgerService) UpdateStatus(ctx context.Context, id string, status models.TransactionStatus, details models.Details) (*models.Transaction, error) {
	if !status.Valid() || !status.Terminal() {
		return nil, fmt.Errorf("%w: cannot move to status %q", ErrInvalidRequest, status)
	}

	tx, err := l.store.UpdateTransactionStatus(ctx, id, status, details)
	if err != nil {
		return nil, storeErr("update transaction", err)
	}

	l.Notify(ctx, tx)
	return tx, nil
}

func (l *LedgerService) Transaction(ctx context.Context, id string) (*models.Transaction, error) {
	tx, err := l.store.GetTransaction(ctx, id)
	if err != nil {
		return nil, storeErr("get transaction", err)
	}
	return tx, nil
}

func (l *LedgerService) TransactionByReference(ctx context.Context, ref string) (*models.Transaction, error) {
	tx, err := l.store.GetTransactionByReference(ctx, ref)
	if err != nil {
		return nil, storeErr("get transaction", err)
	}
	return tx, nil
}

func (l *LedgerService) History(ctx context.Context, filter models.TransactionFilter) ([]models.Transaction, error) {
	if filter.UserID == "" {
		return nil, ErrAuthenticationRequired
	}
	if filter.Limit <= 0 || filter.Limit > 200 {
		filter.Limit = 50
	}

	txs, err := l.store.QueryTransactions(ctx, filter)
	if err != nil {
		return nil, storeErr("query transactions", err)
	}
	return txs, nil
}

func (l *LedgerService) Query(ctx context.Context, filter models.TransactionFilter) ([]models.Transaction, error) {
	txs, err := l.store.QueryTransactions(ctx, filter)
	if err != nil {
		return nil, storeErr("query transactions", err)
	}
	return txs, nil
}

func (l *LedgerService) Notify(ctx context.Context, tx *models.Transaction) {
	l.notifier.TransactionChanged(ctx, tx)
}

type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*refMutex)}
}

func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &refMutex{}
		k.locks[key] = m
	}
	m.refs++
	k.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		k.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
