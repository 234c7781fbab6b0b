package services_test

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"chance-winner-hub/internal/config"
	"chance-winner-hub/internal/models"
	"chance-winner-hub/internal/repository"
	"chance-winner-hub/internal/services"
)

type testEnv struct {
	store    *repository.MemoryStore
	rules    config.RulesConfig
	log      *logrus.Logger
	accounts *services.AccountService
	ledger   *services.LedgerService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWithRules(t, config.DefaultRules())
}

func newTestEnvWithRules(t *testing.T, rules config.RulesConfig) *testEnv {
	t.Helper()

	log := logrus.New()
	log.SetOutput(io.Discard)

	store := repository.NewMemoryStore()
	accounts := services.NewAccountService(store, log)
	ledger := services.NewLedgerService(store, accounts, rules, log)

	return &testEnv{
		store:    store,
		rules:    rules,
		log:      log,
		accounts: accounts,
		ledger:   ledger,
	}
}

// fund writes a completed real deposit straight into the store.
func (e *testEnv) fund(t *testing.T, userID, amount string) {
	t.Helper()
	e.fundPartition(t, userID, amount, false)
}

func (e *testEnv) fundPartition(t *testing.T, userID, amount string, isDemo bool) {
	t.Helper()
	ctx := context.Background()

	if _, err := e.accounts.Get(ctx, userID); err != nil {
		t.Fatalf("Failed to open account: %v", err)
	}

	now := time.Now().UTC()
	tx := &models.Transaction{
		ID:        models.GenerateTransactionID(),
		UserID:    userID,
		Amount:    dec(amount),
		Type:      models.TransactionTypeDeposit,
		Status:    models.TransactionStatusCompleted,
		IsDemo:    isDemo,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := e.store.InsertTransaction(ctx, tx); err != nil {
		t.Fatalf("Failed to fund %s: %v", userID, err)
	}
}

func (e *testEnv) balance(t *testing.T, userID string, isDemo bool) decimal.Decimal {
	t.Helper()
	b, err := e.ledger.Balance(context.Background(), userID, isDemo)
	if err != nil {
		t.Fatalf("Failed to read balance: %v", err)
	}
	return b
}

func (e *testEnv) assertBalance(t *testing.T, userID string, isDemo bool, want string) {
	t.Helper()
	if got := e.balance(t, userID, isDemo); !got.Equal(dec(want)) {
		t.Errorf("Expected balance %s for %s (demo=%t), got %s", want, userID, isDemo, got.StringFixed(2))
	}
}

func (e *testEnv) transactions(t *testing.T, userID string, isDemo bool) []models.Transaction {
	t.Helper()
	txs, err := e.store.QueryTransactions(context.Background(), models.Partition(userID, isDemo))
	if err != nil {
		t.Fatalf("Failed to query transactions: %v", err)
	}
	return txs
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func boolPtr(b bool) *bool {
	return &b
}

type roundLog struct {
	mu     sync.Mutex
	rounds map[string]models.Round
}

func newRoundLog() *roundLog {
	return &roundLog{rounds: make(map[string]models.Round)}
}

func (r *roundLog) SaveRound(ctx context.Context, round *models.Round) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rounds[round.ID] = *round
	return nil
}

func (r *roundLog) get(id string) (models.Round, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	round, ok := r.rounds[id]
	return round, ok
}

type adminInbox struct {
	mu       sync.Mutex
	messages []string
}

func (a *adminInbox) NotifyAdmin(text string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.messages = append(a.messages, text)
}

func (a *adminInbox) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.messages)
}
