package services_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"chance-winner-hub/internal/config"
	"chance-winner-hub/internal/models"
	"chance-winner-hub/internal/services"
)

type rewardEnv struct {
	*testEnv
	rewards  *services.RewardService
	payments *services.PaymentService
}

func newRewardEnv(t *testing.T, rules config.RulesConfig) *rewardEnv {
	t.Helper()
	env := newTestEnvWithRules(t, rules)
	rewards := services.NewRewardService(env.store, env.accounts, env.ledger, rules, env.log)
	payments := services.NewPaymentService(env.ledger, env.accounts, rewards, env.log)
	return &rewardEnv{testEnv: env, rewards: rewards, payments: payments}
}

// deposit runs a real deposit through initiation and gateway confirmation.
func (e *rewardEnv) deposit(t *testing.T, userID, amount string) *models.Transaction {
	t.Helper()
	ctx := context.Background()

	tx, err := e.payments.InitiateDeposit(ctx, userID, models.DepositRequest{Amount: amount, Method: "card"})
	if err != nil {
		t.Fatalf("Failed to initiate deposit: %v", err)
	}
	tx, err = e.payments.Confirm(ctx, tx.ID, models.TransactionStatusCompleted, models.Details{"gateway_ref": "ok"})
	if err != nil {
		t.Fatalf("Failed to confirm deposit: %v", err)
	}
	return tx
}

func (e *rewardEnv) refer(t *testing.T, referrerID, referredID string) {
	t.Helper()
	ctx := context.Background()

	referrer, err := e.accounts.Get(ctx, referrerID)
	if err != nil {
		t.Fatalf("Failed to open referrer: %v", err)
	}
	if _, err := e.rewards.RegisterReferral(ctx, referredID, referrer.ReferralCode); err != nil {
		t.Fatalf("Failed to register referral: %v", err)
	}
}

func (e *rewardEnv) rewardList(t *testing.T, userID string) []models.Reward {
	t.Helper()
	list, err := e.rewards.List(context.Background(), userID)
	if err != nil {
		t.Fatalf("Failed to list rewards: %v", err)
	}
	return list
}

func TestDepositLifecycle(t *testing.T) {
	env := newRewardEnv(t, config.DefaultRules())
	ctx := context.Background()

	tx, err := env.payments.InitiateDeposit(ctx, "alice", models.DepositRequest{Amount: "50", Method: "mpesa"})
	if err != nil {
		t.Fatalf("Failed to initiate deposit: %v", err)
	}
	if tx.Status != models.TransactionStatusPending || tx.Detail("checkout_reference") == "" {
		t.Errorf("Expected pending deposit with checkout reference, got %+v", tx)
	}
	env.assertBalance(t, "alice", false, "0")

	if _, err := env.payments.Confirm(ctx, tx.ID, models.TransactionStatusCompleted, nil); err != nil {
		t.Fatalf("Failed to confirm: %v", err)
	}
	env.assertBalance(t, "alice", false, "50")

	_, err = env.payments.Confirm(ctx, tx.ID, models.TransactionStatusFailed, nil)
	if !errors.Is(err, services.ErrNotPending) {
		t.Errorf("Expected ErrNotPending, got %v", err)
	}

	_, err = env.payments.Confirm(ctx, "missing", models.TransactionStatusCompleted, nil)
	if !errors.Is(err, services.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestDemoDepositCompletesImmediately(t *testing.T) {
	env := newRewardEnv(t, config.DefaultRules())
	ctx := context.Background()

	if _, err := env.accounts.SetDemoMode(ctx, "dora", true); err != nil {
		t.Fatalf("Failed to switch to demo: %v", err)
	}

	tx, err := env.payments.InitiateDeposit(ctx, "dora", models.DepositRequest{Amount: "50", Method: "card"})
	if err != nil {
		t.Fatalf("Failed to deposit: %v", err)
	}
	if tx.Status != models.TransactionStatusCompleted || !tx.IsDemo {
		t.Errorf("Expected completed demo deposit, got %+v", tx)
	}
	env.assertBalance(t, "dora", true, "1050")
}

func TestReferralRewards(t *testing.T) {
	env := newRewardEnv(t, config.DefaultRules())
	ctx := context.Background()

	env.refer(t, "rita", "bob")
	env.deposit(t, "bob", "100")

	rewards := env.rewardList(t, "rita")
	if len(rewards) != 1 || !rewards[0].Amount.Equal(dec("10")) || rewards[0].RewardType != models.RewardTypeReferralBonus {
		t.Fatalf("Expected one 10.00 referral bonus, got %+v", rewards)
	}

	env.deposit(t, "bob", "200")
	rewards = env.rewardList(t, "rita")
	if len(rewards) != 2 {
		t.Fatalf("Expected a percentage bonus on the second deposit, got %+v", rewards)
	}
	var total = dec("0")
	for _, r := range rewards {
		total = total.Add(r.Amount)
	}
	if !total.Equal(dec("20")) {
		t.Errorf("Expected 10 + 5%% of 200 = 20, got %s", total)
	}

	if _, err := env.rewards.RegisterReferral(ctx, "bob", "NOPE0000"); !errors.Is(err, services.ErrNotFound) {
		t.Errorf("Expected ErrNotFound for unknown code, got %v", err)
	}
	rita, _ := env.accounts.Get(ctx, "rita")
	if _, err := env.rewards.RegisterReferral(ctx, "bob", rita.ReferralCode); !errors.Is(err, services.ErrInvalidRequest) {
		t.Errorf("Expected ErrInvalidRequest for second referral, got %v", err)
	}
	if _, err := env.rewards.RegisterReferral(ctx, "rita", rita.ReferralCode); !errors.Is(err, services.ErrInvalidRequest) {
		t.Errorf("Expected ErrInvalidRequest for self referral, got %v", err)
	}
}

func TestInfluencerThreshold(t *testing.T) {
	rules := config.DefaultRules()
	rules.InfluencerThreshold = 2
	env := newRewardEnv(t, rules)
	ctx := context.Background()

	env.refer(t, "rita", "bob")
	env.refer(t, "rita", "carl")
	env.deposit(t, "bob", "10")

	acct, _ := env.accounts.Get(ctx, "rita")
	if acct.IsInfluencer() {
		t.Fatal("One completed referral should not promote")
	}

	env.deposit(t, "carl", "10")
	acct, _ = env.accounts.Get(ctx, "rita")
	if acct.AccountType != models.AccountTypeInfluencer {
		t.Errorf("Expected influencer, got %s", acct.AccountType)
	}

	var bonus int
	for _, r := range env.rewardList(t, "rita") {
		if r.RewardType == models.RewardTypeDepositBonus && r.Amount.Equal(dec("100")) {
			bonus++
		}
	}
	if bonus != 1 {
		t.Errorf("Expected one influencer bonus, got %d", bonus)
	}
}

func TestClaimReward(t *testing.T) {
	env := newRewardEnv(t, config.DefaultRules())
	ctx := context.Background()

	reward, err := env.rewards.Grant(ctx, "alice", models.RewardTypeSignupBonus, dec("25"), false, nil)
	if err != nil {
		t.Fatalf("Failed to grant: %v", err)
	}

	if _, err := env.rewards.Claim(ctx, "mallory", reward.ID); !errors.Is(err, services.ErrForbidden) {
		t.Errorf("Expected ErrForbidden, got %v", err)
	}

	tx, err := env.rewards.Claim(ctx, "alice", reward.ID)
	if err != nil {
		t.Fatalf("Failed to claim: %v", err)
	}
	if tx.Type != models.TransactionTypeDeposit || !tx.Amount.Equal(dec("25")) {
		t.Errorf("Expected 25.00 deposit, got %+v", tx)
	}
	env.assertBalance(t, "alice", false, "25")

	_, err = env.rewards.Claim(ctx, "alice", reward.ID)
	if !errors.Is(err, services.ErrAlreadyClaimed) {
		t.Errorf("Expected ErrAlreadyClaimed, got %v", err)
	}
	if class, _ := services.Classify(err); class != services.ErrorClassClaimed {
		t.Errorf("Expected claimed class, got %s", class)
	}
	env.assertBalance(t, "alice", false, "25")
}

func TestConcurrentClaimsPayOnce(t *testing.T) {
	env := newRewardEnv(t, config.DefaultRules())
	ctx := context.Background()

	reward, err := env.rewards.Grant(ctx, "alice", models.RewardTypeCashback, dec("5"), false, nil)
	if err != nil {
		t.Fatalf("Failed to grant: %v", err)
	}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := env.rewards.Claim(ctx, "alice", reward.ID); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if wins != 1 {
		t.Errorf("Expected exactly one successful claim, got %d", wins)
	}
	env.assertBalance(t, "alice", false, "5")
}

func TestClaimExpiredOrFailing(t *testing.T) {
	env := newRewardEnv(t, config.DefaultRules())
	ctx := context.Background()

	past := time.Now().Add(-time.Hour)
	expired, err := env.rewards.Grant(ctx, "alice", models.RewardTypeFreeSpins, dec("5"), false, &past)
	if err != nil {
		t.Fatalf("Failed to grant: %v", err)
	}
	if _, err := env.rewards.Claim(ctx, "alice", expired.ID); !errors.Is(err, services.ErrRewardExpired) {
		t.Errorf("Expected ErrRewardExpired, got %v", err)
	}

	reward, _ := env.rewards.Grant(ctx, "alice", models.RewardTypeCashback, dec("5"), true, nil)
	env.store.FailInsert = func(*models.Transaction) error { return errors.New("disk full") }
	if _, err := env.rewards.Claim(ctx, "alice", reward.ID); !errors.Is(err, services.ErrBackendUnavailable) {
		t.Errorf("Expected ErrBackendUnavailable, got %v", err)
	}
	env.store.FailInsert = nil

	tx, err := env.rewards.Claim(ctx, "alice", reward.ID)
	if err != nil {
		t.Fatalf("Claim should succeed once the store recovers: %v", err)
	}
	if !tx.IsDemo {
		t.Error("Demo reward must pay into the demo partition")
	}
}

func TestConfirmCannotOverrideDepositSource(t *testing.T) {
	env := newRewardEnv(t, config.DefaultRules())
	ctx := context.Background()

	env.refer(t, "rita", "bob")

	tx, err := env.payments.InitiateDeposit(ctx, "bob", models.DepositRequest{
		Amount:  "100",
		Method:  "card",
		Details: models.Details{"source": "manual"},
	})
	if err != nil {
		t.Fatalf("Failed to initiate deposit: %v", err)
	}
	if tx.Detail("source") != "payment" {
		t.Errorf("Expected source payment on initiation, got %q", tx.Detail("source"))
	}

	tx, err = env.payments.Confirm(ctx, tx.ID, models.TransactionStatusCompleted, models.Details{"source": "manual", "gateway_ref": "g-1"})
	if err != nil {
		t.Fatalf("Failed to confirm: %v", err)
	}
	if tx.Detail("source") != "payment" || tx.Detail("gateway_ref") != "g-1" {
		t.Errorf("Unexpected details after confirmation: %v", tx.Details)
	}

	if rewards := env.rewardList(t, "rita"); len(rewards) != 1 {
		t.Errorf("Expected the referral bonus to be paid, got %+v", rewards)
	}
}

func TestDemoRewardBeforeFirstDemoRead(t *testing.T) {
	env := newRewardEnv(t, config.DefaultRules())
	ctx := context.Background()

	reward, err := env.rewards.Grant(ctx, "dora", models.RewardTypeSignupBonus, dec("25"), true, nil)
	if err != nil {
		t.Fatalf("Failed to grant: %v", err)
	}
	if _, err := env.rewards.Claim(ctx, "dora", reward.ID); err != nil {
		t.Fatalf("Failed to claim: %v", err)
	}

	env.assertBalance(t, "dora", true, "1025")
	env.assertBalance(t, "dora", true, "1025")

	if n := len(env.transactions(t, "dora", true)); n != 2 {
		t.Errorf("Expected the reward and one seed, got %d rows", n)
	}
}
