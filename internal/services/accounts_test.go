package services_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"chance-winner-hub/internal/models"
	"chance-winner-hub/internal/services"
)

func TestAccountOpenedOnFirstContact(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	var (
		wg    sync.WaitGroup
		codes sync.Map
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			acct, err := env.accounts.Get(ctx, "alice")
			if err != nil {
				t.Errorf("Failed to get account: %v", err)
				return
			}
			codes.Store(acct.ReferralCode, true)
		}()
	}
	wg.Wait()

	n := 0
	codes.Range(func(any, any) bool { n++; return true })
	if n != 1 {
		t.Errorf("Concurrent first requests should open one account, saw %d codes", n)
	}

	acct, _ := env.accounts.Get(ctx, "alice")
	if acct.AccountType != models.AccountTypeReal {
		t.Errorf("New accounts start real, got %s", acct.AccountType)
	}

	if _, err := env.accounts.Get(ctx, ""); !errors.Is(err, services.ErrAuthenticationRequired) {
		t.Errorf("Expected ErrAuthenticationRequired, got %v", err)
	}
}

func TestSwitchAccountTypeKeepsBalances(t *testing.T) {
	env := newTestEnv(t)
	env.fund(t, "alice", "100")
	ctx := context.Background()

	if _, err := env.accounts.SwitchAccountType(ctx, "alice", models.AccountTypeDemo); err != nil {
		t.Fatalf("Failed to switch: %v", err)
	}
	env.assertBalance(t, "alice", true, "1000")

	if _, err := env.accounts.SwitchAccountType(ctx, "alice", models.AccountTypeReal); err != nil {
		t.Fatalf("Failed to switch back: %v", err)
	}
	env.assertBalance(t, "alice", false, "100")
	env.assertBalance(t, "alice", true, "1000")

	if _, err := env.accounts.SwitchAccountType(ctx, "alice", "vip"); !errors.Is(err, services.ErrInvalidRequest) {
		t.Errorf("Expected ErrInvalidRequest, got %v", err)
	}
}

func TestInfluencerKeepsStatusAcrossModes(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if _, err := env.accounts.PromoteInfluencer(ctx, "rita"); err != nil {
		t.Fatalf("Failed to promote: %v", err)
	}

	acct, err := env.accounts.SetDemoMode(ctx, "rita", true)
	if err != nil {
		t.Fatalf("Failed to switch to demo: %v", err)
	}
	if acct.AccountType != models.AccountTypeDemoInfluencer {
		t.Errorf("Expected demo_influencer, got %s", acct.AccountType)
	}

	acct, _ = env.accounts.SetDemoMode(ctx, "rita", false)
	if acct.AccountType != models.AccountTypeInfluencer {
		t.Errorf("Expected influencer, got %s", acct.AccountType)
	}
}

func TestPlayersCannotPickInfluencer(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	for _, typ := range []models.AccountType{models.AccountTypeInfluencer, models.AccountTypeDemoInfluencer} {
		if _, err := env.accounts.SwitchAccountType(ctx, "mallory", typ); !errors.Is(err, services.ErrForbidden) {
			t.Errorf("Expected ErrForbidden for %s, got %v", typ, err)
		}
	}

	acct, err := env.accounts.Get(ctx, "mallory")
	if err != nil {
		t.Fatalf("Failed to get account: %v", err)
	}
	if acct.AccountType != models.AccountTypeReal {
		t.Errorf("Expected real account, got %s", acct.AccountType)
	}

	if _, err := env.accounts.PromoteInfluencer(ctx, "rita"); err != nil {
		t.Fatalf("Failed to promote: %v", err)
	}
	acct, err = env.accounts.SwitchAccountType(ctx, "rita", models.AccountTypeDemo)
	if err != nil || acct.AccountType != models.AccountTypeDemoInfluencer {
		t.Errorf("Expected demo_influencer after switching to demo, got %v %v", acct, err)
	}
}
