package services_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"chance-winner-hub/internal/games"
	"chance-winner-hub/internal/models"
	"chance-winner-hub/internal/services"
)

func newSettlement(env *testEnv, rng games.Rand) (*services.SettlementService, *roundLog) {
	s := services.NewSettlementService(env.ledger, env.accounts, env.rules, rng, env.log)
	rounds := newRoundLog()
	s.SetRecorder(rounds)
	return s, rounds
}

func dicePlay(stake string, target int, dir string) models.DicePlayRequest {
	return models.DicePlayRequest{
		StakeRequest: models.StakeRequest{Stake: stake},
		Target:       target,
		Direction:    dir,
	}
}

func TestPlayDiceWin(t *testing.T) {
	env := newTestEnv(t)
	env.fund(t, "alice", "100")
	s, rounds := newSettlement(env, &games.Sequence{Ints: []int{5}})

	res, err := s.PlayDice(context.Background(), "alice", dicePlay("10", 4, "higher"))
	if err != nil {
		t.Fatalf("Failed to play dice: %v", err)
	}

	if res.Credit == nil || !res.Credit.Amount.Equal(dec("28.50")) {
		t.Fatalf("Expected credit 28.50, got %+v", res.Credit)
	}
	if res.Round.Status != models.RoundStatusWon {
		t.Errorf("Expected round won, got %s", res.Round.Status)
	}
	if !res.Balance.Equal(dec("118.50")) {
		t.Errorf("Expected balance 118.50, got %s", res.Balance)
	}
	env.assertBalance(t, "alice", false, "118.50")

	if _, ok := rounds.get(res.Round.ID); !ok {
		t.Error("Round should be recorded")
	}
}

func TestPlayDiceRollOnTargetLoses(t *testing.T) {
	env := newTestEnv(t)
	env.fund(t, "alice", "100")
	s, _ := newSettlement(env, &games.Sequence{Ints: []int{3}})

	res, err := s.PlayDice(context.Background(), "alice", dicePlay("10", 4, "higher"))
	if err != nil {
		t.Fatalf("Failed to play dice: %v", err)
	}
	if res.Credit != nil {
		t.Errorf("Losing roll should not credit, got %+v", res.Credit)
	}
	if res.Round.Status != models.RoundStatusLost {
		t.Errorf("Expected round lost, got %s", res.Round.Status)
	}
	env.assertBalance(t, "alice", false, "90")
}

func TestPlayDiceImpossibleBetWritesNothing(t *testing.T) {
	env := newTestEnv(t)
	env.fund(t, "alice", "100")
	s, _ := newSettlement(env, nil)

	for _, req := range []models.DicePlayRequest{
		dicePlay("10", 6, "higher"),
		dicePlay("10", 1, "lower"),
		dicePlay("10", 3, "sideways"),
	} {
		_, err := s.PlayDice(context.Background(), "alice", req)
		if !errors.Is(err, services.ErrInvalidBet) {
			t.Errorf("Expected ErrInvalidBet for %d %s, got %v", req.Target, req.Direction, err)
		}
	}

	if n := len(env.transactions(t, "alice", false)); n != 1 {
		t.Errorf("Expected only the funding deposit, got %d transactions", n)
	}
}

func TestSpinWheelPartialLoss(t *testing.T) {
	env := newTestEnv(t)
	env.fund(t, "alice", "100")
	s, _ := newSettlement(env, &games.Sequence{Ints: []int{0}})

	res, err := s.SpinWheel(context.Background(), "alice", models.WheelSpinRequest{
		StakeRequest: models.StakeRequest{Stake: "20"},
	})
	if err != nil {
		t.Fatalf("Failed to spin: %v", err)
	}

	if !res.Credit.Amount.Equal(dec("4")) {
		t.Errorf("Expected 0.2x payout of 4, got %s", res.Credit.Amount)
	}
	if res.Round.Status != models.RoundStatusLost {
		t.Errorf("Payout under stake should count as lost, got %s", res.Round.Status)
	}
	env.assertBalance(t, "alice", false, "84")
}

func TestPlayScratchForcedWin(t *testing.T) {
	env := newTestEnv(t)
	env.fund(t, "alice", "100")

	// blank grid, forced-win roll, seven on the first row
	rng := &games.Sequence{
		Ints:   []int{5, 5, 5, 5, 5, 5, 5, 5, 5, 0},
		Floats: []float64{0.1},
	}
	s, _ := newSettlement(env, rng)

	res, err := s.PlayScratch(context.Background(), "alice", models.ScratchPlayRequest{})
	if err != nil {
		t.Fatalf("Failed to play scratch: %v", err)
	}

	if !res.Debit.Amount.Equal(dec("5")) {
		t.Errorf("Expected card price 5, got %s", res.Debit.Amount)
	}
	if res.Credit == nil || !res.Credit.Amount.Equal(dec("60")) {
		t.Fatalf("Expected 60 payout, got %+v", res.Credit)
	}
	if res.Round.Outcome["symbol"] != "seven" {
		t.Errorf("Expected seven, got %v", res.Round.Outcome["symbol"])
	}
	env.assertBalance(t, "alice", false, "155")
}

func TestSettlementRejectsBadStakes(t *testing.T) {
	env := newTestEnv(t)
	env.fund(t, "alice", "100")
	s, _ := newSettlement(env, nil)
	ctx := context.Background()

	for _, stake := range []string{"0", "-5", "abc", "1.001", "10000.01"} {
		_, err := s.SpinWheel(ctx, "alice", models.WheelSpinRequest{
			StakeRequest: models.StakeRequest{Stake: stake},
		})
		if !errors.Is(err, services.ErrInvalidStake) {
			t.Errorf("Expected ErrInvalidStake for %q, got %v", stake, err)
		}
	}

	_, err := s.SpinWheel(ctx, "alice", models.WheelSpinRequest{
		StakeRequest: models.StakeRequest{Stake: "100.01"},
	})
	if !errors.Is(err, services.ErrInsufficientFunds) {
		t.Errorf("Expected ErrInsufficientFunds, got %v", err)
	}

	_, err = s.SpinWheel(ctx, "", models.WheelSpinRequest{
		StakeRequest: models.StakeRequest{Stake: "1"},
	})
	if !errors.Is(err, services.ErrAuthenticationRequired) {
		t.Errorf("Expected ErrAuthenticationRequired, got %v", err)
	}

	_, err = s.SpinWheel(ctx, "alice", models.WheelSpinRequest{
		StakeRequest: models.StakeRequest{Stake: "1", Demo: boolPtr(true)},
	})
	if !errors.Is(err, services.ErrAccountModeMismatch) {
		t.Errorf("Expected ErrAccountModeMismatch, got %v", err)
	}

	env.assertBalance(t, "alice", false, "100")
}

func TestCreditFailureLeavesDebit(t *testing.T) {
	env := newTestEnv(t)
	env.fund(t, "alice", "100")
	s, rounds := newSettlement(env, &games.Sequence{Ints: []int{5}})

	env.store.FailInsert = func(tx *models.Transaction) error {
		if tx.Type == models.TransactionTypeWinnings {
			return errors.New("connection reset")
		}
		return nil
	}

	req := dicePlay("10", 4, "higher")
	req.RoundID = "round-fail"
	_, err := s.PlayDice(context.Background(), "alice", req)
	if !errors.Is(err, services.ErrBackendUnavailable) {
		t.Fatalf("Expected ErrBackendUnavailable, got %v", err)
	}

	env.store.FailInsert = nil
	env.assertBalance(t, "alice", false, "90")

	for _, tx := range env.transactions(t, "alice", false) {
		if tx.Type == models.TransactionTypeWinnings {
			t.Errorf("No credit should exist, found %+v", tx)
		}
	}

	round, ok := rounds.get("round-fail")
	if !ok || round.Status != models.RoundStatusFailed {
		t.Errorf("Expected failed round, got %+v", round)
	}
}

func TestDebitFailureResolvesNothing(t *testing.T) {
	env := newTestEnv(t)
	env.fund(t, "alice", "100")
	rng := &games.Sequence{Ints: []int{5}}
	s, _ := newSettlement(env, rng)

	env.store.FailInsert = func(tx *models.Transaction) error {
		return errors.New("connection reset")
	}

	_, err := s.PlayDice(context.Background(), "alice", dicePlay("10", 4, "higher"))
	if !errors.Is(err, services.ErrBackendUnavailable) {
		t.Fatalf("Expected ErrBackendUnavailable, got %v", err)
	}

	env.store.FailInsert = nil
	env.assertBalance(t, "alice", false, "100")
	if len(rng.Ints) != 1 {
		t.Error("The die must not be rolled before the debit is stored")
	}
}

func TestRetryWithSameRoundIDChargesOnce(t *testing.T) {
	env := newTestEnv(t)
	env.fund(t, "alice", "100")
	s, _ := newSettlement(env, &games.Sequence{Ints: []int{0, 0}})
	ctx := context.Background()

	req := models.WheelSpinRequest{StakeRequest: models.StakeRequest{Stake: "10", RoundID: "round-1"}}
	if _, err := s.SpinWheel(ctx, "alice", req); err != nil {
		t.Fatalf("Failed to spin: %v", err)
	}
	_, err := s.SpinWheel(ctx, "alice", req)
	if !errors.Is(err, services.ErrDuplicateRound) {
		t.Fatalf("Expected ErrDuplicateRound, got %v", err)
	}

	env.assertBalance(t, "alice", false, "92")
}

func TestConcurrentBetsNeverOverdraw(t *testing.T) {
	env := newTestEnv(t)
	env.fund(t, "alice", "50")
	// an exhausted sequence always lands on the 0.2x segment
	s, _ := newSettlement(env, &games.Sequence{})

	var wg sync.WaitGroup
	errs := make(chan error, 40)
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.SpinWheel(context.Background(), "alice", models.WheelSpinRequest{
				StakeRequest: models.StakeRequest{Stake: "10"},
			})
			if err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if !errors.Is(err, services.ErrInsufficientFunds) {
			t.Errorf("Unexpected error: %v", err)
		}
	}

	if b := env.balance(t, "alice", false); b.IsNegative() {
		t.Errorf("Balance went negative: %s", b)
	}
}

func TestDemoPlayLeavesRealUntouched(t *testing.T) {
	env := newTestEnv(t)
	env.fund(t, "alice", "100")
	ctx := context.Background()

	if _, err := env.accounts.SetDemoMode(ctx, "alice", true); err != nil {
		t.Fatalf("Failed to switch to demo: %v", err)
	}

	s, _ := newSettlement(env, &games.Sequence{Ints: []int{7}})
	res, err := s.SpinWheel(ctx, "alice", models.WheelSpinRequest{
		StakeRequest: models.StakeRequest{Stake: "10", Demo: boolPtr(true)},
	})
	if err != nil {
		t.Fatalf("Failed to spin: %v", err)
	}
	if !res.Round.IsDemo || !res.Debit.IsDemo || !res.Credit.IsDemo {
		t.Error("Demo round must stay in the demo partition")
	}

	env.assertBalance(t, "alice", true, "1090")
	env.assertBalance(t, "alice", false, "100")
}
