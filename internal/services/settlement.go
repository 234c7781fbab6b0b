package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"chance-winner-hub/internal/config"
	"chance-winner-hub/internal/games"
	"chance-winner-hub/internal/models"
	"chance-winner-hub/internal/repository"
)

// SettlementService settles the single-shot games: dice, scratch and wheel.
// Every round debits the stake first, then resolves, then credits the payout.
type SettlementService struct {
	ledger   *LedgerService
	accounts *AccountService
	rules    config.RulesConfig
	rng      games.Rand
	recorder RoundRecorder
	log      *logrus.Logger
}

func NewSettlementService(ledger *LedgerService, accounts *AccountService, rules config.RulesConfig, rng games.Rand, log *logrus.Logger) *SettlementService {
	if rng == nil {
		rng = games.SystemRand()
	}
	return &SettlementService{
		ledger:   ledger,
		accounts: accounts,
		rules:    rules,
		rng:      rng,
		recorder: nopNotifier{},
		log:      log,
	}
}

func (s *SettlementService) SetRecorder(r RoundRecorder) {
	if r == nil {
		r = nopNotifier{}
	}
	s.recorder = r
}

// resolution is what a game decided once the stake is secured.
type resolution struct {
	payout     decimal.Decimal
	multiplier decimal.Decimal
	outcome    map[string]any
}

type wager struct {
	userID  string
	game    models.GameType
	stake   decimal.Decimal
	roundID string
	demo    *bool
}

func (s *SettlementService) PlayDice(ctx context.Context, userID string, req models.DicePlayRequest) (*models.BetResult, error) {
	stake, err := s.parseStake(req.Stake)
	if err != nil {
		return nil, err
	}

	dir := games.Direction(req.Direction)
	if _, _, err := games.DiceOdds(req.Target, dir); err != nil {
		return nil, err
	}

	w := wager{userID: userID, game: models.GameTypeDice, stake: stake, roundID: req.RoundID, demo: req.Demo}
	return s.settle(ctx, w, func() (*resolution, error) {
		roll, err := games.RollDice(s.rng, req.Target, dir)
		if err != nil {
			return nil, err
		}
		return &resolution{
			payout:     roll.Payout(stake),
			multiplier: roll.Multiplier,
			outcome: map[string]any{
				"roll":        roll.Roll,
				"target":      roll.Target,
				"direction":   roll.Direction,
				"win":         roll.Win,
				"probability": roll.Probability,
			},
		}, nil
	})
}

func (s *SettlementService) PlayScratch(ctx context.Context, userID string, req models.ScratchPlayRequest) (*models.BetResult, error) {
	price := s.rules.ScratchCardPrice
	if !price.IsPositive() {
		return nil, fmt.Errorf("%w: scratch card price not configured", ErrInvalidStake)
	}

	w := wager{userID: userID, game: models.GameTypeScratch, stake: price, roundID: req.RoundID, demo: req.Demo}
	return s.settle(ctx, w, func() (*resolution, error) {
		card := games.NewScratchCard(s.rng)

		grid := make([]string, len(card.Grid))
		for i, sym := range card.Grid {
			grid[i] = sym.Name
		}
		outcome := map[string]any{
			"grid":   grid,
			"win":    card.Win,
			"forced": card.Forced,
		}
		multiplier := decimal.Zero
		if card.Win {
			outcome["winning_line"] = card.WinningLine
			outcome["symbol"] = card.Symbol.Name
			multiplier = card.Payout.Div(price).Round(2)
		}

		return &resolution{payout: card.Payout, multiplier: multiplier, outcome: outcome}, nil
	})
}

func (s *SettlementService) SpinWheel(ctx context.Context, userID string, req models.WheelSpinRequest) (*models.BetResult, error) {
	stake, err := s.parseStake(req.Stake)
	if err != nil {
		return nil, err
	}

	w := wager{userID: userID, game: models.GameTypeWheel, stake: stake, roundID: req.RoundID, demo: req.Demo}
	return s.settle(ctx, w, func() (*resolution, error) {
		spin := games.SpinWheel(s.rng)
		return &resolution{
			payout:     spin.Payout(stake),
			multiplier: spin.Multiplier,
			outcome: map[string]any{
				"segment":    spin.Segment,
				"multiplier": spin.Multiplier.String(),
			},
		}, nil
	})
}

func (s *SettlementService) parseStake(raw string) (decimal.Decimal, error) {
	stake, err := ParseAmount(raw)
	if err != nil {
		return decimal.Zero, err
	}
	if s.rules.MaxStake.IsPositive() && stake.GreaterThan(s.rules.MaxStake) {
		return decimal.Zero, fmt.Errorf("%w: stake %s above limit %s", ErrInvalidStake, stake, s.rules.MaxStake)
	}
	return stake, nil
}

func (s *SettlementService) settle(ctx context.Context, w wager, resolve func() (*resolution, error)) (*models.BetResult, error) {
	acct, err := s.accounts.Get(ctx, w.userID)
	if err != nil {
		return nil, err
	}
	isDemo, err := resolveMode(acct, w.demo)
	if err != nil {
		return nil, err
	}

	unlock := s.ledger.Lock(w.userID, isDemo)
	defer unlock()

	round, debit, err := openRound(ctx, s.ledger, acct, isDemo, w)
	if err != nil {
		return nil, err
	}

	log := s.log.WithFields(logrus.Fields{
		"round_id": round.ID,
		"user_id":  w.userID,
		"game":     w.game,
		"demo":     isDemo,
	})

	res, err := resolve()
	if err != nil {
		s.finish(ctx, round, models.RoundStatusFailed)
		log.WithError(err).Error("round resolution failed after debit")
		return nil, fmt.Errorf("resolve %s round: %w", w.game, err)
	}

	round.Payout = res.payout
	round.Multiplier = res.multiplier
	round.Outcome = res.outcome

	var credit *models.Transaction
	if res.payout.IsPositive() {
		credit, err = creditRound(ctx, s.ledger, round)
		if err != nil {
			round.Payout = decimal.Zero
			s.finish(ctx, round, models.RoundStatusFailed)
			log.WithError(err).Error("round credit failed, stake stays debited")
			return nil, err
		}
	}

	status := models.RoundStatusLost
	if res.payout.GreaterThanOrEqual(w.stake) {
		status = models.RoundStatusWon
	}
	s.finish(ctx, round, status)

	balance, err := s.ledger.Balance(ctx, w.userID, isDemo)
	if err != nil {
		return nil, err
	}

	log.WithFields(logrus.Fields{
		"stake":  w.stake.StringFixed(2),
		"payout": res.payout.StringFixed(2),
	}).Info("round settled")

	return &models.BetResult{Round: round, Debit: debit, Credit: credit, Balance: balance}, nil
}

func (s *SettlementService) finish(ctx context.Context, round *models.Round, status models.RoundStatus) {
	finishRound(ctx, s.recorder, s.log, round, status)
}

// openRound checks funds and writes the stake debit. The caller holds the
// partition lock.
func openRound(ctx context.Context, ledger *LedgerService, acct *models.Account, isDemo bool, w wager) (*models.Round, *models.Transaction, error) {
	balance, err := ledger.Balance(ctx, acct.UserID, isDemo)
	if err != nil {
		return nil, nil, err
	}
	if w.stake.GreaterThan(balance) {
		return nil, nil, fmt.Errorf("%w: balance %s, stake %s", ErrInsufficientFunds, balance.StringFixed(2), w.stake.StringFixed(2))
	}

	roundID := w.roundID
	if roundID == "" {
		roundID = models.GenerateRoundID()
	}

	debit := &models.Transaction{
		UserID:    acct.UserID,
		Amount:    w.stake,
		Type:      models.TransactionTypePurchase,
		Status:    models.TransactionStatusCompleted,
		IsDemo:    isDemo,
		Reference: models.Ref("round", roundID, "debit"),
		Details: models.Details{
			"game":     string(w.game),
			"round_id": roundID,
		},
	}
	if err := ledger.Append(ctx, acct, debit); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, nil, fmt.Errorf("%w: %s", ErrDuplicateRound, roundID)
		}
		return nil, nil, err
	}

	round := &models.Round{
		ID:         roundID,
		UserID:     acct.UserID,
		Game:       w.game,
		IsDemo:     isDemo,
		Stake:      w.stake,
		Multiplier: decimal.Zero,
		Payout:     decimal.Zero,
		Status:     models.RoundStatusActive,
		DebitID:    debit.ID,
		StartedAt:  debit.CreatedAt,
	}
	return round, debit, nil
}

// creditRound pays a resolved round into the partition it was opened in.
func creditRound(ctx context.Context, ledger *LedgerService, round *models.Round) (*models.Transaction, error) {
	credit := &models.Transaction{
		UserID:    round.UserID,
		Amount:    round.Payout,
		Type:      models.TransactionTypeWinnings,
		Status:    models.TransactionStatusCompleted,
		IsDemo:    round.IsDemo,
		Reference: models.Ref("round", round.ID, "credit"),
		Details: models.Details{
			"game":       string(round.Game),
			"round_id":   round.ID,
			"multiplier": round.Multiplier.String(),
		},
	}
	if err := ledger.AppendSystem(ctx, credit); err != nil {
		return nil, fmt.Errorf("credit round %s: %w", round.ID, err)
	}
	round.CreditID = credit.ID
	return credit, nil
}

func finishRound(ctx context.Context, recorder RoundRecorder, log *logrus.Logger, round *models.Round, status models.RoundStatus) {
	now := time.Now().UTC()
	round.Status = status
	round.EndedAt = &now

	if err := recorder.SaveRound(ctx, round); err != nil {
		log.WithError(err).WithField("round_id", round.ID).Warn("failed to record round")
	}
}
