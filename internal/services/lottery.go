package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"chance-winner-hub/internal/games"
	"chance-winner-hub/internal/models"
	"chance-winner-hub/internal/repository"
)

// LotteryService sells draw tickets and pays the prize to one winning ticket.
type LotteryService struct {
	store    DrawStore
	ledger   *LedgerService
	accounts *AccountService
	rng      games.Rand
	log      *logrus.Logger
}

func NewLotteryService(store DrawStore, ledger *LedgerService, accounts *AccountService, rng games.Rand, log *logrus.Logger) *LotteryService {
	if rng == nil {
		rng = games.SystemRand()
	}
	return &LotteryService{
		store:    store,
		ledger:   ledger,
		accounts: accounts,
		rng:      rng,
		log:      log,
	}
}

func (s *LotteryService) CreateDraw(ctx context.Context, req models.CreateDrawRequest) (*models.Draw, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: draw name is required", ErrInvalidRequest)
	}
	if err := validateAmount(req.TicketPrice); err != nil {
		return nil, err
	}
	if err := validateAmount(req.Prize); err != nil {
		return nil, err
	}

	draw := &models.Draw{
		ID:          uuid.NewString(),
		Name:        name,
		TicketPrice: req.TicketPrice,
		Prize:       req.Prize,
		Status:      models.DrawStatusOpen,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.store.CreateDraw(ctx, draw); err != nil {
		return nil, storeErr("create draw", err)
	}

	s.log.WithFields(logrus.Fields{
		"draw_id": draw.ID,
		"price":   draw.TicketPrice.StringFixed(2),
		"prize":   draw.Prize.StringFixed(2),
	}).Info("draw created")
	return draw, nil
}

func (s *LotteryService) ListDraws(ctx context.Context, status models.DrawStatus) ([]models.Draw, error) {
	draws, err := s.store.ListDraws(ctx, status)
	if err != nil {
		return nil, storeErr("list draws", err)
	}
	return draws, nil
}

// BuyTicket debits the ticket price and issues a ticket. If the draw closes
// between the two writes, the price is refunded.
func (s *LotteryService) BuyTicket(ctx context.Context, userID, drawID string) (*models.Ticket, *models.Transaction, error) {
	acct, err := s.accounts.Get(ctx, userID)
	if err != nil {
		return nil, nil, err
	}

	draw, err := s.store.GetDraw(ctx, drawID)
	if err != nil {
		return nil, nil, storeErr("get draw", err)
	}
	if draw.Status != models.DrawStatusOpen {
		return nil, nil, fmt.Errorf("buy ticket for %s: %w", drawID, ErrDrawClosed)
	}

	isDemo := acct.IsDemo()
	unlock := s.ledger.Lock(userID, isDemo)
	defer unlock()

	balance, err := s.ledger.Balance(ctx, userID, isDemo)
	if err != nil {
		return nil, nil, err
	}
	if draw.TicketPrice.GreaterThan(balance) {
		return nil, nil, fmt.Errorf("%w: balance %s, ticket %s", ErrInsufficientFunds, balance.StringFixed(2), draw.TicketPrice.StringFixed(2))
	}

	ticketID := uuid.NewString()
	debit := &models.Transaction{
		UserID:    userID,
		Amount:    draw.TicketPrice,
		Type:      models.TransactionTypePurchase,
		Status:    models.TransactionStatusCompleted,
		IsDemo:    isDemo,
		Reference: models.Ref("ticket", ticketID),
		Details: models.Details{
			"game":      string(models.GameTypeLottery),
			"draw_id":   drawID,
			"ticket_id": ticketID,
		},
	}
	if err := s.ledger.Append(ctx, acct, debit); err != nil {
		return nil, nil, err
	}

	ticket := &models.Ticket{
		ID:            ticketID,
		DrawID:        drawID,
		UserID:        userID,
		IsDemo:        isDemo,
		TransactionID: debit.ID,
		CreatedAt:     debit.CreatedAt,
	}
	if err := s.store.CreateTicket(ctx, ticket); err != nil {
		s.refundTicket(ctx, debit)
		return nil, nil, storeErr("create ticket", err)
	}

	return ticket, debit, nil
}

func (s *LotteryService) refundTicket(ctx context.Context, debit *models.Transaction) {
	refund := &models.Transaction{
		UserID:    debit.UserID,
		Amount:    debit.Amount,
		Type:      models.TransactionTypeDeposit,
		Status:    models.TransactionStatusCompleted,
		IsDemo:    debit.IsDemo,
		Reference: models.Ref("refund", debit.ID),
		Details: models.Details{
			"source":  "refund",
			"draw_id": debit.Detail("draw_id"),
		},
	}
	if err := s.ledger.AppendSystem(ctx, refund); err != nil {
		s.log.WithError(err).WithField("tx_id", debit.ID).Error("failed to refund ticket")
	}
}

// RunDraw picks a winning ticket uniformly and credits the prize. Running an
// already drawn draw only retries the prize credit.
func (s *LotteryService) RunDraw(ctx context.Context, drawID string) (*models.Draw, *models.Transaction, error) {
	draw, err := s.store.GetDraw(ctx, drawID)
	if err != nil {
		return nil, nil, storeErr("get draw", err)
	}

	tickets, err := s.store.ListTickets(ctx, drawID)
	if err != nil {
		return nil, nil, storeErr("list tickets", err)
	}

	if draw.Status == models.DrawStatusOpen {
		winner := ""
		if len(tickets) > 0 {
			winner = tickets[s.rng.Intn(len(tickets))].ID
		}

		now := time.Now().UTC()
		if err := s.store.MarkDrawn(ctx, drawID, winner, now); err != nil {
			return nil, nil, storeErr("mark drawn", err)
		}
		draw.Status = models.DrawStatusDrawn
		draw.WinningTicketID = winner
		draw.DrawnAt = &now

		s.log.WithFields(logrus.Fields{
			"draw_id": drawID,
			"tickets": len(tickets),
			"winner":  winner,
		}).Info("draw run")
	}

	if draw.WinningTicketID == "" {
		return draw, nil, nil
	}

	var winning *models.Ticket
	for i := range tickets {
		if tickets[i].ID == draw.WinningTicketID {
			winning = &tickets[i]
			break
		}
	}
	if winning == nil {
		return nil, nil, fmt.Errorf("%w: winning ticket %s", ErrNotFound, draw.WinningTicketID)
	}

	credit, err := s.payPrize(ctx, draw, winning)
	if err != nil {
		return draw, nil, err
	}
	return draw, credit, nil
}

func (s *LotteryService) payPrize(ctx context.Context, draw *models.Draw, ticket *models.Ticket) (*models.Transaction, error) {
	ref := models.Ref("draw", draw.ID, "win")
	credit := &models.Transaction{
		UserID:    ticket.UserID,
		Amount:    draw.Prize,
		Type:      models.TransactionTypeWinnings,
		Status:    models.TransactionStatusCompleted,
		IsDemo:    ticket.IsDemo,
		Reference: ref,
		Details: models.Details{
			"game":      string(models.GameTypeLottery),
			"draw_id":   draw.ID,
			"ticket_id": ticket.ID,
		},
	}

	err := s.ledger.AppendSystem(ctx, credit)
	if errors.Is(err, repository.ErrDuplicate) {
		return s.ledger.TransactionByReference(ctx, *ref)
	}
	if err != nil {
		return nil, err
	}
	return credit, nil
}
