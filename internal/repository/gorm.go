package repository

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"chance-winner-hub/internal/models"
)

// GormStore is the durable ledger on postgres or mysql.
type GormStore struct {
	db  *gorm.DB
	log *logrus.Logger
}

func NewGormStore(db *gorm.DB, log *logrus.Logger) *GormStore {
	return &GormStore{
		db:  db,
		log: log,
	}
}

func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return ErrDuplicate
	}
	return err
}

func (s *GormStore) InsertTransaction(ctx context.Context, tx *models.Transaction) error {
	return translate(s.db.WithContext(ctx).Create(tx).Error)
}

func (s *GormStore) QueryTransactions(ctx context.Context, filter models.TransactionFilter) ([]models.Transaction, error) {
	q := s.db.WithContext(ctx).Model(&models.Transaction{})

	if filter.UserID != "" {
		q = q.Where("user_id = ?", filter.UserID)
	}
	if filter.IsDemo != nil {
		q = q.Where("is_demo = ?", *filter.IsDemo)
	}
	if filter.Type != "" {
		q = q.Where("type = ?", filter.Type)
	}
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}

	var txs []models.Transaction
	err := q.Order("created_at DESC").Find(&txs).Error
	return txs, translate(err)
}

func (s *GormStore) GetTransaction(ctx context.Context, id string) (*models.Transaction, error) {
	var tx models.Transaction
	if err := s.db.WithContext(ctx).First(&tx, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &tx, nil
}

func (s *GormStore) GetTransactionByReference(ctx context.Context, ref string) (*models.Transaction, error) {
	var tx models.Transaction
	if err := s.db.WithContext(ctx).First(&tx, "reference = ?", ref).Error; err != nil {
		return nil, translate(err)
	}
	return &tx, nil
}

// UpdateTransactionStatus moves a pending row to its next status under a row
// lock. Terminal rows are never touched.
func (s *GormStore) UpdateTransactionStatus(ctx context.Context, id string, status models.TransactionStatus, details models.Details) (*models.Transaction, error) {
	var updated models.Transaction

	err := s.db.WithContext(ctx).Transaction(func(db *gorm.DB) error {
		if err := db.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&updated, "id = ?", id).Error; err != nil {
			return translate(err)
		}

		if updated.Status != models.TransactionStatusPending {
			return ErrNotPending
		}

		updated.Status = status
		if len(details) > 0 {
			if updated.Details == nil {
				updated.Details = make(models.Details, len(details))
			}
			for k, v := range details {
				updated.Details[k] = v
			}
		}

		return translate(db.Save(&updated).Error)
	})
	if err != nil {
		return nil, err
	}

	return &updated, nil
}

func (s *GormStore) GetAccount(ctx context.Context, userID string) (*models.Account, error) {
	var acct models.Account
	if err := s.db.WithContext(ctx).First(&acct, "user_id = ?", userID).Error; err != nil {
		return nil, translate(err)
	}
	return &acct, nil
}

func (s *GormStore) CreateAccount(ctx context.Context, acct *models.Account) error {
	return translate(s.db.WithContext(ctx).Create(acct).Error)
}

func (s *GormStore) UpdateAccountType(ctx context.Context, userID string, accountType models.AccountType) error {
	res := s.db.WithContext(ctx).Model(&models.Account{}).
		Where("user_id = ?", userID).
		Update("account_type", accountType)
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormStore) SetReferredBy(ctx context.Context, userID, referrerID string) error {
	res := s.db.WithContext(ctx).Model(&models.Account{}).
		Where("user_id = ?", userID).
		Update("referred_by", referrerID)
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormStore) FindAccountByReferralCode(ctx context.Context, code string) (*models.Account, error) {
	var acct models.Account
	if err := s.db.WithContext(ctx).First(&acct, "referral_code = ?", code).Error; err != nil {
		return nil, translate(err)
	}
	return &acct, nil
}

func (s *GormStore) CreateReward(ctx context.Context, reward *models.Reward) error {
	return translate(s.db.WithContext(ctx).Create(reward).Error)
}

func (s *GormStore) GetReward(ctx context.Context, id string) (*models.Reward, error) {
	var r models.Reward
	if err := s.db.WithContext(ctx).First(&r, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &r, nil
}

func (s *GormStore) ListRewards(ctx context.Context, userID string) ([]models.Reward, error) {
	var rewards []models.Reward
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&rewards).Error
	return rewards, translate(err)
}

// ClaimReward flips is_claimed with a conditional update and writes the
// deposit in the same database transaction, so a reward pays out once.
func (s *GormStore) ClaimReward(ctx context.Context, id string, deposit *models.Transaction) error {
	return s.db.WithContext(ctx).Transaction(func(db *gorm.DB) error {
		now := time.Now()
		res := db.Model(&models.Reward{}).
			Where("id = ? AND is_claimed = ?", id, false).
			Updates(map[string]interface{}{
				"is_claimed": true,
				"claimed_at": now,
			})
		if res.Error != nil {
			return translate(res.Error)
		}

		if res.RowsAffected == 0 {
			var r models.Reward
			if err := db.First(&r, "id = ?", id).Error; err != nil {
				return translate(err)
			}
			return ErrAlreadyClaimed
		}

		return translate(db.Create(deposit).Error)
	})
}

func (s *GormStore) CreateReferral(ctx context.Context, ref *models.Referral) error {
	return translate(s.db.WithContext(ctx).Create(ref).Error)
}

func (s *GormStore) GetReferralByReferred(ctx context.Context, referredID string) (*models.Referral, error) {
	var ref models.Referral
	if err := s.db.WithContext(ctx).First(&ref, "referred_id = ?", referredID).Error; err != nil {
		return nil, translate(err)
	}
	return &ref, nil
}

func (s *GormStore) CompleteReferral(ctx context.Context, id string, at time.Time) (bool, error) {
	res := s.db.WithContext(ctx).Model(&models.Referral{}).
		Where("id = ? AND status = ?", id, models.ReferralStatusPending).
		Updates(map[string]interface{}{
			"status":         models.ReferralStatusCompleted,
			"reward_claimed": true,
			"completed_at":   at,
		})
	if res.Error != nil {
		return false, translate(res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (s *GormStore) CountCompletedReferrals(ctx context.Context, referrerID string) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.Referral{}).
		Where("referrer_id = ? AND status = ?", referrerID, models.ReferralStatusCompleted).
		Count(&count).Error
	return count, translate(err)
}

func (s *GormStore) CreateDraw(ctx context.Context, draw *models.Draw) error {
	return translate(s.db.WithContext(ctx).Create(draw).Error)
}

func (s *GormStore) GetDraw(ctx context.Context, id string) (*models.Draw, error) {
	var d models.Draw
	if err := s.db.WithContext(ctx).First(&d, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &d, nil
}

func (s *GormStore) ListDraws(ctx context.Context, status models.DrawStatus) ([]models.Draw, error) {
	q := s.db.WithContext(ctx).Model(&models.Draw{})
	if status != "" {
		q = q.Where("status = ?", status)
	}

	var draws []models.Draw
	err := q.Order("created_at DESC").Find(&draws).Error
	return draws, translate(err)
}

func (s *GormStore) CreateTicket(ctx context.Context, ticket *models.Ticket) error {
	return s.db.WithContext(ctx).Transaction(func(db *gorm.DB) error {
		var d models.Draw
		if err := db.Clauses(clause.Locking{Strength: "SHARE"}).
			First(&d, "id = ?", ticket.DrawID).Error; err != nil {
			return translate(err)
		}
		if d.Status != models.DrawStatusOpen {
			return ErrDrawClosed
		}
		return translate(db.Create(ticket).Error)
	})
}

func (s *GormStore) ListTickets(ctx context.Context, drawID string) ([]models.Ticket, error) {
	var tickets []models.Ticket
	err := s.db.WithContext(ctx).
		Where("draw_id = ?", drawID).
		Order("created_at ASC").
		Find(&tickets).Error
	return tickets, translate(err)
}

func (s *GormStore) MarkDrawn(ctx context.Context, id, winningTicketID string, at time.Time) error {
	res := s.db.WithContext(ctx).Model(&models.Draw{}).
		Where("id = ? AND status = ?", id, models.DrawStatusOpen).
		Updates(map[string]interface{}{
			"status":            models.DrawStatusDrawn,
			"winning_ticket_id": winningTicketID,
			"drawn_at":          at,
		})
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		if _, err := s.GetDraw(ctx, id); err != nil {
			return err
		}
		return ErrDrawClosed
	}
	return nil
}

// Ping is used by the health endpoint.
func (s *GormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	s.log.Info("closing database connection")
	return sqlDB.Close()
}
