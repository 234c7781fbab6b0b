package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"chance-winner-hub/internal/models"
)

// MemoryStore keeps everything in process memory. It backs STORE_DRIVER=memory
// and the service tests.
type MemoryStore struct {
	mu sync.RWMutex

	transactions map[string]*models.Transaction
	references   map[string]string
	order        []string

	accounts  map[string]*models.Account
	rewards   map[string]*models.Reward
	referrals map[string]*models.Referral
	draws     map[string]*models.Draw
	tickets   map[string][]*models.Ticket

	// FailInsert, when set, is consulted before every transaction insert;
	// a non-nil result aborts the write.
	FailInsert func(tx *models.Transaction) error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		transactions: make(map[string]*models.Transaction),
		references:   make(map[string]string),
		accounts:     make(map[string]*models.Account),
		rewards:      make(map[string]*models.Reward),
		referrals:    make(map[string]*models.Referral),
		draws:        make(map[string]*models.Draw),
		tickets:      make(map[string][]*models.Ticket),
	}
}

func copyTx(tx *models.Transaction) models.Transaction {
	out := *tx
	if tx.Details != nil {
		out.Details = make(models.Details, len(tx.Details))
		for k, v := range tx.Details {
			out.Details[k] = v
		}
	}
	return out
}

func (s *MemoryStore) InsertTransaction(ctx context.Context, tx *models.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailInsert != nil {
		if err := s.FailInsert(tx); err != nil {
			return err
		}
	}

	return s.insertLocked(tx)
}

func (s *MemoryStore) insertLocked(tx *models.Transaction) error {
	if _, ok := s.transactions[tx.ID]; ok {
		return ErrDuplicate
	}
	if tx.Reference != nil {
		if _, ok := s.references[*tx.Reference]; ok {
			return ErrDuplicate
		}
	}

	now := time.Now()
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = now
	}
	tx.UpdatedAt = now

	stored := copyTx(tx)
	s.transactions[tx.ID] = &stored
	if tx.Reference != nil {
		s.references[*tx.Reference] = tx.ID
	}
	s.order = append(s.order, tx.ID)
	return nil
}

func (s *MemoryStore) QueryTransactions(ctx context.Context, filter models.TransactionFilter) ([]models.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.Transaction
	// newest first
	for i := len(s.order) - 1; i >= 0; i-- {
		tx := s.transactions[s.order[i]]
		if filter.UserID != "" && tx.UserID != filter.UserID {
			continue
		}
		if filter.IsDemo != nil && tx.IsDemo != *filter.IsDemo {
			continue
		}
		if filter.Type != "" && tx.Type != filter.Type {
			continue
		}
		if filter.Status != "" && tx.Status != filter.Status {
			continue
		}
		out = append(out, copyTx(tx))
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out, nil
}

func (s *MemoryStore) GetTransaction(ctx context.Context, id string) (*models.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tx, ok := s.transactions[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := copyTx(tx)
	return &out, nil
}

func (s *MemoryStore) GetTransactionByReference(ctx context.Context, ref string) (*models.Transaction, error) {
	s.mu.RLock()
	id, ok := s.references[ref]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return s.GetTransaction(ctx, id)
}

func (s *MemoryStore) UpdateTransactionStatus(ctx context.Context, id string, status models.TransactionStatus, details models.Details) (*models.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, ok := s.transactions[id]
	if !ok {
		return nil, ErrNotFound
	}
	if tx.Status != models.TransactionStatusPending {
		return nil, ErrNotPending
	}

	tx.Status = status
	if len(details) > 0 {
		if tx.Details == nil {
			tx.Details = make(models.Details, len(details))
		}
		for k, v := range details {
			tx.Details[k] = v
		}
	}
	tx.UpdatedAt = time.Now()

	out := copyTx(tx)
	return &out, nil
}

func (s *MemoryStore) GetAccount(ctx context.Context, userID string) (*models.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	acct, ok := s.accounts[userID]
	if !ok {
		return nil, ErrNotFound
	}
	out := *acct
	return &out, nil
}

func (s *MemoryStore) CreateAccount(ctx context.Context, acct *models.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.accounts[acct.UserID]; ok {
		return ErrDuplicate
	}
	now := time.Now()
	acct.CreatedAt, acct.UpdatedAt = now, now

	stored := *acct
	s.accounts[acct.UserID] = &stored
	return nil
}

func (s *MemoryStore) UpdateAccountType(ctx context.Context, userID string, accountType models.AccountType) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct, ok := s.accounts[userID]
	if !ok {
		return ErrNotFound
	}
	acct.AccountType = accountType
	acct.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) SetReferredBy(ctx context.Context, userID, referrerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct, ok := s.accounts[userID]
	if !ok {
		return ErrNotFound
	}
	acct.ReferredBy = referrerID
	acct.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) FindAccountByReferralCode(ctx context.Context, code string) (*models.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, acct := range s.accounts {
		if acct.ReferralCode == code {
			out := *acct
			return &out, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) CreateReward(ctx context.Context, reward *models.Reward) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rewards[reward.ID]; ok {
		return ErrDuplicate
	}
	if reward.CreatedAt.IsZero() {
		reward.CreatedAt = time.Now()
	}
	stored := *reward
	s.rewards[reward.ID] = &stored
	return nil
}

func (s *MemoryStore) GetReward(ctx context.Context, id string) (*models.Reward, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.rewards[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := *r
	return &out, nil
}

func (s *MemoryStore) ListRewards(ctx context.Context, userID string) ([]models.Reward, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.Reward
	for _, r := range s.rewards {
		if r.UserID == userID {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// ClaimReward flips the claim flag and writes the deposit under one lock.
func (s *MemoryStore) ClaimReward(ctx context.Context, id string, deposit *models.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rewards[id]
	if !ok {
		return ErrNotFound
	}
	if r.IsClaimed {
		return ErrAlreadyClaimed
	}
	if s.FailInsert != nil {
		if err := s.FailInsert(deposit); err != nil {
			return err
		}
	}
	if err := s.insertLocked(deposit); err != nil {
		return err
	}

	now := time.Now()
	r.IsClaimed = true
	r.ClaimedAt = &now
	return nil
}

func (s *MemoryStore) CreateReferral(ctx context.Context, ref *models.Referral) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.referrals {
		if existing.ReferredID == ref.ReferredID {
			return ErrDuplicate
		}
	}
	if ref.CreatedAt.IsZero() {
		ref.CreatedAt = time.Now()
	}
	stored := *ref
	s.referrals[ref.ID] = &stored
	return nil
}

func (s *MemoryStore) GetReferralByReferred(ctx context.Context, referredID string) (*models.Referral, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, ref := range s.referrals {
		if ref.ReferredID == referredID {
			out := *ref
			return &out, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) CompleteReferral(ctx context.Context, id string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ref, ok := s.referrals[id]
	if !ok {
		return false, ErrNotFound
	}
	if ref.Status != models.ReferralStatusPending {
		return false, nil
	}
	ref.Status = models.ReferralStatusCompleted
	ref.RewardClaimed = true
	ref.CompletedAt = &at
	return true, nil
}

func (s *MemoryStore) CountCompletedReferrals(ctx context.Context, referrerID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	for _, ref := range s.referrals {
		if ref.ReferrerID == referrerID && ref.Status == models.ReferralStatusCompleted {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) CreateDraw(ctx context.Context, draw *models.Draw) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if draw.CreatedAt.IsZero() {
		draw.CreatedAt = time.Now()
	}
	stored := *draw
	s.draws[draw.ID] = &stored
	return nil
}

func (s *MemoryStore) GetDraw(ctx context.Context, id string) (*models.Draw, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.draws[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := *d
	return &out, nil
}

func (s *MemoryStore) ListDraws(ctx context.Context, status models.DrawStatus) ([]models.Draw, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.Draw
	for _, d := range s.draws {
		if status == "" || d.Status == status {
			out = append(out, *d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) CreateTicket(ctx context.Context, ticket *models.Ticket) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.draws[ticket.DrawID]
	if !ok {
		return ErrNotFound
	}
	if d.Status != models.DrawStatusOpen {
		return ErrDrawClosed
	}
	if ticket.CreatedAt.IsZero() {
		ticket.CreatedAt = time.Now()
	}
	stored := *ticket
	s.tickets[ticket.DrawID] = append(s.tickets[ticket.DrawID], &stored)
	return nil
}

func (s *MemoryStore) ListTickets(ctx context.Context, drawID string) ([]models.Ticket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Ticket, 0, len(s.tickets[drawID]))
	for _, t := range s.tickets[drawID] {
		out = append(out, *t)
	}
	return out, nil
}

func (s *MemoryStore) MarkDrawn(ctx context.Context, id, winningTicketID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.draws[id]
	if !ok {
		return ErrNotFound
	}
	if d.Status != models.DrawStatusOpen {
		return ErrDrawClosed
	}
	d.Status = models.DrawStatusDrawn
	d.WinningTicketID = winningTicketID
	d.DrawnAt = &at
	return nil
}

func (s *MemoryStore) Ping(ctx context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }
