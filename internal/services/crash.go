package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"chance-winner-hub/internal/config"
	"chance-winner-hub/internal/games"
	"chance-winner-hub/internal/models"
)

// CrashService runs live crash rounds. The stake is debited when the round
// starts; the multiplier then climbs every tick until the player cashes out
// or the hidden crash point is reached.
type CrashService struct {
	ledger      *LedgerService
	accounts    *AccountService
	rules       config.RulesConfig
	recorder    RoundRecorder
	broadcaster Broadcaster
	log         *logrus.Logger

	// tick <= 0 disables the ticker goroutine; rounds then only move via Advance.
	tick   time.Duration
	source func(serverSeed, clientSeed string, nonce int64) games.Rand

	mu         sync.Mutex
	serverSeed string
	seeds      map[string]*playerSeed
	active     map[string]*crashGame
}

type playerSeed struct {
	clientSeed string
	nonce      int64
}

type crashGame struct {
	round *games.CrashRound
	meta  *models.Round

	mu         sync.Mutex
	lastUpdate time.Time

	stop     chan struct{}
	stopOnce sync.Once
}

func (g *crashGame) touch() {
	g.mu.Lock()
	g.lastUpdate = time.Now()
	g.mu.Unlock()
}

func (g *crashGame) idle() time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()
	return time.Since(g.lastUpdate)
}

func (g *crashGame) halt() {
	g.stopOnce.Do(func() { close(g.stop) })
}

func NewCrashService(ledger *LedgerService, accounts *AccountService, rules config.RulesConfig, tick time.Duration, log *logrus.Logger) (*CrashService, error) {
	seed, err := generateServerSeed()
	if err != nil {
		return nil, err
	}

	return &CrashService{
		ledger:      ledger,
		accounts:    accounts,
		rules:       rules,
		recorder:    nopNotifier{},
		broadcaster: nopNotifier{},
		log:         log,
		tick:        tick,
		source: func(serverSeed, clientSeed string, nonce int64) games.Rand {
			return games.NewFairSource(serverSeed, clientSeed, nonce)
		},
		serverSeed: seed,
		seeds:      make(map[string]*playerSeed),
		active:     make(map[string]*crashGame),
	}, nil
}

func generateServerSeed() (string, error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("failed to generate server seed: %w", err)
	}
	return hex.EncodeToString(bytes), nil
}

func (s *CrashService) SetRecorder(r RoundRecorder) {
	if r == nil {
		r = nopNotifier{}
	}
	s.recorder = r
}

func (s *CrashService) SetBroadcaster(b Broadcaster) {
	if b == nil {
		b = nopNotifier{}
	}
	s.broadcaster = b
}

// SetRandSource replaces the provably fair source, e.g. to pin crash points.
func (s *CrashService) SetRandSource(source func(serverSeed, clientSeed string, nonce int64) games.Rand) {
	s.source = source
}

func (s *CrashService) ServerHash() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return games.HashSeed(s.serverSeed)
}

// RotateServerSeed installs a new server seed and reveals the old one so
// earlier rounds can be verified. Every round drawn from the current seed
// must be settled first, otherwise the reveal would expose its crash point.
func (s *CrashService) RotateServerSeed() (string, error) {
	next, err := generateServerSeed()
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if n := len(s.active); n > 0 {
		return "", fmt.Errorf("%w: %d round(s) running", ErrSeedInUse, n)
	}

	revealed := s.serverSeed
	s.serverSeed = next
	s.log.WithField("revealed_hash", games.HashSeed(revealed)).Info("server seed rotated")
	return revealed, nil
}

func (s *CrashService) seedFor(userID string) (*playerSeed, error) {
	seed, ok := s.seeds[userID]
	if ok {
		return seed, nil
	}
	clientSeed, err := models.GenerateClientSeed()
	if err != nil {
		return nil, err
	}
	seed = &playerSeed{clientSeed: clientSeed}
	s.seeds[userID] = seed
	return seed, nil
}

func (s *CrashService) VerificationData(userID string) (*models.VerificationData, error) {
	if userID == "" {
		return nil, ErrAuthenticationRequired
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	seed, err := s.seedFor(userID)
	if err != nil {
		return nil, err
	}
	return &models.VerificationData{
		ClientSeed:   seed.clientSeed,
		ServerHash:   games.HashSeed(s.serverSeed),
		CurrentNonce: seed.nonce,
	}, nil
}

// SetClientSeed lets a player pick their own seed. The nonce restarts at 0.
func (s *CrashService) SetClientSeed(userID, clientSeed string) error {
	if userID == "" {
		return ErrAuthenticationRequired
	}
	if clientSeed == "" || len(clientSeed) > 64 {
		return fmt.Errorf("%w: client seed must be 1-64 characters", ErrInvalidRequest)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.seeds[userID] = &playerSeed{clientSeed: clientSeed}
	return nil
}

// Verify replays the crash point of a round for a revealed server seed.
func (s *CrashService) Verify(req models.VerifyRequest) (decimal.Decimal, string) {
	return games.VerifyCrashPoint(req.ServerSeed, req.ClientSeed, req.Nonce), games.HashSeed(req.ServerSeed)
}

func (s *CrashService) StartRound(ctx context.Context, userID string, req models.CrashStartRequest) (*models.BetResult, error) {
	stake, err := ParseAmount(req.Stake)
	if err != nil {
		return nil, err
	}
	if s.rules.MaxStake.IsPositive() && stake.GreaterThan(s.rules.MaxStake) {
		return nil, fmt.Errorf("%w: stake %s above limit %s", ErrInvalidStake, stake, s.rules.MaxStake)
	}

	acct, err := s.accounts.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	isDemo, err := resolveMode(acct, req.Demo)
	if err != nil {
		return nil, err
	}

	unlock := s.ledger.Lock(userID, isDemo)
	w := wager{userID: userID, game: models.GameTypeCrash, stake: stake, roundID: req.RoundID, demo: req.Demo}
	meta, debit, err := openRound(ctx, s.ledger, acct, isDemo, w)
	unlock()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	seed, err := s.seedFor(userID)
	if err != nil {
		s.mu.Unlock()
		finishRound(ctx, s.recorder, s.log, meta, models.RoundStatusFailed)
		return nil, err
	}
	nonce := seed.nonce
	seed.nonce++
	serverSeed := s.serverSeed
	crashPoint := games.DrawCrashPoint(s.source(serverSeed, seed.clientSeed, nonce))

	meta.Multiplier = decimal.NewFromInt(1)
	meta.ClientSeed = seed.clientSeed
	meta.ServerSeedHash = games.HashSeed(serverSeed)
	meta.Nonce = nonce

	g := &crashGame{
		round:      games.NewCrashRound(stake, crashPoint),
		meta:       meta,
		lastUpdate: time.Now(),
		stop:       make(chan struct{}),
	}
	view := *meta
	s.active[meta.ID] = g
	s.mu.Unlock()

	if err := s.recorder.SaveRound(ctx, &view); err != nil {
		s.log.WithError(err).WithField("round_id", meta.ID).Warn("failed to record round")
	}

	s.log.WithFields(logrus.Fields{
		"round_id": meta.ID,
		"user_id":  userID,
		"stake":    stake.StringFixed(2),
		"demo":     isDemo,
		"nonce":    nonce,
	}).Info("crash round started")

	if s.tick > 0 {
		go s.run(g)
	}

	balance, err := s.ledger.Balance(ctx, userID, isDemo)
	if err != nil {
		return nil, err
	}
	return &models.BetResult{Round: &view, Debit: debit, Balance: balance}, nil
}

func (s *CrashService) run(g *crashGame) {
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, done := s.step(context.Background(), g); done {
				return
			}
		case <-g.stop:
			return
		}
	}
}

// step advances one tick and reports whether the round is over.
func (s *CrashService) step(ctx context.Context, g *crashGame) (decimal.Decimal, bool) {
	multiplier, crashed := g.round.Tick()
	g.touch()

	if crashed {
		s.endCrashed(ctx, g)
		return multiplier, true
	}
	if g.round.State() != games.CrashStateRunning {
		return multiplier, true
	}

	m, _ := multiplier.Float64()
	s.broadcaster.BroadcastRoundTick(g.meta.UserID, g.meta.ID, m)
	return multiplier, false
}

// Advance moves a round forward by the given number of ticks without
// waiting for the ticker.
func (s *CrashService) Advance(ctx context.Context, roundID string, ticks int) (decimal.Decimal, error) {
	g, ok := s.lookup(roundID)
	if !ok {
		return decimal.Zero, ErrRoundClosed
	}

	multiplier := g.round.Multiplier()
	for i := 0; i < ticks; i++ {
		var done bool
		multiplier, done = s.step(ctx, g)
		if done {
			break
		}
	}
	return multiplier, nil
}

func (s *CrashService) lookup(roundID string) (*crashGame, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.active[roundID]
	return g, ok
}

func (s *CrashService) remove(g *crashGame) {
	g.halt()
	s.mu.Lock()
	delete(s.active, g.meta.ID)
	s.mu.Unlock()
}

func (s *CrashService) endCrashed(ctx context.Context, g *crashGame) {
	s.remove(g)

	meta := g.meta
	meta.CrashPoint = g.round.CrashPoint()
	meta.Multiplier = meta.CrashPoint
	meta.Payout = decimal.Zero
	finishRound(ctx, s.recorder, s.log, meta, models.RoundStatusCrashed)

	cp, _ := meta.CrashPoint.Float64()
	s.broadcaster.BroadcastRoundCrash(meta.UserID, meta.ID, cp)

	s.log.WithFields(logrus.Fields{
		"round_id":    meta.ID,
		"user_id":     meta.UserID,
		"crash_point": meta.CrashPoint.StringFixed(2),
	}).Info("crash round crashed")
}

func (s *CrashService) ownedGame(userID, roundID string) (*crashGame, error) {
	if userID == "" {
		return nil, ErrAuthenticationRequired
	}
	g, ok := s.lookup(roundID)
	if !ok {
		return nil, fmt.Errorf("%w: round %s is not running", ErrRoundClosed, roundID)
	}
	if g.meta.UserID != userID {
		return nil, fmt.Errorf("%w: round %s belongs to another player", ErrForbidden, roundID)
	}
	return g, nil
}

// Cashout pays stake × current multiplier. It is a no-op error once the
// round has crashed, cashed out or been abandoned.
func (s *CrashService) Cashout(ctx context.Context, userID, roundID string) (*models.BetResult, error) {
	g, err := s.ownedGame(userID, roundID)
	if err != nil {
		return nil, err
	}

	payout, multiplier, err := g.round.Cashout()
	if err != nil {
		return nil, fmt.Errorf("cashout %s: %w", roundID, err)
	}
	s.remove(g)

	meta := g.meta
	meta.Multiplier = multiplier
	meta.Payout = payout
	meta.CrashPoint = g.round.CrashPoint()

	log := s.log.WithFields(logrus.Fields{
		"round_id":   meta.ID,
		"user_id":    userID,
		"multiplier": multiplier.StringFixed(2),
		"payout":     payout.StringFixed(2),
	})

	credit, err := creditRound(ctx, s.ledger, meta)
	if err != nil {
		meta.Payout = decimal.Zero
		finishRound(ctx, s.recorder, s.log, meta, models.RoundStatusFailed)
		log.WithError(err).Error("cashout credit failed, stake stays debited")
		return nil, err
	}
	finishRound(ctx, s.recorder, s.log, meta, models.RoundStatusCashedOut)
	log.Info("crash round cashed out")

	balance, err := s.ledger.Balance(ctx, userID, meta.IsDemo)
	if err != nil {
		return nil, err
	}
	return &models.BetResult{Round: meta, Credit: credit, Balance: balance}, nil
}

// Abandon forfeits a running round: the stake stays debited and nothing is
// credited.
func (s *CrashService) Abandon(ctx context.Context, userID, roundID string) (*models.Round, error) {
	g, err := s.ownedGame(userID, roundID)
	if err != nil {
		return nil, err
	}
	if !s.forfeit(ctx, g) {
		return nil, fmt.Errorf("abandon %s: %w", roundID, ErrRoundClosed)
	}
	return g.meta, nil
}

func (s *CrashService) forfeit(ctx context.Context, g *crashGame) bool {
	if !g.round.Forfeit() {
		return false
	}
	s.remove(g)

	meta := g.meta
	meta.Multiplier = g.round.Multiplier()
	meta.CrashPoint = g.round.CrashPoint()
	meta.Payout = decimal.Zero
	finishRound(ctx, s.recorder, s.log, meta, models.RoundStatusAbandoned)

	s.log.WithFields(logrus.Fields{
		"round_id": meta.ID,
		"user_id":  meta.UserID,
	}).Info("crash round abandoned")
	return true
}

// ActiveRounds lists the player's running rounds. Crash points stay hidden.
func (s *CrashService) ActiveRounds(userID string) []models.Round {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.Round
	for _, g := range s.active {
		if g.meta.UserID != userID {
			continue
		}
		view := *g.meta
		view.Multiplier = g.round.Multiplier()
		out = append(out, view)
	}
	return out
}

// CleanupStale abandons rounds that have not ticked for maxAge and returns
// how many it closed.
func (s *CrashService) CleanupStale(ctx context.Context, maxAge time.Duration) int {
	s.mu.Lock()
	var stale []*crashGame
	for _, g := range s.active {
		if g.idle() > maxAge {
			stale = append(stale, g)
		}
	}
	s.mu.Unlock()

	closed := 0
	for _, g := range stale {
		if s.forfeit(ctx, g) {
			closed++
		}
	}
	if closed > 0 {
		s.log.WithField("count", closed).Warn("abandoned stale crash rounds")
	}
	return closed
}

// Shutdown forfeits every running round.
func (s *CrashService) Shutdown(ctx context.Context) {
	s.CleanupStale(ctx, -1)
}
