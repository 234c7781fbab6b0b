package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"chance-winner-hub/internal/config"
	"chance-winner-hub/internal/games"
	"chance-winner-hub/internal/handlers"
	"chance-winner-hub/internal/middleware"
	"chance-winner-hub/internal/models"
	"chance-winner-hub/internal/repository"
	"chance-winner-hub/internal/services"
)

type testServer struct {
	router *gin.Engine
	deps   handlers.Deps
	jwt    *services.JWTService
	store  *repository.MemoryStore
}

type denyAll struct{}

func (denyAll) CheckRateLimit(context.Context, string, string, int, time.Duration) (bool, error) {
	return false, nil
}

func newTestServer(t *testing.T, rng games.Rand, limiter middleware.RateLimiter) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	log := logrus.New()
	log.SetOutput(io.Discard)

	rules := config.DefaultRules()
	store := repository.NewMemoryStore()
	accounts := services.NewAccountService(store, log)
	ledger := services.NewLedgerService(store, accounts, rules, log)

	hub := handlers.NewWebSocketHub(ledger, log)
	ledger.SetNotifier(hub)

	settlement := services.NewSettlementService(ledger, accounts, rules, rng, log)
	crash, err := services.NewCrashService(ledger, accounts, rules, 0, log)
	if err != nil {
		t.Fatalf("Failed to create crash service: %v", err)
	}
	crash.SetBroadcaster(hub)

	rewards := services.NewRewardService(store, accounts, ledger, rules, log)
	payments := services.NewPaymentService(ledger, accounts, rewards, log)
	withdrawals := services.NewWithdrawalService(ledger, accounts, rules, log)
	lottery := services.NewLotteryService(store, ledger, accounts, rng, log)

	jwtService := services.NewJWTService("test-secret", time.Hour)

	deps := handlers.Deps{
		JWT:     jwtService,
		Health:  func() error { return store.Ping(context.Background()) },
		User:    handlers.NewUserHandler(ledger, accounts),
		Game:    handlers.NewGameHandler(settlement, crash, nil),
		Wallet:  handlers.NewWalletHandler(payments, withdrawals, rewards),
		Lottery: handlers.NewLotteryHandler(lottery),
		Admin:   handlers.NewAdminHandler(withdrawals, payments),
		Hub:     hub,
		Log:     log,
		Limiter: limiter,
	}

	return &testServer{
		router: handlers.NewRouter(deps),
		deps:   deps,
		jwt:    jwtService,
		store:  store,
	}
}

func (s *testServer) token(t *testing.T, userID, role string) string {
	t.Helper()
	token, err := s.jwt.GenerateToken(userID, role)
	if err != nil {
		t.Fatalf("Failed to generate token: %v", err)
	}
	return token
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) (int, map[string]any) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("Failed to marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var resp map[string]any
	if w.Body.Len() > 0 {
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("Failed to decode response %q: %v", w.Body.String(), err)
		}
	}
	return w.Code, resp
}

func (s *testServer) fund(t *testing.T, userID, amount string) {
	t.Helper()
	now := time.Now().UTC()
	tx := &models.Transaction{
		ID:        models.GenerateTransactionID(),
		UserID:    userID,
		Amount:    decimal.RequireFromString(amount),
		Type:      models.TransactionTypeDeposit,
		Status:    models.TransactionStatusCompleted,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.InsertTransaction(context.Background(), tx); err != nil {
		t.Fatalf("Failed to fund: %v", err)
	}
}

func balanceOf(t *testing.T, resp map[string]any) string {
	t.Helper()
	b, ok := resp["balance"].(map[string]any)
	if !ok {
		t.Fatalf("Response has no balance: %v", resp)
	}
	return fmt.Sprint(b["balance"])
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, nil, nil)
	if code, _ := s.do(t, http.MethodGet, "/health", "", nil); code != http.StatusOK {
		t.Errorf("Expected 200, got %d", code)
	}
}

func TestHealthHidesStoreError(t *testing.T) {
	s := newTestServer(t, nil, nil)
	s.deps.Health = func() error { return errors.New("dial tcp 10.0.0.5:5432: password authentication failed") }
	s.router = handlers.NewRouter(s.deps)

	code, resp := s.do(t, http.MethodGet, "/health", "", nil)
	if code != http.StatusServiceUnavailable {
		t.Fatalf("Expected 503, got %d", code)
	}
	if resp["status"] != "unavailable" {
		t.Errorf("Expected unavailable status, got %v", resp)
	}
	if len(resp) != 1 {
		t.Errorf("Expected only the status in the body, got %v", resp)
	}
}

func TestAuthRequired(t *testing.T) {
	s := newTestServer(t, nil, nil)

	if code, _ := s.do(t, http.MethodGet, "/api/balance", "", nil); code != http.StatusUnauthorized {
		t.Errorf("Expected 401 without token, got %d", code)
	}
	if code, _ := s.do(t, http.MethodGet, "/api/balance", "garbage", nil); code != http.StatusUnauthorized {
		t.Errorf("Expected 401 with bad token, got %d", code)
	}

	player := s.token(t, "alice", services.RolePlayer)
	if code, _ := s.do(t, http.MethodGet, "/api/admin/withdrawals/pending", player, nil); code != http.StatusForbidden {
		t.Errorf("Expected 403 for player on admin route, got %d", code)
	}
}

func TestBalanceAndDemoSwitch(t *testing.T) {
	s := newTestServer(t, nil, nil)
	s.fund(t, "alice", "100")
	token := s.token(t, "alice", "")

	code, resp := s.do(t, http.MethodGet, "/api/balance", token, nil)
	if code != http.StatusOK || balanceOf(t, resp) != "100" {
		t.Fatalf("Expected 100, got %d %v", code, resp)
	}

	code, resp = s.do(t, http.MethodPost, "/api/account/type", token, gin.H{"account_type": "demo"})
	if code != http.StatusOK || balanceOf(t, resp) != "1000" {
		t.Fatalf("Expected demo balance 1000, got %d %v", code, resp)
	}

	code, resp = s.do(t, http.MethodGet, "/api/transactions", token, nil)
	if code != http.StatusOK || resp["count"].(float64) != 1 {
		t.Errorf("Expected only the demo seed in history, got %v", resp)
	}
}

func TestDiceErrorsMapToMessageClasses(t *testing.T) {
	s := newTestServer(t, &games.Sequence{Ints: []int{5}}, nil)
	s.fund(t, "alice", "5")
	token := s.token(t, "alice", "")

	code, resp := s.do(t, http.MethodPost, "/api/games/dice", token, gin.H{
		"stake": "10", "target": 3, "direction": "higher",
	})
	if code != http.StatusPaymentRequired || resp["class"] != string(services.ErrorClassFunds) {
		t.Errorf("Expected funds error, got %d %v", code, resp)
	}
	if resp["error"] != "You don't have enough funds." {
		t.Errorf("Unexpected message: %v", resp["error"])
	}

	code, _ = s.do(t, http.MethodPost, "/api/games/dice", token, gin.H{
		"stake": "1", "target": 9, "direction": "higher",
	})
	if code != http.StatusBadRequest {
		t.Errorf("Expected 400 for target out of range, got %d", code)
	}

	code, resp = s.do(t, http.MethodPost, "/api/games/dice", token, gin.H{
		"stake": "2", "target": 3, "direction": "higher",
	})
	if code != http.StatusOK {
		t.Fatalf("Expected win, got %d %v", code, resp)
	}
}

func TestWithdrawalFlowOverHTTP(t *testing.T) {
	s := newTestServer(t, nil, nil)
	s.fund(t, "alice", "100")
	player := s.token(t, "alice", "")
	admin := s.token(t, "ops", services.RoleAdmin)

	code, resp := s.do(t, http.MethodPost, "/api/withdrawals", player, gin.H{
		"amount": "40", "method": "mpesa", "details": gin.H{"phone_number": "+254700000000"},
	})
	if code != http.StatusAccepted {
		t.Fatalf("Expected 202, got %d %v", code, resp)
	}
	txID := resp["transaction"].(map[string]any)["id"].(string)

	_, resp = s.do(t, http.MethodGet, "/api/admin/withdrawals/pending", admin, nil)
	if resp["count"].(float64) != 1 {
		t.Fatalf("Expected one pending withdrawal, got %v", resp)
	}

	code, _ = s.do(t, http.MethodPost, "/api/admin/withdrawals/"+txID+"/resolve", admin, gin.H{"approve": false, "reason": "kyc"})
	if code != http.StatusOK {
		t.Fatalf("Expected 200 on reject, got %d", code)
	}

	code, _ = s.do(t, http.MethodPost, "/api/admin/withdrawals/"+txID+"/resolve", admin, gin.H{"approve": true})
	if code != http.StatusConflict {
		t.Errorf("Expected 409 resolving twice, got %d", code)
	}

	_, resp = s.do(t, http.MethodGet, "/api/balance", player, nil)
	if balanceOf(t, resp) != "60" {
		t.Errorf("Expected 60 after rejection, got %v", resp)
	}
}

func TestRewardClaimTwice(t *testing.T) {
	s := newTestServer(t, nil, nil)
	token := s.token(t, "alice", "")

	reward := &models.Reward{
		ID:         "reward-1",
		UserID:     "alice",
		RewardType: models.RewardTypeCashback,
		Amount:     decimal.NewFromInt(15),
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.store.CreateReward(context.Background(), reward); err != nil {
		t.Fatalf("Failed to create reward: %v", err)
	}

	if code, _ := s.do(t, http.MethodPost, "/api/rewards/reward-1/claim", token, nil); code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", code)
	}
	code, resp := s.do(t, http.MethodPost, "/api/rewards/reward-1/claim", token, nil)
	if code != http.StatusConflict || resp["class"] != string(services.ErrorClassClaimed) {
		t.Errorf("Expected claimed error, got %d %v", code, resp)
	}
}

func TestLotteryOverHTTP(t *testing.T) {
	s := newTestServer(t, &games.Sequence{}, nil)
	s.fund(t, "alice", "10")
	player := s.token(t, "alice", "")
	admin := s.token(t, "ops", services.RoleAdmin)

	code, resp := s.do(t, http.MethodPost, "/api/admin/draws", admin, gin.H{
		"name": "Daily", "ticket_price": "1", "prize": "50",
	})
	if code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d %v", code, resp)
	}
	drawID := resp["draw"].(map[string]any)["id"].(string)

	if code, _ := s.do(t, http.MethodPost, "/api/draws/"+drawID+"/tickets", player, nil); code != http.StatusCreated {
		t.Fatalf("Expected 201 on ticket purchase, got %d", code)
	}
	if code, _ := s.do(t, http.MethodPost, "/api/admin/draws/"+drawID+"/run", admin, nil); code != http.StatusOK {
		t.Fatalf("Expected 200 on draw, got %d", code)
	}

	_, resp = s.do(t, http.MethodGet, "/api/balance", player, nil)
	if balanceOf(t, resp) != "59" {
		t.Errorf("Expected 59 after winning, got %v", resp)
	}
}

func TestRateLimitedBets(t *testing.T) {
	s := newTestServer(t, nil, denyAll{})
	s.fund(t, "alice", "100")
	token := s.token(t, "alice", "")

	code, _ := s.do(t, http.MethodPost, "/api/games/wheel", token, gin.H{"stake": "1"})
	if code != http.StatusTooManyRequests {
		t.Errorf("Expected 429, got %d", code)
	}

	if code, _ := s.do(t, http.MethodGet, "/api/balance", token, nil); code != http.StatusOK {
		t.Errorf("Reads should not be limited, got %d", code)
	}
}

func TestSeedRotation(t *testing.T) {
	s := newTestServer(t, nil, nil)
	player := s.token(t, "alice", "")
	admin := s.token(t, "ops", services.RoleAdmin)

	_, resp := s.do(t, http.MethodGet, "/api/games/verification", player, nil)
	before := resp["data"].(map[string]any)["server_hash"]

	if code, _ := s.do(t, http.MethodPost, "/api/admin/seed/rotate", player, nil); code != http.StatusForbidden {
		t.Errorf("Expected 403 for player, got %d", code)
	}

	code, resp := s.do(t, http.MethodPost, "/api/admin/seed/rotate", admin, nil)
	if code != http.StatusOK || resp["revealed_seed"] == "" {
		t.Fatalf("Expected revealed seed, got %d %v", code, resp)
	}
	if resp["server_hash"] == before {
		t.Error("Server seed hash did not change after rotation")
	}

	if code, _ := s.do(t, http.MethodGet, "/api/games/rounds/unknown", player, nil); code != http.StatusNotFound {
		t.Errorf("Expected 404 without round history, got %d", code)
	}
}

func TestAccountTypeRouteRejectsInfluencer(t *testing.T) {
	s := newTestServer(t, nil, nil)
	token := s.token(t, "mallory", "")

	code, _ := s.do(t, http.MethodPost, "/api/account/type", token, gin.H{"account_type": "influencer"})
	if code != http.StatusForbidden {
		t.Errorf("Expected 403 for influencer, got %d", code)
	}

	_, resp := s.do(t, http.MethodGet, "/api/me", token, nil)
	acct, _ := resp["account"].(map[string]any)
	if acct["account_type"] != string(models.AccountTypeReal) {
		t.Errorf("Expected account to stay real, got %v", resp)
	}
}
