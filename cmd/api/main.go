package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"chance-winner-hub/internal/config"
	"chance-winner-hub/internal/consumer"
	"chance-winner-hub/internal/handlers"
	"chance-winner-hub/internal/logger"
	"chance-winner-hub/internal/middleware"
	"chance-winner-hub/internal/repository"
	"chance-winner-hub/internal/services"
)

const (
	staleRoundCheck = time.Minute
	staleRoundAge   = 10 * time.Minute
	shutdownTimeout = 15 * time.Second
)

func main() {
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("failed to load config")
	}

	log := logger.New(cfg.LogLevel)
	if envErr != nil {
		log.Info("no .env file found, using environment variables")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := openStore(cfg.Database, log)
	if err != nil {
		log.WithError(err).Fatal("failed to open store")
	}
	defer store.Close()

	accounts := services.NewAccountService(store, log)
	ledger := services.NewLedgerService(store, accounts, cfg.Rules, log)
	hub := handlers.NewWebSocketHub(ledger, log)

	settlement := services.NewSettlementService(ledger, accounts, cfg.Rules, nil, log)
	crash, err := services.NewCrashService(ledger, accounts, cfg.Rules, cfg.CrashTick, log)
	if err != nil {
		log.WithError(err).Fatal("failed to start crash service")
	}
	crash.SetBroadcaster(hub)

	rewards := services.NewRewardService(store, accounts, ledger, cfg.Rules, log)
	payments := services.NewPaymentService(ledger, accounts, rewards, log)
	withdrawals := services.NewWithdrawalService(ledger, accounts, cfg.Rules, log)
	lottery := services.NewLotteryService(store, ledger, accounts, nil, log)

	// Redis carries the change feed across instances and keeps round
	// history; without it the hub serves this instance only.
	var (
		limiter middleware.RateLimiter
		history handlers.RoundHistory
	)
	redisService, err := services.NewRedisService(cfg.Redis, log)
	if err != nil {
		log.WithError(err).Warn("redis unavailable, running without rate limits or round history")
		ledger.SetNotifier(hub)
	} else {
		defer redisService.Close()

		ledger.SetNotifier(redisService)
		settlement.SetRecorder(redisService)
		crash.SetRecorder(redisService)
		limiter, history = redisService, redisService

		go hub.Run(ctx, redisService.Subscribe(ctx))
	}

	if cfg.Telegram.Token != "" {
		bot, err := services.NewTelegramNotifier(cfg.Telegram, log)
		if err != nil {
			log.WithError(err).Warn("telegram unavailable, admin alerts disabled")
		} else {
			bot.SetPendingSource(withdrawals.Pending)
			withdrawals.SetAdminNotifier(bot)
			payments.SetAdminNotifier(bot)
			go bot.Listen(ctx)
		}
	}

	if cfg.Rabbit.URL != "" {
		c, err := consumer.New(cfg.Rabbit, consumer.NewHandler(payments, log), log)
		if err != nil {
			log.WithError(err).Fatal("failed to connect to RabbitMQ")
		}
		defer c.Close()

		go func() {
			if err := c.Start(ctx); err != nil {
				log.WithError(err).Error("payment consumer stopped")
			}
		}()
	}

	go func() {
		ticker := time.NewTicker(staleRoundCheck)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := crash.CleanupStale(ctx, staleRoundAge); n > 0 {
					log.WithField("rounds", n).Info("forfeited stale crash rounds")
				}
			}
		}
	}()

	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	deps := handlers.Deps{
		JWT:     services.NewJWTService(cfg.JWTSecret, cfg.JWTTTL),
		Health:  func() error { return store.Ping(context.Background()) },
		User:    handlers.NewUserHandler(ledger, accounts),
		Game:    handlers.NewGameHandler(settlement, crash, history),
		Wallet:  handlers.NewWalletHandler(payments, withdrawals, rewards),
		Lottery: handlers.NewLotteryHandler(lottery),
		Admin:   handlers.NewAdminHandler(withdrawals, payments),
		Hub:     hub,
		Log:     log,
		Limiter: limiter,
		Origins: cfg.AllowedOrigins,
	}

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: handlers.NewRouter(deps),
	}

	go func() {
		log.WithField("port", cfg.Port).Info("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("failed to start server")
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("server shutdown failed")
	}
	crash.Shutdown(shutdownCtx)
}

func openStore(cfg config.DatabaseConfig, log *logrus.Logger) (services.Store, error) {
	if cfg.Driver == "memory" {
		log.Warn("using in-memory store, balances are lost on restart")
		return repository.NewMemoryStore(), nil
	}

	db, err := repository.Open(cfg, log)
	if err != nil {
		return nil, err
	}
	return repository.NewGormStore(db, log), nil
}
