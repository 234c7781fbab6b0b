package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type Config struct {
	Port     string
	Env      string
	LogLevel string

	// AllowedOrigins is empty when any origin may call the API.
	AllowedOrigins []string

	JWTSecret string
	JWTTTL    time.Duration

	Database DatabaseConfig
	Redis    RedisConfig
	Rabbit   RabbitConfig
	Telegram TelegramConfig
	Rules    RulesConfig

	CrashTick time.Duration
}

type DatabaseConfig struct {
	Driver       string // postgres, mysql or memory
	URL          string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	URL      string
	Password string
	DB       int
}

type RabbitConfig struct {
	URL      string
	Queue    string
	Prefetch int
	Workers  int
}

type TelegramConfig struct {
	Token       string
	AdminChatID int64
}

// RulesConfig holds the economic constants of the ledger.
type RulesConfig struct {
	DemoStartingBalance       decimal.Decimal
	ReferralBonus             decimal.Decimal
	ReferralDepositPercent    decimal.Decimal
	InfluencerThreshold       int64
	InfluencerBonus           decimal.Decimal
	ScratchCardPrice          decimal.Decimal
	MaxStake                  decimal.Decimal
	RefundRejectedWithdrawals bool
}

func DefaultRules() RulesConfig {
	return RulesConfig{
		DemoStartingBalance:    decimal.NewFromInt(1000),
		ReferralBonus:          decimal.NewFromInt(10),
		ReferralDepositPercent: decimal.NewFromInt(5),
		InfluencerThreshold:    10,
		InfluencerBonus:        decimal.NewFromInt(100),
		ScratchCardPrice:       decimal.NewFromInt(5),
		MaxStake:               decimal.NewFromInt(10000),
	}
}

func Load() (*Config, error) {
	defaults := DefaultRules()

	demo, err := decimalFromEnv("DEMO_STARTING_BALANCE", defaults.DemoStartingBalance)
	if err != nil {
		return nil, err
	}
	referralBonus, err := decimalFromEnv("REFERRAL_BONUS", defaults.ReferralBonus)
	if err != nil {
		return nil, err
	}
	referralPercent, err := decimalFromEnv("REFERRAL_DEPOSIT_PERCENT", defaults.ReferralDepositPercent)
	if err != nil {
		return nil, err
	}
	influencerBonus, err := decimalFromEnv("INFLUENCER_BONUS", defaults.InfluencerBonus)
	if err != nil {
		return nil, err
	}
	scratchPrice, err := decimalFromEnv("SCRATCH_CARD_PRICE", defaults.ScratchCardPrice)
	if err != nil {
		return nil, err
	}
	maxStake, err := decimalFromEnv("MAX_STAKE", defaults.MaxStake)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Port:     getEnv("PORT", "8080"),
		Env:      getEnv("ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		AllowedOrigins: listFromEnv("CORS_ALLOWED_ORIGINS"),

		JWTSecret: getEnv("JWT_SECRET", ""),
		JWTTTL:    time.Duration(intFromEnv("JWT_TTL_HOURS", 24)) * time.Hour,

		Database: DatabaseConfig{
			Driver:       strings.ToLower(getEnv("STORE_DRIVER", "postgres")),
			URL:          getEnv("DATABASE_URL", ""),
			MaxOpenConns: intFromEnv("DB_MAX_OPEN_CONNS", 50),
			MaxIdleConns: intFromEnv("DB_MAX_IDLE_CONNS", 10),
		},
		Redis: RedisConfig{
			URL:      getEnv("REDIS_URL", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       intFromEnv("REDIS_DB", 0),
		},
		Rabbit: RabbitConfig{
			URL:      getEnv("RABBITMQ_URL", ""),
			Queue:    getEnv("RABBITMQ_QUEUE", "payment_confirmations"),
			Prefetch: intFromEnv("RABBITMQ_PREFETCH", 20),
			Workers:  intFromEnv("RABBITMQ_WORKERS", 4),
		},
		Telegram: TelegramConfig{
			Token:       getEnv("TELEGRAM_TOKEN", ""),
			AdminChatID: int64(intFromEnv("TELEGRAM_ADMIN_CHAT_ID", 0)),
		},
		Rules: RulesConfig{
			DemoStartingBalance:       demo,
			ReferralBonus:             referralBonus,
			ReferralDepositPercent:    referralPercent,
			InfluencerThreshold:       int64(intFromEnv("INFLUENCER_THRESHOLD", int(defaults.InfluencerThreshold))),
			InfluencerBonus:           influencerBonus,
			ScratchCardPrice:          scratchPrice,
			MaxStake:                  maxStake,
			RefundRejectedWithdrawals: boolFromEnv("REFUND_REJECTED_WITHDRAWALS", false),
		},
		CrashTick: time.Duration(intFromEnv("CRASH_TICK_MS", 100)) * time.Millisecond,
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}

	switch c.Database.Driver {
	case "postgres", "mysql":
		if c.Database.URL == "" {
			return fmt.Errorf("DATABASE_URL is required for STORE_DRIVER=%s", c.Database.Driver)
		}
	case "memory":
	default:
		return fmt.Errorf("unsupported STORE_DRIVER %q", c.Database.Driver)
	}

	if c.CrashTick <= 0 {
		return fmt.Errorf("CRASH_TICK_MS must be positive")
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func intFromEnv(key string, defaultValue int) int {
	v, err := strconv.Atoi(getEnv(key, ""))
	if err != nil {
		return defaultValue
	}
	return v
}

func listFromEnv(key string) []string {
	var out []string
	for _, part := range strings.Split(getEnv(key, ""), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func boolFromEnv(key string, defaultValue bool) bool {
	v, err := strconv.ParseBool(getEnv(key, ""))
	if err != nil {
		return defaultValue
	}
	return v
}

func decimalFromEnv(key string, defaultValue decimal.Decimal) (decimal.Decimal, error) {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultValue, nil
	}

	v, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}
