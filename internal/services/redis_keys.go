package services

import "time"

const (
	KeyRound         = "round:%s"
	KeyUserRounds    = "user:%s:rounds"
	KeyRateLimit     = "ratelimit:%s:%s"
	KeyUserEvents    = "events:user:%s"
	PatternAllEvents = "events:user:*"

	TTLRound = 7 * 24 * time.Hour // 7 days

	MaxRoundHistory = 100

	DefaultRateLimitBets    = 30 // Max 30 bets per minute
	DefaultRateLimitCashout = 60 // Max 60 cashouts per minute
)
