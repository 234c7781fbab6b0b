package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"chance-winner-hub/internal/config"
	"chance-winner-hub/internal/models"
)

// RedisService holds the short-lived state: rate limits, round history and
// the per-user event channel.
type RedisService struct {
	client *redis.Client
	log    *logrus.Logger
}

func NewRedisService(cfg config.RedisConfig, log *logrus.Logger) (*RedisService, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.URL,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if _, err := client.Ping(ctx).Result(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisService{client: client, log: log}, nil
}

func (s *RedisService) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisService) Close() error {
	return s.client.Close()
}

func (s *RedisService) CheckRateLimit(ctx context.Context, userID, action string, limit int, window time.Duration) (bool, error) {
	key := fmt.Sprintf(KeyRateLimit, userID, action)

	count, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check rate limit: %w", err)
	}

	if count == 1 {
		s.client.Expire(ctx, key, window)
	}

	return count <= int64(limit), nil
}

func (s *RedisService) ClearRateLimit(ctx context.Context, userID, action string) error {
	return s.client.Del(ctx, fmt.Sprintf(KeyRateLimit, userID, action)).Err()
}

// SaveRound stores the round and indexes it in the player's history. Only
// the newest MaxRoundHistory rounds are kept.
func (s *RedisService) SaveRound(ctx context.Context, round *models.Round) error {
	data, err := json.Marshal(round)
	if err != nil {
		return fmt.Errorf("failed to marshal round: %w", err)
	}

	historyKey := fmt.Sprintf(KeyUserRounds, round.UserID)

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, fmt.Sprintf(KeyRound, round.ID), data, TTLRound)
	pipe.ZAdd(ctx, historyKey, redis.Z{
		Score:  float64(round.StartedAt.UnixNano()),
		Member: round.ID,
	})
	pipe.ZRemRangeByRank(ctx, historyKey, 0, -MaxRoundHistory-1)
	pipe.Expire(ctx, historyKey, TTLRound)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save round: %w", err)
	}
	return nil
}

func (s *RedisService) GetRound(ctx context.Context, roundID string) (*models.Round, error) {
	data, err := s.client.Get(ctx, fmt.Sprintf(KeyRound, roundID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: round %s", ErrNotFound, roundID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get round: %w", err)
	}

	var round models.Round
	if err := json.Unmarshal([]byte(data), &round); err != nil {
		return nil, fmt.Errorf("failed to unmarshal round: %w", err)
	}
	return &round, nil
}

func (s *RedisService) DeleteRound(ctx context.Context, round *models.Round) error {
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, fmt.Sprintf(KeyRound, round.ID))
	pipe.ZRem(ctx, fmt.Sprintf(KeyUserRounds, round.UserID), round.ID)
	_, err := pipe.Exec(ctx)
	return err
}

// GetRoundHistory returns the player's rounds, newest first.
func (s *RedisService) GetRoundHistory(ctx context.Context, userID string, limit int64) ([]*models.Round, error) {
	if limit <= 0 || limit > MaxRoundHistory {
		limit = 50
	}

	roundIDs, err := s.client.ZRevRange(ctx, fmt.Sprintf(KeyUserRounds, userID), 0, limit-1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get round IDs: %w", err)
	}
	if len(roundIDs) == 0 {
		return []*models.Round{}, nil
	}

	pipe := s.client.Pipeline()
	cmds := make([]*redis.StringCmd, len(roundIDs))
	for i, id := range roundIDs {
		cmds[i] = pipe.Get(ctx, fmt.Sprintf(KeyRound, id))
	}

	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("pipeline execution failed: %w", err)
	}

	rounds := make([]*models.Round, 0, len(cmds))
	for _, cmd := range cmds {
		data, err := cmd.Result()
		if err != nil {
			continue
		}

		var round models.Round
		if err := json.Unmarshal([]byte(data), &round); err != nil {
			continue
		}
		rounds = append(rounds, &round)
	}

	return rounds, nil
}

// TransactionChanged publishes the transaction on the owner's event channel.
func (s *RedisService) TransactionChanged(ctx context.Context, tx *models.Transaction) {
	err := s.Publish(ctx, &models.Event{
		Type:        models.EventTransactionUpdate,
		UserID:      tx.UserID,
		Transaction: tx,
	})
	if err != nil {
		s.log.WithError(err).WithField("tx_id", tx.ID).Warn("failed to publish transaction event")
	}
}

func (s *RedisService) Publish(ctx context.Context, ev *models.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	return s.client.Publish(ctx, fmt.Sprintf(KeyUserEvents, ev.UserID), data).Err()
}

// Subscribe listens on every user's event channel.
func (s *RedisService) Subscribe(ctx context.Context) *redis.PubSub {
	return s.client.PSubscribe(ctx, PatternAllEvents)
}
