package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/opcoord/opcoord/internal/core"
)

const redisKeyPrefix = "opcoord:idem:"

// RedisStore implements Store on Redis. The conditional create maps to SET NX
// with a TTL, which gives the same create-if-absent atomicity as the DynamoDB
// conditional put. Redis expires keys natively, so Sweep is a no-op.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a new Redis store.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

type redisRecord struct {
	State     string          `json:"state"`
	Result    json.RawMessage `json:"result,omitempty"`
	CreatedAt int64           `json:"created_at_ms"`
	ExpiresAt int64           `json:"expires_at_ms"`
}

func (s *RedisStore) CreateInProgress(ctx context.Context, key string, expiresAt time.Time) error {
	now := time.Now()
	ttl := expiresAt.Sub(now)
	if ttl <= 0 {
		return fmt.Errorf("record expiry %v is in the past", expiresAt)
	}

	payload, err := json.Marshal(redisRecord{
		State:     RecordInProgress,
		CreatedAt: now.UnixMilli(),
		ExpiresAt: expiresAt.UnixMilli(),
	})
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}

	ok, err := s.client.SetNX(ctx, redisKeyPrefix+key, payload, ttl).Result()
	if err != nil {
		return fmt.Errorf("redis setnx: %w", err)
	}
	if !ok {
		return core.ErrKeyExists
	}
	return nil
}

func (s *RedisStore) Complete(ctx context.Context, key string, result json.RawMessage, expiresAt time.Time) error {
	now := time.Now()
	ttl := expiresAt.Sub(now)
	if ttl <= 0 {
		return fmt.Errorf("record expiry %v is in the past", expiresAt)
	}

	payload, err := json.Marshal(redisRecord{
		State:     RecordCompleted,
		Result:    result,
		CreatedAt: now.UnixMilli(),
		ExpiresAt: expiresAt.UnixMilli(),
	})
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}

	if err := s.client.Set(ctx, redisKeyPrefix+key, payload, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, key string) (*Record, error) {
	data, err := s.client.Get(ctx, redisKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var stored redisRecord
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, fmt.Errorf("unmarshal record: %w", err)
	}

	return &Record{
		Key:       key,
		State:     stored.State,
		Result:    stored.Result,
		CreatedAt: time.UnixMilli(stored.CreatedAt),
		ExpiresAt: time.UnixMilli(stored.ExpiresAt),
	}, nil
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, redisKeyPrefix+key).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// Sweep is a no-op: Redis expires keys natively.
func (s *RedisStore) Sweep(context.Context, time.Time) (int, error) {
	return 0, nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
