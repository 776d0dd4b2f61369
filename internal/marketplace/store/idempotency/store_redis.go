package idempotency

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	platformredis "github.com/knowton/marketplace/internal/platform/redis"
)

// RedisStore deduplicates order submissions across instances using SETNX
// with a TTL.
type RedisStore struct {
	client *platformredis.Client
	ttl    time.Duration
}

func NewRedisStore(client *platformredis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

// Reserve claims the idempotency key for orderID. If the key was already
// claimed, the previously stored order ID is returned with created=false.
func (s *RedisStore) Reserve(ctx context.Context, key string, orderID uuid.UUID) (uuid.UUID, bool, error) {
	redisKey := "marketplace:idem:" + key
	ok, err := s.client.SetNX(ctx, redisKey, orderID.String(), s.ttl).Result()
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("reserve idempotency key: %w", err)
	}
	if ok {
		return orderID, true, nil
	}
	existing, err := s.client.Get(ctx, redisKey).Result()
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("read idempotency key: %w", err)
	}
	id, err := uuid.Parse(existing)
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("parse stored order id: %w", err)
	}
	return id, false, nil
}
