package breaker

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps failure streaks in Redis so breaker state survives
// process restarts and is shared across instances.
type RedisStore struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewRedisStore creates a Redis-backed breaker store. A non-positive TTL
// falls back to DefaultTTL.
func NewRedisStore(client redis.UniversalClient, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{
		client: client,
		ttl:    ttl,
	}
}

func (s *RedisStore) key(provider string) string {
	return "breaker:" + provider
}

// Failures reads the current streak; a missing key is a zero streak.
func (s *RedisStore) Failures(ctx context.Context, provider string) (int, error) {
	count, err := s.client.Get(ctx, s.key(provider)).Int()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read breaker state: %w", err)
	}
	return count, nil
}

// RecordFailure extends the streak and refreshes its decay TTL.
func (s *RedisStore) RecordFailure(ctx context.Context, provider string) (int, error) {
	key := s.key(provider)
	pipe := s.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("failed to record breaker failure: %w", err)
	}
	return int(incr.Val()), nil
}

// Reset clears the streak.
func (s *RedisStore) Reset(ctx context.Context, provider string) error {
	if err := s.client.Del(ctx, s.key(provider)).Err(); err != nil {
		return fmt.Errorf("failed to reset breaker state: %w", err)
	}
	return nil
}
