package quota

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// admitScript is the fixed-window admission rule as one server-side script:
// read both counters, reject if either is at its cap, otherwise INCR the
// request counter and refresh its expiry. Running it via EVALSHA makes the
// whole sequence atomic across every gateway instance sharing the store.
//
// Reply: {admitted, rpm, tpm, reset_seconds}.
var admitScript = redis.NewScript(`
local rpm = tonumber(redis.call('GET', KEYS[1]) or '0')
local tpm = tonumber(redis.call('GET', KEYS[2]) or '0')
local max_rpm = tonumber(ARGV[1])
local max_tpm = tonumber(ARGV[2])
local window = tonumber(ARGV[3])

if max_rpm > 0 and rpm >= max_rpm then
	local ttl = redis.call('TTL', KEYS[1])
	if ttl < 0 then ttl = window end
	return {0, rpm, tpm, ttl}
end
if max_tpm > 0 and tpm >= max_tpm then
	local ttl = redis.call('TTL', KEYS[2])
	if ttl < 0 then ttl = window end
	return {0, rpm, tpm, ttl}
end

rpm = redis.call('INCR', KEYS[1])
redis.call('EXPIRE', KEYS[1], window)
return {1, rpm, tpm, window}
`)

// RedisStore backs quota counters with Redis, sharing state across gateway
// instances behind a load balancer.
type RedisStore struct {
	client redis.UniversalClient
	window time.Duration
}

// NewRedisStore creates a Redis-backed counter store. A non-positive window
// falls back to DefaultWindow.
func NewRedisStore(client redis.UniversalClient, window time.Duration) *RedisStore {
	if window <= 0 {
		window = DefaultWindow * time.Second
	}
	return &RedisStore{
		client: client,
		window: window,
	}
}

// Admit runs the admission script against both counters for the scope.
func (s *RedisStore) Admit(ctx context.Context, scope string, maxRPM, maxTPM int) (Counts, error) {
	reply, err := admitScript.Run(ctx, s.client,
		[]string{rpmKey(scope), tpmKey(scope)},
		maxRPM, maxTPM, int(s.window/time.Second)).Int64Slice()
	if err != nil {
		return Counts{}, fmt.Errorf("failed to run quota admission script: %w", err)
	}
	if len(reply) != 4 {
		return Counts{}, fmt.Errorf("unexpected quota script reply length %d", len(reply))
	}

	return Counts{
		Admitted:     reply[0] == 1,
		RPM:          int(reply[1]),
		TPM:          int(reply[2]),
		ResetSeconds: int(reply[3]),
	}, nil
}

// AddTokens charges consumed tokens against the scope's TPM counter and
// refreshes its window.
func (s *RedisStore) AddTokens(ctx context.Context, scope string, tokens int) error {
	if tokens <= 0 {
		return nil
	}

	key := tpmKey(scope)
	pipe := s.client.TxPipeline()
	pipe.IncrBy(ctx, key, int64(tokens))
	pipe.Expire(ctx, key, s.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to record token usage: %w", err)
	}
	return nil
}
