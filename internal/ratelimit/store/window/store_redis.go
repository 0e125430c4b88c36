package window

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"ingressgw/internal/ratelimit/models"
	"ingressgw/pkg/platform/sentinel"
)

// incrementScript bumps the counter and starts the window on the first hit. PEXPIRE is
// also applied when the key has lost its TTL so a stuck counter cannot block forever.
var incrementScript = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
local ttl = redis.call("PTTL", KEYS[1])
if count == 1 or ttl < 0 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
  ttl = tonumber(ARGV[1])
end
return {count, ttl}
`)

// RedisStore shares the fixed window across gateway replicas. The key's TTL is the
// window: when it expires the next INCR starts a fresh one.
type RedisStore struct {
	client redis.UniversalClient
	now    func() time.Time
}

func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client, now: time.Now}
}

func (s *RedisStore) Increment(ctx context.Context, key string, limit int, window time.Duration) (*models.AdmissionResult, error) {
	res, err := incrementScript.Run(ctx, s.client, []string{key}, window.Milliseconds()).Int64Slice()
	if err != nil {
		return nil, fmt.Errorf("redis window increment: %w", errors.Join(sentinel.ErrUnavailable, err))
	}
	if len(res) != 2 {
		return nil, fmt.Errorf("redis window increment: unexpected reply length %d", len(res))
	}

	count, ttl := int(res[0]), time.Duration(res[1])*time.Millisecond
	resetAt := s.now().Add(ttl)
	return models.NewAdmissionResult(count, limit, resetAt.Add(-window), window), nil
}

func (s *RedisStore) Reset(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis window reset: %w", errors.Join(sentinel.ErrUnavailable, err))
	}
	return nil
}

func (s *RedisStore) Count(ctx context.Context, key string, _ time.Duration) (int, error) {
	n, err := s.client.Get(ctx, key).Int()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("redis window count: %w", errors.Join(sentinel.ErrUnavailable, err))
	}
	return n, nil
}
