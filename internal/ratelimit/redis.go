package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "interlock:rl:"

// incrementIfBelowScript atomically checks the counter against the limit and
// increments only when admission is allowed, so concurrent instances never
// over-admit.
// KEYS[1] = counter key
// ARGV[1] = limit
// ARGV[2] = TTL seconds
// Returns: [count, 1=admitted/0=denied]
var incrementIfBelowScript = redis.NewScript(`
local count = tonumber(redis.call('GET', KEYS[1]) or '0')
if count >= tonumber(ARGV[1]) then
    return {count, 0}
end
count = redis.call('INCR', KEYS[1])
if count == 1 then
    redis.call('EXPIRE', KEYS[1], ARGV[2])
end
return {count, 1}
`)

// RedisStore implements Store on redis. Counter keys are window-scoped by
// the limiter, so natural expiry handles window resets.
type RedisStore struct {
	rdb *redis.Client
}

func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

func (s *RedisStore) Get(ctx context.Context, key string) (int64, error) {
	n, err := s.rdb.Get(ctx, redisKeyPrefix+key).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("redis get %s: %w", key, err)
	}
	return n, nil
}

func (s *RedisStore) IncrementIfBelow(ctx context.Context, key string, limit int64, ttl time.Duration) (int64, bool, error) {
	ttlSecs := int64(ttl.Seconds())
	if ttlSecs < 1 {
		ttlSecs = 1
	}
	result, err := incrementIfBelowScript.Run(ctx, s.rdb, []string{redisKeyPrefix + key}, limit, ttlSecs).Int64Slice()
	if err != nil {
		return 0, false, fmt.Errorf("redis increment %s: %w", key, err)
	}
	if len(result) != 2 {
		return 0, false, fmt.Errorf("redis increment %s: unexpected reply length %d", key, len(result))
	}
	return result[0], result[1] == 1, nil
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.rdb.Del(ctx, redisKeyPrefix+key).Err(); err != nil {
		return fmt.Errorf("redis delete %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.rdb.Close()
}
