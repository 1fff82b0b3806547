package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisEntryPrefix = "interlock:cache:"

// RedisBackend stores entries as JSON values with a redis TTL covering the
// stale window, so redis expiry and entry staleness stay consistent.
type RedisBackend struct {
	rdb *redis.Client
	now func() time.Time
}

func NewRedisBackend(rdb *redis.Client) *RedisBackend {
	return &RedisBackend{rdb: rdb, now: time.Now}
}

func (b *RedisBackend) Get(ctx context.Context, key string) (*Entry, error) {
	data, err := b.rdb.Get(ctx, redisEntryPrefix+key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis cache get: %w", err)
	}
	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("redis cache decode: %w", err)
	}
	return &entry, nil
}

func (b *RedisBackend) Set(ctx context.Context, key string, entry *Entry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("redis cache encode: %w", err)
	}
	ttl := entry.StaleUntil.Sub(b.now())
	if ttl <= 0 {
		return nil
	}
	if err := b.rdb.Set(ctx, redisEntryPrefix+key, data, ttl).Err(); err != nil {
		return fmt.Errorf("redis cache set: %w", err)
	}
	return nil
}

func (b *RedisBackend) Invalidate(ctx context.Context, pattern string) (int, error) {
	// SCAN MATCH uses glob syntax; an exact pattern has no wildcard and
	// matches only itself, a trailing '*' scans the prefix.
	match := redisEntryPrefix + pattern
	if !strings.HasSuffix(pattern, "*") {
		n, err := b.rdb.Del(ctx, redisEntryPrefix+pattern).Result()
		if err != nil {
			return 0, fmt.Errorf("redis cache invalidate: %w", err)
		}
		return int(n), nil
	}

	removed := 0
	iter := b.rdb.Scan(ctx, 0, match, 100).Iterator()
	for iter.Next(ctx) {
		n, err := b.rdb.Del(ctx, iter.Val()).Result()
		if err != nil {
			return removed, fmt.Errorf("redis cache invalidate: %w", err)
		}
		removed += int(n)
	}
	if err := iter.Err(); err != nil {
		return removed, fmt.Errorf("redis cache invalidate scan: %w", err)
	}
	return removed, nil
}

func (b *RedisBackend) Close() error {
	return b.rdb.Close()
}
