package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedisBackend(t *testing.T) (*RedisBackend, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return NewRedisBackend(rdb), mr
}

func testEntry(key string, ttl time.Duration) *Entry {
	now := time.Now()
	body := []byte(`{"ok":true}`)
	return &Entry{
		Key:        key,
		Status:     200,
		Body:       body,
		ETag:       ComputeETag(body),
		CreatedAt:  now,
		ExpiresAt:  now.Add(ttl),
		StaleUntil: now.Add(ttl),
		Headers:    map[string]string{"Content-Type": "application/json"},
	}
}

func TestRedisBackend_SetGet(t *testing.T) {
	b, _ := newTestRedisBackend(t)
	ctx := context.Background()

	entry := testEntry("GET|/w|", time.Minute)
	if err := b.Set(ctx, entry.Key, entry); err != nil {
		t.Fatalf("set: %v", err)
	}

	got, err := b.Get(ctx, entry.Key)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil {
		t.Fatal("entry should be present")
	}
	if got.ETag != entry.ETag {
		t.Errorf("etag = %q, want %q", got.ETag, entry.ETag)
	}
	if string(got.Body) != string(entry.Body) {
		t.Error("body should round-trip")
	}
}

func TestRedisBackend_MissReturnsNil(t *testing.T) {
	b, _ := newTestRedisBackend(t)
	got, err := b.Get(context.Background(), "absent")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != nil {
		t.Error("miss should return nil entry, nil error")
	}
}

func TestRedisBackend_TTLFollowsStaleWindow(t *testing.T) {
	b, mr := newTestRedisBackend(t)
	ctx := context.Background()

	entry := testEntry("k", 30*time.Second)
	if err := b.Set(ctx, "k", entry); err != nil {
		t.Fatalf("set: %v", err)
	}

	mr.FastForward(31 * time.Second)
	got, err := b.Get(ctx, "k")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != nil {
		t.Error("entry should have expired with its stale window")
	}
}

func TestRedisBackend_InvalidateExactAndWildcard(t *testing.T) {
	b, _ := newTestRedisBackend(t)
	ctx := context.Background()

	for _, key := range []string{"GET|/widgets|", "GET|/widgets/1|", "GET|/other|"} {
		if err := b.Set(ctx, key, testEntry(key, time.Minute)); err != nil {
			t.Fatalf("set %s: %v", key, err)
		}
	}

	n, err := b.Invalidate(ctx, "GET|/other|")
	if err != nil {
		t.Fatalf("exact invalidate: %v", err)
	}
	if n != 1 {
		t.Errorf("exact invalidate removed %d, want 1", n)
	}

	n, err = b.Invalidate(ctx, "GET|/widgets*")
	if err != nil {
		t.Fatalf("wildcard invalidate: %v", err)
	}
	if n != 2 {
		t.Errorf("wildcard invalidate removed %d, want 2", n)
	}

	if got, _ := b.Get(ctx, "GET|/widgets|"); got != nil {
		t.Error("invalidated entry should be gone")
	}
}

func TestMatchKey(t *testing.T) {
	tests := []struct {
		pattern string
		key     string
		want    bool
	}{
		{"a|b", "a|b", true},
		{"a|b", "a|bc", false},
		{"a|*", "a|b", true},
		{"a|*", "a|", true},
		{"a|*", "b|x", false},
		{"*", "anything", true},
	}
	for _, tt := range tests {
		if got := matchKey(tt.pattern, tt.key); got != tt.want {
			t.Errorf("matchKey(%q, %q) = %v, want %v", tt.pattern, tt.key, got, tt.want)
		}
	}
}
