package ratelimit

import (
	"context"
	"sync"
	"time"
)

type counter struct {
	mu      sync.Mutex
	count   int64
	expires time.Time
}

// MemoryStore implements Store with per-key locking. Unrelated keys never
// contend on a shared lock, so unrelated routes are not serialized.
type MemoryStore struct {
	counters sync.Map // string -> *counter
	cleanup  *time.Ticker
	done     chan struct{}
	closeMu  sync.Mutex
	closed   bool
}

// NewMemoryStore creates an in-memory store with a background sweep that
// drops expired counters once a minute.
func NewMemoryStore() *MemoryStore {
	return NewMemoryStoreWithCleanupInterval(time.Minute)
}

// NewMemoryStoreWithCleanupInterval creates a store with a custom sweep
// interval, mainly for tests.
func NewMemoryStoreWithCleanupInterval(interval time.Duration) *MemoryStore {
	s := &MemoryStore{
		cleanup: time.NewTicker(interval),
		done:    make(chan struct{}),
	}
	go s.sweep()
	return s
}

func (s *MemoryStore) Get(ctx context.Context, key string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	value, ok := s.counters.Load(key)
	if !ok {
		return 0, nil
	}
	c := value.(*counter)
	c.mu.Lock()
	defer c.mu.Unlock()
	if time.Now().After(c.expires) {
		s.counters.Delete(key)
		return 0, nil
	}
	return c.count, nil
}

func (s *MemoryStore) IncrementIfBelow(ctx context.Context, key string, limit int64, ttl time.Duration) (int64, bool, error) {
	if err := ctx.Err(); err != nil {
		return 0, false, err
	}
	value, _ := s.counters.LoadOrStore(key, &counter{})
	c := value.(*counter)

	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	if c.expires.IsZero() || now.After(c.expires) {
		// Fresh window for this key.
		c.count = 0
		c.expires = now.Add(ttl)
	}
	if c.count >= limit {
		return c.count, false, nil
	}
	c.count++
	return c.count, true, nil
}

func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.counters.Delete(key)
	return nil
}

func (s *MemoryStore) Close() error {
	s.closeMu.Lock()
	defer s.closeMu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.cleanup.Stop()
	close(s.done)
	return nil
}

func (s *MemoryStore) sweep() {
	for {
		select {
		case <-s.done:
			return
		case <-s.cleanup.C:
			now := time.Now()
			s.counters.Range(func(key, value any) bool {
				c := value.(*counter)
				c.mu.Lock()
				expired := !c.expires.IsZero() && now.After(c.expires)
				c.mu.Unlock()
				if expired {
					s.counters.Delete(key)
				}
				return true
			})
		}
	}
}
