package cache

import (
	"context"
	"strings"
	"sync"
)

// Backend stores cache entries. Implementations must be safe for concurrent
// readers and writers; last-writer-wins on a key is acceptable.
type Backend interface {
	// Get returns the entry for key, or nil when absent.
	Get(ctx context.Context, key string) (*Entry, error)

	// Set stores the entry, overwriting any prior entry for the key.
	Set(ctx context.Context, key string, entry *Entry) error

	// Invalidate removes all entries matching pattern (exact key, or prefix
	// when the pattern ends with '*') and returns the count removed.
	Invalidate(ctx context.Context, pattern string) (int, error)

	// Close releases backend resources.
	Close() error
}

// matchKey applies the invalidation pattern grammar: a trailing '*' makes a
// prefix match, anything else is an exact match.
func matchKey(pattern, key string) bool {
	if prefix, ok := strings.CutSuffix(pattern, "*"); ok {
		return strings.HasPrefix(key, prefix)
	}
	return pattern == key
}

// MemoryBackend is the in-process default backend.
type MemoryBackend struct {
	mu      sync.RWMutex
	entries map[string]*Entry
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{entries: make(map[string]*Entry)}
}

func (b *MemoryBackend) Get(ctx context.Context, key string) (*Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.entries[key], nil
}

func (b *MemoryBackend) Set(ctx context.Context, key string, entry *Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries[key] = entry
	return nil
}

func (b *MemoryBackend) Invalidate(ctx context.Context, pattern string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	removed := 0
	for key := range b.entries {
		if matchKey(pattern, key) {
			delete(b.entries, key)
			removed++
		}
	}
	return removed, nil
}

func (b *MemoryBackend) Close() error { return nil }
