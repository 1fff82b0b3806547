// Package ratelimit implements fixed-window request counting over a
// pluggable store. The in-process store is the default; a redis store
// provides the same atomicity contract for multi-instance deployments.
package ratelimit

import (
	"context"
	"time"
)

// Store is the counter backend. IncrementIfBelow must be atomic per key:
// concurrent callers never over-admit past the limit.
type Store interface {
	// Get returns the current count for key, or 0 if absent/expired.
	Get(ctx context.Context, key string) (int64, error)

	// IncrementIfBelow increments the counter for key only when the current
	// count is below limit, setting ttl on first write. It returns the
	// resulting count and whether the increment was admitted.
	IncrementIfBelow(ctx context.Context, key string, limit int64, ttl time.Duration) (int64, bool, error)

	// Delete removes the counter for key.
	Delete(ctx context.Context, key string) error

	// Close releases store resources.
	Close() error
}
