package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Result is the outcome of a rate limit check.
type Result struct {
	Allowed    bool
	Limit      int
	Remaining  int64
	ResetAt    time.Time
	RetryAfter time.Duration
}

// FixedWindow divides time into fixed windows per key and counts admissions
// within each. Counters live in the Store; window rollover is handled by
// scoping counter keys to the window start, so stale windows simply expire.
type FixedWindow struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time
}

// NewFixedWindow creates a limiter over the given store.
func NewFixedWindow(store Store, logger *slog.Logger) *FixedWindow {
	if logger == nil {
		logger = slog.Default()
	}
	return &FixedWindow{store: store, logger: logger, now: time.Now}
}

// windowStart truncates t to the current window boundary.
func windowStart(t time.Time, window time.Duration) time.Time {
	nanos := window.Nanoseconds()
	return time.Unix(0, (t.UnixNano()/nanos)*nanos)
}

// Allow checks and records one admission for key. Store failures fail open:
// availability of the protected route wins over strict accounting.
func (l *FixedWindow) Allow(ctx context.Context, key string, limit int, window time.Duration) Result {
	now := l.now()
	start := windowStart(now, window)
	resetAt := start.Add(window)

	// Window-scoped key: a new window gets a fresh counter and the old one
	// expires on its own.
	windowKey := fmt.Sprintf("%s:%d", key, start.UnixNano())
	ttl := window + time.Second // clock-skew buffer

	count, admitted, err := l.store.IncrementIfBelow(ctx, windowKey, int64(limit), ttl)
	if err != nil {
		l.logger.Warn("rate limit store unavailable, failing open", "key", key, "error", err)
		return Result{Allowed: true, Limit: limit, Remaining: int64(limit), ResetAt: resetAt}
	}

	remaining := int64(limit) - count
	if remaining < 0 {
		remaining = 0
	}

	result := Result{
		Allowed:   admitted,
		Limit:     limit,
		Remaining: remaining,
		ResetAt:   resetAt,
	}
	if !admitted {
		result.RetryAfter = resetAt.Sub(now)
		if result.RetryAfter < time.Second {
			result.RetryAfter = time.Second
		}
	}
	return result
}
