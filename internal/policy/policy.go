// Package policy defines the typed modifier configurations attachable to a
// route. Policies are declared at registration time, validated once by
// Compile, and interpreted by the pipeline in a fixed order regardless of
// how they are listed in source.
package policy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/interlock-api/interlock/internal/apierr"
	"github.com/interlock-api/interlock/internal/semver"
)

// KeyStrategy selects how rate-limit counters are keyed.
type KeyStrategy string

const (
	ByIP     KeyStrategy = "ip"
	ByUser   KeyStrategy = "user"
	ByGlobal KeyStrategy = "global"
)

// Auth delegates the access decision to the registered auth handler.
type Auth struct {
	Enabled    bool
	Roles      []string
	Scopes     []string
	RequireAll bool

	// ErrorMessage overrides the default 403 message.
	ErrorMessage string
}

// Version gates requests on the X-API-Version header and optionally marks
// the route deprecated.
type Version struct {
	Constraint  string
	Deprecated  bool
	Sunset      string // ISO 8601 date
	Alternative string // replacement path, surfaced via X-Deprecation-Alternative
	Message     string

	// Compiled is populated by Compile and evaluated per request.
	Compiled semver.Constraint
}

// RateLimit applies fixed-window counting per key.
type RateLimit struct {
	Limit   int
	Window  time.Duration
	By      KeyStrategy
	Message string
}

// Cache stores successful responses for idempotent reads.
type Cache struct {
	TTL                  time.Duration
	StaleWhileRevalidate time.Duration

	// Vary lists header names whose values become part of the cache key.
	Vary []string
}

// Retry re-executes the wrapped invocation on qualifying failures with
// exponential backoff: delay * backoff^(attempt-1).
type Retry struct {
	Attempts int
	Delay    time.Duration
	Backoff  float64

	// RetryIf reports whether a failure qualifies for another attempt.
	// Nil means RetryTransient.
	RetryIf func(error) bool
}

// RetryTransient is the default qualifying-failure predicate: everything
// except client-caused policy rejections and an already-cancelled context.
// Timeouts qualify; exclude them with a custom predicate when a 504 should
// be terminal.
func RetryTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	return !apierr.IsPolicyRejection(err)
}

// Timeout bounds the wrapped invocation. By default it bounds each retry
// attempt individually; WholeSequence bounds the entire retry loop instead.
// The two orders produce materially different worst-case latency.
type Timeout struct {
	Duration      time.Duration
	Message       string
	WholeSequence bool
}

// Log emits lifecycle telemetry for each invocation.
type Log struct {
	Level   slog.Level
	Message string
}

// Speed measures invocation latency and optionally surfaces it to clients.
type Speed struct {
	WarnThreshold  time.Duration
	ErrorThreshold time.Duration

	// IncludeHeader adds X-Response-Time to the response.
	IncludeHeader bool
}

// Set is the full collection of policies attached to one route. Nil fields
// mean the corresponding stage is not attached.
type Set struct {
	Auth      *Auth
	Version   *Version
	RateLimit *RateLimit
	Cache     *Cache
	Retry     *Retry
	Timeout   *Timeout
	Log       *Log
	Speed     *Speed
}

// Compile validates the set and pre-parses anything evaluated per request.
// It is called once at registration; a compiled Set is immutable thereafter.
func (s *Set) Compile() error {
	if s.Version != nil {
		c, err := semver.ParseConstraint(s.Version.Constraint)
		if err != nil {
			return fmt.Errorf("version policy: %w", err)
		}
		s.Version.Compiled = c
	}
	if s.RateLimit != nil {
		if s.RateLimit.Limit <= 0 {
			return fmt.Errorf("ratelimit policy: limit must be positive, got %d", s.RateLimit.Limit)
		}
		if s.RateLimit.Window <= 0 {
			return fmt.Errorf("ratelimit policy: window must be positive, got %s", s.RateLimit.Window)
		}
		if s.RateLimit.By == "" {
			s.RateLimit.By = ByIP
		}
		switch s.RateLimit.By {
		case ByIP, ByUser, ByGlobal:
		default:
			return fmt.Errorf("ratelimit policy: unknown key strategy %q", s.RateLimit.By)
		}
	}
	if s.Cache != nil {
		if s.Cache.TTL < 0 {
			return fmt.Errorf("cache policy: ttl must be >= 0, got %s", s.Cache.TTL)
		}
		if s.Cache.StaleWhileRevalidate < 0 {
			return fmt.Errorf("cache policy: stale window must be >= 0, got %s", s.Cache.StaleWhileRevalidate)
		}
	}
	if s.Retry != nil {
		if s.Retry.Attempts < 1 {
			return fmt.Errorf("retry policy: attempts must be >= 1, got %d", s.Retry.Attempts)
		}
		if s.Retry.Backoff <= 0 {
			s.Retry.Backoff = 1.0
		}
		if s.Retry.RetryIf == nil {
			s.Retry.RetryIf = RetryTransient
		}
	}
	if s.Timeout != nil && s.Timeout.Duration <= 0 {
		return fmt.Errorf("timeout policy: duration must be positive, got %s", s.Timeout.Duration)
	}
	return nil
}
