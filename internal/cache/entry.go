// Package cache implements the response cache engine: TTL freshness,
// stale-while-revalidate, content-hash ETags with conditional GET, and
// wildcard invalidation, over pluggable in-memory and redis backends.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Entry is one stored response. Entries are idempotent recomputations of the
// same resource, so concurrent writers racing on a key may last-write-win.
type Entry struct {
	Key       string            `json:"key"`
	Status    int               `json:"status"`
	Body      []byte            `json:"body"`
	Headers   map[string]string `json:"headers,omitempty"`
	ETag      string            `json:"etag"`
	CreatedAt time.Time         `json:"created_at"`
	ExpiresAt time.Time         `json:"expires_at"`
	// StaleUntil is the end of the stale-while-revalidate window. Equal to
	// ExpiresAt when no stale window is configured.
	StaleUntil time.Time `json:"stale_until"`
}

// Fresh reports whether the entry is within its TTL.
func (e *Entry) Fresh(now time.Time) bool {
	return now.Before(e.ExpiresAt)
}

// ServableStale reports whether the entry is past TTL but still inside the
// stale-while-revalidate window.
func (e *Entry) ServableStale(now time.Time) bool {
	return !e.Fresh(now) && now.Before(e.StaleUntil)
}

// ComputeETag derives the content hash served as the ETag header.
func ComputeETag(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}
