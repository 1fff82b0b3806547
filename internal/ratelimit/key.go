package ratelimit

import (
	"github.com/interlock-api/interlock/internal/policy"
	"github.com/interlock-api/interlock/internal/types"
)

// KeyFor derives the counter key for a request. Keys embed the route name so
// counters for different routes never interfere. The "user" strategy needs
// an identity resolved by an upstream auth gate; without one it falls back
// to IP keying rather than collapsing all anonymous traffic into one bucket.
func KeyFor(strategy policy.KeyStrategy, route string, req *types.Request) string {
	switch strategy {
	case policy.ByGlobal:
		return "global:" + route
	case policy.ByUser:
		if id, ok := types.IdentityFrom(req); ok && id.ID != "" {
			return "user:" + id.ID + ":" + route
		}
		return "ip:" + clientIP(req) + ":" + route
	default:
		return "ip:" + clientIP(req) + ":" + route
	}
}

func clientIP(req *types.Request) string {
	if req.ClientIP != "" {
		return req.ClientIP
	}
	return "unknown"
}
