// Package auth implements the auth gate: a pipeline stage that delegates
// identity and permission decisions to an externally registered handler,
// plus a production handler backed by hashed API keys in PostgreSQL with a
// redis read-through cache.
package auth

import (
	"context"

	"github.com/interlock-api/interlock/internal/types"
)

// Handler is the single-method capability interface the application
// registers exactly once before serving auth-enabled routes. It returns
// whether the request may proceed and may attach the resolved identity to
// the request scratch map for downstream stages. Returning an *apierr.Error
// short-circuits with that specific status.
type Handler interface {
	Evaluate(ctx context.Context, req *types.Request, roles, scopes []string, requireAll bool) (bool, error)
}

// HandlerFunc adapts a plain function to Handler.
type HandlerFunc func(ctx context.Context, req *types.Request, roles, scopes []string, requireAll bool) (bool, error)

func (f HandlerFunc) Evaluate(ctx context.Context, req *types.Request, roles, scopes []string, requireAll bool) (bool, error) {
	return f(ctx, req, roles, scopes, requireAll)
}

// hasAll reports whether every required entry is present in granted.
func hasAll(required, granted []string) bool {
	for _, r := range required {
		if !contains(granted, r) {
			return false
		}
	}
	return true
}

// hasAny reports whether at least one required entry is present in granted.
// An empty requirement passes.
func hasAny(required, granted []string) bool {
	if len(required) == 0 {
		return true
	}
	for _, r := range required {
		if contains(granted, r) {
			return true
		}
	}
	return false
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

// Satisfies checks required roles and scopes against a granted set using
// the route's require-all semantics.
func Satisfies(requiredRoles, requiredScopes, grantedRoles, grantedScopes []string, requireAll bool) bool {
	if requireAll {
		return hasAll(requiredRoles, grantedRoles) && hasAll(requiredScopes, grantedScopes)
	}
	return hasAny(requiredRoles, grantedRoles) && hasAny(requiredScopes, grantedScopes)
}
