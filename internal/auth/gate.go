package auth

import (
	"context"
	"log/slog"

	"github.com/interlock-api/interlock/internal/apierr"
	"github.com/interlock-api/interlock/internal/policy"
	"github.com/interlock-api/interlock/internal/types"
)

// Stage returns the pipeline stage enforcing the route's auth policy. An
// auth-enabled route with no registered handler is a configuration fault:
// it fails loudly at first use rather than silently admitting traffic, and
// the doctor flags it before deploy.
func Stage(p *policy.Auth, handler Handler, route string) types.Stage {
	return func(next types.Handler) types.Handler {
		return func(ctx context.Context, req *types.Request) (*types.Response, error) {
			if !p.Enabled {
				return next(ctx, req)
			}

			if handler == nil {
				slog.Error("auth enabled but no handler registered",
					"request_id", req.RequestID,
					"route", route,
				)
				return nil, apierr.ConfigFault("Authentication is enabled but no handler is configured.")
			}

			ok, err := handler.Evaluate(ctx, req, p.Roles, p.Scopes, p.RequireAll)
			if err != nil {
				if e, isAPIErr := apierr.AsError(err); isAPIErr {
					// Handler raised a specific status; surface it as-is.
					slog.Warn("auth handler rejected request",
						"request_id", req.RequestID,
						"route", route,
						"code", e.Code,
					)
					return nil, e
				}
				slog.Error("auth handler failed",
					"request_id", req.RequestID,
					"route", route,
					"error", err,
				)
				return nil, apierr.Internal("Internal authentication error")
			}
			if !ok {
				slog.Warn("auth denied",
					"request_id", req.RequestID,
					"route", route,
				)
				return nil, apierr.Forbidden(p.ErrorMessage)
			}

			return next(ctx, req)
		}
	}
}
