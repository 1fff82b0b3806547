// Package pipeline composes the policy stages attached to a route into one
// handler. Composition order is fixed regardless of the order policies are
// declared in source:
//
//	ErrorNormalize → Log → Speed → Auth → Version → RateLimit →
//	Cache → Timeout/Retry → handler
//
// Security and protocol gating short-circuit before resource-consuming work
// (rate accounting, cache lookups); resilience wrappers wrap the innermost
// call exactly once; observability wrappers sit outside the gates so they
// see the true outcome including short-circuits and retries; the error
// normalizer is outermost so every failure surfaces as one envelope shape.
//
// When both Retry and Timeout are attached, the timeout bounds each attempt
// individually (every attempt gets its own budget) unless the timeout
// policy sets WholeSequence, which bounds the entire retry loop instead.
package pipeline

import (
	"context"
	"log/slog"

	"github.com/interlock-api/interlock/internal/apierr"
	"github.com/interlock-api/interlock/internal/auth"
	"github.com/interlock-api/interlock/internal/cache"
	"github.com/interlock-api/interlock/internal/observe"
	"github.com/interlock-api/interlock/internal/policy"
	"github.com/interlock-api/interlock/internal/ratelimit"
	"github.com/interlock-api/interlock/internal/resilience"
	"github.com/interlock-api/interlock/internal/telemetry"
	"github.com/interlock-api/interlock/internal/types"
	"github.com/interlock-api/interlock/internal/version"
)

// Deps are the shared collaborators stages draw on. Nil fields disable the
// corresponding stages except AuthHandler, whose absence on an auth-enabled
// route is a configuration fault surfaced at first use.
type Deps struct {
	AuthHandler auth.Handler
	Limiter     *ratelimit.FixedWindow
	Cache       *cache.Engine
	Metrics     *telemetry.Metrics
	Logger      *slog.Logger

	// ErrorOpts supplies envelope options per request so config reloads
	// take effect without rebuilding pipelines.
	ErrorOpts func() apierr.Options

	// StrictVersioning is the application-level strict mode switch.
	StrictVersioning func() bool
}

func (d Deps) errorOpts() apierr.Options {
	if d.ErrorOpts == nil {
		return apierr.DefaultOptions()
	}
	return d.ErrorOpts()
}

// Build composes the route's compiled policy set around its handler. name
// identifies the route in logs and metrics, conventionally "METHOD /path".
func Build(name, method string, h types.Handler, p policy.Set, deps Deps) types.Handler {
	// Innermost: resilience wrappers around the handler invocation.
	switch {
	case p.Retry != nil && p.Timeout != nil && p.Timeout.WholeSequence:
		h = resilience.RetryStage(p.Retry, deps.Metrics, name)(h)
		h = resilience.TimeoutStage(p.Timeout, deps.Metrics, name)(h)
	case p.Retry != nil && p.Timeout != nil:
		h = resilience.TimeoutStage(p.Timeout, deps.Metrics, name)(h)
		h = resilience.RetryStage(p.Retry, deps.Metrics, name)(h)
	case p.Timeout != nil:
		h = resilience.TimeoutStage(p.Timeout, deps.Metrics, name)(h)
	case p.Retry != nil:
		h = resilience.RetryStage(p.Retry, deps.Metrics, name)(h)
	}

	if p.Cache != nil && deps.Cache != nil {
		h = deps.Cache.Stage(p.Cache, name)(h)
	}
	if p.RateLimit != nil && deps.Limiter != nil {
		h = ratelimit.Stage(p.RateLimit, deps.Limiter, deps.Metrics, name)(h)
	}
	if p.Version != nil {
		h = version.Stage(p.Version, deps.StrictVersioning, name)(h)
	}
	if p.Auth != nil {
		h = auth.Stage(p.Auth, deps.AuthHandler, name)(h)
	}
	if p.Speed != nil {
		h = observe.SpeedStage(p.Speed, deps.Metrics, name, method)(h)
	}
	if p.Log != nil {
		h = observe.LogStage(p.Log, deps.Logger, name)(h)
	}

	return normalize(deps)(h)
}

// normalize is the outermost stage: it converts every failure (including
// panics) into the normalized envelope exactly once and guarantees the
// correlation id is echoed on every response.
func normalize(deps Deps) types.Stage {
	return func(next types.Handler) types.Handler {
		return func(ctx context.Context, req *types.Request) (resp *types.Response, err error) {
			defer func() {
				if r := recover(); r != nil {
					slog.Error("panic in endpoint invocation",
						"request_id", req.RequestID,
						"path", req.Path,
						"panic", r,
					)
					resp = apierr.Normalize(apierr.Internal(""), req.RequestID, deps.errorOpts())
					err = nil
				}
			}()

			resp, err = next(ctx, req)
			if err != nil {
				return apierr.Normalize(err, req.RequestID, deps.errorOpts()), nil
			}
			resp.SetHeader(apierr.HeaderRequestID, req.RequestID)
			return resp, nil
		}
	}
}
