package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/interlock-api/interlock/internal/apierr"
	"github.com/interlock-api/interlock/internal/policy"
	"github.com/interlock-api/interlock/internal/telemetry"
	"github.com/interlock-api/interlock/internal/types"
)

const (
	headerLimit      = "X-RateLimit-Limit"
	headerRemaining  = "X-RateLimit-Remaining"
	headerReset      = "X-RateLimit-Reset"
	headerRetryAfter = "Retry-After"
)

// Stage returns the pipeline stage enforcing the route's rate limit policy.
// Quota headers are set on admitted responses and on the 429 rejection.
func Stage(p *policy.RateLimit, limiter *FixedWindow, metrics *telemetry.Metrics, route string) types.Stage {
	return func(next types.Handler) types.Handler {
		return func(ctx context.Context, req *types.Request) (*types.Response, error) {
			key := KeyFor(p.By, route, req)
			result := limiter.Allow(ctx, key, p.Limit, p.Window)

			resetSecs := int(result.ResetAt.Sub(limiter.now()).Seconds())
			if resetSecs < 1 {
				resetSecs = 1
			}

			if !result.Allowed {
				slog.Warn("rate limit exceeded",
					"request_id", req.RequestID,
					"route", route,
					"key", key,
					"limit", p.Limit,
				)
				if metrics != nil {
					metrics.RecordRateLimitHit(route, string(p.By))
				}
				message := p.Message
				if message == "" {
					message = fmt.Sprintf("Rate limit exceeded. Try again in %d seconds.", resetSecs)
				}
				e := apierr.RateLimited(message)
				e.SetHeader(headerLimit, strconv.Itoa(p.Limit))
				e.SetHeader(headerRemaining, "0")
				e.SetHeader(headerReset, strconv.Itoa(resetSecs))
				e.SetHeader(headerRetryAfter, strconv.Itoa(int(result.RetryAfter.Seconds())))
				return nil, e
			}

			resp, err := next(ctx, req)
			if err != nil {
				return nil, err
			}
			resp.SetHeader(headerLimit, strconv.Itoa(p.Limit))
			resp.SetHeader(headerRemaining, strconv.FormatInt(result.Remaining, 10))
			resp.SetHeader(headerReset, strconv.Itoa(resetSecs))
			return resp, nil
		}
	}
}
