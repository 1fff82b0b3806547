// Package resilience implements the retry and timeout wrappers around the
// innermost handler invocation. When both are attached, the timeout bounds
// each retry attempt individually by default (worst case roughly
// attempts*timeout plus backoff waits); Timeout.WholeSequence instead
// bounds the entire retry loop (worst case exactly the timeout). The
// pipeline package wires the chosen order.
package resilience

import (
	"context"
	"log/slog"
	"time"

	"github.com/interlock-api/interlock/internal/policy"
	"github.com/interlock-api/interlock/internal/telemetry"
	"github.com/interlock-api/interlock/internal/types"
)

// RetryStage re-executes the wrapped invocation on qualifying failures. A
// non-qualifying failure or exhaustion propagates the last failure
// unchanged; only the final outcome is visible to outer stages.
func RetryStage(p *policy.Retry, metrics *telemetry.Metrics, route string) types.Stage {
	return func(next types.Handler) types.Handler {
		return func(ctx context.Context, req *types.Request) (*types.Response, error) {
			delay := p.Delay
			var lastErr error

			for attempt := 1; attempt <= p.Attempts; attempt++ {
				resp, err := next(ctx, req)
				if err == nil {
					if attempt > 1 {
						slog.Info("retry succeeded",
							"request_id", req.RequestID,
							"route", route,
							"attempt", attempt,
						)
					}
					if metrics != nil {
						metrics.RecordRetry(route, "success")
					}
					return resp, nil
				}
				lastErr = err

				if !p.RetryIf(err) {
					return nil, err
				}

				if attempt == p.Attempts {
					break
				}

				slog.Warn("attempt failed, retrying",
					"request_id", req.RequestID,
					"route", route,
					"attempt", attempt,
					"attempts", p.Attempts,
					"delay", delay,
					"error", err,
				)
				if metrics != nil {
					metrics.RecordRetry(route, "retried")
				}

				select {
				case <-time.After(delay):
				case <-ctx.Done():
					return nil, ctx.Err()
				}
				delay = time.Duration(float64(delay) * p.Backoff)
			}

			slog.Error("all attempts failed",
				"request_id", req.RequestID,
				"route", route,
				"attempts", p.Attempts,
				"error", lastErr,
			)
			if metrics != nil {
				metrics.RecordRetry(route, "exhausted")
			}
			return nil, lastErr
		}
	}
}
