// Package observe implements the logging and speed wrappers. They capture
// lifecycle and timing telemetry without altering control flow, and sit
// outside the policy gates so they see the true outcome of every request,
// including short-circuits and retries.
package observe

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/interlock-api/interlock/internal/apierr"
	"github.com/interlock-api/interlock/internal/policy"
	"github.com/interlock-api/interlock/internal/telemetry"
	"github.com/interlock-api/interlock/internal/types"
)

// LogStage emits one structured record per invocation at the configured
// level, escalating to error-level when the invocation failed.
func LogStage(p *policy.Log, logger *slog.Logger, route string) types.Stage {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next types.Handler) types.Handler {
		return func(ctx context.Context, req *types.Request) (*types.Response, error) {
			start := time.Now()
			resp, err := next(ctx, req)
			elapsed := time.Since(start)

			message := p.Message
			if message == "" {
				message = "request handled"
			}

			attrs := []any{
				"request_id", req.RequestID,
				"route", route,
				"method", req.Method,
				"path", req.Path,
				"duration_ms", float64(elapsed.Microseconds()) / 1000,
			}
			if err != nil {
				if e, ok := apierr.AsError(err); ok {
					attrs = append(attrs, "status", e.Status, "code", e.Code)
				}
				attrs = append(attrs, "error", err)
				logger.Log(ctx, slog.LevelError, message, attrs...)
				return resp, err
			}
			attrs = append(attrs, "status", resp.Status)
			logger.Log(ctx, p.Level, message, attrs...)
			return resp, nil
		}
	}
}

// SpeedStage measures invocation latency, records it, and optionally
// surfaces it to the client via X-Response-Time. Thresholds escalate the
// log level; timing is recorded even when the invocation fails.
func SpeedStage(p *policy.Speed, metrics *telemetry.Metrics, route, method string) types.Stage {
	return func(next types.Handler) types.Handler {
		return func(ctx context.Context, req *types.Request) (*types.Response, error) {
			start := time.Now()
			resp, err := next(ctx, req)
			elapsed := time.Since(start)
			elapsedMs := float64(elapsed.Microseconds()) / 1000

			logTiming(p, route, elapsed, elapsedMs)

			status := "error"
			if err == nil {
				status = fmt.Sprintf("%d", resp.Status)
			} else if e, ok := apierr.AsError(err); ok {
				status = fmt.Sprintf("%d", e.Status)
			}
			if metrics != nil {
				metrics.RecordRequest(route, method, status, elapsedMs)
			}

			if err != nil {
				return resp, err
			}
			if p.IncludeHeader {
				resp.SetHeader("X-Response-Time", fmt.Sprintf("%.2fms", elapsedMs))
			}
			return resp, nil
		}
	}
}

func logTiming(p *policy.Speed, route string, elapsed time.Duration, elapsedMs float64) {
	switch {
	case p.ErrorThreshold > 0 && elapsed > p.ErrorThreshold:
		slog.Error("latency threshold exceeded",
			"route", route,
			"duration_ms", elapsedMs,
			"threshold_ms", float64(p.ErrorThreshold.Milliseconds()),
		)
	case p.WarnThreshold > 0 && elapsed > p.WarnThreshold:
		slog.Warn("latency threshold exceeded",
			"route", route,
			"duration_ms", elapsedMs,
			"threshold_ms", float64(p.WarnThreshold.Milliseconds()),
		)
	default:
		slog.Debug("invocation timed",
			"route", route,
			"duration_ms", elapsedMs,
		)
	}
}
