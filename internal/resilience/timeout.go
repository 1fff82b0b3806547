package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/interlock-api/interlock/internal/apierr"
	"github.com/interlock-api/interlock/internal/policy"
	"github.com/interlock-api/interlock/internal/telemetry"
	"github.com/interlock-api/interlock/internal/types"
)

// TimeoutStage bounds the wrapped invocation. Cancellation is cooperative:
// the deadline context is handed to the handler, which must observe it at
// its own suspension points; the goroutine is signalled, never killed. An
// abandoned invocation's response is discarded, so a late completion can
// never produce a partial cache write or surface after the 504.
func TimeoutStage(p *policy.Timeout, metrics *telemetry.Metrics, route string) types.Stage {
	message := p.Message
	if message == "" {
		message = fmt.Sprintf("Request timed out after %s", p.Duration)
	}

	return func(next types.Handler) types.Handler {
		return func(ctx context.Context, req *types.Request) (*types.Response, error) {
			tctx, cancel := context.WithTimeout(ctx, p.Duration)
			defer cancel()

			type outcome struct {
				resp *types.Response
				err  error
			}
			done := make(chan outcome, 1)

			go func() {
				resp, err := next(tctx, req)
				done <- outcome{resp, err}
			}()

			select {
			case out := <-done:
				return out.resp, out.err
			case <-tctx.Done():
				if errors.Is(tctx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
					slog.Error("invocation timed out",
						"request_id", req.RequestID,
						"route", route,
						"timeout", p.Duration,
					)
					if metrics != nil {
						metrics.RecordTimeout(route)
					}
					return nil, apierr.Timeout(message)
				}
				// Outer cancellation (client gone), not our deadline.
				return nil, ctx.Err()
			}
		}
	}
}
