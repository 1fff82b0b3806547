package cache

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/interlock-api/interlock/internal/policy"
	"github.com/interlock-api/interlock/internal/telemetry"
	"github.com/interlock-api/interlock/internal/types"
)

// cacheable is the set of statuses eligible for storage. Error responses
// are never cached.
var cacheable = map[int]bool{200: true, 203: true, 204: true}

// Engine serves and stores responses for idempotent reads. One Engine is
// shared by all routes; per-route behavior comes from the attached policy.
type Engine struct {
	backend Backend
	logger  *slog.Logger
	metrics *telemetry.Metrics
	now     func() time.Time

	// refreshing tracks in-flight background revalidations per key so a
	// burst of stale hits schedules a single refresh.
	refreshing sync.Map
}

// NewEngine creates a cache engine over the given backend.
func NewEngine(backend Backend, logger *slog.Logger, metrics *telemetry.Metrics) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{backend: backend, logger: logger, metrics: metrics, now: time.Now}
}

// Invalidate removes entries matching pattern (trailing '*' for a prefix
// match) and returns the count removed. Mutating routes call this to keep
// reads consistent after writes.
func (e *Engine) Invalidate(ctx context.Context, pattern string) (int, error) {
	n, err := e.backend.Invalidate(ctx, pattern)
	if err != nil {
		return n, fmt.Errorf("invalidate %q: %w", pattern, err)
	}
	if e.metrics != nil {
		e.metrics.RecordCacheEvent("", "invalidate")
	}
	return n, nil
}

// Stage returns the pipeline stage for the route's cache policy. Reads are
// served from cache when fresh, revalidated in the background when stale,
// and recomputed otherwise; successful responses are stored on the way out.
func (e *Engine) Stage(p *policy.Cache, route string) types.Stage {
	return func(next types.Handler) types.Handler {
		return func(ctx context.Context, req *types.Request) (*types.Response, error) {
			// Only idempotent reads participate; everything else passes
			// through untouched.
			if (req.Method != "GET" && req.Method != "HEAD") || p.TTL == 0 {
				return next(ctx, req)
			}

			key := Key(req, p.Vary)
			now := e.now()

			entry, err := e.backend.Get(ctx, key)
			if err != nil {
				e.logger.Warn("cache backend read failed", "key", key, "error", err)
			}

			if entry != nil && entry.Fresh(now) {
				e.record(route, "hit")
				return e.serve(entry, req, route), nil
			}

			if entry != nil && entry.ServableStale(now) {
				e.record(route, "stale")
				e.scheduleRefresh(key, route, p, req, next)
				return e.serve(entry, req, route), nil
			}

			e.record(route, "miss")
			resp, err := next(ctx, req)
			if err != nil {
				return nil, err
			}
			e.store(ctx, key, route, p, resp)
			return resp, nil
		}
	}
}

// serve builds a response from a stored entry, answering conditional GETs
// with 304 when the client's validator still matches.
func (e *Engine) serve(entry *Entry, req *types.Request, route string) *types.Response {
	if match := req.Header.Get("If-None-Match"); match != "" && match == entry.ETag {
		e.record(route, "not_modified")
		resp := types.NewResponse(304)
		resp.SetHeader("ETag", entry.ETag)
		return resp
	}

	resp := types.NewResponse(entry.Status)
	resp.Body = append([]byte(nil), entry.Body...)
	for k, v := range entry.Headers {
		resp.SetHeader(k, v)
	}
	resp.SetHeader("ETag", entry.ETag)
	if resp.Header.Get("Cache-Control") == "" {
		resp.SetHeader("Cache-Control", "public")
	}
	return resp
}

// store writes a successful response into the backend and decorates it with
// the validator and caching headers. Non-cacheable statuses are left alone.
func (e *Engine) store(ctx context.Context, key, route string, p *policy.Cache, resp *types.Response) {
	if !cacheable[resp.Status] {
		return
	}

	now := e.now()
	etag := ComputeETag(resp.Body)
	cacheControl := fmt.Sprintf("public, max-age=%d, stale-while-revalidate=%d",
		int(p.TTL.Seconds()), int(p.StaleWhileRevalidate.Seconds()))

	entry := &Entry{
		Key:        key,
		Status:     resp.Status,
		Body:       append([]byte(nil), resp.Body...),
		ETag:       etag,
		CreatedAt:  now,
		ExpiresAt:  now.Add(p.TTL),
		StaleUntil: now.Add(p.TTL + p.StaleWhileRevalidate),
		Headers: map[string]string{
			"Content-Type":  resp.Header.Get("Content-Type"),
			"Cache-Control": cacheControl,
		},
	}
	if len(p.Vary) > 0 {
		entry.Headers["Vary"] = joinVary(p.Vary)
	}

	if err := e.backend.Set(ctx, key, entry); err != nil {
		e.logger.Warn("cache backend write failed", "key", key, "error", err)
		return
	}
	e.record(route, "store")

	resp.SetHeader("ETag", etag)
	resp.SetHeader("Cache-Control", cacheControl)
	if len(p.Vary) > 0 {
		resp.SetHeader("Vary", joinVary(p.Vary))
	}
}

// scheduleRefresh kicks off a background recomputation for a stale key. The
// caller is never blocked on refresh completion; the refresh runs under its
// own deadline, detached from the request's context.
func (e *Engine) scheduleRefresh(key, route string, p *policy.Cache, req *types.Request, next types.Handler) {
	if _, inFlight := e.refreshing.LoadOrStore(key, struct{}{}); inFlight {
		return
	}

	cloned := req.Clone()
	// The stale client must not receive a 304 from the refresh invocation.
	cloned.Header.Del("If-None-Match")

	go func() {
		defer e.refreshing.Delete(key)

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		resp, err := next(ctx, cloned)
		if err != nil {
			e.logger.Warn("background revalidation failed", "key", key, "error", err)
			return
		}
		e.store(ctx, key, route, p, resp)
		e.record(route, "revalidate")
	}()
}

func (e *Engine) record(route, event string) {
	if e.metrics != nil {
		e.metrics.RecordCacheEvent(route, event)
	}
}

func joinVary(vary []string) string {
	out := ""
	for i, v := range vary {
		if i > 0 {
			out += ", "
		}
		out += v
	}
	return out
}
