package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/interlock-api/interlock/internal/apierr"
	"github.com/interlock-api/interlock/internal/auth"
	"github.com/interlock-api/interlock/internal/cache"
	"github.com/interlock-api/interlock/internal/policy"
	"github.com/interlock-api/interlock/internal/ratelimit"
	"github.com/interlock-api/interlock/internal/types"
)

func newReq() *types.Request {
	return &types.Request{
		Method:    "GET",
		Path:      "/w",
		Query:     url.Values{},
		Header:    http.Header{},
		ClientIP:  "1.2.3.4",
		RequestID: "req_test",
		Scratch:   map[string]any{},
	}
}

func okHandler(ctx context.Context, req *types.Request) (*types.Response, error) {
	return types.JSON(200, map[string]string{"ok": "yes"}), nil
}

// spyStore counts rate-limit accounting calls so tests can assert which
// stages ran before a short-circuit.
type spyStore struct {
	inner ratelimit.Store
	calls int32
}

func (s *spyStore) Get(ctx context.Context, key string) (int64, error) {
	return s.inner.Get(ctx, key)
}
func (s *spyStore) IncrementIfBelow(ctx context.Context, key string, limit int64, ttl time.Duration) (int64, bool, error) {
	atomic.AddInt32(&s.calls, 1)
	return s.inner.IncrementIfBelow(ctx, key, limit, ttl)
}
func (s *spyStore) Delete(ctx context.Context, key string) error { return s.inner.Delete(ctx, key) }
func (s *spyStore) Close() error                                 { return s.inner.Close() }

func newDeps(t *testing.T, store ratelimit.Store, handler auth.Handler) Deps {
	t.Helper()
	if store == nil {
		ms := ratelimit.NewMemoryStore()
		t.Cleanup(func() { ms.Close() })
		store = ms
	}
	return Deps{
		AuthHandler: handler,
		Limiter:     ratelimit.NewFixedWindow(store, nil),
		Cache:       cache.NewEngine(cache.NewMemoryBackend(), nil, nil),
	}
}

func TestBuild_SuccessCarriesRequestID(t *testing.T) {
	h := Build("GET /w", "GET", okHandler, policy.Set{}, newDeps(t, nil, nil))
	resp, err := h(context.Background(), newReq())
	if err != nil {
		t.Fatalf("built pipelines never return errors: %v", err)
	}
	if resp.Status != 200 {
		t.Errorf("status = %d, want 200", resp.Status)
	}
	if got := resp.Header.Get(apierr.HeaderRequestID); got != "req_test" {
		t.Errorf("X-Request-Id = %q, want req_test", got)
	}
}

func TestBuild_HandlerErrorBecomesEnvelope(t *testing.T) {
	failing := func(ctx context.Context, req *types.Request) (*types.Response, error) {
		return nil, apierr.New(404, "not_found", "Widget not found")
	}

	h := Build("GET /w", "GET", failing, policy.Set{}, newDeps(t, nil, nil))
	resp, err := h(context.Background(), newReq())
	if err != nil {
		t.Fatalf("error should be absorbed into the envelope: %v", err)
	}
	if resp.Status != 404 {
		t.Errorf("status = %d, want 404", resp.Status)
	}

	var env apierr.Envelope
	if jsonErr := json.Unmarshal(resp.Body, &env); jsonErr != nil {
		t.Fatalf("body is not an envelope: %v", jsonErr)
	}
	if env.Error.Code != "not_found" {
		t.Errorf("code = %q, want not_found", env.Error.Code)
	}
	if env.RequestID != "req_test" {
		t.Errorf("request_id = %q, want req_test", env.RequestID)
	}
}

func TestBuild_PanicBecomes500Envelope(t *testing.T) {
	panicking := func(ctx context.Context, req *types.Request) (*types.Response, error) {
		panic("nil map write")
	}

	h := Build("GET /w", "GET", panicking, policy.Set{}, newDeps(t, nil, nil))
	resp, err := h(context.Background(), newReq())
	if err != nil {
		t.Fatalf("panic should be absorbed: %v", err)
	}
	if resp.Status != 500 {
		t.Errorf("status = %d, want 500", resp.Status)
	}

	var env apierr.Envelope
	json.Unmarshal(resp.Body, &env)
	if env.Error.Code != "internal_error" {
		t.Errorf("code = %q, want internal_error", env.Error.Code)
	}
}

func TestBuild_AuthDenialSkipsRateAccounting(t *testing.T) {
	spy := &spyStore{inner: ratelimit.NewMemoryStore()}
	defer spy.Close()

	deny := auth.HandlerFunc(func(ctx context.Context, req *types.Request, roles, scopes []string, requireAll bool) (bool, error) {
		return false, nil
	})

	p := policy.Set{
		Auth:      &policy.Auth{Enabled: true},
		RateLimit: &policy.RateLimit{Limit: 100, Window: time.Minute},
	}
	if err := p.Compile(); err != nil {
		t.Fatal(err)
	}
	h := Build("GET /w", "GET", okHandler, p, newDeps(t, spy, deny))

	for i := 0; i < 3; i++ {
		resp, _ := h(context.Background(), newReq())
		if resp.Status != 403 {
			t.Fatalf("status = %d, want 403", resp.Status)
		}
	}
	if atomic.LoadInt32(&spy.calls) != 0 {
		t.Errorf("rate accounting ran %d times behind a failed auth gate, want 0", spy.calls)
	}
}

func TestBuild_VersionRejectionSkipsRateAccounting(t *testing.T) {
	spy := &spyStore{inner: ratelimit.NewMemoryStore()}
	defer spy.Close()

	p := policy.Set{
		Version:   &policy.Version{Constraint: ">=2.0.0"},
		RateLimit: &policy.RateLimit{Limit: 100, Window: time.Minute},
	}
	if err := p.Compile(); err != nil {
		t.Fatal(err)
	}
	h := Build("GET /w", "GET", okHandler, p, newDeps(t, spy, nil))

	req := newReq()
	req.Header.Set("X-API-Version", "1.0.0")
	resp, _ := h(context.Background(), req)
	if resp.Status != 400 {
		t.Fatalf("status = %d, want 400", resp.Status)
	}
	if atomic.LoadInt32(&spy.calls) != 0 {
		t.Error("version rejection must not consume rate quota")
	}
}

func TestBuild_RateLimitBeforeCache(t *testing.T) {
	var handlerCalls int32
	counting := func(ctx context.Context, req *types.Request) (*types.Response, error) {
		atomic.AddInt32(&handlerCalls, 1)
		return types.JSON(200, map[string]string{"ok": "yes"}), nil
	}

	p := policy.Set{
		RateLimit: &policy.RateLimit{Limit: 2, Window: time.Minute},
		Cache:     &policy.Cache{TTL: time.Minute},
	}
	if err := p.Compile(); err != nil {
		t.Fatal(err)
	}
	h := Build("GET /w", "GET", counting, p, newDeps(t, nil, nil))

	// First request computes and stores; second is a cache hit but still
	// consumes quota; third is rejected before the cache is consulted.
	first, _ := h(context.Background(), newReq())
	if first.Status != 200 {
		t.Fatalf("first status = %d", first.Status)
	}
	second, _ := h(context.Background(), newReq())
	if second.Status != 200 {
		t.Fatalf("second status = %d", second.Status)
	}
	if atomic.LoadInt32(&handlerCalls) != 1 {
		t.Errorf("handler calls = %d, want 1 (second request served from cache)", handlerCalls)
	}

	third, _ := h(context.Background(), newReq())
	if third.Status != 429 {
		t.Errorf("third status = %d, want 429 (quota precedes cache)", third.Status)
	}
	if got := third.Header.Get("Retry-After"); got == "" {
		t.Error("429 should carry Retry-After")
	}
	if got := third.Header.Get("X-RateLimit-Remaining"); got != "0" {
		t.Errorf("X-RateLimit-Remaining = %q, want 0", got)
	}
}

func TestBuild_PerAttemptTimeout(t *testing.T) {
	var attempts int32
	hang := func(ctx context.Context, req *types.Request) (*types.Response, error) {
		atomic.AddInt32(&attempts, 1)
		<-ctx.Done()
		return nil, ctx.Err()
	}

	p := policy.Set{
		Retry:   &policy.Retry{Attempts: 3, Delay: 5 * time.Millisecond},
		Timeout: &policy.Timeout{Duration: 30 * time.Millisecond},
	}
	if err := p.Compile(); err != nil {
		t.Fatal(err)
	}

	h := Build("GET /w", "GET", hang, p, newDeps(t, nil, nil))

	start := time.Now()
	resp, _ := h(context.Background(), newReq())
	elapsed := time.Since(start)

	if resp.Status != 504 {
		t.Fatalf("status = %d, want 504", resp.Status)
	}
	if got := atomic.LoadInt32(&attempts); got != 3 {
		t.Errorf("attempts = %d, want 3 (each gets its own budget)", got)
	}
	// Three 30ms budgets plus two 5ms waits.
	if elapsed < 90*time.Millisecond {
		t.Errorf("elapsed = %s, want >= 90ms for per-attempt budgets", elapsed)
	}
}

func TestBuild_WholeSequenceTimeout(t *testing.T) {
	hang := func(ctx context.Context, req *types.Request) (*types.Response, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	p := policy.Set{
		Retry:   &policy.Retry{Attempts: 10, Delay: 5 * time.Millisecond},
		Timeout: &policy.Timeout{Duration: 50 * time.Millisecond, WholeSequence: true},
	}
	if err := p.Compile(); err != nil {
		t.Fatal(err)
	}

	h := Build("GET /w", "GET", hang, p, newDeps(t, nil, nil))

	start := time.Now()
	resp, _ := h(context.Background(), newReq())
	elapsed := time.Since(start)

	if resp.Status != 504 {
		t.Fatalf("status = %d, want 504", resp.Status)
	}
	// The whole retry loop is bounded by the single 50ms budget.
	if elapsed > 500*time.Millisecond {
		t.Errorf("elapsed = %s, want roughly the 50ms budget", elapsed)
	}
}

func TestBuild_RetryRecoversBeforeClientSeesFailure(t *testing.T) {
	var calls int32
	flaky := func(ctx context.Context, req *types.Request) (*types.Response, error) {
		if atomic.AddInt32(&calls, 1) < 3 {
			return nil, errors.New("transient upstream failure")
		}
		return types.JSON(200, map[string]string{"ok": "finally"}), nil
	}

	p := policy.Set{Retry: &policy.Retry{Attempts: 3, Delay: time.Millisecond}}
	if err := p.Compile(); err != nil {
		t.Fatal(err)
	}

	h := Build("GET /w", "GET", flaky, p, newDeps(t, nil, nil))
	resp, _ := h(context.Background(), newReq())
	if resp.Status != 200 {
		t.Errorf("status = %d, want 200 after internal retries", resp.Status)
	}
}

func TestBuild_ErrorOptsReadPerRequest(t *testing.T) {
	failing := func(ctx context.Context, req *types.Request) (*types.Response, error) {
		return nil, apierr.Forbidden("no")
	}

	envelope := true
	deps := newDeps(t, nil, nil)
	deps.ErrorOpts = func() apierr.Options {
		return apierr.Options{Envelope: envelope, IncludeDetails: true, Redact: true}
	}

	h := Build("GET /w", "GET", failing, policy.Set{}, deps)

	resp, _ := h(context.Background(), newReq())
	var env apierr.Envelope
	if err := json.Unmarshal(resp.Body, &env); err != nil || env.Error.Code == "" {
		t.Fatal("expected enveloped error")
	}

	// Flip the app-level switch; no pipeline rebuild needed.
	envelope = false
	resp, _ = h(context.Background(), newReq())
	var bare map[string]string
	if err := json.Unmarshal(resp.Body, &bare); err != nil {
		t.Fatal(err)
	}
	if bare["detail"] != "no" {
		t.Errorf("body = %v, want bare detail shape after reload", bare)
	}
}
