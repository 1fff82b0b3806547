package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/interlock-api/interlock/internal/apierr"
	"github.com/interlock-api/interlock/internal/policy"
	"github.com/interlock-api/interlock/internal/types"
)

func okHandler(ctx context.Context, req *types.Request) (*types.Response, error) {
	return types.JSON(200, map[string]string{"ok": "yes"}), nil
}

func TestStage_QuotaHeadersOnSuccess(t *testing.T) {
	store := NewMemoryStore()
	defer store.Close()
	l := NewFixedWindow(store, nil)

	p := &policy.RateLimit{Limit: 10, Window: time.Minute, By: policy.ByIP}
	h := Stage(p, l, nil, "GET /w")(okHandler)

	resp, err := h(context.Background(), &types.Request{ClientIP: "1.1.1.1", Scratch: map[string]any{}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := resp.Header.Get("X-RateLimit-Limit"); got != "10" {
		t.Errorf("limit header = %q, want 10", got)
	}
	if got := resp.Header.Get("X-RateLimit-Remaining"); got != "9" {
		t.Errorf("remaining header = %q, want 9", got)
	}
	if resp.Header.Get("X-RateLimit-Reset") == "" {
		t.Error("reset header should be present")
	}
}

func TestStage_DeniedCarriesHeaders(t *testing.T) {
	store := NewMemoryStore()
	defer store.Close()
	l := NewFixedWindow(store, nil)

	p := &policy.RateLimit{Limit: 1, Window: time.Minute, By: policy.ByIP}
	h := Stage(p, l, nil, "GET /w")(okHandler)
	req := &types.Request{ClientIP: "1.1.1.1", Scratch: map[string]any{}}

	if _, err := h(context.Background(), req); err != nil {
		t.Fatalf("first request: %v", err)
	}
	_, err := h(context.Background(), req)
	if err == nil {
		t.Fatal("second request should be rejected")
	}

	var e *apierr.Error
	if !errors.As(err, &e) {
		t.Fatalf("error type = %T, want *apierr.Error", err)
	}
	if e.Status != 429 {
		t.Errorf("status = %d, want 429", e.Status)
	}
	if e.Code != "rate_limited" {
		t.Errorf("code = %q, want rate_limited", e.Code)
	}
	if got := e.Header.Get("X-RateLimit-Remaining"); got != "0" {
		t.Errorf("remaining header = %q, want 0", got)
	}
	if e.Header.Get("Retry-After") == "" {
		t.Error("Retry-After header should be set on rejection")
	}
}

func TestStage_HandlerNotInvokedWhenDenied(t *testing.T) {
	store := NewMemoryStore()
	defer store.Close()
	l := NewFixedWindow(store, nil)

	invocations := 0
	counting := func(ctx context.Context, req *types.Request) (*types.Response, error) {
		invocations++
		return types.NewResponse(200), nil
	}

	p := &policy.RateLimit{Limit: 2, Window: time.Minute, By: policy.ByGlobal}
	h := Stage(p, l, nil, "GET /w")(counting)
	req := &types.Request{Scratch: map[string]any{}}

	for i := 0; i < 5; i++ {
		h(context.Background(), req)
	}
	if invocations != 2 {
		t.Errorf("handler invoked %d times, want 2", invocations)
	}
}
