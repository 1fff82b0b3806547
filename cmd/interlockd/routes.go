package main

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/interlock-api/interlock/internal/apierr"
	"github.com/interlock-api/interlock/internal/cache"
	"github.com/interlock-api/interlock/internal/policy"
	"github.com/interlock-api/interlock/internal/route"
	"github.com/interlock-api/interlock/internal/types"
)

// buildRoutes assembles the served API. Each registration pairs a handler
// with the policy set the pipeline enforces around it. engine is the shared
// cache engine so mutating handlers can drop cached reads; nil disables
// invalidation along with caching itself.
func buildRoutes(engine *cache.Engine) *route.Registry {
	reg := route.NewRegistry()
	api := newWidgetAPI(engine)

	reg.MustAdd("GET", "/v1/widgets", api.list, policy.Set{
		Version:   &policy.Version{Constraint: ">=1.0.0"},
		RateLimit: &policy.RateLimit{Limit: 100, Window: time.Minute, By: policy.ByIP},
		Cache:     &policy.Cache{TTL: 30 * time.Second, StaleWhileRevalidate: 30 * time.Second},
		Log:       &policy.Log{},
		Speed:     &policy.Speed{WarnThreshold: 500 * time.Millisecond, IncludeHeader: true},
	})

	reg.MustAdd("GET", "/v1/widgets/{id}", api.get, policy.Set{
		Version: &policy.Version{Constraint: ">=1.0.0"},
		Cache:   &policy.Cache{TTL: 30 * time.Second},
		Log:     &policy.Log{},
	})

	reg.MustAdd("POST", "/v1/widgets", api.create, policy.Set{
		Auth:      &policy.Auth{Enabled: true, Roles: []string{"admin", "editor"}},
		RateLimit: &policy.RateLimit{Limit: 20, Window: time.Minute, By: policy.ByUser},
		Log:       &policy.Log{},
	})

	reg.MustAdd("DELETE", "/v1/widgets/{id}", api.remove, policy.Set{
		Auth: &policy.Auth{Enabled: true, Roles: []string{"admin"}},
		Log:  &policy.Log{},
	})

	// Legacy listing kept for pre-2.0 clients. The deprecation surface tells
	// callers where to go.
	reg.MustAdd("GET", "/v1/legacy/widgets", api.list, policy.Set{
		Version: &policy.Version{
			Constraint:  ">=1.0.0",
			Deprecated:  true,
			Sunset:      "2027-01-01",
			Alternative: "/v1/widgets",
			Message:     "Use /v1/widgets; this path is removed in 2.0.",
		},
		Log: &policy.Log{},
	})

	reg.MustAdd("GET", "/v1/reports/usage", api.usageReport, policy.Set{
		Auth:    &policy.Auth{Enabled: true, Scopes: []string{"reports:read"}},
		Timeout: &policy.Timeout{Duration: 2 * time.Second},
		Retry:   &policy.Retry{Attempts: 3, Delay: 100 * time.Millisecond, Backoff: 2.0},
		Log:     &policy.Log{},
		Speed:   &policy.Speed{WarnThreshold: time.Second, ErrorThreshold: 1800 * time.Millisecond},
	})

	return reg
}

type widget struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedBy string    `json:"created_by,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// widgetAPI is a small in-memory resource backing the served routes.
type widgetAPI struct {
	mu      sync.RWMutex
	widgets map[string]widget
	nextID  int
	cache   *cache.Engine
}

func newWidgetAPI(engine *cache.Engine) *widgetAPI {
	return &widgetAPI{widgets: make(map[string]widget), cache: engine}
}

// invalidateReads drops every cached widget response (listing and per-id)
// after a mutation so the next read observes the write instead of a stale
// entry riding out its TTL.
func (a *widgetAPI) invalidateReads(ctx context.Context) {
	if a.cache == nil {
		return
	}
	if _, err := a.cache.Invalidate(ctx, "GET|/v1/widgets*"); err != nil {
		slog.Warn("widget cache invalidation failed", "error", err)
	}
}

func (a *widgetAPI) list(ctx context.Context, req *types.Request) (*types.Response, error) {
	a.mu.RLock()
	out := make([]widget, 0, len(a.widgets))
	for _, w := range a.widgets {
		out = append(out, w)
	}
	a.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return types.JSON(200, map[string]any{"widgets": out}), nil
}

func (a *widgetAPI) get(ctx context.Context, req *types.Request) (*types.Response, error) {
	a.mu.RLock()
	w, ok := a.widgets[req.Params["id"]]
	a.mu.RUnlock()
	if !ok {
		return nil, apierr.New(404, "not_found", "Widget not found")
	}
	return types.JSON(200, w), nil
}

func (a *widgetAPI) create(ctx context.Context, req *types.Request) (*types.Response, error) {
	name := req.Query.Get("name")
	if name == "" {
		return nil, apierr.Validation("Request validation failed", []apierr.Detail{
			{Field: "name", Source: "query", Issue: "required"},
		})
	}

	var createdBy string
	if id, ok := types.IdentityFrom(req); ok {
		createdBy = id.ID
	}

	a.mu.Lock()
	a.nextID++
	w := widget{
		ID:        fmt.Sprintf("w-%d", a.nextID),
		Name:      name,
		CreatedBy: createdBy,
		CreatedAt: time.Now().UTC(),
	}
	a.widgets[w.ID] = w
	a.mu.Unlock()

	a.invalidateReads(ctx)
	return types.JSON(201, w), nil
}

func (a *widgetAPI) remove(ctx context.Context, req *types.Request) (*types.Response, error) {
	id := req.Params["id"]
	a.mu.Lock()
	_, ok := a.widgets[id]
	delete(a.widgets, id)
	a.mu.Unlock()
	if !ok {
		return nil, apierr.New(404, "not_found", "Widget not found")
	}
	a.invalidateReads(ctx)
	return types.NewResponse(204), nil
}

func (a *widgetAPI) usageReport(ctx context.Context, req *types.Request) (*types.Response, error) {
	a.mu.RLock()
	total := len(a.widgets)
	a.mu.RUnlock()
	return types.JSON(200, map[string]any{
		"total_widgets": total,
		"generated_at":  time.Now().UTC(),
	}), nil
}
