// Package route holds the static route registry: one immutable descriptor
// per endpoint, created at registration time and consumed by both the
// pipeline (to serve traffic) and the doctor (to inspect the table offline).
package route

import (
	"fmt"
	"strings"
	"sync"

	"github.com/interlock-api/interlock/internal/policy"
	"github.com/interlock-api/interlock/internal/types"
)

// Route is the registration record for one endpoint. Immutable after Add.
type Route struct {
	Method   string
	Path     string
	Handler  types.Handler
	Policies policy.Set

	// Params are the path parameter names declared in the template.
	Params []string
}

// Name identifies the route in logs, metrics and findings.
func (r *Route) Name() string {
	return r.Method + " " + r.Path
}

// Registry owns the route table. Registration is not concurrency-safe with
// serving; register everything, run diagnostics, then serve.
type Registry struct {
	mu     sync.RWMutex
	routes []*Route
}

func NewRegistry() *Registry {
	return &Registry{}
}

// Add compiles the policy set and appends the descriptor. Duplicate
// (method, path) pairs are recorded as-is: the doctor reports them as
// deploy-blocking findings rather than Add guessing which one to keep.
func (reg *Registry) Add(method, path string, h types.Handler, p policy.Set) (*Route, error) {
	method = strings.ToUpper(method)
	if h == nil {
		return nil, fmt.Errorf("route %s %s: nil handler", method, path)
	}
	if !strings.HasPrefix(path, "/") {
		return nil, fmt.Errorf("route %s %s: path must start with /", method, path)
	}
	if err := p.Compile(); err != nil {
		return nil, fmt.Errorf("route %s %s: %w", method, path, err)
	}

	r := &Route{
		Method:   method,
		Path:     path,
		Handler:  h,
		Policies: p,
		Params:   templateParams(path),
	}

	reg.mu.Lock()
	reg.routes = append(reg.routes, r)
	reg.mu.Unlock()
	return r, nil
}

// MustAdd is Add for static registration blocks where a failure is a
// programming error.
func (reg *Registry) MustAdd(method, path string, h types.Handler, p policy.Set) *Route {
	r, err := reg.Add(method, path, h, p)
	if err != nil {
		panic(err)
	}
	return r
}

// Routes returns a snapshot of the table.
func (reg *Registry) Routes() []*Route {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	out := make([]*Route, len(reg.routes))
	copy(out, reg.routes)
	return out
}

// templateParams extracts {name} placeholders from a chi-style template.
func templateParams(path string) []string {
	var params []string
	for _, segment := range strings.Split(path, "/") {
		if strings.HasPrefix(segment, "{") && strings.HasSuffix(segment, "}") {
			params = append(params, strings.TrimSuffix(strings.TrimPrefix(segment, "{"), "}"))
		}
	}
	return params
}
