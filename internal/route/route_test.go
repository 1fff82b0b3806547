package route

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/interlock-api/interlock/internal/policy"
	"github.com/interlock-api/interlock/internal/types"
)

func noop(ctx context.Context, req *types.Request) (*types.Response, error) {
	return types.NewResponse(200), nil
}

func TestRegistry_Add(t *testing.T) {
	reg := NewRegistry()

	r, err := reg.Add("get", "/v1/widgets/{id}", noop, policy.Set{})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if r.Method != "GET" {
		t.Errorf("method = %q, want normalized GET", r.Method)
	}
	if r.Name() != "GET /v1/widgets/{id}" {
		t.Errorf("name = %q", r.Name())
	}
	if !reflect.DeepEqual(r.Params, []string{"id"}) {
		t.Errorf("params = %v, want [id]", r.Params)
	}
}

func TestRegistry_AddRejectsBadInput(t *testing.T) {
	reg := NewRegistry()

	if _, err := reg.Add("GET", "/x", nil, policy.Set{}); err == nil {
		t.Error("nil handler should be rejected")
	}
	if _, err := reg.Add("GET", "no-slash", noop, policy.Set{}); err == nil {
		t.Error("path without leading slash should be rejected")
	}
	bad := policy.Set{RateLimit: &policy.RateLimit{Limit: 0, Window: time.Minute}}
	if _, err := reg.Add("GET", "/x", noop, bad); err == nil {
		t.Error("invalid policy should fail registration")
	}
}

func TestRegistry_CompilesPolicies(t *testing.T) {
	reg := NewRegistry()
	r, err := reg.Add("GET", "/x", noop, policy.Set{
		Version:   &policy.Version{Constraint: ">=1.0.0"},
		RateLimit: &policy.RateLimit{Limit: 5, Window: time.Minute},
	})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if r.Policies.Version.Compiled.Op == "" {
		t.Error("version constraint should be compiled at registration")
	}
	if r.Policies.RateLimit.By != policy.ByIP {
		t.Error("rate limit key strategy should default to ip")
	}
}

func TestRegistry_DuplicatesRecorded(t *testing.T) {
	// Duplicates are not rejected at Add time; the doctor reports them.
	reg := NewRegistry()
	reg.MustAdd("GET", "/x", noop, policy.Set{})
	reg.MustAdd("GET", "/x", noop, policy.Set{})

	if got := len(reg.Routes()); got != 2 {
		t.Errorf("routes = %d, want both registrations recorded", got)
	}
}

func TestTemplateParams(t *testing.T) {
	tests := []struct {
		path string
		want []string
	}{
		{"/v1/widgets", nil},
		{"/v1/widgets/{id}", []string{"id"}},
		{"/v1/{org}/widgets/{id}", []string{"org", "id"}},
	}
	for _, tt := range tests {
		if got := templateParams(tt.path); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("templateParams(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}
