package policy

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/interlock-api/interlock/internal/apierr"
)

func TestSetCompile_Validation(t *testing.T) {
	tests := []struct {
		name    string
		set     Set
		wantErr bool
	}{
		{"empty set", Set{}, false},
		{"valid version", Set{Version: &Version{Constraint: ">=1.0.0"}}, false},
		{"bad version constraint", Set{Version: &Version{Constraint: ">=abc"}}, true},
		{"valid rate limit", Set{RateLimit: &RateLimit{Limit: 10, Window: time.Minute}}, false},
		{"zero limit", Set{RateLimit: &RateLimit{Limit: 0, Window: time.Minute}}, true},
		{"zero window", Set{RateLimit: &RateLimit{Limit: 10}}, true},
		{"bad key strategy", Set{RateLimit: &RateLimit{Limit: 10, Window: time.Minute, By: "tenant"}}, true},
		{"negative cache ttl", Set{Cache: &Cache{TTL: -time.Second}}, true},
		{"negative stale window", Set{Cache: &Cache{TTL: time.Minute, StaleWhileRevalidate: -1}}, true},
		{"zero retry attempts", Set{Retry: &Retry{Attempts: 0}}, true},
		{"zero timeout", Set{Timeout: &Timeout{}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.set.Compile()
			if (err != nil) != tt.wantErr {
				t.Errorf("Compile() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSetCompile_Defaults(t *testing.T) {
	s := Set{
		RateLimit: &RateLimit{Limit: 10, Window: time.Minute},
		Retry:     &Retry{Attempts: 3},
		Version:   &Version{Constraint: ">=1.0.0"},
	}
	if err := s.Compile(); err != nil {
		t.Fatalf("Compile: %v", err)
	}

	if s.RateLimit.By != ByIP {
		t.Errorf("key strategy = %q, want default ip", s.RateLimit.By)
	}
	if s.Retry.Backoff != 1.0 {
		t.Errorf("backoff = %v, want default 1.0", s.Retry.Backoff)
	}
	if s.Retry.RetryIf == nil {
		t.Error("retry predicate should default to RetryTransient")
	}
	if s.Version.Compiled.Op == "" {
		t.Error("version constraint should be parsed")
	}
}

func TestRetryTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"cancelled context", context.Canceled, false},
		{"plain failure", errors.New("connection refused"), true},
		{"policy rejection 403", apierr.Forbidden(""), false},
		{"policy rejection 429", apierr.RateLimited(""), false},
		{"timeout 504 qualifies", apierr.Timeout(""), true},
		{"server error 500", apierr.Internal(""), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RetryTransient(tt.err); got != tt.want {
				t.Errorf("RetryTransient = %v, want %v", got, tt.want)
			}
		})
	}
}
