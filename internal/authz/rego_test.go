package authz

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/interlock-api/interlock/internal/types"
)

const testPolicy = `
package interlock.authz

import rego.v1

default allow := false

allow if {
	input.token == "service-token"
}

allow if {
	count(input.required.roles) == 0
	input.request.method == "GET"
}
`

func newTestHandler(t *testing.T) *RegoHandler {
	t.Helper()
	h, err := NewRegoHandler(context.Background(), map[string]string{"authz.rego": testPolicy})
	if err != nil {
		t.Fatalf("NewRegoHandler: %v", err)
	}
	return h
}

func regoReq(method, token string) *types.Request {
	req := &types.Request{Method: method, Path: "/w", Header: http.Header{}, Scratch: map[string]any{}}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func TestRegoHandler_Evaluate(t *testing.T) {
	h := newTestHandler(t)

	tests := []struct {
		name   string
		method string
		token  string
		roles  []string
		want   bool
	}{
		{"known token allowed", "POST", "service-token", []string{"admin"}, true},
		{"unknown token denied for role-gated route", "POST", "other", []string{"admin"}, false},
		{"anonymous GET without requirements allowed", "GET", "", nil, true},
		{"anonymous POST denied", "POST", "", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, err := h.Evaluate(context.Background(), regoReq(tt.method, tt.token), tt.roles, nil, false)
			if err != nil {
				t.Fatalf("Evaluate: %v", err)
			}
			if ok != tt.want {
				t.Errorf("Evaluate = %v, want %v", ok, tt.want)
			}
		})
	}
}

func TestNewRegoHandler_NoModules(t *testing.T) {
	if _, err := NewRegoHandler(context.Background(), nil); err == nil {
		t.Error("empty module set should error")
	}
}

func TestNewRegoHandler_BadPolicy(t *testing.T) {
	_, err := NewRegoHandler(context.Background(), map[string]string{"bad.rego": "not rego at all {"})
	if err == nil {
		t.Error("unparseable policy should error at compile time")
	}
}

func TestLoadRegoFiles(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "authz.rego"), []byte(testPolicy), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignore me"), 0o644); err != nil {
		t.Fatal(err)
	}

	modules, err := LoadRegoFiles(dir)
	if err != nil {
		t.Fatalf("LoadRegoFiles: %v", err)
	}
	if len(modules) != 1 {
		t.Fatalf("modules = %d, want only the .rego file", len(modules))
	}
	if _, ok := modules["authz.rego"]; !ok {
		t.Error("module should be keyed by relative path")
	}
}
