// Package authz provides a rego-backed auth handler: the access decision is
// written as an OPA policy instead of Go code, evaluated in-process.
package authz

import (
	"context"
	"fmt"
	"strings"

	"github.com/open-policy-agent/opa/rego"

	"github.com/interlock-api/interlock/internal/types"
)

// Input is the document handed to the policy for each evaluation.
type Input struct {
	Token    string        `json:"token"`
	Request  RequestInput  `json:"request"`
	Required RequiredInput `json:"required"`
}

type RequestInput struct {
	Method   string `json:"method"`
	Path     string `json:"path"`
	ClientIP string `json:"client_ip"`
}

type RequiredInput struct {
	Roles      []string `json:"roles"`
	Scopes     []string `json:"scopes"`
	RequireAll bool     `json:"require_all"`
}

// RegoHandler implements auth.Handler by querying
// data.interlock.authz.allow over the compiled policy modules.
type RegoHandler struct {
	prepared rego.PreparedEvalQuery
}

// NewRegoHandler compiles the given rego modules (name -> source).
func NewRegoHandler(ctx context.Context, modules map[string]string) (*RegoHandler, error) {
	if len(modules) == 0 {
		return nil, fmt.Errorf("no rego modules provided")
	}

	opts := []func(*rego.Rego){rego.Query("data.interlock.authz.allow")}
	for name, src := range modules {
		opts = append(opts, rego.Module(name, src))
	}

	prepared, err := rego.New(opts...).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("prepare rego: %w", err)
	}
	return &RegoHandler{prepared: prepared}, nil
}

// Evaluate runs the policy. A missing or non-boolean allow document denies.
func (h *RegoHandler) Evaluate(ctx context.Context, req *types.Request, roles, scopes []string, requireAll bool) (bool, error) {
	input := Input{
		Token: bearerToken(req),
		Request: RequestInput{
			Method:   req.Method,
			Path:     req.Path,
			ClientIP: req.ClientIP,
		},
		Required: RequiredInput{
			Roles:      roles,
			Scopes:     scopes,
			RequireAll: requireAll,
		},
	}

	results, err := h.prepared.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return false, fmt.Errorf("eval rego: %w", err)
	}
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return false, nil
	}
	allow, ok := results[0].Expressions[0].Value.(bool)
	return ok && allow, nil
}

func bearerToken(req *types.Request) string {
	authHeader := req.Header.Get("Authorization")
	token := strings.TrimPrefix(authHeader, "Bearer ")
	if token == authHeader {
		return ""
	}
	return token
}
