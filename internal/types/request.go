// Package types defines the request/response vocabulary shared by every
// pipeline stage. A Request is private to the invocation processing it; the
// only cross-request state lives in the rate-limit and cache stores.
package types

import (
	"context"
	"net/http"
	"net/url"
)

// Request is the pipeline's view of one inbound HTTP request.
type Request struct {
	Method   string
	Path     string
	Query    url.Values
	Header   http.Header
	Params   map[string]string
	ClientIP string

	// RequestID is the correlation id, read from X-Request-Id or generated.
	RequestID string

	// Scratch carries cross-stage state such as the resolved identity.
	// It is owned by this invocation and never shared between requests.
	Scratch map[string]any
}

// Handler executes one endpoint invocation.
type Handler func(ctx context.Context, req *Request) (*Response, error)

// Stage wraps a Handler with cross-cutting behavior. Stages compose
// outer-to-inner in the fixed order the pipeline package documents.
type Stage func(Handler) Handler

const identityKey = "interlock.identity"

// Identity is the authenticated principal attached by an auth handler.
type Identity struct {
	ID     string
	Roles  []string
	Scopes []string
}

// SetIdentity stores the resolved identity in the request scratch map for
// downstream stages (e.g. user-keyed rate limiting).
func SetIdentity(req *Request, id *Identity) {
	if req.Scratch == nil {
		req.Scratch = make(map[string]any)
	}
	req.Scratch[identityKey] = id
}

// IdentityFrom returns the identity attached by an upstream auth handler.
func IdentityFrom(req *Request) (*Identity, bool) {
	id, ok := req.Scratch[identityKey].(*Identity)
	return id, ok && id != nil
}

// Clone returns a copy of the request safe to hand to a background
// revalidation invocation. Scratch state is copied shallowly.
func (r *Request) Clone() *Request {
	out := &Request{
		Method:    r.Method,
		Path:      r.Path,
		Query:     cloneValues(r.Query),
		Header:    r.Header.Clone(),
		ClientIP:  r.ClientIP,
		RequestID: r.RequestID,
	}
	if r.Params != nil {
		out.Params = make(map[string]string, len(r.Params))
		for k, v := range r.Params {
			out.Params[k] = v
		}
	}
	if r.Scratch != nil {
		out.Scratch = make(map[string]any, len(r.Scratch))
		for k, v := range r.Scratch {
			out.Scratch[k] = v
		}
	}
	return out
}

func cloneValues(v url.Values) url.Values {
	if v == nil {
		return nil
	}
	out := make(url.Values, len(v))
	for k, vs := range v {
		out[k] = append([]string(nil), vs...)
	}
	return out
}
