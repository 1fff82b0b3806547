package types

import (
	"encoding/json"
	"net/http"
)

// Response is the buffered outcome of an endpoint invocation. Buffering is
// what lets retry re-invoke the handler and lets the cache stage store the
// body after the fact.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// NewResponse creates an empty response with the given status.
func NewResponse(status int) *Response {
	return &Response{Status: status, Header: make(http.Header)}
}

// JSON marshals v into a JSON response. Marshal failures surface as a 500
// with an empty body rather than a partial write.
func JSON(status int, v any) *Response {
	resp := NewResponse(status)
	resp.Header.Set("Content-Type", "application/json")
	body, err := json.Marshal(v)
	if err != nil {
		resp.Status = http.StatusInternalServerError
		return resp
	}
	resp.Body = body
	return resp
}

// SetHeader sets a response header, allocating the map if needed.
func (r *Response) SetHeader(key, value string) {
	if r.Header == nil {
		r.Header = make(http.Header)
	}
	r.Header.Set(key, value)
}

// Write sends the buffered response over an http.ResponseWriter.
func (r *Response) Write(w http.ResponseWriter) {
	for k, vs := range r.Header {
		for _, v := range vs {
			w.Header().Add(k, v)
		}
	}
	w.WriteHeader(r.Status)
	if len(r.Body) > 0 {
		w.Write(r.Body)
	}
}
