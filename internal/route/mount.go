package route

import (
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/interlock-api/interlock/internal/apierr"
	"github.com/interlock-api/interlock/internal/pipeline"
	"github.com/interlock-api/interlock/internal/types"
)

// Mount builds each route's pipeline and binds it to the chi router. The
// router owns socket I/O and path dispatch; everything from the correlation
// id inward is the pipeline's job.
func (reg *Registry) Mount(r chi.Router, deps pipeline.Deps) {
	for _, rt := range reg.Routes() {
		handler := pipeline.Build(rt.Name(), rt.Method, rt.Handler, rt.Policies, deps)
		r.Method(rt.Method, rt.Path, serve(rt, handler))
	}
}

// serve adapts one built pipeline to net/http.
func serve(rt *Route, h types.Handler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req := &types.Request{
			Method:    r.Method,
			Path:      r.URL.Path,
			Query:     r.URL.Query(),
			Header:    r.Header,
			ClientIP:  clientIP(r),
			RequestID: apierr.NormalizeRequestID(r.Header.Get(apierr.HeaderRequestID)),
			Scratch:   make(map[string]any),
		}
		if len(rt.Params) > 0 {
			req.Params = make(map[string]string, len(rt.Params))
			for _, name := range rt.Params {
				req.Params[name] = chi.URLParam(r, name)
			}
		}

		resp, err := h(r.Context(), req)
		if err != nil {
			// The pipeline's normalizer converts all failures; reaching
			// this branch means a handler was invoked outside Build.
			resp = apierr.Normalize(err, req.RequestID, apierr.DefaultOptions())
		}
		resp.Write(w)
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
