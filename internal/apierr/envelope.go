package apierr

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/interlock-api/interlock/internal/types"
)

const maxRequestIDLen = 128

// HeaderRequestID is the correlation header echoed on every response.
const HeaderRequestID = "X-Request-Id"

var sensitiveFieldTokens = []string{
	"password",
	"token",
	"authorization",
	"api-key",
	"api_key",
	"secret",
}

// Options controls envelope construction. Detail inclusion and redaction are
// independent switches; Envelope=false drops the envelope entirely and
// surfaces a bare {"detail": ...} body.
type Options struct {
	Envelope       bool
	IncludeDetails bool
	Redact         bool
}

// DefaultOptions enables the envelope, details, and redaction.
func DefaultOptions() Options {
	return Options{Envelope: true, IncludeDetails: true, Redact: true}
}

// Envelope is the single shape every failure is converted into.
type Envelope struct {
	Error     EnvelopeError `json:"error"`
	RequestID string        `json:"request_id"`
	Timestamp string        `json:"timestamp"`
}

type EnvelopeError struct {
	Code    string   `json:"code"`
	Message string   `json:"message"`
	Details []Detail `json:"details,omitempty"`
}

// NormalizeRequestID returns a usable correlation id: the trimmed inbound
// value capped at 128 chars, or a freshly generated one.
func NormalizeRequestID(inbound string) string {
	candidate := strings.TrimSpace(inbound)
	if candidate != "" {
		if len(candidate) > maxRequestIDLen {
			candidate = candidate[:maxRequestIDLen]
		}
		return candidate
	}
	return "req_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// IsSensitiveField reports whether a field name matches the redaction list.
func IsSensitiveField(name string) bool {
	lowered := strings.ToLower(name)
	for _, token := range sensitiveFieldTokens {
		if strings.Contains(lowered, token) {
			return true
		}
	}
	return false
}

// RedactDetails returns a copy of details with sensitive field values masked.
func RedactDetails(details []Detail) []Detail {
	out := make([]Detail, len(details))
	copy(out, details)
	for i := range out {
		if IsSensitiveField(out[i].Field) {
			out[i].Value = "***REDACTED***"
		}
	}
	return out
}

// Normalize converts any failure into the envelope response. It is the only
// place errors become HTTP bodies, so every origin yields the same shape.
func Normalize(err error, requestID string, opts Options) *types.Response {
	e, ok := AsError(err)
	if !ok {
		e = Internal("")
	}

	var resp *types.Response
	if !opts.Envelope {
		resp = types.JSON(e.Status, map[string]string{"detail": e.Message})
	} else {
		env := Envelope{
			Error: EnvelopeError{
				Code:    e.Code,
				Message: e.Message,
			},
			RequestID: requestID,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		}
		if opts.IncludeDetails && len(e.Details) > 0 {
			details := e.Details
			if opts.Redact {
				details = RedactDetails(details)
			}
			env.Error.Details = details
		}
		resp = types.JSON(e.Status, env)
	}

	for k, vs := range e.Header {
		for _, v := range vs {
			resp.Header.Set(k, v)
		}
	}
	resp.SetHeader(HeaderRequestID, requestID)
	if e.Status == http.StatusTooManyRequests && resp.Header.Get("Retry-After") == "" {
		resp.SetHeader("Retry-After", "1")
	}
	return resp
}
