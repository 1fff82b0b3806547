// Package apierr defines the failure taxonomy and the normalized error
// envelope every externally surfaced failure is converted into.
package apierr

import (
	"errors"
	"fmt"
	"net/http"
)

// Detail describes one structured problem, typically a validation issue.
type Detail struct {
	Field  string `json:"field"`
	Source string `json:"source"`
	Issue  string `json:"issue"`
	Value  any    `json:"value,omitempty"`
}

// Error is a failure with a fixed HTTP surface. Policy rejections carry 4xx
// statuses, timeouts 504, configuration faults and unexpected failures 500.
type Error struct {
	Status  int
	Code    string
	Message string
	Details []Detail

	// Header carries response headers that must survive normalization,
	// e.g. rate-limit quota metadata on a 429.
	Header http.Header
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// New creates an Error with an explicit status and code.
func New(status int, code, message string) *Error {
	return &Error{Status: status, Code: code, Message: message}
}

// SetHeader sets a header to be echoed on the normalized response.
func (e *Error) SetHeader(key, value string) *Error {
	if e.Header == nil {
		e.Header = make(http.Header)
	}
	e.Header.Set(key, value)
	return e
}

func Forbidden(message string) *Error {
	if message == "" {
		message = "Not authenticated"
	}
	return New(http.StatusForbidden, "forbidden", message)
}

func Unauthorized(message string) *Error {
	if message == "" {
		message = "Authentication is required for this request."
	}
	return New(http.StatusUnauthorized, "auth_required", message)
}

func RateLimited(message string) *Error {
	if message == "" {
		message = "Too many requests. Please retry later."
	}
	return New(http.StatusTooManyRequests, "rate_limited", message)
}

func Timeout(message string) *Error {
	if message == "" {
		message = "The request timed out."
	}
	return New(http.StatusGatewayTimeout, "timeout", message)
}

func VersionRequired(message string) *Error {
	if message == "" {
		message = "This API requires strict versioning. Provide the X-API-Version header."
	}
	return New(http.StatusBadRequest, "version_required", message)
}

func VersionUnsupported(message string) *Error {
	if message == "" {
		message = "version not supported"
	}
	return New(http.StatusBadRequest, "version_unsupported", message)
}

func Validation(message string, details []Detail) *Error {
	if message == "" {
		message = "One or more request parameters are invalid."
	}
	e := New(http.StatusBadRequest, "validation_error", message)
	e.Details = details
	return e
}

func Internal(message string) *Error {
	if message == "" {
		message = "An unexpected server error occurred."
	}
	return New(http.StatusInternalServerError, "internal_error", message)
}

// ConfigFault marks a process-level misconfiguration, e.g. an auth-enabled
// route hit before any auth handler was registered.
func ConfigFault(message string) *Error {
	return New(http.StatusInternalServerError, "configuration_fault", message)
}

// AsError extracts an *Error from err's chain.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsPolicyRejection reports whether err is a client-caused policy rejection
// (auth, version, rate limit, validation). These are never retried.
func IsPolicyRejection(err error) bool {
	e, ok := AsError(err)
	return ok && e.Status >= 400 && e.Status < 500
}

// IsTimeout reports whether err is a timeout failure.
func IsTimeout(err error) bool {
	e, ok := AsError(err)
	return ok && e.Status == http.StatusGatewayTimeout
}
