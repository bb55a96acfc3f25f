// Package apierror defines the structured error payload returned to API
// callers. Every failure surfaces as one of a fixed set of statuses; 4xx
// errors are operational (expected, warn-level), 5xx errors are faults whose
// detail must never reach the caller.
package apierror

import (
	"fmt"
	"net/http"
)

// Error is a caller-facing error with an HTTP status, a stable machine code,
// and a human-readable message. Validation errors additionally carry a
// field -> messages mapping.
type Error struct {
	Status  int                 `json:"-"`
	Code    string              `json:"code"`
	Message string              `json:"message"`
	Fields  map[string][]string `json:"fields,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Operational reports whether the error is an expected business outcome
// rather than an internal fault. Operational errors are logged at warning
// level; non-operational ones at error level.
func (e *Error) Operational() bool {
	return e.Status < http.StatusInternalServerError
}

// BadRequest is a malformed request or business-rule violation (400).
func BadRequest(message string) *Error {
	return &Error{Status: http.StatusBadRequest, Code: "bad_request", Message: message}
}

// Unauthorized is a missing or invalid credential (401).
func Unauthorized(message string) *Error {
	return &Error{Status: http.StatusUnauthorized, Code: "unauthorized", Message: message}
}

// Forbidden is an authenticated caller acting outside its permissions (403).
func Forbidden(message string) *Error {
	return &Error{Status: http.StatusForbidden, Code: "forbidden", Message: message}
}

// NotFound is a required entity that does not exist (404).
func NotFound(message string) *Error {
	return &Error{Status: http.StatusNotFound, Code: "not_found", Message: message}
}

// Conflict is a request that collides with existing state (409).
func Conflict(message string) *Error {
	return &Error{Status: http.StatusConflict, Code: "conflict", Message: message}
}

// Validation is a structurally valid request with semantically invalid
// fields (422).
func Validation(message string, fields map[string][]string) *Error {
	return &Error{
		Status:  http.StatusUnprocessableEntity,
		Code:    "validation_failed",
		Message: message,
		Fields:  fields,
	}
}

// RateLimited signals the caller has exceeded its request budget (429).
func RateLimited(message string) *Error {
	return &Error{Status: http.StatusTooManyRequests, Code: "rate_limited", Message: message}
}

// Internal is an unexpected fault (500). The wrapped cause is deliberately
// not part of the payload; callers only ever see the generic message.
func Internal() *Error {
	return &Error{
		Status:  http.StatusInternalServerError,
		Code:    "internal_error",
		Message: "An internal error occurred",
	}
}

// Unavailable signals a dependency outage (503).
func Unavailable(message string) *Error {
	return &Error{Status: http.StatusServiceUnavailable, Code: "service_unavailable", Message: message}
}
