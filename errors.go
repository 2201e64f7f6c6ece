package routekit

import (
	"fmt"
	"net/http"
	"time"
)

// Stable error codes returned to clients in the error envelope.
// Codes are part of the public contract: clients branch on them
// programmatically, so existing values must never change.
const (
	CodeValidation     = "VALIDATION_ERROR"
	CodeBodyParse      = "BODY_PARSE_ERROR"
	CodeRateLimited    = "RATE_LIMIT_EXCEEDED"
	CodeNotFound       = "NOT_FOUND"
	CodeInternal       = "INTERNAL_SERVER_ERROR"
	CodeInitialization = "INITIALIZATION_ERROR"
	CodeGeneric        = "GENERIC_ERROR"
	CodeUnknown        = "UNKNOWN_ERROR"
)

// Error is a framework error that carries its own HTTP status code and a
// stable machine-readable code. Any Error raised from a procedure or handler
// is rendered with exactly that status instead of the generic 500.
type Error struct {
	StatusCode int    // HTTP status the error renders with
	Code       string // stable code, e.g. RATE_LIMIT_EXCEEDED
	Message    string
	Details    any
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Code
}

// WithDetails returns a copy of the error carrying the given details payload.
// The receiver is not mutated, so package-level sentinel errors stay constant.
func (e *Error) WithDetails(details any) *Error {
	clone := *e
	clone.Details = details
	return &clone
}

// NewError creates a framework error with an explicit status and code.
//
// Example:
//
//	return nil, routekit.NewError(http.StatusConflict, "ALREADY_EXISTS", "user already exists")
func NewError(status int, code, message string) *Error {
	return &Error{StatusCode: status, Code: code, Message: message}
}

// NewBodyParseError wraps a body parsing failure into the framework error
// shape. The details carry the underlying parser message.
func NewBodyParseError(details any) *Error {
	return &Error{
		StatusCode: http.StatusBadRequest,
		Code:       CodeBodyParse,
		Message:    "Failed to parse request body",
		Details:    details,
	}
}

// NewRateLimitError creates the 429 error raised by the rate limit procedure.
func NewRateLimitError(retryAfter time.Duration) *Error {
	return &Error{
		StatusCode: http.StatusTooManyRequests,
		Code:       CodeRateLimited,
		Message:    "Rate limit exceeded",
		Details:    fmt.Sprintf("retry after %s", retryAfter.Round(time.Millisecond)),
	}
}

// NewNotFoundError creates the 404 error rendered for unmatched routes.
func NewNotFoundError(method, path string) *Error {
	return &Error{
		StatusCode: http.StatusNotFound,
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("Route not found: %s %s", method, path),
	}
}
