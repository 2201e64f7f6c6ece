package routekit

import (
	"errors"
	"fmt"
	"strings"
)

// ValidationIssue describes a single failed validation rule for one field.
type ValidationIssue struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Rule    string `json:"rule,omitempty"`
}

// ValidationError carries the issues produced by request validation.
// It renders as HTTP 400 with the issues echoed in the error details.
type ValidationError struct {
	Issues []ValidationIssue
}

// NewValidationError creates a validation error from the given issues.
func NewValidationError(issues ...ValidationIssue) *ValidationError {
	return &ValidationError{Issues: issues}
}

// Add appends an issue for a field.
func (e *ValidationError) Add(field, message string) {
	e.Issues = append(e.Issues, ValidationIssue{Field: field, Message: message})
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if len(e.Issues) == 0 {
		return "validation failed"
	}
	parts := make([]string, 0, len(e.Issues))
	for _, issue := range e.Issues {
		parts = append(parts, fmt.Sprintf("%s: %s", issue.Field, issue.Message))
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(parts, "; "))
}

// ValidationIssues exposes the issues for structural detection.
func (e *ValidationError) ValidationIssues() []ValidationIssue {
	return e.Issues
}

// issuer is the structural shape the error handler detects. Any error value
// exposing issues classifies as a validation failure, independent of which
// validation library produced it.
type issuer interface {
	ValidationIssues() []ValidationIssue
}

// validationIssuesOf extracts validation issues from an arbitrary raised
// value. It checks the value directly (covers non-error panics and wrapped
// payloads) and then walks the error chain.
func validationIssuesOf(v any) ([]ValidationIssue, bool) {
	if iss, ok := v.(issuer); ok {
		return iss.ValidationIssues(), true
	}
	if err, ok := v.(error); ok {
		var target issuer
		if errors.As(err, &target) {
			return target.ValidationIssues(), true
		}
	}
	return nil, false
}
