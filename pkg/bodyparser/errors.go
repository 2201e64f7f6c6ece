package bodyparser

import (
	"errors"
	"fmt"
)

// ErrMalformedBody marks a body that could not be parsed for a route that
// declared a body schema. Use errors.Is to detect it regardless of wrapping.
var ErrMalformedBody = errors.New("malformed request body")

// ParseError carries the parsing failure detail for the error envelope.
type ParseError struct {
	ContentType string
	Details     string
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s body: %s", e.ContentType, e.Details)
}

// Unwrap makes errors.Is(err, ErrMalformedBody) hold for every ParseError.
func (e *ParseError) Unwrap() error {
	return ErrMalformedBody
}

func newParseError(contentType, details string) *ParseError {
	return &ParseError{ContentType: contentType, Details: details}
}
