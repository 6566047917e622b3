// internal/apperr/apperr.go
package apperr

import (
	"errors"
	"fmt"
)

// Sentinel errors for precondition and lookup failures. Handlers translate
// these to HTTP status codes; everything else is treated as internal.
var (
	ErrNotFound  = errors.New("not found")
	ErrNotLinked = errors.New("github account not linked")
)

// ValidationError reports a malformed or missing request field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid field %q: %s", e.Field, e.Reason)
}

// Validation builds a ValidationError.
func Validation(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// UpstreamError wraps a non-success response from an external service with
// the status code and body the service reported.
type UpstreamError struct {
	Service    string
	StatusCode int
	Body       string
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: upstream returned %d: %s", e.Service, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("%s: upstream call failed: %v", e.Service, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}
