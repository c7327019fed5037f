package domain

import (
	"errors"
	"fmt"
)

// ValidationError marks a malformed or incomplete ingestion payload.
// Params: offending field and human-readable reason.
// Returns: caller-visible, non-retryable error.
type ValidationError struct {
	Field  string
	Reason string
}

// NewValidationError builds a validation error for one field.
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// Error returns "field: reason" or just the reason when field is empty.
func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return e.Field + ": " + e.Reason
}

// Permanent reports that retrying the same payload cannot succeed.
func (*ValidationError) Permanent() bool {
	return true
}

// PersistenceError marks an Alert Store read/write failure.
// Params: store operation name and wrapped cause.
// Returns: retryable error for ingestion callers.
type PersistenceError struct {
	Op  string
	Err error
}

// NewPersistenceError wraps a backend failure with the failing operation.
// Params: operation label (insert/list/count/ping) and cause.
// Returns: wrapped error, nil when cause is nil.
func NewPersistenceError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &PersistenceError{Op: op, Err: err}
}

// Error returns operation-prefixed cause.
func (e *PersistenceError) Error() string {
	return fmt.Sprintf("alert store %s: %v", e.Op, e.Err)
}

// Unwrap exposes the backend cause.
func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// UpstreamUnavailableError marks an unreachable or timed-out detection provider.
type UpstreamUnavailableError struct {
	Endpoint string
	Err      error
}

// NewUpstreamUnavailableError wraps a provider failure for one endpoint.
func NewUpstreamUnavailableError(endpoint string, err error) error {
	return &UpstreamUnavailableError{Endpoint: endpoint, Err: err}
}

// Error returns endpoint-prefixed cause.
func (e *UpstreamUnavailableError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("upstream %s unavailable", e.Endpoint)
	}
	return fmt.Sprintf("upstream %s unavailable: %v", e.Endpoint, e.Err)
}

// Unwrap exposes transport cause.
func (e *UpstreamUnavailableError) Unwrap() error {
	return e.Err
}

// IsValidation reports whether err carries a ValidationError.
func IsValidation(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

// IsPersistence reports whether err carries a PersistenceError.
func IsPersistence(err error) bool {
	var target *PersistenceError
	return errors.As(err, &target)
}

// IsUpstreamUnavailable reports whether err carries an UpstreamUnavailableError.
func IsUpstreamUnavailable(err error) bool {
	var target *UpstreamUnavailableError
	return errors.As(err, &target)
}

// IsPermanent reports whether err is marked as non-retryable.
// Params: processing error.
// Returns: true when a wrapped error implements Permanent() and returns true.
func IsPermanent(err error) bool {
	if err == nil {
		return false
	}
	type marker interface {
		Permanent() bool
	}
	var tagged marker
	if !errors.As(err, &tagged) {
		return false
	}
	return tagged.Permanent()
}
