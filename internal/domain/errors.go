// Package domain holds the error taxonomy shared by the dispatch core.
package domain

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a message id does not resolve to a record.
var ErrNotFound = errors.New("message not found")

// ValidationError rejects malformed input before any persistence or
// provider call.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// InvalidStateError rejects an operation not allowed in the record's
// current status. The record is left unchanged.
type InvalidStateError struct {
	Op     string
	Reason string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Reason)
}

// ErrorKind classifies provider failures so retry logic stays
// provider-agnostic.
type ErrorKind string

const (
	KindConfigurationMissing ErrorKind = "configuration_missing"
	KindAuthenticationFailed ErrorKind = "authentication_failed"
	KindConnectionFailed     ErrorKind = "connection_failed"
	KindRejected             ErrorKind = "rejected"
	KindUnknown              ErrorKind = "unknown"
)

// ProviderError is the normalized failure every adapter maps its native
// errors into.
type ProviderError struct {
	Provider string
	Kind     ErrorKind
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Provider, e.Kind, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Retryable reports whether a single retry is permitted for this failure.
// Only connection/timeout failures qualify.
func (e *ProviderError) Retryable() bool {
	return e.Kind == KindConnectionFailed
}
