// Package errors provides standardized domain errors that express business intent
// rather than infrastructure details. These errors should be used by use cases
// and mapped to appropriate HTTP status codes by handlers.
package errors

import (
	"errors"
	"fmt"
)

// Standard domain errors that can be used across all domain modules.
var (
	// ErrNotFound indicates the requested resource does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict indicates a conflict with existing data (e.g., duplicate key).
	ErrConflict = errors.New("conflict")

	// ErrInvalidInput indicates the input data is invalid or fails validation.
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnauthorized indicates the request lacks valid authentication credentials.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrForbidden indicates the authenticated caller doesn't have permission.
	ErrForbidden = errors.New("forbidden")
)

// Sync pipeline errors. These classify every failure the outbox and sync
// engine can hit and determine what happens next: transient failures are
// retried with backoff, terminal failures dead-letter the record, and
// configuration failures pause the engine until corrected.
var (
	// ErrStoreUnavailable indicates the local storage layer is unreachable.
	// Fatal to the calling domain operation; the caller decides whether to retry.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrNetworkFailure indicates a transient transport failure (timeout,
	// connection refused, 5xx). Retried with backoff, never terminal.
	ErrNetworkFailure = errors.New("network failure")

	// ErrBusinessRejection indicates the remote refused a record as invalid.
	// Terminal for that record: it is dead-lettered and never retried automatically.
	ErrBusinessRejection = errors.New("business rejection")

	// ErrConfiguration indicates bad credentials or a bad endpoint.
	// The engine pauses drains until the configuration is corrected.
	ErrConfiguration = errors.New("configuration error")
)

// New creates a new error with the given message.
// This is a convenience wrapper around errors.New for consistency.
func New(message string) error {
	return errors.New(message)
}

// Wrap wraps an error with additional context while preserving the error chain.
// Use this to add context at each layer without losing the original error type.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Is reports whether any error in err's tree matches target.
// This is a convenience wrapper around errors.Is.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's tree that matches target.
// This is a convenience wrapper around errors.As.
func As(err error, target any) bool {
	return errors.As(err, target)
}
