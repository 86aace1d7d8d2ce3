package domain

import (
	"github.com/allisson/possync/internal/errors"
)

// Outbox-specific error definitions.
var (
	// ErrRecordNotFound indicates a change record with the specified ID was not found.
	ErrRecordNotFound = errors.Wrap(errors.ErrNotFound, "change record not found")

	// ErrRecordImmutable indicates an attempted mutation of a record in a
	// terminal status (synced or dead_letter).
	ErrRecordImmutable = errors.Wrap(errors.ErrConflict, "change record is in a terminal status")

	ErrMissingTerminalID = errors.Wrap(errors.ErrInvalidInput, "terminal id is required")
	ErrInvalidEntityType = errors.Wrap(errors.ErrInvalidInput, "unknown entity type")
	ErrMissingEntityID   = errors.Wrap(errors.ErrInvalidInput, "entity id is required")
	ErrInvalidOperation  = errors.Wrap(errors.ErrInvalidInput, "unknown operation")
	ErrMissingPayload    = errors.Wrap(errors.ErrInvalidInput, "payload is required")
)
