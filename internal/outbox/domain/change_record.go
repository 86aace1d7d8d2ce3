// Package domain defines the core outbox domain entities and types.
package domain

import (
	"fmt"
	"time"
)

// ChangeRecordStatus represents the lifecycle status of a change record.
type ChangeRecordStatus string

const (
	// ChangeRecordStatusPending marks a record waiting for its first submission.
	ChangeRecordStatusPending ChangeRecordStatus = "pending"
	// ChangeRecordStatusInFlight marks a record handed to the remote client.
	ChangeRecordStatusInFlight ChangeRecordStatus = "in_flight"
	// ChangeRecordStatusSynced marks a record acknowledged by the back office. Terminal.
	ChangeRecordStatusSynced ChangeRecordStatus = "synced"
	// ChangeRecordStatusFailed marks a record that failed its last attempt and
	// is awaiting retry. Still eligible for the next batch.
	ChangeRecordStatusFailed ChangeRecordStatus = "failed"
	// ChangeRecordStatusDeadLetter marks a record permanently excluded from retry. Terminal.
	ChangeRecordStatusDeadLetter ChangeRecordStatus = "dead_letter"
)

// IsTerminal reports whether the status is final; terminal records are immutable.
func (s ChangeRecordStatus) IsTerminal() bool {
	return s == ChangeRecordStatusSynced || s == ChangeRecordStatusDeadLetter
}

// IsRetryable reports whether a record with this status is eligible for the next batch.
func (s ChangeRecordStatus) IsRetryable() bool {
	return s == ChangeRecordStatusPending || s == ChangeRecordStatusFailed
}

// CanTransitionTo reports whether the status transition is allowed.
// The lifecycle is pending/failed -> in_flight -> {synced | failed | dead_letter},
// plus in_flight -> pending for restart reconciliation.
func (s ChangeRecordStatus) CanTransitionTo(next ChangeRecordStatus) bool {
	if s.IsTerminal() {
		return false
	}
	switch s {
	case ChangeRecordStatusPending, ChangeRecordStatusFailed:
		return next == ChangeRecordStatusInFlight || next == ChangeRecordStatusDeadLetter
	case ChangeRecordStatusInFlight:
		return next == ChangeRecordStatusSynced ||
			next == ChangeRecordStatusFailed ||
			next == ChangeRecordStatusDeadLetter ||
			next == ChangeRecordStatusPending
	default:
		return false
	}
}

// EntityType identifies the kind of domain record a change describes.
type EntityType string

const (
	EntityTypeTransaction     EntityType = "transaction"
	EntityTypeInventoryChange EntityType = "inventory_change"
	EntityTypeLoyaltyUpdate   EntityType = "loyalty_update"
	EntityTypePayment         EntityType = "payment"
)

// Valid reports whether the entity type is one of the known kinds.
func (e EntityType) Valid() bool {
	switch e {
	case EntityTypeTransaction, EntityTypeInventoryChange, EntityTypeLoyaltyUpdate, EntityTypePayment:
		return true
	}
	return false
}

// Operation identifies how the change applies to the remote entity.
type Operation string

const (
	OperationCreate Operation = "create"
	OperationUpdate Operation = "update"
)

// Valid reports whether the operation is known.
func (o Operation) Valid() bool {
	return o == OperationCreate || o == OperationUpdate
}

// ChangeRecord is one outbox entry: a durable intent to replicate a local
// domain mutation to the back office. Records are created atomically with the
// domain write they describe and drained in ascending ID order per terminal,
// so later updates to the same entity always follow earlier ones.
type ChangeRecord struct {
	// ID is a terminal-scoped monotonic sequence assigned by the store on append.
	ID int64
	// TerminalID identifies the terminal partition the record belongs to.
	TerminalID string
	EntityType EntityType
	EntityID   string
	Operation  Operation
	// Payload is an opaque serialized snapshot of the domain record at write time.
	Payload string
	// EmployeeID is the authenticated principal that performed the change.
	EmployeeID string
	Status     ChangeRecordStatus
	// Attempts counts submissions; monotonically non-decreasing.
	Attempts      int
	LastError     *string
	LastAttemptAt *time.Time
	CreatedAt     time.Time
	SyncedAt      *time.Time
}

// DedupeKey is the globally unique key the back office deduplicates on.
func (r *ChangeRecord) DedupeKey() string {
	return fmt.Sprintf("%s:%s:%s:%d", r.TerminalID, r.EntityID, r.Operation, r.ID)
}

// Validate checks that a record is well-formed for appending.
func (r *ChangeRecord) Validate() error {
	if r.TerminalID == "" {
		return ErrMissingTerminalID
	}
	if !r.EntityType.Valid() {
		return ErrInvalidEntityType
	}
	if r.EntityID == "" {
		return ErrMissingEntityID
	}
	if !r.Operation.Valid() {
		return ErrInvalidOperation
	}
	if r.Payload == "" {
		return ErrMissingPayload
	}
	return nil
}
