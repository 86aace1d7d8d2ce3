// Package usecase implements the outbox business logic: durable append,
// batch leasing, acknowledgement, and retry accounting for change records.
package usecase

import (
	"context"
	"time"

	"github.com/allisson/possync/internal/outbox/domain"
)

// AppendChangeInput contains the input data for appending a change record.
type AppendChangeInput struct {
	EntityType EntityTypeInput `json:"entity_type"`
	EntityID   string          `json:"entity_id"`
	Operation  OperationInput  `json:"operation"`
	Payload    string          `json:"payload"`
	EmployeeID string          `json:"employee_id"`
}

// EntityTypeInput and OperationInput alias the domain enums so DTO layers can
// bind them without importing the domain package.
type (
	EntityTypeInput = domain.EntityType
	OperationInput  = domain.Operation
)

// Store defines the interface for outbox business logic operations. All
// operations are scoped to the terminal the store was built for.
type Store interface {
	// Append durably records a change. When called inside a transaction
	// started by database.TxManager, the append joins that transaction so the
	// domain write and the outbox entry commit or roll back together.
	Append(ctx context.Context, input AppendChangeInput) (*domain.ChangeRecord, error)

	// NextBatch returns up to limit records awaiting submission, oldest first.
	NextBatch(ctx context.Context, limit int) ([]*domain.ChangeRecord, error)

	// MarkInFlight leases the given records for submission. Records already
	// leased or finalized are skipped, so concurrent calls never double-lease.
	MarkInFlight(ctx context.Context, ids []int64) (int64, error)

	// MarkSynced finalizes records the back office acknowledged. Duplicate
	// acknowledgements are no-ops.
	MarkSynced(ctx context.Context, ids []int64) (int64, error)

	// MarkFailed records a failed submission attempt for each record,
	// returning them to the retry pool or moving them to the dead letter
	// state once the attempt ceiling is reached.
	MarkFailed(ctx context.Context, ids []int64, cause error) error

	// ForceDeadLetter immediately moves a record to the dead letter state,
	// regardless of its attempt count. Used for business rejections.
	ForceDeadLetter(ctx context.Context, id int64, reason string) error

	// GetByID returns a single change record.
	GetByID(ctx context.Context, id int64) (*domain.ChangeRecord, error)

	// DeadLetters returns up to limit dead letter records, oldest first.
	DeadLetters(ctx context.Context, limit int) ([]*domain.ChangeRecord, error)

	// ClearDeadLetters deletes all dead letter records and returns the count.
	ClearDeadLetters(ctx context.Context) (int64, error)

	// PurgeSynced deletes synced records older than the cutoff.
	PurgeSynced(ctx context.Context, olderThan time.Time) (int64, error)

	// ReconcileInFlight returns records stranded in flight by a crash to the
	// retry pool. Called once on startup before the engine begins draining.
	ReconcileInFlight(ctx context.Context) (int64, error)

	// QueueDepth returns the number of records not yet finalized.
	QueueDepth(ctx context.Context) (int, error)

	// OldestPendingAge returns how long the oldest unfinalized record has been
	// waiting, or zero when the queue is empty.
	OldestPendingAge(ctx context.Context) (time.Duration, error)

	// SetDeadLetterNotifier registers the observer told about every record
	// that enters the dead letter state. Must be called before the engine
	// starts; not safe to swap concurrently with sync activity.
	SetDeadLetterNotifier(notifier DeadLetterNotifier)
}

// ChangeRecordRepository interface defines change record repository operations.
type ChangeRecordRepository interface {
	Create(ctx context.Context, record *domain.ChangeRecord) error
	GetBatch(ctx context.Context, terminalID string, limit int) ([]*domain.ChangeRecord, error)
	GetByID(ctx context.Context, id int64) (*domain.ChangeRecord, error)
	Update(ctx context.Context, record *domain.ChangeRecord) error
	MarkInFlight(ctx context.Context, terminalID string, ids []int64) (int64, error)
	MarkSynced(ctx context.Context, terminalID string, ids []int64, syncedAt time.Time) (int64, error)
	CountByStatus(ctx context.Context, terminalID string) (map[domain.ChangeRecordStatus]int, error)
	OldestRetryableCreatedAt(ctx context.Context, terminalID string) (*time.Time, error)
	PurgeSynced(ctx context.Context, terminalID string, olderThan time.Time) (int64, error)
	ResetInFlight(ctx context.Context, terminalID string) (int64, error)
	GetDeadLetters(ctx context.Context, terminalID string, limit int) ([]*domain.ChangeRecord, error)
	DeleteDeadLetters(ctx context.Context, terminalID string) (int64, error)
}

// DeadLetterNotifier observes records entering the dead letter state.
type DeadLetterNotifier interface {
	NotifyDeadLetter(ctx context.Context, record *domain.ChangeRecord)
}
