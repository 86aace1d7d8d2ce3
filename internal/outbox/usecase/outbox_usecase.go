package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/allisson/possync/internal/clock"
	"github.com/allisson/possync/internal/database"
	apperrors "github.com/allisson/possync/internal/errors"
	"github.com/allisson/possync/internal/metrics"
	"github.com/allisson/possync/internal/outbox/domain"
)

// OutboxStore handles outbox business logic for a single terminal.
type OutboxStore struct {
	terminalID  string
	maxAttempts int
	txManager   database.TxManager
	repo        ChangeRecordRepository
	clock       clock.Clock
	syncMetrics metrics.SyncMetrics
	notifier    DeadLetterNotifier
}

// NewOutboxStore creates a new OutboxStore scoped to the given terminal.
// maxAttempts is the submission ceiling after which records are dead lettered.
func NewOutboxStore(
	terminalID string,
	maxAttempts int,
	txManager database.TxManager,
	repo ChangeRecordRepository,
	clk clock.Clock,
	syncMetrics metrics.SyncMetrics,
) *OutboxStore {
	return &OutboxStore{
		terminalID:  terminalID,
		maxAttempts: maxAttempts,
		txManager:   txManager,
		repo:        repo,
		clock:       clk,
		syncMetrics: syncMetrics,
	}
}

// SetDeadLetterNotifier registers the dead letter observer. Wired after
// construction because the notifier is built on top of the store.
func (s *OutboxStore) SetDeadLetterNotifier(notifier DeadLetterNotifier) {
	s.notifier = notifier
}

// storeErr tags infrastructure failures so callers can distinguish a broken
// local store from domain errors like a missing record.
func storeErr(err error) error {
	if err == nil {
		return nil
	}
	if apperrors.Is(err, apperrors.ErrNotFound) ||
		apperrors.Is(err, apperrors.ErrConflict) ||
		apperrors.Is(err, apperrors.ErrInvalidInput) {
		return err
	}
	return fmt.Errorf("%w: %v", apperrors.ErrStoreUnavailable, err)
}

// Append validates the input and durably creates the change record. The
// repository joins any transaction already present on the context, so callers
// can append in the same transaction as the domain write.
func (s *OutboxStore) Append(ctx context.Context, input AppendChangeInput) (*domain.ChangeRecord, error) {
	record := &domain.ChangeRecord{
		TerminalID: s.terminalID,
		EntityType: input.EntityType,
		EntityID:   input.EntityID,
		Operation:  input.Operation,
		Payload:    input.Payload,
		EmployeeID: input.EmployeeID,
		Status:     domain.ChangeRecordStatusPending,
		CreatedAt:  s.clock.Now(),
	}
	if err := record.Validate(); err != nil {
		return nil, err
	}

	if err := s.repo.Create(ctx, record); err != nil {
		return nil, storeErr(err)
	}
	return record, nil
}

// NextBatch returns up to limit records eligible for submission, oldest first.
func (s *OutboxStore) NextBatch(ctx context.Context, limit int) ([]*domain.ChangeRecord, error) {
	records, err := s.repo.GetBatch(ctx, s.terminalID, limit)
	if err != nil {
		return nil, storeErr(err)
	}
	return records, nil
}

// MarkInFlight leases the given records for submission.
func (s *OutboxStore) MarkInFlight(ctx context.Context, ids []int64) (int64, error) {
	count, err := s.repo.MarkInFlight(ctx, s.terminalID, ids)
	if err != nil {
		return 0, storeErr(err)
	}
	return count, nil
}

// MarkSynced finalizes acknowledged records with the current timestamp.
func (s *OutboxStore) MarkSynced(ctx context.Context, ids []int64) (int64, error) {
	count, err := s.repo.MarkSynced(ctx, s.terminalID, ids, s.clock.Now())
	if err != nil {
		return 0, storeErr(err)
	}
	if count > 0 {
		s.syncMetrics.RecordSynced(ctx, s.terminalID, count)
	}
	return count, nil
}

// MarkFailed records a failed attempt for each record. Records that reach the
// attempt ceiling move to the dead letter state; the rest return to the retry
// pool. The whole update runs in one transaction, then dead letter observers
// are notified after commit.
func (s *OutboxStore) MarkFailed(ctx context.Context, ids []int64, cause error) error {
	now := s.clock.Now()
	message := cause.Error()
	var deadLettered []*domain.ChangeRecord

	err := s.txManager.WithTx(ctx, func(ctx context.Context) error {
		deadLettered = deadLettered[:0]
		for _, id := range ids {
			record, err := s.repo.GetByID(ctx, id)
			if err != nil {
				return err
			}
			if record.Status != domain.ChangeRecordStatusInFlight {
				continue
			}

			record.Attempts++
			record.LastError = &message
			record.LastAttemptAt = &now
			if record.Attempts >= s.maxAttempts {
				record.Status = domain.ChangeRecordStatusDeadLetter
				deadLettered = append(deadLettered, record)
			} else {
				record.Status = domain.ChangeRecordStatusFailed
			}

			if err := s.repo.Update(ctx, record); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return storeErr(err)
	}

	for _, record := range deadLettered {
		s.syncMetrics.RecordDeadLetter(ctx, s.terminalID)
		if s.notifier != nil {
			s.notifier.NotifyDeadLetter(ctx, record)
		}
	}
	return nil
}

// ForceDeadLetter moves a record straight to the dead letter state. Used when
// the back office rejects a record for business reasons, where retrying can
// never succeed.
func (s *OutboxStore) ForceDeadLetter(ctx context.Context, id int64, reason string) error {
	now := s.clock.Now()
	var record *domain.ChangeRecord

	err := s.txManager.WithTx(ctx, func(ctx context.Context) error {
		var err error
		record, err = s.repo.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if record.Status == domain.ChangeRecordStatusDeadLetter {
			record = nil
			return nil
		}
		if record.Status.IsTerminal() {
			return domain.ErrRecordImmutable
		}

		record.Status = domain.ChangeRecordStatusDeadLetter
		record.Attempts++
		record.LastError = &reason
		record.LastAttemptAt = &now
		return s.repo.Update(ctx, record)
	})
	if err != nil {
		return storeErr(err)
	}

	if record != nil {
		s.syncMetrics.RecordDeadLetter(ctx, s.terminalID)
		if s.notifier != nil {
			s.notifier.NotifyDeadLetter(ctx, record)
		}
	}
	return nil
}

// GetByID returns a single change record by its ID.
func (s *OutboxStore) GetByID(ctx context.Context, id int64) (*domain.ChangeRecord, error) {
	record, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, storeErr(err)
	}
	return record, nil
}

// DeadLetters returns up to limit dead letter records, oldest first.
func (s *OutboxStore) DeadLetters(ctx context.Context, limit int) ([]*domain.ChangeRecord, error) {
	records, err := s.repo.GetDeadLetters(ctx, s.terminalID, limit)
	if err != nil {
		return nil, storeErr(err)
	}
	return records, nil
}

// ClearDeadLetters deletes all dead letter records for the terminal.
func (s *OutboxStore) ClearDeadLetters(ctx context.Context) (int64, error) {
	count, err := s.repo.DeleteDeadLetters(ctx, s.terminalID)
	if err != nil {
		return 0, storeErr(err)
	}
	return count, nil
}

// PurgeSynced deletes synced records older than the cutoff.
func (s *OutboxStore) PurgeSynced(ctx context.Context, olderThan time.Time) (int64, error) {
	count, err := s.repo.PurgeSynced(ctx, s.terminalID, olderThan)
	if err != nil {
		return 0, storeErr(err)
	}
	return count, nil
}

// ReconcileInFlight returns stranded in flight records to the retry pool.
// Safe because the back office deduplicates resubmissions of records it has
// already applied.
func (s *OutboxStore) ReconcileInFlight(ctx context.Context) (int64, error) {
	count, err := s.repo.ResetInFlight(ctx, s.terminalID)
	if err != nil {
		return 0, storeErr(err)
	}
	return count, nil
}

// QueueDepth returns the number of records not yet finalized.
func (s *OutboxStore) QueueDepth(ctx context.Context) (int, error) {
	counts, err := s.repo.CountByStatus(ctx, s.terminalID)
	if err != nil {
		return 0, storeErr(err)
	}
	depth := counts[domain.ChangeRecordStatusPending] +
		counts[domain.ChangeRecordStatusFailed] +
		counts[domain.ChangeRecordStatusInFlight]
	s.syncMetrics.SetQueueDepth(ctx, s.terminalID, int64(depth))
	return depth, nil
}

// OldestPendingAge returns how long the oldest unfinalized record has waited.
func (s *OutboxStore) OldestPendingAge(ctx context.Context) (time.Duration, error) {
	oldest, err := s.repo.OldestRetryableCreatedAt(ctx, s.terminalID)
	if err != nil {
		return 0, storeErr(err)
	}
	if oldest == nil {
		return 0, nil
	}
	age := s.clock.Now().Sub(*oldest)
	if age < 0 {
		age = 0
	}
	return age, nil
}
