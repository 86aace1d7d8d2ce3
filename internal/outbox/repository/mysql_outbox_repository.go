package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/allisson/possync/internal/database"
	"github.com/allisson/possync/internal/outbox/domain"
)

// MySQLChangeRecordRepository handles change record persistence for
// store-server deployments backed by MySQL.
type MySQLChangeRecordRepository struct {
	db *sql.DB
}

// NewMySQLChangeRecordRepository creates a new MySQLChangeRecordRepository.
func NewMySQLChangeRecordRepository(db *sql.DB) *MySQLChangeRecordRepository {
	return &MySQLChangeRecordRepository{
		db: db,
	}
}

// Create inserts a new change record and assigns its monotonic ID.
func (r *MySQLChangeRecordRepository) Create(ctx context.Context, record *domain.ChangeRecord) error {
	querier := database.GetTx(ctx, r.db)

	query := `INSERT INTO change_records
		(terminal_id, entity_type, entity_id, operation, payload, employee_id, status, attempts, last_error, last_attempt_at, created_at, synced_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	result, err := querier.ExecContext(ctx, query,
		record.TerminalID, record.EntityType, record.EntityID, record.Operation,
		record.Payload, record.EmployeeID, record.Status, record.Attempts,
		record.LastError, record.LastAttemptAt, record.CreatedAt, record.SyncedAt)
	if err != nil {
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	record.ID = id

	return nil
}

// GetBatch retrieves up to limit retryable records for the terminal in
// ascending ID order.
func (r *MySQLChangeRecordRepository) GetBatch(
	ctx context.Context,
	terminalID string,
	limit int,
) ([]*domain.ChangeRecord, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT ` + changeRecordColumns + `
		FROM change_records
		WHERE terminal_id = ? AND status IN (?, ?)
		ORDER BY id ASC
		LIMIT ?`

	rows, err := querier.QueryContext(ctx, query, terminalID,
		domain.ChangeRecordStatusPending, domain.ChangeRecordStatusFailed, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck

	return scanChangeRecords(rows)
}

// GetByID retrieves a single change record.
func (r *MySQLChangeRecordRepository) GetByID(ctx context.Context, id int64) (*domain.ChangeRecord, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT ` + changeRecordColumns + ` FROM change_records WHERE id = ?`

	record, err := scanChangeRecord(querier.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, domain.ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	return record, nil
}

// Update persists the record's mutable fields (status, attempts, last error).
func (r *MySQLChangeRecordRepository) Update(ctx context.Context, record *domain.ChangeRecord) error {
	querier := database.GetTx(ctx, r.db)

	query := `UPDATE change_records
		SET status = ?, attempts = ?, last_error = ?, last_attempt_at = ?, synced_at = ?
		WHERE id = ?`

	_, err := querier.ExecContext(ctx, query,
		record.Status, record.Attempts, record.LastError, record.LastAttemptAt, record.SyncedAt, record.ID)

	return err
}

// MarkInFlight transitions retryable records to in_flight; idempotent via the
// status guard.
func (r *MySQLChangeRecordRepository) MarkInFlight(
	ctx context.Context,
	terminalID string,
	ids []int64,
) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	querier := database.GetTx(ctx, r.db)

	query := `UPDATE change_records
		SET status = ?
		WHERE terminal_id = ? AND id IN (` + placeholders(len(ids)) + `) AND status IN (?, ?)`

	args := []any{domain.ChangeRecordStatusInFlight, terminalID}
	args = appendIDs(args, ids)
	args = append(args, domain.ChangeRecordStatusPending, domain.ChangeRecordStatusFailed)

	result, err := querier.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// MarkSynced transitions in_flight records to synced; duplicate acks match zero rows.
func (r *MySQLChangeRecordRepository) MarkSynced(
	ctx context.Context,
	terminalID string,
	ids []int64,
	syncedAt time.Time,
) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	querier := database.GetTx(ctx, r.db)

	query := `UPDATE change_records
		SET status = ?, synced_at = ?
		WHERE terminal_id = ? AND id IN (` + placeholders(len(ids)) + `) AND status = ?`

	args := []any{domain.ChangeRecordStatusSynced, syncedAt, terminalID}
	args = appendIDs(args, ids)
	args = append(args, domain.ChangeRecordStatusInFlight)

	result, err := querier.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// CountByStatus returns the number of records per status for the terminal.
func (r *MySQLChangeRecordRepository) CountByStatus(
	ctx context.Context,
	terminalID string,
) (map[domain.ChangeRecordStatus]int, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT status, COUNT(*) FROM change_records WHERE terminal_id = ? GROUP BY status`

	rows, err := querier.QueryContext(ctx, query, terminalID)
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck

	counts := make(map[domain.ChangeRecordStatus]int)
	for rows.Next() {
		var status domain.ChangeRecordStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		counts[status] = count
	}
	return counts, rows.Err()
}

// OldestRetryableCreatedAt returns the creation time of the oldest record
// still waiting to sync, or nil when the queue is empty.
func (r *MySQLChangeRecordRepository) OldestRetryableCreatedAt(
	ctx context.Context,
	terminalID string,
) (*time.Time, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT MIN(created_at) FROM change_records
		WHERE terminal_id = ? AND status IN (?, ?, ?)`

	var oldest sql.NullTime
	err := querier.QueryRowContext(ctx, query, terminalID,
		domain.ChangeRecordStatusPending, domain.ChangeRecordStatusFailed,
		domain.ChangeRecordStatusInFlight).Scan(&oldest)
	if err != nil {
		return nil, err
	}
	if !oldest.Valid {
		return nil, nil
	}
	t := oldest.Time
	return &t, nil
}

// PurgeSynced deletes synced records acknowledged before the cutoff.
func (r *MySQLChangeRecordRepository) PurgeSynced(
	ctx context.Context,
	terminalID string,
	olderThan time.Time,
) (int64, error) {
	querier := database.GetTx(ctx, r.db)

	query := `DELETE FROM change_records
		WHERE terminal_id = ? AND status = ? AND synced_at < ?`

	result, err := querier.ExecContext(ctx, query, terminalID, domain.ChangeRecordStatusSynced, olderThan)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// ResetInFlight reverts records left in_flight by a crash back to pending.
func (r *MySQLChangeRecordRepository) ResetInFlight(ctx context.Context, terminalID string) (int64, error) {
	querier := database.GetTx(ctx, r.db)

	query := `UPDATE change_records SET status = ? WHERE terminal_id = ? AND status = ?`

	result, err := querier.ExecContext(ctx, query,
		domain.ChangeRecordStatusPending, terminalID, domain.ChangeRecordStatusInFlight)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// GetDeadLetters retrieves dead-lettered records in ascending ID order.
func (r *MySQLChangeRecordRepository) GetDeadLetters(
	ctx context.Context,
	terminalID string,
	limit int,
) ([]*domain.ChangeRecord, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT ` + changeRecordColumns + `
		FROM change_records
		WHERE terminal_id = ? AND status = ?
		ORDER BY id ASC
		LIMIT ?`

	rows, err := querier.QueryContext(ctx, query, terminalID, domain.ChangeRecordStatusDeadLetter, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck

	return scanChangeRecords(rows)
}

// DeleteDeadLetters removes all dead-lettered records for the terminal.
func (r *MySQLChangeRecordRepository) DeleteDeadLetters(ctx context.Context, terminalID string) (int64, error) {
	querier := database.GetTx(ctx, r.db)

	query := `DELETE FROM change_records WHERE terminal_id = ? AND status = ?`

	result, err := querier.ExecContext(ctx, query, terminalID, domain.ChangeRecordStatusDeadLetter)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
