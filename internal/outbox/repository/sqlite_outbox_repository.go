// Package repository provides data persistence implementations for the outbox.
package repository

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/allisson/possync/internal/database"
	"github.com/allisson/possync/internal/outbox/domain"
)

const changeRecordColumns = `id, terminal_id, entity_type, entity_id, operation, payload, employee_id,
	status, attempts, last_error, last_attempt_at, created_at, synced_at`

// SQLiteChangeRecordRepository handles change record persistence for the
// terminal-local SQLite store.
type SQLiteChangeRecordRepository struct {
	db *sql.DB
}

// NewSQLiteChangeRecordRepository creates a new SQLiteChangeRecordRepository.
func NewSQLiteChangeRecordRepository(db *sql.DB) *SQLiteChangeRecordRepository {
	return &SQLiteChangeRecordRepository{
		db: db,
	}
}

// Create inserts a new change record and assigns its monotonic ID.
func (r *SQLiteChangeRecordRepository) Create(ctx context.Context, record *domain.ChangeRecord) error {
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
// ascending ID order, i.e. creation order.
func (r *SQLiteChangeRecordRepository) GetBatch(
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
func (r *SQLiteChangeRecordRepository) GetByID(ctx context.Context, id int64) (*domain.ChangeRecord, error) {
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
func (r *SQLiteChangeRecordRepository) Update(ctx context.Context, record *domain.ChangeRecord) error {
	querier := database.GetTx(ctx, r.db)

	query := `UPDATE change_records
		SET status = ?, attempts = ?, last_error = ?, last_attempt_at = ?, synced_at = ?
		WHERE id = ?`

	_, err := querier.ExecContext(ctx, query,
		record.Status, record.Attempts, record.LastError, record.LastAttemptAt, record.SyncedAt, record.ID)

	return err
}

// MarkInFlight transitions retryable records to in_flight. The status guard in
// the WHERE clause makes the call idempotent.
func (r *SQLiteChangeRecordRepository) MarkInFlight(
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

// MarkSynced transitions in_flight records to synced. Re-acknowledging an
// already synced record matches zero rows, so duplicate acks are no-ops.
func (r *SQLiteChangeRecordRepository) MarkSynced(
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
func (r *SQLiteChangeRecordRepository) CountByStatus(
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
func (r *SQLiteChangeRecordRepository) OldestRetryableCreatedAt(
	ctx context.Context,
	terminalID string,
) (*time.Time, error) {
	querier := database.GetTx(ctx, r.db)

	// Plain column select rather than MIN(created_at): the sqlite driver only
	// converts TIMESTAMP columns to time.Time when the column keeps its
	// declared type, which an aggregate expression loses. The lowest id is
	// the oldest record because ids are assigned in creation order.
	query := `SELECT created_at FROM change_records
		WHERE terminal_id = ? AND status IN (?, ?, ?)
		ORDER BY id ASC
		LIMIT 1`

	var oldest time.Time
	err := querier.QueryRowContext(ctx, query, terminalID,
		domain.ChangeRecordStatusPending, domain.ChangeRecordStatusFailed,
		domain.ChangeRecordStatusInFlight).Scan(&oldest)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &oldest, nil
}

// PurgeSynced deletes synced records acknowledged before the cutoff.
// Dead-letter records are never purged here.
func (r *SQLiteChangeRecordRepository) PurgeSynced(
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
func (r *SQLiteChangeRecordRepository) ResetInFlight(ctx context.Context, terminalID string) (int64, error) {
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
func (r *SQLiteChangeRecordRepository) GetDeadLetters(
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
// Only reachable through an explicit operator action.
func (r *SQLiteChangeRecordRepository) DeleteDeadLetters(ctx context.Context, terminalID string) (int64, error) {
	querier := database.GetTx(ctx, r.db)

	query := `DELETE FROM change_records WHERE terminal_id = ? AND status = ?`

	result, err := querier.ExecContext(ctx, query, terminalID, domain.ChangeRecordStatusDeadLetter)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// rowScanner abstracts *sql.Row and *sql.Rows for the scan helpers.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanChangeRecord(row rowScanner) (*domain.ChangeRecord, error) {
	var record domain.ChangeRecord
	var lastError sql.NullString
	var lastAttemptAt, syncedAt sql.NullTime

	err := row.Scan(&record.ID, &record.TerminalID, &record.EntityType, &record.EntityID,
		&record.Operation, &record.Payload, &record.EmployeeID, &record.Status,
		&record.Attempts, &lastError, &lastAttemptAt, &record.CreatedAt, &syncedAt)
	if err != nil {
		return nil, err
	}

	if lastError.Valid {
		record.LastError = &lastError.String
	}
	if lastAttemptAt.Valid {
		t := lastAttemptAt.Time
		record.LastAttemptAt = &t
	}
	if syncedAt.Valid {
		t := syncedAt.Time
		record.SyncedAt = &t
	}

	return &record, nil
}

func scanChangeRecords(rows *sql.Rows) ([]*domain.ChangeRecord, error) {
	var records []*domain.ChangeRecord
	for rows.Next() {
		record, err := scanChangeRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

// placeholders returns n comma-separated "?" placeholders.
func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func appendIDs(args []any, ids []int64) []any {
	for _, id := range ids {
		args = append(args, id)
	}
	return args
}
