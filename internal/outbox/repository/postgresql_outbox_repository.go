package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/allisson/possync/internal/database"
	"github.com/allisson/possync/internal/outbox/domain"
)

// PostgreSQLChangeRecordRepository handles change record persistence for
// store-server deployments backed by PostgreSQL.
type PostgreSQLChangeRecordRepository struct {
	db *sql.DB
}

// NewPostgreSQLChangeRecordRepository creates a new PostgreSQLChangeRecordRepository.
func NewPostgreSQLChangeRecordRepository(db *sql.DB) *PostgreSQLChangeRecordRepository {
	return &PostgreSQLChangeRecordRepository{
		db: db,
	}
}

// Create inserts a new change record and assigns its monotonic ID.
func (r *PostgreSQLChangeRecordRepository) Create(ctx context.Context, record *domain.ChangeRecord) error {
	querier := database.GetTx(ctx, r.db)

	query := `INSERT INTO change_records
		(terminal_id, entity_type, entity_id, operation, payload, employee_id, status, attempts, last_error, last_attempt_at, created_at, synced_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id`

	return querier.QueryRowContext(ctx, query,
		record.TerminalID, record.EntityType, record.EntityID, record.Operation,
		record.Payload, record.EmployeeID, record.Status, record.Attempts,
		record.LastError, record.LastAttemptAt, record.CreatedAt, record.SyncedAt).Scan(&record.ID)
}

// GetBatch retrieves up to limit retryable records for the terminal in
// ascending ID order. SKIP LOCKED keeps concurrent drainers off the same rows.
func (r *PostgreSQLChangeRecordRepository) GetBatch(
	ctx context.Context,
	terminalID string,
	limit int,
) ([]*domain.ChangeRecord, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT ` + changeRecordColumns + `
		FROM change_records
		WHERE terminal_id = $1 AND status IN ($2, $3)
		ORDER BY id ASC
		LIMIT $4
		FOR UPDATE SKIP LOCKED`

	rows, err := querier.QueryContext(ctx, query, terminalID,
		domain.ChangeRecordStatusPending, domain.ChangeRecordStatusFailed, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck

	return scanChangeRecords(rows)
}

// GetByID retrieves a single change record.
func (r *PostgreSQLChangeRecordRepository) GetByID(ctx context.Context, id int64) (*domain.ChangeRecord, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT ` + changeRecordColumns + ` FROM change_records WHERE id = $1`

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
func (r *PostgreSQLChangeRecordRepository) Update(ctx context.Context, record *domain.ChangeRecord) error {
	querier := database.GetTx(ctx, r.db)

	query := `UPDATE change_records
		SET status = $1, attempts = $2, last_error = $3, last_attempt_at = $4, synced_at = $5
		WHERE id = $6`

	_, err := querier.ExecContext(ctx, query,
		record.Status, record.Attempts, record.LastError, record.LastAttemptAt, record.SyncedAt, record.ID)

	return err
}

// MarkInFlight transitions retryable records to in_flight. The status guard in
// the WHERE clause makes the call idempotent.
func (r *PostgreSQLChangeRecordRepository) MarkInFlight(
	ctx context.Context,
	terminalID string,
	ids []int64,
) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	querier := database.GetTx(ctx, r.db)

	query := fmt.Sprintf(`UPDATE change_records
		SET status = $1
		WHERE terminal_id = $2 AND id IN (%s) AND status IN ($%d, $%d)`,
		pgPlaceholders(3, len(ids)), len(ids)+3, len(ids)+4)

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
func (r *PostgreSQLChangeRecordRepository) MarkSynced(
	ctx context.Context,
	terminalID string,
	ids []int64,
	syncedAt time.Time,
) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	querier := database.GetTx(ctx, r.db)

	query := fmt.Sprintf(`UPDATE change_records
		SET status = $1, synced_at = $2
		WHERE terminal_id = $3 AND id IN (%s) AND status = $%d`,
		pgPlaceholders(4, len(ids)), len(ids)+4)

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
func (r *PostgreSQLChangeRecordRepository) CountByStatus(
	ctx context.Context,
	terminalID string,
) (map[domain.ChangeRecordStatus]int, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT status, COUNT(*) FROM change_records WHERE terminal_id = $1 GROUP BY status`

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
func (r *PostgreSQLChangeRecordRepository) OldestRetryableCreatedAt(
	ctx context.Context,
	terminalID string,
) (*time.Time, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT MIN(created_at) FROM change_records
		WHERE terminal_id = $1 AND status IN ($2, $3, $4)`

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
func (r *PostgreSQLChangeRecordRepository) PurgeSynced(
	ctx context.Context,
	terminalID string,
	olderThan time.Time,
) (int64, error) {
	querier := database.GetTx(ctx, r.db)

	query := `DELETE FROM change_records
		WHERE terminal_id = $1 AND status = $2 AND synced_at < $3`

	result, err := querier.ExecContext(ctx, query, terminalID, domain.ChangeRecordStatusSynced, olderThan)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// ResetInFlight reverts records left in_flight by a crash back to pending.
func (r *PostgreSQLChangeRecordRepository) ResetInFlight(ctx context.Context, terminalID string) (int64, error) {
	querier := database.GetTx(ctx, r.db)

	query := `UPDATE change_records SET status = $1 WHERE terminal_id = $2 AND status = $3`

	result, err := querier.ExecContext(ctx, query,
		domain.ChangeRecordStatusPending, terminalID, domain.ChangeRecordStatusInFlight)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// GetDeadLetters retrieves dead-lettered records in ascending ID order.
func (r *PostgreSQLChangeRecordRepository) GetDeadLetters(
	ctx context.Context,
	terminalID string,
	limit int,
) ([]*domain.ChangeRecord, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT ` + changeRecordColumns + `
		FROM change_records
		WHERE terminal_id = $1 AND status = $2
		ORDER BY id ASC
		LIMIT $3`

	rows, err := querier.QueryContext(ctx, query, terminalID, domain.ChangeRecordStatusDeadLetter, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck

	return scanChangeRecords(rows)
}

// DeleteDeadLetters removes all dead-lettered records for the terminal.
func (r *PostgreSQLChangeRecordRepository) DeleteDeadLetters(ctx context.Context, terminalID string) (int64, error) {
	querier := database.GetTx(ctx, r.db)

	query := `DELETE FROM change_records WHERE terminal_id = $1 AND status = $2`

	result, err := querier.ExecContext(ctx, query, terminalID, domain.ChangeRecordStatusDeadLetter)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// pgPlaceholders returns n comma-separated "$n" placeholders starting at start.
func pgPlaceholders(start, n int) string {
	parts := make([]string, 0, n)
	for i := 0; i < n; i++ {
		parts = append(parts, fmt.Sprintf("$%d", start+i))
	}
	return strings.Join(parts, ", ")
}
