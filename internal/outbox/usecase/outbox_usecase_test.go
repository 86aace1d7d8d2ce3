package usecase

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/allisson/possync/internal/clock"
	"github.com/allisson/possync/internal/database"
	apperrors "github.com/allisson/possync/internal/errors"
	"github.com/allisson/possync/internal/metrics"
	"github.com/allisson/possync/internal/outbox/domain"
	"github.com/allisson/possync/internal/outbox/repository"
	"github.com/allisson/possync/internal/testutil"
)

const testTerminalID = "pos-001"

// recordingNotifier captures dead letter notifications for assertions.
type recordingNotifier struct {
	mu      sync.Mutex
	records []*domain.ChangeRecord
}

func (n *recordingNotifier) NotifyDeadLetter(_ context.Context, record *domain.ChangeRecord) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.records = append(n.records, record)
}

func (n *recordingNotifier) all() []*domain.ChangeRecord {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]*domain.ChangeRecord(nil), n.records...)
}

func setupStore(t *testing.T, maxAttempts int) (*OutboxStore, *clock.FakeClock, *recordingNotifier) {
	t.Helper()

	db := testutil.SetupSQLiteDB(t)
	t.Cleanup(func() { testutil.TeardownDB(t, db) })

	fakeClock := clock.NewFake(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	notifier := &recordingNotifier{}

	store := NewOutboxStore(
		testTerminalID,
		maxAttempts,
		database.NewTxManager(db),
		repository.NewSQLiteChangeRecordRepository(db),
		fakeClock,
		metrics.NewNoOpSyncMetrics(),
	)
	store.SetDeadLetterNotifier(notifier)
	return store, fakeClock, notifier
}

func appendInput(entityID string) AppendChangeInput {
	return AppendChangeInput{
		EntityType: domain.EntityTypeTransaction,
		EntityID:   entityID,
		Operation:  domain.OperationCreate,
		Payload:    `{"total":1999}`,
		EmployeeID: "emp-001",
	}
}

func TestOutboxStore_Append(t *testing.T) {
	store, fakeClock, _ := setupStore(t, 10)
	ctx := context.Background()

	record, err := store.Append(ctx, appendInput("txn-001"))
	require.NoError(t, err)

	assert.Positive(t, record.ID)
	assert.Equal(t, testTerminalID, record.TerminalID)
	assert.Equal(t, domain.ChangeRecordStatusPending, record.Status)
	assert.Equal(t, 0, record.Attempts)
	assert.True(t, record.CreatedAt.Equal(fakeClock.Now()))
}

func TestOutboxStore_AppendValidation(t *testing.T) {
	store, _, _ := setupStore(t, 10)
	ctx := context.Background()

	input := appendInput("txn-001")
	input.EntityID = ""
	_, err := store.Append(ctx, input)
	assert.ErrorIs(t, err, domain.ErrMissingEntityID)

	input = appendInput("txn-001")
	input.Payload = ""
	_, err = store.Append(ctx, input)
	assert.ErrorIs(t, err, domain.ErrMissingPayload)
}

func TestOutboxStore_NextBatchOrdering(t *testing.T) {
	store, _, _ := setupStore(t, 10)
	ctx := context.Background()

	for _, entityID := range []string{"txn-001", "txn-002", "txn-003"} {
		_, err := store.Append(ctx, appendInput(entityID))
		require.NoError(t, err)
	}

	batch, err := store.NextBatch(ctx, 10)
	require.NoError(t, err)
	require.Len(t, batch, 3)
	assert.Equal(t, "txn-001", batch[0].EntityID)
	assert.Equal(t, "txn-003", batch[2].EntityID)
}

func TestOutboxStore_MarkInFlightAndSynced(t *testing.T) {
	store, _, _ := setupStore(t, 10)
	ctx := context.Background()

	record, err := store.Append(ctx, appendInput("txn-001"))
	require.NoError(t, err)

	leased, err := store.MarkInFlight(ctx, []int64{record.ID})
	require.NoError(t, err)
	assert.Equal(t, int64(1), leased)

	// A second lease attempt is a no-op.
	leased, err = store.MarkInFlight(ctx, []int64{record.ID})
	require.NoError(t, err)
	assert.Equal(t, int64(0), leased)

	acked, err := store.MarkSynced(ctx, []int64{record.ID})
	require.NoError(t, err)
	assert.Equal(t, int64(1), acked)

	got, err := store.GetByID(ctx, record.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ChangeRecordStatusSynced, got.Status)
	require.NotNil(t, got.SyncedAt)

	// Duplicate acknowledgement is a no-op.
	acked, err = store.MarkSynced(ctx, []int64{record.ID})
	require.NoError(t, err)
	assert.Equal(t, int64(0), acked)
}

func TestOutboxStore_MarkFailedReturnsToRetryPool(t *testing.T) {
	store, _, _ := setupStore(t, 10)
	ctx := context.Background()

	record, err := store.Append(ctx, appendInput("txn-001"))
	require.NoError(t, err)
	_, err = store.MarkInFlight(ctx, []int64{record.ID})
	require.NoError(t, err)

	err = store.MarkFailed(ctx, []int64{record.ID}, apperrors.New("connection timed out"))
	require.NoError(t, err)

	got, err := store.GetByID(ctx, record.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ChangeRecordStatusFailed, got.Status)
	assert.Equal(t, 1, got.Attempts)
	require.NotNil(t, got.LastError)
	assert.Equal(t, "connection timed out", *got.LastError)
	require.NotNil(t, got.LastAttemptAt)

	// Failed records stay eligible for the next batch.
	batch, err := store.NextBatch(ctx, 10)
	require.NoError(t, err)
	require.Len(t, batch, 1)
	assert.Equal(t, record.ID, batch[0].ID)
}

func TestOutboxStore_MarkFailedCeilingDeadLetters(t *testing.T) {
	store, _, notifier := setupStore(t, 3)
	ctx := context.Background()

	record, err := store.Append(ctx, appendInput("txn-001"))
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err = store.MarkInFlight(ctx, []int64{record.ID})
		require.NoError(t, err)
		err = store.MarkFailed(ctx, []int64{record.ID}, apperrors.New("connection timed out"))
		require.NoError(t, err)
	}

	got, err := store.GetByID(ctx, record.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ChangeRecordStatusDeadLetter, got.Status)
	assert.Equal(t, 3, got.Attempts)

	notified := notifier.all()
	require.Len(t, notified, 1)
	assert.Equal(t, record.ID, notified[0].ID)

	// Dead letters never come back in a batch.
	batch, err := store.NextBatch(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, batch)
}

func TestOutboxStore_MarkFailedSkipsNonInFlight(t *testing.T) {
	store, _, _ := setupStore(t, 10)
	ctx := context.Background()

	record, err := store.Append(ctx, appendInput("txn-001"))
	require.NoError(t, err)

	// Record was never leased, so the failure report is stale.
	err = store.MarkFailed(ctx, []int64{record.ID}, apperrors.New("connection timed out"))
	require.NoError(t, err)

	got, err := store.GetByID(ctx, record.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ChangeRecordStatusPending, got.Status)
	assert.Equal(t, 0, got.Attempts)
}

func TestOutboxStore_ForceDeadLetter(t *testing.T) {
	store, _, notifier := setupStore(t, 10)
	ctx := context.Background()

	record, err := store.Append(ctx, appendInput("txn-001"))
	require.NoError(t, err)
	_, err = store.MarkInFlight(ctx, []int64{record.ID})
	require.NoError(t, err)

	err = store.ForceDeadLetter(ctx, record.ID, "unknown product")
	require.NoError(t, err)

	got, err := store.GetByID(ctx, record.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ChangeRecordStatusDeadLetter, got.Status)
	require.NotNil(t, got.LastError)
	assert.Equal(t, "unknown product", *got.LastError)
	assert.Len(t, notifier.all(), 1)

	// Idempotent: a second call does not notify again.
	err = store.ForceDeadLetter(ctx, record.ID, "unknown product")
	require.NoError(t, err)
	assert.Len(t, notifier.all(), 1)
}

func TestOutboxStore_ForceDeadLetterSyncedRecord(t *testing.T) {
	store, _, _ := setupStore(t, 10)
	ctx := context.Background()

	record, err := store.Append(ctx, appendInput("txn-001"))
	require.NoError(t, err)
	_, err = store.MarkInFlight(ctx, []int64{record.ID})
	require.NoError(t, err)
	_, err = store.MarkSynced(ctx, []int64{record.ID})
	require.NoError(t, err)

	err = store.ForceDeadLetter(ctx, record.ID, "unknown product")
	assert.ErrorIs(t, err, domain.ErrRecordImmutable)
}

func TestOutboxStore_ForceDeadLetterNotFound(t *testing.T) {
	store, _, _ := setupStore(t, 10)

	err := store.ForceDeadLetter(context.Background(), 999, "unknown product")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestOutboxStore_ReconcileInFlight(t *testing.T) {
	store, _, _ := setupStore(t, 10)
	ctx := context.Background()

	first, err := store.Append(ctx, appendInput("txn-001"))
	require.NoError(t, err)
	second, err := store.Append(ctx, appendInput("txn-002"))
	require.NoError(t, err)

	_, err = store.MarkInFlight(ctx, []int64{first.ID, second.ID})
	require.NoError(t, err)

	count, err := store.ReconcileInFlight(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	batch, err := store.NextBatch(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, batch, 2)
}

func TestOutboxStore_PurgeSynced(t *testing.T) {
	store, fakeClock, _ := setupStore(t, 10)
	ctx := context.Background()

	record, err := store.Append(ctx, appendInput("txn-001"))
	require.NoError(t, err)
	_, err = store.MarkInFlight(ctx, []int64{record.ID})
	require.NoError(t, err)
	_, err = store.MarkSynced(ctx, []int64{record.ID})
	require.NoError(t, err)

	// Not old enough yet.
	count, err := store.PurgeSynced(ctx, fakeClock.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)

	fakeClock.Advance(72 * time.Hour)
	count, err = store.PurgeSynced(ctx, fakeClock.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestOutboxStore_ClearDeadLetters(t *testing.T) {
	store, _, _ := setupStore(t, 1)
	ctx := context.Background()

	record, err := store.Append(ctx, appendInput("txn-001"))
	require.NoError(t, err)
	_, err = store.MarkInFlight(ctx, []int64{record.ID})
	require.NoError(t, err)
	err = store.MarkFailed(ctx, []int64{record.ID}, apperrors.New("connection timed out"))
	require.NoError(t, err)

	dead, err := store.DeadLetters(ctx, 10)
	require.NoError(t, err)
	require.Len(t, dead, 1)

	count, err := store.ClearDeadLetters(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	dead, err = store.DeadLetters(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, dead)
}

func TestOutboxStore_QueueDepth(t *testing.T) {
	store, _, _ := setupStore(t, 10)
	ctx := context.Background()

	depth, err := store.QueueDepth(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, depth)

	first, err := store.Append(ctx, appendInput("txn-001"))
	require.NoError(t, err)
	_, err = store.Append(ctx, appendInput("txn-002"))
	require.NoError(t, err)

	depth, err = store.QueueDepth(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, depth)

	_, err = store.MarkInFlight(ctx, []int64{first.ID})
	require.NoError(t, err)
	_, err = store.MarkSynced(ctx, []int64{first.ID})
	require.NoError(t, err)

	depth, err = store.QueueDepth(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, depth)
}

func TestOutboxStore_OldestPendingAge(t *testing.T) {
	store, fakeClock, _ := setupStore(t, 10)
	ctx := context.Background()

	age, err := store.OldestPendingAge(ctx)
	require.NoError(t, err)
	assert.Equal(t, time.Duration(0), age)

	_, err = store.Append(ctx, appendInput("txn-001"))
	require.NoError(t, err)

	fakeClock.Advance(5 * time.Minute)
	age, err = store.OldestPendingAge(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5*time.Minute, age)
}

func TestOutboxStore_AppendJoinsTransaction(t *testing.T) {
	db := testutil.SetupSQLiteDB(t)
	t.Cleanup(func() { testutil.TeardownDB(t, db) })

	txManager := database.NewTxManager(db)
	store := NewOutboxStore(
		testTerminalID,
		10,
		txManager,
		repository.NewSQLiteChangeRecordRepository(db),
		clock.New(),
		metrics.NewNoOpSyncMetrics(),
	)
	ctx := context.Background()

	err := txManager.WithTx(ctx, func(ctx context.Context) error {
		if _, err := store.Append(ctx, appendInput("txn-001")); err != nil {
			return err
		}
		return apperrors.New("abort")
	})
	require.Error(t, err)

	// The rollback removed the appended record.
	depth, err := store.QueueDepth(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, depth)
}
