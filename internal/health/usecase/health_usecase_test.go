package usecase

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/allisson/possync/internal/clock"
	"github.com/allisson/possync/internal/database"
	apperrors "github.com/allisson/possync/internal/errors"
	"github.com/allisson/possync/internal/health/domain"
	"github.com/allisson/possync/internal/metrics"
	outboxDomain "github.com/allisson/possync/internal/outbox/domain"
	"github.com/allisson/possync/internal/outbox/repository"
	outboxUsecase "github.com/allisson/possync/internal/outbox/usecase"
	syncDomain "github.com/allisson/possync/internal/sync/domain"
	"github.com/allisson/possync/internal/testutil"
)

const testTerminalID = "pos-001"

type fakeRemote struct {
	mu      sync.Mutex
	latency int64
	err     error
}

func (f *fakeRemote) SubmitBatch(context.Context, string, []*outboxDomain.ChangeRecord) (*syncDomain.BatchResult, error) {
	return &syncDomain.BatchResult{}, nil
}

func (f *fakeRemote) Ping(context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.latency, f.err
}

func (f *fakeRemote) Reset() {}

func (f *fakeRemote) setPing(latency int64, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.latency = latency
	f.err = err
}

type fakeEngine struct {
	mu       sync.Mutex
	snapshot syncDomain.SyncMetrics
}

func (f *fakeEngine) Status() syncDomain.SyncMetrics {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snapshot
}

func (f *fakeEngine) set(snapshot syncDomain.SyncMetrics) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snapshot = snapshot
}

type fakePinger struct {
	mu  sync.Mutex
	err error
}

func (f *fakePinger) PingContext(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

func (f *fakePinger) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

type fakeExecutor struct {
	mu         sync.Mutex
	components []domain.Component
}

func (f *fakeExecutor) ExecuteAuto(_ context.Context, component domain.Component) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.components = append(f.components, component)
	return nil
}

func (f *fakeExecutor) calls() []domain.Component {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Component(nil), f.components...)
}

type monitorFixture struct {
	monitor  *Monitor
	store    *outboxUsecase.OutboxStore
	remote   *fakeRemote
	engine   *fakeEngine
	pinger   *fakePinger
	executor *fakeExecutor
	clock    *clock.FakeClock
}

var _ database.Pinger = (*fakePinger)(nil)

func defaultMonitorConfig() MonitorConfig {
	return MonitorConfig{
		CheckInterval:           15 * time.Second,
		QueueHighWater:          5,
		NetworkFailureThreshold: 5,
		NetworkLatencyThreshold: 2 * time.Second,
		BackoffWarningAfter:     time.Minute,
		AutoRecoveryGrace:       2 * time.Minute,
	}
}

func setupMonitor(t *testing.T, cfg MonitorConfig) *monitorFixture {
	t.Helper()

	db := testutil.SetupSQLiteDB(t)
	t.Cleanup(func() { testutil.TeardownDB(t, db) })

	fakeClock := clock.NewFake(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	store := outboxUsecase.NewOutboxStore(
		testTerminalID,
		10,
		database.NewTxManager(db),
		repository.NewSQLiteChangeRecordRepository(db),
		fakeClock,
		metrics.NewNoOpSyncMetrics(),
	)
	remote := &fakeRemote{latency: 5}
	engine := &fakeEngine{snapshot: syncDomain.SyncMetrics{State: syncDomain.EngineStateIdle, IsOnline: true}}
	pinger := &fakePinger{}
	executor := &fakeExecutor{}

	monitor := NewMonitor(cfg, store, remote, engine, pinger, fakeClock, slog.New(slog.NewTextHandler(io.Discard, nil)))
	monitor.SetAutoExecutor(executor)

	return &monitorFixture{
		monitor:  monitor,
		store:    store,
		remote:   remote,
		engine:   engine,
		pinger:   pinger,
		executor: executor,
		clock:    fakeClock,
	}
}

func (f *monitorFixture) fillQueue(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		_, err := f.store.Append(context.Background(), outboxUsecase.AppendChangeInput{
			EntityType: outboxDomain.EntityTypeTransaction,
			EntityID:   uuid.NewString(),
			Operation:  outboxDomain.OperationCreate,
			Payload:    `{"total":1999}`,
			EmployeeID: "emp-001",
		})
		require.NoError(t, err)
	}
}

func TestMonitor_AllHealthy(t *testing.T) {
	fixture := setupMonitor(t, defaultMonitorConfig())

	report := fixture.monitor.CheckNow(context.Background())

	assert.Equal(t, domain.HealthStatusHealthy, report.Overall)
	require.Len(t, report.Checks, 4)
	for _, check := range report.Checks {
		assert.Equal(t, domain.HealthStatusHealthy, check.Status, string(check.Component))
	}
	assert.Empty(t, fixture.monitor.Alerts(true))
}

func TestMonitor_QueueHighWater(t *testing.T) {
	fixture := setupMonitor(t, defaultMonitorConfig())
	fixture.fillQueue(t, 5)
	ctx := context.Background()

	report := fixture.monitor.CheckNow(ctx)
	assert.Equal(t, domain.HealthStatusWarning, report.Overall)
	assert.Equal(t, domain.HealthStatusWarning, report.Checks[0].Status)

	// One alert on the transition, none on the repeat check.
	require.Len(t, fixture.monitor.Alerts(false), 1)
	fixture.monitor.CheckNow(ctx)
	assert.Len(t, fixture.monitor.Alerts(false), 1)

	// Twice the high water mark is critical.
	fixture.fillQueue(t, 5)
	report = fixture.monitor.CheckNow(ctx)
	assert.Equal(t, domain.HealthStatusCritical, report.Overall)
}

func TestMonitor_NetworkUnreachable(t *testing.T) {
	fixture := setupMonitor(t, defaultMonitorConfig())
	fixture.remote.setPing(0, apperrors.ErrNetworkFailure)

	report := fixture.monitor.CheckNow(context.Background())

	assert.Equal(t, domain.HealthStatusCritical, report.Overall)
	assert.Equal(t, domain.ComponentNetwork, report.Checks[1].Component)
	assert.Equal(t, domain.HealthStatusCritical, report.Checks[1].Status)

	alerts := fixture.monitor.Alerts(false)
	require.Len(t, alerts, 1)
	assert.Equal(t, domain.ComponentNetwork, alerts[0].Component)
	assert.Equal(t, domain.HealthStatusCritical, alerts[0].Severity)
	assert.Equal(t, "network check critical", alerts[0].Title)
}

func TestMonitor_NetworkConsecutiveFailures(t *testing.T) {
	fixture := setupMonitor(t, defaultMonitorConfig())
	fixture.engine.set(syncDomain.SyncMetrics{State: syncDomain.EngineStateBackingOff, ConsecutiveFailures: 5})

	report := fixture.monitor.CheckNow(context.Background())
	assert.Equal(t, domain.HealthStatusWarning, report.Checks[1].Status)
}

func TestMonitor_NetworkHighLatency(t *testing.T) {
	fixture := setupMonitor(t, defaultMonitorConfig())
	fixture.remote.setPing(2500, nil)

	report := fixture.monitor.CheckNow(context.Background())
	assert.Equal(t, domain.HealthStatusWarning, report.Checks[1].Status)
}

func TestMonitor_EnginePaused(t *testing.T) {
	fixture := setupMonitor(t, defaultMonitorConfig())
	fixture.engine.set(syncDomain.SyncMetrics{
		State:     syncDomain.EngineStatePaused,
		LastError: "back office refused credentials",
	})

	report := fixture.monitor.CheckNow(context.Background())
	assert.Equal(t, domain.HealthStatusCritical, report.Checks[2].Status)
	assert.Contains(t, report.Checks[2].Message, "refused credentials")
}

func TestMonitor_EngineLongBackoff(t *testing.T) {
	fixture := setupMonitor(t, defaultMonitorConfig())
	since := fixture.clock.Now().Add(-2 * time.Minute)
	fixture.engine.set(syncDomain.SyncMetrics{
		State:           syncDomain.EngineStateBackingOff,
		BackingOffSince: &since,
	})

	report := fixture.monitor.CheckNow(context.Background())
	assert.Equal(t, domain.HealthStatusWarning, report.Checks[2].Status)
}

func TestMonitor_StorageUnreachable(t *testing.T) {
	fixture := setupMonitor(t, defaultMonitorConfig())
	fixture.pinger.setErr(apperrors.New("database is locked"))

	report := fixture.monitor.CheckNow(context.Background())
	assert.Equal(t, domain.HealthStatusCritical, report.Checks[3].Status)
}

func TestMonitor_RecoveryDoesNotAcknowledgeAlerts(t *testing.T) {
	fixture := setupMonitor(t, defaultMonitorConfig())
	ctx := context.Background()

	fixture.pinger.setErr(apperrors.New("database is locked"))
	fixture.monitor.CheckNow(ctx)
	require.Len(t, fixture.monitor.Alerts(false), 1)

	// Storage recovers on its own; the alert stays open.
	fixture.pinger.setErr(nil)
	report := fixture.monitor.CheckNow(ctx)
	assert.Equal(t, domain.HealthStatusHealthy, report.Overall)
	assert.Len(t, fixture.monitor.Alerts(false), 1)
}

func TestMonitor_Acknowledge(t *testing.T) {
	fixture := setupMonitor(t, defaultMonitorConfig())
	ctx := context.Background()

	fixture.pinger.setErr(apperrors.New("database is locked"))
	fixture.monitor.CheckNow(ctx)

	alerts := fixture.monitor.Alerts(false)
	require.Len(t, alerts, 1)

	require.NoError(t, fixture.monitor.Acknowledge(alerts[0].ID))
	assert.Empty(t, fixture.monitor.Alerts(false))

	acknowledged := fixture.monitor.Alerts(true)
	require.Len(t, acknowledged, 1)
	assert.True(t, acknowledged[0].Acknowledged)
	assert.NotNil(t, acknowledged[0].AcknowledgedAt)
}

func TestMonitor_AcknowledgeUnknownAlert(t *testing.T) {
	fixture := setupMonitor(t, defaultMonitorConfig())

	err := fixture.monitor.Acknowledge(uuid.Must(uuid.NewV7()))
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestMonitor_AcknowledgeComponent(t *testing.T) {
	fixture := setupMonitor(t, defaultMonitorConfig())
	ctx := context.Background()

	fixture.pinger.setErr(apperrors.New("database is locked"))
	fixture.remote.setPing(0, apperrors.ErrNetworkFailure)
	fixture.monitor.CheckNow(ctx)
	require.Len(t, fixture.monitor.Alerts(false), 2)

	count := fixture.monitor.AcknowledgeComponent(domain.ComponentNetwork)
	assert.Equal(t, 1, count)

	open := fixture.monitor.Alerts(false)
	require.Len(t, open, 1)
	assert.Equal(t, domain.ComponentStorage, open[0].Component)
}

func TestMonitor_AlertsNewestFirst(t *testing.T) {
	fixture := setupMonitor(t, defaultMonitorConfig())
	ctx := context.Background()

	fixture.pinger.setErr(apperrors.New("database is locked"))
	fixture.monitor.CheckNow(ctx)

	fixture.clock.Advance(time.Minute)
	fixture.remote.setPing(0, apperrors.ErrNetworkFailure)
	fixture.monitor.CheckNow(ctx)

	alerts := fixture.monitor.Alerts(false)
	require.Len(t, alerts, 2)
	assert.Equal(t, domain.ComponentNetwork, alerts[0].Component)
	assert.Equal(t, domain.ComponentStorage, alerts[1].Component)
}

func TestMonitor_NotifyDeadLetter(t *testing.T) {
	fixture := setupMonitor(t, defaultMonitorConfig())

	reason := "unknown product"
	fixture.monitor.NotifyDeadLetter(context.Background(), &outboxDomain.ChangeRecord{
		ID:         42,
		EntityType: outboxDomain.EntityTypeTransaction,
		EntityID:   "txn-001",
		LastError:  &reason,
	})

	alerts := fixture.monitor.Alerts(false)
	require.Len(t, alerts, 1)
	assert.Equal(t, domain.ComponentOutbox, alerts[0].Component)
	assert.Equal(t, domain.HealthStatusCritical, alerts[0].Severity)
	assert.Contains(t, alerts[0].Message, "record 42")
	assert.Contains(t, alerts[0].Message, "unknown product")
}

func TestMonitor_AutoRecoveryAfterGrace(t *testing.T) {
	fixture := setupMonitor(t, defaultMonitorConfig())
	ctx := context.Background()

	fixture.remote.setPing(0, apperrors.ErrNetworkFailure)
	fixture.monitor.CheckNow(ctx)
	assert.Empty(t, fixture.executor.calls())

	// Within the grace period nothing runs.
	fixture.clock.Advance(time.Minute)
	fixture.monitor.CheckNow(ctx)
	assert.Empty(t, fixture.executor.calls())

	// Past the grace period automatic recovery runs once.
	fixture.clock.Advance(90 * time.Second)
	fixture.monitor.CheckNow(ctx)
	assert.Equal(t, []domain.Component{domain.ComponentNetwork}, fixture.executor.calls())

	// Immediately after, it does not run again.
	fixture.monitor.CheckNow(ctx)
	assert.Equal(t, []domain.Component{domain.ComponentNetwork}, fixture.executor.calls())
}

func TestMonitor_StatusBeforeFirstCheck(t *testing.T) {
	fixture := setupMonitor(t, defaultMonitorConfig())

	report := fixture.monitor.Status()
	assert.Equal(t, domain.HealthStatusHealthy, report.Overall)
	assert.Len(t, report.Checks, 4)
}
