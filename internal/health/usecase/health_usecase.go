// Package usecase implements the health monitor: periodic component checks,
// alert lifecycle, and escalation to automatic recovery.
package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/allisson/possync/internal/clock"
	"github.com/allisson/possync/internal/database"
	apperrors "github.com/allisson/possync/internal/errors"
	"github.com/allisson/possync/internal/health/domain"
	outboxDomain "github.com/allisson/possync/internal/outbox/domain"
	outboxUsecase "github.com/allisson/possync/internal/outbox/usecase"
	syncDomain "github.com/allisson/possync/internal/sync/domain"
	"github.com/allisson/possync/internal/sync/service"
)

// EngineStatusReader exposes the engine state the monitor needs.
type EngineStatusReader interface {
	Status() syncDomain.SyncMetrics
}

// AutoExecutor runs automatic recovery for an unhealthy component.
type AutoExecutor interface {
	ExecuteAuto(ctx context.Context, component domain.Component) error
}

// MonitorConfig carries the monitor thresholds.
type MonitorConfig struct {
	CheckInterval time.Duration
	// QueueHighWater is the queue depth at which the outbox degrades.
	// Twice the high water mark is critical.
	QueueHighWater int
	// NetworkFailureThreshold is the consecutive failure count at which the
	// network degrades.
	NetworkFailureThreshold int
	// NetworkLatencyThreshold degrades the network when ping round trips
	// exceed it.
	NetworkLatencyThreshold time.Duration
	// BackoffWarningAfter degrades the engine when it has been backing off
	// for longer than this.
	BackoffWarningAfter time.Duration
	// AutoRecoveryGrace is how long a component may stay unhealthy before
	// automatic recovery runs.
	AutoRecoveryGrace time.Duration
}

// Monitor periodically probes the outbox, network, engine, and storage, and
// raises alerts when a component leaves the healthy state.
type Monitor struct {
	cfg    MonitorConfig
	store  outboxUsecase.Store
	remote service.RemoteClient
	engine EngineStatusReader
	pinger database.Pinger
	clock  clock.Clock
	logger *slog.Logger

	mu             sync.Mutex
	lastReport     domain.Report
	previous       map[domain.Component]domain.HealthStatus
	unhealthySince map[domain.Component]time.Time
	lastAutoRun    map[domain.Component]time.Time
	alerts         []domain.Alert
	executor       AutoExecutor

	runOnce sync.Once
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewMonitor creates a health monitor. SetAutoExecutor should be called
// before Run if automatic recovery is wanted.
func NewMonitor(
	cfg MonitorConfig,
	store outboxUsecase.Store,
	remote service.RemoteClient,
	engine EngineStatusReader,
	pinger database.Pinger,
	clk clock.Clock,
	logger *slog.Logger,
) *Monitor {
	return &Monitor{
		cfg:            cfg,
		store:          store,
		remote:         remote,
		engine:         engine,
		pinger:         pinger,
		clock:          clk,
		logger:         logger,
		previous:       make(map[domain.Component]domain.HealthStatus),
		unhealthySince: make(map[domain.Component]time.Time),
		lastAutoRun:    make(map[domain.Component]time.Time),
		done:           make(chan struct{}),
	}
}

// SetAutoExecutor registers the recovery executor. Wired after construction
// because the executor is built on top of the monitor.
func (m *Monitor) SetAutoExecutor(executor AutoExecutor) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.executor = executor
}

// Run starts the periodic check loop.
func (m *Monitor) Run(ctx context.Context) {
	m.runOnce.Do(func() {
		runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		m.cancel = cancel
		go m.loop(runCtx)
	})
}

// Stop shuts the check loop down and waits for it to finish.
func (m *Monitor) Stop() {
	if m.cancel == nil {
		return
	}
	m.cancel()
	<-m.done
}

func (m *Monitor) loop(ctx context.Context) {
	defer close(m.done)

	ticker := time.NewTicker(m.cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.CheckNow(ctx)
		}
	}
}

// CheckNow probes every component once and returns the aggregated report.
func (m *Monitor) CheckNow(ctx context.Context) domain.Report {
	now := m.clock.Now()
	checks := []domain.Check{
		m.checkOutbox(ctx, now),
		m.checkNetwork(ctx, now),
		m.checkEngine(now),
		m.checkStorage(ctx, now),
	}
	report := domain.NewReport(now, checks)

	m.mu.Lock()
	m.lastReport = report
	for _, check := range checks {
		m.trackTransitionLocked(check, now)
	}
	due := m.autoRecoveryDueLocked(now)
	m.mu.Unlock()

	for _, component := range due {
		m.runAutoRecovery(ctx, component)
	}
	return report
}

// Status returns the most recent report. Before the first check it reports
// every component healthy.
func (m *Monitor) Status() domain.Report {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lastReport.Checks == nil {
		checks := make([]domain.Check, 0, len(domain.Components()))
		for _, component := range domain.Components() {
			checks = append(checks, domain.Check{
				Component: component,
				Status:    domain.HealthStatusHealthy,
				Message:   "not checked yet",
			})
		}
		return domain.NewReport(m.clock.Now(), checks)
	}
	return m.lastReport
}

// Alerts returns alerts newest first. When includeAcknowledged is false,
// acknowledged alerts are filtered out.
func (m *Monitor) Alerts(includeAcknowledged bool) []domain.Alert {
	m.mu.Lock()
	defer m.mu.Unlock()

	alerts := make([]domain.Alert, 0, len(m.alerts))
	for i := len(m.alerts) - 1; i >= 0; i-- {
		if !includeAcknowledged && m.alerts[i].Acknowledged {
			continue
		}
		alerts = append(alerts, m.alerts[i])
	}
	return alerts
}

// Acknowledge marks a single alert as seen by an operator.
func (m *Monitor) Acknowledge(id uuid.UUID) error {
	now := m.clock.Now()
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.alerts {
		if m.alerts[i].ID == id {
			if !m.alerts[i].Acknowledged {
				m.alerts[i].Acknowledged = true
				m.alerts[i].AcknowledgedAt = &now
			}
			return nil
		}
	}
	return fmt.Errorf("%w: alert %s", apperrors.ErrNotFound, id)
}

// AcknowledgeComponent acknowledges every open alert for the component.
// Called by recovery actions that address the component's failure.
func (m *Monitor) AcknowledgeComponent(component domain.Component) int {
	now := m.clock.Now()
	m.mu.Lock()
	defer m.mu.Unlock()

	count := 0
	for i := range m.alerts {
		if m.alerts[i].Component == component && !m.alerts[i].Acknowledged {
			m.alerts[i].Acknowledged = true
			m.alerts[i].AcknowledgedAt = &now
			count++
		}
	}
	return count
}

// NotifyDeadLetter raises a critical alert for every record that enters the
// dead letter state. A dead letter is a permanently lost change, so it is
// always critical regardless of the overall outbox health.
func (m *Monitor) NotifyDeadLetter(_ context.Context, record *outboxDomain.ChangeRecord) {
	message := fmt.Sprintf("record %d (%s %s) moved to the dead letter queue", record.ID, record.EntityType, record.EntityID)
	if record.LastError != nil {
		message = fmt.Sprintf("%s: %s", message, *record.LastError)
	}

	m.mu.Lock()
	m.raiseAlertLocked(domain.ComponentOutbox, domain.HealthStatusCritical, "change record dead lettered", message)
	m.mu.Unlock()
}

func (m *Monitor) checkOutbox(ctx context.Context, now time.Time) domain.Check {
	check := domain.Check{Component: domain.ComponentOutbox, CheckedAt: now}

	depth, err := m.store.QueueDepth(ctx)
	if err != nil {
		check.Status = domain.HealthStatusCritical
		check.Message = fmt.Sprintf("failed to read queue depth: %v", err)
		return check
	}

	switch {
	case m.cfg.QueueHighWater > 0 && depth >= 2*m.cfg.QueueHighWater:
		check.Status = domain.HealthStatusCritical
		check.Message = fmt.Sprintf("queue depth %d is at least twice the high water mark %d", depth, m.cfg.QueueHighWater)
	case m.cfg.QueueHighWater > 0 && depth >= m.cfg.QueueHighWater:
		check.Status = domain.HealthStatusWarning
		check.Message = fmt.Sprintf("queue depth %d exceeds the high water mark %d", depth, m.cfg.QueueHighWater)
	default:
		check.Status = domain.HealthStatusHealthy
		check.Message = fmt.Sprintf("queue depth %d", depth)
	}
	return check
}

func (m *Monitor) checkNetwork(ctx context.Context, now time.Time) domain.Check {
	check := domain.Check{Component: domain.ComponentNetwork, CheckedAt: now}

	latencyMillis, err := m.remote.Ping(ctx)
	if err != nil {
		check.Status = domain.HealthStatusCritical
		check.Message = fmt.Sprintf("back office unreachable: %v", err)
		return check
	}

	engineStatus := m.engine.Status()
	latency := time.Duration(latencyMillis) * time.Millisecond
	switch {
	case m.cfg.NetworkFailureThreshold > 0 && engineStatus.ConsecutiveFailures >= m.cfg.NetworkFailureThreshold:
		check.Status = domain.HealthStatusWarning
		check.Message = fmt.Sprintf("%d consecutive submission failures", engineStatus.ConsecutiveFailures)
	case m.cfg.NetworkLatencyThreshold > 0 && latency >= m.cfg.NetworkLatencyThreshold:
		check.Status = domain.HealthStatusWarning
		check.Message = fmt.Sprintf("round trip latency %s exceeds %s", latency, m.cfg.NetworkLatencyThreshold)
	default:
		check.Status = domain.HealthStatusHealthy
		check.Message = fmt.Sprintf("round trip latency %s", latency)
	}
	return check
}

func (m *Monitor) checkEngine(now time.Time) domain.Check {
	check := domain.Check{Component: domain.ComponentEngine, CheckedAt: now}
	engineStatus := m.engine.Status()

	switch {
	case engineStatus.State == syncDomain.EngineStatePaused:
		check.Status = domain.HealthStatusCritical
		check.Message = fmt.Sprintf("engine paused: %s", engineStatus.LastError)
	case engineStatus.BackingOffSince != nil &&
		now.Sub(*engineStatus.BackingOffSince) >= m.cfg.BackoffWarningAfter:
		check.Status = domain.HealthStatusWarning
		check.Message = fmt.Sprintf("engine backing off since %s", engineStatus.BackingOffSince.Format(time.RFC3339))
	default:
		check.Status = domain.HealthStatusHealthy
		check.Message = fmt.Sprintf("engine %s", engineStatus.State)
	}
	return check
}

func (m *Monitor) checkStorage(ctx context.Context, now time.Time) domain.Check {
	check := domain.Check{Component: domain.ComponentStorage, CheckedAt: now}

	if err := m.pinger.PingContext(ctx); err != nil {
		check.Status = domain.HealthStatusCritical
		check.Message = fmt.Sprintf("local store unreachable: %v", err)
		return check
	}
	check.Status = domain.HealthStatusHealthy
	check.Message = "local store reachable"
	return check
}

// trackTransitionLocked raises an alert when a component leaves the healthy
// state and tracks how long it has been unhealthy. Recovery clears the timer
// but never acknowledges alerts.
func (m *Monitor) trackTransitionLocked(check domain.Check, now time.Time) {
	previous, seen := m.previous[check.Component]
	if !seen {
		previous = domain.HealthStatusHealthy
	}
	m.previous[check.Component] = check.Status

	if check.Status == domain.HealthStatusHealthy {
		delete(m.unhealthySince, check.Component)
		delete(m.lastAutoRun, check.Component)
		return
	}

	if _, ok := m.unhealthySince[check.Component]; !ok {
		m.unhealthySince[check.Component] = now
	}
	if previous == domain.HealthStatusHealthy {
		title := fmt.Sprintf("%s check %s", check.Component, check.Status)
		m.raiseAlertLocked(check.Component, check.Status, title, check.Message)
	}
}

func (m *Monitor) raiseAlertLocked(component domain.Component, severity domain.HealthStatus, title, message string) {
	alert := domain.Alert{
		ID:        uuid.Must(uuid.NewV7()),
		Component: component,
		Severity:  severity,
		Title:     title,
		Message:   message,
		CreatedAt: m.clock.Now(),
	}
	m.alerts = append(m.alerts, alert)

	m.logger.Warn("health alert raised",
		slog.String("component", string(component)),
		slog.String("severity", string(severity)),
		slog.String("title", title),
	)
}

// autoRecoveryDueLocked returns the components that have been unhealthy for
// longer than the grace period and have not had an automatic recovery run
// during the current incident.
func (m *Monitor) autoRecoveryDueLocked(now time.Time) []domain.Component {
	if m.executor == nil || m.cfg.AutoRecoveryGrace <= 0 {
		return nil
	}

	var due []domain.Component
	for component, since := range m.unhealthySince {
		if now.Sub(since) < m.cfg.AutoRecoveryGrace {
			continue
		}
		if lastRun, ok := m.lastAutoRun[component]; ok && now.Sub(lastRun) < m.cfg.AutoRecoveryGrace {
			continue
		}
		m.lastAutoRun[component] = now
		due = append(due, component)
	}
	return due
}

func (m *Monitor) runAutoRecovery(ctx context.Context, component domain.Component) {
	m.logger.Info("running automatic recovery", slog.String("component", string(component)))
	if err := m.executor.ExecuteAuto(ctx, component); err != nil {
		m.logger.Error("automatic recovery failed",
			slog.String("component", string(component)),
			slog.Any("error", err),
		)
	}
}
