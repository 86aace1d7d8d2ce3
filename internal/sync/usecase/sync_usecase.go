// Package usecase implements the sync engine: the background process that
// drains the outbox, submits batches to the back office, and applies retry
// backoff when the network is down.
package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/allisson/possync/internal/clock"
	apperrors "github.com/allisson/possync/internal/errors"
	"github.com/allisson/possync/internal/metrics"
	outboxUsecase "github.com/allisson/possync/internal/outbox/usecase"
	"github.com/allisson/possync/internal/sync/domain"
	"github.com/allisson/possync/internal/sync/service"
)

// EngineConfig carries the tunables for the sync engine.
type EngineConfig struct {
	TerminalID   string
	Interval     time.Duration
	MaxBatchSize int
	BaseDelay    time.Duration
	MaxDelay     time.Duration
}

// Engine drains the outbox in the background. A single goroutine owns the
// drain loop; ForceSync and Status are safe to call from any goroutine.
type Engine struct {
	cfg         EngineConfig
	store       outboxUsecase.Store
	remote      service.RemoteClient
	clock       clock.Clock
	logger      *slog.Logger
	syncMetrics metrics.SyncMetrics

	// snapshot holds the latest published SyncMetrics; readers never block.
	snapshot atomic.Pointer[domain.SyncMetrics]

	// forceCh has capacity one so a burst of ForceSync calls coalesces into
	// a single extra drain.
	forceCh chan struct{}

	mu                  sync.Mutex
	state               domain.EngineState
	errorCount          int64
	successCount        int64
	consecutiveFailures int
	syncLatency         time.Duration
	networkLatency      time.Duration
	lastSyncAt          *time.Time
	lastError           string
	backingOffSince     *time.Time
	retryAt             time.Time
	online              bool

	runOnce sync.Once
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewEngine creates a sync engine. Start must be called before the engine
// does any work.
func NewEngine(
	cfg EngineConfig,
	store outboxUsecase.Store,
	remote service.RemoteClient,
	clk clock.Clock,
	logger *slog.Logger,
	syncMetrics metrics.SyncMetrics,
) *Engine {
	engine := &Engine{
		cfg:         cfg,
		store:       store,
		remote:      remote,
		clock:       clk,
		logger:      logger,
		syncMetrics: syncMetrics,
		forceCh:     make(chan struct{}, 1),
		state:       domain.EngineStateIdle,
		online:      true,
		done:        make(chan struct{}),
	}
	engine.publish(0)
	return engine
}

// Start reconciles records stranded by a previous crash and launches the
// drain loop. Returns the number of reconciled records.
func (e *Engine) Start(ctx context.Context) (int64, error) {
	reconciled, err := e.store.ReconcileInFlight(ctx)
	if err != nil {
		return 0, apperrors.Wrap(err, "failed to reconcile in flight records")
	}
	if reconciled > 0 {
		e.logger.Info("returned stranded records to the retry pool",
			slog.String("terminal_id", e.cfg.TerminalID),
			slog.Int64("count", reconciled),
		)
	}

	e.runOnce.Do(func() {
		runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		e.cancel = cancel
		go e.run(runCtx)
	})
	return reconciled, nil
}

// Stop shuts the drain loop down and waits for it to finish.
func (e *Engine) Stop() {
	if e.cancel == nil {
		return
	}
	e.cancel()
	<-e.done
}

// ForceSync requests an immediate drain. Calls made while a request is
// already queued coalesce into that request.
func (e *Engine) ForceSync() {
	select {
	case e.forceCh <- struct{}{}:
	default:
	}
}

// Resume lifts a configuration pause and requests a drain. No-op when the
// engine is not paused.
func (e *Engine) Resume() {
	e.mu.Lock()
	if e.state != domain.EngineStatePaused {
		e.mu.Unlock()
		return
	}
	e.state = domain.EngineStateIdle
	e.lastError = ""
	e.mu.Unlock()

	e.logger.Info("sync engine resumed", slog.String("terminal_id", e.cfg.TerminalID))
	e.ForceSync()
}

// Status returns the latest published metrics snapshot.
func (e *Engine) Status() domain.SyncMetrics {
	return *e.snapshot.Load()
}

func (e *Engine) run(ctx context.Context) {
	defer close(e.done)

	ticker := time.NewTicker(e.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.drain(ctx, false)
		case <-e.forceCh:
			e.drain(ctx, true)
		}
	}
}

// SyncNow runs a single synchronous drain, bypassing any backoff wait, and
// returns the failure that stopped the cycle. Used by the force-sync command
// and by tests.
func (e *Engine) SyncNow(ctx context.Context) error {
	return e.drain(ctx, true)
}

// drain submits batches until the retry pool is empty or a failure stops the
// cycle. forced drains skip the backoff wait. The returned error is the cause
// that stopped the cycle; a skipped or fully drained cycle returns nil.
func (e *Engine) drain(ctx context.Context, forced bool) error {
	e.mu.Lock()
	if e.state == domain.EngineStatePaused {
		e.mu.Unlock()
		return nil
	}
	if !forced && e.clock.Now().Before(e.retryAt) {
		e.state = domain.EngineStateBackingOff
		e.mu.Unlock()
		e.publishWithDepth(ctx)
		return nil
	}
	e.state = domain.EngineStateDraining
	e.mu.Unlock()
	e.publishWithDepth(ctx)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		batch, err := e.store.NextBatch(ctx, e.cfg.MaxBatchSize)
		if err != nil {
			e.recordFailure(ctx, 0, err)
			return err
		}
		if len(batch) == 0 {
			e.mu.Lock()
			e.state = domain.EngineStateIdle
			e.backingOffSince = nil
			e.mu.Unlock()
			e.publishWithDepth(ctx)
			return nil
		}

		ids := make([]int64, 0, len(batch))
		for _, record := range batch {
			ids = append(ids, record.ID)
		}
		if _, err := e.store.MarkInFlight(ctx, ids); err != nil {
			e.recordFailure(ctx, 0, err)
			return err
		}

		result, err := e.remote.SubmitBatch(ctx, e.cfg.TerminalID, batch)
		if err != nil {
			e.handleSubmitError(ctx, ids, err)
			return err
		}
		if err := e.handleSubmitResult(ctx, result); err != nil {
			return err
		}
	}
}

// handleSubmitError classifies a whole-batch failure. Network failures back
// off, configuration failures pause the engine until an operator intervenes.
func (e *Engine) handleSubmitError(ctx context.Context, ids []int64, cause error) {
	if err := e.store.MarkFailed(ctx, ids, cause); err != nil {
		e.logger.Error("failed to record submission failure",
			slog.String("terminal_id", e.cfg.TerminalID),
			slog.Any("error", err),
		)
	}

	if apperrors.Is(cause, apperrors.ErrConfiguration) {
		e.mu.Lock()
		e.state = domain.EngineStatePaused
		e.lastError = cause.Error()
		e.online = true
		e.mu.Unlock()
		e.publishWithDepth(ctx)

		e.logger.Error("sync engine paused on configuration error",
			slog.String("terminal_id", e.cfg.TerminalID),
			slog.Any("error", cause),
		)
		return
	}

	e.syncMetrics.RecordSubmitDuration(ctx, e.cfg.TerminalID, 0, "network_error")
	e.recordFailure(ctx, len(ids), cause)
}

// handleSubmitResult applies the back office verdicts. Retryable rejections
// go back to the retry pool; permanent ones are dead-lettered immediately.
// A nil return means the drain loop should fetch the next batch.
func (e *Engine) handleSubmitResult(ctx context.Context, result *domain.BatchResult) error {
	accepted := result.AcceptedIDs()
	if len(accepted) > 0 {
		if _, err := e.store.MarkSynced(ctx, accepted); err != nil {
			e.recordFailure(ctx, 0, err)
			return err
		}
	}

	rejected := result.RejectedResults()
	for _, verdict := range rejected {
		reason := verdict.Reason
		if reason == "" {
			reason = "rejected by back office"
		}
		if verdict.Retryable {
			cause := fmt.Errorf("%w: %s", apperrors.ErrBusinessRejection, reason)
			if err := e.store.MarkFailed(ctx, []int64{verdict.RecordID}, cause); err != nil {
				e.recordFailure(ctx, 0, err)
				return err
			}
			e.logger.Warn("record rejected by back office, will retry",
				slog.String("terminal_id", e.cfg.TerminalID),
				slog.Int64("record_id", verdict.RecordID),
				slog.String("reason", reason),
			)
			continue
		}
		if err := e.store.ForceDeadLetter(ctx, verdict.RecordID, reason); err != nil {
			e.recordFailure(ctx, 0, err)
			return err
		}
		e.logger.Warn("record permanently rejected by back office",
			slog.String("terminal_id", e.cfg.TerminalID),
			slog.Int64("record_id", verdict.RecordID),
			slog.String("reason", reason),
		)
	}

	e.syncMetrics.RecordSubmitDuration(ctx, e.cfg.TerminalID, result.Latency, "success")
	if len(rejected) > 0 {
		e.syncMetrics.RecordErrors(ctx, e.cfg.TerminalID, int64(len(rejected)))
	}

	now := e.clock.Now()
	e.mu.Lock()
	e.successCount += int64(len(accepted))
	e.errorCount += int64(len(rejected))
	e.consecutiveFailures = 0
	e.retryAt = time.Time{}
	e.backingOffSince = nil
	e.networkLatency = result.Latency
	e.lastSyncAt = &now
	e.lastError = ""
	e.online = true
	e.mu.Unlock()
	return nil
}

// recordFailure counts a failed cycle and schedules the next retry with
// exponential backoff and jitter.
func (e *Engine) recordFailure(ctx context.Context, failedRecords int, cause error) {
	if failedRecords > 0 {
		e.syncMetrics.RecordErrors(ctx, e.cfg.TerminalID, int64(failedRecords))
	}

	now := e.clock.Now()
	e.mu.Lock()
	e.errorCount += int64(failedRecords)
	e.consecutiveFailures++
	e.lastError = cause.Error()
	e.online = !apperrors.Is(cause, apperrors.ErrNetworkFailure)
	delay := backoffDelay(e.cfg.BaseDelay, e.cfg.MaxDelay, e.consecutiveFailures)
	e.retryAt = now.Add(delay)
	if e.backingOffSince == nil {
		e.backingOffSince = &now
	}
	e.state = domain.EngineStateBackingOff
	failures := e.consecutiveFailures
	e.mu.Unlock()
	e.publishWithDepth(ctx)

	e.logger.Warn("sync cycle failed, backing off",
		slog.String("terminal_id", e.cfg.TerminalID),
		slog.Int("consecutive_failures", failures),
		slog.Duration("retry_in", delay),
		slog.Any("error", cause),
	)
}

// backoffDelay computes min(base*2^(failures-1), max) plus up to 10% jitter
// so a fleet of terminals does not retry in lockstep.
func backoffDelay(base, max time.Duration, failures int) time.Duration {
	if failures < 1 {
		failures = 1
	}
	delay := base
	for i := 1; i < failures; i++ {
		delay *= 2
		if delay >= max {
			delay = max
			break
		}
	}
	if delay > max {
		delay = max
	}
	if jitterRange := int64(delay / 10); jitterRange > 0 {
		delay += time.Duration(rand.Int63n(jitterRange + 1))
	}
	return delay
}

// publishWithDepth refreshes the queue depth and the age of the oldest
// waiting record from the store and publishes a fresh snapshot.
func (e *Engine) publishWithDepth(ctx context.Context) {
	depth, err := e.store.QueueDepth(ctx)
	if err != nil {
		depth = e.snapshot.Load().QueueDepth
	}
	age, err := e.store.OldestPendingAge(ctx)
	if err != nil {
		age = e.snapshot.Load().SyncLatency
	}
	e.mu.Lock()
	e.syncLatency = age
	e.mu.Unlock()
	e.publish(depth)
}

func (e *Engine) publish(queueDepth int) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	e.mu.Lock()
	snapshot := &domain.SyncMetrics{
		TerminalID:          e.cfg.TerminalID,
		State:               e.state,
		QueueDepth:          queueDepth,
		SyncLatency:         e.syncLatency,
		NetworkLatency:      e.networkLatency,
		ErrorCount:          e.errorCount,
		SuccessCount:        e.successCount,
		ConsecutiveFailures: e.consecutiveFailures,
		MemoryUsage:         memStats.HeapAlloc,
		LastSyncAt:          e.lastSyncAt,
		LastError:           e.lastError,
		BackingOffSince:     e.backingOffSince,
		IsOnline:            e.online,
	}
	e.mu.Unlock()
	e.snapshot.Store(snapshot)
}
