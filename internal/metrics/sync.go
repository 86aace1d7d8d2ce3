package metrics

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// SyncMetrics defines the interface for recording sync pipeline metrics.
// Implementations track record outcomes, submission round trips, and queue
// depth per terminal for observability.
type SyncMetrics interface {
	// RecordSynced counts records acknowledged by the back office.
	RecordSynced(ctx context.Context, terminalID string, count int64)

	// RecordErrors counts failed submission attempts (network or rejection).
	RecordErrors(ctx context.Context, terminalID string, count int64)

	// RecordDeadLetter counts records permanently excluded from retry.
	RecordDeadLetter(ctx context.Context, terminalID string)

	// RecordSubmitDuration records a batch submission round trip.
	// Status examples: "success", "network_error", "rejected".
	RecordSubmitDuration(ctx context.Context, terminalID string, duration time.Duration, status string)

	// SetQueueDepth records the current pending+in_flight queue depth.
	SetQueueDepth(ctx context.Context, terminalID string, depth int64)
}

// syncMetrics implements SyncMetrics using OpenTelemetry metrics.
type syncMetrics struct {
	syncedCounter     metric.Int64Counter
	errorCounter      metric.Int64Counter
	deadLetterCounter metric.Int64Counter
	submitHisto       metric.Float64Histogram
	queueDepthGauge   metric.Int64Gauge
}

// NewSyncMetrics creates a new SyncMetrics implementation using the provided meter provider.
// The namespace parameter is used as a prefix for all metric names (e.g., "possync").
// Returns error if meters cannot be initialized.
func NewSyncMetrics(meterProvider metric.MeterProvider, namespace string) (SyncMetrics, error) {
	meter := meterProvider.Meter(namespace)

	syncedCounter, err := meter.Int64Counter(
		fmt.Sprintf("%s_records_synced_total", namespace),
		metric.WithDescription("Total number of change records acknowledged by the back office"),
		metric.WithUnit("{record}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create synced counter: %w", err)
	}

	errorCounter, err := meter.Int64Counter(
		fmt.Sprintf("%s_sync_errors_total", namespace),
		metric.WithDescription("Total number of failed submission attempts"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create error counter: %w", err)
	}

	deadLetterCounter, err := meter.Int64Counter(
		fmt.Sprintf("%s_dead_letters_total", namespace),
		metric.WithDescription("Total number of change records moved to the dead letter state"),
		metric.WithUnit("{record}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create dead letter counter: %w", err)
	}

	submitHisto, err := meter.Float64Histogram(
		fmt.Sprintf("%s_submit_duration_seconds", namespace),
		metric.WithDescription("Duration of batch submissions to the back office in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create submit duration histogram: %w", err)
	}

	queueDepthGauge, err := meter.Int64Gauge(
		fmt.Sprintf("%s_queue_depth", namespace),
		metric.WithDescription("Current number of change records waiting to sync"),
		metric.WithUnit("{record}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create queue depth gauge: %w", err)
	}

	return &syncMetrics{
		syncedCounter:     syncedCounter,
		errorCounter:      errorCounter,
		deadLetterCounter: deadLetterCounter,
		submitHisto:       submitHisto,
		queueDepthGauge:   queueDepthGauge,
	}, nil
}

// RecordSynced increments the synced counter with the terminal label.
func (s *syncMetrics) RecordSynced(ctx context.Context, terminalID string, count int64) {
	s.syncedCounter.Add(ctx, count,
		metric.WithAttributes(attribute.String("terminal_id", terminalID)),
	)
}

// RecordErrors increments the error counter with the terminal label.
func (s *syncMetrics) RecordErrors(ctx context.Context, terminalID string, count int64) {
	s.errorCounter.Add(ctx, count,
		metric.WithAttributes(attribute.String("terminal_id", terminalID)),
	)
}

// RecordDeadLetter increments the dead letter counter with the terminal label.
func (s *syncMetrics) RecordDeadLetter(ctx context.Context, terminalID string) {
	s.deadLetterCounter.Add(ctx, 1,
		metric.WithAttributes(attribute.String("terminal_id", terminalID)),
	)
}

// RecordSubmitDuration records the submission round trip in seconds with terminal and status labels.
func (s *syncMetrics) RecordSubmitDuration(
	ctx context.Context,
	terminalID string,
	duration time.Duration,
	status string,
) {
	s.submitHisto.Record(ctx, duration.Seconds(),
		metric.WithAttributes(
			attribute.String("terminal_id", terminalID),
			attribute.String("status", status),
		),
	)
}

// SetQueueDepth records the current queue depth with the terminal label.
func (s *syncMetrics) SetQueueDepth(ctx context.Context, terminalID string, depth int64) {
	s.queueDepthGauge.Record(ctx, depth,
		metric.WithAttributes(attribute.String("terminal_id", terminalID)),
	)
}

// NoOpSyncMetrics is a no-op implementation of SyncMetrics for when metrics are disabled.
type NoOpSyncMetrics struct{}

// NewNoOpSyncMetrics creates a no-op SyncMetrics implementation.
func NewNoOpSyncMetrics() SyncMetrics {
	return &NoOpSyncMetrics{}
}

// RecordSynced does nothing when metrics are disabled.
func (n *NoOpSyncMetrics) RecordSynced(ctx context.Context, terminalID string, count int64) {
	// No-op
}

// RecordErrors does nothing when metrics are disabled.
func (n *NoOpSyncMetrics) RecordErrors(ctx context.Context, terminalID string, count int64) {
	// No-op
}

// RecordDeadLetter does nothing when metrics are disabled.
func (n *NoOpSyncMetrics) RecordDeadLetter(ctx context.Context, terminalID string) {
	// No-op
}

// RecordSubmitDuration does nothing when metrics are disabled.
func (n *NoOpSyncMetrics) RecordSubmitDuration(
	ctx context.Context,
	terminalID string,
	duration time.Duration,
	status string,
) {
	// No-op
}

// SetQueueDepth does nothing when metrics are disabled.
func (n *NoOpSyncMetrics) SetQueueDepth(ctx context.Context, terminalID string, depth int64) {
	// No-op
}
