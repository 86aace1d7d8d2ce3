// Package service provides technical services for synchronization operations.
//
// This package implements the remote transport used by the sync engine to
// submit batches of change records to the back office.
package service

import (
	"context"

	outboxDomain "github.com/allisson/possync/internal/outbox/domain"
	"github.com/allisson/possync/internal/sync/domain"
)

// RemoteClient defines the transport used to deliver change records to the
// back office. Implementations must be safe for concurrent use.
type RemoteClient interface {
	// SubmitBatch sends a batch of change records for the given terminal and
	// returns the per-record verdicts in the same order as the input.
	//
	// Transport failures (timeouts, connection errors, server errors) return
	// an error wrapping apperrors.ErrNetworkFailure. Authentication failures
	// return an error wrapping apperrors.ErrConfiguration. A successful call
	// may still carry per-record business rejections inside the BatchResult.
	SubmitBatch(ctx context.Context, terminalID string, records []*outboxDomain.ChangeRecord) (*domain.BatchResult, error)

	// Ping checks connectivity to the back office and returns the observed
	// round-trip latency. Used by health checks.
	Ping(ctx context.Context) (latencyMillis int64, err error)

	// Reset discards pooled connections so the next request establishes a
	// fresh one. Used by the reset_connection recovery action.
	Reset()
}
