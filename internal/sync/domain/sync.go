package domain

import (
	"time"
)

// EngineState describes what the sync engine is currently doing.
type EngineState string

const (
	EngineStateIdle       EngineState = "idle"
	EngineStateDraining   EngineState = "draining"
	EngineStateBackingOff EngineState = "backing_off"
	EngineStatePaused     EngineState = "paused"
)

// SyncMetrics is a point-in-time snapshot of the engine's observable state.
// Snapshots are immutable; the engine publishes a fresh value on every change.
type SyncMetrics struct {
	TerminalID          string        `json:"terminal_id"`
	State               EngineState   `json:"state"`
	QueueDepth          int           `json:"queue_depth"`
	SyncLatency         time.Duration `json:"sync_latency"`
	NetworkLatency      time.Duration `json:"network_latency"`
	ErrorCount          int64         `json:"error_count"`
	SuccessCount        int64         `json:"success_count"`
	ConsecutiveFailures int           `json:"consecutive_failures"`
	MemoryUsage         uint64        `json:"memory_usage"`
	LastSyncAt          *time.Time    `json:"last_sync_at"`
	LastError           string        `json:"last_error"`
	BackingOffSince     *time.Time    `json:"backing_off_since"`
	IsOnline            bool          `json:"is_online"`
}

// RecordResult carries the back office's verdict for a single change record.
// A rejection is retryable when the back office refused the record for a
// transient business reason (a conflict that a later submission can win);
// non-retryable rejections are permanently invalid.
type RecordResult struct {
	RecordID   int64  `json:"record_id"`
	Accepted   bool   `json:"accepted"`
	Duplicate  bool   `json:"duplicate"`
	Rejected   bool   `json:"rejected"`
	Retryable  bool   `json:"retryable"`
	Reason     string `json:"reason"`
	EntityID   string `json:"entity_id"`
	EntityType string `json:"entity_type"`
}

// BatchResult is the outcome of submitting one batch of change records.
type BatchResult struct {
	Results []RecordResult `json:"results"`
	Latency time.Duration  `json:"latency"`
}

// AcceptedIDs returns the record IDs the back office applied or deduplicated.
// Duplicates count as accepted because the original submission already took
// effect remotely.
func (b BatchResult) AcceptedIDs() []int64 {
	ids := make([]int64, 0, len(b.Results))
	for _, result := range b.Results {
		if result.Accepted || result.Duplicate {
			ids = append(ids, result.RecordID)
		}
	}
	return ids
}

// RejectedResults returns the per-record results the back office refused for
// business reasons. These never succeed on retry.
func (b BatchResult) RejectedResults() []RecordResult {
	rejected := make([]RecordResult, 0)
	for _, result := range b.Results {
		if result.Rejected {
			rejected = append(rejected, result)
		}
	}
	return rejected
}
