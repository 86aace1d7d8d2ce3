// Package domain defines the recovery action catalog.
package domain

import (
	"time"

	healthDomain "github.com/allisson/possync/internal/health/domain"
)

// ActionID identifies one recovery action.
type ActionID string

const (
	// ActionFlushQueue resumes a paused engine and forces an immediate drain.
	ActionFlushQueue ActionID = "flush_queue"
	// ActionResetConnection drops pooled back office connections and retries.
	ActionResetConnection ActionID = "reset_connection"
	// ActionReconcileInFlight returns stranded in flight records to the retry pool.
	ActionReconcileInFlight ActionID = "reconcile_in_flight"
	// ActionClearDeadLetters deletes every dead letter record. Destructive.
	ActionClearDeadLetters ActionID = "clear_dead_letters"
)

// Action describes one entry in the recovery catalog.
type Action struct {
	ID          ActionID               `json:"id"`
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Component   healthDomain.Component `json:"component"`
	// AutoExecute marks actions the health monitor may run without an operator.
	AutoExecute bool `json:"auto_execute"`
	// RequireConfirm marks destructive actions that need explicit operator
	// confirmation.
	RequireConfirm bool `json:"require_confirm"`
}

// Result is the outcome of one executed recovery action.
type Result struct {
	ActionID           ActionID  `json:"action_id"`
	Message            string    `json:"message"`
	ExecutedAt         time.Time `json:"executed_at"`
	AcknowledgedAlerts int       `json:"acknowledged_alerts"`
}
