// Package domain defines the health monitoring entities: component checks,
// aggregated reports, and operator alerts.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// HealthStatus is the severity of a component or of the whole terminal.
type HealthStatus string

const (
	HealthStatusHealthy  HealthStatus = "healthy"
	HealthStatusWarning  HealthStatus = "warning"
	HealthStatusCritical HealthStatus = "critical"
)

// severity orders statuses so reports can aggregate worst-of.
func (s HealthStatus) severity() int {
	switch s {
	case HealthStatusCritical:
		return 2
	case HealthStatusWarning:
		return 1
	default:
		return 0
	}
}

// WorseThan reports whether s is more severe than other.
func (s HealthStatus) WorseThan(other HealthStatus) bool {
	return s.severity() > other.severity()
}

// WorstOf returns the most severe of the given statuses. An empty input is
// healthy.
func WorstOf(statuses ...HealthStatus) HealthStatus {
	worst := HealthStatusHealthy
	for _, status := range statuses {
		if status.WorseThan(worst) {
			worst = status
		}
	}
	return worst
}

// Component identifies one monitored subsystem.
type Component string

const (
	ComponentOutbox  Component = "outbox"
	ComponentNetwork Component = "network"
	ComponentEngine  Component = "engine"
	ComponentStorage Component = "storage"
)

// Components lists every monitored subsystem in report order.
func Components() []Component {
	return []Component{ComponentOutbox, ComponentNetwork, ComponentEngine, ComponentStorage}
}

// Check is the outcome of probing one component.
type Check struct {
	Component Component    `json:"component"`
	Status    HealthStatus `json:"status"`
	Message   string       `json:"message"`
	CheckedAt time.Time    `json:"checked_at"`
}

// Report aggregates the component checks taken in one monitoring pass.
// Overall is the worst component status.
type Report struct {
	Overall   HealthStatus `json:"overall"`
	Checks    []Check      `json:"checks"`
	CheckedAt time.Time    `json:"checked_at"`
}

// NewReport builds a report from component checks, computing the overall
// status.
func NewReport(checkedAt time.Time, checks []Check) Report {
	statuses := make([]HealthStatus, 0, len(checks))
	for _, check := range checks {
		statuses = append(statuses, check.Status)
	}
	return Report{
		Overall:   WorstOf(statuses...),
		Checks:    checks,
		CheckedAt: checkedAt,
	}
}

// Alert is an operator-facing notification about a component that left the
// healthy state. Severity is warning or critical, never healthy. Alerts stay
// visible until an operator acknowledges them, even if the component recovers
// on its own.
type Alert struct {
	ID             uuid.UUID    `json:"id"`
	Component      Component    `json:"component"`
	Severity       HealthStatus `json:"severity"`
	Title          string       `json:"title"`
	Message        string       `json:"message"`
	CreatedAt      time.Time    `json:"created_at"`
	Acknowledged   bool         `json:"acknowledged"`
	AcknowledgedAt *time.Time   `json:"acknowledged_at"`
}
