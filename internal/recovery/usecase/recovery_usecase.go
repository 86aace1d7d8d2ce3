// Package usecase implements the recovery orchestrator: a fixed catalog of
// corrective actions operators and the health monitor can run.
package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/allisson/possync/internal/clock"
	apperrors "github.com/allisson/possync/internal/errors"
	healthDomain "github.com/allisson/possync/internal/health/domain"
	"github.com/allisson/possync/internal/recovery/domain"
)

// EngineController exposes the engine operations recovery actions use.
type EngineController interface {
	ForceSync()
	Resume()
}

// OutboxController exposes the outbox operations recovery actions use.
type OutboxController interface {
	ReconcileInFlight(ctx context.Context) (int64, error)
	ClearDeadLetters(ctx context.Context) (int64, error)
}

// ConnectionResetter drops pooled connections to the back office.
type ConnectionResetter interface {
	Reset()
}

// AlertAcknowledger closes open alerts for a component once a recovery
// action has addressed it.
type AlertAcknowledger interface {
	AcknowledgeComponent(component healthDomain.Component) int
}

// Orchestrator runs recovery actions. The catalog is fixed at build time.
type Orchestrator struct {
	engine  EngineController
	outbox  OutboxController
	remote  ConnectionResetter
	monitor AlertAcknowledger
	clock   clock.Clock
	logger  *slog.Logger
	catalog []domain.Action
}

// NewOrchestrator creates a recovery orchestrator.
func NewOrchestrator(
	engine EngineController,
	outbox OutboxController,
	remote ConnectionResetter,
	monitor AlertAcknowledger,
	clk clock.Clock,
	logger *slog.Logger,
) *Orchestrator {
	return &Orchestrator{
		engine:  engine,
		outbox:  outbox,
		remote:  remote,
		monitor: monitor,
		clock:   clk,
		logger:  logger,
		catalog: []domain.Action{
			{
				ID:          domain.ActionFlushQueue,
				Name:        "Flush queue",
				Description: "Resume the sync engine if paused and force an immediate drain of the outbox.",
				Component:   healthDomain.ComponentOutbox,
				AutoExecute: true,
			},
			{
				ID:          domain.ActionResetConnection,
				Name:        "Reset connection",
				Description: "Drop pooled connections to the back office and retry submission.",
				Component:   healthDomain.ComponentNetwork,
				AutoExecute: true,
			},
			{
				ID:          domain.ActionReconcileInFlight,
				Name:        "Reconcile in flight records",
				Description: "Return records stranded in flight to the retry pool.",
				Component:   healthDomain.ComponentStorage,
				AutoExecute: true,
			},
			{
				ID:             domain.ActionClearDeadLetters,
				Name:           "Clear dead letters",
				Description:    "Permanently delete every dead letter record. The discarded changes never reach the back office.",
				Component:      healthDomain.ComponentOutbox,
				RequireConfirm: true,
			},
		},
	}
}

// Actions returns the recovery catalog.
func (o *Orchestrator) Actions() []domain.Action {
	return append([]domain.Action(nil), o.catalog...)
}

// Execute runs a recovery action on behalf of an operator. Destructive
// actions refuse to run without confirm. Open alerts for the action's
// component are acknowledged on success.
func (o *Orchestrator) Execute(ctx context.Context, id domain.ActionID, confirm bool) (*domain.Result, error) {
	action, err := o.findAction(id)
	if err != nil {
		return nil, err
	}
	if action.RequireConfirm && !confirm {
		return nil, fmt.Errorf("%w: action %s requires confirmation", apperrors.ErrInvalidInput, id)
	}

	message, err := o.runAction(ctx, action.ID)
	if err != nil {
		return nil, err
	}

	acknowledged := o.monitor.AcknowledgeComponent(action.Component)
	o.logger.Info("recovery action executed",
		slog.String("action", string(action.ID)),
		slog.String("component", string(action.Component)),
		slog.Int("acknowledged_alerts", acknowledged),
	)

	return &domain.Result{
		ActionID:           action.ID,
		Message:            message,
		ExecutedAt:         o.clock.Now(),
		AcknowledgedAlerts: acknowledged,
	}, nil
}

// ExecuteAuto runs the automatic recovery action mapped to the unhealthy
// component. Destructive actions are never run automatically.
func (o *Orchestrator) ExecuteAuto(ctx context.Context, component healthDomain.Component) error {
	var id domain.ActionID
	switch component {
	case healthDomain.ComponentOutbox, healthDomain.ComponentEngine:
		id = domain.ActionFlushQueue
	case healthDomain.ComponentNetwork:
		id = domain.ActionResetConnection
	case healthDomain.ComponentStorage:
		id = domain.ActionReconcileInFlight
	default:
		return fmt.Errorf("%w: no automatic recovery for component %s", apperrors.ErrNotFound, component)
	}

	action, err := o.findAction(id)
	if err != nil {
		return err
	}
	if !action.AutoExecute {
		return fmt.Errorf("%w: action %s cannot run automatically", apperrors.ErrForbidden, id)
	}

	o.logger.Info("automatic recovery action",
		slog.String("action", string(id)),
		slog.String("component", string(component)),
	)
	_, err = o.runAction(ctx, id)
	return err
}

func (o *Orchestrator) findAction(id domain.ActionID) (domain.Action, error) {
	for _, action := range o.catalog {
		if action.ID == id {
			return action, nil
		}
	}
	return domain.Action{}, fmt.Errorf("%w: recovery action %s", apperrors.ErrNotFound, id)
}

func (o *Orchestrator) runAction(ctx context.Context, id domain.ActionID) (string, error) {
	switch id {
	case domain.ActionFlushQueue:
		o.engine.Resume()
		o.engine.ForceSync()
		return "sync engine resumed and drain requested", nil

	case domain.ActionResetConnection:
		o.remote.Reset()
		o.engine.ForceSync()
		return "connection pool reset and drain requested", nil

	case domain.ActionReconcileInFlight:
		count, err := o.outbox.ReconcileInFlight(ctx)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%d records returned to the retry pool", count), nil

	case domain.ActionClearDeadLetters:
		count, err := o.outbox.ClearDeadLetters(ctx)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%d dead letter records deleted", count), nil

	default:
		return "", fmt.Errorf("%w: recovery action %s", apperrors.ErrNotFound, id)
	}
}
