// Package command contains write operations (CQRS - Commands).
// Commands are responsible for changing the state of the system.
package command

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/collegeconnect/collegeconnect-hub/internal/domain/lifecycle"
	"github.com/collegeconnect/collegeconnect-hub/internal/domain/notification"
	"github.com/collegeconnect/collegeconnect-hub/internal/domain/shared"
	"github.com/collegeconnect/collegeconnect-hub/internal/domain/user"
	"github.com/collegeconnect/collegeconnect-hub/pkg/logger"
	"github.com/collegeconnect/collegeconnect-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// RUN ROLE SWEEP COMMAND
// Applies the batch role transition: students in their final year become
// seniors, graduated students and seniors become alumni.
// ══════════════════════════════════════════════════════════════════════════════

// Sweep triggers.
const (
	TriggerScheduler = "scheduler"
	TriggerAdmin     = "admin"
	TriggerManual    = "manual"
)

// RunRoleSweepCommand contains the parameters of one sweep.
type RunRoleSweepCommand struct {
	// Today is the evaluation date. Zero means the handler's clock.
	Today time.Time

	// TriggeredBy is TriggerScheduler or TriggerAdmin.
	TriggeredBy string

	// CorrelationID for tracing.
	CorrelationID string
}

// RunRoleSweepResult contains the outcome of a sweep.
type RunRoleSweepResult struct {
	RunID    string
	Today    time.Time
	Summary  lifecycle.Summary
	Duration time.Duration

	// NotificationsFailed counts emails that could not be delivered.
	NotificationsFailed int
}

// SweepLock serializes sweeps across processes. Acquire returns a release
// function, or shared.ErrSweepInProgress while another sweep holds the lock.
type SweepLock interface {
	Acquire(ctx context.Context) (func(context.Context) error, error)
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// RunRoleSweepHandlerConfig contains configuration for the handler.
type RunRoleSweepHandlerConfig struct {
	// NotifyRoleChanges sends an email to every transitioned user.
	NotifyRoleChanges bool
}

// RunRoleSweepHandler handles RunRoleSweepCommand.
type RunRoleSweepHandler struct {
	planner        *lifecycle.Planner
	users          user.Repository
	dispatcher     notification.Dispatcher
	eventPublisher shared.EventPublisher
	lock           SweepLock
	clock          timeutil.Clock
	logger         *logger.Logger
	config         RunRoleSweepHandlerConfig
}

// NewRunRoleSweepHandler creates a new RunRoleSweepHandler.
// lock, dispatcher and eventPublisher are optional.
func NewRunRoleSweepHandler(
	planner *lifecycle.Planner,
	users user.Repository,
	dispatcher notification.Dispatcher,
	eventPublisher shared.EventPublisher,
	lock SweepLock,
	clock timeutil.Clock,
	log *logger.Logger,
	config RunRoleSweepHandlerConfig,
) *RunRoleSweepHandler {
	if clock == nil {
		clock = timeutil.NewSystemClock(time.UTC)
	}
	if log == nil {
		log = logger.Nop()
	}
	return &RunRoleSweepHandler{
		planner:        planner,
		users:          users,
		dispatcher:     dispatcher,
		eventPublisher: eventPublisher,
		lock:           lock,
		clock:          clock,
		logger:         log.With(logger.Component("role_sweep")),
		config:         config,
	}
}

// Handle plans and applies the sweep. A failure to select a cohort aborts the
// whole sweep; a failure to persist one user is logged, counted in
// Summary.Failed and does not stop the others. Emails are best-effort.
func (h *RunRoleSweepHandler) Handle(ctx context.Context, cmd RunRoleSweepCommand) (*RunRoleSweepResult, error) {
	startedAt := h.clock.Now()
	today := cmd.Today
	if today.IsZero() {
		today = startedAt
	}

	result := &RunRoleSweepResult{
		RunID: uuid.NewString(),
		Today: today,
	}
	log := h.logger.With(
		logger.String("run_id", result.RunID),
		logger.String("triggered_by", cmd.TriggeredBy),
	)
	if cmd.CorrelationID != "" {
		log = log.WithRequestID(cmd.CorrelationID)
	}

	if h.lock != nil {
		release, err := h.lock.Acquire(ctx)
		if err != nil {
			if errors.Is(err, shared.ErrSweepInProgress) {
				return nil, err
			}
			return nil, fmt.Errorf("run_role_sweep: acquire lock: %w", err)
		}
		defer func() {
			// ctx may already be cancelled; the lock must still be released
			if err := release(context.WithoutCancel(ctx)); err != nil {
				log.Warn("failed to release sweep lock", logger.Err(err))
			}
		}()
	}

	plan, err := h.planner.Plan(ctx, today)
	if err != nil {
		log.Error("role sweep planning failed", logger.Err(err))
		return nil, fmt.Errorf("run_role_sweep: %w", err)
	}

	log.Info("role sweep started",
		logger.String("today", timeutil.FormatDate(today)),
		logger.Int("candidates", len(plan.Assignments)),
	)

	for _, a := range plan.Assignments {
		if err := ctx.Err(); err != nil {
			result.Duration = h.clock.Now().Sub(startedAt)
			return result, fmt.Errorf("run_role_sweep: interrupted: %w", err)
		}

		ok := h.apply(ctx, log, a, result, cmd.CorrelationID)
		if ok {
			result.Summary.Count(a.Cohort)
		} else {
			result.Summary.Failed++
		}
	}

	result.Duration = h.clock.Now().Sub(startedAt)
	s := result.Summary

	log.Info("role sweep completed",
		logger.Int("students_to_senior", s.StudentsToSenior),
		logger.Int("seniors_to_alumni", s.SeniorsToAlumni),
		logger.Int("overdue", s.Overdue),
		logger.Int("total_upgraded", s.TotalUpgraded),
		logger.Int("failed", s.Failed),
		logger.Int("notifications_failed", result.NotificationsFailed),
		logger.Latency(result.Duration),
	)

	evt := shared.NewSweepCompletedEvent(result.RunID, s.StudentsToSenior, s.SeniorsToAlumni, s.Overdue, s.Failed, cmd.TriggeredBy, h.clock.Now())
	evt.BaseEvent = evt.WithCorrelationID(cmd.CorrelationID)
	h.publish(log, evt)

	return result, nil
}

// apply persists one assignment and sends its notification. It reports
// whether the mutation was stored.
func (h *RunRoleSweepHandler) apply(ctx context.Context, log *logger.Logger, a lifecycle.Assignment, result *RunRoleSweepResult, correlationID string) bool {
	now := h.clock.Now()
	ulog := log.With(
		logger.UserID(a.User.ID),
		logger.Cohort(string(a.Cohort)),
		logger.String("from_role", string(a.FromRole)),
		logger.String("to_role", string(a.ToRole)),
	)

	// the planned user stays untouched so a failure leaves no partial state behind
	u := a.User.Clone()
	changed, err := u.ApplyStanding(a.ToRole, a.NewCurrentYear, a.Graduated, now)
	if err != nil {
		ulog.Error("role transition rejected", logger.Err(err))
		return false
	}

	if err := h.users.UpdateStanding(ctx, u); err != nil {
		ulog.Error("failed to persist role transition", logger.Err(err))
		return false
	}

	ulog.Info("role transitioned", logger.Int("current_year", u.CurrentYear))

	if !changed {
		return true
	}

	evt := shared.NewRoleChangedEvent(u.ID, string(a.FromRole), string(a.ToRole), u.CurrentYear, u.Graduated, shared.SourceSweep, now)
	evt.BaseEvent = evt.WithCorrelationID(correlationID)
	h.publish(ulog, evt)

	if h.config.NotifyRoleChanges && h.dispatcher != nil {
		if err := h.dispatcher.SendRoleChangeEmail(ctx, u, a.FromRole, a.ToRole); err != nil {
			result.NotificationsFailed++
			ulog.Warn("failed to send role change email", logger.Err(err))
		}
	}

	return true
}

func (h *RunRoleSweepHandler) publish(log *logger.Logger, evt shared.Event) {
	if h.eventPublisher == nil {
		return
	}
	if err := h.eventPublisher.Publish(evt); err != nil {
		log.Warn("failed to publish event",
			logger.String("event_type", string(evt.EventType())),
			logger.Err(err),
		)
	}
}
