package command

import (
	"context"
	"fmt"
	"time"

	"github.com/collegeconnect/collegeconnect-hub/internal/domain/lifecycle"
	"github.com/collegeconnect/collegeconnect-hub/internal/domain/shared"
	"github.com/collegeconnect/collegeconnect-hub/internal/domain/user"
	"github.com/collegeconnect/collegeconnect-hub/pkg/logger"
	"github.com/collegeconnect/collegeconnect-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// UPDATE ACADEMIC YEARS COMMAND
// Profile save of admission/graduation years. Re-evaluates the role right
// away so a user who enters past years does not wait for the next sweep.
// ══════════════════════════════════════════════════════════════════════════════

// UpdateAcademicYearsCommand contains the data to update academic years.
type UpdateAcademicYearsCommand struct {
	// UserID is the user whose profile is edited.
	UserID string

	// AdmissionYear and GraduationYear may be nil to clear the value.
	AdmissionYear  *int
	GraduationYear *int

	// ActorID is the authenticated caller.
	ActorID string

	// ActorIsAdmin allows editing other users.
	ActorIsAdmin bool

	// CorrelationID for tracing.
	CorrelationID string
}

// Validate validates the command.
func (c UpdateAcademicYearsCommand) Validate() error {
	if _, err := shared.NewUserID(c.UserID); err != nil {
		return err
	}
	return shared.ValidateAcademicYears(c.AdmissionYear, c.GraduationYear)
}

// UpdateAcademicYearsResult contains the result of the update.
type UpdateAcademicYearsResult struct {
	// User is the state after the update.
	User *user.User

	// Decision is the evaluation made after saving the years.
	Decision lifecycle.Decision

	// RoleChanged indicates the role moved forward.
	RoleChanged bool
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// UpdateAcademicYearsHandlerConfig contains configuration for the handler.
type UpdateAcademicYearsHandlerConfig struct {
	// AutoTransition re-evaluates the role when the years are saved.
	AutoTransition bool

	// Rollout narrows AutoTransition to some users. Nil means everyone.
	Rollout func(userID string) bool
}

// UpdateAcademicYearsHandler handles UpdateAcademicYearsCommand.
type UpdateAcademicYearsHandler struct {
	users          user.Repository
	evaluator      *lifecycle.Evaluator
	eventPublisher shared.EventPublisher
	clock          timeutil.Clock
	logger         *logger.Logger
	config         UpdateAcademicYearsHandlerConfig
}

// NewUpdateAcademicYearsHandler creates a new UpdateAcademicYearsHandler.
func NewUpdateAcademicYearsHandler(
	users user.Repository,
	evaluator *lifecycle.Evaluator,
	eventPublisher shared.EventPublisher,
	clock timeutil.Clock,
	log *logger.Logger,
	config UpdateAcademicYearsHandlerConfig,
) *UpdateAcademicYearsHandler {
	if clock == nil {
		clock = timeutil.NewSystemClock(time.UTC)
	}
	if log == nil {
		log = logger.Nop()
	}
	return &UpdateAcademicYearsHandler{
		users:          users,
		evaluator:      evaluator,
		eventPublisher: eventPublisher,
		clock:          clock,
		logger:         log.With(logger.Component("update_academic_years")),
		config:         config,
	}
}

// Handle executes the command. The years and the re-evaluated standing are
// written in a single repository call: on error nothing is stored.
func (h *UpdateAcademicYearsHandler) Handle(ctx context.Context, cmd UpdateAcademicYearsCommand) (*UpdateAcademicYearsResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("update_academic_years: %w", err)
	}
	if !cmd.ActorIsAdmin && cmd.ActorID != cmd.UserID {
		return nil, fmt.Errorf("update_academic_years: %w", shared.ErrForbidden)
	}

	u, err := h.users.GetByID(ctx, cmd.UserID)
	if err != nil {
		return nil, fmt.Errorf("update_academic_years: %w", err)
	}

	now := h.clock.Now()
	next := u.Clone()
	if err := next.SetAcademicYears(cmd.AdmissionYear, cmd.GraduationYear, now); err != nil {
		return nil, fmt.Errorf("update_academic_years: %w", err)
	}

	decision, changed, err := h.OnYearFieldsChanged(ctx, next, cmd.CorrelationID)
	if err != nil {
		return nil, err
	}

	evt := shared.NewAcademicYearsUpdatedEvent(next.ID, next.AdmissionYear, next.GraduationYear, now)
	evt.BaseEvent = evt.WithCorrelationID(cmd.CorrelationID)
	h.publish(evt)

	if changed {
		h.publishRoleChanged(next, decision, now, cmd.CorrelationID)
	}

	return &UpdateAcademicYearsResult{
		User:        next,
		Decision:    decision,
		RoleChanged: changed,
	}, nil
}

// OnYearFieldsChanged is the profile save hook: u carries the new years, not
// yet stored. It evaluates u and stores the years together with the new
// standing, if any. u is updated in place only after the write succeeded.
func (h *UpdateAcademicYearsHandler) OnYearFieldsChanged(ctx context.Context, u *user.User, correlationID string) (lifecycle.Decision, bool, error) {
	log := h.logger.With(logger.UserID(u.ID), logger.String("correlation_id", correlationID))
	now := h.clock.Now()

	decision := lifecycle.Decision{FromRole: u.Role, NewRole: u.Role, NewCurrentYear: u.CurrentYear, Graduated: u.Graduated}
	if h.autoTransition(u.ID) {
		decision = h.evaluator.Evaluate(u, now)
		if !decision.Updated {
			log.Debug("role transition skipped", logger.String("reason", string(decision.Reason)))
		}
	} else {
		log.Debug("automatic role transition disabled")
	}

	if !decision.Updated {
		if err := h.users.UpdateAcademicYears(ctx, u.ID, u.AdmissionYear, u.GraduationYear); err != nil {
			return decision, false, fmt.Errorf("update_academic_years: save years: %w", err)
		}
		return decision, false, nil
	}

	next := u.Clone()
	changed, err := decision.Apply(next, now)
	if err != nil {
		return decision, false, fmt.Errorf("update_academic_years: apply standing: %w", err)
	}
	if err := h.users.UpdateAcademicProfile(ctx, next); err != nil {
		return decision, false, fmt.Errorf("update_academic_years: save profile: %w", err)
	}
	*u = *next

	log.Info("standing updated",
		logger.String("from_role", string(decision.FromRole)),
		logger.String("to_role", string(decision.NewRole)),
		logger.Int("current_year", u.CurrentYear),
		logger.Bool("graduated", u.Graduated),
	)

	return decision, changed, nil
}

func (h *UpdateAcademicYearsHandler) autoTransition(userID string) bool {
	if !h.config.AutoTransition {
		return false
	}
	return h.config.Rollout == nil || h.config.Rollout(userID)
}

func (h *UpdateAcademicYearsHandler) publishRoleChanged(u *user.User, d lifecycle.Decision, at time.Time, correlationID string) {
	evt := shared.NewRoleChangedEvent(u.ID, string(d.FromRole), string(d.NewRole), u.CurrentYear, u.Graduated, shared.SourceProfileUpdate, at)
	evt.BaseEvent = evt.WithCorrelationID(correlationID)
	h.publish(evt)
}

func (h *UpdateAcademicYearsHandler) publish(evt shared.Event) {
	if h.eventPublisher == nil {
		return
	}
	if err := h.eventPublisher.Publish(evt); err != nil {
		h.logger.Warn("failed to publish event",
			logger.String("event_type", string(evt.EventType())),
			logger.Err(err),
		)
	}
}
