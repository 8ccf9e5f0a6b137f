// Package query contains read operations (CQRS - Queries).
package query

import (
	"context"
	"fmt"
	"time"

	"github.com/collegeconnect/collegeconnect-hub/internal/domain/lifecycle"
	"github.com/collegeconnect/collegeconnect-hub/internal/domain/user"
	"github.com/collegeconnect/collegeconnect-hub/pkg/logger"
	"github.com/collegeconnect/collegeconnect-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// PREVIEW ROLE SWEEP QUERY
// Пробный запуск массового перехода: тот же план, что и при применении,
// но без сохранения и без уведомлений.
// ══════════════════════════════════════════════════════════════════════════════

// PreviewRoleSweepQuery содержит параметры предпросмотра.
type PreviewRoleSweepQuery struct {
	// Today - дата оценки. Нулевое значение - текущая дата.
	Today time.Time
}

// PreviewRow - один пользователь, которого затронет переход.
type PreviewRow struct {
	UserID         string               `json:"userId"`
	Email          string               `json:"email"`
	FullName       string               `json:"fullName"`
	Cohort         lifecycle.CohortKind `json:"cohort"`
	FromRole       user.Role            `json:"fromRole"`
	ToRole         user.Role            `json:"toRole"`
	CurrentYear    int                  `json:"currentYear"`
	NewCurrentYear int                  `json:"newCurrentYear"`
	AdmissionYear  *int                 `json:"admissionYear,omitempty"`
	GraduationYear *int                 `json:"graduationYear,omitempty"`
}

// PreviewRoleSweepResult - результат предпросмотра.
type PreviewRoleSweepResult struct {
	Today   time.Time         `json:"today"`
	Summary lifecycle.Summary `json:"summary"`
	Rows    []PreviewRow      `json:"rows"`
}

// PreviewRoleSweepHandler обрабатывает запрос предпросмотра.
type PreviewRoleSweepHandler struct {
	planner *lifecycle.Planner
	clock   timeutil.Clock
	logger  *logger.Logger
}

// NewPreviewRoleSweepHandler создаёт обработчик.
func NewPreviewRoleSweepHandler(planner *lifecycle.Planner, clock timeutil.Clock, log *logger.Logger) *PreviewRoleSweepHandler {
	if clock == nil {
		clock = timeutil.NewSystemClock(time.UTC)
	}
	if log == nil {
		log = logger.Nop()
	}
	return &PreviewRoleSweepHandler{
		planner: planner,
		clock:   clock,
		logger:  log.With(logger.Component("role_sweep_preview")),
	}
}

// Handle строит план и возвращает сводку со строками.
func (h *PreviewRoleSweepHandler) Handle(ctx context.Context, q PreviewRoleSweepQuery) (*PreviewRoleSweepResult, error) {
	today := q.Today
	if today.IsZero() {
		today = h.clock.Now()
	}

	plan, err := h.planner.Plan(ctx, today)
	if err != nil {
		return nil, fmt.Errorf("preview_role_sweep: %w", err)
	}

	result := &PreviewRoleSweepResult{
		Today:   today,
		Summary: plan.Summary(),
		Rows:    make([]PreviewRow, 0, len(plan.Assignments)),
	}
	for _, a := range plan.Assignments {
		result.Rows = append(result.Rows, PreviewRow{
			UserID:         a.User.ID,
			Email:          a.User.Email,
			FullName:       a.User.FullName,
			Cohort:         a.Cohort,
			FromRole:       a.FromRole,
			ToRole:         a.ToRole,
			CurrentYear:    a.User.CurrentYear,
			NewCurrentYear: a.NewCurrentYear,
			AdmissionYear:  a.User.AdmissionYear,
			GraduationYear: a.User.GraduationYear,
		})
	}

	h.logger.Debug("role sweep previewed",
		logger.String("today", timeutil.FormatDate(today)),
		logger.Int("total", result.Summary.TotalUpgraded),
	)

	return result, nil
}
