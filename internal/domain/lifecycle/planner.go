package lifecycle

import (
	"context"
	"time"

	"github.com/collegeconnect/collegeconnect-hub/internal/domain/shared"
	"github.com/collegeconnect/collegeconnect-hub/internal/domain/user"
)

// ══════════════════════════════════════════════════════════════════════════════
// PLANNER
// Единый планировщик для предпросмотра и применения массового перехода,
// чтобы dry-run не расходился с реальным запуском.
// ══════════════════════════════════════════════════════════════════════════════

// CohortFinder выбирает кандидатов когорты из хранилища.
type CohortFinder interface {
	FindCohort(ctx context.Context, q user.CohortQuery) ([]*user.User, error)
}

// Assignment - запланированный переход одного пользователя.
type Assignment struct {
	User           *user.User
	Cohort         CohortKind
	FromRole       user.Role
	ToRole         user.Role
	NewCurrentYear int
	Graduated      bool
}

// Plan - результат планирования на дату Today.
type Plan struct {
	Today       time.Time
	Assignments []Assignment
}

// Summary - сводка массового перехода.
type Summary struct {
	StudentsToSenior int `json:"studentsToSenior"`
	SeniorsToAlumni  int `json:"seniorsToAlumni"`
	Overdue          int `json:"overdue"`
	TotalUpgraded    int `json:"totalUpgraded"`
	Failed           int `json:"failed"`
}

// Count учитывает успешно применённый переход.
func (s *Summary) Count(kind CohortKind) {
	switch kind {
	case CohortStudentsToSenior:
		s.StudentsToSenior++
	case CohortSeniorsToAlumni:
		s.SeniorsToAlumni++
	case CohortOverdue:
		s.Overdue++
	}
	s.TotalUpgraded++
}

// Summary возвращает сводку, как если бы все переходы плана применились.
func (p *Plan) Summary() Summary {
	var s Summary
	for _, a := range p.Assignments {
		s.Count(a.Cohort)
	}
	return s
}

// Planner строит план перехода.
type Planner struct {
	finder    CohortFinder
	evaluator *Evaluator
}

// NewPlanner создаёт планировщик.
func NewPlanner(finder CohortFinder, evaluator *Evaluator) *Planner {
	return &Planner{finder: finder, evaluator: evaluator}
}

// Evaluator возвращает используемый Evaluator.
func (p *Planner) Evaluator() *Evaluator {
	return p.evaluator
}

// Plan выбирает когорты в порядке приоритета. Ошибка любой выборки
// прерывает планирование целиком (частичного плана не бывает).
func (p *Planner) Plan(ctx context.Context, today time.Time) (*Plan, error) {
	plan := &Plan{Today: today}
	seen := make(map[string]struct{})

	for _, cohort := range p.evaluator.Cohorts() {
		for _, q := range cohort.Queries(today) {
			candidates, err := p.finder.FindCohort(ctx, q)
			if err != nil {
				return nil, shared.ErrCohortQueryFailed.Wrap(err)
			}

			for _, u := range candidates {
				if _, ok := seen[u.ID]; ok {
					continue
				}
				if !cohort.Matches(u, today) {
					continue
				}
				seen[u.ID] = struct{}{}

				plan.Assignments = append(plan.Assignments, Assignment{
					User:           u,
					Cohort:         cohort.Kind,
					FromRole:       u.Role,
					ToRole:         cohort.Target,
					NewCurrentYear: user.FinalYear,
					Graduated:      cohort.Target == user.RoleAlumni,
				})
			}
		}
	}

	return plan, nil
}
