package lifecycle

import (
	"time"

	"github.com/collegeconnect/collegeconnect-hub/internal/domain/user"
)

// ══════════════════════════════════════════════════════════════════════════════
// SKIP REASONS
// ══════════════════════════════════════════════════════════════════════════════

// SkipReason объясняет, почему автопереход не выполнен. Это не ошибка.
type SkipReason string

const (
	SkipNone         SkipReason = ""
	SkipNotApproved  SkipReason = "not_approved"
	SkipIsAdmin      SkipReason = "is_admin"
	SkipMissingYears SkipReason = "missing_years"
	SkipInvalidYears SkipReason = "invalid_years"
	SkipUpToDate     SkipReason = "up_to_date"
)

// ══════════════════════════════════════════════════════════════════════════════
// DECISION
// ══════════════════════════════════════════════════════════════════════════════

// Decision - рекомендация по обновлению пользователя. Evaluator ничего не
// сохраняет; сохранение выполняет вызывающий код.
type Decision struct {
	// Updated - нужно сохранить изменения.
	Updated bool

	// FromRole - роль до перехода.
	FromRole user.Role

	// NewRole - роль после перехода (равна FromRole, если роль не меняется).
	NewRole user.Role

	// NewCurrentYear - курс после перехода.
	NewCurrentYear int

	// Graduated - признак выпуска после перехода.
	Graduated bool

	// Reason заполнен, когда Updated == false.
	Reason SkipReason
}

// RoleChanged возвращает true, если меняется роль, а не только курс.
func (d Decision) RoleChanged() bool {
	return d.Updated && d.NewRole != d.FromRole
}

// ══════════════════════════════════════════════════════════════════════════════
// EVALUATOR
// ══════════════════════════════════════════════════════════════════════════════

// Evaluator решает, нужен ли переход роли для одного пользователя.
type Evaluator struct {
	cutoff time.Month
}

// NewEvaluator создаёт Evaluator с месяцем выпуска cutoff.
func NewEvaluator(cutoff time.Month) *Evaluator {
	if cutoff < time.January || cutoff > time.December {
		cutoff = DefaultGraduationCutoff
	}
	return &Evaluator{cutoff: cutoff}
}

// Cutoff возвращает месяц выпуска.
func (e *Evaluator) Cutoff() time.Month {
	return e.cutoff
}

// CheckEligibility проверяет предусловия автоперехода.
// Порядок проверок: верификация, admin, наличие годов.
func CheckEligibility(u *user.User) SkipReason {
	switch {
	case !u.IsApproved():
		return SkipNotApproved
	case u.IsAdmin():
		return SkipIsAdmin
	case !u.HasAcademicYears():
		return SkipMissingYears
	default:
		return SkipNone
	}
}

// Evaluate вычисляет решение для u на дату today.
//
// Эффективный курс = max(сохранённый, вычисленный), поэтому курс не
// уменьшается. Роль выводится из эффективного курса и признака выпуска
// и меняется только вперёд. Повторный вызов после применения решения
// возвращает Updated == false.
func (e *Evaluator) Evaluate(u *user.User, today time.Time) Decision {
	d := Decision{
		FromRole:       u.Role,
		NewRole:        u.Role,
		NewCurrentYear: u.CurrentYear,
		Graduated:      u.Graduated,
	}

	if reason := CheckEligibility(u); reason != SkipNone {
		d.Reason = reason
		return d
	}

	standing, err := ComputeStanding(*u.AdmissionYear, *u.GraduationYear, today, e.cutoff)
	if err != nil {
		d.Reason = SkipInvalidYears
		return d
	}

	graduated := u.Graduated || standing.Graduated
	year := max(u.CurrentYear, standing.CurrentYear)
	if graduated {
		year = user.FinalYear
	}

	role := u.Role
	if suggested := SuggestRole(year, graduated); u.Role.CanAdvanceTo(suggested) {
		role = suggested
	}

	d.NewRole = role
	d.NewCurrentYear = year
	d.Graduated = graduated
	d.Updated = role != u.Role || year != u.CurrentYear || graduated != u.Graduated
	if !d.Updated {
		d.Reason = SkipUpToDate
	}
	return d
}

// Apply применяет решение к пользователю. Возвращает true, если роль изменилась.
func (d Decision) Apply(u *user.User, at time.Time) (bool, error) {
	if !d.Updated {
		return false, nil
	}
	return u.ApplyStanding(d.NewRole, d.NewCurrentYear, d.Graduated, at)
}
