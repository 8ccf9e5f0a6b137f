package lifecycle

import (
	"time"

	"github.com/collegeconnect/collegeconnect-hub/internal/domain/shared"
	"github.com/collegeconnect/collegeconnect-hub/internal/domain/user"
)

// ══════════════════════════════════════════════════════════════════════════════
// COHORTS
// Канонические предикаты массового перехода. Один предикат на целевую роль;
// когорты применяются в порядке приоритета, и пользователь, попавший в
// раннюю когорту, исключается из последующих.
// ══════════════════════════════════════════════════════════════════════════════

// CohortKind идентифицирует когорту.
type CohortKind string

const (
	// CohortStudentsToSenior - студенты выпускного года до даты выпуска с курсом >= 4.
	CohortStudentsToSenior CohortKind = "students_to_senior"
	// CohortSeniorsToAlumni - выпускники: seniors прошлых лет и выпуск этого года после cutoff.
	CohortSeniorsToAlumni CohortKind = "seniors_to_alumni"
	// CohortOverdue - студенты, чей год выпуска уже прошёл.
	CohortOverdue CohortKind = "overdue"
)

// Cohort описывает одну когорту.
type Cohort struct {
	Kind   CohortKind
	Target user.Role

	queries func(today time.Time) []user.CohortQuery
	matches func(u *user.User, today time.Time) bool
}

// Queries возвращает фильтры для выборки кандидатов из хранилища.
// Пустой результат означает, что на эту дату когорта пуста.
func (c Cohort) Queries(today time.Time) []user.CohortQuery {
	return c.queries(today)
}

// Matches - канонический предикат когорты.
func (c Cohort) Matches(u *user.User, today time.Time) bool {
	if CheckEligibility(u) != SkipNone {
		return false
	}
	if shared.ValidateAcademicYears(u.AdmissionYear, u.GraduationYear) != nil {
		return false
	}
	return c.matches(u, today)
}

// Cohorts возвращает когорты в порядке приоритета.
func (e *Evaluator) Cohorts() []Cohort {
	cutoff := e.cutoff

	studentsToSenior := Cohort{
		Kind:   CohortStudentsToSenior,
		Target: user.RoleSenior,
		queries: func(today time.Time) []user.CohortQuery {
			if today.Month() >= cutoff {
				return nil
			}
			return []user.CohortQuery{{
				Roles:          []user.Role{user.RoleStudent},
				Status:         user.VerificationApproved,
				GraduationYear: today.Year(),
				Comparison:     user.YearEqual,
			}}
		},
		matches: func(u *user.User, today time.Time) bool {
			if u.Role != user.RoleStudent || u.Graduated || !u.GraduatesIn(today.Year()) {
				return false
			}
			if HasGraduated(*u.GraduationYear, today, cutoff) {
				return false
			}
			return effectiveYear(u, today) >= user.FinalYear
		},
	}

	seniorsToAlumni := Cohort{
		Kind:   CohortSeniorsToAlumni,
		Target: user.RoleAlumni,
		queries: func(today time.Time) []user.CohortQuery {
			qs := []user.CohortQuery{{
				Roles:          []user.Role{user.RoleSenior},
				Status:         user.VerificationApproved,
				GraduationYear: today.Year(),
				Comparison:     user.YearBefore,
			}}
			if today.Month() >= cutoff {
				qs = append(qs, user.CohortQuery{
					Roles:          []user.Role{user.RoleStudent, user.RoleSenior},
					Status:         user.VerificationApproved,
					GraduationYear: today.Year(),
					Comparison:     user.YearEqual,
				})
			}
			return qs
		},
		matches: func(u *user.User, today time.Time) bool {
			if u.Role == user.RoleSenior && u.GraduatedBefore(today.Year()) {
				return true
			}
			return (u.Role == user.RoleStudent || u.Role == user.RoleSenior) &&
				u.GraduatesIn(today.Year()) &&
				today.Month() >= cutoff
		},
	}

	overdue := Cohort{
		Kind:   CohortOverdue,
		Target: user.RoleAlumni,
		queries: func(today time.Time) []user.CohortQuery {
			return []user.CohortQuery{{
				Roles:          []user.Role{user.RoleStudent},
				Status:         user.VerificationApproved,
				GraduationYear: today.Year(),
				Comparison:     user.YearBefore,
			}}
		},
		matches: func(u *user.User, today time.Time) bool {
			return u.Role == user.RoleStudent && u.GraduatedBefore(today.Year())
		},
	}

	return []Cohort{studentsToSenior, seniorsToAlumni, overdue}
}

// effectiveYear = max(сохранённый курс, курс по календарю).
func effectiveYear(u *user.User, today time.Time) int {
	if u.AdmissionYear == nil {
		return u.CurrentYear
	}
	return max(u.CurrentYear, clampYear(today.Year()-*u.AdmissionYear))
}
