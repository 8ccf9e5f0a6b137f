package user

import (
	"context"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACES
// Эти интерфейсы определяют контракт для работы с хранилищем данных.
// Реализации находятся в infrastructure/persistence.
// ══════════════════════════════════════════════════════════════════════════════

// Repository определяет операции с пользователями, нужные жизненному циклу ролей.
type Repository interface {
	// Create создаёт пользователя.
	// Возвращает ErrUserAlreadyExists, если ID или email заняты.
	Create(ctx context.Context, u *User) error

	// GetByID возвращает пользователя по ID.
	// Возвращает ErrUserNotFound, если пользователь не найден.
	GetByID(ctx context.Context, id string) (*User, error)

	// UpdateAcademicYears сохраняет годы поступления и выпуска.
	// Возвращает ErrUserNotFound, если пользователь не найден.
	UpdateAcademicYears(ctx context.Context, id string, admission, graduation *int) error

	// UpdateStanding сохраняет role, current_year, graduated и role_last_updated.
	// Возвращает ErrUserNotFound, если пользователь не найден.
	UpdateStanding(ctx context.Context, u *User) error

	// UpdateAcademicProfile атомарно сохраняет годы и положение пользователя.
	// При ошибке не сохраняется ничего.
	UpdateAcademicProfile(ctx context.Context, u *User) error

	// FindCohort возвращает пользователей по фильтру когорты.
	FindCohort(ctx context.Context, q CohortQuery) ([]*User, error)
}

// YearComparison задаёт сравнение с годом выпуска.
type YearComparison string

const (
	// YearEqual - graduation_year = год.
	YearEqual YearComparison = "eq"
	// YearBefore - graduation_year < год.
	YearBefore YearComparison = "lt"
)

// CohortQuery - фильтр выборки когорты для массового перехода.
// Выборка из хранилища может быть шире канонического предиката;
// окончательное решение принимает lifecycle.Cohort.Matches.
type CohortQuery struct {
	// Roles - допустимые роли (хотя бы одна).
	Roles []Role

	// Status - статус верификации.
	Status VerificationStatus

	// GraduationYear и Comparison ограничивают год выпуска.
	GraduationYear int
	Comparison     YearComparison
}

// Matches проверяет пользователя против фильтра. Используется in-memory
// реализациями хранилища и тестами.
func (q CohortQuery) Matches(u *User) bool {
	if u.VerificationStatus != q.Status || u.GraduationYear == nil {
		return false
	}

	roleOK := false
	for _, r := range q.Roles {
		if u.Role == r {
			roleOK = true
			break
		}
	}
	if !roleOK {
		return false
	}

	switch q.Comparison {
	case YearEqual:
		return *u.GraduationYear == q.GraduationYear
	case YearBefore:
		return *u.GraduationYear < q.GraduationYear
	default:
		return false
	}
}
