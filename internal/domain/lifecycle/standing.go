// Package lifecycle содержит правила жизненного цикла академической роли:
// вычисление курса, решение о переходе и канонические когорты массового перехода.
// Все функции чистые: "сегодня" всегда передаётся явно.
package lifecycle

import (
	"time"

	"github.com/collegeconnect/collegeconnect-hub/internal/domain/shared"
	"github.com/collegeconnect/collegeconnect-hub/internal/domain/user"
)

// DefaultGraduationCutoff - месяц, начиная с которого год выпуска считается завершённым.
const DefaultGraduationCutoff = time.July

// Standing - академическое положение на конкретную дату.
type Standing struct {
	// CurrentYear - курс 1..4 по календарю.
	CurrentYear int

	// Graduated - выпуск уже состоялся.
	Graduated bool

	// SuggestedRole - роль, соответствующая положению.
	SuggestedRole user.Role
}

// ComputeStanding вычисляет положение по годам поступления и выпуска.
//
// Курс = today.Year - admission, ограниченный отрезком [1, 4].
// Выпуск состоялся, если today.Year > graduation или это год выпуска
// и месяц не раньше cutoff.
func ComputeStanding(admission, graduation int, today time.Time, cutoff time.Month) (Standing, error) {
	if err := shared.ValidateAcademicYears(&admission, &graduation); err != nil {
		return Standing{}, err
	}
	if cutoff < time.January || cutoff > time.December {
		cutoff = DefaultGraduationCutoff
	}

	year := clampYear(today.Year() - admission)
	graduated := HasGraduated(graduation, today, cutoff)

	return Standing{
		CurrentYear:   year,
		Graduated:     graduated,
		SuggestedRole: SuggestRole(year, graduated),
	}, nil
}

// HasGraduated проверяет, состоялся ли выпуск graduation к дате today.
func HasGraduated(graduation int, today time.Time, cutoff time.Month) bool {
	y := today.Year()
	return y > graduation || (y == graduation && today.Month() >= cutoff)
}

// SuggestRole сопоставляет курс и признак выпуска с ролью.
func SuggestRole(currentYear int, graduated bool) user.Role {
	switch {
	case graduated:
		return user.RoleAlumni
	case currentYear >= user.FinalYear:
		return user.RoleSenior
	default:
		return user.RoleStudent
	}
}

func clampYear(y int) int {
	if y < user.FirstYear {
		return user.FirstYear
	}
	if y > user.FinalYear {
		return user.FinalYear
	}
	return y
}
