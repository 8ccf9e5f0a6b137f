// Package user содержит доменную модель пользователя CollegeConnect
// в части, которая касается жизненного цикла академической роли.
// Здесь нет внешних зависимостей.
package user

import (
	"strings"
	"time"

	"github.com/collegeconnect/collegeconnect-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// ENUMS
// ══════════════════════════════════════════════════════════════════════════════

// Role определяет роль пользователя на платформе.
type Role string

const (
	// RoleStudent - студент 1-3 курса.
	RoleStudent Role = "student"
	// RoleSenior - студент выпускного (4-го) курса.
	RoleSenior Role = "senior"
	// RoleAlumni - выпускник.
	RoleAlumni Role = "alumni"
	// RoleAdmin - администратор. Автоматически не меняется никогда.
	RoleAdmin Role = "admin"
)

// IsValid проверяет, что роль корректна.
func (r Role) IsValid() bool {
	switch r {
	case RoleStudent, RoleSenior, RoleAlumni, RoleAdmin:
		return true
	default:
		return false
	}
}

// String возвращает строковое представление роли.
func (r Role) String() string {
	return string(r)
}

// IsAcademic возвращает true для ролей, участвующих в жизненном цикле.
func (r Role) IsAcademic() bool {
	return r == RoleStudent || r == RoleSenior || r == RoleAlumni
}

// Rank задаёт порядок ролей жизненного цикла: student < senior < alumni.
// Для admin и неизвестных ролей возвращает 0.
func (r Role) Rank() int {
	switch r {
	case RoleStudent:
		return 1
	case RoleSenior:
		return 2
	case RoleAlumni:
		return 3
	default:
		return 0
	}
}

// CanAdvanceTo проверяет, что переход в next идёт только вперёд.
// student → senior, senior → alumni и student → alumni (минуя senior).
func (r Role) CanAdvanceTo(next Role) bool {
	if !r.IsAcademic() || !next.IsAcademic() {
		return false
	}
	return next.Rank() > r.Rank()
}

// ParseRole разбирает роль из строки.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if !r.IsValid() {
		return "", shared.ErrInvalidRole
	}
	return r, nil
}

// VerificationStatus определяет статус проверки аккаунта администратором.
type VerificationStatus string

const (
	// VerificationPending - заявка ждёт проверки.
	VerificationPending VerificationStatus = "pending"
	// VerificationApproved - аккаунт подтверждён.
	VerificationApproved VerificationStatus = "approved"
	// VerificationRejected - аккаунт отклонён.
	VerificationRejected VerificationStatus = "rejected"
)

// IsValid проверяет, что статус корректен.
func (v VerificationStatus) IsValid() bool {
	switch v {
	case VerificationPending, VerificationApproved, VerificationRejected:
		return true
	default:
		return false
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// CONSTANTS
// ══════════════════════════════════════════════════════════════════════════════

const (
	// FirstYear - минимальный номер курса.
	FirstYear = 1
	// FinalYear - последний курс. Выпускники тоже хранят 4, признак выпуска
	// хранится отдельно в поле Graduated.
	FinalYear = 4
)

// ══════════════════════════════════════════════════════════════════════════════
// MAIN ENTITY: USER
// ══════════════════════════════════════════════════════════════════════════════

// User - пользователь платформы. Сущность никогда не удаляется движком
// жизненного цикла, только обновляется.
type User struct {
	// ID - внутренний UUID.
	ID string

	// Email - адрес для уведомлений.
	Email string

	// FullName - отображаемое имя.
	FullName string

	// Role - текущая роль.
	Role Role

	// VerificationStatus - только approved участвуют в автопереходах.
	VerificationStatus VerificationStatus

	// AdmissionYear - год поступления (может отсутствовать).
	AdmissionYear *int

	// GraduationYear - год выпуска (может отсутствовать).
	GraduationYear *int

	// CurrentYear - номер курса 1..4, 0 если ещё не вычислялся.
	// Никогда не уменьшается.
	CurrentYear int

	// Graduated - пользователь окончил обучение.
	Graduated bool

	// RoleLastUpdated - время последней смены роли.
	RoleLastUpdated *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewUserParams содержит параметры для создания пользователя.
type NewUserParams struct {
	ID                 string
	Email              string
	FullName           string
	Role               Role
	VerificationStatus VerificationStatus
	AdmissionYear      *int
	GraduationYear     *int
	CurrentYear        int
	CreatedAt          time.Time
}

// NewUser создаёт пользователя с валидацией.
func NewUser(p NewUserParams) (*User, error) {
	if _, err := shared.NewUserID(p.ID); err != nil {
		return nil, err
	}
	if !p.Role.IsValid() {
		return nil, shared.ErrInvalidRole
	}
	if !p.VerificationStatus.IsValid() {
		return nil, shared.ErrInvalidVerification
	}
	if err := shared.ValidateAcademicYears(p.AdmissionYear, p.GraduationYear); err != nil {
		return nil, err
	}
	if p.CurrentYear < 0 || p.CurrentYear > FinalYear {
		return nil, shared.ErrInvalidAcademicYear
	}

	return &User{
		ID:                 p.ID,
		Email:              strings.TrimSpace(p.Email),
		FullName:           strings.TrimSpace(p.FullName),
		Role:               p.Role,
		VerificationStatus: p.VerificationStatus,
		AdmissionYear:      copyInt(p.AdmissionYear),
		GraduationYear:     copyInt(p.GraduationYear),
		CurrentYear:        p.CurrentYear,
		Graduated:          p.Role == RoleAlumni,
		CreatedAt:          p.CreatedAt,
		UpdatedAt:          p.CreatedAt,
	}, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// QUERIES
// ══════════════════════════════════════════════════════════════════════════════

// IsApproved возвращает true для подтверждённых аккаунтов.
func (u *User) IsApproved() bool {
	return u.VerificationStatus == VerificationApproved
}

// IsAdmin возвращает true для администраторов.
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// HasAcademicYears возвращает true, если указаны оба года.
func (u *User) HasAcademicYears() bool {
	return u.AdmissionYear != nil && u.GraduationYear != nil
}

// GraduatesIn проверяет год выпуска.
func (u *User) GraduatesIn(year int) bool {
	return u.GraduationYear != nil && *u.GraduationYear == year
}

// GraduatedBefore возвращает true, если год выпуска меньше year.
func (u *User) GraduatedBefore(year int) bool {
	return u.GraduationYear != nil && *u.GraduationYear < year
}

// ══════════════════════════════════════════════════════════════════════════════
// COMMANDS
// ══════════════════════════════════════════════════════════════════════════════

// SetAcademicYears обновляет годы поступления и выпуска.
// Роль здесь не пересчитывается - это делает lifecycle.Evaluator.
func (u *User) SetAcademicYears(admission, graduation *int, at time.Time) error {
	if err := shared.ValidateAcademicYears(admission, graduation); err != nil {
		return err
	}
	u.AdmissionYear = copyInt(admission)
	u.GraduationYear = copyInt(graduation)
	u.UpdatedAt = at
	return nil
}

// ApplyStanding применяет новое академическое положение.
// Инварианты: admin не меняется, роль только вперёд, курс не уменьшается,
// признак выпуска не снимается. Возвращает true, если роль изменилась.
func (u *User) ApplyStanding(role Role, currentYear int, graduated bool, at time.Time) (bool, error) {
	if u.IsAdmin() {
		return false, shared.ErrAdminImmutable
	}
	if !role.IsAcademic() {
		return false, shared.ErrInvalidRole
	}
	if role != u.Role && !u.Role.CanAdvanceTo(role) {
		return false, shared.ErrRoleDowngrade
	}
	if currentYear < FirstYear || currentYear > FinalYear {
		return false, shared.ErrInvalidAcademicYear
	}

	roleChanged := role != u.Role
	u.Role = role
	if currentYear > u.CurrentYear {
		u.CurrentYear = currentYear
	}
	u.Graduated = u.Graduated || graduated
	if roleChanged {
		t := at
		u.RoleLastUpdated = &t
	}
	u.UpdatedAt = at

	return roleChanged, nil
}

// Clone возвращает глубокую копию пользователя.
func (u *User) Clone() *User {
	c := *u
	c.AdmissionYear = copyInt(u.AdmissionYear)
	c.GraduationYear = copyInt(u.GraduationYear)
	if u.RoleLastUpdated != nil {
		t := *u.RoleLastUpdated
		c.RoleLastUpdated = &t
	}
	return &c
}

func copyInt(v *int) *int {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

// IntPtr - вспомогательная функция для опциональных годов.
func IntPtr(v int) *int {
	return &v
}
