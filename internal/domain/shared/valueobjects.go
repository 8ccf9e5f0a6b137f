package shared

import (
	"strings"
)

// ═══════════════════════════════════════════════════════════════════════════
// UserID Value Object
// ═══════════════════════════════════════════════════════════════════════════

// UserID is the internal identifier of a CollegeConnect user (UUID string).
type UserID string

// IsValid checks that the ID is a non-empty token without whitespace.
func (u UserID) IsValid() bool {
	s := string(u)
	return s != "" && len(s) <= 64 && !strings.ContainsAny(s, " \t\n\r")
}

// String returns the string representation.
func (u UserID) String() string {
	return string(u)
}

// NewUserID creates a validated UserID.
func NewUserID(id string) (UserID, error) {
	u := UserID(strings.TrimSpace(id))
	if !u.IsValid() {
		return "", ErrInvalidUserID
	}
	return u, nil
}

// ═══════════════════════════════════════════════════════════════════════════
// Academic Year Value Objects
// ═══════════════════════════════════════════════════════════════════════════

// Bounds for calendar years accepted as admission or graduation years.
const (
	MinCalendarYear = 1950
	MaxCalendarYear = 2200
)

// CalendarYear is a four-digit calendar year.
type CalendarYear int

// IsValid checks the year is within accepted bounds.
func (y CalendarYear) IsValid() bool {
	return y >= MinCalendarYear && y <= MaxCalendarYear
}

// Int returns the int value.
func (y CalendarYear) Int() int {
	return int(y)
}

// ValidateAcademicYears checks an admission/graduation pair as entered by a user.
// Either value may be absent; when both are present graduation must be after
// admission.
func ValidateAcademicYears(admission, graduation *int) error {
	if admission != nil && !CalendarYear(*admission).IsValid() {
		return ErrInvalidAcademicYear
	}
	if graduation != nil && !CalendarYear(*graduation).IsValid() {
		return ErrInvalidAcademicYear
	}
	if admission != nil && graduation != nil {
		if *graduation <= *admission {
			return ErrGraduationBeforeAdmission
		}
	}
	return nil
}
