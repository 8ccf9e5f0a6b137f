// Package memory provides an in-process user store. It backs local runs
// without PostgreSQL and the application tests. Stored values are cloned on
// the way in and out, so callers never share state with the store.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/collegeconnect/collegeconnect-hub/internal/domain/shared"
	"github.com/collegeconnect/collegeconnect-hub/internal/domain/user"
)

// UserRepository implements user.Repository in memory.
type UserRepository struct {
	mu    sync.RWMutex
	users map[string]*user.User
}

var _ user.Repository = (*UserRepository)(nil)

// NewUserRepository creates a repository seeded with users.
func NewUserRepository(seed ...*user.User) *UserRepository {
	r := &UserRepository{users: make(map[string]*user.User, len(seed))}
	for _, u := range seed {
		r.users[u.ID] = u.Clone()
	}
	return r
}

// Create stores a new user.
func (r *UserRepository) Create(_ context.Context, u *user.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.users[u.ID]; ok {
		return shared.ErrUserAlreadyExists
	}
	for _, existing := range r.users {
		if u.Email != "" && strings.EqualFold(existing.Email, u.Email) {
			return shared.ErrUserAlreadyExists
		}
	}
	r.users[u.ID] = u.Clone()
	return nil
}

// GetByID returns a copy of the user.
func (r *UserRepository) GetByID(_ context.Context, id string) (*user.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.users[id]
	if !ok {
		return nil, shared.ErrUserNotFound
	}
	return u.Clone(), nil
}

// UpdateAcademicYears replaces both years.
func (r *UserRepository) UpdateAcademicYears(_ context.Context, id string, admission, graduation *int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[id]
	if !ok {
		return shared.ErrUserNotFound
	}
	next := u.Clone()
	next.AdmissionYear = copyInt(admission)
	next.GraduationYear = copyInt(graduation)
	r.users[id] = next
	return nil
}

// UpdateStanding stores role and academic standing with the same merge rules
// as the SQL store: current year and graduated never go back, and
// role_last_updated keeps its value when the update carries none.
func (r *UserRepository) UpdateStanding(_ context.Context, u *user.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.users[u.ID]
	if !ok {
		return shared.ErrUserNotFound
	}
	r.users[u.ID] = mergeStanding(stored, u)
	return nil
}

// UpdateAcademicProfile stores years and standing under one lock.
func (r *UserRepository) UpdateAcademicProfile(_ context.Context, u *user.User) error {
	if err := shared.ValidateAcademicYears(u.AdmissionYear, u.GraduationYear); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.users[u.ID]
	if !ok {
		return shared.ErrUserNotFound
	}
	next := mergeStanding(stored, u)
	next.AdmissionYear = copyInt(u.AdmissionYear)
	next.GraduationYear = copyInt(u.GraduationYear)
	r.users[u.ID] = next
	return nil
}

func mergeStanding(stored, u *user.User) *user.User {
	next := stored.Clone()
	next.Role = u.Role
	next.CurrentYear = max(stored.CurrentYear, u.CurrentYear)
	next.Graduated = stored.Graduated || u.Graduated
	if u.RoleLastUpdated != nil {
		t := *u.RoleLastUpdated
		next.RoleLastUpdated = &t
	}
	next.UpdatedAt = u.UpdatedAt
	return next
}

func copyInt(v *int) *int {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

// FindCohort returns matching users ordered by ID.
func (r *UserRepository) FindCohort(_ context.Context, q user.CohortQuery) ([]*user.User, error) {
	if len(q.Roles) == 0 {
		return nil, shared.ErrInvalidInput
	}
	if q.Comparison != user.YearEqual && q.Comparison != user.YearBefore {
		return nil, shared.ErrInvalidInput
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*user.User, 0)
	for _, u := range r.users {
		if q.Matches(u) {
			out = append(out, u.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Len returns the number of stored users.
func (r *UserRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.users)
}
