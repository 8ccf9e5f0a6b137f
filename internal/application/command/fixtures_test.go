package command

import (
	"context"
	"errors"
	"sync"

	"github.com/collegeconnect/collegeconnect-hub/internal/domain/shared"
	"github.com/collegeconnect/collegeconnect-hub/internal/domain/user"
	"github.com/collegeconnect/collegeconnect-hub/internal/infrastructure/persistence/memory"
)

func member(id string, role user.Role, admission, graduation, year int) *user.User {
	return &user.User{
		ID:                 id,
		Email:              id + "@college.edu",
		FullName:           id,
		Role:               role,
		VerificationStatus: user.VerificationApproved,
		AdmissionYear:      user.IntPtr(admission),
		GraduationYear:     user.IntPtr(graduation),
		CurrentYear:        year,
		Graduated:          role == user.RoleAlumni,
	}
}

func campus() []*user.User {
	return []*user.User{
		member("final-student", user.RoleStudent, 2021, 2025, 4),
		member("senior-2024", user.RoleSenior, 2020, 2024, 4),
		member("overdue-student", user.RoleStudent, 2018, 2022, 3),
		member("junior", user.RoleStudent, 2023, 2027, 2),
		member("admin", user.RoleAdmin, 2015, 2019, 4),
	}
}

// flakyRepo fails standing writes for selected users.
type flakyRepo struct {
	*memory.UserRepository
	failStanding map[string]bool
	findErr      error
}

func (r *flakyRepo) UpdateStanding(ctx context.Context, u *user.User) error {
	if r.failStanding[u.ID] {
		return errors.New("deadlock detected")
	}
	return r.UserRepository.UpdateStanding(ctx, u)
}

func (r *flakyRepo) UpdateAcademicProfile(ctx context.Context, u *user.User) error {
	if r.failStanding[u.ID] {
		return errors.New("deadlock detected")
	}
	return r.UserRepository.UpdateAcademicProfile(ctx, u)
}

func (r *flakyRepo) FindCohort(ctx context.Context, q user.CohortQuery) ([]*user.User, error) {
	if r.findErr != nil {
		return nil, r.findErr
	}
	return r.UserRepository.FindCohort(ctx, q)
}

type sentEmail struct {
	UserID   string
	From, To user.Role
}

type recordingDispatcher struct {
	mu   sync.Mutex
	sent []sentEmail
	err  error
}

func (d *recordingDispatcher) SendRoleChangeEmail(_ context.Context, u *user.User, from, to user.Role) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sent = append(d.sent, sentEmail{UserID: u.ID, From: from, To: to})
	return d.err
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []shared.Event
	err    error
}

func (p *recordingPublisher) Publish(e shared.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return p.err
}

func (p *recordingPublisher) ofType(t shared.EventType) []shared.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []shared.Event
	for _, e := range p.events {
		if e.EventType() == t {
			out = append(out, e)
		}
	}
	return out
}

type fakeLock struct {
	err      error
	acquired int
	released int
}

func (l *fakeLock) Acquire(context.Context) (func(context.Context) error, error) {
	if l.err != nil {
		return nil, l.err
	}
	l.acquired++
	return func(context.Context) error {
		l.released++
		return nil
	}, nil
}
