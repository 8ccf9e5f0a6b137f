package command

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/collegeconnect/collegeconnect-hub/internal/application/query"
	"github.com/collegeconnect/collegeconnect-hub/internal/domain/lifecycle"
	"github.com/collegeconnect/collegeconnect-hub/internal/domain/shared"
	"github.com/collegeconnect/collegeconnect-hub/internal/domain/user"
	"github.com/collegeconnect/collegeconnect-hub/internal/infrastructure/persistence/memory"
	"github.com/collegeconnect/collegeconnect-hub/pkg/logger"
	"github.com/collegeconnect/collegeconnect-hub/pkg/timeutil"
)

type sweepFixture struct {
	repo       *flakyRepo
	dispatcher *recordingDispatcher
	publisher  *recordingPublisher
	clock      *timeutil.FixedClock
	planner    *lifecycle.Planner
	handler    *RunRoleSweepHandler
}

func newSweepFixture(t *testing.T, today time.Time, lock SweepLock, users ...*user.User) *sweepFixture {
	t.Helper()
	if len(users) == 0 {
		users = campus()
	}

	f := &sweepFixture{
		repo:       &flakyRepo{UserRepository: memory.NewUserRepository(users...), failStanding: map[string]bool{}},
		dispatcher: &recordingDispatcher{},
		publisher:  &recordingPublisher{},
		clock:      timeutil.NewFixedClock(today),
	}
	f.planner = lifecycle.NewPlanner(f.repo, lifecycle.NewEvaluator(lifecycle.DefaultGraduationCutoff))
	f.handler = NewRunRoleSweepHandler(f.planner, f.repo, f.dispatcher, f.publisher, lock, f.clock, logger.Nop(),
		RunRoleSweepHandlerConfig{NotifyRoleChanges: true})
	return f
}

func (f *sweepFixture) role(t *testing.T, id string) *user.User {
	t.Helper()
	u, err := f.repo.GetByID(context.Background(), id)
	require.NoError(t, err)
	return u
}

func TestRunRoleSweep_AppliesPlan(t *testing.T) {
	today := timeutil.Date(2025, time.March, 1)
	f := newSweepFixture(t, today, nil)

	res, err := f.handler.Handle(context.Background(), RunRoleSweepCommand{TriggeredBy: TriggerAdmin})
	require.NoError(t, err)

	assert.Equal(t, lifecycle.Summary{StudentsToSenior: 1, SeniorsToAlumni: 1, Overdue: 1, TotalUpgraded: 3}, res.Summary)
	assert.Equal(t, today, res.Today)
	assert.NotEmpty(t, res.RunID)

	senior := f.role(t, "final-student")
	assert.Equal(t, user.RoleSenior, senior.Role)
	assert.Equal(t, 4, senior.CurrentYear)
	assert.False(t, senior.Graduated)
	require.NotNil(t, senior.RoleLastUpdated)
	assert.Equal(t, today, *senior.RoleLastUpdated)

	for _, id := range []string{"senior-2024", "overdue-student"} {
		u := f.role(t, id)
		assert.Equal(t, user.RoleAlumni, u.Role, id)
		assert.True(t, u.Graduated, id)
		assert.Equal(t, user.FinalYear, u.CurrentYear, id)
	}

	assert.Equal(t, user.RoleStudent, f.role(t, "junior").Role)
	assert.Equal(t, user.RoleAdmin, f.role(t, "admin").Role)

	assert.Len(t, f.dispatcher.sent, 3)
	assert.Len(t, f.publisher.ofType(shared.EventRoleChanged), 3)
	require.Len(t, f.publisher.ofType(shared.EventSweepCompleted), 1)

	done := f.publisher.ofType(shared.EventSweepCompleted)[0].(shared.SweepCompletedEvent)
	assert.Equal(t, 3, done.TotalUpgraded)
	assert.Equal(t, TriggerAdmin, done.TriggeredBy)

	for _, e := range f.publisher.ofType(shared.EventRoleChanged) {
		assert.Equal(t, shared.SourceSweep, e.(shared.RoleChangedEvent).Source)
	}
}

func TestRunRoleSweep_IsolatesPersistenceFailures(t *testing.T) {
	f := newSweepFixture(t, timeutil.Date(2025, time.March, 1), nil)
	f.repo.failStanding["senior-2024"] = true

	res, err := f.handler.Handle(context.Background(), RunRoleSweepCommand{})
	require.NoError(t, err)

	assert.Equal(t, 2, res.Summary.TotalUpgraded)
	assert.Equal(t, 1, res.Summary.Failed)
	assert.Equal(t, 0, res.Summary.SeniorsToAlumni)

	failed := f.role(t, "senior-2024")
	assert.Equal(t, user.RoleSenior, failed.Role)
	assert.Nil(t, failed.RoleLastUpdated)

	for _, e := range f.dispatcher.sent {
		assert.NotEqual(t, "senior-2024", e.UserID, "failed users are not notified")
	}
	assert.Len(t, f.dispatcher.sent, 2)
}

func TestRunRoleSweep_NotificationFailureKeepsMutation(t *testing.T) {
	f := newSweepFixture(t, timeutil.Date(2025, time.March, 1), nil)
	f.dispatcher.err = shared.ErrMailProviderDown

	res, err := f.handler.Handle(context.Background(), RunRoleSweepCommand{})
	require.NoError(t, err)

	assert.Equal(t, 3, res.Summary.TotalUpgraded)
	assert.Equal(t, 0, res.Summary.Failed)
	assert.Equal(t, 3, res.NotificationsFailed)
	assert.Equal(t, user.RoleAlumni, f.role(t, "overdue-student").Role)
}

func TestRunRoleSweep_NotificationsDisabled(t *testing.T) {
	f := newSweepFixture(t, timeutil.Date(2025, time.March, 1), nil)
	f.handler.config.NotifyRoleChanges = false

	res, err := f.handler.Handle(context.Background(), RunRoleSweepCommand{})
	require.NoError(t, err)

	assert.Equal(t, 3, res.Summary.TotalUpgraded)
	assert.Empty(t, f.dispatcher.sent)
}

func TestRunRoleSweep_IsIdempotent(t *testing.T) {
	f := newSweepFixture(t, timeutil.Date(2025, time.March, 1), nil)

	_, err := f.handler.Handle(context.Background(), RunRoleSweepCommand{})
	require.NoError(t, err)

	res, err := f.handler.Handle(context.Background(), RunRoleSweepCommand{})
	require.NoError(t, err)
	assert.Equal(t, lifecycle.Summary{}, res.Summary)
	assert.Len(t, f.dispatcher.sent, 3)
}

func TestRunRoleSweep_PreviewMatchesApply(t *testing.T) {
	for _, today := range []time.Time{
		timeutil.Date(2025, time.March, 1),
		timeutil.Date(2025, time.August, 1),
		timeutil.Date(2026, time.January, 15),
	} {
		f := newSweepFixture(t, today, nil)
		preview := query.NewPreviewRoleSweepHandler(f.planner, f.clock, logger.Nop())

		before, err := preview.Handle(context.Background(), query.PreviewRoleSweepQuery{})
		require.NoError(t, err)

		res, err := f.handler.Handle(context.Background(), RunRoleSweepCommand{})
		require.NoError(t, err)

		assert.Equal(t, before.Summary, res.Summary, today.String())

		changed := map[string]bool{}
		for _, e := range f.dispatcher.sent {
			changed[e.UserID] = true
		}
		for _, row := range before.Rows {
			assert.True(t, changed[row.UserID], "%s previewed but not applied", row.UserID)
			assert.Equal(t, row.ToRole, f.role(t, row.UserID).Role)
		}
		assert.Len(t, changed, len(before.Rows))
	}
}

func TestRunRoleSweep_GraduationScenario(t *testing.T) {
	u := member("scenario", user.RoleStudent, 2021, 2025, 4)
	f := newSweepFixture(t, timeutil.Date(2025, time.March, 1), nil, u)

	res, err := f.handler.Handle(context.Background(), RunRoleSweepCommand{})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Summary.StudentsToSenior)
	assert.Equal(t, user.RoleSenior, f.role(t, "scenario").Role)

	f.clock.Set(timeutil.Date(2025, time.August, 1))
	res, err = f.handler.Handle(context.Background(), RunRoleSweepCommand{})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Summary.SeniorsToAlumni)

	got := f.role(t, "scenario")
	assert.Equal(t, user.RoleAlumni, got.Role)
	assert.True(t, got.Graduated)
	assert.Equal(t, []sentEmail{
		{UserID: "scenario", From: user.RoleStudent, To: user.RoleSenior},
		{UserID: "scenario", From: user.RoleSenior, To: user.RoleAlumni},
	}, f.dispatcher.sent)
}

func TestRunRoleSweep_QueryFailureAbortsSweep(t *testing.T) {
	f := newSweepFixture(t, timeutil.Date(2025, time.March, 1), nil)
	f.repo.findErr = errors.New("connection reset")

	res, err := f.handler.Handle(context.Background(), RunRoleSweepCommand{})
	assert.Nil(t, res)
	assert.ErrorIs(t, err, shared.ErrCohortQueryFailed)
	assert.Empty(t, f.dispatcher.sent)
	assert.Empty(t, f.publisher.events)
}

func TestRunRoleSweep_Lock(t *testing.T) {
	t.Run("held elsewhere", func(t *testing.T) {
		lock := &fakeLock{err: shared.ErrSweepInProgress}
		f := newSweepFixture(t, timeutil.Date(2025, time.March, 1), lock)

		res, err := f.handler.Handle(context.Background(), RunRoleSweepCommand{})
		assert.Nil(t, res)
		assert.ErrorIs(t, err, shared.ErrSweepInProgress)
		assert.Equal(t, user.RoleStudent, f.role(t, "final-student").Role)
	})

	t.Run("released after run", func(t *testing.T) {
		lock := &fakeLock{}
		f := newSweepFixture(t, timeutil.Date(2025, time.March, 1), lock)

		_, err := f.handler.Handle(context.Background(), RunRoleSweepCommand{})
		require.NoError(t, err)
		assert.Equal(t, 1, lock.acquired)
		assert.Equal(t, 1, lock.released)
	})

	t.Run("backend failure", func(t *testing.T) {
		lock := &fakeLock{err: errors.New("redis: connection refused")}
		f := newSweepFixture(t, timeutil.Date(2025, time.March, 1), lock)

		_, err := f.handler.Handle(context.Background(), RunRoleSweepCommand{})
		require.Error(t, err)
		assert.NotErrorIs(t, err, shared.ErrSweepInProgress)
	})
}

func TestRunRoleSweep_StopsWhenCancelled(t *testing.T) {
	f := newSweepFixture(t, timeutil.Date(2025, time.March, 1), nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := f.handler.Handle(ctx, RunRoleSweepCommand{})
	require.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, res)
	assert.Equal(t, 0, res.Summary.TotalUpgraded)
}
