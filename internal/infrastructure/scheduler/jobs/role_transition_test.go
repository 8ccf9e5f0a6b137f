package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/collegeconnect/collegeconnect-hub/internal/application/command"
	"github.com/collegeconnect/collegeconnect-hub/internal/domain/lifecycle"
	"github.com/collegeconnect/collegeconnect-hub/internal/domain/shared"
	"github.com/collegeconnect/collegeconnect-hub/pkg/logger"
)

type stubSweeper struct {
	cmd      command.RunRoleSweepCommand
	deadline bool
	result   *command.RunRoleSweepResult
	err      error
}

func (s *stubSweeper) Handle(ctx context.Context, cmd command.RunRoleSweepCommand) (*command.RunRoleSweepResult, error) {
	s.cmd = cmd
	_, s.deadline = ctx.Deadline()
	return s.result, s.err
}

func TestRoleTransitionJob_Run(t *testing.T) {
	summary := lifecycle.Summary{StudentsToSenior: 2, TotalUpgraded: 2}
	sweeper := &stubSweeper{result: &command.RunRoleSweepResult{Summary: summary}}
	job := NewRoleTransitionJob(sweeper, logger.Nop(), RoleTransitionConfig{Timeout: time.Minute})

	assert.Equal(t, RoleTransitionJobName, job.Name())
	assert.Nil(t, job.LastRunStats())

	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, command.TriggerScheduler, sweeper.cmd.TriggeredBy)
	assert.True(t, sweeper.deadline)

	stats := job.LastRunStats()
	require.NotNil(t, stats)
	assert.Equal(t, summary, stats.Summary)
	assert.False(t, stats.Skipped)
}

func TestRoleTransitionJob_SkipsWhenLocked(t *testing.T) {
	job := NewRoleTransitionJob(&stubSweeper{err: shared.ErrSweepInProgress}, nil, DefaultRoleTransitionConfig())

	require.NoError(t, job.Run(context.Background()))
	require.NotNil(t, job.LastRunStats())
	assert.True(t, job.LastRunStats().Skipped)
}

func TestRoleTransitionJob_PropagatesFailure(t *testing.T) {
	cause := errors.New("cohort query failed")
	job := NewRoleTransitionJob(&stubSweeper{err: cause}, nil, RoleTransitionConfig{})

	err := job.Run(context.Background())
	assert.ErrorIs(t, err, cause)
	assert.Nil(t, job.LastRunStats())
}
