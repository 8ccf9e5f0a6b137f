// Package jobs contains the scheduled jobs of CollegeConnect.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/collegeconnect/collegeconnect-hub/internal/application/command"
	"github.com/collegeconnect/collegeconnect-hub/internal/domain/lifecycle"
	"github.com/collegeconnect/collegeconnect-hub/internal/domain/shared"
	"github.com/collegeconnect/collegeconnect-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// ROLE TRANSITION JOB
// ══════════════════════════════════════════════════════════════════════════════

// RoleTransitionJobName is the scheduler name of the sweep job.
const RoleTransitionJobName = "role_transition_sweep"

// RoleSweeper runs one role sweep.
type RoleSweeper interface {
	Handle(ctx context.Context, cmd command.RunRoleSweepCommand) (*command.RunRoleSweepResult, error)
}

// RoleTransitionConfig contains configuration for the job.
type RoleTransitionConfig struct {
	// Timeout is the maximum duration of one sweep.
	Timeout time.Duration
}

// DefaultRoleTransitionConfig returns sensible defaults.
func DefaultRoleTransitionConfig() RoleTransitionConfig {
	return RoleTransitionConfig{Timeout: 10 * time.Minute}
}

// RoleTransitionStats describes the last run.
type RoleTransitionStats struct {
	StartedAt time.Time
	Duration  time.Duration
	Summary   lifecycle.Summary
	Skipped   bool
}

// RoleTransitionJob runs the batch role transition on a schedule.
type RoleTransitionJob struct {
	sweeper RoleSweeper
	logger  *logger.Logger
	config  RoleTransitionConfig

	lastRunStats atomic.Pointer[RoleTransitionStats]
}

// NewRoleTransitionJob creates the job.
func NewRoleTransitionJob(sweeper RoleSweeper, log *logger.Logger, config RoleTransitionConfig) *RoleTransitionJob {
	if log == nil {
		log = logger.Nop()
	}
	return &RoleTransitionJob{
		sweeper: sweeper,
		logger:  log.With(logger.Component("job"), logger.String("job", RoleTransitionJobName)),
		config:  config,
	}
}

// Name returns the job name.
func (j *RoleTransitionJob) Name() string {
	return RoleTransitionJobName
}

// Description returns a human-readable description.
func (j *RoleTransitionJob) Description() string {
	return "Promotes final-year students to senior and graduates to alumni"
}

// Run executes one sweep. A sweep already running in another process is not
// an error; this run is skipped.
func (j *RoleTransitionJob) Run(ctx context.Context) error {
	startedAt := time.Now()

	if j.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.config.Timeout)
		defer cancel()
	}

	res, err := j.sweeper.Handle(ctx, command.RunRoleSweepCommand{TriggeredBy: command.TriggerScheduler})
	if errors.Is(err, shared.ErrSweepInProgress) {
		j.logger.Info("sweep already running elsewhere, skipping")
		j.lastRunStats.Store(&RoleTransitionStats{StartedAt: startedAt, Duration: time.Since(startedAt), Skipped: true})
		return nil
	}
	if err != nil {
		return fmt.Errorf("%s: %w", RoleTransitionJobName, err)
	}

	j.lastRunStats.Store(&RoleTransitionStats{
		StartedAt: startedAt,
		Duration:  time.Since(startedAt),
		Summary:   res.Summary,
	})
	return nil
}

// LastRunStats returns statistics of the last completed run, or nil.
func (j *RoleTransitionJob) LastRunStats() *RoleTransitionStats {
	return j.lastRunStats.Load()
}
