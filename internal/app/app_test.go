package app

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/collegeconnect/collegeconnect-hub/config"
	"github.com/collegeconnect/collegeconnect-hub/internal/application/command"
	"github.com/collegeconnect/collegeconnect-hub/internal/domain/user"
	"github.com/collegeconnect/collegeconnect-hub/internal/infrastructure/persistence/memory"
	"github.com/collegeconnect/collegeconnect-hub/pkg/logger"
)

func testConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{
			Name:            "collegeconnect",
			Environment:     config.EnvDevelopment,
			Version:         "test",
			Location:        time.UTC,
			ShutdownTimeout: time.Second,
		},
		Redis:    config.RedisConfig{Disabled: true},
		Email:    config.EmailConfig{Provider: "log", FrontendURL: "http://localhost:3000"},
		Academic: config.AcademicConfig{GraduationCutoffMonth: time.July},
		Scheduler: config.SchedulerConfig{
			RoleSweepLockTTL: time.Minute,
		},
		Presence: config.PresenceConfig{ConnectionTTL: time.Minute, TypingTTL: time.Second},
		Features: config.LoadFeatureFlags(),
	}
}

func TestNew_InMemory(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := New(ctx, testConfig(), logger.Nop())
	require.NoError(t, err)
	defer func() { assert.NoError(t, a.Close()) }()

	assert.IsType(t, &memory.UserRepository{}, a.Users)
	assert.Nil(t, a.DB)
	assert.Nil(t, a.Cache)
	assert.Nil(t, a.TrackPresence)
	assert.Nil(t, a.GetOnlineNow)

	_, err = a.RunBus(ctx)
	require.NoError(t, err)

	final := 2025
	admission := 2021
	require.NoError(t, a.Users.Create(ctx, &user.User{
		ID:                 "u-1",
		Email:              "final@college.edu",
		FullName:           "Final Year",
		Role:               user.RoleStudent,
		VerificationStatus: user.VerificationApproved,
		AdmissionYear:      &admission,
		GraduationYear:     &final,
		CurrentYear:        4,
	}))

	res, err := a.RunRoleSweep.Handle(ctx, command.RunRoleSweepCommand{
		Today:       time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC),
		TriggeredBy: command.TriggerManual,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Summary.StudentsToSenior)

	u, err := a.Users.GetByID(ctx, "u-1")
	require.NoError(t, err)
	assert.Equal(t, user.RoleSenior, u.Role)
}

func TestNew_AutoTransitionPerUser(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()
	require.NoError(t, cfg.Features.DisableFeature(config.FeatureLifecycleAutoTransition))
	cfg.Features.SetUserOverride("u-pilot", config.FeatureLifecycleAutoTransition, true)

	a, err := New(ctx, cfg, logger.Nop())
	require.NoError(t, err)
	defer func() { assert.NoError(t, a.Close()) }()

	for _, id := range []string{"u-pilot", "u-other"} {
		admission, graduation := 2023, 2027
		require.NoError(t, a.Users.Create(ctx, &user.User{
			ID:                 id,
			Email:              id + "@college.edu",
			Role:               user.RoleStudent,
			VerificationStatus: user.VerificationApproved,
			AdmissionYear:      &admission,
			GraduationYear:     &graduation,
			CurrentYear:        2,
		}))

		_, err := a.UpdateAcademicYears.Handle(ctx, command.UpdateAcademicYearsCommand{
			UserID:         id,
			AdmissionYear:  user.IntPtr(2018),
			GraduationYear: user.IntPtr(2022),
			ActorID:        id,
		})
		require.NoError(t, err, id)
	}

	pilot, err := a.Users.GetByID(ctx, "u-pilot")
	require.NoError(t, err)
	assert.Equal(t, user.RoleAlumni, pilot.Role)

	other, err := a.Users.GetByID(ctx, "u-other")
	require.NoError(t, err)
	assert.Equal(t, user.RoleStudent, other.Role)
	assert.Equal(t, 2022, *other.GraduationYear)
}

func TestNew_WithRedis(t *testing.T) {
	mr := miniredis.RunT(t)

	cfg := testConfig()
	cfg.Redis = config.RedisConfig{
		URL:         "redis://" + mr.Addr(),
		DialTimeout: time.Second,
	}

	a, err := New(context.Background(), cfg, logger.Nop())
	require.NoError(t, err)
	defer func() { assert.NoError(t, a.Close()) }()

	require.NotNil(t, a.Cache)
	assert.NotNil(t, a.TrackPresence)
	assert.NotNil(t, a.GetOnlineNow)
}

func TestNew_RedisUnavailable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	cfg := testConfig()
	cfg.Redis = config.RedisConfig{URL: "redis://" + addr, DialTimeout: 200 * time.Millisecond}

	a, err := New(context.Background(), cfg, logger.Nop())
	require.NoError(t, err)
	defer func() { assert.NoError(t, a.Close()) }()

	assert.Nil(t, a.Cache)
	assert.Nil(t, a.TrackPresence)
}

func TestEmailChannel(t *testing.T) {
	assert.EqualValues(t, "email", emailChannel("sendgrid"))
	assert.EqualValues(t, "log", emailChannel("log"))
}
