package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/collegeconnect/collegeconnect-hub/internal/application/command"
	"github.com/collegeconnect/collegeconnect-hub/internal/application/query"
	"github.com/collegeconnect/collegeconnect-hub/internal/domain/lifecycle"
	"github.com/collegeconnect/collegeconnect-hub/internal/domain/shared"
	"github.com/collegeconnect/collegeconnect-hub/internal/domain/user"
	"github.com/collegeconnect/collegeconnect-hub/internal/infrastructure/persistence/memory"
	"github.com/collegeconnect/collegeconnect-hub/internal/infrastructure/persistence/redis"
	"github.com/collegeconnect/collegeconnect-hub/internal/interface/http/handlers"
	"github.com/collegeconnect/collegeconnect-hub/pkg/logger"
	"github.com/collegeconnect/collegeconnect-hub/pkg/timeutil"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const (
	testSecret = "test-secret"
	testIssuer = "collegeconnect"
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

type busyLock struct{}

func (busyLock) Acquire(context.Context) (func(context.Context) error, error) {
	return nil, shared.ErrSweepInProgress
}

type testEnv struct {
	server  *Server
	repo    *memory.UserRepository
	planner *lifecycle.Planner
	clock   *timeutil.FixedClock
	tokens  *handlers.TokenManager
	mr      *miniredis.Miniredis
}

type envOption func(*testEnv, *Dependencies)

func withoutPresence(_ *testEnv, d *Dependencies) {
	d.TrackPresenceHandler = nil
	d.GetOnlineNowHandler = nil
}

func withLock(lock command.SweepLock) envOption {
	return func(e *testEnv, d *Dependencies) {
		d.RunRoleSweepHandler = command.NewRunRoleSweepHandler(e.planner, e.repo, nil, nil, lock, e.clock, logger.Nop(),
			command.RunRoleSweepHandlerConfig{})
	}
}

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()

	env := &testEnv{
		clock: timeutil.NewFixedClock(time.Date(2025, time.March, 1, 9, 0, 0, 0, time.UTC)),
		repo: memory.NewUserRepository(
			member("final-student", user.RoleStudent, 2021, 2025, 4),
			member("senior-2024", user.RoleSenior, 2020, 2024, 4),
			member("overdue-student", user.RoleStudent, 2018, 2022, 3),
			member("junior", user.RoleStudent, 2023, 2027, 2),
			member("admin", user.RoleAdmin, 2015, 2019, 4),
		),
		tokens: handlers.NewTokenManager(testSecret, testIssuer),
		mr:     miniredis.RunT(t),
	}
	evaluator := lifecycle.NewEvaluator(time.July)
	env.planner = lifecycle.NewPlanner(env.repo, evaluator)

	client := goredis.NewClient(&goredis.Options{Addr: env.mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	cache := redis.NewCacheFromClient(client)
	registry := redis.NewPresenceRegistry(cache, env.clock, time.Minute, 5*time.Second)

	checker := handlers.NewHealthChecker("test")
	checker.AddCheck("postgres", func(context.Context) error { return nil })
	checker.AddOptionalCheck("redis", handlers.NewPingCheck(cache))

	deps := Dependencies{
		RunRoleSweepHandler: command.NewRunRoleSweepHandler(env.planner, env.repo, nil, nil, nil, env.clock, logger.Nop(),
			command.RunRoleSweepHandlerConfig{}),
		PreviewRoleSweepHandler: query.NewPreviewRoleSweepHandler(env.planner, env.clock, logger.Nop()),
		UpdateAcademicYearsHandler: command.NewUpdateAcademicYearsHandler(env.repo, evaluator, nil, env.clock, logger.Nop(),
			command.UpdateAcademicYearsHandlerConfig{AutoTransition: true}),
		TrackPresenceHandler: command.NewTrackPresenceHandler(registry, nil, env.clock, logger.Nop()),
		GetOnlineNowHandler:  query.NewGetOnlineNowHandler(registry),
		Tokens:               env.tokens,
		HealthChecker:        checker,
		Logger:               logger.Nop(),
	}
	for _, opt := range opts {
		opt(env, &deps)
	}

	cfg := DefaultConfig()
	cfg.RateLimitPerMinute = 0
	srv, err := NewServer(cfg, deps)
	require.NoError(t, err)
	env.server = srv
	return env
}

func (e *testEnv) token(t *testing.T, subject string, role user.Role) string {
	t.Helper()
	tok, err := e.tokens.Generate(subject, role, time.Hour)
	require.NoError(t, err)
	return tok
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rec, req)
	return rec
}

type envelope struct {
	Success   bool               `json:"success"`
	Data      json.RawMessage    `json:"data"`
	Error     *handlers.APIError `json:"error"`
	RequestID string             `json:"request_id"`
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, data any) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	if data != nil && len(env.Data) > 0 {
		require.NoError(t, json.Unmarshal(env.Data, data))
	}
	return env
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var status handlers.HealthStatus
	resp := decode(t, rec, &status)
	assert.True(t, resp.Success)
	assert.True(t, status.Healthy)
	assert.False(t, status.Degraded)
	assert.NotEmpty(t, rec.Header().Get(handlers.RequestIDHeader))

	env.mr.Close()

	rec = env.do(t, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code, "redis is optional")
	decode(t, rec, &status)
	assert.True(t, status.Degraded)

	rec = env.do(t, http.MethodGet, "/ready", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRoleTransition_Authorization(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/v1/role-transition/upgrade", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/v1/role-transition/upgrade", "not-a-jwt", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/v1/role-transition/preview", env.token(t, "junior", user.RoleStudent), nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	resp := decode(t, rec, nil)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "forbidden", resp.Error.Code)

	other := handlers.NewTokenManager("another-secret", testIssuer)
	forged, err := other.Generate("admin", user.RoleAdmin, time.Hour)
	require.NoError(t, err)
	rec = env.do(t, http.MethodGet, "/api/v1/role-transition/preview", forged, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRoleTransition_PreviewMatchesUpgrade(t *testing.T) {
	env := newTestEnv(t)
	admin := env.token(t, "admin", user.RoleAdmin)

	rec := env.do(t, http.MethodGet, "/api/v1/role-transition/preview?date=2025-03-01", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var preview query.PreviewRoleSweepResult
	decode(t, rec, &preview)
	assert.Equal(t, lifecycle.Summary{StudentsToSenior: 1, SeniorsToAlumni: 1, Overdue: 1, TotalUpgraded: 3}, preview.Summary)
	require.Len(t, preview.Rows, 3)

	rec = env.do(t, http.MethodPost, "/api/v1/role-transition/upgrade?date=2025-03-01", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var applied sweepResponse
	decode(t, rec, &applied)
	assert.Equal(t, preview.Summary, applied.Summary)
	assert.Equal(t, "2025-03-01", applied.Today)
	assert.NotEmpty(t, applied.RunID)

	u, err := env.repo.GetByID(context.Background(), "final-student")
	require.NoError(t, err)
	assert.Equal(t, user.RoleSenior, u.Role)

	rec = env.do(t, http.MethodPost, "/api/v1/role-transition/upgrade?date=2025-03-01", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &applied)
	assert.Zero(t, applied.TotalUpgraded)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(decode(t, rec, nil).Data, &raw))
	assert.Contains(t, raw, "studentsToSenior")
	assert.Contains(t, raw, "totalUpgraded")
}

func TestRoleTransition_BadRequestAndConflict(t *testing.T) {
	env := newTestEnv(t)
	admin := env.token(t, "admin", user.RoleAdmin)

	rec := env.do(t, http.MethodPost, "/api/v1/role-transition/upgrade?date=01.03.2025", admin, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/v1/role-transition/preview?format=pdf", admin, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	locked := newTestEnv(t, withLock(busyLock{}))
	rec = locked.do(t, http.MethodPost, "/api/v1/role-transition/upgrade", locked.token(t, "admin", user.RoleAdmin), nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	resp := decode(t, rec, nil)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "sweep_in_progress", resp.Error.Code)
}

func TestRoleTransition_PreviewWorkbook(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/v1/role-transition/preview?date=2025-08-01&format=xlsx", env.token(t, "admin", user.RoleAdmin), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, XLSXContentType, rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "role-sweep-preview-2025-08-01.xlsx")

	book, err := excelize.OpenReader(bytes.NewReader(rec.Body.Bytes()))
	require.NoError(t, err)
	defer book.Close()

	rows, err := book.GetRows(sheetUsers)
	require.NoError(t, err)
	require.Len(t, rows, 4, "header plus three users")
	assert.Equal(t, "User ID", rows[0][0])

	summary, err := book.GetRows(sheetSummary)
	require.NoError(t, err)
	assert.Equal(t, []string{"Seniors to alumni", "2"}, summary[2])
	assert.Equal(t, []string{"Total", "3"}, summary[4])
}

func TestUpdateAcademicYears(t *testing.T) {
	env := newTestEnv(t)
	path := "/api/v1/users/junior/academic-years"
	body := map[string]any{"admissionYear": 2021, "graduationYear": 2025}

	t.Run("other users are forbidden", func(t *testing.T) {
		rec := env.do(t, http.MethodPut, path, env.token(t, "final-student", user.RoleStudent), body)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("out of range year", func(t *testing.T) {
		rec := env.do(t, http.MethodPut, path, env.token(t, "junior", user.RoleStudent), map[string]any{"admissionYear": 1800})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		resp := decode(t, rec, nil)
		require.NotNil(t, resp.Error)
		assert.Equal(t, "validation_error", resp.Error.Code)
		assert.Contains(t, resp.Error.Details, "AdmissionYear")
	})

	t.Run("graduation before admission", func(t *testing.T) {
		rec := env.do(t, http.MethodPut, path, env.token(t, "junior", user.RoleStudent),
			map[string]any{"admissionYear": 2025, "graduationYear": 2021})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("self update promotes", func(t *testing.T) {
		rec := env.do(t, http.MethodPut, path, env.token(t, "junior", user.RoleStudent), body)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var res academicYearsResponse
		decode(t, rec, &res)
		assert.Equal(t, user.RoleSenior, res.Role)
		assert.Equal(t, 4, res.CurrentYear)
		assert.True(t, res.RoleChanged)
		assert.True(t, res.Updated)
	})

	t.Run("repeat save is up to date", func(t *testing.T) {
		rec := env.do(t, http.MethodPut, path, env.token(t, "admin", user.RoleAdmin), body)
		require.Equal(t, http.StatusOK, rec.Code)

		var res academicYearsResponse
		decode(t, rec, &res)
		assert.False(t, res.Updated)
		assert.Equal(t, string(lifecycle.SkipUpToDate), res.SkipReason)
	})

	t.Run("unknown user", func(t *testing.T) {
		rec := env.do(t, http.MethodPut, "/api/v1/users/ghost/academic-years", env.token(t, "admin", user.RoleAdmin), body)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("malformed body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPut, path, strings.NewReader("{"))
		req.Header.Set("Authorization", "Bearer "+env.token(t, "junior", user.RoleStudent))
		rec := httptest.NewRecorder()
		env.server.Handler().ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestPresence(t *testing.T) {
	env := newTestEnv(t)
	alice := env.token(t, "alice", user.RoleStudent)

	rec := env.do(t, http.MethodPost, "/api/v1/presence/connect", alice, map[string]string{"connection_id": "tab-1"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var change command.PresenceChange
	decode(t, rec, &change)
	assert.True(t, change.WentOnline)

	rec = env.do(t, http.MethodPost, "/api/v1/presence/heartbeat", alice, map[string]string{"connection_id": "tab-1"})
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/v1/presence/online", alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var online query.GetOnlineNowResult
	decode(t, rec, &online)
	assert.Equal(t, []string{"alice"}, online.UserIDs)

	rec = env.do(t, http.MethodPost, "/api/v1/presence/typing", alice, map[string]string{"room_id": "room-1"})
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/v1/presence/typing/room-1", alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var typing query.GetTypingResult
	decode(t, rec, &typing)
	assert.Equal(t, []string{"alice"}, typing.UserIDs)

	rec = env.do(t, http.MethodPost, "/api/v1/presence/connect", alice, map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/v1/presence/disconnect", alice, map[string]string{"connection_id": "tab-1"})
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &change)
	assert.True(t, change.WentOffline)
}

func TestPresence_Disabled(t *testing.T) {
	env := newTestEnv(t, withoutPresence)

	rec := env.do(t, http.MethodGet, "/api/v1/presence/online", env.token(t, "alice", user.RoleStudent), nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestClassify(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{shared.ErrSweepInProgress, http.StatusConflict},
		{shared.ErrCohortQueryFailed.Wrap(errors.New("conn reset")), http.StatusInternalServerError},
		{shared.ErrInvalidAcademicYear, http.StatusBadRequest},
		{shared.ErrForbidden, http.StatusForbidden},
		{shared.ErrUserNotFound, http.StatusNotFound},
		{shared.ErrMailProviderDown, http.StatusServiceUnavailable},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		status, _ := classify(tc.err)
		assert.Equal(t, tc.status, status, tc.err.Error())
	}
}
