package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/collegeconnect/collegeconnect-hub/internal/domain/user"
	"github.com/collegeconnect/collegeconnect-hub/pkg/logger"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestTokenManager_Verify(t *testing.T) {
	tm := NewTokenManager("secret", "collegeconnect")

	tok, err := tm.Generate("u-1", user.RoleAdmin, time.Hour)
	require.NoError(t, err)
	p, err := tm.Verify(tok)
	require.NoError(t, err)
	assert.Equal(t, Principal{UserID: "u-1", Role: user.RoleAdmin}, p)
	assert.True(t, p.IsAdmin())

	t.Run("expired", func(t *testing.T) {
		tok, err := tm.Generate("u-1", user.RoleStudent, -time.Minute)
		require.NoError(t, err)
		_, err = tm.Verify(tok)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("wrong issuer", func(t *testing.T) {
		tok, err := NewTokenManager("secret", "someone-else").Generate("u-1", user.RoleStudent, time.Hour)
		require.NoError(t, err)
		_, err = tm.Verify(tok)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("unknown role", func(t *testing.T) {
		claims := Claims{
			Role: "wizard",
			RegisteredClaims: jwt.RegisteredClaims{
				Issuer:    "collegeconnect",
				Subject:   "u-1",
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			},
		}
		tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
		require.NoError(t, err)
		_, err = tm.Verify(tok)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("unsigned", func(t *testing.T) {
		claims := Claims{
			Role: "admin",
			RegisteredClaims: jwt.RegisteredClaims{
				Issuer:    "collegeconnect",
				Subject:   "u-1",
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			},
		}
		tok, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)
		_, err = tm.Verify(tok)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("no secret configured", func(t *testing.T) {
		_, err := NewTokenManager("", "").Verify(tok)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}

func TestBearerToken(t *testing.T) {
	assert.Equal(t, "abc", bearerToken("Bearer abc"))
	assert.Equal(t, "abc", bearerToken("bearer abc"))
	assert.Empty(t, bearerToken("Bearer "))
	assert.Empty(t, bearerToken("Basic abc"))
	assert.Empty(t, bearerToken(""))
}

func newRouter(mw ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.Use(RequestIDMiddleware())
	r.Use(mw...)
	r.GET("/ping", func(c *gin.Context) { WriteJSON(c, http.StatusOK, gin.H{"pong": true}) })
	r.GET("/panic", func(*gin.Context) { panic("nil map write") })
	return r
}

func serve(r http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestRequestIDMiddleware(t *testing.T) {
	r := newRouter()

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(RequestIDHeader, "req-42")
	rec := serve(r, req)
	assert.Equal(t, "req-42", rec.Header().Get(RequestIDHeader))
	assert.Contains(t, rec.Body.String(), `"request_id":"req-42"`)

	rec = serve(r, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.Len(t, rec.Header().Get(RequestIDHeader), 36)
}

func TestRecoveryMiddleware(t *testing.T) {
	r := newRouter(RecoveryMiddleware(logger.Nop()), AccessLogMiddleware(logger.Nop()))

	rec := serve(r, httptest.NewRequest(http.MethodGet, "/panic", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "internal_server_error")
}

func TestCORSMiddleware(t *testing.T) {
	r := newRouter(CORSMiddleware([]string{"https://app.collegeconnect.edu"}))

	req := httptest.NewRequest(http.MethodOptions, "/ping", nil)
	req.Header.Set("Origin", "https://app.collegeconnect.edu")
	rec := serve(r, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://app.collegeconnect.edu", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec = serve(r, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRateLimitMiddleware(t *testing.T) {
	r := newRouter(RateLimitMiddleware(NewRateLimiter(2, time.Minute)))

	for i := 0; i < 2; i++ {
		rec := serve(r, httptest.NewRequest(http.MethodGet, "/ping", nil))
		require.Equal(t, http.StatusOK, rec.Code)
	}
	rec := serve(r, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
}

func TestAuthenticateAndRequireRole(t *testing.T) {
	tm := NewTokenManager("secret", "")
	r := newRouter(Authenticate(tm), RequireRole(user.RoleAdmin))

	rec := serve(r, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	student, err := tm.Generate("u-1", user.RoleStudent, time.Hour)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("Authorization", "Bearer "+student)
	assert.Equal(t, http.StatusForbidden, serve(r, req).Code)

	admin, err := tm.Generate("u-2", user.RoleAdmin, time.Hour)
	require.NoError(t, err)
	req = httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("Authorization", "Bearer "+admin)
	assert.Equal(t, http.StatusOK, serve(r, req).Code)
}

func TestHealthChecker(t *testing.T) {
	hc := NewHealthChecker("1.0.0")
	assert.True(t, hc.Check(context.Background()).Healthy)

	hc.AddCheck("postgres", func(context.Context) error { return nil })
	hc.AddOptionalCheck("redis", func(context.Context) error { return errors.New("connection refused") })

	status := hc.Check(context.Background())
	assert.True(t, status.Healthy)
	assert.True(t, status.Degraded)
	assert.Equal(t, "Some checks failed: redis", status.Message)
	assert.True(t, status.Checks["redis"].Optional)

	hc.AddCheck("postgres", func(context.Context) error { return errors.New("too many clients") })
	status = hc.Check(context.Background())
	assert.False(t, status.Healthy)
	assert.Equal(t, "Some checks failed: postgres, redis", status.Message)
}

func TestHealthChecker_Timeout(t *testing.T) {
	hc := NewHealthChecker("1.0.0")
	hc.SetTimeout(20 * time.Millisecond)
	hc.SetTimeout(0)
	hc.AddCheck("postgres", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	start := time.Now()
	status := hc.Check(context.Background())
	assert.False(t, status.Healthy)
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, context.DeadlineExceeded.Error(), status.Checks["postgres"].Message)
}
