package email

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/collegeconnect/collegeconnect-hub/internal/domain/notification"
	"github.com/collegeconnect/collegeconnect-hub/internal/domain/shared"
	"github.com/collegeconnect/collegeconnect-hub/internal/domain/user"
	"github.com/collegeconnect/collegeconnect-hub/pkg/logger"
)

func graduate() *user.User {
	return &user.User{
		ID:          "7f1c2a9e-0000-4000-8000-000000000001",
		Email:       "ada@college.edu",
		FullName:    "Ada Lovelace",
		Role:        user.RoleAlumni,
		CurrentYear: 4,
		Graduated:   true,
	}
}

func TestRenderRoleChange(t *testing.T) {
	r, err := NewRenderer("https://app.collegeconnect.dev/")
	require.NoError(t, err)

	msg, err := r.RenderRoleChange(notification.NewRoleChange(graduate(), user.RoleSenior, user.RoleAlumni, time.Now()))
	require.NoError(t, err)

	assert.Equal(t, "ada@college.edu", msg.ToAddress)
	assert.Equal(t, "Welcome to the CollegeConnect alumni network", msg.Subject)
	assert.Contains(t, msg.Text, "Hi Ada Lovelace,")
	assert.Contains(t, msg.Text, "alumni network")
	assert.Contains(t, msg.Text, "https://app.collegeconnect.dev/profile")
	assert.Contains(t, msg.HTML, "<strong>alumni</strong>")
}

func TestRenderRoleChange_EscapesHTML(t *testing.T) {
	r, err := NewRenderer("")
	require.NoError(t, err)

	u := graduate()
	u.FullName = "<script>x</script>"
	msg, err := r.RenderRoleChange(notification.NewRoleChange(u, user.RoleStudent, user.RoleSenior, time.Now()))
	require.NoError(t, err)

	assert.NotContains(t, msg.HTML, "<script>")
	assert.NotContains(t, msg.Text, "profile")
	assert.Equal(t, "You're now a senior on CollegeConnect", msg.Subject)
}

type sendGridStub struct {
	statuses []int
	calls    atomic.Int32
	last     atomic.Value
}

func (s *sendGridStub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	n := int(s.calls.Add(1))
	body, _ := io.ReadAll(r.Body)
	s.last.Store(body)

	status := http.StatusAccepted
	if n <= len(s.statuses) {
		status = s.statuses[n-1]
	}
	w.WriteHeader(status)
}

func newTestDispatcher(t *testing.T, stub *sendGridStub) *SendGridDispatcher {
	t.Helper()
	srv := httptest.NewServer(stub)
	t.Cleanup(srv.Close)

	r, err := NewRenderer("")
	require.NoError(t, err)

	return NewSendGridDispatcher(SendGridConfig{
		APIKey:           "SG.test",
		FromName:         "CollegeConnect",
		FromAddress:      "no-reply@collegeconnect.dev",
		Host:             srv.URL,
		MaxAttempts:      3,
		RetryBaseDelay:   time.Millisecond,
		BreakerThreshold: 2,
		BreakerTimeout:   time.Minute,
	}, r, logger.Nop())
}

func TestSendGrid_Delivers(t *testing.T) {
	stub := &sendGridStub{}
	d := newTestDispatcher(t, stub)

	require.NoError(t, d.SendRoleChangeEmail(context.Background(), graduate(), user.RoleSenior, user.RoleAlumni))
	assert.EqualValues(t, 1, stub.calls.Load())

	var payload struct {
		From struct {
			Email string `json:"email"`
		} `json:"from"`
		Personalizations []struct {
			To []struct {
				Email string `json:"email"`
			} `json:"to"`
			Subject string `json:"subject"`
		} `json:"personalizations"`
	}
	require.NoError(t, json.NewDecoder(bytes.NewReader(stub.last.Load().([]byte))).Decode(&payload))
	assert.Equal(t, "no-reply@collegeconnect.dev", payload.From.Email)
	require.Len(t, payload.Personalizations, 1)
	assert.Equal(t, "ada@college.edu", payload.Personalizations[0].To[0].Email)
	assert.Equal(t, "Welcome to the CollegeConnect alumni network", payload.Personalizations[0].Subject)
}

func TestSendGrid_RetriesServerErrors(t *testing.T) {
	stub := &sendGridStub{statuses: []int{http.StatusServiceUnavailable, http.StatusTooManyRequests}}
	d := newTestDispatcher(t, stub)

	require.NoError(t, d.SendRoleChangeEmail(context.Background(), graduate(), user.RoleSenior, user.RoleAlumni))
	assert.EqualValues(t, 3, stub.calls.Load())
}

func TestSendGrid_RejectedIsNotRetried(t *testing.T) {
	stub := &sendGridStub{statuses: []int{http.StatusBadRequest, http.StatusBadRequest, http.StatusBadRequest}}
	d := newTestDispatcher(t, stub)

	for i := 0; i < 3; i++ {
		err := d.SendRoleChangeEmail(context.Background(), graduate(), user.RoleSenior, user.RoleAlumni)
		assert.ErrorIs(t, err, shared.ErrNotificationFailed)
	}
	// rejections neither retry nor trip the breaker
	assert.EqualValues(t, 3, stub.calls.Load())
}

func TestSendGrid_BreakerOpensWhenProviderIsDown(t *testing.T) {
	down := make([]int, 20)
	for i := range down {
		down[i] = http.StatusBadGateway
	}
	stub := &sendGridStub{statuses: down}
	d := newTestDispatcher(t, stub)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		err := d.SendRoleChangeEmail(ctx, graduate(), user.RoleSenior, user.RoleAlumni)
		assert.ErrorIs(t, err, shared.ErrNotificationFailed)
	}
	calls := stub.calls.Load()

	err := d.SendRoleChangeEmail(ctx, graduate(), user.RoleSenior, user.RoleAlumni)
	assert.ErrorIs(t, err, shared.ErrMailProviderDown)
	assert.Equal(t, calls, stub.calls.Load(), "open breaker must not call the provider")
}

func TestDispatchers_RequireRecipient(t *testing.T) {
	r, err := NewRenderer("")
	require.NoError(t, err)

	u := graduate()
	u.Email = ""

	for _, d := range []notification.Dispatcher{
		NewLogDispatcher(r, logger.Nop()),
		NewSendGridDispatcher(SendGridConfig{}, r, logger.Nop()),
	} {
		assert.ErrorIs(t, d.SendRoleChangeEmail(context.Background(), u, user.RoleSenior, user.RoleAlumni), shared.ErrNoRecipient)
	}
}

func TestNewDispatcher(t *testing.T) {
	r, err := NewRenderer("")
	require.NoError(t, err)

	assert.IsType(t, &SendGridDispatcher{}, NewDispatcher(notification.ChannelEmail, SendGridConfig{}, r, nil))
	assert.IsType(t, &LogDispatcher{}, NewDispatcher(notification.ChannelLog, SendGridConfig{}, r, nil))
}
