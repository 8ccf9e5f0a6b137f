package email

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/collegeconnect/collegeconnect-hub/internal/domain/notification"
	"github.com/collegeconnect/collegeconnect-hub/internal/domain/shared"
	"github.com/collegeconnect/collegeconnect-hub/internal/domain/user"
	"github.com/collegeconnect/collegeconnect-hub/pkg/circuitbreaker"
	"github.com/collegeconnect/collegeconnect-hub/pkg/logger"
	"github.com/collegeconnect/collegeconnect-hub/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

const (
	// DefaultSendGridHost is the SendGrid API host.
	DefaultSendGridHost = "https://api.sendgrid.com"

	sendGridEndpoint = "/v3/mail/send"
)

// SendGridConfig contains configuration for the SendGrid dispatcher.
type SendGridConfig struct {
	APIKey      string
	FromName    string
	FromAddress string

	// Host overrides the API host (tests, regional endpoints).
	Host string

	// MaxAttempts is the number of tries per message, including the first.
	MaxAttempts    int
	RetryBaseDelay time.Duration

	BreakerThreshold int
	BreakerTimeout   time.Duration
}

// errRejected marks a 4xx answer: the request itself is wrong, so retrying
// or tripping the breaker would not help.
var errRejected = errors.New("sendgrid: request rejected")

// ══════════════════════════════════════════════════════════════════════════════
// SENDGRID DISPATCHER
// ══════════════════════════════════════════════════════════════════════════════

// SendGridDispatcher implements notification.Dispatcher over the SendGrid v3 API.
type SendGridDispatcher struct {
	cfg      SendGridConfig
	renderer *Renderer
	retrier  *retry.Retrier
	breaker  *circuitbreaker.CircuitBreaker
	logger   *logger.Logger
	now      func() time.Time
}

var _ notification.Dispatcher = (*SendGridDispatcher)(nil)

// NewSendGridDispatcher creates a SendGrid dispatcher.
func NewSendGridDispatcher(cfg SendGridConfig, renderer *Renderer, log *logger.Logger) *SendGridDispatcher {
	if cfg.Host == "" {
		cfg.Host = DefaultSendGridHost
	}
	if log == nil {
		log = logger.Nop()
	}
	log = log.With(logger.Component("sendgrid"))

	d := &SendGridDispatcher{
		cfg:      cfg,
		renderer: renderer,
		logger:   log,
		now:      time.Now,
	}

	d.retrier = retry.EmailRetrier(cfg.MaxAttempts, cfg.RetryBaseDelay,
		retry.WithOnRetry(func(attempt int, err error, delay time.Duration) {
			log.Warn("retrying email delivery",
				logger.Int("attempt", attempt),
				logger.Duration("delay", delay),
				logger.Err(err),
			)
		}),
	)

	d.breaker = circuitbreaker.EmailBreaker(cfg.BreakerThreshold, cfg.BreakerTimeout,
		circuitbreaker.WithIsFailure(func(err error) bool {
			return !errors.Is(err, errRejected) && !errors.Is(err, context.Canceled)
		}),
		circuitbreaker.WithOnStateChange(func(name string, from, to circuitbreaker.State) {
			log.Warn("mail circuit breaker state changed",
				logger.String("from", from.String()),
				logger.String("to", to.String()),
			)
		}),
	)

	return d
}

// SendRoleChangeEmail renders and sends the role change notification.
func (d *SendGridDispatcher) SendRoleChangeEmail(ctx context.Context, u *user.User, from, to user.Role) error {
	if u.Email == "" {
		return shared.ErrNoRecipient
	}

	msg, err := d.renderer.RenderRoleChange(notification.NewRoleChange(u, from, to, d.now()))
	if err != nil {
		return shared.ErrNotificationFailed.Wrap(err)
	}

	err = d.breaker.Execute(ctx, func(ctx context.Context) error {
		return d.retrier.Do(ctx, func(ctx context.Context) error {
			return d.send(ctx, msg)
		})
	})
	switch {
	case err == nil:
		d.logger.Info("role change email sent",
			logger.UserID(u.ID),
			logger.String("to_role", string(to)),
		)
		return nil
	case errors.Is(err, circuitbreaker.ErrCircuitOpen), errors.Is(err, circuitbreaker.ErrTooManyRequests):
		return shared.ErrMailProviderDown.Wrap(err)
	default:
		return shared.ErrNotificationFailed.Wrap(err)
	}
}

func (d *SendGridDispatcher) build(msg Message) *sgmail.SGMailV3 {
	p := sgmail.NewPersonalization()
	p.Subject = msg.Subject
	p.AddTos(sgmail.NewEmail(msg.ToName, msg.ToAddress))

	m := sgmail.NewV3Mail()
	m.SetFrom(sgmail.NewEmail(d.cfg.FromName, d.cfg.FromAddress))
	m.AddPersonalizations(p)
	m.AddContent(
		sgmail.NewContent("text/plain", msg.Text),
		sgmail.NewContent("text/html", msg.HTML),
	)
	return m
}

// send performs one API call and classifies the outcome for the retrier.
func (d *SendGridDispatcher) send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return retry.Permanent(err)
	}

	req := sendgrid.GetRequest(d.cfg.APIKey, sendGridEndpoint, d.cfg.Host)
	req.Method = http.MethodPost
	req.Body = sgmail.GetRequestBody(d.build(msg))

	res, err := sendgrid.API(req)
	if err != nil {
		return retry.Retryable(fmt.Errorf("sendgrid: %w", err))
	}

	switch {
	case res.StatusCode == http.StatusTooManyRequests || res.StatusCode >= http.StatusInternalServerError:
		return retry.Retryable(fmt.Errorf("sendgrid: status %d: %s", res.StatusCode, res.Body))
	case res.StatusCode >= http.StatusBadRequest:
		return retry.Permanent(fmt.Errorf("%w: status %d: %s", errRejected, res.StatusCode, res.Body))
	default:
		return nil
	}
}
