package email

import (
	"context"
	"time"

	"github.com/collegeconnect/collegeconnect-hub/internal/domain/notification"
	"github.com/collegeconnect/collegeconnect-hub/internal/domain/shared"
	"github.com/collegeconnect/collegeconnect-hub/internal/domain/user"
	"github.com/collegeconnect/collegeconnect-hub/pkg/logger"
)

// LogDispatcher renders role change emails and writes them to the log
// instead of sending. Used in development and when no provider is configured.
type LogDispatcher struct {
	renderer *Renderer
	logger   *logger.Logger
}

var _ notification.Dispatcher = (*LogDispatcher)(nil)

// NewLogDispatcher creates a LogDispatcher.
func NewLogDispatcher(renderer *Renderer, log *logger.Logger) *LogDispatcher {
	if log == nil {
		log = logger.Nop()
	}
	return &LogDispatcher{renderer: renderer, logger: log.With(logger.Component("email_log"))}
}

// SendRoleChangeEmail implements notification.Dispatcher.
func (d *LogDispatcher) SendRoleChangeEmail(_ context.Context, u *user.User, from, to user.Role) error {
	if u.Email == "" {
		return shared.ErrNoRecipient
	}

	msg, err := d.renderer.RenderRoleChange(notification.NewRoleChange(u, from, to, time.Now()))
	if err != nil {
		return shared.ErrNotificationFailed.Wrap(err)
	}

	d.logger.Info("role change email",
		logger.UserID(u.ID),
		logger.Email(msg.ToAddress),
		logger.String("subject", msg.Subject),
		logger.String("channel", string(notification.ChannelLog)),
		logger.String("body", msg.Text),
	)
	return nil
}

// NewDispatcher picks the dispatcher for the configured provider.
func NewDispatcher(provider notification.ChannelType, sg SendGridConfig, renderer *Renderer, log *logger.Logger) notification.Dispatcher {
	if provider == notification.ChannelEmail {
		return NewSendGridDispatcher(sg, renderer, log)
	}
	return NewLogDispatcher(renderer, log)
}
