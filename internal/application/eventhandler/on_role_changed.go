// Package eventhandler содержит обработчики доменных событий.
// Обработчики - реактивная часть системы: они запускают побочные эффекты
// (письма, кеши) после того, как изменение уже сохранено.
package eventhandler

import (
	"context"
	"fmt"

	"github.com/collegeconnect/collegeconnect-hub/internal/domain/notification"
	"github.com/collegeconnect/collegeconnect-hub/internal/domain/shared"
	"github.com/collegeconnect/collegeconnect-hub/internal/domain/user"
	"github.com/collegeconnect/collegeconnect-hub/pkg/logger"
)

// ═══════════════════════════════════════════════════════════════════════════
// ON ROLE CHANGED HANDLER
// Отправляет письмо о смене роли после редактирования профиля.
// Переходы массового запуска уведомляются самим запуском, поэтому здесь
// пропускаются, чтобы письмо не ушло дважды.
// ═══════════════════════════════════════════════════════════════════════════

// RoleChangedConfig содержит конфигурацию обработчика.
type RoleChangedConfig struct {
	// NotifyRoleChanges - отправлять ли письма.
	NotifyRoleChanges bool
}

// OnRoleChangedHandler обрабатывает RoleChangedEvent.
type OnRoleChangedHandler struct {
	users      user.Repository
	dispatcher notification.Dispatcher
	logger     *logger.Logger
	config     RoleChangedConfig
}

// NewOnRoleChangedHandler создаёт обработчик.
func NewOnRoleChangedHandler(
	users user.Repository,
	dispatcher notification.Dispatcher,
	log *logger.Logger,
	config RoleChangedConfig,
) *OnRoleChangedHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &OnRoleChangedHandler{
		users:      users,
		dispatcher: dispatcher,
		logger:     log.With(logger.Component("on_role_changed")),
		config:     config,
	}
}

// Handle обрабатывает событие. Ошибка возвращается только для сбоев,
// которые имеет смысл повторить (хранилище недоступно); ошибка доставки
// письма логируется и не влияет на уже сохранённый переход.
func (h *OnRoleChangedHandler) Handle(ctx context.Context, evt shared.RoleChangedEvent) error {
	log := h.logger.With(
		logger.UserID(evt.AggregateID()),
		logger.String("from_role", evt.FromRole),
		logger.String("to_role", evt.ToRole),
		logger.String("source", evt.Source),
	)

	if evt.Source == shared.SourceSweep {
		log.Debug("sweep transition already notified")
		return nil
	}
	if !h.config.NotifyRoleChanges || h.dispatcher == nil {
		log.Debug("role change emails disabled")
		return nil
	}

	from, err := user.ParseRole(evt.FromRole)
	if err != nil {
		log.Error("malformed role change event", logger.Err(err))
		return nil
	}
	to, err := user.ParseRole(evt.ToRole)
	if err != nil {
		log.Error("malformed role change event", logger.Err(err))
		return nil
	}

	u, err := h.users.GetByID(ctx, evt.AggregateID())
	if err != nil {
		if shared.IsNotFound(err) {
			log.Warn("user from role change event not found")
			return nil
		}
		return fmt.Errorf("on_role_changed: load user: %w", err)
	}

	if err := h.dispatcher.SendRoleChangeEmail(ctx, u, from, to); err != nil {
		log.Warn("failed to send role change email", logger.Err(err))
		return nil
	}

	log.Info("role change email dispatched")
	return nil
}
