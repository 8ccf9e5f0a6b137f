// Package notification содержит доменную модель уведомлений CollegeConnect
// о смене академической роли.
package notification

import (
	"context"
	"time"

	"github.com/collegeconnect/collegeconnect-hub/internal/domain/user"
)

// ══════════════════════════════════════════════════════════════════════════════
// CHANNEL TYPE
// ══════════════════════════════════════════════════════════════════════════════

// ChannelType определяет способ доставки.
type ChannelType string

const (
	// ChannelEmail - доставка через почтового провайдера.
	ChannelEmail ChannelType = "email"
	// ChannelLog - письмо только пишется в лог (разработка, тесты).
	ChannelLog ChannelType = "log"
)

// ══════════════════════════════════════════════════════════════════════════════
// ROLE CHANGE MESSAGE
// ══════════════════════════════════════════════════════════════════════════════

// RoleChange - данные для письма о смене роли.
type RoleChange struct {
	UserID      string
	Email       string
	FullName    string
	FromRole    user.Role
	ToRole      user.Role
	CurrentYear int
	Graduated   bool
	ChangedAt   time.Time
}

// NewRoleChange собирает данные письма из пользователя после перехода.
func NewRoleChange(u *user.User, from, to user.Role, at time.Time) RoleChange {
	return RoleChange{
		UserID:      u.ID,
		Email:       u.Email,
		FullName:    u.FullName,
		FromRole:    from,
		ToRole:      to,
		CurrentYear: u.CurrentYear,
		Graduated:   u.Graduated,
		ChangedAt:   at,
	}
}

// Greeting возвращает обращение к получателю.
func (r RoleChange) Greeting() string {
	if r.FullName != "" {
		return r.FullName
	}
	return "there"
}

// ══════════════════════════════════════════════════════════════════════════════
// DISPATCHER
// ══════════════════════════════════════════════════════════════════════════════

// Dispatcher отправляет письмо о смене роли. Ошибка доставки никогда не
// откатывает сам переход: вызывающий код только логирует её.
type Dispatcher interface {
	SendRoleChangeEmail(ctx context.Context, u *user.User, from, to user.Role) error
}
