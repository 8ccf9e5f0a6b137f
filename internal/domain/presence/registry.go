// Package presence описывает онлайн-присутствие пользователей чата.
//
// Присутствие привязано к соединению: пользователь онлайн, пока у него есть
// хотя бы одно живое соединение. Соединение живо, пока приходят heartbeat;
// без них оно истекает через TTL. Глобального изменяемого состояния нет -
// всё хранится за интерфейсом Registry.
package presence

import (
	"context"
	"strings"
	"time"

	"github.com/collegeconnect/collegeconnect-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// VALUE OBJECTS
// ══════════════════════════════════════════════════════════════════════════════

// Connection - одно подключение клиента (вкладка, устройство).
type Connection struct {
	UserID       string
	ConnectionID string
}

// Validate проверяет идентификаторы соединения.
func (c Connection) Validate() error {
	if _, err := shared.NewUserID(c.UserID); err != nil {
		return err
	}
	if !validToken(c.ConnectionID) {
		return shared.ErrInvalidConnection
	}
	return nil
}

// ValidateRoom проверяет идентификатор комнаты чата.
func ValidateRoom(roomID string) error {
	if !validToken(roomID) {
		return shared.ErrInvalidRoom
	}
	return nil
}

func validToken(s string) bool {
	return s != "" && len(s) <= 128 && !strings.ContainsAny(s, " \t\n\r:")
}

// Status - состояние присутствия пользователя.
// LastSeen равен nil, если пользователь ни разу не был онлайн.
type Status struct {
	UserID      string     `json:"user_id"`
	Online      bool       `json:"online"`
	Connections int        `json:"connections"`
	LastSeen    *time.Time `json:"last_seen,omitempty"`
}

// ══════════════════════════════════════════════════════════════════════════════
// REGISTRY
// ══════════════════════════════════════════════════════════════════════════════

// Registry - реестр присутствия.
type Registry interface {
	// Register регистрирует соединение. Возвращает true, если пользователь
	// только что стал онлайн (это первое живое соединение).
	Register(ctx context.Context, c Connection) (bool, error)

	// Heartbeat продлевает жизнь соединения. Неизвестное соединение
	// регистрируется заново.
	Heartbeat(ctx context.Context, c Connection) error

	// Deregister удаляет соединение. Возвращает true, если у пользователя
	// не осталось соединений (он ушёл офлайн).
	Deregister(ctx context.Context, c Connection) (bool, error)

	// Status возвращает состояние пользователя.
	Status(ctx context.Context, userID string) (Status, error)

	// Online возвращает ID пользователей онлайн.
	Online(ctx context.Context) ([]string, error)

	// SetTyping отмечает, что пользователь печатает в комнате.
	SetTyping(ctx context.Context, roomID, userID string) error

	// Typing возвращает ID пользователей, печатающих в комнате.
	Typing(ctx context.Context, roomID string) ([]string, error)
}
