package query

import (
	"context"
	"fmt"

	"github.com/collegeconnect/collegeconnect-hub/internal/domain/presence"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET ONLINE NOW QUERY
// Кто сейчас в сети и кто печатает в комнате чата.
// ══════════════════════════════════════════════════════════════════════════════

// GetOnlineNowResult - пользователи онлайн.
type GetOnlineNowResult struct {
	UserIDs []string `json:"user_ids"`
	Count   int      `json:"count"`
}

// GetTypingResult - пользователи, печатающие в комнате.
type GetTypingResult struct {
	RoomID  string   `json:"room_id"`
	UserIDs []string `json:"user_ids"`
}

// GetOnlineNowHandler отвечает на запросы присутствия.
type GetOnlineNowHandler struct {
	registry presence.Registry
}

// NewGetOnlineNowHandler создаёт обработчик.
func NewGetOnlineNowHandler(registry presence.Registry) *GetOnlineNowHandler {
	return &GetOnlineNowHandler{registry: registry}
}

// Handle возвращает пользователей с хотя бы одним живым соединением.
func (h *GetOnlineNowHandler) Handle(ctx context.Context) (*GetOnlineNowResult, error) {
	ids, err := h.registry.Online(ctx)
	if err != nil {
		return nil, fmt.Errorf("get_online_now: %w", err)
	}
	if ids == nil {
		ids = []string{}
	}
	return &GetOnlineNowResult{UserIDs: ids, Count: len(ids)}, nil
}

// Status возвращает состояние одного пользователя.
func (h *GetOnlineNowHandler) Status(ctx context.Context, userID string) (presence.Status, error) {
	st, err := h.registry.Status(ctx, userID)
	if err != nil {
		return presence.Status{}, fmt.Errorf("get_online_now: %w", err)
	}
	return st, nil
}

// Typing возвращает печатающих в комнате.
func (h *GetOnlineNowHandler) Typing(ctx context.Context, roomID string) (*GetTypingResult, error) {
	if err := presence.ValidateRoom(roomID); err != nil {
		return nil, fmt.Errorf("get_typing: %w", err)
	}
	ids, err := h.registry.Typing(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("get_typing: %w", err)
	}
	if ids == nil {
		ids = []string{}
	}
	return &GetTypingResult{RoomID: roomID, UserIDs: ids}, nil
}
