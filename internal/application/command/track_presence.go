package command

import (
	"context"
	"fmt"
	"time"

	"github.com/collegeconnect/collegeconnect-hub/internal/domain/presence"
	"github.com/collegeconnect/collegeconnect-hub/internal/domain/shared"
	"github.com/collegeconnect/collegeconnect-hub/pkg/logger"
	"github.com/collegeconnect/collegeconnect-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// TRACK PRESENCE COMMANDS
// Connection lifecycle of chat clients: connect, heartbeat, disconnect and
// typing indicators. Online/offline transitions are published as events.
// ══════════════════════════════════════════════════════════════════════════════

// PresenceChange reports whether a command flipped the user's online state.
type PresenceChange struct {
	UserID string `json:"user_id"`

	// WentOnline is set by Connect for the first live connection.
	WentOnline bool `json:"went_online,omitempty"`

	// WentOffline is set by Disconnect for the last connection.
	WentOffline bool `json:"went_offline,omitempty"`
}

// TrackPresenceHandler handles presence commands.
type TrackPresenceHandler struct {
	registry       presence.Registry
	eventPublisher shared.EventPublisher
	clock          timeutil.Clock
	logger         *logger.Logger
}

// NewTrackPresenceHandler creates a new TrackPresenceHandler.
func NewTrackPresenceHandler(
	registry presence.Registry,
	eventPublisher shared.EventPublisher,
	clock timeutil.Clock,
	log *logger.Logger,
) *TrackPresenceHandler {
	if clock == nil {
		clock = timeutil.NewSystemClock(time.UTC)
	}
	if log == nil {
		log = logger.Nop()
	}
	return &TrackPresenceHandler{
		registry:       registry,
		eventPublisher: eventPublisher,
		clock:          clock,
		logger:         log.With(logger.Component("presence")),
	}
}

// Connect registers a new connection.
func (h *TrackPresenceHandler) Connect(ctx context.Context, c presence.Connection) (*PresenceChange, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("presence connect: %w", err)
	}

	online, err := h.registry.Register(ctx, c)
	if err != nil {
		return nil, fmt.Errorf("presence connect: %w", err)
	}
	if online {
		h.announce(true, c)
	}
	return &PresenceChange{UserID: c.UserID, WentOnline: online}, nil
}

// Heartbeat keeps a connection alive.
func (h *TrackPresenceHandler) Heartbeat(ctx context.Context, c presence.Connection) error {
	if err := c.Validate(); err != nil {
		return fmt.Errorf("presence heartbeat: %w", err)
	}
	if err := h.registry.Heartbeat(ctx, c); err != nil {
		return fmt.Errorf("presence heartbeat: %w", err)
	}
	return nil
}

// Disconnect removes a connection.
func (h *TrackPresenceHandler) Disconnect(ctx context.Context, c presence.Connection) (*PresenceChange, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("presence disconnect: %w", err)
	}

	offline, err := h.registry.Deregister(ctx, c)
	if err != nil {
		return nil, fmt.Errorf("presence disconnect: %w", err)
	}
	if offline {
		h.announce(false, c)
	}
	return &PresenceChange{UserID: c.UserID, WentOffline: offline}, nil
}

// StartTyping marks userID as typing in roomID.
func (h *TrackPresenceHandler) StartTyping(ctx context.Context, roomID, userID string) error {
	if err := presence.ValidateRoom(roomID); err != nil {
		return fmt.Errorf("presence typing: %w", err)
	}
	if _, err := shared.NewUserID(userID); err != nil {
		return fmt.Errorf("presence typing: %w", err)
	}
	if err := h.registry.SetTyping(ctx, roomID, userID); err != nil {
		return fmt.Errorf("presence typing: %w", err)
	}
	return nil
}

func (h *TrackPresenceHandler) announce(online bool, c presence.Connection) {
	h.logger.Debug("presence changed",
		logger.UserID(c.UserID),
		logger.String("connection_id", c.ConnectionID),
		logger.Bool("online", online),
	)
	if h.eventPublisher == nil {
		return
	}
	if err := h.eventPublisher.Publish(shared.NewPresenceChangedEvent(online, c.UserID, c.ConnectionID, h.clock.Now())); err != nil {
		h.logger.Warn("failed to publish presence event", logger.UserID(c.UserID), logger.Err(err))
	}
}
