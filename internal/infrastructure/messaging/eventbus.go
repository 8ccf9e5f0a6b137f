// Package messaging implements the in-process event bus of CollegeConnect.
// Domain events are serialized into shared.EventEnvelope and carried over a
// watermill GoChannel pub/sub; a watermill router delivers them to handlers
// with panic recovery and retries.
package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/collegeconnect/collegeconnect-hub/internal/domain/shared"
	"github.com/collegeconnect/collegeconnect-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// ERRORS
// ══════════════════════════════════════════════════════════════════════════════

var (
	// ErrEventBusClosed is returned when publishing to a closed bus.
	ErrEventBusClosed = errors.New("messaging: event bus is closed")

	// ErrNilEvent is returned when publishing a nil event.
	ErrNilEvent = errors.New("messaging: event cannot be nil")
)

// ══════════════════════════════════════════════════════════════════════════════
// EVENT BUS
// ══════════════════════════════════════════════════════════════════════════════

// Handler processes one delivered event.
type Handler func(ctx context.Context, env shared.EventEnvelope) error

// Config contains configuration for EventBus.
type Config struct {
	// OutputChannelBuffer is the per-subscriber buffer of the Go channel pub/sub.
	OutputChannelBuffer int64

	// MaxRetries is how many times a failing handler is retried.
	MaxRetries int

	// RetryInterval is the initial backoff between retries.
	RetryInterval time.Duration

	// CloseTimeout bounds how long Close waits for in-flight handlers.
	CloseTimeout time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		OutputChannelBuffer: 256,
		MaxRetries:          3,
		RetryInterval:       100 * time.Millisecond,
		CloseTimeout:        30 * time.Second,
	}
}

// EventBus publishes domain events and routes them to handlers.
type EventBus struct {
	pubsub *gochannel.GoChannel
	router *message.Router
	logger *logger.Logger

	mu     sync.RWMutex
	closed bool
}

var _ shared.EventPublisher = (*EventBus)(nil)

// NewEventBus creates an event bus. Handlers must be subscribed before Run.
func NewEventBus(cfg Config, log *logger.Logger) (*EventBus, error) {
	if log == nil {
		log = logger.Nop()
	}
	wmLogger := NewLoggerAdapter(log)

	pubsub := gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer: cfg.OutputChannelBuffer,
	}, wmLogger)

	router, err := message.NewRouter(message.RouterConfig{CloseTimeout: cfg.CloseTimeout}, wmLogger)
	if err != nil {
		return nil, fmt.Errorf("messaging: create router: %w", err)
	}

	bus := &EventBus{
		pubsub: pubsub,
		router: router,
		logger: log.With(logger.Component("event_bus")),
	}

	router.AddMiddleware(
		bus.dropAfterRetries,
		middleware.Retry{
			MaxRetries:      cfg.MaxRetries,
			InitialInterval: cfg.RetryInterval,
			MaxInterval:     10 * cfg.RetryInterval,
			Multiplier:      2,
			Logger:          wmLogger,
		}.Middleware,
		middleware.Recoverer,
	)

	return bus, nil
}

// dropAfterRetries acks a message whose handler kept failing. The Go channel
// pub/sub redelivers nacked messages forever, and side effects driven by
// events are best-effort.
func (b *EventBus) dropAfterRetries(h message.HandlerFunc) message.HandlerFunc {
	return func(msg *message.Message) ([]*message.Message, error) {
		produced, err := h(msg)
		if err != nil {
			b.logger.Error("event handler failed, dropping message",
				logger.String("message_id", msg.UUID),
				logger.String("event_type", msg.Metadata.Get(metadataEventType)),
				logger.Err(err),
			)
			return nil, nil
		}
		return produced, nil
	}
}

const (
	metadataEventType     = "event_type"
	metadataCorrelationID = "correlation_id"
)

// Topic returns the pub/sub topic for an event type.
func Topic(t shared.EventType) string {
	return "events." + string(t)
}

// Publish serializes the event and hands it to subscribers without waiting for them.
func (b *EventBus) Publish(event shared.Event) error {
	if event == nil {
		return ErrNilEvent
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrEventBusClosed
	}

	id := watermill.NewUUID()
	env, err := shared.NewEnvelope(id, event)
	if err != nil {
		return fmt.Errorf("messaging: encode event: %w", err)
	}
	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("messaging: encode envelope: %w", err)
	}

	msg := message.NewMessage(id, payload)
	msg.Metadata.Set(metadataEventType, string(env.Type))
	if env.CorrelationID != "" {
		msg.Metadata.Set(metadataCorrelationID, env.CorrelationID)
	}

	if err := b.pubsub.Publish(Topic(env.Type), msg); err != nil {
		return fmt.Errorf("messaging: publish %s: %w", env.Type, err)
	}

	b.logger.Debug("event published",
		logger.String("event_type", string(env.Type)),
		logger.String("aggregate_id", env.AggregateID),
	)
	return nil
}

// Subscribe registers a named handler for an event type.
func (b *EventBus) Subscribe(eventType shared.EventType, name string, h Handler) {
	b.router.AddNoPublisherHandler(name, Topic(eventType), b.pubsub, func(msg *message.Message) error {
		var env shared.EventEnvelope
		if err := json.Unmarshal(msg.Payload, &env); err != nil {
			// a malformed message will never succeed
			b.logger.Error("malformed event envelope", logger.String("handler", name), logger.Err(err))
			return nil
		}

		ctx := msg.Context()
		if env.CorrelationID != "" {
			ctx = logger.ContextWithRequestID(ctx, env.CorrelationID)
		}
		return h(ctx, env)
	})
}

// Run starts delivering events and blocks until ctx is cancelled or Close is called.
func (b *EventBus) Run(ctx context.Context) error {
	return b.router.Run(ctx)
}

// Running is closed once the router delivers messages.
func (b *EventBus) Running() chan struct{} {
	return b.router.Running()
}

// Close stops delivery and waits for in-flight handlers.
func (b *EventBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	return errors.Join(b.router.Close(), b.pubsub.Close())
}

// ══════════════════════════════════════════════════════════════════════════════
// DECODING
// ══════════════════════════════════════════════════════════════════════════════

// DecodeRoleChanged extracts a RoleChangedEvent from an envelope.
func DecodeRoleChanged(env shared.EventEnvelope) (shared.RoleChangedEvent, error) {
	var evt shared.RoleChangedEvent
	if env.Type != shared.EventRoleChanged {
		return evt, fmt.Errorf("%w: expected %s, got %s", shared.ErrInvalidInput, shared.EventRoleChanged, env.Type)
	}
	if err := json.Unmarshal(env.Payload, &evt); err != nil {
		return evt, fmt.Errorf("messaging: decode %s: %w", env.Type, err)
	}
	return evt, nil
}
