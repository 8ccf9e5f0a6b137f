package shared

import (
	"encoding/json"
	"time"
)

// EventType represents the type of domain event.
type EventType string

// Domain event types. Each event is something significant that already happened.
const (
	// User events
	EventAcademicYearsUpdated EventType = "user.academic_years_updated"

	// Lifecycle events
	EventRoleChanged    EventType = "lifecycle.role_changed"
	EventSweepCompleted EventType = "lifecycle.sweep_completed"

	// Presence events
	EventUserWentOnline  EventType = "presence.went_online"
	EventUserWentOffline EventType = "presence.went_offline"
)

// Event is the base interface for all domain events.
type Event interface {
	// EventType returns the type of the event.
	EventType() EventType

	// OccurredAt returns when the event occurred.
	OccurredAt() time.Time

	// AggregateID returns the ID of the aggregate that produced this event.
	AggregateID() string
}

// BaseEvent provides common event functionality.
type BaseEvent struct {
	Type          EventType `json:"type"`
	Timestamp     time.Time `json:"timestamp"`
	AggregateId   string    `json:"aggregate_id"`
	Version       int       `json:"version"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

// EventType implements Event interface.
func (e BaseEvent) EventType() EventType {
	return e.Type
}

// OccurredAt implements Event interface.
func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// AggregateID implements Event interface.
func (e BaseEvent) AggregateID() string {
	return e.AggregateId
}

// NewBaseEvent creates a new base event.
func NewBaseEvent(eventType EventType, aggregateID string, at time.Time) BaseEvent {
	return BaseEvent{
		Type:        eventType,
		Timestamp:   at,
		AggregateId: aggregateID,
		Version:     1,
	}
}

// WithCorrelationID sets the correlation ID for tracing.
func (e BaseEvent) WithCorrelationID(id string) BaseEvent {
	e.CorrelationID = id
	return e
}

// ═══════════════════════════════════════════════════════════════════════════
// Lifecycle Events
// ═══════════════════════════════════════════════════════════════════════════

// Transition sources.
const (
	SourceProfileUpdate = "profile_update"
	SourceSweep         = "sweep"
)

// RoleChangedEvent is emitted after a new role has been persisted.
type RoleChangedEvent struct {
	BaseEvent
	FromRole    string `json:"from_role"`
	ToRole      string `json:"to_role"`
	CurrentYear int    `json:"current_year"`
	Graduated   bool   `json:"graduated"`
	Source      string `json:"source"`
}

// NewRoleChangedEvent creates a new RoleChangedEvent.
func NewRoleChangedEvent(userID, from, to string, currentYear int, graduated bool, source string, at time.Time) RoleChangedEvent {
	return RoleChangedEvent{
		BaseEvent:   NewBaseEvent(EventRoleChanged, userID, at),
		FromRole:    from,
		ToRole:      to,
		CurrentYear: currentYear,
		Graduated:   graduated,
		Source:      source,
	}
}

// SweepCompletedEvent is emitted after a role sweep has been applied.
type SweepCompletedEvent struct {
	BaseEvent
	StudentsToSenior int    `json:"students_to_senior"`
	SeniorsToAlumni  int    `json:"seniors_to_alumni"`
	Overdue          int    `json:"overdue"`
	TotalUpgraded    int    `json:"total_upgraded"`
	Failed           int    `json:"failed"`
	TriggeredBy      string `json:"triggered_by"`
}

// NewSweepCompletedEvent creates a new SweepCompletedEvent. The aggregate is
// the sweep run itself.
func NewSweepCompletedEvent(runID string, studentsToSenior, seniorsToAlumni, overdue, failed int, triggeredBy string, at time.Time) SweepCompletedEvent {
	return SweepCompletedEvent{
		BaseEvent:        NewBaseEvent(EventSweepCompleted, runID, at),
		StudentsToSenior: studentsToSenior,
		SeniorsToAlumni:  seniorsToAlumni,
		Overdue:          overdue,
		TotalUpgraded:    studentsToSenior + seniorsToAlumni + overdue,
		Failed:           failed,
		TriggeredBy:      triggeredBy,
	}
}

// AcademicYearsUpdatedEvent is emitted when a user edits admission/graduation years.
type AcademicYearsUpdatedEvent struct {
	BaseEvent
	AdmissionYear  *int `json:"admission_year,omitempty"`
	GraduationYear *int `json:"graduation_year,omitempty"`
}

// NewAcademicYearsUpdatedEvent creates a new AcademicYearsUpdatedEvent.
func NewAcademicYearsUpdatedEvent(userID string, admission, graduation *int, at time.Time) AcademicYearsUpdatedEvent {
	return AcademicYearsUpdatedEvent{
		BaseEvent:      NewBaseEvent(EventAcademicYearsUpdated, userID, at),
		AdmissionYear:  admission,
		GraduationYear: graduation,
	}
}

// PresenceChangedEvent is emitted when a user's first connection arrives
// (EventUserWentOnline) or the last one leaves (EventUserWentOffline).
type PresenceChangedEvent struct {
	BaseEvent
	ConnectionID string `json:"connection_id"`
}

// NewPresenceChangedEvent creates a presence transition event.
func NewPresenceChangedEvent(online bool, userID, connectionID string, at time.Time) PresenceChangedEvent {
	eventType := EventUserWentOffline
	if online {
		eventType = EventUserWentOnline
	}
	return PresenceChangedEvent{
		BaseEvent:    NewBaseEvent(eventType, userID, at),
		ConnectionID: connectionID,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Event Envelope (for serialization and transport)
// ═══════════════════════════════════════════════════════════════════════════

// EventEnvelope wraps an event for transport/storage.
type EventEnvelope struct {
	ID            string          `json:"id"`
	Type          EventType       `json:"type"`
	AggregateID   string          `json:"aggregate_id"`
	Timestamp     time.Time       `json:"timestamp"`
	Version       int             `json:"version"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

// NewEnvelope serializes event into an envelope with the given ID.
func NewEnvelope(id string, event Event) (EventEnvelope, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return EventEnvelope{}, err
	}

	env := EventEnvelope{
		ID:          id,
		Type:        event.EventType(),
		AggregateID: event.AggregateID(),
		Timestamp:   event.OccurredAt(),
		Version:     1,
		Payload:     payload,
	}
	if b, ok := event.(interface{ base() BaseEvent }); ok {
		env.CorrelationID = b.base().CorrelationID
	}
	return env, nil
}

func (e BaseEvent) base() BaseEvent { return e }

// EventPublisher defines the interface for publishing events.
type EventPublisher interface {
	// Publish hands an event to subscribers. It must not wait for them.
	Publish(event Event) error
}
