package websocket

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventType represents the kind of lifecycle event
type EventType string

const (
	EventTypeCreated   EventType = "created"
	EventTypeCompleted EventType = "completed"
	EventTypeFailed    EventType = "failed"
	EventTypeExhausted EventType = "exhausted"
)

// EntityType represents the type of entity the event is about
type EntityType string

const (
	EntityTypePayout EntityType = "payout"
	EntityTypeEscrow EntityType = "escrow"
	EntityTypeSweep  EntityType = "sweep"
)

// Additional event types for escrow and sweep events
const (
	EventTypeAllocated EventType = "allocated"
	EventTypeEligible  EventType = "eligible"
	EventTypeReleased  EventType = "released"
	EventTypeRefunded  EventType = "refunded"
)

// Event represents a WebSocket event message sent to clients
// Format: { type, entity, payload, timestamp }
type Event struct {
	Type      string      `json:"type"`      // Combined type e.g. "payout.completed"
	Entity    EntityType  `json:"entity"`    // Entity type e.g. "payout"
	Payload   interface{} `json:"payload"`   // Full entity data
	Timestamp time.Time   `json:"timestamp"` // Event timestamp
}

// NewEvent creates a new event with the given type, entity, and payload
func NewEvent(eventType EventType, entityType EntityType, payload interface{}) Event {
	return Event{
		Type:      fmt.Sprintf("%s.%s", entityType, eventType),
		Entity:    entityType,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	}
}

// ToJSON serializes the event to JSON bytes
func (e Event) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// PayoutCreated creates a payout.created event
func PayoutCreated(payload interface{}) Event {
	return NewEvent(EventTypeCreated, EntityTypePayout, payload)
}

// PayoutCompleted creates a payout.completed event
func PayoutCompleted(payload interface{}) Event {
	return NewEvent(EventTypeCompleted, EntityTypePayout, payload)
}

// PayoutFailed creates a payout.failed event
func PayoutFailed(payload interface{}) Event {
	return NewEvent(EventTypeFailed, EntityTypePayout, payload)
}

// PayoutExhausted creates a payout.exhausted event, raised when the retry
// budget is spent and an operator has to step in
func PayoutExhausted(payload interface{}) Event {
	return NewEvent(EventTypeExhausted, EntityTypePayout, payload)
}

// EscrowAllocated creates an escrow.allocated event
func EscrowAllocated(payload interface{}) Event {
	return NewEvent(EventTypeAllocated, EntityTypeEscrow, payload)
}

// EscrowEligible creates an escrow.eligible event
func EscrowEligible(payload interface{}) Event {
	return NewEvent(EventTypeEligible, EntityTypeEscrow, payload)
}

// EscrowReleased creates an escrow.released event
func EscrowReleased(payload interface{}) Event {
	return NewEvent(EventTypeReleased, EntityTypeEscrow, payload)
}

// EscrowRefunded creates an escrow.refunded event
func EscrowRefunded(payload interface{}) Event {
	return NewEvent(EventTypeRefunded, EntityTypeEscrow, payload)
}

// SweepCompleted creates a sweep.completed event
func SweepCompleted(payload interface{}) Event {
	return NewEvent(EventTypeCompleted, EntityTypeSweep, payload)
}
