// Package events defines all result events produced by the sync core.
package events

import (
	"encoding/json"
	"time"

	"github.com/brianly1003/flocksync/internal/domain"
)

// EventType represents the type of event.
type EventType string

const (
	// Request results
	EventTypeCreateFulfilled EventType = "create_fulfilled"
	EventTypeCreateRejected  EventType = "create_rejected"
	EventTypeUpdateFulfilled EventType = "update_fulfilled"
	EventTypeUpdateRejected  EventType = "update_rejected"
	EventTypeRemoveFulfilled EventType = "remove_fulfilled"
	EventTypeRemoveRejected  EventType = "remove_rejected"

	// Listener results
	EventTypeListenFulfilled EventType = "listen_fulfilled"
	EventTypeListenRejected  EventType = "listen_rejected"
	EventTypeListenRemoved   EventType = "listen_removed"
	EventTypeChildAdded      EventType = "child_added"
	EventTypeChildChanged    EventType = "child_changed"
	EventTypeChildRemoved    EventType = "child_removed"

	// Session results
	EventTypeSessionChanged      EventType = "session_changed"
	EventTypeAuthActionFulfilled EventType = "auth_action_fulfilled"
	EventTypeAuthActionRejected  EventType = "auth_action_rejected"
	EventTypeCacheCleared        EventType = "cache_cleared"

	// Flock lifecycle results
	EventTypeJoinFlockFulfilled     EventType = "join_flock_fulfilled"
	EventTypeJoinFlockRejected      EventType = "join_flock_rejected"
	EventTypeAddFlockFulfilled      EventType = "add_flock_fulfilled"
	EventTypeAddFlockRejected       EventType = "add_flock_rejected"
	EventTypeUnlinkFlockFulfilled   EventType = "unlink_flock_fulfilled"
	EventTypeUnlinkFlockRejected    EventType = "unlink_flock_rejected"
	EventTypeDeleteFlockFulfilled   EventType = "delete_flock_fulfilled"
	EventTypeDeleteFlockRejected    EventType = "delete_flock_rejected"
	EventTypeDeleteChickenFulfilled EventType = "delete_chicken_fulfilled"
	EventTypeDeleteChickenRejected  EventType = "delete_chicken_rejected"
	EventTypeFlockFetched           EventType = "flock_fetched"
	EventTypeFlockFetchRejected     EventType = "flock_fetch_rejected"

	// Local bookkeeping
	EventTypeErrorCleared     EventType = "error_cleared"
	EventTypeAuthErrorCleared EventType = "auth_error_cleared"
)

// Event is the base interface for all events. The set of implementations is
// closed; consumers switch on the concrete type.
type Event interface {
	// Type returns the event type.
	Type() EventType

	// Timestamp returns when the event occurred.
	Timestamp() time.Time

	// ToJSON serializes the event to JSON.
	ToJSON() ([]byte, error)

	isEvent()
}

// Scoped is implemented by events that belong to one entity collection.
type Scoped interface {
	GetEntity() domain.EntityType
}

// Failure is implemented by rejected results.
type Failure interface {
	Failure() error
}

// Header carries the fields shared by every event.
type Header struct {
	At time.Time
}

// Timestamp returns when the event occurred.
func (h Header) Timestamp() time.Time {
	return h.At
}

func (Header) isEvent() {}

// Stamp returns a Header for an event occurring now.
func Stamp() Header {
	return Header{At: time.Now().UTC()}
}

// envelope is the wire form of every event.
type envelope struct {
	Event     EventType `json:"event"`
	Timestamp time.Time `json:"timestamp"`
	Entity    string    `json:"entity,omitempty"`
	Error     string    `json:"error,omitempty"`
	Code      string    `json:"code,omitempty"`
	Payload   any       `json:"payload,omitempty"`
}

func encode(e Event, payload any) ([]byte, error) {
	env := envelope{
		Event:     e.Type(),
		Timestamp: e.Timestamp(),
		Payload:   payload,
	}
	if s, ok := e.(Scoped); ok {
		env.Entity = s.GetEntity().String()
	}
	if f, ok := e.(Failure); ok && f.Failure() != nil {
		env.Error = f.Failure().Error()
		env.Code = domain.ErrorCode(f.Failure())
	}
	return json.Marshal(env)
}

// ErrorMessage returns the error text of a rejected result, or "".
func ErrorMessage(e Event) string {
	if f, ok := e.(Failure); ok && f.Failure() != nil {
		return f.Failure().Error()
	}
	return ""
}
