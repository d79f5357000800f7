package events

import (
	"github.com/brianly1003/flocksync/internal/domain"
)

// ListenFulfilled carries the initial snapshot of a listened collection.
// Data is never nil.
type ListenFulfilled struct {
	Header `json:"-"`
	Entity domain.EntityType `json:"-"`
	Ref    string            `json:"ref"`
	Data   map[string]any    `json:"data"`
}

func (ListenFulfilled) Type() EventType                { return EventTypeListenFulfilled }
func (e ListenFulfilled) GetEntity() domain.EntityType { return e.Entity }
func (e ListenFulfilled) ToJSON() ([]byte, error)      { return encode(e, e) }

// ListenRejected reports a failed initial read.
type ListenRejected struct {
	Header `json:"-"`
	Entity domain.EntityType `json:"-"`
	Ref    string            `json:"ref"`
	Err    error             `json:"-"`
}

func (ListenRejected) Type() EventType                { return EventTypeListenRejected }
func (e ListenRejected) GetEntity() domain.EntityType { return e.Entity }
func (e ListenRejected) Failure() error               { return e.Err }
func (e ListenRejected) ToJSON() ([]byte, error)      { return encode(e, e) }

// ListenRemoved reports that the active listener of a collection was torn down.
type ListenRemoved struct {
	Header    `json:"-"`
	Entity    domain.EntityType `json:"-"`
	ClearData bool              `json:"clear_data"`
}

func (ListenRemoved) Type() EventType                { return EventTypeListenRemoved }
func (e ListenRemoved) GetEntity() domain.EntityType { return e.Entity }
func (e ListenRemoved) ToJSON() ([]byte, error)      { return encode(e, e) }

// ChildAdded reports a new direct child of a listened path.
type ChildAdded struct {
	Header `json:"-"`
	Entity domain.EntityType `json:"-"`
	Key    string            `json:"key"`
	Value  any               `json:"value"`
}

func (ChildAdded) Type() EventType                { return EventTypeChildAdded }
func (e ChildAdded) GetEntity() domain.EntityType { return e.Entity }
func (e ChildAdded) ToJSON() ([]byte, error)      { return encode(e, e) }

// ChildChanged reports a modified direct child of a listened path.
type ChildChanged struct {
	Header `json:"-"`
	Entity domain.EntityType `json:"-"`
	Key    string            `json:"key"`
	Value  any               `json:"value"`
}

func (ChildChanged) Type() EventType                { return EventTypeChildChanged }
func (e ChildChanged) GetEntity() domain.EntityType { return e.Entity }
func (e ChildChanged) ToJSON() ([]byte, error)      { return encode(e, e) }

// ChildRemoved reports a deleted direct child of a listened path.
type ChildRemoved struct {
	Header `json:"-"`
	Entity domain.EntityType `json:"-"`
	Key    string            `json:"key"`
	Value  any               `json:"value,omitempty"`
}

func (ChildRemoved) Type() EventType                { return EventTypeChildRemoved }
func (e ChildRemoved) GetEntity() domain.EntityType { return e.Entity }
func (e ChildRemoved) ToJSON() ([]byte, error)      { return encode(e, e) }

// FromChild converts a remote child notification into the matching result.
func FromChild(entity domain.EntityType, ev domain.ChildEvent) Event {
	h := Stamp()
	switch ev.Kind {
	case domain.ChildAdded:
		return ChildAdded{Header: h, Entity: entity, Key: ev.Key, Value: ev.Value}
	case domain.ChildChanged:
		return ChildChanged{Header: h, Entity: entity, Key: ev.Key, Value: ev.Value}
	default:
		return ChildRemoved{Header: h, Entity: entity, Key: ev.Key, Value: ev.Value}
	}
}
