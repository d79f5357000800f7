package events

import (
	"github.com/brianly1003/flocksync/internal/domain"
)

// SessionChanged reports an auth state transition observed from the provider.
type SessionChanged struct {
	Header  `json:"-"`
	Session domain.AuthSession `json:"session"`
}

func (SessionChanged) Type() EventType           { return EventTypeSessionChanged }
func (e SessionChanged) ToJSON() ([]byte, error) { return encode(e, e) }

// AuthActionFulfilled reports a completed auth action.
type AuthActionFulfilled struct {
	Header `json:"-"`
	Kind   domain.AuthKind `json:"kind"`
}

func (AuthActionFulfilled) Type() EventType           { return EventTypeAuthActionFulfilled }
func (e AuthActionFulfilled) ToJSON() ([]byte, error) { return encode(e, e) }

// AuthActionRejected reports a failed auth action.
type AuthActionRejected struct {
	Header `json:"-"`
	Kind   domain.AuthKind `json:"kind"`
	Err    error           `json:"-"`
}

func (AuthActionRejected) Type() EventType           { return EventTypeAuthActionRejected }
func (e AuthActionRejected) Failure() error          { return e.Err }
func (e AuthActionRejected) ToJSON() ([]byte, error) { return encode(e, e) }

// CacheCleared tells consumers to drop every locally held collection.
type CacheCleared struct {
	Header `json:"-"`
}

func (CacheCleared) Type() EventType           { return EventTypeCacheCleared }
func (e CacheCleared) ToJSON() ([]byte, error) { return encode(e, nil) }

// ErrorCleared resets the stored error of one collection.
type ErrorCleared struct {
	Header `json:"-"`
	Entity domain.EntityType `json:"-"`
}

func (ErrorCleared) Type() EventType                { return EventTypeErrorCleared }
func (e ErrorCleared) GetEntity() domain.EntityType { return e.Entity }
func (e ErrorCleared) ToJSON() ([]byte, error)      { return encode(e, nil) }

// AuthErrorCleared resets every stored auth action error.
type AuthErrorCleared struct {
	Header `json:"-"`
}

func (AuthErrorCleared) Type() EventType           { return EventTypeAuthErrorCleared }
func (e AuthErrorCleared) ToJSON() ([]byte, error) { return encode(e, nil) }
