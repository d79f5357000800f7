package events

import (
	"time"

	"github.com/brianly1003/flocksync/internal/domain"
)

// --- Create ---

// CreateFulfilled reports a pushed child. Key is the generated child key.
type CreateFulfilled struct {
	Header `json:"-"`
	Entity domain.EntityType `json:"-"`
	Path   string            `json:"path"`
	Key    string            `json:"key"`
}

func (CreateFulfilled) Type() EventType                { return EventTypeCreateFulfilled }
func (e CreateFulfilled) GetEntity() domain.EntityType { return e.Entity }
func (e CreateFulfilled) ToJSON() ([]byte, error)      { return encode(e, e) }

// CreateRejected reports a failed create.
type CreateRejected struct {
	Header `json:"-"`
	Entity domain.EntityType `json:"-"`
	Path   string            `json:"path,omitempty"`
	Err    error             `json:"-"`
}

func (CreateRejected) Type() EventType                { return EventTypeCreateRejected }
func (e CreateRejected) GetEntity() domain.EntityType { return e.Entity }
func (e CreateRejected) Failure() error               { return e.Err }
func (e CreateRejected) ToJSON() ([]byte, error)      { return encode(e, e) }

// --- Update ---

// UpdateFulfilled reports a completed overwrite of an item path.
type UpdateFulfilled struct {
	Header `json:"-"`
	Entity domain.EntityType `json:"-"`
	Path   string            `json:"path"`
}

func (UpdateFulfilled) Type() EventType                { return EventTypeUpdateFulfilled }
func (e UpdateFulfilled) GetEntity() domain.EntityType { return e.Entity }
func (e UpdateFulfilled) ToJSON() ([]byte, error)      { return encode(e, e) }

// UpdateRejected reports a failed update.
type UpdateRejected struct {
	Header `json:"-"`
	Entity domain.EntityType `json:"-"`
	Path   string            `json:"path,omitempty"`
	Err    error             `json:"-"`
}

func (UpdateRejected) Type() EventType                { return EventTypeUpdateRejected }
func (e UpdateRejected) GetEntity() domain.EntityType { return e.Entity }
func (e UpdateRejected) Failure() error               { return e.Err }
func (e UpdateRejected) ToJSON() ([]byte, error)      { return encode(e, e) }

// --- Remove ---

// RemoveFulfilled reports a deleted item path.
type RemoveFulfilled struct {
	Header `json:"-"`
	Entity domain.EntityType `json:"-"`
	Path   string            `json:"path"`
}

func (RemoveFulfilled) Type() EventType                { return EventTypeRemoveFulfilled }
func (e RemoveFulfilled) GetEntity() domain.EntityType { return e.Entity }
func (e RemoveFulfilled) ToJSON() ([]byte, error)      { return encode(e, e) }

// RemoveRejected reports a failed remove.
type RemoveRejected struct {
	Header `json:"-"`
	Entity domain.EntityType `json:"-"`
	Path   string            `json:"path,omitempty"`
	Err    error             `json:"-"`
}

func (RemoveRejected) Type() EventType                { return EventTypeRemoveRejected }
func (e RemoveRejected) GetEntity() domain.EntityType { return e.Entity }
func (e RemoveRejected) Failure() error               { return e.Err }
func (e RemoveRejected) ToJSON() ([]byte, error)      { return encode(e, e) }

// RequestResult builds the fulfilled or rejected event for a write verb.
// verb is one of "create", "update", "remove"; key is only used by create.
func RequestResult(verb string, entity domain.EntityType, path, key string, err error) Event {
	h := Header{At: time.Now().UTC()}
	switch verb {
	case "create":
		if err != nil {
			return CreateRejected{Header: h, Entity: entity, Path: path, Err: err}
		}
		return CreateFulfilled{Header: h, Entity: entity, Path: path, Key: key}
	case "update":
		if err != nil {
			return UpdateRejected{Header: h, Entity: entity, Path: path, Err: err}
		}
		return UpdateFulfilled{Header: h, Entity: entity, Path: path}
	default:
		if err != nil {
			return RemoveRejected{Header: h, Entity: entity, Path: path, Err: err}
		}
		return RemoveFulfilled{Header: h, Entity: entity, Path: path}
	}
}
