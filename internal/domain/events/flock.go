package events

import (
	"github.com/brianly1003/flocksync/internal/domain"
)

// JoinFlockFulfilled reports that the acting user joined and selected a flock.
type JoinFlockFulfilled struct {
	Header  `json:"-"`
	FlockID string `json:"flock_id"`
}

func (JoinFlockFulfilled) Type() EventType           { return EventTypeJoinFlockFulfilled }
func (e JoinFlockFulfilled) ToJSON() ([]byte, error) { return encode(e, e) }

// JoinFlockRejected reports a failed join.
type JoinFlockRejected struct {
	Header  `json:"-"`
	FlockID string `json:"flock_id"`
	Err     error  `json:"-"`
}

func (JoinFlockRejected) Type() EventType           { return EventTypeJoinFlockRejected }
func (e JoinFlockRejected) Failure() error          { return e.Err }
func (e JoinFlockRejected) ToJSON() ([]byte, error) { return encode(e, e) }

// AddFlockFulfilled reports a newly created flock and its generated ID.
type AddFlockFulfilled struct {
	Header  `json:"-"`
	FlockID string `json:"flock_id"`
	Name    string `json:"name"`
}

func (AddFlockFulfilled) Type() EventType           { return EventTypeAddFlockFulfilled }
func (e AddFlockFulfilled) ToJSON() ([]byte, error) { return encode(e, e) }

// AddFlockRejected reports a failed flock creation.
type AddFlockRejected struct {
	Header `json:"-"`
	Name   string `json:"name"`
	Err    error  `json:"-"`
}

func (AddFlockRejected) Type() EventType           { return EventTypeAddFlockRejected }
func (e AddFlockRejected) Failure() error          { return e.Err }
func (e AddFlockRejected) ToJSON() ([]byte, error) { return encode(e, e) }

// UnlinkFlockFulfilled reports that the acting user left a flock. ResetStack
// is set when the flock was the user's current selection.
type UnlinkFlockFulfilled struct {
	Header     `json:"-"`
	FlockID    string `json:"flock_id"`
	ResetStack bool   `json:"reset_stack"`
}

func (UnlinkFlockFulfilled) Type() EventType           { return EventTypeUnlinkFlockFulfilled }
func (e UnlinkFlockFulfilled) ToJSON() ([]byte, error) { return encode(e, e) }

// UnlinkFlockRejected reports a failed unlink.
type UnlinkFlockRejected struct {
	Header  `json:"-"`
	FlockID string `json:"flock_id"`
	Err     error  `json:"-"`
}

func (UnlinkFlockRejected) Type() EventType           { return EventTypeUnlinkFlockRejected }
func (e UnlinkFlockRejected) Failure() error          { return e.Err }
func (e UnlinkFlockRejected) ToJSON() ([]byte, error) { return encode(e, e) }

// DeleteFlockFulfilled reports a completed flock deletion cascade.
type DeleteFlockFulfilled struct {
	Header     `json:"-"`
	FlockID    string `json:"flock_id"`
	ResetStack bool   `json:"reset_stack"`
}

func (DeleteFlockFulfilled) Type() EventType           { return EventTypeDeleteFlockFulfilled }
func (e DeleteFlockFulfilled) ToJSON() ([]byte, error) { return encode(e, e) }

// DeleteFlockRejected reports a failed deletion cascade. Steps completed
// before the failure remain applied.
type DeleteFlockRejected struct {
	Header  `json:"-"`
	FlockID string `json:"flock_id"`
	Err     error  `json:"-"`
}

func (DeleteFlockRejected) Type() EventType           { return EventTypeDeleteFlockRejected }
func (e DeleteFlockRejected) Failure() error          { return e.Err }
func (e DeleteFlockRejected) ToJSON() ([]byte, error) { return encode(e, e) }

// DeleteChickenFulfilled reports a removed chicken and how many of its eggs
// were removed with it.
type DeleteChickenFulfilled struct {
	Header      `json:"-"`
	FlockID     string `json:"flock_id"`
	ChickenID   string `json:"chicken_id"`
	EggsRemoved int    `json:"eggs_removed"`
}

func (DeleteChickenFulfilled) Type() EventType           { return EventTypeDeleteChickenFulfilled }
func (e DeleteChickenFulfilled) ToJSON() ([]byte, error) { return encode(e, e) }

// DeleteChickenRejected reports a failed chicken deletion.
type DeleteChickenRejected struct {
	Header    `json:"-"`
	FlockID   string `json:"flock_id"`
	ChickenID string `json:"chicken_id"`
	Err       error  `json:"-"`
}

func (DeleteChickenRejected) Type() EventType           { return EventTypeDeleteChickenRejected }
func (e DeleteChickenRejected) Failure() error          { return e.Err }
func (e DeleteChickenRejected) ToJSON() ([]byte, error) { return encode(e, e) }

// FlockFetched carries a single flock record.
type FlockFetched struct {
	Header  `json:"-"`
	FlockID string       `json:"flock_id"`
	Flock   domain.Flock `json:"flock"`
}

func (FlockFetched) Type() EventType           { return EventTypeFlockFetched }
func (e FlockFetched) ToJSON() ([]byte, error) { return encode(e, e) }

// FlockFetchRejected reports a failed flock read.
type FlockFetchRejected struct {
	Header  `json:"-"`
	FlockID string `json:"flock_id"`
	Err     error  `json:"-"`
}

func (FlockFetchRejected) Type() EventType           { return EventTypeFlockFetchRejected }
func (e FlockFetchRejected) Failure() error          { return e.Err }
func (e FlockFetchRejected) ToJSON() ([]byte, error) { return encode(e, e) }
