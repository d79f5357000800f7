package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// User is the authenticated principal.
type User struct {
	UID   string `json:"uid"`
	Email string `json:"email"`
}

// UserSettings is stored at userSettings/{uid}.
type UserSettings struct {
	CurrentFlockID *string         `json:"currentFlockId,omitempty"`
	Flocks         map[string]bool `json:"flocks,omitempty"`
}

// Current returns the selected flock ID or "" when none is selected.
func (s UserSettings) Current() string {
	if s.CurrentFlockID == nil {
		return ""
	}
	return *s.CurrentFlockID
}

// IsCurrent reports whether flockID is the selected flock.
func (s UserSettings) IsCurrent(flockID string) bool {
	return s.CurrentFlockID != nil && *s.CurrentFlockID == flockID
}

// Memberships returns the flock IDs the user belongs to, sorted.
func (s UserSettings) Memberships() []string {
	ids := make([]string, 0, len(s.Flocks))
	for id, member := range s.Flocks {
		if member {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// Clone returns a deep copy of the settings.
func (s UserSettings) Clone() UserSettings {
	out := UserSettings{}
	if s.CurrentFlockID != nil {
		id := *s.CurrentFlockID
		out.CurrentFlockID = &id
	}
	if s.Flocks != nil {
		out.Flocks = make(map[string]bool, len(s.Flocks))
		for k, v := range s.Flocks {
			out.Flocks[k] = v
		}
	}
	return out
}

// Flock is stored at flocks/{flockId}.
type Flock struct {
	Name    string `json:"name"`
	OwnedBy string `json:"ownedBy"`
}

// Chicken is stored at chickens/{flockId}/{chickenId}.
type Chicken struct {
	Name          string `json:"name"`
	Breed         string `json:"breed,omitempty"`
	Hatched       string `json:"hatched,omitempty"`
	PhotoPath     string `json:"photoPath,omitempty"`
	PhotoURL      string `json:"photoUrl,omitempty"`
	ThumbnailPath string `json:"thumbnailPath,omitempty"`
	ThumbnailURL  string `json:"thumbnailUrl,omitempty"`
}

// BulkEntryChickenID marks eggs logged without a specific hen.
const BulkEntryChickenID = "BULK_ENTRY"

// Egg is stored at eggs/{flockId}/{eggId}.
type Egg struct {
	ChickenID   string `json:"chickenId"`
	ChickenName string `json:"chickenName,omitempty"`
	Damaged     bool   `json:"damaged,omitempty"`
	Date        string `json:"date"`
	Modified    int64  `json:"modified,omitempty"`
	Notes       string `json:"notes,omitempty"`
	Weight      Weight `json:"weight,omitempty"`
	Quantity    int    `json:"quantity,omitempty"`
	BulkMode    bool   `json:"bulkMode,omitempty"`
	UserID      string `json:"userId,omitempty"`
}

// Count returns the number of eggs the entry represents.
func (e Egg) Count() int {
	if e.Quantity > 0 {
		return e.Quantity
	}
	return 1
}

// Weight is an egg weight in grams. Older clients stored it as a string.
type Weight float64

// UnmarshalJSON accepts both numbers and numeric strings.
func (w *Weight) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		*w = 0
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			*w = 0
			return nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("weight %q: %w", s, ErrInvalidPayload)
		}
		*w = Weight(f)
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	*w = Weight(f)
	return nil
}

// Decode converts a generic tree value (as produced by a remote read) into
// a typed record.
func Decode(value any, out any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return nil
}

// AuthStatus is the coarse authentication state.
type AuthStatus int

const (
	AuthUnknown AuthStatus = iota
	AuthLoggedIn
	AuthLoggedOut
)

func (s AuthStatus) String() string {
	switch s {
	case AuthLoggedIn:
		return "loggedIn"
	case AuthLoggedOut:
		return "loggedOut"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s AuthStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// AuthSession is the session as observed by the session watcher.
type AuthSession struct {
	Status AuthStatus `json:"status"`
	User   *User      `json:"user,omitempty"`
}

// AuthKind names an auth action.
type AuthKind string

const (
	AuthSignIn        AuthKind = "signIn"
	AuthSignUp        AuthKind = "signUp"
	AuthResetPassword AuthKind = "resetPassword"
	AuthSignOut       AuthKind = "signOut"
)
