package domain

import (
	"fmt"
)

// EntityType identifies one of the synchronized collections.
type EntityType int

const (
	// EntityUnknown is the zero value; it never routes anywhere.
	EntityUnknown EntityType = iota
	EntityUserSettings
	EntityFlocks
	EntityChickens
	EntityEggs
)

// EntityTypes lists every routable entity type in a stable order.
var EntityTypes = []EntityType{
	EntityUserSettings,
	EntityFlocks,
	EntityChickens,
	EntityEggs,
}

var entityTokens = map[EntityType]string{
	EntityUserSettings: "userSettings",
	EntityFlocks:       "flocks",
	EntityChickens:     "chickens",
	EntityEggs:         "eggs",
}

// String returns the wire token, which is also the remote root path segment.
func (e EntityType) String() string {
	if s, ok := entityTokens[e]; ok {
		return s
	}
	return "unknown"
}

// Valid reports whether e is one of the routable entity types.
func (e EntityType) Valid() bool {
	_, ok := entityTokens[e]
	return ok
}

// ParseEntityType converts a wire token into an EntityType.
func ParseEntityType(s string) (EntityType, error) {
	for e, token := range entityTokens {
		if token == s {
			return e, nil
		}
	}
	return EntityUnknown, fmt.Errorf("%w: %q", ErrUnknownEntity, s)
}

// MarshalText implements encoding.TextMarshaler.
func (e EntityType) MarshalText() ([]byte, error) {
	if !e.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownEntity, int(e))
	}
	return []byte(e.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (e *EntityType) UnmarshalText(text []byte) error {
	parsed, err := ParseEntityType(string(text))
	if err != nil {
		return err
	}
	*e = parsed
	return nil
}
