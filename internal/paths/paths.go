// Package paths builds remote tree paths for entity collections and items.
//
// Collection and Item are pure and total. The For* helpers add the verb
// rules used by the request watchers: which entity types accept which verb
// and which identifiers must be present.
package paths

import (
	"fmt"
	"strings"

	"github.com/brianly1003/flocksync/internal/domain"
)

// Root segments that are not entity collections.
const (
	DeletedFlocksRoot = "deletedFlocks"
)

// IDs carries the identifiers a command can address.
type IDs struct {
	UserID  string `json:"user_id,omitempty"`
	FlockID string `json:"flock_id,omitempty"`
	ItemID  string `json:"item_id,omitempty"`
}

// Collection returns "{type}/{flockId}".
func Collection(entity domain.EntityType, flockID string) string {
	return Join(entity.String(), flockID)
}

// Item returns "{type}/{flockId}/{itemId}".
func Item(entity domain.EntityType, flockID, itemID string) string {
	return Join(entity.String(), flockID, itemID)
}

// UserSettings returns "userSettings/{userId}".
func UserSettings(userID string) string {
	return Join(domain.EntityUserSettings.String(), userID)
}

// Flock returns "flocks/{flockId}".
func Flock(flockID string) string {
	return Join(domain.EntityFlocks.String(), flockID)
}

// DeletedFlock returns "deletedFlocks/{userId}/{flockId}".
func DeletedFlock(userID, flockID string) string {
	return Join(DeletedFlocksRoot, userID, flockID)
}

// Join joins non-empty segments with "/".
func Join(segments ...string) string {
	parts := make([]string, 0, len(segments))
	for _, s := range segments {
		s = strings.Trim(s, "/")
		if s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "/")
}

// ListenRef returns the path a listener for entity should watch.
// userSettings is scoped by user, every other type by flock.
func ListenRef(entity domain.EntityType, ids IDs) (string, error) {
	switch entity {
	case domain.EntityUserSettings:
		if err := require("userId", ids.UserID); err != nil {
			return "", err
		}
		return UserSettings(ids.UserID), nil
	case domain.EntityFlocks:
		if err := require("flockId", ids.FlockID); err != nil {
			return "", err
		}
		return Flock(ids.FlockID), nil
	case domain.EntityChickens, domain.EntityEggs:
		if err := require("flockId", ids.FlockID); err != nil {
			return "", err
		}
		return Collection(entity, ids.FlockID), nil
	default:
		return "", fmt.Errorf("%w: %v", domain.ErrUnknownEntity, entity)
	}
}

// ForCreate returns the collection a create pushes into.
func ForCreate(entity domain.EntityType, ids IDs) (string, error) {
	switch entity {
	case domain.EntityFlocks:
		return domain.EntityFlocks.String(), nil
	case domain.EntityChickens, domain.EntityEggs:
		if err := require("flockId", ids.FlockID); err != nil {
			return "", err
		}
		return Collection(entity, ids.FlockID), nil
	case domain.EntityUserSettings:
		return "", fmt.Errorf("%w: create %v", domain.ErrUnsupportedVerb, entity)
	default:
		return "", fmt.Errorf("%w: %v", domain.ErrUnknownEntity, entity)
	}
}

// ForUpdate returns the item path an update overwrites.
func ForUpdate(entity domain.EntityType, ids IDs) (string, error) {
	return itemPath(entity, ids)
}

// ForRemove returns the item path a remove deletes.
func ForRemove(entity domain.EntityType, ids IDs) (string, error) {
	return itemPath(entity, ids)
}

func itemPath(entity domain.EntityType, ids IDs) (string, error) {
	switch entity {
	case domain.EntityUserSettings:
		if err := require("userId", ids.UserID); err != nil {
			return "", err
		}
		return UserSettings(ids.UserID), nil
	case domain.EntityFlocks:
		if err := require("flockId", ids.FlockID); err != nil {
			return "", err
		}
		return Flock(ids.FlockID), nil
	case domain.EntityChickens, domain.EntityEggs:
		if err := require("flockId", ids.FlockID); err != nil {
			return "", err
		}
		if err := require("itemId", ids.ItemID); err != nil {
			return "", err
		}
		return Item(entity, ids.FlockID, ids.ItemID), nil
	default:
		return "", fmt.Errorf("%w: %v", domain.ErrUnknownEntity, entity)
	}
}

func require(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return domain.NewValidationError(field, "is required")
	}
	if strings.ContainsAny(value, "/.#$[]") {
		return domain.NewValidationError(field, "contains a reserved character")
	}
	return nil
}
