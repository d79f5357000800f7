package tree

import (
	"strings"

	"github.com/oklog/ulid/v2"
)

// NewPushKey returns a child key that sorts after every key generated before
// it in this process, so pushed children list in creation order.
func NewPushKey() string {
	return strings.ToLower(ulid.Make().String())
}
