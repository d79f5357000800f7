package domain

// ChildKind is the kind of a child notification from the remote tree.
type ChildKind int

const (
	ChildAdded ChildKind = iota + 1
	ChildChanged
	ChildRemoved
)

func (k ChildKind) String() string {
	switch k {
	case ChildAdded:
		return "added"
	case ChildChanged:
		return "changed"
	case ChildRemoved:
		return "removed"
	default:
		return "unknown"
	}
}

// ParseChildKind converts the wire name back into a ChildKind.
func ParseChildKind(s string) (ChildKind, bool) {
	switch s {
	case "added":
		return ChildAdded, true
	case "changed":
		return ChildChanged, true
	case "removed":
		return ChildRemoved, true
	default:
		return 0, false
	}
}

// ChildEvent is one incremental notification for a direct child of a
// subscribed path. Value is the new value for added/changed and the last
// known value for removed.
type ChildEvent struct {
	Kind  ChildKind
	Key   string
	Value any
}
