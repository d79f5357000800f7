// Package tree holds the building blocks shared by the remote tree backends:
// path handling, copy-on-write JSON values, child diffing, subscription
// fan-out and push key generation.
package tree

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/brianly1003/flocksync/internal/domain"
)

// Split returns the non-empty segments of a slash separated path.
func Split(path string) []string {
	raw := strings.Split(path, "/")
	segs := raw[:0]
	for _, s := range raw {
		if s != "" {
			segs = append(segs, s)
		}
	}
	return segs
}

// Clean normalizes a path: no leading, trailing or repeated slashes.
func Clean(path string) string {
	return strings.Join(Split(path), "/")
}

// Child returns parent/key.
func Child(parent, key string) string {
	parent = Clean(parent)
	if parent == "" {
		return Clean(key)
	}
	return parent + "/" + Clean(key)
}

// Contains reports whether path equals ancestor or lies beneath it.
func Contains(ancestor, path string) bool {
	ancestor, path = Clean(ancestor), Clean(path)
	if ancestor == "" || ancestor == path {
		return true
	}
	return strings.HasPrefix(path, ancestor+"/")
}

// Normalize converts an arbitrary Go value into plain JSON values. Empty
// objects collapse to nil the way the remote store treats them.
func Normalize(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidPayload, err)
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidPayload, err)
	}
	return prune(out), nil
}

func prune(v any) any {
	m, ok := v.(map[string]any)
	if !ok {
		return v
	}
	for k, child := range m {
		child = prune(child)
		if child == nil {
			delete(m, k)
			continue
		}
		m[k] = child
	}
	if len(m) == 0 {
		return nil
	}
	return m
}

// Lookup returns the value at segs beneath root, or nil.
func Lookup(root any, segs []string) any {
	node := root
	for _, s := range segs {
		m, ok := node.(map[string]any)
		if !ok {
			return nil
		}
		node = m[s]
	}
	return node
}

// With returns a copy of root with v stored at segs. Only the maps along
// the path are copied; everything else is shared. A nil v deletes and prunes
// parents left empty.
func With(root any, segs []string, v any) any {
	if len(segs) == 0 {
		return v
	}
	var m map[string]any
	if existing, ok := root.(map[string]any); ok {
		m = make(map[string]any, len(existing)+1)
		for k, child := range existing {
			m[k] = child
		}
	} else {
		m = make(map[string]any, 1)
	}
	child := With(m[segs[0]], segs[1:], v)
	if child == nil {
		delete(m, segs[0])
	} else {
		m[segs[0]] = child
	}
	if len(m) == 0 {
		return nil
	}
	return m
}

// Children returns the object children of node, or nil for leaves.
func Children(node any) map[string]any {
	m, _ := node.(map[string]any)
	return m
}

// Clone returns a deep copy of a JSON value.
func Clone(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, child := range t {
			out[k] = Clone(child)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, child := range t {
			out[i] = Clone(child)
		}
		return out
	default:
		return v
	}
}

// Equal reports whether two normalized JSON values are equal.
func Equal(a, b any) bool {
	return reflect.DeepEqual(a, b)
}

// DiffChildren compares the direct children of a node before and after a
// write and returns one notification per changed key, sorted by key.
func DiffChildren(before, after map[string]any) []domain.ChildEvent {
	keys := make([]string, 0, len(before)+len(after))
	for k := range before {
		keys = append(keys, k)
	}
	for k := range after {
		if _, ok := before[k]; !ok {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	var out []domain.ChildEvent
	for _, k := range keys {
		prev, had := before[k]
		next, has := after[k]
		switch {
		case had && !has:
			out = append(out, domain.ChildEvent{Kind: domain.ChildRemoved, Key: k, Value: Clone(prev)})
		case !had && has:
			out = append(out, domain.ChildEvent{Kind: domain.ChildAdded, Key: k, Value: Clone(next)})
		case !Equal(prev, next):
			out = append(out, domain.ChildEvent{Kind: domain.ChildChanged, Key: k, Value: Clone(next)})
		}
	}
	return out
}

// FilterEqual returns the children of node whose value at child equals value.
func FilterEqual(node any, child string, value any) (map[string]any, error) {
	want, err := Normalize(value)
	if err != nil {
		return nil, err
	}
	segs := Split(child)
	out := make(map[string]any)
	for k, v := range Children(node) {
		if Equal(Lookup(v, segs), want) {
			out[k] = Clone(v)
		}
	}
	return out, nil
}
