package tree

import (
	"sort"
	"testing"
	"time"

	"github.com/brianly1003/flocksync/internal/domain"
)

func TestPathHelpers(t *testing.T) {
	if got := Split("/a//b/"); len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("Split() = %v", got)
	}
	if got := Clean("//eggs/flock1/"); got != "eggs/flock1" {
		t.Errorf("Clean() = %q", got)
	}
	if got := Child("eggs/flock1", "e1"); got != "eggs/flock1/e1" {
		t.Errorf("Child() = %q", got)
	}
	if got := Child("", "flocks"); got != "flocks" {
		t.Errorf("Child(root) = %q", got)
	}

	tests := []struct {
		ancestor, path string
		want           bool
	}{
		{"eggs", "eggs/f1", true},
		{"eggs/f1", "eggs/f1", true},
		{"eggs/f1", "eggs/f10", false},
		{"", "anything", true},
		{"eggs/f1/e1", "eggs/f1", false},
	}
	for _, tt := range tests {
		if got := Contains(tt.ancestor, tt.path); got != tt.want {
			t.Errorf("Contains(%q, %q) = %v, want %v", tt.ancestor, tt.path, got, tt.want)
		}
	}
}

func TestNormalize(t *testing.T) {
	got, err := Normalize(domain.Flock{Name: "Backyard", OwnedBy: "u1"})
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	m, ok := got.(map[string]any)
	if !ok || m["name"] != "Backyard" || m["ownedBy"] != "u1" {
		t.Errorf("Normalize() = %#v", got)
	}

	got, err = Normalize(map[string]any{"a": map[string]any{}, "b": 1})
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if m := got.(map[string]any); len(m) != 1 || m["b"] != float64(1) {
		t.Errorf("empty child not pruned: %#v", got)
	}

	if got, _ := Normalize(map[string]any{}); got != nil {
		t.Errorf("Normalize(empty) = %#v, want nil", got)
	}
}

func TestWith_CopyOnWrite(t *testing.T) {
	var root any
	root = With(root, Split("flocks/f1/name"), "One")
	before := root
	beforeFlocks := Children(Lookup(before, []string{"flocks"}))

	root = With(root, Split("flocks/f2/name"), "Two")

	if len(beforeFlocks) != 1 {
		t.Errorf("earlier snapshot mutated: %v", beforeFlocks)
	}
	if got := Lookup(root, Split("flocks/f2/name")); got != "Two" {
		t.Errorf("Lookup() = %v, want Two", got)
	}

	root = With(root, Split("flocks/f1/name"), nil)
	root = With(root, Split("flocks/f2"), nil)
	if root != nil {
		t.Errorf("empty parents not pruned: %#v", root)
	}
}

func TestDiffChildren(t *testing.T) {
	before := map[string]any{"a": "1", "b": "2", "c": "3"}
	after := map[string]any{"a": "1", "b": "20", "d": "4"}

	got := DiffChildren(before, after)
	want := []domain.ChildEvent{
		{Kind: domain.ChildChanged, Key: "b", Value: "20"},
		{Kind: domain.ChildRemoved, Key: "c", Value: "3"},
		{Kind: domain.ChildAdded, Key: "d", Value: "4"},
	}
	if len(got) != len(want) {
		t.Fatalf("DiffChildren() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("DiffChildren()[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestFilterEqual(t *testing.T) {
	node := map[string]any{
		"u1": map[string]any{"flocks": map[string]any{"f1": true}},
		"u2": map[string]any{"flocks": map[string]any{"f2": true}},
		"u3": map[string]any{"flocks": map[string]any{"f1": true, "f2": true}},
	}
	got, err := FilterEqual(node, "flocks/f1", true)
	if err != nil {
		t.Fatalf("FilterEqual() error = %v", err)
	}
	keys := make([]string, 0, len(got))
	for k := range got {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	if len(keys) != 2 || keys[0] != "u1" || keys[1] != "u3" {
		t.Errorf("FilterEqual() keys = %v, want [u1 u3]", keys)
	}
}

func TestBroker_PublishesToWatchedPaths(t *testing.T) {
	b := NewBroker()
	eggs := b.Subscribe("eggs/f1")
	chickens := b.Subscribe("chickens/f1")
	defer func() { _ = eggs.Close() }()
	defer func() { _ = chickens.Close() }()

	var root any
	watched := b.Watched("eggs/f1/e1")
	if len(watched) != 1 || watched[0] != "eggs/f1" {
		t.Fatalf("Watched() = %v, want [eggs/f1]", watched)
	}

	before := Snapshot(root, watched)
	root = With(root, Split("eggs/f1/e1"), map[string]any{"chickenId": "c1"})
	b.Publish(before, Snapshot(root, watched))

	select {
	case ev := <-eggs.Events():
		if ev.Kind != domain.ChildAdded || ev.Key != "e1" {
			t.Errorf("event = %+v, want added e1", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("no event for watched path")
	}

	select {
	case ev := <-chickens.Events():
		t.Errorf("unexpected event on unrelated path: %+v", ev)
	case <-time.After(20 * time.Millisecond):
	}

	_ = eggs.Close()
	if b.Count() != 1 {
		t.Errorf("Count() = %d, want 1", b.Count())
	}
}

func TestBroker_AncestorWrite(t *testing.T) {
	b := NewBroker()
	sub := b.Subscribe("eggs/f1")
	defer func() { _ = sub.Close() }()

	var root any = map[string]any{"eggs": map[string]any{"f1": map[string]any{"e1": "x", "e2": "y"}}}
	watched := b.Watched("eggs")
	before := Snapshot(root, watched)
	root = With(root, Split("eggs"), nil)
	b.Publish(before, Snapshot(root, watched))

	var got []string
	for i := 0; i < 2; i++ {
		select {
		case ev := <-sub.Events():
			if ev.Kind != domain.ChildRemoved {
				t.Errorf("kind = %v, want removed", ev.Kind)
			}
			got = append(got, ev.Key)
		case <-time.After(time.Second):
			t.Fatal("timeout waiting for removal")
		}
	}
	if got[0] != "e1" || got[1] != "e2" {
		t.Errorf("removed keys = %v, want [e1 e2]", got)
	}
}

func TestNewPushKey_Ordered(t *testing.T) {
	prev := NewPushKey()
	for i := 0; i < 100; i++ {
		next := NewPushKey()
		if next <= prev {
			t.Fatalf("push key %q not after %q", next, prev)
		}
		prev = next
	}
}
