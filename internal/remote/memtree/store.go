// Package memtree is an in-process remote tree with child notifications.
// It is the default backend for local development and for tests.
package memtree

import (
	"context"
	"sort"
	"sync"

	"github.com/brianly1003/flocksync/internal/domain"
	"github.com/brianly1003/flocksync/internal/domain/ports"
	"github.com/brianly1003/flocksync/internal/tree"
	"github.com/rs/zerolog/log"
)

// Store is a copy-on-write JSON tree guarded by a single write lock.
type Store struct {
	mu     sync.RWMutex
	root   any
	broker *tree.Broker
}

// New creates an empty store.
func New() *Store {
	return &Store{broker: tree.NewBroker()}
}

// NewWithData creates a store seeded with data.
func NewWithData(data map[string]any) (*Store, error) {
	s := New()
	root, err := tree.Normalize(data)
	if err != nil {
		return nil, err
	}
	s.root = root
	return s, nil
}

var (
	_ ports.RemoteStore      = (*Store)(nil)
	_ ports.MultiPathUpdater = (*Store)(nil)
)

// Get reads the value at path.
func (s *Store) Get(ctx context.Context, path string) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, domain.NewRemoteError("get", path, err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return tree.Clone(tree.Lookup(s.root, tree.Split(path))), nil
}

// Set overwrites the value at path.
func (s *Store) Set(ctx context.Context, path string, value any) error {
	if err := ctx.Err(); err != nil {
		return domain.NewRemoteError("set", path, err)
	}
	v, err := tree.Normalize(value)
	if err != nil {
		return domain.NewRemoteError("set", path, err)
	}
	s.apply(map[string]any{tree.Clean(path): v})
	return nil
}

// Push stores value under a new push key.
func (s *Store) Push(ctx context.Context, path string, value any) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", domain.NewRemoteError("push", path, err)
	}
	v, err := tree.Normalize(value)
	if err != nil {
		return "", domain.NewRemoteError("push", path, err)
	}
	key := tree.NewPushKey()
	s.apply(map[string]any{tree.Child(path, key): v})
	return key, nil
}

// Remove deletes the value at path.
func (s *Store) Remove(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return domain.NewRemoteError("remove", path, err)
	}
	s.apply(map[string]any{tree.Clean(path): nil})
	return nil
}

// Update applies every relative write in values as one operation.
func (s *Store) Update(ctx context.Context, path string, values map[string]any) error {
	if err := ctx.Err(); err != nil {
		return domain.NewRemoteError("update", path, err)
	}
	writes := make(map[string]any, len(values))
	for rel, value := range values {
		v, err := tree.Normalize(value)
		if err != nil {
			return domain.NewRemoteError("update", tree.Child(path, rel), err)
		}
		writes[tree.Child(path, rel)] = v
	}
	s.apply(writes)
	return nil
}

// QueryEqual returns the children of path whose value at child equals value.
func (s *Store) QueryEqual(ctx context.Context, path, child string, value any) (map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, domain.NewRemoteError("query", path, err)
	}
	s.mu.RLock()
	node := tree.Lookup(s.root, tree.Split(path))
	s.mu.RUnlock()

	out, err := tree.FilterEqual(node, child, value)
	if err != nil {
		return nil, domain.NewRemoteError("query", path, err)
	}
	return out, nil
}

// Subscribe starts delivering child notifications for path.
func (s *Store) Subscribe(ctx context.Context, path string) (ports.Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, domain.NewRemoteError("subscribe", path, err)
	}
	// Registration happens under the write lock so no write can slip between
	// a caller's Subscribe and its first read.
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.broker.Subscribe(path), nil
}

// Snapshot returns a deep copy of the whole tree.
func (s *Store) Snapshot() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, _ := tree.Clone(s.root).(map[string]any)
	if m == nil {
		m = map[string]any{}
	}
	return m
}

// Subscriptions returns the number of open subscriptions.
func (s *Store) Subscriptions() int {
	return s.broker.Count()
}

// Close closes every open subscription.
func (s *Store) Close() error {
	s.broker.CloseAll()
	return nil
}

func (s *Store) apply(writes map[string]any) {
	paths := make([]string, 0, len(writes))
	for p := range writes {
		paths = append(paths, p)
	}
	// Shorter paths first so a write to a parent never clobbers a child
	// written in the same update.
	sort.Slice(paths, func(i, j int) bool {
		if len(paths[i]) != len(paths[j]) {
			return len(paths[i]) < len(paths[j])
		}
		return paths[i] < paths[j]
	})

	s.mu.Lock()
	defer s.mu.Unlock()

	watched := s.broker.Watched(paths...)
	before := tree.Snapshot(s.root, watched)
	for _, p := range paths {
		s.root = tree.With(s.root, tree.Split(p), writes[p])
	}
	s.broker.Publish(before, tree.Snapshot(s.root, watched))

	log.Trace().Strs("paths", paths).Int("watched", len(watched)).Msg("memtree write applied")
}
