// Package state is a reference container for the result stream. It applies
// every event to per-collection state the way a UI store would, and can be
// inspected as a snapshot. The sync core never reads from it.
package state

import (
	"context"
	"sync"

	"github.com/brianly1003/flocksync/internal/domain"
	"github.com/brianly1003/flocksync/internal/domain/commands"
	"github.com/brianly1003/flocksync/internal/domain/events"
	"github.com/brianly1003/flocksync/internal/domain/ports"
	"github.com/brianly1003/flocksync/internal/tree"
	"github.com/rs/zerolog/log"
)

// EntityCollection is the local copy of one listened collection.
type EntityCollection struct {
	Initialized bool           `json:"initialized"`
	InProgress  bool           `json:"inProgress"`
	Error       *string        `json:"error"`
	Data        map[string]any `json:"data"`
}

// Auth is the auth sub-state. Errors holds one entry per auth action kind.
type Auth struct {
	InProgress bool                        `json:"inProgress"`
	User       *domain.User                `json:"user"`
	Errors     map[domain.AuthKind]*string `json:"errors"`
}

// Operation tracks a single non-collection request.
type Operation struct {
	InProgress bool    `json:"inProgress"`
	Error      *string `json:"error"`
}

// Snapshot is a deep copy of the store contents.
type Snapshot struct {
	Session       domain.AuthStatus                      `json:"session"`
	Auth          Auth                                   `json:"auth"`
	DeleteChicken Operation                              `json:"deleteChicken"`
	Collections   map[domain.EntityType]EntityCollection `json:"collections"`
}

var authKinds = []domain.AuthKind{
	domain.AuthSignIn, domain.AuthSignUp, domain.AuthResetPassword, domain.AuthSignOut,
}

// Store applies results to local state. It is a hub subscriber.
type Store struct {
	id string

	mu            sync.RWMutex
	session       domain.AuthStatus
	auth          Auth
	deleteChicken Operation
	collections   map[domain.EntityType]*EntityCollection

	done      chan struct{}
	closeOnce sync.Once
}

var _ ports.Subscriber = (*Store)(nil)

// NewStore creates a store with every collection uninitialized.
func NewStore(id string) *Store {
	s := &Store{
		id:          id,
		auth:        Auth{Errors: clearedAuthErrors()},
		collections: make(map[domain.EntityType]*EntityCollection, len(domain.EntityTypes)),
		done:        make(chan struct{}),
	}
	s.resetCollections()
	return s
}

func clearedAuthErrors() map[domain.AuthKind]*string {
	errs := make(map[domain.AuthKind]*string, len(authKinds))
	for _, k := range authKinds {
		errs[k] = nil
	}
	return errs
}

func (s *Store) resetCollections() {
	for _, entity := range domain.EntityTypes {
		s.collections[entity] = &EntityCollection{Data: map[string]any{}}
	}
}

func (s *Store) ID() string {
	return s.id
}

// Send applies event.
func (s *Store) Send(event events.Event) error {
	select {
	case <-s.done:
		return domain.ErrSubscriberClosed
	default:
	}
	s.Apply(event)
	return nil
}

func (s *Store) Close() error {
	s.closeOnce.Do(func() { close(s.done) })
	return nil
}

func (s *Store) Done() <-chan struct{} {
	return s.done
}

// Begin records that cmd was submitted: the targeted collection or auth
// state goes in progress and its error is cleared.
func (s *Store) Begin(cmd commands.Command) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch c := cmd.(type) {
	case commands.CreateRequested, commands.UpdateRequested,
		commands.RemoveRequested, commands.ListenRequested:
		if col := s.collection(c.(commands.Scoped).GetEntity()); col != nil {
			col.InProgress = true
			col.Error = nil
		}

	case commands.SignInRequested, commands.SignUpRequested, commands.ResetPasswordRequested:
		s.auth = Auth{InProgress: true, Errors: clearedAuthErrors()}

	case commands.DeleteChickenRequested:
		s.deleteChicken = Operation{InProgress: true}
	}
}

// Apply folds one result into the store.
func (s *Store) Apply(event events.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg := errorText(event)

	switch e := event.(type) {
	case events.SessionChanged:
		s.session = e.Session.Status
		s.auth = Auth{Errors: clearedAuthErrors()}
		if e.Session.Status == domain.AuthLoggedIn && e.Session.User != nil {
			user := *e.Session.User
			s.auth.User = &user
		}

	case events.AuthActionFulfilled:
		s.auth = Auth{User: s.auth.User, Errors: clearedAuthErrors()}

	case events.AuthActionRejected:
		errs := clearedAuthErrors()
		errs[e.Kind] = msg
		s.auth = Auth{Errors: errs}

	case events.AuthErrorCleared:
		s.auth.Errors = clearedAuthErrors()

	case events.ErrorCleared:
		if col := s.collection(e.Entity); col != nil {
			col.Error = nil
		}

	case events.CreateFulfilled, events.UpdateFulfilled, events.RemoveFulfilled,
		events.CreateRejected, events.UpdateRejected, events.RemoveRejected:
		if col := s.collection(event.(events.Scoped).GetEntity()); col != nil {
			col.InProgress = false
			col.Error = msg
		}

	case events.ListenFulfilled:
		if col := s.collection(e.Entity); col != nil {
			*col = EntityCollection{Initialized: true, Data: cloneData(e.Data)}
		}

	case events.ListenRejected:
		if col := s.collection(e.Entity); col != nil {
			col.Initialized = true
			col.InProgress = false
			col.Error = msg
		}

	case events.ChildAdded:
		s.upsert(e.Entity, e.Key, e.Value)
	case events.ChildChanged:
		s.upsert(e.Entity, e.Key, e.Value)

	case events.ChildRemoved:
		if col := s.collection(e.Entity); col != nil {
			delete(col.Data, e.Key)
		}

	case events.ListenRemoved:
		if col := s.collection(e.Entity); col != nil {
			col.Error = nil
			if e.ClearData {
				col.Data = map[string]any{}
			}
		}

	case events.CacheCleared:
		s.resetCollections()

	case events.DeleteChickenFulfilled, events.DeleteChickenRejected:
		s.deleteChicken = Operation{Error: msg}
	}
}

// Collection returns a copy of one collection.
func (s *Store) Collection(entity domain.EntityType) EntityCollection {
	s.mu.RLock()
	defer s.mu.RUnlock()
	col := s.collection(entity)
	if col == nil {
		return EntityCollection{Data: map[string]any{}}
	}
	return copyCollection(*col)
}

// Snapshot returns a deep copy of everything the store holds.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		Session:       s.session,
		Auth:          Auth{InProgress: s.auth.InProgress, Errors: make(map[domain.AuthKind]*string, len(s.auth.Errors))},
		DeleteChicken: s.deleteChicken,
		Collections:   make(map[domain.EntityType]EntityCollection, len(s.collections)),
	}
	if s.auth.User != nil {
		user := *s.auth.User
		snap.Auth.User = &user
	}
	for k, v := range s.auth.Errors {
		snap.Auth.Errors[k] = v
	}
	for entity, col := range s.collections {
		snap.Collections[entity] = copyCollection(*col)
	}
	return snap
}

// Track returns a sink that records each command with Begin before
// handing it to next.
func (s *Store) Track(next ports.CommandSink) ports.CommandSink {
	return trackingSink{store: s, next: next}
}

type trackingSink struct {
	store *Store
	next  ports.CommandSink
}

func (t trackingSink) Submit(ctx context.Context, cmd commands.Command) error {
	t.store.Begin(cmd)
	return t.next.Submit(ctx, cmd)
}

func (s *Store) collection(entity domain.EntityType) *EntityCollection {
	col, ok := s.collections[entity]
	if !ok {
		log.Debug().Str("entity", entity.String()).Msg("event for unknown collection")
		return nil
	}
	return col
}

func (s *Store) upsert(entity domain.EntityType, key string, value any) {
	if col := s.collection(entity); col != nil {
		col.Data[key] = tree.Clone(value)
	}
}

func errorText(e events.Event) *string {
	msg := events.ErrorMessage(e)
	if msg == "" {
		return nil
	}
	return &msg
}

func cloneData(data map[string]any) map[string]any {
	if data == nil {
		return map[string]any{}
	}
	return tree.Clone(data).(map[string]any)
}

func copyCollection(c EntityCollection) EntityCollection {
	c.Data = cloneData(c.Data)
	return c
}
