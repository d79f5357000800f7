// Package watcher executes create, update and remove requests against the
// remote tree. There is one Watcher per verb; every request is written in
// its own goroutine and reported as a fulfilled or rejected result.
package watcher

import (
	"context"
	"errors"
	"sync"

	"github.com/brianly1003/flocksync/internal/domain"
	"github.com/brianly1003/flocksync/internal/domain/commands"
	"github.com/brianly1003/flocksync/internal/domain/events"
	"github.com/brianly1003/flocksync/internal/domain/ports"
	"github.com/brianly1003/flocksync/internal/paths"
	"github.com/rs/zerolog/log"
)

// Verb is the write a Watcher performs.
type Verb string

const (
	Create Verb = "create"
	Update Verb = "update"
	Remove Verb = "remove"
)

// Verbs lists every write verb.
var Verbs = []Verb{Create, Update, Remove}

// VerbOf returns the verb of a write command.
func VerbOf(cmd commands.Command) (Verb, bool) {
	switch cmd.(type) {
	case commands.CreateRequested:
		return Create, true
	case commands.UpdateRequested:
		return Update, true
	case commands.RemoveRequested:
		return Remove, true
	default:
		return "", false
	}
}

// Validator checks a payload before it is written.
type Validator interface {
	Validate(entity domain.EntityType, data any) error
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithValidator validates create and update payloads before writing.
func WithValidator(v Validator) Option {
	return func(w *Watcher) {
		w.validator = v
	}
}

// Watcher consumes the requests of one verb.
type Watcher struct {
	verb      Verb
	remote    ports.RemoteStore
	emitter   ports.Emitter
	validator Validator

	inbox   chan commands.Command
	stopped chan struct{}
	writes  sync.WaitGroup
}

// New creates a watcher for verb.
func New(verb Verb, remote ports.RemoteStore, emitter ports.Emitter, opts ...Option) *Watcher {
	w := &Watcher{
		verb:    verb,
		remote:  remote,
		emitter: emitter,
		inbox:   make(chan commands.Command, 64),
		stopped: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Verb returns the verb this watcher handles.
func (w *Watcher) Verb() Verb {
	return w.verb
}

// Submit enqueues cmd. Commands of another verb are ignored.
func (w *Watcher) Submit(ctx context.Context, cmd commands.Command) error {
	if v, ok := VerbOf(cmd); !ok || v != w.verb {
		return nil
	}
	select {
	case <-w.stopped:
		return domain.ErrStopped
	default:
	}
	select {
	case w.inbox <- cmd:
		return nil
	case <-w.stopped:
		return domain.ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run forks one write per request until ctx is cancelled, then waits for
// the writes still in flight.
func (w *Watcher) Run(ctx context.Context) error {
	defer close(w.stopped)
	log.Debug().Str("verb", string(w.verb)).Msg("request watcher started")

	for {
		select {
		case <-ctx.Done():
			w.writes.Wait()
			log.Debug().Str("verb", string(w.verb)).Msg("request watcher stopped")
			return nil
		case cmd := <-w.inbox:
			w.writes.Add(1)
			go func() {
				defer w.writes.Done()
				if ev := w.Execute(ctx, cmd); ev != nil {
					w.emitter.Publish(ev)
				}
			}()
		}
	}
}

// Wait blocks until every forked write has finished.
func (w *Watcher) Wait() {
	w.writes.Wait()
}

// Execute performs one request synchronously and returns its result, or nil
// when the request does not apply to its entity type.
func (w *Watcher) Execute(ctx context.Context, cmd commands.Command) events.Event {
	entity, ids, data, ok := w.unpack(cmd)
	if !ok {
		return nil
	}
	logger := log.With().Str("verb", string(w.verb)).Str("entity", entity.String()).Logger()

	path, err := w.resolve(entity, ids)
	if errors.Is(err, domain.ErrUnsupportedVerb) || errors.Is(err, domain.ErrUnknownEntity) {
		logger.Debug().Err(err).Msg("request skipped")
		return nil
	}
	if err != nil {
		logger.Warn().Err(err).Msg("request rejected")
		return events.RequestResult(string(w.verb), entity, "", "", err)
	}

	if w.validator != nil && w.verb != Remove {
		if err := w.validator.Validate(entity, data); err != nil {
			logger.Warn().Str("path", path).Err(err).Msg("payload rejected")
			return events.RequestResult(string(w.verb), entity, path, "", err)
		}
	}

	var key string
	switch w.verb {
	case Create:
		key, err = w.remote.Push(ctx, path, data)
	case Update:
		err = w.remote.Set(ctx, path, data)
	case Remove:
		err = w.remote.Remove(ctx, path)
	}
	err = domain.NewRemoteError(string(w.verb), path, err)
	if err != nil {
		logger.Error().Str("path", path).Err(err).Msg("remote write failed")
	} else {
		logger.Debug().Str("path", path).Str("key", key).Msg("remote write done")
	}
	return events.RequestResult(string(w.verb), entity, path, key, err)
}

func (w *Watcher) unpack(cmd commands.Command) (domain.EntityType, paths.IDs, any, bool) {
	switch c := cmd.(type) {
	case commands.CreateRequested:
		return c.Entity, c.IDs, c.Data, w.verb == Create
	case commands.UpdateRequested:
		return c.Entity, c.IDs, c.Data, w.verb == Update
	case commands.RemoveRequested:
		return c.Entity, c.IDs, nil, w.verb == Remove
	default:
		return domain.EntityUnknown, paths.IDs{}, nil, false
	}
}

func (w *Watcher) resolve(entity domain.EntityType, ids paths.IDs) (string, error) {
	switch w.verb {
	case Create:
		return paths.ForCreate(entity, ids)
	case Update:
		return paths.ForUpdate(entity, ids)
	default:
		return paths.ForRemove(entity, ids)
	}
}
