package watcher

import (
	"context"

	"github.com/brianly1003/flocksync/internal/domain/commands"
	"github.com/brianly1003/flocksync/internal/domain/ports"
	"golang.org/x/sync/errgroup"
)

// Group runs one watcher per verb.
type Group struct {
	watchers map[Verb]*Watcher
}

// NewGroup creates the create, update and remove watchers.
func NewGroup(remote ports.RemoteStore, emitter ports.Emitter, opts ...Option) *Group {
	g := &Group{watchers: make(map[Verb]*Watcher, len(Verbs))}
	for _, verb := range Verbs {
		g.watchers[verb] = New(verb, remote, emitter, opts...)
	}
	return g
}

// Run runs every watcher until ctx is cancelled.
func (g *Group) Run(ctx context.Context) error {
	eg, ctx := errgroup.WithContext(ctx)
	for _, w := range g.watchers {
		w := w
		eg.Go(func() error { return w.Run(ctx) })
	}
	return eg.Wait()
}

// Submit hands a write command to the watcher of its verb.
func (g *Group) Submit(ctx context.Context, cmd commands.Command) error {
	verb, ok := VerbOf(cmd)
	if !ok {
		return nil
	}
	return g.watchers[verb].Submit(ctx, cmd)
}

// Watcher returns the watcher of verb.
func (g *Group) Watcher(verb Verb) *Watcher {
	return g.watchers[verb]
}

// Wait blocks until every watcher's in-flight writes have finished.
func (g *Group) Wait() {
	for _, w := range g.watchers {
		w.Wait()
	}
}
