package listener

import (
	"context"

	"github.com/brianly1003/flocksync/internal/domain"
	"github.com/brianly1003/flocksync/internal/domain/commands"
	"github.com/brianly1003/flocksync/internal/domain/ports"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// Set holds one coordinator per entity type.
type Set struct {
	coordinators map[domain.EntityType]*Coordinator
}

// NewSet creates a coordinator for every known entity type.
func NewSet(factory AdapterFactory, emitter ports.Emitter) *Set {
	s := &Set{coordinators: make(map[domain.EntityType]*Coordinator, len(domain.EntityTypes))}
	for _, entity := range domain.EntityTypes {
		s.coordinators[entity] = NewCoordinator(entity, factory, emitter)
	}
	return s
}

// Run runs every coordinator until ctx is cancelled.
func (s *Set) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, c := range s.coordinators {
		c := c
		g.Go(func() error { return c.Run(ctx) })
	}
	return g.Wait()
}

// Coordinator returns the coordinator for entity, or nil.
func (s *Set) Coordinator(entity domain.EntityType) *Coordinator {
	return s.coordinators[entity]
}

// Listen enqueues a listen request for entity.
func (s *Set) Listen(ctx context.Context, entity domain.EntityType, ref string) error {
	c, ok := s.coordinators[entity]
	if !ok {
		log.Debug().Str("entity", entity.String()).Msg("listen for unknown entity type ignored")
		return nil
	}
	return c.Listen(ctx, ref)
}

// Remove enqueues a remove request for entity.
func (s *Set) Remove(ctx context.Context, entity domain.EntityType, clearData bool) error {
	c, ok := s.coordinators[entity]
	if !ok {
		log.Debug().Str("entity", entity.String()).Msg("remove for unknown entity type ignored")
		return nil
	}
	return c.Remove(ctx, clearData)
}

// RemoveAll tears down every listener concurrently and returns once all
// coordinators acknowledged.
func (s *Set) RemoveAll(ctx context.Context, clearData bool) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, c := range s.coordinators {
		c := c
		g.Go(func() error { return c.RemoveAll(ctx, clearData) })
	}
	return g.Wait()
}

// RemoveMatching tears down the listener of entity if it watches ref.
func (s *Set) RemoveMatching(ctx context.Context, entity domain.EntityType, ref string, clearData bool) error {
	c, ok := s.coordinators[entity]
	if !ok {
		return nil
	}
	return c.RemoveMatching(ctx, ref, clearData)
}

// Sync waits until every coordinator handled its pending requests.
func (s *Set) Sync(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, c := range s.coordinators {
		c := c
		g.Go(func() error { return c.Sync(ctx) })
	}
	return g.Wait()
}

// Submit routes a listener command to the coordinator of its entity type.
func (s *Set) Submit(ctx context.Context, cmd commands.Command) error {
	switch v := cmd.(type) {
	case commands.ListenRequested:
		return s.Listen(ctx, v.Entity, v.Ref)
	case commands.RemoveListenerRequested:
		return s.Remove(ctx, v.Entity, v.ClearData)
	case commands.RemoveAllListenersRequested:
		return s.RemoveAll(ctx, v.ClearData)
	default:
		return nil
	}
}
