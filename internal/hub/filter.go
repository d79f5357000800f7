package hub

import (
	"github.com/brianly1003/flocksync/internal/domain"
	"github.com/brianly1003/flocksync/internal/domain/events"
	"github.com/brianly1003/flocksync/internal/domain/ports"
)

// FilteredSubscriber wraps a subscriber and filters events by entity type.
// Events without an entity (session, flock lifecycle) are always forwarded.
// If no entity is selected, all events are forwarded.
type FilteredSubscriber struct {
	inner    ports.Subscriber
	entities map[domain.EntityType]bool
}

// NewFilteredSubscriber creates a new filtered subscriber wrapping the given subscriber.
func NewFilteredSubscriber(inner ports.Subscriber, entities ...domain.EntityType) *FilteredSubscriber {
	f := &FilteredSubscriber{
		inner:    inner,
		entities: make(map[domain.EntityType]bool),
	}
	for _, e := range entities {
		f.entities[e] = true
	}
	return f
}

// ID returns the subscriber's unique identifier.
func (f *FilteredSubscriber) ID() string {
	return f.inner.ID()
}

// Send sends an event to the subscriber if it passes the filter.
func (f *FilteredSubscriber) Send(event events.Event) error {
	if !f.shouldForward(event) {
		return nil
	}
	return f.inner.Send(event)
}

// Close closes the subscriber.
func (f *FilteredSubscriber) Close() error {
	return f.inner.Close()
}

// Done returns a channel that's closed when the subscriber is done.
func (f *FilteredSubscriber) Done() <-chan struct{} {
	return f.inner.Done()
}

func (f *FilteredSubscriber) shouldForward(event events.Event) bool {
	if len(f.entities) == 0 {
		return true
	}

	scoped, ok := event.(events.Scoped)
	if !ok {
		return true
	}
	return f.entities[scoped.GetEntity()]
}
