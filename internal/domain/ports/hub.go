package ports

import (
	"context"

	"github.com/brianly1003/flocksync/internal/domain/commands"
	"github.com/brianly1003/flocksync/internal/domain/events"
)

// Subscriber represents an event subscriber.
type Subscriber interface {
	// ID returns a unique identifier for this subscriber.
	ID() string

	// Send sends an event to this subscriber.
	// Returns error if the subscriber is closed or the send fails.
	Send(event events.Event) error

	// Close closes the subscriber.
	Close() error

	// Done returns a channel that's closed when the subscriber is done.
	Done() <-chan struct{}
}

// Emitter is the write side of the result stream.
type Emitter interface {
	// Publish sends an event to all subscribers, in call order.
	Publish(event events.Event)
}

// Flusher is implemented by emitters that deliver asynchronously.
type Flusher interface {
	// Flush blocks until every event published before the call has been
	// delivered.
	Flush(ctx context.Context) error
}

// EventHub defines the contract for event distribution.
type EventHub interface {
	Emitter

	// Start begins the event hub.
	Start() error

	Flusher

	// Stop gracefully stops the hub.
	Stop() error

	// Subscribe adds a new subscriber.
	Subscribe(sub Subscriber)

	// Unsubscribe removes a subscriber by ID.
	Unsubscribe(id string)

	// SubscriberCount returns the number of active subscribers.
	SubscriberCount() int
}

// CommandSink accepts commands for routing.
type CommandSink interface {
	Submit(ctx context.Context, cmd commands.Command) error
}
