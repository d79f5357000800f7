// Package hub implements the central result stream for flocksync.
package hub

import (
	"context"
	"sync"

	"github.com/brianly1003/flocksync/internal/domain"
	"github.com/brianly1003/flocksync/internal/domain/events"
	"github.com/brianly1003/flocksync/internal/domain/ports"
	"github.com/rs/zerolog/log"
)

// item is one entry of the broadcast queue: an event, or a flush marker.
type item struct {
	event events.Event
	flush chan struct{}
}

// Hub is the central event dispatcher that fans out events to all subscribers.
// Events reach every subscriber in publish order.
type Hub struct {
	// subscribers holds all active subscribers
	subscribers map[string]ports.Subscriber

	// broadcast channel receives events to be broadcast
	broadcast chan item

	// register channel receives new subscribers
	register chan ports.Subscriber

	// unregister channel receives subscriber IDs to remove
	unregister chan string

	// mu protects subscribers map
	mu sync.RWMutex

	// done signals when the hub should stop
	done chan struct{}

	// running indicates if the hub is running
	running bool
}

var _ ports.EventHub = (*Hub)(nil)

// New creates a new Hub.
func New() *Hub {
	return &Hub{
		subscribers: make(map[string]ports.Subscriber),
		broadcast:   make(chan item, 256),
		register:    make(chan ports.Subscriber),
		unregister:  make(chan string, 16),
		done:        make(chan struct{}),
	}
}

// Start begins the hub's main loop.
func (h *Hub) Start() error {
	h.mu.Lock()
	if h.running {
		h.mu.Unlock()
		return nil
	}
	h.running = true
	h.mu.Unlock()

	log.Debug().Msg("event hub started")

	go h.run()
	return nil
}

// Stop gracefully stops the hub. Events still queued are not delivered;
// call Flush first to drain them.
func (h *Hub) Stop() error {
	h.mu.Lock()
	if !h.running {
		h.mu.Unlock()
		return nil
	}
	h.running = false
	h.mu.Unlock()

	close(h.done)

	// Close all subscribers
	h.mu.Lock()
	for _, sub := range h.subscribers {
		_ = sub.Close()
	}
	h.subscribers = make(map[string]ports.Subscriber)
	h.mu.Unlock()

	log.Debug().Msg("event hub stopped")
	return nil
}

// run is the main event loop.
func (h *Hub) run() {
	for {
		select {
		case <-h.done:
			return

		case sub := <-h.register:
			h.mu.Lock()
			h.subscribers[sub.ID()] = sub
			h.mu.Unlock()
			log.Debug().Str("subscriber_id", sub.ID()).Msg("subscriber registered")

		case id := <-h.unregister:
			h.remove(id)

		case it := <-h.broadcast:
			if it.flush != nil {
				close(it.flush)
				continue
			}
			h.deliver(it.event)
		}
	}
}

func (h *Hub) deliver(event events.Event) {
	h.mu.RLock()
	var failed []string
	for id, sub := range h.subscribers {
		if err := sub.Send(event); err != nil {
			log.Warn().
				Str("subscriber_id", id).
				Str("event_type", string(event.Type())).
				Err(err).
				Msg("failed to send event to subscriber")
			failed = append(failed, id)
		}
	}
	h.mu.RUnlock()

	for _, id := range failed {
		h.remove(id)
	}
}

func (h *Hub) remove(id string) {
	h.mu.Lock()
	if sub, ok := h.subscribers[id]; ok {
		_ = sub.Close()
		delete(h.subscribers, id)
	}
	h.mu.Unlock()
	log.Debug().Str("subscriber_id", id).Msg("subscriber unregistered")
}

// Publish queues an event for every subscriber. It blocks while the queue
// is full rather than dropping the event.
func (h *Hub) Publish(event events.Event) {
	select {
	case h.broadcast <- item{event: event}:
		log.Trace().
			Str("event_type", string(event.Type())).
			Msg("event published")
	case <-h.done:
		log.Warn().
			Str("event_type", string(event.Type())).
			Msg("event dropped: hub stopped")
	}
}

// Flush waits until every event published before the call has been handed
// to the subscribers.
func (h *Hub) Flush(ctx context.Context) error {
	if !h.IsRunning() {
		return domain.ErrHubNotRunning
	}
	marker := make(chan struct{})
	select {
	case h.broadcast <- item{flush: marker}:
	case <-h.done:
		return domain.ErrHubNotRunning
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-marker:
		return nil
	case <-h.done:
		return domain.ErrHubNotRunning
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Subscribe adds a new subscriber. Events published after Subscribe returns
// are delivered to it.
func (h *Hub) Subscribe(sub ports.Subscriber) {
	select {
	case h.register <- sub:
	case <-h.done:
	}
}

// Unsubscribe removes a subscriber by ID.
func (h *Hub) Unsubscribe(id string) {
	select {
	case h.unregister <- id:
	case <-h.done:
	}
}

// SubscriberCount returns the number of active subscribers.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// IsRunning returns true if the hub is running.
func (h *Hub) IsRunning() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.running
}
