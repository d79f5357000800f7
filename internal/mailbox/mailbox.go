// Package mailbox provides an unbounded, ordered queue with a channel on the
// receiving side. Producers never block and nothing is dropped, which keeps
// a slow consumer from stalling the writer that feeds it.
package mailbox

import (
	"sync"
)

// Mailbox delivers posted values on Out in post order.
type Mailbox[T any] struct {
	mu     sync.Mutex
	queue  []T
	closed bool

	signal chan struct{}
	out    chan T
	done   chan struct{}
}

// New creates a mailbox and starts its delivery goroutine.
func New[T any]() *Mailbox[T] {
	m := &Mailbox[T]{
		signal: make(chan struct{}, 1),
		out:    make(chan T),
		done:   make(chan struct{}),
	}
	go m.pump()
	return m
}

// Post appends v. It returns false if the mailbox is closed.
func (m *Mailbox[T]) Post(v T) bool {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return false
	}
	m.queue = append(m.queue, v)
	m.mu.Unlock()

	select {
	case m.signal <- struct{}{}:
	default:
	}
	return true
}

// Out returns the delivery channel. It is closed after Close.
func (m *Mailbox[T]) Out() <-chan T {
	return m.out
}

// Len returns the number of values not yet delivered.
func (m *Mailbox[T]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue)
}

// Close stops delivery. Undelivered values are discarded.
func (m *Mailbox[T]) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	m.queue = nil
	close(m.done)
	return nil
}

// Done returns a channel that's closed when the mailbox is closed.
func (m *Mailbox[T]) Done() <-chan struct{} {
	return m.done
}

func (m *Mailbox[T]) pump() {
	defer close(m.out)
	for {
		m.mu.Lock()
		if len(m.queue) == 0 {
			m.mu.Unlock()
			select {
			case <-m.signal:
				continue
			case <-m.done:
				return
			}
		}
		v := m.queue[0]
		var zero T
		m.queue[0] = zero
		m.queue = m.queue[1:]
		m.mu.Unlock()

		select {
		case m.out <- v:
		case <-m.done:
			return
		}
	}
}
