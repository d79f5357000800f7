package hub

import (
	"bufio"
	"io"
	"sync"

	"github.com/brianly1003/flocksync/internal/domain"
	"github.com/brianly1003/flocksync/internal/domain/events"
)

// LogSubscriber is a subscriber that logs events (useful for debugging).
type LogSubscriber struct {
	id    string
	done  chan struct{}
	once  sync.Once
	logFn func(event events.Event)
}

// NewLogSubscriber creates a new log subscriber.
func NewLogSubscriber(id string, logFn func(event events.Event)) *LogSubscriber {
	return &LogSubscriber{
		id:    id,
		done:  make(chan struct{}),
		logFn: logFn,
	}
}

// ID returns the subscriber's unique identifier.
func (s *LogSubscriber) ID() string {
	return s.id
}

// Send logs the event.
func (s *LogSubscriber) Send(event events.Event) error {
	select {
	case <-s.done:
		return domain.ErrSubscriberClosed
	default:
	}
	if s.logFn != nil {
		s.logFn(event)
	}
	return nil
}

// Close closes the subscriber.
func (s *LogSubscriber) Close() error {
	s.once.Do(func() { close(s.done) })
	return nil
}

// Done returns a channel that's closed when the subscriber is done.
func (s *LogSubscriber) Done() <-chan struct{} {
	return s.done
}

// WriterSubscriber writes every event as one JSON line.
type WriterSubscriber struct {
	id   string
	done chan struct{}

	mu     sync.Mutex
	w      *bufio.Writer
	closed bool
}

// NewWriterSubscriber creates a subscriber that writes JSON lines to w.
func NewWriterSubscriber(id string, w io.Writer) *WriterSubscriber {
	return &WriterSubscriber{
		id:   id,
		done: make(chan struct{}),
		w:    bufio.NewWriter(w),
	}
}

// ID returns the subscriber's unique identifier.
func (s *WriterSubscriber) ID() string {
	return s.id
}

// Send encodes and writes the event.
func (s *WriterSubscriber) Send(event events.Event) error {
	data, err := event.ToJSON()
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return domain.ErrSubscriberClosed
	}
	if _, err := s.w.Write(append(data, '\n')); err != nil {
		return err
	}
	return s.w.Flush()
}

// Close flushes and closes the subscriber. The underlying writer is not closed.
func (s *WriterSubscriber) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	close(s.done)
	return s.w.Flush()
}

// Done returns a channel that's closed when the subscriber is done.
func (s *WriterSubscriber) Done() <-chan struct{} {
	return s.done
}
