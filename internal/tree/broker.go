package tree

import (
	"sync"

	"github.com/brianly1003/flocksync/internal/domain"
	"github.com/brianly1003/flocksync/internal/domain/ports"
	"github.com/brianly1003/flocksync/internal/mailbox"
	"github.com/google/uuid"
)

// Broker tracks child subscriptions by path and fans diffs out to them.
// Backends call Watched before a write to capture the affected nodes and
// Publish after it, while still holding their write lock, so notifications
// leave in write order.
type Broker struct {
	mu   sync.Mutex
	subs map[string]*subscription
}

// NewBroker creates an empty broker.
func NewBroker() *Broker {
	return &Broker{subs: make(map[string]*subscription)}
}

type subscription struct {
	id     string
	path   string
	box    *mailbox.Mailbox[domain.ChildEvent]
	broker *Broker
	once   sync.Once
}

func (s *subscription) Events() <-chan domain.ChildEvent {
	return s.box.Out()
}

func (s *subscription) Close() error {
	s.once.Do(func() {
		s.broker.mu.Lock()
		delete(s.broker.subs, s.id)
		s.broker.mu.Unlock()
		_ = s.box.Close()
	})
	return nil
}

// Subscribe registers a subscription for the direct children of path.
func (b *Broker) Subscribe(path string) ports.Subscription {
	sub := &subscription{
		id:     uuid.NewString(),
		path:   Clean(path),
		box:    mailbox.New[domain.ChildEvent](),
		broker: b,
	}
	b.mu.Lock()
	b.subs[sub.id] = sub
	b.mu.Unlock()
	return sub
}

// Watched returns the distinct subscribed paths a write to any of writes can
// affect: paths at, above or below a written path.
func (b *Broker) Watched(writes ...string) []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	seen := make(map[string]bool)
	var out []string
	for _, sub := range b.subs {
		if seen[sub.path] {
			continue
		}
		for _, w := range writes {
			if Contains(sub.path, w) || Contains(w, sub.path) {
				seen[sub.path] = true
				out = append(out, sub.path)
				break
			}
		}
	}
	return out
}

// Snapshot captures the children of every watched path in root.
func Snapshot(root any, watched []string) map[string]map[string]any {
	out := make(map[string]map[string]any, len(watched))
	for _, p := range watched {
		out[p] = Children(Lookup(root, Split(p)))
	}
	return out
}

// Publish posts the difference between before and after to every
// subscription on the watched paths.
func (b *Broker) Publish(before, after map[string]map[string]any) {
	if len(before) == 0 {
		return
	}
	diffs := make(map[string][]domain.ChildEvent, len(before))
	for p, prev := range before {
		if d := DiffChildren(prev, after[p]); len(d) > 0 {
			diffs[p] = d
		}
	}
	if len(diffs) == 0 {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, sub := range b.subs {
		for _, ev := range diffs[sub.path] {
			sub.box.Post(ev)
		}
	}
}

// Count returns the number of open subscriptions.
func (b *Broker) Count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// CloseAll closes every subscription.
func (b *Broker) CloseAll() {
	b.mu.Lock()
	subs := make([]*subscription, 0, len(b.subs))
	for _, s := range b.subs {
		subs = append(subs, s)
	}
	b.mu.Unlock()
	for _, s := range subs {
		_ = s.Close()
	}
}
