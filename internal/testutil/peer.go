package testutil

import (
	"encoding/json"
	"sync"

	"github.com/brianly1003/flocksync/internal/domain"
)

// Notice is one notification pushed to a FakePeer.
type Notice struct {
	Method string
	Params json.RawMessage
}

// FakePeer is an in-memory rpc connection.
type FakePeer struct {
	id string

	mu       sync.Mutex
	user     *domain.User
	notices  []Notice
	onClose  []func()
	closed   bool
	notified chan struct{}
}

// NewFakePeer creates a peer that is not signed in.
func NewFakePeer(id string) *FakePeer {
	return &FakePeer{id: id, notified: make(chan struct{}, 64)}
}

func (p *FakePeer) ID() string { return p.id }

func (p *FakePeer) Notify(method string, params any) error {
	raw, err := json.Marshal(params)
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.notices = append(p.notices, Notice{Method: method, Params: raw})
	p.mu.Unlock()
	select {
	case p.notified <- struct{}{}:
	default:
	}
	return nil
}

func (p *FakePeer) User() *domain.User {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.user
}

func (p *FakePeer) SetUser(user *domain.User) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.user = user
}

func (p *FakePeer) OnClose(fn func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onClose = append(p.onClose, fn)
}

// Close runs the registered close callbacks once.
func (p *FakePeer) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	fns := p.onClose
	p.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

// Notices returns a copy of the pushed notifications.
func (p *FakePeer) Notices() []Notice {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Notice(nil), p.notices...)
}

// Notified signals after each notification.
func (p *FakePeer) Notified() <-chan struct{} {
	return p.notified
}
