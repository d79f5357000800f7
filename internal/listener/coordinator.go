// Package listener keeps at most one live remote subscription per entity
// type. Each Coordinator owns the lifecycle of its adapter and serializes
// listen and remove requests through an inbox.
package listener

import (
	"context"
	"sync"

	"github.com/brianly1003/flocksync/internal/channel"
	"github.com/brianly1003/flocksync/internal/domain"
	"github.com/brianly1003/flocksync/internal/domain/commands"
	"github.com/brianly1003/flocksync/internal/domain/events"
	"github.com/brianly1003/flocksync/internal/domain/ports"
	"github.com/rs/zerolog/log"
)

// State is the coordinator state.
type State int

const (
	Idle State = iota
	Listening
)

func (s State) String() string {
	if s == Listening {
		return "listening"
	}
	return "idle"
}

// Runner is a started listener; channel.Adapter implements it.
type Runner interface {
	Run(ctx context.Context) error
}

// AdapterFactory builds the runner for one listen.
type AdapterFactory func(entity domain.EntityType, ref string) Runner

// NewAdapterFactory returns a factory producing channel adapters.
func NewAdapterFactory(remote ports.RemoteStore, emitter ports.Emitter) AdapterFactory {
	return func(entity domain.EntityType, ref string) Runner {
		return channel.New(entity, ref, remote, emitter)
	}
}

type op int

const (
	opListen op = iota
	opRemove
	opRemoveAll
	opRemoveMatching
	opSync
)

func (o op) String() string {
	switch o {
	case opListen:
		return "listen"
	case opRemove:
		return "remove"
	case opRemoveAll:
		return "remove_all"
	case opRemoveMatching:
		return "remove_matching"
	default:
		return "sync"
	}
}

type request struct {
	op        op
	entity    domain.EntityType
	ref       string
	clearData bool
	ack       chan struct{}
}

// handle is the live adapter of a Listening coordinator.
type handle struct {
	ref    string
	cancel context.CancelFunc
	done   chan struct{}
}

// Coordinator owns the listener of one entity type.
type Coordinator struct {
	entity     domain.EntityType
	newAdapter AdapterFactory
	emitter    ports.Emitter

	inbox   chan request
	stopped chan struct{}

	// active is only touched by the Run goroutine.
	active *handle

	mu        sync.RWMutex
	state     State
	activeRef string
}

// NewCoordinator creates a coordinator for entity.
func NewCoordinator(entity domain.EntityType, factory AdapterFactory, emitter ports.Emitter) *Coordinator {
	return &Coordinator{
		entity:     entity,
		newAdapter: factory,
		emitter:    emitter,
		inbox:      make(chan request, 32),
		stopped:    make(chan struct{}),
	}
}

// Entity returns the entity type this coordinator owns.
func (c *Coordinator) Entity() domain.EntityType {
	return c.entity
}

// State returns the current state and, when Listening, the active ref.
func (c *Coordinator) State() (State, string) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state, c.activeRef
}

// Run processes requests until ctx is cancelled. On exit the active adapter
// is stopped without emitting a result.
func (c *Coordinator) Run(ctx context.Context) error {
	defer close(c.stopped)
	defer func() {
		if c.active != nil {
			c.stopActive()
		}
	}()

	log.Debug().Str("entity", c.entity.String()).Msg("listener coordinator started")

	for {
		select {
		case <-ctx.Done():
			log.Debug().Str("entity", c.entity.String()).Msg("listener coordinator stopped")
			return nil
		case req := <-c.inbox:
			c.handle(ctx, req)
			if req.ack != nil {
				close(req.ack)
			}
		}
	}
}

func (c *Coordinator) handle(ctx context.Context, req request) {
	if req.op == opSync {
		return
	}
	logger := log.With().
		Str("entity", c.entity.String()).
		Str("op", req.op.String()).
		Logger()

	if req.op != opRemoveAll && req.entity != c.entity {
		logger.Debug().Str("target", req.entity.String()).Msg("request for another entity type ignored")
		return
	}

	if c.active == nil {
		if req.op == opListen {
			c.start(ctx, req.ref)
			logger.Debug().Str("ref", req.ref).Msg("listener started")
			return
		}
		logger.Debug().Msg("remove request while idle ignored")
		return
	}

	switch req.op {
	case opListen:
		prev := c.active.ref
		c.stopActive()
		c.emitter.Publish(events.ListenRemoved{Header: events.Stamp(), Entity: c.entity, ClearData: false})
		c.start(ctx, req.ref)
		logger.Debug().Str("from", prev).Str("ref", req.ref).Msg("listener replaced")

	case opRemove, opRemoveAll:
		c.stopActive()
		c.emitter.Publish(events.ListenRemoved{Header: events.Stamp(), Entity: c.entity, ClearData: req.clearData})
		logger.Debug().Bool("clear_data", req.clearData).Msg("listener removed")

	case opRemoveMatching:
		if c.active.ref != req.ref {
			logger.Debug().Str("ref", req.ref).Str("active", c.active.ref).Msg("active listener does not match")
			return
		}
		c.stopActive()
		c.emitter.Publish(events.ListenRemoved{Header: events.Stamp(), Entity: c.entity, ClearData: req.clearData})
		logger.Debug().Str("ref", req.ref).Bool("clear_data", req.clearData).Msg("listener removed")
	}
}

func (c *Coordinator) start(parent context.Context, ref string) {
	ctx, cancel := context.WithCancel(parent)
	h := &handle{ref: ref, cancel: cancel, done: make(chan struct{})}
	runner := c.newAdapter(c.entity, ref)

	go func() {
		defer close(h.done)
		if err := runner.Run(ctx); !channel.IsStopError(err) {
			log.Warn().
				Str("entity", c.entity.String()).
				Str("ref", ref).
				Err(err).
				Msg("listener ended with error")
		}
	}()

	c.active = h
	c.setState(Listening, ref)
}

// stopActive cancels the adapter and waits for its goroutine to exit.
func (c *Coordinator) stopActive() {
	c.active.cancel()
	<-c.active.done
	c.active = nil
	c.setState(Idle, "")
}

func (c *Coordinator) setState(s State, ref string) {
	c.mu.Lock()
	c.state = s
	c.activeRef = ref
	c.mu.Unlock()
}

// send enqueues req and, when wait is set, blocks until it was handled.
func (c *Coordinator) send(ctx context.Context, req request, wait bool) error {
	if wait {
		req.ack = make(chan struct{})
	}
	select {
	case <-c.stopped:
		return domain.ErrStopped
	default:
	}
	select {
	case c.inbox <- req:
	case <-c.stopped:
		return domain.ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	if !wait {
		return nil
	}
	select {
	case <-req.ack:
		return nil
	case <-c.stopped:
		return domain.ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Listen asks the coordinator to listen to ref, replacing any active listener.
func (c *Coordinator) Listen(ctx context.Context, ref string) error {
	return c.send(ctx, request{op: opListen, entity: c.entity, ref: ref}, false)
}

// Remove asks the coordinator to tear down its listener.
func (c *Coordinator) Remove(ctx context.Context, clearData bool) error {
	return c.send(ctx, request{op: opRemove, entity: c.entity, clearData: clearData}, false)
}

// RemoveAll tears down the listener and waits until that happened.
func (c *Coordinator) RemoveAll(ctx context.Context, clearData bool) error {
	return c.send(ctx, request{op: opRemoveAll, clearData: clearData}, true)
}

// RemoveMatching tears down the listener only if it watches ref, and waits.
func (c *Coordinator) RemoveMatching(ctx context.Context, ref string, clearData bool) error {
	return c.send(ctx, request{op: opRemoveMatching, entity: c.entity, ref: ref, clearData: clearData}, true)
}

// Sync waits until every request enqueued before it was handled.
func (c *Coordinator) Sync(ctx context.Context) error {
	return c.send(ctx, request{op: opSync}, true)
}

// Submit enqueues a listener command. Commands addressed to another entity
// type reach the inbox and are ignored there; other command types are ignored.
func (c *Coordinator) Submit(ctx context.Context, cmd commands.Command) error {
	switch v := cmd.(type) {
	case commands.ListenRequested:
		return c.send(ctx, request{op: opListen, entity: v.Entity, ref: v.Ref}, false)
	case commands.RemoveListenerRequested:
		return c.send(ctx, request{op: opRemove, entity: v.Entity, clearData: v.ClearData}, false)
	case commands.RemoveAllListenersRequested:
		return c.send(ctx, request{op: opRemoveAll, clearData: v.ClearData}, true)
	default:
		return nil
	}
}
