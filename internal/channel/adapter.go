// Package channel turns a remote child subscription into an ordered stream of
// listener results: one snapshot, then one event per child notification.
package channel

import (
	"context"
	"errors"

	"github.com/brianly1003/flocksync/internal/domain"
	"github.com/brianly1003/flocksync/internal/domain/events"
	"github.com/brianly1003/flocksync/internal/domain/ports"
	"github.com/brianly1003/flocksync/internal/tree"
	"github.com/rs/zerolog/log"
)

// Adapter bridges one remote path to the result stream for one entity type.
// An Adapter runs once; the listener coordinator creates a new one per listen.
type Adapter struct {
	entity  domain.EntityType
	ref     string
	remote  ports.RemoteStore
	emitter ports.Emitter
}

// New creates an adapter for ref.
func New(entity domain.EntityType, ref string, remote ports.RemoteStore, emitter ports.Emitter) *Adapter {
	return &Adapter{
		entity:  entity,
		ref:     ref,
		remote:  remote,
		emitter: emitter,
	}
}

type readResult struct {
	value any
	err   error
}

// Run subscribes, reads the initial snapshot and then forwards notifications
// until ctx is cancelled or the subscription ends.
//
// Notifications arriving while the snapshot read is in flight are buffered
// and replayed right after the snapshot result, so no incremental event ever
// precedes it. Cancellation before the snapshot completes discards the
// buffer; a replay already under way is finished first.
func (a *Adapter) Run(ctx context.Context) error {
	logger := log.With().Str("entity", a.entity.String()).Str("ref", a.ref).Logger()

	sub, err := a.remote.Subscribe(ctx, a.ref)
	if err != nil {
		err = domain.NewRemoteError("subscribe", a.ref, err)
		a.emitter.Publish(events.ListenRejected{Header: events.Stamp(), Entity: a.entity, Ref: a.ref, Err: err})
		return err
	}
	defer func() { _ = sub.Close() }()

	reads := make(chan readResult, 1)
	go func() {
		v, err := a.remote.Get(ctx, a.ref)
		reads <- readResult{value: v, err: err}
	}()

	notifications := sub.Events()
	var buffered []domain.ChildEvent

	// Phase 1: wait for the snapshot, buffering notifications.
	for waiting := true; waiting; {
		select {
		case <-ctx.Done():
			logger.Debug().Int("discarded", len(buffered)).Msg("listener cancelled before snapshot")
			return ctx.Err()

		case ev, ok := <-notifications:
			if !ok {
				notifications = nil
				continue
			}
			buffered = append(buffered, ev)

		case r := <-reads:
			waiting = false
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if r.err != nil {
				err := domain.NewRemoteError("get", a.ref, r.err)
				logger.Error().Err(err).Msg("initial read failed")
				a.emitter.Publish(events.ListenRejected{Header: events.Stamp(), Entity: a.entity, Ref: a.ref, Err: err})
			} else {
				a.emitter.Publish(events.ListenFulfilled{
					Header: events.Stamp(),
					Entity: a.entity,
					Ref:    a.ref,
					Data:   snapshotData(r.value),
				})
			}
		}
	}

	// Phase 2: replay. Not interruptible.
	for _, ev := range buffered {
		a.emitter.Publish(events.FromChild(a.entity, ev))
	}
	if len(buffered) > 0 {
		logger.Debug().Int("replayed", len(buffered)).Msg("buffered notifications replayed")
	}

	// Phase 3: live forwarding.
	if notifications == nil {
		return domain.ErrSubscriptionClosed
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-notifications:
			if !ok {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				logger.Warn().Msg("remote subscription closed")
				return domain.ErrSubscriptionClosed
			}
			a.emitter.Publish(events.FromChild(a.entity, ev))
		}
	}
}

// snapshotData returns the object children of v, or an empty map for a
// missing or scalar value.
func snapshotData(v any) map[string]any {
	if m, ok := tree.Clone(v).(map[string]any); ok {
		return m
	}
	return map[string]any{}
}

// IsStopError reports whether err is the normal way a Run ends.
func IsStopError(err error) bool {
	return err == nil || errors.Is(err, context.Canceled) || errors.Is(err, domain.ErrSubscriptionClosed)
}
