// Package cascade runs the multi-step flock transactions: join, add, unlink
// and delete a flock, plus deleting a chicken with its eggs. Transactions run
// one at a time in submission order. A failing step stops the transaction;
// steps already applied stay applied.
package cascade

import (
	"context"
	"fmt"
	"sync"

	"github.com/brianly1003/flocksync/internal/domain"
	"github.com/brianly1003/flocksync/internal/domain/commands"
	"github.com/brianly1003/flocksync/internal/domain/events"
	"github.com/brianly1003/flocksync/internal/domain/ports"
	"github.com/brianly1003/flocksync/internal/paths"
	"github.com/rs/zerolog/log"
)

// Listeners tears down listeners scoped to a flock.
type Listeners interface {
	RemoveMatching(ctx context.Context, entity domain.EntityType, ref string, clearData bool) error
}

// Runner consumes flock lifecycle commands sequentially.
type Runner struct {
	remote    ports.RemoteStore
	listeners Listeners
	emitter   ports.Emitter

	mu   sync.RWMutex
	sink ports.CommandSink

	inbox   chan commands.Command
	stopped chan struct{}
}

// NewRunner creates a runner.
func NewRunner(remote ports.RemoteStore, listeners Listeners, emitter ports.Emitter) *Runner {
	return &Runner{
		remote:    remote,
		listeners: listeners,
		emitter:   emitter,
		inbox:     make(chan commands.Command, 16),
		stopped:   make(chan struct{}),
	}
}

// SetCommandSink sets where settings updates are submitted. Without a sink
// they are written directly.
func (r *Runner) SetCommandSink(sink ports.CommandSink) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sink = sink
}

// Handles reports whether cmd is a flock lifecycle command.
func Handles(cmd commands.Command) bool {
	switch cmd.(type) {
	case commands.JoinFlockRequested, commands.AddFlockRequested,
		commands.UnlinkFlockRequested, commands.DeleteFlockRequested,
		commands.DeleteChickenRequested, commands.GetFlockRequested:
		return true
	default:
		return false
	}
}

// Submit enqueues a lifecycle command. Other commands are ignored.
func (r *Runner) Submit(ctx context.Context, cmd commands.Command) error {
	if !Handles(cmd) {
		return nil
	}
	select {
	case <-r.stopped:
		return domain.ErrStopped
	default:
	}
	select {
	case r.inbox <- cmd:
		return nil
	case <-r.stopped:
		return domain.ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run executes queued transactions until ctx is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	defer close(r.stopped)
	log.Debug().Msg("cascade runner started")
	for {
		select {
		case <-ctx.Done():
			log.Debug().Msg("cascade runner stopped")
			return nil
		case cmd := <-r.inbox:
			if ev := r.Execute(ctx, cmd); ev != nil {
				r.emitter.Publish(ev)
			}
		}
	}
}

// Execute runs one transaction and returns its result.
func (r *Runner) Execute(ctx context.Context, cmd commands.Command) events.Event {
	switch c := cmd.(type) {
	case commands.DeleteFlockRequested:
		reset, err := r.deleteFlock(ctx, c)
		if err != nil {
			return events.DeleteFlockRejected{Header: events.Stamp(), FlockID: c.FlockID, Err: err}
		}
		return events.DeleteFlockFulfilled{Header: events.Stamp(), FlockID: c.FlockID, ResetStack: reset}

	case commands.UnlinkFlockRequested:
		reset, err := r.unlinkFlock(ctx, c)
		if err != nil {
			return events.UnlinkFlockRejected{Header: events.Stamp(), FlockID: c.FlockID, Err: err}
		}
		return events.UnlinkFlockFulfilled{Header: events.Stamp(), FlockID: c.FlockID, ResetStack: reset}

	case commands.JoinFlockRequested:
		if err := r.joinFlock(ctx, c); err != nil {
			return events.JoinFlockRejected{Header: events.Stamp(), FlockID: c.FlockID, Err: err}
		}
		return events.JoinFlockFulfilled{Header: events.Stamp(), FlockID: c.FlockID}

	case commands.AddFlockRequested:
		id, err := r.addFlock(ctx, c)
		if err != nil {
			return events.AddFlockRejected{Header: events.Stamp(), Name: c.Name, Err: err}
		}
		return events.AddFlockFulfilled{Header: events.Stamp(), FlockID: id, Name: c.Name}

	case commands.DeleteChickenRequested:
		n, err := r.deleteChicken(ctx, c)
		if err != nil {
			return events.DeleteChickenRejected{Header: events.Stamp(), FlockID: c.FlockID, ChickenID: c.ChickenID, Err: err}
		}
		return events.DeleteChickenFulfilled{Header: events.Stamp(), FlockID: c.FlockID, ChickenID: c.ChickenID, EggsRemoved: n}

	case commands.GetFlockRequested:
		flock, err := r.getFlock(ctx, c.FlockID)
		if err != nil {
			return events.FlockFetchRejected{Header: events.Stamp(), FlockID: c.FlockID, Err: err}
		}
		return events.FlockFetched{Header: events.Stamp(), FlockID: c.FlockID, Flock: flock}

	default:
		return nil
	}
}

func (r *Runner) deleteFlock(ctx context.Context, c commands.DeleteFlockRequested) (bool, error) {
	const op = "deleteFlock"
	logger := log.With().Str("op", op).Str("user_id", c.UserID).Str("flock_id", c.FlockID).Logger()

	if err := required(op, "userId", c.UserID, "flockId", c.FlockID); err != nil {
		return false, err
	}
	settings, err := r.settings(ctx, op, c.UserID, c.Settings)
	if err != nil {
		return false, err
	}
	current := settings.IsCurrent(c.FlockID)

	if current {
		if err := r.teardown(ctx, op, c.FlockID); err != nil {
			return false, err
		}
	}

	members, err := r.remote.QueryEqual(ctx, domain.EntityUserSettings.String(), paths.Join("flocks", c.FlockID), true)
	if err != nil {
		return false, domain.NewCascadeError(op, "query members", err)
	}

	updates, err := BuildDeleteUpdates(members, c.FlockID)
	if err != nil {
		return false, domain.NewCascadeError(op, "build updates", err)
	}
	if err := updates.Apply(ctx, r.remote, domain.EntityUserSettings.String()); err != nil {
		return false, domain.NewCascadeError(op, "update members", err)
	}
	logger.Debug().Int("members", len(members)).Msg("members detached")

	for _, entity := range []domain.EntityType{domain.EntityEggs, domain.EntityChickens} {
		if err := r.remote.Remove(ctx, paths.Collection(entity, c.FlockID)); err != nil {
			return false, domain.NewCascadeError(op, "remove "+entity.String(), err)
		}
	}
	if err := r.remote.Remove(ctx, paths.Flock(c.FlockID)); err != nil {
		return false, domain.NewCascadeError(op, "remove flock", err)
	}

	if err := r.remote.Set(ctx, paths.DeletedFlock(c.UserID, c.FlockID), true); err != nil {
		return false, domain.NewCascadeError(op, "record deletion", err)
	}

	logger.Info().Bool("reset_stack", current).Msg("flock deleted")
	return current, nil
}

func (r *Runner) unlinkFlock(ctx context.Context, c commands.UnlinkFlockRequested) (bool, error) {
	const op = "unlinkFlock"
	if err := required(op, "userId", c.UserID, "flockId", c.FlockID); err != nil {
		return false, err
	}
	settings, err := r.settings(ctx, op, c.UserID, c.Settings)
	if err != nil {
		return false, err
	}

	next, wasCurrent := UnlinkSettings(settings, c.FlockID)
	if wasCurrent {
		if err := r.teardown(ctx, op, c.FlockID); err != nil {
			return false, err
		}
	}
	if err := r.saveSettings(ctx, op, c.UserID, next); err != nil {
		return false, err
	}

	log.Info().
		Str("user_id", c.UserID).
		Str("flock_id", c.FlockID).
		Str("current", next.Current()).
		Msg("flock unlinked")
	return wasCurrent, nil
}

func (r *Runner) joinFlock(ctx context.Context, c commands.JoinFlockRequested) error {
	const op = "joinFlock"
	if err := required(op, "userId", c.UserID, "flockId", c.FlockID); err != nil {
		return err
	}

	v, err := r.remote.Get(ctx, paths.Flock(c.FlockID))
	if err != nil {
		return domain.NewCascadeError(op, "read flock", err)
	}
	if v == nil {
		return fmt.Errorf("Flock ID '%s' %w", c.FlockID, domain.ErrNotFound)
	}

	settings, err := r.settings(ctx, op, c.UserID, c.Settings)
	if err != nil {
		return err
	}
	return r.saveSettings(ctx, op, c.UserID, SelectFlock(settings, c.FlockID))
}

func (r *Runner) addFlock(ctx context.Context, c commands.AddFlockRequested) (string, error) {
	const op = "addFlock"
	if err := required(op, "userId", c.UserID, "name", c.Name); err != nil {
		return "", err
	}

	id, err := r.remote.Push(ctx, domain.EntityFlocks.String(), domain.Flock{Name: c.Name, OwnedBy: c.UserID})
	if err != nil {
		return "", domain.NewCascadeError(op, "create flock", err)
	}

	settings, err := r.settings(ctx, op, c.UserID, c.Settings)
	if err != nil {
		return "", err
	}
	if err := r.saveSettings(ctx, op, c.UserID, SelectFlock(settings, id)); err != nil {
		return "", err
	}
	log.Info().Str("user_id", c.UserID).Str("flock_id", id).Msg("flock added")
	return id, nil
}

func (r *Runner) deleteChicken(ctx context.Context, c commands.DeleteChickenRequested) (int, error) {
	const op = "deleteChicken"
	if err := required(op, "flockId", c.FlockID, "chickenId", c.ChickenID); err != nil {
		return 0, err
	}
	eggsPath := paths.Collection(domain.EntityEggs, c.FlockID)

	eggs, err := r.remote.QueryEqual(ctx, eggsPath, "chickenId", c.ChickenID)
	if err != nil {
		return 0, domain.NewCascadeError(op, "query eggs", err)
	}
	updates := make(UpdateSet, len(eggs))
	for key := range eggs {
		updates[key] = Tombstone
	}
	if err := updates.Apply(ctx, r.remote, eggsPath); err != nil {
		return 0, domain.NewCascadeError(op, "remove eggs", err)
	}

	if err := r.remote.Remove(ctx, paths.Item(domain.EntityChickens, c.FlockID, c.ChickenID)); err != nil {
		return 0, domain.NewCascadeError(op, "remove chicken", err)
	}
	log.Info().
		Str("flock_id", c.FlockID).
		Str("chicken_id", c.ChickenID).
		Int("eggs", len(eggs)).
		Msg("chicken deleted")
	return len(eggs), nil
}

func (r *Runner) getFlock(ctx context.Context, flockID string) (domain.Flock, error) {
	var flock domain.Flock
	if flockID == "" {
		return flock, domain.NewValidationError("flockId", "must not be empty")
	}
	v, err := r.remote.Get(ctx, paths.Flock(flockID))
	if err != nil {
		return flock, err
	}
	if v == nil {
		return flock, fmt.Errorf("Flock ID '%s' %w", flockID, domain.ErrNotFound)
	}
	if err := domain.Decode(v, &flock); err != nil {
		return flock, err
	}
	return flock, nil
}

// settings returns the given settings, or reads them when nil.
func (r *Runner) settings(ctx context.Context, op, userID string, given *domain.UserSettings) (domain.UserSettings, error) {
	if given != nil {
		return given.Clone(), nil
	}
	var settings domain.UserSettings
	v, err := r.remote.Get(ctx, paths.UserSettings(userID))
	if err != nil {
		return settings, domain.NewCascadeError(op, "read settings", err)
	}
	if v == nil {
		return settings, nil
	}
	if err := domain.Decode(v, &settings); err != nil {
		return settings, domain.NewCascadeError(op, "read settings", err)
	}
	return settings, nil
}

// saveSettings submits the settings update through the command sink so it is
// reported like any other update. Without a sink it writes directly.
func (r *Runner) saveSettings(ctx context.Context, op, userID string, settings domain.UserSettings) error {
	r.mu.RLock()
	sink := r.sink
	r.mu.RUnlock()

	if sink != nil {
		if err := sink.Submit(ctx, commands.UpdateUserSettings(userID, settings)); err != nil {
			return domain.NewCascadeError(op, "submit settings", err)
		}
		return nil
	}
	if err := r.remote.Set(ctx, paths.UserSettings(userID), settings); err != nil {
		return domain.NewCascadeError(op, "write settings", err)
	}
	return nil
}

// teardown removes the chickens and eggs listeners scoped to flockID.
func (r *Runner) teardown(ctx context.Context, op, flockID string) error {
	if r.listeners == nil {
		return nil
	}
	for _, entity := range []domain.EntityType{domain.EntityChickens, domain.EntityEggs} {
		if err := r.listeners.RemoveMatching(ctx, entity, paths.Collection(entity, flockID), true); err != nil {
			return domain.NewCascadeError(op, "remove listeners", err)
		}
	}
	return nil
}

// required checks name/value pairs for empty values.
func required(op string, pairs ...string) error {
	for i := 0; i+1 < len(pairs); i += 2 {
		if pairs[i+1] == "" {
			return domain.NewCascadeError(op, "validate", domain.NewValidationError(pairs[i], "must not be empty"))
		}
	}
	return nil
}
