// Package session follows the auth provider's signed-in user. Signing in
// starts the user-settings listener; signing out tears every listener down
// and tells consumers to drop their cached collections.
package session

import (
	"context"
	"sync"

	"github.com/brianly1003/flocksync/internal/domain"
	"github.com/brianly1003/flocksync/internal/domain/commands"
	"github.com/brianly1003/flocksync/internal/domain/events"
	"github.com/brianly1003/flocksync/internal/domain/ports"
	"github.com/brianly1003/flocksync/internal/paths"
	"github.com/rs/zerolog/log"
)

// Listeners is the part of the listener set the watcher drives.
type Listeners interface {
	Listen(ctx context.Context, entity domain.EntityType, ref string) error
	RemoveAll(ctx context.Context, clearData bool) error
}

// Watcher tracks the auth session and runs auth commands.
type Watcher struct {
	provider  ports.AuthProvider
	listeners Listeners
	emitter   ports.Emitter

	inbox   chan commands.Command
	stopped chan struct{}

	mu      sync.RWMutex
	session domain.AuthSession

	// in-flight sign in, sign up or reset; only the latest may report
	actionMu     sync.Mutex
	actionSeq    uint64
	actionCancel context.CancelFunc
	actions      sync.WaitGroup
}

// New creates a watcher. The session starts as unknown.
func New(provider ports.AuthProvider, listeners Listeners, emitter ports.Emitter) *Watcher {
	return &Watcher{
		provider:  provider,
		listeners: listeners,
		emitter:   emitter,
		inbox:     make(chan commands.Command, 16),
		stopped:   make(chan struct{}),
	}
}

// Session returns the last observed session.
func (w *Watcher) Session() domain.AuthSession {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.session
}

// Handles reports whether cmd is an auth command.
func Handles(cmd commands.Command) bool {
	switch cmd.(type) {
	case commands.SignInRequested, commands.SignUpRequested,
		commands.ResetPasswordRequested, commands.SignOutRequested:
		return true
	default:
		return false
	}
}

// Submit enqueues an auth command. Other commands are ignored.
func (w *Watcher) Submit(ctx context.Context, cmd commands.Command) error {
	if !Handles(cmd) {
		return nil
	}
	select {
	case <-w.stopped:
		return domain.ErrStopped
	default:
	}
	select {
	case w.inbox <- cmd:
		return nil
	case <-w.stopped:
		return domain.ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run follows auth state changes and executes auth commands until ctx is
// cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	defer close(w.stopped)

	sub, err := w.provider.WatchAuthState(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = sub.Close() }()
	defer w.actions.Wait()
	defer w.cancelAction()

	log.Debug().Msg("session watcher started")
	states := sub.States()
	for {
		select {
		case <-ctx.Done():
			log.Debug().Msg("session watcher stopped")
			return nil

		case st, ok := <-states:
			if !ok {
				log.Warn().Msg("auth state subscription closed")
				states = nil
				continue
			}
			w.observe(ctx, st.User)

		case cmd := <-w.inbox:
			w.handle(ctx, cmd)
		}
	}
}

func (w *Watcher) observe(ctx context.Context, user *domain.User) {
	prev := w.Session()

	if user == nil {
		if prev.Status == domain.AuthLoggedOut {
			return
		}
		w.logout(ctx)
		return
	}

	if prev.Status == domain.AuthLoggedIn && prev.User != nil && prev.User.UID == user.UID {
		return
	}
	if prev.Status == domain.AuthLoggedIn {
		// Switching accounts without an observed sign out.
		w.logout(ctx)
	}
	w.login(ctx, *user)
}

func (w *Watcher) login(ctx context.Context, user domain.User) {
	session := domain.AuthSession{Status: domain.AuthLoggedIn, User: &user}
	w.setSession(session)
	w.emitter.Publish(events.SessionChanged{Header: events.Stamp(), Session: session})

	if err := w.listeners.Listen(ctx, domain.EntityUserSettings, paths.UserSettings(user.UID)); err != nil {
		log.Error().Err(err).Str("user_id", user.UID).Msg("failed to start user settings listener")
	}
	log.Info().Str("user_id", user.UID).Msg("signed in")
}

func (w *Watcher) logout(ctx context.Context) {
	session := domain.AuthSession{Status: domain.AuthLoggedOut}
	w.setSession(session)
	w.emitter.Publish(events.SessionChanged{Header: events.Stamp(), Session: session})
	w.clearAll(ctx)
	log.Info().Msg("signed out")
}

// clearAll tears down every listener, waits for it, then emits CacheCleared.
// It returns once subscribers have received CacheCleared.
func (w *Watcher) clearAll(ctx context.Context) {
	if err := w.listeners.RemoveAll(ctx, true); err != nil {
		log.Error().Err(err).Msg("failed to remove listeners")
	}
	w.emitter.Publish(events.CacheCleared{Header: events.Stamp()})
	if f, ok := w.emitter.(ports.Flusher); ok {
		if err := f.Flush(ctx); err != nil {
			log.Warn().Err(err).Msg("cache clear not confirmed")
		}
	}
}

func (w *Watcher) setSession(s domain.AuthSession) {
	w.mu.Lock()
	w.session = s
	w.mu.Unlock()
}

func (w *Watcher) handle(ctx context.Context, cmd commands.Command) {
	switch c := cmd.(type) {
	case commands.SignOutRequested:
		w.cancelAction()
		w.clearAll(ctx)
		err := w.provider.SignOut(ctx)
		w.emitter.Publish(actionResult(domain.AuthSignOut, err))

	case commands.SignInRequested:
		w.startAction(ctx, domain.AuthSignIn, func(ctx context.Context) error {
			_, err := w.provider.SignIn(ctx, c.Email, c.Password)
			return err
		})

	case commands.SignUpRequested:
		w.startAction(ctx, domain.AuthSignUp, func(ctx context.Context) error {
			_, err := w.provider.SignUp(ctx, c.Email, c.Password)
			return err
		})

	case commands.ResetPasswordRequested:
		w.startAction(ctx, domain.AuthResetPassword, func(ctx context.Context) error {
			return w.provider.ResetPassword(ctx, c.Email)
		})
	}
}

// startAction runs fn in the background, cancelling any action still in
// flight. A superseded action's result is discarded.
func (w *Watcher) startAction(parent context.Context, kind domain.AuthKind, fn func(context.Context) error) {
	ctx, cancel := context.WithCancel(parent)

	w.actionMu.Lock()
	if w.actionCancel != nil {
		w.actionCancel()
	}
	w.actionSeq++
	seq := w.actionSeq
	w.actionCancel = cancel
	w.actionMu.Unlock()

	w.actions.Add(1)
	go func() {
		defer w.actions.Done()
		err := fn(ctx)

		w.actionMu.Lock()
		latest := seq == w.actionSeq
		if latest {
			w.actionCancel = nil
		}
		w.actionMu.Unlock()
		cancel()

		if !latest {
			log.Debug().Str("kind", string(kind)).Msg("superseded auth action discarded")
			return
		}
		w.emitter.Publish(actionResult(kind, err))
	}()
}

func (w *Watcher) cancelAction() {
	w.actionMu.Lock()
	defer w.actionMu.Unlock()
	if w.actionCancel != nil {
		w.actionCancel()
		w.actionCancel = nil
	}
	// Bumping the sequence discards the result of a cancelled action.
	w.actionSeq++
}

func actionResult(kind domain.AuthKind, err error) events.Event {
	if err != nil {
		log.Warn().Str("kind", string(kind)).Err(err).Msg("auth action failed")
		return events.AuthActionRejected{Header: events.Stamp(), Kind: kind, Err: err}
	}
	return events.AuthActionFulfilled{Header: events.Stamp(), Kind: kind}
}
