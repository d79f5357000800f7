// Package app orchestrates all components of flocksync.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/brianly1003/flocksync/internal/authn"
	"github.com/brianly1003/flocksync/internal/cascade"
	"github.com/brianly1003/flocksync/internal/config"
	"github.com/brianly1003/flocksync/internal/dispatch"
	"github.com/brianly1003/flocksync/internal/domain"
	"github.com/brianly1003/flocksync/internal/domain/commands"
	"github.com/brianly1003/flocksync/internal/domain/events"
	"github.com/brianly1003/flocksync/internal/domain/ports"
	"github.com/brianly1003/flocksync/internal/hub"
	"github.com/brianly1003/flocksync/internal/listener"
	"github.com/brianly1003/flocksync/internal/remote"
	"github.com/brianly1003/flocksync/internal/remote/wsremote"
	"github.com/brianly1003/flocksync/internal/schema"
	"github.com/brianly1003/flocksync/internal/session"
	"github.com/brianly1003/flocksync/internal/state"
	"github.com/brianly1003/flocksync/internal/watcher"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// ErrRemoteClosed is returned by Start when the remote connection goes away.
var ErrRemoteClosed = errors.New("remote connection closed")

// App is the sync client: the core components wired to one remote tree.
type App struct {
	cfg     *config.Config
	version string

	// Core components
	remote    remote.Backend
	auth      *authn.Session
	hub       *hub.Hub
	state     *state.Store
	listeners *listener.Set
	writes    *watcher.Group
	cascade   *cascade.Runner
	session   *session.Watcher
	router    *dispatch.Router
	entry     ports.CommandSink

	// Session info
	sessionID string
	startTime time.Time

	// Lifecycle
	mu      sync.RWMutex
	running bool
	ready   chan struct{}
}

// New opens the configured remote and wires the core to it.
func New(ctx context.Context, cfg *config.Config, version string) (*App, error) {
	backend, err := remote.Open(ctx, cfg.Remote.DSN)
	if err != nil {
		return nil, fmt.Errorf("open remote %s: %w", remote.Redact(cfg.Remote.DSN), err)
	}
	creds, err := credentialsFor(backend, cfg.Auth)
	if err != nil {
		_ = backend.Close()
		return nil, err
	}
	var opts []watcher.Option
	if cfg.Schema.Validate {
		v, err := schema.New()
		if err != nil {
			_ = backend.Close()
			return nil, fmt.Errorf("load schemas: %w", err)
		}
		opts = append(opts, watcher.WithValidator(v))
	}
	return newApp(cfg, version, backend, authn.NewSession(creds), opts...), nil
}

func newApp(cfg *config.Config, version string, backend remote.Backend, auth *authn.Session, opts ...watcher.Option) *App {
	sessionID := uuid.New().String()
	h := hub.New()

	a := &App{
		cfg:       cfg,
		version:   version,
		remote:    backend,
		auth:      auth,
		hub:       h,
		state:     state.NewStore("state-" + sessionID),
		sessionID: sessionID,
		ready:     make(chan struct{}),
	}

	a.listeners = listener.NewSet(listener.NewAdapterFactory(backend, h), h)
	a.writes = watcher.NewGroup(backend, h, opts...)
	a.cascade = cascade.NewRunner(backend, a.listeners, h)
	a.session = session.New(auth, a.listeners, h)
	a.router = dispatch.NewRouter(dispatch.Routes{
		Writes:    a.writes,
		Listeners: a.listeners,
		Auth:      a.session,
		Lifecycle: a.cascade,
	}, h, dispatch.WithActingUser(a.actingUser))
	a.entry = a.state.Track(a.router)
	a.cascade.SetCommandSink(a.entry)

	return a
}

// credentialsFor picks how the client signs in. A websocket remote signs in
// against its server; local backends get an in-process account service.
func credentialsFor(backend remote.Backend, cfg config.AuthConfig) (authn.Credentials, error) {
	if ws, ok := backend.(*wsremote.Store); ok {
		return ws, nil
	}
	var users authn.UserStore = authn.NewMemoryUsers()
	if u, ok := backend.(authn.UserStore); ok {
		users = u
	}
	return newAccounts(users, cfg)
}

func (a *App) actingUser() string {
	if u := a.session.Session().User; u != nil {
		return u.UID
	}
	return ""
}

// Start runs the core and blocks until ctx is cancelled or the remote goes
// away.
func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return fmt.Errorf("application is already running")
	}
	a.running = true
	a.startTime = time.Now()
	a.mu.Unlock()

	if err := a.hub.Start(); err != nil {
		return fmt.Errorf("failed to start event hub: %w", err)
	}
	a.hub.Subscribe(a.state)
	a.hub.Subscribe(hub.NewLogSubscriber("internal-logger", func(event events.Event) {
		log.Trace().
			Str("event_type", string(event.Type())).
			Time("timestamp", event.Timestamp()).
			Msg("event broadcast")
	}))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.listeners.Run(gctx) })
	g.Go(func() error { return a.writes.Run(gctx) })
	g.Go(func() error { return a.cascade.Run(gctx) })
	g.Go(func() error { return a.session.Run(gctx) })
	if d, ok := a.remote.(interface{ Done() <-chan struct{} }); ok {
		g.Go(func() error {
			select {
			case <-d.Done():
				return ErrRemoteClosed
			case <-gctx.Done():
				return nil
			}
		})
	}

	log.Info().
		Str("session_id", a.sessionID).
		Str("remote", remote.Redact(a.cfg.Remote.DSN)).
		Msg("sync core started")
	close(a.ready)

	err := g.Wait()
	a.writes.Wait()
	if shutdownErr := a.shutdown(); shutdownErr != nil && err == nil {
		err = shutdownErr
	}
	return err
}

func (a *App) shutdown() error {
	log.Info().
		Str("session_id", a.sessionID).
		Int64("uptime_seconds", a.GetUptimeSeconds()).
		Msg("shutting down sync core")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := a.hub.Flush(ctx); err != nil {
		log.Warn().Err(err).Msg("event hub flush failed")
	}
	if err := a.hub.Stop(); err != nil {
		log.Warn().Err(err).Msg("failed to stop event hub")
	}
	if err := a.remote.Close(); err != nil {
		return fmt.Errorf("close remote: %w", err)
	}

	a.mu.Lock()
	a.running = false
	a.mu.Unlock()
	return nil
}

// Ready is closed once Start has launched every component. Commands may be
// submitted from then on.
func (a *App) Ready() <-chan struct{} {
	return a.ready
}

// Submit records cmd in the state container and routes it.
func (a *App) Submit(ctx context.Context, cmd commands.Command) error {
	return a.entry.Submit(ctx, cmd)
}

// SubmitBytes decodes a wire command and submits it. Unknown commands and
// entity types are dropped.
func (a *App) SubmitBytes(ctx context.Context, data []byte) error {
	cmd, err := commands.Parse(data)
	if errors.Is(err, domain.ErrInvalidCommand) || errors.Is(err, domain.ErrUnknownEntity) {
		log.Debug().Err(err).Msg("command ignored")
		return nil
	}
	if err != nil {
		return err
	}
	return a.Submit(ctx, cmd)
}

// Subscribe adds sub to the result stream. Call it after Ready.
func (a *App) Subscribe(sub ports.Subscriber) {
	a.hub.Subscribe(sub)
}

// Flush waits until every result published so far has been delivered.
func (a *App) Flush(ctx context.Context) error {
	return a.hub.Flush(ctx)
}

// Snapshot returns a copy of the state container.
func (a *App) Snapshot() state.Snapshot {
	return a.state.Snapshot()
}

// Resume signs in with a token saved from an earlier session. Only a
// websocket remote can resume.
func (a *App) Resume(ctx context.Context, token string) error {
	ws, ok := a.remote.(*wsremote.Store)
	if !ok {
		return fmt.Errorf("resume needs a websocket remote")
	}
	tok, err := ws.Resume(ctx, token)
	if err != nil {
		return err
	}
	a.auth.Restore(tok)
	return nil
}

// GetSessionID returns the client session ID.
func (a *App) GetSessionID() string {
	return a.sessionID
}

// GetUptimeSeconds returns the uptime in seconds.
func (a *App) GetUptimeSeconds() int64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if !a.running {
		return 0
	}
	return int64(time.Since(a.startTime).Seconds())
}
