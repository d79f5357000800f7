// Package dispatch routes commands to the component that executes them.
package dispatch

import (
	"context"
	"errors"

	"github.com/brianly1003/flocksync/internal/domain"
	"github.com/brianly1003/flocksync/internal/domain/commands"
	"github.com/brianly1003/flocksync/internal/domain/events"
	"github.com/brianly1003/flocksync/internal/domain/ports"
	"github.com/rs/zerolog/log"
)

// Routes names the sink for each command family. A nil sink drops the
// family with a debug log.
type Routes struct {
	Writes    ports.CommandSink // create, update, remove
	Listeners ports.CommandSink // listen, remove listener, remove all
	Auth      ports.CommandSink // sign in, sign up, reset password, sign out
	Lifecycle ports.CommandSink // flock and chicken transactions
}

// Router is the single entry point for commands.
type Router struct {
	routes  Routes
	emitter ports.Emitter
	actor   func() string
}

var _ ports.CommandSink = (*Router)(nil)

// Option configures a Router.
type Option func(*Router)

// WithActingUser fills an empty UserID on lifecycle commands with the
// signed-in user returned by fn.
func WithActingUser(fn func() string) Option {
	return func(r *Router) {
		r.actor = fn
	}
}

// NewRouter creates a router. ClearError and ClearAuthError are answered
// directly on emitter.
func NewRouter(routes Routes, emitter ports.Emitter, opts ...Option) *Router {
	r := &Router{routes: routes, emitter: emitter}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Submit hands cmd to its component.
func (r *Router) Submit(ctx context.Context, cmd commands.Command) error {
	var sink ports.CommandSink

	switch c := cmd.(type) {
	case commands.CreateRequested, commands.UpdateRequested, commands.RemoveRequested:
		sink = r.routes.Writes

	case commands.ListenRequested, commands.RemoveListenerRequested, commands.RemoveAllListenersRequested:
		sink = r.routes.Listeners

	case commands.SignInRequested, commands.SignUpRequested,
		commands.ResetPasswordRequested, commands.SignOutRequested:
		sink = r.routes.Auth

	case commands.JoinFlockRequested, commands.AddFlockRequested,
		commands.UnlinkFlockRequested, commands.DeleteFlockRequested,
		commands.DeleteChickenRequested, commands.GetFlockRequested:
		sink = r.routes.Lifecycle
		cmd = r.withActor(cmd)

	case commands.ClearError:
		r.emitter.Publish(events.ErrorCleared{Header: events.Stamp(), Entity: c.Entity})
		return nil

	case commands.ClearAuthError:
		r.emitter.Publish(events.AuthErrorCleared{Header: events.Stamp()})
		return nil
	}

	if sink == nil {
		log.Debug().Str("command", commands.String(cmd)).Msg("no route for command")
		return nil
	}
	log.Debug().Str("command", commands.String(cmd)).Msg("routing command")
	return sink.Submit(ctx, cmd)
}

// SubmitBytes decodes a wire command and submits it. Unknown commands and
// entity types are dropped.
func (r *Router) SubmitBytes(ctx context.Context, data []byte) error {
	cmd, err := commands.Parse(data)
	if errors.Is(err, domain.ErrInvalidCommand) || errors.Is(err, domain.ErrUnknownEntity) {
		log.Debug().Err(err).Msg("command ignored")
		return nil
	}
	if err != nil {
		return err
	}
	return r.Submit(ctx, cmd)
}

func (r *Router) withActor(cmd commands.Command) commands.Command {
	if r.actor == nil {
		return cmd
	}
	switch c := cmd.(type) {
	case commands.JoinFlockRequested:
		if c.UserID == "" {
			c.UserID = r.actor()
		}
		return c
	case commands.AddFlockRequested:
		if c.UserID == "" {
			c.UserID = r.actor()
		}
		return c
	case commands.UnlinkFlockRequested:
		if c.UserID == "" {
			c.UserID = r.actor()
		}
		return c
	case commands.DeleteFlockRequested:
		if c.UserID == "" {
			c.UserID = r.actor()
		}
		return c
	default:
		return cmd
	}
}
