// Package handler provides JSON-RPC request handling infrastructure.
package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/brianly1003/flocksync/internal/domain"
	"github.com/brianly1003/flocksync/internal/rpc/message"
	"github.com/rs/zerolog/log"
)

// HandlerFunc is the signature for RPC method handlers.
// If the result is nil and error is nil, an empty successful response is sent.
type HandlerFunc func(ctx context.Context, params json.RawMessage) (any, *message.Error)

// MiddlewareFunc is a function that wraps a HandlerFunc.
type MiddlewareFunc func(HandlerFunc) HandlerFunc

// Peer is the connection a call arrived on.
type Peer interface {
	ID() string
	// Notify pushes a notification to the peer.
	Notify(method string, params any) error
	// User is the signed-in user, or nil.
	User() *domain.User
	SetUser(user *domain.User)
	// OnClose registers fn to run once when the connection goes away.
	OnClose(fn func())
}

type peerKey struct{}

// WithPeer attaches the calling connection to ctx.
func WithPeer(ctx context.Context, p Peer) context.Context {
	return context.WithValue(ctx, peerKey{}, p)
}

// PeerFrom returns the calling connection, if any.
func PeerFrom(ctx context.Context) (Peer, bool) {
	p, ok := ctx.Value(peerKey{}).(Peer)
	return p, ok
}

// RequireUser rejects calls from connections that are not signed in.
func RequireUser(next HandlerFunc) HandlerFunc {
	return func(ctx context.Context, params json.RawMessage) (any, *message.Error) {
		p, ok := PeerFrom(ctx)
		if !ok || p.User() == nil {
			return nil, message.ErrNotAuthenticated()
		}
		return next(ctx, params)
	}
}

// Recover turns a handler panic into an internal error.
func Recover(next HandlerFunc) HandlerFunc {
	return func(ctx context.Context, params json.RawMessage) (result any, rpcErr *message.Error) {
		defer func() {
			if r := recover(); r != nil {
				log.Error().Interface("panic", r).Msg("rpc handler panicked")
				result, rpcErr = nil, message.ErrInternalError(fmt.Sprint(r))
			}
		}()
		return next(ctx, params)
	}
}

// Registry holds registered RPC methods and provides lookup functionality.
type Registry struct {
	mu         sync.RWMutex
	handlers   map[string]HandlerFunc
	middleware []MiddlewareFunc
}

// NewRegistry creates a new method registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]HandlerFunc)}
}

// Register registers a handler for a method.
// If a handler is already registered for the method, it will be replaced.
func (r *Registry) Register(method string, handler HandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[method] = handler
}

// Use adds middleware to the registry.
// Middleware is applied in the order it is added.
func (r *Registry) Use(mw MiddlewareFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.middleware = append(r.middleware, mw)
}

// Get returns the handler for a method wrapped in all registered middleware,
// or nil if the method is not registered.
func (r *Registry) Get(method string) HandlerFunc {
	r.mu.RLock()
	defer r.mu.RUnlock()

	handler, ok := r.handlers[method]
	if !ok {
		return nil
	}

	// last added = innermost
	for i := len(r.middleware) - 1; i >= 0; i-- {
		handler = r.middleware[i](handler)
	}
	return handler
}

// Has returns true if a handler is registered for the method.
func (r *Registry) Has(method string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.handlers[method]
	return ok
}

// Methods returns the registered method names in order.
func (r *Registry) Methods() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	methods := make([]string, 0, len(r.handlers))
	for method := range r.handlers {
		methods = append(methods, method)
	}
	sort.Strings(methods)
	return methods
}

// MethodService is an interface for services that register multiple methods.
type MethodService interface {
	RegisterMethods(r *Registry)
}

// RegisterService registers all methods from a MethodService.
func (r *Registry) RegisterService(svc MethodService) {
	svc.RegisterMethods(r)
}
