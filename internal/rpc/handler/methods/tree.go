// Package methods provides the JSON-RPC methods of the tree server.
package methods

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/brianly1003/flocksync/internal/domain/ports"
	"github.com/brianly1003/flocksync/internal/rpc/handler"
	"github.com/brianly1003/flocksync/internal/rpc/message"
	"github.com/brianly1003/flocksync/internal/tree"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog/log"
)

// Backend is the tree the server exposes.
type Backend interface {
	ports.RemoteStore
	ports.MultiPathUpdater
}

// TreeService serves reads, writes and child subscriptions on a Backend.
type TreeService struct {
	store       Backend
	requireUser bool

	mu sync.Mutex
	// peer ID -> subscription ID -> subscription
	subs map[string]map[string]ports.Subscription
}

// NewTreeService creates the tree methods. With requireUser set every call
// needs a signed-in connection.
func NewTreeService(store Backend, requireUser bool) *TreeService {
	return &TreeService{
		store:       store,
		requireUser: requireUser,
		subs:        make(map[string]map[string]ports.Subscription),
	}
}

// RegisterMethods registers the tree methods.
func (s *TreeService) RegisterMethods(r *handler.Registry) {
	methods := map[string]handler.HandlerFunc{
		message.MethodTreeGet:         s.Get,
		message.MethodTreeSet:         s.Set,
		message.MethodTreePush:        s.Push,
		message.MethodTreeRemove:      s.Remove,
		message.MethodTreeUpdate:      s.Update,
		message.MethodTreeQuery:       s.Query,
		message.MethodTreeSubscribe:   s.Subscribe,
		message.MethodTreeUnsubscribe: s.Unsubscribe,
	}
	for name, h := range methods {
		if s.requireUser {
			h = handler.RequireUser(h)
		}
		r.Register(name, h)
	}
}

func (s *TreeService) Get(ctx context.Context, params json.RawMessage) (any, *message.Error) {
	var p message.PathParams
	if err := message.DecodeParams(params, &p); err != nil {
		return nil, err
	}
	v, err := s.store.Get(ctx, p.Path)
	if err != nil {
		return nil, message.FromError(err)
	}
	return message.ValueResult{Value: v}, nil
}

func (s *TreeService) Set(ctx context.Context, params json.RawMessage) (any, *message.Error) {
	var p message.WriteParams
	if err := decodePath(params, &p, &p.Path); err != nil {
		return nil, err
	}
	if err := s.store.Set(ctx, p.Path, p.Value); err != nil {
		return nil, message.FromError(err)
	}
	return nil, nil
}

func (s *TreeService) Push(ctx context.Context, params json.RawMessage) (any, *message.Error) {
	var p message.WriteParams
	if err := decodePath(params, &p, &p.Path); err != nil {
		return nil, err
	}
	key, err := s.store.Push(ctx, p.Path, p.Value)
	if err != nil {
		return nil, message.FromError(err)
	}
	return message.KeyResult{Key: key}, nil
}

func (s *TreeService) Remove(ctx context.Context, params json.RawMessage) (any, *message.Error) {
	var p message.PathParams
	if err := decodePath(params, &p, &p.Path); err != nil {
		return nil, err
	}
	if err := s.store.Remove(ctx, p.Path); err != nil {
		return nil, message.FromError(err)
	}
	return nil, nil
}

func (s *TreeService) Update(ctx context.Context, params json.RawMessage) (any, *message.Error) {
	var p message.UpdateParams
	if err := message.DecodeParams(params, &p); err != nil {
		return nil, err
	}
	if len(p.Values) == 0 {
		return nil, message.ErrInvalidParams("values is required")
	}
	if err := s.store.Update(ctx, p.Path, p.Values); err != nil {
		return nil, message.FromError(err)
	}
	return nil, nil
}

func (s *TreeService) Query(ctx context.Context, params json.RawMessage) (any, *message.Error) {
	var p message.QueryParams
	if err := decodePath(params, &p, &p.Path); err != nil {
		return nil, err
	}
	if p.Child == "" {
		return nil, message.ErrInvalidParams("child is required")
	}
	children, err := s.store.QueryEqual(ctx, p.Path, p.Child, p.Value)
	if err != nil {
		return nil, message.FromError(err)
	}
	if children == nil {
		children = map[string]any{}
	}
	return message.ChildrenResult{Children: children}, nil
}

// Subscribe starts forwarding child notifications for a path to the calling
// connection as tree/child notifications.
func (s *TreeService) Subscribe(ctx context.Context, params json.RawMessage) (any, *message.Error) {
	peer, ok := handler.PeerFrom(ctx)
	if !ok {
		return nil, message.ErrInvalidRequest("subscriptions need a connection")
	}
	var p message.PathParams
	if err := decodePath(params, &p, &p.Path); err != nil {
		return nil, err
	}

	sub, err := s.store.Subscribe(ctx, p.Path)
	if err != nil {
		return nil, message.FromError(err)
	}
	id := ulid.Make().String()

	s.mu.Lock()
	peerSubs, seen := s.subs[peer.ID()]
	if !seen {
		peerSubs = make(map[string]ports.Subscription)
		s.subs[peer.ID()] = peerSubs
	}
	peerSubs[id] = sub
	s.mu.Unlock()

	if !seen {
		peer.OnClose(func() { s.dropPeer(peer.ID()) })
	}

	go s.forward(peer, id, p.Path, sub)

	log.Debug().Str("peer", peer.ID()).Str("subscription", id).Str("path", p.Path).Msg("tree subscription opened")
	return message.SubscriptionParams{Subscription: id}, nil
}

// Unsubscribe closes one of the caller's subscriptions. Unknown IDs are
// not an error.
func (s *TreeService) Unsubscribe(ctx context.Context, params json.RawMessage) (any, *message.Error) {
	peer, ok := handler.PeerFrom(ctx)
	if !ok {
		return nil, message.ErrInvalidRequest("subscriptions need a connection")
	}
	var p message.SubscriptionParams
	if err := message.DecodeParams(params, &p); err != nil {
		return nil, err
	}
	if sub := s.take(peer.ID(), p.Subscription); sub != nil {
		_ = sub.Close()
	}
	return nil, nil
}

// Subscriptions returns the number of open subscriptions across peers.
func (s *TreeService) Subscriptions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, peerSubs := range s.subs {
		n += len(peerSubs)
	}
	return n
}

func (s *TreeService) forward(peer handler.Peer, id, path string, sub ports.Subscription) {
	for ev := range sub.Events() {
		err := peer.Notify(message.NotifyTreeChild, message.ChildParams{
			Subscription: id,
			Kind:         ev.Kind.String(),
			Key:          ev.Key,
			Value:        ev.Value,
		})
		if err != nil {
			log.Debug().Err(err).Str("peer", peer.ID()).Str("subscription", id).Msg("child notification dropped")
		}
	}

	// Still registered means the backend ended the stream, not the client.
	if s.take(peer.ID(), id) != nil {
		log.Warn().Str("peer", peer.ID()).Str("path", path).Msg("tree subscription closed by backend")
		_ = peer.Notify(message.NotifyTreeClosed, message.SubscriptionParams{Subscription: id})
	}
}

func (s *TreeService) take(peerID, id string) ports.Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.subs[peerID][id]
	if !ok {
		return nil
	}
	delete(s.subs[peerID], id)
	return sub
}

func (s *TreeService) dropPeer(peerID string) {
	s.mu.Lock()
	peerSubs := s.subs[peerID]
	delete(s.subs, peerID)
	s.mu.Unlock()

	for _, sub := range peerSubs {
		_ = sub.Close()
	}
	if len(peerSubs) > 0 {
		log.Debug().Str("peer", peerID).Int("subscriptions", len(peerSubs)).Msg("peer subscriptions closed")
	}
}

func decodePath(params json.RawMessage, v any, path *string) *message.Error {
	if err := message.DecodeParams(params, v); err != nil {
		return err
	}
	*path = tree.Clean(*path)
	if *path == "" {
		return message.ErrInvalidParams("path is required")
	}
	return nil
}
