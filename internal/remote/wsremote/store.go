// Package wsremote is a remote tree backed by a flocksync server reached
// over WebSocket. It also signs users in against that server.
package wsremote

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/brianly1003/flocksync/internal/authn"
	"github.com/brianly1003/flocksync/internal/domain"
	"github.com/brianly1003/flocksync/internal/domain/ports"
	"github.com/brianly1003/flocksync/internal/mailbox"
	"github.com/brianly1003/flocksync/internal/rpc/client"
	"github.com/brianly1003/flocksync/internal/rpc/message"
	"github.com/brianly1003/flocksync/internal/rpc/transport"
	"github.com/rs/zerolog/log"
)

// Store forwards tree operations to the server. Child notifications are
// routed to subscriptions by the ID the server assigned.
//
// The connection is not re-established; once it drops every call fails and
// every subscription stream ends.
type Store struct {
	client *client.Client

	mu   sync.Mutex
	subs map[string]*subscription
	// notifications that arrived before their subscribe call returned
	early map[string][]domain.ChildEvent
}

var (
	_ ports.RemoteStore      = (*Store)(nil)
	_ ports.MultiPathUpdater = (*Store)(nil)
	_ authn.Credentials      = (*Store)(nil)
)

// Dial connects to the server at url, e.g. ws://localhost:8787/ws.
func Dial(ctx context.Context, url string) (*Store, error) {
	t, err := transport.Dial(ctx, url, nil)
	if err != nil {
		return nil, domain.NewRemoteError("dial", url, err)
	}
	return NewStore(t), nil
}

// NewStore runs the tree protocol over an established transport.
func NewStore(t transport.Transport) *Store {
	s := &Store{
		subs:  make(map[string]*subscription),
		early: make(map[string][]domain.ChildEvent),
	}
	s.client = client.New(t, s.handleNotification)
	go s.closeOnDisconnect()
	return s
}

func (s *Store) Get(ctx context.Context, path string) (any, error) {
	var res message.ValueResult
	if err := s.client.Call(ctx, message.MethodTreeGet, message.PathParams{Path: path}, &res); err != nil {
		return nil, domain.NewRemoteError("get", path, err)
	}
	return res.Value, nil
}

func (s *Store) Set(ctx context.Context, path string, value any) error {
	if err := s.client.Call(ctx, message.MethodTreeSet, message.WriteParams{Path: path, Value: value}, nil); err != nil {
		return domain.NewRemoteError("set", path, err)
	}
	return nil
}

func (s *Store) Push(ctx context.Context, path string, value any) (string, error) {
	var res message.KeyResult
	if err := s.client.Call(ctx, message.MethodTreePush, message.WriteParams{Path: path, Value: value}, &res); err != nil {
		return "", domain.NewRemoteError("push", path, err)
	}
	return res.Key, nil
}

func (s *Store) Remove(ctx context.Context, path string) error {
	if err := s.client.Call(ctx, message.MethodTreeRemove, message.PathParams{Path: path}, nil); err != nil {
		return domain.NewRemoteError("remove", path, err)
	}
	return nil
}

func (s *Store) Update(ctx context.Context, path string, values map[string]any) error {
	if err := s.client.Call(ctx, message.MethodTreeUpdate, message.UpdateParams{Path: path, Values: values}, nil); err != nil {
		return domain.NewRemoteError("update", path, err)
	}
	return nil
}

func (s *Store) QueryEqual(ctx context.Context, path, child string, value any) (map[string]any, error) {
	var res message.ChildrenResult
	params := message.QueryParams{Path: path, Child: child, Value: value}
	if err := s.client.Call(ctx, message.MethodTreeQuery, params, &res); err != nil {
		return nil, domain.NewRemoteError("query", path, err)
	}
	return res.Children, nil
}

// Subscribe opens a server-side subscription. The server registers it
// before answering, so writes that complete after Subscribe returns are
// always delivered.
func (s *Store) Subscribe(ctx context.Context, path string) (ports.Subscription, error) {
	var res message.SubscriptionParams
	if err := s.client.Call(ctx, message.MethodTreeSubscribe, message.PathParams{Path: path}, &res); err != nil {
		return nil, domain.NewRemoteError("subscribe", path, err)
	}

	sub := &subscription{id: res.Subscription, store: s, box: mailbox.New[domain.ChildEvent]()}
	s.mu.Lock()
	s.subs[sub.id] = sub
	for _, ev := range s.early[sub.id] {
		sub.box.Post(ev)
	}
	delete(s.early, sub.id)
	s.mu.Unlock()

	log.Debug().Str("path", path).Str("subscription", sub.id).Msg("remote subscription opened")
	return sub, nil
}

// Close drops the connection.
func (s *Store) Close() error {
	return s.client.Close()
}

// Done is closed when the connection is gone.
func (s *Store) Done() <-chan struct{} {
	return s.client.Done()
}

func (s *Store) handleNotification(method string, params json.RawMessage) {
	switch method {
	case message.NotifyTreeChild:
		var p message.ChildParams
		if err := json.Unmarshal(params, &p); err != nil {
			log.Warn().Err(err).Msg("malformed child notification")
			return
		}
		kind, ok := domain.ParseChildKind(p.Kind)
		if !ok {
			log.Warn().Str("kind", p.Kind).Msg("unknown child kind")
			return
		}
		ev := domain.ChildEvent{Kind: kind, Key: p.Key, Value: p.Value}

		s.mu.Lock()
		if sub, ok := s.subs[p.Subscription]; ok {
			sub.box.Post(ev)
		} else {
			s.early[p.Subscription] = append(s.early[p.Subscription], ev)
		}
		s.mu.Unlock()

	case message.NotifyTreeClosed:
		var p message.SubscriptionParams
		if err := json.Unmarshal(params, &p); err != nil {
			return
		}
		s.mu.Lock()
		sub := s.subs[p.Subscription]
		delete(s.subs, p.Subscription)
		delete(s.early, p.Subscription)
		s.mu.Unlock()
		if sub != nil {
			log.Warn().Str("subscription", p.Subscription).Msg("server closed subscription")
			_ = sub.box.Close()
		}

	default:
		log.Debug().Str("method", method).Msg("ignoring notification")
	}
}

func (s *Store) closeOnDisconnect() {
	<-s.client.Done()
	s.mu.Lock()
	subs := s.subs
	s.subs = make(map[string]*subscription)
	s.early = make(map[string][]domain.ChildEvent)
	s.mu.Unlock()

	for _, sub := range subs {
		_ = sub.box.Close()
	}
	log.Info().Err(s.client.Err()).Int("subscriptions", len(subs)).Msg("remote connection closed")
}

type subscription struct {
	id    string
	store *Store
	box   *mailbox.Mailbox[domain.ChildEvent]
	once  sync.Once
}

func (s *subscription) Events() <-chan domain.ChildEvent {
	return s.box.Out()
}

// Close ends the stream locally and tells the server. The server side is
// released best effort.
func (s *subscription) Close() error {
	s.once.Do(func() {
		st := s.store
		st.mu.Lock()
		delete(st.subs, s.id)
		st.mu.Unlock()
		_ = s.box.Close()

		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), transport.DefaultWriteTimeout)
			defer cancel()
			err := st.client.Call(ctx, message.MethodTreeUnsubscribe, message.SubscriptionParams{Subscription: s.id}, nil)
			if err != nil {
				log.Debug().Err(err).Str("subscription", s.id).Msg("unsubscribe failed")
			}
			st.mu.Lock()
			delete(st.early, s.id)
			st.mu.Unlock()
		}()
	})
	return nil
}
