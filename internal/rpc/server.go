// Package rpc serves the tree protocol: JSON-RPC 2.0 calls in, responses
// and tree/child notifications out, one Conn per transport.
package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"

	"github.com/brianly1003/flocksync/internal/domain"
	"github.com/brianly1003/flocksync/internal/rpc/handler"
	"github.com/brianly1003/flocksync/internal/rpc/message"
	"github.com/brianly1003/flocksync/internal/rpc/transport"
	"github.com/rs/zerolog/log"
)

// DefaultSendBuffer is the number of outgoing frames a connection may queue.
const DefaultSendBuffer = 256

// ErrSlowConsumer closes a connection whose send queue overflowed. Dropping
// a child notification would leave the client with a stale copy, so the
// connection goes instead and the client resubscribes.
var ErrSlowConsumer = errors.New("send buffer full")

// Server handles JSON-RPC communication over transports.
type Server struct {
	dispatcher *handler.Dispatcher

	mu    sync.RWMutex
	conns map[string]*Conn
}

// NewServer creates a new RPC server.
func NewServer(dispatcher *handler.Dispatcher) *Server {
	return &Server{
		dispatcher: dispatcher,
		conns:      make(map[string]*Conn),
	}
}

// ServeTransport serves one connection until the transport closes, ctx
// is cancelled or the server stops.
func (s *Server) ServeTransport(ctx context.Context, t transport.Transport) error {
	conn := NewConn(t, s.dispatcher)

	s.mu.Lock()
	s.conns[conn.ID()] = conn
	s.mu.Unlock()

	log.Debug().Str("conn_id", conn.ID()).Msg("rpc connection opened")

	err := conn.Serve(ctx)

	s.mu.Lock()
	delete(s.conns, conn.ID())
	s.mu.Unlock()

	log.Debug().Str("conn_id", conn.ID()).Err(err).Msg("rpc connection closed")
	return err
}

// Stop closes every connection.
func (s *Server) Stop() error {
	s.mu.Lock()
	conns := make([]*Conn, 0, len(s.conns))
	for _, c := range s.conns {
		conns = append(conns, c)
	}
	s.conns = make(map[string]*Conn)
	s.mu.Unlock()

	for _, c := range conns {
		_ = c.Close()
	}
	return nil
}

// ConnCount returns the number of open connections.
func (s *Server) ConnCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.conns)
}

// Conn is one client connection. It implements handler.Peer. Requests are
// handled in arrival order; writes go through a single writer goroutine.
type Conn struct {
	transport  transport.Transport
	dispatcher *handler.Dispatcher

	send chan []byte
	done chan struct{}

	mu      sync.Mutex
	closed  bool
	user    *domain.User
	onClose []func()
}

var _ handler.Peer = (*Conn)(nil)

// NewConn creates a connection over t.
func NewConn(t transport.Transport, dispatcher *handler.Dispatcher) *Conn {
	return &Conn{
		transport:  t,
		dispatcher: dispatcher,
		send:       make(chan []byte, DefaultSendBuffer),
		done:       make(chan struct{}),
	}
}

func (c *Conn) ID() string {
	return c.transport.ID()
}

// Serve runs the read loop and the write loop. It returns nil on a clean
// close.
func (c *Conn) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer c.Close()

	ctx = handler.WithPeer(ctx, c)
	go c.writeLoop(ctx)
	return c.readLoop(ctx)
}

func (c *Conn) readLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.done:
			return nil
		default:
		}

		data, err := c.transport.Read(ctx)
		if err != nil {
			if errors.Is(err, transport.ErrTransportClosed) || errors.Is(err, io.EOF) {
				return nil
			}
			select {
			case <-c.done:
				return nil
			default:
			}
			return err
		}

		resp, err := c.dispatcher.HandleMessage(ctx, data)
		if err != nil {
			log.Warn().Str("conn_id", c.ID()).Err(err).Msg("failed to handle message")
			continue
		}
		if len(resp) == 0 {
			continue
		}
		if err := c.Send(resp); err != nil {
			log.Warn().Str("conn_id", c.ID()).Err(err).Msg("failed to send response")
		}
	}
}

func (c *Conn) writeLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		case data := <-c.send:
			if err := c.transport.Write(ctx, data); err != nil {
				log.Warn().Str("conn_id", c.ID()).Err(err).Msg("write error")
				_ = c.Close()
				return
			}
		}
	}
}

// Send queues a frame. A full queue closes the connection.
func (c *Conn) Send(data []byte) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return transport.ErrTransportClosed
	}
	select {
	case c.send <- data:
		c.mu.Unlock()
		return nil
	default:
	}
	c.mu.Unlock()

	log.Warn().Str("conn_id", c.ID()).Msg("closing slow connection")
	_ = c.Close()
	return ErrSlowConsumer
}

// Notify sends a JSON-RPC notification.
func (c *Conn) Notify(method string, params any) error {
	n, err := message.NewNotification(method, params)
	if err != nil {
		return err
	}
	data, err := json.Marshal(n)
	if err != nil {
		return err
	}
	return c.Send(data)
}

func (c *Conn) User() *domain.User {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.user == nil {
		return nil
	}
	u := *c.user
	return &u
}

func (c *Conn) SetUser(user *domain.User) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if user == nil {
		c.user = nil
		return
	}
	u := *user
	c.user = &u
}

// OnClose registers fn to run when the connection closes. On a closed
// connection fn runs immediately.
func (c *Conn) OnClose(fn func()) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		fn()
		return
	}
	c.onClose = append(c.onClose, fn)
	c.mu.Unlock()
}

// Close closes the transport and runs the close callbacks once.
func (c *Conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.done)
	fns := c.onClose
	c.onClose = nil
	c.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
	return c.transport.Close()
}

// Done is closed when the connection closes.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}
