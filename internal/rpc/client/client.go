// Package client is a JSON-RPC 2.0 client for the tree protocol.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/brianly1003/flocksync/internal/rpc/message"
	"github.com/brianly1003/flocksync/internal/rpc/transport"
	"github.com/rs/zerolog/log"
)

// ErrClosed is returned by calls on a closed client.
var ErrClosed = errors.New("rpc client closed")

// NotificationHandler receives server notifications in arrival order, on
// the read goroutine. It must not block.
type NotificationHandler func(method string, params json.RawMessage)

// Client issues calls over a transport and routes responses by ID.
type Client struct {
	transport transport.Transport
	onNotify  NotificationHandler

	nextID atomic.Int64

	pendingMu sync.Mutex
	pending   map[int64]chan *message.Response

	closeCh chan struct{}
	errMu   sync.Mutex
	err     error
}

// New starts a client over an established transport.
func New(t transport.Transport, onNotify NotificationHandler) *Client {
	c := &Client{
		transport: t,
		onNotify:  onNotify,
		pending:   make(map[int64]chan *message.Response),
		closeCh:   make(chan struct{}),
	}
	go c.readLoop()
	return c
}

// Dial connects to a tree server over WebSocket.
func Dial(ctx context.Context, url string, onNotify NotificationHandler) (*Client, error) {
	t, err := transport.Dial(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return New(t, onNotify), nil
}

// Call makes a call and decodes its result into result, which may be nil.
// A server error is returned as *message.Error.
func (c *Client) Call(ctx context.Context, method string, params, result any) error {
	id := c.nextID.Add(1)
	req, err := message.NewRequest(message.NumberID(id), method, params)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	respCh := make(chan *message.Response, 1)
	c.pendingMu.Lock()
	select {
	case <-c.closeCh:
		c.pendingMu.Unlock()
		return c.Err()
	default:
	}
	c.pending[id] = respCh
	c.pendingMu.Unlock()

	if err := c.transport.Write(ctx, data); err != nil {
		c.forget(id)
		return fmt.Errorf("send %s: %w", method, err)
	}

	select {
	case resp := <-respCh:
		if resp.Error != nil {
			return resp.Error
		}
		if result == nil || len(resp.Result) == 0 {
			return nil
		}
		if err := json.Unmarshal(resp.Result, result); err != nil {
			return fmt.Errorf("decode %s result: %w", method, err)
		}
		return nil
	case <-ctx.Done():
		c.forget(id)
		return ctx.Err()
	case <-c.closeCh:
		return c.Err()
	}
}

func (c *Client) forget(id int64) {
	c.pendingMu.Lock()
	delete(c.pending, id)
	c.pendingMu.Unlock()
}

func (c *Client) readLoop() {
	var readErr error
	defer func() {
		c.errMu.Lock()
		if c.err == nil {
			c.err = fmt.Errorf("%w: %v", ErrClosed, readErr)
		}
		c.errMu.Unlock()

		c.pendingMu.Lock()
		close(c.closeCh)
		c.pending = make(map[int64]chan *message.Response)
		c.pendingMu.Unlock()
	}()

	for {
		data, err := c.transport.Read(context.Background())
		if err != nil {
			readErr = err
			return
		}
		m, err := message.ParseIncoming(data)
		if err != nil {
			log.Warn().Err(err).Msg("dropping malformed frame")
			continue
		}

		if m.IsNotification() {
			if c.onNotify != nil {
				c.onNotify(m.Method, m.Params)
			}
			continue
		}

		id, ok := m.ID.Int64()
		if !ok {
			log.Warn().Str("id", m.ID.String()).Msg("response with unknown id")
			continue
		}
		c.pendingMu.Lock()
		ch, ok := c.pending[id]
		delete(c.pending, id)
		c.pendingMu.Unlock()
		if ok {
			ch <- m.Response()
		}
	}
}

// Done is closed when the connection is gone.
func (c *Client) Done() <-chan struct{} {
	return c.closeCh
}

// Err reports why the client stopped, or nil while it runs.
func (c *Client) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.err
}

// Close closes the transport. Pending calls fail with ErrClosed.
func (c *Client) Close() error {
	c.errMu.Lock()
	if c.err == nil {
		c.err = ErrClosed
	}
	c.errMu.Unlock()
	return c.transport.Close()
}
