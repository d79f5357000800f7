package transport

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	DefaultWriteTimeout = 15 * time.Second
	DefaultPingInterval = 30 * time.Second
	DefaultPongTimeout  = 60 * time.Second

	// DefaultMaxMessageSize bounds a single frame; a whole-collection read
	// is the largest message the tree produces.
	DefaultMaxMessageSize = 4 * 1024 * 1024
)

// WebSocketTransport implements Transport over a WebSocket connection. It
// pings the peer and treats a missing pong as a dead connection.
type WebSocketTransport struct {
	id   string
	conn *websocket.Conn

	writeTimeout time.Duration
	pingInterval time.Duration
	pongTimeout  time.Duration

	done   chan struct{}
	mu     sync.Mutex // guards writes and closed
	closed bool
}

// WebSocketOption configures a WebSocketTransport.
type WebSocketOption func(*WebSocketTransport)

// WithWriteTimeout sets the per-frame write timeout.
func WithWriteTimeout(d time.Duration) WebSocketOption {
	return func(t *WebSocketTransport) {
		t.writeTimeout = d
	}
}

// WithKeepalive sets the ping interval and how long to wait for a pong.
func WithKeepalive(ping, pong time.Duration) WebSocketOption {
	return func(t *WebSocketTransport) {
		t.pingInterval = ping
		t.pongTimeout = pong
	}
}

// WithTransportID sets a custom ID for the transport.
func WithTransportID(id string) WebSocketOption {
	return func(t *WebSocketTransport) {
		t.id = id
	}
}

// NewWebSocketTransport wraps an established connection.
func NewWebSocketTransport(conn *websocket.Conn, opts ...WebSocketOption) *WebSocketTransport {
	t := &WebSocketTransport{
		id:           GenerateID(),
		conn:         conn,
		writeTimeout: DefaultWriteTimeout,
		pingInterval: DefaultPingInterval,
		pongTimeout:  DefaultPongTimeout,
		done:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(t)
	}

	conn.SetReadLimit(DefaultMaxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(t.pongTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(t.pongTimeout))
	})

	go t.pingLoop()
	return t
}

// Dial connects to a tree server at url.
func Dial(ctx context.Context, url string, header http.Header, opts ...WebSocketOption) (*WebSocketTransport, error) {
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (status %d)", url, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return NewWebSocketTransport(conn, opts...), nil
}

func (t *WebSocketTransport) pingLoop() {
	ticker := time.NewTicker(t.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-t.done:
			return
		case <-ticker.C:
			t.mu.Lock()
			if t.closed {
				t.mu.Unlock()
				return
			}
			_ = t.conn.SetWriteDeadline(time.Now().Add(t.writeTimeout))
			err := t.conn.WriteMessage(websocket.PingMessage, nil)
			t.mu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

func (t *WebSocketTransport) ID() string {
	return t.id
}

// Read returns the next text frame. Any frame also extends the read
// deadline, so an active peer never needs to answer pings in time.
func (t *WebSocketTransport) Read(ctx context.Context) ([]byte, error) {
	select {
	case <-t.done:
		return nil, ErrTransportClosed
	default:
	}

	messageType, data, err := t.conn.ReadMessage()
	if err != nil {
		select {
		case <-t.done:
			return nil, ErrTransportClosed
		default:
		}
		if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			return nil, io.EOF
		}
		return nil, err
	}
	_ = t.conn.SetReadDeadline(time.Now().Add(t.pongTimeout))

	if messageType != websocket.TextMessage {
		return nil, fmt.Errorf("unexpected websocket message type %d", messageType)
	}
	return data, nil
}

func (t *WebSocketTransport) Write(ctx context.Context, data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return ErrTransportClosed
	}

	deadline := time.Now().Add(t.writeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = t.conn.SetWriteDeadline(deadline)
	return t.conn.WriteMessage(websocket.TextMessage, data)
}

// Close sends a close frame and closes the connection.
func (t *WebSocketTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil
	}
	t.closed = true
	close(t.done)

	_ = t.conn.SetWriteDeadline(time.Now().Add(time.Second))
	_ = t.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	return t.conn.Close()
}

func (t *WebSocketTransport) Done() <-chan struct{} {
	return t.done
}

func (t *WebSocketTransport) Info() Info {
	return Info{Type: "websocket", RemoteAddr: t.conn.RemoteAddr().String()}
}
