// Package transport carries JSON-RPC frames between tree clients and the
// tree server.
package transport

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// Common transport errors.
var (
	ErrTransportClosed = errors.New("transport is closed")
)

// Transport is a bidirectional message channel. Each Read returns one
// complete frame.
type Transport interface {
	// ID is unique per connection.
	ID() string

	// Read blocks for the next frame. It returns io.EOF when the peer
	// closed cleanly.
	Read(ctx context.Context) ([]byte, error)

	// Write sends one frame. Concurrent writes are serialized.
	Write(ctx context.Context, data []byte) error

	// Close is safe to call more than once.
	Close() error

	// Done is closed once Close has been called.
	Done() <-chan struct{}
}

// Info describes a connection for logs.
type Info struct {
	Type       string
	RemoteAddr string
}

// GenerateID generates a unique connection ID.
func GenerateID() string {
	return uuid.NewString()
}
