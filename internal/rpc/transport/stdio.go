package transport

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"os"
	"sync"
)

// DefaultMaxLineSize bounds a single newline-delimited frame.
const DefaultMaxLineSize = DefaultMaxMessageSize

// StdioTransport exchanges newline-delimited JSON frames over a reader and
// a writer, normally stdin and stdout. Blank lines are skipped.
type StdioTransport struct {
	id      string
	scanner *bufio.Scanner
	writer  io.Writer

	done   chan struct{}
	mu     sync.Mutex
	closed bool
}

// NewStdioTransport uses os.Stdin and os.Stdout.
func NewStdioTransport() *StdioTransport {
	return NewStdioTransportWithIO(os.Stdin, os.Stdout)
}

// NewStdioTransportWithIO uses r and w.
func NewStdioTransportWithIO(r io.Reader, w io.Writer) *StdioTransport {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), DefaultMaxLineSize)
	return &StdioTransport{
		id:      "stdio",
		scanner: scanner,
		writer:  w,
		done:    make(chan struct{}),
	}
}

func (t *StdioTransport) ID() string {
	return t.id
}

// Read returns the next non-blank line without its line ending. The read
// itself cannot be interrupted; ctx is checked before it starts.
func (t *StdioTransport) Read(ctx context.Context) ([]byte, error) {
	for {
		select {
		case <-t.done:
			return nil, ErrTransportClosed
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		if !t.scanner.Scan() {
			if err := t.scanner.Err(); err != nil {
				return nil, err
			}
			return nil, io.EOF
		}
		line := bytes.TrimSpace(t.scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		out := make([]byte, len(line))
		copy(out, line)
		return out, nil
	}
}

// Write writes data followed by a newline.
func (t *StdioTransport) Write(ctx context.Context, data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return ErrTransportClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	frame := make([]byte, 0, len(data)+1)
	frame = append(append(frame, data...), '\n')
	_, err := t.writer.Write(frame)
	return err
}

// Close marks the transport closed. The underlying streams stay open since
// they are usually shared with the process.
func (t *StdioTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil
	}
	t.closed = true
	close(t.done)
	return nil
}

func (t *StdioTransport) Done() <-chan struct{} {
	return t.done
}

func (t *StdioTransport) Info() Info {
	return Info{Type: "stdio"}
}
