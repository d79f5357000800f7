package testutil

import (
	"context"
	"sync"

	"github.com/brianly1003/flocksync/internal/domain"
	"github.com/brianly1003/flocksync/internal/domain/ports"
	"github.com/brianly1003/flocksync/internal/remote/memtree"
)

// Call is one recorded remote operation.
type Call struct {
	Op    string
	Path  string
	Value any
}

// FakeRemote wraps a memtree store with call recording, injectable
// failures and gated reads.
type FakeRemote struct {
	*memtree.Store

	mu        sync.Mutex
	calls     []Call
	failOp    map[string]error
	failPath  map[string]error
	gate      chan struct{}
	getsStart chan string
}

var (
	_ ports.RemoteStore      = (*FakeRemote)(nil)
	_ ports.MultiPathUpdater = (*FakeRemote)(nil)
)

// NewFakeRemote creates a fake remote seeded with data (may be nil).
func NewFakeRemote(data map[string]any) *FakeRemote {
	store := memtree.New()
	if data != nil {
		seeded, err := memtree.NewWithData(data)
		if err != nil {
			panic(err)
		}
		store = seeded
	}
	return &FakeRemote{
		Store:     store,
		failOp:    make(map[string]error),
		failPath:  make(map[string]error),
		getsStart: make(chan string, 64),
	}
}

// Fail makes every call of op return err.
func (f *FakeRemote) Fail(op string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failOp[op] = err
}

// FailPath makes op on path return err.
func (f *FakeRemote) FailPath(op, path string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failPath[op+" "+path] = err
}

// GateReads makes Get block until the returned release func is called.
func (f *FakeRemote) GateReads() (release func()) {
	gate := make(chan struct{})
	f.mu.Lock()
	f.gate = gate
	f.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			if f.gate == gate {
				f.gate = nil
			}
			f.mu.Unlock()
			close(gate)
		})
	}
}

// ReadStarted delivers the path of every Get once it has begun.
func (f *FakeRemote) ReadStarted() <-chan string {
	return f.getsStart
}

// Calls returns the recorded calls in order.
func (f *FakeRemote) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Call, len(f.calls))
	copy(out, f.calls)
	return out
}

// CallsOf returns the recorded calls of one op.
func (f *FakeRemote) CallsOf(op string) []Call {
	var out []Call
	for _, c := range f.Calls() {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

// Writes returns the recorded write calls (set, push, update, remove) in order.
func (f *FakeRemote) Writes() []Call {
	var out []Call
	for _, c := range f.Calls() {
		switch c.Op {
		case "set", "push", "update", "remove":
			out = append(out, c)
		}
	}
	return out
}

func (f *FakeRemote) record(op, path string, value any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, Call{Op: op, Path: path, Value: value})
	if err, ok := f.failPath[op+" "+path]; ok {
		return domain.NewRemoteError(op, path, err)
	}
	if err, ok := f.failOp[op]; ok {
		return domain.NewRemoteError(op, path, err)
	}
	return nil
}

// Get records the read, waits on the gate if one is set, then reads.
func (f *FakeRemote) Get(ctx context.Context, path string) (any, error) {
	err := f.record("get", path, nil)

	f.mu.Lock()
	gate := f.gate
	f.mu.Unlock()

	select {
	case f.getsStart <- path:
	default:
	}

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, domain.NewRemoteError("get", path, ctx.Err())
		}
	}
	if err != nil {
		return nil, err
	}
	return f.Store.Get(ctx, path)
}

// Set records and applies the write.
func (f *FakeRemote) Set(ctx context.Context, path string, value any) error {
	if err := f.record("set", path, value); err != nil {
		return err
	}
	return f.Store.Set(ctx, path, value)
}

// Push records and applies the write.
func (f *FakeRemote) Push(ctx context.Context, path string, value any) (string, error) {
	if err := f.record("push", path, value); err != nil {
		return "", err
	}
	return f.Store.Push(ctx, path, value)
}

// Remove records and applies the delete.
func (f *FakeRemote) Remove(ctx context.Context, path string) error {
	if err := f.record("remove", path, nil); err != nil {
		return err
	}
	return f.Store.Remove(ctx, path)
}

// Update records and applies the multi-path write.
func (f *FakeRemote) Update(ctx context.Context, path string, values map[string]any) error {
	copied := make(map[string]any, len(values))
	for k, v := range values {
		copied[k] = v
	}
	if err := f.record("update", path, copied); err != nil {
		return err
	}
	return f.Store.Update(ctx, path, values)
}

// QueryEqual records and runs the query.
func (f *FakeRemote) QueryEqual(ctx context.Context, path, child string, value any) (map[string]any, error) {
	if err := f.record("query", path, value); err != nil {
		return nil, err
	}
	return f.Store.QueryEqual(ctx, path, child, value)
}

// Subscribe records and opens the subscription.
func (f *FakeRemote) Subscribe(ctx context.Context, path string) (ports.Subscription, error) {
	if err := f.record("subscribe", path, nil); err != nil {
		return nil, err
	}
	return f.Store.Subscribe(ctx, path)
}

// SequentialRemote hides the multi-path capability of a FakeRemote so
// callers fall back to ordered single writes.
type SequentialRemote struct {
	inner *FakeRemote
}

// Sequential returns a view of f without Update.
func (f *FakeRemote) Sequential() *SequentialRemote {
	return &SequentialRemote{inner: f}
}

func (s *SequentialRemote) Get(ctx context.Context, path string) (any, error) {
	return s.inner.Get(ctx, path)
}

func (s *SequentialRemote) Set(ctx context.Context, path string, value any) error {
	return s.inner.Set(ctx, path, value)
}

func (s *SequentialRemote) Push(ctx context.Context, path string, value any) (string, error) {
	return s.inner.Push(ctx, path, value)
}

func (s *SequentialRemote) Remove(ctx context.Context, path string) error {
	return s.inner.Remove(ctx, path)
}

func (s *SequentialRemote) QueryEqual(ctx context.Context, path, child string, value any) (map[string]any, error) {
	return s.inner.QueryEqual(ctx, path, child, value)
}

func (s *SequentialRemote) Subscribe(ctx context.Context, path string) (ports.Subscription, error) {
	return s.inner.Subscribe(ctx, path)
}
