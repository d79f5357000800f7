package listener

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/brianly1003/flocksync/internal/domain"
	"github.com/brianly1003/flocksync/internal/domain/commands"
	"github.com/brianly1003/flocksync/internal/domain/events"
	"github.com/brianly1003/flocksync/internal/testutil"
)

func runSet(t *testing.T, remote *testutil.FakeRemote, rec *testutil.Recorder) *Set {
	t.Helper()
	set := NewSet(NewAdapterFactory(remote, rec), rec)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- set.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Error("listener set did not stop")
		}
	})
	return set
}

func syncSet(t *testing.T, set *Set) {
	t.Helper()
	if err := set.Sync(context.Background()); err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
}

func seeded() *testutil.FakeRemote {
	return testutil.NewFakeRemote(map[string]any{
		"userSettings": map[string]any{"u1": map[string]any{"currentFlockId": "f1"}},
		"flocks":       map[string]any{"f1": map[string]any{"name": "Backyard", "ownedBy": "u1"}},
		"chickens": map[string]any{
			"f1": map[string]any{"c1": map[string]any{"name": "Henrietta"}},
			"f2": map[string]any{"c9": map[string]any{"name": "Pecky"}},
		},
		"eggs": map[string]any{"f1": map[string]any{"e1": map[string]any{"chickenId": "c1"}}},
	})
}

func TestCoordinator_ReplaceEmitsOneRemovedBeforeNewSnapshot(t *testing.T) {
	remote := seeded()
	rec := testutil.NewRecorder()
	set := runSet(t, remote, rec)
	ctx := context.Background()

	release := remote.GateReads()
	_ = set.Listen(ctx, domain.EntityChickens, "chickens/f1")
	select {
	case <-remote.ReadStarted():
	case <-time.After(2 * time.Second):
		t.Fatal("first read never started")
	}

	_ = set.Listen(ctx, domain.EntityChickens, "chickens/f2")
	syncSet(t, set)
	release()

	rec.WaitFor(t, events.EventTypeListenFulfilled, 1)
	got := rec.Events()
	if len(got) != 2 {
		t.Fatalf("events = %v, want [listen_removed listen_fulfilled]", rec.Types())
	}
	removed, ok := got[0].(events.ListenRemoved)
	if !ok || removed.ClearData || removed.Entity != domain.EntityChickens {
		t.Errorf("first event = %#v, want ListenRemoved{chickens, false}", got[0])
	}
	fulfilled := got[1].(events.ListenFulfilled)
	if fulfilled.Ref != "chickens/f2" || fulfilled.Data["c9"] == nil {
		t.Errorf("fulfilled = %s %v, want chickens/f2 with c9", fulfilled.Ref, fulfilled.Data)
	}

	state, ref := set.Coordinator(domain.EntityChickens).State()
	if state != Listening || ref != "chickens/f2" {
		t.Errorf("State() = %s %q, want listening chickens/f2", state, ref)
	}
	if n := remote.Subscriptions(); n != 1 {
		t.Errorf("Subscriptions() = %d, want 1", n)
	}
}

func TestCoordinator_ReplaceAfterSnapshot(t *testing.T) {
	remote := seeded()
	rec := testutil.NewRecorder()
	set := runSet(t, remote, rec)
	ctx := context.Background()

	_ = set.Listen(ctx, domain.EntityChickens, "chickens/f1")
	rec.WaitFor(t, events.EventTypeListenFulfilled, 1)
	_ = set.Listen(ctx, domain.EntityChickens, "chickens/f2")
	rec.WaitFor(t, events.EventTypeListenFulfilled, 2)

	want := []events.EventType{
		events.EventTypeListenFulfilled,
		events.EventTypeListenRemoved,
		events.EventTypeListenFulfilled,
	}
	got := rec.Types()
	if len(got) != len(want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event %d = %s, want %s", i, got[i], want[i])
		}
	}

	// Writes under the old ref no longer reach the stream.
	_ = remote.Set(ctx, "chickens/f1/c2", map[string]any{"name": "Late"})
	_ = remote.Set(ctx, "chickens/f2/c3", map[string]any{"name": "Fresh"})
	rec.WaitFor(t, events.EventTypeChildAdded, 1)
	testutil.Never(t, func() bool { return rec.Count(events.EventTypeChildAdded) > 1 }, 30*time.Millisecond,
		"child event delivered from the replaced listener")
	if added := rec.Last(events.EventTypeChildAdded).(events.ChildAdded); added.Key != "c3" {
		t.Errorf("child_added key = %s, want c3", added.Key)
	}
}

func TestSet_RemoveAllTearsDownEveryListener(t *testing.T) {
	remote := seeded()
	rec := testutil.NewRecorder()
	set := runSet(t, remote, rec)
	ctx := context.Background()

	refs := map[domain.EntityType]string{
		domain.EntityUserSettings: "userSettings/u1",
		domain.EntityFlocks:       "flocks/f1",
		domain.EntityChickens:     "chickens/f1",
		domain.EntityEggs:         "eggs/f1",
	}
	for entity, ref := range refs {
		_ = set.Listen(ctx, entity, ref)
	}
	rec.WaitFor(t, events.EventTypeListenFulfilled, len(refs))

	if err := set.RemoveAll(ctx, true); err != nil {
		t.Fatalf("RemoveAll() error = %v", err)
	}

	if n := rec.Count(events.EventTypeListenRemoved); n != len(refs) {
		t.Errorf("listen_removed count = %d, want %d", n, len(refs))
	}
	seen := map[domain.EntityType]bool{}
	for _, e := range rec.Events() {
		if r, ok := e.(events.ListenRemoved); ok {
			if !r.ClearData {
				t.Errorf("ListenRemoved{%s}.ClearData = false, want true", r.Entity)
			}
			seen[r.Entity] = true
		}
	}
	for entity := range refs {
		if !seen[entity] {
			t.Errorf("no listen_removed for %s", entity)
		}
		if state, _ := set.Coordinator(entity).State(); state != Idle {
			t.Errorf("%s state = %s, want idle", entity, state)
		}
	}
	if n := remote.Subscriptions(); n != 0 {
		t.Errorf("Subscriptions() = %d, want 0", n)
	}
}

func TestSet_RemoveAllSkipsIdleCoordinators(t *testing.T) {
	remote := seeded()
	rec := testutil.NewRecorder()
	set := runSet(t, remote, rec)
	ctx := context.Background()

	_ = set.Listen(ctx, domain.EntityEggs, "eggs/f1")
	rec.WaitFor(t, events.EventTypeListenFulfilled, 1)

	if err := set.RemoveAll(ctx, false); err != nil {
		t.Fatalf("RemoveAll() error = %v", err)
	}
	if n := rec.Count(events.EventTypeListenRemoved); n != 1 {
		t.Errorf("listen_removed count = %d, want 1", n)
	}
}

func TestCoordinator_RemoveWhileIdleIgnored(t *testing.T) {
	rec := testutil.NewRecorder()
	set := runSet(t, seeded(), rec)
	ctx := context.Background()

	_ = set.Remove(ctx, domain.EntityEggs, true)
	_ = set.RemoveMatching(ctx, domain.EntityChickens, "chickens/f1", true)
	syncSet(t, set)

	if n := len(rec.Events()); n != 0 {
		t.Errorf("events = %v, want none", rec.Types())
	}
}

func TestCoordinator_RemoveClearsData(t *testing.T) {
	remote := seeded()
	rec := testutil.NewRecorder()
	set := runSet(t, remote, rec)
	ctx := context.Background()

	_ = set.Listen(ctx, domain.EntityFlocks, "flocks/f1")
	rec.WaitFor(t, events.EventTypeListenFulfilled, 1)
	_ = set.Remove(ctx, domain.EntityFlocks, true)
	rec.WaitFor(t, events.EventTypeListenRemoved, 1)

	removed := rec.Last(events.EventTypeListenRemoved).(events.ListenRemoved)
	if !removed.ClearData {
		t.Error("ListenRemoved.ClearData = false, want true")
	}
	if state, _ := set.Coordinator(domain.EntityFlocks).State(); state != Idle {
		t.Errorf("state = %s, want idle", state)
	}
}

func TestCoordinator_RemoveMatching(t *testing.T) {
	rec := testutil.NewRecorder()
	set := runSet(t, seeded(), rec)
	ctx := context.Background()

	_ = set.Listen(ctx, domain.EntityChickens, "chickens/f1")
	rec.WaitFor(t, events.EventTypeListenFulfilled, 1)

	if err := set.RemoveMatching(ctx, domain.EntityChickens, "chickens/f2", true); err != nil {
		t.Fatalf("RemoveMatching() error = %v", err)
	}
	if n := rec.Count(events.EventTypeListenRemoved); n != 0 {
		t.Fatalf("non-matching ref removed the listener")
	}

	if err := set.RemoveMatching(ctx, domain.EntityChickens, "chickens/f1", true); err != nil {
		t.Fatalf("RemoveMatching() error = %v", err)
	}
	if n := rec.Count(events.EventTypeListenRemoved); n != 1 {
		t.Errorf("listen_removed count = %d, want 1", n)
	}
}

func TestCoordinator_IgnoresOtherEntityTypes(t *testing.T) {
	rec := testutil.NewRecorder()
	set := runSet(t, seeded(), rec)
	ctx := context.Background()
	eggs := set.Coordinator(domain.EntityEggs)

	_ = eggs.Submit(ctx, commands.ListenRequested{Entity: domain.EntityChickens, Ref: "chickens/f1"})
	_ = eggs.Submit(ctx, commands.SignOutRequested{})
	if err := eggs.Sync(ctx); err != nil {
		t.Fatalf("Sync() error = %v", err)
	}

	if state, _ := eggs.State(); state != Idle {
		t.Errorf("state = %s, want idle", state)
	}
	if n := len(rec.Events()); n != 0 {
		t.Errorf("events = %v, want none", rec.Types())
	}
}

func TestSet_SubmitRoutesCommands(t *testing.T) {
	rec := testutil.NewRecorder()
	set := runSet(t, seeded(), rec)
	ctx := context.Background()

	_ = set.Submit(ctx, commands.ListenRequested{Entity: domain.EntityEggs, Ref: "eggs/f1"})
	rec.WaitFor(t, events.EventTypeListenFulfilled, 1)
	_ = set.Submit(ctx, commands.RemoveListenerRequested{Entity: domain.EntityEggs})
	rec.WaitFor(t, events.EventTypeListenRemoved, 1)

	if err := set.Submit(ctx, commands.RemoveAllListenersRequested{ClearData: true}); err != nil {
		t.Fatalf("Submit(remove all) error = %v", err)
	}
	if n := rec.Count(events.EventTypeListenRemoved); n != 1 {
		t.Errorf("listen_removed count = %d, want 1", n)
	}
}

func TestCoordinator_StoppedRejectsRequests(t *testing.T) {
	remote := seeded()
	rec := testutil.NewRecorder()
	c := NewCoordinator(domain.EntityEggs, NewAdapterFactory(remote, rec), rec)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	_ = c.Listen(context.Background(), "eggs/f1")
	rec.WaitFor(t, events.EventTypeListenFulfilled, 1)

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if n := remote.Subscriptions(); n != 0 {
		t.Errorf("Subscriptions() = %d after stop, want 0", n)
	}
	if n := rec.Count(events.EventTypeListenRemoved); n != 0 {
		t.Errorf("stop emitted %d listen_removed, want 0", n)
	}
	if err := c.RemoveAll(context.Background(), true); !errors.Is(err, domain.ErrStopped) {
		t.Errorf("RemoveAll() after stop error = %v, want ErrStopped", err)
	}
}
