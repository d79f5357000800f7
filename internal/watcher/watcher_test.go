package watcher

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/brianly1003/flocksync/internal/domain"
	"github.com/brianly1003/flocksync/internal/domain/commands"
	"github.com/brianly1003/flocksync/internal/domain/events"
	"github.com/brianly1003/flocksync/internal/paths"
	"github.com/brianly1003/flocksync/internal/schema"
	"github.com/brianly1003/flocksync/internal/testutil"
)

func TestExecute(t *testing.T) {
	ctx := context.Background()
	chicken := map[string]any{"name": "Henrietta"}

	tests := []struct {
		name     string
		verb     Verb
		cmd      commands.Command
		wantType events.EventType
		wantOp   string
		wantPath string
	}{
		{
			name:     "create chicken pushes under flock",
			verb:     Create,
			cmd:      commands.CreateRequested{Entity: domain.EntityChickens, IDs: paths.IDs{FlockID: "f1"}, Data: chicken},
			wantType: events.EventTypeCreateFulfilled,
			wantOp:   "push",
			wantPath: "chickens/f1",
		},
		{
			name:     "create flock pushes at root",
			verb:     Create,
			cmd:      commands.CreateRequested{Entity: domain.EntityFlocks, Data: map[string]any{"name": "Backyard", "ownedBy": "u1"}},
			wantType: events.EventTypeCreateFulfilled,
			wantOp:   "push",
			wantPath: "flocks",
		},
		{
			name:     "update egg sets item",
			verb:     Update,
			cmd:      commands.UpdateRequested{Entity: domain.EntityEggs, IDs: paths.IDs{FlockID: "f1", ItemID: "e1"}, Data: map[string]any{"chickenId": "c1", "date": "2024-03-01"}},
			wantType: events.EventTypeUpdateFulfilled,
			wantOp:   "set",
			wantPath: "eggs/f1/e1",
		},
		{
			name:     "update settings",
			verb:     Update,
			cmd:      commands.UpdateUserSettings("u1", domain.UserSettings{Flocks: map[string]bool{"f1": true}}),
			wantType: events.EventTypeUpdateFulfilled,
			wantOp:   "set",
			wantPath: "userSettings/u1",
		},
		{
			name:     "remove chicken",
			verb:     Remove,
			cmd:      commands.RemoveRequested{Entity: domain.EntityChickens, IDs: paths.IDs{FlockID: "f1", ItemID: "c1"}},
			wantType: events.EventTypeRemoveFulfilled,
			wantOp:   "remove",
			wantPath: "chickens/f1/c1",
		},
		{
			name:     "missing flock id is rejected",
			verb:     Update,
			cmd:      commands.UpdateRequested{Entity: domain.EntityChickens, IDs: paths.IDs{ItemID: "c1"}, Data: chicken},
			wantType: events.EventTypeUpdateRejected,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			remote := testutil.NewFakeRemote(nil)
			w := New(tt.verb, remote, testutil.NewRecorder(), WithValidator(schema.MustNew()))

			ev := w.Execute(ctx, tt.cmd)
			if ev == nil {
				t.Fatal("Execute() = nil, want a result")
			}
			if ev.Type() != tt.wantType {
				t.Fatalf("Execute() = %s (%s), want %s", ev.Type(), events.ErrorMessage(ev), tt.wantType)
			}

			writes := remote.Writes()
			if tt.wantOp == "" {
				if len(writes) != 0 {
					t.Errorf("writes = %v, want none", writes)
				}
				return
			}
			if len(writes) != 1 || writes[0].Op != tt.wantOp || writes[0].Path != tt.wantPath {
				t.Errorf("writes = %v, want one %s %s", writes, tt.wantOp, tt.wantPath)
			}
		})
	}
}

func TestExecute_CreateReportsKey(t *testing.T) {
	remote := testutil.NewFakeRemote(nil)
	w := New(Create, remote, testutil.NewRecorder())

	ev := w.Execute(context.Background(), commands.CreateRequested{
		Entity: domain.EntityEggs,
		IDs:    paths.IDs{FlockID: "f1"},
		Data:   map[string]any{"chickenId": "c1", "date": "2024-03-01"},
	})

	created, ok := ev.(events.CreateFulfilled)
	if !ok {
		t.Fatalf("Execute() = %T, want CreateFulfilled", ev)
	}
	if created.Key == "" {
		t.Fatal("CreateFulfilled.Key is empty")
	}
	got, _ := remote.Get(context.Background(), "eggs/f1/"+created.Key)
	if got == nil {
		t.Errorf("pushed egg not found under key %s", created.Key)
	}
}

func TestExecute_SkipsUnsupported(t *testing.T) {
	remote := testutil.NewFakeRemote(nil)
	w := New(Create, remote, testutil.NewRecorder())

	for _, cmd := range []commands.Command{
		commands.CreateRequested{Entity: domain.EntityUserSettings, IDs: paths.IDs{UserID: "u1"}},
		commands.CreateRequested{Entity: domain.EntityUnknown},
		commands.UpdateRequested{Entity: domain.EntityFlocks, IDs: paths.IDs{FlockID: "f1"}},
	} {
		if ev := w.Execute(context.Background(), cmd); ev != nil {
			t.Errorf("Execute(%s) = %s, want nil", commands.String(cmd), ev.Type())
		}
	}
	if n := len(remote.Calls()); n != 0 {
		t.Errorf("remote calls = %d, want 0", n)
	}
}

func TestExecute_ValidationFailure(t *testing.T) {
	remote := testutil.NewFakeRemote(nil)
	w := New(Create, remote, testutil.NewRecorder(), WithValidator(schema.MustNew()))

	ev := w.Execute(context.Background(), commands.CreateRequested{
		Entity: domain.EntityChickens,
		IDs:    paths.IDs{FlockID: "f1"},
		Data:   map[string]any{"breed": "Silkie"},
	})

	rejected, ok := ev.(events.CreateRejected)
	if !ok {
		t.Fatalf("Execute() = %T, want CreateRejected", ev)
	}
	if !errors.Is(rejected.Err, domain.ErrInvalidPayload) {
		t.Errorf("rejected error = %v, want ErrInvalidPayload", rejected.Err)
	}
	if n := len(remote.Writes()); n != 0 {
		t.Errorf("writes = %d, want 0", n)
	}
}

func TestExecute_RemoteFailure(t *testing.T) {
	remote := testutil.NewFakeRemote(nil)
	remote.Fail("remove", errors.New("permission denied"))
	w := New(Remove, remote, testutil.NewRecorder())

	ev := w.Execute(context.Background(), commands.RemoveRequested{
		Entity: domain.EntityEggs,
		IDs:    paths.IDs{FlockID: "f1", ItemID: "e1"},
	})

	rejected, ok := ev.(events.RemoveRejected)
	if !ok {
		t.Fatalf("Execute() = %T, want RemoveRejected", ev)
	}
	var remoteErr *domain.RemoteError
	if !errors.As(rejected.Err, &remoteErr) || remoteErr.Path != "eggs/f1/e1" {
		t.Errorf("rejected error = %v, want RemoteError on eggs/f1/e1", rejected.Err)
	}
	if rejected.Entity != domain.EntityEggs {
		t.Errorf("rejected entity = %s, want eggs", rejected.Entity)
	}
}

func TestGroup_RunsWritesConcurrently(t *testing.T) {
	remote := testutil.NewFakeRemote(nil)
	rec := testutil.NewRecorder()
	g := NewGroup(remote, rec)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- g.Run(ctx) }()

	for i := 0; i < 5; i++ {
		_ = g.Submit(ctx, commands.CreateRequested{
			Entity: domain.EntityChickens,
			IDs:    paths.IDs{FlockID: "f1"},
			Data:   map[string]any{"name": "Hen"},
		})
	}
	_ = g.Submit(ctx, commands.SignOutRequested{})
	_ = g.Submit(ctx, commands.RemoveRequested{Entity: domain.EntityChickens, IDs: paths.IDs{FlockID: "f1", ItemID: "gone"}})

	rec.WaitFor(t, events.EventTypeCreateFulfilled, 5)
	rec.WaitFor(t, events.EventTypeRemoveFulfilled, 1)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("group did not stop")
	}

	keys := map[string]bool{}
	for _, e := range rec.Events() {
		if c, ok := e.(events.CreateFulfilled); ok {
			keys[c.Key] = true
		}
	}
	if len(keys) != 5 {
		t.Errorf("distinct push keys = %d, want 5", len(keys))
	}
}
