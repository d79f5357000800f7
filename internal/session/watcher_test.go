package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/brianly1003/flocksync/internal/domain"
	"github.com/brianly1003/flocksync/internal/domain/commands"
	"github.com/brianly1003/flocksync/internal/domain/events"
	"github.com/brianly1003/flocksync/internal/hub"
	"github.com/brianly1003/flocksync/internal/listener"
	"github.com/brianly1003/flocksync/internal/testutil"
)

type fixture struct {
	remote *testutil.FakeRemote
	auth   *testutil.FakeAuth
	rec    *testutil.Recorder
	set    *listener.Set
	w      *Watcher
}

func newFixture(t *testing.T, user *domain.User, configure func(*testutil.FakeAuth)) *fixture {
	t.Helper()
	f := &fixture{
		remote: testutil.NewFakeRemote(map[string]any{
			"userSettings": map[string]any{
				"u1": map[string]any{"currentFlockId": "f1", "flocks": map[string]any{"f1": true}},
				"u2": map[string]any{"flocks": map[string]any{"f2": true}},
			},
			"chickens": map[string]any{"f1": map[string]any{"c1": map[string]any{"name": "Henrietta"}}},
		}),
		auth: testutil.NewFakeAuth(),
		rec:  testutil.NewRecorder(),
	}
	if configure != nil {
		configure(f.auth)
	}
	f.auth.SetUser(user)
	f.set = listener.NewSet(listener.NewAdapterFactory(f.remote, f.rec), f.rec)
	f.w = New(f.auth, f.set, f.rec)

	ctx, cancel := context.WithCancel(context.Background())
	setDone := make(chan error, 1)
	watcherDone := make(chan error, 1)
	go func() { setDone <- f.set.Run(ctx) }()
	go func() { watcherDone <- f.w.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		for _, done := range []chan error{watcherDone, setDone} {
			select {
			case <-done:
			case <-time.After(2 * time.Second):
				t.Error("component did not stop")
			}
		}
	})
	return f
}

func (f *fixture) waitStatus(t *testing.T, status domain.AuthStatus) {
	t.Helper()
	testutil.Eventually(t, func() bool { return f.w.Session().Status == status }, "session status %s", status)
}

func TestWatcher_LoginStartsSettingsListener(t *testing.T) {
	f := newFixture(t, &domain.User{UID: "u1", Email: "a@example.com"}, nil)

	f.rec.WaitFor(t, events.EventTypeListenFulfilled, 1)
	evs := f.rec.Events()
	changed, ok := evs[0].(events.SessionChanged)
	if !ok || changed.Session.Status != domain.AuthLoggedIn || changed.Session.User.UID != "u1" {
		t.Fatalf("first event = %#v, want SessionChanged(loggedIn u1)", evs[0])
	}

	fulfilled := f.rec.Last(events.EventTypeListenFulfilled).(events.ListenFulfilled)
	if fulfilled.Entity != domain.EntityUserSettings || fulfilled.Ref != "userSettings/u1" {
		t.Errorf("listener = %s %s, want userSettings/u1", fulfilled.Entity, fulfilled.Ref)
	}
	if fulfilled.Data["currentFlockId"] != "f1" {
		t.Errorf("snapshot = %v", fulfilled.Data)
	}
}

func TestWatcher_InitialLoggedOut(t *testing.T) {
	f := newFixture(t, nil, nil)

	f.rec.WaitFor(t, events.EventTypeCacheCleared, 1)
	f.waitStatus(t, domain.AuthLoggedOut)

	got := f.rec.Types()
	if got[0] != events.EventTypeSessionChanged {
		t.Errorf("first event = %s, want session_changed", got[0])
	}
	if n := f.rec.Count(events.EventTypeListenRemoved); n != 0 {
		t.Errorf("listen_removed = %d with no listeners, want 0", n)
	}
}

func TestWatcher_SignOutClearsBeforeRemoteCall(t *testing.T) {
	var atSignOut []events.Event
	var rec *testutil.Recorder
	f := newFixture(t, &domain.User{UID: "u1"}, func(a *testutil.FakeAuth) {
		a.SignOutHook = func() { atSignOut = rec.Events() }
	})
	rec = f.rec
	ctx := context.Background()

	f.rec.WaitFor(t, events.EventTypeListenFulfilled, 1)
	_ = f.set.Listen(ctx, domain.EntityChickens, "chickens/f1")
	f.rec.WaitFor(t, events.EventTypeListenFulfilled, 2)

	if err := f.w.Submit(ctx, commands.SignOutRequested{}); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	f.rec.WaitFor(t, events.EventTypeAuthActionFulfilled, 1)
	f.waitStatus(t, domain.AuthLoggedOut)

	removed := map[domain.EntityType]bool{}
	cleared := false
	for _, e := range atSignOut {
		switch ev := e.(type) {
		case events.ListenRemoved:
			if !ev.ClearData {
				t.Errorf("ListenRemoved{%s}.ClearData = false", ev.Entity)
			}
			removed[ev.Entity] = true
		case events.CacheCleared:
			cleared = true
		}
	}
	if !removed[domain.EntityUserSettings] || !removed[domain.EntityChickens] {
		t.Errorf("listeners removed before sign out = %v, want userSettings and chickens", removed)
	}
	if !cleared {
		t.Error("cache not cleared before sign out")
	}

	calls := f.auth.Calls()
	if len(calls) != 1 || calls[0] != "signOut" {
		t.Errorf("provider calls = %v, want [signOut]", calls)
	}
	result := f.rec.Last(events.EventTypeAuthActionFulfilled).(events.AuthActionFulfilled)
	if result.Kind != domain.AuthSignOut {
		t.Errorf("result kind = %s, want signOut", result.Kind)
	}
}

func TestWatcher_SignInLatestWins(t *testing.T) {
	started := make(chan struct{}, 1)
	f := newFixture(t, nil, func(a *testutil.FakeAuth) {
		a.SignInFunc = func(ctx context.Context, email, password string) (*domain.User, error) {
			if email == "slow@example.com" {
				started <- struct{}{}
				<-ctx.Done()
				return nil, ctx.Err()
			}
			return &domain.User{UID: "u2", Email: email}, nil
		}
	})
	ctx := context.Background()
	f.rec.WaitFor(t, events.EventTypeCacheCleared, 1)

	_ = f.w.Submit(ctx, commands.SignInRequested{Email: "slow@example.com", Password: "secret"})
	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("first sign in never started")
	}
	_ = f.w.Submit(ctx, commands.SignInRequested{Email: "fast@example.com", Password: "secret"})

	f.rec.WaitFor(t, events.EventTypeAuthActionFulfilled, 1)
	f.waitStatus(t, domain.AuthLoggedIn)
	testutil.Never(t, func() bool { return f.rec.Count(events.EventTypeAuthActionRejected) > 0 }, 50*time.Millisecond,
		"superseded sign in reported a result")

	if s := f.w.Session(); s.User == nil || s.User.UID != "u2" {
		t.Errorf("session = %+v, want u2", s)
	}
}

func TestWatcher_AuthActionResults(t *testing.T) {
	tests := []struct {
		name     string
		cmd      commands.Command
		resetErr error
		wantType events.EventType
		wantKind domain.AuthKind
		wantErr  error
	}{
		{"sign up weak password", commands.SignUpRequested{Email: "a@example.com", Password: "123"}, nil,
			events.EventTypeAuthActionRejected, domain.AuthSignUp, domain.ErrWeakPassword},
		{"sign in without password", commands.SignInRequested{Email: "a@example.com"}, nil,
			events.EventTypeAuthActionRejected, domain.AuthSignIn, domain.ErrInvalidCredentials},
		{"reset password", commands.ResetPasswordRequested{Email: "a@example.com"}, nil,
			events.EventTypeAuthActionFulfilled, domain.AuthResetPassword, nil},
		{"reset password unknown email", commands.ResetPasswordRequested{Email: "x@example.com"}, domain.ErrNotFound,
			events.EventTypeAuthActionRejected, domain.AuthResetPassword, domain.ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil, func(a *testutil.FakeAuth) { a.ResetErr = tt.resetErr })
			f.rec.WaitFor(t, events.EventTypeCacheCleared, 1)

			_ = f.w.Submit(context.Background(), tt.cmd)
			f.rec.WaitFor(t, tt.wantType, 1)

			switch ev := f.rec.Last(tt.wantType).(type) {
			case events.AuthActionFulfilled:
				if ev.Kind != tt.wantKind {
					t.Errorf("Kind = %s, want %s", ev.Kind, tt.wantKind)
				}
			case events.AuthActionRejected:
				if ev.Kind != tt.wantKind {
					t.Errorf("Kind = %s, want %s", ev.Kind, tt.wantKind)
				}
				if !errors.Is(ev.Err, tt.wantErr) {
					t.Errorf("Err = %v, want %v", ev.Err, tt.wantErr)
				}
			}
		})
	}
}

func TestWatcher_AccountSwitch(t *testing.T) {
	f := newFixture(t, &domain.User{UID: "u1"}, nil)
	f.rec.WaitFor(t, events.EventTypeListenFulfilled, 1)

	f.auth.SetUser(&domain.User{UID: "u2"})
	f.rec.WaitFor(t, events.EventTypeListenFulfilled, 2)

	last := f.rec.Last(events.EventTypeListenFulfilled).(events.ListenFulfilled)
	if last.Ref != "userSettings/u2" {
		t.Errorf("listener ref = %s, want userSettings/u2", last.Ref)
	}
	if f.rec.Count(events.EventTypeCacheCleared) != 1 {
		t.Errorf("cache_cleared = %d, want 1", f.rec.Count(events.EventTypeCacheCleared))
	}
	if s := f.w.Session(); s.User == nil || s.User.UID != "u2" {
		t.Errorf("session = %+v, want u2", s)
	}
}

func TestWatcher_IgnoresOtherCommands(t *testing.T) {
	w := New(testutil.NewFakeAuth(), nil, testutil.NewRecorder())
	if err := w.Submit(context.Background(), commands.ClearAuthError{}); err != nil {
		t.Errorf("Submit() error = %v", err)
	}
	if len(w.inbox) != 0 {
		t.Error("non-auth command queued")
	}
}

// slowSubscriber delays every delivery so hub queueing is observable.
type slowSubscriber struct {
	*testutil.MockSubscriber
	delay time.Duration
}

func (s *slowSubscriber) Send(e events.Event) error {
	time.Sleep(s.delay)
	return s.MockSubscriber.Send(e)
}

func TestWatcher_SignOutWaitsForHubDelivery(t *testing.T) {
	h := hub.New()
	if err := h.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer func() { _ = h.Stop() }()
	sub := &slowSubscriber{MockSubscriber: testutil.NewMockSubscriber("slow"), delay: 5 * time.Millisecond}
	h.Subscribe(sub)

	remote := testutil.NewFakeRemote(map[string]any{
		"userSettings": map[string]any{"u1": map[string]any{"currentFlockId": "f1"}},
	})
	auth := testutil.NewFakeAuth()
	var atSignOut []events.Event
	auth.SignOutHook = func() { atSignOut = sub.Events() }
	auth.SetUser(&domain.User{UID: "u1"})

	set := listener.NewSet(listener.NewAdapterFactory(remote, h), h)
	w := New(auth, set, h)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = set.Run(ctx) }()
	go func() { _ = w.Run(ctx) }()

	hasType := func(evs []events.Event, typ events.EventType) bool {
		for _, e := range evs {
			if e.Type() == typ {
				return true
			}
		}
		return false
	}
	testutil.Eventually(t, func() bool {
		return hasType(sub.Events(), events.EventTypeListenFulfilled)
	}, "settings listener never fulfilled")

	if err := w.Submit(ctx, commands.SignOutRequested{}); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	testutil.Eventually(t, func() bool {
		return hasType(sub.Events(), events.EventTypeAuthActionFulfilled)
	}, "sign out never fulfilled")

	if !hasType(atSignOut, events.EventTypeListenRemoved) {
		t.Error("listen_removed not delivered before remote sign out")
	}
	if !hasType(atSignOut, events.EventTypeCacheCleared) {
		t.Error("cache_cleared not delivered before remote sign out")
	}
}
