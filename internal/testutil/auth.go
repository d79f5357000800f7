package testutil

import (
	"context"
	"sync"

	"github.com/brianly1003/flocksync/internal/domain"
	"github.com/brianly1003/flocksync/internal/domain/ports"
	"github.com/brianly1003/flocksync/internal/mailbox"
)

// FakeAuth implements ports.AuthProvider with controllable results.
type FakeAuth struct {
	mu    sync.Mutex
	user  *domain.User
	subs  []*mailbox.Mailbox[ports.AuthState]
	calls []string

	// SignInFunc, when set, replaces the default sign-in behavior.
	SignInFunc func(ctx context.Context, email, password string) (*domain.User, error)
	// SignOutHook runs at the start of SignOut, before any state change.
	SignOutHook func()
	// ResetErr is returned by ResetPassword.
	ResetErr error
}

var _ ports.AuthProvider = (*FakeAuth)(nil)

// NewFakeAuth creates a provider with nobody signed in.
func NewFakeAuth() *FakeAuth {
	return &FakeAuth{}
}

// SetUser changes the signed-in user and notifies watchers.
func (f *FakeAuth) SetUser(u *domain.User) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.user = u
	for _, s := range f.subs {
		s.Post(ports.AuthState{User: u})
	}
}

// Calls returns the names of the provider methods called, in order.
func (f *FakeAuth) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *FakeAuth) record(name string) {
	f.mu.Lock()
	f.calls = append(f.calls, name)
	f.mu.Unlock()
}

// SignIn signs in as uid "uid-"+email unless SignInFunc is set.
func (f *FakeAuth) SignIn(ctx context.Context, email, password string) (*domain.User, error) {
	f.record("signIn")
	if f.SignInFunc != nil {
		u, err := f.SignInFunc(ctx, email, password)
		if err != nil {
			return nil, err
		}
		f.SetUser(u)
		return u, nil
	}
	if password == "" {
		return nil, domain.ErrInvalidCredentials
	}
	u := &domain.User{UID: "uid-" + email, Email: email}
	f.SetUser(u)
	return u, nil
}

// SignUp behaves like SignIn.
func (f *FakeAuth) SignUp(ctx context.Context, email, password string) (*domain.User, error) {
	f.record("signUp")
	if len(password) < 6 {
		return nil, domain.ErrWeakPassword
	}
	u := &domain.User{UID: "uid-" + email, Email: email}
	f.SetUser(u)
	return u, nil
}

// ResetPassword returns ResetErr.
func (f *FakeAuth) ResetPassword(ctx context.Context, email string) error {
	f.record("resetPassword")
	return f.ResetErr
}

// SignOut runs SignOutHook then clears the user.
func (f *FakeAuth) SignOut(ctx context.Context) error {
	if f.SignOutHook != nil {
		f.SignOutHook()
	}
	f.record("signOut")
	f.SetUser(nil)
	return nil
}

// WatchAuthState delivers the current user, then every change.
func (f *FakeAuth) WatchAuthState(ctx context.Context) (ports.AuthStateSubscription, error) {
	box := mailbox.New[ports.AuthState]()
	f.mu.Lock()
	f.subs = append(f.subs, box)
	box.Post(ports.AuthState{User: f.user})
	f.mu.Unlock()
	return authSub{box: box}, nil
}

type authSub struct {
	box *mailbox.Mailbox[ports.AuthState]
}

func (s authSub) States() <-chan ports.AuthState { return s.box.Out() }
func (s authSub) Close() error                   { return s.box.Close() }
