package authn

import (
	"context"
	"sync"

	"github.com/brianly1003/flocksync/internal/domain"
	"github.com/brianly1003/flocksync/internal/domain/ports"
	"github.com/brianly1003/flocksync/internal/mailbox"
)

// Credentials exchanges an email and password for a token. Service
// implements it in process; the websocket remote implements it over the wire.
type Credentials interface {
	SignIn(ctx context.Context, email, password string) (Token, error)
	SignUp(ctx context.Context, email, password string) (Token, error)
	ResetPassword(ctx context.Context, email string) error
	SignOut(ctx context.Context) error
}

// Session is the client-side auth provider. It holds the current token and
// reports every change of the signed-in user to its watchers.
type Session struct {
	creds Credentials

	mu       sync.Mutex
	token    *Token
	watchers map[*mailbox.Mailbox[ports.AuthState]]struct{}
}

var _ ports.AuthProvider = (*Session)(nil)

// NewSession creates a signed-out session.
func NewSession(creds Credentials) *Session {
	return &Session{
		creds:    creds,
		watchers: make(map[*mailbox.Mailbox[ports.AuthState]]struct{}),
	}
}

// Token returns the current token, if signed in.
func (s *Session) Token() (Token, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.token == nil {
		return Token{}, false
	}
	return *s.token, true
}

func (s *Session) SignIn(ctx context.Context, email, password string) (*domain.User, error) {
	tok, err := s.creds.SignIn(ctx, email, password)
	if err != nil {
		return nil, err
	}
	s.set(&tok)
	user := tok.User
	return &user, nil
}

func (s *Session) SignUp(ctx context.Context, email, password string) (*domain.User, error) {
	tok, err := s.creds.SignUp(ctx, email, password)
	if err != nil {
		return nil, err
	}
	s.set(&tok)
	user := tok.User
	return &user, nil
}

func (s *Session) ResetPassword(ctx context.Context, email string) error {
	return s.creds.ResetPassword(ctx, email)
}

// Restore adopts a token obtained outside the session, such as one resumed
// from disk, and reports the user to watchers.
func (s *Session) Restore(tok Token) {
	s.set(&tok)
}

// SignOut drops the token even when the remote call fails.
func (s *Session) SignOut(ctx context.Context) error {
	err := s.creds.SignOut(ctx)
	s.set(nil)
	return err
}

func (s *Session) WatchAuthState(ctx context.Context) (ports.AuthStateSubscription, error) {
	box := mailbox.New[ports.AuthState]()
	s.mu.Lock()
	s.watchers[box] = struct{}{}
	box.Post(ports.AuthState{User: s.userLocked()})
	s.mu.Unlock()
	return &authState{session: s, box: box}, nil
}

func (s *Session) set(tok *Token) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = tok
	user := s.userLocked()
	for box := range s.watchers {
		box.Post(ports.AuthState{User: user})
	}
}

func (s *Session) userLocked() *domain.User {
	if s.token == nil {
		return nil
	}
	user := s.token.User
	return &user
}

func (s *Session) unwatch(box *mailbox.Mailbox[ports.AuthState]) {
	s.mu.Lock()
	delete(s.watchers, box)
	s.mu.Unlock()
}

type authState struct {
	session *Session
	box     *mailbox.Mailbox[ports.AuthState]
}

func (a *authState) States() <-chan ports.AuthState { return a.box.Out() }

func (a *authState) Close() error {
	a.session.unwatch(a.box)
	return a.box.Close()
}
