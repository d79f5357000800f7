package methods

import (
	"context"
	"encoding/json"

	"github.com/brianly1003/flocksync/internal/authn"
	"github.com/brianly1003/flocksync/internal/domain"
	"github.com/brianly1003/flocksync/internal/rpc/handler"
	"github.com/brianly1003/flocksync/internal/rpc/message"
	"github.com/rs/zerolog/log"
)

// Authenticator is the account service behind the auth methods.
type Authenticator interface {
	SignUp(ctx context.Context, email, password string) (authn.Token, error)
	SignIn(ctx context.Context, email, password string) (authn.Token, error)
	ResetPassword(ctx context.Context, email string) error
	SignOut(ctx context.Context) error
	Verify(token string) (domain.User, error)
}

// AuthService binds accounts to connections. A successful sign-in, sign-up
// or resume makes the connection act as that user until sign-out.
type AuthService struct {
	auth Authenticator
}

// NewAuthService creates the auth methods.
func NewAuthService(auth Authenticator) *AuthService {
	return &AuthService{auth: auth}
}

// RegisterMethods registers the auth methods.
func (s *AuthService) RegisterMethods(r *handler.Registry) {
	r.Register(message.MethodAuthSignUp, s.SignUp)
	r.Register(message.MethodAuthSignIn, s.SignIn)
	r.Register(message.MethodAuthResume, s.Resume)
	r.Register(message.MethodAuthResetPassword, s.ResetPassword)
	r.Register(message.MethodAuthSignOut, s.SignOut)
}

func (s *AuthService) SignUp(ctx context.Context, params json.RawMessage) (any, *message.Error) {
	var p message.CredentialsParams
	if err := message.DecodeParams(params, &p); err != nil {
		return nil, err
	}
	tok, err := s.auth.SignUp(ctx, p.Email, p.Password)
	if err != nil {
		return nil, message.FromError(err)
	}
	return bind(ctx, tok), nil
}

func (s *AuthService) SignIn(ctx context.Context, params json.RawMessage) (any, *message.Error) {
	var p message.CredentialsParams
	if err := message.DecodeParams(params, &p); err != nil {
		return nil, err
	}
	tok, err := s.auth.SignIn(ctx, p.Email, p.Password)
	if err != nil {
		return nil, message.FromError(err)
	}
	return bind(ctx, tok), nil
}

// Resume signs the connection in with a token from an earlier session.
func (s *AuthService) Resume(ctx context.Context, params json.RawMessage) (any, *message.Error) {
	var p message.TokenParams
	if err := message.DecodeParams(params, &p); err != nil {
		return nil, err
	}
	user, err := s.auth.Verify(p.Token)
	if err != nil {
		return nil, message.FromError(err)
	}
	if peer, ok := handler.PeerFrom(ctx); ok {
		peer.SetUser(&user)
	}
	return message.SessionResult{User: user}, nil
}

func (s *AuthService) ResetPassword(ctx context.Context, params json.RawMessage) (any, *message.Error) {
	var p message.EmailParams
	if err := message.DecodeParams(params, &p); err != nil {
		return nil, err
	}
	if err := s.auth.ResetPassword(ctx, p.Email); err != nil {
		return nil, message.FromError(err)
	}
	return nil, nil
}

func (s *AuthService) SignOut(ctx context.Context, params json.RawMessage) (any, *message.Error) {
	err := s.auth.SignOut(ctx)
	if peer, ok := handler.PeerFrom(ctx); ok {
		peer.SetUser(nil)
	}
	if err != nil {
		return nil, message.FromError(err)
	}
	return nil, nil
}

func bind(ctx context.Context, tok authn.Token) message.SessionResult {
	if peer, ok := handler.PeerFrom(ctx); ok {
		user := tok.User
		peer.SetUser(&user)
		log.Info().Str("peer", peer.ID()).Str("uid", user.UID).Msg("connection signed in")
	}
	return message.SessionResult{Token: tok.Token, User: tok.User, ExpiresAt: tok.ExpiresAt}
}
