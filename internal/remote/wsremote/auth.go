package wsremote

import (
	"context"

	"github.com/brianly1003/flocksync/internal/authn"
	"github.com/brianly1003/flocksync/internal/rpc/message"
)

// SignIn signs the connection in. Later tree calls act as that user.
func (s *Store) SignIn(ctx context.Context, email, password string) (authn.Token, error) {
	return s.session(ctx, message.MethodAuthSignIn, message.CredentialsParams{Email: email, Password: password})
}

// SignUp creates an account and signs the connection in.
func (s *Store) SignUp(ctx context.Context, email, password string) (authn.Token, error) {
	return s.session(ctx, message.MethodAuthSignUp, message.CredentialsParams{Email: email, Password: password})
}

// Resume signs the connection in with a token from an earlier session.
func (s *Store) Resume(ctx context.Context, token string) (authn.Token, error) {
	tok, err := s.session(ctx, message.MethodAuthResume, message.TokenParams{Token: token})
	if err != nil {
		return authn.Token{}, err
	}
	tok.Token = token
	return tok, nil
}

func (s *Store) ResetPassword(ctx context.Context, email string) error {
	return s.client.Call(ctx, message.MethodAuthResetPassword, message.EmailParams{Email: email}, nil)
}

func (s *Store) SignOut(ctx context.Context) error {
	return s.client.Call(ctx, message.MethodAuthSignOut, nil, nil)
}

// Errors come back as *message.Error, which unwraps to the matching
// domain error.
func (s *Store) session(ctx context.Context, method string, params any) (authn.Token, error) {
	var res message.SessionResult
	if err := s.client.Call(ctx, method, params, &res); err != nil {
		return authn.Token{}, err
	}
	return authn.Token{Token: res.Token, User: res.User, ExpiresAt: res.ExpiresAt}, nil
}
