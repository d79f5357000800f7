// Package authn implements email/password accounts for the tree server and
// the client-side auth provider the session watcher observes.
package authn

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/brianly1003/flocksync/internal/domain"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"
)

// MinPasswordLength is the shortest accepted password.
const MinPasswordLength = 6

// DefaultTokenTTL is used when Options.TokenTTL is zero.
const DefaultTokenTTL = 24 * time.Hour

// Token is an issued session token.
type Token struct {
	Token     string      `json:"token"`
	User      domain.User `json:"user"`
	ExpiresAt time.Time   `json:"expires_at"`
}

// Options configures a Service.
type Options struct {
	Secret   []byte
	Issuer   string
	TokenTTL time.Duration

	// Now defaults to time.Now.
	Now func() time.Time
	// Cost defaults to bcrypt.DefaultCost.
	Cost int
}

// Service signs users up and in and verifies the tokens it issues.
type Service struct {
	users UserStore
	opts  Options
}

// claims is the JWT payload. Subject carries the user ID.
type claims struct {
	jwt.RegisteredClaims
	Email string `json:"email"`
}

// NewService creates a Service backed by users.
func NewService(users UserStore, opts Options) (*Service, error) {
	if len(opts.Secret) == 0 {
		return nil, errors.New("authn: signing secret is required")
	}
	if opts.Issuer == "" {
		opts.Issuer = "flocksync"
	}
	if opts.TokenTTL <= 0 {
		opts.TokenTTL = DefaultTokenTTL
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Cost == 0 {
		opts.Cost = bcrypt.DefaultCost
	}
	return &Service{users: users, opts: opts}, nil
}

// SignUp creates an account and returns a token for it.
func (s *Service) SignUp(ctx context.Context, email, password string) (Token, error) {
	email = strings.TrimSpace(email)
	if !strings.Contains(email, "@") {
		return Token{}, domain.NewValidationError("email", "must be an email address")
	}
	if len(password) < MinPasswordLength {
		return Token{}, domain.ErrWeakPassword
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.opts.Cost)
	if err != nil {
		return Token{}, fmt.Errorf("hash password: %w", err)
	}
	rec := UserRecord{
		UID:          uuid.NewString(),
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    s.opts.Now().UTC(),
	}
	if err := s.users.CreateUser(ctx, rec); err != nil {
		return Token{}, err
	}
	log.Info().Str("user_id", rec.UID).Msg("account created")
	return s.issue(rec.User())
}

// SignIn checks the password and returns a token. Unknown emails and wrong
// passwords fail the same way.
func (s *Service) SignIn(ctx context.Context, email, password string) (Token, error) {
	rec, err := s.users.UserByEmail(ctx, email)
	if errors.Is(err, domain.ErrNotFound) {
		return Token{}, domain.ErrInvalidCredentials
	}
	if err != nil {
		return Token{}, err
	}
	if bcrypt.CompareHashAndPassword(rec.PasswordHash, []byte(password)) != nil {
		return Token{}, domain.ErrInvalidCredentials
	}
	return s.issue(rec.User())
}

// ResetPassword accepts a reset request for a registered email. Delivery of
// the reset link is outside this service.
func (s *Service) ResetPassword(ctx context.Context, email string) error {
	rec, err := s.users.UserByEmail(ctx, email)
	if err != nil {
		return err
	}
	log.Info().Str("user_id", rec.UID).Msg("password reset requested")
	return nil
}

// SignOut is a no-op; tokens are stateless and expire on their own.
func (s *Service) SignOut(ctx context.Context) error {
	return nil
}

// Verify parses a token issued by this service.
func (s *Service) Verify(token string) (domain.User, error) {
	var c claims
	_, err := jwt.ParseWithClaims(token, &c, func(*jwt.Token) (any, error) {
		return s.opts.Secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.opts.Issuer),
		jwt.WithTimeFunc(s.opts.Now),
	)
	if err != nil {
		return domain.User{}, fmt.Errorf("%w: %v", domain.ErrNotAuthenticated, err)
	}
	if c.Subject == "" {
		return domain.User{}, fmt.Errorf("%w: token has no subject", domain.ErrNotAuthenticated)
	}
	return domain.User{UID: c.Subject, Email: c.Email}, nil
}

func (s *Service) issue(user domain.User) (Token, error) {
	now := s.opts.Now()
	expires := now.Add(s.opts.TokenTTL)
	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.opts.Issuer,
			Subject:   user.UID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
			ID:        uuid.NewString(),
		},
		Email: user.Email,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(s.opts.Secret)
	if err != nil {
		return Token{}, fmt.Errorf("sign token: %w", err)
	}
	return Token{Token: signed, User: user, ExpiresAt: expires}, nil
}
