package authn

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/brianly1003/flocksync/internal/domain"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

func newService(t *testing.T, now func() time.Time) *Service {
	t.Helper()
	svc, err := NewService(NewMemoryUsers(), Options{
		Secret: []byte("test-secret"),
		Issuer: "flocksync-test",
		Now:    now,
		Cost:   bcrypt.MinCost,
	})
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}
	return svc
}

func TestNewService_RequiresSecret(t *testing.T) {
	if _, err := NewService(NewMemoryUsers(), Options{}); err == nil {
		t.Error("NewService() without secret should fail")
	}
}

func TestService_SignUpThenSignIn(t *testing.T) {
	svc := newService(t, nil)
	ctx := context.Background()

	up, err := svc.SignUp(ctx, "hen@example.com", "cluckcluck")
	if err != nil {
		t.Fatalf("SignUp() error = %v", err)
	}
	if up.User.UID == "" || up.User.Email != "hen@example.com" {
		t.Errorf("SignUp() user = %+v", up.User)
	}

	in, err := svc.SignIn(ctx, "HEN@example.com", "cluckcluck")
	if err != nil {
		t.Fatalf("SignIn() error = %v", err)
	}
	if in.User.UID != up.User.UID {
		t.Errorf("SignIn() uid = %s, want %s", in.User.UID, up.User.UID)
	}

	user, err := svc.Verify(in.Token)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if user != up.User {
		t.Errorf("Verify() = %+v, want %+v", user, up.User)
	}
}

func TestService_SignUpErrors(t *testing.T) {
	svc := newService(t, nil)
	ctx := context.Background()
	if _, err := svc.SignUp(ctx, "taken@example.com", "password"); err != nil {
		t.Fatalf("SignUp() error = %v", err)
	}

	tests := []struct {
		name     string
		email    string
		password string
		want     error
	}{
		{"weak password", "new@example.com", "12345", domain.ErrWeakPassword},
		{"email in use", "Taken@example.com", "password", domain.ErrEmailInUse},
		{"not an email", "hen", "password", domain.ErrInvalidPayload},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.SignUp(ctx, tt.email, tt.password)
			if !errors.Is(err, tt.want) {
				t.Errorf("SignUp() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestService_SignInErrors(t *testing.T) {
	svc := newService(t, nil)
	ctx := context.Background()
	if _, err := svc.SignUp(ctx, "hen@example.com", "password"); err != nil {
		t.Fatalf("SignUp() error = %v", err)
	}

	for _, tt := range []struct{ name, email, password string }{
		{"wrong password", "hen@example.com", "nope"},
		{"unknown email", "rooster@example.com", "password"},
	} {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.SignIn(ctx, tt.email, tt.password); !errors.Is(err, domain.ErrInvalidCredentials) {
				t.Errorf("SignIn() error = %v, want ErrInvalidCredentials", err)
			}
		})
	}
}

func TestService_ResetPassword(t *testing.T) {
	svc := newService(t, nil)
	ctx := context.Background()
	if _, err := svc.SignUp(ctx, "hen@example.com", "password"); err != nil {
		t.Fatalf("SignUp() error = %v", err)
	}
	if err := svc.ResetPassword(ctx, "hen@example.com"); err != nil {
		t.Errorf("ResetPassword() error = %v", err)
	}
	if err := svc.ResetPassword(ctx, "nobody@example.com"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("ResetPassword(unknown) error = %v, want ErrNotFound", err)
	}
}

func TestService_VerifyRejects(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	svc := newService(t, clock)
	tok, err := svc.SignUp(context.Background(), "hen@example.com", "password")
	if err != nil {
		t.Fatalf("SignUp() error = %v", err)
	}

	other, _ := NewService(NewMemoryUsers(), Options{Secret: []byte("other"), Issuer: "flocksync-test", Now: clock})
	none := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{Subject: "u1", Issuer: "flocksync-test"})
	unsigned, _ := none.SignedString(jwt.UnsafeAllowNoneSignatureType)

	tests := []struct {
		name  string
		svc   *Service
		token string
	}{
		{"garbage", svc, "not-a-token"},
		{"wrong secret", other, tok.Token},
		{"alg none", svc, unsigned},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.svc.Verify(tt.token); !errors.Is(err, domain.ErrNotAuthenticated) {
				t.Errorf("Verify() error = %v, want ErrNotAuthenticated", err)
			}
		})
	}

	t.Run("expired", func(t *testing.T) {
		later := newService(t, func() time.Time { return now.Add(DefaultTokenTTL + time.Minute) })
		if _, err := later.Verify(tok.Token); !errors.Is(err, domain.ErrNotAuthenticated) {
			t.Errorf("Verify() error = %v, want ErrNotAuthenticated", err)
		}
	})
}
