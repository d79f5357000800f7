package ports

import (
	"context"

	"github.com/brianly1003/flocksync/internal/domain"
)

// Subscription delivers child notifications for one remote path.
type Subscription interface {
	// Events returns the ordered notification stream. It is closed when the
	// subscription is closed or the backend goes away.
	Events() <-chan domain.ChildEvent

	// Close releases the subscription. It is safe to call more than once.
	Close() error
}

// RemoteStore is the tree-structured realtime store the core synchronizes
// against. Values are plain JSON values: map[string]any, []any, string,
// float64, bool or nil. Writing nil deletes.
type RemoteStore interface {
	// Get reads the value at path. A missing path yields (nil, nil).
	Get(ctx context.Context, path string) (any, error)

	// Set overwrites the value at path.
	Set(ctx context.Context, path string, value any) error

	// Push writes value under a new generated child key and returns the key.
	Push(ctx context.Context, path string, value any) (string, error)

	// Remove deletes the value at path.
	Remove(ctx context.Context, path string) error

	// QueryEqual returns the children of path whose value at child equals value.
	QueryEqual(ctx context.Context, path, child string, value any) (map[string]any, error)

	// Subscribe starts delivering child notifications for path. Notifications
	// for writes that complete after Subscribe returns are never missed.
	Subscribe(ctx context.Context, path string) (Subscription, error)
}

// MultiPathUpdater is implemented by stores that can apply several writes
// relative to path as one operation. Keys are relative paths; nil values delete.
type MultiPathUpdater interface {
	Update(ctx context.Context, path string, values map[string]any) error
}

// AuthState is one observation of the provider's signed-in user.
type AuthState struct {
	User *domain.User
}

// AuthStateSubscription delivers auth state observations.
type AuthStateSubscription interface {
	States() <-chan AuthState
	Close() error
}

// AuthProvider signs users in and out and reports auth state changes.
type AuthProvider interface {
	SignIn(ctx context.Context, email, password string) (*domain.User, error)
	SignUp(ctx context.Context, email, password string) (*domain.User, error)
	ResetPassword(ctx context.Context, email string) error
	SignOut(ctx context.Context) error

	// WatchAuthState delivers the current state immediately, then every change.
	WatchAuthState(ctx context.Context) (AuthStateSubscription, error)
}
