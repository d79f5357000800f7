package authn

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/brianly1003/flocksync/internal/domain"
)

// UserRecord is a stored account.
type UserRecord struct {
	UID          string
	Email        string
	PasswordHash []byte
	CreatedAt    time.Time
}

// User returns the public part of the record.
func (r UserRecord) User() domain.User {
	return domain.User{UID: r.UID, Email: r.Email}
}

// UserStore persists accounts. Emails are compared case-insensitively.
type UserStore interface {
	// CreateUser stores rec. It fails with domain.ErrEmailInUse when the
	// email is already registered.
	CreateUser(ctx context.Context, rec UserRecord) error

	// UserByEmail returns the account for email or domain.ErrNotFound.
	UserByEmail(ctx context.Context, email string) (UserRecord, error)
}

// NormalizeEmail is the key accounts are stored under.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// MemoryUsers is an in-process UserStore.
type MemoryUsers struct {
	mu      sync.RWMutex
	byEmail map[string]UserRecord
}

// NewMemoryUsers creates an empty store.
func NewMemoryUsers() *MemoryUsers {
	return &MemoryUsers{byEmail: make(map[string]UserRecord)}
}

func (m *MemoryUsers) CreateUser(ctx context.Context, rec UserRecord) error {
	key := NormalizeEmail(rec.Email)
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byEmail[key]; ok {
		return domain.ErrEmailInUse
	}
	m.byEmail[key] = rec
	return nil
}

func (m *MemoryUsers) UserByEmail(ctx context.Context, email string) (UserRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.byEmail[NormalizeEmail(email)]
	if !ok {
		return UserRecord{}, domain.ErrNotFound
	}
	return rec, nil
}
