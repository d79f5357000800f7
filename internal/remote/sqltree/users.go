package sqltree

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/brianly1003/flocksync/internal/authn"
	"github.com/brianly1003/flocksync/internal/domain"
)

// CreateUser stores rec, keyed by its normalized email.
func (s *Store) CreateUser(ctx context.Context, rec authn.UserRecord) error {
	res, err := s.db.ExecContext(ctx,
		s.rebind(`INSERT INTO users (email, uid, display_email, password_hash, created_at)
			VALUES (?, ?, ?, ?, ?) ON CONFLICT (email) DO NOTHING`),
		authn.NormalizeEmail(rec.Email), rec.UID, rec.Email, string(rec.PasswordHash), rec.CreatedAt.UnixMilli())
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrEmailInUse
	}
	return nil
}

// UserByEmail looks an account up by email, ignoring case.
func (s *Store) UserByEmail(ctx context.Context, email string) (authn.UserRecord, error) {
	var (
		rec     authn.UserRecord
		hash    string
		created int64
	)
	row := s.db.QueryRowContext(ctx,
		s.rebind("SELECT uid, display_email, password_hash, created_at FROM users WHERE email = ?"),
		authn.NormalizeEmail(email))
	if err := row.Scan(&rec.UID, &rec.Email, &hash, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return authn.UserRecord{}, domain.ErrNotFound
		}
		return authn.UserRecord{}, err
	}
	rec.PasswordHash = []byte(hash)
	rec.CreatedAt = time.UnixMilli(created).UTC()
	return rec, nil
}
