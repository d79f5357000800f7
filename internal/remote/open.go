// Package remote picks a tree backend from a DSN.
package remote

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/brianly1003/flocksync/internal/domain/ports"
	"github.com/brianly1003/flocksync/internal/remote/memtree"
	"github.com/brianly1003/flocksync/internal/remote/sqltree"
	"github.com/brianly1003/flocksync/internal/remote/wsremote"
)

// Backend is a remote tree the core can sync against.
type Backend interface {
	ports.RemoteStore
	ports.MultiPathUpdater
	Close() error
}

// Open returns the backend named by dsn:
//
//	memory:                         in-process tree (also the empty DSN)
//	sqlite:///var/lib/flock.db      SQLite file
//	file:flock.db?_pragma=...       SQLite URI, passed through
//	postgres://user@host/db         PostgreSQL
//	ws://host:8787/ws               a flocksync server
func Open(ctx context.Context, dsn string) (Backend, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return memtree.New(), nil
	}
	scheme, rest, ok := strings.Cut(dsn, ":")
	if !ok {
		return nil, fmt.Errorf("remote dsn %q has no scheme", dsn)
	}

	switch strings.ToLower(scheme) {
	case "memory", "mem":
		return memtree.New(), nil
	case "sqlite":
		path := strings.TrimPrefix(rest, "//")
		if path == "" {
			return nil, fmt.Errorf("remote dsn %q has no path", dsn)
		}
		return sqltree.Open(ctx, sqltree.SQLite, path)
	case "file":
		return sqltree.Open(ctx, sqltree.SQLite, dsn)
	case "postgres", "postgresql":
		return sqltree.Open(ctx, sqltree.Postgres, dsn)
	case "ws", "wss":
		if _, err := url.Parse(dsn); err != nil {
			return nil, fmt.Errorf("remote dsn: %w", err)
		}
		return wsremote.Dial(ctx, dsn)
	default:
		return nil, fmt.Errorf("unsupported remote scheme: %s", scheme)
	}
}

// Redact hides the password in a DSN for logging.
func Redact(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil || u.User == nil {
		return dsn
	}
	if _, ok := u.User.Password(); ok {
		u.User = url.UserPassword(u.User.Username(), "xxxxx")
	}
	return u.String()
}
