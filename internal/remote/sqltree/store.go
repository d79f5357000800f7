// Package sqltree is a remote tree persisted in SQL. Leaves are stored as
// JSON text keyed by their full path, so a subtree is a range scan.
//
// SQLite (modernc.org/sqlite) and PostgreSQL (lib/pq) are supported. The
// store also keeps the server's user accounts.
package sqltree

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/brianly1003/flocksync/internal/authn"
	"github.com/brianly1003/flocksync/internal/domain"
	"github.com/brianly1003/flocksync/internal/domain/ports"
	"github.com/brianly1003/flocksync/internal/tree"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

// Dialect selects the SQL flavour.
type Dialect int

const (
	SQLite Dialect = iota
	Postgres
)

func (d Dialect) String() string {
	if d == Postgres {
		return "postgres"
	}
	return "sqlite"
}

func (d Dialect) driver() string {
	if d == Postgres {
		return "postgres"
	}
	return "sqlite"
}

// schemaVersion is bumped when the table layout changes.
const schemaVersion = 1

// Store is a SQL-backed RemoteStore. Writes are serialized in process and
// notifications are published after commit, in write order. Other processes
// writing to the same database are not observed by subscriptions.
type Store struct {
	db      *sql.DB
	dialect Dialect

	mu     sync.Mutex
	broker *tree.Broker
}

var (
	_ ports.RemoteStore      = (*Store)(nil)
	_ ports.MultiPathUpdater = (*Store)(nil)
	_ authn.UserStore        = (*Store)(nil)
)

// Open connects to the database and creates the tables if needed. For
// SQLite, dsn is a file path or a file: URI.
func Open(ctx context.Context, dialect Dialect, dsn string) (*Store, error) {
	db, err := sql.Open(dialect.driver(), dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dialect, err)
	}
	if dialect == SQLite {
		// One connection keeps SQLite writers from tripping over each other.
		db.SetMaxOpenConns(1)
	}
	s, err := New(ctx, db, dialect)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an open database.
func New(ctx context.Context, db *sql.DB, dialect Dialect) (*Store, error) {
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping %s: %w", dialect, err)
	}
	s := &Store{db: db, dialect: dialect, broker: tree.NewBroker()}
	if err := s.createSchema(ctx); err != nil {
		return nil, fmt.Errorf("create schema: %w", err)
	}
	log.Info().Str("dialect", dialect.String()).Msg("sql tree ready")
	return s, nil
}

func (s *Store) createSchema(ctx context.Context) error {
	if s.dialect == SQLite {
		if _, err := s.db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
			return err
		}
	}

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS metadata (key TEXT PRIMARY KEY, value TEXT NOT NULL)`,
		// Paths compare bytewise so that subtree range scans are exact.
		`CREATE TABLE IF NOT EXISTS tree_nodes (path TEXT ` + s.collate() + ` PRIMARY KEY, value TEXT NOT NULL)`,
		`CREATE TABLE IF NOT EXISTS users (
			email TEXT PRIMARY KEY,
			uid TEXT NOT NULL UNIQUE,
			display_email TEXT NOT NULL,
			password_hash TEXT NOT NULL,
			created_at ` + s.bigint() + ` NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}

	var current int
	row := s.db.QueryRowContext(ctx, s.rebind("SELECT value FROM metadata WHERE key = ?"), "schema_version")
	if err := row.Scan(&current); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return err
	}
	if current > schemaVersion {
		return fmt.Errorf("database schema version %d is newer than %d", current, schemaVersion)
	}
	if current == schemaVersion {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		s.rebind("INSERT INTO metadata (key, value) VALUES (?, ?) ON CONFLICT (key) DO UPDATE SET value = excluded.value"),
		"schema_version", fmt.Sprint(schemaVersion))
	return err
}

func (s *Store) collate() string {
	if s.dialect == Postgres {
		return `COLLATE "C"`
	}
	return ""
}

func (s *Store) bigint() string {
	if s.dialect == Postgres {
		return "BIGINT"
	}
	return "INTEGER"
}

// rebind rewrites ? placeholders to $n for PostgreSQL.
func (s *Store) rebind(query string) string {
	if s.dialect != Postgres {
		return query
	}
	return rebindDollar(query)
}

func rebindDollar(query string) string {
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Get reads the value at path.
func (s *Store) Get(ctx context.Context, path string) (any, error) {
	v, err := s.read(ctx, s.db, tree.Clean(path))
	if err != nil {
		return nil, domain.NewRemoteError("get", path, err)
	}
	return v, nil
}

// Set overwrites the value at path.
func (s *Store) Set(ctx context.Context, path string, value any) error {
	v, err := tree.Normalize(value)
	if err != nil {
		return domain.NewRemoteError("set", path, err)
	}
	if err := s.apply(ctx, map[string]any{tree.Clean(path): v}); err != nil {
		return domain.NewRemoteError("set", path, err)
	}
	return nil
}

// Push stores value under a new push key.
func (s *Store) Push(ctx context.Context, path string, value any) (string, error) {
	v, err := tree.Normalize(value)
	if err != nil {
		return "", domain.NewRemoteError("push", path, err)
	}
	key := tree.NewPushKey()
	if err := s.apply(ctx, map[string]any{tree.Child(path, key): v}); err != nil {
		return "", domain.NewRemoteError("push", path, err)
	}
	return key, nil
}

// Remove deletes the value at path.
func (s *Store) Remove(ctx context.Context, path string) error {
	if err := s.apply(ctx, map[string]any{tree.Clean(path): nil}); err != nil {
		return domain.NewRemoteError("remove", path, err)
	}
	return nil
}

// Update applies every relative write in values in one transaction.
func (s *Store) Update(ctx context.Context, path string, values map[string]any) error {
	writes := make(map[string]any, len(values))
	for rel, value := range values {
		v, err := tree.Normalize(value)
		if err != nil {
			return domain.NewRemoteError("update", tree.Child(path, rel), err)
		}
		writes[tree.Child(path, rel)] = v
	}
	if err := s.apply(ctx, writes); err != nil {
		return domain.NewRemoteError("update", path, err)
	}
	return nil
}

// QueryEqual returns the children of path whose value at child equals value.
func (s *Store) QueryEqual(ctx context.Context, path, child string, value any) (map[string]any, error) {
	node, err := s.read(ctx, s.db, tree.Clean(path))
	if err != nil {
		return nil, domain.NewRemoteError("query", path, err)
	}
	out, err := tree.FilterEqual(node, child, value)
	if err != nil {
		return nil, domain.NewRemoteError("query", path, err)
	}
	return out, nil
}

// Subscribe starts delivering child notifications for path.
func (s *Store) Subscribe(ctx context.Context, path string) (ports.Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, domain.NewRemoteError("subscribe", path, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.broker.Subscribe(path), nil
}

// Subscriptions returns the number of open subscriptions.
func (s *Store) Subscriptions() int {
	return s.broker.Count()
}

// Close ends every subscription and closes the database.
func (s *Store) Close() error {
	s.broker.CloseAll()
	return s.db.Close()
}

func (s *Store) apply(ctx context.Context, writes map[string]any) error {
	paths := make([]string, 0, len(writes))
	for p := range writes {
		paths = append(paths, p)
	}
	// Parents before children, as in memtree.
	sort.Slice(paths, func(i, j int) bool {
		if len(paths[i]) != len(paths[j]) {
			return len(paths[i]) < len(paths[j])
		}
		return paths[i] < paths[j]
	})

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	watched := s.broker.Watched(paths...)
	before, err := s.snapshot(ctx, tx, watched)
	if err != nil {
		return err
	}
	for _, p := range paths {
		if err := s.write(ctx, tx, p, writes[p]); err != nil {
			return fmt.Errorf("write %s: %w", p, err)
		}
	}
	after, err := s.snapshot(ctx, tx, watched)
	if err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	s.broker.Publish(before, after)

	log.Trace().Strs("paths", paths).Int("watched", len(watched)).Msg("sql tree write committed")
	return nil
}

func (s *Store) snapshot(ctx context.Context, q querier, watched []string) (map[string]map[string]any, error) {
	out := make(map[string]map[string]any, len(watched))
	for _, p := range watched {
		node, err := s.read(ctx, q, p)
		if err != nil {
			return nil, err
		}
		out[p] = tree.Children(node)
	}
	return out, nil
}
