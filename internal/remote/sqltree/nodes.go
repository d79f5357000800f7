package sqltree

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/brianly1003/flocksync/internal/tree"
)

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// subtreeBounds returns the half-open key range holding everything strictly
// beneath path. '0' is the byte after '/'.
func subtreeBounds(path string) (lo, hi string) {
	return path + "/", path + "0"
}

// ancestors returns every proper ancestor of path, the root included.
func ancestors(path string) []string {
	segs := tree.Split(path)
	out := make([]string, 0, len(segs))
	out = append(out, "")
	for i := 1; i < len(segs); i++ {
		out = append(out, strings.Join(segs[:i], "/"))
	}
	return out
}

// read assembles the value at path from its leaf rows.
func (s *Store) read(ctx context.Context, q querier, path string) (any, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if path == "" {
		rows, err = q.QueryContext(ctx, "SELECT path, value FROM tree_nodes ORDER BY path")
	} else {
		lo, hi := subtreeBounds(path)
		rows, err = q.QueryContext(ctx,
			s.rebind("SELECT path, value FROM tree_nodes WHERE path = ? OR (path >= ? AND path < ?) ORDER BY path"),
			path, lo, hi)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	depth := len(tree.Split(path))
	var root any
	for rows.Next() {
		var p, raw string
		if err := rows.Scan(&p, &raw); err != nil {
			return nil, err
		}
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			return nil, fmt.Errorf("decode %s: %w", p, err)
		}
		root = insert(root, tree.Split(p)[depth:], v)
	}
	return root, rows.Err()
}

// insert stores v at segs, mutating maps it created itself.
func insert(node any, segs []string, v any) any {
	if len(segs) == 0 {
		return v
	}
	m, ok := node.(map[string]any)
	if !ok {
		m = make(map[string]any)
	}
	m[segs[0]] = insert(m[segs[0]], segs[1:], v)
	return m
}

// write replaces the subtree at path with v. Leaf rows above path are
// dropped since path now lives inside an object.
func (s *Store) write(ctx context.Context, q querier, path string, v any) error {
	if path == "" {
		if _, err := q.ExecContext(ctx, "DELETE FROM tree_nodes"); err != nil {
			return err
		}
	} else {
		lo, hi := subtreeBounds(path)
		_, err := q.ExecContext(ctx,
			s.rebind("DELETE FROM tree_nodes WHERE path = ? OR (path >= ? AND path < ?)"),
			path, lo, hi)
		if err != nil {
			return err
		}

		anc := ancestors(path)
		args := make([]any, len(anc))
		for i, a := range anc {
			args[i] = a
		}
		marks := strings.TrimSuffix(strings.Repeat("?, ", len(anc)), ", ")
		if _, err := q.ExecContext(ctx, s.rebind("DELETE FROM tree_nodes WHERE path IN ("+marks+")"), args...); err != nil {
			return err
		}
	}

	leaves := make(map[string]string)
	if err := flatten(path, v, leaves); err != nil {
		return err
	}
	keys := make([]string, 0, len(leaves))
	for k := range leaves {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if _, err := q.ExecContext(ctx, s.rebind("INSERT INTO tree_nodes (path, value) VALUES (?, ?)"), k, leaves[k]); err != nil {
			return err
		}
	}
	return nil
}

// flatten collects the JSON text of every non-object value beneath v.
func flatten(path string, v any, out map[string]string) error {
	switch t := v.(type) {
	case nil:
		return nil
	case map[string]any:
		for k, child := range t {
			if err := flatten(tree.Child(path, k), child, out); err != nil {
				return err
			}
		}
		return nil
	default:
		data, err := json.Marshal(t)
		if err != nil {
			return err
		}
		out[path] = string(data)
		return nil
	}
}
