// Package storage keeps a simulation configuration and its trajectory in a
// single SQLite file laid out as a hierarchy of groups and chunked arrays.
//
// Paths are slash separated ("/input/pos", "/output/kinetic"). A dataset is
// growable along one axis and grows only by whole-block appends; every append
// is stored as one zstd-compressed chunk row, so the number of write
// operations equals the number of appends.
//
// Deleting a group removes its rows but does not shrink the file. Run
// VACUUM on the file (for example with the sqlite3 shell) to reclaim space.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/san-kum/cgmd/internal/dynamo"

	_ "modernc.org/sqlite"
)

const (
	KindGroup   = "group"
	KindDataset = "dataset"
)

type Store struct {
	path string

	mu  sync.RWMutex
	db  *sql.DB
	enc *zstd.Encoder
	dec *zstd.Decoder
}

type Node struct {
	Path string
	Kind string
}

// Create makes a new, empty store at filePath. It fails if the file exists.
func Create(ctx context.Context, filePath string) (*Store, error) {
	if _, err := os.Stat(filePath); err == nil {
		return nil, fmt.Errorf("create %s: file exists", filePath)
	}
	return open(ctx, filePath)
}

// Open opens an existing store. A missing or unreadable file is reported as
// a configuration open error.
func Open(ctx context.Context, filePath string) (*Store, error) {
	if _, err := os.Stat(filePath); err != nil {
		return nil, dynamo.Wrap(dynamo.ErrConfigOpen, err, "Unable to open configuration file at "+filePath)
	}
	s, err := open(ctx, filePath)
	if err != nil {
		return nil, dynamo.Wrap(dynamo.ErrConfigOpen, err, "Unable to open configuration file at "+filePath)
	}
	return s, nil
}

func open(ctx context.Context, filePath string) (*Store, error) {
	db, err := sql.Open("sqlite", filePath)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := createTables(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		enc.Close()
		_ = db.Close()
		return nil, err
	}

	return &Store{path: filePath, db: db, enc: enc, dec: dec}, nil
}

func (s *Store) Path() string { return s.path }

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.enc.Close()
	s.dec.Close()
	s.db = nil
	return err
}

func (s *Store) getDB() (*sql.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return nil, errors.New("store is closed")
	}
	return s.db, nil
}

// Exists reports whether a group or dataset exists at p.
func (s *Store) Exists(ctx context.Context, p string) (bool, error) {
	db, err := s.getDB()
	if err != nil {
		return false, err
	}
	p, err = cleanPath(p)
	if err != nil {
		return false, err
	}
	if p == "/" {
		return true, nil
	}

	var n int
	err = db.QueryRowContext(ctx, `SELECT COUNT(*) FROM nodes WHERE path = ?`, p).Scan(&n)
	return n > 0, err
}

// CreateGroup creates the group at p and any missing ancestors. It fails if
// p already exists.
func (s *Store) CreateGroup(ctx context.Context, p string) error {
	ok, err := s.Exists(ctx, p)
	if err != nil {
		return err
	}
	if ok {
		return fmt.Errorf("create group %s: already exists", p)
	}
	return s.EnsureGroup(ctx, p)
}

// EnsureGroup creates the group at p and any missing ancestors.
func (s *Store) EnsureGroup(ctx context.Context, p string) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}
	p, err = cleanPath(p)
	if err != nil {
		return err
	}
	return ensureGroup(ctx, db, p)
}

func ensureGroup(ctx context.Context, db *sql.DB, p string) error {
	for _, g := range ancestors(p, true) {
		var kind string
		err := db.QueryRowContext(ctx, `SELECT kind FROM nodes WHERE path = ?`, g).Scan(&kind)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			if _, err := db.ExecContext(ctx, `INSERT INTO nodes (path, kind) VALUES (?, ?)`, g, KindGroup); err != nil {
				return err
			}
		case err != nil:
			return err
		case kind != KindGroup:
			return fmt.Errorf("%s is a %s, not a group", g, kind)
		}
	}
	return nil
}

// Delete removes the node at p together with everything below it.
func (s *Store) Delete(ctx context.Context, p string) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}
	p, err = cleanPath(p)
	if err != nil {
		return err
	}
	if p == "/" {
		return errors.New("cannot delete the root group")
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	prefix := p + "/"
	for _, table := range []string{"chunks", "datasets", "nodes"} {
		q := fmt.Sprintf(`DELETE FROM %s WHERE path = ? OR substr(path, 1, ?) = ?`, table)
		if _, err := tx.ExecContext(ctx, q, p, len(prefix), prefix); err != nil {
			return fmt.Errorf("delete %s: %w", p, err)
		}
	}
	return tx.Commit()
}

// List returns every node in path order.
func (s *Store) List(ctx context.Context) ([]Node, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `SELECT path, kind FROM nodes`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	nodes := make([]Node, 0)
	for rows.Next() {
		var n Node
		if err := rows.Scan(&n.Path, &n.Kind); err != nil {
			return nil, err
		}
		nodes = append(nodes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.Slice(nodes, func(i, j int) bool { return nodes[i].Path < nodes[j].Path })
	return nodes, nil
}

func cleanPath(p string) (string, error) {
	if !strings.HasPrefix(p, "/") {
		return "", fmt.Errorf("path %q is not absolute", p)
	}
	return path.Clean(p), nil
}

// ancestors lists the groups above p from the top down, including p itself
// when self is set. The root is implicit and never listed.
func ancestors(p string, self bool) []string {
	parts := strings.Split(strings.Trim(p, "/"), "/")
	if !self {
		parts = parts[:len(parts)-1]
	}
	out := make([]string, 0, len(parts))
	cur := ""
	for _, part := range parts {
		if part == "" {
			continue
		}
		cur += "/" + part
		out = append(out, cur)
	}
	return out
}

func createTables(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS nodes (
			path TEXT PRIMARY KEY,
			kind TEXT NOT NULL
		);
		CREATE TABLE IF NOT EXISTS datasets (
			path TEXT PRIMARY KEY,
			dtype TEXT NOT NULL,
			dims TEXT NOT NULL,
			chunk TEXT NOT NULL,
			axis INTEGER NOT NULL
		);
		CREATE TABLE IF NOT EXISTS chunks (
			path TEXT NOT NULL,
			seq INTEGER NOT NULL,
			rows INTEGER NOT NULL,
			payload BLOB NOT NULL,
			PRIMARY KEY (path, seq)
		);
		CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			output TEXT NOT NULL,
			invocation TEXT NOT NULL,
			started INTEGER NOT NULL,
			finished INTEGER NOT NULL,
			n_round INTEGER NOT NULL,
			payload BLOB NOT NULL
		);
	`)
	return err
}
