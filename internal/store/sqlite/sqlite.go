// Package sqlite implements store.Store on an embedded SQLite database file.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"

	"github.com/alfredjeanlab/switchboard/internal/store"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore implements store.Store with one row per leaf, like the
// PostgreSQL backend. Writes run in IMMEDIATE transactions over a single
// connection, so a check-then-write in Create is atomic.
type SQLiteStore struct {
	db *sql.DB
}

// Compile-time check that SQLiteStore implements store.Store.
var _ store.Store = (*SQLiteStore)(nil)

// New opens (creating if needed) the database file at path and applies
// pending migrations.
func New(path string) (*SQLiteStore, error) {
	cleanPath := strings.TrimSpace(path)
	if cleanPath == "" {
		return nil, errors.New("sqlite path is required")
	}
	if dir := filepath.Dir(cleanPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite dir: %w", err)
		}
	}

	dsn := "file:" + cleanPath +
		"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_txlock=immediate"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite store: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite store: %w", err)
	}
	if err := migrateUp(db); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

func migrateUp(db *sql.DB) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	driver, err := migratesqlite.WithInstance(db, &migratesqlite.Config{MigrationsTable: "switchboard_schema_migrations"})
	if err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("applying migrations: %w", err)
	}
	return nil
}

// Close closes the underlying database handle.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) Get(ctx context.Context, path string) (json.RawMessage, error) {
	p, err := store.CleanPath(path)
	if err != nil {
		return nil, err
	}
	leaves, err := queryLeaves(ctx, s.db, p)
	if err != nil {
		return nil, err
	}
	return store.Assemble(p, leaves)
}

func (s *SQLiteStore) Put(ctx context.Context, path string, value json.RawMessage) error {
	p, err := store.CleanPath(path)
	if err != nil {
		return err
	}
	leaves, err := store.Flatten(p, value)
	if err != nil {
		return err
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		return replaceSubtree(ctx, tx, p, leaves)
	})
}

func (s *SQLiteStore) Create(ctx context.Context, path string, value json.RawMessage) error {
	p, err := store.CleanPath(path)
	if err != nil {
		return err
	}
	leaves, err := store.Flatten(p, value)
	if err != nil {
		return err
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		var n int
		lo, hi := prefixRange(p)
		if err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM nodes WHERE path = ? OR (path >= ? AND path < ?)`,
			p, lo, hi,
		).Scan(&n); err != nil {
			return fmt.Errorf("check %s: %w", p, err)
		}
		if n > 0 {
			return store.ErrExists
		}
		return replaceSubtree(ctx, tx, p, leaves)
	})
}

func (s *SQLiteStore) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// prefixRange returns the half-open key range covering every descendant of
// path. '0' is the byte after '/'.
func prefixRange(path string) (string, string) {
	return path + "/", path + "0"
}

func queryLeaves(ctx context.Context, db *sql.DB, path string) (map[string]json.RawMessage, error) {
	lo, hi := prefixRange(path)
	rows, err := db.QueryContext(ctx,
		`SELECT path, value FROM nodes WHERE path = ? OR (path >= ? AND path < ?)`,
		path, lo, hi)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", path, err)
	}
	defer rows.Close()

	leaves := make(map[string]json.RawMessage)
	for rows.Next() {
		var leaf, value string
		if err := rows.Scan(&leaf, &value); err != nil {
			return nil, fmt.Errorf("scan %s: %w", path, err)
		}
		leaves[leaf] = json.RawMessage(value)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", path, err)
	}
	return leaves, nil
}

func replaceSubtree(ctx context.Context, tx *sql.Tx, path string, leaves map[string]json.RawMessage) error {
	lo, hi := prefixRange(path)
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM nodes WHERE path = ? OR (path >= ? AND path < ?)`,
		path, lo, hi); err != nil {
		return fmt.Errorf("delete %s: %w", path, err)
	}
	for _, a := range store.Ancestors(path) {
		if _, err := tx.ExecContext(ctx, `DELETE FROM nodes WHERE path = ?`, a); err != nil {
			return fmt.Errorf("delete %s: %w", a, err)
		}
	}

	paths := make([]string, 0, len(leaves))
	for p := range leaves {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	for _, p := range paths {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO nodes (path, value) VALUES (?, ?)`,
			p, string(leaves[p])); err != nil {
			return fmt.Errorf("insert %s: %w", p, err)
		}
	}
	return nil
}
