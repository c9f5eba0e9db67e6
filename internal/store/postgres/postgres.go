// Package postgres implements the store.Store interface backed by PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"encoding/json"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"

	"github.com/alfredjeanlab/switchboard/internal/store"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// PostgresStore keeps the tree in the nodes table, one row per leaf.
type PostgresStore struct {
	db *sql.DB
}

var _ store.Store = (*PostgresStore)(nil)

const (
	// migrationsTable is kept apart from golang-migrate's default so the
	// switchboard schema can share a database with other services.
	migrationsTable = "switchboard_schema_migrations"

	connectTimeout = 10 * time.Second
)

// New connects to databaseURL and brings the schema up to date.
func New(databaseURL string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// Writes serialize on advisory locks, so a small pool suffices.
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxIdleTime(time.Minute)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if err := migrateUp(db); err != nil {
		db.Close()
		return nil, err
	}
	return &PostgresStore{db: db}, nil
}

func migrateUp(db *sql.DB) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	driver, err := postgres.WithInstance(db, &postgres.Config{MigrationsTable: migrationsTable})
	if err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("applying migrations: %w", err)
	}
	return nil
}

// Close closes the underlying database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) Get(ctx context.Context, path string) (json.RawMessage, error) {
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

func (s *PostgresStore) Put(ctx context.Context, path string, value json.RawMessage) error {
	p, err := store.CleanPath(path)
	if err != nil {
		return err
	}
	leaves, err := store.Flatten(p, value)
	if err != nil {
		return err
	}
	return s.runInTransaction(ctx, store.Root(p), func(tx executor) error {
		return queryReplaceSubtree(ctx, tx, p, leaves)
	})
}

// Create checks for existing rows and writes inside one transaction that holds
// an advisory lock on the path's root, so concurrent creates of the same path
// cannot both succeed.
func (s *PostgresStore) Create(ctx context.Context, path string, value json.RawMessage) error {
	p, err := store.CleanPath(path)
	if err != nil {
		return err
	}
	leaves, err := store.Flatten(p, value)
	if err != nil {
		return err
	}
	return s.runInTransaction(ctx, store.Root(p), func(tx executor) error {
		exists, err := queryExists(ctx, tx, p)
		if err != nil {
			return err
		}
		if exists {
			return store.ErrExists
		}
		return queryReplaceSubtree(ctx, tx, p, leaves)
	})
}

// runInTransaction begins a transaction, takes a transaction-scoped advisory
// lock on lockKey, calls fn, and commits on success or rolls back on error.
func (s *PostgresStore) runInTransaction(ctx context.Context, lockKey string, fn func(tx executor) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, lockKey); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("advisory lock %s: %w", lockKey, err)
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
