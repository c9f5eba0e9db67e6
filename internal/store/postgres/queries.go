package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/lib/pq"

	"github.com/alfredjeanlab/switchboard/internal/store"
)

// executor is satisfied by both *sql.DB and *sql.Tx.
type executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// queryLeaves returns every leaf at or below path. starts_with is used
// instead of LIKE because release keys contain '_'.
func queryLeaves(ctx context.Context, db executor, path string) (map[string]json.RawMessage, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT path, value
		FROM nodes WHERE path = $1 OR starts_with(path, $2)`,
		path, path+"/")
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", path, err)
	}
	defer rows.Close()
	return scanLeaves(rows)
}

func queryExists(ctx context.Context, db executor, path string) (bool, error) {
	var exists bool
	err := db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM nodes WHERE path = $1 OR starts_with(path, $2))`,
		path, path+"/",
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check %s: %w", path, err)
	}
	return exists, nil
}

// queryReplaceSubtree deletes every row at or below path and every ancestor
// leaf, then inserts the new leaves in path order.
func queryReplaceSubtree(ctx context.Context, db executor, path string, leaves map[string]json.RawMessage) error {
	_, err := db.ExecContext(ctx, `
		DELETE FROM nodes
		WHERE path = $1 OR starts_with(path, $2) OR path = ANY($3)`,
		path, path+"/", pq.Array(store.Ancestors(path)))
	if err != nil {
		return fmt.Errorf("delete %s: %w", path, err)
	}

	paths := make([]string, 0, len(leaves))
	for p := range leaves {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	for _, p := range paths {
		if _, err := db.ExecContext(ctx, `
			INSERT INTO nodes (path, value) VALUES ($1, $2)`,
			p, []byte(leaves[p]),
		); err != nil {
			return fmt.Errorf("insert %s: %w", p, err)
		}
	}
	return nil
}
