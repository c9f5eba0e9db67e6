package postgres

import (
	"database/sql"
	"encoding/json"
)

// scanLeaves scans (path, value) rows into a leaf map.
func scanLeaves(rows *sql.Rows) (map[string]json.RawMessage, error) {
	leaves := make(map[string]json.RawMessage)
	for rows.Next() {
		var (
			path  string
			value []byte
		)
		if err := rows.Scan(&path, &value); err != nil {
			return nil, err
		}
		leaves[path] = json.RawMessage(value)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return leaves, nil
}
