package store

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
)

var (
	// ErrNotFound is returned by Get when nothing is stored at or below a path.
	ErrNotFound = errors.New("store: not found")
	// ErrExists is returned by Create when something is already stored at or below a path.
	ErrExists = errors.New("store: already exists")
	// ErrInvalidPath is returned for empty paths or paths with empty segments.
	ErrInvalidPath = errors.New("store: invalid path")
)

// Store is the backing-store contract consumed by the registry and the defect log.
//
// Paths are slash-delimited ("switches/login/1_0"). Stores have tree
// semantics: a JSON object written at a path is stored as its leaves and
// reassembled when any ancestor path is read. Arrays and scalars are leaves.
// Every method is atomic on its own; there is no multi-call transaction.
type Store interface {
	// Get returns the value at path, or ErrNotFound.
	Get(ctx context.Context, path string) (json.RawMessage, error)

	// Put replaces whatever is stored at path with value.
	Put(ctx context.Context, path string, value json.RawMessage) error

	// Create writes value at path only when nothing is stored at or below it,
	// returning ErrExists otherwise.
	Create(ctx context.Context, path string, value json.RawMessage) error

	// Lifecycle
	Close() error
}

// Join builds a store path from segments.
func Join(segments ...string) string {
	return strings.Join(segments, "/")
}

// CleanPath trims surrounding slashes and rejects empty paths or empty segments.
func CleanPath(path string) (string, error) {
	p := strings.Trim(path, "/")
	if p == "" {
		return "", ErrInvalidPath
	}
	for _, seg := range strings.Split(p, "/") {
		if seg == "" {
			return "", ErrInvalidPath
		}
	}
	return p, nil
}

// Root returns the first segment of a cleaned path.
func Root(path string) string {
	if i := strings.IndexByte(path, '/'); i >= 0 {
		return path[:i]
	}
	return path
}

// Ancestors returns the proper ancestors of a cleaned path, nearest last:
// Ancestors("a/b/c") = ["a", "a/b"].
func Ancestors(path string) []string {
	var out []string
	for i := 0; i < len(path); i++ {
		if path[i] == '/' {
			out = append(out, path[:i])
		}
	}
	return out
}
