// Package file implements store.Store on flat JSON files, one file per
// top-level key ("switches.json", "defects.json").
package file

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/alfredjeanlab/switchboard/internal/store"
)

// FileStore keeps each top-level key in its own JSON document under dir.
// Writes go to a temp file that is renamed over the document, so a reader
// never observes a half-written file. The mutex serializes writers within
// one process; run a single writer process per directory.
type FileStore struct {
	dir string
	mu  sync.Mutex
}

// Compile-time check that FileStore implements store.Store.
var _ store.Store = (*FileStore)(nil)

// New returns a FileStore rooted at dir, creating the directory if needed.
func New(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("data directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) Get(ctx context.Context, path string) (json.RawMessage, error) {
	p, err := store.CleanPath(path)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tree, err := s.load(store.Root(p))
	if err != nil {
		return nil, err
	}
	return tree.Get(p)
}

func (s *FileStore) Put(ctx context.Context, path string, value json.RawMessage) error {
	return s.update(ctx, path, func(tree store.Tree, p string) error {
		return tree.Put(p, value)
	})
}

func (s *FileStore) Create(ctx context.Context, path string, value json.RawMessage) error {
	return s.update(ctx, path, func(tree store.Tree, p string) error {
		return tree.Create(p, value)
	})
}

// Close is a no-op; no file handles are held between calls.
func (s *FileStore) Close() error { return nil }

func (s *FileStore) update(ctx context.Context, path string, fn func(store.Tree, string) error) error {
	p, err := store.CleanPath(path)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	root := store.Root(p)
	tree, err := s.load(root)
	if err != nil {
		return err
	}
	if err := fn(tree, p); err != nil {
		return err
	}
	return s.save(root, tree)
}

func (s *FileStore) filename(root string) string {
	return filepath.Join(s.dir, root+".json")
}

// load reads the document for root into a leaf tree. A missing file is an empty tree.
func (s *FileStore) load(root string) (store.Tree, error) {
	data, err := os.ReadFile(s.filename(root))
	if errors.Is(err, os.ErrNotExist) {
		return store.Tree{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", root, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return store.Tree{}, nil
	}
	leaves, err := store.Flatten(root, data)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", root, err)
	}
	return store.Tree(leaves), nil
}

// save writes the document for root atomically, or removes it when empty.
func (s *FileStore) save(root string, tree store.Tree) error {
	name := s.filename(root)
	value, err := tree.Get(root)
	if errors.Is(err, store.ErrNotFound) {
		if err := os.Remove(name); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("remove %s: %w", root, err)
		}
		return nil
	}
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := json.Indent(&buf, value, "", "  "); err != nil {
		return fmt.Errorf("encode %s: %w", root, err)
	}
	buf.WriteByte('\n')

	tmp, err := os.CreateTemp(s.dir, root+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, name); err != nil {
		os.Remove(tmpPath) // Clean up
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}
