// Package memory implements store.Store in process memory.
package memory

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/alfredjeanlab/switchboard/internal/store"
)

// MemoryStore keeps all leaves in a single map guarded by a mutex.
type MemoryStore struct {
	mu   sync.RWMutex
	tree store.Tree
}

// Compile-time check that MemoryStore implements store.Store.
var _ store.Store = (*MemoryStore)(nil)

// New returns an empty MemoryStore.
func New() *MemoryStore {
	return &MemoryStore{tree: store.Tree{}}
}

func (s *MemoryStore) Get(ctx context.Context, path string) (json.RawMessage, error) {
	p, err := store.CleanPath(path)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, err := s.tree.Get(p)
	if err != nil {
		return nil, err
	}
	return append(json.RawMessage(nil), v...), nil
}

func (s *MemoryStore) Put(ctx context.Context, path string, value json.RawMessage) error {
	p, err := store.CleanPath(path)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tree.Put(p, value)
}

func (s *MemoryStore) Create(ctx context.Context, path string, value json.RawMessage) error {
	p, err := store.CleanPath(path)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tree.Create(p, value)
}

// Close is a no-op.
func (s *MemoryStore) Close() error { return nil }
