package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Flatten splits value into the leaves stored under path. Objects recurse into
// their members; arrays and scalars become a single leaf. null and empty
// objects produce no leaves.
func Flatten(path string, value json.RawMessage) (map[string]json.RawMessage, error) {
	leaves := make(map[string]json.RawMessage)
	if err := flatten(path, value, leaves); err != nil {
		return nil, err
	}
	return leaves, nil
}

func flatten(path string, value json.RawMessage, leaves map[string]json.RawMessage) error {
	trimmed := bytes.TrimSpace(value)
	if len(trimmed) == 0 {
		return fmt.Errorf("empty value at %s", path)
	}
	if trimmed[0] == '{' {
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &obj); err != nil {
			return fmt.Errorf("decode value at %s: %w", path, err)
		}
		for key, member := range obj {
			if key == "" || strings.Contains(key, "/") {
				return fmt.Errorf("invalid key %q at %s", key, path)
			}
			if err := flatten(path+"/"+key, member, leaves); err != nil {
				return err
			}
		}
		return nil
	}
	if !json.Valid(trimmed) {
		return fmt.Errorf("invalid JSON at %s", path)
	}
	if string(trimmed) == "null" {
		return nil
	}
	leaves[path] = append(json.RawMessage(nil), trimmed...)
	return nil
}

// Assemble rebuilds the value at path from leaves stored at or below it.
// Leaves outside path are ignored. It returns ErrNotFound when none apply.
func Assemble(path string, leaves map[string]json.RawMessage) (json.RawMessage, error) {
	if v, ok := leaves[path]; ok {
		return v, nil
	}

	root := make(map[string]any)
	prefix := path + "/"
	for p, v := range leaves {
		rel, ok := strings.CutPrefix(p, prefix)
		if !ok {
			continue
		}
		segs := strings.Split(rel, "/")
		node := root
		for _, seg := range segs[:len(segs)-1] {
			child, ok := node[seg].(map[string]any)
			if !ok {
				child = make(map[string]any)
				node[seg] = child
			}
			node = child
		}
		node[segs[len(segs)-1]] = v
	}
	if len(root) == 0 {
		return nil, ErrNotFound
	}

	data, err := json.Marshal(root)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", path, err)
	}
	return data, nil
}

// Within reports whether leaf is path itself or one of its descendants.
func Within(leaf, path string) bool {
	return leaf == path || strings.HasPrefix(leaf, path+"/")
}

// Tree is an in-memory leaf map with the same semantics as Store.
// It is not safe for concurrent use; callers provide locking.
type Tree map[string]json.RawMessage

// Get returns the value at path, or ErrNotFound.
func (t Tree) Get(path string) (json.RawMessage, error) {
	return Assemble(path, t.Subtree(path))
}

// Exists reports whether anything is stored at or below path.
func (t Tree) Exists(path string) bool {
	for leaf := range t {
		if Within(leaf, path) {
			return true
		}
	}
	return false
}

// Subtree returns the leaves stored at or below path.
func (t Tree) Subtree(path string) map[string]json.RawMessage {
	sub := make(map[string]json.RawMessage)
	for leaf, v := range t {
		if Within(leaf, path) {
			sub[leaf] = v
		}
	}
	return sub
}

// Put replaces the subtree at path. Ancestor leaves are dropped so the new
// value is reachable from every ancestor path.
func (t Tree) Put(path string, value json.RawMessage) error {
	leaves, err := Flatten(path, value)
	if err != nil {
		return err
	}
	for leaf := range t {
		if Within(leaf, path) {
			delete(t, leaf)
		}
	}
	for _, a := range Ancestors(path) {
		delete(t, a)
	}
	for leaf, v := range leaves {
		t[leaf] = v
	}
	return nil
}

// Create writes value at path unless something is already stored there.
func (t Tree) Create(path string, value json.RawMessage) error {
	if t.Exists(path) {
		return ErrExists
	}
	return t.Put(path, value)
}
