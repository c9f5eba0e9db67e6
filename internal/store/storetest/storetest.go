// Package storetest provides a conformance suite run against every
// store.Store implementation.
package storetest

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/alfredjeanlab/switchboard/internal/store"
)

// Run exercises the store.Store contract against stores produced by newStore.
// Each subtest gets a fresh, empty store.
func Run(t *testing.T, newStore func(t *testing.T) store.Store) {
	t.Run("GetMissing", func(t *testing.T) {
		s := newStore(t)
		if _, err := s.Get(context.Background(), "switches"); !errors.Is(err, store.ErrNotFound) {
			t.Fatalf("Get(switches) error = %v, want ErrNotFound", err)
		}
	})

	t.Run("InvalidPath", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		if _, err := s.Get(ctx, ""); !errors.Is(err, store.ErrInvalidPath) {
			t.Errorf("Get(\"\") error = %v, want ErrInvalidPath", err)
		}
		if err := s.Put(ctx, "a//b", json.RawMessage(`1`)); !errors.Is(err, store.ErrInvalidPath) {
			t.Errorf("Put(a//b) error = %v, want ErrInvalidPath", err)
		}
	})

	t.Run("PutThenGetAncestors", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		mustPut(t, s, "switches/login/1_0", `{"mode":"RESTRICTED","basedOn":"Responsibility","accessControl":""}`)
		mustPut(t, s, "switches/search/2_0", `{"mode":"OPEN","basedOn":"Role","accessControl":"admins"}`)

		var all map[string]map[string]map[string]string
		mustGetJSON(t, s, "switches", &all)
		if len(all) != 2 {
			t.Fatalf("expected 2 switches, got %v", all)
		}
		if all["login"]["1_0"]["mode"] != "RESTRICTED" || all["login"]["1_0"]["accessControl"] != "" {
			t.Errorf("login/1_0 = %v", all["login"]["1_0"])
		}
		if all["search"]["2_0"]["accessControl"] != "admins" {
			t.Errorf("search/2_0 = %v", all["search"]["2_0"])
		}

		var mode string
		mustGetJSON(t, s, "switches/login/1_0/mode", &mode)
		if mode != "RESTRICTED" {
			t.Errorf("mode = %q", mode)
		}

		if _, err := s.Get(ctx, "switches/log"); !errors.Is(err, store.ErrNotFound) {
			t.Errorf("Get(switches/log) error = %v, want ErrNotFound", err)
		}
	})

	t.Run("PutReplacesSubtree", func(t *testing.T) {
		s := newStore(t)
		mustPut(t, s, "switches/login/1_0", `{"mode":"RESTRICTED","basedOn":"Responsibility","accessControl":"x"}`)
		mustPut(t, s, "switches/login/1_0", `{"mode":"OPEN","basedOn":"Responsibility"}`)

		var cfg map[string]string
		mustGetJSON(t, s, "switches/login/1_0", &cfg)
		if len(cfg) != 2 || cfg["mode"] != "OPEN" {
			t.Fatalf("config after replace = %v", cfg)
		}
	})

	t.Run("ArrayLeafRoundTrip", func(t *testing.T) {
		s := newStore(t)
		mustPut(t, s, "defects", `[{"date":"2024-01-01","defects":[{"id":"a"}]}]`)
		mustPut(t, s, "defects", `[{"date":"2024-01-01","defects":[{"id":"a"},{"id":"b"}]}]`)

		var log []struct {
			Date    string            `json:"date"`
			Defects []json.RawMessage `json:"defects"`
		}
		mustGetJSON(t, s, "defects", &log)
		if len(log) != 1 || len(log[0].Defects) != 2 {
			t.Fatalf("log = %+v", log)
		}
	})

	t.Run("CreateConflicts", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		if err := s.Create(ctx, "switches/login/1_0", json.RawMessage(`{"mode":"RESTRICTED"}`)); err != nil {
			t.Fatalf("first Create: %v", err)
		}
		if err := s.Create(ctx, "switches/login/1_0", json.RawMessage(`{"mode":"OPEN"}`)); !errors.Is(err, store.ErrExists) {
			t.Fatalf("second Create error = %v, want ErrExists", err)
		}
		var mode string
		mustGetJSON(t, s, "switches/login/1_0/mode", &mode)
		if mode != "RESTRICTED" {
			t.Errorf("mode = %q, want first write to survive", mode)
		}
		if err := s.Create(ctx, "switches/login/1_1", json.RawMessage(`{"mode":"OPEN"}`)); err != nil {
			t.Errorf("sibling Create: %v", err)
		}
	})

	t.Run("ConcurrentCreateSingleWinner", func(t *testing.T) {
		s := newStore(t)
		const n = 8
		var (
			wg   sync.WaitGroup
			mu   sync.Mutex
			wins int
		)
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				err := s.Create(context.Background(), "switches/race/1_0", json.RawMessage(`{"mode":"OPEN"}`))
				if err == nil {
					mu.Lock()
					wins++
					mu.Unlock()
				} else if !errors.Is(err, store.ErrExists) {
					t.Errorf("Create: unexpected error %v", err)
				}
			}()
		}
		wg.Wait()
		if wins != 1 {
			t.Fatalf("expected exactly 1 successful Create, got %d", wins)
		}
	})

	t.Run("InvalidJSON", func(t *testing.T) {
		s := newStore(t)
		if err := s.Put(context.Background(), "switches/x", json.RawMessage(`{oops`)); err == nil {
			t.Fatal("expected error for invalid JSON")
		}
		if _, err := s.Get(context.Background(), "switches"); !errors.Is(err, store.ErrNotFound) {
			t.Fatalf("failed Put must not write anything, Get error = %v", err)
		}
	})
}

func mustPut(t *testing.T, s store.Store, path, value string) {
	t.Helper()
	if err := s.Put(context.Background(), path, json.RawMessage(value)); err != nil {
		t.Fatalf("Put(%s): %v", path, err)
	}
}

func mustGetJSON(t *testing.T, s store.Store, path string, v any) {
	t.Helper()
	data, err := s.Get(context.Background(), path)
	if err != nil {
		t.Fatalf("Get(%s): %v", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		t.Fatalf("decode %s: %v (%s)", path, err, data)
	}
}
