package defects

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/alfredjeanlab/switchboard/internal/events"
	"github.com/alfredjeanlab/switchboard/internal/model"
	"github.com/alfredjeanlab/switchboard/internal/registry"
	"github.com/alfredjeanlab/switchboard/internal/store"
	"github.com/alfredjeanlab/switchboard/internal/store/memory"
)

type failingStore struct {
	store.Store
	getErr, putErr error
	puts           int
}

func (s *failingStore) Get(ctx context.Context, path string) (json.RawMessage, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	return s.Store.Get(ctx, path)
}

func (s *failingStore) Put(ctx context.Context, path string, v json.RawMessage) error {
	s.puts++
	if s.putErr != nil {
		return s.putErr
	}
	return s.Store.Put(ctx, path, v)
}

type topicRecorder struct {
	mu     sync.Mutex
	events []events.DefectsRecorded
}

func (r *topicRecorder) Publish(_ context.Context, _ string, event any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event.(events.DefectsRecorded))
	return nil
}

func (r *topicRecorder) Close() error { return nil }

func items(raw ...string) []model.DefectItem {
	out := make([]model.DefectItem, len(raw))
	for i, r := range raw {
		out[i] = model.DefectItem(r)
	}
	return out
}

func mustLog(t *testing.T, l *Log) model.DefectLog {
	t.Helper()
	got, err := l.GetLog(context.Background())
	if err != nil {
		t.Fatalf("GetLog: %v", err)
	}
	return got
}

func TestRecordDefects_MergeSameDate(t *testing.T) {
	l := New(memory.New())
	ctx := context.Background()

	if err := l.RecordDefects(ctx, "2024-01-01", items(`{"id":"A"}`)); err != nil {
		t.Fatal(err)
	}
	if err := l.RecordDefects(ctx, "2024-01-01", items(`{"id":"B"}`, `{"id":"C"}`)); err != nil {
		t.Fatal(err)
	}

	got := mustLog(t, l)
	if len(got) != 1 {
		t.Fatalf("entries = %d, want 1", len(got))
	}
	var ids []string
	for _, d := range got[0].Defects {
		var v struct{ ID string }
		if err := json.Unmarshal(d, &v); err != nil {
			t.Fatal(err)
		}
		ids = append(ids, v.ID)
	}
	if fmt.Sprint(ids) != "[A B C]" {
		t.Errorf("defects = %v, want [A B C]", ids)
	}
}

func TestRecordDefects_NewDateAppended(t *testing.T) {
	l := New(memory.New())
	ctx := context.Background()

	for _, d := range []string{"2024-02-01", "2024-01-01", "2024-03-01"} {
		if err := l.RecordDefects(ctx, d, items(`{"d":"`+d+`"}`)); err != nil {
			t.Fatal(err)
		}
	}

	got := mustLog(t, l)
	want := []string{"2024-02-01", "2024-01-01", "2024-03-01"}
	if len(got) != len(want) {
		t.Fatalf("entries = %d, want %d", len(got), len(want))
	}
	for i, w := range want {
		if got[i].Date != w {
			t.Errorf("entry %d date = %q, want %q (insertion order, no sorting)", i, got[i].Date, w)
		}
	}
}

func TestRecordDefects_NoDedup(t *testing.T) {
	l := New(memory.New())
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if err := l.RecordDefects(ctx, "2024-01-01", items(`{"id":"A"}`)); err != nil {
			t.Fatal(err)
		}
	}
	if got := mustLog(t, l); len(got[0].Defects) != 2 {
		t.Errorf("defects = %d, want 2", len(got[0].Defects))
	}
}

func TestRecordDefects_DateIsOpaque(t *testing.T) {
	l := New(memory.New())
	ctx := context.Background()
	if err := l.RecordDefects(ctx, "2024-01-01", items(`1`)); err != nil {
		t.Fatal(err)
	}
	if err := l.RecordDefects(ctx, "2024-1-1", items(`2`)); err != nil {
		t.Fatal(err)
	}
	if got := mustLog(t, l); len(got) != 2 {
		t.Errorf("entries = %d, want 2 (exact string match only)", len(got))
	}
}

func TestRecordDefects_EmptyListCreatesEntry(t *testing.T) {
	l := New(memory.New())
	if err := l.RecordDefects(context.Background(), "2024-01-01", []model.DefectItem{}); err != nil {
		t.Fatal(err)
	}
	got := mustLog(t, l)
	if len(got) != 1 || got[0].Defects == nil || len(got[0].Defects) != 0 {
		t.Errorf("log = %+v", got)
	}
}

func TestRecordDefects_InvalidArgument(t *testing.T) {
	tests := []struct {
		name  string
		date  string
		items []model.DefectItem
	}{
		{"nil items", "2024-01-01", nil},
		{"blank date", "  ", items(`{}`)},
		{"invalid item", "2024-01-01", items(`{bad`)},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			fs := &failingStore{Store: memory.New()}
			l := New(fs)
			err := l.RecordDefects(context.Background(), tc.date, tc.items)
			if !errors.Is(err, model.ErrInvalidArgument) {
				t.Fatalf("error = %v, want ErrInvalidArgument", err)
			}
			if fs.puts != 0 {
				t.Error("store written on invalid input")
			}
		})
	}
}

func TestRecordDefects_PersistenceLeavesStateUnchanged(t *testing.T) {
	base := memory.New()
	ctx := context.Background()
	seed := New(base)
	if err := seed.RecordDefects(ctx, "2024-01-01", items(`{"id":"A"}`)); err != nil {
		t.Fatal(err)
	}
	before, _ := base.Get(ctx, DefaultPath)

	t.Run("write fails", func(t *testing.T) {
		l := New(&failingStore{Store: base, putErr: errors.New("disk full")})
		err := l.RecordDefects(ctx, "2024-01-01", items(`{"id":"B"}`))
		if !errors.Is(err, model.ErrPersistence) {
			t.Fatalf("error = %v, want ErrPersistence", err)
		}
	})

	t.Run("read fails", func(t *testing.T) {
		fs := &failingStore{Store: base, getErr: errors.New("timeout")}
		l := New(fs)
		if err := l.RecordDefects(ctx, "2024-01-01", items(`{"id":"B"}`)); !errors.Is(err, model.ErrPersistence) {
			t.Fatalf("error = %v, want ErrPersistence", err)
		}
		if fs.puts != 0 {
			t.Error("write issued after failed read")
		}
		if _, err := l.GetLog(ctx); !errors.Is(err, model.ErrPersistence) {
			t.Errorf("GetLog error = %v", err)
		}
	})

	after, _ := base.Get(ctx, DefaultPath)
	if string(before) != string(after) {
		t.Errorf("log changed:\nbefore %s\nafter  %s", before, after)
	}
}

func TestRecordDefects_CorruptLog(t *testing.T) {
	base := memory.New()
	ctx := context.Background()
	if err := base.Put(ctx, DefaultPath, json.RawMessage(`"garbage"`)); err != nil {
		t.Fatal(err)
	}
	l := New(base)
	if err := l.RecordDefects(ctx, "2024-01-01", items(`{}`)); !errors.Is(err, model.ErrPersistence) {
		t.Fatalf("error = %v, want ErrPersistence", err)
	}
	raw, _ := base.Get(ctx, DefaultPath)
	if string(raw) != `"garbage"` {
		t.Errorf("corrupt log overwritten: %s", raw)
	}
}

func TestRecordDefects_ConcurrentNoLoss(t *testing.T) {
	l := New(memory.New())
	ctx := context.Background()

	const n = 25
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			date := "2024-01-01"
			if i%5 == 0 {
				date = "2024-01-02"
			}
			if err := l.RecordDefects(ctx, date, items(fmt.Sprintf(`{"n":%d}`, i))); err != nil {
				t.Errorf("RecordDefects: %v", err)
			}
		}(i)
	}
	wg.Wait()

	total := 0
	for _, e := range mustLog(t, l) {
		total += len(e.Defects)
	}
	if total != n {
		t.Errorf("stored %d defects, want %d", total, n)
	}
}

func TestGetLog_Empty(t *testing.T) {
	l := New(memory.New())
	got := mustLog(t, l)
	if got == nil || len(got) != 0 {
		t.Errorf("GetLog = %#v, want empty", got)
	}
}

func TestRecordDefects_PublishesEventAndCustomPath(t *testing.T) {
	rec := &topicRecorder{}
	base := memory.New()
	l := New(base, WithPublisher(rec), WithPath("qa/defects"))
	if err := l.RecordDefects(context.Background(), "2024-01-01", items(`1`, `2`)); err != nil {
		t.Fatal(err)
	}
	if len(rec.events) != 1 || rec.events[0].Count != 2 || rec.events[0].Date != "2024-01-01" {
		t.Errorf("events = %+v", rec.events)
	}
	if _, err := base.Get(context.Background(), "qa/defects"); err != nil {
		t.Errorf("log not stored at custom path: %v", err)
	}
	if l.Path() != "qa/defects" {
		t.Errorf("Path() = %q", l.Path())
	}
}

func TestCheckPath(t *testing.T) {
	for _, tc := range []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"defects", "defects", false},
		{"/qa/defects/", "qa/defects", false},
		{"switchesarchive", "switchesarchive", false},
		{"switches", "", true},
		{"switches/audit", "", true},
		{"/switches", "", true},
		{"", "", true},
		{"qa//defects", "", true},
	} {
		t.Run(tc.in, func(t *testing.T) {
			got, err := CheckPath(tc.in)
			if (err != nil) != tc.wantErr {
				t.Fatalf("CheckPath(%q) error = %v, wantErr %v", tc.in, err, tc.wantErr)
			}
			if got != tc.want {
				t.Errorf("CheckPath(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestNew_RegistryOverlapRefused(t *testing.T) {
	ctx := context.Background()
	for _, path := range []string{"switches", "switches/audit"} {
		t.Run(path, func(t *testing.T) {
			base := memory.New()
			reg := registry.New(base)
			l := New(base, WithPath(path))

			err := l.RecordDefects(ctx, "2024-01-01", items(`{"id":1}`))
			if !errors.Is(err, model.ErrPersistence) {
				t.Fatalf("RecordDefects err = %v, want ErrPersistence", err)
			}
			if _, err := l.GetLog(ctx); !errors.Is(err, model.ErrPersistence) {
				t.Fatalf("GetLog err = %v, want ErrPersistence", err)
			}

			cfg := model.ReleaseConfig{Mode: model.ModeRestricted, BasedOn: model.DefaultBasedOn}
			if _, err := reg.CreateRelease(ctx, "login", "1_0", cfg); err != nil {
				t.Fatalf("CreateRelease: %v", err)
			}
			names, err := reg.ListSwitches(ctx)
			if err != nil {
				t.Fatal(err)
			}
			if len(names) != 1 || names[0] != "login" {
				t.Errorf("ListSwitches = %v, want [login]", names)
			}
		})
	}
}

func TestRecordDefects_SurvivesReleaseWrites(t *testing.T) {
	ctx := context.Background()
	base := memory.New()
	reg := registry.New(base)
	l := New(base)

	if err := l.RecordDefects(ctx, "2024-01-01", items(`{"id":1}`)); err != nil {
		t.Fatal(err)
	}
	cfg := model.ReleaseConfig{Mode: model.ModeRestricted, BasedOn: model.DefaultBasedOn}
	if _, err := reg.CreateRelease(ctx, "login", "1_0", cfg); err != nil {
		t.Fatalf("CreateRelease: %v", err)
	}
	cfg.Mode = model.ModeOpen
	if _, err := reg.UpdateRelease(ctx, "login", "1_0", cfg); err != nil {
		t.Fatalf("UpdateRelease: %v", err)
	}

	got := mustLog(t, l)
	if len(got) != 1 || len(got[0].Defects) != 1 {
		t.Fatalf("log after release writes = %+v", got)
	}
}
