package sync

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sort"
	"strings"
	gosync "sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/alfredjeanlab/switchboard/internal/model"
)

// mockDestination records calls to Write.
type mockDestination struct {
	name   string
	err    error
	writes atomic.Int64
	last   atomic.Value // []byte
}

func (d *mockDestination) Name() string { return d.name }

func (d *mockDestination) Write(_ context.Context, data []byte) error {
	d.writes.Add(1)
	cp := make([]byte, len(data))
	copy(cp, data)
	d.last.Store(cp)
	return d.err
}

// recordingObserver collects ObserveSync calls.
type recordingObserver struct {
	mu    gosync.Mutex
	calls []string
}

func (o *recordingObserver) ObserveSync(dest string, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	result := "ok"
	if err != nil {
		result = "error"
	}
	o.calls = append(o.calls, dest+":"+result)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, nil))
}

func TestSchedulerStartStop(t *testing.T) {
	reg, log := newSources()
	ctx := context.Background()
	if _, err := reg.CreateRelease(ctx, "login", "1.0", model.ReleaseConfig{Mode: model.ModeOpen}); err != nil {
		t.Fatalf("CreateRelease: %v", err)
	}
	if err := log.RecordDefects(ctx, "2024-01-01", []model.DefectItem{}); err != nil {
		t.Fatalf("RecordDefects: %v", err)
	}

	dest := &mockDestination{name: "mock"}
	sched := NewScheduler(reg, log, []Destination{dest}, 50*time.Millisecond, testLogger())
	sched.Start()

	// Wait for at least the initial sync + one tick.
	time.Sleep(120 * time.Millisecond)
	sched.Stop()

	if writes := dest.writes.Load(); writes < 2 {
		t.Fatalf("expected at least 2 writes, got %d", writes)
	}

	data, ok := dest.last.Load().([]byte)
	if !ok || len(data) == 0 {
		t.Fatal("expected non-empty data")
	}

	lines := nonEmptyLines(string(data))
	// 1 header + 1 release + 1 defect entry = 3
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d", len(lines))
	}
}

func TestSchedulerStop_NoStart(t *testing.T) {
	reg, log := newSources()
	sched := NewScheduler(reg, log, nil, time.Minute, testLogger())
	// Stop without Start should not panic.
	sched.Stop()
}

func TestSchedulerMultipleDestinations(t *testing.T) {
	reg, log := newSources()
	failing := &mockDestination{name: "broken", err: errors.New("bucket gone")}
	healthy := &mockDestination{name: "healthy"}
	obs := &recordingObserver{}

	sched := NewScheduler(reg, log, []Destination{failing, healthy}, time.Minute, testLogger(), WithObserver(obs))
	err := sched.SyncOnce(context.Background())
	if err == nil || !strings.Contains(err.Error(), "broken: bucket gone") {
		t.Fatalf("SyncOnce error = %v", err)
	}

	if failing.writes.Load() != 1 || healthy.writes.Load() != 1 {
		t.Fatalf("expected one write each, got %d and %d", failing.writes.Load(), healthy.writes.Load())
	}
	// Destinations are written concurrently.
	sort.Strings(obs.calls)
	want := []string{"broken:error", "healthy:ok"}
	if strings.Join(obs.calls, ",") != strings.Join(want, ",") {
		t.Fatalf("observer calls = %v, want %v", obs.calls, want)
	}
}

func TestSchedulerExportErrorSkipsWrites(t *testing.T) {
	_, log := newSources()
	dest := &mockDestination{name: "mock"}
	obs := &recordingObserver{}

	sched := NewScheduler(failingReleases{}, log, []Destination{dest}, time.Minute, testLogger(), WithObserver(obs))
	if err := sched.SyncOnce(context.Background()); err == nil {
		t.Fatal("expected export error")
	}

	if dest.writes.Load() != 0 {
		t.Fatalf("expected no writes after export failure, got %d", dest.writes.Load())
	}
	if len(obs.calls) != 1 || obs.calls[0] != "mock:error" {
		t.Fatalf("observer calls = %v", obs.calls)
	}
}

func TestS3Destination_PutsObject(t *testing.T) {
	var (
		mu          gosync.Mutex
		method      string
		path        string
		contentType string
		body        string
	)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		mu.Lock()
		method, path, contentType, body = r.Method, r.URL.Path, r.Header.Get("Content-Type"), string(b)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	t.Setenv("AWS_ACCESS_KEY_ID", "test")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "test")
	t.Setenv("AWS_EC2_METADATA_DISABLED", "true")
	t.Setenv("AWS_CONFIG_FILE", os.DevNull)
	t.Setenv("AWS_SHARED_CREDENTIALS_FILE", os.DevNull)

	dest, err := NewS3Destination(context.Background(), "backups", "switchboard/snapshot.jsonl", "us-east-1", ts.URL)
	if err != nil {
		t.Fatalf("NewS3Destination: %v", err)
	}
	if dest.Name() != "s3" {
		t.Fatalf("Name = %q", dest.Name())
	}

	payload := `{"type":"header"}` + "\n"
	if err := dest.Write(context.Background(), []byte(payload)); err != nil {
		t.Fatalf("Write: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if method != http.MethodPut {
		t.Fatalf("method = %s, want PUT", method)
	}
	if path != "/backups/switchboard/snapshot.jsonl" {
		t.Fatalf("path = %s, want path-style bucket/key", path)
	}
	if contentType != "application/x-ndjson" {
		t.Fatalf("content type = %q", contentType)
	}
	if !strings.Contains(body, `{"type":"header"}`) {
		t.Fatalf("body does not carry the payload: %q", body)
	}
}

type fakePutter struct {
	in  *s3.PutObjectInput
	err error
}

func (f *fakePutter) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.in = in
	return &s3.PutObjectOutput{}, f.err
}

func TestS3Destination_Metadata(t *testing.T) {
	fp := &fakePutter{}
	dest := newS3Destination(fp, "backups", "")

	if err := dest.Write(context.Background(), []byte("abc")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if got := aws.ToString(fp.in.Key); got != DefaultSnapshotKey {
		t.Errorf("key = %q, want %q", got, DefaultSnapshotKey)
	}
	// sha256("abc")
	want := "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"
	if got := fp.in.Metadata["snapshot-sha256"]; got != want {
		t.Errorf("digest = %q, want %q", got, want)
	}

	fp.err = errors.New("access denied")
	err := dest.Write(context.Background(), []byte("abc"))
	if err == nil || !strings.Contains(err.Error(), "s3://backups/switchboard.jsonl") {
		t.Fatalf("expected wrapped put error, got %v", err)
	}
}

func TestNewS3Destination_RequiresBucket(t *testing.T) {
	if _, err := NewS3Destination(context.Background(), "", "k", "us-east-1", ""); err == nil {
		t.Fatal("expected error for empty bucket")
	}
}
