package metrics

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveHTTP(t *testing.T) {
	m := New(nil)
	m.ObserveHTTP("GET", "/v1/switches", 200, 5*time.Millisecond)
	m.ObserveHTTP("GET", "/v1/switches", 200, 5*time.Millisecond)
	m.ObserveHTTP("POST", "/v1/defects", 400, time.Millisecond)

	if got := testutil.ToFloat64(m.httpRequestsTotal.WithLabelValues("GET", "/v1/switches", "200")); got != 2 {
		t.Errorf("GET count = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.httpRequestsTotal.WithLabelValues("POST", "/v1/defects", "400")); got != 1 {
		t.Errorf("POST count = %v, want 1", got)
	}
}

func TestPublishCountsTopics(t *testing.T) {
	m := New(nil)
	ctx := context.Background()
	_ = m.Publish(ctx, "switchboard.release.created", nil)
	_ = m.Publish(ctx, "switchboard.release.created", nil)
	_ = m.Publish(ctx, "switchboard.defects.recorded", nil)

	if got := testutil.ToFloat64(m.eventsTotal.WithLabelValues("switchboard.release.created")); got != 2 {
		t.Errorf("created = %v, want 2", got)
	}
}

func TestObserveSync(t *testing.T) {
	m := New(nil)
	m.ObserveSync("s3", nil)
	m.ObserveSync("s3", errors.New("denied"))

	if got := testutil.ToFloat64(m.syncRunsTotal.WithLabelValues("s3", "success")); got != 1 {
		t.Errorf("success = %v", got)
	}
	if got := testutil.ToFloat64(m.syncRunsTotal.WithLabelValues("s3", "error")); got != 1 {
		t.Errorf("error = %v", got)
	}
	if got := testutil.ToFloat64(m.syncLastSuccess.WithLabelValues("s3")); got == 0 {
		t.Error("last success timestamp not set")
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.ObserveHTTP("GET", "/", 200, 0)
	m.ObserveGRPC("/x", "OK")
	m.ObserveSync("git", nil)
	if err := m.Publish(context.Background(), "t", nil); err != nil {
		t.Fatal(err)
	}
}

func TestHandler(t *testing.T) {
	m := New(nil)
	m.ObserveGRPC("/switchboard.v1.Switchboard/ListSwitches", "OK")

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "switchboard_grpc_requests_total") {
		t.Errorf("exposition missing grpc counter:\n%s", body)
	}
	if !strings.Contains(string(body), "go_goroutines") {
		t.Error("exposition missing Go collector")
	}
}
