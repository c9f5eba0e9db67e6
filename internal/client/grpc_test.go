package client

import (
	"context"
	"net"
	"testing"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/alfredjeanlab/switchboard/internal/model"
	"github.com/alfredjeanlab/switchboard/internal/server"
	"github.com/alfredjeanlab/switchboard/internal/store/memory"
)

// newGRPCTestClient serves a fresh switchboard on a loopback listener and
// returns a client connected to it.
func newGRPCTestClient(t *testing.T, serverToken, clientToken string) *GRPCClient {
	t.Helper()
	gs := server.NewGRPCServer(server.NewSwitchboardServer(memory.New(), nil), serverToken)
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	go func() { _ = gs.Serve(lis) }()
	t.Cleanup(gs.Stop)

	c, err := NewGRPCClient(lis.Addr().String(), clientToken)
	if err != nil {
		t.Fatalf("NewGRPCClient: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestGRPCClient_ServiceNameMatchesServer(t *testing.T) {
	if serviceName != server.ServiceName {
		t.Fatalf("serviceName = %q, server registers %q", serviceName, server.ServiceName)
	}
}

func TestGRPCClient_Releases(t *testing.T) {
	c := newGRPCTestClient(t, "", "")
	ctx := context.Background()

	rel := model.Release{
		Release:       "1.0",
		ReleaseConfig: model.ReleaseConfig{Mode: model.ModeRestricted, BasedOn: "Responsibility"},
	}
	created, err := c.CreateRelease(ctx, "login", rel)
	if err != nil {
		t.Fatalf("CreateRelease: %v", err)
	}
	if created.Release != "1_0" || created.Mode != model.ModeRestricted {
		t.Fatalf("created = %+v", created)
	}

	if _, err := c.CreateRelease(ctx, "login", rel); status.Code(err) != codes.AlreadyExists {
		t.Fatalf("duplicate CreateRelease: got %v, want AlreadyExists", err)
	}

	rel.Mode = model.ModeOpen
	if _, err := c.UpdateRelease(ctx, "login", rel); err != nil {
		t.Fatalf("UpdateRelease: %v", err)
	}

	got, err := c.GetRelease(ctx, "login", "1_0")
	if err != nil {
		t.Fatalf("GetRelease: %v", err)
	}
	if got.Mode != model.ModeOpen || got.BasedOn != "Responsibility" {
		t.Fatalf("GetRelease = %+v", got)
	}

	switches, err := c.ListSwitches(ctx)
	if err != nil {
		t.Fatalf("ListSwitches: %v", err)
	}
	if len(switches) != 1 || switches[0] != "login" {
		t.Fatalf("ListSwitches = %v", switches)
	}

	releases, err := c.ListReleases(ctx, "login")
	if err != nil {
		t.Fatalf("ListReleases: %v", err)
	}
	if len(releases) != 1 || releases["1_0"].Mode != model.ModeOpen {
		t.Fatalf("ListReleases = %+v", releases)
	}

	if _, err := c.GetRelease(ctx, "login", "9_9"); status.Code(err) != codes.NotFound {
		t.Fatalf("GetRelease unknown: got %v, want NotFound", err)
	}
}

func TestGRPCClient_Defects(t *testing.T) {
	c := newGRPCTestClient(t, "", "")
	ctx := context.Background()

	log, err := c.GetDefectLog(ctx)
	if err != nil {
		t.Fatalf("GetDefectLog: %v", err)
	}
	if log == nil || len(log) != 0 {
		t.Fatalf("expected empty non-nil log, got %#v", log)
	}

	items := []model.DefectItem{model.DefectItem(`{"id":"BUG-1"}`)}
	msg, err := c.RecordDefects(ctx, "2024-01-01", items)
	if err != nil {
		t.Fatalf("RecordDefects: %v", err)
	}
	if msg != "Data saved successfully" {
		t.Fatalf("message = %q", msg)
	}
	if _, err := c.RecordDefects(ctx, "2024-01-01", items); err != nil {
		t.Fatalf("RecordDefects again: %v", err)
	}

	log, err = c.GetDefectLog(ctx)
	if err != nil {
		t.Fatalf("GetDefectLog: %v", err)
	}
	if len(log) != 1 || len(log[0].Defects) != 2 {
		t.Fatalf("expected one entry with two items, got %+v", log)
	}

	if _, err := c.RecordDefects(ctx, "", items); status.Code(err) != codes.InvalidArgument {
		t.Fatalf("RecordDefects blank date: got %v, want InvalidArgument", err)
	}
}

func TestGRPCClient_Auth(t *testing.T) {
	ctx := context.Background()

	anon := newGRPCTestClient(t, "secret", "")
	if _, err := anon.Health(ctx); err != nil {
		t.Fatalf("Health should not need a token: %v", err)
	}
	if _, err := anon.ListSwitches(ctx); status.Code(err) != codes.Unauthenticated {
		t.Fatalf("ListSwitches without token: got %v, want Unauthenticated", err)
	}

	authed := newGRPCTestClient(t, "secret", "secret")
	if _, err := authed.ListSwitches(ctx); err != nil {
		t.Fatalf("ListSwitches with token: %v", err)
	}
}

func TestGRPCClient_DefectsKeepLargeIntegers(t *testing.T) {
	c := newGRPCTestClient(t, "", "")
	ctx := context.Background()

	item := `{"id":9007199254740993,"tags":["a","b"]}`
	if _, err := c.RecordDefects(ctx, "2024-01-01", []model.DefectItem{model.DefectItem(item)}); err != nil {
		t.Fatalf("RecordDefects: %v", err)
	}
	log, err := c.GetDefectLog(ctx)
	if err != nil {
		t.Fatalf("GetDefectLog: %v", err)
	}
	if len(log) != 1 || len(log[0].Defects) != 1 {
		t.Fatalf("log = %+v", log)
	}
	if got := string(log[0].Defects[0]); got != item {
		t.Fatalf("stored item = %s, want %s", got, item)
	}
}
