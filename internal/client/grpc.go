package client

import (
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/alfredjeanlab/switchboard/internal/model"
)

// serviceName must match the server's registered service.
const serviceName = "switchboard.v1.Switchboard"

// GRPCClient implements SwitchboardClient using the gRPC transport. Messages
// are google.protobuf.Struct values carrying the HTTP API's JSON shapes.
type GRPCClient struct {
	conn  *grpc.ClientConn
	token string
}

// NewGRPCClient connects to the given gRPC address and returns a client.
// When token is non-empty it is sent as a Bearer authorization header.
func NewGRPCClient(addr, token string) (*GRPCClient, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("grpc dial: %w", err)
	}
	return &GRPCClient{conn: conn, token: token}, nil
}

func (c *GRPCClient) Close() error {
	return c.conn.Close()
}

// --- Switch registry ---

func (c *GRPCClient) ListSwitches(ctx context.Context) ([]string, error) {
	var resp struct {
		Switches []string `json:"switches"`
	}
	if err := c.call(ctx, "ListSwitches", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Switches, nil
}

func (c *GRPCClient) ListReleases(ctx context.Context, switchName string) (map[string]model.ReleaseConfig, error) {
	var resp struct {
		Releases map[string]model.ReleaseConfig `json:"releases"`
	}
	if err := c.call(ctx, "ListReleases", map[string]any{"switch": switchName}, &resp); err != nil {
		return nil, err
	}
	return resp.Releases, nil
}

func (c *GRPCClient) GetRelease(ctx context.Context, switchName, release string) (*model.Release, error) {
	var rel model.Release
	req := map[string]any{"switch": switchName, "release": release}
	if err := c.call(ctx, "GetRelease", req, &rel); err != nil {
		return nil, err
	}
	return &rel, nil
}

func (c *GRPCClient) CreateRelease(ctx context.Context, switchName string, rel model.Release) (*model.Release, error) {
	var created model.Release
	if err := c.call(ctx, "CreateRelease", releaseRequest(switchName, rel), &created); err != nil {
		return nil, err
	}
	return &created, nil
}

func (c *GRPCClient) UpdateRelease(ctx context.Context, switchName string, rel model.Release) (*model.Release, error) {
	var updated model.Release
	if err := c.call(ctx, "UpdateRelease", releaseRequest(switchName, rel), &updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

func releaseRequest(switchName string, rel model.Release) map[string]any {
	return map[string]any{
		"switch":        switchName,
		"release":       rel.Release,
		"mode":          string(rel.Mode),
		"basedOn":       rel.BasedOn,
		"accessControl": rel.AccessControl,
	}
}

// --- Defect log ---

// RecordDefects sends the items as one JSON array string so numbers reach the
// store unchanged.
func (c *GRPCClient) RecordDefects(ctx context.Context, date string, defects []model.DefectItem) (string, error) {
	if defects == nil {
		defects = []model.DefectItem{}
	}
	items, err := json.Marshal(defects)
	if err != nil {
		return "", fmt.Errorf("encode defects: %w", err)
	}
	var resp struct {
		Message string `json:"message"`
	}
	req := map[string]any{"date": date, "defects": string(items)}
	if err := c.call(ctx, "RecordDefects", req, &resp); err != nil {
		return "", err
	}
	return resp.Message, nil
}

func (c *GRPCClient) GetDefectLog(ctx context.Context) (model.DefectLog, error) {
	var resp struct {
		Entries model.DefectLog `json:"entries"`
		Log     string          `json:"log"`
	}
	if err := c.call(ctx, "GetDefectLog", nil, &resp); err != nil {
		return nil, err
	}
	entries := resp.Entries
	if resp.Log != "" {
		entries = nil
		if err := json.Unmarshal([]byte(resp.Log), &entries); err != nil {
			return nil, fmt.Errorf("decode defect log: %w", err)
		}
	}
	if entries == nil {
		entries = model.DefectLog{}
	}
	return entries, nil
}

// --- Health ---

func (c *GRPCClient) Health(ctx context.Context) (string, error) {
	var resp struct {
		Status string `json:"status"`
	}
	if err := c.call(ctx, "Health", nil, &resp); err != nil {
		return "", err
	}
	return resp.Status, nil
}

// --- internal helpers ---

// call invokes method with req as a Struct and decodes the Struct response
// into result through its JSON form.
func (c *GRPCClient) call(ctx context.Context, method string, req map[string]any, result any) error {
	in, err := structpb.NewStruct(req)
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}
	if c.token != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+c.token)
	}

	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, "/"+serviceName+"/"+method, in, out); err != nil {
		return err
	}

	data, err := protojson.Marshal(out)
	if err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	if err := json.Unmarshal(data, result); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
