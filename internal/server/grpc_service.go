package server

import (
	"context"
	"encoding/json"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/alfredjeanlab/switchboard/internal/defects"
	"github.com/alfredjeanlab/switchboard/internal/model"
)

// Health reports server liveness.
func (s *SwitchboardServer) Health(_ context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	return toStruct(map[string]string{"status": "ok"})
}

// ListSwitches returns {"switches": [...]}.
func (s *SwitchboardServer) ListSwitches(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	names, err := s.registry.ListSwitches(ctx)
	if err != nil {
		return nil, grpcStatus(err)
	}
	return toStruct(map[string]any{"switches": names})
}

// ListReleases takes {"switch"} and returns {"releases": {...}}.
func (s *SwitchboardServer) ListReleases(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	releases, err := s.registry.ListReleases(ctx, stringField(req, "switch"))
	if err != nil {
		return nil, grpcStatus(err)
	}
	return toStruct(map[string]any{"releases": releases})
}

// GetRelease takes {"switch", "release"} and returns the release.
func (s *SwitchboardServer) GetRelease(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	sw, rel := stringField(req, "switch"), stringField(req, "release")
	cfg, err := s.registry.GetRelease(ctx, sw, rel)
	if err != nil {
		return nil, grpcStatus(err)
	}
	return toStruct(model.Release{Release: model.NormalizeRelease(rel), ReleaseConfig: cfg})
}

// CreateRelease takes {"switch", "release", "mode", "basedOn", "accessControl"}.
func (s *SwitchboardServer) CreateRelease(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	cfg, err := releaseConfigFromStruct(req)
	if err != nil {
		return nil, err
	}
	rel, err := s.registry.CreateRelease(ctx, stringField(req, "switch"), stringField(req, "release"), cfg)
	if err != nil {
		return nil, grpcStatus(err)
	}
	return toStruct(rel)
}

// UpdateRelease takes the same shape as CreateRelease and replaces the release.
func (s *SwitchboardServer) UpdateRelease(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	cfg, err := releaseConfigFromStruct(req)
	if err != nil {
		return nil, err
	}
	rel, err := s.registry.UpdateRelease(ctx, stringField(req, "switch"), stringField(req, "release"), cfg)
	if err != nil {
		return nil, grpcStatus(err)
	}
	return toStruct(rel)
}

// RecordDefects takes {"date", "defects"} and returns {"message"}. "defects" is
// a list, or a string holding a JSON array.
func (s *SwitchboardServer) RecordDefects(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	items, err := defectItemsFromStruct(req)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "invalid defects list: %v", err)
	}
	if err := s.defects.RecordDefects(ctx, stringField(req, "date"), items); err != nil {
		return nil, grpcStatus(err)
	}
	return toStruct(map[string]string{"message": defects.SavedMessage})
}

// GetDefectLog returns {"entries": [...], "log": "<json>"}. "log" carries the
// stored items exactly; "entries" is the same log as Struct values.
func (s *SwitchboardServer) GetDefectLog(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	log, err := s.defects.GetLog(ctx)
	if err != nil {
		return nil, grpcStatus(err)
	}
	raw, err := json.Marshal(log)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode defect log: %v", err)
	}
	return toStruct(map[string]any{"entries": log, "log": string(raw)})
}
