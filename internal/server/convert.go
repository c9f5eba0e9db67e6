package server

import (
	"encoding/json"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/alfredjeanlab/switchboard/internal/model"
)

// toStruct converts any JSON-encodable value with an object shape to a Struct.
func toStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	out := new(structpb.Struct)
	if err := protojson.Unmarshal(data, out); err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	return out, nil
}

// stringField returns a string field of req, or "" when absent or not a string.
func stringField(req *structpb.Struct, name string) string {
	if req == nil {
		return ""
	}
	v, ok := req.GetFields()[name]
	if !ok {
		return ""
	}
	return v.GetStringValue()
}

func releaseConfigFromStruct(req *structpb.Struct) (model.ReleaseConfig, error) {
	for _, f := range []string{"mode", "basedOn", "accessControl"} {
		if v, ok := req.GetFields()[f]; ok {
			if _, isString := v.GetKind().(*structpb.Value_StringValue); !isString {
				return model.ReleaseConfig{}, status.Errorf(codes.InvalidArgument, "%s must be a string", f)
			}
		}
	}
	return model.ReleaseConfig{
		Mode:          model.Mode(stringField(req, "mode")),
		BasedOn:       stringField(req, "basedOn"),
		AccessControl: stringField(req, "accessControl"),
	}, nil
}

// defectItemsFromStruct returns the "defects" field as raw JSON items, or nil
// when the field is missing or has another type. A string holding a JSON
// array is taken byte for byte; a Struct list goes through float64 numbers,
// so integers beyond 2^53 lose precision.
func defectItemsFromStruct(req *structpb.Struct) ([]model.DefectItem, error) {
	v, ok := req.GetFields()["defects"]
	if !ok {
		return nil, nil
	}
	switch kind := v.GetKind().(type) {
	case *structpb.Value_StringValue:
		var raw []json.RawMessage
		if err := json.Unmarshal([]byte(kind.StringValue), &raw); err != nil {
			return nil, err
		}
		if raw == nil {
			return nil, nil
		}
		items := make([]model.DefectItem, len(raw))
		for i, r := range raw {
			items[i] = model.DefectItem(r)
		}
		return items, nil
	case *structpb.Value_ListValue:
		values := kind.ListValue.GetValues()
		items := make([]model.DefectItem, 0, len(values))
		for i, item := range values {
			data, err := json.Marshal(item.AsInterface())
			if err != nil {
				return nil, fmt.Errorf("item %d: %w", i, err)
			}
			items = append(items, model.DefectItem(data))
		}
		return items, nil
	}
	return nil, nil
}
