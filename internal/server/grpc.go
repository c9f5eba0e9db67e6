package server

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "switchboard.v1.Switchboard"

const healthMethod = "/" + ServiceName + "/Health"

// SwitchboardService is the gRPC surface. Every request and response is a
// google.protobuf.Struct carrying the same JSON shapes as the HTTP API.
type SwitchboardService interface {
	Health(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListSwitches(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListReleases(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetRelease(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CreateRelease(context.Context, *structpb.Struct) (*structpb.Struct, error)
	UpdateRelease(context.Context, *structpb.Struct) (*structpb.Struct, error)
	RecordDefects(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetDefectLog(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

var _ SwitchboardService = (*SwitchboardServer)(nil)

type unaryMethod func(SwitchboardService, context.Context, *structpb.Struct) (*structpb.Struct, error)

func methodDesc(name string, call unaryMethod) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			svc := srv.(SwitchboardService)
			if interceptor == nil {
				return call(svc, ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/" + name}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(svc, ctx, req.(*structpb.Struct))
			})
		},
	}
}

// ServiceDesc describes SwitchboardService for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*SwitchboardService)(nil),
	Methods: []grpc.MethodDesc{
		methodDesc("Health", SwitchboardService.Health),
		methodDesc("ListSwitches", SwitchboardService.ListSwitches),
		methodDesc("ListReleases", SwitchboardService.ListReleases),
		methodDesc("GetRelease", SwitchboardService.GetRelease),
		methodDesc("CreateRelease", SwitchboardService.CreateRelease),
		methodDesc("UpdateRelease", SwitchboardService.UpdateRelease),
		methodDesc("RecordDefects", SwitchboardService.RecordDefects),
		methodDesc("GetDefectLog", SwitchboardService.GetDefectLog),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "switchboard/v1/switchboard.proto",
}

// NewGRPCServer creates a gRPC server with standard interceptors and
// registers the Switchboard service.
func NewGRPCServer(s *SwitchboardServer, authToken string) *grpc.Server {
	interceptors := []grpc.UnaryServerInterceptor{
		s.recoverUnary,
		s.logUnary,
	}
	if s.metrics != nil {
		interceptors = append(interceptors, MetricsInterceptor(s.metrics))
	}
	interceptors = append(interceptors, AuthInterceptor(authToken))

	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(interceptors...))
	srv.RegisterService(&ServiceDesc, s)
	return srv
}
