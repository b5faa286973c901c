package api

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "alarmcorr.v1.AlarmCorrelator"

// AlarmCorrelatorServer is the gRPC surface of the correlator. Messages are
// google.protobuf.Struct documents carrying the canonical JSON shapes.
type AlarmCorrelatorServer interface {
	IngestEvent(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	ListIncidents(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	GetIncident(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

// RegisterAlarmCorrelatorServer registers srv on s.
func RegisterAlarmCorrelatorServer(s grpc.ServiceRegistrar, srv AlarmCorrelatorServer) {
	s.RegisterService(&AlarmCorrelatorServiceDesc, srv)
}

func unaryHandler(method string, call func(AlarmCorrelatorServer, context.Context, *structpb.Struct) (*structpb.Struct, error)) func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(AlarmCorrelatorServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: "/" + ServiceName + "/" + method,
		}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(AlarmCorrelatorServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// AlarmCorrelatorServiceDesc describes the service for grpc.Server.
var AlarmCorrelatorServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*AlarmCorrelatorServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "IngestEvent",
			Handler: unaryHandler("IngestEvent", func(s AlarmCorrelatorServer, ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
				return s.IngestEvent(ctx, in)
			}),
		},
		{
			MethodName: "ListIncidents",
			Handler: unaryHandler("ListIncidents", func(s AlarmCorrelatorServer, ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
				return s.ListIncidents(ctx, in)
			}),
		},
		{
			MethodName: "GetIncident",
			Handler: unaryHandler("GetIncident", func(s AlarmCorrelatorServer, ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
				return s.GetIncident(ctx, in)
			}),
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "alarmcorr/v1/alarmcorr.proto",
}
