package server

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/samber/lo"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/aschepis/backscratcher/memtier/memory"
)

const (
	// MemoryServiceName is the gRPC service exposing the memory tools. Each
	// tool is a unary method taking and returning google.protobuf.Struct.
	MemoryServiceName = "memtier.v1.MemoryService"
	// CallerMetadataKey carries the caller id in request metadata.
	CallerMetadataKey = "x-memtier-caller"
)

// MethodName converts a tool name to its RPC method, e.g.
// memory_semantic_search becomes SemanticSearch.
func MethodName(tool string) string {
	parts := strings.Split(strings.TrimPrefix(tool, "memory_"), "_")
	return strings.Join(lo.Map(parts, func(p string, _ int) string {
		if p == "" {
			return p
		}
		return strings.ToUpper(p[:1]) + p[1:]
	}), "")
}

// FullMethod is the RPC path of a tool.
func FullMethod(tool string) string {
	return "/" + MemoryServiceName + "/" + MethodName(tool)
}

func (s *Server) memoryServiceDesc() grpc.ServiceDesc {
	return grpc.ServiceDesc{
		ServiceName: MemoryServiceName,
		HandlerType: (*interface{})(nil),
		Methods: lo.Map(s.tools.Names(), func(tool string, _ int) grpc.MethodDesc {
			return grpc.MethodDesc{MethodName: MethodName(tool), Handler: s.toolHandler(tool)}
		}),
		Metadata: "memtier/v1/memory.proto",
	}
}

func (s *Server) toolHandler(tool string) grpc.MethodHandler {
	return func(_ interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		handler := func(ctx context.Context, req interface{}) (interface{}, error) {
			return s.invoke(ctx, tool, req.(*structpb.Struct))
		}
		if interceptor == nil {
			return handler(ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: s, FullMethod: FullMethod(tool)}
		return interceptor(ctx, in, info, handler)
	}
}

func (s *Server) invoke(ctx context.Context, tool string, in *structpb.Struct) (*structpb.Struct, error) {
	args, err := json.Marshal(in.AsMap())
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "invalid arguments: %v", err)
	}
	result, err := s.tools.Handle(ctx, tool, callerFromContext(ctx), args)
	if err != nil {
		return nil, toStatus(err)
	}
	out, err := ToStruct(result)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "failed to encode result: %v", err)
	}
	return out, nil
}

func callerFromContext(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	if v := md.Get(CallerMetadataKey); len(v) > 0 {
		return v[0]
	}
	return ""
}

// ToStruct wraps a JSON-encodable value as {"result": value}.
func ToStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var decoded any
	if err := json.Unmarshal(data, &decoded); err != nil {
		return nil, err
	}
	return structpb.NewStruct(map[string]any{"result": decoded})
}

// toStatus maps engine errors to gRPC status codes.
func toStatus(err error) error {
	var code codes.Code
	switch {
	case errors.Is(err, context.Canceled):
		code = codes.Canceled
	case errors.Is(err, context.DeadlineExceeded):
		code = codes.DeadlineExceeded
	case memory.IsValidationError(err):
		code = codes.InvalidArgument
	case memory.IsNotFound(err):
		code = codes.NotFound
	case memory.IsAccessDenied(err):
		code = codes.PermissionDenied
	case memory.IsEmbeddingUnavailable(err), memory.IsShutdown(err):
		code = codes.Unavailable
	case memory.IsDimensionMismatch(err):
		code = codes.FailedPrecondition
	default:
		code = codes.Internal
	}
	return status.Error(code, err.Error())
}
