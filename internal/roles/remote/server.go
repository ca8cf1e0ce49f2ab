package remote

import (
	"context"
	"errors"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"tallyboard.io/internal/roles"
)

// Register exposes r as the RoleService on s. Authentication is left to
// interceptors; r sees the request context as they leave it.
func Register(s grpc.ServiceRegistrar, r roles.Resolver) {
	s.RegisterService(&serviceDesc, r)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: roles.ServiceName,
	HandlerType: (*roles.Resolver)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "ResolveRole", Handler: resolveRoleHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "tallyboard/roles/v1/roles.proto",
}

func resolveRoleHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	call := func(ctx context.Context, req any) (any, error) {
		var rr roles.Request
		if err := roles.DecodeStruct(req.(*structpb.Struct), &rr); err != nil {
			return nil, StatusFromError(err)
		}
		resolved, err := srv.(roles.Resolver).ResolveRole(ctx, rr)
		if err != nil {
			return nil, StatusFromError(err)
		}
		out, err := roles.EncodeStruct(resolved)
		if err != nil {
			return nil, status.Error(codes.Internal, "encode response")
		}
		return out, nil
	}
	if interceptor == nil {
		return call(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: roles.ResolveRoleMethod}
	return interceptor(ctx, in, info, call)
}

// StatusFromError maps role errors to gRPC status errors.
func StatusFromError(err error) error {
	var code codes.Code
	switch {
	case errors.Is(err, roles.ErrUnauthenticated):
		code = codes.Unauthenticated
	case errors.Is(err, roles.ErrForbidden), errors.Is(err, roles.ErrNotMember):
		code = codes.PermissionDenied
	case errors.Is(err, roles.ErrNotFound):
		code = codes.NotFound
	case errors.Is(err, roles.ErrInvalidInput):
		code = codes.InvalidArgument
	default:
		return status.Error(codes.Internal, "role resolution failed")
	}
	return status.Error(code, err.Error())
}
