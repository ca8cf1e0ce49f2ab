package httpapi

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"tallyboard.io/internal/auth"
	"tallyboard.io/internal/obs"
	"tallyboard.io/internal/roles"
	"tallyboard.io/internal/roles/remote"
)

// GRPCServer serves RoleService and grpc.health.v1.
type GRPCServer struct {
	*grpc.Server
	health *health.Server
	ready  ReadinessChecker
}

// NewGRPCServer wires RoleService behind session authentication. resolver
// must resolve for the user placed on the context by the interceptor.
func NewGRPCServer(sessions *auth.Sessions, resolver roles.Resolver, ready ReadinessChecker, logger zerolog.Logger) *GRPCServer {
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(
		loggingInterceptor(logger),
		authInterceptor(sessions),
	))
	remote.Register(srv, observedResolver{resolver})

	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(roles.ServiceName, healthpb.HealthCheckResponse_SERVING)

	return &GRPCServer{Server: srv, health: hs, ready: ready}
}

// CheckReadiness pings dependencies and updates the health status.
func (s *GRPCServer) CheckReadiness(ctx context.Context) error {
	st := healthpb.HealthCheckResponse_SERVING
	var err error
	if s.ready != nil {
		if err = s.ready.Ping(ctx); err != nil {
			st = healthpb.HealthCheckResponse_NOT_SERVING
		}
	}
	s.health.SetServingStatus("", st)
	s.health.SetServingStatus(roles.ServiceName, st)
	return err
}

// Shutdown marks the server not serving and stops it gracefully.
func (s *GRPCServer) Shutdown() {
	s.health.Shutdown()
	s.GracefulStop()
}

type observedResolver struct {
	next roles.Resolver
}

func (o observedResolver) ResolveRole(ctx context.Context, req roles.Request) (roles.ResolvedRole, error) {
	resolved, err := o.next.ResolveRole(ctx, req)
	if err != nil {
		obs.ObserveRoleResolution("error")
		return resolved, err
	}
	obs.ObserveRoleResolution("ok")
	return resolved, nil
}

func authInterceptor(sessions *auth.Sessions) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if strings.HasPrefix(info.FullMethod, "/grpc.health.v1.Health/") {
			return handler(ctx, req)
		}
		if sessions == nil {
			return nil, status.Error(codes.Unavailable, "authentication unavailable")
		}
		md, _ := metadata.FromIncomingContext(ctx)
		var header string
		if vals := md.Get("authorization"); len(vals) > 0 {
			header = vals[0]
		}
		token, err := extractBearerToken(header)
		if err != nil {
			return nil, status.Error(codes.Unauthenticated, err.Error())
		}
		claims, err := sessions.Parse(token)
		if err != nil {
			if errors.Is(err, auth.ErrInvalidToken) {
				return nil, status.Error(codes.Unauthenticated, "invalid token")
			}
			return nil, status.Error(codes.Internal, "authentication error")
		}
		ctx = auth.ContextWithUser(ctx, claims.Subject)
		ctx = auth.ContextWithToken(ctx, token)
		return handler(ctx, req)
	}
}

func loggingInterceptor(logger zerolog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		code := status.Code(err)
		ev := logger.Info()
		if code == codes.Internal || code == codes.Unknown {
			ev = logger.Error().Err(err)
		}
		ev.Str("method", info.FullMethod).
			Str("code", code.String()).
			Float64("duration_ms", float64(time.Since(start).Microseconds())/1000).
			Msg("grpc_complete")
		return resp, err
	}
}
