package grpcx

import (
	"log/slog"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/keepalive"
)

type ServerOptions struct {
	Logger *slog.Logger
	// MaxConnectionIdle closes idle client connections; defaults to 5 minutes.
	MaxConnectionIdle time.Duration
}

// NewServer returns a gRPC server with tracing, request ids and call logging installed.
func NewServer(opts ServerOptions, extra ...grpc.ServerOption) *grpc.Server {
	if opts.MaxConnectionIdle <= 0 {
		opts.MaxConnectionIdle = 5 * time.Minute
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	serverOpts := []grpc.ServerOption{
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(
			UnaryServerRequestIDInterceptor(),
			UnaryServerLoggingInterceptor(opts.Logger),
		),
		grpc.KeepaliveParams(keepalive.ServerParameters{MaxConnectionIdle: opts.MaxConnectionIdle}),
	}
	return grpc.NewServer(append(serverOpts, extra...)...)
}
