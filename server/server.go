// Package server implements the gRPC server for the memtier daemon.
package server

import (
	"context"
	"net"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"

	"github.com/aschepis/backscratcher/memtier/engine"
	"github.com/aschepis/backscratcher/memtier/tools"
)

// HealthSource reports engine health.
type HealthSource interface {
	GetHealth(ctx context.Context) (*engine.Health, error)
}

// Server is the gRPC server for memtier.
type Server struct {
	grpcServer *grpc.Server
	health     *health.Server
	source     HealthSource
	tools      *tools.Registry
	logger     zerolog.Logger

	pollInterval time.Duration
	startedAt    time.Time
}

// Config holds server configuration options.
type Config struct {
	// PollInterval is how often health statuses are refreshed.
	PollInterval time.Duration
	Logger       zerolog.Logger
}

// New creates a gRPC server serving the standard health service and, when
// registry is non-nil, the memory service.
func New(cfg Config, source HealthSource, registry *tools.Registry) *Server {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 15 * time.Second
	}
	s := &Server{
		health:       health.NewServer(),
		source:       source,
		tools:        registry,
		logger:       cfg.Logger.With().Str("component", "grpc-server").Logger(),
		pollInterval: cfg.PollInterval,
	}

	// Create gRPC server with interceptors
	s.grpcServer = grpc.NewServer(
		grpc.ChainUnaryInterceptor(s.loggingInterceptor),
		grpc.ChainStreamInterceptor(s.streamLoggingInterceptor),
	)

	healthpb.RegisterHealthServer(s.grpcServer, s.health)
	if registry != nil {
		desc := s.memoryServiceDesc()
		s.grpcServer.RegisterService(&desc, s)
	}
	// Not serving until the first health poll says otherwise.
	s.health.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)

	// Enable reflection for debugging tools like grpcurl
	reflection.Register(s.grpcServer)

	return s
}

// Serve starts the gRPC server on the given listener.
func (s *Server) Serve(listener net.Listener) error {
	s.startedAt = time.Now()
	s.logger.Info().Str("address", listener.Addr().String()).Msg("Starting gRPC server")
	return s.grpcServer.Serve(listener)
}

// ServeUnix starts the server on a Unix domain socket.
func (s *Server) ServeUnix(socketPath string) error {
	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return err
	}
	return s.Serve(listener)
}

// ServeTCP starts the server on a TCP address.
func (s *Server) ServeTCP(address string) error {
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return err
	}
	return s.Serve(listener)
}

// GracefulStop marks every service NOT_SERVING and stops the server once
// in-flight RPCs finish.
func (s *Server) GracefulStop() {
	s.logger.Info().Dur("uptime", time.Since(s.startedAt)).Msg("Gracefully stopping gRPC server")
	s.health.Shutdown()
	s.grpcServer.GracefulStop()
}

// Stop immediately stops the server.
func (s *Server) Stop() {
	s.logger.Info().Dur("uptime", time.Since(s.startedAt)).Msg("Stopping gRPC server")
	s.health.Shutdown()
	s.grpcServer.Stop()
}

// loggingInterceptor logs each unary RPC with its caller and status code.
// Caller mistakes log at warn; everything else that fails logs at error.
func (s *Server) loggingInterceptor(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	s.logRPC(info.FullMethod, callerFromContext(ctx), time.Since(start), err)
	return resp, err
}

// streamLoggingInterceptor logs streaming RPCs such as health Watch.
func (s *Server) streamLoggingInterceptor(srv interface{}, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
	start := time.Now()
	err := handler(srv, ss)
	s.logRPC(info.FullMethod, callerFromContext(ss.Context()), time.Since(start), err)
	return err
}

func (s *Server) logRPC(method, caller string, d time.Duration, err error) {
	code := status.Code(err)
	var event *zerolog.Event
	switch code {
	case codes.OK:
		event = s.logger.Debug()
	case codes.InvalidArgument, codes.NotFound, codes.PermissionDenied, codes.Canceled:
		event = s.logger.Warn().Err(err)
	default:
		event = s.logger.Error().Err(err)
	}
	event.Str("method", method).
		Str("caller", caller).
		Str("code", code.String()).
		Dur("duration", d).
		Msg("RPC finished")
}
