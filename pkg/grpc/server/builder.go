package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	health "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

type Option func(*options)

type options struct {
	port              int
	logger            *zap.Logger
	reflection        bool
	unaryInterceptors []grpc.UnaryServerInterceptor
	enableLogging     bool
	shutdownTimeout   time.Duration
}

func WithPort(port int) Option {
	return func(o *options) {
		o.port = port
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

func WithReflection(enabled bool) Option {
	return func(o *options) {
		o.reflection = enabled
	}
}

func WithUnaryInterceptors(interceptors ...grpc.UnaryServerInterceptor) Option {
	return func(o *options) {
		o.unaryInterceptors = append(o.unaryInterceptors, interceptors...)
	}
}

func WithLogging(enabled bool) Option {
	return func(o *options) {
		o.enableLogging = enabled
	}
}

// WithShutdownTimeout bounds how long Serve waits for in-flight calls after
// its context ends before forcing the stop.
func WithShutdownTimeout(d time.Duration) Option {
	return func(o *options) {
		o.shutdownTimeout = d
	}
}

// Server is a gRPC server whose only built-in surface is the standard health
// service. Named health entries report whether a background job is healthy.
type Server struct {
	grpcServer      *grpc.Server
	lis             net.Listener
	logger          *zap.Logger
	healthServer    *health.Server
	shutdownTimeout time.Duration
}

// New binds the listener and builds the server. Port 0 picks a free port.
func New(opts ...Option) (*Server, error) {
	o := &options{
		port:            50051,
		logger:          zap.NewNop(),
		shutdownTimeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.port < 0 || o.port > 65535 {
		return nil, fmt.Errorf("invalid port %d: must be between 0 and 65535", o.port)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", o.port))
	if err != nil {
		return nil, fmt.Errorf("failed to listen on port %d: %w", o.port, err)
	}

	var interceptors []grpc.UnaryServerInterceptor
	if o.enableLogging {
		interceptors = append(interceptors, LoggingInterceptor(o.logger))
	}
	interceptors = append(interceptors, o.unaryInterceptors...)

	var serverOpts []grpc.ServerOption
	if len(interceptors) > 0 {
		serverOpts = append(serverOpts, grpc.ChainUnaryInterceptor(interceptors...))
	}
	grpcServer := grpc.NewServer(serverOpts...)
	if o.reflection {
		reflection.Register(grpcServer)
	}

	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	return &Server{
		grpcServer:      grpcServer,
		lis:             lis,
		logger:          o.logger.Named("grpc-server"),
		healthServer:    healthServer,
		shutdownTimeout: o.shutdownTimeout,
	}, nil
}

// RegisterHealth adds a named health entry, initially NOT_SERVING until the
// first SetServing call.
func (s *Server) RegisterHealth(serviceName string) {
	s.healthServer.SetServingStatus(serviceName, healthpb.HealthCheckResponse_NOT_SERVING)
	s.logger.Info("registered health entry", zap.String("service", serviceName))
}

// SetServing flips a named health entry between SERVING and NOT_SERVING.
func (s *Server) SetServing(serviceName string, serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.healthServer.SetServingStatus(serviceName, status)
	s.logger.Debug("updated service health",
		zap.String("service", serviceName),
		zap.String("status", status.String()))
}

// Serve blocks until ctx ends or the listener fails. On ctx end every health
// entry flips to NOT_SERVING and in-flight calls get the shutdown timeout to
// finish. A clean shutdown returns nil.
func (s *Server) Serve(ctx context.Context) error {
	addr := s.lis.Addr().String()
	s.logger.Info("gRPC server starting", zap.String("addr", addr))

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.grpcServer.Serve(s.lis)
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("grpc serve on %s: %w", addr, err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("gRPC server shutting down")
	s.healthServer.Shutdown()

	done := make(chan struct{})
	go func() {
		s.grpcServer.GracefulStop()
		close(done)
	}()

	timer := time.NewTimer(s.shutdownTimeout)
	defer timer.Stop()
	select {
	case <-done:
		s.logger.Info("gRPC server stopped")
	case <-timer.C:
		s.logger.Warn("forced shutdown due to timeout")
		s.grpcServer.Stop()
	}
	return nil
}

// Addr returns the server's listening address.
func (s *Server) Addr() net.Addr {
	return s.lis.Addr()
}
