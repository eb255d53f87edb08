// Package grpcserver exposes the worker's health over the standard gRPC
// health protocol so orchestrators can probe it without an HTTP sidecar.
//
// Serving status is driven from outside: the scheduler's store probe calls
// SetServing after every ping.
package grpcserver

import (
	"context"
	"log/slog"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"
)

// ServiceName is the health-check service name for the search worker.
const ServiceName = "reposcout.search.Worker"

// Server owns the gRPC server and its health registry.
type Server struct {
	srv    *grpc.Server
	health *health.Server
	logger *slog.Logger
}

// NewServer constructs a Server that starts out NOT_SERVING until the first
// successful probe.
func NewServer(logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "grpc")

	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(logUnary(logger)))
	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	reflection.Register(srv)

	s := &Server{srv: srv, health: hs, logger: logger}
	s.SetServing(false)
	return s
}

// ─── Health ──────────────────────────────────────────────────────────────────

// SetServing flips both the overall and the worker service status.
func (s *Server) SetServing(ok bool) {
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if ok {
		st = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", st)
	s.health.SetServingStatus(ServiceName, st)
}

// ─── Lifecycle ───────────────────────────────────────────────────────────────

// Serve accepts connections on lis until Stop is called.
func (s *Server) Serve(lis net.Listener) error {
	s.logger.Info("grpc listening", "addr", lis.Addr().String())
	return s.srv.Serve(lis)
}

// Stop marks every service NOT_SERVING, then drains in-flight RPCs, forcing
// the close after timeout.
func (s *Server) Stop(timeout time.Duration) {
	s.health.Shutdown()

	done := make(chan struct{})
	go func() {
		s.srv.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		s.logger.Warn("graceful stop timed out — forcing")
		s.srv.Stop()
	}
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

func logUnary(logger *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		logger.Debug("rpc",
			"method", info.FullMethod,
			"code", status.Code(err).String(),
			"duration", time.Since(start))
		return resp, err
	}
}
