// Package health exposes the standard gRPC health service, driven by store pings.
package health

import (
	"context"
	"log/slog"
	"net"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"chat-gateway/internal/observability"
)

// ServiceName is the health service name reported alongside the overall status.
const ServiceName = "chat.gateway"

const pingTimeout = 2 * time.Second

// Pinger checks a backend dependency.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Server struct {
	grpc     *grpc.Server
	health   *health.Server
	pinger   Pinger
	interval time.Duration
	log      *slog.Logger
}

func NewServer(pinger Pinger, interval time.Duration, log *slog.Logger) *Server {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	gs := grpc.NewServer(
		grpc.UnaryInterceptor(observability.GRPCServerMetricsUnaryInterceptor()),
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
	)
	hs := health.NewServer()
	healthpb.RegisterHealthServer(gs, hs)
	reflection.Register(gs)

	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)

	return &Server{grpc: gs, health: hs, pinger: pinger, interval: interval, log: log}
}

// Serve blocks serving gRPC on lis.
func (s *Server) Serve(lis net.Listener) error {
	s.log.Info("grpc health server listening", "addr", lis.Addr().String())
	return s.grpc.Serve(lis)
}

// Watch pings the store until ctx is done, updating the serving status after each ping.
func (s *Server) Watch(ctx context.Context) {
	s.Check(ctx)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Check(ctx)
		}
	}
}

// Check pings once and returns the resulting status.
func (s *Server) Check(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	status := healthpb.HealthCheckResponse_SERVING
	if s.pinger != nil {
		pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
		err := s.pinger.Ping(pingCtx)
		cancel()
		if err != nil {
			s.log.Warn("store ping failed", "error", err)
			status = healthpb.HealthCheckResponse_NOT_SERVING
		}
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)
	return status
}

// Shutdown marks the service as not serving and stops the server gracefully.
func (s *Server) Shutdown() {
	s.health.Shutdown()
	s.grpc.GracefulStop()
}
