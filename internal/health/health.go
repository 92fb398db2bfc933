// Package health exposes service health over the standard gRPC health
// protocol and keeps it current with a periodic store probe.
package health

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Service is the name reported alongside the overall ("") status.
const Service = "careerbot"

// Pinger is anything that can report reachability, usually the store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server serves gRPC health checks.
type Server struct {
	grpc   *grpc.Server
	health *health.Server
}

// NewServer creates a health server that starts out NOT_SERVING until the
// first probe succeeds.
func NewServer() *Server {
	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	hs.SetServingStatus(Service, healthpb.HealthCheckResponse_NOT_SERVING)

	gs := grpc.NewServer()
	healthpb.RegisterHealthServer(gs, hs)
	return &Server{grpc: gs, health: hs}
}

// Checker returns the underlying health service.
func (s *Server) Checker() healthpb.HealthServer {
	return s.health
}

// SetServing updates the overall and service status.
func (s *Server) SetServing(ok bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if ok {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(Service, status)
}

// Serve listens on addr until ctx is done.
func (s *Server) Serve(ctx context.Context, addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen health %s: %w", addr, err)
	}
	return s.ServeListener(ctx, lis)
}

// ServeListener serves on lis until ctx is done.
func (s *Server) ServeListener(ctx context.Context, lis net.Listener) error {
	go func() {
		<-ctx.Done()
		s.health.Shutdown()
		s.grpc.GracefulStop()
	}()

	slog.Info("gRPC health listening", "addr", lis.Addr().String())
	if err := s.grpc.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return fmt.Errorf("serve health: %w", err)
	}
	return nil
}

// StartProbe pings target every interval and mirrors the result into the
// health status. The first probe runs immediately.
func (s *Server) StartProbe(ctx context.Context, target Pinger, interval, timeout time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		slog.Info("Health probe started", "interval", interval)

		s.probe(ctx, target, timeout)
		for {
			select {
			case <-ticker.C:
				s.probe(ctx, target, timeout)
			case <-ctx.Done():
				slog.Info("Health probe shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}

func (s *Server) probe(ctx context.Context, target Pinger, timeout time.Duration) bool {
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := target.Ping(pingCtx)
	if err != nil {
		slog.Warn("Health probe failed", "error", err)
	}
	s.SetServing(err == nil)
	return err == nil
}
