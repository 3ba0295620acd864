// Package healthsvc exposes the broker's liveness over gRPC health
// checking, alongside the plain HTTP /health endpoint. It lets
// orchestrators (Kubernetes, etcd-based service meshes) probe the broker
// with the same protocol they use for every other gRPC service, while the
// worker pool's actual health still only needs the registry snapshot.
package healthsvc

import (
	"context"
	"fmt"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the gRPC health-checking service name reported for the
// broker's dispatch path, distinct from the server's overall liveness
// (the empty service name "").
const ServiceName = "chatrelay.broker.Dispatch"

// WorkerCounts is the subset of a registry snapshot the health service
// needs to decide serving status.
type WorkerCounts struct {
	Total int
	Idle  int
	Busy  int
}

// Server wraps a grpc.Server exposing only the health-checking service,
// plus the logic that flips it between SERVING and NOT_SERVING as the
// worker pool empties out or refills.
type Server struct {
	grpcServer *grpc.Server
	health     *health.Server
	listener   net.Listener
	port       int
}

// New binds a listener on port and registers the gRPC health service on
// it. It does not start serving until Serve is called.
func New(port int) (*Server, error) {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, fmt.Errorf("failed to listen on port %d: %w", port, err)
	}

	grpcServer := grpc.NewServer()
	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)

	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(ServiceName, grpc_health_v1.HealthCheckResponse_NOT_SERVING)

	return &Server{grpcServer: grpcServer, health: healthServer, listener: lis, port: port}, nil
}

// Serve blocks until ctx is canceled, then gracefully stops the gRPC server.
func (s *Server) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.grpcServer.Serve(s.listener)
	}()

	select {
	case <-ctx.Done():
		s.grpcServer.GracefulStop()
		return nil
	case err := <-errCh:
		return err
	}
}

// Stop force-stops the gRPC server immediately.
func (s *Server) Stop() {
	s.grpcServer.Stop()
}

// Port returns the bound listener port.
func (s *Server) Port() int {
	return s.port
}

// Refresh flips the dispatch service's serving status based on whether
// any worker is currently connected (ready, idle or busy): a registry with
// zero workers cannot accept a dispatch, so reports NOT_SERVING even though
// the broker process itself is alive.
func (s *Server) Refresh(counts WorkerCounts) {
	status := grpc_health_v1.HealthCheckResponse_NOT_SERVING
	if counts.Total > 0 {
		status = grpc_health_v1.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus(ServiceName, status)
}

// RunRefreshLoop polls snapshot on the given interval and calls Refresh,
// until ctx is canceled.
func (s *Server) RunRefreshLoop(ctx context.Context, interval time.Duration, snapshot func() WorkerCounts) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Refresh(snapshot())
		}
	}
}
