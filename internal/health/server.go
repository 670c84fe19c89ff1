// Package health exposes the anchor pipeline's running state over the
// standard gRPC health checking protocol.
package health

import (
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/banshee-data/anchorsync/internal/monitoring"
)

// ServiceName is the health service reported for the anchor pipeline.
const ServiceName = "anchorsync"

// Server serves grpc.health.v1.Health. The status of ServiceName follows
// whatever Report was last called with; it starts NOT_SERVING.
type Server struct {
	addr     string
	checker  *health.Server
	server   *grpc.Server
	listener net.Listener
	running  atomic.Bool
	wg       sync.WaitGroup
}

// NewServer creates a server that will listen on addr, e.g. "localhost:50051".
func NewServer(addr string) *Server {
	checker := health.NewServer()
	checker.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	return &Server{addr: addr, checker: checker}
}

// Checker returns the underlying health service.
func (s *Server) Checker() *health.Server { return s.checker }

// Report sets the serving status from the pipeline's running state. It is
// safe to call from the frame loop while the server is serving.
func (s *Server) Report(running bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if running {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.checker.SetServingStatus(ServiceName, status)
}

// Start binds the listener and serves in the background.
func (s *Server) Start() error {
	if s.running.Load() {
		return fmt.Errorf("health server already running")
	}

	lis, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	s.listener = lis
	s.server = grpc.NewServer()
	healthpb.RegisterHealthServer(s.server, s.checker)
	s.running.Store(true)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		monitoring.Logf("health: gRPC server listening on %s", lis.Addr())
		if err := s.server.Serve(lis); err != nil && s.running.Load() {
			monitoring.Errorf("health: gRPC server: %v", err)
		}
	}()
	return nil
}

// Addr returns the bound address, or the configured one before Start.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// Stop marks every service NOT_SERVING and stops the server gracefully.
func (s *Server) Stop() {
	if !s.running.Load() {
		return
	}
	s.running.Store(false)
	s.checker.Shutdown()
	s.server.GracefulStop()
	s.wg.Wait()
	monitoring.Logf("health: gRPC server stopped")
}
