package health

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/banshee-data/anchorsync/internal/monitoring"
)

func init() {
	monitoring.SetLogger(nil)
}

func status(t *testing.T, checker interface {
	Check(context.Context, *healthpb.HealthCheckRequest) (*healthpb.HealthCheckResponse, error)
}) healthpb.HealthCheckResponse_ServingStatus {
	t.Helper()
	resp, err := checker.Check(context.Background(), &healthpb.HealthCheckRequest{Service: ServiceName})
	require.NoError(t, err)
	return resp.GetStatus()
}

func TestReport_Transitions(t *testing.T) {
	t.Parallel()

	s := NewServer("127.0.0.1:0")
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, status(t, s.Checker()))

	s.Report(true)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, status(t, s.Checker()))

	s.Report(false)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, status(t, s.Checker()))
}

func TestServer_ServesOverGRPC(t *testing.T) {
	t.Parallel()

	s := NewServer("127.0.0.1:0")
	require.NoError(t, s.Start())
	defer s.Stop()
	assert.Error(t, s.Start(), "double start")

	conn, err := grpc.NewClient(s.Addr(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	defer conn.Close()
	client := healthpb.NewHealthClient(conn)

	s.Report(true)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())
}

func TestStop_Idempotent(t *testing.T) {
	t.Parallel()

	s := NewServer("127.0.0.1:0")
	s.Stop()
	require.NoError(t, s.Start())
	s.Stop()
	s.Stop()
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, status(t, s.Checker()))
}
