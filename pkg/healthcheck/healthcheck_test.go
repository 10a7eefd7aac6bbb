package healthcheck

import (
	"context"
	"errors"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"

	"github.com/shabazpatel/acp-infra/pkg/logger"
)

func startServer(t *testing.T, s *Server) healthpb.HealthClient {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	go func() { _ = s.Serve(lis) }()
	t.Cleanup(s.Shutdown)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	return healthpb.NewHealthClient(conn)
}

func status(t *testing.T, client healthpb.HealthClient, service string) healthpb.HealthCheckResponse_ServingStatus {
	t.Helper()
	resp, err := client.Check(context.Background(), &healthpb.HealthCheckRequest{Service: service})
	require.NoError(t, err)
	return resp.GetStatus()
}

func TestProbe_AllHealthy(t *testing.T) {
	s := New(logger.Nop())
	s.Register("postgres", func(context.Context) error { return nil })
	s.Register("redis", func(context.Context) error { return nil })
	client := startServer(t, s)

	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, status(t, client, "postgres"))

	s.Probe(context.Background())

	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, status(t, client, ""))
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, status(t, client, "postgres"))
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, status(t, client, "redis"))
}

func TestProbe_OneUnhealthy(t *testing.T) {
	s := New(logger.Nop())
	s.Register("postgres", func(context.Context) error { return nil })
	s.Register("kafka", func(context.Context) error { return errors.New("no brokers") })
	client := startServer(t, s)

	s.Probe(context.Background())

	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, status(t, client, ""))
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, status(t, client, "postgres"))
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, status(t, client, "kafka"))
}

func TestProbe_CheckTimeout(t *testing.T) {
	s := New(logger.Nop(), WithCheckTimeout(10*time.Millisecond))
	s.Register("slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	client := startServer(t, s)

	s.Probe(context.Background())

	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, status(t, client, "slow"))
}

func TestRun_ProbesOnTicker(t *testing.T) {
	var calls atomic.Int32
	s := New(logger.Nop(), WithInterval(5*time.Millisecond))
	s.Register("db", func(context.Context) error {
		calls.Add(1)
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	assert.Eventually(t, func() bool { return calls.Load() >= 3 }, time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)
}

func TestUnknownServiceIsNotFound(t *testing.T) {
	s := New(logger.Nop())
	client := startServer(t, s)

	_, err := client.Check(context.Background(), &healthpb.HealthCheckRequest{Service: "nope"})
	assert.Error(t, err)
}
