// Package healthcheck runs the admin gRPC server: the standard health
// service with one entry per dependency, plus reflection for grpcurl.
package healthcheck

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// Check probes one dependency. A nil error means healthy.
type Check func(ctx context.Context) error

type Server struct {
	grpcServer *grpc.Server
	health     *health.Server
	log        *slog.Logger
	interval   time.Duration
	timeout    time.Duration

	mu     sync.Mutex
	checks map[string]Check
}

type Option func(*Server)

func WithInterval(d time.Duration) Option {
	return func(s *Server) { s.interval = d }
}

func WithCheckTimeout(d time.Duration) Option {
	return func(s *Server) { s.timeout = d }
}

func New(log *slog.Logger, opts ...Option) *Server {
	s := &Server{
		grpcServer: grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler())),
		health:     health.NewServer(),
		log:        log,
		interval:   10 * time.Second,
		timeout:    2 * time.Second,
		checks:     make(map[string]Check),
	}
	for _, opt := range opts {
		opt(s)
	}

	healthpb.RegisterHealthServer(s.grpcServer, s.health)
	reflection.Register(s.grpcServer)
	return s
}

// Register adds a named dependency. It reports NOT_SERVING until the first
// probe passes.
func (s *Server) Register(name string, check Check) {
	s.mu.Lock()
	s.checks[name] = check
	s.mu.Unlock()
	s.health.SetServingStatus(name, healthpb.HealthCheckResponse_NOT_SERVING)
}

// Probe runs every check once and updates the health service. The overall
// status ("") is SERVING only when every dependency is.
func (s *Server) Probe(ctx context.Context) {
	s.mu.Lock()
	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	checks := make(map[string]Check, len(s.checks))
	for k, v := range s.checks {
		checks[k] = v
	}
	s.mu.Unlock()
	sort.Strings(names)

	overall := healthpb.HealthCheckResponse_SERVING
	for _, name := range names {
		cctx, cancel := context.WithTimeout(ctx, s.timeout)
		err := checks[name](cctx)
		cancel()

		status := healthpb.HealthCheckResponse_SERVING
		if err != nil {
			status = healthpb.HealthCheckResponse_NOT_SERVING
			overall = healthpb.HealthCheckResponse_NOT_SERVING
			s.log.WarnContext(ctx, "dependency unhealthy",
				slog.String("dependency", name), slog.String("error", err.Error()))
		}
		s.health.SetServingStatus(name, status)
	}
	s.health.SetServingStatus("", overall)
}

// Run probes on a ticker until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	s.Probe(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.Probe(ctx)
		}
	}
}

func (s *Server) Serve(lis net.Listener) error {
	s.log.Info("admin gRPC server listening", slog.String("addr", lis.Addr().String()))
	if err := s.grpcServer.Serve(lis); err != nil {
		return fmt.Errorf("failed to serve gRPC: %w", err)
	}
	return nil
}

// Shutdown marks everything NOT_SERVING and stops accepting new RPCs.
func (s *Server) Shutdown() {
	s.health.Shutdown()
	s.grpcServer.GracefulStop()
}
