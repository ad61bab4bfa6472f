package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/Zhima-Mochi/minishop-orders/internal/observability"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"
)

const (
	healthServiceName   = "minishop.orders"
	healthProbeInterval = 10 * time.Second
	healthProbeTimeout  = 2 * time.Second
)

// healthServer exposes grpc.health.v1 and keeps its status in step with the store.
type healthServer struct {
	grpc     *grpc.Server
	health   *health.Server
	ping     func(ctx context.Context) error
	interval time.Duration
	log      observability.Logger
	serving  bool
}

func newHealthServer(ping func(ctx context.Context) error, log observability.Logger) *healthServer {
	grpcServer := grpc.NewServer()
	hs := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, hs)
	return &healthServer{
		grpc:     grpcServer,
		health:   hs,
		ping:     ping,
		interval: healthProbeInterval,
		log:      log,
	}
}

// Serve listens on addr until ctx is cancelled.
func (s *healthServer) Serve(ctx context.Context, addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	return s.serve(ctx, listener)
}

func (s *healthServer) serve(ctx context.Context, listener net.Listener) error {
	s.probe(ctx)
	go s.watch(ctx)

	s.log.Info("grpc_health_start", observability.F("addr", listener.Addr().String()))
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- s.grpc.Serve(listener)
	}()

	select {
	case <-ctx.Done():
		s.health.Shutdown()
		s.grpc.GracefulStop()
		err := <-serveErr
		if err == nil || errors.Is(err, grpc.ErrServerStopped) {
			return nil
		}
		return fmt.Errorf("serve gRPC health: %w", err)
	case err := <-serveErr:
		if err == nil || errors.Is(err, grpc.ErrServerStopped) {
			return nil
		}
		return fmt.Errorf("serve gRPC health: %w", err)
	}
}

func (s *healthServer) watch(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.probe(ctx)
		}
	}
}

// probe pings the store and logs only when the status flips.
func (s *healthServer) probe(ctx context.Context) {
	status := grpc_health_v1.HealthCheckResponse_SERVING
	var pingErr error
	if s.ping != nil {
		pctx, cancel := context.WithTimeout(ctx, healthProbeTimeout)
		pingErr = s.ping(pctx)
		cancel()
	}
	if pingErr != nil {
		if ctx.Err() != nil {
			return
		}
		status = grpc_health_v1.HealthCheckResponse_NOT_SERVING
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(healthServiceName, status)

	serving := pingErr == nil
	if serving == s.serving {
		return
	}
	s.serving = serving
	if serving {
		s.log.Info("health_serving")
	} else {
		s.log.Warn("health_not_serving", observability.F("error", pingErr))
	}
}
