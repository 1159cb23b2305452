// Package grpc serves the standard gRPC health service for the messaging
// process. Dependency checks run on an interval and drive the per-service
// serving status.
package grpc

import (
	"context"
	"net"
	"sync"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.uber.org/zap"
	gogrpc "google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"campus-messaging/internal/logger"
	"campus-messaging/internal/observability"
)

// Check tests one dependency. A nil error means healthy.
type Check func(ctx context.Context) error

const checkTimeout = 3 * time.Second

// HealthServer owns a gRPC server that exposes grpc.health.v1.Health. Every
// check is published as its own service name; the empty service name is
// SERVING only while all checks pass.
type HealthServer struct {
	server   *gogrpc.Server
	health   *health.Server
	checks   map[string]Check
	interval time.Duration
	log      *logger.Logger

	mu   sync.RWMutex
	last map[string]error
}

func NewHealthServer(checks map[string]Check, interval time.Duration, log *logger.Logger) *HealthServer {
	server := gogrpc.NewServer(
		gogrpc.StatsHandler(otelgrpc.NewServerHandler()),
		gogrpc.UnaryInterceptor(observability.GRPCServerMetricsUnaryInterceptor()),
	)
	hs := health.NewServer()
	healthpb.RegisterHealthServer(server, hs)

	h := &HealthServer{
		server:   server,
		health:   hs,
		checks:   checks,
		interval: interval,
		log:      log,
		last:     make(map[string]error),
	}
	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	return h
}

// Serve blocks serving gRPC on lis.
func (h *HealthServer) Serve(lis net.Listener) error {
	return h.server.Serve(lis)
}

// Run checks immediately and then every interval until ctx ends.
func (h *HealthServer) Run(ctx context.Context) {
	h.CheckAll(ctx)
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.CheckAll(ctx)
		}
	}
}

// CheckAll runs every check once and updates the serving status.
func (h *HealthServer) CheckAll(ctx context.Context) bool {
	results := make(map[string]error, len(h.checks))
	healthy := true
	for name, check := range h.checks {
		cctx, cancel := context.WithTimeout(ctx, checkTimeout)
		err := check(cctx)
		cancel()

		results[name] = err
		status := healthpb.HealthCheckResponse_SERVING
		if err != nil {
			healthy = false
			status = healthpb.HealthCheckResponse_NOT_SERVING
			h.log.Warn("health check failed", zap.String("check", name), zap.Error(err))
		}
		h.health.SetServingStatus(name, status)
	}

	overall := healthpb.HealthCheckResponse_SERVING
	if !healthy {
		overall = healthpb.HealthCheckResponse_NOT_SERVING
	}
	h.health.SetServingStatus("", overall)

	h.mu.Lock()
	h.last = results
	h.mu.Unlock()
	return healthy
}

// Report returns the result of the latest run per check, "ok" or the error
// text, and whether all checks passed.
func (h *HealthServer) Report() (map[string]string, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make(map[string]string, len(h.last))
	ok := len(h.last) == len(h.checks)
	for name, err := range h.last {
		if err != nil {
			out[name] = err.Error()
			ok = false
			continue
		}
		out[name] = "ok"
	}
	return out, ok
}

// Stop marks every service NOT_SERVING and drains in-flight calls.
func (h *HealthServer) Stop() {
	h.health.Shutdown()
	h.server.GracefulStop()
}
