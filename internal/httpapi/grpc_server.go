package httpapi

import (
	"context"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"assetdesk.org/internal/logging"
)

type readinessChecker interface {
	Check(ctx context.Context) error
}

// GRPCHealth serves grpc.health.v1 with a status driven by the same
// readiness probe as /readyz.
type GRPCHealth struct {
	srv       *health.Server
	readiness readinessChecker

	mu   sync.Mutex
	last healthpb.HealthCheckResponse_ServingStatus
}

func NewGRPCHealth(r readinessChecker) *GRPCHealth {
	h := &GRPCHealth{srv: health.NewServer(), readiness: r}
	h.set(healthpb.HealthCheckResponse_NOT_SERVING)
	return h
}

// Register adds the health service to s.
func (h *GRPCHealth) Register(s *grpc.Server) {
	healthpb.RegisterHealthServer(s, h.srv)
}

// Probe runs the readiness check once and publishes the result.
func (h *GRPCHealth) Probe(ctx context.Context) {
	status := healthpb.HealthCheckResponse_SERVING
	if err := h.readiness.Check(ctx); err != nil {
		logging.Warn().Err(err).Msg("grpc health: not ready")
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	h.set(status)
}

// Run probes every interval until ctx is done, then reports NOT_SERVING
// so clients drain before the server stops.
func (h *GRPCHealth) Run(ctx context.Context, interval time.Duration) {
	h.Probe(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			h.srv.Shutdown()
			return
		case <-ticker.C:
			h.Probe(ctx)
		}
	}
}

func (h *GRPCHealth) set(status healthpb.HealthCheckResponse_ServingStatus) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if status != h.last {
		logging.Info().Str("status", status.String()).Msg("grpc health status")
	}
	h.last = status
	h.srv.SetServingStatus("", status)
	h.srv.SetServingStatus(serviceName, status)
}
