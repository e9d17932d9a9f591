package server

import (
	"context"
	"time"

	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/aschepis/backscratcher/memtier/engine"
)

// ServicePrefix names per-subsystem health services, e.g. "memtier.search".
const ServicePrefix = "memtier."

// servingStatus maps an engine status to a health status. Degraded and
// disabled subsystems still serve.
func servingStatus(status string) healthpb.HealthCheckResponse_ServingStatus {
	switch status {
	case engine.StatusOK, engine.StatusDegraded, engine.StatusDisabled:
		return healthpb.HealthCheckResponse_SERVING
	default:
		return healthpb.HealthCheckResponse_NOT_SERVING
	}
}

// Refresh polls the engine once and publishes the statuses. A failed poll
// marks the server NOT_SERVING.
func (s *Server) Refresh(ctx context.Context) {
	h, err := s.source.GetHealth(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Health poll failed")
		s.health.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
		return
	}
	s.health.SetServingStatus("", servingStatus(h.Status))
	for name, status := range h.Subsystems {
		s.health.SetServingStatus(ServicePrefix+name, servingStatus(status))
	}
	s.logger.Debug().Str("status", h.Status).Interface("subsystems", h.Subsystems).Msg("Health refreshed")
}

// WatchHealth refreshes statuses every poll interval until ctx is cancelled.
func (s *Server) WatchHealth(ctx context.Context) {
	s.Refresh(ctx)
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Refresh(ctx)
		}
	}
}
