package engine

import (
	"context"
	"time"

	"github.com/aschepis/backscratcher/memtier/memory"
)

// Subsystem status values.
const (
	StatusOK       = "ok"
	StatusDegraded = "degraded"
	StatusDisabled = "disabled"
	StatusDown     = "down"
)

// CacheStats describes the embedding cache.
type CacheStats struct {
	Hits   uint64 `json:"hits"`
	Misses uint64 `json:"misses"`
	// Cost is the number of cached vector components.
	Cost int64 `json:"cost"`
}

// Health is a point-in-time status report.
type Health struct {
	Status     string            `json:"status"`
	Counts     memory.Counts     `json:"counts"`
	Cache      *CacheStats       `json:"cache,omitempty"`
	Subsystems map[string]string `json:"subsystems"`
	Model      string            `json:"model,omitempty"`
	Uptime     time.Duration     `json:"uptime"`
}

// GetHealth reports counts by type and tier, cache usage and a status per
// subsystem.
func (e *Engine) GetHealth(ctx context.Context) (*Health, error) {
	ctx, done, err := e.enter(ctx)
	if err != nil {
		return nil, err
	}
	defer done()

	h := &Health{
		Status: StatusOK,
		Subsystems: map[string]string{
			"persistence": StatusOK,
			"embedding":   StatusDisabled,
			"search":      StatusOK,
			"graph":       StatusOK,
			"tiering":     StatusOK,
		},
	}
	if err := e.repo.Ping(ctx); err != nil {
		e.logger.Error().Err(err).Msg("Health check: persistence unreachable")
		h.Subsystems["persistence"] = StatusDown
		h.Subsystems["search"] = StatusDown
		h.Subsystems["graph"] = StatusDown
		h.Subsystems["tiering"] = StatusDown
		h.Status = StatusDown
	} else if h.Counts, err = e.repo.CountMemories(ctx); err != nil {
		h.Subsystems["persistence"] = StatusDegraded
		h.Status = StatusDegraded
	}

	if e.embedder != nil {
		h.Model = e.embedder.Model()
		h.Subsystems["embedding"] = StatusOK
	} else if h.Subsystems["search"] == StatusOK {
		// Lexical search still works.
		h.Subsystems["search"] = StatusDegraded
	}
	if e.cache != nil {
		hits, misses := e.cache.Stats()
		h.Cache = &CacheStats{Hits: hits, Misses: misses, Cost: e.cache.Cost()}
	}

	e.mu.RLock()
	if e.ready {
		h.Uptime = e.now().Sub(e.startedAt)
	}
	e.mu.RUnlock()
	return h, nil
}
