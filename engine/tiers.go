package engine

import (
	"context"

	"github.com/aschepis/backscratcher/memtier/memory"
	"github.com/aschepis/backscratcher/memtier/tiering"
)

// Promote moves a memory to a strictly higher tier.
func (e *Engine) Promote(ctx context.Context, id string, tier memory.Tier) (*memory.TierTransition, error) {
	return e.changeTier(ctx, id, tier, e.tiers.Promote)
}

// Demote moves a memory to a strictly lower tier.
func (e *Engine) Demote(ctx context.Context, id string, tier memory.Tier) (*memory.TierTransition, error) {
	return e.changeTier(ctx, id, tier, e.tiers.Demote)
}

// SetTier moves a memory to any tier. It returns nil when nothing changed.
func (e *Engine) SetTier(ctx context.Context, id string, tier memory.Tier) (*memory.TierTransition, error) {
	return e.changeTier(ctx, id, tier, e.tiers.SetTier)
}

type tierChange func(ctx context.Context, id string, tier memory.Tier) (*memory.TierTransition, error)

func (e *Engine) changeTier(ctx context.Context, id string, tier memory.Tier, apply tierChange) (*memory.TierTransition, error) {
	ctx, done, err := e.enter(ctx)
	if err != nil {
		return nil, err
	}
	defer done()

	if _, err := e.owned(ctx, id, memory.ActionUpdate); err != nil {
		return nil, err
	}
	return apply(ctx, id, tier)
}

// OptimizeMemoryTiers rescores every memory and applies tier changes.
func (e *Engine) OptimizeMemoryTiers(ctx context.Context) (*tiering.OptimizationResult, error) {
	ctx, done, err := e.enter(ctx)
	if err != nil {
		return nil, err
	}
	defer done()

	return e.tiers.Optimize(ctx)
}

// GetTierMetrics reports tier counts and the last optimization summary.
func (e *Engine) GetTierMetrics(ctx context.Context) (*tiering.Metrics, error) {
	ctx, done, err := e.enter(ctx)
	if err != nil {
		return nil, err
	}
	defer done()

	return e.tiers.Metrics(ctx)
}

// GetMemoryScore scores one memory without changing it.
func (e *Engine) GetMemoryScore(ctx context.Context, id string) (*memory.Score, error) {
	ctx, done, err := e.enter(ctx)
	if err != nil {
		return nil, err
	}
	defer done()

	if _, err := e.owned(ctx, id, memory.ActionRead); err != nil {
		return nil, err
	}
	return e.tiers.ScoreMemory(ctx, id)
}

// GetTransitions returns the tier audit log, newest first. An empty id
// lists transitions for every memory.
func (e *Engine) GetTransitions(ctx context.Context, id string, limit int) ([]memory.TierTransition, error) {
	ctx, done, err := e.enter(ctx)
	if err != nil {
		return nil, err
	}
	defer done()

	if id != "" {
		if _, err := e.owned(ctx, id, memory.ActionRead); err != nil {
			return nil, err
		}
	}
	return e.tiers.Transitions(ctx, id, limit)
}
