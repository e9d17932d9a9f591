package graph

import (
	"context"
	"time"

	"github.com/aschepis/backscratcher/memtier/memory"
)

// pruneEpsilon treats strengths this close to zero as fully decayed.
const pruneEpsilon = 1e-9

// DecayResult summarizes one decay pass.
type DecayResult struct {
	Processed int                `json:"processed"`
	Updated   int                `json:"updated"`
	Pruned    int                `json:"pruned"`
	Errors    []memory.ItemError `json:"-"`
	Cancelled bool               `json:"cancelled"`
	Duration  time.Duration      `json:"duration"`
}

// Decayed returns the strength of r at now without mutating it.
func (e *Engine) Decayed(r *memory.Relationship, now time.Time) float64 {
	elapsed := now.Sub(r.DecayedAt)
	if elapsed <= 0 || r.DecayRate == 0 {
		return r.Strength
	}
	intervals := float64(elapsed) / float64(e.cfg.DecayInterval)
	return max(0, r.Strength-r.DecayRate*intervals)
}

// RunDecay lowers every edge's strength by its decay rate for the time
// elapsed since it was last decayed or verified, deleting edges that reach
// zero. Only one pass runs at a time; cancellation stops between edges and
// keeps what was already applied. Each edge is re-read under the write lock
// so a concurrent re-verification is never overwritten.
func (e *Engine) RunDecay(ctx context.Context) (*DecayResult, error) {
	e.decayMu.Lock()
	defer e.decayMu.Unlock()

	start := e.now()
	edges, err := e.store.ListRelationships(ctx)
	if err != nil {
		return nil, err
	}
	res := &DecayResult{}
	for _, snapshot := range edges {
		if ctx.Err() != nil {
			res.Cancelled = true
			break
		}
		res.Processed++
		outcome, err := e.decayOne(ctx, snapshot.ID)
		if err != nil {
			e.logger.Error().Str("id", snapshot.ID).Err(err).Msg("Failed to decay relationship")
			res.Errors = append(res.Errors, memory.ItemError{ID: snapshot.ID, Err: err})
			continue
		}
		switch outcome {
		case decayUpdated:
			res.Updated++
		case decayPruned:
			res.Pruned++
		}
	}
	res.Duration = e.now().Sub(start)
	e.logger.Info().
		Int("processed", res.Processed).
		Int("updated", res.Updated).
		Int("pruned", res.Pruned).
		Int("errors", len(res.Errors)).
		Bool("cancelled", res.Cancelled).
		Msg("Relationship decay pass completed")
	return res, nil
}

type decayOutcome int

const (
	decayUnchanged decayOutcome = iota
	decayUpdated
	decayPruned
)

func (e *Engine) decayOne(ctx context.Context, id string) (decayOutcome, error) {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	r, err := e.store.GetRelationship(ctx, id)
	if err != nil {
		return decayUnchanged, err
	}
	if r == nil {
		return decayUnchanged, nil
	}
	now := e.now()
	s := e.Decayed(r, now)
	if s == r.Strength {
		return decayUnchanged, nil
	}
	if s <= pruneEpsilon {
		if _, err := e.store.DeleteRelationship(ctx, r.ID); err != nil {
			return decayUnchanged, err
		}
		return decayPruned, nil
	}
	r.Strength = s
	r.DecayedAt = now
	if err := e.store.UpdateRelationship(ctx, r); err != nil {
		return decayUnchanged, err
	}
	return decayUpdated, nil
}
