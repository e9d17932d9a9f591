// Package tiering scores memories and moves them between hot, warm and cold
// tiers.
package tiering

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"github.com/aschepis/backscratcher/memtier/memory"
)

// Store is the persistence the tier engine needs. It only ever changes the
// tier of a memory.
type Store interface {
	GetMemory(ctx context.Context, id string) (*memory.Entity, error)
	ListMemoryIDsAfter(ctx context.Context, after string, limit int) ([]string, error)
	ApplyTransition(ctx context.Context, t memory.TierTransition) error
	ListTransitions(ctx context.Context, memoryID string, limit int) ([]memory.TierTransition, error)
	CountMemories(ctx context.Context) (memory.Counts, error)
}

// ConnectionSource supplies the summed strength of each memory's edges.
type ConnectionSource interface {
	WeightedDegrees(ctx context.Context) (map[string]float64, error)
}

// Locker serializes writes to one memory id. Lock returns the unlock func.
type Locker interface {
	Lock(id string) func()
}

type noLocker struct{}

func (noLocker) Lock(string) func() { return func() {} }

// OptimizationResult summarizes one optimization pass.
type OptimizationResult struct {
	Processed    int                     `json:"processed"`
	Transitions  []memory.TierTransition `json:"transitions"`
	TierCounts   map[memory.Tier]int     `json:"tier_counts"`
	TierAverages map[memory.Tier]float64 `json:"tier_averages"`
	// SpaceReclaimed estimates content bytes that left the hot tier, net of
	// bytes that entered it.
	SpaceReclaimed int64              `json:"space_reclaimed"`
	Errors         []memory.ItemError `json:"-"`
	Cancelled      bool               `json:"cancelled"`
	StartedAt      time.Time          `json:"started_at"`
	Duration       time.Duration      `json:"duration"`
}

// Metrics reports tier state and optimization history.
type Metrics struct {
	Counts           memory.Counts       `json:"counts"`
	Passes           int                 `json:"passes"`
	LastOptimization *OptimizationResult `json:"last_optimization,omitempty"`
}

// Engine scores memories and applies tier changes.
type Engine struct {
	store       Store
	connections ConnectionSource
	locker      Locker
	cfg         Config
	now         func() time.Time
	logger      zerolog.Logger

	optMu   sync.Mutex // one optimization pass at a time
	cursor  string     // last id of the previous bounded window, guarded by optMu
	statsMu sync.RWMutex
	last    *OptimizationResult
	passes  int
}

// NewEngine creates a tier engine. connections may be nil, in which case
// every connection score is zero.
func NewEngine(store Store, connections ConnectionSource, cfg Config, logger zerolog.Logger) *Engine {
	return &Engine{
		store:       store,
		connections: connections,
		locker:      noLocker{},
		cfg:         cfg,
		now:         time.Now,
		logger:      logger.With().Str("component", "tiering").Logger(),
	}
}

// SetClock replaces the time source.
func (e *Engine) SetClock(now func() time.Time) { e.now = now }

// SetLocker installs the per-memory write lock shared with other writers.
func (e *Engine) SetLocker(l Locker) { e.locker = l }

// Config returns the scoring configuration.
func (e *Engine) Config() Config { return e.cfg }

func (e *Engine) degrees(ctx context.Context) (map[string]float64, error) {
	if e.connections == nil {
		return map[string]float64{}, nil
	}
	return e.connections.WeightedDegrees(ctx)
}

func (e *Engine) get(ctx context.Context, id string) (*memory.Entity, error) {
	m, err := e.store.GetMemory(ctx, id)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, memory.NewNotFoundError(fmt.Sprintf("memory %s not found", id))
	}
	return m, nil
}

// ScoreMemory scores one memory at the current time.
func (e *Engine) ScoreMemory(ctx context.Context, id string) (*memory.Score, error) {
	m, err := e.get(ctx, id)
	if err != nil {
		return nil, err
	}
	deg, err := e.degrees(ctx)
	if err != nil {
		return nil, err
	}
	s := e.cfg.Score(m, deg[id], e.now())
	return &s, nil
}

// Optimize rescores a snapshot of memory ids and moves every memory whose
// recommended tier differs from its current one. Memories created during
// the pass are left for the next one. Cancellation stops between items and
// keeps the transitions already applied. With MaxWorkingSet set, each pass
// takes the next window of ids after the previous one, wrapping around, so
// every memory is reached.
func (e *Engine) Optimize(ctx context.Context) (*OptimizationResult, error) {
	e.optMu.Lock()
	defer e.optMu.Unlock()

	start := e.now()
	ids, err := e.window(ctx)
	if err != nil {
		return nil, err
	}
	deg, err := e.degrees(ctx)
	if err != nil {
		return nil, err
	}

	res := &OptimizationResult{
		TierCounts:   map[memory.Tier]int{},
		TierAverages: map[memory.Tier]float64{},
		StartedAt:    start,
	}
	sums := map[memory.Tier]float64{}
	var mu sync.Mutex

	var g errgroup.Group
	g.SetLimit(e.cfg.Workers)
	for _, id := range ids {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			t, s, err := e.optimizeOne(ctx, id, deg[id], start)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				e.logger.Error().Str("memory_id", id).Err(err).Msg("Failed to optimize memory tier")
				res.Errors = append(res.Errors, memory.ItemError{ID: id, Err: err})
				return nil
			case s == nil:
				return nil // deleted since the snapshot
			}
			res.Processed++
			tier := s.RecommendedTier
			res.TierCounts[tier]++
			sums[tier] += s.TotalScore
			if t != nil {
				res.Transitions = append(res.Transitions, t.TierTransition)
				res.SpaceReclaimed += t.hotDelta
			}
			return nil
		})
	}
	_ = g.Wait()

	res.Cancelled = ctx.Err() != nil
	if !res.Cancelled && e.cfg.MaxWorkingSet > 0 && len(ids) > 0 {
		e.cursor = ids[len(ids)-1]
	}
	for tier, n := range res.TierCounts {
		res.TierAverages[tier] = sums[tier] / float64(n)
	}
	res.SpaceReclaimed = max(0, res.SpaceReclaimed)
	sort.Slice(res.Transitions, func(i, j int) bool { return res.Transitions[i].MemoryID < res.Transitions[j].MemoryID })
	sort.Slice(res.Errors, func(i, j int) bool { return res.Errors[i].ID < res.Errors[j].ID })
	res.Duration = e.now().Sub(start)

	e.statsMu.Lock()
	e.last = res
	e.passes++
	e.statsMu.Unlock()

	e.logger.Info().
		Int("snapshot", len(ids)).
		Int("processed", res.Processed).
		Int("transitions", len(res.Transitions)).
		Int("errors", len(res.Errors)).
		Int64("spaceReclaimed", res.SpaceReclaimed).
		Bool("cancelled", res.Cancelled).
		Dur("duration", res.Duration).
		Msg("Tier optimization completed")
	return res, nil
}

// window returns the ids for one pass: all of them, or the next
// MaxWorkingSet ids after the cursor, wrapping to the start.
func (e *Engine) window(ctx context.Context) ([]string, error) {
	size := e.cfg.MaxWorkingSet
	if size <= 0 {
		return e.store.ListMemoryIDsAfter(ctx, "", 0)
	}
	ids, err := e.store.ListMemoryIDsAfter(ctx, e.cursor, size)
	if err != nil {
		return nil, err
	}
	if len(ids) < size && e.cursor != "" {
		head, err := e.store.ListMemoryIDsAfter(ctx, "", size-len(ids))
		if err != nil {
			return nil, err
		}
		seen := lo.SliceToMap(ids, func(id string) (string, struct{}) { return id, struct{}{} })
		for _, id := range head {
			if _, dup := seen[id]; !dup {
				ids = append(ids, id)
			}
		}
	}
	return ids, nil
}

type appliedTransition struct {
	memory.TierTransition
	// hotDelta is positive when content left the hot tier.
	hotDelta int64
}

func (e *Engine) optimizeOne(ctx context.Context, id string, degree float64, at time.Time) (*appliedTransition, *memory.Score, error) {
	unlock := e.locker.Lock(id)
	defer unlock()

	m, err := e.store.GetMemory(ctx, id)
	if err != nil || m == nil {
		return nil, nil, err
	}
	s := e.cfg.Score(m, degree, at)
	if s.RecommendedTier == m.Tier {
		return nil, &s, nil
	}
	t := memory.TierTransition{
		MemoryID: id,
		From:     m.Tier,
		To:       s.RecommendedTier,
		Reason:   memory.ReasonScored,
		Score:    s.TotalScore,
		At:       at,
	}
	if err := e.store.ApplyTransition(ctx, t); err != nil {
		return nil, nil, err
	}
	applied := &appliedTransition{TierTransition: t}
	size := int64(len(m.Content))
	switch {
	case t.From == memory.TierHot:
		applied.hotDelta = size
	case t.To == memory.TierHot:
		applied.hotDelta = -size
	}
	e.logger.Debug().
		Str("memory_id", id).
		Str("from", string(t.From)).
		Str("to", string(t.To)).
		Float64("score", t.Score).
		Msg("Tier transition")
	return applied, &s, nil
}

// SetTier moves a memory to tier without scoring and records a manual
// transition. Setting the current tier is a no-op and returns nil.
func (e *Engine) SetTier(ctx context.Context, id string, tier memory.Tier) (*memory.TierTransition, error) {
	return e.manual(ctx, id, tier, func(from, to memory.Tier) error { return nil })
}

// Promote moves a memory to a strictly higher tier.
func (e *Engine) Promote(ctx context.Context, id string, tier memory.Tier) (*memory.TierTransition, error) {
	return e.manual(ctx, id, tier, func(from, to memory.Tier) error {
		if to.Rank() <= from.Rank() {
			return memory.NewValidationError(fmt.Sprintf("cannot promote from %s to %s", from, to), nil)
		}
		return nil
	})
}

// Demote moves a memory to a strictly lower tier.
func (e *Engine) Demote(ctx context.Context, id string, tier memory.Tier) (*memory.TierTransition, error) {
	return e.manual(ctx, id, tier, func(from, to memory.Tier) error {
		if to.Rank() >= from.Rank() {
			return memory.NewValidationError(fmt.Sprintf("cannot demote from %s to %s", from, to), nil)
		}
		return nil
	})
}

func (e *Engine) manual(ctx context.Context, id string, tier memory.Tier, check func(from, to memory.Tier) error) (*memory.TierTransition, error) {
	if !tier.Valid() {
		return nil, memory.NewValidationError(fmt.Sprintf("invalid tier %q", tier), nil)
	}
	unlock := e.locker.Lock(id)
	defer unlock()

	m, err := e.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := check(m.Tier, tier); err != nil {
		return nil, err
	}
	if m.Tier == tier {
		return nil, nil
	}
	deg, err := e.degrees(ctx)
	if err != nil {
		return nil, err
	}
	now := e.now()
	t := memory.TierTransition{
		MemoryID: id,
		From:     m.Tier,
		To:       tier,
		Reason:   memory.ReasonManual,
		Score:    e.cfg.Score(m, deg[id], now).TotalScore,
		At:       now,
	}
	if err := e.store.ApplyTransition(ctx, t); err != nil {
		return nil, err
	}
	e.logger.Info().
		Str("memory_id", id).
		Str("from", string(t.From)).
		Str("to", string(t.To)).
		Msg("Manual tier change")
	return &t, nil
}

// Transitions returns the audit log for one memory, newest first. An empty
// id returns the log for every memory.
func (e *Engine) Transitions(ctx context.Context, id string, limit int) ([]memory.TierTransition, error) {
	return e.store.ListTransitions(ctx, id, limit)
}

// Metrics reports tier counts and the last optimization summary.
func (e *Engine) Metrics(ctx context.Context) (*Metrics, error) {
	counts, err := e.store.CountMemories(ctx)
	if err != nil {
		return nil, err
	}
	e.statsMu.RLock()
	defer e.statsMu.RUnlock()
	return &Metrics{Counts: counts, Passes: e.passes, LastOptimization: e.last}, nil
}
