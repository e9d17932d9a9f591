package tiering

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/aschepis/backscratcher/memtier/memory"
	"github.com/aschepis/backscratcher/memtier/memory/sqlite"
	"github.com/aschepis/backscratcher/memtier/migrations"
)

var now = time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)

type staticDegrees map[string]float64

func (s staticDegrees) WeightedDegrees(context.Context) (map[string]float64, error) { return s, nil }

func newTestEngine(t *testing.T, degrees staticDegrees) (*Engine, *sqlite.Store) {
	t.Helper()
	db, err := sqlite.Open(":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := migrations.RunMigrations(db, zerolog.Nop()); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}
	store := sqlite.NewStore(db, zerolog.Nop())
	var src ConnectionSource
	if degrees != nil {
		src = degrees
	}
	e := NewEngine(store, src, DefaultConfig(), zerolog.Nop())
	e.SetClock(func() time.Time { return now })
	return e, store
}

func addMemory(t *testing.T, store *sqlite.Store, id string, importance int, content string) {
	t.Helper()
	m := &memory.Entity{
		ID: id, OwnerID: "u", Content: content, Type: memory.TypeText, Importance: importance,
		Tier: memory.TierCold, CreatedAt: now, UpdatedAt: now, LastAccessed: now,
	}
	if err := store.CreateMemory(context.Background(), m); err != nil {
		t.Fatalf("CreateMemory: %v", err)
	}
}

func TestConfigValidate(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"weights do not sum", func(c *Config) { c.Weights.Access = 0.5 }},
		{"negative weight", func(c *Config) { c.Weights.Access, c.Weights.Importance = -0.1, 0.8 }},
		{"thresholds inverted", func(c *Config) { c.HotThreshold = 0.3 }},
		{"no workers", func(c *Config) { c.Workers = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := DefaultConfig()
			tt.mutate(&c)
			if err := c.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestScoreComponents(t *testing.T) {
	cfg := DefaultConfig()
	m := &memory.Entity{ID: "m", Importance: 80, CreatedAt: now.Add(-30 * day), LastAccessed: now.Add(-7 * day), AccessCount: 50}

	s := cfg.Score(m, 0, now)
	if math.Abs(s.AccessScore-(0.6+0.4*0.5)) > 1e-9 {
		t.Errorf("access score = %f", s.AccessScore)
	}
	if s.ImportanceScore != 0.8 {
		t.Errorf("importance score = %f", s.ImportanceScore)
	}
	if math.Abs(s.AgeScore-0.5) > 1e-9 {
		t.Errorf("age score = %f", s.AgeScore)
	}
	if s.ConnectionScore != 0 {
		t.Errorf("connection score = %f", s.ConnectionScore)
	}

	old := &memory.Entity{ID: "o", CreatedAt: now.Add(-3650 * day)}
	if got := cfg.AgeScore(old, now); got != cfg.AgeFloor {
		t.Errorf("age floor not applied: %f", got)
	}

	prev := 0.0
	for _, d := range []float64{0.5, 1, 3, 10, 100} {
		c := cfg.ConnectionScore(d)
		if c <= prev || c >= 1 {
			t.Fatalf("connection score not monotonic and bounded at %f: %f", d, c)
		}
		prev = c
	}
}

func TestScoreIsDeterministic(t *testing.T) {
	cfg := DefaultConfig()
	m := &memory.Entity{ID: "m", Importance: 42, CreatedAt: now.Add(-3 * day), LastAccessed: now.Add(-time.Hour), AccessCount: 7}
	first := cfg.Score(m, 1.5, now)
	for i := 0; i < 10; i++ {
		if got := cfg.Score(m, 1.5, now); got != first {
			t.Fatalf("score changed: %+v vs %+v", got, first)
		}
	}
}

func TestRecommendTier(t *testing.T) {
	cfg := DefaultConfig()
	tests := []struct {
		score float64
		want  memory.Tier
	}{
		{0.9, memory.TierHot},
		{0.6, memory.TierHot},
		{0.5, memory.TierWarm},
		{0.35, memory.TierWarm},
		{0.1, memory.TierCold},
	}
	for _, tt := range tests {
		if got := cfg.RecommendTier(tt.score); got != tt.want {
			t.Errorf("RecommendTier(%f) = %s, want %s", tt.score, got, tt.want)
		}
	}
}

func TestOptimize_ImportanceOrdersTiers(t *testing.T) {
	e, store := newTestEngine(t, nil)
	ctx := context.Background()
	addMemory(t, store, "high", 90, "remember the launch codes")
	addMemory(t, store, "mid", 50, "weekly sync notes")
	addMemory(t, store, "low", 10, "a passing thought")

	res, err := e.Optimize(ctx)
	if err != nil {
		t.Fatalf("Optimize: %v", err)
	}
	if res.Processed != 3 || len(res.Errors) != 0 || res.Cancelled {
		t.Fatalf("unexpected result: %+v", res)
	}

	tiers := map[string]memory.Tier{}
	for _, id := range []string{"high", "mid", "low"} {
		m, _ := store.GetMemory(ctx, id)
		tiers[id] = m.Tier
	}
	if tiers["high"].Rank() < tiers["low"].Rank() {
		t.Fatalf("importance 90 ranked below importance 10: %v", tiers)
	}
	if tiers["high"] != memory.TierHot || tiers["mid"] != memory.TierWarm || tiers["low"] != memory.TierCold {
		t.Fatalf("unexpected tiers: %v", tiers)
	}

	// cold -> hot in a single pass is allowed.
	var jumped bool
	for _, tr := range res.Transitions {
		if tr.MemoryID == "high" && tr.From == memory.TierCold && tr.To == memory.TierHot && tr.Reason == memory.ReasonScored {
			jumped = true
		}
	}
	if !jumped || len(res.Transitions) != 2 {
		t.Fatalf("expected cold->hot and cold->warm transitions, got %+v", res.Transitions)
	}
	if res.TierCounts[memory.TierHot] != 1 || res.TierAverages[memory.TierHot] < 0.6 {
		t.Fatalf("unexpected tier aggregates: %+v %+v", res.TierCounts, res.TierAverages)
	}

	log, err := e.Transitions(ctx, "", 0)
	if err != nil || len(log) != 2 {
		t.Fatalf("expected 2 audit rows, got %d, %v", len(log), err)
	}

	// Nothing changed, so a second pass emits nothing.
	again, _ := e.Optimize(ctx)
	if len(again.Transitions) != 0 {
		t.Fatalf("expected stable tiers, got %+v", again.Transitions)
	}

	metrics, err := e.Metrics(ctx)
	if err != nil {
		t.Fatalf("Metrics: %v", err)
	}
	if metrics.Passes != 2 || metrics.Counts.ByTier[memory.TierHot] != 1 || metrics.LastOptimization == nil {
		t.Fatalf("unexpected metrics: %+v", metrics)
	}
}

func TestOptimize_SpaceReclaimed(t *testing.T) {
	e, store := newTestEngine(t, nil)
	ctx := context.Background()
	addMemory(t, store, "stale", 0, "0123456789")
	if _, err := e.SetTier(ctx, "stale", memory.TierHot); err != nil {
		t.Fatalf("SetTier: %v", err)
	}
	res, err := e.Optimize(ctx)
	if err != nil {
		t.Fatalf("Optimize: %v", err)
	}
	if res.SpaceReclaimed != 10 {
		t.Fatalf("expected 10 bytes reclaimed, got %d", res.SpaceReclaimed)
	}
}

func TestOptimize_ConnectionsLiftScore(t *testing.T) {
	e, store := newTestEngine(t, staticDegrees{"linked": 10})
	ctx := context.Background()
	addMemory(t, store, "linked", 40, "hub")
	addMemory(t, store, "alone", 40, "leaf")

	linked, _ := e.ScoreMemory(ctx, "linked")
	alone, _ := e.ScoreMemory(ctx, "alone")
	if linked.TotalScore <= alone.TotalScore {
		t.Fatalf("connections should raise the score: %f <= %f", linked.TotalScore, alone.TotalScore)
	}
	if _, err := e.ScoreMemory(ctx, "missing"); !memory.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestOptimize_Cancelled(t *testing.T) {
	e, store := newTestEngine(t, nil)
	addMemory(t, store, "a", 90, "alpha")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := e.Optimize(ctx)
	if err == nil && (!res.Cancelled || res.Processed != 0) {
		t.Fatalf("expected cancelled pass, got %+v", res)
	}
}

func TestManualTierChanges(t *testing.T) {
	e, store := newTestEngine(t, nil)
	ctx := context.Background()
	addMemory(t, store, "m", 50, "content")

	tr, err := e.Promote(ctx, "m", memory.TierWarm)
	if err != nil || tr == nil || tr.Reason != memory.ReasonManual || tr.From != memory.TierCold {
		t.Fatalf("Promote: %+v, %v", tr, err)
	}
	if _, err := e.Promote(ctx, "m", memory.TierCold); !memory.IsValidationError(err) {
		t.Fatalf("promote to lower tier should fail, got %v", err)
	}
	if _, err := e.Demote(ctx, "m", memory.TierHot); !memory.IsValidationError(err) {
		t.Fatalf("demote to higher tier should fail, got %v", err)
	}
	if _, err := e.Demote(ctx, "m", memory.TierCold); err != nil {
		t.Fatalf("Demote: %v", err)
	}
	if tr, err := e.SetTier(ctx, "m", memory.TierCold); err != nil || tr != nil {
		t.Fatalf("setting the current tier should be a no-op: %+v, %v", tr, err)
	}
	if _, err := e.SetTier(ctx, "m", "lukewarm"); !memory.IsValidationError(err) {
		t.Fatalf("expected invalid tier error, got %v", err)
	}
	if _, err := e.SetTier(ctx, "nope", memory.TierHot); !memory.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}

	log, _ := e.Transitions(ctx, "m", 10)
	if len(log) != 2 || log[0].To != memory.TierCold {
		t.Fatalf("expected 2 manual transitions newest first, got %+v", log)
	}
}

func TestOptimize_WorkingSetRotates(t *testing.T) {
	e, store := newTestEngine(t, nil)
	e.cfg.MaxWorkingSet = 2
	ctx := context.Background()
	addMemory(t, store, "a", 0, "alpha")
	addMemory(t, store, "b", 0, "beta")
	addMemory(t, store, "c", 100, "gamma")

	res, err := e.Optimize(ctx)
	if err != nil {
		t.Fatalf("Optimize: %v", err)
	}
	if res.Processed != 2 {
		t.Fatalf("first pass should be bounded to 2, got %d", res.Processed)
	}
	if m, _ := store.GetMemory(ctx, "c"); m.Tier != memory.TierCold {
		t.Fatalf("c is outside the first window, got tier %s", m.Tier)
	}

	res, err = e.Optimize(ctx)
	if err != nil {
		t.Fatalf("Optimize: %v", err)
	}
	if res.Processed != 2 {
		t.Fatalf("second pass should wrap to 2 ids, got %d", res.Processed)
	}
	if m, _ := store.GetMemory(ctx, "c"); m.Tier == memory.TierCold {
		t.Fatal("second pass should reach c and move it out of cold")
	}
}
