package search

import (
	"context"
	"errors"
	"hash/fnv"
	"math"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/aschepis/backscratcher/memtier/embedding"
	"github.com/aschepis/backscratcher/memtier/memory"
	"github.com/aschepis/backscratcher/memtier/memory/sqlite"
	"github.com/aschepis/backscratcher/memtier/migrations"
)

// conceptEmbedder places known words on shared concept axes so related
// phrases land close together; unknown words are hashed weakly onto the
// remaining dimensions.
type conceptEmbedder struct {
	calls atomic.Int32
	fail  bool
}

const conceptDims = 16

var concepts = map[string]int{
	"machine": 0, "learning": 0, "deep": 0, "neural": 0, "networks": 0,
	"grocery": 1, "milk": 1, "eggs": 1,
}

func (c *conceptEmbedder) Model() string { return "concept-test" }

func (c *conceptEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	c.calls.Add(1)
	if c.fail {
		return nil, errors.New("provider offline")
	}
	vec := make([]float32, conceptDims)
	for _, w := range strings.Fields(strings.ToLower(text)) {
		if axis, ok := concepts[w]; ok {
			vec[axis] += 1
			continue
		}
		h := fnv.New32a()
		_, _ = h.Write([]byte(w))
		vec[2+int(h.Sum32()%(conceptDims-2))] += 0.3
	}
	return vec, nil
}

type fixture struct {
	store    *sqlite.Store
	engine   *Engine
	embedder *conceptEmbedder
}

func newFixture(t *testing.T) *fixture {
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
	emb := &conceptEmbedder{}
	return &fixture{store: store, embedder: emb, engine: NewEngine(store, emb, DefaultConfig(), zerolog.Nop())}
}

func (f *fixture) add(t *testing.T, id, owner, content string, age time.Duration) *memory.Entity {
	t.Helper()
	at := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC).Add(-age)
	e := &memory.Entity{
		ID: id, OwnerID: owner, Content: content, Type: memory.TypeText, Importance: 50,
		Tier: memory.TierCold, CreatedAt: at, UpdatedAt: at, LastAccessed: at,
	}
	if err := f.store.CreateMemory(context.Background(), e); err != nil {
		t.Fatalf("CreateMemory: %v", err)
	}
	return e
}

func ids(p *Page) []string {
	out := make([]string, len(p.Hits))
	for i, h := range p.Hits {
		out[i] = h.Memory.ID
	}
	return out
}

func TestSemantic_RelatedContentRanksAboveUnrelated(t *testing.T) {
	f := newFixture(t)
	f.add(t, "A", "u", "machine learning basics", 3*time.Hour)
	f.add(t, "B", "u", "deep learning fundamentals", 2*time.Hour)
	f.add(t, "C", "u", "grocery list", time.Hour)

	threshold := 0.3
	page, err := f.engine.Semantic(context.Background(), SemanticRequest{Query: "neural networks", Threshold: &threshold, Limit: 10})
	if err != nil {
		t.Fatalf("Semantic: %v", err)
	}
	if page.Degraded {
		t.Fatalf("unexpected degraded result: %s", page.Warning)
	}
	got := ids(page)
	if len(got) != 2 {
		t.Fatalf("expected A and B only, got %v", got)
	}
	for _, id := range got {
		if id == "C" {
			t.Fatalf("unrelated memory ranked: %v", got)
		}
	}
	for _, h := range page.Hits {
		if h.Score < threshold {
			t.Fatalf("hit below threshold: %+v", h)
		}
	}
}

func TestSemantic_ReusesPersistedEmbeddings(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.add(t, "A", "u", "machine learning basics", time.Hour)
	f.add(t, "B", "u", "grocery milk eggs", time.Hour)

	if _, err := f.engine.Semantic(ctx, SemanticRequest{Query: "deep learning"}); err != nil {
		t.Fatalf("Semantic: %v", err)
	}
	first := f.embedder.calls.Load() // query + two memories
	if first != 3 {
		t.Fatalf("embedder calls = %d, want 3", first)
	}
	if _, err := f.engine.Semantic(ctx, SemanticRequest{Query: "deep learning"}); err != nil {
		t.Fatalf("Semantic: %v", err)
	}
	if n := f.embedder.calls.Load(); n != first+1 {
		t.Fatalf("stored embeddings should be reused, calls = %d", n)
	}

	// A content edit changes the hash, forcing recomputation for that memory.
	a.Content = "neural networks"
	if err := f.store.UpdateMemory(ctx, a); err != nil {
		t.Fatalf("UpdateMemory: %v", err)
	}
	res, err := f.engine.Refresh(ctx, Filters{})
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if res.Embedded != 1 || res.Reused != 1 {
		t.Fatalf("refresh = %+v, want 1 embedded and 1 reused", res)
	}
}

func TestSemantic_StructuralFilters(t *testing.T) {
	f := newFixture(t)
	f.add(t, "A", "alice", "machine learning basics", time.Hour)
	f.add(t, "B", "bob", "deep learning fundamentals", time.Hour)

	threshold := 0.1
	page, err := f.engine.Semantic(context.Background(), SemanticRequest{
		Query:     "neural networks",
		Filters:   Filters{OwnerID: "bob"},
		Threshold: &threshold,
	})
	if err != nil {
		t.Fatalf("Semantic: %v", err)
	}
	if got := ids(page); len(got) != 1 || got[0] != "B" {
		t.Fatalf("owner filter not applied: %v", got)
	}
	if n := f.embedder.calls.Load(); n != 2 {
		t.Fatalf("filtered-out memories must not be embedded, calls = %d", n)
	}
}

func TestSemantic_DegradesToLexical(t *testing.T) {
	f := newFixture(t)
	f.add(t, "A", "u", "grocery list for the week", time.Hour)
	f.add(t, "B", "u", "machine learning basics", time.Hour)
	f.embedder.fail = true

	cache, err := embedding.NewCache(embedding.DefaultConfig())
	if err != nil {
		t.Fatalf("NewCache: %v", err)
	}
	defer cache.Close()
	gen := embedding.NewGenerator(f.embedder, cache, embedding.DefaultConfig(), zerolog.Nop())
	eng := NewEngine(f.store, gen, DefaultConfig(), zerolog.Nop())

	page, err := eng.Semantic(context.Background(), SemanticRequest{Query: "grocery list"})
	if err != nil {
		t.Fatalf("Semantic: %v", err)
	}
	if !page.Degraded || page.Warning == "" {
		t.Fatalf("expected degraded page with warning, got %+v", page)
	}
	if got := ids(page); len(got) != 1 || got[0] != "A" {
		t.Fatalf("lexical fallback results = %v", got)
	}

	noEmbedder := NewEngine(f.store, nil, DefaultConfig(), zerolog.Nop())
	page, err = noEmbedder.Semantic(context.Background(), SemanticRequest{Query: "machine"})
	if err != nil || !page.Degraded {
		t.Fatalf("nil embedder should degrade: %+v, %v", page, err)
	}
	if _, err := noEmbedder.Semantic(context.Background(), SemanticRequest{Query: "  "}); !memory.IsValidationError(err) {
		t.Fatalf("empty query should be rejected, got %v", err)
	}
}

func TestLexical_PaginationAndFilters(t *testing.T) {
	f := newFixture(t)
	f.add(t, "A", "alice", "Project kickoff notes", 3*time.Hour)
	f.add(t, "B", "alice", "project notes, kickoff moved", 2*time.Hour)
	f.add(t, "C", "alice", "Project budget", time.Hour)
	f.add(t, "D", "bob", "project kickoff notes", 0)

	ctx := context.Background()
	page, err := f.engine.Lexical(ctx, LexicalRequest{Query: "kickoff notes", Filters: Filters{OwnerID: "alice"}, Limit: 1})
	if err != nil {
		t.Fatalf("Lexical: %v", err)
	}
	if page.Total != 2 || len(page.Hits) != 1 || page.Hits[0].Memory.ID != "A" {
		t.Fatalf("page 1 = total %d ids %v", page.Total, ids(page))
	}
	page, _ = f.engine.Lexical(ctx, LexicalRequest{Query: "kickoff notes", Filters: Filters{OwnerID: "alice"}, Limit: 1, Offset: 1})
	if len(page.Hits) != 1 || page.Hits[0].Memory.ID != "B" {
		t.Fatalf("page 2 = %v", ids(page))
	}
	page, _ = f.engine.Lexical(ctx, LexicalRequest{Query: "kickoff notes", Offset: 10})
	if len(page.Hits) != 0 || page.Total != 3 {
		t.Fatalf("offset past end = total %d hits %d", page.Total, len(page.Hits))
	}
	page, _ = f.engine.Lexical(ctx, LexicalRequest{Filters: Filters{OwnerID: "alice"}})
	if got := ids(page); len(got) != 3 || got[0] != "C" {
		t.Fatalf("empty query should list newest first, got %v", got)
	}
}

func TestHybrid_MergesBothSignals(t *testing.T) {
	f := newFixture(t)
	f.add(t, "A", "u", "deep learning", time.Hour)
	f.add(t, "B", "u", "neural networks", time.Hour)
	f.add(t, "C", "u", "grocery notes", time.Hour)

	threshold := 0.5
	page, err := f.engine.Hybrid(context.Background(), HybridRequest{Query: "deep learning", Threshold: &threshold})
	if err != nil {
		t.Fatalf("Hybrid: %v", err)
	}
	got := ids(page)
	if len(got) != 2 || got[0] != "A" || got[1] != "B" {
		t.Fatalf("hybrid ranking = %v", got)
	}
	if math.Abs(page.Hits[0].Score-1.0) > 1e-6 {
		t.Fatalf("exact lexical and semantic match should score 1, got %f", page.Hits[0].Score)
	}
}
