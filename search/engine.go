package search

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"github.com/aschepis/backscratcher/memtier/embedding"
	"github.com/aschepis/backscratcher/memtier/memory"
)

// Store is the persistence the search engine reads from.
type Store interface {
	ListMemories(ctx context.Context, f memory.ListFilter) ([]*memory.Entity, error)
	memory.EmbeddingStore
}

// Filters are structural constraints applied before any scoring.
type Filters struct {
	OwnerID       string        `json:"owner_id,omitempty"`
	Types         []memory.Type `json:"types,omitempty"`
	Tiers         []memory.Tier `json:"tiers,omitempty"`
	MinImportance int           `json:"min_importance,omitempty"`
	CreatedAfter  *time.Time    `json:"created_after,omitempty"`
	CreatedBefore *time.Time    `json:"created_before,omitempty"`
	Tags          []string      `json:"tags,omitempty"`
}

func (f Filters) listFilter(limit int) memory.ListFilter {
	return memory.ListFilter{
		OwnerID:       f.OwnerID,
		Types:         f.Types,
		Tiers:         f.Tiers,
		MinImportance: f.MinImportance,
		CreatedAfter:  f.CreatedAfter,
		CreatedBefore: f.CreatedBefore,
		Tags:          f.Tags,
		Limit:         limit,
	}
}

// Hit is one search result.
type Hit struct {
	Memory *memory.Entity `json:"memory"`
	Score  float64        `json:"score"`
}

// Page is a window of ranked results.
type Page struct {
	Hits     []Hit  `json:"hits"`
	Total    int    `json:"total"`
	Offset   int    `json:"offset"`
	Limit    int    `json:"limit"`
	Degraded bool   `json:"degraded,omitempty"`
	Warning  string `json:"warning,omitempty"`
}

// LexicalRequest asks for substring/token matches.
type LexicalRequest struct {
	Query   string
	Filters Filters
	Limit   int
	Offset  int
}

// SemanticRequest asks for embedding similarity matches.
type SemanticRequest struct {
	Query   string
	Filters Filters
	Limit   int
	// Threshold overrides the configured minimum similarity when set.
	Threshold *float64
}

// HybridRequest merges lexical and semantic scores.
type HybridRequest struct {
	Query     string
	Filters   Filters
	Limit     int
	Offset    int
	Threshold *float64
}

// RefreshResult summarizes a pass that fills in missing embeddings.
type RefreshResult struct {
	Reused   int                `json:"reused"`
	Embedded int                `json:"embedded"`
	Failed   []memory.ItemError `json:"-"`
}

// Engine runs lexical and semantic queries.
type Engine struct {
	store    Store
	embedder memory.Embedder
	cfg      Config
	now      func() time.Time
	logger   zerolog.Logger
}

// NewEngine creates a search engine. embedder may be nil, in which case
// semantic queries fall back to lexical matching.
func NewEngine(store Store, embedder memory.Embedder, cfg Config, logger zerolog.Logger) *Engine {
	return &Engine{
		store:    store,
		embedder: embedder,
		cfg:      cfg,
		now:      time.Now,
		logger:   logger.With().Str("component", "search").Logger(),
	}
}

// SetClock replaces the time source used for embedding timestamps.
func (e *Engine) SetClock(now func() time.Time) { e.now = now }

// HasEmbedder reports whether semantic search is possible.
func (e *Engine) HasEmbedder() bool { return e.embedder != nil }

func (e *Engine) limit(n int) int {
	if n <= 0 {
		return e.cfg.DefaultLimit
	}
	return min(n, e.cfg.MaxLimit)
}

func (e *Engine) threshold(t *float64) float64 {
	if t == nil {
		return e.cfg.DefaultThreshold
	}
	return *t
}

func paginate(hits []Hit, offset, limit int) *Page {
	page := &Page{Total: len(hits), Offset: offset, Limit: limit, Hits: []Hit{}}
	if offset < 0 {
		offset = 0
		page.Offset = 0
	}
	if offset < len(hits) {
		page.Hits = hits[offset:min(len(hits), offset+limit)]
	}
	return page
}

func sortHits(hits []Hit) {
	sort.SliceStable(hits, func(i, j int) bool {
		return ranksBefore(hits[i].Score, hits[j].Score, hits[i].Memory, hits[j].Memory)
	})
}

// Lexical returns memories whose content matches the query's tokens.
// An empty query lists filtered memories newest first.
func (e *Engine) Lexical(ctx context.Context, req LexicalRequest) (*Page, error) {
	hits, err := e.lexicalHits(ctx, req.Query, req.Filters)
	if err != nil {
		return nil, err
	}
	page := paginate(hits, req.Offset, e.limit(req.Limit))
	e.logger.Debug().
		Str("query", req.Query).
		Int("total", page.Total).
		Int("returning", len(page.Hits)).
		Msg("Lexical search completed")
	return page, nil
}

func (e *Engine) lexicalHits(ctx context.Context, query string, filters Filters) ([]Hit, error) {
	tokens := memory.Tokenize(query)
	f := filters.listFilter(e.cfg.CandidateCap)
	f.ContentTerms = tokens
	rows, err := e.store.ListMemories(ctx, f)
	if err != nil {
		return nil, err
	}
	if len(tokens) == 0 {
		return lo.Map(rows, func(m *memory.Entity, _ int) Hit { return Hit{Memory: m} }), nil
	}
	hits := make([]Hit, 0, len(rows))
	for _, m := range rows {
		if score := LexicalScore(query, m.Content); score > 0 {
			hits = append(hits, Hit{Memory: m, Score: score})
		}
	}
	sortHits(hits)
	return hits, nil
}

// Semantic ranks filtered memories by similarity to the query embedding. When
// the query cannot be embedded it returns lexical results marked Degraded.
func (e *Engine) Semantic(ctx context.Context, req SemanticRequest) (*Page, error) {
	if strings.TrimSpace(req.Query) == "" {
		return nil, memory.NewValidationError("query is empty", nil)
	}
	limit := e.limit(req.Limit)
	matches, err := e.semanticMatches(ctx, req.Query, req.Filters, limit, e.threshold(req.Threshold))
	if err != nil {
		if reason, ok := degradable(err); ok {
			return e.degrade(ctx, req.Query, req.Filters, 0, limit, reason)
		}
		return nil, err
	}
	hits := lo.Map(matches, func(m Match, _ int) Hit { return Hit{Memory: m.Memory, Score: m.Similarity} })
	e.logger.Debug().Str("query", req.Query).Int("matches", len(hits)).Msg("Semantic search completed")
	return paginate(hits, 0, limit), nil
}

// Hybrid blends similarity and lexical scores for every memory either
// method finds.
func (e *Engine) Hybrid(ctx context.Context, req HybridRequest) (*Page, error) {
	limit := e.limit(req.Limit)
	lexical, err := e.lexicalHits(ctx, req.Query, req.Filters)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Query) == "" {
		return paginate(lexical, req.Offset, limit), nil
	}
	matches, err := e.semanticMatches(ctx, req.Query, req.Filters, e.cfg.CandidateCap, e.threshold(req.Threshold))
	if err != nil {
		if reason, ok := degradable(err); ok {
			return e.degrade(ctx, req.Query, req.Filters, req.Offset, limit, reason)
		}
		return nil, err
	}

	w := e.cfg.SemanticWeight
	merged := make(map[string]*Hit, len(lexical)+len(matches))
	for _, h := range lexical {
		merged[h.Memory.ID] = &Hit{Memory: h.Memory, Score: (1 - w) * h.Score}
	}
	for _, m := range matches {
		if h, ok := merged[m.Memory.ID]; ok {
			h.Score += w * m.Similarity
			continue
		}
		merged[m.Memory.ID] = &Hit{Memory: m.Memory, Score: w * m.Similarity}
	}
	hits := lo.MapToSlice(merged, func(_ string, h *Hit) Hit { return *h })
	sortHits(hits)
	return paginate(hits, req.Offset, limit), nil
}

func degradable(err error) (string, bool) {
	if memory.IsEmbeddingUnavailable(err) {
		return err.Error(), true
	}
	return "", false
}

func (e *Engine) degrade(ctx context.Context, query string, filters Filters, offset, limit int, reason string) (*Page, error) {
	e.logger.Warn().Str("reason", reason).Msg("Semantic search unavailable, falling back to lexical")
	hits, err := e.lexicalHits(ctx, query, filters)
	if err != nil {
		return nil, err
	}
	page := paginate(hits, offset, limit)
	page.Degraded = true
	page.Warning = "semantic search unavailable, returned lexical matches: " + reason
	return page, nil
}

func (e *Engine) semanticMatches(ctx context.Context, query string, filters Filters, limit int, threshold float64) ([]Match, error) {
	if e.embedder == nil {
		return nil, memory.NewEmbeddingUnavailableError("no embedding provider configured", nil)
	}
	qvec, err := e.embedder.Embed(ctx, query)
	if err != nil {
		if memory.IsValidationError(err) || ctx.Err() != nil {
			return nil, err
		}
		if !memory.IsEmbeddingUnavailable(err) {
			err = memory.NewEmbeddingUnavailableError("query embedding failed", err)
		}
		return nil, err
	}

	rows, err := e.store.ListMemories(ctx, filters.listFilter(e.cfg.CandidateCap))
	if err != nil {
		return nil, err
	}
	vectors, _, err := e.vectors(ctx, rows)
	if err != nil {
		return nil, err
	}
	candidates := make([]Candidate, 0, len(rows))
	for _, m := range rows {
		vec, ok := vectors[m.ID]
		if !ok {
			continue
		}
		if len(vec) != len(qvec) {
			e.logger.Debug().Str("memory_id", m.ID).Int("dims", len(vec)).Int("queryDims", len(qvec)).
				Msg("Skipping candidate with mismatched dimensions")
			continue
		}
		candidates = append(candidates, Candidate{Memory: m, Vector: vec})
	}
	return FindSimilar(qvec, candidates, limit, threshold)
}

// Refresh computes embeddings for every memory whose stored vector is
// missing or stale for the current model.
func (e *Engine) Refresh(ctx context.Context, filters Filters) (*RefreshResult, error) {
	if e.embedder == nil {
		return nil, memory.NewEmbeddingUnavailableError("no embedding provider configured", nil)
	}
	rows, err := e.store.ListMemories(ctx, filters.listFilter(0))
	if err != nil {
		return nil, err
	}
	_, res, err := e.vectors(ctx, rows)
	if err != nil {
		return nil, err
	}
	e.logger.Info().
		Int("reused", res.Reused).
		Int("embedded", res.Embedded).
		Int("failed", len(res.Failed)).
		Msg("Embedding refresh completed")
	return res, nil
}

// Invalidate drops persisted embeddings for a memory.
func (e *Engine) Invalidate(ctx context.Context, memoryID string) error {
	return e.store.DeleteEmbeddings(ctx, memoryID)
}

// Vector returns the current embedding of one memory.
func (e *Engine) Vector(ctx context.Context, m *memory.Entity) ([]float32, error) {
	if e.embedder == nil {
		return nil, memory.NewEmbeddingUnavailableError("no embedding provider configured", nil)
	}
	vectors, res, err := e.vectors(ctx, []*memory.Entity{m})
	if err != nil {
		return nil, err
	}
	if vec, ok := vectors[m.ID]; ok {
		return vec, nil
	}
	if len(res.Failed) > 0 {
		return nil, res.Failed[0].Err
	}
	return nil, memory.NewEmbeddingUnavailableError("no embedding for memory "+m.ID, nil)
}

// Vectors returns vectors for memories, keyed by id. Memories that could
// not be embedded are absent from the map.
func (e *Engine) Vectors(ctx context.Context, rows []*memory.Entity) (map[string][]float32, error) {
	if e.embedder == nil {
		return nil, memory.NewEmbeddingUnavailableError("no embedding provider configured", nil)
	}
	vectors, _, err := e.vectors(ctx, rows)
	return vectors, err
}

// vectors loads persisted embeddings whose content hash still matches and
// computes the rest with bounded concurrency.
func (e *Engine) vectors(ctx context.Context, rows []*memory.Entity) (map[string][]float32, *RefreshResult, error) {
	res := &RefreshResult{}
	out := make(map[string][]float32, len(rows))
	if len(rows) == 0 {
		return out, res, nil
	}
	model := e.embedder.Model()
	ids := lo.Map(rows, func(m *memory.Entity, _ int) string { return m.ID })
	stored, err := e.store.ListEmbeddings(ctx, model, ids)
	if err != nil {
		return nil, nil, err
	}

	var missing []*memory.Entity
	for _, m := range rows {
		if st, ok := stored[m.ID]; ok && st.ContentHash == embedding.ContentHash(m.Content) {
			out[m.ID] = st.Vector
			res.Reused++
			continue
		}
		missing = append(missing, m)
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.EmbedWorkers)
	for _, m := range missing {
		g.Go(func() error {
			vec, err := e.embedder.Embed(gctx, m.Content)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				e.logger.Warn().Str("memory_id", m.ID).Err(err).Msg("Failed to embed memory, skipping")
				mu.Lock()
				res.Failed = append(res.Failed, memory.ItemError{ID: m.ID, Err: err})
				mu.Unlock()
				return nil
			}
			rec := memory.Embedding{
				MemoryID:    m.ID,
				Vector:      vec,
				Model:       model,
				ContentHash: embedding.ContentHash(m.Content),
				CreatedAt:   e.now(),
			}
			if err := e.store.SaveEmbedding(gctx, rec); err != nil {
				e.logger.Error().Str("memory_id", m.ID).Err(err).Msg("Failed to persist embedding")
			}
			mu.Lock()
			out[m.ID] = vec
			res.Embedded++
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return out, res, nil
}
