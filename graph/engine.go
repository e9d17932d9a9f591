// Package graph maintains typed, weighted, decaying relationships between
// memories and answers traversal and analytics queries over them.
package graph

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/aschepis/backscratcher/memtier/memory"
)

// Store is the persistence the graph engine needs.
type Store interface {
	memory.RelationshipStore
	GetMemory(ctx context.Context, id string) (*memory.Entity, error)
	ListMemoryIDs(ctx context.Context, limit int) ([]string, error)
}

// Engine owns relationship records.
type Engine struct {
	store      Store
	cfg        Config
	classifier Classifier
	now        func() time.Time
	logger     zerolog.Logger

	writeMu sync.Mutex // serializes upserts on the (from, to, type) key
	decayMu sync.Mutex // one decay pass at a time
}

// NewEngine creates a graph engine.
func NewEngine(store Store, cfg Config, logger zerolog.Logger) *Engine {
	return &Engine{
		store:  store,
		cfg:    cfg,
		now:    time.Now,
		logger: logger.With().Str("component", "graph").Logger(),
	}
}

// SetClock replaces the time source.
func (e *Engine) SetClock(now func() time.Time) { e.now = now }

// SetClassifier installs an optional relabeller used by AutoCreate.
func (e *Engine) SetClassifier(c Classifier) { e.classifier = c }

// CreateRequest describes a relationship to create or refresh.
type CreateRequest struct {
	FromID     string                  `json:"from_id"`
	ToID       string                  `json:"to_id"`
	Type       memory.RelationshipType `json:"type"`
	Strength   float64                 `json:"strength"`
	Confidence float64                 `json:"confidence"`
	// DecayRate overrides the configured default when set.
	DecayRate *float64 `json:"decay_rate,omitempty"`
}

// CreateRelationship inserts the edge, or refreshes strength, confidence and
// verification time when an edge with the same (from, to, type) exists.
func (e *Engine) CreateRelationship(ctx context.Context, req CreateRequest) (*memory.Relationship, error) {
	if req.FromID == "" || req.ToID == "" {
		return nil, memory.NewValidationError("relationship endpoints are required", nil)
	}
	if req.FromID == req.ToID {
		return nil, memory.NewValidationError("a memory cannot relate to itself", nil)
	}
	if !req.Type.Valid() {
		return nil, memory.NewValidationError(fmt.Sprintf("invalid relationship type %q", req.Type), nil)
	}
	rate := e.cfg.DefaultDecayRate
	if req.DecayRate != nil {
		if *req.DecayRate < 0 {
			return nil, memory.NewValidationError("decay rate must not be negative", nil)
		}
		rate = *req.DecayRate
	}
	for _, id := range []string{req.FromID, req.ToID} {
		m, err := e.store.GetMemory(ctx, id)
		if err != nil {
			return nil, err
		}
		if m == nil {
			return nil, memory.NewNotFoundError(fmt.Sprintf("memory %s not found", id))
		}
	}

	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	now := e.now()
	existing, err := e.store.FindRelationship(ctx, req.FromID, req.ToID, req.Type)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		existing.Strength = memory.Clamp01(req.Strength)
		existing.Confidence = memory.Clamp01(req.Confidence)
		existing.LastVerified = now
		existing.DecayedAt = now
		if req.DecayRate != nil {
			existing.DecayRate = rate
		}
		if err := e.store.UpdateRelationship(ctx, existing); err != nil {
			return nil, err
		}
		e.logger.Debug().Str("id", existing.ID).Msg("Relationship re-verified")
		return existing, nil
	}

	r := &memory.Relationship{
		ID:           uuid.NewString(),
		FromID:       req.FromID,
		ToID:         req.ToID,
		Type:         req.Type,
		Strength:     memory.Clamp01(req.Strength),
		Confidence:   memory.Clamp01(req.Confidence),
		DecayRate:    rate,
		CreatedAt:    now,
		LastVerified: now,
		DecayedAt:    now,
	}
	if err := e.store.CreateRelationship(ctx, r); err != nil {
		return nil, err
	}
	e.logger.Info().
		Str("id", r.ID).
		Str("from", r.FromID).
		Str("to", r.ToID).
		Str("type", string(r.Type)).
		Float64("strength", r.Strength).
		Msg("Relationship created")
	return r, nil
}

// UpdateStrength re-verifies an edge with a new strength and restarts its
// decay clock.
func (e *Engine) UpdateStrength(ctx context.Context, id string, strength float64) (*memory.Relationship, error) {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	r, err := e.store.GetRelationship(ctx, id)
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, memory.NewNotFoundError(fmt.Sprintf("relationship %s not found", id))
	}
	now := e.now()
	r.Strength = memory.Clamp01(strength)
	r.LastVerified = now
	r.DecayedAt = now
	if err := e.store.UpdateRelationship(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

// DeleteRelationship removes an edge, reporting whether it existed.
func (e *Engine) DeleteRelationship(ctx context.Context, id string) (bool, error) {
	return e.store.DeleteRelationship(ctx, id)
}

// RemoveMemory drops every edge incident to a memory.
func (e *Engine) RemoveMemory(ctx context.Context, id string) (int, error) {
	n, err := e.store.DeleteRelationshipsForMemory(ctx, id)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		e.logger.Debug().Str("memory_id", id).Int("removed", n).Msg("Removed incident relationships")
	}
	return n, nil
}

// Relationships lists edges touching a memory.
func (e *Engine) Relationships(ctx context.Context, id string) ([]*memory.Relationship, error) {
	return e.store.ListRelationshipsFor(ctx, id)
}

func (e *Engine) load(ctx context.Context) (*arena, error) {
	edges, err := e.store.ListRelationships(ctx)
	if err != nil {
		return nil, err
	}
	return newArena(edges), nil
}

// SortKey orders related-memory results.
type SortKey string

const (
	SortByStrength   SortKey = "strength"
	SortByConfidence SortKey = "confidence"
	SortByRecency    SortKey = "recency"
)

// RelatedOptions bounds a related-memory query.
type RelatedOptions struct {
	MaxDepth    int                       `json:"max_depth"`
	MinStrength float64                   `json:"min_strength"`
	Types       []memory.RelationshipType `json:"types,omitempty"`
	SortBy      SortKey                   `json:"sort_by,omitempty"`
	Limit       int                       `json:"limit,omitempty"`
}

// Related is a memory reachable from the query node.
type Related struct {
	MemoryID string `json:"memory_id"`
	Depth    int    `json:"depth"`
	// Strength is the product of edge strengths along the path.
	Strength float64 `json:"strength"`
	// Confidence is the weakest edge confidence along the path.
	Confidence   float64               `json:"confidence"`
	LastVerified time.Time             `json:"last_verified"`
	Path         []string              `json:"path"`
	Via          []*memory.Relationship `json:"via"`
}

// Related returns memories reachable from id within opts.MaxDepth hops,
// each once with its strongest path. Edges are traversed in both directions.
func (e *Engine) Related(ctx context.Context, id string, opts RelatedOptions) ([]Related, error) {
	depth := min(opts.MaxDepth, e.cfg.MaxDepth)
	if depth <= 0 {
		return []Related{}, nil
	}
	if opts.SortBy == "" {
		opts.SortBy = SortByStrength
	}
	switch opts.SortBy {
	case SortByStrength, SortByConfidence, SortByRecency:
	default:
		return nil, memory.NewValidationError(fmt.Sprintf("invalid sort key %q", opts.SortBy), nil)
	}
	types := lo.SliceToMap(opts.Types, func(t memory.RelationshipType) (memory.RelationshipType, struct{}) {
		return t, struct{}{}
	})

	a, err := e.load(ctx)
	if err != nil {
		return nil, err
	}
	start, ok := a.node(id)
	if !ok {
		return []Related{}, nil
	}

	type state struct {
		strength float64
		rel      *Related
	}
	best := map[int]*Related{}
	strength := map[int]float64{start: 1}
	frontier := map[int]state{start: {strength: 1}}
	for level := 1; level <= depth && len(frontier) > 0; level++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		next := map[int]state{}
		nodes := lo.Keys(frontier)
		sort.Ints(nodes)
		for _, n := range nodes {
			st := frontier[n]
			for _, ei := range a.adj[n] {
				edge := a.edges[ei]
				if len(types) > 0 {
					if _, ok := types[edge.Type]; !ok {
						continue
					}
				}
				if edge.Strength <= 0 || edge.Strength < opts.MinStrength {
					continue
				}
				m := a.other(ei, n)
				if m == start {
					continue
				}
				s := st.strength * edge.Strength
				if cur, seen := strength[m]; seen && s <= cur {
					continue
				}
				strength[m] = s
				r := extend(st.rel, a.ids[start], a.ids[m], edge, s, level)
				best[m] = r
				next[m] = state{strength: s, rel: r}
			}
		}
		frontier = next
	}

	out := make([]Related, 0, len(best))
	for _, r := range best {
		out = append(out, *r)
	}
	sortRelated(out, opts.SortBy)
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

func extend(from *Related, startID, id string, edge *memory.Relationship, strength float64, depth int) *Related {
	r := &Related{
		MemoryID:     id,
		Depth:        depth,
		Strength:     strength,
		Confidence:   edge.Confidence,
		LastVerified: edge.LastVerified,
	}
	if from == nil {
		r.Path = []string{startID, id}
		r.Via = []*memory.Relationship{edge}
		return r
	}
	r.Path = append(append([]string(nil), from.Path...), id)
	r.Via = append(append([]*memory.Relationship(nil), from.Via...), edge)
	r.Confidence = min(from.Confidence, edge.Confidence)
	return r
}

func sortRelated(out []Related, key SortKey) {
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		switch key {
		case SortByConfidence:
			if a.Confidence != b.Confidence {
				return a.Confidence > b.Confidence
			}
		case SortByRecency:
			if !a.LastVerified.Equal(b.LastVerified) {
				return a.LastVerified.After(b.LastVerified)
			}
		}
		if a.Strength != b.Strength {
			return a.Strength > b.Strength
		}
		return a.MemoryID < b.MemoryID
	})
}

// Path is a connection between two memories.
type Path struct {
	Nodes []string               `json:"nodes"`
	Edges []*memory.Relationship `json:"edges"`
	Hops  int                    `json:"hops"`
	// Bottleneck is the weakest edge strength on the path.
	Bottleneck float64 `json:"bottleneck"`
}

// FindPath returns the path with the fewest hops between two memories,
// preferring the highest bottleneck among equally short paths. It returns
// nil when no path exists within the configured horizon.
func (e *Engine) FindPath(ctx context.Context, fromID, toID string) (*Path, error) {
	if fromID == toID {
		return &Path{Nodes: []string{fromID}, Edges: []*memory.Relationship{}, Bottleneck: 1}, nil
	}
	a, err := e.load(ctx)
	if err != nil {
		return nil, err
	}
	src, ok := a.node(fromID)
	if !ok {
		return nil, nil
	}
	dst, ok := a.node(toID)
	if !ok {
		return nil, nil
	}

	dist := make([]int, len(a.ids))
	bottleneck := make([]float64, len(a.ids))
	parent := make([]int, len(a.ids)) // edge index into node
	for i := range dist {
		dist[i] = -1
		parent[i] = -1
	}
	dist[src] = 0
	bottleneck[src] = 1

	level := []int{src}
	for d := 0; d < e.cfg.PathHorizon && len(level) > 0 && dist[dst] < 0; d++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var next []int
		for _, n := range level {
			for _, ei := range a.adj[n] {
				m := a.other(ei, n)
				b := min(bottleneck[n], a.edges[ei].Strength)
				switch {
				case dist[m] < 0:
					dist[m] = d + 1
					bottleneck[m] = b
					parent[m] = ei
					next = append(next, m)
				case dist[m] == d+1 && b > bottleneck[m]:
					bottleneck[m] = b
					parent[m] = ei
				}
			}
		}
		level = next
	}
	if dist[dst] < 0 {
		return nil, nil
	}

	p := &Path{Hops: dist[dst], Bottleneck: bottleneck[dst]}
	for n := dst; n != src; {
		ei := parent[n]
		p.Nodes = append(p.Nodes, a.ids[n])
		p.Edges = append(p.Edges, a.edges[ei])
		n = a.other(ei, n)
	}
	p.Nodes = append(p.Nodes, a.ids[src])
	p.Nodes = lo.Reverse(p.Nodes)
	p.Edges = lo.Reverse(p.Edges)
	return p, nil
}

// WeightedDegrees sums incident edge strengths per memory.
func (e *Engine) WeightedDegrees(ctx context.Context) (map[string]float64, error) {
	edges, err := e.store.ListRelationships(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]float64)
	for _, r := range edges {
		out[r.FromID] += r.Strength
		out[r.ToID] += r.Strength
	}
	return out, nil
}
