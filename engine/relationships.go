package engine

import (
	"context"
	"fmt"

	"github.com/samber/lo"

	"github.com/aschepis/backscratcher/memtier/graph"
	"github.com/aschepis/backscratcher/memtier/memory"
)

// CreateRelationship links two memories, refreshing the edge if the same
// (from, to, type) already exists. Both endpoints stay locked until the edge
// is stored so a concurrent Delete cannot leave it dangling.
func (e *Engine) CreateRelationship(ctx context.Context, req graph.CreateRequest) (*memory.Relationship, error) {
	ctx, done, err := e.enter(ctx)
	if err != nil {
		return nil, err
	}
	defer done()

	unlock := e.locks.Lock2(req.FromID, req.ToID)
	defer unlock()

	if err := e.authorizeEdge(ctx, req.FromID, req.ToID); err != nil {
		return nil, err
	}
	return e.graph.CreateRelationship(ctx, req)
}

func (e *Engine) authorizeEdge(ctx context.Context, fromID, toID string) error {
	for _, id := range []string{fromID, toID} {
		if id == "" {
			continue
		}
		if _, err := e.owned(ctx, id, memory.ActionUpdate); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) relationship(ctx context.Context, id string) (*memory.Relationship, error) {
	r, err := e.repo.GetRelationship(ctx, id)
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, memory.NewNotFoundError(fmt.Sprintf("relationship %s not found", id))
	}
	return r, e.authorizeEdge(ctx, r.FromID, r.ToID)
}

// UpdateRelationshipStrength re-verifies an edge with a new strength.
func (e *Engine) UpdateRelationshipStrength(ctx context.Context, id string, strength float64) (*memory.Relationship, error) {
	ctx, done, err := e.enter(ctx)
	if err != nil {
		return nil, err
	}
	defer done()

	if _, err := e.relationship(ctx, id); err != nil {
		return nil, err
	}
	return e.graph.UpdateStrength(ctx, id, strength)
}

// DeleteMemoryRelationship removes an edge. It reports false when the edge
// did not exist.
func (e *Engine) DeleteMemoryRelationship(ctx context.Context, id string) (bool, error) {
	ctx, done, err := e.enter(ctx)
	if err != nil {
		return false, err
	}
	defer done()

	if _, err := e.relationship(ctx, id); err != nil {
		if memory.IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return e.graph.DeleteRelationship(ctx, id)
}

// neighbourhood loads the target and its candidate set, attaching vectors
// when an embedder is available. Embedding failures leave discovery to
// tag and token overlap.
func (e *Engine) neighbourhood(ctx context.Context, id string) (graph.Node, []graph.Node, error) {
	target, err := e.owned(ctx, id, memory.ActionRead)
	if err != nil {
		return graph.Node{}, nil, err
	}
	rows, err := e.repo.ListMemories(ctx, memory.ListFilter{
		OwnerID: target.OwnerID,
		Limit:   e.graph.Neighbourhood() + 1,
	})
	if err != nil {
		return graph.Node{}, nil, err
	}

	var vectors map[string][]float32
	if e.search.HasEmbedder() {
		all := rows
		if !lo.ContainsBy(rows, func(m *memory.Entity) bool { return m.ID == target.ID }) {
			all = append(append([]*memory.Entity(nil), rows...), target)
		}
		vectors, err = e.search.Vectors(ctx, all)
		if err != nil {
			if ctx.Err() != nil {
				return graph.Node{}, nil, ctx.Err()
			}
			e.logger.Warn().Str("id", id).Err(err).Msg("Discovery continuing without embeddings")
			vectors = nil
		}
	}

	candidates := make([]graph.Node, 0, len(rows))
	for _, m := range rows {
		if m.ID == target.ID {
			continue
		}
		candidates = append(candidates, graph.Node{Memory: m, Vector: vectors[m.ID]})
	}
	return graph.Node{Memory: target, Vector: vectors[target.ID]}, candidates, nil
}

// DiscoverRelationships proposes links from a memory to others of the same
// owner without storing them.
func (e *Engine) DiscoverRelationships(ctx context.Context, id string) ([]graph.Proposal, error) {
	ctx, done, err := e.enter(ctx)
	if err != nil {
		return nil, err
	}
	defer done()

	target, candidates, err := e.neighbourhood(ctx, id)
	if err != nil {
		return nil, err
	}
	return e.graph.Discover(ctx, target, candidates)
}

// AutoCreateMemoryRelationships discovers and stores links for a memory.
func (e *Engine) AutoCreateMemoryRelationships(ctx context.Context, id string) (*graph.AutoCreateResult, error) {
	ctx, done, err := e.enter(ctx)
	if err != nil {
		return nil, err
	}
	defer done()

	target, candidates, err := e.neighbourhood(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := e.authorize(ctx, memory.ActionUpdate, target.Memory.OwnerID); err != nil {
		return nil, err
	}
	res, err := e.graph.AutoCreate(ctx, target, candidates)
	if err != nil {
		return nil, err
	}
	e.logger.Info().
		Str("id", id).
		Int("created", len(res.Created)).
		Int("errors", len(res.Errors)).
		Msg("Relationships discovered")
	return res, nil
}

// GetRelatedMemories returns memories reachable from id.
func (e *Engine) GetRelatedMemories(ctx context.Context, id string, opts graph.RelatedOptions) ([]graph.Related, error) {
	ctx, done, err := e.enter(ctx)
	if err != nil {
		return nil, err
	}
	defer done()

	if _, err := e.owned(ctx, id, memory.ActionRead); err != nil {
		return nil, err
	}
	return e.graph.Related(ctx, id, opts)
}

// FindConnectionPath returns the best short path between two memories, or
// nil when they are not connected.
func (e *Engine) FindConnectionPath(ctx context.Context, fromID, toID string) (*graph.Path, error) {
	ctx, done, err := e.enter(ctx)
	if err != nil {
		return nil, err
	}
	defer done()

	for _, id := range []string{fromID, toID} {
		if _, err := e.owned(ctx, id, memory.ActionRead); err != nil {
			return nil, err
		}
	}
	return e.graph.FindPath(ctx, fromID, toID)
}

// GenerateGraphAnalytics summarizes the relationship graph.
func (e *Engine) GenerateGraphAnalytics(ctx context.Context) (*graph.Analytics, error) {
	ctx, done, err := e.enter(ctx)
	if err != nil {
		return nil, err
	}
	defer done()

	return e.graph.Analytics(ctx)
}

// RunRelationshipDecay weakens every edge by the time since it was last
// verified and prunes edges that reach zero.
func (e *Engine) RunRelationshipDecay(ctx context.Context) (*graph.DecayResult, error) {
	ctx, done, err := e.enter(ctx)
	if err != nil {
		return nil, err
	}
	defer done()

	return e.graph.RunDecay(ctx)
}
