package tools

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/samber/lo"

	"github.com/aschepis/backscratcher/memtier/engine"
	"github.com/aschepis/backscratcher/memtier/graph"
	"github.com/aschepis/backscratcher/memtier/memory"
	"github.com/aschepis/backscratcher/memtier/search"
)

type idArgs struct {
	ID string `json:"id"`
}

type searchArgs struct {
	Query string `json:"query"`
	search.Filters
	Limit     int      `json:"limit"`
	Offset    int      `json:"offset"`
	Semantic  bool     `json:"semantic"`
	Threshold *float64 `json:"threshold"`
}

// ownerOr returns owner, or the caller when owner is blank.
func ownerOr(owner, callerID string) string {
	if strings.TrimSpace(owner) == "" {
		return callerID
	}
	return owner
}

func itemErrors(errs []memory.ItemError) []string {
	return lo.Map(errs, func(e memory.ItemError, _ int) string { return e.Error() })
}

// RegisterMemoryTools registers every memory_* tool backed by eng.
// Note: Tool names must match pattern ^[a-zA-Z0-9_-]{1,128}$ (no dots allowed)
func (r *Registry) RegisterMemoryTools(eng *engine.Engine) {
	r.logger.Info().Msg("Registering memory tools in registry")

	r.Register("memory_create", func(ctx context.Context, callerID string, args json.RawMessage) (any, error) {
		var req engine.CreateRequest
		if err := decode(args, &req); err != nil {
			return nil, err
		}
		req.OwnerID = ownerOr(req.OwnerID, callerID)
		return eng.Create(ctx, req)
	})

	r.Register("memory_retrieve", func(ctx context.Context, _ string, args json.RawMessage) (any, error) {
		var payload idArgs
		if err := decode(args, &payload); err != nil {
			return nil, err
		}
		m, err := eng.Retrieve(ctx, payload.ID)
		if err != nil {
			return nil, err
		}
		if m == nil {
			return map[string]any{"found": false, "id": payload.ID}, nil
		}
		return m, nil
	})

	r.Register("memory_update", func(ctx context.Context, _ string, args json.RawMessage) (any, error) {
		var payload struct {
			ID string `json:"id"`
			engine.UpdateRequest
		}
		if err := decode(args, &payload); err != nil {
			return nil, err
		}
		return eng.Update(ctx, payload.ID, payload.UpdateRequest)
	})

	r.Register("memory_delete", func(ctx context.Context, _ string, args json.RawMessage) (any, error) {
		var payload idArgs
		if err := decode(args, &payload); err != nil {
			return nil, err
		}
		deleted, err := eng.Delete(ctx, payload.ID)
		if err != nil {
			return nil, err
		}
		return map[string]any{"id": payload.ID, "deleted": deleted}, nil
	})

	r.Register("memory_search", func(ctx context.Context, callerID string, args json.RawMessage) (any, error) {
		var payload searchArgs
		if err := decode(args, &payload); err != nil {
			return nil, err
		}
		payload.OwnerID = ownerOr(payload.OwnerID, callerID)
		return eng.Search(ctx, engine.SearchRequest{
			Query:     payload.Query,
			Filters:   payload.Filters,
			Limit:     payload.Limit,
			Offset:    payload.Offset,
			Semantic:  payload.Semantic,
			Threshold: payload.Threshold,
		})
	})

	r.Register("memory_semantic_search", func(ctx context.Context, callerID string, args json.RawMessage) (any, error) {
		var payload searchArgs
		if err := decode(args, &payload); err != nil {
			return nil, err
		}
		payload.OwnerID = ownerOr(payload.OwnerID, callerID)
		return eng.SemanticSearch(ctx, search.SemanticRequest{
			Query:     payload.Query,
			Filters:   payload.Filters,
			Limit:     payload.Limit,
			Threshold: payload.Threshold,
		})
	})

	r.Register("memory_set_tier", func(ctx context.Context, _ string, args json.RawMessage) (any, error) {
		var payload struct {
			ID   string `json:"id"`
			Tier string `json:"tier"`
		}
		if err := decode(args, &payload); err != nil {
			return nil, err
		}
		tier, err := memory.ParseTier(payload.Tier)
		if err != nil {
			return nil, err
		}
		tr, err := eng.SetTier(ctx, payload.ID, tier)
		if err != nil {
			return nil, err
		}
		if tr == nil {
			return map[string]any{"id": payload.ID, "tier": tier, "changed": false}, nil
		}
		return tr, nil
	})

	r.Register("memory_transitions", func(ctx context.Context, _ string, args json.RawMessage) (any, error) {
		var payload struct {
			ID    string `json:"id"`
			Limit int    `json:"limit"`
		}
		if err := decode(args, &payload); err != nil {
			return nil, err
		}
		return eng.GetTransitions(ctx, payload.ID, payload.Limit)
	})

	r.Register("memory_optimize", func(ctx context.Context, _ string, _ json.RawMessage) (any, error) {
		res, err := eng.OptimizeMemoryTiers(ctx)
		if err != nil {
			return nil, err
		}
		return map[string]any{"result": res, "errors": itemErrors(res.Errors)}, nil
	})

	r.Register("memory_tier_metrics", func(ctx context.Context, _ string, _ json.RawMessage) (any, error) {
		return eng.GetTierMetrics(ctx)
	})

	r.Register("memory_score", func(ctx context.Context, _ string, args json.RawMessage) (any, error) {
		var payload idArgs
		if err := decode(args, &payload); err != nil {
			return nil, err
		}
		return eng.GetMemoryScore(ctx, payload.ID)
	})

	r.Register("memory_relate", func(ctx context.Context, _ string, args json.RawMessage) (any, error) {
		var req graph.CreateRequest
		if err := decode(args, &req); err != nil {
			return nil, err
		}
		return eng.CreateRelationship(ctx, req)
	})

	r.Register("memory_relationship_strength", func(ctx context.Context, _ string, args json.RawMessage) (any, error) {
		var payload struct {
			ID       string  `json:"id"`
			Strength float64 `json:"strength"`
		}
		if err := decode(args, &payload); err != nil {
			return nil, err
		}
		return eng.UpdateRelationshipStrength(ctx, payload.ID, payload.Strength)
	})

	r.Register("memory_unrelate", func(ctx context.Context, _ string, args json.RawMessage) (any, error) {
		var payload idArgs
		if err := decode(args, &payload); err != nil {
			return nil, err
		}
		deleted, err := eng.DeleteMemoryRelationship(ctx, payload.ID)
		if err != nil {
			return nil, err
		}
		return map[string]any{"id": payload.ID, "deleted": deleted}, nil
	})

	r.Register("memory_related", func(ctx context.Context, _ string, args json.RawMessage) (any, error) {
		var payload struct {
			ID string `json:"id"`
			graph.RelatedOptions
		}
		if err := decode(args, &payload); err != nil {
			return nil, err
		}
		if payload.MaxDepth == 0 {
			payload.MaxDepth = 2
		}
		related, err := eng.GetRelatedMemories(ctx, payload.ID, payload.RelatedOptions)
		if err != nil {
			return nil, err
		}
		return map[string]any{"id": payload.ID, "related": related}, nil
	})

	r.Register("memory_path", func(ctx context.Context, _ string, args json.RawMessage) (any, error) {
		var payload struct {
			FromID string `json:"from_id"`
			ToID   string `json:"to_id"`
		}
		if err := decode(args, &payload); err != nil {
			return nil, err
		}
		path, err := eng.FindConnectionPath(ctx, payload.FromID, payload.ToID)
		if err != nil {
			return nil, err
		}
		if path == nil {
			return map[string]any{"found": false}, nil
		}
		return map[string]any{"found": true, "path": path}, nil
	})

	r.Register("memory_discover", func(ctx context.Context, _ string, args json.RawMessage) (any, error) {
		var payload struct {
			ID         string `json:"id"`
			AutoCreate bool   `json:"auto_create"`
		}
		if err := decode(args, &payload); err != nil {
			return nil, err
		}
		if !payload.AutoCreate {
			proposals, err := eng.DiscoverRelationships(ctx, payload.ID)
			if err != nil {
				return nil, err
			}
			return map[string]any{"proposals": proposals}, nil
		}
		res, err := eng.AutoCreateMemoryRelationships(ctx, payload.ID)
		if err != nil {
			return nil, err
		}
		return map[string]any{"created": res.Created, "errors": itemErrors(res.Errors)}, nil
	})

	r.Register("memory_graph_analytics", func(ctx context.Context, _ string, _ json.RawMessage) (any, error) {
		return eng.GenerateGraphAnalytics(ctx)
	})

	r.Register("memory_decay", func(ctx context.Context, _ string, _ json.RawMessage) (any, error) {
		res, err := eng.RunRelationshipDecay(ctx)
		if err != nil {
			return nil, err
		}
		return map[string]any{"result": res, "errors": itemErrors(res.Errors)}, nil
	})

	r.Register("memory_embed_missing", func(ctx context.Context, callerID string, args json.RawMessage) (any, error) {
		var filters search.Filters
		if err := decode(args, &filters); err != nil {
			return nil, err
		}
		filters.OwnerID = ownerOr(filters.OwnerID, callerID)
		res, err := eng.EmbedMissing(ctx, filters)
		if err != nil {
			return nil, err
		}
		return map[string]any{"result": res, "errors": itemErrors(res.Failed)}, nil
	})

	r.Register("memory_health", func(ctx context.Context, _ string, _ json.RawMessage) (any, error) {
		return eng.GetHealth(ctx)
	})
}
