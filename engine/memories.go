package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/aschepis/backscratcher/memtier/memory"
	"github.com/aschepis/backscratcher/memtier/search"
)

// CreateRequest describes a new memory. Payload is used when Content is
// empty and is reduced to display text.
type CreateRequest struct {
	OwnerID    string                 `json:"owner_id"`
	Content    string                 `json:"content,omitempty"`
	Payload    interface{}            `json:"payload,omitempty"`
	Type       memory.Type            `json:"type,omitempty"`
	Importance *int                   `json:"importance,omitempty"`
	Tags       []string               `json:"tags,omitempty"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

// UpdateRequest changes the fields that are set.
type UpdateRequest struct {
	Content    *string                `json:"content,omitempty"`
	Type       *memory.Type           `json:"type,omitempty"`
	Importance *int                   `json:"importance,omitempty"`
	Tags       *[]string              `json:"tags,omitempty"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

func validateEntity(m *memory.Entity) error {
	if strings.TrimSpace(m.OwnerID) == "" {
		return memory.NewValidationError("owner id is required", nil)
	}
	if strings.TrimSpace(m.Content) == "" {
		return memory.NewValidationError("content is required", nil)
	}
	if !m.Type.Valid() {
		return memory.NewValidationError(fmt.Sprintf("invalid memory type %q", m.Type), nil)
	}
	if m.Importance < 0 || m.Importance > 100 {
		return memory.NewValidationError(fmt.Sprintf("importance %d outside [0,100]", m.Importance), nil)
	}
	return nil
}

// Create validates and stores a new cold-tier memory.
func (e *Engine) Create(ctx context.Context, req CreateRequest) (*memory.Entity, error) {
	ctx, done, err := e.enter(ctx)
	if err != nil {
		return nil, err
	}
	defer done()

	content := req.Content
	if content == "" && req.Payload != nil {
		content = memory.DisplayText(req.Payload)
	}
	typ := req.Type
	if typ == "" {
		typ = memory.TypeText
	}
	importance := e.cfg.DefaultImportance
	if req.Importance != nil {
		importance = *req.Importance
	}
	now := e.now()
	m := &memory.Entity{
		ID:           uuid.NewString(),
		OwnerID:      req.OwnerID,
		Content:      content,
		Type:         typ,
		Importance:   importance,
		Tags:         req.Tags,
		Tier:         memory.TierCold,
		Metadata:     req.Metadata,
		CreatedAt:    now,
		UpdatedAt:    now,
		LastAccessed: now,
	}
	if err := validateEntity(m); err != nil {
		return nil, err
	}
	if err := e.authorize(ctx, memory.ActionCreate, m.OwnerID); err != nil {
		return nil, err
	}
	if err := e.repo.CreateMemory(ctx, m); err != nil {
		return nil, err
	}
	e.logger.Info().
		Str("id", m.ID).
		Str("owner", m.OwnerID).
		Str("type", string(m.Type)).
		Int("importance", m.Importance).
		Msg("Memory created")
	return m, nil
}

// Retrieve returns a memory and records the access. It returns nil without
// error when the id is unknown.
func (e *Engine) Retrieve(ctx context.Context, id string) (*memory.Entity, error) {
	ctx, done, err := e.enter(ctx)
	if err != nil {
		return nil, err
	}
	defer done()

	unlock := e.locks.Lock(id)
	defer unlock()

	m, err := e.owned(ctx, id, memory.ActionRead)
	if err != nil {
		if memory.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	touched, err := e.repo.TouchMemory(ctx, m.ID, e.now())
	if err != nil {
		return nil, err
	}
	return touched, nil
}

// Update merges the set fields into a memory. Changing content discards the
// memory's stored embeddings.
func (e *Engine) Update(ctx context.Context, id string, req UpdateRequest) (*memory.Entity, error) {
	ctx, done, err := e.enter(ctx)
	if err != nil {
		return nil, err
	}
	defer done()

	unlock := e.locks.Lock(id)
	defer unlock()

	m, err := e.owned(ctx, id, memory.ActionUpdate)
	if err != nil {
		return nil, err
	}
	contentChanged := false
	if req.Content != nil && *req.Content != m.Content {
		m.Content = *req.Content
		contentChanged = true
	}
	if req.Type != nil {
		m.Type = *req.Type
	}
	if req.Importance != nil {
		m.Importance = *req.Importance
	}
	if req.Tags != nil {
		m.Tags = *req.Tags
	}
	if req.Metadata != nil {
		if m.Metadata == nil {
			m.Metadata = map[string]interface{}{}
		}
		for k, v := range req.Metadata {
			if v == nil {
				delete(m.Metadata, k)
				continue
			}
			m.Metadata[k] = v
		}
	}
	if err := validateEntity(m); err != nil {
		return nil, err
	}
	m.UpdatedAt = e.now()
	if err := e.repo.UpdateMemory(ctx, m); err != nil {
		return nil, err
	}
	if contentChanged {
		if err := e.search.Invalidate(ctx, id); err != nil {
			// Stale vectors are also rejected by content hash on next use.
			e.logger.Warn().Str("id", id).Err(err).Msg("Failed to drop stale embeddings")
		}
	}
	e.logger.Debug().Str("id", id).Bool("contentChanged", contentChanged).Msg("Memory updated")
	return m, nil
}

// Delete removes a memory with its relationships and embeddings. It reports
// false when the memory did not exist.
func (e *Engine) Delete(ctx context.Context, id string) (bool, error) {
	ctx, done, err := e.enter(ctx)
	if err != nil {
		return false, err
	}
	defer done()

	unlock := e.locks.Lock(id)
	defer unlock()

	if _, err := e.owned(ctx, id, memory.ActionDelete); err != nil {
		if memory.IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	removed, err := e.graph.RemoveMemory(ctx, id)
	if err != nil {
		return false, err
	}
	deleted, err := e.repo.DeleteMemory(ctx, id)
	if err != nil {
		return false, err
	}
	e.logger.Info().Str("id", id).Int("relationships", removed).Msg("Memory deleted")
	return deleted, nil
}

// SearchRequest is a lexical query, optionally blended with semantic
// similarity.
type SearchRequest struct {
	Query    string         `json:"query"`
	Filters  search.Filters `json:"filters"`
	Limit    int            `json:"limit,omitempty"`
	Offset   int            `json:"offset,omitempty"`
	Semantic bool           `json:"semantic,omitempty"`
	// Threshold applies to the semantic half of a blended query.
	Threshold *float64 `json:"threshold,omitempty"`
}

// Search runs a lexical query. With Semantic set and an embedder available
// the results blend in vector similarity.
func (e *Engine) Search(ctx context.Context, req SearchRequest) (*search.Page, error) {
	ctx, done, err := e.enter(ctx)
	if err != nil {
		return nil, err
	}
	defer done()

	if err := e.authorize(ctx, memory.ActionSearch, req.Filters.OwnerID); err != nil {
		return nil, err
	}
	if req.Semantic && e.search.HasEmbedder() {
		return e.search.Hybrid(ctx, search.HybridRequest{
			Query:     req.Query,
			Filters:   req.Filters,
			Limit:     req.Limit,
			Offset:    req.Offset,
			Threshold: req.Threshold,
		})
	}
	return e.search.Lexical(ctx, search.LexicalRequest{
		Query:   req.Query,
		Filters: req.Filters,
		Limit:   req.Limit,
		Offset:  req.Offset,
	})
}

// SemanticSearch ranks memories by similarity to the query. When no
// embedding can be produced the page holds lexical matches and is marked
// Degraded.
func (e *Engine) SemanticSearch(ctx context.Context, req search.SemanticRequest) (*search.Page, error) {
	ctx, done, err := e.enter(ctx)
	if err != nil {
		return nil, err
	}
	defer done()

	if err := e.authorize(ctx, memory.ActionSearch, req.Filters.OwnerID); err != nil {
		return nil, err
	}
	return e.search.Semantic(ctx, req)
}

// EmbedMissing computes and stores embeddings for memories that have none
// for the current model, or whose content changed since.
func (e *Engine) EmbedMissing(ctx context.Context, filters search.Filters) (*search.RefreshResult, error) {
	ctx, done, err := e.enter(ctx)
	if err != nil {
		return nil, err
	}
	defer done()

	return e.search.Refresh(ctx, filters)
}
