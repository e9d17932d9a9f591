package memory

import (
	"context"
	"time"
)

// ListFilter narrows memory listings. Zero values mean "no constraint".
type ListFilter struct {
	OwnerID       string
	IDs           []string
	Types         []Type
	Tiers         []Tier
	MinImportance int
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
	// Tags matches memories carrying at least one of the tags.
	Tags []string
	// ContentTerms matches memories whose content contains any of the terms.
	ContentTerms []string
	Limit        int
	Offset       int
}

// MemoryStore persists memory entities.
type MemoryStore interface {
	CreateMemory(ctx context.Context, e *Entity) error
	// GetMemory returns (nil, nil) when the id is absent.
	GetMemory(ctx context.Context, id string) (*Entity, error)
	// UpdateMemory replaces the mutable fields; NotFound when absent.
	UpdateMemory(ctx context.Context, e *Entity) error
	DeleteMemory(ctx context.Context, id string) (bool, error)
	ListMemories(ctx context.Context, f ListFilter) ([]*Entity, error)
	// ListMemoryIDs returns ids ordered by creation, at most limit when limit > 0.
	ListMemoryIDs(ctx context.Context, limit int) ([]string, error)
	// ListMemoryIDsAfter returns ids greater than after in id order, at most
	// limit when limit > 0. It pages through every memory by keyset.
	ListMemoryIDsAfter(ctx context.Context, after string, limit int) ([]string, error)
	// TouchMemory atomically increments the access count and sets the last
	// access time. Returns (nil, nil) when absent.
	TouchMemory(ctx context.Context, id string, at time.Time) (*Entity, error)
	// ApplyTransition sets the tier column and appends the audit record in
	// one transaction.
	ApplyTransition(ctx context.Context, t TierTransition) error
	ListTransitions(ctx context.Context, memoryID string, limit int) ([]TierTransition, error)
	CountMemories(ctx context.Context) (Counts, error)
}

// RelationshipStore persists relationship edges.
type RelationshipStore interface {
	CreateRelationship(ctx context.Context, r *Relationship) error
	GetRelationship(ctx context.Context, id string) (*Relationship, error)
	// FindRelationship looks up the edge by its (from, to, type) key.
	FindRelationship(ctx context.Context, fromID, toID string, typ RelationshipType) (*Relationship, error)
	UpdateRelationship(ctx context.Context, r *Relationship) error
	DeleteRelationship(ctx context.Context, id string) (bool, error)
	ListRelationships(ctx context.Context) ([]*Relationship, error)
	// ListRelationshipsFor returns edges incident to id in either direction.
	ListRelationshipsFor(ctx context.Context, id string) ([]*Relationship, error)
	DeleteRelationshipsForMemory(ctx context.Context, id string) (int, error)
}

// EmbeddingStore persists per-memory embeddings keyed by (memory, model).
type EmbeddingStore interface {
	SaveEmbedding(ctx context.Context, e Embedding) error
	// ListEmbeddings returns stored embeddings for model keyed by memory id.
	ListEmbeddings(ctx context.Context, model string, ids []string) (map[string]Embedding, error)
	DeleteEmbeddings(ctx context.Context, memoryID string) error
}

// Repository is the full persistence adapter the engine consumes.
type Repository interface {
	MemoryStore
	RelationshipStore
	EmbeddingStore
	Ping(ctx context.Context) error
}

// Action is an operation checked by an Authorizer.
type Action string

const (
	ActionCreate Action = "create"
	ActionRead   Action = "read"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
	ActionSearch Action = "search"
)

// Authorizer decides whether an owner may perform an action. A non-nil
// error denies the request.
type Authorizer interface {
	Authorize(ctx context.Context, action Action, ownerID string) error
}

// AuthorizerFunc adapts a function to the Authorizer interface.
type AuthorizerFunc func(ctx context.Context, action Action, ownerID string) error

// Authorize calls f.
func (f AuthorizerFunc) Authorize(ctx context.Context, action Action, ownerID string) error {
	return f(ctx, action, ownerID)
}
