package memory

import (
	"fmt"
	"strings"
	"time"
)

// Type describes the kind of payload a memory holds.
type Type string

const (
	TypeText  Type = "text"
	TypeImage Type = "image"
	TypeAudio Type = "audio"
	TypeVideo Type = "video"
	TypeFile  Type = "file"
)

// Types lists every valid memory type.
var Types = []Type{TypeText, TypeImage, TypeAudio, TypeVideo, TypeFile}

// Valid reports whether t is one of the enumerated types.
func (t Type) Valid() bool {
	switch t {
	case TypeText, TypeImage, TypeAudio, TypeVideo, TypeFile:
		return true
	}
	return false
}

// ParseType converts a string into a Type.
func ParseType(s string) (Type, error) {
	t := Type(strings.ToLower(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", NewValidationError(fmt.Sprintf("invalid memory type %q", s), nil)
	}
	return t, nil
}

// Tier is the storage/priority class of a memory.
type Tier string

const (
	TierHot  Tier = "hot"
	TierWarm Tier = "warm"
	TierCold Tier = "cold"
)

// Tiers lists tiers from coldest to hottest.
var Tiers = []Tier{TierCold, TierWarm, TierHot}

// Valid reports whether t is one of the enumerated tiers.
func (t Tier) Valid() bool {
	switch t {
	case TierHot, TierWarm, TierCold:
		return true
	}
	return false
}

// Rank orders tiers: cold=0, warm=1, hot=2. Invalid tiers rank -1.
func (t Tier) Rank() int {
	switch t {
	case TierCold:
		return 0
	case TierWarm:
		return 1
	case TierHot:
		return 2
	}
	return -1
}

// ParseTier converts a string into a Tier.
func ParseTier(s string) (Tier, error) {
	t := Tier(strings.ToLower(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", NewValidationError(fmt.Sprintf("invalid tier %q", s), nil)
	}
	return t, nil
}

// RelationshipType classifies an edge between two memories.
type RelationshipType string

const (
	RelReferences RelationshipType = "references"
	RelSimilar    RelationshipType = "similar"
	RelRelated    RelationshipType = "related"
	RelCausal     RelationshipType = "causal"
	RelTemporal   RelationshipType = "temporal"
)

// RelationshipTypes lists every valid relationship type.
var RelationshipTypes = []RelationshipType{RelReferences, RelSimilar, RelRelated, RelCausal, RelTemporal}

// Valid reports whether t is one of the enumerated relationship types.
func (t RelationshipType) Valid() bool {
	switch t {
	case RelReferences, RelSimilar, RelRelated, RelCausal, RelTemporal:
		return true
	}
	return false
}

// ParseRelationshipType converts a string into a RelationshipType.
func ParseRelationshipType(s string) (RelationshipType, error) {
	t := RelationshipType(strings.ToLower(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", NewValidationError(fmt.Sprintf("invalid relationship type %q", s), nil)
	}
	return t, nil
}

// Entity is a single stored memory.
type Entity struct {
	ID           string                 `json:"id"`
	OwnerID      string                 `json:"owner_id"`
	Content      string                 `json:"content"`
	Type         Type                   `json:"type"`
	Importance   int                    `json:"importance"`
	Tags         []string               `json:"tags,omitempty"`
	Tier         Tier                   `json:"tier"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt    time.Time              `json:"created_at"`
	UpdatedAt    time.Time              `json:"updated_at"`
	LastAccessed time.Time              `json:"last_accessed"`
	AccessCount  int64                  `json:"access_count"`
}

// Clone returns a deep copy of the entity.
func (e *Entity) Clone() *Entity {
	if e == nil {
		return nil
	}
	c := *e
	c.Tags = append([]string(nil), e.Tags...)
	if e.Metadata != nil {
		c.Metadata = make(map[string]interface{}, len(e.Metadata))
		for k, v := range e.Metadata {
			c.Metadata[k] = v
		}
	}
	return &c
}

// HasTag reports whether the entity carries tag (case-insensitive).
func (e *Entity) HasTag(tag string) bool {
	tag = NormalizeTag(tag)
	for _, t := range e.Tags {
		if NormalizeTag(t) == tag {
			return true
		}
	}
	return false
}

// Embedding is a cached vector for one memory under one model.
type Embedding struct {
	MemoryID    string    `json:"memory_id"`
	Vector      []float32 `json:"vector"`
	Model       string    `json:"model"`
	ContentHash string    `json:"content_hash"`
	CreatedAt   time.Time `json:"created_at"`
}

// Relationship is a directed, typed, weighted edge between memories.
type Relationship struct {
	ID           string           `json:"id"`
	FromID       string           `json:"from_id"`
	ToID         string           `json:"to_id"`
	Type         RelationshipType `json:"type"`
	Strength     float64          `json:"strength"`
	Confidence   float64          `json:"confidence"`
	DecayRate    float64          `json:"decay_rate"`
	CreatedAt    time.Time        `json:"created_at"`
	LastVerified time.Time        `json:"last_verified"`
	// DecayedAt is the instant up to which decay has been applied.
	DecayedAt time.Time `json:"decayed_at"`
}

// Other returns the endpoint opposite to id.
func (r *Relationship) Other(id string) string {
	if r.FromID == id {
		return r.ToID
	}
	return r.FromID
}

// Score is the ephemeral result of scoring one memory.
type Score struct {
	MemoryID        string  `json:"memory_id"`
	AccessScore     float64 `json:"access_score"`
	ImportanceScore float64 `json:"importance_score"`
	AgeScore        float64 `json:"age_score"`
	ConnectionScore float64 `json:"connection_score"`
	TotalScore      float64 `json:"total_score"`
	RecommendedTier Tier    `json:"recommended_tier"`
}

// TransitionReason records why a memory changed tier.
type TransitionReason string

const (
	ReasonScored TransitionReason = "scored"
	ReasonManual TransitionReason = "manual"
)

// TierTransition is an audit record of a tier change.
type TierTransition struct {
	MemoryID string           `json:"memory_id"`
	From     Tier             `json:"from"`
	To       Tier             `json:"to"`
	Reason   TransitionReason `json:"reason"`
	Score    float64          `json:"score"`
	At       time.Time        `json:"at"`
}

// Counts aggregates memory counts for health and metrics reporting.
type Counts struct {
	Total  int          `json:"total"`
	ByType map[Type]int `json:"by_type"`
	ByTier map[Tier]int `json:"by_tier"`
}

// ItemError is one failed item inside a batch pass.
type ItemError struct {
	ID  string `json:"id"`
	Err error  `json:"-"`
}

func (e ItemError) Error() string {
	return fmt.Sprintf("%s: %v", e.ID, e.Err)
}

// ClampImportance forces v into [0,100].
func ClampImportance(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// Clamp01 forces v into [0,1]. NaN becomes 0.
func Clamp01(v float64) float64 {
	if v != v || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// NormalizeTag lower-cases and trims a tag for matching.
func NormalizeTag(tag string) string {
	return strings.ToLower(strings.TrimSpace(tag))
}
