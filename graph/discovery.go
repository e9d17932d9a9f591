package graph

import (
	"context"
	"sort"

	"github.com/samber/lo"

	"github.com/aschepis/backscratcher/memtier/memory"
)

const (
	similarityWeight  = 0.6
	tagWeight         = 0.25
	tokenWeight       = 0.15
	noVectorTagWeight = 0.6
)

// Classifier relabels discovered relationships, for example with a language
// model. It returns the type to use and a confidence in [0,1].
type Classifier interface {
	Classify(ctx context.Context, from, to *memory.Entity) (memory.RelationshipType, float64, error)
}

// Node is a memory offered to discovery, with its vector when one exists.
type Node struct {
	Memory *memory.Entity
	Vector []float32
}

// Proposal is a relationship discovery suggests.
type Proposal struct {
	FromID       string                  `json:"from_id"`
	ToID         string                  `json:"to_id"`
	Type         memory.RelationshipType `json:"type"`
	Strength     float64                 `json:"strength"`
	Confidence   float64                 `json:"confidence"`
	Similarity   float64                 `json:"similarity"`
	TagOverlap   float64                 `json:"tag_overlap"`
	TokenOverlap float64                 `json:"token_overlap"`
}

// Neighbourhood bounds how many candidates discovery should be given.
func (e *Engine) Neighbourhood() int { return e.cfg.DiscoveryNeighbourhood }

// Discover proposes relationships from target to candidates using vector
// similarity, tag overlap and content-token overlap. Pairs already linked in
// either direction are skipped. Nothing is persisted.
func (e *Engine) Discover(ctx context.Context, target Node, candidates []Node) ([]Proposal, error) {
	existing, err := e.store.ListRelationshipsFor(ctx, target.Memory.ID)
	if err != nil {
		return nil, err
	}
	linked := lo.SliceToMap(existing, func(r *memory.Relationship) (string, struct{}) {
		return r.Other(target.Memory.ID), struct{}{}
	})
	targetTags := tagSet(target.Memory.Tags)
	targetTokens := memory.Tokenize(target.Memory.Content)

	if len(candidates) > e.cfg.DiscoveryNeighbourhood {
		candidates = candidates[:e.cfg.DiscoveryNeighbourhood]
	}
	var out []Proposal
	for _, c := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if c.Memory.ID == target.Memory.ID {
			continue
		}
		if _, ok := linked[c.Memory.ID]; ok {
			continue
		}
		p := Proposal{
			FromID:       target.Memory.ID,
			ToID:         c.Memory.ID,
			TagOverlap:   jaccard(targetTags, tagSet(c.Memory.Tags)),
			TokenOverlap: jaccard(targetTokens, memory.Tokenize(c.Memory.Content)),
		}
		hasVectors := len(target.Vector) > 0 && len(target.Vector) == len(c.Vector)
		if hasVectors {
			sim, err := memory.CosineSimilarity(target.Vector, c.Vector)
			if err != nil {
				return nil, err
			}
			p.Similarity = max(0, sim)
			p.Strength = similarityWeight*p.Similarity + tagWeight*p.TagOverlap + tokenWeight*p.TokenOverlap
			p.Confidence = p.Strength
		} else {
			p.Strength = noVectorTagWeight*p.TagOverlap + (1-noVectorTagWeight)*p.TokenOverlap
			// Heuristics without vectors are trusted less.
			p.Confidence = 0.8 * p.Strength
		}
		p.Strength = memory.Clamp01(p.Strength)
		p.Confidence = memory.Clamp01(p.Confidence)
		if p.Strength < e.cfg.DiscoveryMinStrength {
			continue
		}
		p.Type = e.proposalType(p, target.Memory, c.Memory)
		out = append(out, p)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Strength != out[j].Strength {
			return out[i].Strength > out[j].Strength
		}
		return out[i].ToID < out[j].ToID
	})
	if len(out) > e.cfg.DiscoveryLimit {
		out = out[:e.cfg.DiscoveryLimit]
	}
	return out, nil
}

func (e *Engine) proposalType(p Proposal, a, b *memory.Entity) memory.RelationshipType {
	if p.Similarity >= e.cfg.SimilarThreshold {
		return memory.RelSimilar
	}
	gap := a.CreatedAt.Sub(b.CreatedAt)
	if gap < 0 {
		gap = -gap
	}
	if gap <= e.cfg.TemporalWindow {
		return memory.RelTemporal
	}
	return memory.RelRelated
}

// AutoCreateResult reports what AutoCreate persisted.
type AutoCreateResult struct {
	Created []*memory.Relationship `json:"created"`
	Errors  []memory.ItemError     `json:"-"`
}

// AutoCreate discovers and persists relationships. With a classifier
// installed each proposal is relabelled first; classifier failures keep the
// heuristic label.
func (e *Engine) AutoCreate(ctx context.Context, target Node, candidates []Node) (*AutoCreateResult, error) {
	proposals, err := e.Discover(ctx, target, candidates)
	if err != nil {
		return nil, err
	}
	byID := lo.SliceToMap(candidates, func(n Node) (string, *memory.Entity) { return n.Memory.ID, n.Memory })

	res := &AutoCreateResult{}
	for _, p := range proposals {
		if err := ctx.Err(); err != nil {
			break
		}
		if e.classifier != nil {
			typ, conf, err := e.classifier.Classify(ctx, target.Memory, byID[p.ToID])
			switch {
			case err != nil:
				e.logger.Warn().Str("to", p.ToID).Err(err).Msg("Classifier failed, keeping heuristic label")
			case typ.Valid():
				p.Type = typ
				p.Confidence = memory.Clamp01(conf)
			}
		}
		r, err := e.CreateRelationship(ctx, CreateRequest{
			FromID:     p.FromID,
			ToID:       p.ToID,
			Type:       p.Type,
			Strength:   p.Strength,
			Confidence: p.Confidence,
		})
		if err != nil {
			e.logger.Error().Str("to", p.ToID).Err(err).Msg("Failed to persist discovered relationship")
			res.Errors = append(res.Errors, memory.ItemError{ID: p.ToID, Err: err})
			continue
		}
		res.Created = append(res.Created, r)
	}
	return res, nil
}

func tagSet(tags []string) []string {
	return lo.Uniq(lo.FilterMap(tags, func(t string, _ int) (string, bool) {
		n := memory.NormalizeTag(t)
		return n, n != ""
	}))
}

func jaccard(a, b []string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	inter := len(lo.Intersect(a, b))
	union := len(lo.Union(a, b))
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}
