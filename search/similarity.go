// Package search implements lexical and embedding-based retrieval over
// stored memories.
package search

import (
	"fmt"
	"sort"

	"github.com/aschepis/backscratcher/memtier/memory"
)

// Candidate pairs a memory with its vector.
type Candidate struct {
	Memory *memory.Entity
	Vector []float32
}

// Match is a scored candidate.
type Match struct {
	Memory     *memory.Entity `json:"memory"`
	Similarity float64        `json:"similarity"`
}

// FindSimilar scores candidates against query, drops those below threshold,
// and returns at most limit matches, best first. Equal similarities put the
// more recently accessed memory first.
func FindSimilar(query []float32, candidates []Candidate, limit int, threshold float64) ([]Match, error) {
	if limit <= 0 {
		return nil, nil
	}
	matches := make([]Match, 0, len(candidates))
	for _, c := range candidates {
		sim, err := memory.CosineSimilarity(query, c.Vector)
		if err != nil {
			return nil, fmt.Errorf("candidate %s: %w", c.Memory.ID, err)
		}
		if sim < threshold {
			continue
		}
		matches = append(matches, Match{Memory: c.Memory, Similarity: sim})
	}
	sortMatches(matches)
	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

func sortMatches(matches []Match) {
	sort.SliceStable(matches, func(i, j int) bool {
		return ranksBefore(matches[i].Similarity, matches[j].Similarity, matches[i].Memory, matches[j].Memory)
	})
}

func ranksBefore(si, sj float64, a, b *memory.Entity) bool {
	if si != sj {
		return si > sj
	}
	if !a.LastAccessed.Equal(b.LastAccessed) {
		return a.LastAccessed.After(b.LastAccessed)
	}
	return a.ID < b.ID
}
