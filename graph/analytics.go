package graph

import (
	"context"

	"github.com/aschepis/backscratcher/memtier/memory"
)

// Analytics summarizes the relationship graph.
type Analytics struct {
	TotalRelationships int                             `json:"total_relationships"`
	AverageStrength    float64                         `json:"average_strength"`
	MostConnected      *Degree                         `json:"most_connected,omitempty"`
	ByType             map[memory.RelationshipType]int `json:"by_type"`
	// Density is edges over possible directed edges among all memories.
	Density float64 `json:"density"`
	// Clusters counts components of two or more memories joined by edges
	// at or above the cluster threshold.
	Clusters       int `json:"clusters"`
	LargestCluster int `json:"largest_cluster"`
	Memories       int `json:"memories"`
}

// Degree is a memory's edge count.
type Degree struct {
	MemoryID string `json:"memory_id"`
	Degree   int    `json:"degree"`
}

// Analytics computes graph-wide statistics.
func (e *Engine) Analytics(ctx context.Context) (*Analytics, error) {
	a, err := e.load(ctx)
	if err != nil {
		return nil, err
	}
	ids, err := e.store.ListMemoryIDs(ctx, 0)
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		a.add(id)
	}

	out := &Analytics{
		TotalRelationships: len(a.edges),
		ByType:             map[memory.RelationshipType]int{},
		Memories:           len(ids),
	}
	if len(a.edges) == 0 {
		return out, nil
	}

	var sum float64
	uf := newUnionFind(len(a.ids))
	for _, r := range a.edges {
		sum += r.Strength
		out.ByType[r.Type]++
		if r.Strength >= e.cfg.ClusterThreshold {
			uf.union(a.index[r.FromID], a.index[r.ToID])
		}
	}
	out.AverageStrength = sum / float64(len(a.edges))

	for n, edges := range a.adj {
		d := len(edges)
		if d == 0 {
			continue
		}
		id := a.ids[n]
		if out.MostConnected == nil || d > out.MostConnected.Degree ||
			(d == out.MostConnected.Degree && id < out.MostConnected.MemoryID) {
			out.MostConnected = &Degree{MemoryID: id, Degree: d}
		}
	}

	if n := len(ids); n > 1 {
		out.Density = float64(len(a.edges)) / float64(n*(n-1))
	}

	for n := range a.ids {
		if uf.find(n) != n {
			continue
		}
		if size := uf.size[n]; size >= 2 {
			out.Clusters++
			out.LargestCluster = max(out.LargestCluster, size)
		}
	}
	return out, nil
}
