package graph

import (
	"github.com/aschepis/backscratcher/memtier/memory"
)

// arena is an index-based view of the graph. Nodes are dense integers;
// adjacency lists hold edge indices so both directions share one record.
type arena struct {
	ids   []string
	index map[string]int
	edges []*memory.Relationship
	adj   [][]int
}

func newArena(edges []*memory.Relationship) *arena {
	a := &arena{index: make(map[string]int), edges: edges}
	for i, r := range edges {
		from := a.add(r.FromID)
		to := a.add(r.ToID)
		a.adj[from] = append(a.adj[from], i)
		a.adj[to] = append(a.adj[to], i)
	}
	return a
}

func (a *arena) add(id string) int {
	if n, ok := a.index[id]; ok {
		return n
	}
	n := len(a.ids)
	a.ids = append(a.ids, id)
	a.index[id] = n
	a.adj = append(a.adj, nil)
	return n
}

func (a *arena) node(id string) (int, bool) {
	n, ok := a.index[id]
	return n, ok
}

// other returns the endpoint of edge e opposite node n.
func (a *arena) other(e, n int) int {
	r := a.edges[e]
	if a.ids[n] == r.FromID {
		return a.index[r.ToID]
	}
	return a.index[r.FromID]
}

// unionFind tracks connected components.
type unionFind struct {
	parent []int
	size   []int
}

func newUnionFind(n int) *unionFind {
	u := &unionFind{parent: make([]int, n), size: make([]int, n)}
	for i := range u.parent {
		u.parent[i] = i
		u.size[i] = 1
	}
	return u
}

func (u *unionFind) find(x int) int {
	for u.parent[x] != x {
		u.parent[x] = u.parent[u.parent[x]]
		x = u.parent[x]
	}
	return x
}

func (u *unionFind) union(a, b int) {
	ra, rb := u.find(a), u.find(b)
	if ra == rb {
		return
	}
	if u.size[ra] < u.size[rb] {
		ra, rb = rb, ra
	}
	u.parent[rb] = ra
	u.size[ra] += u.size[rb]
}
