package graph

import "sort"

// Undirected is the undirected projection of a Graph: u and v are adjacent
// when either references the other. Self-loops are dropped. Node positions
// match the directed graph.
type Undirected struct {
	ids   []int64
	adj   [][]int
	edges int
}

// Undirected returns the undirected projection of g.
func (g *Graph) Undirected() *Undirected {
	u := &Undirected{
		ids: g.ids,
		adj: make([][]int, len(g.ids)),
	}
	for i := range g.ids {
		seen := make(map[int]struct{}, len(g.out[i])+len(g.in[i]))
		for _, j := range g.out[i] {
			seen[j] = struct{}{}
		}
		for _, j := range g.in[i] {
			seen[j] = struct{}{}
		}
		delete(seen, i)
		nbrs := make([]int, 0, len(seen))
		for j := range seen {
			nbrs = append(nbrs, j)
		}
		sort.Ints(nbrs)
		u.adj[i] = nbrs
		u.edges += len(nbrs)
	}
	u.edges /= 2
	return u
}

// NodeCount returns the number of nodes.
func (u *Undirected) NodeCount() int { return len(u.ids) }

// EdgeCount returns the number of undirected edges.
func (u *Undirected) EdgeCount() int { return u.edges }

// ID returns the note id at position i.
func (u *Undirected) ID(i int) int64 { return u.ids[i] }

// Neighbors returns the neighbours of node i in ascending order. The slice
// must not be modified.
func (u *Undirected) Neighbors(i int) []int { return u.adj[i] }

// Degree returns the number of neighbours of node i.
func (u *Undirected) Degree(i int) int { return len(u.adj[i]) }

// Adjacent reports whether i and j are neighbours.
func (u *Undirected) Adjacent(i, j int) bool {
	nbrs := u.adj[i]
	k := sort.SearchInts(nbrs, j)
	return k < len(nbrs) && nbrs[k] == j
}
