// Package graph builds the directed reference graph of a vault.
package graph

import (
	"sort"
)

// ResolvedLink is one resolved reference occurrence.
type ResolvedLink struct {
	Source int64
	Target int64
}

// Edge is a distinct (from, to) pair with the number of references that
// collapsed into it.
type Edge struct {
	From         int64
	To           int64
	Multiplicity int
}

// Graph is an immutable directed graph over note ids. Nodes are addressed
// internally by their position in ascending id order.
type Graph struct {
	ids       []int64
	pos       map[int64]int
	out       [][]int
	in        [][]int
	mult      map[[2]int]int
	selfLoops map[int]struct{}
}

// Build creates a graph containing every note id as a node, including notes
// without edges. Links whose endpoints are not among noteIDs are ignored.
// Repeated links between the same pair collapse into one edge; self-loops
// are kept and also recorded separately.
func Build(noteIDs []int64, links []ResolvedLink) *Graph {
	ids := dedupeAndSort(noteIDs)
	g := &Graph{
		ids:       ids,
		pos:       make(map[int64]int, len(ids)),
		out:       make([][]int, len(ids)),
		in:        make([][]int, len(ids)),
		mult:      make(map[[2]int]int),
		selfLoops: make(map[int]struct{}),
	}
	for i, id := range ids {
		g.pos[id] = i
	}

	for _, l := range links {
		from, ok := g.pos[l.Source]
		if !ok {
			continue
		}
		to, ok := g.pos[l.Target]
		if !ok {
			continue
		}
		key := [2]int{from, to}
		if g.mult[key] == 0 {
			g.out[from] = append(g.out[from], to)
			g.in[to] = append(g.in[to], from)
			if from == to {
				g.selfLoops[from] = struct{}{}
			}
		}
		g.mult[key]++
	}
	for i := range ids {
		sort.Ints(g.out[i])
		sort.Ints(g.in[i])
	}
	return g
}

// NodeCount returns the number of nodes.
func (g *Graph) NodeCount() int { return len(g.ids) }

// EdgeCount returns the number of distinct edges, self-loops included.
func (g *Graph) EdgeCount() int { return len(g.mult) }

// NoteIDs returns node ids in ascending order.
func (g *Graph) NoteIDs() []int64 {
	return append([]int64(nil), g.ids...)
}

// ID returns the note id at position i.
func (g *Graph) ID(i int) int64 { return g.ids[i] }

// Index returns the position of a note id.
func (g *Graph) Index(id int64) (int, bool) {
	i, ok := g.pos[id]
	return i, ok
}

// Out returns the distinct successors of node i in ascending order. The
// slice must not be modified.
func (g *Graph) Out(i int) []int { return g.out[i] }

// In returns the distinct predecessors of node i in ascending order. The
// slice must not be modified.
func (g *Graph) In(i int) []int { return g.in[i] }

// OutDegree counts distinct outgoing edges of node i, self-loop included.
func (g *Graph) OutDegree(i int) int { return len(g.out[i]) }

// InDegree counts distinct incoming edges of node i, self-loop included.
func (g *Graph) InDegree(i int) int { return len(g.in[i]) }

// HasSelfLoop reports whether node i references itself.
func (g *Graph) HasSelfLoop(i int) bool {
	_, ok := g.selfLoops[i]
	return ok
}

// SelfLoops returns the ids of notes that reference themselves, ascending.
func (g *Graph) SelfLoops() []int64 {
	out := make([]int64, 0, len(g.selfLoops))
	for i := range g.selfLoops {
		out = append(out, g.ids[i])
	}
	sort.Slice(out, func(a, b int) bool { return out[a] < out[b] })
	return out
}

// Multiplicity returns how many references collapsed into the edge
// from -> to, or 0 if there is no such edge.
func (g *Graph) Multiplicity(from, to int64) int {
	f, ok := g.pos[from]
	if !ok {
		return 0
	}
	t, ok := g.pos[to]
	if !ok {
		return 0
	}
	return g.mult[[2]int{f, t}]
}

// Edges returns every distinct edge ordered by (from, to).
func (g *Graph) Edges() []Edge {
	out := make([]Edge, 0, len(g.mult))
	for from, succ := range g.out {
		for _, to := range succ {
			out = append(out, Edge{From: g.ids[from], To: g.ids[to], Multiplicity: g.mult[[2]int{from, to}]})
		}
	}
	return out
}

func dedupeAndSort(ids []int64) []int64 {
	out := append([]int64(nil), ids...)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	n := 0
	for i, id := range out {
		if i > 0 && id == out[n-1] {
			continue
		}
		out[n] = id
		n++
	}
	return out[:n]
}
