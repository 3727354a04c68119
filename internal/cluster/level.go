package cluster

import (
	"sort"

	"github.com/starford/vaultlens/internal/graph"
)

type arc struct {
	to int
	w  float64
}

// level is one weighted graph of the Louvain hierarchy. Arcs are sorted by
// target and never include the node itself; internal weight sits in loop.
type level struct {
	n      int
	arcs   [][]arc
	loop   []float64
	degree []float64
	m2     float64
}

func fromUndirected(u *graph.Undirected) *level {
	n := u.NodeCount()
	l := &level{
		n:      n,
		arcs:   make([][]arc, n),
		loop:   make([]float64, n),
		degree: make([]float64, n),
	}
	for i := 0; i < n; i++ {
		nbrs := u.Neighbors(i)
		l.arcs[i] = make([]arc, len(nbrs))
		for k, j := range nbrs {
			l.arcs[i][k] = arc{to: j, w: 1}
		}
		l.degree[i] = float64(len(nbrs))
		l.m2 += l.degree[i]
	}
	return l
}

// localMoves repeatedly moves single nodes to the neighbouring community
// with the best modularity gain until no move improves it. It returns the
// community of each node and whether any node changed community.
func (l *level) localMoves(resolution float64) ([]int, bool) {
	comm := make([]int, l.n)
	tot := make([]float64, l.n)
	for i := 0; i < l.n; i++ {
		comm[i] = i
		tot[i] = l.degree[i]
	}
	if l.m2 == 0 {
		return comm, false
	}

	weights := make(map[int]float64)
	var order []int
	movedAny := false
	for {
		moved := false
		for i := 0; i < l.n; i++ {
			ki := l.degree[i]
			cur := comm[i]

			clear(weights)
			order = order[:0]
			for _, a := range l.arcs[i] {
				c := comm[a.to]
				if _, ok := weights[c]; !ok {
					order = append(order, c)
				}
				weights[c] += a.w
			}
			sort.Ints(order)

			tot[cur] -= ki
			best := cur
			bestGain := weights[cur] - resolution*tot[cur]*ki/l.m2
			for _, c := range order {
				if c == cur {
					continue
				}
				gain := weights[c] - resolution*tot[c]*ki/l.m2
				if gain > bestGain+minGain {
					best, bestGain = c, gain
				}
			}
			tot[best] += ki
			if best != cur {
				comm[i] = best
				moved = true
				movedAny = true
			}
		}
		if !moved {
			break
		}
	}
	return comm, movedAny
}

// aggregate collapses each community into a single node.
func (l *level) aggregate(comm []int, k int) *level {
	next := &level{
		n:      k,
		arcs:   make([][]arc, k),
		loop:   make([]float64, k),
		degree: make([]float64, k),
		m2:     l.m2,
	}
	acc := make([]map[int]float64, k)
	for c := range acc {
		acc[c] = make(map[int]float64)
	}
	for i := 0; i < l.n; i++ {
		ci := comm[i]
		next.loop[ci] += l.loop[i]
		next.degree[ci] += l.degree[i]
		for _, a := range l.arcs[i] {
			cj := comm[a.to]
			if ci == cj {
				// Each internal edge is seen from both ends.
				next.loop[ci] += a.w / 2
				continue
			}
			acc[ci][cj] += a.w
		}
	}
	for c := 0; c < k; c++ {
		arcs := make([]arc, 0, len(acc[c]))
		for to, w := range acc[c] {
			arcs = append(arcs, arc{to: to, w: w})
		}
		sort.Slice(arcs, func(a, b int) bool { return arcs[a].to < arcs[b].to })
		next.arcs[c] = arcs
	}
	return next
}
