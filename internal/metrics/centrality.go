package metrics

import (
	"context"

	"github.com/starford/vaultlens/internal/graph"
)

// Degrees returns distinct in- and out-degree per node, self-loops included.
func Degrees(g *graph.Graph) (in, out []int) {
	n := g.NodeCount()
	in = make([]int, n)
	out = make([]int, n)
	for i := 0; i < n; i++ {
		in[i] = g.InDegree(i)
		out[i] = g.OutDegree(i)
	}
	return in, out
}

// Betweenness computes directed betweenness centrality with Brandes'
// algorithm, normalized by (n-1)(n-2). Self-loops never lie on a shortest
// path and are ignored.
func Betweenness(ctx context.Context, g *graph.Graph) ([]float64, error) {
	n := g.NodeCount()
	cb := make([]float64, n)
	if n < 3 {
		return cb, nil
	}

	sigma := make([]float64, n)
	dist := make([]int, n)
	delta := make([]float64, n)
	preds := make([][]int, n)
	stack := make([]int, 0, n)
	queue := make([]int, 0, n)

	for s := 0; s < n; s++ {
		if s%64 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		for i := 0; i < n; i++ {
			sigma[i] = 0
			dist[i] = -1
			delta[i] = 0
			preds[i] = preds[i][:0]
		}
		sigma[s] = 1
		dist[s] = 0
		stack = stack[:0]
		queue = append(queue[:0], s)

		for head := 0; head < len(queue); head++ {
			v := queue[head]
			stack = append(stack, v)
			for _, w := range g.Out(v) {
				if dist[w] < 0 {
					dist[w] = dist[v] + 1
					queue = append(queue, w)
				}
				if dist[w] == dist[v]+1 {
					sigma[w] += sigma[v]
					preds[w] = append(preds[w], v)
				}
			}
		}

		for k := len(stack) - 1; k >= 0; k-- {
			w := stack[k]
			for _, v := range preds[w] {
				delta[v] += sigma[v] / sigma[w] * (1 + delta[w])
			}
			if w != s {
				cb[w] += delta[w]
			}
		}
	}

	scale := 1 / float64((n-1)*(n-2))
	for i := range cb {
		cb[i] *= scale
	}
	return cb, nil
}

// Closeness returns r / sum(d) where r is the number of nodes reachable
// from the node along outgoing edges and d their distances. A node that
// reaches nothing scores 0.
func Closeness(ctx context.Context, g *graph.Graph) ([]float64, error) {
	n := g.NodeCount()
	out := make([]float64, n)
	dist := make([]int, n)
	queue := make([]int, 0, n)

	for s := 0; s < n; s++ {
		if s%64 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		for i := range dist {
			dist[i] = -1
		}
		dist[s] = 0
		queue = append(queue[:0], s)
		reached, total := 0, 0
		for head := 0; head < len(queue); head++ {
			v := queue[head]
			for _, w := range g.Out(v) {
				if dist[w] >= 0 {
					continue
				}
				dist[w] = dist[v] + 1
				reached++
				total += dist[w]
				queue = append(queue, w)
			}
		}
		if total > 0 {
			out[s] = float64(reached) / float64(total)
		}
	}
	return out, nil
}

// Clustering returns the local clustering coefficient of each node in the
// undirected projection: 2T / k(k-1), or 0 when k < 2.
func Clustering(u *graph.Undirected) []float64 {
	n := u.NodeCount()
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		nbrs := u.Neighbors(i)
		k := len(nbrs)
		if k < 2 {
			continue
		}
		triangles := 0
		for a := 0; a < k; a++ {
			for b := a + 1; b < k; b++ {
				if u.Adjacent(nbrs[a], nbrs[b]) {
					triangles++
				}
			}
		}
		out[i] = 2 * float64(triangles) / float64(k*(k-1))
	}
	return out
}
