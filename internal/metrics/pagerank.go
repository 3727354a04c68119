package metrics

import (
	"context"
	"math"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/starford/vaultlens/internal/graph"
)

// PageRankResult holds scores by node position.
type PageRankResult struct {
	Scores     []float64
	Iterations int
	Converged  bool
	Delta      float64
}

// PageRank runs power iteration over g. Nodes without outgoing edges
// spread their rank uniformly over all nodes; a self-loop counts as an
// outgoing edge. Scores sum to 1.
func PageRank(ctx context.Context, g *graph.Graph, opts Options) (*PageRankResult, error) {
	opts = opts.withDefaults()
	ctx, span := tracer.Start(ctx, "metrics.PageRank",
		trace.WithAttributes(
			attribute.Int("node_count", g.NodeCount()),
			attribute.Int("edge_count", g.EdgeCount()),
			attribute.Float64("damping", opts.Damping),
		),
	)
	defer span.End()

	n := g.NodeCount()
	if n == 0 {
		span.AddEvent("empty_graph")
		return &PageRankResult{Scores: []float64{}, Converged: true}, nil
	}

	N := float64(n)
	d := opts.Damping
	scores := make([]float64, n)
	next := make([]float64, n)
	for i := range scores {
		scores[i] = 1 / N
	}

	var sinks []int
	outDeg := make([]float64, n)
	for i := 0; i < n; i++ {
		outDeg[i] = float64(g.OutDegree(i))
		if outDeg[i] == 0 {
			sinks = append(sinks, i)
		}
	}

	res := &PageRankResult{}
	for iter := 0; iter < opts.MaxIterations; iter++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		sinkMass := 0.0
		for _, s := range sinks {
			sinkMass += scores[s]
		}
		base := (1-d)/N + d*sinkMass/N

		delta := 0.0
		for i := 0; i < n; i++ {
			v := base
			for _, j := range g.In(i) {
				v += d * scores[j] / outDeg[j]
			}
			next[i] = v
			delta += math.Abs(v - scores[i])
		}
		scores, next = next, scores
		res.Iterations = iter + 1
		res.Delta = delta
		if delta < opts.Tolerance*N {
			res.Converged = true
			break
		}
	}
	res.Scores = scores

	span.SetAttributes(
		attribute.Int("iterations", res.Iterations),
		attribute.Bool("converged", res.Converged),
	)
	return res, nil
}
