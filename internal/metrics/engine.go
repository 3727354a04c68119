package metrics

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/starford/vaultlens/internal/graph"
	"github.com/starford/vaultlens/internal/models"
)

var tracer = otel.Tracer("vaultlens/metrics")

// Report is the full metrics computation for one graph.
type Report struct {
	ComputedAt time.Time
	// Metrics has one entry per note, ordered by note id.
	Metrics []models.GraphMetrics
	// Hubs are ordered by combined degree descending, then note id.
	Hubs []int64
	// Orphans are ordered by note id.
	Orphans  []int64
	PageRank PageRankStats
}

// PageRankStats describes how the power iteration ended.
type PageRankStats struct {
	Iterations int  `json:"iterations"`
	Converged  bool `json:"converged"`
}

// Engine computes metrics with a fixed configuration.
type Engine struct {
	opts   Options
	logger *slog.Logger
	now    func() time.Time
}

// NewEngine creates an Engine. Out-of-range options fall back to defaults.
func NewEngine(opts Options, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{opts: opts.withDefaults(), logger: logger, now: time.Now}
}

// Options returns the effective configuration.
func (e *Engine) Options() Options { return e.opts }

// Compute calculates every metric for every node of g. An empty graph
// yields an empty report. The only error is context cancellation.
func (e *Engine) Compute(ctx context.Context, g *graph.Graph) (*Report, error) {
	ctx, span := tracer.Start(ctx, "metrics.Engine.Compute",
		trace.WithAttributes(
			attribute.Int("node_count", g.NodeCount()),
			attribute.Int("edge_count", g.EdgeCount()),
		),
	)
	defer span.End()

	rep := &Report{ComputedAt: e.now().UTC(), Metrics: []models.GraphMetrics{}}
	n := g.NodeCount()
	if n == 0 {
		return rep, nil
	}

	pr, err := PageRank(ctx, g, e.opts)
	if err != nil {
		return nil, err
	}
	rep.PageRank = PageRankStats{Iterations: pr.Iterations, Converged: pr.Converged}

	between, err := Betweenness(ctx, g)
	if err != nil {
		return nil, err
	}
	closeness, err := Closeness(ctx, g)
	if err != nil {
		return nil, err
	}
	clustering := Clustering(g.Undirected())
	in, out := Degrees(g)

	rep.Metrics = make([]models.GraphMetrics, n)
	for i := 0; i < n; i++ {
		id := g.ID(i)
		rep.Metrics[i] = models.GraphMetrics{
			NoteID:      id,
			PageRank:    pr.Scores[i],
			InDegree:    in[i],
			OutDegree:   out[i],
			Betweenness: between[i],
			Closeness:   closeness[i],
			Clustering:  clustering[i],
			ComputedAt:  rep.ComputedAt,
		}
		switch {
		case IsOrphan(in[i], out[i]):
			rep.Orphans = append(rep.Orphans, id)
		case IsHub(in[i], out[i], e.opts.HubThreshold):
			rep.Hubs = append(rep.Hubs, id)
		}
	}
	sortHubs(rep.Hubs, g, in, out)

	e.logger.Debug("metrics: computed",
		slog.Int("nodes", n),
		slog.Int("edges", g.EdgeCount()),
		slog.Int("pagerank_iterations", pr.Iterations),
		slog.Bool("converged", pr.Converged),
		slog.Int("hubs", len(rep.Hubs)),
		slog.Int("orphans", len(rep.Orphans)))
	span.SetAttributes(
		attribute.Int("hubs", len(rep.Hubs)),
		attribute.Int("orphans", len(rep.Orphans)),
	)
	return rep, nil
}

func sortHubs(hubs []int64, g *graph.Graph, in, out []int) {
	degree := func(id int64) int {
		i, _ := g.Index(id)
		return in[i] + out[i]
	}
	sort.SliceStable(hubs, func(a, b int) bool {
		da, db := degree(hubs[a]), degree(hubs[b])
		if da != db {
			return da > db
		}
		return hubs[a] < hubs[b]
	})
}
