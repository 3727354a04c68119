// Package cluster partitions the undirected note graph into communities by
// modularity optimisation (Louvain).
package cluster

import (
	"context"
	"log/slog"
	"sort"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/starford/vaultlens/internal/graph"
	"github.com/starford/vaultlens/internal/models"
)

var tracer = otel.Tracer("vaultlens/cluster")

const (
	// DefaultResolution is the standard modularity resolution.
	DefaultResolution = 1.0
	// DefaultMaxLevels caps the number of aggregation levels.
	DefaultMaxLevels = 32

	minGain = 1e-12
)

// Options configures Detect.
type Options struct {
	Resolution float64
	MaxLevels  int
}

// DefaultOptions returns the standard configuration.
func DefaultOptions() Options {
	return Options{Resolution: DefaultResolution, MaxLevels: DefaultMaxLevels}
}

// Result is a partition of the notes.
type Result struct {
	// Assignments has one entry per note, ordered by note id. Cluster ids
	// are dense (0..Count-1) and numbered by their smallest member.
	Assignments []models.ClusterAssignment
	Count       int
	Modularity  float64
	Levels      int
}

// Members returns the note ids of one cluster in ascending order.
func (r *Result) Members(clusterID int) []int64 {
	var out []int64
	for _, a := range r.Assignments {
		if a.ClusterID == clusterID {
			out = append(out, a.NoteID)
		}
	}
	return out
}

// Detect runs Louvain on u. Nodes are visited in ascending id order and
// ties keep the current community, then prefer the lowest community id, so
// the partition is deterministic. Isolated notes form singleton clusters.
func Detect(ctx context.Context, u *graph.Undirected, opts Options) (*Result, error) {
	if opts.Resolution <= 0 {
		opts.Resolution = DefaultResolution
	}
	if opts.MaxLevels <= 0 {
		opts.MaxLevels = DefaultMaxLevels
	}
	ctx, span := tracer.Start(ctx, "cluster.Detect",
		trace.WithAttributes(
			attribute.Int("node_count", u.NodeCount()),
			attribute.Int("edge_count", u.EdgeCount()),
			attribute.Float64("resolution", opts.Resolution),
		),
	)
	defer span.End()

	n := u.NodeCount()
	if n == 0 {
		span.AddEvent("empty_graph")
		return &Result{Assignments: []models.ClusterAssignment{}}, nil
	}

	membership := make([]int, n)
	for i := range membership {
		membership[i] = i
	}

	lvl := fromUndirected(u)
	levels := 0
	for levels < opts.MaxLevels {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		comm, moved := lvl.localMoves(opts.Resolution)
		levels++
		if !moved {
			break
		}
		dense, k := renumber(comm)
		for i := range membership {
			membership[i] = dense[membership[i]]
		}
		if k == lvl.n {
			break
		}
		lvl = lvl.aggregate(dense, k)
	}

	final, count := renumber(membership)
	res := &Result{
		Assignments: make([]models.ClusterAssignment, n),
		Count:       count,
		Levels:      levels,
	}
	for i := 0; i < n; i++ {
		res.Assignments[i] = models.ClusterAssignment{NoteID: u.ID(i), ClusterID: final[i]}
	}
	res.Modularity = Modularity(u, final, opts.Resolution)

	slog.Debug("cluster: detected",
		slog.Int("nodes", n),
		slog.Int("clusters", count),
		slog.Int("levels", levels),
		slog.Float64("modularity", res.Modularity))
	span.SetAttributes(
		attribute.Int("clusters", count),
		attribute.Float64("modularity", res.Modularity),
	)
	return res, nil
}

// Modularity computes Q for a partition of u given by comm (cluster id per
// node position). A graph without edges has modularity 0.
func Modularity(u *graph.Undirected, comm []int, resolution float64) float64 {
	m2 := float64(2 * u.EdgeCount())
	if m2 == 0 {
		return 0
	}
	internal := make(map[int]float64)
	total := make(map[int]float64)
	for i := 0; i < u.NodeCount(); i++ {
		total[comm[i]] += float64(u.Degree(i))
		for _, j := range u.Neighbors(i) {
			if comm[j] == comm[i] {
				internal[comm[i]]++
			}
		}
	}
	ids := make([]int, 0, len(total))
	for c := range total {
		ids = append(ids, c)
	}
	sort.Ints(ids)
	q := 0.0
	for _, c := range ids {
		q += internal[c]/m2 - resolution*(total[c]/m2)*(total[c]/m2)
	}
	return q
}

// renumber maps arbitrary community labels to 0..k-1 in order of first
// appearance.
func renumber(labels []int) ([]int, int) {
	next := 0
	seen := make(map[int]int, len(labels))
	out := make([]int, len(labels))
	for i, l := range labels {
		id, ok := seen[l]
		if !ok {
			id = next
			seen[l] = id
			next++
		}
		out[i] = id
	}
	return out, next
}
