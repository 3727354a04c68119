// Package analysis runs resolution, graph construction, metrics and
// clustering for one vault and persists the result as a single snapshot.
package analysis

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/starford/vaultlens/internal/apperr"
	"github.com/starford/vaultlens/internal/cluster"
	"github.com/starford/vaultlens/internal/graph"
	"github.com/starford/vaultlens/internal/metrics"
	"github.com/starford/vaultlens/internal/models"
	"github.com/starford/vaultlens/internal/resolver"
)

// Stage names reported in AnalysisError.
const (
	StageLoad    = "load"
	StageMetrics = "metrics"
	StageCluster = "cluster"
	StagePersist = "persist"
)

// Gateway is the subset of the index an analysis run reads and writes.
type Gateway interface {
	GetVault(ctx context.Context, id int64) (*models.Vault, error)
	FetchNoteIndex(ctx context.Context, vaultID int64) ([]models.NoteIndexEntry, error)
	FetchLinks(ctx context.Context, vaultID int64) ([]models.Link, error)
	ReplaceGraphMetrics(ctx context.Context, vaultID int64, snap models.Snapshot) error
}

// Result summarises one analysis run.
type Result struct {
	RunID         string                        `json:"run_id"`
	VaultID       int64                         `json:"vault_id"`
	ComputedAt    time.Time                     `json:"computed_at"`
	Notes         int                           `json:"notes"`
	Links         int                           `json:"links"`
	ResolvedLinks int                           `json:"resolved_links"`
	Edges         int                           `json:"edges"`
	Clusters      int                           `json:"clusters"`
	Modularity    float64                       `json:"modularity"`
	PageRank      metrics.PageRankStats         `json:"pagerank"`
	Hubs          []models.RankedNote           `json:"hubs"`
	Orphans       []models.RankedNote           `json:"orphans"`
	BrokenLinks   []models.BrokenLink           `json:"broken_links"`
	Ambiguities   []*apperr.ResolutionAmbiguity `json:"-"`
	Warnings      []string                      `json:"warnings,omitempty"`
	Duration      time.Duration                 `json:"duration"`
}

// Analyzer runs analyses against a Gateway.
type Analyzer struct {
	gw          Gateway
	metricsOpts metrics.Options
	engine      *metrics.Engine
	clusterOpts cluster.Options
	logger      *slog.Logger
	now         func() time.Time
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithMetrics sets the metrics configuration.
func WithMetrics(opts metrics.Options) Option {
	return func(a *Analyzer) { a.metricsOpts = opts }
}

// WithCluster sets the community detection configuration.
func WithCluster(opts cluster.Options) Option {
	return func(a *Analyzer) { a.clusterOpts = opts }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Analyzer) { a.logger = l }
}

// New creates an Analyzer.
func New(gw Gateway, opts ...Option) *Analyzer {
	a := &Analyzer{
		gw:          gw,
		metricsOpts: metrics.DefaultOptions(),
		clusterOpts: cluster.DefaultOptions(),
		logger:      slog.Default(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.engine = metrics.NewEngine(a.metricsOpts, a.logger)
	return a
}

// Run analyses one vault. Everything is computed in memory first; link
// resolutions and the metrics snapshot are then written in one
// transaction. On failure the previous snapshot stays in place and the
// error is an *apperr.AnalysisError.
func (a *Analyzer) Run(ctx context.Context, vaultID int64) (*Result, error) {
	started := a.now()
	fail := func(stage string, err error) (*Result, error) {
		a.logger.Error("analysis: failed",
			slog.Int64("vault_id", vaultID),
			slog.String("stage", stage),
			slog.String("error", err.Error()))
		return nil, &apperr.AnalysisError{VaultID: vaultID, Stage: stage, Err: err}
	}

	if _, err := a.gw.GetVault(ctx, vaultID); err != nil {
		return fail(StageLoad, err)
	}
	entries, err := a.gw.FetchNoteIndex(ctx, vaultID)
	if err != nil {
		return fail(StageLoad, err)
	}
	rawLinks, err := a.gw.FetchLinks(ctx, vaultID)
	if err != nil {
		return fail(StageLoad, err)
	}

	idx := resolver.NewNoteIndex(entries)
	links, ambiguities := resolver.New(idx).ResolveAll(rawLinks)

	resolved := make([]graph.ResolvedLink, 0, len(links))
	for _, l := range links {
		if l.ResolvedNoteID != nil {
			resolved = append(resolved, graph.ResolvedLink{Source: l.SourceNoteID, Target: *l.ResolvedNoteID})
		}
	}
	g := graph.Build(idx.NoteIDs(), resolved)

	report, err := a.engine.Compute(ctx, g)
	if err != nil {
		return fail(StageMetrics, err)
	}
	clusters, err := cluster.Detect(ctx, g.Undirected(), a.clusterOpts)
	if err != nil {
		return fail(StageCluster, err)
	}

	runID := uuid.NewString()
	snap := models.Snapshot{
		RunID:      runID,
		ComputedAt: report.ComputedAt,
		Metrics:    report.Metrics,
		Clusters:   clusters.Assignments,
		Links:      links,
	}

	if err := a.gw.ReplaceGraphMetrics(ctx, vaultID, snap); err != nil {
		return fail(StagePersist, err)
	}

	res := &Result{
		RunID:         runID,
		VaultID:       vaultID,
		ComputedAt:    report.ComputedAt,
		Notes:         g.NodeCount(),
		Links:         len(links),
		ResolvedLinks: len(resolved),
		Edges:         g.EdgeCount(),
		Clusters:      clusters.Count,
		Modularity:    clusters.Modularity,
		PageRank:      report.PageRank,
		Hubs:          ranked(idx, report, report.Hubs),
		Orphans:       ranked(idx, report, report.Orphans),
		BrokenLinks:   brokenLinks(idx, links),
		Ambiguities:   ambiguities,
		Duration:      a.now().Sub(started),
	}
	for _, amb := range ambiguities {
		res.Warnings = append(res.Warnings, amb.Error())
	}
	if !report.PageRank.Converged {
		res.Warnings = append(res.Warnings,
			fmt.Sprintf("pagerank did not converge after %d iterations", report.PageRank.Iterations))
	}

	a.logger.Info("analysis: completed",
		slog.String("run_id", runID),
		slog.Int64("vault_id", vaultID),
		slog.Int("notes", res.Notes),
		slog.Int("edges", res.Edges),
		slog.Int("broken", len(res.BrokenLinks)),
		slog.Int("ambiguous", len(ambiguities)),
		slog.Int("clusters", res.Clusters),
		slog.Duration("duration", res.Duration))
	return res, nil
}

func ranked(idx *resolver.NoteIndex, rep *metrics.Report, ids []int64) []models.RankedNote {
	byID := make(map[int64]models.GraphMetrics, len(rep.Metrics))
	for _, m := range rep.Metrics {
		byID[m.NoteID] = m
	}
	out := make([]models.RankedNote, 0, len(ids))
	for _, id := range ids {
		e, _ := idx.Entry(id)
		m := byID[id]
		out = append(out, models.RankedNote{
			NoteID:    id,
			Path:      e.Path,
			Title:     e.Title,
			InDegree:  m.InDegree,
			OutDegree: m.OutDegree,
			PageRank:  m.PageRank,
		})
	}
	return out
}

func brokenLinks(idx *resolver.NoteIndex, links []models.Link) []models.BrokenLink {
	out := []models.BrokenLink{}
	for _, l := range links {
		if !l.Broken {
			continue
		}
		e, _ := idx.Entry(l.SourceNoteID)
		out = append(out, models.BrokenLink{
			LinkID:       l.ID,
			SourceNoteID: l.SourceNoteID,
			SourcePath:   e.Path,
			RawTarget:    l.RawTarget,
		})
	}
	return out
}

// String implements fmt.Stringer for log output.
func (r *Result) String() string {
	return fmt.Sprintf("vault %d: %d notes, %d edges, %d broken, %d hubs, %d orphans, %d clusters",
		r.VaultID, r.Notes, r.Edges, len(r.BrokenLinks), len(r.Hubs), len(r.Orphans), r.Clusters)
}
