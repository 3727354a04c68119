// Package vaultservice is the facade the HTTP API, MCP server, watcher and
// CLI use to scan, analyse and query vaults.
package vaultservice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"
	"time"

	"github.com/starford/vaultlens/internal/analysis"
	"github.com/starford/vaultlens/internal/apperr"
	"github.com/starford/vaultlens/internal/index"
	"github.com/starford/vaultlens/internal/metrics"
	"github.com/starford/vaultlens/internal/models"
	"github.com/starford/vaultlens/internal/scanner"
)

// Event types published after pipeline runs.
const (
	EventScanCompleted     = "scan.completed"
	EventAnalysisCompleted = "analysis.completed"
	EventAnalysisFailed    = "analysis.failed"
)

// Publisher receives pipeline events. The SSE broker implements it.
type Publisher interface {
	Publish(eventType string, data any)
}

// NoteRef identifies a note in query results.
type NoteRef struct {
	NoteID int64  `json:"note_id"`
	Path   string `json:"path"`
	Title  string `json:"title"`
}

// Cluster is one community of notes.
type Cluster struct {
	ID    int       `json:"id"`
	Notes []NoteRef `json:"notes"`
}

// NoteMetrics is the metrics snapshot of one note.
type NoteMetrics struct {
	NoteRef
	models.GraphMetrics
	ClusterID *int `json:"cluster_id,omitempty"`
}

// Report bundles everything known about a vault.
type Report struct {
	Vault       models.Vault        `json:"vault"`
	LatestScan  *models.ScanResult  `json:"latest_scan,omitempty"`
	Notes       int                 `json:"notes"`
	Hubs        []models.RankedNote `json:"hubs"`
	Orphans     []models.RankedNote `json:"orphans"`
	BrokenLinks []models.BrokenLink `json:"broken_links"`
	Clusters    []Cluster           `json:"clusters"`
}

// Service coordinates scanning, analysis and snapshot queries.
type Service struct {
	db           index.Gateway
	scanner      *scanner.Scanner
	analyzer     *analysis.Analyzer
	hubThreshold int
	publisher    Publisher
	logger       *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithPublisher sets the event publisher.
func WithPublisher(p Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithHubThreshold sets the combined degree at which a note is a hub.
func WithHubThreshold(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.hubThreshold = n
		}
	}
}

// NewService creates a new vault service.
func NewService(db index.Gateway, sc *scanner.Scanner, an *analysis.Analyzer, opts ...Option) *Service {
	s := &Service{
		db:           db,
		scanner:      sc,
		analyzer:     an,
		hubThreshold: metrics.DefaultHubThreshold,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ListVaults returns every registered vault.
func (s *Service) ListVaults(ctx context.Context) ([]models.Vault, error) {
	vaults, err := s.db.ListVaults(ctx)
	if vaults == nil {
		vaults = []models.Vault{}
	}
	return vaults, err
}

// GetVault returns one vault.
func (s *Service) GetVault(ctx context.Context, id int64) (*models.Vault, error) {
	return s.db.GetVault(ctx, id)
}

// ScanPath scans the vault rooted at root, registering it if needed.
func (s *Service) ScanPath(ctx context.Context, root, name string, force bool) (*models.ScanResult, error) {
	res, err := s.scanner.Scan(ctx, root, scanner.Options{Force: force, Name: name})
	if err != nil {
		recordScan(statusError, 0, 0, 0, 0, 0)
		return nil, err
	}
	recordScan(statusSuccess, res.Duration, res.NotesParsed, res.NotesSkipped, res.NotesRemoved, len(res.Errors))
	s.publish(EventScanCompleted, res)
	return res, nil
}

// Scan rescans a registered vault.
func (s *Service) Scan(ctx context.Context, vaultID int64, force bool) (*models.ScanResult, error) {
	v, err := s.db.GetVault(ctx, vaultID)
	if err != nil {
		return nil, err
	}
	return s.ScanPath(ctx, v.RootPath, "", force)
}

// ScanAll scans several vaults concurrently.
func (s *Service) ScanAll(ctx context.Context, targets []scanner.Target, force bool) ([]*models.ScanResult, error) {
	results, err := s.scanner.ScanAll(ctx, targets, scanner.Options{Force: force})
	for _, res := range results {
		if res == nil {
			recordScan(statusError, 0, 0, 0, 0, 0)
			continue
		}
		recordScan(statusSuccess, res.Duration, res.NotesParsed, res.NotesSkipped, res.NotesRemoved, len(res.Errors))
		s.publish(EventScanCompleted, res)
	}
	return results, err
}

// Analyze runs a full analysis of a vault.
func (s *Service) Analyze(ctx context.Context, vaultID int64) (*analysis.Result, error) {
	start := time.Now()
	res, err := s.analyzer.Run(ctx, vaultID)
	if err != nil {
		recordAnalysis(statusError, time.Since(start))
		s.publish(EventAnalysisFailed, map[string]any{"vault_id": vaultID, "error": err.Error()})
		return nil, err
	}
	recordAnalysis(statusSuccess, res.Duration)
	brokenLinks.WithLabelValues(strconv.FormatInt(vaultID, 10)).Set(float64(len(res.BrokenLinks)))
	s.publish(EventAnalysisCompleted, res)
	return res, nil
}

// Refresh rescans a vault and re-analyses it.
func (s *Service) Refresh(ctx context.Context, vaultID int64) (*analysis.Result, error) {
	if _, err := s.Scan(ctx, vaultID, false); err != nil {
		return nil, err
	}
	return s.Analyze(ctx, vaultID)
}

// Metrics returns the current metrics snapshot of a vault.
func (s *Service) Metrics(ctx context.Context, vaultID int64) ([]models.GraphMetrics, error) {
	if _, err := s.db.GetVault(ctx, vaultID); err != nil {
		return nil, err
	}
	m, err := s.db.GraphMetrics(ctx, vaultID)
	if m == nil {
		m = []models.GraphMetrics{}
	}
	return m, err
}

// Hubs returns notes whose combined degree reaches the hub threshold,
// highest degree first. limit <= 0 returns all.
func (s *Service) Hubs(ctx context.Context, vaultID int64, limit int) ([]models.RankedNote, error) {
	ranked, err := s.ranked(ctx, vaultID)
	if err != nil {
		return nil, err
	}
	hubs := []models.RankedNote{}
	for _, r := range ranked {
		if metrics.IsHub(r.InDegree, r.OutDegree, s.hubThreshold) {
			hubs = append(hubs, r)
		}
	}
	sortByDegree(hubs)
	if limit > 0 && len(hubs) > limit {
		hubs = hubs[:limit]
	}
	return hubs, nil
}

// Orphans returns notes without resolved links in either direction,
// ordered by path.
func (s *Service) Orphans(ctx context.Context, vaultID int64) ([]models.RankedNote, error) {
	ranked, err := s.ranked(ctx, vaultID)
	if err != nil {
		return nil, err
	}
	orphans := []models.RankedNote{}
	for _, r := range ranked {
		if metrics.IsOrphan(r.InDegree, r.OutDegree) {
			orphans = append(orphans, r)
		}
	}
	sortByPath(orphans)
	return orphans, nil
}

// BrokenLinks returns unresolved links of a vault.
func (s *Service) BrokenLinks(ctx context.Context, vaultID int64) ([]models.BrokenLink, error) {
	if _, err := s.db.GetVault(ctx, vaultID); err != nil {
		return nil, err
	}
	b, err := s.db.BrokenLinks(ctx, vaultID)
	if b == nil {
		b = []models.BrokenLink{}
	}
	return b, err
}

// Clusters returns the communities of the current snapshot.
func (s *Service) Clusters(ctx context.Context, vaultID int64) ([]Cluster, error) {
	if _, err := s.db.GetVault(ctx, vaultID); err != nil {
		return nil, err
	}
	assignments, err := s.db.Clusters(ctx, vaultID)
	if err != nil {
		return nil, err
	}
	refs, err := s.noteRefs(ctx, vaultID)
	if err != nil {
		return nil, err
	}
	out := []Cluster{}
	for _, a := range assignments {
		ref, ok := refs[a.NoteID]
		if !ok {
			continue
		}
		if len(out) == 0 || out[len(out)-1].ID != a.ClusterID {
			out = append(out, Cluster{ID: a.ClusterID})
		}
		last := &out[len(out)-1]
		last.Notes = append(last.Notes, ref)
	}
	return out, nil
}

// NoteMetrics returns the snapshot values for the note at path.
func (s *Service) NoteMetrics(ctx context.Context, vaultID int64, path string) (*NoteMetrics, error) {
	entries, err := s.db.FetchNoteIndex(ctx, vaultID)
	if err != nil {
		return nil, err
	}
	var ref *NoteRef
	for _, e := range entries {
		if e.Path == path {
			ref = &NoteRef{NoteID: e.NoteID, Path: e.Path, Title: e.Title}
			break
		}
	}
	if ref == nil {
		return nil, fmt.Errorf("note %q: %w", path, apperr.ErrNotFound)
	}

	all, err := s.db.GraphMetrics(ctx, vaultID)
	if err != nil {
		return nil, err
	}
	out := &NoteMetrics{NoteRef: *ref}
	found := false
	for _, m := range all {
		if m.NoteID == ref.NoteID {
			out.GraphMetrics = m
			found = true
			break
		}
	}
	if !found {
		return nil, fmt.Errorf("metrics for %q (run analyze first): %w", path, apperr.ErrNotFound)
	}

	clusters, err := s.db.Clusters(ctx, vaultID)
	if err != nil {
		return nil, err
	}
	for _, c := range clusters {
		if c.NoteID == ref.NoteID {
			id := c.ClusterID
			out.ClusterID = &id
			break
		}
	}
	return out, nil
}

// LatestScan returns the most recent scan of a vault.
func (s *Service) LatestScan(ctx context.Context, vaultID int64) (*models.ScanResult, error) {
	if _, err := s.db.GetVault(ctx, vaultID); err != nil {
		return nil, err
	}
	return s.db.LatestScan(ctx, vaultID)
}

// Report collects the vault, its latest scan and the snapshot queries.
func (s *Service) Report(ctx context.Context, vaultID int64) (*Report, error) {
	v, err := s.db.GetVault(ctx, vaultID)
	if err != nil {
		return nil, err
	}
	rep := &Report{Vault: *v}
	if rep.LatestScan, err = s.db.LatestScan(ctx, vaultID); err != nil && !errors.Is(err, apperr.ErrNotFound) {
		return nil, err
	}
	idx, err := s.db.FetchNoteIndex(ctx, vaultID)
	if err != nil {
		return nil, err
	}
	rep.Notes = len(idx)
	if rep.Hubs, err = s.Hubs(ctx, vaultID, 0); err != nil {
		return nil, err
	}
	if rep.Orphans, err = s.Orphans(ctx, vaultID); err != nil {
		return nil, err
	}
	if rep.BrokenLinks, err = s.BrokenLinks(ctx, vaultID); err != nil {
		return nil, err
	}
	if rep.Clusters, err = s.Clusters(ctx, vaultID); err != nil {
		return nil, err
	}
	return rep, nil
}

// ResolveVault finds a vault by numeric id or root path.
func (s *Service) ResolveVault(ctx context.Context, ref string) (*models.Vault, error) {
	if id, err := strconv.ParseInt(ref, 10, 64); err == nil {
		return s.db.GetVault(ctx, id)
	}
	abs, err := filepath.Abs(ref)
	if err != nil {
		return nil, err
	}
	return s.db.GetVaultByPath(ctx, abs)
}

func (s *Service) ranked(ctx context.Context, vaultID int64) ([]models.RankedNote, error) {
	if _, err := s.db.GetVault(ctx, vaultID); err != nil {
		return nil, err
	}
	return s.db.RankedNotes(ctx, vaultID)
}

func (s *Service) noteRefs(ctx context.Context, vaultID int64) (map[int64]NoteRef, error) {
	entries, err := s.db.FetchNoteIndex(ctx, vaultID)
	if err != nil {
		return nil, err
	}
	refs := make(map[int64]NoteRef, len(entries))
	for _, e := range entries {
		refs[e.NoteID] = NoteRef{NoteID: e.NoteID, Path: e.Path, Title: e.Title}
	}
	return refs, nil
}

func (s *Service) publish(eventType string, data any) {
	if s.publisher != nil {
		s.publisher.Publish(eventType, data)
	}
}
