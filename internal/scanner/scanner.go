// Package scanner walks a vault, parses new or changed notes and keeps the
// index in step with the files on disk.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/starford/vaultlens/internal/models"
	"github.com/starford/vaultlens/internal/parser"
	"github.com/starford/vaultlens/internal/storage"
)

// Gateway is the subset of the index the scanner writes to.
type Gateway interface {
	UpsertVault(ctx context.Context, rootPath, name string) (int64, error)
	NoteHashes(ctx context.Context, vaultID int64) (map[string]string, error)
	UpsertNote(ctx context.Context, n models.Note, links []models.Link, tags []string) (int64, error)
	DeleteNotesNotIn(ctx context.Context, vaultID int64, seenPaths []string) (int, error)
	RecordScanResult(ctx context.Context, res *models.ScanResult) error
	TouchVault(ctx context.Context, vaultID int64, at time.Time) error
}

// Options control a single scan.
type Options struct {
	// Force reparses every file regardless of its stored content hash.
	Force bool
	// Name is the display name registered for the vault. Empty keeps the
	// existing name, or the directory name for a new vault.
	Name string
}

// Target is one vault to scan in ScanAll.
type Target struct {
	Root string
	Name string
}

// Scanner synchronizes vault directories into the index.
type Scanner struct {
	gw          Gateway
	parser      *parser.Parser
	logger      *slog.Logger
	fsOpts      []storage.FSOption
	open        Opener
	concurrency int
	now         func() time.Time
}

// Opener opens the vault rooted at an absolute path.
type Opener func(root string) (storage.Provider, error)

// Option configures a Scanner.
type Option func(*Scanner)

// WithParser sets the note parser.
func WithParser(p *parser.Parser) Option {
	return func(s *Scanner) { s.parser = p }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scanner) { s.logger = l }
}

// WithStorageOptions sets the options used to open each vault directory.
func WithStorageOptions(opts ...storage.FSOption) Option {
	return func(s *Scanner) { s.fsOpts = opts }
}

// WithOpener replaces how vault directories are opened. By default each
// vault is a storage.FS built with the storage options.
func WithOpener(open Opener) Option {
	return func(s *Scanner) { s.open = open }
}

// WithConcurrency caps the number of vaults ScanAll processes at once.
func WithConcurrency(n int) Option {
	return func(s *Scanner) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// New creates a Scanner writing to gw.
func New(gw Gateway, opts ...Option) *Scanner {
	s := &Scanner{
		gw:          gw,
		concurrency: 4,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.parser == nil {
		s.parser = parser.New()
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.open == nil {
		s.open = func(root string) (storage.Provider, error) {
			return storage.NewFS(root, s.fsOpts...)
		}
	}
	return s
}

// Scan brings the index up to date with the vault at root:
//   - unchanged files (same content hash) are counted but not reparsed
//   - new and changed files are parsed and upserted, one transaction each
//   - notes whose files disappeared are removed
//
// Per-file read and parse failures, and directories that cannot be listed,
// are collected in the result; notes under an unlisted directory are kept.
// Only vault level failures (missing root, lock, persistence) return an
// error.
func (s *Scanner) Scan(ctx context.Context, root string, opts Options) (*models.ScanResult, error) {
	started := s.now()
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("scanner: resolve root: %w", err)
	}

	store, err := s.open(abs)
	if err != nil {
		return nil, err
	}

	lock, err := acquire(ctx, store.MetadataDir())
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := lock.release(); err != nil {
			s.logger.Warn("scanner: unlock failed", slog.String("root", abs), slog.String("error", err.Error()))
		}
	}()

	vaultID, err := s.gw.UpsertVault(ctx, abs, opts.Name)
	if err != nil {
		return nil, err
	}

	res := &models.ScanResult{
		RunID:     uuid.NewString(),
		VaultID:   vaultID,
		StartedAt: started,
		Errors:    []models.FileError{},
	}
	log := s.logger.With(slog.String("run_id", res.RunID), slog.Int64("vault_id", vaultID))

	hashes, err := s.gw.NoteHashes(ctx, vaultID)
	if err != nil {
		return nil, err
	}
	listing, err := store.List()
	if err != nil {
		return nil, fmt.Errorf("scanner: list %s: %w", abs, err)
	}

	seen := make([]string, 0, len(listing.Files))
	for _, u := range listing.Unreadable {
		log.Warn("scanner: list failed", slog.String("path", u.Path), slog.String("error", u.Message))
		res.Errors = append(res.Errors, u)
		seen = append(seen, indexedUnder(hashes, u.Path)...)
	}
	for _, m := range listing.Files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		// A file that exists but cannot be read keeps its previous index entry.
		seen = append(seen, m.Path)

		data, err := store.Read(m.Path)
		if err != nil {
			log.Warn("scanner: read failed", slog.String("path", m.Path), slog.String("error", err.Error()))
			res.Errors = append(res.Errors, models.FileError{Path: m.Path, Message: err.Error()})
			continue
		}
		res.NotesScanned++

		if !opts.Force && hashes[m.Path] == s.parser.Hash(data) {
			res.NotesSkipped++
			continue
		}

		parsed, err := s.parser.Parse(m.Path, data)
		if err != nil {
			log.Warn("scanner: parse failed", slog.String("path", m.Path), slog.String("error", err.Error()))
			res.Errors = append(res.Errors, models.FileError{Path: m.Path, Message: err.Error()})
			continue
		}
		for _, w := range parsed.Warnings {
			res.Warnings = append(res.Warnings, models.FileError{Path: m.Path, Message: w})
		}

		if _, err := s.gw.UpsertNote(ctx, noteFromResult(vaultID, parsed, m, started), linksFromResult(parsed), parsed.Tags); err != nil {
			return nil, err
		}
		res.NotesParsed++
		res.LinksFound += len(parsed.References)
		res.TagsFound += len(parsed.Tags)
		log.Debug("scanner: indexed", slog.String("path", m.Path))
	}

	removed, err := s.gw.DeleteNotesNotIn(ctx, vaultID, seen)
	if err != nil {
		return nil, err
	}
	res.NotesRemoved = removed

	finished := s.now()
	res.Duration = finished.Sub(started)
	if err := s.gw.TouchVault(ctx, vaultID, finished); err != nil {
		return nil, err
	}
	if err := s.gw.RecordScanResult(ctx, res); err != nil {
		return nil, err
	}

	log.Info("scanner: completed",
		slog.String("root", abs),
		slog.Int("scanned", res.NotesScanned),
		slog.Int("parsed", res.NotesParsed),
		slog.Int("skipped", res.NotesSkipped),
		slog.Int("removed", res.NotesRemoved),
		slog.Int("errors", len(res.Errors)),
		slog.Duration("duration", res.Duration))
	return res, nil
}

// ScanAll scans independent vaults concurrently. Results are returned in
// target order; a vault that failed has a nil result and its error joined
// into the returned error.
func (s *Scanner) ScanAll(ctx context.Context, targets []Target, opts Options) ([]*models.ScanResult, error) {
	results := make([]*models.ScanResult, len(targets))
	errs := make([]error, len(targets))

	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for i, t := range targets {
		g.Go(func() error {
			o := opts
			o.Name = t.Name
			res, err := s.Scan(ctx, t.Root, o)
			if err != nil {
				errs[i] = fmt.Errorf("scan %s: %w", t.Root, err)
				return nil
			}
			results[i] = res
			return nil
		})
	}
	_ = g.Wait()
	return results, errors.Join(errs...)
}

func noteFromResult(vaultID int64, r *parser.Result, m models.FileMetadata, seenAt time.Time) models.Note {
	return models.Note{
		VaultID:     vaultID,
		Path:        r.Path,
		Title:       r.Title,
		Aliases:     r.Aliases,
		ContentHash: r.ContentHash,
		WordCount:   r.WordCount,
		Metadata:    r.Metadata,
		CreatedAt:   seenAt,
		ModifiedAt:  m.ModifiedAt,
	}
}

func linksFromResult(r *parser.Result) []models.Link {
	links := make([]models.Link, 0, len(r.References))
	for _, ref := range r.References {
		links = append(links, models.Link{
			RawTarget:   ref.RawTarget,
			DisplayText: ref.Display,
			Section:     ref.Section,
			Embed:       ref.Embed,
		})
	}
	return links
}

// indexedUnder returns the indexed note paths at rel or below it.
func indexedUnder(hashes map[string]string, rel string) []string {
	var out []string
	prefix := rel + "/"
	for p := range hashes {
		if p == rel || strings.HasPrefix(p, prefix) {
			out = append(out, p)
		}
	}
	return out
}
