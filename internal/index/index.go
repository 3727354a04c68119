package index

import (
	"context"
	"time"

	"github.com/starford/vaultlens/internal/models"
)

// Gateway is the persistence contract consumed by the scan and analysis
// pipeline. Consumers should depend on this interface (or a narrower one)
// rather than the concrete *DB type.
type Gateway interface {
	UpsertVault(ctx context.Context, rootPath, name string) (int64, error)
	GetVault(ctx context.Context, id int64) (*models.Vault, error)
	GetVaultByPath(ctx context.Context, rootPath string) (*models.Vault, error)
	ListVaults(ctx context.Context) ([]models.Vault, error)
	TouchVault(ctx context.Context, vaultID int64, at time.Time) error

	NoteHashes(ctx context.Context, vaultID int64) (map[string]string, error)
	UpsertNote(ctx context.Context, n models.Note, links []models.Link, tags []string) (int64, error)
	DeleteNotesNotIn(ctx context.Context, vaultID int64, seenPaths []string) (int, error)
	UpsertLink(ctx context.Context, l models.Link) (int64, error)
	UpsertTag(ctx context.Context, name string) (int64, error)
	UpsertNoteTag(ctx context.Context, noteID int64, tag string) error

	FetchNoteIndex(ctx context.Context, vaultID int64) ([]models.NoteIndexEntry, error)
	FetchLinks(ctx context.Context, vaultID int64) ([]models.Link, error)
	UpdateLinkResolutions(ctx context.Context, vaultID int64, links []models.Link) error
	ReplaceGraphMetrics(ctx context.Context, vaultID int64, snap models.Snapshot) error

	GraphMetrics(ctx context.Context, vaultID int64) ([]models.GraphMetrics, error)
	Clusters(ctx context.Context, vaultID int64) ([]models.ClusterAssignment, error)
	RankedNotes(ctx context.Context, vaultID int64) ([]models.RankedNote, error)
	BrokenLinks(ctx context.Context, vaultID int64) ([]models.BrokenLink, error)

	RecordScanResult(ctx context.Context, res *models.ScanResult) error
	LatestScan(ctx context.Context, vaultID int64) (*models.ScanResult, error)
}

// Verify *DB satisfies Gateway at compile time.
var _ Gateway = (*DB)(nil)
