package api

import (
	"github.com/starford/vaultlens/internal/analysis"
	"github.com/starford/vaultlens/internal/models"
	"github.com/starford/vaultlens/internal/vaultservice"
)

// VaultListResponse wraps vault listings.
type VaultListResponse struct {
	Vaults []models.Vault `json:"vaults" validate:"required"`
}

// RankedNoteListResponse wraps hub and orphan listings.
type RankedNoteListResponse struct {
	Notes []models.RankedNote `json:"notes" validate:"required"`
	Total int                 `json:"total" example:"3" validate:"required"`
}

// MetricsResponse wraps the per-note metrics snapshot.
type MetricsResponse struct {
	Metrics []models.GraphMetrics `json:"metrics" validate:"required"`
}

// BrokenLinksResponse wraps unresolved links.
type BrokenLinksResponse struct {
	BrokenLinks []models.BrokenLink `json:"broken_links" validate:"required"`
}

// ClustersResponse wraps communities.
type ClustersResponse struct {
	Clusters []vaultservice.Cluster `json:"clusters" validate:"required"`
}

// ScanResponse is returned by POST /vaults/{id}/scan.
type ScanResponse = models.ScanResult

// AnalyzeResponse is returned by POST /vaults/{id}/analyze.
type AnalyzeResponse = analysis.Result

// NoteMetricsResponse is the metrics of one note.
type NoteMetricsResponse = vaultservice.NoteMetrics
