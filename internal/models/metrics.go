package models

import "time"

// GraphMetrics holds the per-note values of one analysis snapshot.
type GraphMetrics struct {
	NoteID      int64     `json:"note_id"`
	PageRank    float64   `json:"pagerank"`
	InDegree    int       `json:"in_degree"`
	OutDegree   int       `json:"out_degree"`
	Betweenness float64   `json:"betweenness"`
	Closeness   float64   `json:"closeness"`
	Clustering  float64   `json:"clustering"`
	ComputedAt  time.Time `json:"computed_at"`
}

// ClusterAssignment maps a note to its community.
type ClusterAssignment struct {
	NoteID    int64 `json:"note_id"`
	ClusterID int   `json:"cluster_id"`
}

// Snapshot is everything one analysis run persists for a vault. It replaces
// the previous snapshot as a whole.
type Snapshot struct {
	RunID      string              `json:"run_id"`
	ComputedAt time.Time           `json:"computed_at"`
	Metrics    []GraphMetrics      `json:"metrics"`
	Clusters   []ClusterAssignment `json:"clusters"`

	// Links carries the run's link resolutions, written with the metrics.
	Links []Link `json:"links,omitempty"`
}

// RankedNote is a note with its metrics, used for hub and orphan listings.
type RankedNote struct {
	NoteID    int64   `json:"note_id"`
	Path      string  `json:"path"`
	Title     string  `json:"title"`
	InDegree  int     `json:"in_degree"`
	OutDegree int     `json:"out_degree"`
	PageRank  float64 `json:"pagerank"`
}
