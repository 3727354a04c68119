package index

import (
	"context"
	"fmt"
	"time"

	"github.com/starford/vaultlens/internal/apperr"
	"github.com/starford/vaultlens/internal/models"
)

// ReplaceGraphMetrics swaps the vault's metrics and cluster snapshot for a
// new one and records the snapshot's link resolutions, all in a single
// transaction. Readers observe either the previous snapshot or the new one,
// never a mix.
func (db *DB) ReplaceGraphMetrics(ctx context.Context, vaultID int64, snap models.Snapshot) error {
	entity := vaultEntity(vaultID)
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return apperr.Persist("begin tx", entity, err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := updateResolutions(ctx, tx, entity, snap.Links); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM graph_metrics WHERE vault_id = ?`, vaultID); err != nil {
		return apperr.Persist("clear metrics", entity, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM note_clusters WHERE vault_id = ?`, vaultID); err != nil {
		return apperr.Persist("clear clusters", entity, err)
	}

	mstmt, err := tx.PrepareContext(ctx, `
		INSERT INTO graph_metrics (vault_id, note_id, run_id, pagerank, in_degree, out_degree,
			betweenness, closeness, clustering, computed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return apperr.Persist("prepare metrics insert", entity, err)
	}
	defer mstmt.Close()
	for _, m := range snap.Metrics {
		at := m.ComputedAt
		if at.IsZero() {
			at = snap.ComputedAt
		}
		if _, err := mstmt.ExecContext(ctx, vaultID, m.NoteID, snap.RunID, m.PageRank, m.InDegree, m.OutDegree,
			m.Betweenness, m.Closeness, m.Clustering, at.UTC()); err != nil {
			return apperr.Persist("insert metrics", fmt.Sprintf("note %d", m.NoteID), err)
		}
	}

	cstmt, err := tx.PrepareContext(ctx, `INSERT INTO note_clusters (vault_id, note_id, cluster_id) VALUES (?, ?, ?)`)
	if err != nil {
		return apperr.Persist("prepare cluster insert", entity, err)
	}
	defer cstmt.Close()
	for _, c := range snap.Clusters {
		if _, err := cstmt.ExecContext(ctx, vaultID, c.NoteID, c.ClusterID); err != nil {
			return apperr.Persist("insert cluster", fmt.Sprintf("note %d", c.NoteID), err)
		}
	}

	if _, err := tx.ExecContext(ctx, `UPDATE vaults SET last_analyzed_at = ? WHERE id = ?`,
		snap.ComputedAt.UTC(), vaultID); err != nil {
		return apperr.Persist("touch analysis", entity, err)
	}
	return apperr.Persist("commit", entity, tx.Commit())
}

// GraphMetrics returns the current snapshot's per-note metrics ordered by
// note id.
func (db *DB) GraphMetrics(ctx context.Context, vaultID int64) ([]models.GraphMetrics, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT note_id, pagerank, in_degree, out_degree, betweenness, closeness, clustering, computed_at
		FROM graph_metrics WHERE vault_id = ? ORDER BY note_id`, vaultID)
	if err != nil {
		return nil, apperr.Persist("graph metrics", vaultEntity(vaultID), err)
	}
	defer rows.Close()

	var out []models.GraphMetrics
	for rows.Next() {
		var m models.GraphMetrics
		var at time.Time
		if err := rows.Scan(&m.NoteID, &m.PageRank, &m.InDegree, &m.OutDegree,
			&m.Betweenness, &m.Closeness, &m.Clustering, &at); err != nil {
			return nil, apperr.Persist("graph metrics", vaultEntity(vaultID), err)
		}
		m.ComputedAt = at
		out = append(out, m)
	}
	return out, apperr.Persist("graph metrics", vaultEntity(vaultID), rows.Err())
}

// Clusters returns the current snapshot's community assignments ordered by
// cluster id then note id.
func (db *DB) Clusters(ctx context.Context, vaultID int64) ([]models.ClusterAssignment, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT note_id, cluster_id FROM note_clusters WHERE vault_id = ?
		ORDER BY cluster_id, note_id`, vaultID)
	if err != nil {
		return nil, apperr.Persist("clusters", vaultEntity(vaultID), err)
	}
	defer rows.Close()

	var out []models.ClusterAssignment
	for rows.Next() {
		var c models.ClusterAssignment
		if err := rows.Scan(&c.NoteID, &c.ClusterID); err != nil {
			return nil, apperr.Persist("clusters", vaultEntity(vaultID), err)
		}
		out = append(out, c)
	}
	return out, apperr.Persist("clusters", vaultEntity(vaultID), rows.Err())
}

// RankedNotes joins the current snapshot with note paths and titles,
// ordered by PageRank descending then path. Notes deleted since the
// snapshot was taken are omitted.
func (db *DB) RankedNotes(ctx context.Context, vaultID int64) ([]models.RankedNote, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT m.note_id, n.path, n.title, m.in_degree, m.out_degree, m.pagerank
		FROM graph_metrics m JOIN notes n ON n.id = m.note_id
		WHERE m.vault_id = ?
		ORDER BY m.pagerank DESC, n.path`, vaultID)
	if err != nil {
		return nil, apperr.Persist("ranked notes", vaultEntity(vaultID), err)
	}
	defer rows.Close()

	var out []models.RankedNote
	for rows.Next() {
		var r models.RankedNote
		if err := rows.Scan(&r.NoteID, &r.Path, &r.Title, &r.InDegree, &r.OutDegree, &r.PageRank); err != nil {
			return nil, apperr.Persist("ranked notes", vaultEntity(vaultID), err)
		}
		out = append(out, r)
	}
	return out, apperr.Persist("ranked notes", vaultEntity(vaultID), rows.Err())
}
