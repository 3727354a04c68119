package index

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/starford/vaultlens/internal/apperr"
	"github.com/starford/vaultlens/internal/models"
)

// RecordScanResult persists the summary of one scan run.
func (db *DB) RecordScanResult(ctx context.Context, res *models.ScanResult) error {
	errsJSON, _ := json.Marshal(nonNilErrors(res.Errors))
	warnJSON, _ := json.Marshal(nonNilErrors(res.Warnings))
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO scans (run_id, vault_id, started_at, duration_ms, notes_scanned, notes_parsed,
			notes_skipped, notes_removed, links_found, tags_found, errors, warnings)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		res.RunID, res.VaultID, res.StartedAt.UTC(), res.Duration.Milliseconds(),
		res.NotesScanned, res.NotesParsed, res.NotesSkipped, res.NotesRemoved,
		res.LinksFound, res.TagsFound, string(errsJSON), string(warnJSON))
	return apperr.Persist("record", "scan "+res.RunID, err)
}

// LatestScan returns the most recent scan summary of a vault, or
// apperr.ErrNotFound if the vault has never been scanned.
func (db *DB) LatestScan(ctx context.Context, vaultID int64) (*models.ScanResult, error) {
	var res models.ScanResult
	var durMS int64
	var errsJSON, warnJSON string
	err := db.conn.QueryRowContext(ctx, `
		SELECT run_id, vault_id, started_at, duration_ms, notes_scanned, notes_parsed,
			notes_skipped, notes_removed, links_found, tags_found, errors, warnings
		FROM scans WHERE vault_id = ?
		ORDER BY started_at DESC, rowid DESC LIMIT 1`, vaultID).Scan(
		&res.RunID, &res.VaultID, &res.StartedAt, &durMS, &res.NotesScanned, &res.NotesParsed,
		&res.NotesSkipped, &res.NotesRemoved, &res.LinksFound, &res.TagsFound, &errsJSON, &warnJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("latest scan of %s: %w", vaultEntity(vaultID), apperr.ErrNotFound)
	}
	if err != nil {
		return nil, apperr.Persist("latest scan", vaultEntity(vaultID), err)
	}
	res.Duration = time.Duration(durMS) * time.Millisecond
	_ = json.Unmarshal([]byte(errsJSON), &res.Errors)
	_ = json.Unmarshal([]byte(warnJSON), &res.Warnings)
	return &res, nil
}

func nonNilErrors(in []models.FileError) []models.FileError {
	if in == nil {
		return []models.FileError{}
	}
	return in
}
