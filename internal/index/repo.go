package index

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/starford/vaultlens/internal/apperr"
	"github.com/starford/vaultlens/internal/models"
)

// NoteHashes returns path -> content hash for every note of a vault.
func (db *DB) NoteHashes(ctx context.Context, vaultID int64) (map[string]string, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT path, content_hash FROM notes WHERE vault_id = ?`, vaultID)
	if err != nil {
		return nil, apperr.Persist("note hashes", vaultEntity(vaultID), err)
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var p, h string
		if err := rows.Scan(&p, &h); err != nil {
			return nil, apperr.Persist("note hashes", vaultEntity(vaultID), err)
		}
		out[p] = h
	}
	return out, apperr.Persist("note hashes", vaultEntity(vaultID), rows.Err())
}

// UpsertNote inserts or updates a note and replaces its links and tags
// within one transaction. It returns the note id, which is stable across
// updates of the same (vault, path).
func (db *DB) UpsertNote(ctx context.Context, n models.Note, links []models.Link, tags []string) (int64, error) {
	entity := "note " + n.Path
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, apperr.Persist("begin tx", entity, err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	aliasesJSON, _ := json.Marshal(nonNil(n.Aliases))
	metaJSON, err := json.Marshal(n.Metadata)
	if err != nil || n.Metadata == nil {
		metaJSON = []byte("{}")
	}

	var id int64
	err = tx.QueryRowContext(ctx, `
		INSERT INTO notes (vault_id, path, title, aliases, content_hash, word_count, metadata, created_at, modified_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(vault_id, path) DO UPDATE SET
			title        = excluded.title,
			aliases      = excluded.aliases,
			content_hash = excluded.content_hash,
			word_count   = excluded.word_count,
			metadata     = excluded.metadata,
			modified_at  = excluded.modified_at
		RETURNING id
	`, n.VaultID, n.Path, n.Title, string(aliasesJSON), n.ContentHash, n.WordCount, string(metaJSON),
		n.CreatedAt.UTC(), n.ModifiedAt.UTC()).Scan(&id)
	if err != nil {
		return 0, apperr.Persist("upsert", entity, err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM links WHERE source_note_id = ?`, id); err != nil {
		return 0, apperr.Persist("clear links", entity, err)
	}
	for _, l := range links {
		l.SourceNoteID = id
		if _, err := insertLink(ctx, tx, l); err != nil {
			return 0, apperr.Persist("insert link", entity, err)
		}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM note_tags WHERE note_id = ?`, id); err != nil {
		return 0, apperr.Persist("clear tags", entity, err)
	}
	for _, t := range tags {
		if err := attachTag(ctx, tx, id, t); err != nil {
			return 0, apperr.Persist("attach tag", entity, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, apperr.Persist("commit", entity, err)
	}
	return id, nil
}

// UpsertLink stores a single link row. A link with a non-zero ID is updated
// in place; otherwise a new row is inserted.
func (db *DB) UpsertLink(ctx context.Context, l models.Link) (int64, error) {
	entity := fmt.Sprintf("link from note %d", l.SourceNoteID)
	if l.ID != 0 {
		_, err := db.conn.ExecContext(ctx, `
			UPDATE links SET raw_target = ?, display_text = ?, section = ?, embed = ?,
				resolved_note_id = ?, broken = ?
			WHERE id = ?`,
			l.RawTarget, l.DisplayText, l.Section, l.Embed, l.ResolvedNoteID, l.Broken, l.ID)
		return l.ID, apperr.Persist("update", entity, err)
	}
	id, err := insertLink(ctx, db.conn, l)
	return id, apperr.Persist("insert", entity, err)
}

// UpsertTag returns the id of the named tag, creating it if needed.
func (db *DB) UpsertTag(ctx context.Context, name string) (int64, error) {
	id, err := upsertTag(ctx, db.conn, name)
	return id, apperr.Persist("upsert", "tag "+name, err)
}

// UpsertNoteTag attaches a tag to a note. Attaching twice is a no-op.
func (db *DB) UpsertNoteTag(ctx context.Context, noteID int64, tag string) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return apperr.Persist("begin tx", "tag "+tag, err)
	}
	defer tx.Rollback() //nolint:errcheck
	if err := attachTag(ctx, tx, noteID, tag); err != nil {
		return apperr.Persist("attach", "tag "+tag, err)
	}
	return apperr.Persist("commit", "tag "+tag, tx.Commit())
}

// DeleteNotesNotIn removes every note of the vault whose path is not in
// seenPaths. Links, tag attachments and inbound resolutions follow through
// foreign keys. It returns the number of notes removed.
func (db *DB) DeleteNotesNotIn(ctx context.Context, vaultID int64, seenPaths []string) (int, error) {
	seen := make(map[string]struct{}, len(seenPaths))
	for _, p := range seenPaths {
		seen[p] = struct{}{}
	}
	entity := vaultEntity(vaultID)

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, apperr.Persist("begin tx", entity, err)
	}
	defer tx.Rollback() //nolint:errcheck

	rows, err := tx.QueryContext(ctx, `SELECT id, path FROM notes WHERE vault_id = ?`, vaultID)
	if err != nil {
		return 0, apperr.Persist("list notes", entity, err)
	}
	var stale []int64
	for rows.Next() {
		var id int64
		var p string
		if err := rows.Scan(&id, &p); err != nil {
			rows.Close()
			return 0, apperr.Persist("list notes", entity, err)
		}
		if _, ok := seen[p]; !ok {
			stale = append(stale, id)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, apperr.Persist("list notes", entity, err)
	}

	for _, id := range stale {
		// Inbound links become unresolved until the next analysis.
		if _, err := tx.ExecContext(ctx, `UPDATE links SET resolved_note_id = NULL, broken = 1 WHERE resolved_note_id = ?`, id); err != nil {
			return 0, apperr.Persist("unlink", entity, err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM notes WHERE id = ?`, id); err != nil {
			return 0, apperr.Persist("delete note", entity, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, apperr.Persist("commit", entity, err)
	}
	return len(stale), nil
}

// FetchNoteIndex returns the resolver lookup table for a vault, ordered by
// note id.
func (db *DB) FetchNoteIndex(ctx context.Context, vaultID int64) ([]models.NoteIndexEntry, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, path, title, aliases FROM notes WHERE vault_id = ? ORDER BY id`, vaultID)
	if err != nil {
		return nil, apperr.Persist("fetch note index", vaultEntity(vaultID), err)
	}
	defer rows.Close()

	var out []models.NoteIndexEntry
	for rows.Next() {
		var e models.NoteIndexEntry
		var aliasesJSON string
		if err := rows.Scan(&e.NoteID, &e.Path, &e.Title, &aliasesJSON); err != nil {
			return nil, apperr.Persist("fetch note index", vaultEntity(vaultID), err)
		}
		_ = json.Unmarshal([]byte(aliasesJSON), &e.Aliases)
		out = append(out, e)
	}
	return out, apperr.Persist("fetch note index", vaultEntity(vaultID), rows.Err())
}

// FetchLinks returns every link whose source note belongs to the vault,
// ordered by link id.
func (db *DB) FetchLinks(ctx context.Context, vaultID int64) ([]models.Link, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT l.id, l.source_note_id, l.raw_target, l.display_text, l.section, l.embed,
			l.resolved_note_id, l.broken
		FROM links l JOIN notes n ON n.id = l.source_note_id
		WHERE n.vault_id = ?
		ORDER BY l.id`, vaultID)
	if err != nil {
		return nil, apperr.Persist("fetch links", vaultEntity(vaultID), err)
	}
	defer rows.Close()

	var out []models.Link
	for rows.Next() {
		var l models.Link
		var display, section sql.NullString
		var resolved sql.NullInt64
		if err := rows.Scan(&l.ID, &l.SourceNoteID, &l.RawTarget, &display, &section, &l.Embed,
			&resolved, &l.Broken); err != nil {
			return nil, apperr.Persist("fetch links", vaultEntity(vaultID), err)
		}
		if display.Valid {
			l.DisplayText = &display.String
		}
		if section.Valid {
			l.Section = &section.String
		}
		if resolved.Valid {
			l.ResolvedNoteID = &resolved.Int64
		}
		out = append(out, l)
	}
	return out, apperr.Persist("fetch links", vaultEntity(vaultID), rows.Err())
}

// UpdateLinkResolutions writes resolved_note_id and broken for each link
// in one transaction.
func (db *DB) UpdateLinkResolutions(ctx context.Context, vaultID int64, links []models.Link) error {
	entity := vaultEntity(vaultID)
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return apperr.Persist("begin tx", entity, err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := updateResolutions(ctx, tx, entity, links); err != nil {
		return err
	}
	return apperr.Persist("commit", entity, tx.Commit())
}

func updateResolutions(ctx context.Context, tx *sql.Tx, entity string, links []models.Link) error {
	if len(links) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, `UPDATE links SET resolved_note_id = ?, broken = ? WHERE id = ?`)
	if err != nil {
		return apperr.Persist("prepare resolution update", entity, err)
	}
	defer stmt.Close()
	for _, l := range links {
		if _, err := stmt.ExecContext(ctx, l.ResolvedNoteID, l.Broken, l.ID); err != nil {
			return apperr.Persist("update resolution", fmt.Sprintf("link %d", l.ID), err)
		}
	}
	return nil
}

// BrokenLinks lists unresolved links of a vault joined with their source
// path, ordered by source path then link id.
func (db *DB) BrokenLinks(ctx context.Context, vaultID int64) ([]models.BrokenLink, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT l.id, l.source_note_id, n.path, l.raw_target
		FROM links l JOIN notes n ON n.id = l.source_note_id
		WHERE n.vault_id = ? AND l.broken = 1
		ORDER BY n.path, l.id`, vaultID)
	if err != nil {
		return nil, apperr.Persist("broken links", vaultEntity(vaultID), err)
	}
	defer rows.Close()

	var out []models.BrokenLink
	for rows.Next() {
		var b models.BrokenLink
		if err := rows.Scan(&b.LinkID, &b.SourceNoteID, &b.SourcePath, &b.RawTarget); err != nil {
			return nil, apperr.Persist("broken links", vaultEntity(vaultID), err)
		}
		out = append(out, b)
	}
	return out, apperr.Persist("broken links", vaultEntity(vaultID), rows.Err())
}

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func insertLink(ctx context.Context, ex execer, l models.Link) (int64, error) {
	res, err := ex.ExecContext(ctx, `
		INSERT INTO links (source_note_id, raw_target, display_text, section, embed, resolved_note_id, broken)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		l.SourceNoteID, l.RawTarget, l.DisplayText, l.Section, l.Embed, l.ResolvedNoteID, l.Broken)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func upsertTag(ctx context.Context, ex execer, name string) (int64, error) {
	var id int64
	err := ex.QueryRowContext(ctx, `
		INSERT INTO tags (name) VALUES (?)
		ON CONFLICT(name) DO UPDATE SET name = excluded.name
		RETURNING id`, name).Scan(&id)
	return id, err
}

func attachTag(ctx context.Context, ex execer, noteID int64, name string) error {
	tagID, err := upsertTag(ctx, ex, name)
	if err != nil {
		return err
	}
	_, err = ex.ExecContext(ctx, `INSERT OR IGNORE INTO note_tags (note_id, tag_id) VALUES (?, ?)`, noteID, tagID)
	return err
}

func vaultEntity(id int64) string { return fmt.Sprintf("vault %d", id) }

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
