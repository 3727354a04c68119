// Package models defines the domain types for vaultlens.
package models

import "time"

// Metadata is the decoded frontmatter block. Values are scalars
// (string, bool, int, float64, time.Time) or []any lists, exactly as the
// YAML decoder produced them.
type Metadata map[string]any

// Strings returns the value stored under key as a list of strings.
// A scalar string yields a one-element list; non-string items are skipped.
func (m Metadata) Strings(key string) []string {
	raw, ok := m[key]
	if !ok || raw == nil {
		return nil
	}
	switch v := raw.(type) {
	case string:
		if v == "" {
			return nil
		}
		return []string{v}
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	case []string:
		return v
	}
	return nil
}

// String returns the value under key if it is a non-empty string.
func (m Metadata) String(key string) string {
	if s, ok := m[key].(string); ok {
		return s
	}
	return ""
}

// Vault is a root directory of interlinked notes.
type Vault struct {
	ID            int64      `json:"id"`
	RootPath      string     `json:"root_path"`
	Name          string     `json:"name"`
	LastScannedAt *time.Time `json:"last_scanned_at,omitempty"`
}

// Note represents a parsed Markdown file in a vault.
type Note struct {
	ID          int64     `json:"id"`
	VaultID     int64     `json:"vault_id"`
	Path        string    `json:"path"`
	Title       string    `json:"title"`
	Aliases     []string  `json:"aliases,omitempty"`
	ContentHash string    `json:"content_hash"`
	WordCount   int       `json:"word_count"`
	Metadata    Metadata  `json:"metadata,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	ModifiedAt  time.Time `json:"modified_at"`
}

// NoteIndexEntry is one row of the resolver's lookup table.
type NoteIndexEntry struct {
	NoteID  int64    `json:"note_id"`
	Path    string   `json:"path"`
	Title   string   `json:"title"`
	Aliases []string `json:"aliases,omitempty"`
}

// Link is one wikilink occurrence in a source note.
type Link struct {
	ID             int64   `json:"id"`
	SourceNoteID   int64   `json:"source_note_id"`
	RawTarget      string  `json:"raw_target"`
	DisplayText    *string `json:"display_text,omitempty"`
	Section        *string `json:"section,omitempty"`
	Embed          bool    `json:"embed,omitempty"`
	ResolvedNoteID *int64  `json:"resolved_note_id"`
	Broken         bool    `json:"broken"`
}

// BrokenLink is a link that matched no note, joined with its source path.
type BrokenLink struct {
	LinkID       int64  `json:"link_id"`
	SourceNoteID int64  `json:"source_note_id"`
	SourcePath   string `json:"source_path"`
	RawTarget    string `json:"raw_target"`
}
