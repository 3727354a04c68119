// Package resolver maps raw wikilink targets to note ids.
package resolver

import (
	"path"
	"strings"

	"github.com/starford/vaultlens/internal/models"
	"github.com/starford/vaultlens/internal/parser"
)

// NoteIndex is an immutable lookup table built once per analysis run.
// Candidate lists keep the order in which entries were given, which is
// the tie-break order for ambiguous matches.
type NoteIndex struct {
	entries  []models.NoteIndexEntry
	byPath   map[string][]int64
	byTitle  map[string][]int64
	byAlias  map[string][]int64
	byStem   map[string][]int64
	noteByID map[int64]models.NoteIndexEntry
}

// NewNoteIndex builds the lookup table from entries in build order
// (ascending note id when loaded from the index).
func NewNoteIndex(entries []models.NoteIndexEntry) *NoteIndex {
	idx := &NoteIndex{
		entries:  append([]models.NoteIndexEntry(nil), entries...),
		byPath:   make(map[string][]int64, len(entries)),
		byTitle:  make(map[string][]int64, len(entries)),
		byAlias:  make(map[string][]int64),
		byStem:   make(map[string][]int64, len(entries)),
		noteByID: make(map[int64]models.NoteIndexEntry, len(entries)),
	}
	for _, e := range idx.entries {
		idx.noteByID[e.NoteID] = e
		add(idx.byPath, e.Path, e.NoteID)
		if t := fold(e.Title); t != "" {
			add(idx.byTitle, t, e.NoteID)
		}
		seen := make(map[string]struct{}, len(e.Aliases))
		for _, a := range e.Aliases {
			a = fold(a)
			if _, dup := seen[a]; dup || a == "" {
				continue
			}
			seen[a] = struct{}{}
			add(idx.byAlias, a, e.NoteID)
		}
		add(idx.byStem, fold(stem(e.Path)), e.NoteID)
	}
	return idx
}

// Len returns the number of notes in the index.
func (idx *NoteIndex) Len() int { return len(idx.entries) }

// Entries returns the entries in build order.
func (idx *NoteIndex) Entries() []models.NoteIndexEntry {
	return append([]models.NoteIndexEntry(nil), idx.entries...)
}

// NoteIDs returns every note id in build order.
func (idx *NoteIndex) NoteIDs() []int64 {
	ids := make([]int64, len(idx.entries))
	for i, e := range idx.entries {
		ids[i] = e.NoteID
	}
	return ids
}

// Entry returns the entry for a note id.
func (idx *NoteIndex) Entry(id int64) (models.NoteIndexEntry, bool) {
	e, ok := idx.noteByID[id]
	return e, ok
}

func add(m map[string][]int64, key string, id int64) {
	m[key] = append(m[key], id)
}

func fold(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func stem(p string) string {
	base := path.Base(p)
	return strings.TrimSuffix(base, path.Ext(base))
}

// normalize turns a raw target into a slash-separated relative path.
func normalize(raw string) string {
	t := strings.ReplaceAll(strings.TrimSpace(raw), "\\", "/")
	t = strings.TrimPrefix(t, "./")
	return strings.TrimPrefix(t, "/")
}

func withoutExt(t string) string {
	return strings.TrimSuffix(t, parser.DefaultExtension)
}
