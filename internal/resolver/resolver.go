package resolver

import (
	"path"

	"github.com/starford/vaultlens/internal/apperr"
	"github.com/starford/vaultlens/internal/models"
	"github.com/starford/vaultlens/internal/parser"
)

// Strategy names the rule that matched a reference.
type Strategy string

const (
	StrategyNone     Strategy = ""
	StrategyPath     Strategy = "path"
	StrategyTitle    Strategy = "title"
	StrategyAlias    Strategy = "alias"
	StrategyFilename Strategy = "filename"
)

// Resolution is the outcome of resolving one raw target.
type Resolution struct {
	NoteID   int64
	Resolved bool
	Strategy Strategy
	// Ambiguous is set when the winning strategy matched several notes.
	// NoteID is then the first candidate in index build order.
	Ambiguous  bool
	Candidates []int64
}

// Resolver resolves raw targets against one NoteIndex. It holds no other
// state, so the same inputs always give the same output.
type Resolver struct {
	idx *NoteIndex
}

// New creates a Resolver over idx.
func New(idx *NoteIndex) *Resolver {
	if idx == nil {
		idx = NewNoteIndex(nil)
	}
	return &Resolver{idx: idx}
}

// Resolve applies the strategies in fixed order (exact path, title, alias,
// filename) and returns the first match.
func (r *Resolver) Resolve(raw string) Resolution {
	target := normalize(raw)
	if target == "" {
		return Resolution{}
	}

	pathKeys := []string{target}
	if bare := withoutExt(target); bare != target {
		pathKeys = append(pathKeys, bare)
	} else {
		pathKeys = append(pathKeys, target+parser.DefaultExtension)
	}
	var byPath []int64
	for _, k := range pathKeys {
		byPath = append(byPath, r.idx.byPath[k]...)
	}
	if res, ok := pick(StrategyPath, byPath); ok {
		return res
	}

	folded := fold(target)
	if res, ok := pick(StrategyTitle, r.idx.byTitle[folded]); ok {
		return res
	}
	if res, ok := pick(StrategyAlias, r.idx.byAlias[folded]); ok {
		return res
	}
	// The filename strategy ignores any directory in the target.
	return pickOrNone(StrategyFilename, r.idx.byStem[withoutExt(path.Base(folded))])
}

// ResolveAll resolves every link and returns updated copies in input
// order, plus one ResolutionAmbiguity per ambiguous match.
func (r *Resolver) ResolveAll(links []models.Link) ([]models.Link, []*apperr.ResolutionAmbiguity) {
	out := make([]models.Link, len(links))
	var warnings []*apperr.ResolutionAmbiguity
	for i, l := range links {
		res := r.Resolve(l.RawTarget)
		if res.Resolved {
			id := res.NoteID
			l.ResolvedNoteID = &id
			l.Broken = false
		} else {
			l.ResolvedNoteID = nil
			l.Broken = true
		}
		if res.Ambiguous {
			warnings = append(warnings, &apperr.ResolutionAmbiguity{
				SourceNoteID: l.SourceNoteID,
				RawTarget:    l.RawTarget,
				Strategy:     string(res.Strategy),
				ChosenID:     res.NoteID,
				Candidates:   res.Candidates,
			})
		}
		out[i] = l
	}
	return out, warnings
}

func pick(s Strategy, candidates []int64) (Resolution, bool) {
	candidates = distinct(candidates)
	if len(candidates) == 0 {
		return Resolution{}, false
	}
	res := Resolution{NoteID: candidates[0], Resolved: true, Strategy: s}
	if len(candidates) > 1 {
		res.Ambiguous = true
		res.Candidates = candidates
	}
	return res, true
}

func pickOrNone(s Strategy, candidates []int64) Resolution {
	res, _ := pick(s, candidates)
	return res
}

func distinct(ids []int64) []int64 {
	if len(ids) < 2 {
		return ids
	}
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
