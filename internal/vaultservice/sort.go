package vaultservice

import (
	"sort"

	"github.com/starford/vaultlens/internal/models"
)

func sortByDegree(notes []models.RankedNote) {
	sort.SliceStable(notes, func(i, j int) bool {
		di := notes[i].InDegree + notes[i].OutDegree
		dj := notes[j].InDegree + notes[j].OutDegree
		if di != dj {
			return di > dj
		}
		return notes[i].Path < notes[j].Path
	})
}

func sortByPath(notes []models.RankedNote) {
	sort.Slice(notes, func(i, j int) bool { return notes[i].Path < notes[j].Path })
}
