package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/fatih/color"

	"github.com/starford/vaultlens/internal/analysis"
	"github.com/starford/vaultlens/internal/models"
	"github.com/starford/vaultlens/internal/vaultservice"
)

// printer writes command results either as indented JSON or as colored
// sections for a terminal.
type printer struct {
	w      io.Writer
	asJSON bool

	head   *color.Color
	good   *color.Color
	bad    *color.Color
	warn   *color.Color
	accent *color.Color
}

func newPrinter(w io.Writer, asJSON bool) *printer {
	return &printer{
		w:      w,
		asJSON: asJSON,
		head:   color.New(color.FgCyan, color.Bold),
		good:   color.New(color.FgGreen),
		bad:    color.New(color.FgRed),
		warn:   color.New(color.FgYellow),
		accent: color.New(color.FgMagenta),
	}
}

func (p *printer) json(v any) error {
	enc := json.NewEncoder(p.w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (p *printer) scan(res *models.ScanResult) error {
	if p.asJSON {
		return p.json(res)
	}
	p.head.Fprintf(p.w, "\n=== Scan of vault %d ===\n\n", res.VaultID)
	fmt.Fprintf(p.w, "Notes scanned:  %d\n", res.NotesScanned)
	fmt.Fprintf(p.w, "Parsed:         ")
	p.good.Fprintf(p.w, "%d\n", res.NotesParsed)
	fmt.Fprintf(p.w, "Unchanged:      %d\n", res.NotesSkipped)
	fmt.Fprintf(p.w, "Removed:        %d\n", res.NotesRemoved)
	fmt.Fprintf(p.w, "Links / tags:   %d / %d\n", res.LinksFound, res.TagsFound)
	fmt.Fprintf(p.w, "Duration:       %s\n", res.Duration)
	p.fileErrors("Warnings", p.warn, res.Warnings)
	p.fileErrors("Errors", p.bad, res.Errors)
	return nil
}

func (p *printer) fileErrors(title string, c *color.Color, errs []models.FileError) {
	if len(errs) == 0 {
		return
	}
	c.Fprintf(p.w, "\n%s (%d):\n", title, len(errs))
	for _, fe := range errs {
		fmt.Fprintf(p.w, "  %s: %s\n", fe.Path, fe.Message)
	}
}

func (p *printer) analysis(res *analysis.Result) error {
	if p.asJSON {
		return p.json(res)
	}
	p.head.Fprintf(p.w, "\n=== Analysis of vault %d ===\n\n", res.VaultID)
	fmt.Fprintf(p.w, "Notes:          %d\n", res.Notes)
	fmt.Fprintf(p.w, "Links:          %d (%d resolved)\n", res.Links, res.ResolvedLinks)
	fmt.Fprintf(p.w, "Edges:          %d\n", res.Edges)
	fmt.Fprintf(p.w, "Clusters:       %d (modularity %.3f)\n", res.Clusters, res.Modularity)
	fmt.Fprintf(p.w, "PageRank:       %d iterations, ", res.PageRank.Iterations)
	if res.PageRank.Converged {
		p.good.Fprintln(p.w, "converged")
	} else {
		p.warn.Fprintln(p.w, "not converged")
	}
	fmt.Fprintf(p.w, "Hubs:           %d\n", len(res.Hubs))
	fmt.Fprintf(p.w, "Orphans:        %d\n", len(res.Orphans))
	fmt.Fprintf(p.w, "Broken links:   ")
	if len(res.BrokenLinks) > 0 {
		p.bad.Fprintf(p.w, "%d\n", len(res.BrokenLinks))
	} else {
		p.good.Fprintln(p.w, "0")
	}
	for _, w := range res.Warnings {
		p.warn.Fprintf(p.w, "warning: %s\n", w)
	}
	return nil
}

func (p *printer) report(rep *vaultservice.Report, limit int) error {
	if p.asJSON {
		return p.json(rep)
	}
	p.head.Fprintf(p.w, "\n=== %s (%s) ===\n\n", rep.Vault.Name, rep.Vault.RootPath)
	fmt.Fprintf(p.w, "Notes: %d\n", rep.Notes)
	if rep.LatestScan != nil {
		fmt.Fprintf(p.w, "Last scan: %s (%d parsed, %d errors)\n",
			rep.LatestScan.StartedAt.Format("2006-01-02 15:04:05"), rep.LatestScan.NotesParsed, len(rep.LatestScan.Errors))
	}

	p.head.Fprintf(p.w, "\nHubs (%d)\n", len(rep.Hubs))
	for _, n := range truncate(rep.Hubs, limit) {
		fmt.Fprintf(p.w, "  %-40s ", n.Path)
		p.good.Fprintf(p.w, "in %-4d out %-4d", n.InDegree, n.OutDegree)
		fmt.Fprintf(p.w, " pagerank %.4f\n", n.PageRank)
	}

	p.head.Fprintf(p.w, "\nOrphans (%d)\n", len(rep.Orphans))
	for _, n := range truncate(rep.Orphans, limit) {
		p.warn.Fprintf(p.w, "  %s\n", n.Path)
	}

	p.head.Fprintf(p.w, "\nBroken links (%d)\n", len(rep.BrokenLinks))
	for _, bl := range truncate(rep.BrokenLinks, limit) {
		fmt.Fprintf(p.w, "  %s -> ", bl.SourcePath)
		p.bad.Fprintf(p.w, "[[%s]]\n", bl.RawTarget)
	}

	p.head.Fprintf(p.w, "\nClusters (%d)\n", len(rep.Clusters))
	for _, c := range truncate(rep.Clusters, limit) {
		p.accent.Fprintf(p.w, "  #%d", c.ID)
		fmt.Fprintf(p.w, " (%d notes):", len(c.Notes))
		for _, n := range truncate(c.Notes, 5) {
			fmt.Fprintf(p.w, " %s", n.Path)
		}
		if len(c.Notes) > 5 {
			fmt.Fprint(p.w, " ...")
		}
		fmt.Fprintln(p.w)
	}
	return nil
}

func truncate[T any](s []T, limit int) []T {
	if limit > 0 && len(s) > limit {
		return s[:limit]
	}
	return s
}
