package mcpserver

// ResolutionRules describes how vaultlens resolves [[wikilinks]] and what
// its metrics mean, so LLM consumers can interpret tool output.
const ResolutionRules = `# vaultlens Link Resolution and Metrics

## Resolution

A reference ` + "`" + `[[target#section|display]]` + "`" + ` resolves by ` + "`" + `target` + "`" + ` only. Strategies
are tried in this order and the first one that matches wins:

1. **path** - exact relative path, with or without the ` + "`" + `.md` + "`" + ` extension
   (` + "`" + `[[projects/roadmap]]` + "`" + `).
2. **title** - case-insensitive note title (frontmatter ` + "`" + `title` + "`" + `, else the first
   H1 heading, else the file name).
3. **alias** - case-insensitive frontmatter ` + "`" + `aliases` + "`" + ` entry.
4. **filename** - case-insensitive file name without directory or extension.

When several notes match within one strategy the note indexed first wins
and the analysis reports an ambiguity warning. A reference that matches
nothing is a **broken link**. Links inside code spans and code blocks are
ignored. Embeds (` + "`" + `![[image.png]]` + "`" + `) are references too.

## Metrics

- **in_degree / out_degree** - distinct linked notes, self-links included.
- **pagerank** - damping 0.85; scores sum to 1 across the vault.
- **betweenness** - share of shortest paths passing through the note,
  normalised to [0, 1].
- **closeness** - reachable notes divided by the sum of their distances.
- **clustering** - how interlinked a note's neighbours are, in [0, 1].
- **hub** - in_degree + out_degree reaches the configured threshold.
- **orphan** - no resolved links in either direction.
- **cluster** - community found by Louvain modularity optimisation; ids are
  numbered from 0 by each community's smallest note id.

Metrics reflect the last ` + "`" + `analyze_vault` + "`" + ` run. Scanning alone does not
update them.
`
