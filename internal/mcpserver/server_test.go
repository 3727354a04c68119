package mcpserver

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/vaultlens/internal/analysis"
	"github.com/starford/vaultlens/internal/models"
	"github.com/starford/vaultlens/internal/scanner"
	"github.com/starford/vaultlens/internal/testutil"
	"github.com/starford/vaultlens/internal/vaultservice"
)

func testServer(t *testing.T) (*Server, string) {
	t.Helper()
	db := testutil.TestDB(t)
	logger := testutil.Logger()
	svc := vaultservice.NewService(db,
		scanner.New(db, scanner.WithLogger(logger)),
		analysis.New(db, analysis.WithLogger(logger)),
		vaultservice.WithLogger(logger),
		vaultservice.WithHubThreshold(2))

	dir := testutil.TestVault(t, map[string]string{
		"a.md":     "links to [[b]] and [[c]]",
		"b.md":     "back to [[a]] and [[nowhere]]",
		"c.md":     "# Cee",
		"alone.md": "by itself",
	})
	return New(svc, "test"), dir
}

func callTool(t *testing.T, srv *Server, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name
	req.Params.Arguments = args

	handlers := map[string]func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error){
		"list_vaults":          srv.listVaults,
		"scan_vault":           srv.scanVault,
		"analyze_vault":        srv.analyzeVault,
		"get_hubs":             srv.getHubs,
		"get_orphans":          srv.getOrphans,
		"get_broken_links":     srv.getBrokenLinks,
		"get_clusters":         srv.getClusters,
		"get_note_metrics":     srv.getNoteMetrics,
		"get_resolution_rules": srv.getResolutionRules,
	}
	h, ok := handlers[name]
	if !ok {
		t.Fatalf("unknown tool: %s", name)
	}
	result, err := h(ctx, req)
	if err != nil {
		t.Fatalf("tool %s error: %v", name, err)
	}
	return result
}

func resultText(r *mcp.CallToolResult) string {
	if len(r.Content) > 0 {
		if tc, ok := r.Content[0].(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func decode(t *testing.T, r *mcp.CallToolResult, out any) {
	t.Helper()
	if r.IsError {
		t.Fatalf("tool error: %s", resultText(r))
	}
	if err := json.Unmarshal([]byte(resultText(r)), out); err != nil {
		t.Fatalf("decode: %v", err)
	}
}

// scanAndAnalyze registers the vault and returns its id as a tool argument.
func scanAndAnalyze(t *testing.T, srv *Server, dir string) string {
	t.Helper()
	var scan models.ScanResult
	decode(t, callTool(t, srv, "scan_vault", map[string]any{"vault": dir}), &scan)
	if scan.NotesParsed != 4 {
		t.Fatalf("parsed = %d, want 4", scan.NotesParsed)
	}
	id := strconv.FormatInt(scan.VaultID, 10)
	if r := callTool(t, srv, "analyze_vault", map[string]any{"vault": id}); r.IsError {
		t.Fatalf("analyze: %s", resultText(r))
	}
	return id
}

func TestScanAndListVaults(t *testing.T) {
	srv, dir := testServer(t)
	scanAndAnalyze(t, srv, dir)

	var vaults []models.Vault
	decode(t, callTool(t, srv, "list_vaults", nil), &vaults)
	if len(vaults) != 1 || vaults[0].RootPath != dir {
		t.Errorf("vaults = %+v", vaults)
	}

	// Rescanning by path finds the registered vault and skips unchanged files.
	var scan models.ScanResult
	decode(t, callTool(t, srv, "scan_vault", map[string]any{"vault": dir}), &scan)
	if scan.NotesSkipped != 4 {
		t.Errorf("skipped = %d, want 4", scan.NotesSkipped)
	}
	decode(t, callTool(t, srv, "scan_vault", map[string]any{"vault": dir, "force": true}), &scan)
	if scan.NotesParsed != 4 {
		t.Errorf("forced parsed = %d, want 4", scan.NotesParsed)
	}
}

func TestQueries(t *testing.T) {
	srv, dir := testServer(t)
	id := scanAndAnalyze(t, srv, dir)

	var hubs []models.RankedNote
	decode(t, callTool(t, srv, "get_hubs", map[string]any{"vault": id, "limit": 1}), &hubs)
	if len(hubs) != 1 || hubs[0].Path != "a.md" {
		t.Errorf("hubs = %+v", hubs)
	}

	var orphans []models.RankedNote
	decode(t, callTool(t, srv, "get_orphans", map[string]any{"vault": id}), &orphans)
	if len(orphans) != 1 || orphans[0].Path != "alone.md" {
		t.Errorf("orphans = %+v", orphans)
	}

	var broken []models.BrokenLink
	decode(t, callTool(t, srv, "get_broken_links", map[string]any{"vault": id}), &broken)
	if len(broken) != 1 || broken[0].RawTarget != "nowhere" || broken[0].SourcePath != "b.md" {
		t.Errorf("broken = %+v", broken)
	}

	var clusters []vaultservice.Cluster
	decode(t, callTool(t, srv, "get_clusters", map[string]any{"vault": dir}), &clusters)
	if len(clusters) == 0 {
		t.Error("expected clusters")
	}

	var nm vaultservice.NoteMetrics
	decode(t, callTool(t, srv, "get_note_metrics", map[string]any{"vault": id, "path": "c.md"}), &nm)
	if nm.Title != "Cee" || nm.InDegree != 1 {
		t.Errorf("note metrics = %+v", nm)
	}
}

func TestUnknownVault(t *testing.T) {
	srv, _ := testServer(t)

	r := callTool(t, srv, "get_hubs", map[string]any{"vault": "42"})
	if !r.IsError || !strings.Contains(resultText(r), "vault not found") {
		t.Errorf("result = %q, want vault not found error", resultText(r))
	}
	r = callTool(t, srv, "scan_vault", map[string]any{"vault": "/does/not/exist"})
	if !r.IsError {
		t.Error("expected error for missing vault directory")
	}
}

func TestMissingArguments(t *testing.T) {
	srv, dir := testServer(t)
	id := scanAndAnalyze(t, srv, dir)

	if r := callTool(t, srv, "get_orphans", map[string]any{}); !r.IsError {
		t.Error("expected error without vault")
	}
	if r := callTool(t, srv, "get_note_metrics", map[string]any{"vault": id}); !r.IsError {
		t.Error("expected error without path")
	}
	if r := callTool(t, srv, "get_note_metrics", map[string]any{"vault": id, "path": "nope.md"}); !r.IsError {
		t.Error("expected error for unknown note")
	}
}

func TestResolutionRules(t *testing.T) {
	srv, _ := testServer(t)
	text := resultText(callTool(t, srv, "get_resolution_rules", nil))
	for _, want := range []string{"path", "title", "alias", "filename", "broken link"} {
		if !strings.Contains(text, want) {
			t.Errorf("rules missing %q", want)
		}
	}
	res, err := srv.readRulesResource(context.Background(), mcp.ReadResourceRequest{})
	if err != nil || len(res) != 1 {
		t.Fatalf("resource = %v, %v", res, err)
	}
}
