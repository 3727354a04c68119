// Package mcpserver provides an MCP (Model Context Protocol) server that
// exposes vault scans and graph analysis to LLMs over stdio.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/vaultlens/internal/apperr"
	"github.com/starford/vaultlens/internal/models"
	"github.com/starford/vaultlens/internal/vaultservice"
)

const rulesURI = "vaultlens://resolution-rules"

// Server wraps the MCP server with vaultlens tools.
type Server struct {
	mcp *server.MCPServer
	svc *vaultservice.Service
}

// New creates a new MCP server with all vaultlens tools registered.
func New(svc *vaultservice.Service, version string) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"vaultlens",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	vaultArg := mcp.WithString("vault", mcp.Required(),
		mcp.Description("Vault id or absolute root path"))

	s.mcp.AddTool(mcp.NewTool("list_vaults",
		mcp.WithDescription("List registered vaults with their ids and root paths."),
	), s.listVaults)

	s.mcp.AddTool(mcp.NewTool("scan_vault",
		mcp.WithDescription("Scan a vault directory, registering it if it is new. "+
			"Unchanged files are skipped unless force is set."),
		mcp.WithString("vault", mcp.Required(), mcp.Description("Vault id or root path")),
		mcp.WithBoolean("force", mcp.Description("Reparse unchanged files")),
	), s.scanVault)

	s.mcp.AddTool(mcp.NewTool("analyze_vault",
		mcp.WithDescription("Resolve links and recompute graph metrics and clusters for a scanned vault."),
		vaultArg,
	), s.analyzeVault)

	s.mcp.AddTool(mcp.NewTool("get_hubs",
		mcp.WithDescription("Highly connected notes, highest degree first."),
		vaultArg,
		mcp.WithNumber("limit", mcp.Description("Max results (0 for all)")),
	), s.getHubs)

	s.mcp.AddTool(mcp.NewTool("get_orphans",
		mcp.WithDescription("Notes with no resolved links in either direction."),
		vaultArg,
	), s.getOrphans)

	s.mcp.AddTool(mcp.NewTool("get_broken_links",
		mcp.WithDescription("References that match no note."),
		vaultArg,
	), s.getBrokenLinks)

	s.mcp.AddTool(mcp.NewTool("get_clusters",
		mcp.WithDescription("Topical communities of notes."),
		vaultArg,
	), s.getClusters)

	s.mcp.AddTool(mcp.NewTool("get_note_metrics",
		mcp.WithDescription("PageRank, degrees, centrality and cluster of one note."),
		vaultArg,
		mcp.WithString("path", mcp.Required(), mcp.Description("Relative note path (e.g. folder/note.md)")),
	), s.getNoteMetrics)

	s.mcp.AddTool(mcp.NewTool("get_resolution_rules",
		mcp.WithDescription("How wikilinks resolve and what each metric means. "+
			"Also available as the "+rulesURI+" resource."),
	), s.getResolutionRules)

	s.mcp.AddResource(
		mcp.NewResource(rulesURI, "Link Resolution and Metrics",
			mcp.WithResourceDescription("Wikilink resolution order and metric definitions."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readRulesResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

func errorResult(err error) (*mcp.CallToolResult, error) {
	var ae *apperr.AnalysisError
	switch {
	case errors.Is(err, apperr.ErrVaultNotFound):
		return mcp.NewToolResultError("vault not found; use list_vaults or scan_vault first"), nil
	case errors.Is(err, apperr.ErrVaultLocked):
		return mcp.NewToolResultError("vault is being scanned; retry later"), nil
	case errors.As(err, &ae):
		return mcp.NewToolResultError(fmt.Sprintf("analysis failed at %s: %v", ae.Stage, ae.Err)), nil
	}
	return mcp.NewToolResultError(err.Error()), nil
}

// vault resolves the required "vault" argument.
func (s *Server) vault(ctx context.Context, req mcp.CallToolRequest) (*models.Vault, error) {
	ref, err := req.RequireString("vault")
	if err != nil {
		return nil, err
	}
	return s.svc.ResolveVault(ctx, ref)
}

func (s *Server) listVaults(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	vaults, err := s.svc.ListVaults(ctx)
	if err != nil {
		return errorResult(err)
	}
	return jsonResult(vaults)
}

func (s *Server) scanVault(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ref, err := req.RequireString("vault")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	force := req.GetBool("force", false)

	root := ref
	if v, err := s.svc.ResolveVault(ctx, ref); err == nil {
		root = v.RootPath
	} else if !errors.Is(err, apperr.ErrVaultNotFound) {
		return errorResult(err)
	}
	res, err := s.svc.ScanPath(ctx, root, "", force)
	if err != nil {
		return errorResult(err)
	}
	return jsonResult(res)
}

func (s *Server) analyzeVault(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	v, err := s.vault(ctx, req)
	if err != nil {
		return errorResult(err)
	}
	res, err := s.svc.Analyze(ctx, v.ID)
	if err != nil {
		return errorResult(err)
	}
	return jsonResult(res)
}

func (s *Server) getHubs(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	v, err := s.vault(ctx, req)
	if err != nil {
		return errorResult(err)
	}
	hubs, err := s.svc.Hubs(ctx, v.ID, req.GetInt("limit", 0))
	if err != nil {
		return errorResult(err)
	}
	return jsonResult(hubs)
}

func (s *Server) getOrphans(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	v, err := s.vault(ctx, req)
	if err != nil {
		return errorResult(err)
	}
	orphans, err := s.svc.Orphans(ctx, v.ID)
	if err != nil {
		return errorResult(err)
	}
	return jsonResult(orphans)
}

func (s *Server) getBrokenLinks(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	v, err := s.vault(ctx, req)
	if err != nil {
		return errorResult(err)
	}
	links, err := s.svc.BrokenLinks(ctx, v.ID)
	if err != nil {
		return errorResult(err)
	}
	return jsonResult(links)
}

func (s *Server) getClusters(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	v, err := s.vault(ctx, req)
	if err != nil {
		return errorResult(err)
	}
	clusters, err := s.svc.Clusters(ctx, v.ID)
	if err != nil {
		return errorResult(err)
	}
	return jsonResult(clusters)
}

func (s *Server) getNoteMetrics(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	v, err := s.vault(ctx, req)
	if err != nil {
		return errorResult(err)
	}
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	nm, err := s.svc.NoteMetrics(ctx, v.ID, path)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return mcp.NewToolResultError(fmt.Sprintf("no metrics for %s: %v", path, err)), nil
		}
		return errorResult(err)
	}
	return jsonResult(nm)
}

func (s *Server) getResolutionRules(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(ResolutionRules), nil
}

func (s *Server) readRulesResource(context.Context, mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      rulesURI,
			MIMEType: "text/markdown",
			Text:     ResolutionRules,
		},
	}, nil
}
