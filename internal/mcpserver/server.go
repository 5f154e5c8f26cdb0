// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes mdref tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/mdref/internal/linkservice"
	"github.com/starford/mdref/internal/models"
	"github.com/starford/mdref/internal/mover"
)

const linkSyntaxURI = "mdref://link-syntax"

// Server wraps the MCP server with mdref tools.
type Server struct {
	mcp *server.MCPServer
	svc *linkservice.Service
}

// New creates a new MCP server with all mdref tools registered.
func New(svc *linkservice.Service, version string) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"mdref",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("find_references",
		mcp.WithDescription("Find every Markdown link in the tree that resolves to the given document."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Path of the target document relative to the tree root")),
	), s.findReferences)

	s.mcp.AddTool(mcp.NewTool("find_links",
		mcp.WithDescription("List every Markdown link inside a document, resolved or not."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Path of the document relative to the tree root")),
	), s.findLinks)

	s.mcp.AddTool(mcp.NewTool("check_links",
		mcp.WithDescription("List relative links whose target does not exist."),
	), s.checkLinks)

	s.mcp.AddTool(mcp.NewTool("get_backlinks",
		mcp.WithDescription("Answer backlinks from the exported link graph without rescanning the tree."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Path of the target document relative to the tree root")),
	), s.getBacklinks)

	s.mcp.AddTool(mcp.NewTool("move_file",
		mcp.WithDescription("Move a document and rewrite every link that would otherwise break. "+
			"Read the link syntax first via the "+linkSyntaxURI+" resource."),
		mcp.WithString("old", mcp.Required(), mcp.Description("Current path relative to the tree root")),
		mcp.WithString("new", mcp.Required(), mcp.Description("Destination path relative to the tree root; must not exist")),
	), s.moveFile)

	s.mcp.AddTool(mcp.NewTool("rename_file",
		mcp.WithDescription("Rename a document within its directory and rewrite affected links."),
		mcp.WithString("old", mcp.Required(), mcp.Description("Current path relative to the tree root")),
		mcp.WithString("name", mcp.Required(), mcp.Description("New bare file name, e.g. notes.md")),
	), s.renameFile)

	s.mcp.AddResource(
		mcp.NewResource(linkSyntaxURI, "Link Syntax",
			mcp.WithResourceDescription("Which Markdown links are recognized and how they are resolved."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readLinkSyntaxResource,
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

func (s *Server) findReferences(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	refs, err := s.svc.References(ctx, path)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(refs) == 0 {
		return mcp.NewToolResultText(fmt.Sprintf("No references found for %s", path)), nil
	}
	return mcp.NewToolResultText(formatRefs(refs)), nil
}

func (s *Server) findLinks(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	links, err := s.svc.Links(ctx, path)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(links) == 0 {
		return mcp.NewToolResultText(fmt.Sprintf("No links found in %s", path)), nil
	}
	return mcp.NewToolResultText(formatRefs(links)), nil
}

func (s *Server) checkLinks(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	broken, err := s.svc.Broken(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(broken) == 0 {
		return mcp.NewToolResultText("no broken links"), nil
	}
	return mcp.NewToolResultText(formatRefs(broken)), nil
}

func (s *Server) getBacklinks(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	links, err := s.svc.Backlinks(ctx, path)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(links) == 0 {
		return mcp.NewToolResultText("no backlinks found"), nil
	}
	lines := make([]string, len(links))
	for i, l := range links {
		lines[i] = fmt.Sprintf("%s:%d:%d - %s", l.Source, l.Line, l.Column, l.LinkText)
	}
	return mcp.NewToolResultText(strings.Join(lines, "\n")), nil
}

func (s *Server) moveFile(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	oldPath, err := req.RequireString("old")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	newPath, err := req.RequireString("new")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return moveResult(s.svc.Move(ctx, oldPath, newPath))
}

func (s *Server) renameFile(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	oldPath, err := req.RequireString("old")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	name, err := req.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return moveResult(s.svc.Rename(ctx, oldPath, name))
}

func (s *Server) readLinkSyntaxResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      linkSyntaxURI,
			MIMEType: "text/markdown",
			Text:     LinkSyntax,
		},
	}, nil
}

func formatRefs(refs []models.Reference) string {
	lines := make([]string, len(refs))
	for i, r := range refs {
		lines[i] = r.String()
	}
	return strings.Join(lines, "\n")
}

// moveResult renders a move report. A move that failed after rewriting
// links reports the error together with what was already changed.
func moveResult(report *mover.Report, err error) (*mcp.CallToolResult, error) {
	if err != nil && report == nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("move incomplete: %v\n%s", err, out)), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}
