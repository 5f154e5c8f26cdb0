package mcpserver

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/mdref/internal/index"
	"github.com/starford/mdref/internal/linkservice"
	"github.com/starford/mdref/internal/mover"
	"github.com/starford/mdref/internal/refindex"
	"github.com/starford/mdref/internal/storage"
	"github.com/starford/mdref/internal/testutil"
)

func testServer(t *testing.T) (*Server, string) {
	t.Helper()

	root := testutil.TestTree(t, map[string]string{
		"b.md":        "# B",
		"a.md":        "[b](b.md) [gone](gone.md)\n",
		"notes/c.md":  "[up](../b.md)",
		"notes/empty": "",
	})
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	store := storage.NewFS()
	idx := refindex.New(refindex.WithStore(store), refindex.WithLogger(logger))

	db := testutil.TestDB(t)
	if err := index.Sync(db, idx, store, root, logger); err != nil {
		t.Fatal(err)
	}
	svc, err := linkservice.NewService(root, store, idx, logger, linkservice.WithExport(db))
	if err != nil {
		t.Fatal(err)
	}
	return New(svc, "test"), root
}

func callTool(t *testing.T, srv *Server, name string, args map[string]interface{}) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name
	req.Params.Arguments = args

	// mcp-go has no direct "call tool" test helper, so the handlers are
	// invoked directly.
	var result *mcp.CallToolResult
	var err error

	switch name {
	case "find_references":
		result, err = srv.findReferences(ctx, req)
	case "find_links":
		result, err = srv.findLinks(ctx, req)
	case "check_links":
		result, err = srv.checkLinks(ctx, req)
	case "get_backlinks":
		result, err = srv.getBacklinks(ctx, req)
	case "move_file":
		result, err = srv.moveFile(ctx, req)
	case "rename_file":
		result, err = srv.renameFile(ctx, req)
	default:
		t.Fatalf("unknown tool: %s", name)
	}

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

func TestFindReferences(t *testing.T) {
	srv, _ := testServer(t)

	r := callTool(t, srv, "find_references", map[string]interface{}{"path": "b.md"})
	text := resultText(r)
	if r.IsError || !strings.Contains(text, "a.md:1:1 - b.md") || !strings.Contains(text, "notes/c.md:1:1 - ../b.md") {
		t.Errorf("find_references = %q", text)
	}

	r = callTool(t, srv, "find_references", map[string]interface{}{"path": "a.md"})
	if text := resultText(r); text != "No references found for a.md" {
		t.Errorf("unreferenced = %q", text)
	}
}

func TestFindReferencesMissing(t *testing.T) {
	srv, _ := testServer(t)
	r := callTool(t, srv, "find_references", map[string]interface{}{"path": "nope.md"})
	if !r.IsError {
		t.Error("expected error for missing document")
	}
	r = callTool(t, srv, "find_references", map[string]interface{}{})
	if !r.IsError {
		t.Error("expected error for missing argument")
	}
}

func TestFindLinks(t *testing.T) {
	srv, _ := testServer(t)
	r := callTool(t, srv, "find_links", map[string]interface{}{"path": "a.md"})
	if text := resultText(r); text != "a.md:1:1 - b.md\na.md:1:11 - gone.md" {
		t.Errorf("find_links = %q", text)
	}
}

func TestCheckLinks(t *testing.T) {
	srv, _ := testServer(t)
	r := callTool(t, srv, "check_links", map[string]interface{}{})
	if text := resultText(r); text != "a.md:1:11 - gone.md" {
		t.Errorf("check_links = %q", text)
	}
}

func TestGetBacklinks(t *testing.T) {
	srv, _ := testServer(t)
	r := callTool(t, srv, "get_backlinks", map[string]interface{}{"path": "b.md"})
	text := resultText(r)
	if text != "a.md:1:1 - b.md\nnotes/c.md:1:1 - ../b.md" {
		t.Errorf("backlinks = %q", text)
	}
}

func TestMoveFile(t *testing.T) {
	srv, root := testServer(t)
	r := callTool(t, srv, "move_file", map[string]interface{}{"old": "b.md", "new": "notes/b.md"})
	if r.IsError {
		t.Fatalf("move_file error: %s", resultText(r))
	}
	var report mover.Report
	if err := json.Unmarshal([]byte(resultText(r)), &report); err != nil {
		t.Fatalf("report is not JSON: %v", err)
	}
	if report.New != "notes/b.md" || len(report.Rewritten) != 2 {
		t.Errorf("report = %+v", report)
	}
	if got := testutil.ReadFile(t, filepath.Join(root, "notes", "c.md")); got != "[up](b.md)" {
		t.Errorf("notes/c.md = %q", got)
	}

	r = callTool(t, srv, "move_file", map[string]interface{}{"old": "a.md", "new": "notes/b.md"})
	if !r.IsError {
		t.Error("moving onto an existing file should fail")
	}
}

func TestRenameFile(t *testing.T) {
	srv, root := testServer(t)
	r := callTool(t, srv, "rename_file", map[string]interface{}{"old": "notes/c.md", "name": "d.md"})
	if r.IsError {
		t.Fatalf("rename_file error: %s", resultText(r))
	}
	if got := testutil.ReadFile(t, filepath.Join(root, "notes", "d.md")); got != "[up](../b.md)" {
		t.Errorf("notes/d.md = %q", got)
	}
}

func TestLinkSyntaxResource(t *testing.T) {
	srv, _ := testServer(t)
	contents, err := srv.readLinkSyntaxResource(context.Background(), mcp.ReadResourceRequest{})
	if err != nil {
		t.Fatal(err)
	}
	if len(contents) != 1 {
		t.Fatalf("contents = %d", len(contents))
	}
	tc, ok := contents[0].(mcp.TextResourceContents)
	if !ok || tc.URI != linkSyntaxURI || !strings.Contains(tc.Text, "[text](target)") {
		t.Errorf("resource = %+v", contents[0])
	}
}
