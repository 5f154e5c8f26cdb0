package index

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/starford/mdref/internal/models"
	"github.com/starford/mdref/internal/refindex"
	"github.com/starford/mdref/internal/resolve"
	"github.com/starford/mdref/internal/storage"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	f, err := os.CreateTemp("", "mdref-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	f.Close()
	t.Cleanup(func() { os.Remove(f.Name()) })

	db, err := Open(f.Name())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func writeDoc(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestSchemaCreation(t *testing.T) {
	db := testDB(t)
	var count int
	if err := db.conn.QueryRow(`SELECT count(*) FROM documents`).Scan(&count); err != nil {
		t.Fatalf("documents table missing: %v", err)
	}
	if err := db.conn.QueryRow(`SELECT count(*) FROM links`).Scan(&count); err != nil {
		t.Fatalf("links table missing: %v", err)
	}
}

func TestReplaceAndGetChecksum(t *testing.T) {
	db := testDB(t)
	doc := models.DocumentMeta{Path: "/t/hello.md", Checksum: "abc123", UpdatedAt: time.Now()}
	links := []models.Link{{Source: doc.Path, Line: 1, Column: 1, LinkText: "other.md", Target: "/t/other.md"}}
	if err := db.ReplaceDocument(doc, links); err != nil {
		t.Fatalf("ReplaceDocument: %v", err)
	}
	cs, err := db.GetChecksum("/t/hello.md")
	if err != nil {
		t.Fatalf("GetChecksum: %v", err)
	}
	if cs != "abc123" {
		t.Errorf("checksum = %q, want %q", cs, "abc123")
	}
}

func TestBacklinks(t *testing.T) {
	db := testDB(t)
	now := time.Now()
	_ = db.ReplaceDocument(models.DocumentMeta{Path: "/t/c.md", Checksum: "2", UpdatedAt: now},
		[]models.Link{{Line: 3, Column: 5, LinkText: "b.md", Target: "/t/b.md"}})
	_ = db.ReplaceDocument(models.DocumentMeta{Path: "/t/a.md", Checksum: "1", UpdatedAt: now},
		[]models.Link{
			{Line: 1, Column: 1, LinkText: "b.md", Target: "/t/b.md"},
			{Line: 2, Column: 1, LinkText: "nowhere.md"},
		})

	bl, err := db.Backlinks("/t/b.md")
	if err != nil {
		t.Fatalf("Backlinks: %v", err)
	}
	if len(bl) != 2 {
		t.Fatalf("expected 2 backlinks, got %d", len(bl))
	}
	if bl[0].Source != "/t/a.md" || bl[1].Source != "/t/c.md" || bl[1].Line != 3 || bl[1].Column != 5 {
		t.Errorf("backlinks = %+v", bl)
	}
}

func TestDeleteDocument(t *testing.T) {
	db := testDB(t)
	_ = db.ReplaceDocument(models.DocumentMeta{Path: "/t/del.md", Checksum: "x", UpdatedAt: time.Now()},
		[]models.Link{{Line: 1, Column: 1, LinkText: "target.md", Target: "/t/target.md"}})

	if err := db.DeleteDocument("/t/del.md"); err != nil {
		t.Fatalf("DeleteDocument: %v", err)
	}
	cs, _ := db.GetChecksum("/t/del.md")
	if cs != "" {
		t.Errorf("deleted document still has checksum %q", cs)
	}
	bl, _ := db.Backlinks("/t/target.md")
	if len(bl) != 0 {
		t.Errorf("expected 0 backlinks after delete, got %d", len(bl))
	}
}

func TestReplaceUpdatesExisting(t *testing.T) {
	db := testDB(t)
	now := time.Now()
	_ = db.ReplaceDocument(models.DocumentMeta{Path: "/t/up.md", Checksum: "1", UpdatedAt: now},
		[]models.Link{{Line: 1, Column: 1, LinkText: "x.md", Target: "/t/x.md"}})
	_ = db.ReplaceDocument(models.DocumentMeta{Path: "/t/up.md", Checksum: "2", UpdatedAt: now},
		[]models.Link{{Line: 1, Column: 1, LinkText: "y.md", Target: "/t/y.md"}})

	cs, _ := db.GetChecksum("/t/up.md")
	if cs != "2" {
		t.Errorf("checksum = %q, want %q", cs, "2")
	}
	bl, _ := db.Backlinks("/t/x.md")
	if len(bl) != 0 {
		t.Error("old link should be removed on replace")
	}
	bl, _ = db.Backlinks("/t/y.md")
	if len(bl) != 1 {
		t.Error("new link should exist")
	}
}

func TestGetChecksum_NotFound(t *testing.T) {
	db := testDB(t)
	cs, err := db.GetChecksum("nonexistent.md")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cs != "" {
		t.Errorf("expected empty checksum, got %q", cs)
	}
}

func TestSync(t *testing.T) {
	root := t.TempDir()
	writeDoc(t, filepath.Join(root, "a.md"), "[b](b.md) [web](https://x.org) [gone](gone.md)\n")
	writeDoc(t, filepath.Join(root, "b.md"), "# B")
	writeDoc(t, filepath.Join(root, "sub", "c.md"), "[up](../b.md)")
	writeDoc(t, filepath.Join(root, "notes.txt"), "[b](b.md)")

	db := testDB(t)
	store := storage.NewFS()
	idx := refindex.New(refindex.WithStore(store))
	if err := Sync(db, idx, store, root, quietLogger()); err != nil {
		t.Fatalf("Sync: %v", err)
	}

	stats, err := db.Stats()
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats != (Stats{Documents: 3, Links: 4, Resolved: 2}) {
		t.Errorf("stats = %+v", stats)
	}

	target, err := resolve.Canonical(filepath.Join(root, "b.md"))
	if err != nil {
		t.Fatal(err)
	}
	bl, err := db.Backlinks(target)
	if err != nil {
		t.Fatalf("Backlinks: %v", err)
	}
	if len(bl) != 2 {
		t.Errorf("backlinks = %+v, want a.md and sub/c.md", bl)
	}

	// Removing a document and re-syncing drops its rows.
	if err := os.Remove(filepath.Join(root, "sub", "c.md")); err != nil {
		t.Fatal(err)
	}
	if err := Sync(db, idx, store, root, quietLogger()); err != nil {
		t.Fatalf("second Sync: %v", err)
	}
	if bl, _ := db.Backlinks(target); len(bl) != 1 {
		t.Errorf("backlinks after removal = %+v", bl)
	}
}

func TestSync_RetargetsWhenTargetChanges(t *testing.T) {
	root := t.TempDir()
	writeDoc(t, filepath.Join(root, "a.md"), "[x](b.md)")

	db := testDB(t)
	store := storage.NewFS()
	idx := refindex.New(refindex.WithStore(store))
	if err := Sync(db, idx, store, root, quietLogger()); err != nil {
		t.Fatalf("Sync: %v", err)
	}

	// a.md is unchanged; only its target appears.
	b := filepath.Join(root, "b.md")
	writeDoc(t, b, "# B")
	if err := Sync(db, idx, store, root, quietLogger()); err != nil {
		t.Fatalf("second Sync: %v", err)
	}
	target, err := resolve.Canonical(b)
	if err != nil {
		t.Fatal(err)
	}
	fresh, err := idx.FindReferences(b, root)
	if err != nil {
		t.Fatal(err)
	}
	bl, err := db.Backlinks(target)
	if err != nil {
		t.Fatalf("Backlinks: %v", err)
	}
	if len(bl) != 1 || len(fresh) != 1 {
		t.Errorf("backlinks = %+v, fresh scan = %+v, want one each", bl, fresh)
	}

	// Moving the target away outside mdref clears the stored target.
	if err := os.Rename(b, filepath.Join(root, "c.md")); err != nil {
		t.Fatal(err)
	}
	if err := Sync(db, idx, store, root, quietLogger()); err != nil {
		t.Fatalf("third Sync: %v", err)
	}
	if bl, _ := db.Backlinks(target); len(bl) != 0 {
		t.Errorf("backlinks after target moved = %+v", bl)
	}
	stats, _ := db.Stats()
	if stats.Resolved != 0 {
		t.Errorf("resolved = %d, want 0", stats.Resolved)
	}
}

func TestSync_FragmentLinkResolves(t *testing.T) {
	root := t.TempDir()
	writeDoc(t, filepath.Join(root, "a.md"), "[x](other.md#section)")
	other := filepath.Join(root, "other.md")
	writeDoc(t, other, "# Section")

	db := testDB(t)
	store := storage.NewFS()
	if err := Sync(db, refindex.New(refindex.WithStore(store)), store, root, quietLogger()); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	target, err := resolve.Canonical(other)
	if err != nil {
		t.Fatal(err)
	}
	bl, err := db.Backlinks(target)
	if err != nil {
		t.Fatalf("Backlinks: %v", err)
	}
	if len(bl) != 1 || bl[0].LinkText != "other.md#section" {
		t.Errorf("backlinks = %+v", bl)
	}
}

func TestUpdateTargets(t *testing.T) {
	db := testDB(t)
	doc := models.DocumentMeta{Path: "/docs/a.md", Checksum: "c", UpdatedAt: time.Now()}
	links := []models.Link{
		{Source: "/docs/a.md", Line: 1, Column: 1, LinkText: "b.md"},
		{Source: "/docs/a.md", Line: 2, Column: 3, LinkText: "c.md", Target: "/docs/c.md"},
	}
	if err := db.ReplaceDocument(doc, links); err != nil {
		t.Fatal(err)
	}
	if err := db.UpdateTargets([]models.Link{{Source: "/docs/a.md", Line: 1, Column: 1, Target: "/docs/b.md"}}); err != nil {
		t.Fatalf("UpdateTargets: %v", err)
	}
	got, err := db.Links()
	if err != nil {
		t.Fatalf("Links: %v", err)
	}
	if len(got) != 2 || got[0].Target != "/docs/b.md" || got[1].Target != "/docs/c.md" {
		t.Errorf("links = %+v", got)
	}
}

func TestSync_LeavesOtherRootsAlone(t *testing.T) {
	db := testDB(t)
	_ = db.ReplaceDocument(models.DocumentMeta{Path: "/elsewhere/keep.md", Checksum: "k", UpdatedAt: time.Now()}, nil)

	root := t.TempDir()
	writeDoc(t, filepath.Join(root, "a.md"), "# A")
	store := storage.NewFS()
	if err := Sync(db, refindex.New(), store, root, quietLogger()); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if cs, _ := db.GetChecksum("/elsewhere/keep.md"); cs != "k" {
		t.Error("documents outside root should survive a sync")
	}
}

func TestWithin(t *testing.T) {
	root := filepath.FromSlash("/docs")
	cases := map[string]bool{
		"/docs/a.md":      true,
		"/docs/sub/b.md":  true,
		"/docsx/a.md":     false,
		"/other/a.md":     false,
		"/docs/../etc.md": false,
	}
	for p, want := range cases {
		if got := within(root, filepath.Clean(filepath.FromSlash(p))); got != want {
			t.Errorf("within(%q) = %v, want %v", p, got, want)
		}
	}
}
