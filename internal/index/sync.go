package index

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/starford/mdref/internal/models"
	"github.com/starford/mdref/internal/refindex"
	"github.com/starford/mdref/internal/resolve"
	"github.com/starford/mdref/internal/storage"
)

// EventCallback is called after a change to the export.
// kind is one of "created", "updated", "deleted".
type EventCallback func(kind string, path string)

// Sync walks root and brings the export up to date:
//   - new/changed documents are scanned and replaced
//   - documents removed from disk are deleted from the export
//   - every stored link under root is re-resolved, so targets created,
//     deleted, or moved since the last pass are reflected
func Sync(db LinkGraph, idx *refindex.Index, store storage.Provider, root string, logger *slog.Logger) error {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("index: sync: %w", err)
	}
	return reconcile(db, idx, store, absRoot, logger, nil)
}

// reconcile diffs the documents on disk against the stored checksums using
// batch lookups. Paths are stored absolute.
func reconcile(db LinkGraph, idx *refindex.Index, store storage.Provider, absRoot string, logger *slog.Logger, cb EventCallback) error {
	metas, err := store.List(absRoot)
	if err != nil {
		return err
	}
	checksums, err := db.AllChecksums()
	if err != nil {
		return err
	}

	disk := make(map[string]struct{}, len(metas))
	for _, m := range metas {
		disk[m.Path] = struct{}{}

		old, known := checksums[m.Path]
		if old == m.Checksum {
			continue
		}
		if err := exportDocument(db, idx, m); err != nil {
			logger.Warn("sync: export failed", slog.String("path", m.Path), slog.String("error", err.Error()))
			continue
		}
		logger.Debug("sync: exported", slog.String("path", m.Path))
		if cb != nil {
			kind := "updated"
			if !known {
				kind = "created"
			}
			cb(kind, m.Path)
		}
	}

	// Remove stale entries.
	for p := range checksums {
		if _, ok := disk[p]; ok || !within(absRoot, p) {
			continue
		}
		if err := db.DeleteDocument(p); err != nil {
			logger.Warn("sync: delete failed", slog.String("path", p), slog.String("error", err.Error()))
			continue
		}
		logger.Debug("sync: removed stale", slog.String("path", p))
		if cb != nil {
			cb("deleted", p)
		}
	}
	return retarget(db, absRoot, logger, cb)
}

// retarget re-resolves every exported link whose source lies under absRoot
// and stores the targets that changed. cb receives "updated" once per
// document with a changed link.
func retarget(db LinkGraph, absRoot string, logger *slog.Logger, cb EventCallback) error {
	links, err := db.Links()
	if err != nil {
		return err
	}
	var changed []models.Link
	var sources []string
	seen := make(map[string]bool)
	for _, l := range links {
		if !within(absRoot, l.Source) {
			continue
		}
		target := resolveTarget(l.Source, l.LinkText)
		if target == l.Target {
			continue
		}
		l.Target = target
		changed = append(changed, l)
		if !seen[l.Source] {
			seen[l.Source] = true
			sources = append(sources, l.Source)
		}
	}
	if len(changed) == 0 {
		return nil
	}
	if err := db.UpdateTargets(changed); err != nil {
		return err
	}
	logger.Debug("sync: retargeted links", slog.Int("links", len(changed)), slog.Int("documents", len(sources)))
	if cb != nil {
		for _, src := range sources {
			cb("updated", src)
		}
	}
	return nil
}

// exportDocument scans one document and replaces its rows.
func exportDocument(db LinkGraph, idx *refindex.Index, meta models.DocumentMeta) error {
	refs, err := idx.FindLinks(meta.Path)
	if err != nil {
		return err
	}
	return db.ReplaceDocument(meta, linkRows(meta.Path, refs))
}

// linkRows turns the references found in source into export rows.
func linkRows(source string, refs []models.Reference) []models.Link {
	links := make([]models.Link, 0, len(refs))
	for _, r := range refs {
		links = append(links, models.Link{
			Source:   source,
			Line:     r.Line,
			Column:   r.Column,
			LinkText: r.LinkText,
			Target:   resolveTarget(source, r.LinkText),
		})
	}
	return links
}

// resolveTarget returns the canonical path a link points at, or "" when it
// does not resolve to an existing file.
func resolveTarget(doc, text string) string {
	if resolve.IsExternal(text) {
		return ""
	}
	linkPath, _ := resolve.SplitFragment(text)
	p, ok := resolve.Link(doc, linkPath)
	if !ok {
		return ""
	}
	c, err := resolve.Canonical(p)
	if err != nil {
		return ""
	}
	return c
}

// within reports whether p lies under absRoot. Documents exported from a
// different root are left alone.
func within(absRoot, p string) bool {
	rel, err := filepath.Rel(absRoot, p)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
