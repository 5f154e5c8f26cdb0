// Package mover relocates a Markdown document and rewrites every link that
// the relocation would otherwise break.
//
// A move is best-effort, not atomic. The original is copied before anything
// is rewritten and removed only after all rewrites, so a failure part-way
// can leave stale links or a duplicate file but never loses content.
package mover

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/starford/mdref/internal/apperr"
	"github.com/starford/mdref/internal/models"
	"github.com/starford/mdref/internal/refindex"
	"github.com/starford/mdref/internal/resolve"
	"github.com/starford/mdref/internal/storage"
)

// Skip is a reference the move could not rewrite.
type Skip struct {
	Reference models.Reference `json:"reference"`
	Reason    string           `json:"reason"`
}

// Report summarizes a completed move.
type Report struct {
	Old       string             `json:"old"`
	New       string             `json:"new"`
	Rewritten []models.Reference `json:"rewritten"`
	Skipped   []Skip             `json:"skipped"`
}

// Mover runs move transactions.
type Mover struct {
	store  storage.Provider
	index  *refindex.Index
	logger *slog.Logger
}

// New creates a Mover.
func New(store storage.Provider, index *refindex.Index, logger *slog.Logger) *Mover {
	if logger == nil {
		logger = slog.Default()
	}
	return &Mover{store: store, index: index, logger: logger}
}

// Move relocates oldPath to newPath and updates links under root: incoming
// references from other documents, and the moved document's own relative
// links. Per-reference failures are reported in Report.Skipped and do not
// fail the move.
func (m *Mover) Move(oldPath, newPath, root string) (*Report, error) {
	oldAbs, err := resolve.Absolute(oldPath)
	if err != nil {
		return nil, apperr.Path("move", oldPath, "resolve source: %w", err)
	}
	newAbs, err := resolve.Absolute(newPath)
	if err != nil {
		return nil, apperr.Path("move", newPath, "resolve destination: %w", err)
	}
	if oldAbs == newAbs {
		return nil, apperr.Path("move", oldPath, "source and destination are the same")
	}
	if m.store.Exists(newAbs) {
		return nil, apperr.IO("move", newPath, apperr.ErrAlreadyExists)
	}

	if err := m.store.MkdirAll(filepath.Dir(newAbs)); err != nil {
		return nil, apperr.IO("create directory", filepath.Dir(newPath), err)
	}

	incoming, err := m.index.FindReferences(oldPath, root)
	if err != nil {
		return nil, err
	}
	oldCanonical, err := resolve.Canonical(oldPath)
	if err != nil {
		return nil, apperr.IO("move", oldPath, err)
	}

	if err := m.store.Copy(oldPath, newAbs); err != nil {
		return nil, apperr.IO("copy", oldPath, err)
	}

	report := &Report{Old: oldPath, New: newPath, Rewritten: []models.Reference{}, Skipped: []Skip{}}
	m.rewriteIncoming(report, incoming, oldCanonical, newAbs)
	m.rewriteOutgoing(report, oldAbs, oldCanonical, newAbs)

	if err := m.store.Delete(oldPath); err != nil {
		return report, apperr.IO("remove", oldPath, err)
	}

	m.logger.Info("moved file",
		slog.String("old", oldPath),
		slog.String("new", newPath),
		slog.Int("rewritten", len(report.Rewritten)),
		slog.Int("skipped", len(report.Skipped)))
	return report, nil
}

// Rename moves oldPath to newName inside the same directory.
func (m *Mover) Rename(oldPath, newName, root string) (*Report, error) {
	if newName == "" || newName != filepath.Base(newName) || strings.ContainsAny(newName, `/\`) || newName == "." || newName == ".." {
		return nil, apperr.Path("rename", oldPath, "new name %q must be a bare file name", newName)
	}
	return m.Move(oldPath, filepath.Join(filepath.Dir(oldPath), newName), root)
}

// rewriteIncoming points every captured reference at newAbs, one read and
// one write per referencing document.
func (m *Mover) rewriteIncoming(report *Report, refs []models.Reference, oldCanonical, newAbs string) {
	newPhysical, err := physical(newAbs)
	if err != nil {
		for _, ref := range refs {
			m.skip(report, ref, err.Error())
		}
		return
	}
	byFile := make(map[string][]edit)
	var order []string
	for _, ref := range refs {
		// The old file is about to be removed; its copy is handled by
		// rewriteOutgoing.
		if c, err := resolve.Canonical(ref.Path); err == nil && c == oldCanonical {
			continue
		}
		dir, err := physical(filepath.Dir(ref.Path))
		if err != nil {
			m.skip(report, ref, err.Error())
			continue
		}
		text, err := resolve.Relative(dir, newPhysical)
		if err != nil {
			m.skip(report, ref, err.Error())
			continue
		}
		_, fragment := resolve.SplitFragment(ref.LinkText)
		text += fragment
		if _, ok := byFile[ref.Path]; !ok {
			order = append(order, ref.Path)
		}
		byFile[ref.Path] = append(byFile[ref.Path], edit{ref: ref, newText: text})
	}

	for _, path := range order {
		m.applyFile(report, path, byFile[path])
	}
}

// rewriteOutgoing adjusts the relative links inside the moved document so
// they keep pointing at the same files from the new location.
func (m *Mover) rewriteOutgoing(report *Report, oldAbs, oldCanonical, newAbs string) {
	links, err := m.index.FindLinks(newAbs)
	if err != nil {
		m.logger.Warn("mover: cannot scan moved file", slog.String("path", newAbs), slog.String("error", err.Error()))
		return
	}

	oldDir, err := physical(filepath.Dir(oldAbs))
	if err != nil {
		m.logger.Warn("mover: cannot resolve old directory", slog.String("path", oldAbs), slog.String("error", err.Error()))
		return
	}
	newDir, err := physical(filepath.Dir(newAbs))
	if err != nil {
		m.logger.Warn("mover: cannot resolve new directory", slog.String("path", newAbs), slog.String("error", err.Error()))
		return
	}
	oldSelf := filepath.Join(oldDir, filepath.Base(oldAbs))
	var edits []edit
	for _, link := range links {
		target := link.LinkText
		if resolve.IsExternal(target) {
			continue
		}
		linkPath, fragment := resolve.SplitFragment(target)

		var text string
		switch {
		case filepath.IsAbs(linkPath):
			// Absolute links stay valid after the move unless they name
			// the file being moved.
			if !sameFile(linkPath, oldCanonical) {
				continue
			}
			text = filepath.Base(newAbs)
		default:
			pointed := filepath.Join(oldDir, filepath.FromSlash(linkPath))
			if pointed == oldSelf || sameFile(pointed, oldCanonical) {
				text = filepath.Base(newAbs)
				break
			}
			text, err = resolve.Relative(newDir, pointed)
			if err != nil {
				m.skip(report, link, err.Error())
				continue
			}
		}
		text += fragment
		if text == target {
			continue
		}
		edits = append(edits, edit{ref: link, newText: text})
	}
	if len(edits) == 0 {
		return
	}
	m.applyFile(report, newAbs, edits)
}

// applyFile reads path, applies edits, and writes the result back.
func (m *Mover) applyFile(report *Report, path string, edits []edit) {
	data, err := m.store.Read(path)
	if err != nil {
		for _, e := range edits {
			m.skip(report, e.ref, err.Error())
		}
		return
	}
	updated, applied, skipped := applyEdits(path, string(data), edits)
	for _, s := range skipped {
		m.skip(report, s.Reference, s.Reason)
	}
	if len(applied) == 0 {
		return
	}
	if err := m.store.Write(path, []byte(updated)); err != nil {
		for _, e := range applied {
			m.skip(report, e.ref, fmt.Sprintf("write failed: %v", err))
		}
		return
	}
	for _, e := range applied {
		m.logger.Debug("mover: rewrote link",
			slog.String("path", e.ref.Path),
			slog.Int("line", e.ref.Line),
			slog.String("old", e.ref.LinkText),
			slog.String("new", e.newText))
		report.Rewritten = append(report.Rewritten, e.ref)
	}
}

func (m *Mover) skip(report *Report, ref models.Reference, reason string) {
	m.logger.Warn("mover: skipped reference",
		slog.String("reference", ref.String()),
		slog.String("reason", reason))
	report.Skipped = append(report.Skipped, Skip{Reference: ref, Reason: reason})
}

// sameFile reports whether p canonicalizes to canonical. The old file still
// exists while outgoing links are rewritten, so symlinked spellings of a
// self-link are recognized too.
func sameFile(p, canonical string) bool {
	c, err := resolve.Canonical(p)
	return err == nil && c == canonical
}

// physical returns the canonical form of p when it exists and its lexical
// absolute form otherwise. Relative link texts are computed between
// physical locations so that ".." behaves as the operating system sees it.
func physical(p string) (string, error) {
	if c, err := resolve.Canonical(p); err == nil {
		return c, nil
	}
	return resolve.Absolute(p)
}
