// Package refindex runs resolution passes over a directory tree of Markdown
// documents: it extracts every link token and keeps those accepted by a
// match predicate.
package refindex

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/starford/mdref/internal/apperr"
	"github.com/starford/mdref/internal/models"
	"github.com/starford/mdref/internal/parser"
	"github.com/starford/mdref/internal/resolve"
	"github.com/starford/mdref/internal/storage"
)

var errInvalidUTF8 = errors.New("content is not valid UTF-8")

// Index performs resolution passes. It holds no state between calls; every
// pass walks the tree afresh.
type Index struct {
	store   storage.Provider
	workers int
	logger  *slog.Logger
}

// Option configures an Index.
type Option func(*Index)

// WithWorkers bounds the number of files scanned concurrently. Values
// below 1 select runtime.NumCPU().
func WithWorkers(n int) Option {
	return func(ix *Index) {
		ix.workers = n
	}
}

// WithLogger sets the logger used for skipped files.
func WithLogger(l *slog.Logger) Option {
	return func(ix *Index) {
		ix.logger = l
	}
}

// WithStore replaces the default local file-system provider.
func WithStore(s storage.Provider) Option {
	return func(ix *Index) {
		ix.store = s
	}
}

// New creates an Index.
func New(opts ...Option) *Index {
	ix := &Index{}
	for _, opt := range opts {
		opt(ix)
	}
	if ix.store == nil {
		ix.store = storage.NewFS()
	}
	if ix.workers < 1 {
		ix.workers = runtime.NumCPU()
	}
	if ix.logger == nil {
		ix.logger = slog.Default()
	}
	return ix
}

// matchFunc decides whether occ, found in the document at doc, belongs in
// the result of a pass.
type matchFunc func(doc string, occ parser.Occurrence) bool

// FindReferences returns every link under root that resolves to target. A
// "#fragment" suffix is ignored when resolving. It fails only when target
// itself cannot be canonicalized.
func (ix *Index) FindReferences(target, root string) ([]models.Reference, error) {
	canonical, err := resolve.Canonical(target)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			err = fmt.Errorf("%w: %w", apperr.ErrNotFound, err)
		}
		return nil, apperr.IO("find references", target, err)
	}
	name := filepath.Base(canonical)

	match := func(doc string, occ parser.Occurrence) bool {
		linkPath, _ := resolve.SplitFragment(occ.Target)
		// Cheap filename comparison before touching the file system.
		if resolve.Filename(linkPath) != name {
			return false
		}
		p, ok := resolve.Link(doc, linkPath)
		if !ok {
			return false
		}
		c, err := resolve.Canonical(p)
		return err == nil && c == canonical
	}
	return ix.scanTree(root, match), nil
}

// FindLinks returns every link token in the document at path, resolved or
// not. Non-Markdown paths yield an empty result.
func (ix *Index) FindLinks(path string) ([]models.Reference, error) {
	if !storage.IsMarkdown(path) {
		return []models.Reference{}, nil
	}
	content, err := ix.readText(path)
	if err != nil {
		return nil, apperr.IO("find links", path, err)
	}
	return scanContent(path, content, acceptAll), nil
}

// FindBroken returns every non-external link under root whose target does
// not exist. Only the path before any "#fragment" is checked.
func (ix *Index) FindBroken(root string) ([]models.Reference, error) {
	if _, err := os.Stat(root); err != nil {
		return nil, apperr.IO("check links", root, err)
	}
	match := func(doc string, occ parser.Occurrence) bool {
		if resolve.IsExternal(occ.Target) {
			return false
		}
		linkPath, _ := resolve.SplitFragment(occ.Target)
		p, ok := resolve.Link(doc, linkPath)
		if !ok {
			return true
		}
		_, err := os.Stat(p)
		return err != nil
	}
	return ix.scanTree(root, match), nil
}

// AllLinks returns every link token in every document under root.
func (ix *Index) AllLinks(root string) []models.Reference {
	return ix.scanTree(root, acceptAll)
}

func acceptAll(string, parser.Occurrence) bool { return true }

// scanTree fans out one task per document and merges the per-file results.
// Each task writes only its own slot, so the merge needs no locking.
func (ix *Index) scanTree(root string, match matchFunc) []models.Reference {
	files := ix.store.MarkdownFiles(root)
	results := make([][]models.Reference, len(files))

	var g errgroup.Group
	g.SetLimit(ix.workers)
	for i, file := range files {
		g.Go(func() error {
			content, err := ix.readText(file)
			if err != nil {
				ix.logger.Debug("refindex: skipped file", slog.String("path", file), slog.String("error", err.Error()))
				return nil
			}
			results[i] = scanContent(file, content, match)
			return nil
		})
	}
	_ = g.Wait()

	out := []models.Reference{}
	for _, refs := range results {
		out = append(out, refs...)
	}
	return out
}

func scanContent(path, content string, match matchFunc) []models.Reference {
	out := []models.Reference{}
	for occ := range parser.Links(content) {
		if !match(path, occ) {
			continue
		}
		out = append(out, models.Reference{
			Path:     path,
			Line:     occ.Line,
			Column:   occ.Column,
			LinkText: occ.Target,
		})
	}
	return out
}

func (ix *Index) readText(path string) (string, error) {
	data, err := ix.store.Read(path)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(data) {
		return "", errInvalidUTF8
	}
	return string(data), nil
}
