// Package linkservice coordinates the resolution engine, the move
// transaction, and the link-graph export for the HTTP and MCP surfaces.
// All paths crossing this boundary are relative to the tree root.
package linkservice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	"github.com/starford/mdref/internal/apperr"
	"github.com/starford/mdref/internal/index"
	"github.com/starford/mdref/internal/models"
	"github.com/starford/mdref/internal/mover"
	"github.com/starford/mdref/internal/refindex"
	"github.com/starford/mdref/internal/resolve"
	"github.com/starford/mdref/internal/storage"
)

// ErrNoExport is returned by Backlinks when no export database is attached.
var ErrNoExport = errors.New("link-graph export is not configured")

// MoveCallback is invoked after every successful move.
type MoveCallback func(report *mover.Report)

// Service coordinates index, mover, and export operations.
type Service struct {
	root   string
	store  storage.Provider
	index  *refindex.Index
	mover  *mover.Mover
	db     index.LinkGraph
	logger *slog.Logger
	onMove MoveCallback

	// moveMu serializes moves; the file system itself is not locked.
	moveMu sync.Mutex
}

// Option configures a Service.
type Option func(*Service)

// WithExport attaches the link-graph database. Moves re-sync it.
func WithExport(db index.LinkGraph) Option {
	return func(s *Service) {
		s.db = db
	}
}

// WithMoveCallback registers cb to run after each successful move.
func WithMoveCallback(cb MoveCallback) Option {
	return func(s *Service) {
		s.onMove = cb
	}
}

// NewService creates a service rooted at root.
func NewService(root string, store storage.Provider, idx *refindex.Index, logger *slog.Logger, opts ...Option) (*Service, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("linkservice: resolve root: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		root:   absRoot,
		store:  store,
		index:  idx,
		mover:  mover.New(store, idx, logger),
		logger: logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Root returns the absolute tree root.
func (s *Service) Root() string {
	return s.root
}

// References returns every link in the tree that resolves to path.
func (s *Service) References(_ context.Context, path string) ([]models.Reference, error) {
	abs, err := s.confine(path)
	if err != nil {
		return nil, err
	}
	refs, err := s.index.FindReferences(abs, s.root)
	if err != nil {
		return nil, err
	}
	return s.relRefs(refs), nil
}

// Links returns every link in the document at path.
func (s *Service) Links(_ context.Context, path string) ([]models.Reference, error) {
	abs, err := s.confine(path)
	if err != nil {
		return nil, err
	}
	if !s.store.Exists(abs) {
		return nil, apperr.ErrNotFound
	}
	refs, err := s.index.FindLinks(abs)
	if err != nil {
		return nil, err
	}
	return s.relRefs(refs), nil
}

// Broken returns every relative link in the tree whose target is missing.
func (s *Service) Broken(_ context.Context) ([]models.Reference, error) {
	refs, err := s.index.FindBroken(s.root)
	if err != nil {
		return nil, err
	}
	return s.relRefs(refs), nil
}

// Backlinks answers from the export database rather than a fresh scan.
func (s *Service) Backlinks(_ context.Context, path string) ([]models.Link, error) {
	if s.db == nil {
		return nil, ErrNoExport
	}
	abs, err := s.confine(path)
	if err != nil {
		return nil, err
	}
	target, err := resolve.Canonical(abs)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", apperr.ErrNotFound, err)
	}
	links, err := s.db.Backlinks(target)
	if err != nil {
		return nil, err
	}
	for i := range links {
		links[i].Source = s.rel(links[i].Source)
		links[i].Target = s.rel(links[i].Target)
	}
	return links, nil
}

// Move relocates oldPath to newPath and rewrites affected links.
func (s *Service) Move(_ context.Context, oldPath, newPath string) (*mover.Report, error) {
	oldAbs, err := s.confine(oldPath)
	if err != nil {
		return nil, err
	}
	newAbs, err := s.confine(newPath)
	if err != nil {
		return nil, err
	}

	s.moveMu.Lock()
	defer s.moveMu.Unlock()
	return s.finishMove(s.mover.Move(oldAbs, newAbs, s.root))
}

// Rename moves oldPath to newName within its directory.
func (s *Service) Rename(_ context.Context, oldPath, newName string) (*mover.Report, error) {
	oldAbs, err := s.confine(oldPath)
	if err != nil {
		return nil, err
	}

	s.moveMu.Lock()
	defer s.moveMu.Unlock()
	return s.finishMove(s.mover.Rename(oldAbs, newName, s.root))
}

// finishMove refreshes the export and relativizes the report. A move that
// failed after rewriting links still returns its report with the error;
// only a fully completed move notifies the callback.
func (s *Service) finishMove(report *mover.Report, moveErr error) (*mover.Report, error) {
	if report == nil {
		return nil, moveErr
	}
	if s.db != nil {
		if err := index.Sync(s.db, s.index, s.store, s.root, s.logger); err != nil {
			s.logger.Warn("linkservice: export sync after move failed", slog.String("error", err.Error()))
		}
	}

	report.Old = s.rel(report.Old)
	report.New = s.rel(report.New)
	report.Rewritten = s.relRefs(report.Rewritten)
	for i := range report.Skipped {
		report.Skipped[i].Reference.Path = s.rel(report.Skipped[i].Reference.Path)
	}

	if moveErr != nil {
		return report, moveErr
	}
	if s.onMove != nil {
		s.onMove(report)
	}
	return report, nil
}

func (s *Service) confine(p string) (string, error) {
	if p == "" {
		return "", apperr.Path("resolve", p, "path is required")
	}
	abs, err := storage.Confine(s.root, p)
	if err != nil {
		return "", apperr.Path("resolve", p, "%w", err)
	}
	return abs, nil
}

// rel renders p relative to the root with forward slashes. Paths outside
// the root, and empty paths, are returned unchanged.
func (s *Service) rel(p string) string {
	if p == "" || !filepath.IsAbs(p) {
		return p
	}
	r, err := filepath.Rel(s.root, p)
	if err != nil || r == ".." || strings.HasPrefix(r, ".."+string(filepath.Separator)) {
		return p
	}
	return filepath.ToSlash(r)
}

func (s *Service) relRefs(refs []models.Reference) []models.Reference {
	out := make([]models.Reference, len(refs))
	for i, r := range refs {
		r.Path = s.rel(r.Path)
		out[i] = r
	}
	return out
}
