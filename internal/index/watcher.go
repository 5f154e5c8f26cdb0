package index

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/mdref/internal/checksum"
	"github.com/starford/mdref/internal/models"
	"github.com/starford/mdref/internal/refindex"
	"github.com/starford/mdref/internal/storage"
)

const reconcileDelay = 200 * time.Millisecond

// Watch starts an fsnotify watcher on root and keeps the export current
// until ctx is cancelled. It calls cb (if non-nil) after each successful
// export change.
//
// New directories created at runtime are automatically added to the watch
// list. Rename events trigger a reconciliation pass that removes stale
// entries whose files no longer exist on disk. Creating or removing a file
// re-resolves the stored links so backlinks follow the tree.
func Watch(ctx context.Context, db LinkGraph, idx *refindex.Index, store storage.Provider, root string, logger *slog.Logger, cb EventCallback) error {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("index: watch: %w", err)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := addDirsRecursive(w, absRoot); err != nil {
		return err
	}

	logger.Info("watcher: started", slog.String("root", absRoot))

	// reconcileTimer debounces rename reconciliation.
	var reconcileTimer *time.Timer
	var reconcileCh <-chan time.Time

	scheduleReconcile := func() {
		if reconcileTimer == nil {
			reconcileTimer = time.NewTimer(reconcileDelay)
			reconcileCh = reconcileTimer.C
		} else {
			reconcileTimer.Reset(reconcileDelay)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if reconcileTimer != nil {
				reconcileTimer.Stop()
			}
			logger.Info("watcher: stopped")
			return nil

		case <-reconcileCh:
			if err := reconcile(db, idx, store, absRoot, logger, cb); err != nil {
				logger.Warn("reconcile: failed", slog.String("error", err.Error()))
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			path := ev.Name

			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Lstat(path); statErr == nil && info.IsDir() {
					if addErr := addDirsRecursive(w, path); addErr != nil {
						logger.Warn("watcher: add new dir failed",
							slog.String("path", path),
							slog.String("error", addErr.Error()))
					} else {
						logger.Debug("watcher: watching new dir", slog.String("path", path))
					}
					// Documents may have landed before the watch was added.
					exportNewDir(db, idx, store, path, logger, cb)
					retargetAfter(db, absRoot, logger, cb)
					continue
				}
			}

			if !storage.IsMarkdown(path) {
				continue
			}

			switch {
			case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
				kind := "updated"
				if ev.Op&fsnotify.Create != 0 {
					kind = "created"
				}
				if err := exportPath(db, idx, store, path); err != nil {
					logger.Warn("watcher: export failed", slog.String("path", path), slog.String("error", err.Error()))
					continue
				}
				logger.Debug("watcher: exported", slog.String("path", path), slog.String("op", kind))
				if cb != nil {
					cb(kind, path)
				}
				if kind == "created" {
					// Links elsewhere may now resolve to the new file.
					retargetAfter(db, absRoot, logger, cb)
				}

			case ev.Op&fsnotify.Remove != 0:
				if err := db.DeleteDocument(path); err != nil {
					logger.Warn("watcher: delete failed", slog.String("path", path), slog.String("error", err.Error()))
					continue
				}
				logger.Debug("watcher: deleted", slog.String("path", path))
				if cb != nil {
					cb("deleted", path)
				}
				retargetAfter(db, absRoot, logger, cb)

			case ev.Op&fsnotify.Rename != 0:
				// fsnotify reports Rename on the old path only; the new path
				// arrives as a Create if it stays inside a watched directory.
				if err := db.DeleteDocument(path); err != nil {
					logger.Warn("watcher: rename delete failed", slog.String("path", path), slog.String("error", err.Error()))
				} else {
					logger.Debug("watcher: rename old deleted", slog.String("path", path))
					if cb != nil {
						cb("deleted", path)
					}
				}
				scheduleReconcile()
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

// exportPath reads the document at path and replaces its rows.
func exportPath(db LinkGraph, idx *refindex.Index, store storage.Provider, path string) error {
	info, err := os.Lstat(path)
	if err != nil {
		return err
	}
	if !info.Mode().IsRegular() {
		return nil
	}
	data, err := store.Read(path)
	if err != nil {
		return err
	}
	return exportDocument(db, idx, models.DocumentMeta{
		Path:      path,
		Checksum:  checksum.Sum(data),
		UpdatedAt: info.ModTime(),
	})
}

// exportNewDir exports any documents found in a newly created directory.
func exportNewDir(db LinkGraph, idx *refindex.Index, store storage.Provider, dir string, logger *slog.Logger, cb EventCallback) {
	for _, path := range store.MarkdownFiles(dir) {
		if err := exportPath(db, idx, store, path); err != nil {
			continue
		}
		logger.Debug("watcher: exported from new dir", slog.String("path", path))
		if cb != nil {
			cb("created", path)
		}
	}
}

// retargetAfter re-resolves stored links after the set of files changed.
func retargetAfter(db LinkGraph, absRoot string, logger *slog.Logger, cb EventCallback) {
	if err := retarget(db, absRoot, logger, cb); err != nil {
		logger.Warn("watcher: retarget failed", slog.String("error", err.Error()))
	}
}

// addDirsRecursive adds root and all its subdirectories to the watcher. A
// symlinked root is followed, and directories are registered under the
// root's own spelling so event names match exported paths.
func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	walkRoot := root
	if resolved, err := filepath.EvalSymlinks(root); err == nil {
		walkRoot = resolved
	}
	return filepath.WalkDir(walkRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(walkRoot, path)
		if err != nil {
			return err
		}
		return w.Add(filepath.Join(root, rel))
	})
}
