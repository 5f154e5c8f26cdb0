package storage

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/starford/mdref/internal/checksum"
	"github.com/starford/mdref/internal/models"
)

// FS implements Provider backed by the local file system.
type FS struct{}

// NewFS creates a local file-system provider.
func NewFS() *FS {
	return &FS{}
}

// IsMarkdown reports whether path carries the ".md" extension.
func IsMarkdown(path string) bool {
	return filepath.Ext(path) == ".md"
}

// Confine resolves p against root and rejects any result that escapes it.
// Absolute inputs are accepted only when they already lie under root.
func Confine(root, p string) (string, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("storage: resolve root: %w", err)
	}
	if p == "" {
		return absRoot, nil
	}
	cleaned := filepath.Clean(filepath.FromSlash(p))
	if !filepath.IsAbs(cleaned) {
		cleaned = filepath.Join(absRoot, cleaned)
	}
	if !strings.HasPrefix(cleaned, absRoot+string(os.PathSeparator)) && cleaned != absRoot {
		return "", fmt.Errorf("storage: path escapes root: %s", p)
	}
	return cleaned, nil
}

// MarkdownFiles walks root and returns every .md regular file in walk
// order. Entries that cannot be read are skipped rather than aborting.
// A root that is itself a symlink is followed; links below it are not.
// Returned paths keep the caller's spelling of root.
func (f *FS) MarkdownFiles(root string) []string {
	walkRoot := root
	if resolved, err := filepath.EvalSymlinks(root); err == nil {
		walkRoot = resolved
	}
	var out []string
	_ = filepath.WalkDir(walkRoot, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if d != nil && d.IsDir() && p != walkRoot {
				return fs.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || !IsMarkdown(p) {
			return nil
		}
		if walkRoot != root {
			rel, err := filepath.Rel(walkRoot, p)
			if err != nil {
				return nil
			}
			p = filepath.Join(root, rel)
		}
		out = append(out, p)
		return nil
	})
	return out
}

// List returns metadata for every readable .md file under root.
func (f *FS) List(root string) ([]models.DocumentMeta, error) {
	if _, err := os.Stat(root); err != nil {
		return nil, fmt.Errorf("storage: list: %w", err)
	}
	var out []models.DocumentMeta
	for _, p := range f.MarkdownFiles(root) {
		info, err := os.Stat(p)
		if err != nil {
			continue
		}
		sum, err := checksum.File(p)
		if err != nil {
			continue
		}
		out = append(out, models.DocumentMeta{
			Path:      p,
			Checksum:  sum,
			UpdatedAt: info.ModTime(),
		})
	}
	return out, nil
}

// Read returns the raw bytes of a file.
func (f *FS) Read(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("storage: read %s: %w", path, err)
	}
	return data, nil
}

// Write atomically writes content: tmp file → fsync → rename. The mode of
// an existing file at path is carried over.
func (f *FS) Write(path string, content []byte) error {
	perm := os.FileMode(0o644)
	if info, err := os.Stat(path); err == nil {
		perm = info.Mode().Perm()
	}
	return writeAtomic(path, content, perm)
}

// Copy atomically copies src to dst with src's permission bits.
func (f *FS) Copy(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("storage: copy %s: %w", src, err)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("storage: copy %s: not a regular file", src)
	}
	data, err := os.ReadFile(src)
	if err != nil {
		return fmt.Errorf("storage: copy %s: %w", src, err)
	}
	return writeAtomic(dst, data, info.Mode().Perm())
}

// Delete removes a file.
func (f *FS) Delete(path string) error {
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("storage: delete %s: %w", path, err)
	}
	return nil
}

// MkdirAll creates dir and any missing parents.
func (f *FS) MkdirAll(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("storage: mkdir %s: %w", dir, err)
	}
	return nil
}

// Exists reports whether anything, including a dangling symlink, is at path.
func (f *FS) Exists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}

func writeAtomic(path string, content []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".mdref-tmp-*")
	if err != nil {
		return fmt.Errorf("storage: create temp: %w", err)
	}
	tmpName := tmp.Name()

	// Clean up on any failure path.
	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(content); err != nil {
		return fmt.Errorf("storage: write temp: %w", err)
	}
	if err := tmp.Chmod(perm); err != nil {
		return fmt.Errorf("storage: chmod temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("storage: fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("storage: close temp: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("storage: rename: %w", err)
	}
	success = true
	return nil
}
