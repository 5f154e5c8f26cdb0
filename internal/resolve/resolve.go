// Package resolve maps raw link targets to filesystem paths.
package resolve

import (
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// Link resolves target as written inside the document at docPath.
//
// Absolute targets are returned unchanged without an existence check.
// Relative targets are joined onto the document's directory and accepted
// only if the result exists; they are never retried against any other base.
func Link(docPath, target string) (string, bool) {
	if filepath.IsAbs(target) {
		return target, true
	}
	candidate := filepath.Join(filepath.Dir(docPath), filepath.FromSlash(target))
	if _, err := os.Stat(candidate); err != nil {
		return "", false
	}
	return candidate, true
}

// Canonical returns the absolute, symlink-free form of p. It fails if p
// does not exist.
func Canonical(p string) (string, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", err
	}
	return filepath.EvalSymlinks(abs)
}

// Absolute returns the lexical absolute form of p.
func Absolute(p string) (string, error) {
	return filepath.Abs(p)
}

// Relative returns the slash-separated path that leads from directory
// fromDir to to. Both arguments must be absolute.
func Relative(fromDir, to string) (string, error) {
	rel, err := filepath.Rel(fromDir, to)
	if err != nil {
		return "", err
	}
	return filepath.ToSlash(rel), nil
}

// Filename returns the final component of a raw link target, or "" when
// the target has none (empty, or ends in a separator or "..").
func Filename(target string) string {
	target = filepath.FromSlash(target)
	if target == "" || strings.HasSuffix(target, string(filepath.Separator)) {
		return ""
	}
	base := filepath.Base(target)
	if base == "." || base == ".." || base == string(filepath.Separator) {
		return ""
	}
	return base
}

// SplitFragment separates a trailing "#fragment" from a link target so
// that only the path part is resolved. A target that is nothing but a
// fragment is returned whole as the path.
func SplitFragment(target string) (string, string) {
	if i := strings.IndexByte(target, '#'); i > 0 {
		return target[:i], target[i:]
	}
	return target, ""
}

// IsExternal reports whether target is a URL with a scheme or a pure
// in-document fragment. Such targets never denote a file in the tree.
func IsExternal(target string) bool {
	if strings.HasPrefix(target, "#") {
		return true
	}
	u, err := url.Parse(target)
	if err != nil {
		return false
	}
	// A single-letter scheme is a Windows drive letter, not a URL.
	return len(u.Scheme) > 1
}
