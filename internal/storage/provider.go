// Package storage defines the file-system abstraction used by the
// resolution engine and the move transaction.
package storage

import "github.com/starford/mdref/internal/models"

// Provider is the interface for document file operations. Paths are used
// exactly as given; callers that need to confine input to a tree use
// Confine first.
type Provider interface {
	// MarkdownFiles returns every .md regular file under root, skipping
	// entries that cannot be traversed.
	MarkdownFiles(root string) []string
	// List returns metadata for every .md file under root.
	List(root string) ([]models.DocumentMeta, error)
	// Read returns the raw bytes of the file at path.
	Read(path string) ([]byte, error)
	// Write atomically writes content to path, keeping the mode of any
	// file it replaces.
	Write(path string, content []byte) error
	// Copy atomically copies src to dst, keeping src's mode.
	Copy(src, dst string) error
	// Delete removes the file at path.
	Delete(path string) error
	// MkdirAll creates dir and any missing parents.
	MkdirAll(dir string) error
	// Exists reports whether anything is present at path.
	Exists(path string) bool
}
