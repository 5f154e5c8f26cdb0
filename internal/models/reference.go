// Package models defines the domain types for mdref.
package models

import (
	"fmt"
	"time"
)

// Reference is one occurrence of a link token in a document. Line and
// Column index into the file content at the moment the reference was
// produced; any rewrite of the file invalidates them.
type Reference struct {
	Path     string `json:"path"`
	Line     int    `json:"line"`
	Column   int    `json:"column"`
	LinkText string `json:"link_text"`
}

// String formats the reference as "path:line:column - link_text".
func (r Reference) String() string {
	return fmt.Sprintf("%s:%d:%d - %s", r.Path, r.Line, r.Column, r.LinkText)
}

// Link is a resolved edge in the exported link graph.
type Link struct {
	Source   string `json:"source"`
	Line     int    `json:"line"`
	Column   int    `json:"column"`
	LinkText string `json:"link_text"`
	Target   string `json:"target,omitempty"` // canonical path, empty if unresolved
}

// DocumentMeta is a lightweight description of a document on disk.
type DocumentMeta struct {
	Path      string    `json:"path"`
	Checksum  string    `json:"checksum"`
	UpdatedAt time.Time `json:"updated_at"`
}
