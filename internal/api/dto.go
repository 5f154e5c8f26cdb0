package api

import (
	"github.com/starford/mdref/internal/models"
	"github.com/starford/mdref/internal/mover"
)

// MoveRequest is the request body for moving a document.
type MoveRequest struct {
	Old string `json:"old" example:"notes/draft.md" validate:"required"`
	New string `json:"new" example:"archive/2024/draft.md" validate:"required"`
}

// RenameRequest is the request body for renaming a document in place.
type RenameRequest struct {
	Old  string `json:"old" example:"notes/draft.md" validate:"required"`
	Name string `json:"name" example:"final.md" validate:"required"`
}

// ReferencesResponse lists the references to one document.
type ReferencesResponse struct {
	Path       string             `json:"path" example:"notes/draft.md" validate:"required"`
	References []models.Reference `json:"references" validate:"required"`
}

// LinksResponse lists the links inside one document.
type LinksResponse struct {
	Path  string             `json:"path" example:"notes/draft.md" validate:"required"`
	Links []models.Reference `json:"links" validate:"required"`
}

// BrokenResponse lists the broken links in the tree.
type BrokenResponse struct {
	Broken []models.Reference `json:"broken" validate:"required"`
}

// BacklinksResponse lists exported links that resolve to one document.
type BacklinksResponse struct {
	Path      string        `json:"path" example:"notes/draft.md" validate:"required"`
	Backlinks []models.Link `json:"backlinks" validate:"required"`
}

// MoveReport is the move summary (aliased from the domain layer).
type MoveReport = mover.Report
