package api

import (
	"net/http"

	"github.com/starford/mdref/internal/linkservice"
)

// Handler holds API route handlers.
type Handler struct {
	svc *linkservice.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *linkservice.Service) *Handler {
	return &Handler{svc: svc}
}

// References handles GET /api/references.
//
//	@Summary		Find every link that resolves to a document
//	@Tags			links
//	@Produce		json
//	@Param			path	query		string	true	"Document path relative to the tree root"
//	@Success		200		{object}	ReferencesResponse
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/references [get]
func (h *Handler) References(w http.ResponseWriter, r *http.Request) {
	path, ok := queryPath(w, r)
	if !ok {
		return
	}
	refs, err := h.svc.References(r.Context(), path)
	if err != nil {
		writeError(w, "find references", err)
		return
	}
	writeJSON(w, http.StatusOK, ReferencesResponse{Path: path, References: refs})
}

// Links handles GET /api/links.
//
//	@Summary		List every link inside a document
//	@Tags			links
//	@Produce		json
//	@Param			path	query		string	true	"Document path relative to the tree root"
//	@Success		200		{object}	LinksResponse
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/links [get]
func (h *Handler) Links(w http.ResponseWriter, r *http.Request) {
	path, ok := queryPath(w, r)
	if !ok {
		return
	}
	links, err := h.svc.Links(r.Context(), path)
	if err != nil {
		writeError(w, "find links", err)
		return
	}
	writeJSON(w, http.StatusOK, LinksResponse{Path: path, Links: links})
}

// Broken handles GET /api/broken.
//
//	@Summary		List relative links whose target is missing
//	@Tags			links
//	@Produce		json
//	@Success		200	{object}	BrokenResponse
//	@Security		BearerAuth
//	@Router			/broken [get]
func (h *Handler) Broken(w http.ResponseWriter, r *http.Request) {
	broken, err := h.svc.Broken(r.Context())
	if err != nil {
		writeError(w, "check links", err)
		return
	}
	writeJSON(w, http.StatusOK, BrokenResponse{Broken: broken})
}

// Backlinks handles GET /api/backlinks.
//
//	@Summary		Backlinks from the exported link graph
//	@Tags			links
//	@Produce		json
//	@Param			path	query		string	true	"Document path relative to the tree root"
//	@Success		200		{object}	BacklinksResponse
//	@Failure		404		{object}	errResponse
//	@Failure		503		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/backlinks [get]
func (h *Handler) Backlinks(w http.ResponseWriter, r *http.Request) {
	path, ok := queryPath(w, r)
	if !ok {
		return
	}
	links, err := h.svc.Backlinks(r.Context(), path)
	if err != nil {
		writeError(w, "backlinks", err)
		return
	}
	writeJSON(w, http.StatusOK, BacklinksResponse{Path: path, Backlinks: links})
}

// Move handles POST /api/move.
//
//	@Summary		Move a document and rewrite affected links
//	@Tags			move
//	@Accept			json
//	@Produce		json
//	@Param			body	body		MoveRequest	true	"Source and destination"
//	@Success		200		{object}	MoveReport
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/move [post]
func (h *Handler) Move(w http.ResponseWriter, r *http.Request) {
	var req MoveRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Old == "" || req.New == "" {
		writeFail(w, http.StatusBadRequest, codeBadRequest, "old and new are required")
		return
	}
	report, err := h.svc.Move(r.Context(), req.Old, req.New)
	if err != nil {
		writeError(w, "move", err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// Rename handles POST /api/rename.
//
//	@Summary		Rename a document within its directory
//	@Tags			move
//	@Accept			json
//	@Produce		json
//	@Param			body	body		RenameRequest	true	"Source and new file name"
//	@Success		200		{object}	MoveReport
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/rename [post]
func (h *Handler) Rename(w http.ResponseWriter, r *http.Request) {
	var req RenameRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Old == "" || req.Name == "" {
		writeFail(w, http.StatusBadRequest, codeBadRequest, "old and name are required")
		return
	}
	report, err := h.svc.Rename(r.Context(), req.Old, req.Name)
	if err != nil {
		writeError(w, "rename", err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}
