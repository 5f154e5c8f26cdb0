package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/mdref/internal/linkservice"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(svc *linkservice.Service, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Resolution passes.
	r.Get("/references", h.References)
	r.Get("/links", h.Links)
	r.Get("/broken", h.Broken)
	r.Get("/backlinks", h.Backlinks)

	// Move transactions.
	r.Post("/move", h.Move)
	r.Post("/rename", h.Rename)

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
