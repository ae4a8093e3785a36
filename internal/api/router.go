package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(h *Handler, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Variables.
	r.Get("/resolve", h.Resolve)
	r.Get("/paths", h.Paths)
	r.Get("/properties", h.Properties)
	r.Put("/variables", h.SetVariable)
	r.Post("/overrides", h.SetOverride)

	// Rendering.
	r.Get("/render/*", h.Render)

	// Catalog.
	r.Get("/catalog/search", h.SearchCatalog)
	r.Get("/catalog/documents", h.DocumentsWhere)
	r.Get("/catalog/documents/*", h.DocumentProperties)

	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
