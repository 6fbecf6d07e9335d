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

	// Ingestion.
	r.Post("/ingest", h.Ingest)
	r.Post("/ingest/raw", h.IngestRaw)

	// Mapping review surface.
	r.Get("/mappings", h.ListMappings)
	r.Get("/mappings/stats", h.MappingStats)
	r.Post("/mappings/confirm", h.ConfirmMapping)
	r.Post("/mappings/reject", h.RejectMapping)
	r.Post("/mappings/automatch", h.AutomaticMatch)

	// Taxonomy (read-only).
	r.Get("/taxonomy", h.TaxonomyRoots)
	r.Get("/taxonomy/search", h.TaxonomySearch)
	r.Get("/taxonomy/{id}", h.TaxonomyNode)

	// Stored products.
	r.Get("/products/search", h.SearchProducts)
	r.Get("/products/{key}", h.GetProduct)
	r.Get("/products/{key}/history", h.ProductHistory)

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
