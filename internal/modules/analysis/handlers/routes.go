package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers the analysis routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/analysis", func(r chi.Router) {
		r.Get("/{ticker}", h.HandlePreview) // Dry-run the analyzer for one ticker
	})
}
