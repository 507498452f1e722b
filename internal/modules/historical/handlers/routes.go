package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all historical price routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/prices", func(r chi.Router) {
		r.Get("/", h.HandleListTickers)
		r.Get("/correlation", h.HandleGetCorrelationMatrix)

		r.Route("/{ticker}", func(r chi.Router) {
			r.Get("/", h.HandleGetPrices)
			r.Put("/", h.HandlePutPrices)
			r.Post("/", h.HandleMergePrices)
			r.Delete("/", h.HandleDeletePrices)
			r.Get("/close", h.HandleGetClose)
			r.Get("/returns", h.HandleGetReturns)
		})
	})
}
