package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all portfolio routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/portfolio", func(r chi.Router) {
		r.Get("/transactions", h.HandleGetTransactions)   // Full ledger
		r.Post("/transactions", h.HandleAddTransaction)   // Record cash or share transaction
		r.Get("/holdings", h.HandleGetHoldings)           // Closed FIFO holdings
		r.Get("/summary", h.HandleGetSummary)             // Basket calculations
		r.Get("/cash", h.HandleGetCash)                   // Available cash
		r.Get("/positions/{ticker}", h.HandleGetPosition) // Single ticker
	})
}
