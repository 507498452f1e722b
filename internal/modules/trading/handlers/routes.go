package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all trading routes
func (h *TradingHandlers) RegisterRoutes(r chi.Router) {
	// Order lifecycle engine
	r.Route("/orders", func(r chi.Router) {
		r.Get("/", h.HandleGetOpenOrders)                  // Orders waiting to fill
		r.Post("/", h.HandleSubmitOrder)                   // Submit for execution
		r.Post("/wait", h.HandleWaitAll)                   // Block until drained
		r.Post("/validate", h.HandleValidateOrder)         // Dry-run validation
		r.Post("/commission", h.HandleCalculateCommission) // Commission quote
		r.Get("/{id}", h.HandleGetOrder)                   // State, status and fill
		r.Delete("/{id}", h.HandleCancelOrder)             // Cancel
	})

	// Brokerage order store
	r.Route("/brokerage", func(r chi.Router) {
		r.Get("/orders", h.HandleGetBrokerageOrders)             // Tracked open orders (?all=true for history)
		r.Post("/orders", h.HandleSubmitBrokerageOrders)         // Submit a batch
		r.Delete("/orders/{id}", h.HandleCancelBrokerageOrder)   // Cancel a tracked order
		r.Post("/refresh", h.HandleRefreshBrokerage)             // Merge brokerage open orders
		r.Get("/transactions", h.HandleGetBrokerageTransactions) // Convert aged orders
	})
}
