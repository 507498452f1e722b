// Package handlers provides HTTP handlers for the portfolio ledger and its calculations.
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/aristath/tradesim/internal/clock"
	"github.com/aristath/tradesim/internal/domain"
	"github.com/aristath/tradesim/internal/modules/portfolio"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Handler handles portfolio HTTP requests
type Handler struct {
	portfolio *portfolio.Portfolio
	clock     clock.Clock
	log       zerolog.Logger
}

// NewHandler creates a new portfolio handler
func NewHandler(p *portfolio.Portfolio, c clock.Clock, log zerolog.Logger) *Handler {
	return &Handler{
		portfolio: p,
		clock:     c,
		log:       log.With().Str("handler", "portfolio").Logger(),
	}
}

// TransactionRequest is the body of POST /portfolio/transactions
type TransactionRequest struct {
	Date       string          `json:"date"`
	OrderType  string          `json:"order_type"`
	Ticker     string          `json:"ticker"`
	Price      decimal.Decimal `json:"price"`
	Shares     decimal.Decimal `json:"shares"`
	Commission decimal.Decimal `json:"commission"`
}

// PositionResponse describes one ticker as of a date
type PositionResponse struct {
	Ticker      string              `json:"ticker"`
	Shares      decimal.Decimal     `json:"shares"`
	LongShares  decimal.Decimal     `json:"long_shares"`
	ShortShares decimal.Decimal     `json:"short_shares"`
	OpenLots    []portfolio.Lot     `json:"open_lots"`
	Holdings    []portfolio.Holding `json:"holdings"`
	Summary     portfolio.Summary   `json:"summary"`
}

// HandleAddTransaction records a cash or share transaction
func (h *Handler) HandleAddTransaction(w http.ResponseWriter, r *http.Request) {
	var req TransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	date, err := parseDate(req.Date, h.clock.Now())
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	orderType, err := domain.OrderTypeFromString(req.OrderType)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	tx, err := domain.NewTransaction(date, orderType, req.Ticker, req.Price, req.Shares, req.Commission)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.portfolio.AddTransaction(tx); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, portfolio.ErrInsufficientShares) || errors.Is(err, domain.ErrInvalidTransaction) {
			status = http.StatusUnprocessableEntity
		}
		h.writeError(w, status, err.Error())
		return
	}

	h.log.Info().
		Str("order_type", string(tx.OrderType)).
		Str("ticker", tx.Ticker).
		Str("shares", tx.Shares.String()).
		Msg("Transaction recorded")

	h.writeJSON(w, http.StatusCreated, tx)
}

// HandleGetTransactions returns the full ledger in settlement order
func (h *Handler) HandleGetTransactions(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.portfolio.Transactions())
}

// HandleGetHoldings returns the closed holdings as of ?date=
func (h *Handler) HandleGetHoldings(w http.ResponseWriter, r *http.Request) {
	date, err := parseDate(r.URL.Query().Get("date"), h.clock.Now())
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, portfolio.ComputeHoldings(h.portfolio, date))
}

// HandleGetSummary returns every basket calculation for the whole portfolio
func (h *Handler) HandleGetSummary(w http.ResponseWriter, r *http.Request) {
	date, err := parseDate(r.URL.Query().Get("date"), h.clock.Now())
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"summary":        portfolio.Summarize(h.portfolio, date),
		"available_cash": h.portfolio.GetAvailableCash(date),
		"positions":      len(h.portfolio.Positions()),
	})
}

// HandleGetPosition returns one ticker's shares, lots, holdings and summary
func (h *Handler) HandleGetPosition(w http.ResponseWriter, r *http.Request) {
	ticker := chi.URLParam(r, "ticker")
	date, err := parseDate(r.URL.Query().Get("date"), h.clock.Now())
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	pos := h.portfolio.GetPosition(ticker)
	if pos == nil {
		h.writeError(w, http.StatusNotFound, fmt.Sprintf("no position for %s", domain.NormalizeTicker(ticker)))
		return
	}

	h.writeJSON(w, http.StatusOK, PositionResponse{
		Ticker:      pos.Ticker(),
		Shares:      pos.Shares(date),
		LongShares:  pos.LongShares(date),
		ShortShares: pos.ShortShares(date),
		OpenLots:    pos.OpenLots(date),
		Holdings:    pos.Holdings(date),
		Summary:     portfolio.Summarize(pos, date),
	})
}

// HandleGetCash returns the available cash as of ?date=
func (h *Handler) HandleGetCash(w http.ResponseWriter, r *http.Request) {
	date, err := parseDate(r.URL.Query().Get("date"), h.clock.Now())
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"date":           date,
		"available_cash": h.portfolio.GetAvailableCash(date),
	})
}

// parseDate accepts YYYY-MM-DD or RFC3339; empty means fallback
func parseDate(value string, fallback time.Time) (time.Time, error) {
	if value == "" {
		return fallback, nil
	}
	if t, err := time.Parse("2006-01-02", value); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: expected YYYY-MM-DD or RFC3339", value)
	}
	return t, nil
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
