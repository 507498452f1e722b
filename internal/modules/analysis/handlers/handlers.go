// Package handlers provides HTTP handlers for the analysis module.
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/aristath/tradesim/internal/domain"
	"github.com/aristath/tradesim/internal/modules/analysis"
	"github.com/aristath/tradesim/internal/modules/historical"
	"github.com/aristath/tradesim/internal/modules/portfolio"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// Handler previews analyzer decisions without submitting anything
type Handler struct {
	analyzer  *analysis.Analyzer
	job       *analysis.AnalysisJob
	portfolio *portfolio.Portfolio
	prices    historical.PriceProvider
	log       zerolog.Logger
}

// NewHandler creates a new analysis handler. job supplies the clock, the
// default window and the open orders to net against.
func NewHandler(
	analyzer *analysis.Analyzer,
	job *analysis.AnalysisJob,
	p *portfolio.Portfolio,
	prices historical.PriceProvider,
	log zerolog.Logger,
) *Handler {
	return &Handler{
		analyzer:  analyzer,
		job:       job,
		portfolio: p,
		prices:    prices,
		log:       log.With().Str("handler", "analysis").Logger(),
	}
}

// PreviewResponse is the body of GET /analysis/{ticker}
type PreviewResponse struct {
	Ticker     string          `json:"ticker"`
	Start      time.Time       `json:"start"`
	End        time.Time       `json:"end"`
	Momentum   *float64        `json:"momentum"`
	OpenOrders int             `json:"open_orders"`
	Orders     []*domain.Order `json:"orders"`
}

// HandlePreview handles GET /analysis/{ticker}?start=&end=.
// Without start and end the scheduled job's window ending now is used.
func (h *Handler) HandlePreview(w http.ResponseWriter, r *http.Request) {
	series, err := h.prices.GetPriceSeries(chi.URLParam(r, "ticker"))
	if err != nil {
		if errors.Is(err, historical.ErrNoPriceSeries) {
			h.writeError(w, http.StatusNotFound, err.Error())
			return
		}
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	start, end := h.job.Window(h.job.Now())
	if start, end, err = parseWindow(r, start, end); err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	openOrders, err := h.job.OpenOrders()
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to load open orders")
		h.writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	orders, err := h.analyzer.DetermineOrdersFor(h.portfolio, series, start, end, openOrders)
	if err != nil {
		h.log.Error().Err(err).Str("ticker", series.Ticker()).Msg("Analysis preview failed")
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if orders == nil {
		orders = []*domain.Order{}
	}

	h.writeJSON(w, http.StatusOK, PreviewResponse{
		Ticker:     series.Ticker(),
		Start:      start,
		End:        end,
		Momentum:   h.analyzer.Momentum(series, start, end),
		OpenOrders: len(openOrders),
		Orders:     orders,
	})
}

func parseWindow(r *http.Request, start, end time.Time) (time.Time, time.Time, error) {
	query := r.URL.Query()
	if raw := query.Get("start"); raw != "" {
		parsed, err := parseDate(raw)
		if err != nil {
			return start, end, err
		}
		start = parsed
	}
	if raw := query.Get("end"); raw != "" {
		parsed, err := parseDate(raw)
		if err != nil {
			return start, end, err
		}
		end = parsed
	}
	if end.Before(start) {
		return start, end, fmt.Errorf("end %s is before start %s", end.Format(time.RFC3339), start.Format(time.RFC3339))
	}
	return start, end, nil
}

// parseDate accepts YYYY-MM-DD or RFC3339
func parseDate(value string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02", value); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: expected YYYY-MM-DD or RFC3339", value)
	}
	return t, nil
}

// writeJSON writes a JSON response
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
