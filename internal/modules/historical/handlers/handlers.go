// Package handlers provides HTTP handlers for historical price data.
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/aristath/tradesim/internal/events"
	"github.com/aristath/tradesim/internal/modules/historical"
	"github.com/aristath/tradesim/pkg/formulas"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Handler handles historical data HTTP requests
type Handler struct {
	provider     *historical.MemoryProvider
	eventManager *events.Manager
	log          zerolog.Logger
}

// NewHandler creates a new historical data handler
func NewHandler(
	provider *historical.MemoryProvider,
	eventManager *events.Manager,
	log zerolog.Logger,
) *Handler {
	return &Handler{
		provider:     provider,
		eventManager: eventManager,
		log:          log.With().Str("handler", "historical").Logger(),
	}
}

// PricePointRequest is one close in a PUT or POST body. Date is YYYY-MM-DD or RFC3339.
type PricePointRequest struct {
	Date  string          `json:"date"`
	Close decimal.Decimal `json:"close"`
}

// HandleListTickers handles GET /prices
func (h *Handler) HandleListTickers(w http.ResponseWriter, r *http.Request) {
	tickers := h.provider.Tickers()
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"tickers": tickers,
		"count":   len(tickers),
	})
}

// HandlePutPrices handles PUT /prices/{ticker}, replacing the whole series
func (h *Handler) HandlePutPrices(w http.ResponseWriter, r *http.Request) {
	ticker := chi.URLParam(r, "ticker")
	points, ok := h.decodePoints(w, r)
	if !ok {
		return
	}

	series, err := historical.NewPriceSeries(ticker, points)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.provider.Put(series)
	h.priceUpdated(series)
	h.writeJSON(w, http.StatusOK, seriesResponse(series, series.Points()))
}

// HandleMergePrices handles POST /prices/{ticker}, adding points to the series
func (h *Handler) HandleMergePrices(w http.ResponseWriter, r *http.Request) {
	ticker := chi.URLParam(r, "ticker")
	points, ok := h.decodePoints(w, r)
	if !ok {
		return
	}

	series, err := h.provider.Merge(ticker, points)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.priceUpdated(series)
	h.writeJSON(w, http.StatusOK, seriesResponse(series, series.Points()))
}

// HandleDeletePrices handles DELETE /prices/{ticker}
func (h *Handler) HandleDeletePrices(w http.ResponseWriter, r *http.Request) {
	ticker := chi.URLParam(r, "ticker")
	if !h.provider.Delete(ticker) {
		h.writeError(w, http.StatusNotFound, fmt.Sprintf("no price series for %s", ticker))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleGetPrices handles GET /prices/{ticker}?from=&to=
func (h *Handler) HandleGetPrices(w http.ResponseWriter, r *http.Request) {
	series, ok := h.lookup(w, r)
	if !ok {
		return
	}

	from, to, err := parseRange(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, seriesResponse(series, series.Closes(from, to)))
}

// HandleGetClose handles GET /prices/{ticker}/close?date=
func (h *Handler) HandleGetClose(w http.ResponseWriter, r *http.Request) {
	series, ok := h.lookup(w, r)
	if !ok {
		return
	}

	date := time.Now()
	if raw := r.URL.Query().Get("date"); raw != "" {
		parsed, err := parseDate(raw)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		date = parsed
	}

	price, found := series.Close(date)
	if !found {
		h.writeError(w, http.StatusNotFound, fmt.Sprintf("no close for %s on or before %s", series.Ticker(), date.Format("2006-01-02")))
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"ticker": series.Ticker(),
		"date":   date.Format("2006-01-02"),
		"close":  price,
	})
}

// HandleGetReturns handles GET /prices/{ticker}/returns?from=&to=
func (h *Handler) HandleGetReturns(w http.ResponseWriter, r *http.Request) {
	series, ok := h.lookup(w, r)
	if !ok {
		return
	}
	from, to, err := parseRange(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	points := series.Closes(from, to)
	returns := calculateReturns(points)
	closes := historical.Floats(points)

	var momentum interface{}
	if m := formulas.CalculateMomentum(closes); m != nil {
		momentum = *m
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"ticker":     series.Ticker(),
		"returns":    returns,
		"count":      len(returns),
		"momentum":   momentum,
		"volatility": formulas.AnnualizedVolatility(formulas.CalculateReturns(closes)),
	})
}

// HandleGetCorrelationMatrix handles GET /prices/correlation?tickers=A,B&from=&to=.
// Returns are aligned on the dates every series has a close for.
func (h *Handler) HandleGetCorrelationMatrix(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("tickers")
	if raw == "" {
		h.writeError(w, http.StatusBadRequest, "tickers parameter is required")
		return
	}
	from, to, err := parseRange(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var seriesList []*historical.PriceSeries
	for _, ticker := range strings.Split(raw, ",") {
		series, err := h.provider.GetPriceSeries(ticker)
		if err != nil {
			h.writeError(w, http.StatusNotFound, err.Error())
			return
		}
		seriesList = append(seriesList, series)
	}

	aligned := alignCloses(seriesList, from, to)
	matrix := make(map[string]map[string]float64, len(seriesList))
	for i, a := range seriesList {
		row := make(map[string]float64, len(seriesList))
		for j, b := range seriesList {
			row[b.Ticker()] = formulas.Correlation(
				formulas.CalculateReturns(aligned[i]),
				formulas.CalculateReturns(aligned[j]),
			)
		}
		matrix[a.Ticker()] = row
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"correlation_matrix": matrix,
		"observations":       len(aligned[0]),
	})
}

func (h *Handler) lookup(w http.ResponseWriter, r *http.Request) (*historical.PriceSeries, bool) {
	series, err := h.provider.GetPriceSeries(chi.URLParam(r, "ticker"))
	if err != nil {
		if errors.Is(err, historical.ErrNoPriceSeries) {
			h.writeError(w, http.StatusNotFound, err.Error())
		} else {
			h.writeError(w, http.StatusInternalServerError, err.Error())
		}
		return nil, false
	}
	return series, true
}

func (h *Handler) decodePoints(w http.ResponseWriter, r *http.Request) ([]historical.PricePoint, bool) {
	var reqs []PricePointRequest
	if err := json.NewDecoder(r.Body).Decode(&reqs); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return nil, false
	}

	points := make([]historical.PricePoint, 0, len(reqs))
	for _, req := range reqs {
		date, err := parseDate(req.Date)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, err.Error())
			return nil, false
		}
		points = append(points, historical.PricePoint{Date: date, Close: req.Close})
	}
	return points, true
}

func (h *Handler) priceUpdated(series *historical.PriceSeries) {
	h.log.Info().Str("ticker", series.Ticker()).Int("points", series.Len()).Msg("Price series updated")
	if h.eventManager != nil {
		h.eventManager.EmitTyped("historical", &events.PriceUpdatedData{
			Ticker: series.Ticker(),
			Points: series.Len(),
		})
	}
}

func seriesResponse(series *historical.PriceSeries, points []historical.PricePoint) map[string]interface{} {
	return map[string]interface{}{
		"ticker": series.Ticker(),
		"prices": points,
		"count":  len(points),
	}
}

// calculateReturns calculates fractional returns between consecutive closes
func calculateReturns(points []historical.PricePoint) []map[string]interface{} {
	returns := make([]map[string]interface{}, 0)

	for i := 1; i < len(points); i++ {
		previous := points[i-1].Close
		if previous.IsZero() {
			continue
		}
		returns = append(returns, map[string]interface{}{
			"date":   points[i].Date.Format("2006-01-02"),
			"return": points[i].Close.Sub(previous).Div(previous).InexactFloat64(),
		})
	}
	return returns
}

// alignCloses keeps only the dates present in every series
func alignCloses(seriesList []*historical.PriceSeries, from, to time.Time) [][]float64 {
	counts := make(map[time.Time]int)
	windows := make([][]historical.PricePoint, len(seriesList))
	for i, series := range seriesList {
		windows[i] = series.Closes(from, to)
		for _, p := range windows[i] {
			counts[p.Date.UTC()]++
		}
	}

	aligned := make([][]float64, len(seriesList))
	for i, window := range windows {
		closes := make([]float64, 0, len(window))
		for _, p := range window {
			if counts[p.Date.UTC()] == len(seriesList) {
				closes = append(closes, p.Close.InexactFloat64())
			}
		}
		aligned[i] = closes
	}
	return aligned
}

// parseRange reads ?from= and ?to=, defaulting to an unbounded range
func parseRange(r *http.Request) (time.Time, time.Time, error) {
	from := time.Time{}
	to := time.Date(9999, 12, 31, 0, 0, 0, 0, time.UTC)

	if raw := r.URL.Query().Get("from"); raw != "" {
		parsed, err := parseDate(raw)
		if err != nil {
			return from, to, err
		}
		from = parsed
	}
	if raw := r.URL.Query().Get("to"); raw != "" {
		parsed, err := parseDate(raw)
		if err != nil {
			return from, to, err
		}
		to = parsed
	}
	return from, to, nil
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
