package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"runtime"
	"time"

	"github.com/aristath/tradesim/internal/database"
	"github.com/aristath/tradesim/internal/modules/analysis"
	"github.com/aristath/tradesim/internal/modules/historical"
	"github.com/aristath/tradesim/internal/modules/trading"
	"github.com/aristath/tradesim/internal/scheduler"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// SystemHandlers serves host status and job control
type SystemHandlers struct {
	log       zerolog.Logger
	ordersDB  *database.DB
	engine    *trading.Engine
	prices    historical.PriceProvider
	scheduler *scheduler.Scheduler
	startedAt time.Time
}

// NewSystemHandlers creates new system handlers. Any dependency may be nil;
// its section of the status is then omitted.
func NewSystemHandlers(
	log zerolog.Logger,
	ordersDB *database.DB,
	engine *trading.Engine,
	prices historical.PriceProvider,
	sched *scheduler.Scheduler,
) *SystemHandlers {
	return &SystemHandlers{
		log:       log.With().Str("handler", "system").Logger(),
		ordersDB:  ordersDB,
		engine:    engine,
		prices:    prices,
		scheduler: sched,
		startedAt: time.Now(),
	}
}

// SystemStatusResponse is the body of GET /api/system/status
type SystemStatusResponse struct {
	Status        string          `json:"status"`
	UptimeSeconds float64         `json:"uptime_seconds"`
	CPUPercent    float64         `json:"cpu_percent"`
	RAMPercent    float64         `json:"ram_percent"`
	Goroutines    int             `json:"goroutines"`
	OpenOrders    int             `json:"open_orders"`
	Tickers       int             `json:"tickers"`
	Database      *DatabaseStatus `json:"database,omitempty"`
}

// DatabaseStatus reports the orders database health
type DatabaseStatus struct {
	Name    string `json:"name"`
	Path    string `json:"path"`
	Healthy bool   `json:"healthy"`
	Error   string `json:"error,omitempty"`
}

// HandleSystemStatus handles GET /api/system/status
func (h *SystemHandlers) HandleSystemStatus(w http.ResponseWriter, r *http.Request) {
	h.log.Debug().Msg("Getting system status")

	cpuPercent, ramPercent := h.getSystemStats()
	response := SystemStatusResponse{
		Status:        "healthy",
		UptimeSeconds: time.Since(h.startedAt).Seconds(),
		CPUPercent:    cpuPercent,
		RAMPercent:    ramPercent,
		Goroutines:    runtime.NumGoroutine(),
	}

	if h.engine != nil {
		response.OpenOrders = len(h.engine.GetOpenOrders())
	}
	if h.prices != nil {
		response.Tickers = len(h.prices.Tickers())
	}
	if h.ordersDB != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := &DatabaseStatus{Name: h.ordersDB.Name(), Path: h.ordersDB.Path(), Healthy: true}
		if err := h.ordersDB.QuickCheck(ctx); err != nil {
			status.Healthy = false
			status.Error = err.Error()
			response.Status = "degraded"
		}
		response.Database = status
	}

	writeJSON(w, http.StatusOK, response, h.log)
}

// getSystemStats returns CPU and RAM usage percentages.
// CPU is sampled over 100ms to keep the call responsive.
func (h *SystemHandlers) getSystemStats() (float64, float64) {
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get CPU percentage")
		cpuPercent = []float64{0}
	}

	memStat, err := mem.VirtualMemory()
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get memory statistics")
		return 0, 0
	}

	cpuAvg := 0.0
	if len(cpuPercent) > 0 {
		cpuAvg = cpuPercent[0]
	}

	return cpuAvg, memStat.UsedPercent
}

// HandleListJobs handles GET /api/jobs
func (h *SystemHandlers) HandleListJobs(w http.ResponseWriter, r *http.Request) {
	jobs := []scheduler.JobInfo{}
	if h.scheduler != nil {
		jobs = h.scheduler.Jobs()
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  jobs,
		"count": len(jobs),
	}, h.log)
}

// HandleTriggerJob handles POST /api/jobs/{name}, running the job
// synchronously
func (h *SystemHandlers) HandleTriggerJob(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if h.scheduler == nil {
		writeError(w, http.StatusServiceUnavailable, "scheduler not configured", h.log)
		return
	}

	h.log.Info().Str("job", name).Msg("Manual job trigger")

	started := time.Now()
	err := h.scheduler.RunByName(name)
	switch {
	case errors.Is(err, scheduler.ErrUnknownJob):
		writeError(w, http.StatusNotFound, err.Error(), h.log)
		return
	case errors.Is(err, analysis.ErrAlreadyRunning):
		writeError(w, http.StatusConflict, err.Error(), h.log)
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error(), h.log)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"job":      name,
		"status":   "completed",
		"duration": time.Since(started).Seconds(),
	}, h.log)
}

// writeJSON writes a JSON response
func writeJSON(w http.ResponseWriter, status int, data interface{}, log zerolog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

func writeError(w http.ResponseWriter, status int, message string, log zerolog.Logger) {
	writeJSON(w, status, map[string]string{"error": message}, log)
}
