package analysis

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/aristath/tradesim/internal/clock"
	"github.com/aristath/tradesim/internal/domain"
	"github.com/aristath/tradesim/internal/events"
	"github.com/aristath/tradesim/internal/modules/historical"
	"github.com/aristath/tradesim/internal/modules/portfolio"
	"github.com/aristath/tradesim/internal/modules/trading"
	"github.com/rs/zerolog"
)

// ErrAlreadyRunning is returned when a run overlaps another
var ErrAlreadyRunning = errors.New("analysis already running")

// InFlightOrders lists orders the lifecycle engine has accepted but not yet
// filled, cancelled or expired
type InFlightOrders interface {
	GetOpenOrders() []domain.Order
}

// AnalysisJob runs the analyzer over every priced ticker and submits the
// resulting orders through the trade manager
type AnalysisJob struct {
	analyzer     *Analyzer
	portfolio    *portfolio.Portfolio
	prices       historical.PriceProvider
	trades       *trading.TradeManager
	engine       InFlightOrders
	clock        clock.Clock
	lookbackDays int
	eventManager *events.Manager
	log          zerolog.Logger

	running sync.Mutex
}

// AnalysisJobConfig holds the job's dependencies
type AnalysisJobConfig struct {
	Analyzer     *Analyzer
	Portfolio    *portfolio.Portfolio
	Prices       historical.PriceProvider
	Trades       *trading.TradeManager
	Engine       InFlightOrders // optional
	Clock        clock.Clock
	LookbackDays int
	EventManager *events.Manager
}

// NewAnalysisJob creates the job. LookbackDays below one is treated as one.
func NewAnalysisJob(cfg AnalysisJobConfig, log zerolog.Logger) *AnalysisJob {
	if cfg.LookbackDays < 1 {
		cfg.LookbackDays = 1
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real{}
	}
	return &AnalysisJob{
		analyzer:     cfg.Analyzer,
		portfolio:    cfg.Portfolio,
		prices:       cfg.Prices,
		trades:       cfg.Trades,
		engine:       cfg.Engine,
		clock:        cfg.Clock,
		lookbackDays: cfg.LookbackDays,
		eventManager: cfg.EventManager,
		log:          log.With().Str("job", "analysis").Logger(),
	}
}

// Name returns the job name
func (j *AnalysisJob) Name() string {
	return "analysis"
}

// Now returns the job clock's current time
func (j *AnalysisJob) Now() time.Time {
	return j.clock.Now()
}

// OpenOrders returns every order new orders must be netted against: the
// brokerage's open orders after a refresh, followed by the engine's
// in-flight orders. An order known to both appears once.
func (j *AnalysisJob) OpenOrders() ([]*domain.Order, error) {
	if err := j.trades.RefreshFromBrokerage(); err != nil {
		return nil, fmt.Errorf("failed to load open orders: %w", err)
	}
	open := j.trades.OpenOrders()
	if j.engine == nil {
		return open, nil
	}

	seen := make(map[string]bool, len(open))
	for _, order := range open {
		seen[order.ID] = true
	}
	for _, order := range j.engine.GetOpenOrders() {
		if seen[order.ID] {
			continue
		}
		open = append(open, &order)
	}
	return open, nil
}

// Window returns the [start, end] range a run at now analyzes. start is
// midnight UTC lookbackDays before now, so daily closes at the window's edge
// are included.
func (j *AnalysisJob) Window(now time.Time) (time.Time, time.Time) {
	y, m, d := now.UTC().Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -j.lookbackDays)
	return start, now
}

// Run analyzes every ticker once
func (j *AnalysisJob) Run() error {
	if !j.running.TryLock() {
		return ErrAlreadyRunning
	}
	defer j.running.Unlock()

	openOrders, err := j.OpenOrders()
	if err != nil {
		return err
	}
	start, end := j.Window(j.clock.Now())

	var (
		orders  []*domain.Order
		tickers []string
	)
	for _, ticker := range j.prices.Tickers() {
		series, err := j.prices.GetPriceSeries(ticker)
		if err != nil {
			j.log.Warn().Err(err).Str("ticker", ticker).Msg("Skipping ticker without prices")
			continue
		}

		generated, err := j.analyzer.DetermineOrdersFor(j.portfolio, series, start, end, openOrders)
		if err != nil {
			return fmt.Errorf("failed to analyze %s: %w", ticker, err)
		}
		if len(generated) > 0 {
			orders = append(orders, generated...)
			tickers = append(tickers, ticker)
		}
	}

	if len(orders) > 0 {
		if err := j.trades.SubmitOrders(orders); err != nil {
			return fmt.Errorf("failed to submit generated orders: %w", err)
		}
		if err := j.trades.RefreshFromBrokerage(); err != nil {
			return fmt.Errorf("failed to refresh open orders: %w", err)
		}
	}

	j.log.Info().
		Int("orders", len(orders)).
		Strs("tickers", tickers).
		Time("start", start).
		Time("end", end).
		Msg("Analysis complete")

	if j.eventManager != nil {
		j.eventManager.EmitTyped("analysis", &events.OrdersGeneratedData{
			Count:   len(orders),
			Tickers: tickers,
			Start:   start.Format(time.RFC3339),
			End:     end.Format(time.RFC3339),
		})
	}
	return nil
}
