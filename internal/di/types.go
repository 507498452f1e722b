// Package di provides dependency injection type definitions.
//
// Container holds every long-lived component. It is the single source of
// truth for service instances and is passed to the HTTP server.
package di

import (
	"github.com/aristath/tradesim/internal/clock"
	"github.com/aristath/tradesim/internal/database"
	"github.com/aristath/tradesim/internal/events"
	"github.com/aristath/tradesim/internal/modules/analysis"
	"github.com/aristath/tradesim/internal/modules/historical"
	"github.com/aristath/tradesim/internal/modules/portfolio"
	"github.com/aristath/tradesim/internal/modules/trading"
	"github.com/aristath/tradesim/internal/reliability"
	"github.com/aristath/tradesim/internal/scheduler"
)

// Container holds all application dependencies
type Container struct {
	// Databases
	OrdersDB *database.DB // brokerage order store

	// Events
	EventBus     *events.Bus
	EventManager *events.Manager

	Clock clock.Clock

	// Ledger and market data
	Portfolio *portfolio.Portfolio
	Prices    *historical.MemoryProvider

	// Trading
	Account      trading.Account
	Engine       *trading.Engine
	OrderStore   trading.OrderStore
	TradeManager *trading.TradeManager

	// Analysis
	Analyzer *analysis.Analyzer

	// Jobs
	Scheduler     *scheduler.Scheduler
	AnalysisJob   *analysis.AnalysisJob
	SettlementJob *trading.SettlementJob
	BackupJob     *reliability.BackupJob // nil unless a backup bucket is configured
}

// Close releases the container's databases
func (c *Container) Close() error {
	if c.OrdersDB != nil {
		return c.OrdersDB.Close()
	}
	return nil
}
