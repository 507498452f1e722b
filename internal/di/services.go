package di

import (
	"fmt"

	"github.com/aristath/tradesim/internal/clock"
	"github.com/aristath/tradesim/internal/config"
	"github.com/aristath/tradesim/internal/domain"
	"github.com/aristath/tradesim/internal/events"
	"github.com/aristath/tradesim/internal/modules/analysis"
	"github.com/aristath/tradesim/internal/modules/historical"
	"github.com/aristath/tradesim/internal/modules/portfolio"
	"github.com/aristath/tradesim/internal/modules/trading"
	"github.com/rs/zerolog"
)

// InitializeServices creates the services on top of the opened databases.
// A nil container.Clock is replaced by the real clock.
func InitializeServices(container *Container, cfg *config.Config, log zerolog.Logger) error {
	if container.Clock == nil {
		container.Clock = clock.Real{}
	}

	container.EventBus = events.NewBus(log)
	container.EventManager = events.NewManager(container.EventBus, log)

	container.Portfolio = portfolio.NewPortfolio(container.Clock)
	container.Prices = historical.NewMemoryProvider()

	account, err := BuildAccount(cfg, container.Portfolio)
	if err != nil {
		return err
	}
	container.Account = account

	var opts []trading.EngineOption
	if cfg.FillDelay > 0 {
		opts = append(opts, trading.WithFillDelay(cfg.FillDelay))
	}
	container.Engine = trading.NewEngine(account, container.Clock, container.EventManager, log, opts...)

	container.OrderStore = trading.NewSQLiteOrderStore(container.OrdersDB, log)
	container.TradeManager = trading.NewTradeManager(container.OrderStore, log)

	container.Analyzer = analysis.NewAnalyzer(cfg.OrderLifetime, log)

	log.Info().
		Bool("margin", account.Features.IsMarginAccount()).
		Dur("fill_delay", cfg.FillDelay).
		Msg("Services initialized")

	return nil
}

// BuildAccount derives the account's features and commission schedule from config
func BuildAccount(cfg *config.Config, p *portfolio.Portfolio) (trading.Account, error) {
	features := trading.CashAccountFeatures()
	if cfg.MarginAccount {
		features = trading.MarginAccountFeatures(cfg.MarginLeverage, nil)
	}

	var commissions domain.CommissionSchedule = trading.FlatCommission{Amount: cfg.CommissionFlat}
	if cfg.CommissionTiers != "" {
		tiered, err := trading.ParseCommissionTiers(cfg.CommissionTiers)
		if err != nil {
			return trading.Account{}, fmt.Errorf("failed to parse commission tiers: %w", err)
		}
		commissions = tiered
	}

	return trading.Account{
		Features:    features,
		Commissions: commissions,
		Portfolio:   p,
	}, nil
}
