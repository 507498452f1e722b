package trading

import (
	"fmt"
	"sync"
	"time"

	"github.com/aristath/tradesim/internal/clock"
	"github.com/aristath/tradesim/internal/domain"
	"github.com/aristath/tradesim/internal/events"
	"github.com/aristath/tradesim/internal/modules/portfolio"
	"github.com/rs/zerolog"
)

// SettlementJob books brokerage orders that have aged past conversion into
// the portfolio
type SettlementJob struct {
	brokerage    OrderStore
	portfolio    *portfolio.Portfolio
	clock        clock.Clock
	eventManager *events.Manager
	log          zerolog.Logger

	mu        sync.Mutex
	lastRun   time.Time
	unsettled []domain.Transaction
}

// NewSettlementJob creates the job. eventManager may be nil.
func NewSettlementJob(
	brokerage OrderStore,
	p *portfolio.Portfolio,
	c clock.Clock,
	eventManager *events.Manager,
	log zerolog.Logger,
) *SettlementJob {
	if c == nil {
		c = clock.Real{}
	}
	return &SettlementJob{
		brokerage:    brokerage,
		portfolio:    p,
		clock:        c,
		eventManager: eventManager,
		log:          log.With().Str("job", "settlement").Logger(),
	}
}

// Name returns the job name
func (j *SettlementJob) Name() string {
	return "settlement"
}

// Unsettled returns the converted transactions the portfolio has refused so
// far. They are retried on every run.
func (j *SettlementJob) Unsettled() []domain.Transaction {
	j.mu.Lock()
	defer j.mu.Unlock()

	out := make([]domain.Transaction, len(j.unsettled))
	copy(out, j.unsettled)
	return out
}

// Run converts aged orders and records the transactions. The brokerage never
// offers a converted order again, so a transaction the portfolio rejects
// (an oversell, say) is kept and retried on later runs until it fits.
func (j *SettlementJob) Run() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	now := j.clock.Now()
	txs, err := j.brokerage.GetTransactions(j.lastRun, now)
	if err != nil {
		return fmt.Errorf("failed to convert brokerage orders: %w", err)
	}
	j.lastRun = now

	// Earlier rejects first, in the order they were converted
	candidates := append(j.unsettled, txs...)
	j.unsettled = nil

	recorded := 0
	for _, tx := range candidates {
		if err := j.portfolio.AddTransaction(tx); err != nil {
			j.unsettled = append(j.unsettled, tx)
			j.log.Warn().
				Err(err).
				Str("ticker", tx.Ticker).
				Str("order_type", string(tx.OrderType)).
				Str("shares", tx.Shares.String()).
				Msg("Portfolio rejected settled transaction, will retry")
			continue
		}
		recorded++
		if j.eventManager != nil {
			j.eventManager.EmitTyped("trading", &events.TransactionRecordedData{
				OrderType:      string(tx.OrderType),
				Ticker:         tx.Ticker,
				Shares:         tx.Shares,
				Price:          tx.Price,
				SettlementDate: tx.SettlementDate,
			})
		}
	}

	if len(candidates) > 0 {
		j.log.Info().
			Int("converted", len(txs)).
			Int("recorded", recorded).
			Int("unsettled", len(j.unsettled)).
			Msg("Brokerage orders settled")
	}
	if len(txs) > 0 && j.eventManager != nil {
		j.eventManager.EmitTyped("trading", &events.BrokerageOrdersData{
			Type:  events.BrokerageOrdersConverted,
			Count: len(txs),
		})
	}
	return nil
}
