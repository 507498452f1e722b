package trading

import (
	"errors"
	"fmt"
	"time"

	"github.com/aristath/tradesim/internal/domain"
	"github.com/aristath/tradesim/internal/modules/portfolio"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

var (
	// ErrUnsupportedOrderType is returned when the account cannot place the order type
	ErrUnsupportedOrderType = errors.New("order type not supported by account")
	// ErrInvalidOrder is returned when an order makes no sense given current holdings
	ErrInvalidOrder = errors.New("invalid order")
)

// TradeSafetyService validates orders synchronously before they enter the
// fill pipeline
type TradeSafetyService struct {
	features  domain.AccountFeatures
	portfolio *portfolio.Portfolio
	log       zerolog.Logger
}

// NewTradeSafetyService creates a new trade safety service
func NewTradeSafetyService(features domain.AccountFeatures, p *portfolio.Portfolio, log zerolog.Logger) *TradeSafetyService {
	return &TradeSafetyService{
		features:  features,
		portfolio: p,
		log:       log.With().Str("service", "trade_safety").Logger(),
	}
}

// ValidateOrder runs every validation layer and returns the first failure.
// pending is the share count already committed by in-flight orders of the
// same type and ticker.
func (s *TradeSafetyService) ValidateOrder(order *domain.Order, asOf time.Time, pending decimal.Decimal) error {
	if order == nil {
		return fmt.Errorf("%w: order is nil", ErrInvalidOrder)
	}

	// Layer 0: construction rules
	if err := order.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidOrder, err)
	}

	// Layer 1: account features
	if !s.features.Supports(order.OrderType) {
		return fmt.Errorf("%w: %s", ErrUnsupportedOrderType, order.OrderType)
	}

	// Layer 2: short selling requires margin
	if order.OrderType == domain.OrderTypeSellShort && !s.features.IsMarginAccount() {
		return fmt.Errorf("%w: short selling %s requires a margin account", ErrInvalidOrder, order.Ticker)
	}

	// Layer 3: closing orders need an open position to close
	if err := s.validateClosingPosition(order, asOf, pending); err != nil {
		s.log.Debug().
			Err(err).
			Str("ticker", order.Ticker).
			Str("order_type", string(order.OrderType)).
			Msg("Order rejected")
		return err
	}

	return nil
}

func (s *TradeSafetyService) validateClosingPosition(order *domain.Order, asOf time.Time, pending decimal.Decimal) error {
	if !order.OrderType.IsClosing() {
		return nil
	}

	pos := s.portfolio.GetPosition(order.Ticker)
	if pos == nil {
		return fmt.Errorf("%w: no position in %s to %s", ErrInvalidOrder, order.Ticker, order.OrderType)
	}

	var held decimal.Decimal
	switch order.OrderType {
	case domain.OrderTypeSell:
		held = pos.LongShares(asOf)
	case domain.OrderTypeBuyToCover:
		held = pos.ShortShares(asOf)
	}

	available := held.Sub(pending)
	if order.Shares.GreaterThan(available) {
		return fmt.Errorf("%w: %s %s shares of %s but only %s available",
			ErrInvalidOrder, order.OrderType, order.Shares, order.Ticker, available)
	}
	return nil
}
