// Package sizing turns trading signals into concrete, executable orders. A
// Manager applies the capital-allocation and lot-size rules; by the time an
// order leaves Transform it must be safe to execute without further checks.
package sizing

import (
	"log/slog"
	"time"

	"tidemark/internal/domain"
	"tidemark/internal/portfolio"
)

// Manager converts the signals for one simulation date into orders, given the
// current portfolio state and the day's reference prices. Implementations
// must never emit a sell larger than the held quantity or buys whose combined
// notional exceeds available cash.
type Manager interface {
	Transform(signals []domain.Signal, p *portfolio.Portfolio, prices map[string]float64, date time.Time) ([]domain.Order, error)
}

// Func adapts a plain function to the Manager interface.
type Func func(signals []domain.Signal, p *portfolio.Portfolio, prices map[string]float64, date time.Time) ([]domain.Order, error)

// Transform calls f.
func (f Func) Transform(signals []domain.Signal, p *portfolio.Portfolio, prices map[string]float64, date time.Time) ([]domain.Order, error) {
	return f(signals, p, prices, date)
}

// Compile-time interface checks.
var _ Manager = (Func)(nil)
var _ Manager = (*EqualWeight)(nil)

// EqualWeight is the reference Manager:
//
//   - SELL signals liquidate the entire held quantity, no partial sells.
//   - Available cash is split equally across all BUY signals of the step and
//     each allocation is floored to the symbol's lot multiple. The split is
//     computed once up front and not replenished as buys consume cash within
//     the step; this same-step over-allocation is a documented approximation,
//     kept because correcting it changes simulation results.
//   - Allocations below one lot produce no order. That is an expected
//     outcome, not an error.
type EqualWeight struct {
	lots LotClassifier
	log  *slog.Logger
}

// NewEqualWeight creates an EqualWeight manager. A nil classifier defaults to
// CNBoardLots.
func NewEqualWeight(lots LotClassifier, logger *slog.Logger) *EqualWeight {
	if lots == nil {
		lots = CNBoardLots
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &EqualWeight{lots: lots, log: logger.With("component", "sizing")}
}

// Transform implements Manager.
func (m *EqualWeight) Transform(signals []domain.Signal, p *portfolio.Portfolio, prices map[string]float64, date time.Time) ([]domain.Order, error) {
	var orders []domain.Order
	var buys []domain.Signal

	for _, sig := range signals {
		switch sig.Action {
		case domain.SignalSell:
			pos, held := p.Position(sig.Symbol)
			if !held || pos.Quantity <= 0 {
				continue
			}
			price, ok := prices[sig.Symbol]
			if !ok {
				m.log.Warn("no reference price for sell signal, skipping",
					"symbol", sig.Symbol, "date", date.Format("2006-01-02"))
				continue
			}
			o, err := domain.NewOrder(date, sig.Symbol, domain.OrderSell, pos.Quantity, price)
			if err != nil {
				return nil, err
			}
			orders = append(orders, o)
		case domain.SignalBuy:
			buys = append(buys, sig)
		}
	}

	if len(buys) == 0 || p.Cash() <= 0 {
		return orders, nil
	}

	// Equal split across all buy signals, computed once for the whole step.
	allocated := p.Cash() / float64(len(buys))
	for _, sig := range buys {
		price, ok := prices[sig.Symbol]
		if !ok {
			m.log.Warn("no reference price for buy signal, skipping",
				"symbol", sig.Symbol, "date", date.Format("2006-01-02"))
			continue
		}
		lot := m.lots(sig.Symbol)
		qty := lotQuantity(allocated, price, lot)
		if qty < lot {
			continue // allocation too small for one lot
		}
		o, err := domain.NewOrder(date, sig.Symbol, domain.OrderBuy, qty, price)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, nil
}

// lotQuantity converts allocated cash into a share count floored to the
// nearest lot multiple: floor(cash/price/lot) * lot.
func lotQuantity(cash, price float64, lot int64) int64 {
	if price <= 0 || lot <= 0 {
		return 0
	}
	return int64(cash/price) / lot * lot
}
