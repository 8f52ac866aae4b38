// Package portfolio tracks cash, open positions, and the append-only trade
// log, and applies buy/sell orders to them. All mutation happens through Buy
// and Sell so the cash + holdings accounting can never drift.
package portfolio

import (
	"errors"
	"fmt"
	"time"

	"tidemark/internal/domain"
)

// Execution errors. Sizing an order down is the position manager's job; by
// the time an order reaches Buy or Sell these are fatal to the run.
var (
	ErrInsufficientCash     = errors.New("portfolio: not enough cash for buy order")
	ErrUnknownPosition      = errors.New("portfolio: no position held for asset")
	ErrInsufficientQuantity = errors.New("portfolio: sell quantity exceeds held quantity")
)

// PriceLookup resolves a reference close price for valuation.
type PriceLookup interface {
	ClosePrice(date time.Time, symbol string) (float64, bool)
}

// Portfolio holds available cash, the per-symbol positions, and the trade
// log. Create one per run with New; it is never reset mid-run.
type Portfolio struct {
	cash      float64
	positions map[string]*domain.Position
	trades    []domain.Trade
}

// New creates a Portfolio with the given initial cash.
func New(initialCash float64) *Portfolio {
	return &Portfolio{
		cash:      initialCash,
		positions: make(map[string]*domain.Position),
	}
}

// Cash returns the available cash.
func (p *Portfolio) Cash() float64 { return p.cash }

// Position returns a copy of the position for asset, if held.
func (p *Portfolio) Position(asset string) (domain.Position, bool) {
	pos, ok := p.positions[asset]
	if !ok {
		return domain.Position{}, false
	}
	return *pos, true
}

// Positions returns copies of all open positions.
func (p *Portfolio) Positions() []domain.Position {
	out := make([]domain.Position, 0, len(p.positions))
	for _, pos := range p.positions {
		out = append(out, *pos)
	}
	return out
}

// TradeLog returns a copy of the append-only trade log, in execution order.
func (p *Portfolio) TradeLog() []domain.Trade {
	return append([]domain.Trade(nil), p.trades...)
}

// LastPrice returns the last trade/mark price recorded for asset, or 0 when
// the asset was never held.
func (p *Portfolio) LastPrice(asset string) float64 {
	if pos, ok := p.positions[asset]; ok {
		return pos.LastPrice
	}
	return 0
}

// Buy applies a BUY order: deducts cash, creates or updates the position with
// the new weighted cost basis, and appends a positive-quantity trade-log row.
// The cash check duplicates the position manager's pre-check on purpose: this
// is the authoritative guard.
func (p *Portfolio) Buy(o domain.Order) error {
	if err := o.Validate(); err != nil {
		return err
	}
	cost := o.Notional()
	if cost > p.cash {
		return fmt.Errorf("%w: need %.2f, have %.2f", ErrInsufficientCash, cost, p.cash)
	}
	p.cash -= cost

	pos, ok := p.positions[o.Asset]
	if !ok {
		p.positions[o.Asset] = &domain.Position{
			Asset:     o.Asset,
			Quantity:  o.Quantity,
			CostPrice: o.TradePrice,
			LastPrice: o.TradePrice,
		}
	} else {
		newQty := pos.Quantity + o.Quantity
		pos.CostPrice = (float64(pos.Quantity)*pos.CostPrice + float64(o.Quantity)*o.TradePrice) / float64(newQty)
		pos.Quantity = newQty
		pos.LastPrice = o.TradePrice
	}

	p.trades = append(p.trades, domain.Trade{
		Asset:     o.Asset,
		TradeDate: o.Date,
		Quantity:  o.Quantity,
		Price:     o.TradePrice,
	})
	return nil
}

// Sell applies a SELL order: credits cash, decrements the position quantity
// (removing the position entirely at zero, cost basis unchanged otherwise),
// and appends a negative-quantity trade-log row.
func (p *Portfolio) Sell(o domain.Order) error {
	if err := o.Validate(); err != nil {
		return err
	}
	pos, ok := p.positions[o.Asset]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPosition, o.Asset)
	}
	if o.Quantity > pos.Quantity {
		return fmt.Errorf("%w: selling %d, holding %d of %s",
			ErrInsufficientQuantity, o.Quantity, pos.Quantity, o.Asset)
	}

	p.cash += o.Notional()
	pos.Quantity -= o.Quantity
	pos.LastPrice = o.TradePrice
	if pos.Quantity == 0 {
		delete(p.positions, o.Asset)
	}

	p.trades = append(p.trades, domain.Trade{
		Asset:     o.Asset,
		TradeDate: o.Date,
		Quantity:  -o.Quantity,
		Price:     o.TradePrice,
	})
	return nil
}

// AssetValue marks the open positions to market for the given date. When the
// lookup has no quote for a symbol on that date (holiday, suspension) the
// position's last recorded price is used instead, so valuation never gaps to
// zero on days without a quote.
func (p *Portfolio) AssetValue(date time.Time, quotes PriceLookup) float64 {
	total := 0.0
	for _, pos := range p.positions {
		price := pos.LastPrice
		if quotes != nil {
			if q, ok := quotes.ClosePrice(date, pos.Asset); ok {
				price = q
				pos.LastPrice = q
			}
		}
		total += pos.MarketValue(price)
	}
	return total
}

// TotalValue returns cash plus the marked value of all open positions.
func (p *Portfolio) TotalValue(date time.Time, quotes PriceLookup) float64 {
	return p.cash + p.AssetValue(date, quotes)
}
