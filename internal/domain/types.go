// Package domain defines the core value types shared across the backtesting
// harness: bars, signals, orders, trade-log rows, and positions.
package domain

import (
	"errors"
	"fmt"
	"time"
)

// ---------------------------------------------------------------------------
// Bars
// ---------------------------------------------------------------------------

// Bar is one OHLCV price record for one symbol on one trading date. Close is
// the only field every data source is required to populate.
type Bar struct {
	Symbol    string
	TradeDate time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    int64
}

// ---------------------------------------------------------------------------
// Signals
// ---------------------------------------------------------------------------

// SignalAction is the categorical trading recommendation carried by a Signal.
type SignalAction string

const (
	SignalBuy  SignalAction = "BUY"
	SignalSell SignalAction = "SELL"
	SignalHold SignalAction = "" // no action; empty matches the hold convention
)

// Signal is a per-symbol, per-date trading recommendation plus the indicator
// diagnostics that produced it. A Signal emitted for simulation date T must
// have TradeDate <= T; later dates indicate lookahead bias.
type Signal struct {
	TradeDate time.Time
	Symbol    string
	Action    SignalAction

	// Diagnostics from the moving-average bias computation. NaN when the
	// rolling window had not filled yet.
	Indicator float64
	BuyMA     float64
	SellMA    float64
	BuyBias   float64
	SellBias  float64
}

// ---------------------------------------------------------------------------
// Orders
// ---------------------------------------------------------------------------

// OrderSide is the direction of an order.
type OrderSide string

const (
	OrderBuy  OrderSide = "BUY"
	OrderSell OrderSide = "SELL"
)

// Order validation errors, raised at construction time so a malformed order
// never reaches execution.
var (
	ErrOrderNoDate      = errors.New("order: missing date")
	ErrOrderNoAsset     = errors.New("order: missing asset")
	ErrOrderBadSide     = errors.New("order: side must be BUY or SELL")
	ErrOrderBadQuantity = errors.New("order: quantity must be a positive integer")
	ErrOrderBadPrice    = errors.New("order: trade price must be positive")
)

// Order is a concrete, sized instruction to buy or sell a quantity of a
// symbol at a price. Orders carry the trade price used for sizing so
// execution is fully deterministic without re-querying the market.
type Order struct {
	Date       time.Time
	Asset      string
	Side       OrderSide
	Quantity   int64
	TradePrice float64
}

// NewOrder constructs an Order, failing fast when any field is missing or
// out of range.
func NewOrder(date time.Time, asset string, side OrderSide, quantity int64, tradePrice float64) (Order, error) {
	o := Order{Date: date, Asset: asset, Side: side, Quantity: quantity, TradePrice: tradePrice}
	if err := o.Validate(); err != nil {
		return Order{}, err
	}
	return o, nil
}

// Validate checks the order field invariants.
func (o Order) Validate() error {
	switch {
	case o.Date.IsZero():
		return ErrOrderNoDate
	case o.Asset == "":
		return ErrOrderNoAsset
	case o.Side != OrderBuy && o.Side != OrderSell:
		return fmt.Errorf("%w: %q", ErrOrderBadSide, o.Side)
	case o.Quantity <= 0:
		return fmt.Errorf("%w: %d", ErrOrderBadQuantity, o.Quantity)
	case o.TradePrice <= 0:
		return fmt.Errorf("%w: %f", ErrOrderBadPrice, o.TradePrice)
	}
	return nil
}

// Notional returns quantity x trade price.
func (o Order) Notional() float64 {
	return float64(o.Quantity) * o.TradePrice
}

// ---------------------------------------------------------------------------
// Trade log
// ---------------------------------------------------------------------------

// Trade is one append-only trade-log row. Quantity is signed: positive for a
// buy, negative for a sell.
type Trade struct {
	Asset     string
	TradeDate time.Time
	Quantity  int64
	Price     float64
}

// ---------------------------------------------------------------------------
// Positions
// ---------------------------------------------------------------------------

// Position is the holding state for one symbol: an integer share quantity, a
// quantity-weighted average cost basis (recomputed on every buy, unchanged by
// sells), and the last price the position traded or was marked at, used as a
// valuation fallback on dates without a quote.
type Position struct {
	Asset     string
	Quantity  int64
	CostPrice float64
	LastPrice float64
}

// MarketValue returns quantity x price.
func (p Position) MarketValue(price float64) float64 {
	return float64(p.Quantity) * price
}
