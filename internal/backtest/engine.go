package backtest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"tidemark/internal/domain"
	"tidemark/internal/market"
	"tidemark/internal/portfolio"
	"tidemark/internal/sizing"
	"tidemark/internal/strategy"
)

// ExecutionOrder controls how a day's orders are sequenced.
type ExecutionOrder string

const (
	// SellFirst frees cash before any buy is attempted. Default.
	SellFirst ExecutionOrder = "sell_first"
	// BuyFirst applies buys before sells.
	BuyFirst ExecutionOrder = "buy_first"
)

type runState int

const (
	stateNotStarted runState = iota
	stateRunning
	stateCompleted
)

// ErrAlreadyRun is returned when Run is called on an engine that has
// already executed.
var ErrAlreadyRun = errors.New("backtest: engine already run")

// Engine drives one single-pass simulation over the hub's timeline. Each
// date it asks the strategy for signals, sizes them into orders, applies the
// orders to the portfolio and records the day's valuation.
type Engine struct {
	hub      *market.Hub
	strat    strategy.Strategy
	manager  sizing.Manager
	pf       *portfolio.Portfolio
	obs      *Observer
	order    ExecutionOrder
	interval int
	log      *slog.Logger
	state    runState
}

// Option configures an Engine.
type Option func(*Engine)

// WithExecutionOrder overrides the default sell-first sequencing.
func WithExecutionOrder(order ExecutionOrder) Option {
	return func(e *Engine) { e.order = order }
}

// WithDrawdownInterval sets the calendar-month bucket width used for the
// drawdown table. Defaults to 3.
func WithDrawdownInterval(months int) Option {
	return func(e *Engine) { e.interval = months }
}

// WithLogger sets the engine logger.
func WithLogger(log *slog.Logger) Option {
	return func(e *Engine) { e.log = log }
}

// New builds an engine over the given market data, strategy, sizing manager
// and starting portfolio.
func New(hub *market.Hub, strat strategy.Strategy, manager sizing.Manager, pf *portfolio.Portfolio, opts ...Option) *Engine {
	e := &Engine{
		hub:      hub,
		strat:    strat,
		manager:  manager,
		pf:       pf,
		obs:      NewObserver(),
		order:    SellFirst,
		interval: 3,
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run executes the simulation once and finalizes the result. A failed step
// aborts the run immediately; the engine cannot be rerun either way.
func (e *Engine) Run(ctx context.Context) (*Result, error) {
	if e.state != stateNotStarted {
		return nil, ErrAlreadyRun
	}
	e.state = stateRunning

	timeline := e.hub.Timeline()
	e.log.Info("backtest starting",
		"strategy", e.strat.Name(),
		"dates", len(timeline),
		"cash", e.pf.Cash())

	for _, date := range timeline {
		if err := e.step(ctx, date); err != nil {
			e.state = stateCompleted
			return nil, fmt.Errorf("step %s: %w", date.Format("2006-01-02"), err)
		}
	}
	e.state = stateCompleted

	res := e.obs.Finalize(e.interval, e.pf.TradeLog(), e.pf.LastPrice)
	e.log.Info("backtest completed",
		"strategy", e.strat.Name(),
		"final_value", finalValue(res),
		"trades", len(e.pf.TradeLog()),
		"win_rate", res.Metrics.WinRate)
	return res, nil
}

func (e *Engine) step(ctx context.Context, date time.Time) error {
	signals, err := e.strat.GenerateSignals(ctx, date)
	if err != nil {
		return fmt.Errorf("generate signals: %w", err)
	}
	for _, sig := range signals {
		if sig.TradeDate.After(date) {
			e.log.Warn("signal dated after simulation date, possible lookahead",
				"symbol", sig.Symbol, "signal_date", sig.TradeDate, "date", date)
		}
	}

	prices := make(map[string]float64)
	for _, bar := range e.hub.Snapshot(date) {
		prices[bar.Symbol] = bar.Close
	}

	orders, err := e.manager.Transform(signals, e.pf, prices, date)
	if err != nil {
		return fmt.Errorf("size signals: %w", err)
	}
	if err := e.applyOrders(orders); err != nil {
		return err
	}

	e.obs.Record(date, e.pf.TotalValue(date, e.hub), e.pf.Cash())

	if bench := e.hub.BenchmarkSnapshot(date); len(bench) > 0 {
		closes := make(map[string]float64, len(bench))
		for _, bar := range bench {
			closes[bar.Symbol] = bar.Close
		}
		e.obs.RecordBenchmark(date, closes)
	}
	return nil
}

// applyOrders executes the day's orders against the portfolio, sequenced by
// the execution-order policy.
func (e *Engine) applyOrders(orders []domain.Order) error {
	sells := make([]domain.Order, 0, len(orders))
	buys := make([]domain.Order, 0, len(orders))
	for _, ord := range orders {
		if ord.Side == domain.OrderSell {
			sells = append(sells, ord)
		} else {
			buys = append(buys, ord)
		}
	}

	first, second := sells, buys
	if e.order == BuyFirst {
		first, second = buys, sells
	}
	for _, batch := range [][]domain.Order{first, second} {
		for _, ord := range batch {
			if err := e.apply(ord); err != nil {
				return err
			}
		}
	}
	return nil
}

func (e *Engine) apply(ord domain.Order) error {
	var err error
	switch ord.Side {
	case domain.OrderBuy:
		err = e.pf.Buy(ord)
	case domain.OrderSell:
		err = e.pf.Sell(ord)
	}
	if err != nil {
		return fmt.Errorf("apply %s %s qty=%d: %w", ord.Side, ord.Asset, ord.Quantity, err)
	}
	e.log.Info("order filled",
		"date", ord.Date.Format("2006-01-02"),
		"side", ord.Side, "asset", ord.Asset,
		"qty", ord.Quantity, "price", ord.TradePrice)
	return nil
}

func finalValue(res *Result) float64 {
	if len(res.Records) == 0 {
		return 0
	}
	return res.Records[len(res.Records)-1].TotalValue
}
