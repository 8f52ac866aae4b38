package backtest

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"strings"
	"testing"
	"time"

	"tidemark/internal/domain"
	"tidemark/internal/market"
	"tidemark/internal/portfolio"
	"tidemark/internal/sizing"
	"tidemark/internal/strategy"
)

func day(d int) time.Time {
	return time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC)
}

func bar(sym string, d int, close float64) domain.Bar {
	return domain.Bar{Symbol: sym, TradeDate: day(d), Open: close, High: close, Low: close, Close: close, Volume: 1000}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// scriptedStrategy replays a fixed signal schedule keyed by date.
type scriptedStrategy struct {
	script map[time.Time][]domain.Signal
}

func (s *scriptedStrategy) Name() string { return "scripted" }

func (s *scriptedStrategy) GenerateSignals(_ context.Context, date time.Time) ([]domain.Signal, error) {
	return s.script[date], nil
}

// passthroughSizing turns each BUY/SELL signal into a fixed-quantity order
// at the day's close.
func passthroughSizing(qty int64) sizing.Manager {
	return sizing.Func(func(signals []domain.Signal, p *portfolio.Portfolio, prices map[string]float64, date time.Time) ([]domain.Order, error) {
		var orders []domain.Order
		for _, sig := range signals {
			price, ok := prices[sig.Symbol]
			if !ok {
				continue
			}
			switch sig.Action {
			case domain.SignalBuy:
				orders = append(orders, domain.Order{Date: date, Asset: sig.Symbol, Side: domain.OrderBuy, Quantity: qty, TradePrice: price})
			case domain.SignalSell:
				orders = append(orders, domain.Order{Date: date, Asset: sig.Symbol, Side: domain.OrderSell, Quantity: qty, TradePrice: price})
			}
		}
		return orders, nil
	})
}

func TestRunBuyHoldSell(t *testing.T) {
	bars := []domain.Bar{
		bar("AAA", 1, 10), bar("AAA", 2, 12), bar("AAA", 3, 15),
	}
	hub := market.NewHub(bars, nil, quietLogger())

	strat := &scriptedStrategy{script: map[time.Time][]domain.Signal{
		day(1): {{TradeDate: day(1), Symbol: "AAA", Action: domain.SignalBuy}},
		day(3): {{TradeDate: day(3), Symbol: "AAA", Action: domain.SignalSell}},
	}}
	pf := portfolio.New(10000)
	eng := New(hub, strat, passthroughSizing(100), pf, WithLogger(quietLogger()))

	res, err := eng.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := len(res.Records); got != 3 {
		t.Fatalf("records = %d, want 3", got)
	}

	// Day 1: buy 100 @ 10, cash 9000, marked at close 10 so total stays 10000.
	// Day 2: marked at 12, total 10200. Day 3: sell 100 @ 15, total 10500.
	wantTotals := []float64{10000, 10200, 10500}
	for i, want := range wantTotals {
		if got := res.Records[i].TotalValue; got != want {
			t.Errorf("record %d total = %f, want %f", i, got, want)
		}
	}
	if got := res.Records[2].Cash; got != 10500 {
		t.Errorf("final cash = %f, want 10500", got)
	}

	if got := res.Records[0].Cumulative; got != 1.0 {
		t.Errorf("first cumulative = %f, want 1.0", got)
	}
	if got := res.Records[2].Cumulative; got != 1.05 {
		t.Errorf("final cumulative = %f, want 1.05", got)
	}
	if got := res.Records[1].Return; got != 200 {
		t.Errorf("day 2 return = %f, want 200", got)
	}
	if got := res.Records[1].ReturnPct; got != 0.02 {
		t.Errorf("day 2 return pct = %f, want 0.02", got)
	}

	// One closed round trip. Closed samples score by the closing rows'
	// signed notional, and a closing sell is negative, so this counts as
	// a loss.
	if got := res.Metrics.WinRate; got != 0.0 {
		t.Errorf("win rate = %f, want 0.0", got)
	}
	if len(pf.Positions()) != 0 {
		t.Errorf("positions remaining = %d, want 0", len(pf.Positions()))
	}
}

func TestRunSellFirstFreesCash(t *testing.T) {
	// Holding AAA, switching into BBB. With 0 free cash the buy can only
	// succeed if the sell executes first.
	bars := []domain.Bar{
		bar("AAA", 1, 10), bar("BBB", 1, 10),
		bar("AAA", 2, 10), bar("BBB", 2, 10),
	}
	hub := market.NewHub(bars, nil, quietLogger())

	strat := &scriptedStrategy{script: map[time.Time][]domain.Signal{
		day(1): {{TradeDate: day(1), Symbol: "AAA", Action: domain.SignalBuy}},
		day(2): {
			{TradeDate: day(2), Symbol: "BBB", Action: domain.SignalBuy},
			{TradeDate: day(2), Symbol: "AAA", Action: domain.SignalSell},
		},
	}}
	pf := portfolio.New(1000)
	eng := New(hub, strat, passthroughSizing(100), pf, WithLogger(quietLogger()))

	if _, err := eng.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if _, held := pf.Position("AAA"); held {
		t.Error("AAA still held, want sold")
	}
	if pos, held := pf.Position("BBB"); !held || pos.Quantity != 100 {
		t.Errorf("BBB position = %+v held=%v, want 100 shares", pos, held)
	}
}

func TestRunBuyFirstFailsWithoutCash(t *testing.T) {
	bars := []domain.Bar{
		bar("AAA", 1, 10), bar("BBB", 1, 10),
		bar("AAA", 2, 10), bar("BBB", 2, 10),
	}
	hub := market.NewHub(bars, nil, quietLogger())

	strat := &scriptedStrategy{script: map[time.Time][]domain.Signal{
		day(1): {{TradeDate: day(1), Symbol: "AAA", Action: domain.SignalBuy}},
		day(2): {
			{TradeDate: day(2), Symbol: "BBB", Action: domain.SignalBuy},
			{TradeDate: day(2), Symbol: "AAA", Action: domain.SignalSell},
		},
	}}
	pf := portfolio.New(1000)
	eng := New(hub, strat, passthroughSizing(100), pf,
		WithLogger(quietLogger()), WithExecutionOrder(BuyFirst))

	_, err := eng.Run(context.Background())
	if !errors.Is(err, portfolio.ErrInsufficientCash) {
		t.Fatalf("Run error = %v, want ErrInsufficientCash", err)
	}
}

func TestRunOnlyOnce(t *testing.T) {
	hub := market.NewHub([]domain.Bar{bar("AAA", 1, 10)}, nil, quietLogger())
	strat := &scriptedStrategy{}
	eng := New(hub, strat, passthroughSizing(1), portfolio.New(1000), WithLogger(quietLogger()))

	if _, err := eng.Run(context.Background()); err != nil {
		t.Fatalf("first Run: %v", err)
	}
	if _, err := eng.Run(context.Background()); !errors.Is(err, ErrAlreadyRun) {
		t.Fatalf("second Run error = %v, want ErrAlreadyRun", err)
	}
}

func TestRunStrategyErrorAborts(t *testing.T) {
	hub := market.NewHub([]domain.Bar{bar("AAA", 1, 10), bar("AAA", 2, 11)}, nil, quietLogger())
	boom := errors.New("feed corrupt")
	strat := strategy.Func{
		StrategyName: "failing",
		Generate: func(_ context.Context, date time.Time) ([]domain.Signal, error) {
			if date.Equal(day(2)) {
				return nil, boom
			}
			return nil, nil
		},
	}
	eng := New(hub, strat, passthroughSizing(1), portfolio.New(1000), WithLogger(quietLogger()))

	_, err := eng.Run(context.Background())
	if !errors.Is(err, boom) {
		t.Fatalf("Run error = %v, want wrapped strategy error", err)
	}
}

func TestRunWarnsOnFutureDatedSignal(t *testing.T) {
	hub := market.NewHub([]domain.Bar{bar("AAA", 1, 10), bar("AAA", 2, 11)}, nil, quietLogger())

	// Day 1 emits a signal stamped with day 2's date. The engine must flag it
	// but keep simulating.
	strat := &scriptedStrategy{script: map[time.Time][]domain.Signal{
		day(1): {{TradeDate: day(2), Symbol: "AAA", Action: domain.SignalBuy}},
	}}

	var logBuf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&logBuf, nil))
	pf := portfolio.New(10000)
	eng := New(hub, strat, passthroughSizing(100), pf, WithLogger(log))

	res, err := eng.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !strings.Contains(logBuf.String(), "possible lookahead") {
		t.Errorf("log output missing lookahead warning:\n%s", logBuf.String())
	}
	if got := len(res.Records); got != 2 {
		t.Errorf("records = %d, want 2 (run continues past the warning)", got)
	}
	if pos, ok := pf.Position("AAA"); !ok || pos.Quantity != 100 {
		t.Errorf("position = %+v, want 100 shares (order still executes)", pos)
	}
}

func TestRunBenchmarkSeries(t *testing.T) {
	daily := []domain.Bar{bar("AAA", 1, 10), bar("AAA", 2, 10), bar("AAA", 3, 10)}
	bench := []domain.Bar{
		bar("IDX", 1, 3000), bar("IDX", 2, 3300), bar("IDX", 3, 3150),
	}
	hub := market.NewHub(daily, bench, quietLogger())
	eng := New(hub, &scriptedStrategy{}, passthroughSizing(1), portfolio.New(1000), WithLogger(quietLogger()))

	res, err := eng.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	series, ok := res.BenchmarkSeries["IDX"]
	if !ok {
		t.Fatal("no benchmark series for IDX")
	}
	want := []float64{1.0, 1.1, 1.05}
	if len(series) != len(want) {
		t.Fatalf("series length = %d, want %d", len(series), len(want))
	}
	for i, w := range want {
		if math.Abs(series[i].Value-w) > 1e-12 {
			t.Errorf("series[%d] = %f, want %f", i, series[i].Value, w)
		}
	}
	if _, ok := res.BenchmarkMetrics["IDX"]; !ok {
		t.Error("no benchmark metrics for IDX")
	}
}

func TestRunEqualWeightEndToEnd(t *testing.T) {
	// MABias over a price path that dips below then rises above its mean,
	// sized with the stock EqualWeight manager.
	closes := []float64{100, 100, 100, 70, 70, 130, 130}
	var bars []domain.Bar
	for i, c := range closes {
		bars = append(bars, bar("600000", i+1, c))
	}
	hub := market.NewHub(bars, nil, quietLogger())

	strat := strategy.NewMABias(hub, strategy.MABiasParams{
		BuyWindow: 3, SellWindow: 3, BuyBias: -0.1, SellBias: 0.1,
	})
	pf := portfolio.New(100000)
	eng := New(hub, strat, sizing.NewEqualWeight(nil, quietLogger()), pf, WithLogger(quietLogger()))

	res, err := eng.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	log := pf.TradeLog()
	if len(log) != 2 {
		t.Fatalf("trade log length = %d, want buy then sell", len(log))
	}
	if log[0].Quantity <= 0 || log[1].Quantity >= 0 {
		t.Fatalf("trade log = %+v, want positive then negative quantity", log)
	}
	if log[0].Quantity%100 != 0 {
		t.Errorf("buy quantity = %d, want board-lot multiple", log[0].Quantity)
	}
	final := res.Records[len(res.Records)-1]
	if final.TotalValue <= 100000 {
		t.Errorf("final value = %f, want a profit on the dip buy", final.TotalValue)
	}
}
