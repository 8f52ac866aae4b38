package portfolio

import (
	"errors"
	"testing"
	"time"

	"tidemark/internal/domain"
)

func day(d int) time.Time {
	return time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC)
}

func mustOrder(t *testing.T, date time.Time, asset string, side domain.OrderSide, qty int64, price float64) domain.Order {
	t.Helper()
	o, err := domain.NewOrder(date, asset, side, qty, price)
	if err != nil {
		t.Fatalf("NewOrder: %v", err)
	}
	return o
}

// staticQuotes is a fixed price table for valuation tests.
type staticQuotes map[string]float64

func (q staticQuotes) ClosePrice(_ time.Time, symbol string) (float64, bool) {
	p, ok := q[symbol]
	return p, ok
}

func TestBuySellScenario(t *testing.T) {
	// The canonical two-day scenario: 10,000 cash, buy 200 @ 10.0, then
	// sell 100 @ 12.0.
	p := New(10000)

	if err := p.Buy(mustOrder(t, day(1), "600000", domain.OrderBuy, 200, 10.0)); err != nil {
		t.Fatalf("Buy: %v", err)
	}
	if p.Cash() != 8000 {
		t.Errorf("cash after buy = %f, want 8000", p.Cash())
	}
	pos, ok := p.Position("600000")
	if !ok || pos.Quantity != 200 || pos.CostPrice != 10.0 {
		t.Errorf("position after buy = %+v, want qty 200 @ cost 10.0", pos)
	}

	if err := p.Sell(mustOrder(t, day(2), "600000", domain.OrderSell, 100, 12.0)); err != nil {
		t.Fatalf("Sell: %v", err)
	}
	if p.Cash() != 9200 {
		t.Errorf("cash after sell = %f, want 9200", p.Cash())
	}
	pos, _ = p.Position("600000")
	if pos.Quantity != 100 {
		t.Errorf("quantity after sell = %d, want 100", pos.Quantity)
	}
	// Cost basis is unchanged by sells.
	if pos.CostPrice != 10.0 {
		t.Errorf("cost price after sell = %f, want 10.0", pos.CostPrice)
	}
	if got := len(p.TradeLog()); got != 2 {
		t.Errorf("trade log length = %d, want 2", got)
	}
}

func TestBuyWeightedCostBasis(t *testing.T) {
	p := New(100000)
	p.Buy(mustOrder(t, day(1), "600000", domain.OrderBuy, 100, 10.0))
	p.Buy(mustOrder(t, day(2), "600000", domain.OrderBuy, 300, 14.0))

	pos, _ := p.Position("600000")
	// (100*10 + 300*14) / 400 = 13.0
	if pos.CostPrice != 13.0 {
		t.Errorf("weighted cost = %f, want 13.0", pos.CostPrice)
	}
	if pos.Quantity != 400 {
		t.Errorf("quantity = %d, want 400", pos.Quantity)
	}
}

func TestBuyInsufficientCash(t *testing.T) {
	p := New(1000)
	err := p.Buy(mustOrder(t, day(1), "600000", domain.OrderBuy, 200, 10.0))
	if !errors.Is(err, ErrInsufficientCash) {
		t.Errorf("Buy error = %v, want ErrInsufficientCash", err)
	}
	// A failed buy must leave the portfolio untouched.
	if p.Cash() != 1000 || len(p.TradeLog()) != 0 {
		t.Error("failed buy mutated the portfolio")
	}
}

func TestSellErrors(t *testing.T) {
	p := New(10000)
	err := p.Sell(mustOrder(t, day(1), "600000", domain.OrderSell, 100, 10.0))
	if !errors.Is(err, ErrUnknownPosition) {
		t.Errorf("Sell unknown error = %v, want ErrUnknownPosition", err)
	}

	p.Buy(mustOrder(t, day(1), "600000", domain.OrderBuy, 100, 10.0))
	err = p.Sell(mustOrder(t, day(2), "600000", domain.OrderSell, 200, 10.0))
	if !errors.Is(err, ErrInsufficientQuantity) {
		t.Errorf("Sell oversized error = %v, want ErrInsufficientQuantity", err)
	}
}

func TestSellToZeroRemovesPosition(t *testing.T) {
	p := New(10000)
	p.Buy(mustOrder(t, day(1), "600000", domain.OrderBuy, 100, 10.0))
	p.Sell(mustOrder(t, day(2), "600000", domain.OrderSell, 100, 11.0))

	if _, ok := p.Position("600000"); ok {
		t.Error("position should be removed when quantity reaches zero")
	}
	if len(p.Positions()) != 0 {
		t.Errorf("Positions() has %d entries, want 0", len(p.Positions()))
	}
}

func TestConservation(t *testing.T) {
	// cash_after + holdings valued at cost equals
	// cash_before - buy notional + sell notional for every step.
	p := New(50000)
	steps := []struct {
		side  domain.OrderSide
		qty   int64
		price float64
	}{
		{domain.OrderBuy, 300, 12.0},
		{domain.OrderBuy, 200, 15.0},
		{domain.OrderSell, 400, 14.0},
		{domain.OrderSell, 100, 16.0},
	}

	for i, s := range steps {
		cashBefore := p.Cash()
		o := mustOrder(t, day(i+1), "600000", s.side, s.qty, s.price)

		var err error
		var wantCash float64
		if s.side == domain.OrderBuy {
			err = p.Buy(o)
			wantCash = cashBefore - o.Notional()
		} else {
			err = p.Sell(o)
			wantCash = cashBefore + o.Notional()
		}
		if err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		if p.Cash() != wantCash {
			t.Errorf("step %d: cash = %f, want %f", i, p.Cash(), wantCash)
		}
	}
	if _, ok := p.Position("600000"); ok {
		t.Error("all shares sold, position should be gone")
	}
}

func TestTotalValueWithFallback(t *testing.T) {
	p := New(10000)
	p.Buy(mustOrder(t, day(1), "600000", domain.OrderBuy, 100, 10.0))

	// Quote available: marked at the quote.
	v := p.TotalValue(day(2), staticQuotes{"600000": 12.0})
	if v != 9000+1200 {
		t.Errorf("TotalValue with quote = %f, want 10200", v)
	}

	// No quote for the date: falls back to the last mark (12.0 from above).
	v = p.TotalValue(day(3), staticQuotes{})
	if v != 9000+1200 {
		t.Errorf("TotalValue with fallback = %f, want 10200", v)
	}
}

func TestTotalValueIdempotent(t *testing.T) {
	p := New(10000)
	p.Buy(mustOrder(t, day(1), "600000", domain.OrderBuy, 100, 10.0))
	q := staticQuotes{"600000": 11.5}

	v1 := p.TotalValue(day(2), q)
	v2 := p.TotalValue(day(2), q)
	if v1 != v2 {
		t.Errorf("TotalValue not idempotent: %f then %f", v1, v2)
	}
}
