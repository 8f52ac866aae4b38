package strategy

import (
	"context"
	"math"
	"time"

	"tidemark/internal/domain"
	"tidemark/internal/market"
)

// Compile-time interface check.
var _ Strategy = (*MABias)(nil)

// MABiasParams configures the moving-average bias strategy. BuyWindow is
// typically much longer than SellWindow; BuyBias is negative (buy when price
// falls well below its long-run average) and SellBias positive (sell when
// price rises well above its short-run average).
type MABiasParams struct {
	BuyWindow  int     // rolling window for the buy-side mean, in bars
	SellWindow int     // rolling window for the sell-side mean, in bars
	BuyBias    float64 // e.g. -0.3
	SellBias   float64 // e.g. 0.15
}

// MABias is a mean-reversion strategy on the deviation from two rolling
// means of the close:
//
//	bias = (close - MA) / MA
//
// It emits BUY when the long-window bias falls below BuyBias and SELL when
// the short-window bias rises above SellBias. When both conditions hold on
// the same date, SELL wins. A rolling mean needs a full window of history;
// until then the bias is NaN and no signal is emitted.
type MABias struct {
	hub    *market.Hub
	params MABiasParams
}

// NewMABias creates the strategy over the given hub.
func NewMABias(hub *market.Hub, params MABiasParams) *MABias {
	return &MABias{hub: hub, params: params}
}

// Name returns "ma-bias".
func (s *MABias) Name() string { return "ma-bias" }

// GenerateSignals computes the bias signal for every symbol using only bars
// at or before date. The lookback fed to the rolling means is restricted to
// max(BuyWindow, SellWindow) bars ending at date, so no future row can enter
// the computation.
func (s *MABias) GenerateSignals(_ context.Context, date time.Time) ([]domain.Signal, error) {
	lookback := s.params.BuyWindow
	if s.params.SellWindow > lookback {
		lookback = s.params.SellWindow
	}

	var signals []domain.Signal
	for _, sym := range s.hub.Symbols() {
		bars, err := s.hub.Slice(market.SliceQuery{End: date, Symbol: sym})
		if err != nil {
			return nil, err
		}
		if len(bars) == 0 {
			continue
		}
		if len(bars) > lookback {
			bars = bars[len(bars)-lookback:]
		}

		closes := make([]float64, len(bars))
		for i, b := range bars {
			closes[i] = b.Close
		}
		last := bars[len(bars)-1]

		buyMA := trailingMean(closes, s.params.BuyWindow)
		sellMA := trailingMean(closes, s.params.SellWindow)
		buyBias := bias(last.Close, buyMA)
		sellBias := bias(last.Close, sellMA)

		sig := domain.Signal{
			TradeDate: last.TradeDate,
			Symbol:    sym,
			Action:    domain.SignalHold,
			Indicator: last.Close,
			BuyMA:     buyMA,
			SellMA:    sellMA,
			BuyBias:   buyBias,
			SellBias:  sellBias,
		}

		// SELL takes precedence when both conditions hold. NaN compares
		// false, so an unfilled window never fires either branch.
		switch {
		case sellBias > s.params.SellBias:
			sig.Action = domain.SignalSell
		case buyBias < s.params.BuyBias:
			sig.Action = domain.SignalBuy
		}
		signals = append(signals, sig)
	}
	return signals, nil
}

// trailingMean is the mean of the last window values, NaN until the window
// is full.
func trailingMean(vals []float64, window int) float64 {
	if window <= 0 || len(vals) < window {
		return math.NaN()
	}
	sum := 0.0
	for _, v := range vals[len(vals)-window:] {
		sum += v
	}
	return sum / float64(window)
}

// bias is the proportional deviation of x from its moving average.
func bias(x, ma float64) float64 {
	if math.IsNaN(ma) || ma == 0 {
		return math.NaN()
	}
	return (x - ma) / ma
}
