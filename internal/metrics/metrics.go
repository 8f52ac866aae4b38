// Package metrics computes performance statistics over a recorded portfolio
// value series and trade log: annualized return and volatility, interval
// drawdowns, trade win rate, and Kelly-criterion sizing. Every function is
// total over degenerate inputs (empty series, zero start values) and returns
// a zero sentinel instead of failing.
package metrics

import (
	"math"
	"time"

	"tidemark/internal/domain"
)

// tradingDaysPerYear is the fixed constant used to annualize daily
// volatility.
const tradingDaysPerYear = 250

// AnnualReturn computes the annualized return from a start value to an end
// value over totalDays calendar days: (end/start)^(365/days) - 1. It returns
// 0 when startValue <= 0 or totalDays <= 0, where the formula is undefined.
func AnnualReturn(startValue, endValue float64, totalDays int) float64 {
	if startValue <= 0 || totalDays <= 0 {
		return 0
	}
	return math.Pow(endValue/startValue, 365/float64(totalDays)) - 1
}

// AnnualVolatility computes the annualized volatility of a series of
// per-period fractional returns: the Bessel-corrected (n-1) sample standard
// deviation scaled by sqrt(250). Fewer than two observations yield 0.
func AnnualVolatility(returns []float64) float64 {
	n := len(returns)
	if n < 2 {
		return 0
	}
	mean := 0.0
	for _, r := range returns {
		mean += r
	}
	mean /= float64(n)

	ss := 0.0
	for _, r := range returns {
		d := r - mean
		ss += d * d
	}
	return math.Sqrt(ss/float64(n-1)) * math.Sqrt(tradingDaysPerYear)
}

// ValuePoint is one dated observation of a value series.
type ValuePoint struct {
	Date  time.Time
	Value float64
}

// DrawdownInterval is the maximum proportional decline from a running peak
// within one calendar bucket of the series.
type DrawdownInterval struct {
	Start    time.Time
	End      time.Time
	Drawdown float64
}

// Drawdown partitions the value series into consecutive calendar-month
// buckets of intervalMonths starting at the series' first date (the last
// bucket truncated to the last date), computes the max decline from the
// running peak within each bucket, and returns the bucket table together
// with the single worst bucket. A bucket without data has drawdown 0. The
// series must be in ascending date order; an empty series yields (nil, zero).
func Drawdown(series []ValuePoint, intervalMonths int) ([]DrawdownInterval, DrawdownInterval) {
	if len(series) == 0 || intervalMonths <= 0 {
		return nil, DrawdownInterval{}
	}

	first := series[0].Date
	last := series[len(series)-1].Date

	var intervals []DrawdownInterval
	for start := first; !start.After(last); {
		end := start.AddDate(0, intervalMonths, 0).AddDate(0, 0, -1)
		if end.After(last) {
			end = last
		}

		maxDD := 0.0
		peak := math.Inf(-1)
		for _, pt := range series {
			if pt.Date.Before(start) || pt.Date.After(end) {
				continue
			}
			if pt.Value > peak {
				peak = pt.Value
			}
			if peak > 0 {
				if dd := (peak - pt.Value) / peak; dd > maxDD {
					maxDD = dd
				}
			}
		}

		intervals = append(intervals, DrawdownInterval{Start: start, End: end, Drawdown: maxDD})
		start = end.AddDate(0, 0, 1)
	}

	worst := intervals[0]
	for _, iv := range intervals[1:] {
		if iv.Drawdown > worst.Drawdown {
			worst = iv
		}
	}
	return intervals, worst
}

// WinRate scores the trade log per asset. An asset whose running signed
// quantity returns to exactly zero contributes a closed-trade sample, scored
// by the signed notional of its closing rows; an asset left with a positive
// open quantity contributes a floating-P&L sample, marked against lastPrice
// with the last trade's price as cost basis. The rate is wins over total
// samples; an empty trade log yields exactly 0.0.
func WinRate(trades []domain.Trade, lastPrice func(asset string) float64) float64 {
	if len(trades) == 0 {
		return 0
	}
	if lastPrice == nil {
		lastPrice = func(string) float64 { return 0 }
	}

	type assetState struct {
		cum        int64
		closedPnl  float64
		hasClosed  bool
		lastQty    int64 // running qty after the asset's final trade
		finalPrice float64
	}
	states := make(map[string]*assetState)
	var order []string // deterministic iteration, first-seen order

	for _, tr := range trades {
		st, ok := states[tr.Asset]
		if !ok {
			st = &assetState{}
			states[tr.Asset] = st
			order = append(order, tr.Asset)
		}
		st.cum += tr.Quantity
		if st.cum == 0 {
			st.closedPnl += float64(tr.Quantity) * tr.Price
			st.hasClosed = true
		}
		st.lastQty = st.cum
		st.finalPrice = tr.Price
	}

	wins, total := 0, 0
	for _, asset := range order {
		st := states[asset]
		if st.hasClosed {
			total++
			if st.closedPnl > 0 {
				wins++
			}
		}
		if st.lastQty > 0 {
			total++
			floating := (lastPrice(asset) - st.finalPrice) * float64(st.lastQty)
			if floating > 0 {
				wins++
			}
		}
	}
	if total == 0 {
		return 0
	}
	return float64(wins) / float64(total)
}

// KellyCriterion computes the optimal bet fraction
//
//	f = winRate/|loseReward| - loseRate/winReward
//
// where loseReward is conventionally stored as a negative mean loss and is
// normalized to its absolute value. winReward == 0 returns 0 (no payoff
// evidence to size against); loseReward == 0 returns 1 (no observed losses,
// cap at full allocation instead of dividing by zero).
func KellyCriterion(winRate, winReward, loseReward float64) float64 {
	if winReward == 0 {
		return 0
	}
	loseReward = math.Abs(loseReward)
	if loseReward == 0 {
		return 1
	}
	return winRate/loseReward - (1-winRate)/winReward
}
