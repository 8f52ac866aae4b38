package backtest

import (
	"time"

	"tidemark/internal/domain"
	"tidemark/internal/metrics"
)

// Record is one per-date row of the recorded portfolio series.
type Record struct {
	Date       time.Time
	TotalValue float64
	Cash       float64
	Return     float64 // absolute change vs the previous record
	ReturnPct  float64 // fractional change vs the previous record
	Cumulative float64 // relative value, 1.0 at the first record
}

// Metrics is the finalized performance summary of one value series.
type Metrics struct {
	AnnualReturn     float64
	AnnualVolatility float64
	MaxDrawdown      float64
	MaxDrawdownStart time.Time
	MaxDrawdownEnd   time.Time
	WinRate          float64
}

// Result is the full output of a completed run: the recorded series, the
// finalized portfolio metrics with the per-interval drawdown table, and the
// per-benchmark series and metrics.
type Result struct {
	Records           []Record
	Metrics           Metrics
	DrawdownIntervals []metrics.DrawdownInterval

	// Benchmark close series normalized to 1.0 at each benchmark's first
	// recorded close, keyed by benchmark symbol, plus their metrics.
	BenchmarkSeries  map[string][]metrics.ValuePoint
	BenchmarkMetrics map[string]Metrics
}

// Observer accumulates the per-date records during the simulation loop and
// finalizes them into a Result once the loop terminates. Records are
// append-only; the Observer never looks ahead of what was recorded.
type Observer struct {
	records []Record

	benchOrder  []string
	benchSeries map[string][]metrics.ValuePoint
}

// NewObserver creates an empty Observer.
func NewObserver() *Observer {
	return &Observer{
		benchSeries: make(map[string][]metrics.ValuePoint),
	}
}

// Record appends one portfolio observation. Returns versus the previous day
// are zero on the first record; the cumulative series is normalized so the
// first record is exactly 1.0.
func (o *Observer) Record(date time.Time, totalValue, cash float64) {
	rec := Record{Date: date, TotalValue: totalValue, Cash: cash, Cumulative: 1.0}
	if n := len(o.records); n > 0 {
		prev := o.records[n-1]
		rec.Return = totalValue - prev.TotalValue
		if prev.TotalValue != 0 {
			rec.ReturnPct = rec.Return / prev.TotalValue
		}
		first := o.records[0].TotalValue
		if first != 0 {
			rec.Cumulative = totalValue / first
		}
	}
	o.records = append(o.records, rec)
}

// RecordBenchmark appends the day's benchmark closes, one per symbol. Each
// benchmark is normalized independently against its own first-seen close, so
// benchmarks joining the series late still start at 1.0.
func (o *Observer) RecordBenchmark(date time.Time, closes map[string]float64) {
	for sym, close := range closes {
		series, seen := o.benchSeries[sym]
		if !seen {
			o.benchOrder = append(o.benchOrder, sym)
		}
		o.benchSeries[sym] = append(series, metrics.ValuePoint{Date: date, Value: close})
	}
}

// Records returns the recorded portfolio rows.
func (o *Observer) Records() []Record {
	return o.records
}

// Finalize computes the performance metrics over everything recorded. The
// trade log and last-price lookup feed the win-rate computation. Finalize is
// total over trivially short runs: zero or one records produce zero metrics,
// never an error.
func (o *Observer) Finalize(intervalMonths int, trades []domain.Trade, lastPrice func(asset string) float64) *Result {
	res := &Result{
		Records:          o.records,
		BenchmarkSeries:  make(map[string][]metrics.ValuePoint),
		BenchmarkMetrics: make(map[string]Metrics),
	}
	res.Metrics.WinRate = metrics.WinRate(trades, lastPrice)

	if len(o.records) > 0 {
		series := make([]metrics.ValuePoint, len(o.records))
		returns := make([]float64, 0, len(o.records)-1)
		for i, r := range o.records {
			series[i] = metrics.ValuePoint{Date: r.Date, Value: r.TotalValue}
			if i > 0 {
				returns = append(returns, r.ReturnPct)
			}
		}

		first, last := o.records[0], o.records[len(o.records)-1]
		days := int(last.Date.Sub(first.Date).Hours() / 24)
		res.Metrics.AnnualReturn = metrics.AnnualReturn(first.TotalValue, last.TotalValue, days)
		res.Metrics.AnnualVolatility = metrics.AnnualVolatility(returns)

		intervals, worst := metrics.Drawdown(series, intervalMonths)
		res.DrawdownIntervals = intervals
		res.Metrics.MaxDrawdown = worst.Drawdown
		res.Metrics.MaxDrawdownStart = worst.Start
		res.Metrics.MaxDrawdownEnd = worst.End
	}

	for _, sym := range o.benchOrder {
		series := o.benchSeries[sym]
		if len(series) == 0 {
			continue
		}
		res.BenchmarkMetrics[sym] = benchmarkMetrics(series, intervalMonths)

		base := series[0].Value
		norm := make([]metrics.ValuePoint, len(series))
		for i, pt := range series {
			v := pt.Value
			if base != 0 {
				v = pt.Value / base
			}
			norm[i] = metrics.ValuePoint{Date: pt.Date, Value: v}
		}
		res.BenchmarkSeries[sym] = norm
	}
	return res
}

// benchmarkMetrics computes the summary metrics for one raw benchmark close
// series. Win rate does not apply to a benchmark and stays zero.
func benchmarkMetrics(series []metrics.ValuePoint, intervalMonths int) Metrics {
	var m Metrics
	first, last := series[0], series[len(series)-1]
	days := int(last.Date.Sub(first.Date).Hours() / 24)
	m.AnnualReturn = metrics.AnnualReturn(first.Value, last.Value, days)

	returns := make([]float64, 0, len(series)-1)
	for i := 1; i < len(series); i++ {
		if series[i-1].Value != 0 {
			returns = append(returns, series[i].Value/series[i-1].Value-1)
		}
	}
	m.AnnualVolatility = metrics.AnnualVolatility(returns)

	_, worst := metrics.Drawdown(series, intervalMonths)
	m.MaxDrawdown = worst.Drawdown
	m.MaxDrawdownStart = worst.Start
	m.MaxDrawdownEnd = worst.End
	return m
}
