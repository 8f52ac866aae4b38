// Package market holds loaded bar data in memory and provides chronological,
// no-lookahead access to it: the main timeline, per-date snapshots, and
// date-range slices. A Hub is read-only once constructed.
package market

import (
	"errors"
	"log/slog"
	"sort"
	"time"

	"tidemark/internal/domain"
)

// ErrInvalidRange is returned by Slice when start is after end.
var ErrInvalidRange = errors.New("market: start date after end date")

// Hub is the in-memory bar table, keyed by (trade date, symbol). It holds a
// primary daily dataset and an optional benchmark dataset. The main timeline
// is the union of primary dates; when a benchmark is loaded, a date must also
// be present in the benchmark set to appear on the main timeline, so that
// benchmark comparison never fabricates a trading day absent from either
// series.
type Hub struct {
	daily     *barTable
	benchmark *barTable
	log       *slog.Logger
}

// NewHub builds a Hub from preloaded bars. The benchmark slice may be empty.
// Duplicate (date, symbol) rows are deduplicated with the later row winning,
// and dates are normalised to UTC midnight.
func NewHub(daily, benchmark []domain.Bar, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		daily:     newBarTable(daily),
		benchmark: newBarTable(benchmark),
		log:       logger.With("component", "market"),
	}
}

// Timeline returns the distinct trade dates of the main timeline in strictly
// ascending order. The returned slice is a copy; callers may not mutate
// hub state through it.
func (h *Hub) Timeline() []time.Time {
	if h.benchmark.empty() {
		return append([]time.Time(nil), h.daily.dates...)
	}
	var out []time.Time
	for _, d := range h.daily.dates {
		if _, ok := h.benchmark.byDate[d]; ok {
			out = append(out, d)
		}
	}
	return out
}

// Snapshot returns all primary rows for an exact date. The result is empty,
// never an error, when the date is absent.
func (h *Hub) Snapshot(date time.Time) []domain.Bar {
	return h.daily.snapshot(date)
}

// BenchmarkSnapshot returns all benchmark rows for an exact date.
func (h *Hub) BenchmarkSnapshot(date time.Time) []domain.Bar {
	return h.benchmark.snapshot(date)
}

// ClosePrice looks up the primary close for (date, symbol).
func (h *Hub) ClosePrice(date time.Time, symbol string) (float64, bool) {
	b, ok := h.daily.bar(date, symbol)
	if !ok {
		return 0, false
	}
	return b.Close, true
}

// Symbols returns the distinct primary symbols, sorted.
func (h *Hub) Symbols() []string {
	return h.daily.symbolList()
}

// BenchmarkSymbols returns the distinct benchmark symbols, sorted.
func (h *Hub) BenchmarkSymbols() []string {
	return h.benchmark.symbolList()
}

// SliceQuery selects rows for Slice. Zero Start/End mean unbounded; an empty
// Symbol matches all symbols; Benchmark selects the benchmark table.
type SliceQuery struct {
	Start     time.Time
	End       time.Time
	Symbol    string
	Benchmark bool
}

// Slice returns all rows whose date falls in the inclusive [Start, End] range
// and whose symbol matches when given, in (date, symbol) order. It fails with
// ErrInvalidRange when Start is after End.
func (h *Hub) Slice(q SliceQuery) ([]domain.Bar, error) {
	if !q.Start.IsZero() && !q.End.IsZero() && q.Start.After(q.End) {
		return nil, ErrInvalidRange
	}
	tbl := h.daily
	if q.Benchmark {
		tbl = h.benchmark
	}

	var out []domain.Bar
	for _, b := range tbl.rows {
		if !q.Start.IsZero() && b.TradeDate.Before(q.Start) {
			continue
		}
		if !q.End.IsZero() && b.TradeDate.After(q.End) {
			break
		}
		if q.Symbol != "" && b.Symbol != q.Symbol {
			continue
		}
		out = append(out, b)
	}
	return out, nil
}

// AuditMissingDates reports the main-timeline dates on which a symbol has no
// row, keyed by "dataset/symbol" ("daily/600000", "benchmark/000300") so a
// symbol present in both datasets keeps both gap lists. Gaps are
// informational: common for suspended stocks and exchange holidays that
// differ between symbols. Each gap set is also logged.
func (h *Hub) AuditMissingDates() map[string][]time.Time {
	timeline := h.Timeline()
	missing := make(map[string][]time.Time)

	audit := func(tbl *barTable, kind string) {
		for _, sym := range tbl.symbolList() {
			var gaps []time.Time
			for _, d := range timeline {
				if _, ok := tbl.bar(d, sym); !ok {
					gaps = append(gaps, d)
				}
			}
			if len(gaps) > 0 {
				missing[kind+"/"+sym] = gaps
				h.log.Info("symbol missing dates on main timeline",
					"dataset", kind, "symbol", sym, "count", len(gaps))
			}
		}
	}

	audit(h.daily, "daily")
	audit(h.benchmark, "benchmark")
	return missing
}

// ---------------------------------------------------------------------------
// barTable
// ---------------------------------------------------------------------------

// barTable is one deduplicated dataset sorted by (date, symbol).
type barTable struct {
	rows    []domain.Bar
	dates   []time.Time                         // distinct, ascending
	byDate  map[time.Time]map[string]domain.Bar // date -> symbol -> bar
	symbols map[string]struct{}
}

func newBarTable(bars []domain.Bar) *barTable {
	t := &barTable{
		byDate:  make(map[time.Time]map[string]domain.Bar),
		symbols: make(map[string]struct{}),
	}
	for _, b := range bars {
		b.TradeDate = normalizeDate(b.TradeDate)
		day, ok := t.byDate[b.TradeDate]
		if !ok {
			day = make(map[string]domain.Bar)
			t.byDate[b.TradeDate] = day
		}
		day[b.Symbol] = b // (date, symbol) unique: later row wins
		t.symbols[b.Symbol] = struct{}{}
	}

	t.dates = make([]time.Time, 0, len(t.byDate))
	for d := range t.byDate {
		t.dates = append(t.dates, d)
	}
	sort.Slice(t.dates, func(i, j int) bool { return t.dates[i].Before(t.dates[j]) })

	for _, d := range t.dates {
		day := t.byDate[d]
		syms := make([]string, 0, len(day))
		for s := range day {
			syms = append(syms, s)
		}
		sort.Strings(syms)
		for _, s := range syms {
			t.rows = append(t.rows, day[s])
		}
	}
	return t
}

func (t *barTable) empty() bool { return len(t.rows) == 0 }

func (t *barTable) snapshot(date time.Time) []domain.Bar {
	day, ok := t.byDate[normalizeDate(date)]
	if !ok {
		return nil
	}
	syms := make([]string, 0, len(day))
	for s := range day {
		syms = append(syms, s)
	}
	sort.Strings(syms)
	out := make([]domain.Bar, 0, len(day))
	for _, s := range syms {
		out = append(out, day[s])
	}
	return out
}

func (t *barTable) bar(date time.Time, symbol string) (domain.Bar, bool) {
	day, ok := t.byDate[normalizeDate(date)]
	if !ok {
		return domain.Bar{}, false
	}
	b, ok := day[symbol]
	return b, ok
}

func (t *barTable) symbolList() []string {
	out := make([]string, 0, len(t.symbols))
	for s := range t.symbols {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// normalizeDate truncates a timestamp to its UTC calendar date so that bars
// loaded from different sources key identically.
func normalizeDate(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}
