package store

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"time"

	"tidemark/internal/config"
	"tidemark/internal/domain"
)

// Date layouts accepted by the CSV loader, tried in order.
var csvDateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"20060102",
	time.RFC3339,
}

// ReadCSVBars loads daily bars from one configured CSV source. Column names
// come from the source's mapping; a file with no symbol column gets the
// source's fixed symbol on every bar. Rows are returned in file order.
func ReadCSVBars(src config.CSVSource) ([]domain.Bar, error) {
	f, err := os.Open(src.Path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("reading header of %s: %w", src.Path, err)
	}
	col := make(map[string]int, len(header))
	for i, name := range header {
		col[name] = i
	}

	idx := func(name string) (int, bool) {
		if name == "" {
			return 0, false
		}
		i, ok := col[name]
		return i, ok
	}

	dateIdx, ok := idx(src.Columns.Date)
	if !ok {
		return nil, fmt.Errorf("%s: no %q column", src.Path, src.Columns.Date)
	}
	closeIdx, ok := idx(src.Columns.Close)
	if !ok {
		return nil, fmt.Errorf("%s: no %q column", src.Path, src.Columns.Close)
	}
	symbolIdx, hasSymbol := idx(src.Columns.Symbol)
	openIdx, hasOpen := idx(src.Columns.Open)
	highIdx, hasHigh := idx(src.Columns.High)
	lowIdx, hasLow := idx(src.Columns.Low)
	volumeIdx, hasVolume := idx(src.Columns.Volume)

	if !hasSymbol && src.Symbol == "" {
		return nil, fmt.Errorf("%s: no symbol column mapped and no fixed symbol set", src.Path)
	}

	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", src.Path, err)
	}

	bars := make([]domain.Bar, 0, len(records))
	for n, rec := range records {
		bar := domain.Bar{Symbol: src.Symbol}
		if hasSymbol {
			bar.Symbol = rec[symbolIdx]
		}

		bar.TradeDate, err = parseCSVDate(rec[dateIdx])
		if err != nil {
			return nil, fmt.Errorf("%s row %d: %w", src.Path, n+2, err)
		}
		bar.Close, err = strconv.ParseFloat(rec[closeIdx], 64)
		if err != nil {
			return nil, fmt.Errorf("%s row %d: bad close %q", src.Path, n+2, rec[closeIdx])
		}

		if hasOpen {
			bar.Open, _ = strconv.ParseFloat(rec[openIdx], 64)
		}
		if hasHigh {
			bar.High, _ = strconv.ParseFloat(rec[highIdx], 64)
		}
		if hasLow {
			bar.Low, _ = strconv.ParseFloat(rec[lowIdx], 64)
		}
		if hasVolume {
			v, _ := strconv.ParseFloat(rec[volumeIdx], 64)
			bar.Volume = int64(v)
		}
		bars = append(bars, bar)
	}
	return bars, nil
}

// ReadCSVSources loads and concatenates every configured source.
func ReadCSVSources(sources []config.CSVSource) ([]domain.Bar, error) {
	var all []domain.Bar
	for _, src := range sources {
		bars, err := ReadCSVBars(src)
		if err != nil {
			return nil, err
		}
		all = append(all, bars...)
	}
	return all, nil
}

func parseCSVDate(s string) (time.Time, error) {
	for _, layout := range csvDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable date %q", s)
}
