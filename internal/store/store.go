// Package store persists and retrieves tidemark data: daily bars in Parquet
// or CSV files, and completed run results in SQLite.
package store

import (
	"context"
	"time"

	"tidemark/internal/backtest"
	"tidemark/internal/domain"
)

// BarStore persists and retrieves daily OHLCV bars.
type BarStore interface {
	// WriteBars persists a batch of bars to storage.
	WriteBars(ctx context.Context, bars []domain.Bar) error

	// ReadBars returns bars for the given symbol within [start, end].
	ReadBars(ctx context.Context, symbol string, start, end time.Time) ([]domain.Bar, error)

	// ListSymbols returns all distinct symbols available in storage.
	ListSymbols(ctx context.Context) ([]string, error)
}

// Run is one completed backtest run as persisted: identity, parameters, the
// headline metrics, plus the full equity curve and trade log.
type Run struct {
	ID          int64
	CreatedAt   time.Time
	Strategy    string
	InitialCash float64
	FinalValue  float64

	AnnualReturn     float64
	AnnualVolatility float64
	MaxDrawdown      float64
	WinRate          float64

	EquityCurve []backtest.Record
	Trades      []domain.Trade
}

// RunStore persists completed runs and lists them back.
type RunStore interface {
	// SaveRun persists a run and returns it with the assigned ID.
	SaveRun(ctx context.Context, run *Run) error

	// GetRun retrieves one run with its equity curve and trade log.
	GetRun(ctx context.Context, id int64) (*Run, error)

	// ListRuns returns run headers (no curves or trades) newest first, up
	// to limit.
	ListRuns(ctx context.Context, limit int) ([]Run, error)
}
