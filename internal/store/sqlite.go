package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"tidemark/internal/backtest"
	"tidemark/internal/domain"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// Compile-time interface check.
var _ RunStore = (*SQLiteStore)(nil)

// SQLiteStore implements RunStore backed by a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS runs (
	id                INTEGER PRIMARY KEY AUTOINCREMENT,
	created_at        TEXT NOT NULL,
	strategy          TEXT NOT NULL,
	initial_cash      REAL NOT NULL,
	final_value       REAL NOT NULL,
	annual_return     REAL NOT NULL,
	annual_volatility REAL NOT NULL,
	max_drawdown      REAL NOT NULL,
	win_rate          REAL NOT NULL
);

CREATE TABLE IF NOT EXISTS equity_points (
	run_id      INTEGER NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	date        TEXT NOT NULL,
	total_value REAL NOT NULL,
	cash        REAL NOT NULL,
	return_abs  REAL NOT NULL,
	return_pct  REAL NOT NULL,
	cumulative  REAL NOT NULL,
	PRIMARY KEY (run_id, date)
);

CREATE TABLE IF NOT EXISTS trades (
	run_id      INTEGER NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	seq         INTEGER NOT NULL,
	asset       TEXT NOT NULL,
	trade_date  TEXT NOT NULL,
	trade_qty   INTEGER NOT NULL,
	trade_price REAL NOT NULL,
	PRIMARY KEY (run_id, seq)
);
`

// NewSQLiteStore opens (or creates) a SQLite database at dbPath, ensures the
// schema exists, and returns a ready-to-use SQLiteStore.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const dateLayout = "2006-01-02"

// SaveRun persists the run header, equity curve and trade log in one
// transaction and fills in the assigned run ID.
func (s *SQLiteStore) SaveRun(ctx context.Context, run *Run) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	createdAt := run.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	res, err := tx.ExecContext(ctx, `
		INSERT INTO runs (created_at, strategy, initial_cash, final_value,
			annual_return, annual_volatility, max_drawdown, win_rate)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		createdAt.Format(time.RFC3339), run.Strategy, run.InitialCash, run.FinalValue,
		run.AnnualReturn, run.AnnualVolatility, run.MaxDrawdown, run.WinRate)
	if err != nil {
		return fmt.Errorf("inserting run: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}

	for _, pt := range run.EquityCurve {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO equity_points (run_id, date, total_value, cash, return_abs, return_pct, cumulative)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			id, pt.Date.Format(dateLayout), pt.TotalValue, pt.Cash, pt.Return, pt.ReturnPct, pt.Cumulative); err != nil {
			return fmt.Errorf("inserting equity point %s: %w", pt.Date.Format(dateLayout), err)
		}
	}

	for i, tr := range run.Trades {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO trades (run_id, seq, asset, trade_date, trade_qty, trade_price)
			VALUES (?, ?, ?, ?, ?, ?)`,
			id, i, tr.Asset, tr.TradeDate.Format(dateLayout), tr.Quantity, tr.Price); err != nil {
			return fmt.Errorf("inserting trade %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	run.ID = id
	run.CreatedAt = createdAt
	return nil
}

// GetRun retrieves one run with its equity curve and trade log.
func (s *SQLiteStore) GetRun(ctx context.Context, id int64) (*Run, error) {
	run := &Run{ID: id}
	var createdAt string
	err := s.db.QueryRowContext(ctx, `
		SELECT created_at, strategy, initial_cash, final_value,
			annual_return, annual_volatility, max_drawdown, win_rate
		FROM runs WHERE id = ?`, id).Scan(
		&createdAt, &run.Strategy, &run.InitialCash, &run.FinalValue,
		&run.AnnualReturn, &run.AnnualVolatility, &run.MaxDrawdown, &run.WinRate)
	if err != nil {
		return nil, err
	}
	if run.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, fmt.Errorf("run %d: bad created_at: %w", id, err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT date, total_value, cash, return_abs, return_pct, cumulative
		FROM equity_points WHERE run_id = ? ORDER BY date`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var pt backtest.Record
		var date string
		if err := rows.Scan(&date, &pt.TotalValue, &pt.Cash, &pt.Return, &pt.ReturnPct, &pt.Cumulative); err != nil {
			return nil, err
		}
		if pt.Date, err = time.Parse(dateLayout, date); err != nil {
			return nil, fmt.Errorf("run %d: bad equity date %q: %w", id, date, err)
		}
		run.EquityCurve = append(run.EquityCurve, pt)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	trows, err := s.db.QueryContext(ctx, `
		SELECT asset, trade_date, trade_qty, trade_price
		FROM trades WHERE run_id = ? ORDER BY seq`, id)
	if err != nil {
		return nil, err
	}
	defer trows.Close()
	for trows.Next() {
		var tr domain.Trade
		var date string
		if err := trows.Scan(&tr.Asset, &date, &tr.Quantity, &tr.Price); err != nil {
			return nil, err
		}
		if tr.TradeDate, err = time.Parse(dateLayout, date); err != nil {
			return nil, fmt.Errorf("run %d: bad trade date %q: %w", id, date, err)
		}
		run.Trades = append(run.Trades, tr)
	}
	if err := trows.Err(); err != nil {
		return nil, err
	}
	return run, nil
}

// ListRuns returns run headers newest first, without curves or trade logs.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, created_at, strategy, initial_cash, final_value,
			annual_return, annual_volatility, max_drawdown, win_rate
		FROM runs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var run Run
		var createdAt string
		if err := rows.Scan(&run.ID, &createdAt, &run.Strategy, &run.InitialCash, &run.FinalValue,
			&run.AnnualReturn, &run.AnnualVolatility, &run.MaxDrawdown, &run.WinRate); err != nil {
			return nil, err
		}
		if run.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
			return nil, fmt.Errorf("run %d: bad created_at: %w", run.ID, err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}
