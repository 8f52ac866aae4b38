// tidemark-run loads daily bars, runs one backtest, prints the report and
// persists the run to SQLite.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"tidemark/internal/backtest"
	"tidemark/internal/config"
	"tidemark/internal/domain"
	"tidemark/internal/market"
	"tidemark/internal/portfolio"
	"tidemark/internal/report"
	"tidemark/internal/sizing"
	"tidemark/internal/store"
	"tidemark/internal/strategy"
	"tidemark/internal/util"
)

func main() {
	_ = godotenv.Load() // best-effort

	cfgPath := flag.String("config", defaultConfigPath(), "path to YAML config")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.NewLogger(cfg.Logging.Level)
	util.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg); err != nil {
		logger.Error("run failed", "err", err)
		os.Exit(1)
	}
}

func defaultConfigPath() string {
	if p := os.Getenv("TIDEMARK_CONFIG"); p != "" {
		return p
	}
	return "config/tidemark.yaml"
}

func run(ctx context.Context, cfg *config.Config) error {
	daily, benchmark, err := loadBars(ctx, cfg)
	if err != nil {
		return err
	}
	if len(daily) == 0 {
		return fmt.Errorf("no daily bars loaded, check data sources")
	}

	hub := market.NewHub(daily, benchmark, nil)
	hub.AuditMissingDates()

	strat, err := buildStrategy(cfg, hub)
	if err != nil {
		return err
	}

	pf := portfolio.New(cfg.Backtest.InitialCash)
	eng := backtest.New(hub, strat, sizing.NewEqualWeight(nil, nil), pf,
		backtest.WithExecutionOrder(backtest.ExecutionOrder(cfg.Backtest.ExecutionOrder)),
		backtest.WithDrawdownInterval(cfg.Backtest.DrawdownIntervalMonths))

	res, err := eng.Run(ctx)
	if err != nil {
		return err
	}

	fmt.Print(report.Render(strat.Name(), cfg.Backtest.InitialCash, res))

	if cfg.Storage.SQLitePath != "" {
		if err := persistRun(ctx, cfg, strat.Name(), pf, res); err != nil {
			return fmt.Errorf("persisting run: %w", err)
		}
	}
	return nil
}

// loadBars reads the configured CSV sources and, when a data directory is
// set, any Parquet bars previously gathered for the configured symbols.
func loadBars(ctx context.Context, cfg *config.Config) (daily, benchmark []domain.Bar, err error) {
	daily, err = store.ReadCSVSources(cfg.Data.Daily)
	if err != nil {
		return nil, nil, err
	}
	benchmark, err = store.ReadCSVSources(cfg.Data.Benchmark)
	if err != nil {
		return nil, nil, err
	}

	if cfg.Storage.DataDir != "" {
		ps := store.NewParquetStore(cfg.Storage.DataDir)
		symbols, err := ps.ListSymbols(ctx)
		if err != nil {
			return nil, nil, err
		}
		start := time.Date(1990, 1, 1, 0, 0, 0, 0, time.UTC)
		end := time.Now().UTC()
		for _, sym := range symbols {
			bars, err := ps.ReadBars(ctx, sym, start, end)
			if err != nil {
				return nil, nil, err
			}
			daily = append(daily, bars...)
		}
	}
	return daily, benchmark, nil
}

func buildStrategy(cfg *config.Config, hub *market.Hub) (strategy.Strategy, error) {
	reg := strategy.NewRegistry()
	reg.Register(strategy.NewMABias(hub, strategy.MABiasParams{
		BuyWindow:  cfg.Strategy.BuyWindow,
		SellWindow: cfg.Strategy.SellWindow,
		BuyBias:    cfg.Strategy.BuyBias,
		SellBias:   cfg.Strategy.SellBias,
	}))

	name := cfg.Strategy.Name
	if name == "" {
		name = "ma-bias"
	}
	strat, ok := reg.Get(name)
	if !ok {
		return nil, fmt.Errorf("unknown strategy %q (have %v)", name, reg.List())
	}
	return strat, nil
}

func persistRun(ctx context.Context, cfg *config.Config, strategyName string, pf *portfolio.Portfolio, res *backtest.Result) error {
	db, err := store.NewSQLiteStore(cfg.Storage.SQLitePath)
	if err != nil {
		return err
	}
	defer db.Close()

	run := &store.Run{
		Strategy:         strategyName,
		InitialCash:      cfg.Backtest.InitialCash,
		AnnualReturn:     res.Metrics.AnnualReturn,
		AnnualVolatility: res.Metrics.AnnualVolatility,
		MaxDrawdown:      res.Metrics.MaxDrawdown,
		WinRate:          res.Metrics.WinRate,
		EquityCurve:      res.Records,
		Trades:           pf.TradeLog(),
	}
	if n := len(res.Records); n > 0 {
		run.FinalValue = res.Records[n-1].TotalValue
	}
	if err := db.SaveRun(ctx, run); err != nil {
		return err
	}
	fmt.Printf("saved run %d to %s\n", run.ID, cfg.Storage.SQLitePath)
	return nil
}
