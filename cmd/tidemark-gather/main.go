// tidemark-gather fetches daily bars from Alpaca for the configured symbols
// and stores them as Parquet files for later runs.
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

	"tidemark/internal/config"
	"tidemark/internal/gather"
	"tidemark/internal/store"
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

	dates, err := gatherRange(cfg)
	if err != nil {
		logger.Error("bad gather range", "err", err)
		os.Exit(1)
	}
	if cfg.Storage.DataDir == "" {
		logger.Error("storage.data_dir is required for gathering")
		os.Exit(1)
	}

	pstore := store.NewParquetStore(cfg.Storage.DataDir)
	gatherer := gather.NewAlpacaDailyGatherer(gather.Options{
		APIKey:          cfg.Alpaca.APIKey,
		APISecret:       cfg.Alpaca.APISecret,
		BaseURL:         cfg.Alpaca.BaseURL,
		Symbols:         cfg.Gather.Symbols,
		Dates:           dates,
		RateLimitPerMin: cfg.Gather.RateLimitPerMin,
		MaxRetries:      cfg.Gather.MaxRetries,
		Logger:          logger,
	}, pstore)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger.Info("starting gatherer", "name", gatherer.Name(),
		"symbols", len(cfg.Gather.Symbols),
		"start", dates.Start.Format("2006-01-02"),
		"end", dates.End.Format("2006-01-02"))
	if err := gatherer.Run(ctx); err != nil {
		logger.Error("gatherer failed", "err", err)
		os.Exit(1)
	}
}

func defaultConfigPath() string {
	if p := os.Getenv("TIDEMARK_CONFIG"); p != "" {
		return p
	}
	return "config/tidemark.yaml"
}

// gatherRange resolves the configured date strings; the end date defaults to
// today when unset.
func gatherRange(cfg *config.Config) (gather.DateRange, error) {
	var dates gather.DateRange
	if cfg.Gather.StartDate == "" {
		return dates, fmt.Errorf("gather.start_date is required")
	}
	start, err := time.Parse("2006-01-02", cfg.Gather.StartDate)
	if err != nil {
		return dates, fmt.Errorf("parsing start date %q: %w", cfg.Gather.StartDate, err)
	}

	end := time.Now().UTC().Truncate(24 * time.Hour)
	if cfg.Gather.EndDate != "" {
		if end, err = time.Parse("2006-01-02", cfg.Gather.EndDate); err != nil {
			return dates, fmt.Errorf("parsing end date %q: %w", cfg.Gather.EndDate, err)
		}
	}
	return gather.DateRange{Start: start, End: end}, nil
}
