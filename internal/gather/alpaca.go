package gather

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"tidemark/internal/domain"
	"tidemark/internal/store"
	"tidemark/internal/util"
)

// Compile-time interface check.
var _ Gatherer = (*AlpacaDailyGatherer)(nil)

// barClient is the slice of the Alpaca market-data client the gatherer uses.
type barClient interface {
	GetMultiBars(symbols []string, req marketdata.GetBarsRequest) (map[string][]marketdata.Bar, error)
}

// AlpacaDailyGatherer fetches daily OHLCV bars for a fixed symbol list via
// the Alpaca market-data API and writes them to the bar store. Each batch is
// rate limited and retried; re-runs over the same range are idempotent
// because the store merges by (symbol, trade date).
type AlpacaDailyGatherer struct {
	client     barClient
	store      store.BarStore
	symbols    []string
	dates      DateRange
	limiter    *util.RateLimiter
	maxRetries int
	log        *slog.Logger
}

// Options configures an AlpacaDailyGatherer.
type Options struct {
	APIKey          string
	APISecret       string
	BaseURL         string
	Symbols         []string
	Dates           DateRange
	RateLimitPerMin int
	MaxRetries      int
	Logger          *slog.Logger
}

// batchSize is the number of symbols sent per GetMultiBars call.
const batchSize = 200

// NewAlpacaDailyGatherer creates the gatherer over the given store.
func NewAlpacaDailyGatherer(opts Options, s store.BarStore) *AlpacaDailyGatherer {
	clientOpts := marketdata.ClientOpts{
		APIKey:    opts.APIKey,
		APISecret: opts.APISecret,
	}
	if opts.BaseURL != "" {
		clientOpts.BaseURL = opts.BaseURL
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.RateLimitPerMin <= 0 {
		opts.RateLimitPerMin = 200
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 3
	}

	return &AlpacaDailyGatherer{
		client:     marketdata.NewClient(clientOpts),
		store:      s,
		symbols:    opts.Symbols,
		dates:      opts.Dates,
		limiter:    util.NewRateLimiter(opts.RateLimitPerMin),
		maxRetries: opts.MaxRetries,
		log:        logger.With("gatherer", "alpaca-daily"),
	}
}

// Name returns the gatherer identifier.
func (g *AlpacaDailyGatherer) Name() string { return "alpaca-daily" }

// Run fetches the configured symbols in batches and writes each batch to the
// store before moving on, so a partial run still persists what it fetched.
func (g *AlpacaDailyGatherer) Run(ctx context.Context) error {
	if len(g.symbols) == 0 {
		g.log.Info("no symbols configured, nothing to gather")
		return nil
	}

	runStart := time.Now()
	total := 0
	for i := 0; i < len(g.symbols); i += batchSize {
		end := min(i+batchSize, len(g.symbols))
		batch := g.symbols[i:end]

		if err := g.limiter.Wait(ctx); err != nil {
			return err
		}
		bars, err := g.fetchBatch(ctx, batch)
		if err != nil {
			return fmt.Errorf("fetching %v: %w", batch, err)
		}
		if err := g.store.WriteBars(ctx, bars); err != nil {
			return fmt.Errorf("writing batch: %w", err)
		}
		total += len(bars)

		g.log.Info("batch done",
			"symbols", len(batch),
			"bars", len(bars),
			"elapsed", time.Since(runStart).Round(time.Second))
	}

	g.log.Info("gather complete",
		"symbols", len(g.symbols),
		"bars", total,
		"elapsed", time.Since(runStart).Round(time.Second))
	return nil
}

// fetchBatch fetches daily bars for one symbol batch, retrying transient
// failures with backoff.
func (g *AlpacaDailyGatherer) fetchBatch(ctx context.Context, symbols []string) ([]domain.Bar, error) {
	var multiBars map[string][]marketdata.Bar
	err := util.Retry(ctx, g.maxRetries, time.Second, func() error {
		var err error
		multiBars, err = g.client.GetMultiBars(symbols, marketdata.GetBarsRequest{
			TimeFrame: marketdata.OneDay,
			Start:     g.dates.Start,
			End:       g.dates.End,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	var bars []domain.Bar
	for symbol, alpacaBars := range multiBars {
		for _, ab := range alpacaBars {
			// Daily bars are keyed by UTC calendar date.
			ts := ab.Timestamp.UTC()
			bars = append(bars, domain.Bar{
				Symbol:    strings.ToUpper(symbol),
				TradeDate: time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, time.UTC),
				Open:      ab.Open,
				High:      ab.High,
				Low:       ab.Low,
				Close:     ab.Close,
				Volume:    int64(ab.Volume),
			})
		}
	}
	return bars, nil
}
