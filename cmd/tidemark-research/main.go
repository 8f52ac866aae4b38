// tidemark-research surveys where the moving-average bias indicator had
// predictive value: it pairs historical bias readings with forward returns,
// buckets them, and prints per-bucket win statistics, Kelly fractions, and
// the monotonic regions of the win-rate curve.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/joho/godotenv"

	"tidemark/internal/config"
	"tidemark/internal/domain"
	"tidemark/internal/market"
	"tidemark/internal/metrics"
	"tidemark/internal/report"
	"tidemark/internal/store"
	"tidemark/internal/util"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	gainStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	lossStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

func main() {
	_ = godotenv.Load() // best-effort

	cfgPath := flag.String("config", defaultConfigPath(), "path to YAML config")
	window := flag.Int("window", 0, "bias window in bars (defaults to the configured buy window)")
	horizon := flag.Int("horizon", 20, "forward-return horizon in bars")
	edgesArg := flag.String("edges", "-0.5,-0.4,-0.3,-0.2,-0.1,0,0.1,0.2,0.3,0.4,0.5", "comma-separated bucket edges")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger := util.NewLogger(cfg.Logging.Level)
	util.SetDefault(logger)

	if *window == 0 {
		*window = cfg.Strategy.BuyWindow
	}
	if *window <= 0 {
		logger.Error("no bias window, set -window or strategy.buy_window")
		os.Exit(1)
	}
	edges, err := parseEdges(*edgesArg)
	if err != nil {
		logger.Error("bad edges", "err", err)
		os.Exit(1)
	}

	if err := run(context.Background(), cfg, *window, *horizon, edges); err != nil {
		logger.Error("research failed", "err", err)
		os.Exit(1)
	}
}

func defaultConfigPath() string {
	if p := os.Getenv("TIDEMARK_CONFIG"); p != "" {
		return p
	}
	return "config/tidemark.yaml"
}

func parseEdges(s string) ([]float64, error) {
	parts := strings.Split(s, ",")
	if len(parts) < 2 {
		return nil, fmt.Errorf("need at least two edges, got %q", s)
	}
	edges := make([]float64, len(parts))
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("edge %q: %w", p, err)
		}
		edges[i] = v
	}
	return edges, nil
}

func run(ctx context.Context, cfg *config.Config, window, horizon int, edges []float64) error {
	daily, err := loadBars(ctx, cfg)
	if err != nil {
		return err
	}
	if len(daily) == 0 {
		return fmt.Errorf("no daily bars loaded, check data sources")
	}
	hub := market.NewHub(daily, nil, nil)

	obs := collectObservations(hub, window, horizon)
	if len(obs) == 0 {
		return fmt.Errorf("no observations, need more than %d bars per symbol", window+horizon)
	}

	stats := metrics.BucketStats(obs, edges)
	regions := metrics.MonotonicRegions(stats)
	printTable(window, horizon, len(obs), stats, regions)
	return nil
}

// loadBars reads the configured daily CSV sources plus any gathered Parquet
// bars, same as tidemark-run but without the benchmark series.
func loadBars(ctx context.Context, cfg *config.Config) ([]domain.Bar, error) {
	daily, err := store.ReadCSVSources(cfg.Data.Daily)
	if err != nil {
		return nil, err
	}
	if cfg.Storage.DataDir != "" {
		ps := store.NewParquetStore(cfg.Storage.DataDir)
		symbols, err := ps.ListSymbols(ctx)
		if err != nil {
			return nil, err
		}
		start := time.Date(1990, 1, 1, 0, 0, 0, 0, time.UTC)
		end := time.Now().UTC()
		for _, sym := range symbols {
			bars, err := ps.ReadBars(ctx, sym, start, end)
			if err != nil {
				return nil, err
			}
			daily = append(daily, bars...)
		}
	}
	return daily, nil
}

// collectObservations pairs every defined bias reading with the forward
// return realized horizon bars later, across all symbols in the hub.
func collectObservations(hub *market.Hub, window, horizon int) []metrics.Observation {
	var obs []metrics.Observation
	for _, sym := range hub.Symbols() {
		bars, err := hub.Slice(market.SliceQuery{Symbol: sym})
		if err != nil {
			continue
		}
		closes := make([]float64, len(bars))
		for i, b := range bars {
			closes[i] = b.Close
		}
		forward := metrics.ForwardReturns(closes, horizon)

		for i := range closes {
			if i+1 < window {
				continue
			}
			ma := mean(closes[i+1-window : i+1])
			if ma == 0 || math.IsNaN(forward[i]) {
				continue
			}
			obs = append(obs, metrics.Observation{
				Indicator:     (closes[i] - ma) / ma,
				ForwardReturn: forward[i],
			})
		}
	}
	return obs
}

func mean(vals []float64) float64 {
	sum := 0.0
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}

func printTable(window, horizon, n int, stats []metrics.BucketStat, regions []metrics.Region) {
	fmt.Println(headerStyle.Render(fmt.Sprintf("bias window %d, horizon %d, %s observations",
		window, horizon, report.FormatInt(n))))
	fmt.Println(dimStyle.Render(fmt.Sprintf("%-18s %8s %8s %9s %9s %8s", "bucket", "count", "win", "mean+", "mean-", "kelly")))

	for _, st := range stats {
		kelly := fmt.Sprintf("%8.3f", st.Kelly)
		if st.Kelly > 0 {
			kelly = gainStyle.Render(kelly)
		} else if st.Kelly < 0 {
			kelly = lossStyle.Render(kelly)
		}
		fmt.Printf("[%7.3f,%7.3f) %8s %8s %9s %9s %s\n",
			st.Lower, st.Upper,
			report.FormatInt(st.Count),
			report.FormatRatio(st.WinRate),
			report.FormatPct(st.MeanWin),
			report.FormatPct(st.MeanLoss),
			kelly)
	}

	if len(regions) > 0 {
		fmt.Println(headerStyle.Render("monotonic win-rate regions"))
		for _, r := range regions {
			direction := "decreasing"
			if r.Increasing {
				direction = "increasing"
			}
			fmt.Printf("  buckets %d..%d %s\n", r.Start, r.End, direction)
		}
	}
}
