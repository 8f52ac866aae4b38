// Package report renders a completed backtest result as a styled terminal
// report: headline metrics, the per-interval drawdown table, and a benchmark
// comparison.
package report

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"tidemark/internal/backtest"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	labelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	valueStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("15"))
	gainStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	lossStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("245"))
)

// pctStyle colors a signed fraction green for gains and red for losses.
func pctStyle(v float64) lipgloss.Style {
	if v < 0 {
		return lossStyle
	}
	return gainStyle
}

const dateLayout = "2006-01-02"

// Render formats the result of one run into a human-readable report.
func Render(strategy string, initialCash float64, res *backtest.Result) string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("backtest "+strategy) + "\n\n")

	if len(res.Records) == 0 {
		b.WriteString(labelStyle.Render("no records") + "\n")
		return b.String()
	}
	first, last := res.Records[0], res.Records[len(res.Records)-1]

	row := func(label, value string) {
		fmt.Fprintf(&b, "%s %s\n", labelStyle.Render(fmt.Sprintf("%-18s", label)), value)
	}
	row("period", valueStyle.Render(first.Date.Format(dateLayout)+" .. "+last.Date.Format(dateLayout)))
	row("initial cash", valueStyle.Render(FormatMoney(initialCash)))
	row("final value", valueStyle.Render(FormatMoney(last.TotalValue)))
	row("cumulative", pctStyle(last.Cumulative-1).Render(FormatPct(last.Cumulative-1)))
	row("annual return", pctStyle(res.Metrics.AnnualReturn).Render(FormatPct(res.Metrics.AnnualReturn)))
	row("annual volatility", valueStyle.Render(FormatRatio(res.Metrics.AnnualVolatility)))
	row("win rate", valueStyle.Render(FormatRatio(res.Metrics.WinRate)))
	if res.Metrics.MaxDrawdown > 0 {
		row("max drawdown", lossStyle.Render(fmt.Sprintf("%s (%s .. %s)",
			FormatRatio(res.Metrics.MaxDrawdown),
			res.Metrics.MaxDrawdownStart.Format(dateLayout),
			res.Metrics.MaxDrawdownEnd.Format(dateLayout))))
	} else {
		row("max drawdown", valueStyle.Render("0.0%"))
	}

	if len(res.DrawdownIntervals) > 0 {
		b.WriteString("\n" + headerStyle.Render("drawdown by interval") + "\n")
		for _, iv := range res.DrawdownIntervals {
			fmt.Fprintf(&b, "  %s .. %s  %s\n",
				iv.Start.Format(dateLayout), iv.End.Format(dateLayout),
				lossStyle.Render(FormatRatio(iv.Drawdown)))
		}
	}

	if len(res.BenchmarkMetrics) > 0 {
		b.WriteString("\n" + headerStyle.Render("benchmarks") + "\n")
		syms := make([]string, 0, len(res.BenchmarkMetrics))
		for sym := range res.BenchmarkMetrics {
			syms = append(syms, sym)
		}
		sort.Strings(syms)
		for _, sym := range syms {
			m := res.BenchmarkMetrics[sym]
			fmt.Fprintf(&b, "  %s  annual %s  vol %s  maxdd %s\n",
				valueStyle.Render(fmt.Sprintf("%-10s", sym)),
				pctStyle(m.AnnualReturn).Render(FormatPct(m.AnnualReturn)),
				FormatRatio(m.AnnualVolatility),
				FormatRatio(m.MaxDrawdown))
		}
	}
	return b.String()
}
