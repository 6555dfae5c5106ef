package summary

import (
	"cmp"
	"fmt"
	"maps"
	"slices"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"loadtest-engine/internal/cli"
	"loadtest-engine/internal/engine"
	"loadtest-engine/internal/forecast"
	"loadtest-engine/internal/stats"
)

var ratingStyles = map[stats.Rating]lipgloss.Style{
	stats.RatingExcellent: lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
	stats.RatingGood:      lipgloss.NewStyle().Foreground(lipgloss.Color("114")),
	stats.RatingFair:      lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
	stats.RatingPoor:      lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
}

func renderRating(r stats.Rating) string {
	style, ok := ratingStyles[r]
	if !ok {
		return string(r)
	}
	return style.Render(fmt.Sprintf("%-9s", r))
}

func PrintRunSummary(result *RunResult) {
	if result.Error != "" {
		cli.Failf("Status: FAILED")
		cli.Linef("Error: %s", result.Error)
		cli.Blank()
		return
	}
	PrintReport(result.Report)
}

// PrintReport renders the statistics and forecast of one run.
func PrintReport(report *engine.Report) {
	if report == nil || report.Result == nil {
		return
	}
	r := report.Result

	driver := report.Driver
	if report.Fallback != "" {
		driver = fmt.Sprintf("%s (fallback: %s)", driver, report.Fallback)
	}
	cli.Linef("Driver: %s  Elapsed: %s  Started: %s",
		driver, cli.FormatDuration(report.Elapsed), humanize.Time(report.StartedAt))
	if report.Partial {
		cli.Warnf("Results are partial, the run was stopped before it finished")
	}
	cli.Blank()

	cli.Linef("Summary")
	fmt.Println("  ───────────────────────────────────────────────────────────────")
	cli.KeyValue("Virtual users", humanize.Comma(int64(r.Summary.VUs)))
	cli.KeyValue("Requests", cli.FormatReqs(r.Summary.Requests))
	cli.KeyValue("Failed", fmt.Sprintf("%s (%s)", humanize.Comma(r.Summary.Failed), cli.FormatPercent(1-r.SuccessRate())))
	cli.KeyValue("Avg response", cli.FormatMillis(r.Summary.AvgResponseTime))
	cli.KeyValue("Min / Max", fmt.Sprintf("%s / %s",
		cli.FormatMillis(r.Metrics.MinResponseTime), cli.FormatMillis(r.Metrics.MaxResponseTime)))
	cli.KeyValue("Duration", r.Metrics.Duration)
	cli.KeyValue("Request rate", fmt.Sprintf("%d req/s", r.Metrics.RequestRate))
	cli.KeyValuePairs("Received", r.Metrics.DataReceived, "Sent", r.Metrics.DataSent)
	cli.Blank()

	cli.Linef("Response Times")
	fmt.Println("  ───────────────────────────────────────────────────────────────")
	fmt.Printf("  %-10s  %8s  %s\n", "Percentile", "Value", "Rating")
	for _, p := range r.ResponseTime {
		fmt.Printf("  %-10s  %8s  %s\n", p.Percentile, cli.FormatMillis(p.Value), renderRating(p.Rating))
	}
	cli.Blank()

	if len(r.HTTPStatusCodes) > 0 {
		cli.Linef("Status Codes")
		fmt.Println("  ───────────────────────────────────────────────────────────────")
		for _, code := range slices.Sorted(maps.Keys(r.HTTPStatusCodes)) {
			count := r.HTTPStatusCodes[code]
			ok := len(code) == 3 && code[0] == '2'
			cli.StatusLinef(ok, "%s  %s", code, humanize.Comma(count))
		}
		cli.Blank()
	}

	if report.Forecast != nil {
		printForecast(report.Forecast)
	}
}

func printForecast(f *forecast.Forecast) {
	cli.Linef("Forecast")
	fmt.Println("  ───────────────────────────────────────────────────────────────")
	cli.KeyValue("Performance score", fmt.Sprintf("%d/100", f.PerformanceScore))
	cli.KeyValue("Scalability factor", fmt.Sprintf("%.1fx", f.ScalabilityFactor))
	cli.KeyValue("Max concurrency", humanize.Comma(int64(f.RecommendedMaxConcurrency)))
	cli.KeyValue("Throughput", fmt.Sprintf("%.1f → %s req/s",
		f.CurrentThroughput, humanize.Comma(int64(f.PredictedThroughput))))
	cli.KeyValue("Level", string(f.RecommendationLevel))
	cli.Linef("%s %s", cli.SymbolArrow, f.Recommendation)
	if f.Hint != "" {
		cli.Warnf("%s", f.Hint)
	}
	cli.Blank()
}

type rankingData struct {
	name    string
	score   int
	p95     int
	rate    int
	success float64
	failed  bool
}

// PrintBatchSummary ranks the runs of one batch by performance score, failures last.
func PrintBatchSummary(results []*RunResult) {
	if len(results) < 2 {
		return
	}

	rows := make([]rankingData, 0, len(results))
	for _, result := range results {
		row := rankingData{name: result.Name, failed: result.Error != ""}
		if report := result.Report; report != nil && report.Result != nil && report.Forecast != nil {
			row.score = report.Forecast.PerformanceScore
			row.p95 = report.Forecast.P95ResponseTime
			row.rate = report.Result.Metrics.RequestRate
			row.success = report.Result.SuccessRate()
		}
		rows = append(rows, row)
	}
	sortRankingData(rows)

	cli.Section("Rankings")
	fmt.Printf("  %2s  %-30s  %5s  %8s  %8s  %7s\n", "#", "Run", "Score", "P95", "Req/s", "Success")
	for i, row := range rows {
		if row.failed {
			fmt.Printf("  %2d  %-30s  %5s  %8s  %8s  %7s\n", i+1, cli.Truncate(row.name, 27), "-", "-", "-", "failed")
			continue
		}
		fmt.Printf("  %2d  %-30s  %5d  %8s  %8d  %7s\n",
			i+1, cli.Truncate(row.name, 27), row.score, cli.FormatMillis(row.p95), row.rate, cli.FormatPercent(row.success))
	}
	cli.Blank()
}

func sortRankingData(data []rankingData) {
	slices.SortStableFunc(data, func(a, b rankingData) int {
		if a.failed != b.failed {
			if a.failed {
				return 1
			}
			return -1
		}
		return cmp.Compare(b.score, a.score)
	})
}
