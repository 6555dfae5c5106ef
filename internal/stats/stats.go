package stats

import (
	"maps"
	"math"
	"slices"

	"github.com/dustin/go-humanize"

	"loadtest-engine/internal/aggregate"
	"loadtest-engine/internal/plan"
)

// Finalize converts aggregate state into a TestResult using the mean-multiplier percentiles.
func Finalize(state *aggregate.State, p *plan.Plan) *TestResult {
	return FinalizeWith(state, p, MeanMultiplier{})
}

// FinalizeWith is Finalize with a chosen percentile estimator.
func FinalizeWith(state *aggregate.State, p *plan.Plan, est Estimator) *TestResult {
	if est == nil {
		est = MeanMultiplier{}
	}

	total := state.TotalRequests
	failed := min(state.FailedRequests, total)

	avg := 0
	if total > 0 {
		avg = round(state.SumResponseTime / float64(total))
	}

	requestRate := 0
	if seconds := p.HoldDuration.Seconds(); seconds > 0 {
		requestRate = round(float64(total) / seconds)
	}

	minRT, maxRT := 0, 0
	if state.Observed() && !math.IsInf(state.MinResponseTime, 1) {
		minRT = round(state.MinResponseTime)
		maxRT = round(state.MaxResponseTime)
	}

	values := est.Estimate(state, avg)
	percentiles := make([]Percentile, len(percentileNames))
	for i, name := range percentileNames {
		percentiles[i] = Percentile{Percentile: name, Value: values[i], Rating: Rate(name, values[i])}
	}

	return &TestResult{
		Summary: Summary{
			VUs:             p.VirtualUsers,
			Requests:        total,
			AvgResponseTime: avg,
			Failed:          failed,
		},
		Metrics: Metrics{
			Duration:        p.Duration,
			RequestRate:     requestRate,
			DataReceived:    formatBytes(state.BytesReceived),
			DataSent:        formatBytes(state.BytesSent),
			MinResponseTime: minRT,
			MaxResponseTime: maxRT,
		},
		TimeSeries:      slices.Clone(state.Samples),
		HTTPStatusCodes: maps.Clone(state.StatusCodes),
		ResponseTime:    percentiles,
	}
}

func formatBytes(b float64) string {
	if b <= 0 {
		return humanize.Bytes(0)
	}
	return humanize.Bytes(uint64(math.Round(b)))
}
