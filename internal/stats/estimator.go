package stats

import (
	"math"

	"loadtest-engine/internal/aggregate"
)

const (
	P50 = "p50"
	P90 = "p90"
	P95 = "p95"
	P99 = "p99"
)

var percentileNames = [4]string{P50, P90, P95, P99}

// Estimator derives p50, p90, p95 and p99 (in that order) for a finished run.
type Estimator interface {
	Name() string
	Estimate(state *aggregate.State, avg int) [4]int
}

// MeanMultiplier approximates percentiles as fixed multiples of the mean: 1, 1.5, 2 and 3.
type MeanMultiplier struct{}

func (MeanMultiplier) Name() string { return "mean" }

func (MeanMultiplier) Estimate(_ *aggregate.State, avg int) [4]int {
	a := float64(avg)
	return [4]int{avg, round(a * 1.5), round(a * 2), round(a * 3)}
}

// Histogram reads percentiles from the recorded latency histogram and falls back to
// MeanMultiplier when no latencies were recorded, as with synthetic runs.
type Histogram struct{}

func (Histogram) Name() string { return "histogram" }

func (Histogram) Estimate(state *aggregate.State, avg int) [4]int {
	if state == nil || state.Latencies == nil || state.Latencies.TotalCount() == 0 {
		return MeanMultiplier{}.Estimate(state, avg)
	}

	var out [4]int
	for i, q := range [4]float64{50, 90, 95, 99} {
		us := state.Latencies.ValueAtQuantile(q)
		out[i] = round(float64(us) / 1000)
	}
	return out
}

// EstimatorByName maps a settings value to an estimator, defaulting to MeanMultiplier.
func EstimatorByName(name string) Estimator {
	if name == (Histogram{}).Name() {
		return Histogram{}
	}
	return MeanMultiplier{}
}

// round matches JavaScript's Math.round: halves round up.
func round(v float64) int {
	return int(math.Floor(v + 0.5))
}
