// Package forecast projects how much more load a tested system can take from a finished run.
package forecast

import (
	"math"
	"time"

	"loadtest-engine/internal/stats"
)

type Level string

const (
	LevelExcellent Level = "excellent"
	LevelGood      Level = "good"
	LevelFair      Level = "fair"
	LevelPoor      Level = "poor"
)

const (
	minEffectiveResponseMs = 50
	safetyMargin           = 0.8
	hintBelowScore         = 60
)

var recommendations = map[Level]string{
	LevelExcellent: "Excellent performance. The system can take more users with confidence.",
	LevelGood:      "Good performance. Check system resources before increasing load.",
	LevelFair:      "Close to the limit. Improve performance before increasing load.",
	LevelPoor:      "Performance problems. Reduce load or fix the system urgently.",
}

const infrastructureHint = "Check CPU, memory, database connections and network latency."

// Forecast is a heuristic capacity projection derived from one TestResult.
type Forecast struct {
	PerformanceScore          int     `json:"performanceScore"`
	ResponseTimeScore         float64 `json:"responseTimeScore"`
	SuccessRateScore          float64 `json:"successRateScore"`
	SuccessRate               float64 `json:"successRate"`
	P95ResponseTime           int     `json:"p95ResponseTime"`
	ScalabilityFactor         float64 `json:"scalabilityFactor"`
	RecommendedMaxConcurrency int     `json:"recommendedMaxConcurrency"`
	PredictedThroughput       int     `json:"predictedThroughput"`
	CurrentThroughput         float64 `json:"currentThroughput"`
	ThroughputGrowthPotential float64 `json:"throughputGrowthPotential"`
	RecommendationLevel       Level   `json:"recommendationLevel"`
	Recommendation            string  `json:"recommendation"`
	Hint                      string  `json:"hint,omitempty"`
}

// Compute forecasts capacity from r. duration is the hold duration of the run and only feeds the
// current throughput; a non-positive duration counts as one second.
func Compute(r *stats.TestResult, duration time.Duration) *Forecast {
	successRate := r.SuccessRate()

	p95 := r.Summary.AvgResponseTime
	if pct, ok := r.Percentile(stats.P95); ok {
		p95 = pct.Value
	}

	rt := responseTimeScore(p95)
	sr := successRateScore(successRate)
	score := (rt*60 + sr*40) / 100

	factor, level := scalability(score)
	maxConcurrency := round(float64(r.Summary.VUs) * factor)

	effective := float64(max(p95, minEffectiveResponseMs)) / 1000
	theoretical := float64(maxConcurrency) / effective
	predicted := round(theoretical * successRate * safetyMargin)

	seconds := duration.Seconds()
	if seconds <= 0 {
		seconds = 1
	}
	current := float64(r.Summary.Requests) / seconds
	growth := (float64(predicted)/math.Max(current, 1) - 1) * 100

	f := &Forecast{
		PerformanceScore:          score,
		ResponseTimeScore:         float64(rt) / 100,
		SuccessRateScore:          float64(sr) / 100,
		SuccessRate:               successRate,
		P95ResponseTime:           p95,
		ScalabilityFactor:         factor,
		RecommendedMaxConcurrency: maxConcurrency,
		PredictedThroughput:       predicted,
		CurrentThroughput:         current,
		ThroughputGrowthPotential: growth,
		RecommendationLevel:       level,
		Recommendation:            recommendations[level],
	}
	if score < hintBelowScore {
		f.Hint = infrastructureHint
	}
	return f
}

// responseTimeScore and successRateScore return hundredths so the weighted score stays exact.
func responseTimeScore(p95 int) int {
	switch {
	case p95 <= 300:
		return 100
	case p95 <= 700:
		return 80
	case p95 <= 1500:
		return 60
	case p95 <= 3000:
		return 40
	default:
		return 20
	}
}

func successRateScore(rate float64) int {
	switch {
	case rate >= 0.99:
		return 100
	case rate >= 0.95:
		return 80
	case rate >= 0.90:
		return 60
	case rate >= 0.85:
		return 40
	default:
		return 20
	}
}

// scalability is piecewise linear within each score band.
func scalability(score int) (float64, Level) {
	s := float64(score)
	switch {
	case score >= 80:
		return 1.6 + (s-80)/100*3, LevelExcellent
	case score >= 60:
		return 1.2 + (s-60)/100*2, LevelGood
	case score >= 40:
		return 0.9 + (s-40)/100*1.5, LevelFair
	default:
		return 0.6 + s/100*0.75, LevelPoor
	}
}

func round(v float64) int {
	return int(math.Floor(v + 0.5))
}
