package stats

type Rating string

const (
	RatingExcellent Rating = "excellent"
	RatingGood      Rating = "good"
	RatingFair      Rating = "fair"
	RatingPoor      Rating = "poor"
)

type thresholds struct {
	excellent, good, fair int
}

var ratingThresholds = map[string]thresholds{
	P50: {100, 300, 800},
	P90: {200, 500, 1200},
	P95: {300, 700, 1500},
	P99: {500, 1000, 2000},
}

// Rate grades a percentile value in milliseconds. Unknown percentiles use the p50 bands.
func Rate(percentile string, ms int) Rating {
	t, ok := ratingThresholds[percentile]
	if !ok {
		t = ratingThresholds[P50]
	}
	switch {
	case ms <= t.excellent:
		return RatingExcellent
	case ms <= t.good:
		return RatingGood
	case ms <= t.fair:
		return RatingFair
	default:
		return RatingPoor
	}
}
