package stats

import "loadtest-engine/internal/aggregate"

type Summary struct {
	VUs             int   `json:"vus"`
	Requests        int64 `json:"requests"`
	AvgResponseTime int   `json:"avgResponseTime"`
	Failed          int64 `json:"failed"`
}

type Metrics struct {
	Duration        string `json:"duration"`
	RequestRate     int    `json:"requestRate"`
	DataReceived    string `json:"dataReceived"`
	DataSent        string `json:"dataSent"`
	MinResponseTime int    `json:"minResponseTime"`
	MaxResponseTime int    `json:"maxResponseTime"`
}

type Percentile struct {
	Percentile string `json:"percentile"`
	Value      int    `json:"value"`
	Rating     Rating `json:"rating"`
}

// TestResult is the immutable outcome of one run.
type TestResult struct {
	Summary         Summary            `json:"summary"`
	Metrics         Metrics            `json:"metrics"`
	TimeSeries      []aggregate.Sample `json:"timeSeries"`
	HTTPStatusCodes map[string]int64   `json:"httpStatusCodes"`
	ResponseTime    []Percentile       `json:"responseTime"`
}

// Percentile returns the named entry, if present.
func (r *TestResult) Percentile(name string) (Percentile, bool) {
	for _, p := range r.ResponseTime {
		if p.Percentile == name {
			return p, true
		}
	}
	return Percentile{}, false
}

// SuccessRate is the fraction of requests that did not fail, 0 without requests.
func (r *TestResult) SuccessRate() float64 {
	if r.Summary.Requests <= 0 {
		return 0
	}
	return float64(r.Summary.Requests-r.Summary.Failed) / float64(r.Summary.Requests)
}
