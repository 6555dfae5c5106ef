package aggregate

import (
	"math"
	"math/rand/v2"
	"slices"
	"time"

	"github.com/codahale/hdrhistogram"
)

const (
	MaxSamples = 30

	// latencies are recorded in microseconds up to ten minutes
	latencyMin     = 1
	latencyMax     = int64(10 * time.Minute / time.Microsecond)
	latencySigFigs = 3

	clockLayout = time.TimeOnly
)

// Sample is one entry of the bounded time series.
type Sample struct {
	At           time.Time `json:"-"`
	Time         string    `json:"time"`
	ResponseTime int       `json:"responseTime"`
	ActiveUsers  int       `json:"activeUsers"`
}

// State accumulates one run's measurement stream. It is not safe for concurrent use; partial states
// from independent shards are combined with Merge.
type State struct {
	TotalRequests   int64
	FailedRequests  int64
	SumResponseTime float64
	MinResponseTime float64
	MaxResponseTime float64
	DurationPoints  int64
	BytesReceived   float64
	BytesSent       float64
	Samples         []Sample
	StatusCodes     map[string]int64
	Latencies       *hdrhistogram.Histogram

	virtualUsers int
	rng          *rand.Rand
}

// New returns an empty state. rng synthesizes the activeUsers of each sample, which the stream
// does not carry; it is drawn uniformly from [1, virtualUsers].
func New(virtualUsers int, rng *rand.Rand) *State {
	return &State{
		MinResponseTime: math.Inf(1),
		Samples:         make([]Sample, 0, MaxSamples),
		StatusCodes:     make(map[string]int64),
		Latencies:       hdrhistogram.New(latencyMin, latencyMax, latencySigFigs),
		virtualUsers:    virtualUsers,
		rng:             rng,
	}
}

// Ingest applies a single point.
func (s *State) Ingest(p Point) {
	if p.Type != pointType {
		return
	}

	switch p.Metric {
	case MetricDuration:
		s.observe(p.Data.Value)
		if len(s.Samples) < MaxSamples {
			s.Samples = append(s.Samples, Sample{
				At:           p.Data.Time,
				Time:         p.Data.Time.Local().Format(clockLayout),
				ResponseTime: int(math.Round(p.Data.Value)),
				ActiveUsers:  s.activeUsers(),
			})
		}
	case MetricRequests:
		s.TotalRequests++
		s.StatusCodes[p.Status()]++
	case MetricFailed:
		if p.Data.Value > 0 {
			s.FailedRequests++
		}
	case MetricDataReceived:
		s.BytesReceived += p.Data.Value
	case MetricDataSent:
		s.BytesSent += p.Data.Value
	}
}

// IngestLine parses and applies one raw stream line.
func (s *State) IngestLine(line []byte) error {
	p, err := ParseLine(line)
	if err != nil {
		return err
	}
	s.Ingest(p)
	return nil
}

// Observed reports whether at least one duration point was seen.
func (s *State) Observed() bool {
	return s.DurationPoints > 0
}

// Merge folds other into s. Counters and the histogram add up, min and max combine, and the time
// series keeps the first MaxSamples samples in chronological order.
func (s *State) Merge(other *State) {
	if other == nil {
		return
	}

	s.TotalRequests += other.TotalRequests
	s.FailedRequests += other.FailedRequests
	s.SumResponseTime += other.SumResponseTime
	s.MinResponseTime = math.Min(s.MinResponseTime, other.MinResponseTime)
	s.MaxResponseTime = math.Max(s.MaxResponseTime, other.MaxResponseTime)
	s.DurationPoints += other.DurationPoints
	s.BytesReceived += other.BytesReceived
	s.BytesSent += other.BytesSent

	for code, n := range other.StatusCodes {
		s.StatusCodes[code] += n
	}
	if other.Latencies != nil {
		s.Latencies.Merge(other.Latencies)
	}

	samples := append(slices.Clone(s.Samples), other.Samples...)
	slices.SortStableFunc(samples, func(a, b Sample) int {
		return a.At.Compare(b.At)
	})
	if len(samples) > MaxSamples {
		samples = samples[:MaxSamples]
	}
	s.Samples = samples
}

func (s *State) observe(ms float64) {
	s.SumResponseTime += ms
	s.MinResponseTime = math.Min(s.MinResponseTime, ms)
	s.MaxResponseTime = math.Max(s.MaxResponseTime, ms)
	s.DurationPoints++

	us := int64(math.Round(ms * 1000))
	_ = s.Latencies.RecordValue(min(max(us, latencyMin), latencyMax))
}

func (s *State) activeUsers() int {
	if s.virtualUsers <= 0 || s.rng == nil {
		return max(s.virtualUsers, 0)
	}
	return s.rng.IntN(s.virtualUsers) + 1
}
