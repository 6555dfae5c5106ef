package aggregate

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func point(metric string, value float64, offset time.Duration, tags map[string]any) Point {
	return Point{Type: "Point", Metric: metric, Data: PointData{Time: epoch.Add(offset), Value: value, Tags: tags}}
}

func line(metric string, value float64, status string) string {
	tags := ""
	if status != "" {
		tags = fmt.Sprintf(`,"tags":{"status":%q,"method":"GET"}`, status)
	}
	return fmt.Sprintf(`{"type":"Point","metric":%q,"data":{"time":"2025-03-01T12:00:00.5+07:00","value":%v%s}}`, metric, value, tags)
}

func newState(vus int) *State {
	return New(vus, rand.New(rand.NewPCG(1, 2)))
}

func TestState_Ingest(t *testing.T) {
	s := newState(10)

	s.Ingest(point(MetricRequests, 1, 0, map[string]any{"status": "201"}))
	s.Ingest(point(MetricRequests, 1, 0, nil))
	s.Ingest(point(MetricRequests, 1, 0, map[string]any{"status": ""}))
	s.Ingest(point(MetricDuration, 120.4, 0, nil))
	s.Ingest(point(MetricDuration, 80, time.Second, nil))
	s.Ingest(point(MetricFailed, 1, 0, nil))
	s.Ingest(point(MetricFailed, 0, 0, nil))
	s.Ingest(point(MetricDataReceived, 2048, 0, nil))
	s.Ingest(point(MetricDataSent, 512, 0, nil))
	s.Ingest(Point{Type: "Metric", Metric: MetricRequests})

	assert.Equal(t, int64(3), s.TotalRequests)
	assert.Equal(t, int64(1), s.FailedRequests)
	assert.Equal(t, map[string]int64{"201": 1, "200": 2}, s.StatusCodes)
	assert.InDelta(t, 200.4, s.SumResponseTime, 1e-9)
	assert.Equal(t, 80.0, s.MinResponseTime)
	assert.Equal(t, 120.4, s.MaxResponseTime)
	assert.Equal(t, int64(2), s.DurationPoints)
	assert.Equal(t, 2048.0, s.BytesReceived)
	assert.Equal(t, 512.0, s.BytesSent)
	assert.Equal(t, int64(2), s.Latencies.TotalCount())

	require.Len(t, s.Samples, 2)
	assert.Equal(t, 120, s.Samples[0].ResponseTime)
	assert.Equal(t, epoch.Local().Format(time.TimeOnly), s.Samples[0].Time)
	for _, sample := range s.Samples {
		assert.GreaterOrEqual(t, sample.ActiveUsers, 1)
		assert.LessOrEqual(t, sample.ActiveUsers, 10)
	}
}

func TestState_SampleCap(t *testing.T) {
	s := newState(50)
	for i := range 1000 {
		s.Ingest(point(MetricDuration, float64(i+1), time.Duration(i)*time.Millisecond, nil))
	}

	assert.Len(t, s.Samples, MaxSamples)
	assert.Equal(t, int64(1000), s.DurationPoints)
	assert.Equal(t, 1.0, s.MinResponseTime)
	assert.Equal(t, 1000.0, s.MaxResponseTime)
	assert.Equal(t, 30, s.Samples[29].ResponseTime, "oldest samples are kept")
}

func TestState_EmptyHasNoObservations(t *testing.T) {
	s := newState(1)
	assert.False(t, s.Observed())
	assert.True(t, math.IsInf(s.MinResponseTime, 1))
	assert.Zero(t, s.MaxResponseTime)
}

func TestState_Consume(t *testing.T) {
	stream := strings.Join([]string{
		`{"type":"Metric","data":{"name":"http_reqs","type":"counter"},"metric":"http_reqs"}`,
		line(MetricRequests, 1, "200"),
		line(MetricRequests, 1, "500"),
		line(MetricDuration, 250.5, ""),
		"not json at all",
		`{"type":"Point","metric":"http_reqs","data":{"value":"oops"}}`,
		"",
		line(MetricFailed, 1, ""),
		line(MetricRequests, 1, ""),
	}, "\n")

	s := newState(5)
	stats, err := s.Consume(context.Background(), strings.NewReader(stream))
	require.NoError(t, err)

	assert.Equal(t, 8, stats.Lines)
	assert.Equal(t, 2, stats.Skipped)
	assert.Equal(t, int64(3), s.TotalRequests)
	assert.Equal(t, int64(1), s.FailedRequests)
	assert.Equal(t, map[string]int64{"200": 2, "500": 1}, s.StatusCodes)
	assert.Equal(t, 250.5, s.MaxResponseTime)
}

func TestState_ConsumeCancelled(t *testing.T) {
	var b strings.Builder
	for range 5000 {
		b.WriteString(line(MetricRequests, 1, "200"))
		b.WriteByte('\n')
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newState(1).Consume(ctx, strings.NewReader(b.String()))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestState_Merge(t *testing.T) {
	shard := func(start time.Duration, values ...float64) *State {
		s := newState(4)
		for i, v := range values {
			s.Ingest(point(MetricRequests, 1, 0, map[string]any{"status": "200"}))
			s.Ingest(point(MetricDuration, v, start+time.Duration(i)*time.Second, nil))
		}
		s.Ingest(point(MetricFailed, 1, 0, nil))
		return s
	}

	t.Run("counters combine regardless of order", func(t *testing.T) {
		ab := newState(4)
		ab.Merge(shard(0, 10, 20))
		ab.Merge(shard(time.Minute, 5, 40))

		ba := newState(4)
		ba.Merge(shard(time.Minute, 5, 40))
		ba.Merge(shard(0, 10, 20))

		for _, s := range []*State{ab, ba} {
			assert.Equal(t, int64(4), s.TotalRequests)
			assert.Equal(t, int64(2), s.FailedRequests)
			assert.Equal(t, 75.0, s.SumResponseTime)
			assert.Equal(t, 5.0, s.MinResponseTime)
			assert.Equal(t, 40.0, s.MaxResponseTime)
			assert.Equal(t, int64(4), s.StatusCodes["200"])
			assert.Equal(t, int64(4), s.Latencies.TotalCount())
		}
		assert.Equal(t, ab.Samples, ba.Samples)
		assert.Equal(t, []int{10, 20, 5, 40}, responseTimes(ab.Samples))
	})

	t.Run("time series keeps first samples chronologically", func(t *testing.T) {
		late := newState(4)
		early := newState(4)
		for i := range MaxSamples {
			late.Ingest(point(MetricDuration, 900, time.Hour+time.Duration(i)*time.Second, nil))
			early.Ingest(point(MetricDuration, 100, time.Duration(i)*time.Second, nil))
		}

		late.Merge(early)
		require.Len(t, late.Samples, MaxSamples)
		for _, sample := range late.Samples {
			assert.Equal(t, 100, sample.ResponseTime)
		}
	})

	t.Run("merging empty state is identity", func(t *testing.T) {
		s := shard(0, 12, 30)
		before := s.TotalRequests
		s.Merge(newState(4))
		s.Merge(nil)
		assert.Equal(t, before, s.TotalRequests)
		assert.Equal(t, 12.0, s.MinResponseTime)
	})
}

func TestPoint_Status(t *testing.T) {
	assert.Equal(t, "404", Point{Data: PointData{Tags: map[string]any{"status": "404"}}}.Status())
	assert.Equal(t, "503", Point{Data: PointData{Tags: map[string]any{"status": float64(503)}}}.Status())
	assert.Equal(t, "200", Point{}.Status())
}

func responseTimes(samples []Sample) []int {
	out := make([]int, 0, len(samples))
	for _, s := range samples {
		out = append(out, s.ResponseTime)
	}
	return out
}
