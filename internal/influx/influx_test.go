package influx

import (
	"context"
	"testing"
	"time"

	"github.com/InfluxCommunity/influxdb3-go/influxdb3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"loadtest-engine/internal/aggregate"
	"loadtest-engine/internal/config"
	"loadtest-engine/internal/engine"
	"loadtest-engine/internal/forecast"
	"loadtest-engine/internal/stats"
)

type fakeWriter struct {
	batches [][]*influxdb3.Point
	closed  bool
}

func (f *fakeWriter) WritePoints(_ context.Context, points []*influxdb3.Point, _ ...influxdb3.WriteOption) error {
	f.batches = append(f.batches, append([]*influxdb3.Point(nil), points...))
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func testReport(samples int) *engine.Report {
	started := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	series := make([]aggregate.Sample, samples)
	for i := range series {
		series[i] = aggregate.Sample{At: started.Add(time.Duration(i) * time.Second), ResponseTime: 100 + i, ActiveUsers: 5}
	}
	return &engine.Report{
		RunID:     "run-1",
		Driver:    "synthetic",
		StartedAt: started,
		Config:    config.TestConfig{URL: "https://api.example.com", Method: config.MethodGet},
		Result: &stats.TestResult{
			Summary:         stats.Summary{VUs: 5, Requests: 100, AvgResponseTime: 120},
			TimeSeries:      series,
			HTTPStatusCodes: map[string]int64{"200": 95, "500": 5},
			ResponseTime: []stats.Percentile{
				{Percentile: "p50", Value: 120, Rating: stats.RatingExcellent},
				{Percentile: "p95", Value: 180, Rating: stats.RatingExcellent},
			},
		},
		Forecast: &forecast.Forecast{PerformanceScore: 90},
	}
}

func TestRecords(t *testing.T) {
	rows := records(testReport(3))
	require.Len(t, rows, 1+3+2+2)

	summary := rows[0]
	assert.Equal(t, "run_summary", summary.measurement)
	assert.Equal(t, "run-1", summary.tags["run_id"])
	assert.Equal(t, "GET", summary.tags["method"])
	assert.Equal(t, int64(100), summary.fields["requests"])
	assert.Equal(t, 90, summary.fields["performance_score"])

	sample := rows[2]
	assert.Equal(t, "run_sample", sample.measurement)
	assert.Equal(t, 101, sample.fields["response_ms"])
	assert.Equal(t, time.Date(2026, 3, 4, 5, 6, 8, 0, time.UTC), sample.ts)

	statuses := map[string]any{}
	for _, row := range rows {
		if row.measurement == "run_status" {
			statuses[row.tags["status"]] = row.fields["count"]
		}
	}
	assert.Equal(t, map[string]any{"200": int64(95), "500": int64(5)}, statuses)
}

func TestRecordsWithoutResult(t *testing.T) {
	assert.Empty(t, records(nil))
	assert.Empty(t, records(&engine.Report{}))
}

func TestWriteReportBatches(t *testing.T) {
	writer := &fakeWriter{}
	client := &Client{writer: writer, logger: zap.NewNop()}

	require.NoError(t, client.WriteReport(context.Background(), testReport(writeBatchSize)))
	require.Len(t, writer.batches, 2)
	assert.Len(t, writer.batches[0], writeBatchSize)
	assert.Len(t, writer.batches[1], 1+2+2)

	require.NoError(t, client.Close())
	assert.True(t, writer.closed)
}

func TestNilClient(t *testing.T) {
	var client *Client
	assert.NoError(t, client.WriteReport(context.Background(), testReport(1)))
	assert.NoError(t, client.Close())

	disabled, err := NewClient(config.InfluxSettings{}, nil)
	require.NoError(t, err)
	assert.Nil(t, disabled)
}

func TestWriteReportCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := &Client{writer: &fakeWriter{}, logger: zap.NewNop()}
	assert.ErrorIs(t, client.WriteReport(ctx, testReport(1)), context.Canceled)
}
