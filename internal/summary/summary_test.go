package summary

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loadtest-engine/internal/config"
	"loadtest-engine/internal/engine"
	"loadtest-engine/internal/forecast"
	"loadtest-engine/internal/stats"
)

func testReport(score int) *engine.Report {
	return &engine.Report{
		RunID:  "run",
		Driver: "synthetic",
		Config: config.TestConfig{URL: "https://api.example.com", Method: config.MethodGet},
		Result: &stats.TestResult{
			Summary:         stats.Summary{VUs: 10, Requests: 200, Failed: 2, AvgResponseTime: 150},
			HTTPStatusCodes: map[string]int64{"200": 198, "500": 2},
		},
		Forecast: &forecast.Forecast{PerformanceScore: score},
	}
}

func TestWriterExportsRunsAndMeta(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir)

	ok := NewRunResult("GET https://api.example.com", config.TestConfig{URL: "https://api.example.com"})
	ok.Complete(testReport(90))
	path, err := w.ExportRunResult(ok)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "GET_https___api_example_com.json"), path)

	failed := NewRunResult("broken", config.TestConfig{URL: "http://"})
	failed.SetError(errors.New("invalid config"))
	_, err = w.ExportRunResult(failed)
	require.NoError(t, err)

	meta, metaPath, err := w.ExportMetaResults()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "results.json"), metaPath)
	assert.Equal(t, 2, meta.Summary.TotalRuns)
	assert.Equal(t, 1, meta.Summary.SuccessfulRuns)
	assert.Equal(t, 1, meta.Summary.FailedRuns)

	data, err := os.ReadFile(metaPath)
	require.NoError(t, err)
	var decoded MetaResults
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Len(t, decoded.Runs, 2)

	// a second export must not pick up results.json as a run
	meta, _, err = w.ExportMetaResults()
	require.NoError(t, err)
	assert.Equal(t, 2, meta.Summary.TotalRuns)
}

func TestSortRankingData(t *testing.T) {
	rows := []rankingData{
		{name: "failed", failed: true},
		{name: "slow", score: 40},
		{name: "fast", score: 95},
		{name: "medium", score: 70},
	}
	sortRankingData(rows)

	names := make([]string, len(rows))
	for i, r := range rows {
		names[i] = r.name
	}
	assert.Equal(t, []string{"fast", "medium", "slow", "failed"}, names)
}

func TestFileName(t *testing.T) {
	assert.Equal(t, "POST_http___host_8080_a_b_1", fileName("POST http://host:8080/a?b=1"))
	assert.Equal(t, "run-1_ok", fileName("run-1_ok"))
}
