package orchestrator

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loadtest-engine/internal/config"
	"loadtest-engine/internal/engine"
	"loadtest-engine/internal/history"
	"loadtest-engine/internal/stats"
)

type fakeRunner struct {
	calls    atomic.Int32
	inFlight atomic.Int32
	peak     atomic.Int32
	delay    time.Duration
}

func (f *fakeRunner) Run(ctx context.Context, cfg config.TestConfig) (*engine.Report, error) {
	f.calls.Add(1)
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		peak := f.peak.Load()
		if n <= peak || f.peak.CompareAndSwap(peak, n) {
			break
		}
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(f.delay):
	}

	if cfg.URL == "invalid" {
		return nil, errors.New("invalid config")
	}
	return &engine.Report{
		RunID:  "run-" + cfg.URL,
		Driver: "fake",
		Config: cfg,
		Result: &stats.TestResult{Summary: stats.Summary{VUs: cfg.VirtualUsers, Requests: 10}},
	}, nil
}

func testConfig(url string) config.TestConfig {
	return config.TestConfig{URL: url, Method: config.MethodGet, VirtualUsers: 1, Duration: "1s", RampUp: "1s"}
}

func TestRunAllRecordsEveryRun(t *testing.T) {
	runner := &fakeRunner{delay: 20 * time.Millisecond}
	store := history.NewStore(history.NewMemoryRepository(0), 10, nil)
	dir := t.TempDir()
	o := New(runner, WithHistory(store), WithResultsDir(dir), WithParallelism(2))

	configs := []config.TestConfig{testConfig("a"), testConfig("b"), testConfig("c"), testConfig("d")}
	results, err := o.RunAll(context.Background(), configs)
	require.NoError(t, err)
	require.Len(t, results, 4)

	for i, result := range results {
		assert.Empty(t, result.Error)
		assert.Equal(t, configs[i].URL, result.Report.Config.URL, "results keep input order")
	}
	assert.Equal(t, int32(4), runner.calls.Load())
	assert.LessOrEqual(t, runner.peak.Load(), int32(2))

	entries, err := store.List(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, entries, 4)

	files, err := filepath.Glob(filepath.Join(dir, "*.json"))
	require.NoError(t, err)
	assert.Len(t, files, 5)
	_, err = os.Stat(filepath.Join(dir, "results.json"))
	assert.NoError(t, err)
}

func TestRunAllKeepsGoingAfterFailure(t *testing.T) {
	o := New(&fakeRunner{}, WithParallelism(1))

	results, err := o.RunAll(context.Background(), []config.TestConfig{testConfig("invalid"), testConfig("ok")})
	require.ErrorIs(t, err, ErrRunsFailed)
	assert.Equal(t, "invalid config", results[0].Error)
	assert.Empty(t, results[1].Error)
	assert.NotNil(t, results[1].Report)
}

func TestRunAllCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	o := New(&fakeRunner{delay: time.Second})
	results, err := o.RunAll(ctx, []config.TestConfig{testConfig("a")})
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotEmpty(t, results[0].Error)
}

func TestExecuteAndRetry(t *testing.T) {
	ctx := context.Background()
	store := history.NewStore(history.NewMemoryRepository(0), 0, nil)
	o := New(&fakeRunner{}, WithHistory(store))

	report, entry, err := o.Execute(ctx, testConfig("https://api.example.com"))
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, report.Result, entry.Result)

	retried, retryEntry, err := o.Retry(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, "https://api.example.com", retried.Config.URL)
	assert.NotEqual(t, entry.ID, retryEntry.ID)

	_, _, err = o.Retry(ctx, "missing")
	assert.ErrorIs(t, err, history.ErrNotFound)
}

func TestExecuteWithoutHistory(t *testing.T) {
	o := New(&fakeRunner{})

	report, entry, err := o.Execute(context.Background(), testConfig("x"))
	require.NoError(t, err)
	assert.NotNil(t, report)
	assert.Nil(t, entry)

	_, _, err = o.Retry(context.Background(), "any")
	assert.ErrorIs(t, err, history.ErrNotFound)
}

func TestLongestRun(t *testing.T) {
	configs := []config.TestConfig{
		{Duration: "30s", RampUp: "5s"},
		{Duration: "1m", RampUp: "10s"},
	}
	assert.Equal(t, 80*time.Second, longestRun(configs))
}
