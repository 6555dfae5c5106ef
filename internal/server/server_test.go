package server

import (
	"bytes"
	"context"
	"encoding/json"
	"math/rand/v2"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loadtest-engine/internal/driver"
	"loadtest-engine/internal/engine"
	"loadtest-engine/internal/history"
	"loadtest-engine/internal/orchestrator"
)

const validBody = `{"url":"https://api.example.com/users","method":"GET","virtualUsers":10,"duration":"10s","rampUp":"2s"}`

func newServer(t *testing.T, withHistory bool, perSecond float64, burst int) *Server {
	t.Helper()

	reg := prometheus.NewRegistry()
	eng := engine.New(
		engine.WithDriver(driver.NewSynthetic(rand.New(rand.NewPCG(1, 2)))),
		engine.WithMetrics(engine.NewMetrics(reg)),
	)

	var opts []orchestrator.Option
	if withHistory {
		opts = append(opts, orchestrator.WithHistory(history.NewStore(history.NewMemoryRepository(0), 0, nil)))
	}
	orch := orchestrator.New(eng, opts...)

	return New(Config{RateLimit: perSecond, RateBurst: burst, Gatherer: reg}, orch, nil)
}

func newTestServer(t *testing.T, withHistory bool, perSecond float64, burst int) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(newServer(t, withHistory, perSecond, burst).Handler())
	t.Cleanup(ts.Close)
	return ts
}

func do(t *testing.T, method, url, body string) (*http.Response, []byte) {
	t.Helper()

	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	return resp, []byte(buf.String())
}

func TestRunLoadTest(t *testing.T) {
	ts := newTestServer(t, true, 100, 10)

	resp, body := do(t, http.MethodPost, ts.URL+"/api/load-test", validBody)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var out LoadTestResponse
	require.NoError(t, json.Unmarshal(body, &out))
	assert.NotEmpty(t, out.ID)
	assert.Equal(t, "synthetic", out.Driver)
	require.NotNil(t, out.Result)
	assert.Equal(t, int64(80), out.Result.Summary.Requests)
	assert.Equal(t, int64(4), out.Result.Summary.Failed)
	require.NotNil(t, out.Forecast)

	resp, body = do(t, http.MethodGet, ts.URL+"/api/history/"+out.ID, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var entry history.Entry
	require.NoError(t, json.Unmarshal(body, &entry))
	assert.Equal(t, "https://api.example.com/users", entry.Config.URL)
}

func TestRunLoadTestInvalid(t *testing.T) {
	ts := newTestServer(t, true, 100, 10)

	resp, body := do(t, http.MethodPost, ts.URL+"/api/load-test",
		`{"url":"https://api.example.com","method":"TRACE","virtualUsers":0,"duration":"10","rampUp":"1s"}`)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var out struct {
		Error   string `json:"error"`
		Details []struct {
			Field string `json:"field"`
			Rule  string `json:"rule"`
		} `json:"details"`
	}
	require.NoError(t, json.Unmarshal(body, &out))
	assert.Equal(t, errInvalidConfig, out.Error)

	fields := map[string]string{}
	for _, d := range out.Details {
		fields[d.Field] = d.Rule
	}
	assert.Equal(t, "method", fields["method"])
	assert.Equal(t, "gt", fields["virtualUsers"])
	assert.Equal(t, "duration", fields["duration"])

	resp, _ = do(t, http.MethodPost, ts.URL+"/api/load-test", `{"url":`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body = do(t, http.MethodGet, ts.URL+"/api/history", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `[]`, string(body))
}

func TestRateLimit(t *testing.T) {
	ts := newTestServer(t, false, 0.001, 1)

	resp, _ := do(t, http.MethodPost, ts.URL+"/api/load-test", validBody)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := do(t, http.MethodPost, ts.URL+"/api/load-test", validBody)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "1", resp.Header.Get("Retry-After"))
	assert.Contains(t, string(body), errRateLimited)
}

func TestHistoryLifecycle(t *testing.T) {
	ts := newTestServer(t, true, 100, 10)

	ids := make([]string, 0, 3)
	for range 3 {
		resp, body := do(t, http.MethodPost, ts.URL+"/api/load-test", validBody)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var out LoadTestResponse
		require.NoError(t, json.Unmarshal(body, &out))
		ids = append(ids, out.ID)
	}

	resp, body := do(t, http.MethodGet, ts.URL+"/api/history?limit=2", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var entries []history.Entry
	require.NoError(t, json.Unmarshal(body, &entries))
	require.Len(t, entries, 2)
	assert.Equal(t, ids[2], entries[0].ID)

	resp, _ = do(t, http.MethodGet, ts.URL+"/api/history?limit=x", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body = do(t, http.MethodPost, ts.URL+"/api/history/"+ids[0]+"/retry", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var retried LoadTestResponse
	require.NoError(t, json.Unmarshal(body, &retried))
	assert.NotContains(t, ids, retried.ID)

	resp, _ = do(t, http.MethodDelete, ts.URL+"/api/history/"+ids[1], "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp, _ = do(t, http.MethodDelete, ts.URL+"/api/history/"+ids[1], "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp, _ = do(t, http.MethodGet, ts.URL+"/api/history/"+ids[1], "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp, _ = do(t, http.MethodPost, ts.URL+"/api/history/missing/retry", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = do(t, http.MethodDelete, ts.URL+"/api/history", "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp, body = do(t, http.MethodGet, ts.URL+"/api/history", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `[]`, string(body))
}

func TestHealthAndMetrics(t *testing.T) {
	ts := newTestServer(t, true, 100, 10)

	resp, body := do(t, http.MethodGet, ts.URL+"/health", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"healthy","history":"ok"}`, string(body))

	do(t, http.MethodPost, ts.URL+"/api/load-test", validBody)
	resp, body = do(t, http.MethodGet, ts.URL+"/metrics", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "loadtest_runs_total")

	resp, _ = do(t, http.MethodGet, ts.URL+"/nope", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRunCancelledByShutdown(t *testing.T) {
	srv := newServer(t, false, 100, 10)

	ctx, cancel := context.WithCancelCause(context.Background())
	cancel(errShuttingDown)
	req := httptest.NewRequestWithContext(ctx, http.MethodPost, "/api/load-test", strings.NewReader(validBody))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "5", rec.Header().Get("Retry-After"))
	assert.Contains(t, rec.Body.String(), errShutdown)
}

func TestRunCancelledByClient(t *testing.T) {
	srv := newServer(t, false, 100, 10)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequestWithContext(ctx, http.MethodPost, "/api/load-test", strings.NewReader(validBody))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Zero(t, rec.Body.Len())
}
