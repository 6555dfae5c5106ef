package server

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func limitedStatus(rl *rateLimiter, remoteAddr string) int {
	handler := rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	req := httptest.NewRequest(http.MethodPost, "/api/load-test", nil)
	req.RemoteAddr = remoteAddr
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec.Code
}

func TestRateLimiterPerClient(t *testing.T) {
	rl := newRateLimiter(0.001, 1)

	assert.Equal(t, http.StatusNoContent, limitedStatus(rl, "10.0.0.1:5000"))
	assert.Equal(t, http.StatusTooManyRequests, limitedStatus(rl, "10.0.0.1:5001"))
	assert.Equal(t, http.StatusNoContent, limitedStatus(rl, "10.0.0.2:5000"))
	assert.Equal(t, http.StatusTooManyRequests, limitedStatus(rl, "10.0.0.2:5002"))
	assert.Equal(t, 2, rl.clientCount())
}

func TestRateLimiterEvictsIdleClients(t *testing.T) {
	rl := newRateLimiter(0.001, 1)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	limitedStatus(rl, "10.0.0.1:5000")
	limitedStatus(rl, "10.0.0.2:5000")
	assert.Equal(t, 2, rl.clientCount())

	now = now.Add(2 * clientIdleTTL)
	assert.Equal(t, http.StatusNoContent, limitedStatus(rl, "10.0.0.3:5000"))
	assert.Equal(t, 1, rl.clientCount())
}

func TestClientKey(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "[::1]:8080"
	assert.Equal(t, "::1", clientKey(req))

	req.RemoteAddr = "pipe"
	assert.Equal(t, "pipe", clientKey(req))
}
