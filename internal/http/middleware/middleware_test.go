package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/notary-booking/pkg/logging"
)

func TestRateLimiter_PerIP(t *testing.T) {
	rl := NewRateLimiter(1, 2)
	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.Allow("10.0.0.1"))
	assert.True(t, rl.Allow("10.0.0.1"))
	assert.False(t, rl.Allow("10.0.0.1"), "burst spent")
	assert.True(t, rl.Allow("10.0.0.2"), "separate bucket")

	now = now.Add(time.Second)
	assert.True(t, rl.Allow("10.0.0.1"), "refilled")
}

func TestRateLimiter_EvictsIdleClients(t *testing.T) {
	rl := NewRateLimiter(1, 1)
	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }
	rl.Allow("10.0.0.1")

	now = now.Add(11 * time.Minute)
	rl.Allow("10.0.0.2")
	rl.mu.Lock()
	defer rl.mu.Unlock()
	assert.Len(t, rl.clients, 1)
}

func TestRateLimit_Returns429(t *testing.T) {
	var called bool
	h := RateLimit(0.001, 1)(okHandler(&called))

	req := httptest.NewRequest(http.MethodPost, "/dashboard/refresh", nil)
	req.Header.Set("X-Real-Ip", "10.0.0.9")
	first := httptest.NewRecorder()
	h.ServeHTTP(first, req)
	second := httptest.NewRecorder()
	h.ServeHTTP(second, req)

	assert.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
}

func TestRequestLogger_LogsFailures(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.NewWithWriter("info", &buf)
	h := RequestLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))

	req := httptest.NewRequest(http.MethodPost, "/dashboard/refresh", nil)
	req.Header.Set("X-Request-ID", "req-1")
	h.ServeHTTP(httptest.NewRecorder(), req)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "status request failed", entry["msg"])
	assert.Equal(t, float64(http.StatusBadGateway), entry["status"])
	assert.Equal(t, "req-1", entry["request_id"])
}

func TestRequestLogger_QuietOnSuccess(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.NewWithWriter("info", &buf)
	var called bool
	RequestLogger(logger)(okHandler(&called)).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.True(t, called)
	assert.Empty(t, buf.String(), "success logs at debug")
}
