package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/juju/clock/testclock"
	"github.com/stretchr/testify/assert"

	applog "trackitall/internal/log"
	"trackitall/internal/metrics"
)

var epoch = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestLimiter(t *testing.T, rpm int) (*Limiter, *testclock.Clock) {
	t.Helper()
	clk := testclock.NewClock(epoch)
	rl := NewLimiter(Config{
		RequestsPerMinute: rpm,
		CleanupInterval:   time.Hour,
		IdleTimeout:       10 * time.Minute,
	}, clk, metrics.NewCollector(), applog.Discard())
	t.Cleanup(rl.Stop)
	return rl, clk
}

func TestAllowRefillsOverTime(t *testing.T) {
	rl, clk := newTestLimiter(t, 2)

	assert.True(t, rl.Allow("1.1.1.1"))
	assert.True(t, rl.Allow("1.1.1.1"))
	assert.False(t, rl.Allow("1.1.1.1"), "burst exhausted")
	assert.True(t, rl.Allow("2.2.2.2"), "clients are independent")

	clk.Advance(30 * time.Second)
	assert.True(t, rl.Allow("1.1.1.1"), "one token refilled after half a minute")
	assert.False(t, rl.Allow("1.1.1.1"))
}

func TestCleanupStale(t *testing.T) {
	rl, clk := newTestLimiter(t, 10)

	rl.Allow("1.1.1.1")
	clk.Advance(6 * time.Minute)
	rl.Allow("2.2.2.2")
	clk.Advance(5 * time.Minute)

	assert.Equal(t, 1, rl.CleanupStale())
	assert.Equal(t, 1, rl.ActiveClients())
}

func TestStopIsIdempotent(t *testing.T) {
	rl, _ := newTestLimiter(t, 10)
	assert.NotPanics(t, func() {
		rl.Stop()
		rl.Stop()
	})
}

func TestMiddlewareRejectsOverLimit(t *testing.T) {
	rl, _ := newTestLimiter(t, 1)
	h := rl.Middleware(func(r *http.Request) string { return "9.9.9.9" })(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) }))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/expenses", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/expenses", nil))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
	assert.Contains(t, rec.Body.String(), "Rate limit exceeded")
}
