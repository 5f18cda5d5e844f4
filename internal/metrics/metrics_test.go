package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorCounts(t *testing.T) {
	c := NewCollector()

	c.ExpenseOp("create", nil)
	c.ExpenseOp("create", nil)
	c.ExpenseOp("create", errors.New("boom"))
	c.ReceiptURLCache(true)
	c.ReceiptURLCache(false)
	c.ReceiptURLCache(false)
	c.CategoryRefresh(6, nil)
	c.CategoryRefresh(0, errors.New("down"))
	c.QueuePublish("user-signups", nil)
	c.RateLimited()
	c.RateLimited()

	assert.Equal(t, 2.0, testutil.ToFloat64(c.expenseOps.WithLabelValues("create", ResultOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.expenseOps.WithLabelValues("create", ResultError)))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.receiptURLCache.WithLabelValues(ResultMiss)))
	assert.Equal(t, 6.0, testutil.ToFloat64(c.categoryCount), "failed refresh keeps the last count")
	assert.Equal(t, 1.0, testutil.ToFloat64(c.queuePublishes.WithLabelValues("user-signups", ResultOK)))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.rateLimited))
}

func TestNilCollectorIsNoop(t *testing.T) {
	var c *Collector
	assert.NotPanics(t, func() {
		c.ExpenseOp("create", nil)
		c.ReceiptURLCache(true)
		c.CategoryRefresh(1, nil)
		c.QueuePublish("q", nil)
		c.EmailSent("welcome", nil)
		c.HTTPRequest("/expenses", 200, time.Millisecond)
		c.RateLimited()
		c.SuspiciousRequest()
	})
}

func TestHandlerExposesRegisteredCollector(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector()
	require.NoError(t, reg.Register(c))
	c.HTTPRequest("/healthz", http.StatusOK, 2*time.Millisecond)

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `trackitall_http_requests_total{code="200",route="/healthz"} 1`))
	assert.Contains(t, body, "trackitall_http_request_duration_seconds_bucket")
}
