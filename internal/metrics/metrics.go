// Package metrics exposes the service's Prometheus instrumentation.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsNamespace = "trackitall"

// Result label values.
const (
	ResultOK    = "ok"
	ResultError = "error"
	ResultHit   = "hit"
	ResultMiss  = "miss"
)

// Collector is a prometheus.Collector for the expense, receipt, category,
// queue and HTTP paths. A nil *Collector records nothing.
type Collector struct {
	expenseOps        *prometheus.CounterVec
	receiptURLCache   *prometheus.CounterVec
	categoryRefreshes *prometheus.CounterVec
	categoryCount     prometheus.Gauge
	queuePublishes    *prometheus.CounterVec
	emailsSent        *prometheus.CounterVec
	httpRequests      *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec
	rateLimited       prometheus.Counter
	suspicious        prometheus.Counter
}

// NewCollector returns a new Collector.
func NewCollector() *Collector {
	return &Collector{
		expenseOps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "expense_operations_total",
				Help:      "Expense service operations by operation and result.",
			}, []string{"operation", "result"},
		),
		receiptURLCache: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "receipt_url_cache_total",
				Help:      "Signed receipt URL lookups by cache result.",
			}, []string{"result"},
		),
		categoryRefreshes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "category_refreshes_total",
				Help:      "Category cache refreshes by result.",
			}, []string{"result"},
		),
		categoryCount: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      "categories_cached",
				Help:      "Number of categories loaded by the last successful refresh.",
			},
		),
		queuePublishes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "queue_publishes_total",
				Help:      "Messages published by queue and result.",
			}, []string{"queue", "result"},
		),
		emailsSent: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "emails_sent_total",
				Help:      "Emails sent by the worker by kind and result.",
			}, []string{"kind", "result"},
		),
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "http_requests_total",
				Help:      "HTTP requests by route and status code.",
			}, []string{"route", "code"},
		),
		httpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request latency by route.",
				Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			}, []string{"route"},
		),
		rateLimited: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "http_rate_limited_total",
				Help:      "Requests rejected by the per-client rate limiter.",
			},
		),
		suspicious: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "http_suspicious_requests_total",
				Help:      "Requests matching a known probing pattern.",
			},
		),
	}
}

// Describe is part of the prometheus.Collector interface.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	c.expenseOps.Describe(ch)
	c.receiptURLCache.Describe(ch)
	c.categoryRefreshes.Describe(ch)
	c.categoryCount.Describe(ch)
	c.queuePublishes.Describe(ch)
	c.emailsSent.Describe(ch)
	c.httpRequests.Describe(ch)
	c.httpDuration.Describe(ch)
	c.rateLimited.Describe(ch)
	c.suspicious.Describe(ch)
}

// Collect is part of the prometheus.Collector interface.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.expenseOps.Collect(ch)
	c.receiptURLCache.Collect(ch)
	c.categoryRefreshes.Collect(ch)
	c.categoryCount.Collect(ch)
	c.queuePublishes.Collect(ch)
	c.emailsSent.Collect(ch)
	c.httpRequests.Collect(ch)
	c.httpDuration.Collect(ch)
	c.rateLimited.Collect(ch)
	c.suspicious.Collect(ch)
}

func result(err error) string {
	if err != nil {
		return ResultError
	}
	return ResultOK
}

func (c *Collector) ExpenseOp(op string, err error) {
	if c == nil {
		return
	}
	c.expenseOps.WithLabelValues(op, result(err)).Inc()
}

func (c *Collector) ReceiptURLCache(hit bool) {
	if c == nil {
		return
	}
	r := ResultMiss
	if hit {
		r = ResultHit
	}
	c.receiptURLCache.WithLabelValues(r).Inc()
}

// CategoryRefresh records a refresh attempt; count is ignored on error.
func (c *Collector) CategoryRefresh(count int, err error) {
	if c == nil {
		return
	}
	c.categoryRefreshes.WithLabelValues(result(err)).Inc()
	if err == nil {
		c.categoryCount.Set(float64(count))
	}
}

func (c *Collector) QueuePublish(queue string, err error) {
	if c == nil {
		return
	}
	c.queuePublishes.WithLabelValues(queue, result(err)).Inc()
}

func (c *Collector) EmailSent(kind string, err error) {
	if c == nil {
		return
	}
	c.emailsSent.WithLabelValues(kind, result(err)).Inc()
}

func (c *Collector) HTTPRequest(route string, code int, d time.Duration) {
	if c == nil {
		return
	}
	c.httpRequests.WithLabelValues(route, strconv.Itoa(code)).Inc()
	c.httpDuration.WithLabelValues(route).Observe(d.Seconds())
}

func (c *Collector) RateLimited() {
	if c == nil {
		return
	}
	c.rateLimited.Inc()
}

func (c *Collector) SuspiciousRequest() {
	if c == nil {
		return
	}
	c.suspicious.Inc()
}

// Handler serves the metrics gathered by g in the Prometheus text format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
