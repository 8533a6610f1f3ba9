package metrics

import (
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

// PromMetrics holds the scrape-side instruments served on /metrics.
type PromMetrics struct {
	httpRequests        *prometheus.CounterVec
	httpDuration        *prometheus.HistogramVec
	fulfillmentDuration *prometheus.HistogramVec
	lockWait            prometheus.Histogram
	jobRuns             *prometheus.CounterVec
	jobDuration         *prometheus.HistogramVec
}

var (
	promOnce    sync.Once
	promMetrics *PromMetrics
)

// Prometheus returns the process-wide instruments registered on the default registerer.
func Prometheus(cfg Config) *PromMetrics {
	promOnce.Do(func() {
		promMetrics = NewPromMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return promMetrics
}

func NewPromMetrics(registerer prometheus.Registerer, cfg Config) *PromMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "storefront"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	m := &PromMetrics{
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "storefront_http_requests_total",
			Help:        "HTTP requests by route and status.",
			ConstLabels: constLabels,
		}, []string{"method", "route", "status_code"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "storefront_http_request_duration_seconds",
			Help:        "HTTP request latency by route.",
			Buckets:     prometheus.DefBuckets,
			ConstLabels: constLabels,
		}, []string{"method", "route"}),
		fulfillmentDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "storefront_fulfillment_duration_seconds",
			Help:        "Time spent fulfilling one capture, lock wait included.",
			Buckets:     []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			ConstLabels: constLabels,
		}, []string{"outcome"}),
		lockWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:        "storefront_fulfillment_lock_wait_seconds",
			Help:        "Time spent waiting for the per-transaction lock.",
			Buckets:     []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			ConstLabels: constLabels,
		}),
		jobRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "storefront_scheduler_job_runs_total",
			Help:        "Scheduler job runs by job and result.",
			ConstLabels: constLabels,
		}, []string{"job", "result"}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "storefront_scheduler_job_duration_seconds",
			Help:        "Scheduler job duration.",
			Buckets:     prometheus.DefBuckets,
			ConstLabels: constLabels,
		}, []string{"job"}),
	}

	registerer.MustRegister(m.httpRequests, m.httpDuration, m.fulfillmentDuration, m.lockWait, m.jobRuns, m.jobDuration)
	return m
}

func (m *PromMetrics) ObserveFulfillment(outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.fulfillmentDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

func (m *PromMetrics) ObserveLockWait(duration time.Duration) {
	if m == nil {
		return
	}
	m.lockWait.Observe(duration.Seconds())
}

// ObserveJob records one scheduler run. result is ok, error, timeout or skipped.
func (m *PromMetrics) ObserveJob(job, result string, duration time.Duration) {
	if m == nil {
		return
	}
	m.jobRuns.WithLabelValues(job, result).Inc()
	m.jobDuration.WithLabelValues(job).Observe(duration.Seconds())
}

// GinMiddleware records request counts and latency per matched route.
func (m *PromMetrics) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unknown"
		}
		m.httpRequests.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		m.httpDuration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}
