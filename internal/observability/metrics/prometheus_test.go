package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGinMiddlewareCountsRequests(t *testing.T) {
	gin.SetMode(gin.TestMode)
	registry := prometheus.NewRegistry()
	m := NewPromMetrics(registry, Config{ServiceName: "storefront-test", Environment: "test"})

	router := gin.New()
	router.Use(m.GinMiddleware())
	router.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })

	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
		require.Equal(t, http.StatusOK, rec.Code)
	}

	got := testutil.ToFloat64(m.httpRequests.WithLabelValues(http.MethodGet, "/health", "200"))
	assert.Equal(t, float64(3), got)
}

func TestObserveFulfillment(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewPromMetrics(registry, Config{})

	m.ObserveFulfillment("fulfilled", 20*time.Millisecond)
	m.ObserveFulfillment("fulfilled", 40*time.Millisecond)
	m.ObserveLockWait(time.Millisecond)

	var out dto.Metric
	observer, err := m.fulfillmentDuration.GetMetricWithLabelValues("fulfilled")
	require.NoError(t, err)
	require.NoError(t, observer.(prometheus.Histogram).Write(&out))
	assert.Equal(t, uint64(2), out.GetHistogram().GetSampleCount())

	var nilMetrics *PromMetrics
	assert.NotPanics(t, func() { nilMetrics.ObserveLockWait(time.Second) })
}

func TestObserveJob(t *testing.T) {
	m := NewPromMetrics(prometheus.NewRegistry(), Config{})

	m.ObserveJob("recover_fulfillments", "ok", time.Second)
	m.ObserveJob("recover_fulfillments", "skipped", 0)
	m.ObserveJob("recover_fulfillments", "ok", time.Second)

	assert.Equal(t, float64(2), testutil.ToFloat64(m.jobRuns.WithLabelValues("recover_fulfillments", "ok")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.jobRuns.WithLabelValues("recover_fulfillments", "skipped")))
}
