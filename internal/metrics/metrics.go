// Package metrics exposes the prometheus instruments of the service.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Manager struct {
	CounterRequests     *prometheus.CounterVec
	CounterBlogsCreated prometheus.Counter
	CounterBlogsDeleted prometheus.Counter
	HistRequestDuration prometheus.Histogram

	gatherer prometheus.Gatherer
}

// NewManager registers all instruments with reg.
func NewManager(namespace, subsystem string, reg *prometheus.Registry) *Manager {
	factory := promauto.With(reg)

	return &Manager{
		CounterRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "requests_total",
			Help:      "The total number of handled HTTP requests",
		}, []string{"method", "status"}),
		CounterBlogsCreated: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "blogs_created_total",
			Help:      "The total number of created blogs",
		}),
		CounterBlogsDeleted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "blogs_deleted_total",
			Help:      "The total number of deleted blogs",
		}),
		HistRequestDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}),
		gatherer: reg,
	}
}

// NewTestManager returns a Manager backed by a private registry.
func NewTestManager() *Manager {
	return NewManager("bloglist", "test", prometheus.NewRegistry())
}

// BlogCreated counts a successful blog creation.
func (m *Manager) BlogCreated() {
	m.CounterBlogsCreated.Inc()
}

// BlogDeleted counts a successful blog deletion.
func (m *Manager) BlogDeleted() {
	m.CounterBlogsDeleted.Inc()
}

// Handler serves the registry in the prometheus exposition format.
func (m *Manager) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// RequestMetrics counts requests by method and status and observes their
// duration.
func (m *Manager) RequestMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(respWriter http.ResponseWriter, req *http.Request) {
		defer func(begin time.Time) {
			m.HistRequestDuration.Observe(time.Since(begin).Seconds())
		}(time.Now())

		resp := &statusRecorder{ResponseWriter: respWriter, statusCode: http.StatusOK}
		next.ServeHTTP(resp, req)

		m.CounterRequests.With(prometheus.Labels{
			"method": req.Method,
			"status": strconv.Itoa(resp.statusCode),
		}).Inc()
	})
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (r *statusRecorder) WriteHeader(statusCode int) {
	r.ResponseWriter.WriteHeader(statusCode)
	r.statusCode = statusCode
}
