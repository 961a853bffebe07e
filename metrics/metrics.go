// Package metrics exposes pipeline counters to Prometheus.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the collectors of one registry. A nil *Metrics discards
// everything, so components can take one unconditionally.
type Metrics struct {
	registry *prometheus.Registry

	ListingPages *prometheus.CounterVec
	Candidates   *prometheus.CounterVec
	Extractions  *prometheus.CounterVec
	Imports      *prometheus.CounterVec
	StepDuration *prometheus.HistogramVec
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec
}

// New creates the collectors on a fresh registry that also carries the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		ListingPages: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "collect_listing_pages_total",
				Help: "Listing pages processed by discovery",
			},
			[]string{"node", "result"},
		),
		Candidates: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "collect_candidates_total",
				Help: "Discovery candidates by outcome",
			},
			[]string{"node", "outcome"},
		),
		Extractions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "collect_extractions_total",
				Help: "Detail pages extracted",
			},
			[]string{"node", "result"},
		),
		Imports: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "collect_imports_total",
				Help: "Import gateway outcomes",
			},
			[]string{"node", "result"},
		),
		StepDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "collect_step_duration_seconds",
				Help:    "Duration of one pipeline step",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"stage"},
		),
		HTTPRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "collect_http_requests_total",
				Help: "HTTP requests served",
			},
			[]string{"method", "route", "status_code"},
		),
		HTTPDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "collect_http_request_duration_seconds",
				Help:    "Duration of HTTP requests served",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"method", "route"},
		),
	}
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ListingPage counts one discovery page.
func (m *Metrics) ListingPage(node string, ok bool) {
	if m == nil {
		return
	}
	m.ListingPages.WithLabelValues(node, result(ok, "ok", "fetch_failed")).Inc()
}

// Candidate counts n discovery candidates with the given outcome
// (new, duplicate, malformed).
func (m *Metrics) Candidate(node, outcome string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.Candidates.WithLabelValues(node, outcome).Add(float64(n))
}

// Extraction counts one extracted item.
func (m *Metrics) Extraction(node string, ok bool) {
	if m == nil {
		return
	}
	m.Extractions.WithLabelValues(node, result(ok, "ok", "fetch_failed")).Inc()
}

// Import counts one import attempt. outcome is imported, failed or held.
func (m *Metrics) Import(node, outcome string) {
	if m == nil {
		return
	}
	m.Imports.WithLabelValues(node, outcome).Inc()
}

// ObserveStep records how long one step of stage took.
func (m *Metrics) ObserveStep(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.StepDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// GinMiddleware counts requests by matched route.
func (m *Metrics) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.HTTPRequests.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		m.HTTPDuration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}

func result(ok bool, yes, no string) string {
	if ok {
		return yes
	}
	return no
}
