package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestCounters verifies the helper methods update their vectors
func TestCounters(t *testing.T) {
	m := New()

	m.ListingPage("news", true)
	m.ListingPage("news", false)
	m.Candidate("news", "new", 3)
	m.Candidate("news", "duplicate", 0)
	m.Extraction("news", true)
	m.Import("news", "imported")
	m.Import("news", "imported")
	m.ObserveStep("discover", 10*time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.ListingPages.WithLabelValues("news", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ListingPages.WithLabelValues("news", "fetch_failed")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.Candidates.WithLabelValues("news", "new")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Extractions.WithLabelValues("news", "ok")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Imports.WithLabelValues("news", "imported")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.StepDuration))
}

// TestNil verifies a nil Metrics is usable
func TestNil(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ListingPage("n", true)
		m.Candidate("n", "new", 1)
		m.Extraction("n", false)
		m.Import("n", "failed")
		m.ObserveStep("import", time.Second)
	})
}

// TestHandlerAndMiddleware verifies request counting and exposition
func TestHandlerAndMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := New()

	router := gin.New()
	router.Use(m.GinMiddleware())
	router.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })
	router.GET("/metrics", gin.WrapH(m.Handler()))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	require.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequests.WithLabelValues("GET", "/ping", "200")))

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), "collect_http_requests_total"))
}
