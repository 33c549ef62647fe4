package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cbc-analysis-server/internal/service"
)

func scrape(t *testing.T, r *Recorder) string {
	t.Helper()
	w := httptest.NewRecorder()
	r.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	return w.Body.String()
}

func TestRecorder(t *testing.T) {
	r := NewRecorder("cbc")
	r.ObservePrediction("upload", "No")
	r.ObservePrediction("upload", "No")
	r.ObserveFailure("EXTRACTION_ERROR")

	out := scrape(t, r)
	assert.Contains(t, out, `cbc_predictions_total{prediction="No",source="upload"} 2`)
	assert.Contains(t, out, `cbc_analysis_failures_total{code="EXTRACTION_ERROR"} 1`)
	assert.Contains(t, out, "go_goroutines")
}

func TestRecorder_SeparateRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		NewRecorder("cbc")
		NewRecorder("cbc")
	})
}

func TestMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := NewRecorder("cbc")

	router := gin.New()
	router.Use(r.Middleware())
	router.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })

	for _, path := range []string{"/health", "/health", "/nowhere"} {
		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	out := scrape(t, r)
	assert.Contains(t, out, `cbc_http_requests_total{route="/health",status="200"} 2`)
	assert.Contains(t, out, `cbc_http_requests_total{route="unmatched",status="404"} 1`)
	assert.Contains(t, out, `cbc_http_request_duration_seconds_count{route="/health"} 2`)
}

func TestRegisterCacheStats(t *testing.T) {
	r := NewRecorder("cbc")
	stats := service.CacheStats{MemoryHits: 4, Predictions: 7}
	r.RegisterCacheStats("cbc", func() service.CacheStats { return stats })

	out := scrape(t, r)
	assert.Contains(t, out, "cbc_prediction_cache_memory_hits_total 4")
	assert.Contains(t, out, "cbc_prediction_cache_classifier_calls_total 7")

	stats.MemoryHits = 5
	assert.Contains(t, scrape(t, r), "cbc_prediction_cache_memory_hits_total 5")
}

func TestNilRecorder(t *testing.T) {
	var r *Recorder
	assert.NotPanics(t, func() {
		r.ObservePrediction("manual", "Yes")
		r.ObserveFailure("TIMEOUT")
		r.RegisterCacheStats("cbc", nil)
	})

	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(r.Middleware())
	router.GET("/ok", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ok", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = httptest.NewRecorder()
	r.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}
