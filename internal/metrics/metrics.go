// Package metrics exposes Prometheus collectors for the HTTP surface and the analysis pipeline.
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

	"github.com/cbc-analysis-server/internal/service"
)

// Recorder owns a private registry so that several servers (or tests) never collide on
// registration. A nil *Recorder records nothing.
type Recorder struct {
	registry *prometheus.Registry

	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	predictions     *prometheus.CounterVec
	failures        *prometheus.CounterVec
}

// NewRecorder creates the collectors under the given namespace.
func NewRecorder(namespace string) *Recorder {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(registry)

	return &Recorder{
		registry: registry,
		requests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "HTTP requests by route and status code",
			},
			[]string{"route", "status"},
		),
		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request latency by route",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"route"},
		),
		predictions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "predictions_total",
				Help:      "Completed analyses by input source and prediction",
			},
			[]string{"source", "prediction"},
		),
		failures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "analysis_failures_total",
				Help:      "Rejected or failed analyses by error code",
			},
			[]string{"code"},
		),
	}
}

// Middleware counts requests and observes their latency. Unmatched paths share one label.
func (r *Recorder) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if r == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		r.requests.WithLabelValues(route, strconv.Itoa(c.Writer.Status())).Inc()
		r.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	}
}

// ObservePrediction counts one completed analysis.
func (r *Recorder) ObservePrediction(source, prediction string) {
	if r == nil {
		return
	}
	r.predictions.WithLabelValues(source, prediction).Inc()
}

// ObserveFailure counts one error response by its API error code.
func (r *Recorder) ObserveFailure(code string) {
	if r == nil {
		return
	}
	r.failures.WithLabelValues(code).Inc()
}

// RegisterCacheStats publishes prediction cache counters read from stats at scrape time.
func (r *Recorder) RegisterCacheStats(namespace string, stats func() service.CacheStats) {
	if r == nil {
		return
	}
	factory := promauto.With(r.registry)
	counter := func(name, help string, value func(service.CacheStats) int64) {
		factory.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "prediction_cache",
			Name:      name,
			Help:      help,
		}, func() float64 {
			return float64(value(stats()))
		})
	}

	counter("memory_hits_total", "Predictions served from the in-process LRU", func(s service.CacheStats) int64 { return s.MemoryHits })
	counter("shared_hits_total", "Predictions served from Redis", func(s service.CacheStats) int64 { return s.SharedHits })
	counter("classifier_calls_total", "Predictions computed by the classifier backend", func(s service.CacheStats) int64 { return s.Predictions })
	counter("errors_total", "Classifier or cache errors", func(s service.CacheStats) int64 { return s.ErrorCount })
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
