package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for the API and the
// generation pipeline.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter
	jobsTotal       *prometheus.CounterVec
	jobDuration     prometheus.Histogram
	subscribers     prometheus.Gauge
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "Total cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "Total cache misses",
	})

	jobsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "generation_jobs_total",
		Help: "Generation jobs by terminal outcome",
	}, []string{"outcome"})

	jobDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "generation_job_duration_seconds",
		Help:    "Wall-clock duration of generation jobs",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
	})

	subscribers := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "progress_subscribers",
		Help: "Active websocket progress subscriptions",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, cacheHits, cacheMisses, jobsTotal, jobDuration, subscribers, goroutines)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:        registry,
		handler:         handler,
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		cacheHits:       cacheHits,
		cacheMisses:     cacheMisses,
		jobsTotal:       jobsTotal,
		jobDuration:     jobDuration,
		subscribers:     subscribers,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// RecordCacheOperation records a cache hit or miss.
func (m *MetricsService) RecordCacheOperation(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.cacheHits.Inc()
	} else {
		m.cacheMisses.Inc()
	}
}

// ObserveGenerationJob records a terminal job outcome and its duration.
func (m *MetricsService) ObserveGenerationJob(outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.jobsTotal.WithLabelValues(outcome).Inc()
	m.jobDuration.Observe(duration.Seconds())
}

// SetProgressSubscribers tracks live websocket subscription count.
func (m *MetricsService) SetProgressSubscribers(n int) {
	if m == nil {
		return
	}
	m.subscribers.Set(float64(n))
}
