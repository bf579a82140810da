// Package metrics exposes Prometheus collectors for the roast service.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	roastJobsTotal              *prometheus.CounterVec
	roastStageDurationSeconds   *prometheus.HistogramVec
	roastJobsInFlight           prometheus.Gauge
	roastAnalysisFallbackTotal  prometheus.Counter
	roastSessionsSweptTotal     prometheus.Counter
	roastEventsPublishFailTotal prometheus.Counter
	httpRequestsTotal           *prometheus.CounterVec
	httpRequestDurationSeconds  *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		roastJobsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "roast_jobs_total",
				Help: "Total number of roast jobs finished, labeled by terminal status.",
			},
			[]string{"status"},
		)

		roastStageDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "roast_stage_duration_seconds",
				Help:    "Histogram of pipeline stage latencies, labeled by stage.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"stage"},
		)

		roastJobsInFlight = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "roast_jobs_in_flight",
				Help: "Number of roast jobs currently running.",
			},
		)

		roastAnalysisFallbackTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "roast_analysis_fallback_total",
				Help: "Total analyses that used the canned fallback critique.",
			},
		)

		roastSessionsSweptTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "roast_sessions_swept_total",
				Help: "Total sessions removed by the retention sweep.",
			},
		)

		roastEventsPublishFailTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "roast_events_publish_failures_total",
				Help: "Total completion events that could not be published.",
			},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveJob increments the job counter for the given terminal status.
func ObserveJob(status string) {
	Init()
	roastJobsTotal.WithLabelValues(status).Inc()
}

// ObserveStage records how long a pipeline stage took.
func ObserveStage(stage string, duration time.Duration) {
	Init()
	roastStageDurationSeconds.WithLabelValues(stage).Observe(duration.Seconds())
}

// IncJobsInFlight increments the in-flight gauge.
func IncJobsInFlight() {
	Init()
	roastJobsInFlight.Inc()
}

// DecJobsInFlight decrements the in-flight gauge.
func DecJobsInFlight() {
	Init()
	roastJobsInFlight.Dec()
}

// ObserveFallback counts one degraded analysis.
func ObserveFallback() {
	Init()
	roastAnalysisFallbackTotal.Inc()
}

// ObserveSwept adds n removed sessions.
func ObserveSwept(n int) {
	Init()
	if n > 0 {
		roastSessionsSweptTotal.Add(float64(n))
	}
}

// ObservePublishFailure counts a dropped completion event.
func ObservePublishFailure() {
	Init()
	roastEventsPublishFailTotal.Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
