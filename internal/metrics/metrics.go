// Package metrics exposes Prometheus collectors for the scraping-job service.
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
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	jobsCreatedTotal           *prometheus.CounterVec
	jobTimeoutsTotal           *prometheus.CounterVec
	planDecisionsTotal         *prometheus.CounterVec
	queuePublishFailuresTotal  prometheus.Counter
	webhookEventsTotal         *prometheus.CounterVec
	suggestionCacheTotal       *prometheus.CounterVec

	once sync.Once
)

// Init registers the collectors with the default registry.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
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

		jobsCreatedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scraping_jobs_created_total",
				Help: "Scraping jobs inserted, labeled by platform and runner.",
			},
			[]string{"platform", "runner"},
		)

		jobTimeoutsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scraping_job_timeouts_total",
				Help: "Jobs moved to timeout by a status read, labeled by platform.",
			},
			[]string{"platform"},
		)

		planDecisionsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "plan_decisions_total",
				Help: "Plan limit checks, labeled by check kind and reason.",
			},
			[]string{"kind", "reason"},
		)

		queuePublishFailuresTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "queue_publish_failures_total",
				Help: "Queue publishes that failed after the job row was written.",
			},
		)

		webhookEventsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "webhook_events_total",
				Help: "Inbound webhook deliveries, labeled by source and outcome.",
			},
			[]string{"source", "outcome"},
		)

		suggestionCacheTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "suggestion_cache_lookups_total",
				Help: "Suggestion cache lookups, labeled by result.",
			},
			[]string{"result"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveJobCreated counts an inserted job.
func ObserveJobCreated(platform, runner string) {
	Init()
	jobsCreatedTotal.WithLabelValues(platform, runner).Inc()
}

// ObserveJobTimeout counts a lazy timeout transition.
func ObserveJobTimeout(platform string) {
	Init()
	jobTimeoutsTotal.WithLabelValues(platform).Inc()
}

// ObservePlanDecision counts a plan check outcome.
func ObservePlanDecision(kind, reason string) {
	Init()
	planDecisionsTotal.WithLabelValues(kind, reason).Inc()
}

// ObservePublishFailure counts a swallowed queue publish error.
func ObservePublishFailure() {
	Init()
	queuePublishFailuresTotal.Inc()
}

// ObserveWebhookEvent counts a webhook delivery outcome.
func ObserveWebhookEvent(source, outcome string) {
	Init()
	webhookEventsTotal.WithLabelValues(source, outcome).Inc()
}

// ObserveSuggestionCache counts a cache hit or miss.
func ObserveSuggestionCache(hit bool) {
	Init()
	result := "miss"
	if hit {
		result = "hit"
	}
	suggestionCacheTotal.WithLabelValues(result).Inc()
}
