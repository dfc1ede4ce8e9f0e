package zenwave

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector provides Prometheus metrics for the request lifecycle and
// for every middleware layer. It is safe for concurrent use.
type MetricsCollector struct {
	requestsTotal    *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	requestsInFlight *prometheus.GaugeVec

	retriesTotal      *prometheus.CounterVec
	redirectsTotal    *prometheus.CounterVec
	timeoutsTotal     *prometheus.CounterVec
	rateLimitedTotal  *prometheus.CounterVec
	deduplicationHits *prometheus.CounterVec

	cacheHits          *prometheus.CounterVec
	cacheMisses        *prometheus.CounterVec
	cacheRevalidations *prometheus.CounterVec
	cacheEvictions     *prometheus.CounterVec
	cacheSize          *prometheus.GaugeVec

	tokenRefreshes   prometheus.Counter
	tokenFetchErrors prometheus.Counter

	errorsTotal *prometheus.CounterVec

	registry prometheus.Registerer
}

// NewMetricsCollector creates a collector on the default registerer.
func NewMetricsCollector() *MetricsCollector {
	return NewMetricsCollectorWithRegistry(prometheus.DefaultRegisterer)
}

// NewMetricsCollectorWithRegistry creates a collector using the supplied
// registerer, letting tests and embedders isolate metric state.
func NewMetricsCollectorWithRegistry(registry prometheus.Registerer) *MetricsCollector {
	return &MetricsCollector{
		requestsTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "zenwave_requests_total",
				Help: "Total number of HTTP requests made",
			},
			[]string{"method", "status_code", "endpoint"},
		),
		requestDuration: promauto.With(registry).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "zenwave_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "status_code", "endpoint"},
		),
		requestsInFlight: promauto.With(registry).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "zenwave_requests_in_flight",
				Help: "Number of HTTP requests currently in flight",
			},
			[]string{"method", "endpoint"},
		),
		retriesTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "zenwave_retries_total",
				Help: "Total number of retry attempts",
			},
			[]string{"method", "endpoint", "attempt"},
		),
		redirectsTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "zenwave_redirects_total",
				Help: "Total number of redirects followed",
			},
			[]string{"status_code"},
		),
		timeoutsTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "zenwave_timeouts_total",
				Help: "Total number of requests abandoned by the timeout middleware",
			},
			[]string{"method", "endpoint"},
		),
		rateLimitedTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "zenwave_rate_limited_total",
				Help: "Total number of requests denied by the rate limiter",
			},
			[]string{"method", "endpoint"},
		),
		deduplicationHits: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "zenwave_deduplication_hits_total",
				Help: "Total number of requests coalesced into an in-flight duplicate",
			},
			[]string{"method", "endpoint"},
		),
		cacheHits: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "zenwave_cache_hits_total",
				Help: "Total number of fresh cache hits served locally",
			},
			[]string{"method", "endpoint"},
		),
		cacheMisses: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "zenwave_cache_misses_total",
				Help: "Total number of cache misses dispatched upstream",
			},
			[]string{"method", "endpoint"},
		),
		cacheRevalidations: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "zenwave_cache_revalidations_total",
				Help: "Total number of successful 304 revalidations",
			},
			[]string{"endpoint"},
		),
		cacheEvictions: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "zenwave_cache_evictions_total",
				Help: "Total number of entries evicted as irrecoverably stale",
			},
			[]string{"endpoint"},
		),
		cacheSize: promauto.With(registry).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "zenwave_cache_entries",
				Help: "Current number of cached entries",
			},
			[]string{"name"},
		),
		tokenRefreshes: promauto.With(registry).NewCounter(
			prometheus.CounterOpts{
				Name: "zenwave_oauth2_token_refreshes_total",
				Help: "Total number of OAuth2 tokens fetched",
			},
		),
		tokenFetchErrors: promauto.With(registry).NewCounter(
			prometheus.CounterOpts{
				Name: "zenwave_oauth2_token_fetch_errors_total",
				Help: "Total number of failed OAuth2 token fetches",
			},
		),
		errorsTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "zenwave_errors_total",
				Help: "Total number of errors by type",
			},
			[]string{"type", "method", "endpoint"},
		),
		registry: registry,
	}
}

// MetricsHandler returns an HTTP handler exposing the default registry.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}

// RecordRequestStart marks a request as in flight.
func (mc *MetricsCollector) RecordRequestStart(method, endpoint string) {
	mc.requestsInFlight.WithLabelValues(method, endpoint).Inc()
}

// RecordRequestEnd marks a request as finished.
func (mc *MetricsCollector) RecordRequestEnd(method, endpoint string) {
	mc.requestsInFlight.WithLabelValues(method, endpoint).Dec()
}

// RecordRequest records a completed request with its status and duration.
func (mc *MetricsCollector) RecordRequest(method, endpoint string, statusCode int, duration time.Duration) {
	status := strconv.Itoa(statusCode)
	mc.requestsTotal.WithLabelValues(method, status, endpoint).Inc()
	mc.requestDuration.WithLabelValues(method, status, endpoint).Observe(duration.Seconds())
}

// RecordRetry records a retry attempt.
func (mc *MetricsCollector) RecordRetry(method, endpoint string, attempt int) {
	mc.retriesTotal.WithLabelValues(method, endpoint, strconv.Itoa(attempt)).Inc()
}

// RecordRedirect records a followed redirect hop.
func (mc *MetricsCollector) RecordRedirect(statusCode int) {
	mc.redirectsTotal.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordTimeout records an abandoned request.
func (mc *MetricsCollector) RecordTimeout(method, endpoint string) {
	mc.timeoutsTotal.WithLabelValues(method, endpoint).Inc()
}

// RecordRateLimited records a request denied by the rate limiter.
func (mc *MetricsCollector) RecordRateLimited(method, endpoint string) {
	mc.rateLimitedTotal.WithLabelValues(method, endpoint).Inc()
}

// RecordDeduplicationHit records a coalesced duplicate request.
func (mc *MetricsCollector) RecordDeduplicationHit(method, endpoint string) {
	mc.deduplicationHits.WithLabelValues(method, endpoint).Inc()
}

// RecordCacheHit records a fresh cache hit.
func (mc *MetricsCollector) RecordCacheHit(method, endpoint string) {
	mc.cacheHits.WithLabelValues(method, endpoint).Inc()
}

// RecordCacheMiss records a cache miss.
func (mc *MetricsCollector) RecordCacheMiss(method, endpoint string) {
	mc.cacheMisses.WithLabelValues(method, endpoint).Inc()
}

// RecordCacheRevalidation records a successful 304 revalidation.
func (mc *MetricsCollector) RecordCacheRevalidation(endpoint string) {
	mc.cacheRevalidations.WithLabelValues(endpoint).Inc()
}

// RecordCacheEviction records an entry dropped as irrecoverably stale.
func (mc *MetricsCollector) RecordCacheEviction(endpoint string) {
	mc.cacheEvictions.WithLabelValues(endpoint).Inc()
}

// RecordCacheSize records the current entry count of a cache.
func (mc *MetricsCollector) RecordCacheSize(name string, size int) {
	mc.cacheSize.WithLabelValues(name).Set(float64(size))
}

// RecordTokenRefresh records a fetched OAuth2 token.
func (mc *MetricsCollector) RecordTokenRefresh() {
	mc.tokenRefreshes.Inc()
}

// RecordTokenFetchError records a failed OAuth2 token fetch.
func (mc *MetricsCollector) RecordTokenFetchError() {
	mc.tokenFetchErrors.Inc()
}

// RecordError records an error by type.
func (mc *MetricsCollector) RecordError(errorType, method, endpoint string) {
	mc.errorsTotal.WithLabelValues(errorType, method, endpoint).Inc()
}
