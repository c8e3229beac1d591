package observability

import (
	"net/http"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registry *prometheus.Registry

	// HTTP request rate. Watch for: sudden drops (service down) or spikes (traffic surge).
	HTTPRequestsTotal *prometheus.CounterVec

	// HTTP request latency per request. Watch for: p95/p99 latency increases, SLO breaches.
	HTTPRequestDuration *prometheus.HistogramVec

	// Concurrent requests in flight. Watch for: saturation, capacity limits.
	HTTPRequestsInFlight prometheus.Gauge

	// Remote provider call rate. Watch for: error vs success ratio.
	RemoteCallsTotal *prometheus.CounterVec

	// Remote provider latency per request. Watch for: p95 > 2s (upstream degradation), p99 > 5s (timeout risk).
	RemoteCallDuration *prometheus.HistogramVec

	// Fallbacks to the synthetic generator by reason. Watch for: sustained non-zero rate = provider trouble or exhausted quota.
	FallbacksTotal *prometheus.CounterVec

	// Forecasts served by provenance. Simulated share rising = remote path degrading.
	ForecastsServedTotal *prometheus.CounterVec

	// Cache hits by backend. Hit rate = hits / (hits + remote calls + fallbacks).
	CacheHitsTotal *prometheus.CounterVec

	// Cache operation errors (memcached unreachable, encode failures).
	CacheErrorsTotal *prometheus.CounterVec

	// Validator clamp events by field. Watch for: bursts = provider shipping garbage.
	ClampEventsTotal *prometheus.CounterVec

	// Outbound sliding-window denials surfaced to callers.
	RateLimitDeniedTotal prometheus.Counter

	// HTTP-side token bucket denials (429).
	HTTPRateLimitDeniedTotal prometheus.Counter

	// Daily quota units spent.
	QuotaSpentTotal prometheus.Counter

	// Calibration overlay applications (region matched and factors applied).
	CalibrationAppliedTotal prometheus.Counter

	// Concurrent cache misses for the same key observed while a fetch was in flight.
	StampedeDetectedTotal prometheus.Counter

	// Batch refresh cycles and per-cycle spot counts.
	BatchRunsTotal      prometheus.Counter
	BatchSpotsUpdated   prometheus.Counter
	BatchCycleDuration  prometheus.Histogram

	quotaGaugeOnce sync.Once
)

func init() {
	registry = prometheus.NewRegistry()

	registry.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)

	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "httpRequestsTotal",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "statusCode"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "httpRequestDurationSeconds",
			Help:    "HTTP request latency in seconds (per request)",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
	HTTPRequestsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "httpRequestsInFlight",
			Help: "Number of HTTP requests currently being served",
		},
	)
	RemoteCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "remoteForecastCallsTotal",
			Help: "Total number of remote point-forecast API calls",
		},
		[]string{"status"},
	)
	RemoteCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "remoteForecastDurationSeconds",
			Help:    "Remote point-forecast API latency in seconds (per request)",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"status"},
	)
	FallbacksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "syntheticFallbacksTotal",
			Help: "Forecast requests that fell back to the synthetic generator",
		},
		[]string{"reason"},
	)
	ForecastsServedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "forecastsServedTotal",
			Help: "Forecasts returned to callers by provenance",
		},
		[]string{"provenance"},
	)
	CacheHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheHitsTotal",
			Help: "Total number of forecast cache hits",
		},
		[]string{"backend"},
	)
	CacheErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheErrorsTotal",
			Help: "Cache operation errors by operation and category",
		},
		[]string{"operation", "category"},
	)
	ClampEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "validatorClampEventsTotal",
			Help: "Out-of-range values clamped by the validator, by field",
		},
		[]string{"field"},
	)
	RateLimitDeniedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "outboundRateLimitDeniedTotal",
			Help: "Forecast requests denied by the outbound sliding-window limiter",
		},
	)
	HTTPRateLimitDeniedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rateLimitDeniedTotal",
			Help: "Total number of HTTP requests denied by rate limiter (429)",
		},
	)
	QuotaSpentTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "quotaSpentTotal",
			Help: "Daily provider quota units spent",
		},
	)
	CalibrationAppliedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "calibrationAppliedTotal",
			Help: "Forecasts adjusted by a regional calibration overlay",
		},
	)
	StampedeDetectedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cacheStampedeDetectedTotal",
			Help: "Concurrent cache misses for the same key while a fetch was in flight",
		},
	)
	BatchRunsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "batchRunsTotal",
			Help: "Batch refresh cycles executed",
		},
	)
	BatchSpotsUpdated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "batchSpotsUpdatedTotal",
			Help: "Spots refreshed across all batch cycles",
		},
	)
	BatchCycleDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "batchCycleDurationSeconds",
			Help:    "Duration of one batch refresh cycle",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300},
		},
	)

	registry.MustRegister(
		HTTPRequestsTotal, HTTPRequestDuration, HTTPRequestsInFlight,
		RemoteCallsTotal, RemoteCallDuration,
		FallbacksTotal, ForecastsServedTotal,
		CacheHitsTotal, CacheErrorsTotal,
		ClampEventsTotal,
		RateLimitDeniedTotal, HTTPRateLimitDeniedTotal,
		QuotaSpentTotal, CalibrationAppliedTotal,
		StampedeDetectedTotal,
		BatchRunsTotal, BatchSpotsUpdated, BatchCycleDuration,
	)
}

// RegisterQuotaGauge exposes the remaining daily quota as a gauge.
// Call from main after the tracker is constructed.
func RegisterQuotaGauge(remaining func() int) {
	quotaGaugeOnce.Do(func() {
		registry.MustRegister(prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Name: "quotaRemaining",
				Help: "Remote provider quota units left today",
			},
			func() float64 { return float64(remaining()) },
		))
	})
}

// CategorizeCacheError returns a stable label for cache error metrics.
func CategorizeCacheError(err error) string {
	if err == nil {
		return "unknown"
	}
	errStr := err.Error()
	if strings.Contains(errStr, "timeout") {
		return "timeout"
	}
	if strings.Contains(errStr, "connection") || strings.Contains(errStr, "network") {
		return "connection"
	}
	return "unknown"
}

// MetricsHandler returns an http.Handler that serves application and runtime metrics.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
